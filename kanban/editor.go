package kanban

import "fmt"

// Editor provides incremental, validated mutation of an in-memory kanban
// definition for an authoring flow (add/remove state, add/remove
// transition), re-running the same validation path as Register before any
// change is accepted.
type Editor struct {
	registry *Registry
	kanban   Kanban
}

// NewEditor starts editing a copy of an existing kanban's definition.
func NewEditor(registry *Registry, kanbanID string) (*Editor, error) {
	k, ok := registry.Get(kanbanID)
	if !ok {
		return nil, fmt.Errorf("kanban: editor: %q not found", kanbanID)
	}
	return &Editor{registry: registry, kanban: k}, nil
}

// NewDraftEditor starts editing a brand-new kanban definition.
func NewDraftEditor(registry *Registry, id, name, description string) *Editor {
	return &Editor{
		registry: registry,
		kanban: Kanban{
			ID:          id,
			Name:        name,
			Description: description,
		},
	}
}

// AddState appends a state, validating the resulting definition before
// committing the mutation.
func (e *Editor) AddState(s State) error {
	candidate := e.kanban
	candidate.States = append(append([]State(nil), e.kanban.States...), s)
	if err := Validate(candidate, e.kanban.ID); err != nil {
		return err
	}
	e.kanban = candidate
	return nil
}

// RemoveState drops a state by id. Returns ErrUnknownStateReference if no
// such state exists, or if removing it would orphan a transition reference.
func (e *Editor) RemoveState(stateID string) error {
	candidate := e.kanban
	states := make([]State, 0, len(e.kanban.States))
	found := false
	for _, s := range e.kanban.States {
		if s.ID == stateID {
			found = true
			continue
		}
		states = append(states, s)
	}
	if !found {
		return fmt.Errorf("%w: %q", ErrUnknownStateReference, stateID)
	}
	candidate.States = states
	if err := Validate(candidate, e.kanban.ID); err != nil {
		return err
	}
	e.kanban = candidate
	return nil
}

// AddTransition appends a recommended transition.
func (e *Editor) AddTransition(t Transition) error {
	candidate := e.kanban
	candidate.RecommendedTransitions = append(append([]Transition(nil), e.kanban.RecommendedTransitions...), t)
	if err := Validate(candidate, e.kanban.ID); err != nil {
		return err
	}
	e.kanban = candidate
	return nil
}

// RemoveTransition drops the first recommended transition matching (from,to).
func (e *Editor) RemoveTransition(from, to string) {
	out := make([]Transition, 0, len(e.kanban.RecommendedTransitions))
	removed := false
	for _, t := range e.kanban.RecommendedTransitions {
		if !removed && t.From == from && t.To == to {
			removed = true
			continue
		}
		out = append(out, t)
	}
	e.kanban.RecommendedTransitions = out
}

// Definition returns the editor's current, not-yet-persisted kanban.
func (e *Editor) Definition() Kanban {
	return e.kanban.clone()
}

// Save validates and registers the edited kanban with the backing registry,
// persisting it to disk.
func (e *Editor) Save() error {
	return e.registry.Register(e.kanban, true)
}
