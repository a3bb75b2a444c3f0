package kanban

import (
	"errors"
	"fmt"
)

// ErrInvalidDefinition covers schema violations: missing required fields,
// wrong types, empty states.
var ErrInvalidDefinition = errors.New("kanban: invalid definition")

// ErrDuplicateState is returned when two states in one kanban share an id.
var ErrDuplicateState = errors.New("kanban: duplicate state id")

// ErrUnknownStateReference is returned when a transition references a state
// id the kanban never declares.
var ErrUnknownStateReference = errors.New("kanban: unknown state reference")

// Validate checks the structural invariants of section 3.2: unique state
// ids, every transition endpoint resolving to a declared state, at most one
// initial state, and a flow_sequence that is a subset of declared states.
// The returned error wraps one of the sentinels above and names the offending file.
func Validate(k Kanban, source string) error {
	if k.ID == "" {
		return fmt.Errorf("%w: missing id (%s)", ErrInvalidDefinition, source)
	}
	if k.Name == "" {
		return fmt.Errorf("%w: missing name (%s)", ErrInvalidDefinition, source)
	}
	if len(k.States) == 0 {
		return fmt.Errorf("%w: states cannot be empty (%s)", ErrInvalidDefinition, source)
	}

	ids := make(map[string]struct{}, len(k.States))
	initialCount := 0
	for _, s := range k.States {
		if s.ID == "" || s.Name == "" {
			return fmt.Errorf("%w: state missing id or name (%s)", ErrInvalidDefinition, source)
		}
		if _, dup := ids[s.ID]; dup {
			return fmt.Errorf("%w: %q (%s)", ErrDuplicateState, s.ID, source)
		}
		ids[s.ID] = struct{}{}
		if s.Type == StateInitial {
			initialCount++
		}
	}
	if initialCount > 1 {
		return fmt.Errorf("%w: at most one initial state allowed (%s)", ErrInvalidDefinition, source)
	}

	// Second pass: now that every id is known, validate forward references.
	for _, s := range k.States {
		if s.AutoTransitionTo != "" {
			if _, ok := ids[s.AutoTransitionTo]; !ok {
				return fmt.Errorf("%w: state %q auto_transition_to %q (%s)", ErrUnknownStateReference, s.ID, s.AutoTransitionTo, source)
			}
		}
	}

	if err := checkEndpoints(k.RecommendedTransitions, ids, source); err != nil {
		return err
	}
	for _, t := range k.BlockedTransitions {
		if err := checkPair(t.From, t.To, ids, source); err != nil {
			return err
		}
	}
	for _, t := range k.WarnedTransitions {
		if err := checkPair(t.From, t.To, ids, source); err != nil {
			return err
		}
	}

	if k.Agents != nil && len(k.Agents.FlowSequence) > 0 {
		for _, id := range k.Agents.FlowSequence {
			if _, ok := ids[id]; !ok {
				return fmt.Errorf("%w: flow_sequence state %q (%s)", ErrUnknownStateReference, id, source)
			}
		}
	}

	return nil
}

func checkEndpoints(ts []Transition, ids map[string]struct{}, source string) error {
	for _, t := range ts {
		if err := checkPair(t.From, t.To, ids, source); err != nil {
			return err
		}
	}
	return nil
}

func checkPair(from, to string, ids map[string]struct{}, source string) error {
	if _, ok := ids[from]; !ok {
		return fmt.Errorf("%w: from %q (%s)", ErrUnknownStateReference, from, source)
	}
	if _, ok := ids[to]; !ok {
		return fmt.Errorf("%w: to %q (%s)", ErrUnknownStateReference, to, source)
	}
	return nil
}
