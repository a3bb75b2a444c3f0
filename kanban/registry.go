package kanban

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"eve.evalgo.org/workflow/common"
)

// LoadError collects one kanban file's validation or parse failure; LoadAll
// gathers these instead of aborting the whole directory scan.
type LoadError struct {
	File string
	Err  error
}

func (e LoadError) Error() string {
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

// Registry is the process-wide, shared-read kanban index: id -> definition
// and form_path -> kanban_id. Reads take a shared lock; register/unregister/reload
// take an exclusive one, per the concurrency model's shared-resource policy.
type Registry struct {
	mu           sync.RWMutex
	dir          string
	kanbans      map[string]Kanban
	formToKanban map[string]string
}

// NewRegistry constructs an empty registry rooted at dir. Call LoadAll to
// populate it from disk.
func NewRegistry(dir string) *Registry {
	return &Registry{
		dir:          dir,
		kanbans:      make(map[string]Kanban),
		formToKanban: make(map[string]string),
	}
}

// LoadAll parses every *.json file in the registry's directory, validates
// each independently, and rebuilds both indexes atomically. Malformed files
// are collected and returned as one LoadError each; the directory is
// otherwise loaded as completely as possible.
func (r *Registry) LoadAll() []LoadError {
	matches, err := filepath.Glob(filepath.Join(r.dir, "*.json"))
	if err != nil {
		return []LoadError{{File: r.dir, Err: err}}
	}

	kanbans := make(map[string]Kanban, len(matches))
	formToKanban := make(map[string]string)
	var errs []LoadError

	for _, path := range matches {
		k, err := loadFile(path)
		if err != nil {
			errs = append(errs, LoadError{File: filepath.Base(path), Err: err})
			continue
		}
		conflict := false
		for _, form := range k.LinkedForms {
			if owner, ok := formToKanban[form]; ok && owner != k.ID {
				errs = append(errs, LoadError{File: filepath.Base(path), Err: fmt.Errorf("linked_form %q already mapped to kanban %q", form, owner)})
				conflict = true
			}
		}
		if conflict {
			continue
		}
		kanbans[k.ID] = k
		for _, form := range k.LinkedForms {
			formToKanban[form] = k.ID
		}
	}

	r.mu.Lock()
	r.kanbans = kanbans
	r.formToKanban = formToKanban
	r.mu.Unlock()

	common.Logger.WithField("count", len(kanbans)).Info("kanban registry loaded")
	return errs
}

func loadFile(path string) (Kanban, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Kanban{}, fmt.Errorf("reading file: %w", err)
	}
	var k Kanban
	if err := json.Unmarshal(data, &k); err != nil {
		return Kanban{}, fmt.Errorf("parsing json: %w", err)
	}
	if err := Validate(k, filepath.Base(path)); err != nil {
		return Kanban{}, err
	}
	return k, nil
}

// Get returns a defensive copy of the kanban with the given id.
func (r *Registry) Get(kanbanID string) (Kanban, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kanbans[kanbanID]
	if !ok {
		return Kanban{}, false
	}
	return k.clone(), true
}

// GetByForm returns a defensive copy of the kanban linked to formPath.
func (r *Registry) GetByForm(formPath string) (Kanban, bool) {
	r.mu.RLock()
	kanbanID, ok := r.formToKanban[formPath]
	r.mu.RUnlock()
	if !ok {
		return Kanban{}, false
	}
	return r.Get(kanbanID)
}

// All returns defensive copies of every registered kanban.
func (r *Registry) All() []Kanban {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Kanban, 0, len(r.kanbans))
	for _, k := range r.kanbans {
		out = append(out, k.clone())
	}
	return out
}

// Register validates k, updates both indexes, and optionally writes it to
// <dir>/<id>.json.
func (r *Registry) Register(k Kanban, persist bool) error {
	if err := Validate(k, k.ID); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, form := range k.LinkedForms {
		if owner, ok := r.formToKanban[form]; ok && owner != k.ID {
			return fmt.Errorf("linked_form %q already mapped to kanban %q", form, owner)
		}
	}

	if persist {
		if err := os.MkdirAll(r.dir, 0o755); err != nil {
			return fmt.Errorf("creating kanban dir: %w", err)
		}
		data, err := json.MarshalIndent(k, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding kanban: %w", err)
		}
		path := filepath.Join(r.dir, k.ID+".json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing kanban file: %w", err)
		}
	}

	r.kanbans[k.ID] = k.clone()
	for _, form := range k.LinkedForms {
		r.formToKanban[form] = k.ID
	}
	return nil
}

// Unregister removes kanbanID from both indexes and optionally deletes its
// backing file. Returns false if the kanban was not present.
func (r *Registry) Unregister(kanbanID string, deleteFile bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.kanbans[kanbanID]
	if !ok {
		return false
	}
	for _, form := range k.LinkedForms {
		delete(r.formToKanban, form)
	}
	delete(r.kanbans, kanbanID)

	if deleteFile {
		path := filepath.Join(r.dir, kanbanID+".json")
		_ = os.Remove(path)
	}
	return true
}

// --- Transition classification, used throughout the engine. ---

// IsBlocked reports whether (from,to) appears in k's blocked_transitions.
func IsBlocked(k Kanban, from, to string) bool {
	for _, t := range k.BlockedTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// BlockedReason returns the reason string for a blocked (from,to) pair, if any.
func BlockedReason(k Kanban, from, to string) (string, bool) {
	for _, t := range k.BlockedTransitions {
		if t.From == from && t.To == to {
			return t.Reason, true
		}
	}
	return "", false
}

// IsWarned reports whether (from,to) appears in k's warned_transitions.
func IsWarned(k Kanban, from, to string) bool {
	_, ok := WarnedTransitionFor(k, from, to)
	return ok
}

// WarnedTransitionFor returns the warned-transition descriptor for (from,to), if any.
func WarnedTransitionFor(k Kanban, from, to string) (WarnedTransition, bool) {
	for _, t := range k.WarnedTransitions {
		if t.From == from && t.To == to {
			return t, true
		}
	}
	return WarnedTransition{}, false
}

// Recommended returns the recommended-transition descriptor for (from,to), if any.
func Recommended(k Kanban, from, to string) (Transition, bool) {
	for _, t := range k.RecommendedTransitions {
		if t.From == from && t.To == to {
			return t, true
		}
	}
	return Transition{}, false
}

// AvailableFrom returns every recommended transition whose From equals from.
func AvailableFrom(k Kanban, from string) []Transition {
	var out []Transition
	for _, t := range k.RecommendedTransitions {
		if t.From == from {
			out = append(out, t)
		}
	}
	return out
}

// CanTransition implements the warn-not-block contract: permissive by
// default, restricted only by an explicit blocked_transitions entry.
func CanTransition(k Kanban, from, to string) bool {
	return !IsBlocked(k, from, to)
}
