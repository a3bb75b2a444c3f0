// Package tags implements the tag record store (spec §3.5): an
// object-type/object-id-scoped, append-only history of tag applications and
// removals, used as a generic "tags as state" convention on top of processes
// or arbitrary form records. Grounded on
// _examples/original_source/src/services/tag_service.py (add_tag/remove_tag/
// has_tag/get_objects_with_tag/transition), with the concurrent in-memory
// store shape adapted from kanban.Registry's mutex-guarded map.
package tags

import (
	"errors"
	"regexp"
	"sync"
	"time"
)

// ErrInvalidTagName is returned when a tag fails the lowercase
// alphanumeric-and-underscore format tag_service.py's _validate_tag_name
// enforces.
var ErrInvalidTagName = errors.New("tags: tag name must be lowercase alphanumeric/underscore")

var tagNamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// Record is one tag event on an addressable object. It is "active" iff
// RemovedAt is zero — removing a tag never deletes its Record, it only
// stamps RemovedAt/RemovedBy, so history survives add/remove cycles.
type Record struct {
	ObjectType string
	ObjectID   string
	Tag        string
	AppliedAt  time.Time
	AppliedBy  string
	RemovedAt  time.Time
	RemovedBy  string
	Metadata   map[string]interface{}
}

// Active reports whether this Record represents the tag's current state.
func (r Record) Active() bool { return r.RemovedAt.IsZero() }

// Store is the process-wide tag index, keyed by object_type/object_id.
// Reads take a shared lock; add/remove take an exclusive one, the same
// concurrency shape as kanban.Registry.
type Store struct {
	mu       sync.RWMutex
	byObject map[string][]*Record
}

// NewStore constructs an empty tag store.
func NewStore() *Store {
	return &Store{byObject: make(map[string][]*Record)}
}

func key(objectType, objectID string) string { return objectType + "/" + objectID }

// Add applies tag to the object, attributed to appliedBy, with optional
// metadata. Adding an already-active tag is a no-op (spec §8 tag
// idempotency): the existing Record is returned unchanged and added is
// false.
func (s *Store) Add(objectType, objectID, tag, appliedBy string, metadata map[string]interface{}) (record Record, added bool, err error) {
	if !tagNamePattern.MatchString(tag) {
		return Record{}, false, ErrInvalidTagName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(objectType, objectID)
	for _, r := range s.byObject[k] {
		if r.Tag == tag && r.Active() {
			return *r, false, nil
		}
	}

	r := &Record{
		ObjectType: objectType,
		ObjectID:   objectID,
		Tag:        tag,
		AppliedAt:  time.Now().UTC(),
		AppliedBy:  appliedBy,
		Metadata:   metadata,
	}
	s.byObject[k] = append(s.byObject[k], r)
	return *r, true, nil
}

// Remove marks tag's active Record on the object as removed. Removing a
// tag that is not currently active is a no-op (spec §8): history is
// preserved either way, and removed is false when there was nothing active
// to remove.
func (s *Store) Remove(objectType, objectID, tag, removedBy string) (removed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.byObject[key(objectType, objectID)] {
		if r.Tag == tag && r.Active() {
			r.RemovedAt = time.Now().UTC()
			r.RemovedBy = removedBy
			return true
		}
	}
	return false
}

// HasTag reports whether tag is currently active on the object.
func (s *Store) HasTag(objectType, objectID, tag string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.byObject[key(objectType, objectID)] {
		if r.Tag == tag && r.Active() {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether the object has at least one of checkTags active.
func (s *Store) HasAnyTag(objectType, objectID string, checkTags []string) bool {
	for _, t := range checkTags {
		if s.HasTag(objectType, objectID, t) {
			return true
		}
	}
	return false
}

// HasAllTags reports whether the object has every one of checkTags active.
func (s *Store) HasAllTags(objectType, objectID string, checkTags []string) bool {
	for _, t := range checkTags {
		if !s.HasTag(objectType, objectID, t) {
			return false
		}
	}
	return true
}

// Tags returns the object's tag records oldest-first: active ones only,
// unless includeRemoved is set.
func (s *Store) Tags(objectType, objectID string, includeRemoved bool) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.byObject[key(objectType, objectID)]
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if !includeRemoved && !r.Active() {
			continue
		}
		out = append(out, *r)
	}
	return out
}

// TagNames is Tags reduced to just the tag strings.
func (s *Store) TagNames(objectType, objectID string, includeRemoved bool) []string {
	records := s.Tags(objectType, objectID, includeRemoved)
	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, r.Tag)
	}
	return names
}

// ObjectsWithTag returns every object id of objectType with tag currently
// active — the primary "find objects in state X" query.
func (s *Store) ObjectsWithTag(objectType, tag string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, records := range s.byObject {
		for _, r := range records {
			if r.ObjectType == objectType && r.Tag == tag && r.Active() {
				out = append(out, r.ObjectID)
				break
			}
		}
	}
	return out
}

// Transition removes fromTag (a no-op if it isn't active) and adds toTag,
// attributed to actor — the common "move from state A to state B" pattern
// tag_service.py's transition() implements over add_tag/remove_tag.
func (s *Store) Transition(objectType, objectID, fromTag, toTag, actor string, metadata map[string]interface{}) (Record, error) {
	if fromTag != "" {
		s.Remove(objectType, objectID, fromTag, actor)
	}
	r, _, err := s.Add(objectType, objectID, toTag, actor, metadata)
	return r, err
}

// RemoveAll removes every currently active tag from the object, returning
// the count actually removed.
func (s *Store) RemoveAll(objectType, objectID, removedBy string) int {
	names := s.TagNames(objectType, objectID, false)
	count := 0
	for _, t := range names {
		if s.Remove(objectType, objectID, t, removedBy) {
			count++
		}
	}
	return count
}
