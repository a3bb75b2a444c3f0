// Package process implements the process factory and form-trigger manager
// (C5): turning a form-save event into a live workflow process, keeping it
// in sync on form updates, and reconciling orphaned processes whose source
// form record disappeared. Grounded on
// _examples/original_source/src/workflow/{process_factory.py,form_trigger_manager.py}.
package process

import (
	"crypto/rand"
	"fmt"
	"time"

	"eve.evalgo.org/workflow/config"
	"eve.evalgo.org/workflow/kanban"
	"eve.evalgo.org/workflow/repository"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// FormEvent is the shape a host application's form-save hook delivers.
type FormEvent struct {
	FormPath  string
	FormData  map[string]interface{}
	RecordIdx int
}

// SyncResult tallies the outcome of a bulk sync.
type SyncResult struct {
	Created int
	Updated int
	Skipped int
	Errors  []error
}

// Factory creates and synchronizes processes from form events.
type Factory struct {
	registry     *kanban.Registry
	repo         *repository.ProcessRepository
	orphanPolicy config.OrphanPolicy
}

// NewFactory wires a Factory against a kanban registry and process repository.
func NewFactory(registry *kanban.Registry, repo *repository.ProcessRepository, orphanPolicy config.OrphanPolicy) *Factory {
	return &Factory{registry: registry, repo: repo, orphanPolicy: orphanPolicy}
}

// OnFormCreated handles a form-save event, creating a linked process if the
// form is wired to a kanban. Returns ("", nil) when the form isn't linked —
// that is "not created", not an error.
func (f *Factory) OnFormCreated(event FormEvent) (string, error) {
	k, ok := f.registry.GetByForm(event.FormPath)
	if !ok {
		return "", nil
	}

	initial, ok := k.InitialState()
	if !ok {
		return "", fmt.Errorf("process: kanban %q has no resolvable initial state", k.ID)
	}

	fieldValues := applyFieldMapping(k, event.FormData)
	now := time.Now().UTC()

	p := repository.Process{
		ProcessID:       GenerateProcessID(k.ID),
		KanbanID:        k.ID,
		SourceForm:      event.FormPath,
		SourceRecordIdx: event.RecordIdx,
		CurrentState:    initial.ID,
		FieldValues:     fieldValues,
		CreatedAt:       now,
		UpdatedAt:       now,
		SLA:             computeSLA(k, now),
	}

	created, err := f.repo.CreateProcess(p)
	if err != nil {
		return "", fmt.Errorf("process: creating from form %q: %w", event.FormPath, err)
	}
	return created.ProcessID, nil
}

// OnFormUpdated re-applies the field mapping to the process linked to
// (form_path, record_idx). If no linked process exists yet, it behaves like
// OnFormCreated — legacy form data that predates the kanban link.
func (f *Factory) OnFormUpdated(event FormEvent) (string, error) {
	k, ok := f.registry.GetByForm(event.FormPath)
	if !ok {
		return "", nil
	}

	existing, err := f.findBySourceRecord(event.FormPath, event.RecordIdx)
	if err != nil {
		return "", err
	}
	if existing == nil {
		return f.OnFormCreated(event)
	}

	fieldValues := applyFieldMapping(k, event.FormData)
	updated, err := f.repo.ReplaceFieldValues(existing.ProcessID, fieldValues, "", repository.ActorSystem, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("process: updating from form %q: %w", event.FormPath, err)
	}
	return updated.ProcessID, nil
}

// OnFormDeleted reconciles a process whose source form record was removed,
// per the configured OrphanPolicy: delete outright, or mark orphaned by
// prefixing source_form with "[DELETED]" (non-destructive, reversible).
func (f *Factory) OnFormDeleted(formPath string, recordIdx int) error {
	existing, err := f.findBySourceRecord(formPath, recordIdx)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}

	now := time.Now().UTC()
	if f.orphanPolicy == config.OrphanDelete {
		return f.repo.DeleteProcess(existing.ProcessID, "", repository.ActorSystem, now)
	}

	_, err = f.repo.MarkOrphaned(existing.ProcessID, now)
	return err
}

// SyncExistingForms bulk-creates or -updates processes for a slice of form
// records, idempotently: an existing process for (form_path, idx) is
// updated rather than duplicated. With recreate set, records that already
// have a process are left untouched and counted as Skipped.
func (f *Factory) SyncExistingForms(formPath string, records []map[string]interface{}, recreate bool) SyncResult {
	result := SyncResult{}
	for idx, data := range records {
		existing, err := f.findBySourceRecord(formPath, idx)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		if existing != nil && !recreate {
			if _, err := f.OnFormUpdated(FormEvent{FormPath: formPath, FormData: data, RecordIdx: idx}); err != nil {
				result.Errors = append(result.Errors, err)
				continue
			}
			result.Updated++
			continue
		}
		if existing != nil && recreate {
			result.Skipped++
			continue
		}
		id, err := f.OnFormCreated(FormEvent{FormPath: formPath, FormData: data, RecordIdx: idx})
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		if id == "" {
			result.Skipped++
			continue
		}
		result.Created++
	}
	return result
}

// CleanupOrphaned deletes every process flagged orphaned for formPath. It
// checks both the original source_form and its "[DELETED] "-prefixed form,
// since MarkOrphaned rewrites source_form in place.
func (f *Factory) CleanupOrphaned(formPath string) (int, error) {
	candidates, err := f.repo.BySourceForm(formPath)
	if err != nil {
		return 0, err
	}
	marked, err := f.repo.BySourceForm("[DELETED] " + formPath)
	if err != nil {
		return 0, err
	}
	candidates = append(candidates, marked...)

	removed := 0
	for _, p := range candidates {
		if !repository.IsOrphaned(p) {
			continue
		}
		if err := f.repo.DeleteProcess(p.ProcessID, "", repository.ActorSystem, time.Now().UTC()); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (f *Factory) findBySourceRecord(formPath string, recordIdx int) (*repository.Process, error) {
	candidates, err := f.repo.BySourceForm(formPath)
	if err != nil {
		return nil, err
	}
	for _, p := range candidates {
		if p.SourceRecordIdx == recordIdx {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

// applyFieldMapping copies form_data straight through if the kanban defines
// no field_mapping; otherwise only mapped fields survive, renamed per the
// mapping (spec 4.4 step 4).
func applyFieldMapping(k kanban.Kanban, formData map[string]interface{}) map[string]interface{} {
	if len(k.FieldMapping) == 0 {
		out := make(map[string]interface{}, len(formData))
		for key, val := range formData {
			out[key] = val
		}
		return out
	}
	out := make(map[string]interface{}, len(k.FieldMapping))
	for formField, processField := range k.FieldMapping {
		if val, ok := formData[formField]; ok {
			out[processField] = val
		}
	}
	return out
}

// computeSLA derives the deadline and warn threshold from the kanban's
// sla_hours, or returns nil if none is configured.
func computeSLA(k kanban.Kanban, now time.Time) *repository.SLA {
	if k.SLAHours == nil && len(k.ColumnSLAHours) == 0 {
		return nil
	}
	sla := &repository.SLA{}
	if k.SLAHours != nil {
		sla.Deadline = now.Add(time.Duration(*k.SLAHours * float64(time.Hour)))
		sla.WarnThresholdHours = *k.SLAHours / 4
	}
	if len(k.ColumnSLAHours) > 0 {
		sla.StateSLAs = make(map[string]float64, len(k.ColumnSLAHours))
		for state, hours := range k.ColumnSLAHours {
			sla.StateSLAs[state] = hours
		}
	}
	return sla
}

// GenerateProcessID produces a human-readable, globally unique process id:
// {kanban_id}_{YYYYMMDD_HHMMSS}_{8-char random}.
func GenerateProcessID(kanbanID string) string {
	return fmt.Sprintf("%s_%s_%s", kanbanID, time.Now().UTC().Format("20060102_150405"), randomSuffix(8))
}

func randomSuffix(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read on a correctly configured system never fails;
		// falling back to a fixed suffix keeps GenerateProcessID total.
		for i := range buf {
			buf[i] = idAlphabet[0]
		}
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(out)
}
