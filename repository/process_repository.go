package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"eve.evalgo.org/workflow/ids"
)

// ProcessSchema describes the workflow_processes table; flattened via JSON
// encoding of FieldValues/Tags/Metadata/SLA so any Driver, scalar-only or
// not, can store it.
var ProcessSchema = Schema{
	Title: "workflow_processes",
	Fields: []Field{
		{Name: "process_id", Type: FieldText, Required: true},
		{Name: "kanban_id", Type: FieldText, Required: true},
		{Name: "source_form", Type: FieldText},
		{Name: "source_record_idx", Type: FieldNumber},
		{Name: "current_state", Type: FieldText, Required: true},
		{Name: "field_values", Type: FieldTextarea},
		{Name: "created_at", Type: FieldDateTimeLoc},
		{Name: "updated_at", Type: FieldDateTimeLoc},
		{Name: "tags", Type: FieldTextarea},
		{Name: "assigned_to", Type: FieldText},
		{Name: "sla", Type: FieldTextarea},
		{Name: "metadata", Type: FieldTextarea},
	},
}

// AuditSchema describes the append-only workflow_audit table (12 columns, spec 6.3).
var AuditSchema = Schema{
	Title: "workflow_audit",
	Fields: []Field{
		{Name: "timestamp", Type: FieldDateTimeLoc, Required: true},
		{Name: "process_id", Type: FieldText, Required: true},
		{Name: "kanban_id", Type: FieldText, Required: true},
		{Name: "action", Type: FieldText, Required: true},
		{Name: "from_state", Type: FieldText},
		{Name: "to_state", Type: FieldText},
		{Name: "user", Type: FieldText},
		{Name: "type", Type: FieldText},
		{Name: "justification", Type: FieldTextarea},
		{Name: "duration_in_previous_state", Type: FieldNumber, Decimal: true},
		{Name: "prerequisites_met", Type: FieldCheckbox},
		{Name: "metadata_json", Type: FieldTextarea},
	},
}

// ProcessRepository is the workflow-specific facade over a pluggable Driver,
// mirroring the teacher's pattern of a thin domain wrapper around a generic
// storage backend. It owns the create-process/append-audit atomicity
// contract and the id-only access discipline; it never indexes by row
// position (spec's Open Question on CRUD addressing is resolved as
// id-based only).
type ProcessRepository struct {
	driver Driver
}

// NewProcessRepository wires driver as the backing store, ensuring both
// logical tables exist.
func NewProcessRepository(driver Driver) (*ProcessRepository, error) {
	if _, err := driver.CreateStorage(processesPath, ProcessSchema); err != nil {
		return nil, fmt.Errorf("repository: provisioning process storage: %w", err)
	}
	if _, err := driver.CreateStorage(auditPath, AuditSchema); err != nil {
		return nil, fmt.Errorf("repository: provisioning audit storage: %w", err)
	}
	return &ProcessRepository{driver: driver}, nil
}

// CreateProcess assigns a process_id if absent, persists the process, then
// appends a process_created audit entry. If the audit append fails after
// the process write succeeds, the process is rolled back so no orphaned
// live record is left without its creation event (spec's atomicity
// requirement, section 4.2).
func (r *ProcessRepository) CreateProcess(p Process) (Process, error) {
	if p.ProcessID == "" {
		p.ProcessID = ids.New()
	}
	now := p.CreatedAt
	if now.IsZero() {
		now = p.UpdatedAt
	}
	if now.IsZero() {
		return Process{}, fmt.Errorf("repository: CreateProcess requires CreatedAt")
	}
	p.UpdatedAt = now

	record, err := processToRecord(p)
	if err != nil {
		return Process{}, err
	}
	if _, err := r.driver.Create(processesPath, ProcessSchema, record); err != nil {
		return Process{}, fmt.Errorf("repository: creating process: %w", err)
	}

	entry := AuditEntry{
		Timestamp:        now,
		ProcessID:        p.ProcessID,
		KanbanID:         p.KanbanID,
		Action:           ActionProcessCreated,
		ToState:          p.CurrentState,
		Type:             ActorSystem,
		PrerequisitesMet: true,
	}
	if err := r.appendAudit(entry); err != nil {
		// compensate: the process must not outlive its own creation event.
		_, _ = r.driver.DeleteByID(processesPath, ProcessSchema, p.ProcessID)
		return Process{}, fmt.Errorf("repository: logging process creation: %w", err)
	}
	return p, nil
}

func (r *ProcessRepository) appendAudit(e AuditEntry) error {
	record, err := auditToRecord(e)
	if err != nil {
		return err
	}
	if _, err := r.driver.Create(auditPath, AuditSchema, record); err != nil {
		return err
	}
	return nil
}

// GetByID returns the process with the given id.
func (r *ProcessRepository) GetByID(id string) (Process, error) {
	rec, err := r.driver.ReadByID(processesPath, ProcessSchema, id)
	if err != nil {
		return Process{}, err
	}
	return recordToProcess(rec)
}

// All returns every process, regardless of kanban or state.
func (r *ProcessRepository) All() ([]Process, error) {
	recs, err := r.driver.ReadAll(processesPath, ProcessSchema)
	if err != nil {
		return nil, err
	}
	return recordsToProcesses(recs)
}

// ByKanban filters All to processes belonging to kanbanID.
func (r *ProcessRepository) ByKanban(kanbanID string) ([]Process, error) {
	return r.filterAll(func(p Process) bool { return p.KanbanID == kanbanID })
}

// BySourceForm filters All to processes created from sourceForm.
func (r *ProcessRepository) BySourceForm(sourceForm string) ([]Process, error) {
	return r.filterAll(func(p Process) bool { return p.SourceForm == sourceForm })
}

// ByState filters All to processes currently in state.
func (r *ProcessRepository) ByState(kanbanID, state string) ([]Process, error) {
	return r.filterAll(func(p Process) bool { return p.KanbanID == kanbanID && p.CurrentState == state })
}

func (r *ProcessRepository) filterAll(keep func(Process) bool) ([]Process, error) {
	all, err := r.All()
	if err != nil {
		return nil, err
	}
	out := make([]Process, 0, len(all))
	for _, p := range all {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// UpdateState moves a process to newState and appends the corresponding
// state_changed (or forced_transition, when forced is true) audit entry.
// Both writes happen regardless of outcome ordering concerns noted in
// CreateProcess, because a failed state_changed append here only means the
// audit trail lags the live record by one entry — recoverable by a
// reconciliation sweep, unlike a dangling process with no creation event.
// extra, if given, is merged into the appended audit entry's metadata — the
// transition engine uses it to record was_anomaly and warning text alongside
// the forced flag this method sets itself.
func (r *ProcessRepository) UpdateState(id string, newState string, actor ActorType, user, justification string, durationPrev float64, prerequisitesMet bool, forced bool, when time.Time, extra ...map[string]interface{}) (Process, error) {
	p, err := r.GetByID(id)
	if err != nil {
		return Process{}, err
	}
	fromState := p.CurrentState
	p.CurrentState = newState
	p.UpdatedAt = when

	record, err := processToRecord(p)
	if err != nil {
		return Process{}, err
	}
	ok, err := r.driver.UpdateByID(processesPath, ProcessSchema, id, record)
	if err != nil {
		return Process{}, fmt.Errorf("repository: updating process state: %w", err)
	}
	if !ok {
		return Process{}, ErrNotFound
	}

	action := ActionStateChanged
	var metadata map[string]interface{}
	for _, m := range extra {
		for k, v := range m {
			if metadata == nil {
				metadata = make(map[string]interface{}, len(m))
			}
			metadata[k] = v
		}
	}
	if forced {
		action = ActionForcedTransition
		if metadata == nil {
			metadata = make(map[string]interface{}, 1)
		}
		metadata["forced"] = true
	}
	entry := AuditEntry{
		Timestamp:               when,
		ProcessID:               id,
		KanbanID:                p.KanbanID,
		Action:                  action,
		FromState:               fromState,
		ToState:                 newState,
		User:                    user,
		Type:                    actor,
		Justification:           justification,
		DurationInPreviousState: durationPrev,
		PrerequisitesMet:        prerequisitesMet,
		Metadata:                metadata,
	}
	if err := r.appendAudit(entry); err != nil {
		return Process{}, fmt.Errorf("repository: logging state change: %w", err)
	}
	return p, nil
}

// UpdateProcess merges patch into the process's field values/tags/metadata
// and appends a process_updated audit entry.
func (r *ProcessRepository) UpdateProcess(id string, patch map[string]interface{}, user string, actor ActorType, when time.Time) (Process, error) {
	p, err := r.GetByID(id)
	if err != nil {
		return Process{}, err
	}
	if p.FieldValues == nil {
		p.FieldValues = map[string]interface{}{}
	}
	for k, v := range patch {
		p.FieldValues[k] = v
	}
	p.UpdatedAt = when

	record, err := processToRecord(p)
	if err != nil {
		return Process{}, err
	}
	ok, err := r.driver.UpdateByID(processesPath, ProcessSchema, id, record)
	if err != nil {
		return Process{}, fmt.Errorf("repository: updating process: %w", err)
	}
	if !ok {
		return Process{}, ErrNotFound
	}

	entry := AuditEntry{
		Timestamp:        when,
		ProcessID:        id,
		KanbanID:         p.KanbanID,
		Action:           ActionProcessUpdated,
		ToState:          p.CurrentState,
		User:             user,
		Type:             actor,
		PrerequisitesMet: true,
	}
	if err := r.appendAudit(entry); err != nil {
		return Process{}, fmt.Errorf("repository: logging process update: %w", err)
	}
	return p, nil
}

// DeleteProcess removes the live record and appends a process_deleted entry.
// The audit entry always records the deletion even if it lags, per the same
// reasoning as UpdateState.
func (r *ProcessRepository) DeleteProcess(id string, user string, actor ActorType, when time.Time) error {
	p, err := r.GetByID(id)
	if err != nil {
		return err
	}
	ok, err := r.driver.DeleteByID(processesPath, ProcessSchema, id)
	if err != nil {
		return fmt.Errorf("repository: deleting process: %w", err)
	}
	if !ok {
		return ErrNotFound
	}

	entry := AuditEntry{
		Timestamp: when,
		ProcessID: id,
		KanbanID:  p.KanbanID,
		Action:    ActionProcessDeleted,
		FromState: p.CurrentState,
		User:      user,
		Type:      actor,
	}
	return r.appendAudit(entry)
}

// ReplaceFieldValues overwrites a process's field_values wholesale (rather
// than merging, as UpdateProcess does) and logs a process_updated entry.
// This is what re-syncing a process from its source form record needs: the
// form's current field set, not a superset of old and new fields.
func (r *ProcessRepository) ReplaceFieldValues(id string, fieldValues map[string]interface{}, user string, actor ActorType, when time.Time) (Process, error) {
	p, err := r.GetByID(id)
	if err != nil {
		return Process{}, err
	}
	p.FieldValues = fieldValues
	p.UpdatedAt = when

	record, err := processToRecord(p)
	if err != nil {
		return Process{}, err
	}
	ok, err := r.driver.UpdateByID(processesPath, ProcessSchema, id, record)
	if err != nil {
		return Process{}, fmt.Errorf("repository: replacing process field values: %w", err)
	}
	if !ok {
		return Process{}, ErrNotFound
	}

	entry := AuditEntry{
		Timestamp:        when,
		ProcessID:        id,
		KanbanID:         p.KanbanID,
		Action:           ActionProcessUpdated,
		ToState:          p.CurrentState,
		User:             user,
		Type:             actor,
		PrerequisitesMet: true,
	}
	if err := r.appendAudit(entry); err != nil {
		return Process{}, fmt.Errorf("repository: logging field value sync: %w", err)
	}
	return p, nil
}

const orphanFormPrefix = "[DELETED] "

// MarkOrphaned flags a process whose source form record was deleted by
// prefixing SourceForm with "[DELETED] " and setting a metadata marker,
// without touching FieldValues — the non-destructive alternative to
// DeleteProcess selected by config.OrphanMark (spec section 4.4).
func (r *ProcessRepository) MarkOrphaned(id string, when time.Time) (Process, error) {
	p, err := r.GetByID(id)
	if err != nil {
		return Process{}, err
	}
	if len(p.SourceForm) < len(orphanFormPrefix) || p.SourceForm[:len(orphanFormPrefix)] != orphanFormPrefix {
		p.SourceForm = orphanFormPrefix + p.SourceForm
	}
	if p.Metadata == nil {
		p.Metadata = map[string]interface{}{}
	}
	p.Metadata["orphaned"] = true
	p.UpdatedAt = when

	record, err := processToRecord(p)
	if err != nil {
		return Process{}, err
	}
	ok, err := r.driver.UpdateByID(processesPath, ProcessSchema, id, record)
	if err != nil {
		return Process{}, fmt.Errorf("repository: marking process orphaned: %w", err)
	}
	if !ok {
		return Process{}, ErrNotFound
	}

	entry := AuditEntry{
		Timestamp: when,
		ProcessID: id,
		KanbanID:  p.KanbanID,
		Action:    ActionProcessUpdated,
		ToState:   p.CurrentState,
		Type:      ActorSystem,
		Metadata:  map[string]interface{}{"orphaned": true},
	}
	if err := r.appendAudit(entry); err != nil {
		return Process{}, fmt.Errorf("repository: logging orphan mark: %w", err)
	}
	return p, nil
}

// IsOrphaned reports whether p carries the orphaned marker set by MarkOrphaned.
func IsOrphaned(p Process) bool {
	if p.Metadata == nil {
		return false
	}
	v, ok := p.Metadata["orphaned"].(bool)
	return ok && v
}

// History returns every audit entry for id, oldest first. It is a derived
// projection over the audit log; Process never carries its own history.
func (r *ProcessRepository) History(id string) ([]AuditEntry, error) {
	recs, err := r.driver.ReadAll(auditPath, AuditSchema)
	if err != nil {
		return nil, err
	}
	var out []AuditEntry
	for _, rec := range recs {
		entry, err := recordToAudit(rec)
		if err != nil {
			continue
		}
		if entry.ProcessID == id {
			out = append(out, entry)
		}
	}
	return out, nil
}

// AllAudit returns the entire audit log, oldest first, for analysis/anomaly
// components that need the full event stream rather than a single process's.
func (r *ProcessRepository) AllAudit() ([]AuditEntry, error) {
	recs, err := r.driver.ReadAll(auditPath, AuditSchema)
	if err != nil {
		return nil, err
	}
	out := make([]AuditEntry, 0, len(recs))
	for _, rec := range recs {
		entry, err := recordToAudit(rec)
		if err != nil {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func processToRecord(p Process) (Record, error) {
	fv, err := marshalJSON(p.FieldValues)
	if err != nil {
		return nil, err
	}
	tags, err := marshalJSON(p.Tags)
	if err != nil {
		return nil, err
	}
	sla, err := marshalJSON(p.SLA)
	if err != nil {
		return nil, err
	}
	meta, err := marshalJSON(p.Metadata)
	if err != nil {
		return nil, err
	}
	return Record{
		"id":                p.ProcessID, // the domain process_id doubles as the driver's row id
		"process_id":        p.ProcessID,
		"kanban_id":         p.KanbanID,
		"source_form":       p.SourceForm,
		"source_record_idx": p.SourceRecordIdx,
		"current_state":     p.CurrentState,
		"field_values":      fv,
		"created_at":        p.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":        p.UpdatedAt.Format(time.RFC3339Nano),
		"tags":              tags,
		"assigned_to":       p.AssignedTo,
		"sla":               sla,
		"metadata":          meta,
	}, nil
}

func recordToProcess(rec Record) (Process, error) {
	p := Process{
		ProcessID:    stringOf(rec["process_id"]),
		KanbanID:     stringOf(rec["kanban_id"]),
		SourceForm:   stringOf(rec["source_form"]),
		CurrentState: stringOf(rec["current_state"]),
		AssignedTo:   stringOf(rec["assigned_to"]),
	}
	if idx, ok := rec["source_record_idx"].(float64); ok {
		p.SourceRecordIdx = int(idx)
	}
	p.CreatedAt = parseTime(rec["created_at"])
	p.UpdatedAt = parseTime(rec["updated_at"])

	if err := unmarshalField(rec["field_values"], &p.FieldValues); err != nil {
		return Process{}, err
	}
	if err := unmarshalField(rec["tags"], &p.Tags); err != nil {
		return Process{}, err
	}
	var sla *SLA
	if err := unmarshalField(rec["sla"], &sla); err != nil {
		return Process{}, err
	}
	p.SLA = sla
	if err := unmarshalField(rec["metadata"], &p.Metadata); err != nil {
		return Process{}, err
	}
	return p, nil
}

func recordsToProcesses(recs []Record) ([]Process, error) {
	out := make([]Process, 0, len(recs))
	for _, rec := range recs {
		p, err := recordToProcess(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func auditToRecord(e AuditEntry) (Record, error) {
	meta, err := marshalJSON(e.Metadata)
	if err != nil {
		return nil, err
	}
	return Record{
		"id":                         "",
		"timestamp":                  e.Timestamp.Format(time.RFC3339Nano),
		"process_id":                 e.ProcessID,
		"kanban_id":                  e.KanbanID,
		"action":                     string(e.Action),
		"from_state":                 e.FromState,
		"to_state":                   e.ToState,
		"user":                       e.User,
		"type":                       string(e.Type),
		"justification":              e.Justification,
		"duration_in_previous_state": e.DurationInPreviousState,
		"prerequisites_met":          e.PrerequisitesMet,
		"metadata_json":              meta,
	}, nil
}

func recordToAudit(rec Record) (AuditEntry, error) {
	e := AuditEntry{
		ProcessID:     stringOf(rec["process_id"]),
		KanbanID:      stringOf(rec["kanban_id"]),
		Action:        AuditAction(stringOf(rec["action"])),
		FromState:     stringOf(rec["from_state"]),
		ToState:       stringOf(rec["to_state"]),
		User:          stringOf(rec["user"]),
		Type:          ActorType(stringOf(rec["type"])),
		Justification: stringOf(rec["justification"]),
	}
	e.Timestamp = parseTime(rec["timestamp"])
	if d, ok := rec["duration_in_previous_state"].(float64); ok {
		e.DurationInPreviousState = d
	}
	if b, ok := rec["prerequisites_met"].(bool); ok {
		e.PrerequisitesMet = b
	}
	if err := unmarshalField(rec["metadata_json"], &e.Metadata); err != nil {
		return AuditEntry{}, err
	}
	return e, nil
}

func marshalJSON(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("repository: marshaling field: %w", err)
	}
	return string(data), nil
}

func unmarshalField(v interface{}, out interface{}) error {
	if v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		// The flat-file driver hands cells back already JSON-decoded.
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("repository: unmarshaling field: %w", err)
		}
		s = string(data)
	}
	if s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), out); err != nil {
		return fmt.Errorf("repository: unmarshaling field: %w", err)
	}
	return nil
}

func stringOf(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func parseTime(v interface{}) time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
