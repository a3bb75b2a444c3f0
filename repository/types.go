// Package repository implements the process and audit-log persistence layer
// (C3): a generic storage driver contract plus a workflow-specific repository
// built on top of it, following the teacher's delegation pattern of wrapping
// a generic backend with domain-specific queries.
package repository

import "time"

// FieldType enumerates the form-field types the generic schema accepts, per
// spec section 6.1.
type FieldType string

const (
	FieldText         FieldType = "text"
	FieldTextarea     FieldType = "textarea"
	FieldEmail        FieldType = "email"
	FieldTel          FieldType = "tel"
	FieldURL          FieldType = "url"
	FieldSearch       FieldType = "search"
	FieldPassword     FieldType = "password"
	FieldNumber       FieldType = "number"
	FieldCheckbox     FieldType = "checkbox"
	FieldDate         FieldType = "date"
	FieldTime         FieldType = "time"
	FieldDateTimeLoc  FieldType = "datetime-local"
	FieldMonth        FieldType = "month"
	FieldWeek         FieldType = "week"
	FieldSelect       FieldType = "select"
	FieldRadio        FieldType = "radio"
	FieldColor        FieldType = "color"
	FieldRange        FieldType = "range"
	FieldHidden       FieldType = "hidden"
)

// Field describes one column of a Schema.
type Field struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required,omitempty"`
	Decimal  bool      `json:"decimal,omitempty"`
}

// Schema is the minimal structural description a generic storage driver
// needs to create and validate a table/file/collection.
type Schema struct {
	Title  string  `json:"title"`
	Fields []Field `json:"fields"`
}

// Record is a single, flat key/value form record, addressed by Record["id"].
type Record map[string]interface{}

// SLA carries the deadline and per-state timers computed at process creation.
type SLA struct {
	Deadline           time.Time          `json:"deadline"`
	WarnThresholdHours float64            `json:"warn_threshold_hours"`
	StateSLAs          map[string]float64 `json:"state_slas,omitempty"`
}

// Process is the live instance of a kanban, per spec section 3.3. History is
// deliberately absent: it is derived from the audit log, never stored here.
type Process struct {
	ProcessID       string                 `json:"process_id"`
	KanbanID        string                 `json:"kanban_id"`
	SourceForm      string                 `json:"source_form"`
	SourceRecordIdx int                    `json:"source_record_idx"`
	CurrentState    string                 `json:"current_state"`
	FieldValues     map[string]interface{} `json:"field_values"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	Tags            []string               `json:"tags,omitempty"`
	AssignedTo      string                 `json:"assigned_to,omitempty"`
	SLA             *SLA                   `json:"sla,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// ActorType classifies who or what triggered an audit event.
type ActorType string

const (
	ActorManual ActorType = "manual"
	ActorSystem ActorType = "system"
	ActorAgent  ActorType = "agent"
)

// AuditAction enumerates the recognized audit event kinds.
type AuditAction string

const (
	ActionProcessCreated  AuditAction = "process_created"
	ActionStateChanged    AuditAction = "state_changed"
	ActionProcessUpdated  AuditAction = "process_updated"
	ActionProcessDeleted  AuditAction = "process_deleted"
	ActionForcedTransition AuditAction = "forced_transition"
	ActionKanbanModified  AuditAction = "kanban_modified"
)

// AuditEntry is one immutable record in the append-only audit trail (section 3.4).
type AuditEntry struct {
	Timestamp                time.Time              `json:"timestamp"`
	ProcessID                string                 `json:"process_id"`
	KanbanID                 string                 `json:"kanban_id"`
	Action                   AuditAction            `json:"action"`
	FromState                string                 `json:"from_state,omitempty"`
	ToState                  string                 `json:"to_state,omitempty"`
	User                     string                 `json:"user"`
	Type                     ActorType              `json:"type"`
	Justification            string                 `json:"justification,omitempty"`
	DurationInPreviousState  float64                `json:"duration_in_previous_state,omitempty"`
	PrerequisitesMet         bool                   `json:"prerequisites_met"`
	Metadata                 map[string]interface{} `json:"metadata,omitempty"`
}

// Twelve positional column names for the flat-file backend, per spec 6.3.
var AuditColumns = []string{
	"timestamp", "process_id", "kanban_id", "action", "from_state", "to_state",
	"user", "type", "justification", "duration_in_previous_state",
	"prerequisites_met", "metadata_json",
}

const (
	processesPath = "workflow_processes"
	auditPath     = "workflow_audit"
)
