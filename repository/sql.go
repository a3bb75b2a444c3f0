package repository

import (
	"fmt"

	"eve.evalgo.org/workflow/ids"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// processRow and auditRow are the GORM models backing SQLRepository, following
// the teacher's embedded gorm.Model convention (db/postgres.go) except that
// ID is the workflow's own string identifier rather than an auto-increment
// integer, since ProcessRepository addresses everything by id.
type processRow struct {
	ID              string `gorm:"primaryKey;size:27"`
	KanbanID        string `gorm:"index"`
	SourceForm      string `gorm:"index"`
	SourceRecordIdx int
	CurrentState    string `gorm:"index"`
	FieldValues     string `gorm:"type:text"`
	CreatedAt       string
	UpdatedAt       string
	Tags            string `gorm:"type:text"`
	AssignedTo      string
	SLA             string `gorm:"type:text"`
	Metadata        string `gorm:"type:text"`
}

func (processRow) TableName() string { return processesPath }

type auditRow struct {
	ID                      string `gorm:"primaryKey;size:27"`
	Timestamp               string `gorm:"index"`
	ProcessID               string `gorm:"index"`
	KanbanID                string `gorm:"index"`
	Action                  string
	FromState               string
	ToState                 string
	User                    string
	Type                    string
	Justification           string `gorm:"type:text"`
	DurationInPreviousState float64
	PrerequisitesMet        bool
	MetadataJSON            string `gorm:"type:text"`
}

func (auditRow) TableName() string { return auditPath }

// SQLRepository is a Driver implementation over PostgreSQL via GORM, grounded
// on the teacher's connection-pool and AutoMigrate conventions in
// db/postgres.go. It treats schema/path as logical table selectors: Create
// and friends route to processRow or auditRow based on path, since GORM
// models are compile-time typed rather than dynamically schema'd.
type SQLRepository struct {
	db *gorm.DB
}

// NewSQLRepository opens a PostgreSQL connection with the teacher's pool
// settings and migrates both workflow tables.
func NewSQLRepository(dsn string) (*SQLRepository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: opening postgres connection: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("repository: unwrapping sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	if err := db.AutoMigrate(&processRow{}, &auditRow{}); err != nil {
		return nil, fmt.Errorf("repository: auto-migrating workflow tables: %w", err)
	}
	return &SQLRepository{db: db}, nil
}

func (r *SQLRepository) CreateStorage(path string, schema Schema) (bool, error) {
	// AutoMigrate already ran both tables at construction; repeated calls
	// for the same two logical tables are idempotent no-ops.
	return false, nil
}

func (r *SQLRepository) Exists(path string) (bool, error) {
	return path == processesPath || path == auditPath, nil
}

func (r *SQLRepository) HasData(path string) (bool, error) {
	var count int64
	tx := r.tableFor(path)
	if tx == nil {
		return false, fmt.Errorf("repository: unknown path %q", path)
	}
	if err := tx.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *SQLRepository) tableFor(path string) *gorm.DB {
	switch path {
	case processesPath:
		return r.db.Model(&processRow{})
	case auditPath:
		return r.db.Model(&auditRow{})
	default:
		return nil
	}
}

func (r *SQLRepository) ReadAll(path string, schema Schema) ([]Record, error) {
	switch path {
	case processesPath:
		var rows []processRow
		if err := r.db.Find(&rows).Error; err != nil {
			return nil, err
		}
		out := make([]Record, 0, len(rows))
		for _, row := range rows {
			out = append(out, processRowToRecord(row))
		}
		return out, nil
	case auditPath:
		var rows []auditRow
		if err := r.db.Order("timestamp asc").Find(&rows).Error; err != nil {
			return nil, err
		}
		out := make([]Record, 0, len(rows))
		for _, row := range rows {
			out = append(out, auditRowToRecord(row))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("repository: unknown path %q", path)
	}
}

func (r *SQLRepository) ReadByID(path string, schema Schema, id string) (Record, error) {
	switch path {
	case processesPath:
		var row processRow
		if err := r.db.First(&row, "id = ?", id).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, ErrNotFound
			}
			return nil, err
		}
		return processRowToRecord(row), nil
	case auditPath:
		var row auditRow
		if err := r.db.First(&row, "id = ?", id).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, ErrNotFound
			}
			return nil, err
		}
		return auditRowToRecord(row), nil
	default:
		return nil, fmt.Errorf("repository: unknown path %q", path)
	}
}

func (r *SQLRepository) Create(path string, schema Schema, record Record) (string, error) {
	switch path {
	case processesPath:
		row := recordToProcessRow(record)
		if row.ID == "" {
			return "", fmt.Errorf("repository: process record missing id")
		}
		if err := r.db.Create(&row).Error; err != nil {
			return "", err
		}
		return row.ID, nil
	case auditPath:
		row := recordToAuditRow(record)
		if row.ID == "" {
			row.ID = ids.New()
		}
		if err := r.db.Create(&row).Error; err != nil {
			return "", err
		}
		return row.ID, nil
	default:
		return "", fmt.Errorf("repository: unknown path %q", path)
	}
}

func (r *SQLRepository) UpdateByID(path string, schema Schema, id string, record Record) (bool, error) {
	switch path {
	case processesPath:
		updates := recordToProcessRow(record)
		updates.ID = id
		tx := r.db.Model(&processRow{}).Where("id = ?", id).Updates(updates)
		if tx.Error != nil {
			return false, tx.Error
		}
		return tx.RowsAffected > 0, nil
	case auditPath:
		return false, fmt.Errorf("repository: audit log is append-only")
	default:
		return false, fmt.Errorf("repository: unknown path %q", path)
	}
}

func (r *SQLRepository) DeleteByID(path string, schema Schema, id string) (bool, error) {
	switch path {
	case processesPath:
		tx := r.db.Delete(&processRow{}, "id = ?", id)
		if tx.Error != nil {
			return false, tx.Error
		}
		return tx.RowsAffected > 0, nil
	case auditPath:
		return false, fmt.Errorf("repository: audit log is append-only")
	default:
		return false, fmt.Errorf("repository: unknown path %q", path)
	}
}

func (r *SQLRepository) MigrateSchema(path string, oldSchema, newSchema Schema) (bool, error) {
	// Column additions are handled by GORM's AutoMigrate at startup; no
	// per-path migration step is needed since the models are fixed Go types.
	return true, nil
}

func (r *SQLRepository) BulkCreate(path string, schema Schema, records []Record) ([]string, error) {
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		id, err := r.Create(path, schema, rec)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *SQLRepository) Search(path string, schema Schema, field, query string, limit int) ([]string, error) {
	if path != processesPath {
		return nil, fmt.Errorf("repository: search only supported on %s", processesPath)
	}
	var rows []processRow
	tx := r.db.Select("id").Where(fmt.Sprintf("%s = ?", field), query)
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}

func processRowToRecord(row processRow) Record {
	return Record{
		"id":                row.ID,
		"process_id":        row.ID,
		"kanban_id":         row.KanbanID,
		"source_form":       row.SourceForm,
		"source_record_idx": row.SourceRecordIdx,
		"current_state":     row.CurrentState,
		"field_values":      row.FieldValues,
		"created_at":        row.CreatedAt,
		"updated_at":        row.UpdatedAt,
		"tags":              row.Tags,
		"assigned_to":       row.AssignedTo,
		"sla":               row.SLA,
		"metadata":          row.Metadata,
	}
}

func recordToProcessRow(rec Record) processRow {
	return processRow{
		ID:              stringOf(rec["id"]),
		KanbanID:        stringOf(rec["kanban_id"]),
		SourceForm:      stringOf(rec["source_form"]),
		SourceRecordIdx: intOf(rec["source_record_idx"]),
		CurrentState:    stringOf(rec["current_state"]),
		FieldValues:     stringOf(rec["field_values"]),
		CreatedAt:       stringOf(rec["created_at"]),
		UpdatedAt:       stringOf(rec["updated_at"]),
		Tags:            stringOf(rec["tags"]),
		AssignedTo:      stringOf(rec["assigned_to"]),
		SLA:             stringOf(rec["sla"]),
		Metadata:        stringOf(rec["metadata"]),
	}
}

func auditRowToRecord(row auditRow) Record {
	return Record{
		"id":                         row.ID,
		"timestamp":                  row.Timestamp,
		"process_id":                 row.ProcessID,
		"kanban_id":                  row.KanbanID,
		"action":                     row.Action,
		"from_state":                 row.FromState,
		"to_state":                   row.ToState,
		"user":                       row.User,
		"type":                       row.Type,
		"justification":              row.Justification,
		"duration_in_previous_state": row.DurationInPreviousState,
		"prerequisites_met":          row.PrerequisitesMet,
		"metadata_json":              row.MetadataJSON,
	}
}

func recordToAuditRow(rec Record) auditRow {
	return auditRow{
		ID:                      stringOf(rec["id"]),
		Timestamp:               stringOf(rec["timestamp"]),
		ProcessID:               stringOf(rec["process_id"]),
		KanbanID:                stringOf(rec["kanban_id"]),
		Action:                  stringOf(rec["action"]),
		FromState:               stringOf(rec["from_state"]),
		ToState:                 stringOf(rec["to_state"]),
		User:                    stringOf(rec["user"]),
		Type:                    stringOf(rec["type"]),
		Justification:           stringOf(rec["justification"]),
		DurationInPreviousState: floatOf(rec["duration_in_previous_state"]),
		PrerequisitesMet:        boolOf(rec["prerequisites_met"]),
		MetadataJSON:            stringOf(rec["metadata_json"]),
	}
}

func intOf(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func floatOf(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func boolOf(v interface{}) bool {
	b, _ := v.(bool)
	return b
}
