package repository

import "errors"

// ErrRetryable marks an infrastructure failure the caller may retry, per the
// error-handling design's fourth error kind (section 7).
var ErrRetryable = errors.New("repository: retryable infrastructure error")

// ErrNotFound is returned by ReadByID/UpdateByID/DeleteByID when no record
// matches the given id.
var ErrNotFound = errors.New("repository: record not found")

// Driver is the minimal pluggable storage contract consumed by
// ProcessRepository, matching spec section 6.1 exactly. Backends persisting
// only scalars should flatten nested values to JSON strings; ProcessRepository
// performs that flattening so Driver implementations stay structure-agnostic.
type Driver interface {
	CreateStorage(path string, schema Schema) (bool, error)
	ReadAll(path string, schema Schema) ([]Record, error)
	ReadByID(path string, schema Schema, id string) (Record, error)
	Create(path string, schema Schema, record Record) (string, error)
	UpdateByID(path string, schema Schema, id string, record Record) (bool, error)
	DeleteByID(path string, schema Schema, id string) (bool, error)
	Exists(path string) (bool, error)
	HasData(path string) (bool, error)
	MigrateSchema(path string, oldSchema, newSchema Schema) (bool, error)
	BulkCreate(path string, schema Schema, records []Record) ([]string, error)
	Search(path string, schema Schema, field, query string, limit int) ([]string, error)
}
