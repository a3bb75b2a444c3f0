package repository

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"eve.evalgo.org/workflow/ids"
)

// FlatFileRepository is the schema-per-row, semicolon-delimited Driver
// implementation operators can diff with ordinary text tools (design note,
// section 9). Each path becomes one <dir>/<path>.csv file; nested values are
// JSON-encoded into a single column since the format only carries scalars.
//
// A single mutex guards every file: the concurrency model's first-cut
// primitive is one process-wide lock per backend (section 5), refined to
// per-file locking only if contention is observed.
type FlatFileRepository struct {
	mu  sync.Mutex
	dir string
}

// NewFlatFileRepository roots a FlatFileRepository at dir, creating it if absent.
func NewFlatFileRepository(dir string) (*FlatFileRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("repository: creating flat-file dir: %w", err)
	}
	return &FlatFileRepository{dir: dir}, nil
}

func (r *FlatFileRepository) filePath(path string) string {
	return filepath.Join(r.dir, path+".csv")
}

func (r *FlatFileRepository) header(schema Schema) []string {
	cols := make([]string, 0, len(schema.Fields)+1)
	cols = append(cols, "id")
	for _, f := range schema.Fields {
		cols = append(cols, f.Name)
	}
	return cols
}

func (r *FlatFileRepository) CreateStorage(path string, schema Schema) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fp := r.filePath(path)
	if _, err := os.Stat(fp); err == nil {
		return false, nil
	}
	f, err := os.Create(fp)
	if err != nil {
		return false, fmt.Errorf("repository: creating storage file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = ';'
	if err := w.Write(r.header(schema)); err != nil {
		return false, fmt.Errorf("repository: writing header: %w", err)
	}
	w.Flush()
	return true, w.Error()
}

func (r *FlatFileRepository) Exists(path string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := os.Stat(r.filePath(path))
	return err == nil, nil
}

func (r *FlatFileRepository) HasData(path string) (bool, error) {
	rows, err := r.readRows(path)
	if err != nil {
		return false, nil // treat a missing file as empty, per section 4.2's read semantics
	}
	return len(rows) > 0, nil
}

// readRowsLocked returns the data rows (header excluded) for path, or an empty
// slice if the file does not exist yet. Caller must hold r.mu.
func (r *FlatFileRepository) readRowsLocked(path string) ([][]string, []string, error) {
	fp := r.filePath(path)
	f, err := os.Open(fp)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	all, err := reader.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return all[1:], all[0], nil
}

func (r *FlatFileRepository) readRows(path string) ([][]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows, _, err := r.readRowsLocked(path)
	return rows, err
}

func rowToRecord(header, row []string) Record {
	rec := make(Record, len(header))
	for i, col := range header {
		if i >= len(row) {
			rec[col] = ""
			continue
		}
		rec[col] = decodeCell(row[i])
	}
	return rec
}

// decodeCell attempts a JSON decode first (covers numbers, booleans, nested
// structures that were encoded on write) and falls back to the raw string.
func decodeCell(cell string) interface{} {
	if cell == "" {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal([]byte(cell), &v); err == nil {
		return v
	}
	return cell
}

func encodeCell(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func (r *FlatFileRepository) ReadAll(path string, schema Schema) ([]Record, error) {
	rows, header, err := func() ([][]string, []string, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.readRowsLocked(path)
	}()
	if err != nil {
		return nil, fmt.Errorf("repository: reading %s: %w", path, err)
	}
	if header == nil {
		header = r.header(schema)
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToRecord(header, row))
	}
	return out, nil
}

func (r *FlatFileRepository) ReadByID(path string, schema Schema, id string) (Record, error) {
	all, err := r.ReadAll(path, schema)
	if err != nil {
		return nil, err
	}
	for _, rec := range all {
		if fmt.Sprint(rec["id"]) == id {
			return rec, nil
		}
	}
	return nil, ErrNotFound
}

func (r *FlatFileRepository) Create(path string, schema Schema, record Record) (string, error) {
	id, ok := record["id"].(string)
	if !ok || id == "" {
		id = ids.New()
		record = cloneRecord(record)
		record["id"] = id
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(r.filePath(path)); os.IsNotExist(err) {
		r.mu.Unlock()
		if _, err := r.CreateStorage(path, schema); err != nil {
			r.mu.Lock()
			return "", err
		}
		r.mu.Lock()
	}

	f, err := os.OpenFile(r.filePath(path), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("repository: opening storage for append: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = ';'
	if err := w.Write(recordRow(r.header(schema), record)); err != nil {
		return "", fmt.Errorf("repository: writing record: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return id, nil
}

func recordRow(header []string, record Record) []string {
	row := make([]string, len(header))
	for i, col := range header {
		row[i] = encodeCell(record[col])
	}
	return row
}

func cloneRecord(record Record) Record {
	out := make(Record, len(record)+1)
	for k, v := range record {
		out[k] = v
	}
	return out
}

func (r *FlatFileRepository) UpdateByID(path string, schema Schema, id string, record Record) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, header, err := r.readRowsLocked(path)
	if err != nil {
		return false, fmt.Errorf("repository: reading %s: %w", path, err)
	}
	if header == nil {
		header = r.header(schema)
	}

	found := false
	for i, row := range rows {
		rec := rowToRecord(header, row)
		if fmt.Sprint(rec["id"]) == id {
			merged := cloneRecord(rec)
			for k, v := range record {
				merged[k] = v
			}
			merged["id"] = id
			rows[i] = recordRow(header, merged)
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}
	return true, r.writeAllLocked(path, header, rows)
}

func (r *FlatFileRepository) DeleteByID(path string, schema Schema, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, header, err := r.readRowsLocked(path)
	if err != nil {
		return false, fmt.Errorf("repository: reading %s: %w", path, err)
	}
	if header == nil {
		header = r.header(schema)
	}

	out := make([][]string, 0, len(rows))
	found := false
	for _, row := range rows {
		rec := rowToRecord(header, row)
		if fmt.Sprint(rec["id"]) == id {
			found = true
			continue
		}
		out = append(out, row)
	}
	if !found {
		return false, nil
	}
	return true, r.writeAllLocked(path, header, out)
}

// writeAllLocked rewrites path's entire contents; caller must hold r.mu.
func (r *FlatFileRepository) writeAllLocked(path string, header []string, rows [][]string) error {
	f, err := os.Create(r.filePath(path))
	if err != nil {
		return fmt.Errorf("repository: rewriting storage: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = ';'
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (r *FlatFileRepository) MigrateSchema(path string, oldSchema, newSchema Schema) (bool, error) {
	r.mu.Lock()
	rows, header, err := r.readRowsLocked(path)
	r.mu.Unlock()
	if err != nil {
		return false, fmt.Errorf("repository: reading %s for migration: %w", path, err)
	}
	if header == nil {
		header = r.header(oldSchema)
	}

	backupPath := path + ".bak"
	r.mu.Lock()
	berr := r.writeAllLocked(backupPath, header, rows)
	r.mu.Unlock()
	if berr != nil {
		return false, fmt.Errorf("repository: writing migration backup: %w", berr)
	}

	newHeader := r.header(newSchema)
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, rowToRecord(header, row))
	}
	newRows := make([][]string, 0, len(records))
	for _, rec := range records {
		newRows = append(newRows, recordRow(newHeader, rec))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return true, r.writeAllLocked(path, newHeader, newRows)
}

func (r *FlatFileRepository) BulkCreate(path string, schema Schema, records []Record) ([]string, error) {
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

func (r *FlatFileRepository) Search(path string, schema Schema, field, query string, limit int) ([]string, error) {
	all, err := r.ReadAll(path, schema)
	if err != nil {
		return nil, err
	}
	var matches []string
	for _, rec := range all {
		if fmt.Sprint(rec[field]) == query {
			matches = append(matches, fmt.Sprint(rec["id"]))
			if limit > 0 && len(matches) >= limit {
				break
			}
		}
	}
	return matches, nil
}
