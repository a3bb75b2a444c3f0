package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFieldSchema() Schema {
	return Schema{
		Title: "widgets",
		Fields: []Field{
			{Name: "name", Type: FieldText, Required: true},
			{Name: "count", Type: FieldNumber},
		},
	}
}

func TestFlatFileCreateStorageIsIdempotent(t *testing.T) {
	repo, err := NewFlatFileRepository(t.TempDir())
	require.NoError(t, err)

	created, err := repo.CreateStorage("widgets", sampleFieldSchema())
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.CreateStorage("widgets", sampleFieldSchema())
	require.NoError(t, err)
	assert.False(t, created)
}

func TestFlatFileCreateReadRoundTrip(t *testing.T) {
	repo, err := NewFlatFileRepository(t.TempDir())
	require.NoError(t, err)

	id, err := repo.Create("widgets", sampleFieldSchema(), Record{"name": "bolt", "count": 5.0})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := repo.ReadByID("widgets", sampleFieldSchema(), id)
	require.NoError(t, err)
	assert.Equal(t, "bolt", rec["name"])
	assert.Equal(t, 5.0, rec["count"])
}

func TestFlatFileUpdateAndDeleteByID(t *testing.T) {
	repo, err := NewFlatFileRepository(t.TempDir())
	require.NoError(t, err)

	id, err := repo.Create("widgets", sampleFieldSchema(), Record{"name": "bolt", "count": 5.0})
	require.NoError(t, err)

	ok, err := repo.UpdateByID("widgets", sampleFieldSchema(), id, Record{"count": 9.0})
	require.NoError(t, err)
	assert.True(t, ok)

	rec, err := repo.ReadByID("widgets", sampleFieldSchema(), id)
	require.NoError(t, err)
	assert.Equal(t, 9.0, rec["count"])
	assert.Equal(t, "bolt", rec["name"], "partial update must not clobber untouched fields")

	ok, err = repo.DeleteByID("widgets", sampleFieldSchema(), id)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repo.ReadByID("widgets", sampleFieldSchema(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFlatFileSearchRespectsLimit(t *testing.T) {
	repo, err := NewFlatFileRepository(t.TempDir())
	require.NoError(t, err)

	schema := sampleFieldSchema()
	for i := 0; i < 3; i++ {
		_, err := repo.Create("widgets", schema, Record{"name": "bolt", "count": float64(i)})
		require.NoError(t, err)
	}
	_, err = repo.Create("widgets", schema, Record{"name": "nut", "count": 1.0})
	require.NoError(t, err)

	matches, err := repo.Search("widgets", schema, "name", "bolt", 2)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestFlatFileBulkCreate(t *testing.T) {
	repo, err := NewFlatFileRepository(t.TempDir())
	require.NoError(t, err)

	ids, err := repo.BulkCreate("widgets", sampleFieldSchema(), []Record{
		{"name": "a", "count": 1.0},
		{"name": "b", "count": 2.0},
	})
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	all, err := repo.ReadAll("widgets", sampleFieldSchema())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFlatFileHasDataOnMissingFile(t *testing.T) {
	repo, err := NewFlatFileRepository(t.TempDir())
	require.NoError(t, err)

	has, err := repo.HasData("nonexistent")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestFlatFileMigrateSchemaKeepsBackup(t *testing.T) {
	repo, err := NewFlatFileRepository(t.TempDir())
	require.NoError(t, err)

	old := sampleFieldSchema()
	_, err = repo.Create("widgets", old, Record{"name": "bolt", "count": 5.0})
	require.NoError(t, err)

	newSchema := Schema{Title: "widgets", Fields: append(old.Fields, Field{Name: "sku", Type: FieldText})}
	ok, err := repo.MigrateSchema("widgets", old, newSchema)
	require.NoError(t, err)
	assert.True(t, ok)

	all, err := repo.ReadAll("widgets", newSchema)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "bolt", all[0]["name"])

	hasBackup, err := repo.HasData("widgets.bak")
	require.NoError(t, err)
	assert.True(t, hasBackup)
}
