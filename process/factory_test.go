package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve.evalgo.org/workflow/config"
	"eve.evalgo.org/workflow/kanban"
	"eve.evalgo.org/workflow/repository"
)

func newTestFactory(t *testing.T, orphanPolicy config.OrphanPolicy) (*Factory, *kanban.Registry, *repository.ProcessRepository) {
	t.Helper()
	registry := kanban.NewRegistry(t.TempDir())
	require.NoError(t, registry.Register(kanban.Kanban{
		ID:   "pedidos",
		Name: "Pedidos",
		States: []kanban.State{
			{ID: "novo", Name: "Novo", Type: kanban.StateInitial},
			{ID: "aprovado", Name: "Aprovado", Type: kanban.StateFinal},
		},
		LinkedForms: []string{"pedidos"},
	}, false))

	driver, err := repository.NewFlatFileRepository(t.TempDir())
	require.NoError(t, err)
	repo, err := repository.NewProcessRepository(driver)
	require.NoError(t, err)

	return NewFactory(registry, repo, orphanPolicy), registry, repo
}

func TestOnFormCreatedLinksToKanban(t *testing.T) {
	factory, _, repo := newTestFactory(t, config.OrphanMark)

	id, err := factory.OnFormCreated(FormEvent{
		FormPath:  "pedidos",
		FormData:  map[string]interface{}{"cliente": "acme"},
		RecordIdx: 0,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	p, err := repo.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, "novo", p.CurrentState)
	assert.Equal(t, "acme", p.FieldValues["cliente"])
}

func TestOnFormCreatedReturnsEmptyWhenFormNotLinked(t *testing.T) {
	factory, _, _ := newTestFactory(t, config.OrphanMark)

	id, err := factory.OnFormCreated(FormEvent{FormPath: "unlinked", FormData: map[string]interface{}{}, RecordIdx: 0})
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestFieldMappingAppliesOnlyMappedFields(t *testing.T) {
	registry := kanban.NewRegistry(t.TempDir())
	require.NoError(t, registry.Register(kanban.Kanban{
		ID:           "pedidos",
		Name:         "Pedidos",
		States:       []kanban.State{{ID: "novo", Name: "Novo", Type: kanban.StateInitial}},
		LinkedForms:  []string{"pedidos"},
		FieldMapping: map[string]string{"nome_cliente": "cliente"},
	}, false))
	driver, err := repository.NewFlatFileRepository(t.TempDir())
	require.NoError(t, err)
	repo, err := repository.NewProcessRepository(driver)
	require.NoError(t, err)
	factory := NewFactory(registry, repo, config.OrphanMark)

	id, err := factory.OnFormCreated(FormEvent{
		FormPath:  "pedidos",
		FormData:  map[string]interface{}{"nome_cliente": "acme", "unmapped": "drop me"},
		RecordIdx: 0,
	})
	require.NoError(t, err)

	p, err := repo.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, "acme", p.FieldValues["cliente"])
	_, present := p.FieldValues["unmapped"]
	assert.False(t, present)
}

func TestOnFormUpdatedResyncsExistingProcess(t *testing.T) {
	factory, _, repo := newTestFactory(t, config.OrphanMark)

	id, err := factory.OnFormCreated(FormEvent{FormPath: "pedidos", FormData: map[string]interface{}{"cliente": "acme"}, RecordIdx: 0})
	require.NoError(t, err)

	_, err = factory.OnFormUpdated(FormEvent{FormPath: "pedidos", FormData: map[string]interface{}{"cliente": "updated"}, RecordIdx: 0})
	require.NoError(t, err)

	p, err := repo.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, "updated", p.FieldValues["cliente"])
}

func TestOnFormDeletedMarksOrphanedByDefault(t *testing.T) {
	factory, _, repo := newTestFactory(t, config.OrphanMark)

	id, err := factory.OnFormCreated(FormEvent{FormPath: "pedidos", FormData: map[string]interface{}{}, RecordIdx: 0})
	require.NoError(t, err)

	require.NoError(t, factory.OnFormDeleted("pedidos", 0))

	p, err := repo.GetByID(id)
	require.NoError(t, err)
	assert.Contains(t, p.SourceForm, "[DELETED]")
	assert.True(t, repository.IsOrphaned(p))
}

func TestOnFormDeletedDeletesWhenPolicyIsDelete(t *testing.T) {
	factory, _, repo := newTestFactory(t, config.OrphanDelete)

	id, err := factory.OnFormCreated(FormEvent{FormPath: "pedidos", FormData: map[string]interface{}{}, RecordIdx: 0})
	require.NoError(t, err)

	require.NoError(t, factory.OnFormDeleted("pedidos", 0))

	_, err = repo.GetByID(id)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCleanupOrphanedRemovesOnlyOrphanedProcesses(t *testing.T) {
	factory, _, repo := newTestFactory(t, config.OrphanMark)

	keepID, err := factory.OnFormCreated(FormEvent{FormPath: "pedidos", FormData: map[string]interface{}{}, RecordIdx: 0})
	require.NoError(t, err)
	orphanID, err := factory.OnFormCreated(FormEvent{FormPath: "pedidos", FormData: map[string]interface{}{}, RecordIdx: 1})
	require.NoError(t, err)
	require.NoError(t, factory.OnFormDeleted("pedidos", 1))

	removed, err := factory.CleanupOrphaned("pedidos")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = repo.GetByID(keepID)
	assert.NoError(t, err)
	_, err = repo.GetByID(orphanID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSyncExistingFormsIsIdempotent(t *testing.T) {
	factory, _, _ := newTestFactory(t, config.OrphanMark)
	records := []map[string]interface{}{
		{"cliente": "a"},
		{"cliente": "b"},
	}

	result := factory.SyncExistingForms("pedidos", records, false)
	assert.Equal(t, 2, result.Created)
	assert.Empty(t, result.Errors)

	result = factory.SyncExistingForms("pedidos", records, false)
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 0, result.Created)
}

func TestGenerateProcessIDFormat(t *testing.T) {
	id := GenerateProcessID("pedidos")
	assert.Regexp(t, `^pedidos_\d{8}_\d{6}_[a-z0-9]{8}$`, id)
}
