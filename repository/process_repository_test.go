package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProcessRepository(t *testing.T) *ProcessRepository {
	t.Helper()
	driver, err := NewFlatFileRepository(t.TempDir())
	require.NoError(t, err)
	repo, err := NewProcessRepository(driver)
	require.NoError(t, err)
	return repo
}

func TestCreateProcessAlsoLogsCreationAudit(t *testing.T) {
	repo := newTestProcessRepository(t)

	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	p, err := repo.CreateProcess(Process{
		KanbanID:     "pedidos",
		SourceForm:   "pedidos",
		CurrentState: "novo",
		FieldValues:  map[string]interface{}{"customer": "acme"},
		CreatedAt:    now,
	})
	require.NoError(t, err)
	require.NotEmpty(t, p.ProcessID)

	fetched, err := repo.GetByID(p.ProcessID)
	require.NoError(t, err)
	assert.Equal(t, "novo", fetched.CurrentState)
	assert.Equal(t, "acme", fetched.FieldValues["customer"])

	history, err := repo.History(p.ProcessID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, ActionProcessCreated, history[0].Action)
	assert.Equal(t, "novo", history[0].ToState)
}

func TestUpdateStateAppendsStateChangedAudit(t *testing.T) {
	repo := newTestProcessRepository(t)

	created := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	p, err := repo.CreateProcess(Process{
		KanbanID:     "pedidos",
		CurrentState: "novo",
		CreatedAt:    created,
	})
	require.NoError(t, err)

	moved := created.Add(2 * time.Hour)
	updated, err := repo.UpdateState(p.ProcessID, "em_analise", ActorManual, "alice", "", 2.0, true, false, moved)
	require.NoError(t, err)
	assert.Equal(t, "em_analise", updated.CurrentState)

	history, err := repo.History(p.ProcessID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ActionStateChanged, history[1].Action)
	assert.Equal(t, "novo", history[1].FromState)
	assert.Equal(t, "em_analise", history[1].ToState)
	assert.Equal(t, "alice", history[1].User)
}

func TestForcedTransitionIsDistinguishedInHistory(t *testing.T) {
	repo := newTestProcessRepository(t)

	created := time.Now()
	p, err := repo.CreateProcess(Process{KanbanID: "pedidos", CurrentState: "novo", CreatedAt: created})
	require.NoError(t, err)

	_, err = repo.UpdateState(p.ProcessID, "aprovado", ActorManual, "bob", "manager override", 0, false, true, created)
	require.NoError(t, err)

	history, err := repo.History(p.ProcessID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ActionForcedTransition, history[1].Action)
	assert.Equal(t, "manager override", history[1].Justification)
	assert.False(t, history[1].PrerequisitesMet)
}

func TestByStateAndByKanbanFilter(t *testing.T) {
	repo := newTestProcessRepository(t)
	now := time.Now()

	_, err := repo.CreateProcess(Process{KanbanID: "pedidos", CurrentState: "novo", CreatedAt: now})
	require.NoError(t, err)
	_, err = repo.CreateProcess(Process{KanbanID: "pedidos", CurrentState: "aprovado", CreatedAt: now})
	require.NoError(t, err)
	_, err = repo.CreateProcess(Process{KanbanID: "outro", CurrentState: "novo", CreatedAt: now})
	require.NoError(t, err)

	byKanban, err := repo.ByKanban("pedidos")
	require.NoError(t, err)
	assert.Len(t, byKanban, 2)

	byState, err := repo.ByState("pedidos", "novo")
	require.NoError(t, err)
	assert.Len(t, byState, 1)
}

func TestUpdateProcessMergesFieldValuesAndLogs(t *testing.T) {
	repo := newTestProcessRepository(t)
	now := time.Now()

	p, err := repo.CreateProcess(Process{
		KanbanID:     "pedidos",
		CurrentState: "novo",
		FieldValues:  map[string]interface{}{"customer": "acme"},
		CreatedAt:    now,
	})
	require.NoError(t, err)

	updated, err := repo.UpdateProcess(p.ProcessID, map[string]interface{}{"priority": "high"}, "alice", ActorManual, now)
	require.NoError(t, err)
	assert.Equal(t, "acme", updated.FieldValues["customer"])
	assert.Equal(t, "high", updated.FieldValues["priority"])

	history, err := repo.History(p.ProcessID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Equal(t, ActionProcessUpdated, history[1].Action)
}

func TestDeleteProcessRemovesLiveRecordButKeepsAuditTrail(t *testing.T) {
	repo := newTestProcessRepository(t)
	now := time.Now()

	p, err := repo.CreateProcess(Process{KanbanID: "pedidos", CurrentState: "novo", CreatedAt: now})
	require.NoError(t, err)

	err = repo.DeleteProcess(p.ProcessID, "alice", ActorManual, now)
	require.NoError(t, err)

	_, err = repo.GetByID(p.ProcessID)
	assert.ErrorIs(t, err, ErrNotFound)

	history, err := repo.History(p.ProcessID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ActionProcessDeleted, history[1].Action)
}
