package transition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve.evalgo.org/workflow/kanban"
	"eve.evalgo.org/workflow/prerequisite"
	"eve.evalgo.org/workflow/repository"
)

func newTestEngine(t *testing.T, k kanban.Kanban) (*Engine, *repository.ProcessRepository) {
	t.Helper()
	registry := kanban.NewRegistry(t.TempDir())
	require.NoError(t, registry.Register(k, false))

	driver, err := repository.NewFlatFileRepository(t.TempDir())
	require.NoError(t, err)
	repo, err := repository.NewProcessRepository(driver)
	require.NoError(t, err)

	checker := prerequisite.NewChecker(t.TempDir())
	return NewEngine(registry, repo, checker), repo
}

func samplePedidos() kanban.Kanban {
	return kanban.Kanban{
		ID:   "pedidos",
		Name: "Pedidos",
		States: []kanban.State{
			{ID: "novo", Name: "Novo", Type: kanban.StateInitial},
			{ID: "em_analise", Name: "Em analise", Type: kanban.StateIntermediate},
			{ID: "aprovado", Name: "Aprovado", Type: kanban.StateFinal},
			{ID: "rejeitado", Name: "Rejeitado", Type: kanban.StateFinal},
		},
		RecommendedTransitions: []kanban.Transition{
			{From: "novo", To: "em_analise"},
			{From: "em_analise", To: "aprovado", Prerequisites: []kanban.Prerequisite{
				{Type: "field_check", Field: "valor", Operator: "greater_than", Value: 0.0},
			}},
		},
		BlockedTransitions: []kanban.BlockedTransition{
			{From: "novo", To: "aprovado", Reason: "must pass through analysis"},
		},
		WarnedTransitions: []kanban.WarnedTransition{
			{From: "em_analise", To: "rejeitado", Message: "skipping review", RequireJustification: true},
		},
	}
}

func createTestProcess(t *testing.T, repo *repository.ProcessRepository, state string, fieldValues map[string]interface{}) repository.Process {
	t.Helper()
	p, err := repo.CreateProcess(repository.Process{
		KanbanID:     "pedidos",
		SourceForm:   "pedidos",
		CurrentState: state,
		FieldValues:  fieldValues,
		CreatedAt:    time.Now().UTC().Add(-time.Hour),
	})
	require.NoError(t, err)
	return p
}

func TestExecuteRejectsBlockedTransition(t *testing.T) {
	e, repo := newTestEngine(t, samplePedidos())
	p := createTestProcess(t, repo, "novo", nil)

	_, err := e.Execute(p.ProcessID, "aprovado", repository.ActorManual, "alice", "")
	var blocked *TransitionBlockedError
	assert.ErrorAs(t, err, &blocked)
}

func TestExecutePermittedTransitionUpdatesStateAndLogsAudit(t *testing.T) {
	e, repo := newTestEngine(t, samplePedidos())
	p := createTestProcess(t, repo, "novo", nil)

	result, err := e.Execute(p.ProcessID, "em_analise", repository.ActorManual, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, Permitted, result.Classification)
	assert.Equal(t, "em_analise", result.Process.CurrentState)

	history, err := repo.History(p.ProcessID)
	require.NoError(t, err)
	assert.Equal(t, repository.ActionStateChanged, history[len(history)-1].Action)
}

func TestExecuteWarnedTransitionWithoutJustificationIsRejected(t *testing.T) {
	e, repo := newTestEngine(t, samplePedidos())
	p := createTestProcess(t, repo, "em_analise", nil)

	_, err := e.Execute(p.ProcessID, "rejeitado", repository.ActorManual, "alice", "")
	assert.ErrorIs(t, err, ErrJustificationRequired)
}

func TestExecuteWarnedTransitionWithJustificationSucceeds(t *testing.T) {
	e, repo := newTestEngine(t, samplePedidos())
	p := createTestProcess(t, repo, "em_analise", nil)

	result, err := e.Execute(p.ProcessID, "rejeitado", repository.ActorManual, "alice", "customer withdrew")
	require.NoError(t, err)
	assert.Equal(t, Warned, result.Classification)
	assert.NotEmpty(t, result.Warnings)
}

func TestExecuteSurfacesUnmetPrerequisitesAsWarningsWithoutBlocking(t *testing.T) {
	e, repo := newTestEngine(t, samplePedidos())
	p := createTestProcess(t, repo, "em_analise", map[string]interface{}{"valor": 0.0})

	result, err := e.Execute(p.ProcessID, "aprovado", repository.ActorManual, "alice", "")
	require.NoError(t, err)
	assert.False(t, result.PrerequisitesMet)
	assert.True(t, result.WasAnomaly)
	assert.NotEmpty(t, result.Warnings)
	assert.Equal(t, "aprovado", result.Process.CurrentState)
}

func TestForceExecuteCrossesBlockedTransition(t *testing.T) {
	e, repo := newTestEngine(t, samplePedidos())
	p := createTestProcess(t, repo, "novo", nil)

	result, err := e.ForceExecute(p.ProcessID, "aprovado", "manager", "urgent customer escalation")
	require.NoError(t, err)
	assert.Equal(t, "aprovado", result.Process.CurrentState)

	history, err := repo.History(p.ProcessID)
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, repository.ActionForcedTransition, last.Action)
	assert.Equal(t, true, last.Metadata["forced"])
}

func TestForceExecuteRequiresJustification(t *testing.T) {
	e, repo := newTestEngine(t, samplePedidos())
	p := createTestProcess(t, repo, "novo", nil)

	_, err := e.ForceExecute(p.ProcessID, "aprovado", "manager", "")
	assert.ErrorIs(t, err, ErrJustificationRequired)
}

func TestExecuteRejectsUnknownTargetState(t *testing.T) {
	e, repo := newTestEngine(t, samplePedidos())
	p := createTestProcess(t, repo, "novo", nil)

	_, err := e.Execute(p.ProcessID, "nonexistent", repository.ActorManual, "alice", "")
	assert.ErrorIs(t, err, ErrTargetStateUnknown)
}

func timeoutKanban() kanban.Kanban {
	timeout := 0.0001 // effectively already elapsed
	return kanban.Kanban{
		ID:   "sla",
		Name: "SLA",
		States: []kanban.State{
			{ID: "waiting", Name: "Waiting", Type: kanban.StateInitial, TimeoutHours: &timeout, AutoTransitionTo: "expired"},
			{ID: "expired", Name: "Expired", Type: kanban.StateFinal},
		},
		RecommendedTransitions: []kanban.Transition{
			{From: "waiting", To: "expired"},
		},
	}
}

func TestCheckAutoTransitionFiresOnTimeout(t *testing.T) {
	e, repo := newTestEngine(t, timeoutKanban())
	p, err := repo.CreateProcess(repository.Process{
		KanbanID:     "sla",
		SourceForm:   "sla",
		CurrentState: "waiting",
		CreatedAt:    time.Now().UTC().Add(-time.Hour),
	})
	require.NoError(t, err)

	auto, err := e.CheckAutoTransition(p)
	require.NoError(t, err)
	require.NotNil(t, auto)
	assert.Equal(t, "expired", auto.To)
	assert.Equal(t, "timeout", auto.Reason)
}

func TestCheckAutoTransitionNilWhenNoAutoTransitionConfigured(t *testing.T) {
	e, repo := newTestEngine(t, samplePedidos())
	p := createTestProcess(t, repo, "novo", nil)

	auto, err := e.CheckAutoTransition(p)
	require.NoError(t, err)
	assert.Nil(t, auto)
}

func TestCascadeAppliesTimeoutAndStopsWhenDry(t *testing.T) {
	e, repo := newTestEngine(t, timeoutKanban())
	p, err := repo.CreateProcess(repository.Process{
		KanbanID:     "sla",
		SourceForm:   "sla",
		CurrentState: "waiting",
		CreatedAt:    time.Now().UTC().Add(-time.Hour),
	})
	require.NoError(t, err)

	result, err := e.Cascade(p.ProcessID, 10)
	require.NoError(t, err)
	assert.Equal(t, "no_transition", result.StoppedBy)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, "expired", result.Steps[0].Process.CurrentState)

	history, err := repo.History(p.ProcessID)
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, repository.ActorSystem, last.Type)
	assert.Equal(t, "auto_transition_engine", last.User)
}

func TestCascadeRespectsMaxDepth(t *testing.T) {
	loopKanban := kanban.Kanban{
		ID:   "loop",
		Name: "Loop",
		States: []kanban.State{
			{ID: "a", Name: "A", Type: kanban.StateInitial, AutoTransitionTo: "b"},
			{ID: "b", Name: "B", Type: kanban.StateIntermediate, AutoTransitionTo: "a"},
		},
		RecommendedTransitions: []kanban.Transition{
			{From: "a", To: "b"},
			{From: "b", To: "a"},
		},
	}
	e, repo := newTestEngine(t, loopKanban)
	p, err := repo.CreateProcess(repository.Process{
		KanbanID:     "loop",
		SourceForm:   "loop",
		CurrentState: "a",
		CreatedAt:    time.Now().UTC().Add(-time.Hour),
	})
	require.NoError(t, err)

	result, err := e.Cascade(p.ProcessID, 4)
	require.NoError(t, err)
	assert.Equal(t, "max_depth", result.StoppedBy)
	assert.Len(t, result.Steps, 4)
}

func TestProcessAllSweepsEveryProcessIndependently(t *testing.T) {
	e, repo := newTestEngine(t, timeoutKanban())
	_, err := repo.CreateProcess(repository.Process{
		KanbanID: "sla", SourceForm: "sla", CurrentState: "waiting",
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	})
	require.NoError(t, err)
	_, err = repo.CreateProcess(repository.Process{
		KanbanID: "sla", SourceForm: "sla", CurrentState: "waiting",
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	})
	require.NoError(t, err)

	result, err := e.ProcessAll(nil)
	require.NoError(t, err)
	assert.Len(t, result.Cascaded, 2)
	assert.Empty(t, result.Errors)
}
