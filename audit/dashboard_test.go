package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve.evalgo.org/workflow/analysis"
	"eve.evalgo.org/workflow/anomaly"
	"eve.evalgo.org/workflow/kanban"
	"eve.evalgo.org/workflow/repository"
)

func samplePedidosKanban() kanban.Kanban {
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
			{From: "em_analise", To: "aprovado"},
			{From: "em_analise", To: "rejeitado"},
		},
	}
}

func newTestDashboard(t *testing.T) *Dashboard {
	t.Helper()
	repo := newTestRepo(t)
	registry := kanban.NewRegistry(t.TempDir())
	require.NoError(t, registry.Register(samplePedidosKanban(), false))
	analyzer := analysis.NewAnalyzer(repo)
	detector := anomaly.NewDetector(repo)
	return NewDashboard(repo, registry, analyzer, detector, nil)
}

func TestKanbanHealthIsPerfectWithNoIssues(t *testing.T) {
	d := newTestDashboard(t)
	walk(t, d.repo, "pedidos", []string{"novo", "em_analise", "aprovado"}, "alice", time.Now().UTC().Add(-3*time.Hour), nil)

	health, err := d.KanbanHealth("pedidos")
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 1, health.Metrics.TotalProcesses)
	assert.Equal(t, 1, health.Metrics.CompletedProcesses)
}

func TestKanbanHealthUnknownKanbanErrors(t *testing.T) {
	d := newTestDashboard(t)
	_, err := d.KanbanHealth("missing")
	assert.Error(t, err)
}

func TestProcessStatsComputesCompletionRateAndDistribution(t *testing.T) {
	d := newTestDashboard(t)
	walk(t, d.repo, "pedidos", []string{"novo", "em_analise", "aprovado"}, "alice", time.Now().UTC().Add(-3*time.Hour), nil)
	walk(t, d.repo, "pedidos", []string{"novo"}, "bob", time.Now().UTC(), nil)

	stats, err := d.ProcessStats("pedidos", 30)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Created)
	assert.Equal(t, 1, stats.Completed)
	assert.InDelta(t, 0.5, stats.CompletionRate, 0.001)
	assert.Equal(t, 1, stats.StatesDistribution["novo"])
}

func TestBottlenecksRequiresMinimumSampleAndSlowdown(t *testing.T) {
	d := newTestDashboard(t)
	start := time.Now().UTC().Add(-240 * time.Hour)

	newProcess := func() repository.Process {
		p, err := d.repo.CreateProcess(repository.Process{
			KanbanID: "pedidos", SourceForm: "pedidos", CurrentState: "novo", CreatedAt: start,
		})
		require.NoError(t, err)
		return p
	}

	// three processes with a very long em_analise stay, one with a short one.
	for i := 0; i < 3; i++ {
		p := newProcess()
		_, err := d.repo.UpdateState(p.ProcessID, "em_analise", repository.ActorManual, "alice", "", 0, true, false, start.Add(time.Hour))
		require.NoError(t, err)
		_, err = d.repo.UpdateState(p.ProcessID, "aprovado", repository.ActorManual, "alice", "", 48, true, false, start.Add(49*time.Hour))
		require.NoError(t, err)
	}
	p := newProcess()
	_, err := d.repo.UpdateState(p.ProcessID, "em_analise", repository.ActorManual, "alice", "", 0, true, false, start.Add(time.Hour))
	require.NoError(t, err)
	_, err = d.repo.UpdateState(p.ProcessID, "aprovado", repository.ActorManual, "alice", "", 1, true, false, start.Add(2*time.Hour))
	require.NoError(t, err)

	bottlenecks, err := d.Bottlenecks("pedidos")
	require.NoError(t, err)
	require.NotEmpty(t, bottlenecks.BottleneckStates)
	assert.Equal(t, "em_analise", bottlenecks.BottleneckStates[0].StateID)
}

func TestSummaryBundlesHealthStatsAndBottlenecks(t *testing.T) {
	d := newTestDashboard(t)
	walk(t, d.repo, "pedidos", []string{"novo", "em_analise", "aprovado"}, "alice", time.Now().UTC().Add(-3*time.Hour), nil)

	summary, err := d.Summary("pedidos")
	require.NoError(t, err)
	assert.Equal(t, "pedidos", summary.KanbanID)
	assert.Equal(t, "healthy", summary.Health.Status)
}

func TestAgentPerformanceWithoutOrchestratorReturnsZeroValue(t *testing.T) {
	d := newTestDashboard(t)
	perf, err := d.AgentPerformance("pedidos", 10)
	require.NoError(t, err)
	assert.Equal(t, 0, perf.SampleSize)
}
