package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve.evalgo.org/workflow/repository"
)

func newTestRepo(t *testing.T) *repository.ProcessRepository {
	t.Helper()
	driver, err := repository.NewFlatFileRepository(t.TempDir())
	require.NoError(t, err)
	repo, err := repository.NewProcessRepository(driver)
	require.NoError(t, err)
	return repo
}

func walk(t *testing.T, repo *repository.ProcessRepository, kanbanID string, states []string, start time.Time, stepHours float64) repository.Process {
	t.Helper()
	p, err := repo.CreateProcess(repository.Process{
		KanbanID:     kanbanID,
		SourceForm:   kanbanID,
		CurrentState: states[0],
		CreatedAt:    start,
	})
	require.NoError(t, err)

	when := start
	for i := 1; i < len(states); i++ {
		when = when.Add(time.Duration(stepHours * float64(time.Hour)))
		_, err := repo.UpdateState(p.ProcessID, states[i], repository.ActorManual, "alice", "", stepHours, true, false, when)
		require.NoError(t, err)
	}
	updated, err := repo.GetByID(p.ProcessID)
	require.NoError(t, err)
	return updated
}

func TestDetectStuckFlagsProcessIdleBeyondThreshold(t *testing.T) {
	repo := newTestRepo(t)
	old := time.Now().UTC().Add(-72 * time.Hour)
	walk(t, repo, "pedidos", []string{"novo"}, old, 0)

	d := NewDetector(repo)
	stuck, err := d.DetectStuck("pedidos", 48)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, "novo", stuck[0].CurrentState)
	assert.GreaterOrEqual(t, stuck[0].HoursStuck, 72.0)
	assert.LessOrEqual(t, stuck[0].AnomalyScore, 1.0)
}

func TestDetectStuckIgnoresRecentProcesses(t *testing.T) {
	repo := newTestRepo(t)
	walk(t, repo, "pedidos", []string{"novo"}, time.Now().UTC(), 0)

	d := NewDetector(repo)
	stuck, err := d.DetectStuck("pedidos", 48)
	require.NoError(t, err)
	assert.Empty(t, stuck)
}

func TestDetectDurationOutliersRequiresMinimumSamples(t *testing.T) {
	repo := newTestRepo(t)
	start := time.Now().UTC().Add(-10 * time.Hour)
	walk(t, repo, "pedidos", []string{"novo", "aprovado"}, start, 1)
	walk(t, repo, "pedidos", []string{"novo", "aprovado"}, start, 1)

	d := NewDetector(repo)
	outliers, err := d.DetectDurationOutliers("pedidos", 2.0)
	require.NoError(t, err)
	assert.Empty(t, outliers, "fewer than 3 samples must yield no outliers")
}

func TestDetectDurationOutliersFlagsTooLong(t *testing.T) {
	repo := newTestRepo(t)
	base := time.Now().UTC().Add(-500 * time.Hour)
	walk(t, repo, "pedidos", []string{"novo", "aprovado"}, base, 1)
	walk(t, repo, "pedidos", []string{"novo", "aprovado"}, base, 1)
	walk(t, repo, "pedidos", []string{"novo", "aprovado"}, base, 1)
	// one process runs far longer than the rest
	long, err := repo.CreateProcess(repository.Process{
		KanbanID: "pedidos", SourceForm: "pedidos", CurrentState: "novo",
		CreatedAt: base.Add(-400 * time.Hour),
	})
	require.NoError(t, err)
	_, err = repo.UpdateState(long.ProcessID, "aprovado", repository.ActorManual, "alice", "", 400, true, false, time.Now().UTC())
	require.NoError(t, err)

	d := NewDetector(repo)
	outliers, err := d.DetectDurationOutliers("pedidos", 1.0)
	require.NoError(t, err)
	require.NotEmpty(t, outliers)
	assert.Equal(t, "too_long", outliers[0].AnomalyType)
}

func TestDetectLoopsFindsRevisitedState(t *testing.T) {
	repo := newTestRepo(t)
	start := time.Now().UTC().Add(-10 * time.Hour)
	walk(t, repo, "pedidos", []string{"novo", "em_analise", "novo", "em_analise", "aprovado"}, start, 1)

	d := NewDetector(repo)
	loops, err := d.DetectLoops("pedidos", 3)
	require.NoError(t, err)
	require.Len(t, loops, 1)
	assert.NotEmpty(t, loops[0].Loops)
}

func TestDetectUnusualTransitionsFlagsRareEdges(t *testing.T) {
	repo := newTestRepo(t)
	start := time.Now().UTC().Add(-10 * time.Hour)
	for i := 0; i < 19; i++ {
		walk(t, repo, "pedidos", []string{"novo", "aprovado"}, start, 1)
	}
	walk(t, repo, "pedidos", []string{"novo", "rejeitado"}, start, 1)

	d := NewDetector(repo)
	unusual, err := d.DetectUnusualTransitions("pedidos", 0.1)
	require.NoError(t, err)
	require.Len(t, unusual, 1)
	assert.Equal(t, "rejeitado", unusual[0].UnusualTransitions[0].ToState)
}

func TestGenerateReportComposesAllFourDetectors(t *testing.T) {
	repo := newTestRepo(t)
	walk(t, repo, "pedidos", []string{"novo", "aprovado"}, time.Now().UTC().Add(-5*time.Hour), 1)

	d := NewDetector(repo)
	report, err := d.GenerateReport("pedidos")
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalProcesses)
}
