package audit

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

func walk(t *testing.T, repo *repository.ProcessRepository, kanbanID string, states []string, user string, start time.Time, forced []bool) repository.Process {
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
		when = when.Add(time.Hour)
		isForced := i-1 < len(forced) && forced[i-1]
		justification := ""
		if isForced {
			justification = "manager override"
		}
		_, err := repo.UpdateState(p.ProcessID, states[i], repository.ActorManual, user, justification, 1.0, !isForced, isForced, when)
		require.NoError(t, err)
	}
	updated, err := repo.GetByID(p.ProcessID)
	require.NoError(t, err)
	return updated
}

func TestProcessTrailReturnsFullHistoryOldestFirst(t *testing.T) {
	repo := newTestRepo(t)
	p := walk(t, repo, "pedidos", []string{"novo", "em_analise", "aprovado"}, "alice", time.Now().UTC().Add(-3*time.Hour), nil)

	trail := NewTrail(repo)
	entries, err := trail.ProcessTrail(p.ProcessID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, repository.ActionProcessCreated, entries[0].Action)
	assert.Equal(t, repository.ActionStateChanged, entries[2].Action)
}

func TestKanbanTrailFiltersByKanban(t *testing.T) {
	repo := newTestRepo(t)
	walk(t, repo, "pedidos", []string{"novo", "em_analise"}, "alice", time.Now().UTC().Add(-time.Hour), nil)
	walk(t, repo, "outro", []string{"novo"}, "alice", time.Now().UTC(), nil)

	trail := NewTrail(repo)
	entries, err := trail.KanbanTrail("pedidos")
	require.NoError(t, err)
	for _, e := range entries {
		assert.Equal(t, "pedidos", e.KanbanID)
	}
}

func TestUserActivityFiltersByWindow(t *testing.T) {
	repo := newTestRepo(t)
	start := time.Now().UTC().Add(-48 * time.Hour)
	walk(t, repo, "pedidos", []string{"novo", "em_analise"}, "alice", start, nil)

	trail := NewTrail(repo)
	entries, err := trail.UserActivity("alice", time.Now().UTC().Add(-72*time.Hour), time.Now().UTC())
	require.NoError(t, err)
	assert.NotEmpty(t, entries)

	narrow, err := trail.UserActivity("alice", time.Now().UTC().Add(-time.Minute), time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, narrow)
}

func TestRecentActivityRespectsLimit(t *testing.T) {
	repo := newTestRepo(t)
	walk(t, repo, "pedidos", []string{"novo", "em_analise", "aprovado"}, "alice", time.Now().UTC().Add(-3*time.Hour), nil)

	trail := NewTrail(repo)
	entries, err := trail.RecentActivity(2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestForcedTransitionsOnlyReturnsForced(t *testing.T) {
	repo := newTestRepo(t)
	walk(t, repo, "pedidos", []string{"novo", "em_analise", "aprovado"}, "bob", time.Now().UTC().Add(-3*time.Hour), []bool{false, true})

	trail := NewTrail(repo)
	forced, err := trail.ForcedTransitions(30)
	require.NoError(t, err)
	require.Len(t, forced, 1)
	assert.Equal(t, "em_analise", forced[0].FromState)
	assert.Equal(t, "aprovado", forced[0].ToState)
}

func TestActivityStatisticsCountsByTypeAndUser(t *testing.T) {
	repo := newTestRepo(t)
	walk(t, repo, "pedidos", []string{"novo", "em_analise"}, "alice", time.Now().UTC().Add(-2*time.Hour), nil)
	walk(t, repo, "pedidos", []string{"novo"}, "bob", time.Now().UTC(), nil)

	trail := NewTrail(repo)
	stats, err := trail.ActivityStatistics(30)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalEvents) // 2 creations + 1 transition
	assert.Equal(t, 2, stats.EventsByType[repository.ActionProcessCreated])
	assert.Equal(t, 1, stats.EventsByType[repository.ActionStateChanged])
}

func TestComplianceReportPenalizesForcedRatio(t *testing.T) {
	repo := newTestRepo(t)
	walk(t, repo, "pedidos", []string{"novo", "em_analise", "aprovado"}, "bob", time.Now().UTC().Add(-3*time.Hour), []bool{false, true})

	trail := NewTrail(repo)
	report, err := trail.ComplianceReport("pedidos", 30)
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalProcesses)
	assert.Equal(t, 2, report.TotalTransitions)
	assert.InDelta(t, 0.0, report.ComplianceScore, 0.001) // 1 forced of 2 -> ratio 0.5 -> score max(0, 1-1.0)
}

func TestComplianceReportFlagsUnusualActivityAboveThreshold(t *testing.T) {
	repo := newTestRepo(t)
	start := time.Now().UTC().Add(-10 * time.Hour)
	walk(t, repo, "pedidos", []string{"novo", "a", "b", "c", "d", "e", "f"}, "carol",
		start, []bool{true, true, true, true, true, true})

	trail := NewTrail(repo)
	report, err := trail.ComplianceReport("pedidos", 30)
	require.NoError(t, err)
	require.Len(t, report.UnusualActivity, 1)
	assert.Equal(t, "carol", report.UnusualActivity[0].User)
	assert.Equal(t, "high", report.UnusualActivity[0].Severity)
}
