package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordOutcomeAdjustsWeightByOutcomeType(t *testing.T) {
	cases := []struct {
		name        string
		wasAccepted bool
		actual      string
		success     bool
		wantDelta   float64
	}{
		{"accepted_successful", true, "aprovado", true, 0.05},
		{"accepted_failed", true, "aprovado", false, -0.10},
		{"rejected_but_matched", false, "aprovado", true, 0.02},
		{"rejected", false, "rejeitado", true, -0.02},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fb := NewFeedbackLoop()
			id := fb.RecordSuggestion("proc-1", Rule, "aprovado", 0.8, "reasoning", nil)
			fb.RecordOutcome(id, tc.wasAccepted, tc.actual, tc.success)
			assert.InDelta(t, 1.0+tc.wantDelta, fb.AgentWeight(Rule), 0.0001)
		})
	}
}

func TestAgentWeightClampsToBounds(t *testing.T) {
	fb := NewFeedbackLoop()
	for i := 0; i < 50; i++ {
		id := fb.RecordSuggestion("proc-1", Rule, "aprovado", 0.8, "", nil)
		fb.RecordOutcome(id, true, "something_else", false)
	}
	assert.GreaterOrEqual(t, fb.AgentWeight(Rule), minAgentWeight)

	fb2 := NewFeedbackLoop()
	for i := 0; i < 50; i++ {
		id := fb2.RecordSuggestion("proc-1", Rule, "aprovado", 0.8, "", nil)
		fb2.RecordOutcome(id, true, "aprovado", true)
	}
	assert.LessOrEqual(t, fb2.AgentWeight(Rule), maxAgentWeight)
}

func TestWeightedConfidenceScalesAndClamps(t *testing.T) {
	fb := NewFeedbackLoop()
	id := fb.RecordSuggestion("proc-1", Rule, "aprovado", 0.8, "", nil)
	fb.RecordOutcome(id, true, "aprovado", true)

	weighted := fb.WeightedConfidence(Rule, 0.9)
	assert.LessOrEqual(t, weighted, 1.0)
	assert.Greater(t, weighted, 0.9)
}

func TestStatisticsComputesRatesOverWindow(t *testing.T) {
	fb := NewFeedbackLoop()
	id1 := fb.RecordSuggestion("proc-1", Heuristic, "aprovado", 0.6, "", nil)
	fb.RecordOutcome(id1, true, "aprovado", true)

	id2 := fb.RecordSuggestion("proc-2", Heuristic, "rejeitado", 0.5, "", nil)
	fb.RecordOutcome(id2, false, "aprovado", true)

	stats := fb.Statistics(Heuristic, 30)
	assert.Equal(t, 2, stats.TotalSuggestions)
	assert.InDelta(t, 0.5, stats.AcceptanceRate, 0.0001)
	assert.InDelta(t, 0.5, stats.Accuracy, 0.0001)
}

func TestStatisticsWithNoHistoryReturnsZeroedStruct(t *testing.T) {
	fb := NewFeedbackLoop()
	stats := fb.Statistics(Rule, 30)
	assert.Equal(t, 0, stats.TotalSuggestions)
	assert.Equal(t, 1.0, stats.CurrentWeight)
}

func TestBestAgentForPicksHighestAccuracyWithinKanban(t *testing.T) {
	fb := NewFeedbackLoop()
	idRule := fb.RecordSuggestion("proc-1", Rule, "aprovado", 0.9, "", nil)
	fb.RecordOutcome(idRule, true, "aprovado", true)

	idHeuristic := fb.RecordSuggestion("proc-1", Heuristic, "rejeitado", 0.5, "", nil)
	fb.RecordOutcome(idHeuristic, false, "aprovado", true)

	lookup := func(processID string) (string, bool) { return "pedidos", true }

	best, accuracy := fb.BestAgentFor("pedidos", 30, lookup)
	assert.Equal(t, Rule, best)
	assert.InDelta(t, 1.0, accuracy, 0.0001)
}

func TestBestAgentForDefaultsWhenNoData(t *testing.T) {
	fb := NewFeedbackLoop()
	lookup := func(processID string) (string, bool) { return "", false }

	best, accuracy := fb.BestAgentFor("pedidos", 30, lookup)
	assert.Equal(t, Heuristic, best)
	assert.Equal(t, 1.0, accuracy)
}

func TestResetWeightsRestoresDefaults(t *testing.T) {
	fb := NewFeedbackLoop()
	id := fb.RecordSuggestion("proc-1", Rule, "aprovado", 0.8, "", nil)
	fb.RecordOutcome(id, true, "aprovado", true)
	require.Greater(t, fb.AgentWeight(Rule), 1.0)

	fb.ResetWeights()
	assert.Equal(t, 1.0, fb.AgentWeight(Rule))
}
