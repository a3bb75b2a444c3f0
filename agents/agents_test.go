package agents

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve.evalgo.org/workflow/analysis"
	"eve.evalgo.org/workflow/kanban"
	"eve.evalgo.org/workflow/prerequisite"
	"eve.evalgo.org/workflow/repository"
)

func samplePedidos() kanban.Kanban {
	return kanban.Kanban{
		ID:   "pedidos",
		Name: "Pedidos",
		States: []kanban.State{
			{ID: "novo", Name: "Novo", Type: kanban.StateInitial, AutoTransitionTo: "em_analise"},
			{ID: "em_analise", Name: "Em analise", Type: kanban.StateIntermediate},
			{ID: "aprovado", Name: "Aprovado", Type: kanban.StateFinal},
			{ID: "rejeitado", Name: "Rejeitado", Type: kanban.StateFinal},
		},
		RecommendedTransitions: []kanban.Transition{
			{From: "novo", To: "em_analise"},
			{From: "em_analise", To: "aprovado", Prerequisites: []kanban.Prerequisite{
				{Type: "field_check", Field: "valor", Operator: "greater_than", Value: 0.0},
			}},
			{From: "em_analise", To: "rejeitado"},
			{From: "rejeitado", To: "novo"},
		},
		FieldMapping: map[string]string{"amount": "valor", "notes": "notas"},
	}
}

func newTestFixture(t *testing.T) (*repository.ProcessRepository, *kanban.Registry, *prerequisite.Checker, *analysis.Analyzer) {
	t.Helper()
	registry := kanban.NewRegistry(t.TempDir())
	require.NoError(t, registry.Register(samplePedidos(), false))

	driver, err := repository.NewFlatFileRepository(t.TempDir())
	require.NoError(t, err)
	repo, err := repository.NewProcessRepository(driver)
	require.NoError(t, err)

	checker := prerequisite.NewChecker(t.TempDir())
	analyzer := analysis.NewAnalyzer(repo)

	return repo, registry, checker, analyzer
}

func walkPedido(t *testing.T, repo *repository.ProcessRepository, states []string, fieldValues map[string]interface{}) repository.Process {
	t.Helper()
	p, err := repo.CreateProcess(repository.Process{
		KanbanID:     "pedidos",
		SourceForm:   "pedidos",
		CurrentState: states[0],
		FieldValues:  fieldValues,
		CreatedAt:    time.Now().UTC().Add(-time.Duration(len(states)) * time.Hour),
	})
	require.NoError(t, err)

	when := p.CreatedAt
	for i := 1; i < len(states); i++ {
		when = when.Add(time.Hour)
		_, err := repo.UpdateState(p.ProcessID, states[i], repository.ActorManual, "alice", "", 1.0, true, false, when)
		require.NoError(t, err)
	}
	updated, err := repo.GetByID(p.ProcessID)
	require.NoError(t, err)
	return updated
}

func TestHeuristicAgentSuggestsStayingWhenDataIncomplete(t *testing.T) {
	repo, registry, _, _ := newTestFixture(t)
	p := walkPedido(t, repo, []string{"novo"}, nil)

	agent := NewHeuristicAgent(repo, registry)
	suggestion, err := agent.SuggestTransition(p.ProcessID)
	require.NoError(t, err)
	assert.Empty(t, suggestion.SuggestedState)
	assert.InDelta(t, 0.2, suggestion.Confidence, 0.001)
}

func TestHeuristicAgentSuggestsOnlyAvailableTransition(t *testing.T) {
	repo, registry, _, _ := newTestFixture(t)
	p := walkPedido(t, repo, []string{"novo"}, map[string]interface{}{"valor": 10.0, "notas": "ok"})

	agent := NewHeuristicAgent(repo, registry)
	suggestion, err := agent.SuggestTransition(p.ProcessID)
	require.NoError(t, err)
	assert.Equal(t, "em_analise", suggestion.SuggestedState)
	assert.GreaterOrEqual(t, suggestion.Confidence, 0.6)
}

func TestHeuristicAgentValidateIsWarnNotBlock(t *testing.T) {
	repo, registry, _, _ := newTestFixture(t)
	p := walkPedido(t, repo, []string{"em_analise"}, nil)

	agent := NewHeuristicAgent(repo, registry)
	validation, err := agent.ValidateTransition(p.ProcessID, "aprovado")
	require.NoError(t, err)
	assert.True(t, validation.Valid)
	assert.Equal(t, RiskHigh, validation.RiskLevel)
}

func TestRuleAgentPrefersSatisfiedPrerequisite(t *testing.T) {
	repo, registry, checker, _ := newTestFixture(t)
	p := walkPedido(t, repo, []string{"novo", "em_analise"}, map[string]interface{}{"valor": 50.0, "notas": "ok"})

	agent := NewRuleAgent(repo, registry, checker)
	suggestion, err := agent.SuggestTransition(p.ProcessID)
	require.NoError(t, err)
	assert.Equal(t, "aprovado", suggestion.SuggestedState)
	assert.InDelta(t, 0.8, suggestion.Confidence, 0.001)
}

func TestRuleAgentFallsBackWhenPrerequisiteUnmet(t *testing.T) {
	repo, registry, checker, _ := newTestFixture(t)
	p := walkPedido(t, repo, []string{"novo", "em_analise"}, map[string]interface{}{"valor": 0.0})

	agent := NewRuleAgent(repo, registry, checker)
	suggestion, err := agent.SuggestTransition(p.ProcessID)
	require.NoError(t, err)
	assert.Equal(t, "rejeitado", suggestion.SuggestedState)
	assert.InDelta(t, 0.8, suggestion.Confidence, 0.001)
}

func TestPatternAgentSuggestsFromFrequentPattern(t *testing.T) {
	repo, registry, _, analyzer := newTestFixture(t)
	walkPedido(t, repo, []string{"novo", "em_analise", "aprovado"}, nil)
	walkPedido(t, repo, []string{"novo", "em_analise", "aprovado"}, nil)
	p := walkPedido(t, repo, []string{"novo", "em_analise"}, nil)

	agent := NewPatternAgent(repo, registry, analyzer)
	suggestion, err := agent.SuggestTransition(p.ProcessID)
	require.NoError(t, err)
	assert.Equal(t, "aprovado", suggestion.SuggestedState)
	assert.Greater(t, suggestion.Confidence, 0.0)
}

func TestPatternAgentHasNoOpinionWithoutHistory(t *testing.T) {
	repo, registry, _, analyzer := newTestFixture(t)
	p := walkPedido(t, repo, []string{"novo"}, nil)

	agent := NewPatternAgent(repo, registry, analyzer)
	suggestion, err := agent.SuggestTransition(p.ProcessID)
	require.NoError(t, err)
	assert.Empty(t, suggestion.SuggestedState)
	assert.InDelta(t, 0.3, suggestion.Confidence, 0.001)
}

func TestAutoSelectPrefersRuleWhenPrerequisitesConfigured(t *testing.T) {
	repo, registry, checker, analyzer := newTestFixture(t)
	p := walkPedido(t, repo, []string{"novo", "em_analise"}, nil)

	o := NewOrchestrator(repo, registry, analyzer, checker, nil)
	selected, err := o.AutoSelect(p.ProcessID)
	require.NoError(t, err)
	assert.Equal(t, Rule, selected)
}

func TestAutoSelectPrefersPatternWithEnoughHistory(t *testing.T) {
	repo, registry, checker, analyzer := newTestFixture(t)
	p := walkPedido(t, repo, []string{"novo", "em_analise", "rejeitado", "novo"}, nil)

	o := NewOrchestrator(repo, registry, analyzer, checker, nil)
	selected, err := o.AutoSelect(p.ProcessID)
	require.NoError(t, err)
	assert.Equal(t, Pattern, selected)
}

func TestAnalyzeAllProducesConsensusAndBestSuggestion(t *testing.T) {
	repo, registry, checker, analyzer := newTestFixture(t)
	p := walkPedido(t, repo, []string{"novo", "em_analise"}, map[string]interface{}{"valor": 50.0, "notas": "ok"})

	o := NewOrchestrator(repo, registry, analyzer, checker, nil)
	result, err := o.AnalyzeAll(p.ProcessID)
	require.NoError(t, err)
	require.Len(t, result.Agents, 3)
	assert.NotEmpty(t, result.Consensus.AgreementLevel)
}

func TestValidateWithAllAggregatesMaxRiskAndWarnings(t *testing.T) {
	repo, registry, checker, analyzer := newTestFixture(t)
	p := walkPedido(t, repo, []string{"novo", "em_analise"}, nil)

	o := NewOrchestrator(repo, registry, analyzer, checker, nil)
	result, err := o.ValidateWithAll(p.ProcessID, "aprovado")
	require.NoError(t, err)
	assert.True(t, result.OverallValid, "warn-not-block: every agent should still say valid")
	assert.Equal(t, RiskHigh, result.MaxRiskLevel)
}

func TestOrchestratorAppliesFeedbackWeightAndRecordsSuggestion(t *testing.T) {
	repo, registry, checker, analyzer := newTestFixture(t)
	p := walkPedido(t, repo, []string{"novo", "em_analise"}, map[string]interface{}{"valor": 50.0, "notas": "ok"})

	fb := NewFeedbackLoop()
	o := NewOrchestrator(repo, registry, analyzer, checker, fb)
	result, err := o.AnalyzeAll(p.ProcessID)
	require.NoError(t, err)

	ruleResult := result.Agents[Rule]
	require.NotEmpty(t, ruleResult.Suggestion.SuggestionID)
	require.NotNil(t, ruleResult.Suggestion.BaseConfidence)

	o.RecordTransitionOutcome(result, "aprovado", true)
	stats := fb.Statistics(Rule, 30)
	assert.Equal(t, 1, stats.TotalSuggestions)
	assert.Greater(t, fb.AgentWeight(Rule), 1.0)
}
