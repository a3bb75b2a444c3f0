package agents

import (
	"sort"

	"eve.evalgo.org/workflow/analysis"
	"eve.evalgo.org/workflow/kanban"
	"eve.evalgo.org/workflow/prerequisite"
	"eve.evalgo.org/workflow/repository"
)

// agentOrder is the fixed iteration and tie-break priority used throughout
// the orchestrator: rule first, then pattern, then heuristic.
var agentOrder = []string{Rule, Pattern, Heuristic}

// Orchestrator coordinates the three agents: routing single-agent requests,
// running all three together, deriving a consensus, and picking the single
// best suggestion. Grounded on
// _examples/original_source/src/workflow/agent_orchestrator.py.
type Orchestrator struct {
	repo     *repository.ProcessRepository
	registry *kanban.Registry
	agentsByName map[string]Agent
	feedback *FeedbackLoop
}

// NewOrchestrator wires the three agents and an optional feedback loop (pass
// nil to run without learned weights).
func NewOrchestrator(repo *repository.ProcessRepository, registry *kanban.Registry, analyzer *analysis.Analyzer, checker *prerequisite.Checker, feedback *FeedbackLoop) *Orchestrator {
	return &Orchestrator{
		repo:     repo,
		registry: registry,
		agentsByName: map[string]Agent{
			Heuristic: NewHeuristicAgent(repo, registry),
			Pattern:   NewPatternAgent(repo, registry, analyzer),
			Rule:      NewRuleAgent(repo, registry, checker),
		},
		feedback: feedback,
	}
}

// Agent returns one of the three wired agents by name, or nil.
func (o *Orchestrator) Agent(name string) Agent {
	return o.agentsByName[name]
}

// AutoSelect picks rule if the current state's available transitions carry
// any prerequisites, pattern if the process already has 3+ recorded
// transitions, otherwise heuristic. Grounded on
// get_best_agent_for_process.
func (o *Orchestrator) AutoSelect(processID string) (string, error) {
	p, err := o.repo.GetByID(processID)
	if err != nil {
		return Heuristic, nil
	}
	k, ok := o.registry.Get(p.KanbanID)
	if !ok {
		return Heuristic, nil
	}

	for _, t := range kanban.AvailableFrom(k, p.CurrentState) {
		if len(t.Prerequisites) > 0 {
			return Rule, nil
		}
	}

	count, err := transitionHistoryCount(o.repo, processID)
	if err != nil {
		return "", err
	}
	if count >= 3 {
		return Pattern, nil
	}
	return Heuristic, nil
}

// AgentResult bundles one agent's context and suggestion, or an error.
type AgentResult struct {
	AgentUsed  string
	Context    map[string]interface{}
	Suggestion Suggestion
	Error      string
}

// AnalyzeWithAgent runs analyze_context + suggest_transition for a single
// named agent, resolving "auto" via AutoSelect first.
func (o *Orchestrator) AnalyzeWithAgent(processID, agentName string) (AgentResult, error) {
	if agentName == "" || agentName == "auto" {
		selected, err := o.AutoSelect(processID)
		if err != nil {
			return AgentResult{}, err
		}
		agentName = selected
	}

	agent := o.Agent(agentName)
	if agent == nil {
		return AgentResult{Error: "agent not found: " + agentName}, nil
	}

	ctx, err := agent.AnalyzeContext(processID)
	if err != nil {
		return AgentResult{}, err
	}
	suggestion, err := agent.SuggestTransition(processID)
	if err != nil {
		return AgentResult{}, err
	}
	return AgentResult{AgentUsed: agentName, Context: ctx, Suggestion: suggestion}, nil
}

// AnalyzeAllResult bundles all three agents' results plus the orchestrator's
// derived consensus and best pick.
type AnalyzeAllResult struct {
	ProcessID      string
	Agents         map[string]AgentResult
	Consensus      Consensus
	BestSuggestion Suggestion
}

// AnalyzeAll runs every agent, optionally reweights confidences by the
// feedback loop's learned per-agent weight, records one feedback suggestion
// per agent that proposed a state, and derives consensus + best pick.
// Grounded on analyze_with_all_agents.
func (o *Orchestrator) AnalyzeAll(processID string) (AnalyzeAllResult, error) {
	results := make(map[string]AgentResult, len(agentOrder))

	for _, name := range agentOrder {
		agent := o.agentsByName[name]
		ctx, err := agent.AnalyzeContext(processID)
		if err != nil {
			results[name] = AgentResult{Error: err.Error()}
			continue
		}
		suggestion, err := agent.SuggestTransition(processID)
		if err != nil {
			results[name] = AgentResult{Error: err.Error()}
			continue
		}

		if o.feedback != nil {
			base := suggestion.Confidence
			weighted := o.feedback.WeightedConfidence(name, base)
			weight := o.feedback.AgentWeight(name)
			suggestion.BaseConfidence = &base
			suggestion.Confidence = weighted
			suggestion.AgentWeight = &weight
		}

		if o.feedback != nil && suggestion.SuggestedState != "" {
			suggestion.SuggestionID = o.feedback.RecordSuggestion(
				processID, name, suggestion.SuggestedState, suggestion.Confidence, suggestion.Justification,
				map[string]interface{}{"context": ctx})
		}

		results[name] = AgentResult{AgentUsed: name, Context: ctx, Suggestion: suggestion}
	}

	consensus := calculateConsensus(results)
	best := selectBestSuggestion(results, consensus)

	return AnalyzeAllResult{ProcessID: processID, Agents: results, Consensus: consensus, BestSuggestion: best}, nil
}

// Consensus is the aggregated voting outcome across all agents' suggestions.
type Consensus struct {
	SuggestedStates map[string]VoteTally
	ConsensusState  string
	AgreementLevel  string // high | medium | low | none
}

// VoteTally is one candidate state's vote count and average confidence.
type VoteTally struct {
	Count         int
	AvgConfidence float64
}

func calculateConsensus(results map[string]AgentResult) Consensus {
	tallies := map[string]*struct {
		count       int
		confidences []float64
	}{}

	for _, name := range agentOrder {
		result, ok := results[name]
		if !ok || result.Error != "" {
			continue
		}
		state := result.Suggestion.SuggestedState
		if state == "" {
			continue
		}
		if tallies[state] == nil {
			tallies[state] = &struct {
				count       int
				confidences []float64
			}{}
		}
		tallies[state].count++
		tallies[state].confidences = append(tallies[state].confidences, result.Suggestion.Confidence)
	}

	suggestedStates := make(map[string]VoteTally, len(tallies))
	states := make([]string, 0, len(tallies))
	for state, t := range tallies {
		sum := 0.0
		for _, c := range t.confidences {
			sum += c
		}
		avg := 0.0
		if len(t.confidences) > 0 {
			avg = sum / float64(len(t.confidences))
		}
		suggestedStates[state] = VoteTally{Count: t.count, AvgConfidence: roundTo(avg, 1000)}
		states = append(states, state)
	}
	sort.Strings(states)

	consensusState, maxCount := "", 0
	for _, state := range states {
		if suggestedStates[state].Count > maxCount {
			maxCount = suggestedStates[state].Count
			consensusState = state
		}
	}

	totalAgents := 0
	for _, name := range agentOrder {
		if result, ok := results[name]; ok && result.Error == "" {
			totalAgents++
		}
	}

	agreementLevel := "none"
	if consensusState != "" && totalAgents > 0 {
		ratio := float64(maxCount) / float64(totalAgents)
		switch {
		case ratio >= 0.8:
			agreementLevel = "high"
		case ratio >= 0.5:
			agreementLevel = "medium"
		default:
			agreementLevel = "low"
		}
	}

	return Consensus{SuggestedStates: suggestedStates, ConsensusState: consensusState, AgreementLevel: agreementLevel}
}

// selectBestSuggestion picks the consensus state's highest-confidence agent
// when agreement is high; otherwise the highest-confidence suggestion across
// agents, breaking ties by agentOrder. Grounded on _select_best_suggestion.
func selectBestSuggestion(results map[string]AgentResult, consensus Consensus) Suggestion {
	if consensus.AgreementLevel == "high" && consensus.ConsensusState != "" {
		bestAgent, bestConfidence := "", 0.0
		for _, name := range agentOrder {
			result, ok := results[name]
			if !ok || result.Error != "" {
				continue
			}
			if result.Suggestion.SuggestedState != consensus.ConsensusState {
				continue
			}
			if result.Suggestion.Confidence > bestConfidence {
				bestConfidence = result.Suggestion.Confidence
				bestAgent = name
			}
		}
		if bestAgent != "" {
			s := results[bestAgent].Suggestion
			s.Agent = bestAgent
			return s
		}
	}

	bestAgent, bestConfidence := "", 0.0
	var best *Suggestion
	for _, name := range agentOrder {
		result, ok := results[name]
		if !ok || result.Error != "" {
			continue
		}
		if result.Suggestion.Confidence > bestConfidence {
			bestConfidence = result.Suggestion.Confidence
			bestAgent = name
			s := result.Suggestion
			best = &s
		}
	}
	if best != nil {
		best.Agent = bestAgent
		return *best
	}

	return Suggestion{Justification: "No agents provided valid suggestions", RiskFactors: []string{}}
}

// ValidateAllResult bundles every agent's validation plus the aggregate.
type ValidateAllResult struct {
	ProcessID    string
	TargetState  string
	Validations  map[string]Validation
	OverallValid bool
	MaxRiskLevel RiskLevel
	AllWarnings  []string
}

var riskRank = map[RiskLevel]int{RiskLow: 1, RiskMedium: 2, RiskHigh: 3}

// ValidateWithAll runs every agent's ValidateTransition and aggregates:
// overall_valid requires every agent to agree, max_risk_level is the highest
// reported, all_warnings is the deduplicated union. Grounded on
// validate_transition_with_all_agents.
func (o *Orchestrator) ValidateWithAll(processID, targetState string) (ValidateAllResult, error) {
	validations := make(map[string]Validation, len(agentOrder))
	overallValid := true
	maxRisk := RiskLow
	warningSet := map[string]struct{}{}

	for _, name := range agentOrder {
		v, err := o.agentsByName[name].ValidateTransition(processID, targetState)
		if err != nil {
			return ValidateAllResult{}, err
		}
		validations[name] = v
		if !v.Valid {
			overallValid = false
		}
		if riskRank[v.RiskLevel] > riskRank[maxRisk] {
			maxRisk = v.RiskLevel
		}
		for _, w := range v.Warnings {
			warningSet[w] = struct{}{}
		}
	}

	allWarnings := make([]string, 0, len(warningSet))
	for w := range warningSet {
		allWarnings = append(allWarnings, w)
	}
	sort.Strings(allWarnings)

	return ValidateAllResult{
		ProcessID: processID, TargetState: targetState, Validations: validations,
		OverallValid: overallValid, MaxRiskLevel: maxRisk, AllWarnings: allWarnings,
	}, nil
}

// RecordTransitionOutcome records feedback for every agent suggestion made
// during a prior AnalyzeAll call, once the actual transition is confirmed.
// Grounded on AgentOrchestrator.record_transition_feedback.
func (o *Orchestrator) RecordTransitionOutcome(analysis AnalyzeAllResult, actualState string, success bool) {
	if o.feedback == nil {
		return
	}
	for _, name := range agentOrder {
		result, ok := analysis.Agents[name]
		if !ok || result.Suggestion.SuggestionID == "" {
			continue
		}
		wasAccepted := result.Suggestion.SuggestedState == actualState
		o.feedback.RecordOutcome(result.Suggestion.SuggestionID, wasAccepted, actualState, success)
	}
}
