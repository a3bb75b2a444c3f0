package agents

import (
	"fmt"

	"eve.evalgo.org/workflow/kanban"
	"eve.evalgo.org/workflow/prerequisite"
	"eve.evalgo.org/workflow/repository"
)

// readiness is one candidate transition's prerequisite evaluation.
type readiness struct {
	Ready       bool
	Unsatisfied []prerequisite.Result
}

// RuleAgent suggests transitions by evaluating C4 prerequisites against every
// recommended transition from the current state, preferring the configured
// auto-transition when it is ready. Grounded on
// _examples/original_source/src/workflow/agents/rule_agent.py.
type RuleAgent struct {
	base
	checker *prerequisite.Checker
}

// NewRuleAgent wires a RuleAgent against the process repository, kanban
// registry, and the already-built prerequisite checker (C4).
func NewRuleAgent(repo *repository.ProcessRepository, registry *kanban.Registry, checker *prerequisite.Checker) *RuleAgent {
	return &RuleAgent{base{repo: repo, registry: registry}, checker}
}

func (a *RuleAgent) AnalyzeContext(processID string) (map[string]interface{}, error) {
	p, k, err := a.process(processID)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}, nil
	}

	available := kanban.AvailableFrom(k, p.CurrentState)
	transitionReadiness := make(map[string]readiness, len(available))
	availableStates := make([]string, 0, len(available))

	for _, t := range available {
		availableStates = append(availableStates, t.To)
		results := a.checker.CheckAll(t.Prerequisites, prerequisite.Context{Process: p, Kanban: k})
		transitionReadiness[t.To] = readiness{
			Ready:       prerequisite.AllSatisfied(results),
			Unsatisfied: prerequisite.Unsatisfied(results),
		}
	}

	stateInfo, _ := k.StateByID(p.CurrentState)

	return map[string]interface{}{
		"available_transitions":       availableStates,
		"transition_readiness":        transitionReadiness,
		"auto_transition_available":   stateInfo.AutoTransitionTo != "",
		"auto_transition_to":          stateInfo.AutoTransitionTo,
	}, nil
}

// SuggestTransition follows rule_agent.py's three-rule ladder: a ready
// auto-transition first, then any transition with every prerequisite
// satisfied, then the transition with the fewest unsatisfied prerequisites.
// A configured auto-transition that is not ready ends the ladder early: no
// state is suggested (confidence 0.4) and its unmet prerequisites are listed.
func (a *RuleAgent) SuggestTransition(processID string) (Suggestion, error) {
	ctx, err := a.AnalyzeContext(processID)
	if err != nil {
		return Suggestion{}, err
	}
	if msg, ok := ctx["error"]; ok {
		return errorSuggestion(msg.(string)), nil
	}

	transitionReadiness := ctx["transition_readiness"].(map[string]readiness)
	availableStates := ctx["available_transitions"].([]string)
	autoTransitionTo, _ := ctx["auto_transition_to"].(string)

	if len(transitionReadiness) == 0 {
		return formatSuggestion("", 0.0,
			"No transitions available from current state", []string{"Process may be stuck"}), nil
	}

	if autoTransitionTo != "" {
		if r, ok := transitionReadiness[autoTransitionTo]; ok {
			if r.Ready {
				return formatSuggestion(autoTransitionTo, 0.9, fmt.Sprintf(
					"Auto-transition to '%s' configured and all prerequisites satisfied.", autoTransitionTo), nil), nil
			}
			return formatSuggestion("", 0.4, fmt.Sprintf(
				"Auto-transition to '%s' configured but %d prerequisite(s) not satisfied.",
				autoTransitionTo, len(r.Unsatisfied)), unsatisfiedMessages(r.Unsatisfied)), nil
		}
	}

	// Iterate in the kanban's declared transition order (not map order,
	// which Go randomizes) so the "first ready transition" choice is
	// deterministic, matching the Python original's dict-insertion order.
	for _, state := range availableStates {
		if transitionReadiness[state].Ready {
			return formatSuggestion(state, 0.8, fmt.Sprintf(
				"All prerequisites satisfied for transition to '%s'.", state), nil), nil
		}
	}

	bestState, bestScore := "", -1
	for _, state := range availableStates {
		score := -len(transitionReadiness[state].Unsatisfied)
		if bestState == "" || score > bestScore {
			bestState, bestScore = state, score
		}
	}
	r := transitionReadiness[bestState]
	return formatSuggestion(bestState, 0.5, fmt.Sprintf(
		"Transition to '%s' has %d unsatisfied prerequisite(s). Consider forced transition with justification.",
		bestState, len(r.Unsatisfied)), unsatisfiedMessages(r.Unsatisfied)), nil
}

func unsatisfiedMessages(results []prerequisite.Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Message)
	}
	return out
}

func (a *RuleAgent) ValidateTransition(processID, targetState string) (Validation, error) {
	ctx, err := a.AnalyzeContext(processID)
	if err != nil {
		return Validation{}, err
	}
	if msg, ok := ctx["error"]; ok {
		return formatValidation(false, nil, []string{msg.(string)}, ""), nil
	}

	transitionReadiness := ctx["transition_readiness"].(map[string]readiness)
	r, ok := transitionReadiness[targetState]
	if !ok {
		return formatValidation(false, nil,
			[]string{fmt.Sprintf("Transition to '%s' is not defined in kanban", targetState)}, ""), nil
	}

	var warnings []string
	risk := RiskLow
	if !r.Ready {
		warnings = unsatisfiedMessages(r.Unsatisfied)
		if len(r.Unsatisfied) > 2 {
			risk = RiskHigh
		} else {
			risk = RiskMedium
		}
	}

	return formatValidation(true, warnings, nil, risk), nil
}
