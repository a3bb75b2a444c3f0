package agents

import (
	"eve.evalgo.org/workflow/kanban"
	"eve.evalgo.org/workflow/repository"
)

// HeuristicAgent suggests transitions from simple, always-available signals:
// field completeness, time spent in the current state, and how many
// recommended transitions are on offer. Grounded on
// _examples/original_source/src/workflow/agents/generic_agent.py (there
// named GenericAgent).
type HeuristicAgent struct {
	base
}

// NewHeuristicAgent wires a HeuristicAgent against the process repository and
// kanban registry.
func NewHeuristicAgent(repo *repository.ProcessRepository, registry *kanban.Registry) *HeuristicAgent {
	return &HeuristicAgent{base{repo: repo, registry: registry}}
}

func (a *HeuristicAgent) AnalyzeContext(processID string) (map[string]interface{}, error) {
	p, k, err := a.process(processID)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}, nil
	}

	completeness := fieldCompleteness(p, k)
	duration, err := currentStateDuration(a.repo, p)
	if err != nil {
		return nil, err
	}
	count, err := transitionHistoryCount(a.repo, processID)
	if err != nil {
		return nil, err
	}
	available := kanban.AvailableFrom(k, p.CurrentState)
	stateInfo, _ := k.StateByID(p.CurrentState)

	availableStates := make([]string, 0, len(available))
	for _, t := range available {
		availableStates = append(availableStates, t.To)
	}

	return map[string]interface{}{
		"field_completeness":    completeness,
		"time_in_current_state": duration,
		"transition_count":      count,
		"available_transitions": availableStates,
		"state_info":            stateInfo,
	}, nil
}

// SuggestTransition applies the five-rule ladder from generic_agent.py:
// incomplete data wins first (suggest staying), then no-options, then a
// single option, then a configured auto-transition among several options,
// then falling back to the first option.
func (a *HeuristicAgent) SuggestTransition(processID string) (Suggestion, error) {
	ctx, err := a.AnalyzeContext(processID)
	if err != nil {
		return Suggestion{}, err
	}
	if msg, ok := ctx["error"]; ok {
		return errorSuggestion(msg.(string)), nil
	}

	completeness := ctx["field_completeness"].(float64)
	duration := ctx["time_in_current_state"].(float64)
	available := ctx["available_transitions"].([]string)
	stateInfo, _ := ctx["state_info"].(kanban.State)

	if completeness < 0.5 {
		return formatSuggestion("", 0.2, "Process data is incomplete. Consider staying in current state until more fields are filled.", []string{"Low field completeness"}), nil
	}

	if len(available) == 0 {
		return formatSuggestion("", 0.0, "No transitions available from current state.", []string{"Process may be stuck"}), nil
	}

	if len(available) == 1 {
		confidence := 0.6
		if completeness > 0.8 {
			confidence += 0.2
		}
		if duration > 1.0 {
			confidence += 0.1
		}
		return formatSuggestion(available[0], confidence,
			"Only one transition path available from current state.", nil), nil
	}

	if stateInfo.AutoTransitionTo != "" && contains(available, stateInfo.AutoTransitionTo) {
		confidence := 0.7
		if completeness > 0.9 {
			confidence = 0.85
		}
		return formatSuggestion(stateInfo.AutoTransitionTo, confidence,
			"Configured auto-transition target is among the available transitions.", nil), nil
	}

	return formatSuggestion(available[0], 0.5,
		"Multiple transitions available with no clear auto-transition preference; defaulting to the first.", nil), nil
}

// ValidateTransition is valid unless the transition is explicitly blocked
// (warn, not block); otherwise it only raises the risk level and adds warnings.
// Grounded on generic_agent.py's "NEW PHILOSOPHY" comment: the only thing
// that can make a transition invalid is it being explicitly blocked.
func (a *HeuristicAgent) ValidateTransition(processID, targetState string) (Validation, error) {
	p, k, err := a.process(processID)
	if err != nil {
		return formatValidation(false, nil, []string{err.Error()}, ""), nil
	}

	if kanban.IsBlocked(k, p.CurrentState, targetState) {
		reason, _ := kanban.BlockedReason(k, p.CurrentState, targetState)
		return formatValidation(false, nil, []string{reason}, RiskHigh), nil
	}

	completeness := fieldCompleteness(p, k)
	duration, err := currentStateDuration(a.repo, p)
	if err != nil {
		return Validation{}, err
	}

	var warnings []string
	risk := RiskLow
	if completeness < 0.5 {
		risk = RiskHigh
	} else if completeness < 0.8 {
		risk = RiskMedium
	}
	if duration < 0.1 {
		warnings = append(warnings, "Very quick transition — confirm this is intentional.")
	}

	return formatValidation(true, warnings, nil, risk), nil
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
