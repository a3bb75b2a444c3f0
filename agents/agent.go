// Package agents implements the multi-agent suggestion system (C9): three
// independent strategies for recommending a process's next transition, an
// orchestrator that runs them together and derives a consensus, and a
// feedback loop that learns per-agent weights from confirmed outcomes.
// Grounded on _examples/original_source/src/workflow/agents/base_agent.py
// and the sibling agent_orchestrator.py / agent_feedback_loop.py.
package agents

import (
	"errors"
	"time"

	"eve.evalgo.org/workflow/kanban"
	"eve.evalgo.org/workflow/repository"
)

var errKanbanNotFound = errors.New("agents: kanban not found for process")

// Agent names, used as map keys throughout the orchestrator and feedback loop.
const (
	Heuristic = "heuristic"
	Pattern   = "pattern"
	Rule      = "rule"
)

// RiskLevel mirrors the three-tier scale every agent's validation reports.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Suggestion is the common shape returned by every agent's SuggestTransition.
type Suggestion struct {
	SuggestedState     string   `json:"suggested_state,omitempty"`
	Confidence         float64  `json:"confidence"`
	Justification      string   `json:"justification"`
	RiskFactors        []string `json:"risk_factors"`
	EstimatedDuration  *float64 `json:"estimated_duration_hours,omitempty"`
	Error              string   `json:"error,omitempty"`

	// Populated by the orchestrator, not by the agent itself.
	Agent            string   `json:"agent,omitempty"`
	BaseConfidence   *float64 `json:"base_confidence,omitempty"`
	AgentWeight      *float64 `json:"agent_weight,omitempty"`
	SuggestionID     string   `json:"suggestion_id,omitempty"`
}

// Validation is the common shape returned by every agent's ValidateTransition.
type Validation struct {
	Valid     bool      `json:"valid"`
	Warnings  []string  `json:"warnings"`
	Errors    []string  `json:"errors"`
	RiskLevel RiskLevel `json:"risk_level"`
}

// Agent is the contract every suggestion strategy implements. Grounded on
// BaseAgent's three abstract methods; AnalyzeContext's return shape is
// intentionally agent-specific (map[string]interface{}) since each agent
// reasons over a different slice of state — the orchestrator never
// interprets it, only forwards it.
type Agent interface {
	AnalyzeContext(processID string) (map[string]interface{}, error)
	SuggestTransition(processID string) (Suggestion, error)
	ValidateTransition(processID, targetState string) (Validation, error)
}

// clamp01 bounds a confidence score to [0,1] and rounds it to 3 decimals,
// matching BaseAgent.format_suggestion.
func clamp01(v float64) float64 {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return roundTo(v, 1000)
}

func roundTo(v float64, scale float64) float64 {
	return float64(int64(v*scale+0.5)) / scale
}

func formatSuggestion(state string, confidence float64, justification string, riskFactors []string) Suggestion {
	if riskFactors == nil {
		riskFactors = []string{}
	}
	return Suggestion{
		SuggestedState: state,
		Confidence:     clamp01(confidence),
		Justification:  justification,
		RiskFactors:    riskFactors,
	}
}

func errorSuggestion(message string) Suggestion {
	return Suggestion{Confidence: 0, Justification: message, RiskFactors: []string{}, Error: message}
}

func formatValidation(valid bool, warnings, errs []string, risk RiskLevel) Validation {
	if warnings == nil {
		warnings = []string{}
	}
	if errs == nil {
		errs = []string{}
	}
	if risk == "" {
		risk = RiskLow
	}
	return Validation{Valid: valid, Warnings: warnings, Errors: errs, RiskLevel: risk}
}

// base holds what every agent needs to look up process/kanban state, mirroring
// BaseAgent's get_process/get_kanban/get_available_transitions helpers.
type base struct {
	repo     *repository.ProcessRepository
	registry *kanban.Registry
}

func (b base) process(processID string) (repository.Process, kanban.Kanban, error) {
	p, err := b.repo.GetByID(processID)
	if err != nil {
		return repository.Process{}, kanban.Kanban{}, err
	}
	k, ok := b.registry.Get(p.KanbanID)
	if !ok {
		return p, kanban.Kanban{}, errKanbanNotFound
	}
	return p, k, nil
}

// fieldCompleteness is the fraction of the kanban's mapped fields (or, absent
// a field_mapping, the process's own field_values) that hold a non-empty
// value. Grounded on BaseAgent.check_field_completeness.
func fieldCompleteness(p repository.Process, k kanban.Kanban) float64 {
	if len(k.FieldMapping) == 0 {
		if len(p.FieldValues) == 0 {
			return 0
		}
		filled := 0
		for _, v := range p.FieldValues {
			if v != nil && v != "" {
				filled++
			}
		}
		return float64(filled) / float64(len(p.FieldValues))
	}
	filled := 0
	for _, field := range k.FieldMapping {
		if v, ok := p.FieldValues[field]; ok && v != nil && v != "" {
			filled++
		}
	}
	return float64(filled) / float64(len(k.FieldMapping))
}

// transitionHistoryCount counts state_changed/forced_transition entries for a
// process, grounded on BaseAgent.get_transition_history_count.
func transitionHistoryCount(repo *repository.ProcessRepository, processID string) (int, error) {
	history, err := repo.History(processID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, e := range history {
		if e.Action == repository.ActionStateChanged || e.Action == repository.ActionForcedTransition {
			count++
		}
	}
	return count, nil
}

// currentStateDuration returns hours elapsed since the process's last
// transition (or CreatedAt if it has never moved), grounded on
// BaseAgent.get_current_state_duration.
func currentStateDuration(repo *repository.ProcessRepository, p repository.Process) (float64, error) {
	history, err := repo.History(p.ProcessID)
	if err != nil {
		return 0, err
	}
	since := p.CreatedAt
	for i := len(history) - 1; i >= 0; i-- {
		e := history[i]
		if e.Action == repository.ActionStateChanged || e.Action == repository.ActionForcedTransition {
			since = e.Timestamp
			break
		}
	}
	return time.Since(since).Hours(), nil
}
