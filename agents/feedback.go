package agents

import (
	"sync"
	"time"

	"eve.evalgo.org/workflow/ids"
)

// Outcome classifies a confirmed transition's relationship to what an agent
// suggested for it, matching the 2x2-plus-one product from
// agent_feedback_loop.py's record_outcome.
type Outcome string

const (
	OutcomeAcceptedSuccessful Outcome = "accepted_successful"
	OutcomeAcceptedFailed     Outcome = "accepted_failed"
	OutcomeRejectedButMatched Outcome = "rejected_but_matched"
	OutcomeRejected           Outcome = "rejected"
)

var weightDeltas = map[Outcome]float64{
	OutcomeAcceptedSuccessful: 0.05,
	OutcomeAcceptedFailed:     -0.10,
	OutcomeRejectedButMatched: 0.02,
	OutcomeRejected:           -0.02,
}

const (
	minAgentWeight = 0.3
	maxAgentWeight = 2.0
)

// SuggestionRecord is one recorded agent suggestion and, once known, its
// outcome. Grounded on agent_feedback_loop.py's feedback_entry dict.
type SuggestionRecord struct {
	SuggestionID   string
	ProcessID      string
	AgentType      string
	SuggestedState string
	Confidence     float64
	Reasoning      string
	Metadata       map[string]interface{}
	RecordedAt     time.Time

	Outcome      Outcome
	ActualState  string
	WasAccepted  bool
	Success      bool
	HasOutcome   bool
}

// FeedbackLoop is the in-memory suggestion/outcome store and per-agent
// weight tracker. Repurposes statemanager.Manager's mutex-guarded
// map-plus-default shape (_examples/evalgo-org-eve/statemanager/manager.go)
// for C9's suggestion bookkeeping instead of operation bookkeeping. Grounded
// on _examples/original_source/src/workflow/agent_feedback_loop.py.
type FeedbackLoop struct {
	mu      sync.RWMutex
	history []*SuggestionRecord
	weights map[string]float64
}

// NewFeedbackLoop starts every known agent at weight 1.0.
func NewFeedbackLoop() *FeedbackLoop {
	return &FeedbackLoop{
		weights: map[string]float64{Heuristic: 1.0, Pattern: 1.0, Rule: 1.0},
	}
}

// RecordSuggestion appends a new, outcome-less record and returns its
// generated id.
func (f *FeedbackLoop) RecordSuggestion(processID, agentType, suggestedState string, confidence float64, reasoning string, metadata map[string]interface{}) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := ids.New()
	f.history = append(f.history, &SuggestionRecord{
		SuggestionID:   id,
		ProcessID:      processID,
		AgentType:      agentType,
		SuggestedState: suggestedState,
		Confidence:     confidence,
		Reasoning:      reasoning,
		Metadata:       metadata,
		RecordedAt:     time.Now().UTC(),
	})
	return id
}

// RecordOutcome finds the suggestion by id, fills in its outcome, classifies
// it into one of the four Outcome buckets, and updates the agent's weight.
// Returns false if the suggestion id is unknown.
func (f *FeedbackLoop) RecordOutcome(suggestionID string, wasAccepted bool, actualState string, success bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, entry := range f.history {
		if entry.SuggestionID != suggestionID {
			continue
		}

		entry.WasAccepted = wasAccepted
		entry.ActualState = actualState
		entry.Success = success
		entry.HasOutcome = true

		switch {
		case wasAccepted && success:
			entry.Outcome = OutcomeAcceptedSuccessful
		case wasAccepted && !success:
			entry.Outcome = OutcomeAcceptedFailed
		case !wasAccepted && actualState == entry.SuggestedState:
			entry.Outcome = OutcomeRejectedButMatched
		default:
			entry.Outcome = OutcomeRejected
		}

		f.updateWeightLocked(entry.AgentType, entry.Outcome)
		return true
	}
	return false
}

func (f *FeedbackLoop) updateWeightLocked(agentType string, outcome Outcome) {
	current, ok := f.weights[agentType]
	if !ok {
		current = 1.0
	}
	next := current + weightDeltas[outcome]
	if next < minAgentWeight {
		next = minAgentWeight
	}
	if next > maxAgentWeight {
		next = maxAgentWeight
	}
	f.weights[agentType] = next
}

// AgentWeight returns an agent's current learned weight (default 1.0).
func (f *FeedbackLoop) AgentWeight(agentType string) float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if w, ok := f.weights[agentType]; ok {
		return w
	}
	return 1.0
}

// WeightedConfidence scales a base confidence by the agent's learned weight,
// clamped back to [0,1].
func (f *FeedbackLoop) WeightedConfidence(agentType string, baseConfidence float64) float64 {
	weighted := baseConfidence * f.AgentWeight(agentType)
	if weighted < 0 {
		weighted = 0
	}
	if weighted > 1 {
		weighted = 1
	}
	return weighted
}

// AgentStatistics is one agent's performance summary over a time window.
type AgentStatistics struct {
	AgentType         string
	PeriodDays        int
	TotalSuggestions  int
	AcceptanceRate    float64
	SuccessRate       float64
	Accuracy          float64
	CurrentWeight     float64
	OutcomeBreakdown  map[Outcome]int
}

// Statistics computes acceptance/success/accuracy rates for one agent (or
// every agent when agentType is "") within the last `days` days. Grounded on
// get_agent_statistics.
func (f *FeedbackLoop) Statistics(agentType string, days int) AgentStatistics {
	f.mu.RLock()
	defer f.mu.RUnlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	var filtered []*SuggestionRecord
	for _, entry := range f.history {
		if !entry.HasOutcome || entry.RecordedAt.Before(cutoff) {
			continue
		}
		if agentType != "" && entry.AgentType != agentType {
			continue
		}
		filtered = append(filtered, entry)
	}

	label := agentType
	if label == "" {
		label = "all"
	}

	if len(filtered) == 0 {
		weight := 0.0
		if agentType != "" {
			weight = f.weights[agentType]
			if weight == 0 {
				weight = 1.0
			}
		}
		return AgentStatistics{AgentType: label, PeriodDays: days, CurrentWeight: weight}
	}

	total := len(filtered)
	accepted, successful, correct := 0, 0, 0
	breakdown := map[Outcome]int{}
	for _, entry := range filtered {
		if entry.WasAccepted {
			accepted++
		}
		if entry.Success {
			successful++
		}
		if entry.SuggestedState == entry.ActualState {
			correct++
		}
		breakdown[entry.Outcome]++
	}

	weight := 0.0
	if agentType != "" {
		weight = f.weights[agentType]
	}

	return AgentStatistics{
		AgentType:        label,
		PeriodDays:       days,
		TotalSuggestions: total,
		AcceptanceRate:   float64(accepted) / float64(total),
		SuccessRate:      float64(successful) / float64(total),
		Accuracy:         float64(correct) / float64(total),
		CurrentWeight:    weight,
		OutcomeBreakdown: breakdown,
	}
}

// AllStatistics returns Statistics for each of the three known agents.
func (f *FeedbackLoop) AllStatistics(days int) map[string]AgentStatistics {
	out := make(map[string]AgentStatistics, len(agentOrder))
	for _, name := range agentOrder {
		out[name] = f.Statistics(name, days)
	}
	return out
}

// BestAgentFor returns the agent with the highest suggested==actual accuracy
// among suggestions for processes belonging to kanbanID within the window,
// defaulting to (heuristic, 1.0) when there is no data. Grounded on
// get_best_agent_for_kanban. processKanban resolves a process id to its
// kanban id; the feedback loop itself has no process-repository dependency,
// so the caller (the orchestrator's owner) supplies this lookup.
func (f *FeedbackLoop) BestAgentFor(kanbanID string, days int, processKanban func(processID string) (string, bool)) (string, float64) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	scores := map[string]*struct{ correct, total int }{}

	for _, entry := range f.history {
		if !entry.HasOutcome || entry.RecordedAt.Before(cutoff) {
			continue
		}
		kID, ok := processKanban(entry.ProcessID)
		if !ok || kID != kanbanID {
			continue
		}
		if scores[entry.AgentType] == nil {
			scores[entry.AgentType] = &struct{ correct, total int }{}
		}
		scores[entry.AgentType].total++
		if entry.SuggestedState == entry.ActualState {
			scores[entry.AgentType].correct++
		}
	}

	if len(scores) == 0 {
		return Heuristic, 1.0
	}

	bestAgent, bestAccuracy := Heuristic, 0.0
	for _, name := range agentOrder {
		s, ok := scores[name]
		if !ok || s.total == 0 {
			continue
		}
		accuracy := float64(s.correct) / float64(s.total)
		if accuracy > bestAccuracy {
			bestAccuracy = accuracy
			bestAgent = name
		}
	}
	return bestAgent, bestAccuracy
}

// History returns, most-recent first, up to limit suggestion records
// optionally filtered by process id and/or agent type.
func (f *FeedbackLoop) History(processID, agentType string, limit int) []SuggestionRecord {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var filtered []SuggestionRecord
	for i := len(f.history) - 1; i >= 0; i-- {
		entry := f.history[i]
		if processID != "" && entry.ProcessID != processID {
			continue
		}
		if agentType != "" && entry.AgentType != agentType {
			continue
		}
		filtered = append(filtered, *entry)
		if limit > 0 && len(filtered) >= limit {
			break
		}
	}
	return filtered
}

// ResetWeights resets every known agent's weight back to 1.0.
func (f *FeedbackLoop) ResetWeights() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name := range f.weights {
		f.weights[name] = 1.0
	}
}
