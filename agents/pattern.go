package agents

import (
	"fmt"
	"sort"

	"eve.evalgo.org/workflow/analysis"
	"eve.evalgo.org/workflow/kanban"
	"eve.evalgo.org/workflow/repository"
)

// patternMinSupport is the support floor PatternAgent asks C7 for before it
// will consider a pattern at all, matching generic_agent.py's sibling
// pattern_agent.py call to analyze_transition_patterns(min_support=0.2).
const patternMinSupport = 0.2

// PatternAgent suggests the next state implied by the most similar frequent
// historical pattern for the process's current sequence. Grounded on
// _examples/original_source/src/workflow/agents/pattern_agent.py.
type PatternAgent struct {
	base
	analyzer *analysis.Analyzer
}

// NewPatternAgent wires a PatternAgent against the process repository, kanban
// registry, and the already-built pattern analyzer (C7).
func NewPatternAgent(repo *repository.ProcessRepository, registry *kanban.Registry, analyzer *analysis.Analyzer) *PatternAgent {
	return &PatternAgent{base{repo: repo, registry: registry}, analyzer}
}

func (a *PatternAgent) AnalyzeContext(processID string) (map[string]interface{}, error) {
	p, _, err := a.process(processID)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}, nil
	}

	sequences, err := a.analyzer.SequencesOf(p.KanbanID)
	if err != nil {
		return nil, err
	}
	var currentSequence []string
	for _, seq := range sequences {
		if seq.ProcessID == processID {
			currentSequence = seq.States
			break
		}
	}

	patterns, err := a.analyzer.FrequentPatterns(p.KanbanID, patternMinSupport)
	if err != nil {
		return nil, err
	}

	matching := matchingPatterns(currentSequence, patterns)
	similar, err := a.analyzer.SimilarProcesses(processID, p.KanbanID, 3)
	if err != nil {
		return nil, err
	}
	nextStates := nextStatesFromPatterns(currentSequence, patterns)

	return map[string]interface{}{
		"current_sequence":  currentSequence,
		"matching_patterns": matching,
		"similar_processes": similar,
		"common_next_states": nextStates,
	}, nil
}

// matchingPatterns keeps the patterns whose all-but-last state matches the
// tail of the current sequence, mirroring _find_matching_patterns.
func matchingPatterns(currentSequence []string, patterns []analysis.Pattern) []analysis.Pattern {
	var out []analysis.Pattern
	for _, p := range patterns {
		prefixLen := len(p.States) - 1
		if prefixLen < 0 || len(currentSequence) < prefixLen {
			continue
		}
		match := true
		for i := 0; i < prefixLen; i++ {
			if currentSequence[len(currentSequence)-prefixLen+i] != p.States[i] {
				match = false
				break
			}
		}
		if match {
			out = append(out, p)
		}
	}
	return out
}

// nextStatesFromPatterns accumulates, per candidate next state, the maximum
// confidence across any pattern whose prefix equals the current sequence
// exactly and whose next element is that state. Grounded on
// _calculate_next_states_from_patterns.
func nextStatesFromPatterns(currentSequence []string, patterns []analysis.Pattern) map[string]float64 {
	nextStates := map[string]float64{}
	for _, p := range patterns {
		if len(currentSequence) >= len(p.States) {
			continue
		}
		matches := true
		for i, state := range currentSequence {
			if i >= len(p.States) || p.States[i] != state {
				matches = false
				break
			}
		}
		if !matches {
			continue
		}
		nextState := p.States[len(currentSequence)]
		if existing, ok := nextStates[nextState]; !ok || p.Confidence > existing {
			nextStates[nextState] = p.Confidence
		}
	}
	return nextStates
}

func (a *PatternAgent) SuggestTransition(processID string) (Suggestion, error) {
	ctx, err := a.AnalyzeContext(processID)
	if err != nil {
		return Suggestion{}, err
	}
	if msg, ok := ctx["error"]; ok {
		return errorSuggestion(msg.(string)), nil
	}

	nextStates := ctx["common_next_states"].(map[string]float64)
	matching := ctx["matching_patterns"].([]analysis.Pattern)

	if len(nextStates) == 0 {
		return formatSuggestion("", 0.3,
			"No historical patterns found for current sequence. Consider manual transition.",
			[]string{"No historical data to guide decision"}), nil
	}

	// Sort candidate states for a deterministic tie-break — Go map
	// iteration order is randomized, unlike the Python original's
	// insertion-ordered dict.
	candidates := make([]string, 0, len(nextStates))
	for state := range nextStates {
		candidates = append(candidates, state)
	}
	sort.Strings(candidates)

	bestState, bestConfidence := "", -1.0
	for _, state := range candidates {
		if confidence := nextStates[state]; confidence > bestConfidence {
			bestState, bestConfidence = state, confidence
		}
	}

	support := 0.0
	if len(matching) > 0 {
		support = matching[0].Support
	}
	justification := fmt.Sprintf(
		"Historical patterns suggest '%s' as next state. Found %d matching pattern(s) with %d%% support.",
		bestState, len(matching), int(support*100))

	return formatSuggestion(bestState, bestConfidence, justification, nil), nil
}

func (a *PatternAgent) ValidateTransition(processID, targetState string) (Validation, error) {
	ctx, err := a.AnalyzeContext(processID)
	if err != nil {
		return Validation{}, err
	}
	if msg, ok := ctx["error"]; ok {
		return formatValidation(false, nil, []string{msg.(string)}, ""), nil
	}

	nextStates := ctx["common_next_states"].(map[string]float64)

	var warnings []string
	risk := RiskLow
	confidence, ok := nextStates[targetState]
	if !ok {
		warnings = append(warnings, fmt.Sprintf(
			"Target state '%s' is not a common next state based on historical patterns", targetState))
		risk = RiskMedium
	} else if confidence < 0.3 {
		warnings = append(warnings, fmt.Sprintf(
			"Target state '%s' occurs in only %d%% of similar cases", targetState, int(confidence*100)))
		risk = RiskMedium
	}

	return formatValidation(true, warnings, nil, risk), nil
}
