// Package analysis implements the pattern analyzer (C7): pure statistical
// functions over the audit log — frequent sequences, a transition
// probability matrix, per-state duration statistics, and Jaccard similarity
// between processes. Grounded on
// _examples/original_source/src/workflow/pattern_analyzer.py.
package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"eve.evalgo.org/workflow/repository"
)

// Analyzer reads processes and their audit history to mine patterns.
type Analyzer struct {
	repo *repository.ProcessRepository
}

// NewAnalyzer wires an Analyzer against a process repository.
func NewAnalyzer(repo *repository.ProcessRepository) *Analyzer {
	return &Analyzer{repo: repo}
}

// Sequence is one process's chronological state sequence.
type Sequence struct {
	ProcessID string
	States    []string
}

// SequencesOf reconstructs every process's state sequence from its audit
// history, appending the live current_state if it isn't already the last
// element (covers processes whose most recent move hasn't been followed by
// another transition yet).
func (a *Analyzer) SequencesOf(kanbanID string) ([]Sequence, error) {
	processes, err := a.repo.ByKanban(kanbanID)
	if err != nil {
		return nil, err
	}

	out := make([]Sequence, 0, len(processes))
	for _, p := range processes {
		seq, err := a.sequenceFor(p)
		if err != nil {
			return nil, err
		}
		out = append(out, seq)
	}
	return out, nil
}

func (a *Analyzer) sequenceFor(p repository.Process) (Sequence, error) {
	entries, err := a.stateChanges(p.ProcessID)
	if err != nil {
		return Sequence{}, err
	}

	var states []string
	for _, e := range entries {
		if len(states) == 0 && e.FromState != "" {
			states = append(states, e.FromState)
		}
		if e.ToState != "" {
			states = append(states, e.ToState)
		}
	}
	if len(states) == 0 {
		if p.CurrentState != "" {
			states = append(states, p.CurrentState)
		}
	} else if states[len(states)-1] != p.CurrentState && p.CurrentState != "" {
		states = append(states, p.CurrentState)
	}

	return Sequence{ProcessID: p.ProcessID, States: states}, nil
}

// stateChanges returns a process's state_changed/forced_transition audit
// entries, oldest first (History already returns insertion order).
func (a *Analyzer) stateChanges(processID string) ([]repository.AuditEntry, error) {
	history, err := a.repo.History(processID)
	if err != nil {
		return nil, err
	}
	out := history[:0:0]
	for _, e := range history {
		if e.Action == repository.ActionStateChanged || e.Action == repository.ActionForcedTransition {
			out = append(out, e)
		}
	}
	return out, nil
}

// Pattern is a frequent contiguous subsequence of states with its metrics.
type Pattern struct {
	States          []string
	Support         float64
	Count           int
	AvgDurationHrs  float64
	Confidence      float64
}

func (p Pattern) key() string { return strings.Join(p.States, "->") }

// FrequentPatterns enumerates every contiguous subsequence of length 2..5
// across all of a kanban's process sequences, keeps those occurring at
// least len(sequences)*minSupport times, and attaches support/count/
// avg-duration/confidence metrics.
func (a *Analyzer) FrequentPatterns(kanbanID string, minSupport float64) ([]Pattern, error) {
	sequences, err := a.SequencesOf(kanbanID)
	if err != nil {
		return nil, err
	}
	if len(sequences) == 0 {
		return nil, nil
	}

	counts := map[string]int{}
	patternStates := map[string][]string{}
	for _, seq := range sequences {
		for length := 2; length <= 5 && length <= len(seq.States); length++ {
			for i := 0; i+length <= len(seq.States); i++ {
				sub := append([]string(nil), seq.States[i:i+length]...)
				key := strings.Join(sub, "->")
				counts[key]++
				patternStates[key] = sub
			}
		}
	}

	processes, err := a.repo.ByKanban(kanbanID)
	if err != nil {
		return nil, err
	}
	historyByProcess := make(map[string][]repository.AuditEntry, len(processes))
	for _, p := range processes {
		entries, err := a.stateChanges(p.ProcessID)
		if err != nil {
			return nil, err
		}
		historyByProcess[p.ProcessID] = entries
	}

	var patterns []Pattern
	for key, count := range counts {
		if float64(count)/float64(len(sequences)) < minSupport {
			continue
		}
		states := patternStates[key]
		durations := patternDurations(states, historyByProcess)
		avg := 0.0
		if len(durations) > 0 {
			sum := 0.0
			for _, d := range durations {
				sum += d
			}
			avg = sum / float64(len(durations))
		}
		patterns = append(patterns, Pattern{
			States:         states,
			Support:        float64(count) / float64(len(sequences)),
			Count:          count,
			AvgDurationHrs: avg,
			Confidence:     patternConfidence(states, sequences),
		})
	}

	sort.Slice(patterns, func(i, j int) bool { return patterns[i].Support > patterns[j].Support })
	return patterns, nil
}

func patternDurations(pattern []string, historyByProcess map[string][]repository.AuditEntry) []float64 {
	var durations []float64
	for _, history := range historyByProcess {
		for i := 0; i+len(pattern) <= len(history); i++ {
			if !historyMatchesPattern(history, i, pattern) {
				continue
			}
			start := history[i].Timestamp
			end := history[i+len(pattern)-1].Timestamp
			if start.IsZero() || end.IsZero() {
				continue
			}
			durations = append(durations, end.Sub(start).Hours())
		}
	}
	return durations
}

func historyMatchesPattern(history []repository.AuditEntry, start int, pattern []string) bool {
	for j, state := range pattern {
		entry := history[start+j]
		if j == 0 && entry.FromState != state {
			return false
		}
		if j > 0 && entry.ToState != state {
			return false
		}
	}
	return true
}

func patternConfidence(pattern []string, sequences []Sequence) float64 {
	if len(pattern) < 2 {
		return 1.0
	}
	prefix := pattern[:len(pattern)-1]
	var prefixCount, patternCount int
	for _, seq := range sequences {
		for i := 0; i+len(prefix) <= len(seq.States); i++ {
			if !slicesEqual(seq.States[i:i+len(prefix)], prefix) {
				continue
			}
			prefixCount++
			if i+len(pattern) <= len(seq.States) && slicesEqual(seq.States[i:i+len(pattern)], pattern) {
				patternCount++
			}
		}
	}
	if prefixCount == 0 {
		return 0
	}
	return float64(patternCount) / float64(prefixCount)
}

func slicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ClassifiedPatterns groups patterns into common/problematic/exceptional buckets.
type ClassifiedPatterns struct {
	Common       []Pattern
	Problematic  []Pattern
	Exceptional  []Pattern
}

var problematicWords = []string{"cancel", "reject", "fail", "error"}

// ClassifyPatterns buckets patterns: problematic if the terminal state name
// contains a failure-ish word, common if support crosses commonThresh,
// exceptional if support falls at or below exceptionalThresh. A pattern can
// only land in one bucket, problematic taking priority.
func ClassifyPatterns(patterns []Pattern, commonThresh, exceptionalThresh float64) ClassifiedPatterns {
	var out ClassifiedPatterns
	for _, p := range patterns {
		if len(p.States) == 0 {
			continue
		}
		last := strings.ToLower(p.States[len(p.States)-1])
		problematic := false
		for _, word := range problematicWords {
			if strings.Contains(last, word) {
				problematic = true
				break
			}
		}
		switch {
		case problematic:
			out.Problematic = append(out.Problematic, p)
		case p.Support >= commonThresh:
			out.Common = append(out.Common, p)
		case p.Support <= exceptionalThresh:
			out.Exceptional = append(out.Exceptional, p)
		}
	}
	return out
}

// TransitionMatrix builds the state-to-state transition probability matrix
// for a kanban: for each observed from_state, the probability distribution
// over to_state. Every row sums to 1.0 (within floating-point tolerance).
func (a *Analyzer) TransitionMatrix(kanbanID string) (map[string]map[string]float64, error) {
	processes, err := a.repo.ByKanban(kanbanID)
	if err != nil {
		return nil, err
	}

	counts := map[string]map[string]int{}
	totals := map[string]int{}
	for _, p := range processes {
		entries, err := a.stateChanges(p.ProcessID)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.FromState == "" || e.ToState == "" {
				continue
			}
			if counts[e.FromState] == nil {
				counts[e.FromState] = map[string]int{}
			}
			counts[e.FromState][e.ToState]++
			totals[e.FromState]++
		}
	}

	matrix := make(map[string]map[string]float64, len(counts))
	for from, targets := range counts {
		row := make(map[string]float64, len(targets))
		for to, count := range targets {
			row[to] = float64(count) / float64(totals[from])
		}
		matrix[from] = row
	}
	return matrix, nil
}

// DurationStats summarizes time spent in a single state.
type DurationStats struct {
	AvgHours    float64
	MinHours    float64
	MaxHours    float64
	StdDev      float64
	SampleCount int
}

// StateDurations pairs each process's consecutive audit entries (the first
// paired with created_at) to measure time spent in each from_state, using
// "now" as the end bound for the current (still-open) interval.
func (a *Analyzer) StateDurations(kanbanID string) (map[string]DurationStats, error) {
	processes, err := a.repo.ByKanban(kanbanID)
	if err != nil {
		return nil, err
	}

	samples := map[string][]float64{}
	now := time.Now().UTC()
	for _, p := range processes {
		entries, err := a.stateChanges(p.ProcessID)
		if err != nil {
			return nil, err
		}
		entered := p.CreatedAt
		for _, e := range entries {
			if e.Timestamp.IsZero() {
				continue
			}
			if e.FromState != "" && !entered.IsZero() {
				samples[e.FromState] = append(samples[e.FromState], e.Timestamp.Sub(entered).Hours())
			}
			entered = e.Timestamp
		}
		if len(entries) > 0 && p.CurrentState != "" && !entered.IsZero() {
			samples[p.CurrentState] = append(samples[p.CurrentState], now.Sub(entered).Hours())
		}
	}

	stats := make(map[string]DurationStats, len(samples))
	for state, values := range samples {
		if len(values) == 0 {
			continue
		}
		stats[state] = computeDurationStats(values)
	}
	return stats, nil
}

func computeDurationStats(values []float64) DurationStats {
	sum, min, max := 0.0, values[0], values[0]
	for _, v := range values {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	avg := sum / float64(len(values))

	stdDev := 0.0
	if len(values) > 1 {
		var sq float64
		for _, v := range values {
			sq += (v - avg) * (v - avg)
		}
		stdDev = math.Sqrt(sq / float64(len(values)-1))
	}

	return DurationStats{AvgHours: avg, MinHours: min, MaxHours: max, StdDev: stdDev, SampleCount: len(values)}
}

// SimilarProcess is one match returned by SimilarProcesses.
type SimilarProcess struct {
	ProcessID          string
	Similarity         float64
	CommonTransitions  []string
}

// SimilarProcesses ranks a kanban's other processes by Jaccard similarity of
// their directed-transition sets against the target process, returning at
// most limit matches.
func (a *Analyzer) SimilarProcesses(processID, kanbanID string, limit int) ([]SimilarProcess, error) {
	target, err := a.repo.GetByID(processID)
	if err != nil {
		return nil, err
	}
	targetSeq, err := a.sequenceFor(target)
	if err != nil {
		return nil, err
	}
	targetTransitions := directedTransitions(targetSeq.States)

	processes, err := a.repo.ByKanban(kanbanID)
	if err != nil {
		return nil, err
	}

	var matches []SimilarProcess
	for _, p := range processes {
		if p.ProcessID == processID {
			continue
		}
		seq, err := a.sequenceFor(p)
		if err != nil {
			return nil, err
		}
		transitions := directedTransitions(seq.States)
		similarity := jaccard(targetTransitions, transitions)
		if similarity <= 0 {
			continue
		}
		matches = append(matches, SimilarProcess{
			ProcessID:         p.ProcessID,
			Similarity:        similarity,
			CommonTransitions: commonTransitions(targetTransitions, transitions),
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func directedTransitions(states []string) map[string]struct{} {
	out := make(map[string]struct{}, len(states))
	for i := 0; i+1 < len(states); i++ {
		out[fmt.Sprintf("%s->%s", states[i], states[i+1])] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func commonTransitions(a, b map[string]struct{}) []string {
	var out []string
	for t := range a {
		if _, ok := b[t]; ok {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}
