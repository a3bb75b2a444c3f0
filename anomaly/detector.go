// Package anomaly implements the anomaly detector (C8): stuck processes,
// duration outliers, loops and rare transitions, each a pure statistical
// pass over the audit log, composed into one report. Grounded on
// _examples/original_source/src/workflow/anomaly_detector.py.
package anomaly

import (
	"fmt"
	"math"
	"sort"
	"time"

	"eve.evalgo.org/workflow/repository"
)

// Detector reads processes and audit history to flag anomalies.
type Detector struct {
	repo *repository.ProcessRepository
}

// NewDetector wires a Detector against a process repository.
func NewDetector(repo *repository.ProcessRepository) *Detector {
	return &Detector{repo: repo}
}

func (d *Detector) stateChanges(processID string) ([]repository.AuditEntry, error) {
	history, err := d.repo.History(processID)
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

const defaultStuckThresholdHours = 48

// StuckProcess flags a process that has spent unusually long in its current state.
type StuckProcess struct {
	ProcessID        string
	CurrentState     string
	HoursStuck       float64
	ExpectedDuration float64
	AnomalyScore     float64
	LastTransition   time.Time
}

// DetectStuck flags processes whose time-since-last-transition is at least
// thresholdHours (default 48). anomaly_score is
// min(1, hours_stuck / (2*expected_duration)), where expected_duration falls
// back to thresholdHours if the state has no historical samples. Sorted by
// hours_stuck descending.
func (d *Detector) DetectStuck(kanbanID string, thresholdHours float64) ([]StuckProcess, error) {
	if thresholdHours <= 0 {
		thresholdHours = defaultStuckThresholdHours
	}
	processes, err := d.repo.ByKanban(kanbanID)
	if err != nil {
		return nil, err
	}
	if len(processes) == 0 {
		return nil, nil
	}

	avgStateDurations, err := d.averageStateDurations(processes)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var stuck []StuckProcess
	for _, p := range processes {
		entries, err := d.stateChanges(p.ProcessID)
		if err != nil {
			return nil, err
		}
		lastTransition := p.CreatedAt
		if len(entries) > 0 {
			lastTransition = entries[len(entries)-1].Timestamp
		}
		if lastTransition.IsZero() {
			continue
		}

		hoursInState := now.Sub(lastTransition).Hours()
		if hoursInState < thresholdHours {
			continue
		}

		expected, ok := avgStateDurations[p.CurrentState]
		if !ok {
			expected = thresholdHours
		}
		score := 1.0
		if expected > 0 {
			score = math.Min(1.0, hoursInState/(expected*2))
		}

		stuck = append(stuck, StuckProcess{
			ProcessID:        p.ProcessID,
			CurrentState:     p.CurrentState,
			HoursStuck:       hoursInState,
			ExpectedDuration: expected,
			AnomalyScore:     score,
			LastTransition:   lastTransition,
		})
	}

	sort.Slice(stuck, func(i, j int) bool { return stuck[i].HoursStuck > stuck[j].HoursStuck })
	return stuck, nil
}

func (d *Detector) averageStateDurations(processes []repository.Process) (map[string]float64, error) {
	samples := map[string][]float64{}
	now := time.Now().UTC()
	for _, p := range processes {
		entries, err := d.stateChanges(p.ProcessID)
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
	avg := make(map[string]float64, len(samples))
	for state, values := range samples {
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		avg[state] = sum / float64(len(values))
	}
	return avg, nil
}

const defaultZThreshold = 2.0

// DurationOutlier flags a process whose total duration is a statistical
// outlier relative to the rest of the kanban's processes.
type DurationOutlier struct {
	ProcessID        string
	TotalDurationHrs float64
	ExpectedDuration float64
	ZScore           float64
	AnomalyType      string // "too_long" | "too_short"
	StatesVisited    []string
}

// DetectDurationOutliers computes each process's total duration (creation to
// last transition, or now), then flags those whose z-score magnitude is at
// least zThreshold (default 2.0). Requires at least 3 samples to compute
// meaningful statistics. Sorted by |z_score| descending.
func (d *Detector) DetectDurationOutliers(kanbanID string, zThreshold float64) ([]DurationOutlier, error) {
	if zThreshold <= 0 {
		zThreshold = defaultZThreshold
	}
	processes, err := d.repo.ByKanban(kanbanID)
	if err != nil {
		return nil, err
	}
	if len(processes) < 3 {
		return nil, nil
	}

	type item struct {
		process  repository.Process
		duration float64
		states   []string
	}
	var items []item
	for _, p := range processes {
		entries, err := d.stateChanges(p.ProcessID)
		if err != nil {
			return nil, err
		}
		duration, ok := totalDuration(p, entries)
		if !ok {
			continue
		}
		items = append(items, item{process: p, duration: duration, states: statesVisited(entries)})
	}
	if len(items) < 3 {
		return nil, nil
	}

	durations := make([]float64, len(items))
	for i, it := range items {
		durations[i] = it.duration
	}
	mean, stdDev := meanAndStdDev(durations)
	if stdDev == 0 {
		return nil, nil
	}

	var outliers []DurationOutlier
	for _, it := range items {
		z := (it.duration - mean) / stdDev
		if math.Abs(z) < zThreshold {
			continue
		}
		anomalyType := "too_long"
		if z < 0 {
			anomalyType = "too_short"
		}
		outliers = append(outliers, DurationOutlier{
			ProcessID:        it.process.ProcessID,
			TotalDurationHrs: it.duration,
			ExpectedDuration: mean,
			ZScore:           z,
			AnomalyType:      anomalyType,
			StatesVisited:    it.states,
		})
	}

	sort.Slice(outliers, func(i, j int) bool { return math.Abs(outliers[i].ZScore) > math.Abs(outliers[j].ZScore) })
	return outliers, nil
}

func totalDuration(p repository.Process, entries []repository.AuditEntry) (float64, bool) {
	if p.CreatedAt.IsZero() {
		return 0, false
	}
	end := time.Now().UTC()
	if len(entries) > 0 && !entries[len(entries)-1].Timestamp.IsZero() {
		end = entries[len(entries)-1].Timestamp
	}
	return end.Sub(p.CreatedAt).Hours(), true
}

func statesVisited(entries []repository.AuditEntry) []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	for _, e := range entries {
		add(e.FromState)
		add(e.ToState)
	}
	return out
}

func meanAndStdDev(values []float64) (float64, float64) {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if len(values) < 2 {
		return mean, 0
	}
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)-1))
}

const defaultMaxLoopSize = 3

// Loop is a single revisit of a state within a process's sequence.
type Loop struct {
	States      []string
	Occurrences int
}

// ProcessLoops is one process carrying one or more detected loops.
type ProcessLoops struct {
	ProcessID string
	Loops     []Loop
}

// DetectLoops flags, per process, every point where a state reappears in its
// sequence — a loop of size len(loop)-1 — keeping only loops whose length is
// at most maxLoopSize+1 states (i.e. loop size <= maxLoopSize, default 3).
func (d *Detector) DetectLoops(kanbanID string, maxLoopSize int) ([]ProcessLoops, error) {
	if maxLoopSize <= 0 {
		maxLoopSize = defaultMaxLoopSize
	}
	processes, err := d.repo.ByKanban(kanbanID)
	if err != nil {
		return nil, err
	}

	var out []ProcessLoops
	for _, p := range processes {
		entries, err := d.stateChanges(p.ProcessID)
		if err != nil {
			return nil, err
		}
		loops := findLoops(entries, maxLoopSize)
		if len(loops) > 0 {
			out = append(out, ProcessLoops{ProcessID: p.ProcessID, Loops: loops})
		}
	}
	return out, nil
}

func findLoops(entries []repository.AuditEntry, maxLoopSize int) []Loop {
	if len(entries) < 2 {
		return nil
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

	var loops []Loop
	positions := map[string]int{}
	for i, state := range states {
		if start, ok := positions[state]; ok {
			loop := states[start : i+1]
			if len(loop) <= maxLoopSize+1 {
				loops = append(loops, Loop{States: append([]string(nil), loop...), Occurrences: 1})
			}
		}
		positions[state] = i
	}
	return loops
}

const defaultRarityThreshold = 0.05

// UnusualTransition is a rare directed edge observed in one process.
type UnusualTransition struct {
	FromState        string
	ToState          string
	OccurrenceRate   float64
	TotalOccurrences int
}

// ProcessUnusualTransitions is one process carrying one or more rare edges.
type ProcessUnusualTransitions struct {
	ProcessID           string
	UnusualTransitions  []UnusualTransition
}

// DetectUnusualTransitions computes each directed (from,to) edge's frequency
// across the whole kanban, flags edges rarer than rarityThreshold (default
// 0.05), then reports every process that took at least one such edge.
func (d *Detector) DetectUnusualTransitions(kanbanID string, rarityThreshold float64) ([]ProcessUnusualTransitions, error) {
	if rarityThreshold <= 0 {
		rarityThreshold = defaultRarityThreshold
	}
	processes, err := d.repo.ByKanban(kanbanID)
	if err != nil {
		return nil, err
	}

	counts := map[string]int{}
	total := 0
	entriesByProcess := make(map[string][]repository.AuditEntry, len(processes))
	for _, p := range processes {
		entries, err := d.stateChanges(p.ProcessID)
		if err != nil {
			return nil, err
		}
		entriesByProcess[p.ProcessID] = entries
		for _, e := range entries {
			if e.FromState == "" || e.ToState == "" {
				continue
			}
			counts[edgeKey(e.FromState, e.ToState)]++
			total++
		}
	}
	if total == 0 {
		return nil, nil
	}

	rare := map[string]bool{}
	for key, count := range counts {
		if float64(count)/float64(total) < rarityThreshold {
			rare[key] = true
		}
	}

	var out []ProcessUnusualTransitions
	for _, p := range processes {
		var unusual []UnusualTransition
		for _, e := range entriesByProcess[p.ProcessID] {
			if e.FromState == "" || e.ToState == "" {
				continue
			}
			key := edgeKey(e.FromState, e.ToState)
			if !rare[key] {
				continue
			}
			count := counts[key]
			unusual = append(unusual, UnusualTransition{
				FromState:        e.FromState,
				ToState:          e.ToState,
				OccurrenceRate:   float64(count) / float64(total),
				TotalOccurrences: count,
			})
		}
		if len(unusual) > 0 {
			out = append(out, ProcessUnusualTransitions{ProcessID: p.ProcessID, UnusualTransitions: unusual})
		}
	}
	return out, nil
}

func edgeKey(from, to string) string {
	return fmt.Sprintf("%s->%s", from, to)
}

// Report is the composite anomaly sweep for a kanban.
type Report struct {
	StuckProcesses      []StuckProcess
	DurationAnomalies   []DurationOutlier
	Loops               []ProcessLoops
	UnusualTransitions  []ProcessUnusualTransitions
	TotalProcesses      int
}

// GenerateReport runs all four detectors with their default thresholds and
// tallies a summary alongside the raw results.
func (d *Detector) GenerateReport(kanbanID string) (Report, error) {
	processes, err := d.repo.ByKanban(kanbanID)
	if err != nil {
		return Report{}, err
	}
	stuck, err := d.DetectStuck(kanbanID, defaultStuckThresholdHours)
	if err != nil {
		return Report{}, err
	}
	outliers, err := d.DetectDurationOutliers(kanbanID, defaultZThreshold)
	if err != nil {
		return Report{}, err
	}
	loops, err := d.DetectLoops(kanbanID, defaultMaxLoopSize)
	if err != nil {
		return Report{}, err
	}
	unusual, err := d.DetectUnusualTransitions(kanbanID, defaultRarityThreshold)
	if err != nil {
		return Report{}, err
	}

	return Report{
		StuckProcesses:     stuck,
		DurationAnomalies:  outliers,
		Loops:              loops,
		UnusualTransitions: unusual,
		TotalProcesses:     len(processes),
	}, nil
}
