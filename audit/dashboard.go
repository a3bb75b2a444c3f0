package audit

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"eve.evalgo.org/workflow/agents"
	"eve.evalgo.org/workflow/analysis"
	"eve.evalgo.org/workflow/anomaly"
	"eve.evalgo.org/workflow/kanban"
	"eve.evalgo.org/workflow/repository"
)

// healthScoreGauge exposes the most recently computed kanban_health score per
// kanban, for scraping by an operator's existing Prometheus setup. Grounded
// on the teacher's otel/metrics-exporter containers (_examples/evalgo-org-eve
// /containers/production) generalized to a library-level gauge rather than a
// sidecar exporter, since this module has no standalone metrics process of
// its own.
var healthScoreGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "workflow",
	Name:      "kanban_health_score",
	Help:      "Most recently computed health score (0-1) for a kanban.",
}, []string{"kanban_id"})

func init() {
	prometheus.MustRegister(healthScoreGauge)
}

// Dashboard aggregates C7 (analysis) and C8 (anomaly) results into the
// health/statistics/bottleneck views an operator reaches for first. Grounded
// on _examples/original_source/src/workflow/workflow_dashboard.py.
type Dashboard struct {
	repo         *repository.ProcessRepository
	registry     *kanban.Registry
	analyzer     *analysis.Analyzer
	detector     *anomaly.Detector
	orchestrator *agents.Orchestrator
}

// NewDashboard wires a Dashboard against the already-built repository,
// kanban registry, pattern analyzer (C7), and anomaly detector (C8).
// orchestrator is optional (pass nil to disable AgentPerformance).
func NewDashboard(repo *repository.ProcessRepository, registry *kanban.Registry, analyzer *analysis.Analyzer, detector *anomaly.Detector, orchestrator *agents.Orchestrator) *Dashboard {
	return &Dashboard{repo: repo, registry: registry, analyzer: analyzer, detector: detector, orchestrator: orchestrator}
}

// Issue is one flagged health problem with a severity.
type Issue struct {
	Type     string
	Count    int
	Severity string // low | medium | high
}

// HealthMetrics is the numeric core of a kanban's health report.
type HealthMetrics struct {
	TotalProcesses         int
	ActiveProcesses        int
	CompletedProcesses     int
	StuckProcesses         int
	AvgCompletionTimeHours float64
	ThroughputPerDay       float64
}

// Health is a kanban's composite health report.
type Health struct {
	KanbanID        string
	HealthScore     float64
	Status          string // healthy | warning | critical
	Metrics         HealthMetrics
	Issues          []Issue
	Recommendations []string
}

// KanbanHealth computes health_score = 1 − 0.5·(stuck/total) −
// 0.3·(loops/total) − 0.2·(anomalies/total), derives a status band, and
// updates the exported Prometheus gauge as a side effect. Grounded on
// get_kanban_health.
func (d *Dashboard) KanbanHealth(kanbanID string) (Health, error) {
	processes, err := d.repo.ByKanban(kanbanID)
	if err != nil {
		return Health{}, err
	}
	k, ok := d.registry.Get(kanbanID)
	if !ok {
		return Health{}, fmt.Errorf("audit: kanban not found: %s", kanbanID)
	}

	var active, completed []repository.Process
	for _, p := range processes {
		if isFinal(k, p.CurrentState) {
			completed = append(completed, p)
		} else {
			active = append(active, p)
		}
	}

	report, err := d.detector.GenerateReport(kanbanID)
	if err != nil {
		return Health{}, err
	}

	var completionTimes []float64
	for _, p := range completed {
		history, err := d.repo.History(p.ProcessID)
		if err != nil {
			return Health{}, err
		}
		if len(history) == 0 {
			continue
		}
		last := history[len(history)-1].Timestamp
		completionTimes = append(completionTimes, last.Sub(p.CreatedAt).Hours())
	}
	avgCompletion := average(completionTimes)

	thirtyDaysAgo := time.Now().UTC().AddDate(0, 0, -30)
	recentCompleted := 0
	for _, p := range completed {
		if p.CreatedAt.After(thirtyDaysAgo) {
			recentCompleted++
		}
	}
	throughput := float64(recentCompleted) / 30.0

	total := len(processes)
	var issues []Issue
	if len(report.StuckProcesses) > 0 {
		severity := "medium"
		if len(report.StuckProcesses) > 5 {
			severity = "high"
		}
		issues = append(issues, Issue{Type: "stuck_processes", Count: len(report.StuckProcesses), Severity: severity})
	}
	if len(report.Loops) > 0 {
		issues = append(issues, Issue{Type: "loops", Count: len(report.Loops), Severity: "medium"})
	}
	if len(report.DurationAnomalies) > 0 {
		issues = append(issues, Issue{Type: "duration_anomalies", Count: len(report.DurationAnomalies), Severity: "low"})
	}

	score := healthScore(total, len(report.StuckProcesses), len(report.Loops), len(report.DurationAnomalies))
	status := "critical"
	switch {
	case score >= 0.8:
		status = "healthy"
	case score >= 0.6:
		status = "warning"
	}

	recommendations := healthRecommendations(report)

	healthScoreGauge.WithLabelValues(kanbanID).Set(score)

	return Health{
		KanbanID:    kanbanID,
		HealthScore: roundTo(score, 1000),
		Status:      status,
		Metrics: HealthMetrics{
			TotalProcesses:         total,
			ActiveProcesses:        len(active),
			CompletedProcesses:     len(completed),
			StuckProcesses:         len(report.StuckProcesses),
			AvgCompletionTimeHours: roundTo(avgCompletion, 10),
			ThroughputPerDay:       roundTo(throughput, 100),
		},
		Issues:          issues,
		Recommendations: recommendations,
	}, nil
}

func isFinal(k kanban.Kanban, stateID string) bool {
	s, ok := k.StateByID(stateID)
	return ok && s.Type == kanban.StateFinal
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func healthScore(total, stuck, loops, anomalies int) float64 {
	if total == 0 {
		return 1.0
	}
	score := 1.0
	score -= (float64(stuck) / float64(total)) * 0.5
	score -= (float64(loops) / float64(total)) * 0.3
	score -= (float64(anomalies) / float64(total)) * 0.2
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

func healthRecommendations(report anomaly.Report) []string {
	var out []string
	if n := len(report.StuckProcesses); n > 0 {
		out = append(out, fmt.Sprintf(
			"Review %d stuck process(es) and consider manual intervention or process redesign", n))
	}
	if len(report.Loops) > 0 {
		out = append(out, "Investigate process loops - may indicate rework cycles or validation issues")
	}
	if len(report.UnusualTransitions) > 5 {
		out = append(out, "High number of unusual transitions detected - review kanban workflow design")
	}
	if len(out) == 0 {
		out = append(out, "Workflow operating normally - continue monitoring")
	}
	return out
}

// ProcessStats is a period's counts, rates, and throughput for a kanban.
type ProcessStats struct {
	PeriodDays        int
	Created           int
	Completed         int
	Active            int
	CompletionRate    float64
	AvgCycleTimeHours float64
	StatesDistribution map[string]int
	DailyThroughput    map[string]int
}

// ProcessStats computes counts, completion rate, average cycle time, and a
// per-day completion histogram over a trailing window. Grounded on
// get_process_stats.
func (d *Dashboard) ProcessStats(kanbanID string, days int) (ProcessStats, error) {
	k, ok := d.registry.Get(kanbanID)
	if !ok {
		return ProcessStats{}, fmt.Errorf("audit: kanban not found: %s", kanbanID)
	}
	all, err := d.repo.ByKanban(kanbanID)
	if err != nil {
		return ProcessStats{}, err
	}
	startDate := time.Now().UTC().AddDate(0, 0, -days)

	var period []repository.Process
	for _, p := range all {
		if !p.CreatedAt.Before(startDate) {
			period = append(period, p)
		}
	}

	var completed []repository.Process
	for _, p := range period {
		if isFinal(k, p.CurrentState) {
			completed = append(completed, p)
		}
	}

	completionRate := 0.0
	if len(period) > 0 {
		completionRate = float64(len(completed)) / float64(len(period))
	}

	var cycleTimes []float64
	dailyThroughput := map[string]int{}
	for _, p := range completed {
		history, err := d.repo.History(p.ProcessID)
		if err != nil {
			return ProcessStats{}, err
		}
		if len(history) == 0 {
			continue
		}
		last := history[len(history)-1].Timestamp
		cycleTimes = append(cycleTimes, last.Sub(p.CreatedAt).Hours())
		dailyThroughput[last.Format("2006-01-02")]++
	}

	statesDist := map[string]int{}
	for _, p := range period {
		statesDist[p.CurrentState]++
	}

	return ProcessStats{
		PeriodDays:          days,
		Created:             len(period),
		Completed:           len(completed),
		Active:              len(period) - len(completed),
		CompletionRate:      roundTo(completionRate, 1000),
		AvgCycleTimeHours:   roundTo(average(cycleTimes), 10),
		StatesDistribution:  statesDist,
		DailyThroughput:     dailyThroughput,
	}, nil
}

// BottleneckState is one state whose average duration is at least 2x its
// fastest observed pass, with a minimum sample size to avoid noise.
type BottleneckState struct {
	StateID           string
	AvgDurationHours  float64
	MinDurationHours  float64
	SlowdownFactor    float64
	ProcessCount      int
}

// Bottlenecks is the ranked list of slow states plus a headline recommendation.
type Bottlenecks struct {
	BottleneckStates []BottleneckState
	Recommendations  []string
}

// Bottlenecks flags states with avg_hours/min_hours >= 2.0 and sample_count
// >= 3, ranked by slowdown factor descending. Grounded on identify_bottlenecks.
func (d *Dashboard) Bottlenecks(kanbanID string) (Bottlenecks, error) {
	durations, err := d.analyzer.StateDurations(kanbanID)
	if err != nil {
		return Bottlenecks{}, err
	}

	var states []BottleneckState
	for stateID, stats := range durations {
		if stats.SampleCount < 3 {
			continue
		}
		slowdown := 1.0
		if stats.MinHours > 0 {
			slowdown = stats.AvgHours / stats.MinHours
		}
		if slowdown < 2.0 {
			continue
		}
		states = append(states, BottleneckState{
			StateID:          stateID,
			AvgDurationHours: roundTo(stats.AvgHours, 10),
			MinDurationHours: roundTo(stats.MinHours, 10),
			SlowdownFactor:   roundTo(slowdown, 10),
			ProcessCount:     stats.SampleCount,
		})
	}

	sortBottlenecksDesc(states)

	var recommendations []string
	if len(states) > 0 {
		top := states[0]
		recommendations = append(recommendations, fmt.Sprintf(
			"State '%s' is %.1fx slower than optimal - investigate delays", top.StateID, top.SlowdownFactor))
	}

	return Bottlenecks{BottleneckStates: states, Recommendations: recommendations}, nil
}

func sortBottlenecksDesc(states []BottleneckState) {
	for i := 1; i < len(states); i++ {
		for j := i; j > 0 && states[j].SlowdownFactor > states[j-1].SlowdownFactor; j-- {
			states[j], states[j-1] = states[j-1], states[j]
		}
	}
}

// Summary bundles health, process stats (30-day window), and bottlenecks —
// the one call a dashboard UI needs for a kanban's landing view. Grounded on
// get_dashboard_summary.
type Summary struct {
	KanbanID    string
	GeneratedAt time.Time
	Health      Health
	Statistics  ProcessStats
	Bottlenecks Bottlenecks
}

func (d *Dashboard) Summary(kanbanID string) (Summary, error) {
	health, err := d.KanbanHealth(kanbanID)
	if err != nil {
		return Summary{}, err
	}
	stats, err := d.ProcessStats(kanbanID, 30)
	if err != nil {
		return Summary{}, err
	}
	bottlenecks, err := d.Bottlenecks(kanbanID)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		KanbanID:    kanbanID,
		GeneratedAt: time.Now().UTC(),
		Health:      health,
		Statistics:  stats,
		Bottlenecks: bottlenecks,
	}, nil
}

// AgentStats is one agent's observed confidence behavior over the sample.
type AgentStats struct {
	AvgConfidence       float64
	SuggestionCount     int
	HighConfidenceCount int // confidence >= 0.8
}

// ConsensusStats summarizes how often the three agents agreed across the sample.
type ConsensusStats struct {
	HighAgreementCount int
	HighAgreementRate  float64
}

// AgentPerformance is C9's suggestion quality, sampled over a kanban's most
// recent processes.
type AgentPerformance struct {
	SampleSize int
	Agents     map[string]AgentStats
	Consensus  ConsensusStats
}

// AgentPerformance analyzes the last sampleSize processes in a kanban with
// every C9 agent and summarizes confidence and consensus behavior. Grounded
// on get_agent_performance; supplements the distilled spec, since it ties
// C9's orchestrator into C10's dashboard the way the original does. Returns
// a zero-value report if no orchestrator was wired.
func (d *Dashboard) AgentPerformance(kanbanID string, sampleSize int) (AgentPerformance, error) {
	if d.orchestrator == nil {
		return AgentPerformance{}, nil
	}
	processes, err := d.repo.ByKanban(kanbanID)
	if err != nil {
		return AgentPerformance{}, err
	}
	sample := processes
	if len(processes) > sampleSize {
		sample = processes[len(processes)-sampleSize:]
	}

	confidences := map[string][]float64{agents.Heuristic: nil, agents.Pattern: nil, agents.Rule: nil}
	highConf := map[string]int{}
	var highAgreement, mediumAgreement, lowAgreement int

	for _, p := range sample {
		result, err := d.orchestrator.AnalyzeAll(p.ProcessID)
		if err != nil {
			continue
		}
		for name, agentResult := range result.Agents {
			if agentResult.Error != "" || agentResult.Suggestion.Confidence <= 0 {
				continue
			}
			confidences[name] = append(confidences[name], agentResult.Suggestion.Confidence)
			if agentResult.Suggestion.Confidence >= 0.8 {
				highConf[name]++
			}
		}
		switch result.Consensus.AgreementLevel {
		case "high":
			highAgreement++
		case "medium":
			mediumAgreement++
		default:
			lowAgreement++
		}
	}

	perAgent := make(map[string]AgentStats, len(confidences))
	for name, values := range confidences {
		perAgent[name] = AgentStats{
			AvgConfidence:       roundTo(average(values), 1000),
			SuggestionCount:     len(values),
			HighConfidenceCount: highConf[name],
		}
	}

	totalAnalyzed := highAgreement + mediumAgreement + lowAgreement
	highRate := 0.0
	if totalAnalyzed > 0 {
		highRate = float64(highAgreement) / float64(totalAnalyzed)
	}

	return AgentPerformance{
		SampleSize: len(sample),
		Agents:     perAgent,
		Consensus:  ConsensusStats{HighAgreementCount: highAgreement, HighAgreementRate: roundTo(highRate, 1000)},
	}, nil
}
