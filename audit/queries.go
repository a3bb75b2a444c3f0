// Package audit implements read-only projections over C3's audit table
// (queries, compliance reporting), dashboards composing C7/C8 results, and
// neutral structural exporters. Grounded on
// _examples/original_source/src/workflow/audit_trail.py and
// workflow_dashboard.py; unlike the Python original, this package never
// keeps its own in-memory log — repository.ProcessRepository's audit table
// (C3) is already the durable log, so every query here is a projection over
// it rather than a second source of truth.
package audit

import (
	"sort"
	"time"

	"eve.evalgo.org/workflow/repository"
)

// Trail answers audit queries over the process repository's audit table.
type Trail struct {
	repo *repository.ProcessRepository
}

// NewTrail wires a Trail against the process repository (C3).
func NewTrail(repo *repository.ProcessRepository) *Trail {
	return &Trail{repo: repo}
}

// ProcessTrail returns one process's complete audit history, oldest first —
// repository.History already keeps append order, so this is a direct pass
// through. Grounded on get_process_audit_trail.
func (t *Trail) ProcessTrail(processID string) ([]repository.AuditEntry, error) {
	return t.repo.History(processID)
}

// KanbanTrail returns every audit entry belonging to a kanban, oldest first.
// Grounded on get_kanban_audit_trail.
func (t *Trail) KanbanTrail(kanbanID string) ([]repository.AuditEntry, error) {
	all, err := t.repo.AllAudit()
	if err != nil {
		return nil, err
	}
	out := make([]repository.AuditEntry, 0, len(all))
	for _, e := range all {
		if e.KanbanID == kanbanID {
			out = append(out, e)
		}
	}
	sortByTimestamp(out, false)
	return out, nil
}

// UserActivity returns a user's audit entries, most recent first, optionally
// bounded by [start, end]. Either bound may be zero to mean unbounded.
// Grounded on get_user_activity.
func (t *Trail) UserActivity(user string, start, end time.Time) ([]repository.AuditEntry, error) {
	all, err := t.repo.AllAudit()
	if err != nil {
		return nil, err
	}
	out := make([]repository.AuditEntry, 0)
	for _, e := range all {
		if e.User != user {
			continue
		}
		if !start.IsZero() && e.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && e.Timestamp.After(end) {
			continue
		}
		out = append(out, e)
	}
	sortByTimestamp(out, true)
	return out, nil
}

// RecentActivity returns up to limit audit entries across every entity, most
// recent first. Grounded on get_recent_activity.
func (t *Trail) RecentActivity(limit int) ([]repository.AuditEntry, error) {
	all, err := t.repo.AllAudit()
	if err != nil {
		return nil, err
	}
	sortByTimestamp(all, true)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// ForcedTransitions returns forced_transition entries recorded within the
// last `days` days, most recent first. Grounded on get_forced_transitions.
func (t *Trail) ForcedTransitions(days int) ([]repository.AuditEntry, error) {
	all, err := t.repo.AllAudit()
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	out := make([]repository.AuditEntry, 0)
	for _, e := range all {
		if e.Action == repository.ActionForcedTransition && !e.Timestamp.Before(cutoff) {
			out = append(out, e)
		}
	}
	sortByTimestamp(out, true)
	return out, nil
}

// ActivityStatistics summarizes audit volume within the last `days` days.
type ActivityStatistics struct {
	PeriodDays             int
	TotalEvents            int
	EventsByType           map[repository.AuditAction]int
	EventsByUser           map[string]int
	ForcedTransitionsCount int
}

// ActivityStatistics computes event counts by type and by user over a
// trailing window. Grounded on get_activity_statistics.
func (t *Trail) ActivityStatistics(days int) (ActivityStatistics, error) {
	all, err := t.repo.AllAudit()
	if err != nil {
		return ActivityStatistics{}, err
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	byType := map[repository.AuditAction]int{}
	byUser := map[string]int{}
	forced, total := 0, 0
	for _, e := range all {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		total++
		byType[e.Action]++
		byUser[e.User]++
		if e.Action == repository.ActionForcedTransition {
			forced++
		}
	}

	return ActivityStatistics{
		PeriodDays:             days,
		TotalEvents:            total,
		EventsByType:           byType,
		EventsByUser:           byUser,
		ForcedTransitionsCount: forced,
	}, nil
}

// UnusualActivity flags a user whose forced-transition count in the period
// exceeds 2, matching generate_compliance_report's "high_forced_transition_count".
type UnusualActivity struct {
	Type     string
	User     string
	Count    int
	Severity string // medium | high
}

// ComplianceReport summarizes a kanban's transition discipline over a
// trailing window. Grounded on generate_compliance_report.
type ComplianceReport struct {
	KanbanID          string
	ReportDate        time.Time
	PeriodDays        int
	TotalProcesses    int
	TotalTransitions  int
	ForcedTransitions []repository.AuditEntry
	UnusualActivity   []UnusualActivity
	ComplianceScore   float64
}

// ComplianceReport computes a compliance score penalizing a high ratio of
// forced transitions: score = max(0, 1 − 2·forced_ratio), bounded to [0,1].
func (t *Trail) ComplianceReport(kanbanID string, days int) (ComplianceReport, error) {
	entries, err := t.KanbanTrail(kanbanID)
	if err != nil {
		return ComplianceReport{}, err
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	var creations, transitions, forced []repository.AuditEntry
	for _, e := range entries {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		switch e.Action {
		case repository.ActionProcessCreated:
			creations = append(creations, e)
		case repository.ActionStateChanged, repository.ActionForcedTransition:
			transitions = append(transitions, e)
		}
		if e.Action == repository.ActionForcedTransition {
			forced = append(forced, e)
		}
	}

	forcedRatio := 0.0
	if len(transitions) > 0 {
		forcedRatio = float64(len(forced)) / float64(len(transitions))
	}
	score := 1.0 - forcedRatio*2
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	forcedByUser := map[string]int{}
	for _, e := range forced {
		forcedByUser[e.User]++
	}
	users := make([]string, 0, len(forcedByUser))
	for u := range forcedByUser {
		users = append(users, u)
	}
	sort.Strings(users)

	var unusual []UnusualActivity
	for _, u := range users {
		count := forcedByUser[u]
		if count <= 2 {
			continue
		}
		severity := "medium"
		if count > 5 {
			severity = "high"
		}
		unusual = append(unusual, UnusualActivity{
			Type: "high_forced_transition_count", User: u, Count: count, Severity: severity,
		})
	}

	return ComplianceReport{
		KanbanID:          kanbanID,
		ReportDate:        time.Now().UTC(),
		PeriodDays:        days,
		TotalProcesses:    len(creations),
		TotalTransitions:  len(transitions),
		ForcedTransitions: forced,
		UnusualActivity:   unusual,
		ComplianceScore:   roundTo(score, 100),
	}, nil
}

func sortByTimestamp(entries []repository.AuditEntry, reverse bool) {
	sort.SliceStable(entries, func(i, j int) bool {
		if reverse {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
}

func roundTo(v, scale float64) float64 {
	return float64(int64(v*scale+0.5)) / scale
}
