// Package transition implements the kanban transition engine (C6): the
// warn-not-block contract that moves a process from one state to another,
// evaluates prerequisites along the way, and drives timeout/auto-transition
// cascades. Grounded on
// _examples/original_source/src/workflow/{engine/transition_handler.py,auto_transition_engine.py}.
package transition

import (
	"errors"
	"fmt"
	"time"

	"eve.evalgo.org/workflow/kanban"
	"eve.evalgo.org/workflow/prerequisite"
	"eve.evalgo.org/workflow/repository"
)

// Classification is the outcome of checking a (from, to) pair against a
// kanban's blocked/warned lists.
type Classification int

const (
	Permitted Classification = iota
	Warned
	Blocked
)

// ErrTargetStateUnknown is returned when the requested target state isn't
// declared on the process's kanban.
var ErrTargetStateUnknown = errors.New("transition: target state not declared on kanban")

// ErrJustificationRequired is returned when a warned transition that demands
// justification is attempted without one.
var ErrJustificationRequired = errors.New("transition: justification required for this transition")

// TransitionBlockedError reports that (from, to) appears in the kanban's
// blocked_transitions — the only kind of transition the engine refuses on
// its own, absent a force override.
type TransitionBlockedError struct {
	From, To string
	Reason   string
}

func (e *TransitionBlockedError) Error() string {
	return fmt.Sprintf("transition: %s -> %s is blocked: %s", e.From, e.To, e.Reason)
}

// Result reports what executing a transition actually did.
type Result struct {
	Process              repository.Process
	Classification       Classification
	Warnings             []string
	PrerequisiteResults  []prerequisite.Result
	PrerequisitesMet     bool
	WasAnomaly           bool
	DurationInPrevState  float64
}

// Engine wires the kanban registry, process repository and prerequisite
// checker together to execute transitions.
type Engine struct {
	registry *kanban.Registry
	repo     *repository.ProcessRepository
	checker  *prerequisite.Checker
}

// NewEngine builds an Engine.
func NewEngine(registry *kanban.Registry, repo *repository.ProcessRepository, checker *prerequisite.Checker) *Engine {
	return &Engine{registry: registry, repo: repo, checker: checker}
}

// Classify implements the warn-not-block contract: blocked transitions are
// refused, warned transitions are permitted with a message, anything else is
// a plain permitted move.
func Classify(k kanban.Kanban, from, to string) (Classification, string) {
	if reason, ok := kanban.BlockedReason(k, from, to); ok {
		return Blocked, reason
	}
	if w, ok := kanban.WarnedTransitionFor(k, from, to); ok {
		return Warned, w.Message
	}
	return Permitted, ""
}

// Execute moves a process to targetState. Blocked transitions are rejected;
// a warned transition that requires justification is rejected when none is
// given; everything else proceeds, surfacing unmet prerequisites and warned
// messages as warnings rather than failing on them.
func (e *Engine) Execute(processID, targetState string, actor repository.ActorType, user, justification string) (Result, error) {
	return e.execute(processID, targetState, actor, user, justification, false)
}

// ForceExecute is the manager-override path: it is the one transition kind
// that may cross a blocked_transitions entry. It always records
// type=manual, requires a non-empty justification, and marks
// audit.metadata.forced=true. Unmet prerequisites and warned-transition
// messages still only produce warnings, exactly as in Execute.
func (e *Engine) ForceExecute(processID, targetState, user, justification string) (Result, error) {
	if justification == "" {
		return Result{}, ErrJustificationRequired
	}
	return e.execute(processID, targetState, repository.ActorManual, user, justification, true)
}

func (e *Engine) execute(processID, targetState string, actor repository.ActorType, user, justification string, forced bool) (Result, error) {
	p, err := e.repo.GetByID(processID)
	if err != nil {
		return Result{}, err
	}
	k, ok := e.registry.Get(p.KanbanID)
	if !ok {
		return Result{}, fmt.Errorf("transition: kanban %q not registered", p.KanbanID)
	}
	if _, ok := k.StateByID(targetState); !ok {
		return Result{}, ErrTargetStateUnknown
	}

	class, reason := Classify(k, p.CurrentState, targetState)
	if class == Blocked && !forced {
		return Result{}, &TransitionBlockedError{From: p.CurrentState, To: targetState, Reason: reason}
	}
	var warnings []string
	if class == Warned {
		if w, _ := kanban.WarnedTransitionFor(k, p.CurrentState, targetState); w.RequireJustification && justification == "" {
			return Result{}, ErrJustificationRequired
		}
		warnings = append(warnings, reason)
	}
	if class == Blocked && forced {
		warnings = append(warnings, fmt.Sprintf("forced past blocked transition: %s", reason))
	}

	var prereqResults []prerequisite.Result
	if t, ok := kanban.Recommended(k, p.CurrentState, targetState); ok && len(t.Prerequisites) > 0 {
		lastTransitionAt, err := e.lastTransitionTime(processID, p)
		if err != nil {
			return Result{}, err
		}
		prereqResults = e.checker.CheckAll(t.Prerequisites, prerequisite.Context{
			Process:          p,
			Kanban:           k,
			LastTransitionAt: lastTransitionAt,
		})
		for _, r := range prerequisite.Unsatisfied(prereqResults) {
			warnings = append(warnings, r.Message)
		}
	}
	prerequisitesMet := prerequisite.AllSatisfied(prereqResults)
	wasAnomaly := class == Warned || !prerequisitesMet

	now := time.Now().UTC()
	duration, err := e.durationInCurrentState(processID, p, now)
	if err != nil {
		return Result{}, err
	}

	updated, err := e.repo.UpdateState(processID, targetState, actor, user, justification, duration, prerequisitesMet, forced, now,
		map[string]interface{}{"was_anomaly": wasAnomaly, "warnings": warnings})
	if err != nil {
		return Result{}, err
	}

	return Result{
		Process:             updated,
		Classification:      class,
		Warnings:            warnings,
		PrerequisiteResults: prereqResults,
		PrerequisitesMet:    prerequisitesMet,
		WasAnomaly:          wasAnomaly,
		DurationInPrevState: duration,
	}, nil
}

// lastTransitionTime returns the timestamp of the most recent state_changed
// (or forced_transition) audit entry, or the zero time if the process has
// never changed state — letting the prerequisite checker fall back to
// Process.CreatedAt.
func (e *Engine) lastTransitionTime(processID string, p repository.Process) (time.Time, error) {
	history, err := e.repo.History(processID)
	if err != nil {
		return time.Time{}, err
	}
	for i := len(history) - 1; i >= 0; i-- {
		entry := history[i]
		if entry.Action == repository.ActionStateChanged || entry.Action == repository.ActionForcedTransition {
			return entry.Timestamp, nil
		}
	}
	return p.CreatedAt, nil
}

func (e *Engine) durationInCurrentState(processID string, p repository.Process, now time.Time) (float64, error) {
	since, err := e.lastTransitionTime(processID, p)
	if err != nil {
		return 0, err
	}
	if since.IsZero() {
		return 0, nil
	}
	return now.Sub(since).Hours(), nil
}

// AutoTransitionResult describes a pending automatic move: either a
// state-timeout escape hatch or a fully-satisfied auto_transition_to.
type AutoTransitionResult struct {
	To     string
	Reason string // "timeout" or "auto_transition"
}

// CheckAutoTransition inspects a process's current state for an automatic
// move: a configured timeout_hours that has elapsed takes priority over a
// plain auto_transition_to, which only fires once its prerequisites (from
// the matching recommended transition) are all satisfied.
func (e *Engine) CheckAutoTransition(p repository.Process) (*AutoTransitionResult, error) {
	k, ok := e.registry.Get(p.KanbanID)
	if !ok {
		return nil, fmt.Errorf("transition: kanban %q not registered", p.KanbanID)
	}
	state, ok := k.StateByID(p.CurrentState)
	if !ok || state.AutoTransitionTo == "" {
		return nil, nil
	}

	since, err := e.lastTransitionTime(p.ProcessID, p)
	if err != nil {
		return nil, err
	}
	if since.IsZero() {
		since = p.CreatedAt
	}
	elapsedHours := time.Since(since).Hours()

	if state.TimeoutHours != nil && elapsedHours >= *state.TimeoutHours {
		return &AutoTransitionResult{To: state.AutoTransitionTo, Reason: "timeout"}, nil
	}

	t, ok := kanban.Recommended(k, p.CurrentState, state.AutoTransitionTo)
	if !ok {
		return nil, nil
	}
	results := e.checker.CheckAll(t.Prerequisites, prerequisite.Context{
		Process:          p,
		Kanban:           k,
		LastTransitionAt: since,
	})
	if !prerequisite.AllSatisfied(results) {
		return nil, nil
	}
	return &AutoTransitionResult{To: state.AutoTransitionTo, Reason: "auto_transition"}, nil
}

// CascadeResult tallies one process's cascade run.
type CascadeResult struct {
	Steps      []Result
	StoppedBy  string // "no_transition", "max_depth", "failure"
	FinalError error
}

const defaultMaxDepth = 10

// Cascade repeatedly checks for and executes automatic transitions on a
// single process, stopping when nothing fires, when maxDepth (default 10)
// is reached, or when a transition fails. Every step is logged as
// type=system/user="auto_transition_engine", distinguishing it from both
// manual and forced moves.
func (e *Engine) Cascade(processID string, maxDepth int) (CascadeResult, error) {
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	result := CascadeResult{StoppedBy: "no_transition"}

	for i := 0; i < maxDepth; i++ {
		p, err := e.repo.GetByID(processID)
		if err != nil {
			return result, err
		}
		auto, err := e.CheckAutoTransition(p)
		if err != nil {
			return result, err
		}
		if auto == nil {
			result.StoppedBy = "no_transition"
			return result, nil
		}

		step, err := e.execute(processID, auto.To, repository.ActorSystem, "auto_transition_engine", auto.Reason, false)
		if err != nil {
			result.StoppedBy = "failure"
			result.FinalError = err
			return result, nil
		}
		result.Steps = append(result.Steps, step)
	}
	result.StoppedBy = "max_depth"
	return result, nil
}

// ProcessAllResult tallies a registry-wide auto-transition sweep, surfacing
// the four counts spec §4.5 documents (ProcessesChecked, TransitionsExecuted,
// CascadesExecuted, Errors) alongside the per-process detail used to derive
// them.
type ProcessAllResult struct {
	Cascaded map[string]CascadeResult
	Errors   map[string]error

	ProcessesChecked    int
	TransitionsExecuted int
	CascadesExecuted    int
}

// ProcessAll sweeps every process (optionally restricted to one kanban) and
// cascades each one independently; a failure on one process never aborts
// the sweep for the others.
func (e *Engine) ProcessAll(kanbanID *string) (ProcessAllResult, error) {
	var processes []repository.Process
	var err error
	if kanbanID != nil {
		processes, err = e.repo.ByKanban(*kanbanID)
	} else {
		processes, err = e.repo.All()
	}
	if err != nil {
		return ProcessAllResult{}, err
	}

	out := ProcessAllResult{
		Cascaded: make(map[string]CascadeResult, len(processes)),
		Errors:   make(map[string]error),
	}
	for _, p := range processes {
		out.ProcessesChecked++
		cascade, err := e.Cascade(p.ProcessID, defaultMaxDepth)
		if err != nil {
			out.Errors[p.ProcessID] = err
			continue
		}
		out.Cascaded[p.ProcessID] = cascade
		if len(cascade.Steps) > 0 {
			out.CascadesExecuted++
			out.TransitionsExecuted += len(cascade.Steps)
		}
	}
	return out, nil
}
