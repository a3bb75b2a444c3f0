package audit

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"

	"eve.evalgo.org/workflow/kanban"
	"eve.evalgo.org/workflow/repository"
)

// Exporter produces the three neutral structural export shapes of spec
// §4.9: CSV text, an Excel-shaped multi-sheet workbook, and a PDF-shaped
// section list. None of the three render anything — they hand a templating
// or spreadsheet library everything it needs. Grounded on
// _examples/original_source/src/workflow/exporters.py.
type Exporter struct {
	repo     *repository.ProcessRepository
	registry *kanban.Registry
}

// NewExporter wires an Exporter against the process repository and kanban registry.
func NewExporter(repo *repository.ProcessRepository, registry *kanban.Registry) *Exporter {
	return &Exporter{repo: repo, registry: registry}
}

var defaultProcessFields = []string{"process_id", "current_state", "created_at", "updated_at", "transition_count"}

// ExportProcessesCSV writes one header row plus one row per process. When
// fields is empty, defaultProcessFields is used; any field not in that
// default set is looked up in the process's field_values. Grounded on
// CSVExporter.export_processes.
func (e *Exporter) ExportProcessesCSV(kanbanID string, fields []string) (string, error) {
	processes, err := e.repo.ByKanban(kanbanID)
	if err != nil {
		return "", err
	}
	if len(processes) == 0 {
		return "", nil
	}
	if len(fields) == 0 {
		fields = defaultProcessFields
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fields); err != nil {
		return "", err
	}

	for _, p := range processes {
		history, err := e.repo.History(p.ProcessID)
		if err != nil {
			return "", err
		}
		row := make([]string, len(fields))
		for i, f := range fields {
			switch f {
			case "process_id":
				row[i] = p.ProcessID
			case "current_state":
				row[i] = p.CurrentState
			case "created_at":
				row[i] = p.CreatedAt.Format(rfc3339)
			case "updated_at":
				row[i] = p.UpdatedAt.Format(rfc3339)
			case "transition_count":
				row[i] = fmt.Sprintf("%d", len(history))
			default:
				if v, ok := p.FieldValues[f]; ok && v != nil {
					row[i] = fmt.Sprintf("%v", v)
				}
			}
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

// ExportTransitionsCSV writes one header row plus one row per recorded
// state_changed/forced_transition audit entry across every process in the
// kanban. Grounded on CSVExporter.export_transitions.
func (e *Exporter) ExportTransitionsCSV(kanbanID string) (string, error) {
	processes, err := e.repo.ByKanban(kanbanID)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"process_id", "from_state", "to_state", "timestamp", "duration_hours"}); err != nil {
		return "", err
	}

	for _, p := range processes {
		history, err := e.repo.History(p.ProcessID)
		if err != nil {
			return "", err
		}
		for _, entry := range history {
			if entry.Action != repository.ActionStateChanged && entry.Action != repository.ActionForcedTransition {
				continue
			}
			row := []string{
				p.ProcessID, entry.FromState, entry.ToState,
				entry.Timestamp.Format(rfc3339),
				fmt.Sprintf("%g", entry.DurationInPreviousState),
			}
			if err := w.Write(row); err != nil {
				return "", err
			}
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

// Workbook is the structural shape of a multi-sheet Excel export: each
// sheet is a header row followed by data rows, ready for any writer
// (e.g. excelize) to lay out.
type Workbook struct {
	Name   string
	Sheets map[string][][]string
}

// ExportWorkbook builds the {Processes, Transitions, Summary} three-sheet
// workbook. Grounded on ExcelExporter.export_workbook.
func (e *Exporter) ExportWorkbook(kanbanID string) (Workbook, error) {
	processes, err := e.repo.ByKanban(kanbanID)
	if err != nil {
		return Workbook{}, err
	}

	processesSheet := [][]string{{"Process ID", "Current State", "Created At", "Updated At", "Transitions", "Duration (hours)"}}
	transitionsSheet := [][]string{{"Process ID", "From State", "To State", "Timestamp", "Duration (hours)"}}
	statesCount := map[string]int{}

	for _, p := range processes {
		history, err := e.repo.History(p.ProcessID)
		if err != nil {
			return Workbook{}, err
		}
		var duration float64
		if len(history) > 0 {
			duration = history[len(history)-1].Timestamp.Sub(p.CreatedAt).Hours()
		}
		processesSheet = append(processesSheet, []string{
			p.ProcessID, p.CurrentState, p.CreatedAt.Format(rfc3339), p.UpdatedAt.Format(rfc3339),
			fmt.Sprintf("%d", len(history)), fmt.Sprintf("%.1f", duration),
		})
		statesCount[p.CurrentState]++

		for _, entry := range history {
			if entry.Action != repository.ActionStateChanged && entry.Action != repository.ActionForcedTransition {
				continue
			}
			transitionsSheet = append(transitionsSheet, []string{
				p.ProcessID, entry.FromState, entry.ToState, entry.Timestamp.Format(rfc3339),
				fmt.Sprintf("%g", entry.DurationInPreviousState),
			})
		}
	}

	summarySheet := [][]string{{"State", "Process Count"}}
	states := make([]string, 0, len(statesCount))
	for s := range statesCount {
		states = append(states, s)
	}
	sort.Strings(states)
	for _, s := range states {
		summarySheet = append(summarySheet, []string{s, fmt.Sprintf("%d", statesCount[s])})
	}

	return Workbook{
		Name: fmt.Sprintf("%s_export.xlsx", kanbanID),
		Sheets: map[string][][]string{
			"Processes":   processesSheet,
			"Transitions": transitionsSheet,
			"Summary":     summarySheet,
		},
	}, nil
}

// ReportSection is one section of a structural PDF report: a title, a
// content type ("table" | "text" | "metrics") hinting how a renderer should
// lay out Content, and the content itself.
type ReportSection struct {
	Title   string
	Type    string
	Content interface{}
}

// ExportPDFReportSections builds a section list describing a kanban summary
// report, suitable for any PDF templating renderer. Grounded on the PDF
// exporter class in exporters.py (reusing this package's own dashboard
// summary rather than recomputing it).
func (e *Exporter) ExportPDFReportSections(summary Summary) []ReportSection {
	return []ReportSection{
		{Title: fmt.Sprintf("Workflow Report: %s", summary.KanbanID), Type: "text",
			Content: fmt.Sprintf("Generated at %s", summary.GeneratedAt.Format(rfc3339))},
		{Title: "Health", Type: "metrics", Content: summary.Health},
		{Title: "Process Statistics", Type: "metrics", Content: summary.Statistics},
		{Title: "Bottlenecks", Type: "table", Content: summary.Bottlenecks.BottleneckStates},
	}
}

const rfc3339 = "2006-01-02T15:04:05Z07:00"
