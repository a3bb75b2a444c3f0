package audit

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve.evalgo.org/workflow/kanban"
)

func newTestExporter(t *testing.T) *Exporter {
	t.Helper()
	repo := newTestRepo(t)
	registry := kanban.NewRegistry(t.TempDir())
	require.NoError(t, registry.Register(samplePedidosKanban(), false))
	return NewExporter(repo, registry)
}

func TestExportProcessesCSVHasHeaderAndOneRowPerProcess(t *testing.T) {
	e := newTestExporter(t)
	walk(t, e.repo, "pedidos", []string{"novo", "em_analise"}, "alice", time.Now().UTC().Add(-time.Hour), nil)
	walk(t, e.repo, "pedidos", []string{"novo"}, "bob", time.Now().UTC(), nil)

	csvText, err := e.ExportProcessesCSV("pedidos", nil)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(csvText, "\n"), "\n")
	assert.Len(t, lines, 3) // header + 2 processes
	assert.Contains(t, lines[0], "process_id")
}

func TestExportProcessesCSVEmptyKanbanReturnsEmptyString(t *testing.T) {
	e := newTestExporter(t)
	csvText, err := e.ExportProcessesCSV("pedidos", nil)
	require.NoError(t, err)
	assert.Empty(t, csvText)
}

func TestExportTransitionsCSVOneRowPerTransition(t *testing.T) {
	e := newTestExporter(t)
	walk(t, e.repo, "pedidos", []string{"novo", "em_analise", "aprovado"}, "alice", time.Now().UTC().Add(-2*time.Hour), nil)

	csvText, err := e.ExportTransitionsCSV("pedidos")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(csvText, "\n"), "\n")
	assert.Len(t, lines, 3) // header + 2 transitions
}

func TestExportWorkbookHasThreeSheets(t *testing.T) {
	e := newTestExporter(t)
	walk(t, e.repo, "pedidos", []string{"novo", "em_analise", "aprovado"}, "alice", time.Now().UTC().Add(-2*time.Hour), nil)

	wb, err := e.ExportWorkbook("pedidos")
	require.NoError(t, err)
	assert.Contains(t, wb.Sheets, "Processes")
	assert.Contains(t, wb.Sheets, "Transitions")
	assert.Contains(t, wb.Sheets, "Summary")
	assert.Len(t, wb.Sheets["Processes"], 2) // header + 1 process
}

func TestExportPDFReportSectionsCoversHealthStatsBottlenecks(t *testing.T) {
	e := newTestExporter(t)
	sections := e.ExportPDFReportSections(Summary{KanbanID: "pedidos", GeneratedAt: time.Now().UTC()})
	require.Len(t, sections, 4)
	assert.Equal(t, "metrics", sections[1].Type)
	assert.Equal(t, "metrics", sections[2].Type)
	assert.Equal(t, "table", sections[3].Type)
}
