package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// exportCSV implements GET /export/{k}/csv: the processes CSV text, or the
// transitions CSV text when ?section=transitions, returned as text/csv.
func (h *handlers) exportCSV(c echo.Context) error {
	processesCSV, err := h.deps.Exporter.ExportProcessesCSV(c.Param("k"), nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if c.QueryParam("section") == "transitions" {
		transitionsCSV, err := h.deps.Exporter.ExportTransitionsCSV(c.Param("k"))
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.Blob(http.StatusOK, "text/csv", []byte(transitionsCSV))
	}
	return c.Blob(http.StatusOK, "text/csv", []byte(processesCSV))
}

// exportExcel implements GET /export/{k}/excel. The Excel library itself is
// left to the HTTP caller (spec 4.9: these are neutral export shapes, not
// rendered artefacts) — this endpoint hands back the sheet data as JSON.
func (h *handlers) exportExcel(c echo.Context) error {
	workbook, err := h.deps.Exporter.ExportWorkbook(c.Param("k"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, workbook)
}

// exportPDF implements GET /export/{k}/pdf, returning report sections for a
// PDF templating layer to render.
func (h *handlers) exportPDF(c echo.Context) error {
	summary, err := h.deps.Dashboard.Summary(c.Param("k"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	sections := h.deps.Exporter.ExportPDFReportSections(summary)
	return c.JSON(http.StatusOK, sections)
}
