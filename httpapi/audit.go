package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// auditProcessTrail implements GET /audit/process/{id}.
func (h *handlers) auditProcessTrail(c echo.Context) error {
	trail, err := h.deps.Trail.ProcessTrail(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, trail)
}

// auditKanbanTrail implements GET /audit/kanban/{k}.
func (h *handlers) auditKanbanTrail(c echo.Context) error {
	trail, err := h.deps.Trail.KanbanTrail(c.Param("k"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, trail)
}

// auditRecentActivity implements GET /audit/recent?limit=.
func (h *handlers) auditRecentActivity(c echo.Context) error {
	limit := parseIntQuery(c, "limit", 50)
	recent, err := h.deps.Trail.RecentActivity(limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, recent)
}

// auditForcedTransitions implements GET /audit/forced?days=.
func (h *handlers) auditForcedTransitions(c echo.Context) error {
	days := parseIntQuery(c, "days", 30)
	forced, err := h.deps.Trail.ForcedTransitions(days)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, forced)
}

// auditActivityStatistics implements GET /audit/stats?days=.
func (h *handlers) auditActivityStatistics(c echo.Context) error {
	days := parseIntQuery(c, "days", 30)
	stats, err := h.deps.Trail.ActivityStatistics(days)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

// auditComplianceReport implements GET /audit/compliance/{k}?days=.
func (h *handlers) auditComplianceReport(c echo.Context) error {
	days := parseIntQuery(c, "days", 30)
	report, err := h.deps.Trail.ComplianceReport(c.Param("k"), days)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}
