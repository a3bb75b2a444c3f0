package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// kanbanDashboardSummary implements GET /dashboard/{k}: the single
// aggregated view combining health, stats and bottlenecks, matching
// audit.Dashboard.Summary.
func (h *handlers) kanbanDashboardSummary(c echo.Context) error {
	summary, err := h.deps.Dashboard.Summary(c.Param("k"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, summary)
}

// kanbanHealth implements GET /health/{k}.
func (h *handlers) kanbanHealth(c echo.Context) error {
	health, err := h.deps.Dashboard.KanbanHealth(c.Param("k"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, health)
}

// kanbanStats implements GET /stats/{k}.
func (h *handlers) kanbanStats(c echo.Context) error {
	days := parseIntQuery(c, "days", 30)
	stats, err := h.deps.Dashboard.ProcessStats(c.Param("k"), days)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

// kanbanBottlenecks implements GET /bottlenecks/{k}.
func (h *handlers) kanbanBottlenecks(c echo.Context) error {
	bottlenecks, err := h.deps.Dashboard.Bottlenecks(c.Param("k"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, bottlenecks)
}
