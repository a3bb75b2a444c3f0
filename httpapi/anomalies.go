package httpapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// anomalyReport implements GET /anomalies/{k}: the full report combining
// stuck processes, duration outliers, loops and unusual transitions.
func (h *handlers) anomalyReport(c echo.Context) error {
	report, err := h.deps.Detector.GenerateReport(c.Param("k"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

// anomalyStuck implements GET /anomalies/{k}/stuck?threshold_hours=.
func (h *handlers) anomalyStuck(c echo.Context) error {
	threshold := parseFloatQuery(c, "threshold_hours", 48)
	stuck, err := h.deps.Detector.DetectStuck(c.Param("k"), threshold)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stuck)
}

// anomalyLoops implements GET /anomalies/{k}/loops?max_loop_size=.
func (h *handlers) anomalyLoops(c echo.Context) error {
	maxLoopSize := parseIntQuery(c, "max_loop_size", 5)
	loops, err := h.deps.Detector.DetectLoops(c.Param("k"), maxLoopSize)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, loops)
}

// parseFloatQuery reads a float query parameter, falling back to
// defaultValue on absence or parse failure.
func parseFloatQuery(c echo.Context, name string, defaultValue float64) float64 {
	raw := c.QueryParam(name)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return defaultValue
	}
	return v
}
