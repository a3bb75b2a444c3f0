package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"eve.evalgo.org/workflow/analysis"
)

// patterns implements GET /patterns/{k}?min_support=.
func (h *handlers) patterns(c echo.Context) error {
	minSupport := parseFloatQuery(c, "min_support", 0.1)
	patterns, err := h.deps.Analyzer.FrequentPatterns(c.Param("k"), minSupport)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, patterns)
}

// patternsClassified implements GET /patterns/{k}/classified.
func (h *handlers) patternsClassified(c echo.Context) error {
	minSupport := parseFloatQuery(c, "min_support", 0.1)
	patterns, err := h.deps.Analyzer.FrequentPatterns(c.Param("k"), minSupport)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	commonThresh := parseFloatQuery(c, "common_threshold", 0.3)
	exceptionalThresh := parseFloatQuery(c, "exceptional_threshold", 0.05)
	classified := analysis.ClassifyPatterns(patterns, commonThresh, exceptionalThresh)
	return c.JSON(http.StatusOK, classified)
}

// patternsMatrix implements GET /patterns/{k}/matrix.
func (h *handlers) patternsMatrix(c echo.Context) error {
	matrix, err := h.deps.Analyzer.TransitionMatrix(c.Param("k"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, matrix)
}

// patternsDurations implements GET /patterns/{k}/durations.
func (h *handlers) patternsDurations(c echo.Context) error {
	durations, err := h.deps.Analyzer.StateDurations(c.Param("k"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, durations)
}

// patternsSimilar implements GET /patterns/{k}/similar/{pid}?limit=.
func (h *handlers) patternsSimilar(c echo.Context) error {
	limit := parseIntQuery(c, "limit", 5)
	similar, err := h.deps.Analyzer.SimilarProcesses(c.Param("pid"), c.Param("k"), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, similar)
}
