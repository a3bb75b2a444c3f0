package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"eve.evalgo.org/workflow/kanban"
)

// listKanbans implements GET /kanbans.
func (h *handlers) listKanbans(c echo.Context) error {
	return c.JSON(http.StatusOK, h.deps.Registry.All())
}

// getKanban implements GET /kanbans/{id}.
func (h *handlers) getKanban(c echo.Context) error {
	k, ok := h.deps.Registry.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "kanban not found")
	}
	return c.JSON(http.StatusOK, k)
}

// createOrUpdateKanban implements POST /kanbans: register (and persist to
// disk) a new or replacement kanban definition.
func (h *handlers) createOrUpdateKanban(c echo.Context) error {
	var k kanban.Kanban
	if err := c.Bind(&k); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid kanban body")
	}
	if err := h.deps.Registry.Register(k, true); err != nil {
		if errors.Is(err, kanban.ErrInvalidDefinition) || errors.Is(err, kanban.ErrDuplicateState) || errors.Is(err, kanban.ErrUnknownStateReference) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, k)
}

// validateKanban implements POST /kanbans/{id}/validate: re-run the
// structural validation pass against the request body without registering
// it, so a caller can check a draft before submitting it.
func (h *handlers) validateKanban(c echo.Context) error {
	var k kanban.Kanban
	if err := c.Bind(&k); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid kanban body")
	}
	if k.ID == "" {
		k.ID = c.Param("id")
	}
	if err := kanban.Validate(k, "validate request"); err != nil {
		return c.JSON(http.StatusOK, map[string]interface{}{"valid": false, "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"valid": true})
}
