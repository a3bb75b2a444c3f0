package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"eve.evalgo.org/workflow/repository"
	"eve.evalgo.org/workflow/transition"
)

// listProcesses implements GET /processes?kanban_id=.
func (h *handlers) listProcesses(c echo.Context) error {
	kanbanID := c.QueryParam("kanban_id")
	if kanbanID == "" {
		all, err := h.deps.Repo.All()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, all)
	}
	processes, err := h.deps.Repo.ByKanban(kanbanID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, processes)
}

// getProcess implements GET /processes/{id}.
func (h *handlers) getProcess(c echo.Context) error {
	p, err := h.deps.Repo.GetByID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

// transitionRequest is the POST /process/{id}/transition body of spec 6.4.
type transitionRequest struct {
	ToState       string `json:"to_state"`
	Type          string `json:"type"` // "forced" forces past a blocked transition
	User          string `json:"user"`
	Justification string `json:"justification,omitempty"`
}

// transitionProcess implements POST /process/{id}/transition, executing
// (or force-executing, when type="forced") the transition and firing a
// state_changed notification (C11) on success.
func (h *handlers) transitionProcess(c echo.Context) error {
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid transition request")
	}
	if req.ToState == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "to_state is required")
	}
	if req.User == "" {
		req.User = ActorFromContext(c)
	}

	var result transition.Result
	var err error
	if req.Type == "forced" {
		result, err = h.deps.Engine.ForceExecute(c.Param("id"), req.ToState, req.User, req.Justification)
	} else {
		result, err = h.deps.Engine.Execute(c.Param("id"), req.ToState, repository.ActorManual, req.User, req.Justification)
	}
	if err != nil {
		return transitionError(err)
	}

	if h.deps.Notifier != nil {
		if k, ok := h.deps.Registry.Get(result.Process.KanbanID); ok {
			h.deps.Notifier.Notify("state_changed", result.Process, k, map[string]interface{}{
				"warnings": result.Warnings,
			})
		}
	}

	return c.JSON(http.StatusOK, result)
}

// transitionError maps the transition engine's sentinel errors to HTTP
// status codes per spec section 7's error-kind taxonomy: policy rejections
// (TransitionBlockedError) are 409, validation errors are 400, everything
// else is an infrastructure error surfaced as 500.
func transitionError(err error) error {
	var blocked *transition.TransitionBlockedError
	if errors.As(err, &blocked) {
		return echo.NewHTTPError(http.StatusConflict, blocked.Error())
	}
	if errors.Is(err, transition.ErrTargetStateUnknown) || errors.Is(err, transition.ErrJustificationRequired) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// suggestTransition implements GET /processes/{id}/suggest?agent=.
func (h *handlers) suggestTransition(c echo.Context) error {
	result, err := h.deps.Orchestrator.AnalyzeWithAgent(c.Param("id"), c.QueryParam("agent"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

// suggestTransitionAll implements GET /processes/{id}/suggest/all.
func (h *handlers) suggestTransitionAll(c echo.Context) error {
	result, err := h.deps.Orchestrator.AnalyzeAll(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

// validateTransition implements GET /processes/{id}/validate/{target}.
func (h *handlers) validateTransition(c echo.Context) error {
	result, err := h.deps.Orchestrator.ValidateWithAll(c.Param("id"), c.Param("target"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

// parseIntQuery reads an integer query parameter, falling back to
// defaultValue on absence or parse failure.
func parseIntQuery(c echo.Context, name string, defaultValue int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return v
}
