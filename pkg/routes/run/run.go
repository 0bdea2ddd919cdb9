package run

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/evanramirez88/resolve/pkg/models"
	"github.com/evanramirez88/resolve/pkg/runner"
)

var validate = validator.New()

// Register registers deduplication run routes
func Register(g *echo.Group) {
	g.POST("", TriggerRun)
	g.GET("", ListRuns)
	g.GET("/:id", GetRun)
	g.POST("/:id/cancel", CancelRun)
}

// TriggerRun starts a run over the requested rules and returns immediately
// with the run in the running state.
func TriggerRun(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.TriggerRunRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "rule_ids is required")
	}

	ctx, orch, err := ectoinject.GetContext[*runner.Orchestrator](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	run, err := orch.Trigger(ctx, req.RuleIDs)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, run)
}

// ListRuns lists recent runs
func ListRuns(c echo.Context) error {
	ctx := c.Request().Context()

	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	ctx, orch, err := ectoinject.GetContext[*runner.Orchestrator](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	runs, err := orch.List(ctx, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, runs)
}

// GetRun gets a run with its live counters
func GetRun(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")

	ctx, orch, err := ectoinject.GetContext[*runner.Orchestrator](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	run, err := orch.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, run)
}

// CancelRun flags a running run for cancellation. Work committed so far is
// kept; the run stops at the next chunk boundary.
func CancelRun(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")

	ctx, orch, err := ectoinject.GetContext[*runner.Orchestrator](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := orch.Cancel(ctx, id); err != nil {
		return err
	}

	run, err := orch.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, run)
}
