package candidate

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/evanramirez88/resolve/internal/repositories/candidate"
	"github.com/evanramirez88/resolve/pkg/models"
	"github.com/evanramirez88/resolve/pkg/reqcontext"
)

var validate = validator.New()

// Register registers duplicate candidate routes
func Register(g *echo.Group) {
	g.GET("", ListCandidates)
	g.GET("/:id", GetCandidate)
	g.POST("/:id/review", ReviewCandidate)
}

// ListCandidates lists candidates for the review queue, highest confidence
// first.
func ListCandidates(c echo.Context) error {
	ctx := c.Request().Context()

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	filter := candidate.ListFilter{
		RuleID: c.QueryParam("rule_id"),
		Status: c.QueryParam("status"),
		Limit:  limit,
	}

	ctx, repo, err := ectoinject.GetContext[*candidate.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	candidates, err := repo.List(ctx, filter)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, candidates)
}

// GetCandidate gets a candidate by ID
func GetCandidate(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*candidate.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	cand, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, cand)
}

// ReviewCandidate applies an operator decision (confirm, reject, defer,
// reopen) to a candidate. Merging happens through the merge routes, not here.
func ReviewCandidate(c echo.Context) error {
	ctx := c.Request().Context()
	actor := reqcontext.GetActor(ctx)

	id := c.Param("id")

	var req models.ReviewCandidateRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid request: %s", err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*candidate.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	cand, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	next, err := models.ReviewTransition(cand.Status, req.Action)
	if err != nil {
		return err
	}

	var resolvedBy *string
	if actor != "" {
		resolvedBy = &actor
	}
	if err := repo.UpdateStatus(ctx, id, next, resolvedBy); err != nil {
		return err
	}

	ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
	if logger != nil {
		logger.WithContext(ctx).WithFields(map[string]any{
			"candidate_id": id,
			"action":       req.Action,
			"status":       next,
			"actor":        actor,
		}).Info("Reviewed candidate")
	}

	cand.Status = next
	return c.JSON(http.StatusOK, cand)
}
