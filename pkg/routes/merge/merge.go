package merge

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/evanramirez88/resolve/internal/repositories/mergerecord"
	"github.com/evanramirez88/resolve/pkg/merging"
	"github.com/evanramirez88/resolve/pkg/models"
	"github.com/evanramirez88/resolve/pkg/reqcontext"
)

var validate = validator.New()

// Register registers merge routes
func Register(g *echo.Group) {
	g.POST("", ApplyMerge)
	g.GET("/:id", GetMerge)
	g.GET("", ListMergesByCandidate)
	g.POST("/:id/rollback", RollbackMerge)
}

// ApplyMergeRequest consolidates a candidate's two records
type ApplyMergeRequest struct {
	CandidateID string `json:"candidate_id" validate:"required"`
}

// ApplyMerge merges the records of a pending or confirmed candidate into a
// canonical contact.
func ApplyMerge(c echo.Context) error {
	ctx := c.Request().Context()
	actor := reqcontext.GetActor(ctx)
	if actor == "" {
		actor = models.SystemActor
	}

	var req ApplyMergeRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid request: %s", err.Error())
	}

	ctx, engine, err := ectoinject.GetContext[*merging.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	record, err := engine.Merge(ctx, req.CandidateID, actor)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, record)
}

// GetMerge gets a merge record by ID
func GetMerge(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*mergerecord.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	record, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, record)
}

// ListMergesByCandidate lists the merge history of a candidate
func ListMergesByCandidate(c echo.Context) error {
	ctx := c.Request().Context()

	candidateID := c.QueryParam("candidate_id")
	if candidateID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "candidate_id query parameter is required")
	}

	ctx, repo, err := ectoinject.GetContext[*mergerecord.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	records, err := repo.ListByCandidate(ctx, candidateID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, records)
}

// RollbackMerge reverses an active merge
func RollbackMerge(c echo.Context) error {
	ctx := c.Request().Context()
	actor := reqcontext.GetActor(ctx)
	if actor == "" {
		actor = models.SystemActor
	}

	id := c.Param("id")

	var req models.RollbackMergeRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "reason is required")
	}

	ctx, engine, err := ectoinject.GetContext[*merging.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	record, err := engine.Rollback(ctx, id, actor, req.Reason)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, record)
}
