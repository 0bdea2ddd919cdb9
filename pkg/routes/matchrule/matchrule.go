package matchrule

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/evanramirez88/resolve/internal/repositories/matchrule"
	"github.com/evanramirez88/resolve/pkg/database"
	"github.com/evanramirez88/resolve/pkg/models"
)

var validate = validator.New()

// Register registers match rule routes
func Register(g *echo.Group) {
	g.GET("", ListMatchRules)
	g.GET("/:id", GetMatchRule)
	g.POST("", CreateMatchRule)
	g.PUT("/:id", UpdateMatchRule)
	g.DELETE("/:id", DeleteMatchRule)
}

// ListMatchRules lists match rules
func ListMatchRules(c echo.Context) error {
	ctx := c.Request().Context()

	activeOnly := c.QueryParam("active") == "true"

	ctx, repo, err := ectoinject.GetContext[*matchrule.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	rules, err := repo.List(ctx, activeOnly)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, rules)
}

// GetMatchRule gets a match rule by ID
func GetMatchRule(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*matchrule.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	rule, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, rule)
}

// CreateMatchRule creates a new match rule
func CreateMatchRule(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.CreateMatchRuleRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid request: %s", err.Error())
	}

	rule := &models.MatchRule{
		Name:               req.Name,
		SourceTable:        req.SourceTable,
		TargetTable:        req.TargetTable,
		Fields:             database.NewJSONB(req.Fields),
		Options:            database.NewJSONB(req.Options),
		IgnoreThreshold:    req.IgnoreThreshold,
		ReviewThreshold:    req.ReviewThreshold,
		AutoMergeThreshold: req.AutoMergeThreshold,
		IsActive:           req.IsActive,
	}
	if err := rule.Validate(); err != nil {
		return err
	}

	ctx, repo, err := ectoinject.GetContext[*matchrule.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	created, err := repo.Create(ctx, rule)
	if err != nil {
		return err
	}

	ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
	if logger != nil {
		logger.WithContext(ctx).WithFields(map[string]any{"id": created.ID}).Info("Created match rule")
	}

	return c.JSON(http.StatusCreated, created)
}

// UpdateMatchRule updates a match rule
func UpdateMatchRule(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")

	var req models.UpdateMatchRuleRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, repo, err := ectoinject.GetContext[*matchrule.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	rule, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if req.Name != nil {
		rule.Name = *req.Name
	}
	if len(req.Fields) > 0 {
		rule.Fields = database.NewJSONB(req.Fields)
	}
	if req.Options != nil {
		rule.Options = database.NewJSONB(*req.Options)
	}
	if req.IgnoreThreshold != nil {
		rule.IgnoreThreshold = *req.IgnoreThreshold
	}
	if req.ReviewThreshold != nil {
		rule.ReviewThreshold = *req.ReviewThreshold
	}
	if req.AutoMergeThreshold != nil {
		rule.AutoMergeThreshold = *req.AutoMergeThreshold
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	if err := rule.Validate(); err != nil {
		return err
	}

	updated, err := repo.Update(ctx, rule)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, updated)
}

// DeleteMatchRule soft-deletes a match rule. Rules with unresolved candidates
// cannot be deleted.
func DeleteMatchRule(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*matchrule.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := repo.Delete(ctx, id); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}
