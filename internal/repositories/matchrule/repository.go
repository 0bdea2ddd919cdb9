package matchrule

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/evanramirez88/resolve/pkg/database"
	"github.com/evanramirez88/resolve/pkg/errs"
	"github.com/evanramirez88/resolve/pkg/models"
	"github.com/evanramirez88/resolve/pkg/tracing"
)

const noRows = "sql: no rows in result set"

var ruleColumns = []string{
	"id", "name", "source_table", "target_table", "fields", "options",
	"ignore_threshold", "review_threshold", "auto_merge_threshold",
	"is_active", "created_at", "updated_at", "deleted_at",
}

// Repository handles match rule persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new match rule repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) DB() database.DB {
	return r.db
}

// Create persists a new match rule. The rule must already be validated.
func (r *Repository) Create(ctx context.Context, rule *models.MatchRule) (*models.MatchRule, error) {
	ctx, span := tracing.StartSpan(ctx, "matchrule.Repository.Create")
	defer span.End()

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	rule.CreatedAt = time.Now().UTC()
	rule.UpdatedAt = rule.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("match_rules")
	sb.Cols("id", "name", "source_table", "target_table", "fields", "options",
		"ignore_threshold", "review_threshold", "auto_merge_threshold", "is_active", "created_at", "updated_at")
	sb.Values(rule.ID, rule.Name, rule.SourceTable, rule.TargetTable, rule.Fields, rule.Options,
		rule.IgnoreThreshold, rule.ReviewThreshold, rule.AutoMergeThreshold, rule.IsActive, rule.CreatedAt, rule.UpdatedAt)

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"rule_id": rule.ID}).Error("Failed to create match rule")
		return nil, errs.Internal("failed to create match rule")
	}

	return rule, nil
}

// Get retrieves a match rule by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.MatchRule, error) {
	ctx, span := tracing.StartSpan(ctx, "matchrule.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(ruleColumns...)
	sb.From("match_rules")
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var rule models.MatchRule
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &rule, query, args...); err != nil {
		if err.Error() == noRows {
			return nil, errs.NotFoundf("match rule %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get match rule")
		return nil, errs.Internal("failed to get match rule")
	}

	return &rule, nil
}

// List retrieves all match rules, optionally only active ones
func (r *Repository) List(ctx context.Context, activeOnly bool) ([]models.MatchRule, error) {
	ctx, span := tracing.StartSpan(ctx, "matchrule.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(ruleColumns...)
	sb.From("match_rules")
	where := []string{sb.IsNull("deleted_at")}
	if activeOnly {
		where = append(where, sb.Equal("is_active", true))
	}
	sb.Where(where...)
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var rules []models.MatchRule
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &rules, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list match rules")
		return nil, errs.Internal("failed to list match rules")
	}

	return rules, nil
}

// Update persists changes to an existing rule
func (r *Repository) Update(ctx context.Context, rule *models.MatchRule) (*models.MatchRule, error) {
	ctx, span := tracing.StartSpan(ctx, "matchrule.Repository.Update")
	defer span.End()

	rule.UpdatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("match_rules")
	sb.Set(
		sb.Assign("name", rule.Name),
		sb.Assign("fields", rule.Fields),
		sb.Assign("options", rule.Options),
		sb.Assign("ignore_threshold", rule.IgnoreThreshold),
		sb.Assign("review_threshold", rule.ReviewThreshold),
		sb.Assign("auto_merge_threshold", rule.AutoMergeThreshold),
		sb.Assign("is_active", rule.IsActive),
		sb.Assign("updated_at", rule.UpdatedAt),
	)
	sb.Where(
		sb.Equal("id", rule.ID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update match rule")
		return nil, errs.Internal("failed to update match rule")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, errs.NotFoundf("match rule %s not found", rule.ID)
	}

	return rule, nil
}

// Delete soft-deletes a rule. Rules with open candidates cannot be deleted.
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "matchrule.Repository.Delete")
	defer span.End()

	var openCandidates int
	countQuery := `
		SELECT COUNT(*) FROM duplicate_candidates
		WHERE rule_id = $1 AND status IN ($2, $3, $4)
	`
	ex := database.FromContext(ctx, r.db)
	if err := ex.GetContext(ctx, &openCandidates, countQuery, id,
		models.CandidateStatusPending, models.CandidateStatusConfirmed, models.CandidateStatusDeferred); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count open candidates for rule")
		return errs.Internal("failed to delete match rule")
	}
	if openCandidates > 0 {
		return errs.InvalidRulef("match rule %s has %d open candidates and cannot be deleted", id, openCandidates)
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("match_rules")
	sb.Set(
		sb.Assign("deleted_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	result, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete match rule")
		return errs.Internal("failed to delete match rule")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errs.NotFoundf("match rule %s not found", id)
	}

	return nil
}
