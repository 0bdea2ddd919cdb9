package candidate

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

var candidateColumns = []string{
	"id", "rule_id", "entity1_table", "entity1_id", "entity2_table", "entity2_id",
	"confidence_score", "match_details", "auto_merge", "status",
	"created_at", "updated_at", "resolved_at", "resolved_by",
}

// ListFilter narrows candidate listings for the review queue
type ListFilter struct {
	RuleID string
	Status string
	Limit  int
}

// Repository handles duplicate candidate persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new duplicate candidate repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) DB() database.DB {
	return r.db
}

// UpsertBatch inserts candidates, refreshing score and breakdown on conflict
// only while the existing row is still pending. The unique
// (entity1_table, entity1_id, entity2_table, entity2_id) key makes re-running
// an unchanged rule idempotent: resolved rows are never resurrected.
func (r *Repository) UpsertBatch(ctx context.Context, candidates []*models.DuplicateCandidate) error {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.UpsertBatch")
	defer span.End()

	if len(candidates) == 0 {
		return nil
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("duplicate_candidates")
	sb.Cols("id", "rule_id", "entity1_table", "entity1_id", "entity2_table", "entity2_id",
		"confidence_score", "match_details", "auto_merge", "status", "created_at", "updated_at")

	for _, c := range candidates {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		c.CreatedAt = now
		c.UpdatedAt = now
		if c.Status == "" {
			c.Status = models.CandidateStatusPending
		}
		sb.Values(c.ID, c.RuleID, c.Entity1Table, c.Entity1ID, c.Entity2Table, c.Entity2ID,
			c.ConfidenceScore, c.MatchDetails, c.AutoMerge, c.Status, c.CreatedAt, c.UpdatedAt)
	}

	query, args := sb.Build()
	query += ` ON CONFLICT (entity1_table, entity1_id, entity2_table, entity2_id) DO UPDATE SET
		confidence_score = EXCLUDED.confidence_score,
		match_details = EXCLUDED.match_details,
		auto_merge = EXCLUDED.auto_merge,
		rule_id = EXCLUDED.rule_id,
		updated_at = EXCLUDED.updated_at
		WHERE duplicate_candidates.status = 'pending'`

	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to upsert duplicate candidates")
		return errs.Internal("failed to upsert duplicate candidates")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"count": len(candidates)}).Debug("Upserted duplicate candidates")
	return nil
}

// Get retrieves a candidate by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.DuplicateCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(candidateColumns...)
	sb.From("duplicate_candidates")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var candidate models.DuplicateCandidate
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &candidate, query, args...); err != nil {
		if err.Error() == noRows {
			return nil, errs.NotFoundf("candidate %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get candidate")
		return nil, errs.Internal("failed to get candidate")
	}

	return &candidate, nil
}

// GetForUpdate retrieves a candidate and locks its row for the duration of
// the surrounding transaction.
func (r *Repository) GetForUpdate(ctx context.Context, id string) (*models.DuplicateCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.GetForUpdate")
	defer span.End()

	query := `
		SELECT id, rule_id, entity1_table, entity1_id, entity2_table, entity2_id,
			confidence_score, match_details, auto_merge, status,
			created_at, updated_at, resolved_at, resolved_by
		FROM duplicate_candidates
		WHERE id = $1
		FOR UPDATE
	`

	var candidate models.DuplicateCandidate
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &candidate, query, id); err != nil {
		if err.Error() == noRows {
			return nil, errs.NotFoundf("candidate %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to lock candidate")
		return nil, errs.Internal("failed to get candidate")
	}

	return &candidate, nil
}

// GetByPair returns the candidate for an entity pair regardless of comparison
// order, or nil when none exists.
func (r *Repository) GetByPair(ctx context.Context, a, b models.EntityRef) (*models.DuplicateCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.GetByPair")
	defer span.End()

	e1, e2 := models.CanonicalizePair(a, b)

	query := `
		SELECT id, rule_id, entity1_table, entity1_id, entity2_table, entity2_id,
			confidence_score, match_details, auto_merge, status,
			created_at, updated_at, resolved_at, resolved_by
		FROM duplicate_candidates
		WHERE entity1_table = $1 AND entity1_id = $2 AND entity2_table = $3 AND entity2_id = $4
		LIMIT 1
	`

	var candidate models.DuplicateCandidate
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &candidate, query, e1.Table, e1.ID, e2.Table, e2.ID); err != nil {
		if err.Error() == noRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get candidate by pair")
		return nil, errs.Internal("failed to get candidate")
	}

	return &candidate, nil
}

// List retrieves candidates for review, sorted by confidence
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.DuplicateCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.List")
	defer span.End()

	limit := filter.Limit
	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(candidateColumns...)
	sb.From("duplicate_candidates")

	var where []string
	if filter.RuleID != "" {
		where = append(where, sb.Equal("rule_id", filter.RuleID))
	}
	if filter.Status != "" {
		where = append(where, sb.Equal("status", filter.Status))
	}
	if len(where) > 0 {
		sb.Where(where...)
	}
	sb.OrderBy("confidence_score DESC", "created_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var candidates []models.DuplicateCandidate
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list candidates")
		return nil, errs.Internal("failed to list candidates")
	}

	return candidates, nil
}

// ListAutoMergeEligible returns pending candidates flagged for automatic merge
// under a rule.
func (r *Repository) ListAutoMergeEligible(ctx context.Context, ruleID string, limit int) ([]models.DuplicateCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.ListAutoMergeEligible")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(candidateColumns...)
	sb.From("duplicate_candidates")
	sb.Where(
		sb.Equal("rule_id", ruleID),
		sb.Equal("auto_merge", true),
		sb.Equal("status", models.CandidateStatusPending),
	)
	sb.OrderBy("confidence_score DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var candidates []models.DuplicateCandidate
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list auto-merge candidates")
		return nil, errs.Internal("failed to list auto-merge candidates")
	}

	return candidates, nil
}

// UpdateStatus transitions a candidate and records who resolved it
func (r *Repository) UpdateStatus(ctx context.Context, id string, status string, resolvedBy *string) error {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.UpdateStatus")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("duplicate_candidates")

	assignments := []string{
		sb.Assign("status", status),
		sb.Assign("updated_at", now),
	}
	if status == models.CandidateStatusPending {
		// reopened candidates lose their resolution metadata
		assignments = append(assignments, sb.Assign("resolved_at", nil), sb.Assign("resolved_by", nil))
	} else {
		assignments = append(assignments, sb.Assign("resolved_at", now), sb.Assign("resolved_by", resolvedBy))
	}
	sb.Set(assignments...)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update candidate status")
		return errs.Internal("failed to update candidate status")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errs.NotFoundf("candidate %s not found", id)
	}

	return nil
}

// CountByStatus returns how many candidates a rule currently has in each
// status, used for run counter reporting.
func (r *Repository) CountByStatus(ctx context.Context, ruleID string) (map[string]int, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.CountByStatus")
	defer span.End()

	query := `
		SELECT status, COUNT(*) AS count
		FROM duplicate_candidates
		WHERE rule_id = $1
		GROUP BY status
	`

	rows, err := database.FromContext(ctx, r.db).QueryxContext(ctx, query, ruleID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count candidates by status")
		return nil, errs.Internal("failed to count candidates")
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errs.Internal("failed to scan candidate counts")
		}
		counts[status] = count
	}

	return counts, nil
}
