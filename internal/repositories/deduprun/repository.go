package deduprun

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

var runColumns = []string{
	"id", "rule_ids", "status", "records_scanned", "candidates_found",
	"auto_merged", "pending_review", "cancel_requested", "error_message",
	"started_at", "completed_at", "created_at", "updated_at",
}

// Repository handles deduplication run persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new deduplication run repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create persists a run in the running state
func (r *Repository) Create(ctx context.Context, run *models.DeduplicationRun) (*models.DeduplicationRun, error) {
	ctx, span := tracing.StartSpan(ctx, "deduprun.Repository.Create")
	defer span.End()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	run.Status = models.RunStatusRunning
	run.StartedAt = now
	run.CreatedAt = now
	run.UpdatedAt = now

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("dedup_runs")
	sb.Cols("id", "rule_ids", "status", "records_scanned", "candidates_found",
		"auto_merged", "pending_review", "started_at", "created_at", "updated_at")
	sb.Values(run.ID, run.RuleIDs, run.Status, run.RecordsScanned, run.CandidatesFound,
		run.AutoMerged, run.PendingReview, run.StartedAt, run.CreatedAt, run.UpdatedAt)

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": run.ID}).Error("Failed to create dedup run")
		return nil, errs.Internal("failed to create run")
	}

	return run, nil
}

// Get retrieves a run by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.DeduplicationRun, error) {
	ctx, span := tracing.StartSpan(ctx, "deduprun.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(runColumns...)
	sb.From("dedup_runs")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var run models.DeduplicationRun
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &run, query, args...); err != nil {
		if err.Error() == noRows {
			return nil, errs.NotFoundf("run %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get dedup run")
		return nil, errs.Internal("failed to get run")
	}

	return &run, nil
}

// List retrieves recent runs, newest first
func (r *Repository) List(ctx context.Context, limit int) ([]models.DeduplicationRun, error) {
	ctx, span := tracing.StartSpan(ctx, "deduprun.Repository.List")
	defer span.End()

	if limit < 1 || limit > 200 {
		limit = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(runColumns...)
	sb.From("dedup_runs")
	sb.OrderBy("started_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var runs []models.DeduplicationRun
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &runs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list dedup runs")
		return nil, errs.Internal("failed to list runs")
	}

	return runs, nil
}

// AddCounters atomically increments the run's aggregate counters after a
// committed chunk.
func (r *Repository) AddCounters(ctx context.Context, id string, delta models.RunCounters) error {
	ctx, span := tracing.StartSpan(ctx, "deduprun.Repository.AddCounters")
	defer span.End()

	query := `
		UPDATE dedup_runs
		SET records_scanned = records_scanned + $1,
			candidates_found = candidates_found + $2,
			auto_merged = auto_merged + $3,
			pending_review = pending_review + $4,
			updated_at = $5
		WHERE id = $6
	`

	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query,
		delta.RecordsScanned, delta.CandidatesFound, delta.AutoMerged, delta.PendingReview, time.Now().UTC(), id)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update run counters")
		return errs.Internal("failed to update run counters")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errs.NotFoundf("run %s not found", id)
	}

	return nil
}

// Finish transitions a running run to a terminal status. Finishing an already
// terminal run is rejected so a cancel and a completion cannot both win.
func (r *Repository) Finish(ctx context.Context, id string, status string, errorMessage *string) error {
	ctx, span := tracing.StartSpan(ctx, "deduprun.Repository.Finish")
	defer span.End()

	if !models.ValidRunTransition(models.RunStatusRunning, status) {
		return errs.Internal("invalid run status transition")
	}

	now := time.Now().UTC()
	query := `
		UPDATE dedup_runs
		SET status = $1, error_message = $2, completed_at = $3, updated_at = $3
		WHERE id = $4 AND status = $5
	`

	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, status, errorMessage, now, id, models.RunStatusRunning)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to finish dedup run")
		return errs.Internal("failed to finish run")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errs.AlreadyResolvedf("run %s is not running", id)
	}

	return nil
}

// RequestCancel flags a running run for cancellation. The orchestrator checks
// the flag between chunks.
func (r *Repository) RequestCancel(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "deduprun.Repository.RequestCancel")
	defer span.End()

	query := `
		UPDATE dedup_runs
		SET cancel_requested = TRUE, updated_at = $1
		WHERE id = $2 AND status = $3
	`

	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, time.Now().UTC(), id, models.RunStatusRunning)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to request run cancellation")
		return errs.Internal("failed to cancel run")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errs.AlreadyResolvedf("run %s is not running", id)
	}

	return nil
}

// IsCancelRequested reads the cancellation flag
func (r *Repository) IsCancelRequested(ctx context.Context, id string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "deduprun.Repository.IsCancelRequested")
	defer span.End()

	var cancelRequested bool
	query := `SELECT cancel_requested FROM dedup_runs WHERE id = $1`
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &cancelRequested, query, id); err != nil {
		if err.Error() == noRows {
			return false, errs.NotFoundf("run %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to read run cancellation flag")
		return false, errs.Internal("failed to read run")
	}

	return cancelRequested, nil
}
