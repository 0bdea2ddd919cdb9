package mergerecord

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

var mergeColumns = []string{
	"id", "candidate_id", "canonical_contact_id", "kept_table", "kept_id",
	"merged_table", "merged_id", "merged_data", "added_records", "field_decisions",
	"status", "decided_by", "created_at", "rolled_back_at", "rolled_back_by", "rollback_reason",
}

// Repository handles merge record persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new merge record repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) DB() database.DB {
	return r.db
}

// Create persists a new merge record
func (r *Repository) Create(ctx context.Context, record *models.MergeRecord) (*models.MergeRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "mergerecord.Repository.Create")
	defer span.End()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	record.CreatedAt = time.Now().UTC()
	record.Status = models.MergeStatusActive

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("merge_records")
	sb.Cols("id", "candidate_id", "canonical_contact_id", "kept_table", "kept_id",
		"merged_table", "merged_id", "merged_data", "added_records", "field_decisions",
		"status", "decided_by", "created_at")
	sb.Values(record.ID, record.CandidateID, record.CanonicalContactID, record.KeptTable, record.KeptID,
		record.MergedTable, record.MergedID, record.MergedData, record.AddedRecords, record.FieldDecisions,
		record.Status, record.DecidedBy, record.CreatedAt)

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"merge_id": record.ID}).Error("Failed to create merge record")
		return nil, errs.Internal("failed to create merge record")
	}

	return record, nil
}

// Get retrieves a merge record by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.MergeRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "mergerecord.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(mergeColumns...)
	sb.From("merge_records")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var record models.MergeRecord
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &record, query, args...); err != nil {
		if err.Error() == noRows {
			return nil, errs.NotFoundf("merge record %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get merge record")
		return nil, errs.Internal("failed to get merge record")
	}

	return &record, nil
}

// ListActiveByCanonical returns the active merges that built a canonical
// contact, newest first. Rollback uses this to detect downstream merges.
func (r *Repository) ListActiveByCanonical(ctx context.Context, canonicalContactID string) ([]models.MergeRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "mergerecord.Repository.ListActiveByCanonical")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(mergeColumns...)
	sb.From("merge_records")
	sb.Where(
		sb.Equal("canonical_contact_id", canonicalContactID),
		sb.Equal("status", models.MergeStatusActive),
	)
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var records []models.MergeRecord
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list merge records for canonical contact")
		return nil, errs.Internal("failed to list merge records")
	}

	return records, nil
}

// ListByCandidate returns all merge records created from a candidate
func (r *Repository) ListByCandidate(ctx context.Context, candidateID string) ([]models.MergeRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "mergerecord.Repository.ListByCandidate")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(mergeColumns...)
	sb.From("merge_records")
	sb.Where(sb.Equal("candidate_id", candidateID))
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var records []models.MergeRecord
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list merge records for candidate")
		return nil, errs.Internal("failed to list merge records")
	}

	return records, nil
}

// MarkRolledBack transitions an active merge record to rolled_back. Only the
// status and rollback metadata change; the snapshot stays immutable.
func (r *Repository) MarkRolledBack(ctx context.Context, id string, rolledBackBy string, reason string) error {
	ctx, span := tracing.StartSpan(ctx, "mergerecord.Repository.MarkRolledBack")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("merge_records")
	sb.Set(
		sb.Assign("status", models.MergeStatusRolledBack),
		sb.Assign("rolled_back_at", now),
		sb.Assign("rolled_back_by", rolledBackBy),
		sb.Assign("rollback_reason", reason),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("status", models.MergeStatusActive),
	)

	query, args := sb.Build()
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to mark merge record rolled back")
		return errs.Internal("failed to roll back merge record")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errs.AlreadyResolvedf("merge record %s is not active", id)
	}

	return nil
}
