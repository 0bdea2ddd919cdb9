package canonicalcontact

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/evanramirez88/resolve/pkg/database"
	"github.com/evanramirez88/resolve/pkg/errs"
	"github.com/evanramirez88/resolve/pkg/models"
	"github.com/evanramirez88/resolve/pkg/tracing"
)

const noRows = "sql: no rows in result set"

// uniqueViolation is the postgres error code raised by the partial unique
// index on canonical email.
const uniqueViolation = "23505"

var contactColumns = []string{
	"id", "email", "phone", "name", "company", "address",
	"linked_records", "data_completeness", "created_at", "updated_at",
}

// Repository handles canonical contact and entity alias persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new canonical contact repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) DB() database.DB {
	return r.db
}

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && string(pqErr.Code) == uniqueViolation
}

// Create persists a new canonical contact. A non-null email that collides
// with an existing contact fails the uniqueness invariant.
func (r *Repository) Create(ctx context.Context, contact *models.CanonicalContact) (*models.CanonicalContact, error) {
	ctx, span := tracing.StartSpan(ctx, "canonicalcontact.Repository.Create")
	defer span.End()

	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}
	contact.CreatedAt = time.Now().UTC()
	contact.UpdatedAt = contact.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("canonical_contacts")
	sb.Cols("id", "email", "phone", "name", "company", "address",
		"linked_records", "data_completeness", "created_at", "updated_at")
	sb.Values(contact.ID, contact.Email, contact.Phone, contact.Name, contact.Company, contact.Address,
		contact.LinkedRecords, contact.DataCompleteness, contact.CreatedAt, contact.UpdatedAt)

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) && contact.Email != nil {
			return nil, errs.DuplicateCanonicalEmail(*contact.Email)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create canonical contact")
		return nil, errs.Internal("failed to create canonical contact")
	}

	return contact, nil
}

// Get retrieves a canonical contact by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.CanonicalContact, error) {
	ctx, span := tracing.StartSpan(ctx, "canonicalcontact.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(contactColumns...)
	sb.From("canonical_contacts")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var contact models.CanonicalContact
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &contact, query, args...); err != nil {
		if err.Error() == noRows {
			return nil, errs.NotFoundf("canonical contact %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get canonical contact")
		return nil, errs.Internal("failed to get canonical contact")
	}

	return &contact, nil
}

// GetForUpdate retrieves a canonical contact and holds a row lock for the
// duration of the surrounding transaction, so two concurrent merges cannot
// double-count the same source record.
func (r *Repository) GetForUpdate(ctx context.Context, id string) (*models.CanonicalContact, error) {
	ctx, span := tracing.StartSpan(ctx, "canonicalcontact.Repository.GetForUpdate")
	defer span.End()

	query := `
		SELECT id, email, phone, name, company, address,
			linked_records, data_completeness, created_at, updated_at
		FROM canonical_contacts
		WHERE id = $1
		FOR UPDATE
	`

	var contact models.CanonicalContact
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &contact, query, id); err != nil {
		if err.Error() == noRows {
			return nil, errs.NotFoundf("canonical contact %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to lock canonical contact")
		return nil, errs.Internal("failed to get canonical contact")
	}

	return &contact, nil
}

// FindByLinkedRecord returns the contact whose linked_records contains the
// ref, or nil when the record has not been consolidated yet.
func (r *Repository) FindByLinkedRecord(ctx context.Context, ref models.EntityRef) (*models.CanonicalContact, error) {
	ctx, span := tracing.StartSpan(ctx, "canonicalcontact.Repository.FindByLinkedRecord")
	defer span.End()

	query := `
		SELECT id, email, phone, name, company, address,
			linked_records, data_completeness, created_at, updated_at
		FROM canonical_contacts
		WHERE linked_records @> $1::jsonb
		LIMIT 1
	`

	link := database.NewJSONB([]models.EntityRef{ref})
	var contact models.CanonicalContact
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &contact, query, link); err != nil {
		if err.Error() == noRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find canonical contact by linked record")
		return nil, errs.Internal("failed to find canonical contact")
	}

	return &contact, nil
}

// Update persists field, linked_records, and completeness changes
func (r *Repository) Update(ctx context.Context, contact *models.CanonicalContact) (*models.CanonicalContact, error) {
	ctx, span := tracing.StartSpan(ctx, "canonicalcontact.Repository.Update")
	defer span.End()

	contact.UpdatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("canonical_contacts")
	sb.Set(
		sb.Assign("email", contact.Email),
		sb.Assign("phone", contact.Phone),
		sb.Assign("name", contact.Name),
		sb.Assign("company", contact.Company),
		sb.Assign("address", contact.Address),
		sb.Assign("linked_records", contact.LinkedRecords),
		sb.Assign("data_completeness", contact.DataCompleteness),
		sb.Assign("updated_at", contact.UpdatedAt),
	)
	sb.Where(sb.Equal("id", contact.ID))

	query, args := sb.Build()
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) && contact.Email != nil {
			return nil, errs.DuplicateCanonicalEmail(*contact.Email)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update canonical contact")
		return nil, errs.Internal("failed to update canonical contact")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, errs.NotFoundf("canonical contact %s not found", contact.ID)
	}

	return contact, nil
}

// UpsertAlias inserts an alias, ignoring duplicates of the same
// (canonical_contact_id, alias_type, alias_value) triple.
func (r *Repository) UpsertAlias(ctx context.Context, alias *models.EntityAlias) error {
	ctx, span := tracing.StartSpan(ctx, "canonicalcontact.Repository.UpsertAlias")
	defer span.End()

	if alias.ID == "" {
		alias.ID = uuid.New().String()
	}
	alias.CreatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("entity_aliases")
	sb.Cols("id", "canonical_contact_id", "alias_type", "alias_value", "is_primary", "source_merge_id", "created_at")
	sb.Values(alias.ID, alias.CanonicalContactID, alias.AliasType, alias.AliasValue, alias.IsPrimary, alias.SourceMergeID, alias.CreatedAt)

	query, args := sb.Build()
	query += " ON CONFLICT (canonical_contact_id, alias_type, alias_value) DO NOTHING"

	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to upsert entity alias")
		return errs.Internal("failed to upsert entity alias")
	}

	return nil
}

// FindByAlias reverse-looks-up the canonical contact owning a normalized
// alias value.
func (r *Repository) FindByAlias(ctx context.Context, aliasType models.AliasType, normalizedValue string) (*models.CanonicalContact, error) {
	ctx, span := tracing.StartSpan(ctx, "canonicalcontact.Repository.FindByAlias")
	defer span.End()

	query := `
		SELECT c.id, c.email, c.phone, c.name, c.company, c.address,
			c.linked_records, c.data_completeness, c.created_at, c.updated_at
		FROM canonical_contacts c
		JOIN entity_aliases a ON a.canonical_contact_id = c.id
		WHERE a.alias_type = $1 AND a.alias_value = $2
		ORDER BY a.is_primary DESC, a.created_at ASC
		LIMIT 1
	`

	var contact models.CanonicalContact
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &contact, query, aliasType, normalizedValue); err != nil {
		if err.Error() == noRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find canonical contact by alias")
		return nil, errs.Internal("failed to find canonical contact")
	}

	return &contact, nil
}

// ListAliases returns all aliases for a canonical contact
func (r *Repository) ListAliases(ctx context.Context, canonicalContactID string) ([]models.EntityAlias, error) {
	ctx, span := tracing.StartSpan(ctx, "canonicalcontact.Repository.ListAliases")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "canonical_contact_id", "alias_type", "alias_value", "is_primary", "source_merge_id", "created_at")
	sb.From("entity_aliases")
	sb.Where(sb.Equal("canonical_contact_id", canonicalContactID))
	sb.OrderBy("alias_type", "created_at")

	query, args := sb.Build()
	var aliases []models.EntityAlias
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &aliases, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list entity aliases")
		return nil, errs.Internal("failed to list entity aliases")
	}

	return aliases, nil
}

// DeleteAliasesByMerge removes the aliases a specific merge added. Rollback
// calls this inside the reversal transaction.
func (r *Repository) DeleteAliasesByMerge(ctx context.Context, mergeID string) error {
	ctx, span := tracing.StartSpan(ctx, "canonicalcontact.Repository.DeleteAliasesByMerge")
	defer span.End()

	query := `DELETE FROM entity_aliases WHERE source_merge_id = $1`

	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, mergeID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete entity aliases for merge")
		return errs.Internal("failed to delete entity aliases")
	}

	return nil
}
