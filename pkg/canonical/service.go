// Package canonical manages consolidated contact identities: completeness
// scoring, alias reverse lookup, and updates to the canonical store.
package canonical

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/evanramirez88/resolve/config"
	"github.com/evanramirez88/resolve/internal/repositories/canonicalcontact"
	"github.com/evanramirez88/resolve/pkg/errs"
	"github.com/evanramirez88/resolve/pkg/events"
	"github.com/evanramirez88/resolve/pkg/models"
	"github.com/evanramirez88/resolve/pkg/normalizers"
	"github.com/evanramirez88/resolve/pkg/tracing"
)

// identityFields is the fixed set of canonical contact fields that count
// toward data completeness.
var identityFields = []string{"email", "phone", "name", "company", "address"}

// Weights maps each identity field to its completeness contribution. Weights
// need not sum to 1; completeness is normalized over the total.
type Weights map[string]float64

// EqualWeights weighs every identity field the same.
func EqualWeights() Weights {
	w := Weights{}
	for _, f := range identityFields {
		w[f] = 1.0 / float64(len(identityFields))
	}
	return w
}

// WeightsFromConfig builds the completeness weights from configuration.
func WeightsFromConfig(cfg *config.Config) Weights {
	return Weights{
		"email":   cfg.CompletenessEmailWeight,
		"phone":   cfg.CompletenessPhoneWeight,
		"name":    cfg.CompletenessNameWeight,
		"company": cfg.CompletenessCompanyWeight,
		"address": cfg.CompletenessAddressWeight,
	}
}

// Completeness scores how fully populated a contact is, as a percentage in
// [0, 100]. Each populated identity field contributes its weight; the sum is
// normalized over the total weight.
func Completeness(contact *models.CanonicalContact, weights Weights) float64 {
	var have, total float64
	for _, field := range identityFields {
		w := weights[field]
		if w <= 0 {
			continue
		}
		total += w
		if v := contact.FieldValue(field); v != nil && *v != "" {
			have += w
		}
	}
	if total == 0 {
		return 0
	}
	return have / total * 100
}

// NormalizeAliasValue normalizes a raw value the way alias rows are stored,
// so lookups and writes agree on the key.
func NormalizeAliasValue(aliasType models.AliasType, value string) string {
	switch aliasType {
	case models.AliasTypeEmail:
		return normalizers.NormalizeEmail(value)
	case models.AliasTypePhone:
		return normalizers.NormalizePhone(value)
	case models.AliasTypeName:
		return normalizers.NormalizeName(value)
	case models.AliasTypeCompany:
		return normalizers.NormalizeCompany(value)
	case models.AliasTypeDomain:
		return normalizers.EmailDomain(value)
	}
	return normalizers.Trim(value)
}

// Service exposes canonical contact reads and maintenance operations
type Service struct {
	repo    *canonicalcontact.Repository
	emitter *events.Emitter
	weights Weights
	logger  ectologger.Logger
}

// NewService creates a new canonical contact service
func NewService(repo *canonicalcontact.Repository, emitter *events.Emitter, weights Weights, logger ectologger.Logger) *Service {
	if len(weights) == 0 {
		weights = EqualWeights()
	}
	return &Service{
		repo:    repo,
		emitter: emitter,
		weights: weights,
		logger:  logger,
	}
}

// Weights returns the active completeness weights
func (s *Service) Weights() Weights {
	return s.weights
}

// Get retrieves a canonical contact with its aliases
func (s *Service) Get(ctx context.Context, id string) (*models.CanonicalContact, []models.EntityAlias, error) {
	ctx, span := tracing.StartSpan(ctx, "canonical.Service.Get")
	defer span.End()

	contact, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	aliases, err := s.repo.ListAliases(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	return contact, aliases, nil
}

// FindByAlias reverse-looks-up the canonical contact owning an identifier.
// The raw value is normalized before lookup, so "Bob@Example.COM" and
// "bob@example.com" resolve to the same contact.
func (s *Service) FindByAlias(ctx context.Context, aliasType models.AliasType, value string) (*models.CanonicalContact, error) {
	ctx, span := tracing.StartSpan(ctx, "canonical.Service.FindByAlias")
	defer span.End()

	normalized := NormalizeAliasValue(aliasType, value)
	if normalized == "" {
		return nil, errs.InvalidRulef("alias value %q normalizes to empty", value)
	}

	contact, err := s.repo.FindByAlias(ctx, aliasType, normalized)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, errs.NotFoundf("no canonical contact for %s %q", aliasType, normalized)
	}

	return contact, nil
}

// FindByLinkedRecord returns the contact a source record resolves to, or a
// not-found error when the record has never been consolidated.
func (s *Service) FindByLinkedRecord(ctx context.Context, ref models.EntityRef) (*models.CanonicalContact, error) {
	ctx, span := tracing.StartSpan(ctx, "canonical.Service.FindByLinkedRecord")
	defer span.End()

	contact, err := s.repo.FindByLinkedRecord(ctx, ref)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, errs.NotFoundf("record %s/%s is not linked to a canonical contact", ref.Table, ref.ID)
	}

	return contact, nil
}

// Refresh recomputes a contact's data completeness and persists it. The merge
// engine calls this inside its transaction after changing field values.
func (s *Service) Refresh(ctx context.Context, contact *models.CanonicalContact) (*models.CanonicalContact, error) {
	ctx, span := tracing.StartSpan(ctx, "canonical.Service.Refresh")
	defer span.End()

	contact.DataCompleteness = Completeness(contact, s.weights)
	return s.repo.Update(ctx, contact)
}
