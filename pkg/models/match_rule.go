package models

import (
	"time"

	"github.com/evanramirez88/resolve/pkg/database"
	"github.com/evanramirez88/resolve/pkg/errs"
)

// MatchMethod defines how a single field is compared
type MatchMethod string

const (
	MatchMethodExact    MatchMethod = "exact"    // normalized string equality
	MatchMethodPhonetic MatchMethod = "phonetic" // Soundex/Metaphone equality
	MatchMethodFuzzy    MatchMethod = "fuzzy"    // normalized edit distance
)

// BlockingKey selects how records are bucketed before pairwise comparison
type BlockingKey string

const (
	BlockingKeyEmailPrefix   BlockingKey = "email_prefix"   // first chars of the normalized local part
	BlockingKeyPhoneDigits   BlockingKey = "phone_digits"   // trailing digits of the phone
	BlockingKeyNameSoundex   BlockingKey = "name_soundex"   // soundex of the first name token
	BlockingKeyCompanyPrefix BlockingKey = "company_prefix" // first chars of the normalized company
)

// MatchField is one weighted field comparison within a rule
type MatchField struct {
	Field  string      `json:"field" validate:"required"`
	Method MatchMethod `json:"method" validate:"required"`
	Weight float64     `json:"weight" validate:"gte=0"`
}

// MatchRuleOptions holds per-rule comparison options. Values are normalized
// before comparison by default; the raw flags opt a field kind out of that
// for rules matching on case- or format-sensitive data.
type MatchRuleOptions struct {
	RawEmails    bool        `json:"raw_emails"`
	RawPhones    bool        `json:"raw_phones"`
	RawNames     bool        `json:"raw_names"`
	RawAddresses bool        `json:"raw_addresses"`
	BlockingKey  BlockingKey `json:"blocking_key"`
}

// MatchRule defines how to identify matching records between two tables
type MatchRule struct {
	ID                 string                               `json:"id" db:"id"`
	Name               string                               `json:"name" db:"name"`
	SourceTable        string                               `json:"source_table" db:"source_table"`
	TargetTable        string                               `json:"target_table" db:"target_table"`
	Fields             database.JSONB[[]MatchField]         `json:"fields" db:"fields"`
	Options            database.JSONB[MatchRuleOptions]     `json:"options" db:"options"`
	IgnoreThreshold    float64                              `json:"ignore_threshold" db:"ignore_threshold"`
	ReviewThreshold    float64                              `json:"review_threshold" db:"review_threshold"`
	AutoMergeThreshold float64                              `json:"auto_merge_threshold" db:"auto_merge_threshold"`
	IsActive           bool                                 `json:"is_active" db:"is_active"`
	CreatedAt          time.Time                            `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time                            `json:"updated_at" db:"updated_at"`
	DeletedAt          *time.Time                           `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Validate enforces the invariants the storage layer cannot express:
// threshold ordering, a non-empty field list, non-negative weights, and known
// match methods.
func (r *MatchRule) Validate() error {
	if len(r.Fields.Data) == 0 {
		return errs.InvalidRule("rule must define at least one match field")
	}
	if r.IgnoreThreshold > r.ReviewThreshold || r.ReviewThreshold > r.AutoMergeThreshold {
		return errs.InvalidRulef("thresholds must satisfy ignore (%.2f) <= review (%.2f) <= auto_merge (%.2f)",
			r.IgnoreThreshold, r.ReviewThreshold, r.AutoMergeThreshold)
	}
	for _, f := range r.Fields.Data {
		if f.Field == "" {
			return errs.InvalidRule("match field name cannot be empty")
		}
		if f.Weight < 0 {
			return errs.InvalidRulef("match field %s has negative weight %.2f", f.Field, f.Weight)
		}
		switch f.Method {
		case MatchMethodExact, MatchMethodPhonetic, MatchMethodFuzzy:
		default:
			return errs.InvalidRulef("unknown match method %q for field %s", f.Method, f.Field)
		}
	}
	switch r.Options.Data.BlockingKey {
	case "", BlockingKeyEmailPrefix, BlockingKeyPhoneDigits, BlockingKeyNameSoundex, BlockingKeyCompanyPrefix:
	default:
		return errs.InvalidRulef("unknown blocking key %q", r.Options.Data.BlockingKey)
	}
	return nil
}

// FieldNames returns the fields this rule reads from collaborator tables. The
// source reader restricts its SELECT to this allow-list.
func (r *MatchRule) FieldNames() []string {
	names := make([]string, 0, len(r.Fields.Data))
	for _, f := range r.Fields.Data {
		names = append(names, f.Field)
	}
	return names
}

// CreateMatchRuleRequest is the request to create a match rule
type CreateMatchRuleRequest struct {
	Name               string           `json:"name" validate:"required"`
	SourceTable        string           `json:"source_table" validate:"required"`
	TargetTable        string           `json:"target_table" validate:"required"`
	Fields             []MatchField     `json:"fields" validate:"required,dive"`
	Options            MatchRuleOptions `json:"options"`
	IgnoreThreshold    float64          `json:"ignore_threshold" validate:"gte=0,lte=1"`
	ReviewThreshold    float64          `json:"review_threshold" validate:"gte=0,lte=1"`
	AutoMergeThreshold float64          `json:"auto_merge_threshold" validate:"gte=0,lte=1"`
	IsActive           bool             `json:"is_active"`
}

// UpdateMatchRuleRequest is the request to update a match rule
type UpdateMatchRuleRequest struct {
	Name               *string           `json:"name,omitempty"`
	Fields             []MatchField      `json:"fields,omitempty"`
	Options            *MatchRuleOptions `json:"options,omitempty"`
	IgnoreThreshold    *float64          `json:"ignore_threshold,omitempty"`
	ReviewThreshold    *float64          `json:"review_threshold,omitempty"`
	AutoMergeThreshold *float64          `json:"auto_merge_threshold,omitempty"`
	IsActive           *bool             `json:"is_active,omitempty"`
}
