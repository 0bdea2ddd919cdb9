package matching

import (
	"github.com/evanramirez88/resolve/pkg/models"
	"github.com/evanramirez88/resolve/pkg/normalizers"
)

// fieldKind classifies a configured field name so the right normalizer and
// blocking key can be applied without knowing the collaborator schema.
type fieldKind int

const (
	kindOther fieldKind = iota
	kindEmail
	kindPhone
	kindName
	kindCompany
	kindAddress
)

func classifyField(field string) fieldKind {
	switch field {
	case "email", "email_address", "contact_email":
		return kindEmail
	case "phone", "phone_number", "mobile", "contact_phone":
		return kindPhone
	case "name", "first_name", "last_name", "full_name", "contact_name":
		return kindName
	case "company", "company_name", "organization":
		return kindCompany
	case "address", "street_address":
		return kindAddress
	}
	return kindOther
}

// CanonicalField maps a configured field name onto the fixed canonical
// identity field it feeds, or "" when the field carries no identity.
func CanonicalField(field string) string {
	switch classifyField(field) {
	case kindEmail:
		return "email"
	case kindPhone:
		return "phone"
	case kindName:
		return "name"
	case kindCompany:
		return "company"
	case kindAddress:
		return "address"
	}
	return ""
}

// RuleScorer scores record pairs under a match rule. Scoring is a pure
// function of the rule and the two records, so it is safe to fan out across
// workers.
type RuleScorer struct {
	scorer *Scorer
}

func NewRuleScorer() *RuleScorer {
	return &RuleScorer{scorer: NewScorer()}
}

// NormalizeValue prepares one field value for comparison. Normalization is on
// by default; a rule's raw flags opt a field kind out of it, leaving the
// value merely trimmed.
func NormalizeValue(field, value string, opts models.MatchRuleOptions) string {
	switch classifyField(field) {
	case kindEmail:
		if !opts.RawEmails {
			return normalizers.NormalizeEmail(value)
		}
	case kindPhone:
		if !opts.RawPhones {
			return normalizers.NormalizePhone(value)
		}
	case kindName:
		if !opts.RawNames {
			return normalizers.NormalizeName(value)
		}
	case kindCompany:
		if !opts.RawNames {
			return normalizers.NormalizeCompany(value)
		}
	case kindAddress:
		if !opts.RawAddresses {
			return normalizers.NormalizeAddress(value)
		}
	}
	return normalizers.Trim(value)
}

// ScoreRecords computes the weighted confidence between two records under a
// rule. Fields that are null or empty on either side are excluded from both
// the numerator and the denominator; when no fields are comparable the
// confidence is 0. The result is symmetric in a and b.
func (rs *RuleScorer) ScoreRecords(rule *models.MatchRule, a, b *models.SourceRecord) (float64, models.MatchBreakdown) {
	breakdown := models.MatchBreakdown{}
	opts := rule.Options.Data

	var weightedSum float64
	var totalWeight float64

	for _, f := range rule.Fields.Data {
		va := NormalizeValue(f.Field, a.FieldString(f.Field), opts)
		vb := NormalizeValue(f.Field, b.FieldString(f.Field), opts)
		if va == "" || vb == "" {
			continue // missing data neither penalizes nor rewards
		}

		var score float64
		switch f.Method {
		case models.MatchMethodExact:
			score = rs.scorer.ExactMatch(va, vb)
		case models.MatchMethodPhonetic:
			score = rs.scorer.PhoneticMatch(va, vb)
		case models.MatchMethodFuzzy:
			score = rs.scorer.Levenshtein(va, vb)
		default:
			continue
		}

		breakdown[f.Field] = models.FieldScore{
			Method: f.Method,
			Score:  score,
			Weight: f.Weight,
		}
		weightedSum += score * f.Weight
		totalWeight += f.Weight
	}

	if totalWeight == 0 {
		return 0, breakdown
	}

	return weightedSum / totalWeight, breakdown
}
