package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/evanramirez88/resolve/pkg/database"
	"github.com/evanramirez88/resolve/pkg/models"
)

func newRule(fields []models.MatchField, opts models.MatchRuleOptions) *models.MatchRule {
	return &models.MatchRule{
		ID:                 "rule-1",
		Name:               "contacts",
		SourceTable:        "leads",
		TargetTable:        "clients",
		Fields:             database.NewJSONB(fields),
		Options:            database.NewJSONB(opts),
		IgnoreThreshold:    0.3,
		ReviewThreshold:    0.7,
		AutoMergeThreshold: 0.95,
		IsActive:           true,
	}
}

func record(table, id string, fields map[string]any) *models.SourceRecord {
	return &models.SourceRecord{Table: table, ID: id, Fields: fields}
}

func TestScoreRecordsWeightedConfidence(t *testing.T) {
	scorer := NewRuleScorer()
	rule := newRule([]models.MatchField{
		{Field: "email", Method: models.MatchMethodExact, Weight: 0.5},
		{Field: "name", Method: models.MatchMethodFuzzy, Weight: 0.5},
	}, models.MatchRuleOptions{})

	a := record("leads", "1", map[string]any{"email": "Bob@Example.com", "name": "Jon Smith"})
	b := record("clients", "2", map[string]any{"email": "bob@example.com", "name": "John Smith"})

	score, breakdown := scorer.ScoreRecords(rule, a, b)

	// email matches exactly after normalization; "jon smith" vs "john smith"
	// is one edit over ten characters
	assert.InDelta(t, (1.0*0.5+0.9*0.5)/1.0, score, 0.0001)
	assert.Len(t, breakdown, 2)
	assert.Equal(t, 1.0, breakdown["email"].Score)
	assert.InDelta(t, 0.9, breakdown["name"].Score, 0.0001)
}

func TestScoreRecordsNormalizesByDefault(t *testing.T) {
	scorer := NewRuleScorer()
	rule := newRule([]models.MatchField{
		{Field: "email", Method: models.MatchMethodExact, Weight: 1.0},
	}, models.MatchRuleOptions{})

	a := record("leads", "1", map[string]any{"email": "A@X.com"})
	b := record("clients", "2", map[string]any{"email": "a@x.com"})

	// a rule that never set any options still compares case-insensitively
	score, _ := scorer.ScoreRecords(rule, a, b)
	assert.Equal(t, 1.0, score)
}

func TestScoreRecordsMissingFieldExcluded(t *testing.T) {
	scorer := NewRuleScorer()
	rule := newRule([]models.MatchField{
		{Field: "email", Method: models.MatchMethodExact, Weight: 0.5},
		{Field: "phone", Method: models.MatchMethodExact, Weight: 0.5},
	}, models.MatchRuleOptions{})

	a := record("leads", "1", map[string]any{"email": "bob@example.com", "phone": "555-123-4567"})
	b := record("clients", "2", map[string]any{"email": "bob@example.com"})

	score, breakdown := scorer.ScoreRecords(rule, a, b)

	// the missing phone drops out of both numerator and denominator
	assert.Equal(t, 1.0, score)
	assert.Len(t, breakdown, 1)
	assert.Contains(t, breakdown, "email")
}

func TestScoreRecordsNoComparableFields(t *testing.T) {
	scorer := NewRuleScorer()
	rule := newRule([]models.MatchField{
		{Field: "email", Method: models.MatchMethodExact, Weight: 1.0},
	}, models.MatchRuleOptions{})

	a := record("leads", "1", map[string]any{})
	b := record("clients", "2", map[string]any{"email": "bob@example.com"})

	score, breakdown := scorer.ScoreRecords(rule, a, b)

	assert.Equal(t, 0.0, score)
	assert.Empty(t, breakdown)
}

func TestScoreRecordsSymmetric(t *testing.T) {
	scorer := NewRuleScorer()
	rule := newRule([]models.MatchField{
		{Field: "email", Method: models.MatchMethodExact, Weight: 0.4},
		{Field: "name", Method: models.MatchMethodFuzzy, Weight: 0.4},
		{Field: "phone", Method: models.MatchMethodExact, Weight: 0.2},
	}, models.MatchRuleOptions{})

	a := record("leads", "1", map[string]any{"email": "bob@example.com", "name": "Robert Jones", "phone": "(555) 123-4567"})
	b := record("clients", "2", map[string]any{"email": "bob@example.com", "name": "Bob Jones", "phone": "5551234567"})

	ab, _ := scorer.ScoreRecords(rule, a, b)
	ba, _ := scorer.ScoreRecords(rule, b, a)

	assert.Equal(t, ab, ba)
}

func TestScoreRecordsPhoneticField(t *testing.T) {
	scorer := NewRuleScorer()
	rule := newRule([]models.MatchField{
		{Field: "name", Method: models.MatchMethodPhonetic, Weight: 1.0},
	}, models.MatchRuleOptions{})

	a := record("leads", "1", map[string]any{"name": "Smith"})
	b := record("clients", "2", map[string]any{"name": "Smyth"})

	score, _ := scorer.ScoreRecords(rule, a, b)
	assert.Equal(t, 1.0, score)
}

func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		value    string
		opts     models.MatchRuleOptions
		expected string
	}{
		{
			name:     "email normalized by default",
			field:    "email",
			value:    "  Bob@Example.COM ",
			opts:     models.MatchRuleOptions{},
			expected: "bob@example.com",
		},
		{
			name:     "raw email only trimmed",
			field:    "email",
			value:    "  Bob@Example.COM ",
			opts:     models.MatchRuleOptions{RawEmails: true},
			expected: "Bob@Example.COM",
		},
		{
			name:     "phone stripped to digits",
			field:    "phone",
			value:    "+1 (555) 123-4567",
			opts:     models.MatchRuleOptions{},
			expected: "15551234567",
		},
		{
			name:     "raw phone keeps formatting",
			field:    "phone",
			value:    "+1 (555) 123-4567",
			opts:     models.MatchRuleOptions{RawPhones: true},
			expected: "+1 (555) 123-4567",
		},
		{
			name:     "name suffix stripped",
			field:    "name",
			value:    "John Smith Jr.",
			opts:     models.MatchRuleOptions{},
			expected: "john smith",
		},
		{
			name:     "unknown field trimmed",
			field:    "notes",
			value:    " hello ",
			opts:     models.MatchRuleOptions{},
			expected: "hello",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeValue(tt.field, tt.value, tt.opts))
		})
	}
}

func TestCanonicalField(t *testing.T) {
	assert.Equal(t, "email", CanonicalField("email_address"))
	assert.Equal(t, "phone", CanonicalField("mobile"))
	assert.Equal(t, "name", CanonicalField("full_name"))
	assert.Equal(t, "company", CanonicalField("organization"))
	assert.Equal(t, "address", CanonicalField("street_address"))
	assert.Equal(t, "", CanonicalField("notes"))
}
