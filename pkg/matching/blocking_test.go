package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/evanramirez88/resolve/pkg/models"
)

func ruleWithBlocking(key models.BlockingKey) *models.MatchRule {
	return newRule([]models.MatchField{
		{Field: "email", Method: models.MatchMethodExact, Weight: 1.0},
	}, models.MatchRuleOptions{BlockingKey: key})
}

func TestBlockingKey(t *testing.T) {
	tests := []struct {
		name     string
		key      models.BlockingKey
		fields   map[string]any
		expected string
	}{
		{
			name:     "email prefix uses first three chars of local part",
			key:      models.BlockingKeyEmailPrefix,
			fields:   map[string]any{"email": "John.Doe@Example.com"},
			expected: "e:joh",
		},
		{
			name:     "short local part kept whole",
			key:      models.BlockingKeyEmailPrefix,
			fields:   map[string]any{"email": "jd@example.com"},
			expected: "e:jd",
		},
		{
			name:     "phone digits uses trailing seven digits",
			key:      models.BlockingKeyPhoneDigits,
			fields:   map[string]any{"phone": "+1 (555) 123-4567"},
			expected: "p:1234567",
		},
		{
			name:     "name soundex uses first token",
			key:      models.BlockingKeyNameSoundex,
			fields:   map[string]any{"name": "Robert Smith"},
			expected: "n:R163",
		},
		{
			name:     "company prefix strips legal suffix first",
			key:      models.BlockingKeyCompanyPrefix,
			fields:   map[string]any{"company": "Acme Corp"},
			expected: "c:acm",
		},
		{
			name:     "missing email yields no key",
			key:      models.BlockingKeyEmailPrefix,
			fields:   map[string]any{"name": "Robert Smith"},
			expected: "",
		},
		{
			name:     "default blocking is email prefix",
			key:      "",
			fields:   map[string]any{"email": "alice@example.com"},
			expected: "e:ali",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := record("leads", "1", tt.fields)
			assert.Equal(t, tt.expected, BlockingKey(ruleWithBlocking(tt.key), rec))
		})
	}
}

func TestBlockingKeyDeterministicAcrossSameKindFields(t *testing.T) {
	rule := newRule([]models.MatchField{
		{Field: "first_name", Method: models.MatchMethodPhonetic, Weight: 0.5},
		{Field: "last_name", Method: models.MatchMethodPhonetic, Weight: 0.5},
	}, models.MatchRuleOptions{BlockingKey: models.BlockingKeyNameSoundex})

	rec := record("leads", "1", map[string]any{"first_name": "Robert", "last_name": "Smith"})

	// both fields classify as names; the rule's field order decides which one
	// buckets the record, so repeated evaluation always yields the same key
	for i := 0; i < 200; i++ {
		assert.Equal(t, "n:R163", BlockingKey(rule, rec))
	}
}

func TestBlockingKeySharedAcrossVariants(t *testing.T) {
	rule := ruleWithBlocking(models.BlockingKeyNameSoundex)

	a := record("leads", "1", map[string]any{"name": "Smith, John"})
	b := record("clients", "2", map[string]any{"name": "Smyth Jon"})

	// phonetically equivalent surnames land in the same bucket
	assert.Equal(t, BlockingKey(rule, a), BlockingKey(rule, b))
	assert.NotEmpty(t, BlockingKey(rule, a))
}
