package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshteinDistance(t *testing.T) {
	scorer := NewScorer()

	tests := []struct {
		name     string
		a        string
		b        string
		expected int
	}{
		{name: "identical strings", a: "smith", b: "smith", expected: 0},
		{name: "classic kitten sitting", a: "kitten", b: "sitting", expected: 3},
		{name: "single substitution", a: "smith", b: "smyth", expected: 1},
		{name: "empty left", a: "", b: "abc", expected: 3},
		{name: "empty right", a: "abc", b: "", expected: 3},
		{name: "both empty", a: "", b: "", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, scorer.LevenshteinDistance(tt.a, tt.b))
		})
	}
}

func TestLevenshteinScore(t *testing.T) {
	scorer := NewScorer()

	tests := []struct {
		name     string
		a        string
		b        string
		expected float64
	}{
		{name: "identical", a: "smith", b: "smith", expected: 1.0},
		{name: "one edit in five", a: "smith", b: "smyth", expected: 0.8},
		{name: "kitten sitting", a: "kitten", b: "sitting", expected: 1.0 - 3.0/7.0},
		{name: "both empty", a: "", b: "", expected: 1.0},
		{name: "nothing in common", a: "abc", b: "xyz", expected: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, scorer.Levenshtein(tt.a, tt.b), 0.0001)
		})
	}
}

func TestSoundex(t *testing.T) {
	scorer := NewScorer()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "robert", input: "Robert", expected: "R163"},
		{name: "rupert shares code with robert", input: "Rupert", expected: "R163"},
		{name: "smith", input: "Smith", expected: "S530"},
		{name: "smyth shares code with smith", input: "Smyth", expected: "S530"},
		{name: "lowercase input", input: "robert", expected: "R163"},
		{name: "empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, scorer.Soundex(tt.input))
		})
	}
}

func TestPhoneticMatch(t *testing.T) {
	scorer := NewScorer()

	tests := []struct {
		name     string
		a        string
		b        string
		expected float64
	}{
		{name: "smith smyth agree on both encodings", a: "smith", b: "smyth", expected: 1.0},
		{name: "identical", a: "robert", b: "robert", expected: 1.0},
		{name: "unrelated names", a: "smith", b: "jones", expected: 0.0},
		{name: "catherine kathryn", a: "catherine", b: "kathryn", expected: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, scorer.PhoneticMatch(tt.a, tt.b))
		})
	}
}

func TestPhoneticMatchRequiresBothEncodings(t *testing.T) {
	scorer := NewScorer()

	// "cedric" and "sedric": Soundex keeps the first letter so the codes
	// differ, while Metaphone encodes soft C as S and agrees. The combined
	// match must fail.
	assert.Equal(t, scorer.Metaphone("cedric"), scorer.Metaphone("sedric"))
	assert.NotEqual(t, scorer.Soundex("cedric"), scorer.Soundex("sedric"))
	assert.Equal(t, 0.0, scorer.PhoneticMatch("cedric", "sedric"))
}

func TestExactMatch(t *testing.T) {
	scorer := NewScorer()

	assert.Equal(t, 1.0, scorer.ExactMatch("bob@example.com", "bob@example.com"))
	assert.Equal(t, 0.0, scorer.ExactMatch("bob@example.com", "rob@example.com"))
	assert.Equal(t, 1.0, scorer.ExactMatch("", ""))
}
