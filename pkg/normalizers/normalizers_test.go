package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "bob@example.com", NormalizeEmail("  Bob@Example.COM  "))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestEmailParts(t *testing.T) {
	assert.Equal(t, "bob", EmailLocalPart("Bob@Example.com"))
	assert.Equal(t, "example.com", EmailDomain("Bob@Example.com"))
	assert.Equal(t, "notanemail", EmailLocalPart("notanemail"))
	assert.Equal(t, "", EmailDomain("notanemail"))
	assert.Equal(t, "", EmailDomain("trailing@"))
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "formatted us number", input: "+1 (555) 123-4567", expected: "15551234567"},
		{name: "dotted", input: "555.123.4567", expected: "5551234567"},
		{name: "no digits", input: "ext", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePhone(tt.input))
		})
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "suffix jr", input: "John Smith Jr.", expected: "john smith"},
		{name: "suffix iii", input: "William Gates III", expected: "william gates"},
		{name: "punctuation removed", input: "O'Brien, Mary-Anne", expected: "obrien maryanne"},
		{name: "whitespace collapsed", input: "  John   Smith  ", expected: "john smith"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeName(tt.input))
		})
	}
}

func TestNormalizeCompany(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "inc stripped", input: "Acme Inc", expected: "acme"},
		{name: "corp with period", input: "Acme Corp.", expected: "acme"},
		{name: "corporation stripped", input: "Acme Corporation", expected: "acme"},
		{name: "llc stripped", input: "Widgets LLC", expected: "widgets"},
		{name: "no suffix untouched", input: "Acme", expected: "acme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeCompany(tt.input))
		})
	}
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "123 main st", NormalizeAddress("123 Main Street"))
	assert.Equal(t, "456 oak ave apt 2", NormalizeAddress("456 Oak Avenue Apartment 2"))
	assert.Equal(t, "789 n elm blvd", NormalizeAddress("789 North Elm Boulevard"))
}

func TestApplyRegistry(t *testing.T) {
	assert.Equal(t, "bob@example.com", Apply(" Bob@Example.com ", "nemail"))
	assert.Equal(t, "5551234567", Apply("555-123-4567", "digits_only"))
	// unknown normalizers pass through
	assert.Equal(t, "unchanged", Apply("unchanged", "nope"))
}
