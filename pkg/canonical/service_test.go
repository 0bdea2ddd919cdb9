package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/evanramirez88/resolve/pkg/models"
)

func strPtr(s string) *string {
	return &s
}

func TestCompletenessEqualWeights(t *testing.T) {
	weights := EqualWeights()

	contact := &models.CanonicalContact{
		Email: strPtr("bob@example.com"),
		Name:  strPtr("Bob Jones"),
	}
	assert.InDelta(t, 40.0, Completeness(contact, weights), 0.0001)

	// gaining a phone during a merge raises completeness
	contact.Phone = strPtr("5551234567")
	assert.InDelta(t, 60.0, Completeness(contact, weights), 0.0001)

	contact.Company = strPtr("Acme")
	contact.Address = strPtr("123 Main St")
	assert.InDelta(t, 100.0, Completeness(contact, weights), 0.0001)
}

func TestCompletenessCustomWeights(t *testing.T) {
	weights := Weights{
		"email":   0.30,
		"phone":   0.20,
		"name":    0.20,
		"company": 0.15,
		"address": 0.15,
	}

	contact := &models.CanonicalContact{
		Email: strPtr("bob@example.com"),
		Name:  strPtr("Bob Jones"),
	}
	assert.InDelta(t, 50.0, Completeness(contact, weights), 0.0001)
}

func TestCompletenessEdgeCases(t *testing.T) {
	assert.Equal(t, 0.0, Completeness(&models.CanonicalContact{}, EqualWeights()))
	assert.Equal(t, 0.0, Completeness(&models.CanonicalContact{Email: strPtr("a@b.c")}, Weights{}))

	// empty strings do not count as populated
	contact := &models.CanonicalContact{Email: strPtr("")}
	assert.Equal(t, 0.0, Completeness(contact, EqualWeights()))
}

func TestNormalizeAliasValue(t *testing.T) {
	tests := []struct {
		name      string
		aliasType models.AliasType
		value     string
		expected  string
	}{
		{name: "email lowercased", aliasType: models.AliasTypeEmail, value: " Bob@Example.COM ", expected: "bob@example.com"},
		{name: "phone digits only", aliasType: models.AliasTypePhone, value: "+1 (555) 123-4567", expected: "15551234567"},
		{name: "name normalized", aliasType: models.AliasTypeName, value: "Robert Smith Jr.", expected: "robert smith"},
		{name: "company suffix stripped", aliasType: models.AliasTypeCompany, value: "Acme Inc", expected: "acme"},
		{name: "domain extracted", aliasType: models.AliasTypeDomain, value: "Bob@Example.com", expected: "example.com"},
		{name: "external id trimmed", aliasType: models.AliasTypeExternalID, value: " crm-42 ", expected: "crm-42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeAliasValue(tt.aliasType, tt.value))
		})
	}
}
