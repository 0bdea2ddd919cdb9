package models

import (
	"time"

	"github.com/evanramirez88/resolve/pkg/database"
)

// CanonicalContact is the consolidated identity a set of source records
// resolves to. Rows accumulate over the lifetime of the system; they are never
// deleted, only consolidated further.
type CanonicalContact struct {
	ID               string                      `json:"id" db:"id"`
	Email            *string                     `json:"email,omitempty" db:"email"`
	Phone            *string                     `json:"phone,omitempty" db:"phone"`
	Name             *string                     `json:"name,omitempty" db:"name"`
	Company          *string                     `json:"company,omitempty" db:"company"`
	Address          *string                     `json:"address,omitempty" db:"address"`
	LinkedRecords    database.JSONB[[]EntityRef] `json:"linked_records" db:"linked_records"`
	DataCompleteness float64                     `json:"data_completeness" db:"data_completeness"`
	CreatedAt        time.Time                   `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time                   `json:"updated_at" db:"updated_at"`
}

// HasLinkedRecord reports whether the contact already represents the ref.
func (c *CanonicalContact) HasLinkedRecord(ref EntityRef) bool {
	for _, r := range c.LinkedRecords.Data {
		if r == ref {
			return true
		}
	}
	return false
}

// FieldValue returns the contact's value for one of the fixed identity fields.
func (c *CanonicalContact) FieldValue(field string) *string {
	switch field {
	case "email":
		return c.Email
	case "phone":
		return c.Phone
	case "name":
		return c.Name
	case "company":
		return c.Company
	case "address":
		return c.Address
	}
	return nil
}

// SetFieldValue assigns one of the fixed identity fields. An empty value
// clears the field.
func (c *CanonicalContact) SetFieldValue(field, value string) {
	var v *string
	if value != "" {
		v = &value
	}
	switch field {
	case "email":
		c.Email = v
	case "phone":
		c.Phone = v
	case "name":
		c.Name = v
	case "company":
		c.Company = v
	case "address":
		c.Address = v
	}
}

// AliasType classifies an alternate identifier
type AliasType string

const (
	AliasTypeEmail      AliasType = "email"
	AliasTypePhone      AliasType = "phone"
	AliasTypeName       AliasType = "name"
	AliasTypeCompany    AliasType = "company"
	AliasTypeDomain     AliasType = "domain" // derived from the email host
	AliasTypeExternalID AliasType = "external_id"
)

// EntityAlias is a normalized alternate identifier pointing at a canonical
// contact, used for fast reverse lookup.
type EntityAlias struct {
	ID                 string    `json:"id" db:"id"`
	CanonicalContactID string    `json:"canonical_contact_id" db:"canonical_contact_id"`
	AliasType          AliasType `json:"alias_type" db:"alias_type"`
	AliasValue         string    `json:"alias_value" db:"alias_value"`
	IsPrimary          bool      `json:"is_primary" db:"is_primary"`
	SourceMergeID      *string   `json:"source_merge_id,omitempty" db:"source_merge_id"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}
