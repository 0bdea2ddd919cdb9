// Package normalizers provides field normalization for matching and aliasing
package normalizers

import (
	"regexp"
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("nemail", NormalizeEmail)
	Register("nphone", NormalizePhone)
	Register("nname", NormalizeName)
	Register("ncompany", NormalizeCompany)
	Register("naddress", NormalizeAddress)
	Register("digits_only", DigitsOnly)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value. Unknown names pass the value
// through unchanged.
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ForField returns the normalizer conventionally used for one of the fixed
// identity fields (email, phone, name, company, address).
func ForField(field string) Normalizer {
	switch field {
	case "email":
		return NormalizeEmail
	case "phone":
		return NormalizePhone
	case "name", "first_name", "last_name", "full_name", "contact_name":
		return NormalizeName
	case "company", "company_name", "organization":
		return NormalizeCompany
	case "address", "street_address":
		return NormalizeAddress
	}
	return Trim
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeEmail normalizes an email address (lowercase, trim)
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone strips a phone number down to its digits
func NormalizePhone(s string) string {
	return DigitsOnly(s)
}

// EmailDomain returns the host part of a normalized email, or "" when the
// value is not an address.
func EmailDomain(s string) string {
	s = NormalizeEmail(s)
	at := strings.LastIndex(s, "@")
	if at < 0 || at == len(s)-1 {
		return ""
	}
	return s[at+1:]
}

// EmailLocalPart returns the part before the @ of a normalized email.
func EmailLocalPart(s string) string {
	s = NormalizeEmail(s)
	at := strings.Index(s, "@")
	if at < 0 {
		return s
	}
	return s[:at]
}

// NormalizeName normalizes a person's name for matching
// - Lowercase
// - Remove common suffixes (Jr., Sr., III, etc.)
// - Remove punctuation and collapse whitespace
func NormalizeName(s string) string {
	s = strings.ToLower(s)

	suffixes := []string{" jr.", " jr", " sr.", " sr", " iii", " ii", " iv", " phd", " md", " dds"}
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			s = s[:len(s)-len(suffix)]
		}
	}

	var result strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
			prevSpace = false
		} else if unicode.IsSpace(r) {
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimSpace(result.String())
}

// NormalizeCompany normalizes a company name for matching. Legal suffixes are
// stripped so "Acme Corp." and "Acme Corporation" compare equal.
func NormalizeCompany(s string) string {
	s = NormalizeName(s)

	suffixes := []string{" incorporated", " corporation", " inc", " corp", " llc", " llp", " ltd", " co"}
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSpace(s[:len(s)-len(suffix)])
			break
		}
	}

	return s
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

var spaceRe = regexp.MustCompile(`\s+`)

// NormalizeAddress normalizes an address string
func NormalizeAddress(s string) string {
	s = strings.ToLower(s)

	replacements := map[string]string{
		" street":    " st",
		" avenue":    " ave",
		" boulevard": " blvd",
		" drive":     " dr",
		" road":      " rd",
		" lane":      " ln",
		" court":     " ct",
		" circle":    " cir",
		" place":     " pl",
		" apartment": " apt",
		" suite":     " ste",
		" north":     " n",
		" south":     " s",
		" east":      " e",
		" west":      " w",
	}

	for full, abbr := range replacements {
		s = strings.ReplaceAll(s, full, abbr)
	}

	s = spaceRe.ReplaceAllString(s, " ")

	return strings.TrimSpace(s)
}
