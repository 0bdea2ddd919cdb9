package matching

import (
	"sort"
	"strings"

	"github.com/evanramirez88/resolve/pkg/models"
	"github.com/evanramirez88/resolve/pkg/normalizers"
)

const (
	emailPrefixLen   = 3
	phoneSuffixLen   = 7
	companyPrefixLen = 3
)

// BlockingKey buckets a record under a cheap normalized key so only records
// within a bucket are compared pairwise. True matches that share no blocking
// key are missed; this is an accepted false-negative trade-off for avoiding
// O(n^2) comparisons. An empty key means the record cannot be blocked under
// the rule and is skipped.
func BlockingKey(rule *models.MatchRule, record *models.SourceRecord) string {
	key := rule.Options.Data.BlockingKey
	if key == "" {
		key = models.BlockingKeyEmailPrefix
	}

	switch key {
	case models.BlockingKeyEmailPrefix:
		local := normalizers.EmailLocalPart(fieldOfKind(rule, record, kindEmail))
		if local == "" {
			return ""
		}
		if len(local) > emailPrefixLen {
			local = local[:emailPrefixLen]
		}
		return "e:" + local
	case models.BlockingKeyPhoneDigits:
		digits := normalizers.DigitsOnly(fieldOfKind(rule, record, kindPhone))
		if digits == "" {
			return ""
		}
		if len(digits) > phoneSuffixLen {
			digits = digits[len(digits)-phoneSuffixLen:]
		}
		return "p:" + digits
	case models.BlockingKeyNameSoundex:
		name := normalizers.NormalizeName(fieldOfKind(rule, record, kindName))
		if name == "" {
			return ""
		}
		token := name
		if i := strings.IndexByte(name, ' '); i > 0 {
			token = name[:i]
		}
		return "n:" + NewScorer().Soundex(token)
	case models.BlockingKeyCompanyPrefix:
		company := normalizers.NormalizeCompany(fieldOfKind(rule, record, kindCompany))
		if company == "" {
			return ""
		}
		if len(company) > companyPrefixLen {
			company = company[:companyPrefixLen]
		}
		return "c:" + company
	}
	return ""
}

// fieldOfKind returns the record's value for the first field of the wanted
// kind, following the rule's declared field order. The record map is never
// ranged directly: when two fields share a kind (first_name and last_name),
// the same field must win on every run or re-running a rule would bucket the
// same records differently.
func fieldOfKind(rule *models.MatchRule, record *models.SourceRecord, want fieldKind) string {
	for _, f := range rule.Fields.Data {
		if classifyField(f.Field) != want {
			continue
		}
		if v := record.FieldString(f.Field); v != "" {
			return v
		}
	}

	// a rule may block on a kind it does not score; fall back to the record's
	// fields in sorted order
	names := make([]string, 0, len(record.Fields))
	for name := range record.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if classifyField(name) == want {
			if v := record.FieldString(name); v != "" {
				return v
			}
		}
	}
	return ""
}
