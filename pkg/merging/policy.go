package merging

import (
	"time"

	"github.com/evanramirez88/resolve/pkg/models"
)

// ResolveFields decides the surviving value for each configured field when
// two records consolidate. A populated value always beats an empty one. When
// both sides are populated, the more recently updated record wins; on equal
// timestamps the kept (canonical) side wins.
func ResolveFields(fields []string, kept, merged *models.SourceRecord) []models.FieldDecision {
	decisions := make([]models.FieldDecision, 0, len(fields))
	for _, field := range fields {
		vk := kept.FieldString(field)
		vm := merged.FieldString(field)

		switch {
		case vk == "" && vm == "":
			continue
		case vm == "":
			decisions = append(decisions, models.FieldDecision{Field: field, Winner: kept.Ref(), Value: vk})
		case vk == "":
			decisions = append(decisions, models.FieldDecision{Field: field, Winner: merged.Ref(), Value: vm})
		case merged.UpdatedAt.After(kept.UpdatedAt):
			decisions = append(decisions, models.FieldDecision{Field: field, Winner: merged.Ref(), Value: vm})
		default:
			decisions = append(decisions, models.FieldDecision{Field: field, Winner: kept.Ref(), Value: vk})
		}
	}
	return decisions
}

// HasDownstreamMerges reports whether any other active merge on the same
// canonical contact was applied after the target merge. Such a merge blocks a
// direct rollback: the later merges must be reversed first.
func HasDownstreamMerges(active []models.MergeRecord, targetID string, targetCreatedAt time.Time) bool {
	for _, r := range active {
		if r.ID == targetID {
			continue
		}
		if !r.CreatedAt.Before(targetCreatedAt) {
			return true
		}
	}
	return false
}
