package models

import (
	"time"

	"github.com/evanramirez88/resolve/pkg/database"
)

// RecordSnapshot is the full field map of a source record at merge time
type RecordSnapshot map[string]any

// MergeSnapshot preserves both records exactly as they were before the merge.
// Rollback restores from this.
type MergeSnapshot struct {
	Kept   RecordSnapshot `json:"kept"`
	Merged RecordSnapshot `json:"merged"`
}

// FieldDecision records which side won a field during consolidation
type FieldDecision struct {
	Field  string    `json:"field"`
	Winner EntityRef `json:"winner"`
	Value  any       `json:"value"`
}

// MergeRecord is the immutable audit record of one consolidation. Only status
// and rollback metadata ever change after creation.
type MergeRecord struct {
	ID                 string                          `json:"id" db:"id"`
	CandidateID        string                          `json:"candidate_id" db:"candidate_id"`
	CanonicalContactID string                          `json:"canonical_contact_id" db:"canonical_contact_id"`
	KeptTable          string                          `json:"kept_table" db:"kept_table"`
	KeptID             string                          `json:"kept_id" db:"kept_id"`
	MergedTable        string                          `json:"merged_table" db:"merged_table"`
	MergedID           string                          `json:"merged_id" db:"merged_id"`
	MergedData         database.JSONB[MergeSnapshot]   `json:"merged_data" db:"merged_data"`
	AddedRecords       database.JSONB[[]EntityRef]     `json:"added_records" db:"added_records"`
	FieldDecisions     database.JSONB[[]FieldDecision] `json:"field_decisions" db:"field_decisions"`
	Status             string                          `json:"status" db:"status"`
	DecidedBy          string                          `json:"decided_by" db:"decided_by"`
	CreatedAt          time.Time                       `json:"created_at" db:"created_at"`
	RolledBackAt       *time.Time                      `json:"rolled_back_at,omitempty" db:"rolled_back_at"`
	RolledBackBy       *string                         `json:"rolled_back_by,omitempty" db:"rolled_back_by"`
	RollbackReason     *string                         `json:"rollback_reason,omitempty" db:"rollback_reason"`
}

// Merge record status constants
const (
	MergeStatusActive     = "active"
	MergeStatusRolledBack = "rolled_back"
)

// SystemActor attributes merges applied by the run orchestrator rather than
// an operator.
const SystemActor = "auto"

// RollbackMergeRequest asks to reverse a previously applied merge
type RollbackMergeRequest struct {
	Reason string `json:"reason" validate:"required"`
}
