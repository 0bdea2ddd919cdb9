package models

import (
	"time"

	"github.com/evanramirez88/resolve/pkg/database"
)

// Run status constants
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// DeduplicationRun is one batch execution of candidate generation over a set
// of rules. Counters are updated incrementally as chunks commit.
type DeduplicationRun struct {
	ID              string                    `json:"id" db:"id"`
	RuleIDs         database.JSONB[[]string]  `json:"rule_ids" db:"rule_ids"`
	Status          string                    `json:"status" db:"status"`
	RecordsScanned  int                       `json:"records_scanned" db:"records_scanned"`
	CandidatesFound int                       `json:"candidates_found" db:"candidates_found"`
	AutoMerged      int                       `json:"auto_merged" db:"auto_merged"`
	PendingReview   int                       `json:"pending_review" db:"pending_review"`
	CancelRequested bool                      `json:"cancel_requested" db:"cancel_requested"`
	ErrorMessage    *string                   `json:"error_message,omitempty" db:"error_message"`
	StartedAt       time.Time                 `json:"started_at" db:"started_at"`
	CompletedAt     *time.Time                `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt       time.Time                 `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at" db:"updated_at"`
}

// IsTerminal reports whether the run has finished.
func (r *DeduplicationRun) IsTerminal() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed || r.Status == RunStatusCancelled
}

// ValidRunTransition reports whether a run may move between the two statuses.
// The only legal moves are running to a terminal status.
func ValidRunTransition(from, to string) bool {
	if from != RunStatusRunning {
		return false
	}
	switch to {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// RunCounters is the incremental counter delta applied after each chunk
type RunCounters struct {
	RecordsScanned  int `json:"records_scanned"`
	CandidatesFound int `json:"candidates_found"`
	AutoMerged      int `json:"auto_merged"`
	PendingReview   int `json:"pending_review"`
}

// TriggerRunRequest starts a run over one or more rules
type TriggerRunRequest struct {
	RuleIDs []string `json:"rule_ids" validate:"required,min=1"`
}
