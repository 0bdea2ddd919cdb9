package models

import (
	"time"

	"github.com/evanramirez88/resolve/pkg/database"
	"github.com/evanramirez88/resolve/pkg/errs"
)

// EntityRef points at one row in a collaborator table
type EntityRef struct {
	Table string `json:"table"`
	ID    string `json:"id"`
}

// Less orders refs lexicographically by table name, then id.
func (r EntityRef) Less(other EntityRef) bool {
	if r.Table != other.Table {
		return r.Table < other.Table
	}
	return r.ID < other.ID
}

// CanonicalizePair fixes the ordering of an unordered pair so the database
// sees at most one row per pair regardless of comparison order.
func CanonicalizePair(a, b EntityRef) (EntityRef, EntityRef) {
	if b.Less(a) {
		return b, a
	}
	return a, b
}

// FieldScore is the per-field contribution to a candidate's confidence
type FieldScore struct {
	Method MatchMethod `json:"method"`
	Score  float64     `json:"score"`
	Weight float64     `json:"weight"`
}

// MatchBreakdown maps field name to its score contribution
type MatchBreakdown map[string]FieldScore

// DuplicateCandidate is a scored pair of records suspected to be the same
// real-world entity. The (entity1, entity2) pair is stored in canonical order
// and is globally unique.
type DuplicateCandidate struct {
	ID              string                         `json:"id" db:"id"`
	RuleID          string                         `json:"rule_id" db:"rule_id"`
	Entity1Table    string                         `json:"entity1_table" db:"entity1_table"`
	Entity1ID       string                         `json:"entity1_id" db:"entity1_id"`
	Entity2Table    string                         `json:"entity2_table" db:"entity2_table"`
	Entity2ID       string                         `json:"entity2_id" db:"entity2_id"`
	ConfidenceScore float64                        `json:"confidence_score" db:"confidence_score"`
	MatchDetails    database.JSONB[MatchBreakdown] `json:"match_details" db:"match_details"`
	AutoMerge       bool                           `json:"auto_merge" db:"auto_merge"`
	Status          string                         `json:"status" db:"status"`
	CreatedAt       time.Time                      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time                      `json:"updated_at" db:"updated_at"`
	ResolvedAt      *time.Time                     `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy      *string                        `json:"resolved_by,omitempty" db:"resolved_by"`
}

// Candidate status constants
const (
	CandidateStatusPending   = "pending"
	CandidateStatusConfirmed = "confirmed"
	CandidateStatusDeferred  = "deferred"
	CandidateStatusRejected  = "rejected"
	CandidateStatusMerged    = "merged"
)

// IsActionable reports whether the candidate may still be merged.
func (c *DuplicateCandidate) IsActionable() bool {
	return c.Status == CandidateStatusPending || c.Status == CandidateStatusConfirmed
}

// IsResolved reports whether the candidate has reached a terminal status.
func (c *DuplicateCandidate) IsResolved() bool {
	return c.Status == CandidateStatusMerged || c.Status == CandidateStatusRejected
}

func (c *DuplicateCandidate) Entity1() EntityRef {
	return EntityRef{Table: c.Entity1Table, ID: c.Entity1ID}
}

func (c *DuplicateCandidate) Entity2() EntityRef {
	return EntityRef{Table: c.Entity2Table, ID: c.Entity2ID}
}

// ReviewCandidateRequest records an operator decision on a pending candidate
type ReviewCandidateRequest struct {
	Action string `json:"action" validate:"required,oneof=confirm reject defer reopen"`
}

// Review action constants
const (
	ReviewActionConfirm = "confirm"
	ReviewActionReject  = "reject"
	ReviewActionDefer   = "defer"
	ReviewActionReopen  = "reopen"
)

// ReviewTransition maps a review action against the candidate's current
// status to its next status. Merged candidates accept no further decisions;
// reopen only applies to rejected or deferred candidates.
func ReviewTransition(current, action string) (string, error) {
	if current == CandidateStatusMerged {
		return "", errs.AlreadyResolvedf("candidate has already been merged")
	}
	switch action {
	case ReviewActionConfirm:
		if current == CandidateStatusPending || current == CandidateStatusDeferred {
			return CandidateStatusConfirmed, nil
		}
	case ReviewActionReject:
		if current == CandidateStatusPending || current == CandidateStatusDeferred || current == CandidateStatusConfirmed {
			return CandidateStatusRejected, nil
		}
	case ReviewActionDefer:
		if current == CandidateStatusPending {
			return CandidateStatusDeferred, nil
		}
	case ReviewActionReopen:
		if current == CandidateStatusRejected || current == CandidateStatusDeferred {
			return CandidateStatusPending, nil
		}
	default:
		return "", errs.InvalidRulef("unknown review action %q", action)
	}
	return "", errs.AlreadyResolvedf("cannot %s a %s candidate", action, current)
}
