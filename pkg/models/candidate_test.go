package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizePair(t *testing.T) {
	tests := []struct {
		name  string
		a     EntityRef
		b     EntityRef
		want1 EntityRef
		want2 EntityRef
	}{
		{
			name:  "already ordered by table",
			a:     EntityRef{Table: "clients", ID: "9"},
			b:     EntityRef{Table: "leads", ID: "1"},
			want1: EntityRef{Table: "clients", ID: "9"},
			want2: EntityRef{Table: "leads", ID: "1"},
		},
		{
			name:  "swapped tables reorder",
			a:     EntityRef{Table: "leads", ID: "1"},
			b:     EntityRef{Table: "clients", ID: "9"},
			want1: EntityRef{Table: "clients", ID: "9"},
			want2: EntityRef{Table: "leads", ID: "1"},
		},
		{
			name:  "same table ordered by id",
			a:     EntityRef{Table: "leads", ID: "b"},
			b:     EntityRef{Table: "leads", ID: "a"},
			want1: EntityRef{Table: "leads", ID: "a"},
			want2: EntityRef{Table: "leads", ID: "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e1, e2 := CanonicalizePair(tt.a, tt.b)
			assert.Equal(t, tt.want1, e1)
			assert.Equal(t, tt.want2, e2)

			// order of arguments never matters
			r1, r2 := CanonicalizePair(tt.b, tt.a)
			assert.Equal(t, e1, r1)
			assert.Equal(t, e2, r2)
		})
	}
}

func TestCandidateStatusHelpers(t *testing.T) {
	c := &DuplicateCandidate{Status: CandidateStatusPending}
	assert.True(t, c.IsActionable())
	assert.False(t, c.IsResolved())

	c.Status = CandidateStatusConfirmed
	assert.True(t, c.IsActionable())

	c.Status = CandidateStatusDeferred
	assert.False(t, c.IsActionable())
	assert.False(t, c.IsResolved())

	c.Status = CandidateStatusMerged
	assert.False(t, c.IsActionable())
	assert.True(t, c.IsResolved())

	c.Status = CandidateStatusRejected
	assert.True(t, c.IsResolved())
}

func TestReviewTransition(t *testing.T) {
	tests := []struct {
		name    string
		current string
		action  string
		want    string
		wantErr bool
	}{
		{name: "confirm pending", current: CandidateStatusPending, action: ReviewActionConfirm, want: CandidateStatusConfirmed},
		{name: "confirm deferred", current: CandidateStatusDeferred, action: ReviewActionConfirm, want: CandidateStatusConfirmed},
		{name: "reject pending", current: CandidateStatusPending, action: ReviewActionReject, want: CandidateStatusRejected},
		{name: "reject confirmed", current: CandidateStatusConfirmed, action: ReviewActionReject, want: CandidateStatusRejected},
		{name: "defer pending", current: CandidateStatusPending, action: ReviewActionDefer, want: CandidateStatusDeferred},
		{name: "reopen rejected", current: CandidateStatusRejected, action: ReviewActionReopen, want: CandidateStatusPending},
		{name: "reopen deferred", current: CandidateStatusDeferred, action: ReviewActionReopen, want: CandidateStatusPending},
		{name: "defer confirmed rejected", current: CandidateStatusConfirmed, action: ReviewActionDefer, wantErr: true},
		{name: "confirm rejected fails", current: CandidateStatusRejected, action: ReviewActionConfirm, wantErr: true},
		{name: "reopen pending fails", current: CandidateStatusPending, action: ReviewActionReopen, wantErr: true},
		{name: "merged accepts nothing", current: CandidateStatusMerged, action: ReviewActionConfirm, wantErr: true},
		{name: "merged cannot reopen", current: CandidateStatusMerged, action: ReviewActionReopen, wantErr: true},
		{name: "unknown action", current: CandidateStatusPending, action: "promote", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReviewTransition(tt.current, tt.action)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
