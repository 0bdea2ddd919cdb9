package models

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/evanramirez88/resolve/pkg/database"
	"github.com/evanramirez88/resolve/pkg/errs"
)

func validRule() *MatchRule {
	return &MatchRule{
		Name:        "lead to client",
		SourceTable: "leads",
		TargetTable: "clients",
		Fields: database.NewJSONB([]MatchField{
			{Field: "email", Method: MatchMethodExact, Weight: 0.5},
			{Field: "name", Method: MatchMethodFuzzy, Weight: 0.5},
		}),
		Options:            database.NewJSONB(MatchRuleOptions{BlockingKey: BlockingKeyEmailPrefix}),
		IgnoreThreshold:    0.3,
		ReviewThreshold:    0.7,
		AutoMergeThreshold: 0.95,
	}
}

func TestMatchRuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*MatchRule)
		wantErr bool
	}{
		{
			name:   "valid rule",
			mutate: func(r *MatchRule) {},
		},
		{
			name:    "no fields",
			mutate:  func(r *MatchRule) { r.Fields = database.NewJSONB([]MatchField{}) },
			wantErr: true,
		},
		{
			name: "ignore above review",
			mutate: func(r *MatchRule) {
				r.IgnoreThreshold = 0.8
				r.ReviewThreshold = 0.7
			},
			wantErr: true,
		},
		{
			name: "review above auto merge",
			mutate: func(r *MatchRule) {
				r.ReviewThreshold = 0.99
			},
			wantErr: true,
		},
		{
			name: "equal thresholds allowed",
			mutate: func(r *MatchRule) {
				r.IgnoreThreshold = 0.7
				r.ReviewThreshold = 0.7
				r.AutoMergeThreshold = 0.7
			},
		},
		{
			name: "unknown match method",
			mutate: func(r *MatchRule) {
				r.Fields = database.NewJSONB([]MatchField{{Field: "email", Method: "regex", Weight: 1}})
			},
			wantErr: true,
		},
		{
			name: "negative weight",
			mutate: func(r *MatchRule) {
				r.Fields = database.NewJSONB([]MatchField{{Field: "email", Method: MatchMethodExact, Weight: -0.1}})
			},
			wantErr: true,
		},
		{
			name: "empty field name",
			mutate: func(r *MatchRule) {
				r.Fields = database.NewJSONB([]MatchField{{Field: "", Method: MatchMethodExact, Weight: 1}})
			},
			wantErr: true,
		},
		{
			name: "unknown blocking key",
			mutate: func(r *MatchRule) {
				r.Options = database.NewJSONB(MatchRuleOptions{BlockingKey: "zipcode"})
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := validRule()
			tt.mutate(rule)
			err := rule.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errs.IsStatus(err, 400))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMatchRuleFieldNames(t *testing.T) {
	rule := validRule()
	assert.Equal(t, []string{"email", "name"}, rule.FieldNames())
}
