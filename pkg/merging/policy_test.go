package merging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanramirez88/resolve/pkg/models"
)

func sourceRecord(table, id string, updatedAt time.Time, fields map[string]any) *models.SourceRecord {
	return &models.SourceRecord{Table: table, ID: id, UpdatedAt: updatedAt, Fields: fields}
}

func TestResolveFields(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)

	kept := sourceRecord("clients", "c1", older, map[string]any{
		"email": "bob@example.com",
		"name":  "Bob Jones",
		"phone": "",
	})
	merged := sourceRecord("leads", "l1", newer, map[string]any{
		"email": "robert@example.com",
		"name":  "",
		"phone": "5551234567",
	})

	decisions := ResolveFields([]string{"email", "name", "phone", "company"}, kept, merged)
	require.Len(t, decisions, 3) // company has no value on either side

	byField := map[string]models.FieldDecision{}
	for _, d := range decisions {
		byField[d.Field] = d
	}

	// both populated, merged side is newer
	assert.Equal(t, merged.Ref(), byField["email"].Winner)
	assert.Equal(t, "robert@example.com", byField["email"].Value)

	// populated beats empty regardless of recency
	assert.Equal(t, kept.Ref(), byField["name"].Winner)
	assert.Equal(t, merged.Ref(), byField["phone"].Winner)
}

func TestResolveFieldsTieGoesToKeptSide(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	kept := sourceRecord("clients", "c1", ts, map[string]any{"email": "bob@example.com"})
	merged := sourceRecord("leads", "l1", ts, map[string]any{"email": "robert@example.com"})

	decisions := ResolveFields([]string{"email"}, kept, merged)
	require.Len(t, decisions, 1)
	assert.Equal(t, kept.Ref(), decisions[0].Winner)
	assert.Equal(t, "bob@example.com", decisions[0].Value)
}

func TestResolveFieldsOlderMergedLoses(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	kept := sourceRecord("clients", "c1", newer, map[string]any{"name": "Robert Jones"})
	merged := sourceRecord("leads", "l1", older, map[string]any{"name": "Bob Jones"})

	decisions := ResolveFields([]string{"name"}, kept, merged)
	require.Len(t, decisions, 1)
	assert.Equal(t, kept.Ref(), decisions[0].Winner)
}

func TestHasDownstreamMerges(t *testing.T) {
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	target := models.MergeRecord{ID: "m1", CreatedAt: base}
	later := models.MergeRecord{ID: "m2", CreatedAt: base.Add(time.Minute)}
	earlier := models.MergeRecord{ID: "m0", CreatedAt: base.Add(-time.Minute)}

	tests := []struct {
		name   string
		active []models.MergeRecord
		want   bool
	}{
		{name: "only the target itself", active: []models.MergeRecord{target}, want: false},
		{name: "earlier merge does not block", active: []models.MergeRecord{earlier, target}, want: false},
		{name: "later merge blocks", active: []models.MergeRecord{target, later}, want: true},
		{name: "no merges at all", active: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasDownstreamMerges(tt.active, target.ID, target.CreatedAt))
		})
	}
}

func TestRemoveRefs(t *testing.T) {
	a := models.EntityRef{Table: "leads", ID: "1"}
	b := models.EntityRef{Table: "clients", ID: "2"}
	c := models.EntityRef{Table: "leads", ID: "3"}

	assert.Equal(t, []models.EntityRef{b}, removeRefs([]models.EntityRef{a, b, c}, []models.EntityRef{a, c}))
	assert.Equal(t, []models.EntityRef{a, b}, removeRefs([]models.EntityRef{a, b}, nil))
	assert.Empty(t, removeRefs([]models.EntityRef{a}, []models.EntityRef{a}))
}

func TestBuildAliases(t *testing.T) {
	email := "bob@example.com"
	contact := &models.CanonicalContact{ID: "cc1", Email: &email}

	ts := time.Now()
	kept := sourceRecord("clients", "c1", ts, map[string]any{"email": "Bob@Example.com", "phone": "555-123-4567"})
	merged := sourceRecord("leads", "l1", ts, map[string]any{"email": "robert@old.example.com"})

	aliases := buildAliases(contact, "merge-1", []string{"email", "phone"}, kept, merged)

	byKey := map[string]models.EntityAlias{}
	for _, a := range aliases {
		byKey[string(a.AliasType)+":"+a.AliasValue] = a
	}

	// both emails are reachable, normalized
	require.Contains(t, byKey, "email:bob@example.com")
	require.Contains(t, byKey, "email:robert@old.example.com")
	require.Contains(t, byKey, "phone:5551234567")
	require.Contains(t, byKey, "domain:example.com")
	require.Contains(t, byKey, "domain:old.example.com")

	// the surviving email is the primary alias, the old one is not
	assert.True(t, byKey["email:bob@example.com"].IsPrimary)
	assert.False(t, byKey["email:robert@old.example.com"].IsPrimary)

	// every alias is tagged with the merge that created it
	for _, a := range aliases {
		require.NotNil(t, a.SourceMergeID)
		assert.Equal(t, "merge-1", *a.SourceMergeID)
	}
}
