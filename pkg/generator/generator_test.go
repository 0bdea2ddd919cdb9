package generator

import (
	"context"
	"sort"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanramirez88/resolve/pkg/database"
	"github.com/evanramirez88/resolve/pkg/events"
	"github.com/evanramirez88/resolve/pkg/models"
	"github.com/evanramirez88/resolve/pkg/sources"
)

// fakeSource serves canned records per table, honoring cursor pagination.
type fakeSource struct {
	tables map[string][]*models.SourceRecord
}

func (f *fakeSource) FetchChunk(ctx context.Context, table string, fields []string, cursor string, limit int) (*sources.Chunk, error) {
	records := append([]*models.SourceRecord{}, f.tables[table]...)
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	chunk := &sources.Chunk{}
	for _, rec := range records {
		if cursor != "" && rec.ID <= cursor {
			continue
		}
		chunk.Records = append(chunk.Records, rec)
		chunk.NextCursor = rec.ID
		if len(chunk.Records) == limit {
			break
		}
	}
	chunk.HasMore = len(chunk.Records) == limit
	return chunk, nil
}

// fakeStore records every upserted batch.
type fakeStore struct {
	batches [][]*models.DuplicateCandidate
}

func (f *fakeStore) UpsertBatch(ctx context.Context, candidates []*models.DuplicateCandidate) error {
	if len(candidates) > 0 {
		f.batches = append(f.batches, candidates)
	}
	return nil
}

func (f *fakeStore) all() []*models.DuplicateCandidate {
	var out []*models.DuplicateCandidate
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

func testGenerator(source *fakeSource, store *fakeStore) *Generator {
	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
	return NewGenerator(source, store, events.NewEmitter(nil, logger), logger, 100, 2)
}

func genRule() *models.MatchRule {
	return &models.MatchRule{
		ID:          "rule-1",
		Name:        "lead to client",
		SourceTable: "leads",
		TargetTable: "clients",
		Fields: database.NewJSONB([]models.MatchField{
			{Field: "email", Method: models.MatchMethodExact, Weight: 0.5},
			{Field: "name", Method: models.MatchMethodFuzzy, Weight: 0.5},
		}),
		Options:            database.NewJSONB(models.MatchRuleOptions{BlockingKey: models.BlockingKeyEmailPrefix}),
		IgnoreThreshold:    0.3,
		ReviewThreshold:    0.7,
		AutoMergeThreshold: 0.95,
		IsActive:           true,
	}
}

func srcRecord(table, id string, fields map[string]any) *models.SourceRecord {
	return &models.SourceRecord{Table: table, ID: id, Fields: fields}
}

func noChunk(counters *models.RunCounters) ChunkFunc {
	return func(ctx context.Context, delta models.RunCounters) error {
		counters.RecordsScanned += delta.RecordsScanned
		counters.CandidatesFound += delta.CandidatesFound
		counters.PendingReview += delta.PendingReview
		return nil
	}
}

func TestGenerateForRuleThresholdClassification(t *testing.T) {
	source := &fakeSource{tables: map[string][]*models.SourceRecord{
		"clients": {
			srcRecord("clients", "c1", map[string]any{"email": "bob@example.com", "name": "Jon Smith"}),
		},
		"leads": {
			// exact duplicate: score 1.0, at or above auto_merge
			srcRecord("leads", "l1", map[string]any{"email": "bob@example.com", "name": "Jon Smith"}),
			// same email, near-identical name: review band
			srcRecord("leads", "l2", map[string]any{"email": "bob@example.com", "name": "Jon Smyth"}),
			// different email, identical name: stored below review
			srcRecord("leads", "l3", map[string]any{"email": "bob2@example.com", "name": "Jon Smith"}),
			// shares only the blocking bucket: below ignore, dropped
			srcRecord("leads", "l4", map[string]any{"email": "bob9@example.com", "name": "Zelda Quux"}),
		},
	}}
	store := &fakeStore{}
	gen := testGenerator(source, store)

	var counters models.RunCounters
	err := gen.GenerateForRule(context.Background(), genRule(), noChunk(&counters))
	require.NoError(t, err)

	stored := store.all()
	require.Len(t, stored, 3)

	byLead := map[string]*models.DuplicateCandidate{}
	for _, c := range stored {
		assert.Equal(t, models.CandidateStatusPending, c.Status)
		byLead[c.Entity2ID] = c
	}

	require.Contains(t, byLead, "l1")
	assert.True(t, byLead["l1"].AutoMerge)
	assert.InDelta(t, 1.0, byLead["l1"].ConfidenceScore, 0.0001)

	require.Contains(t, byLead, "l2")
	assert.False(t, byLead["l2"].AutoMerge)
	assert.GreaterOrEqual(t, byLead["l2"].ConfidenceScore, 0.7)

	require.Contains(t, byLead, "l3")
	assert.False(t, byLead["l3"].AutoMerge)
	assert.Less(t, byLead["l3"].ConfidenceScore, 0.7)

	assert.NotContains(t, byLead, "l4")

	assert.Equal(t, 5, counters.RecordsScanned) // one client plus four leads
	assert.Equal(t, 3, counters.CandidatesFound)
	assert.Equal(t, 1, counters.PendingReview) // l2 only: l1 auto-merges, l3 just stores
}

func TestGenerateForRulePairsAreCanonicalized(t *testing.T) {
	source := &fakeSource{tables: map[string][]*models.SourceRecord{
		"clients": {
			srcRecord("clients", "c1", map[string]any{"email": "bob@example.com", "name": "Jon Smith"}),
		},
		"leads": {
			srcRecord("leads", "l1", map[string]any{"email": "bob@example.com", "name": "Jon Smith"}),
		},
	}}
	store := &fakeStore{}
	gen := testGenerator(source, store)

	var counters models.RunCounters
	err := gen.GenerateForRule(context.Background(), genRule(), noChunk(&counters))
	require.NoError(t, err)

	stored := store.all()
	require.Len(t, stored, 1)

	// the pair was scored as (lead, client) but is stored in canonical order
	assert.Equal(t, "clients", stored[0].Entity1Table)
	assert.Equal(t, "c1", stored[0].Entity1ID)
	assert.Equal(t, "leads", stored[0].Entity2Table)
	assert.Equal(t, "l1", stored[0].Entity2ID)
}

func TestScoreAndStoreDedupesMirroredPairs(t *testing.T) {
	a := srcRecord("contacts", "a", map[string]any{"email": "bob@example.com", "name": "Jon Smith"})
	b := srcRecord("contacts", "b", map[string]any{"email": "bob@example.com", "name": "Jon Smith"})

	store := &fakeStore{}
	gen := testGenerator(&fakeSource{}, store)

	rule := genRule()
	rule.SourceTable = "contacts"
	rule.TargetTable = "contacts"

	// the same pair surfacing in both directions must reach the upsert once
	counters, err := gen.scoreAndStore(context.Background(), rule, []pair{{a: a, b: b}, {a: b, b: a}})
	require.NoError(t, err)

	stored := store.all()
	require.Len(t, stored, 1)
	assert.Equal(t, "a", stored[0].Entity1ID)
	assert.Equal(t, "b", stored[0].Entity2ID)
	assert.Equal(t, 1, counters.CandidatesFound)
}

func TestGenerateForRuleSameTablePairsWithinBuckets(t *testing.T) {
	source := &fakeSource{tables: map[string][]*models.SourceRecord{
		"contacts": {
			srcRecord("contacts", "a", map[string]any{"email": "bob@example.com", "name": "Jon Smith"}),
			srcRecord("contacts", "b", map[string]any{"email": "bob@example.com", "name": "Jon Smith"}),
			srcRecord("contacts", "c", map[string]any{"email": "zoe@example.com", "name": "Zoe Ray"}),
		},
	}}
	store := &fakeStore{}
	gen := testGenerator(source, store)

	rule := genRule()
	rule.SourceTable = "contacts"
	rule.TargetTable = "contacts"

	var counters models.RunCounters
	err := gen.GenerateForRule(context.Background(), rule, noChunk(&counters))
	require.NoError(t, err)

	// only a and b share the e:bob bucket; c is never compared
	stored := store.all()
	require.Len(t, stored, 1)
	assert.Equal(t, "a", stored[0].Entity1ID)
	assert.Equal(t, "b", stored[0].Entity2ID)
}
