// Package generator produces duplicate candidates for a rule by scanning
// collaborator tables in chunks, bucketing records under the rule's blocking
// key, and scoring pairs within each bucket across a worker pool.
package generator

import (
	"context"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/evanramirez88/resolve/pkg/database"
	"github.com/evanramirez88/resolve/pkg/events"
	"github.com/evanramirez88/resolve/pkg/matching"
	"github.com/evanramirez88/resolve/pkg/metrics"
	"github.com/evanramirez88/resolve/pkg/models"
	"github.com/evanramirez88/resolve/pkg/sources"
	"github.com/evanramirez88/resolve/pkg/tracing"
)

// ChunkFunc is invoked after every committed chunk with the counter delta.
// Returning an error aborts the scan; the orchestrator uses this for
// cancellation checks and lock extension.
type ChunkFunc func(ctx context.Context, delta models.RunCounters) error

// RecordSource pages through a collaborator table.
type RecordSource interface {
	FetchChunk(ctx context.Context, table string, fields []string, cursor string, limit int) (*sources.Chunk, error)
}

// CandidateStore persists scored candidates.
type CandidateStore interface {
	UpsertBatch(ctx context.Context, candidates []*models.DuplicateCandidate) error
}

// Generator scans source tables and persists scored duplicate candidates
type Generator struct {
	reader      RecordSource
	scorer      *matching.RuleScorer
	candidates  CandidateStore
	emitter     *events.Emitter
	logger      ectologger.Logger
	chunkSize   int
	workerCount int
}

// NewGenerator creates a new candidate generator
func NewGenerator(
	reader RecordSource,
	candidates CandidateStore,
	emitter *events.Emitter,
	logger ectologger.Logger,
	chunkSize int,
	workerCount int,
) *Generator {
	if chunkSize < 1 {
		chunkSize = 500
	}
	if workerCount < 1 {
		workerCount = 4
	}
	return &Generator{
		reader:      reader,
		scorer:      matching.NewRuleScorer(),
		candidates:  candidates,
		emitter:     emitter,
		logger:      logger,
		chunkSize:   chunkSize,
		workerCount: workerCount,
	}
}

type pair struct {
	a, b *models.SourceRecord
}

// GenerateForRule runs candidate generation for one rule. The target table is
// indexed into blocking buckets first; the source table is then scanned chunk
// by chunk and each record is scored against its bucket. Records whose
// blocking key is empty are skipped, so true matches that share no key are
// missed. That is the accepted trade-off for avoiding a full cross join.
func (g *Generator) GenerateForRule(ctx context.Context, rule *models.MatchRule, onChunk ChunkFunc) error {
	ctx, span := tracing.StartSpan(ctx, "generator.Generator.GenerateForRule")
	defer span.End()

	fields := rule.FieldNames()

	index, err := g.buildIndex(ctx, rule, fields, onChunk)
	if err != nil {
		return err
	}

	if rule.SourceTable == rule.TargetTable {
		return g.scanWithinIndex(ctx, rule, index, onChunk)
	}
	return g.scanAgainstIndex(ctx, rule, fields, index, onChunk)
}

// buildIndex scans the target table and buckets every blockable record. Only
// the rule's fields are held in memory.
func (g *Generator) buildIndex(ctx context.Context, rule *models.MatchRule, fields []string, onChunk ChunkFunc) (map[string][]*models.SourceRecord, error) {
	index := map[string][]*models.SourceRecord{}
	cursor := ""

	for {
		chunk, err := g.reader.FetchChunk(ctx, rule.TargetTable, fields, cursor, g.chunkSize)
		if err != nil {
			return nil, err
		}

		for _, rec := range chunk.Records {
			key := matching.BlockingKey(rule, rec)
			if key == "" {
				continue
			}
			index[key] = append(index[key], rec)
		}
		metrics.RecordsScannedTotal.WithLabelValues(rule.ID, rule.TargetTable).Add(float64(len(chunk.Records)))

		delta := models.RunCounters{RecordsScanned: len(chunk.Records)}
		if err := onChunk(ctx, delta); err != nil {
			return nil, err
		}

		if !chunk.HasMore {
			return index, nil
		}
		cursor = chunk.NextCursor
	}
}

// scanWithinIndex pairs records inside each bucket of a single-table rule.
func (g *Generator) scanWithinIndex(ctx context.Context, rule *models.MatchRule, index map[string][]*models.SourceRecord, onChunk ChunkFunc) error {
	batch := make([]pair, 0, g.chunkSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		delta, err := g.scoreAndStore(ctx, rule, batch)
		batch = batch[:0]
		if err != nil {
			return err
		}
		return onChunk(ctx, delta)
	}

	for _, bucket := range index {
		for i := 0; i < len(bucket); i++ {
			for j := i + 1; j < len(bucket); j++ {
				batch = append(batch, pair{a: bucket[i], b: bucket[j]})
				if len(batch) >= g.chunkSize {
					if err := flush(); err != nil {
						return err
					}
				}
			}
		}
	}
	return flush()
}

// scanAgainstIndex walks the source table in chunks and scores each record
// against its target bucket.
func (g *Generator) scanAgainstIndex(ctx context.Context, rule *models.MatchRule, fields []string, index map[string][]*models.SourceRecord, onChunk ChunkFunc) error {
	cursor := ""

	for {
		chunk, err := g.reader.FetchChunk(ctx, rule.SourceTable, fields, cursor, g.chunkSize)
		if err != nil {
			return err
		}

		var pairs []pair
		for _, rec := range chunk.Records {
			key := matching.BlockingKey(rule, rec)
			if key == "" {
				continue
			}
			for _, other := range index[key] {
				if other.Table == rec.Table && other.ID == rec.ID {
					continue
				}
				pairs = append(pairs, pair{a: rec, b: other})
			}
		}
		metrics.RecordsScannedTotal.WithLabelValues(rule.ID, rule.SourceTable).Add(float64(len(chunk.Records)))

		delta, err := g.scoreAndStore(ctx, rule, pairs)
		if err != nil {
			return err
		}
		delta.RecordsScanned = len(chunk.Records)
		if err := onChunk(ctx, delta); err != nil {
			return err
		}

		if !chunk.HasMore {
			return nil
		}
		cursor = chunk.NextCursor
	}
}

// scoreAndStore fans the pairs out across the worker pool, classifies the
// scores against the rule's thresholds, and upserts the survivors.
func (g *Generator) scoreAndStore(ctx context.Context, rule *models.MatchRule, pairs []pair) (models.RunCounters, error) {
	var counters models.RunCounters
	if len(pairs) == 0 {
		return counters, nil
	}

	jobs := make(chan pair)
	var mu sync.Mutex
	var found []*models.DuplicateCandidate
	var wg sync.WaitGroup

	workers := g.workerCount
	if workers > len(pairs) {
		workers = len(pairs)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				score, breakdown := g.scorer.ScoreRecords(rule, p.a, p.b)
				if score < rule.IgnoreThreshold {
					continue
				}
				e1, e2 := models.CanonicalizePair(p.a.Ref(), p.b.Ref())
				c := &models.DuplicateCandidate{
					RuleID:          rule.ID,
					Entity1Table:    e1.Table,
					Entity1ID:       e1.ID,
					Entity2Table:    e2.Table,
					Entity2ID:       e2.ID,
					ConfidenceScore: score,
					MatchDetails:    database.NewJSONB(breakdown),
					AutoMerge:       score >= rule.AutoMergeThreshold,
					Status:          models.CandidateStatusPending,
				}
				mu.Lock()
				found = append(found, c)
				mu.Unlock()
			}
		}()
	}

	for _, p := range pairs {
		jobs <- p
	}
	close(jobs)
	wg.Wait()

	metrics.PairsScoredTotal.WithLabelValues(rule.ID).Add(float64(len(pairs)))

	// the same pair can surface from both scan directions; one batch may not
	// touch a row twice
	seen := map[string]bool{}
	batch := make([]*models.DuplicateCandidate, 0, len(found))
	for _, c := range found {
		key := c.Entity1Table + "/" + c.Entity1ID + "|" + c.Entity2Table + "/" + c.Entity2ID
		if seen[key] {
			continue
		}
		seen[key] = true
		batch = append(batch, c)
	}

	if err := g.candidates.UpsertBatch(ctx, batch); err != nil {
		return counters, err
	}

	for _, c := range batch {
		counters.CandidatesFound++
		switch {
		case c.AutoMerge:
			metrics.CandidatesFoundTotal.WithLabelValues(rule.ID, "auto_merge").Inc()
		case c.ConfidenceScore >= rule.ReviewThreshold:
			counters.PendingReview++
			metrics.CandidatesFoundTotal.WithLabelValues(rule.ID, "review").Inc()
		default:
			metrics.CandidatesFoundTotal.WithLabelValues(rule.ID, "stored").Inc()
		}
		g.emitter.EmitCandidateFound(ctx, c)
	}

	return counters, nil
}
