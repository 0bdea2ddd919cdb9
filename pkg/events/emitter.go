// Package events publishes resolution lifecycle events for external consumers
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/evanramirez88/resolve/pkg/kafka"
	"github.com/evanramirez88/resolve/pkg/models"
	"github.com/evanramirez88/resolve/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter publishes resolution events. Emission is best-effort: a publish
// failure is logged but never fails the transaction that produced the change.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitCandidateFound emits an event for a newly stored duplicate candidate
func (e *Emitter) EmitCandidateFound(ctx context.Context, candidate *models.DuplicateCandidate) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitCandidateFound")
	defer span.End()

	if e.producer == nil {
		return
	}

	data, _ := json.Marshal(map[string]any{
		"schema_version":   SchemaVersion,
		"rule_id":          candidate.RuleID,
		"entity1":          candidate.Entity1(),
		"entity2":          candidate.Entity2(),
		"confidence_score": candidate.ConfidenceScore,
		"auto_merge":       candidate.AutoMerge,
	})

	event := &kafka.ResolutionEvent{
		EventType: "candidate.found",
		SubjectID: candidate.ID,
		Data:      data,
	}

	if err := e.producer.PublishResolutionEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit candidate.found event")
	}
}

// EmitMergeApplied emits an event after a merge commits
func (e *Emitter) EmitMergeApplied(ctx context.Context, record *models.MergeRecord) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitMergeApplied")
	defer span.End()

	if e.producer == nil {
		return
	}

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"candidate_id":   record.CandidateID,
		"kept":           models.EntityRef{Table: record.KeptTable, ID: record.KeptID},
		"merged":         models.EntityRef{Table: record.MergedTable, ID: record.MergedID},
		"decided_by":     record.DecidedBy,
	})

	event := &kafka.ResolutionEvent{
		EventType:          "merge.applied",
		SubjectID:          record.ID,
		CanonicalContactID: record.CanonicalContactID,
		Data:               data,
	}

	if err := e.producer.PublishResolutionEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit merge.applied event")
	}
}

// EmitMergeRolledBack emits an event after a rollback commits
func (e *Emitter) EmitMergeRolledBack(ctx context.Context, record *models.MergeRecord, reason string) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitMergeRolledBack")
	defer span.End()

	if e.producer == nil {
		return
	}

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"candidate_id":   record.CandidateID,
		"reason":         reason,
	})

	event := &kafka.ResolutionEvent{
		EventType:          "merge.rolled_back",
		SubjectID:          record.ID,
		CanonicalContactID: record.CanonicalContactID,
		Data:               data,
	}

	if err := e.producer.PublishResolutionEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit merge.rolled_back event")
	}
}

// EmitCanonicalUpdated emits an event when a canonical contact changes
func (e *Emitter) EmitCanonicalUpdated(ctx context.Context, contact *models.CanonicalContact) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitCanonicalUpdated")
	defer span.End()

	if e.producer == nil {
		return
	}

	data, _ := json.Marshal(map[string]any{
		"schema_version":    SchemaVersion,
		"linked_records":    contact.LinkedRecords.Data,
		"data_completeness": contact.DataCompleteness,
	})

	event := &kafka.ResolutionEvent{
		EventType:          "canonical.updated",
		SubjectID:          contact.ID,
		CanonicalContactID: contact.ID,
		Data:               data,
	}

	if err := e.producer.PublishResolutionEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit canonical.updated event")
	}
}
