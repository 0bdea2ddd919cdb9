// Package merging applies and reverses record consolidations. Every merge is
// a single database transaction: the snapshot, the canonical update, the
// alias writes, and the candidate transition commit or roll back together.
package merging

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/evanramirez88/resolve/internal/repositories/candidate"
	"github.com/evanramirez88/resolve/internal/repositories/canonicalcontact"
	"github.com/evanramirez88/resolve/internal/repositories/matchrule"
	"github.com/evanramirez88/resolve/internal/repositories/mergerecord"
	"github.com/evanramirez88/resolve/pkg/canonical"
	"github.com/evanramirez88/resolve/pkg/database"
	"github.com/evanramirez88/resolve/pkg/errs"
	"github.com/evanramirez88/resolve/pkg/events"
	"github.com/evanramirez88/resolve/pkg/matching"
	"github.com/evanramirez88/resolve/pkg/metrics"
	"github.com/evanramirez88/resolve/pkg/models"
	"github.com/evanramirez88/resolve/pkg/normalizers"
	"github.com/evanramirez88/resolve/pkg/sources"
	"github.com/evanramirez88/resolve/pkg/tracing"
)

// Engine applies confirmed candidates to the canonical store and reverses
// applied merges.
type Engine struct {
	db         database.DB
	candidates *candidate.Repository
	rules      *matchrule.Repository
	merges     *mergerecord.Repository
	contacts   *canonicalcontact.Repository
	canonical  *canonical.Service
	reader     *sources.Reader
	emitter    *events.Emitter
	logger     ectologger.Logger
}

// NewEngine creates a new merge engine
func NewEngine(
	db database.DB,
	candidates *candidate.Repository,
	rules *matchrule.Repository,
	merges *mergerecord.Repository,
	contacts *canonicalcontact.Repository,
	canonicalSvc *canonical.Service,
	reader *sources.Reader,
	emitter *events.Emitter,
	logger ectologger.Logger,
) *Engine {
	return &Engine{
		db:         db,
		candidates: candidates,
		rules:      rules,
		merges:     merges,
		contacts:   contacts,
		canonical:  canonicalSvc,
		reader:     reader,
		emitter:    emitter,
		logger:     logger,
	}
}

// Merge consolidates the two records of a candidate into a canonical contact.
// The candidate must still be pending or confirmed. The whole operation runs
// in one transaction; on any failure nothing is persisted and the candidate
// stays actionable.
func (e *Engine) Merge(ctx context.Context, candidateID string, decidedBy string) (*models.MergeRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Merge")
	defer span.End()

	ctxTx, tx, err := database.GetTx(ctx, e.logger, e.db, nil)
	if err != nil {
		return nil, errs.Internal("failed to begin merge transaction")
	}
	// rollback with the pre-transaction context so it actually fires when we
	// bail out before the commit
	defer tx.Rollback(ctx)

	cand, err := e.candidates.GetForUpdate(ctxTx, candidateID)
	if err != nil {
		return nil, err
	}
	if !cand.IsActionable() {
		return nil, errs.AlreadyResolvedf("candidate %s is already %s", cand.ID, cand.Status)
	}

	rule, err := e.rules.Get(ctxTx, cand.RuleID)
	if err != nil {
		return nil, err
	}
	fields := rule.FieldNames()

	rec1, err := e.reader.FetchRecord(ctxTx, cand.Entity1(), fields)
	if err != nil {
		return nil, err
	}
	rec2, err := e.reader.FetchRecord(ctxTx, cand.Entity2(), fields)
	if err != nil {
		return nil, err
	}

	kept, merged, contact, err := e.resolveSides(ctxTx, rec1, rec2)
	if err != nil {
		return nil, err
	}

	decisions := ResolveFields(fields, kept, merged)

	created := contact == nil
	if created {
		contact = &models.CanonicalContact{
			LinkedRecords: database.NewJSONB([]models.EntityRef{}),
		}
	}
	applyDecisions(contact, decisions)

	var added []models.EntityRef
	for _, ref := range []models.EntityRef{kept.Ref(), merged.Ref()} {
		if !contact.HasLinkedRecord(ref) {
			contact.LinkedRecords.Data = append(contact.LinkedRecords.Data, ref)
			added = append(added, ref)
		}
	}
	contact.DataCompleteness = canonical.Completeness(contact, e.canonical.Weights())

	if created {
		if contact, err = e.contacts.Create(ctxTx, contact); err != nil {
			return nil, err
		}
	} else {
		if contact, err = e.contacts.Update(ctxTx, contact); err != nil {
			return nil, err
		}
	}

	record := &models.MergeRecord{
		CandidateID:        cand.ID,
		CanonicalContactID: contact.ID,
		KeptTable:          kept.Table,
		KeptID:             kept.ID,
		MergedTable:        merged.Table,
		MergedID:           merged.ID,
		MergedData: database.NewJSONB(models.MergeSnapshot{
			Kept:   models.RecordSnapshot(kept.Fields),
			Merged: models.RecordSnapshot(merged.Fields),
		}),
		AddedRecords:   database.NewJSONB(added),
		FieldDecisions: database.NewJSONB(decisions),
		DecidedBy:      decidedBy,
	}
	if record, err = e.merges.Create(ctxTx, record); err != nil {
		return nil, err
	}

	for _, alias := range buildAliases(contact, record.ID, fields, kept, merged) {
		if err := e.contacts.UpsertAlias(ctxTx, &alias); err != nil {
			return nil, err
		}
	}

	if err := e.candidates.UpdateStatus(ctxTx, cand.ID, models.CandidateStatusMerged, &decidedBy); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.MergesTotal.WithLabelValues("merge", "failed").Inc()
		return nil, errs.Internal("failed to commit merge")
	}

	metrics.MergesTotal.WithLabelValues("merge", "applied").Inc()
	e.emitter.EmitMergeApplied(ctx, record)
	e.emitter.EmitCanonicalUpdated(ctx, contact)

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"merge_id":     record.ID,
		"candidate_id": cand.ID,
		"canonical_id": contact.ID,
		"decided_by":   decidedBy,
	}).Info("Merge applied")

	return record, nil
}

// Rollback reverses an active merge: the merge record is marked rolled back,
// the linked records and aliases the merge added are removed, and the
// candidate returns to confirmed so it can be re-decided. A later active
// merge on the same canonical contact blocks the rollback.
func (e *Engine) Rollback(ctx context.Context, mergeID string, rolledBackBy string, reason string) (*models.MergeRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Rollback")
	defer span.End()

	ctxTx, tx, err := database.GetTx(ctx, e.logger, e.db, nil)
	if err != nil {
		return nil, errs.Internal("failed to begin rollback transaction")
	}
	defer tx.Rollback(ctx)

	record, err := e.merges.Get(ctxTx, mergeID)
	if err != nil {
		return nil, err
	}
	if record.Status != models.MergeStatusActive {
		return nil, errs.AlreadyResolvedf("merge %s is already rolled back", mergeID)
	}

	contact, err := e.contacts.GetForUpdate(ctxTx, record.CanonicalContactID)
	if err != nil {
		return nil, err
	}

	active, err := e.merges.ListActiveByCanonical(ctxTx, contact.ID)
	if err != nil {
		return nil, err
	}
	if HasDownstreamMerges(active, record.ID, record.CreatedAt) {
		return nil, errs.RollbackConflictf(
			"merge %s cannot be rolled back: later merges exist on canonical contact %s", mergeID, contact.ID)
	}

	if err := e.merges.MarkRolledBack(ctxTx, mergeID, rolledBackBy, reason); err != nil {
		return nil, err
	}

	contact.LinkedRecords.Data = removeRefs(contact.LinkedRecords.Data, record.AddedRecords.Data)
	if err := e.contacts.DeleteAliasesByMerge(ctxTx, mergeID); err != nil {
		return nil, err
	}
	contact.DataCompleteness = canonical.Completeness(contact, e.canonical.Weights())
	if contact, err = e.contacts.Update(ctxTx, contact); err != nil {
		return nil, err
	}

	if err := e.candidates.UpdateStatus(ctxTx, record.CandidateID, models.CandidateStatusConfirmed, &rolledBackBy); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.MergesTotal.WithLabelValues("rollback", "failed").Inc()
		return nil, errs.Internal("failed to commit rollback")
	}

	metrics.MergesTotal.WithLabelValues("rollback", "applied").Inc()
	e.emitter.EmitMergeRolledBack(ctx, record, reason)
	e.emitter.EmitCanonicalUpdated(ctx, contact)

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"merge_id":       mergeID,
		"canonical_id":   contact.ID,
		"rolled_back_by": rolledBackBy,
	}).Info("Merge rolled back")

	return record, nil
}

// resolveSides picks which record is kept and which folds in. A record
// already linked to a canonical contact is always the kept side; when neither
// is linked, the older record is kept. Records linked to two different
// canonical contacts cannot be merged directly.
func (e *Engine) resolveSides(ctx context.Context, rec1, rec2 *models.SourceRecord) (kept, merged *models.SourceRecord, contact *models.CanonicalContact, err error) {
	c1, err := e.contacts.FindByLinkedRecord(ctx, rec1.Ref())
	if err != nil {
		return nil, nil, nil, err
	}
	c2, err := e.contacts.FindByLinkedRecord(ctx, rec2.Ref())
	if err != nil {
		return nil, nil, nil, err
	}

	switch {
	case c1 != nil && c2 != nil && c1.ID != c2.ID:
		return nil, nil, nil, errs.AlreadyResolvedf(
			"records %s/%s and %s/%s already resolve to different canonical contacts",
			rec1.Table, rec1.ID, rec2.Table, rec2.ID)
	case c1 != nil:
		contact, err = e.contacts.GetForUpdate(ctx, c1.ID)
		return rec1, rec2, contact, err
	case c2 != nil:
		contact, err = e.contacts.GetForUpdate(ctx, c2.ID)
		return rec2, rec1, contact, err
	}

	if rec2.UpdatedAt.Before(rec1.UpdatedAt) {
		return rec2, rec1, nil, nil
	}
	return rec1, rec2, nil, nil
}

// applyDecisions writes the winning field values onto the contact. Email is
// stored normalized because the canonical store enforces uniqueness on it;
// other fields keep their raw trimmed value.
func applyDecisions(contact *models.CanonicalContact, decisions []models.FieldDecision) {
	for _, d := range decisions {
		target := matching.CanonicalField(d.Field)
		if target == "" {
			continue
		}
		value, _ := d.Value.(string)
		if target == "email" {
			value = normalizers.NormalizeEmail(value)
		} else {
			value = normalizers.Trim(value)
		}
		if value == "" {
			continue
		}
		contact.SetFieldValue(target, value)
	}
}

// buildAliases derives the alias rows a merge contributes: every identity
// value from either record becomes a lookup key, plus the email domain. The
// alias matching the contact's surviving value is primary.
func buildAliases(contact *models.CanonicalContact, mergeID string, fields []string, records ...*models.SourceRecord) []models.EntityAlias {
	var aliases []models.EntityAlias
	seen := map[string]bool{}

	add := func(aliasType models.AliasType, raw string) {
		value := canonical.NormalizeAliasValue(aliasType, raw)
		if value == "" {
			return
		}
		key := string(aliasType) + ":" + value
		if seen[key] {
			return
		}
		seen[key] = true

		primary := false
		if field := string(aliasType); field != string(models.AliasTypeDomain) {
			if current := contact.FieldValue(field); current != nil {
				primary = canonical.NormalizeAliasValue(aliasType, *current) == value
			}
		}

		aliases = append(aliases, models.EntityAlias{
			CanonicalContactID: contact.ID,
			AliasType:          aliasType,
			AliasValue:         value,
			IsPrimary:          primary,
			SourceMergeID:      &mergeID,
		})
	}

	for _, rec := range records {
		for _, field := range fields {
			target := matching.CanonicalField(field)
			if target == "" || target == "address" {
				continue
			}
			raw := rec.FieldString(field)
			if raw == "" {
				continue
			}
			add(models.AliasType(target), raw)
			if target == "email" {
				add(models.AliasTypeDomain, raw)
			}
		}
	}

	return aliases
}

// removeRefs returns linked minus the refs in drop, preserving order.
func removeRefs(linked, drop []models.EntityRef) []models.EntityRef {
	if len(drop) == 0 {
		return linked
	}
	out := make([]models.EntityRef, 0, len(linked))
	for _, r := range linked {
		removed := false
		for _, d := range drop {
			if r == d {
				removed = true
				break
			}
		}
		if !removed {
			out = append(out, r)
		}
	}
	return out
}
