// Package runner orchestrates deduplication runs: one batch execution of
// candidate generation (and optional auto-merging) over a set of rules.
package runner

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/evanramirez88/resolve/internal/repositories/candidate"
	"github.com/evanramirez88/resolve/internal/repositories/deduprun"
	"github.com/evanramirez88/resolve/internal/repositories/matchrule"
	"github.com/evanramirez88/resolve/pkg/database"
	"github.com/evanramirez88/resolve/pkg/errs"
	"github.com/evanramirez88/resolve/pkg/generator"
	"github.com/evanramirez88/resolve/pkg/merging"
	"github.com/evanramirez88/resolve/pkg/metrics"
	"github.com/evanramirez88/resolve/pkg/models"
	"github.com/evanramirez88/resolve/pkg/redis"
	"github.com/evanramirez88/resolve/pkg/reqcontext"
	"github.com/evanramirez88/resolve/pkg/tracing"
)

// errCancelled aborts a scan when the run's cancellation flag is set
var errCancelled = errors.New("run cancelled")

// Options tunes run execution
type Options struct {
	LockTTL          time.Duration
	LockRetryTimeout time.Duration
	AutoMergeEnabled bool
	MergeBatchSize   int
}

// Orchestrator executes deduplication runs. Each rule is guarded by a
// distributed lock so two runs never scan the same rule concurrently; runs
// over disjoint rules proceed in parallel.
type Orchestrator struct {
	runs       *deduprun.Repository
	rules      *matchrule.Repository
	candidates *candidate.Repository
	generator  *generator.Generator
	engine     *merging.Engine
	locker     *redis.Locker
	logger     ectologger.Logger
	opts       Options
}

// NewOrchestrator creates a new run orchestrator
func NewOrchestrator(
	runs *deduprun.Repository,
	rules *matchrule.Repository,
	candidates *candidate.Repository,
	gen *generator.Generator,
	engine *merging.Engine,
	locker *redis.Locker,
	logger ectologger.Logger,
	opts Options,
) *Orchestrator {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 5 * time.Minute
	}
	if opts.LockRetryTimeout <= 0 {
		opts.LockRetryTimeout = 5 * time.Second
	}
	if opts.MergeBatchSize < 1 {
		opts.MergeBatchSize = 100
	}
	return &Orchestrator{
		runs:       runs,
		rules:      rules,
		candidates: candidates,
		generator:  gen,
		engine:     engine,
		locker:     locker,
		logger:     logger,
		opts:       opts,
	}
}

// Trigger validates the requested rules, records the run, and starts it in
// the background. The run row is returned immediately in the running state.
func (o *Orchestrator) Trigger(ctx context.Context, ruleIDs []string) (*models.DeduplicationRun, error) {
	ctx, span := tracing.StartSpan(ctx, "runner.Orchestrator.Trigger")
	defer span.End()

	if len(ruleIDs) == 0 {
		return nil, errs.InvalidRule("run requires at least one rule")
	}

	rules := make([]*models.MatchRule, 0, len(ruleIDs))
	for _, id := range ruleIDs {
		rule, err := o.rules.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !rule.IsActive {
			return nil, errs.InvalidRulef("rule %s is not active", id)
		}
		rules = append(rules, rule)
	}

	run := &models.DeduplicationRun{
		RuleIDs: database.NewJSONB(ruleIDs),
	}
	run, err := o.runs.Create(ctx, run)
	if err != nil {
		return nil, err
	}

	// runs outlive the triggering request
	bg := reqcontext.SetActor(context.Background(), models.SystemActor)
	go o.execute(bg, run, rules)

	return run, nil
}

// Get retrieves a run
func (o *Orchestrator) Get(ctx context.Context, id string) (*models.DeduplicationRun, error) {
	return o.runs.Get(ctx, id)
}

// List retrieves recent runs
func (o *Orchestrator) List(ctx context.Context, limit int) ([]models.DeduplicationRun, error) {
	return o.runs.List(ctx, limit)
}

// Cancel flags a running run for cancellation. The run stops at the next
// chunk boundary; chunks already committed keep their candidates.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "runner.Orchestrator.Cancel")
	defer span.End()

	return o.runs.RequestCancel(ctx, id)
}

func (o *Orchestrator) execute(ctx context.Context, run *models.DeduplicationRun, rules []*models.MatchRule) {
	start := time.Now()
	metrics.RunsInFlight.Inc()
	defer metrics.RunsInFlight.Dec()

	status := models.RunStatusCompleted
	var errorMessage *string

	for _, rule := range rules {
		err := o.runRule(ctx, run, rule)
		if err == nil {
			continue
		}
		if errors.Is(err, errCancelled) {
			status = models.RunStatusCancelled
		} else {
			status = models.RunStatusFailed
			msg := err.Error()
			errorMessage = &msg
			o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"run_id":  run.ID,
				"rule_id": rule.ID,
			}).Error("Rule execution failed")
		}
		// candidates from rules that already finished stay persisted
		break
	}

	if err := o.runs.Finish(ctx, run.ID, status, errorMessage); err != nil {
		o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": run.ID}).Error("Failed to finish run")
	}

	metrics.RunDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	o.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":   run.ID,
		"status":   status,
		"duration": time.Since(start).String(),
	}).Info("Run finished")
}

// runRule generates candidates for one rule under its distributed lock, then
// applies eligible auto-merges.
func (o *Orchestrator) runRule(ctx context.Context, run *models.DeduplicationRun, rule *models.MatchRule) error {
	lock, err := o.locker.TryAcquire(ctx, "rule:"+rule.ID, o.opts.LockTTL, o.opts.LockRetryTimeout)
	if err != nil {
		if errors.Is(err, redis.ErrLockNotAcquired) {
			return errs.RunFailure("rule " + rule.ID + " is locked by another run")
		}
		return err
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"rule_id": rule.ID}).Warn("Failed to release rule lock")
		}
	}()

	onChunk := func(ctx context.Context, delta models.RunCounters) error {
		if err := o.runs.AddCounters(ctx, run.ID, delta); err != nil {
			return err
		}
		cancelled, err := o.runs.IsCancelRequested(ctx, run.ID)
		if err != nil {
			return err
		}
		if cancelled {
			return errCancelled
		}
		if err := lock.Extend(ctx, o.opts.LockTTL); err != nil {
			o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"rule_id": rule.ID}).Warn("Failed to extend rule lock")
		}
		return nil
	}

	if err := o.generator.GenerateForRule(ctx, rule, onChunk); err != nil {
		return err
	}

	if !o.opts.AutoMergeEnabled {
		return nil
	}
	return o.autoMerge(ctx, run, rule)
}

// autoMerge applies candidates the generator flagged for automatic merging.
// Conflicts (a record consumed by an earlier merge in the same batch) are
// skipped, not fatal.
func (o *Orchestrator) autoMerge(ctx context.Context, run *models.DeduplicationRun, rule *models.MatchRule) error {
	for {
		eligible, err := o.candidates.ListAutoMergeEligible(ctx, rule.ID, o.opts.MergeBatchSize)
		if err != nil {
			return err
		}
		if len(eligible) == 0 {
			return nil
		}

		merged := 0
		for i := range eligible {
			if _, err := o.engine.Merge(ctx, eligible[i].ID, models.SystemActor); err != nil {
				if errs.IsConflict(err) {
					continue
				}
				return err
			}
			merged++
		}

		if merged > 0 {
			if err := o.runs.AddCounters(ctx, run.ID, models.RunCounters{AutoMerged: merged}); err != nil {
				return err
			}
		}

		cancelled, err := o.runs.IsCancelRequested(ctx, run.ID)
		if err != nil {
			return err
		}
		if cancelled {
			return errCancelled
		}

		// a batch where nothing merged would loop forever
		if merged == 0 {
			return nil
		}
	}
}
