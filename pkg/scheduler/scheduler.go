// Package scheduler admits work items into battles under a concurrency
// ceiling, a minimum spacing between starts and the daily budget.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/pario-ai/skirmish/pkg/errs"
	"github.com/pario-ai/skirmish/pkg/metrics"
	"github.com/pario-ai/skirmish/pkg/models"
)

// DefaultConcurrency is used when Options.Concurrency is not positive.
const DefaultConcurrency = 3

// Runner plays one work item.
type Runner interface {
	RunItem(ctx context.Context, item models.WorkItem) (*models.Battle, error)
}

// BudgetChecker gates admission.
type BudgetChecker interface {
	CheckBudget(ctx context.Context) error
}

// Options configures a Scheduler.
type Options struct {
	Concurrency int
	// Delay is the minimum spacing between two admissions.
	Delay  time.Duration
	Logger *zap.Logger
}

// Scheduler runs batches of work items.
type Scheduler struct {
	runner      Runner
	budget      BudgetChecker
	concurrency int
	delay       time.Duration
	logger      *zap.Logger
}

// New creates a Scheduler.
func New(runner Runner, budget BudgetChecker, opts Options) *Scheduler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Scheduler{
		runner:      runner,
		budget:      budget,
		concurrency: opts.Concurrency,
		delay:       opts.Delay,
		logger:      opts.Logger.Named("scheduler"),
	}
}

// batch is the shared state of one Run call.
type batch struct {
	mu      sync.Mutex
	results []models.ItemResult
	killed  bool
	err     error
}

func (b *batch) kill() {
	b.mu.Lock()
	b.killed = true
	b.mu.Unlock()
}

func (b *batch) halt(err error) {
	b.mu.Lock()
	if b.err == nil {
		b.err = err
	}
	b.mu.Unlock()
}

func (b *batch) stopped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.killed || b.err != nil
}

func (b *batch) add(r models.ItemResult) {
	b.mu.Lock()
	b.results = append(b.results, r)
	b.mu.Unlock()
}

// Run admits items in order until all are admitted, the budget is
// exhausted, a configuration error occurs or ctx is cancelled. It waits for
// every admitted battle and returns results in completion order. Battles
// already running when intake halts are allowed to finish.
func (s *Scheduler) Run(ctx context.Context, items []models.WorkItem) models.BatchResult {
	sem := semaphore.NewWeighted(int64(s.concurrency))
	limit := rate.Inf
	if s.delay > 0 {
		limit = rate.Every(s.delay)
	}
	limiter := rate.NewLimiter(limit, 1)

	b := &batch{}
	var wg sync.WaitGroup

	for i, item := range items {
		if b.stopped() {
			break
		}
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		if b.stopped() {
			sem.Release(1)
			break
		}
		if err := s.budget.CheckBudget(ctx); err != nil {
			sem.Release(1)
			s.logger.Warn("budget kill switch, halting intake",
				zap.Int("admitted", i), zap.Int("remaining", len(items)-i), zap.Error(err))
			b.kill()
			break
		}

		wg.Add(1)
		go func(index int, item models.WorkItem) {
			defer wg.Done()
			defer sem.Release(1)
			b.add(s.runItem(ctx, b, index, item))
		}(i, item)
	}

	wg.Wait()

	res := models.BatchResult{
		Results:   b.results,
		Submitted: len(items),
	}
	for _, r := range b.results {
		if r.Failed() {
			res.Failed++
		} else {
			res.Completed++
		}
	}
	res.NotAdmitted = res.Submitted - len(b.results)
	res.KillSwitchTriggered = b.killed
	if b.err != nil {
		res.Err = b.err.Error()
	}
	metrics.SchedulerItems.WithLabelValues("not_admitted").Add(float64(res.NotAdmitted))

	s.logger.Info("batch finished",
		zap.Int("submitted", res.Submitted),
		zap.Int("completed", res.Completed),
		zap.Int("failed", res.Failed),
		zap.Int("not_admitted", res.NotAdmitted),
		zap.Bool("kill_switch", res.KillSwitchTriggered),
	)
	return res
}

func (s *Scheduler) runItem(ctx context.Context, b *batch, index int, item models.WorkItem) models.ItemResult {
	metrics.SchedulerInFlight.Inc()
	defer metrics.SchedulerInFlight.Dec()

	r := models.ItemResult{Index: index, WorkItemID: item.ID, StartedAt: time.Now().UTC()}
	battle, err := s.runSafely(ctx, item)
	r.FinishedAt = time.Now().UTC()
	r.Battle = battle

	switch {
	case errors.Is(err, errs.ErrConfiguration):
		b.halt(err)
	case errors.Is(err, errs.ErrBudgetExceeded):
		b.kill()
	case battle != nil && battle.State == models.BattleAbortedBudget:
		b.kill()
	}
	if err != nil {
		r.Err = err.Error()
		s.logger.Warn("work item failed", zap.String("work_item", item.ID), zap.Error(err))
	}

	outcome := "completed"
	if r.Failed() {
		outcome = "failed"
	}
	metrics.SchedulerItems.WithLabelValues(outcome).Inc()
	return r
}

// runSafely turns a panicking battle into a failed item.
func (s *Scheduler) runSafely(ctx context.Context, item models.WorkItem) (b *models.Battle, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("battle panicked: %v", p)
		}
	}()
	return s.runner.RunItem(ctx, item)
}
