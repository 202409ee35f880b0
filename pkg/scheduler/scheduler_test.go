package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/skirmish/pkg/errs"
	"github.com/pario-ai/skirmish/pkg/models"
)

type fakeRunner struct {
	started  atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	duration func(item models.WorkItem) time.Duration
	result   func(item models.WorkItem) (*models.Battle, error)
}

func (f *fakeRunner) RunItem(ctx context.Context, item models.WorkItem) (*models.Battle, error) {
	f.started.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	d := 10 * time.Millisecond
	if f.duration != nil {
		d = f.duration(item)
	}
	time.Sleep(d)
	if f.result != nil {
		return f.result(item)
	}
	return &models.Battle{ID: "battle-" + item.ID, WorkItemID: item.ID, State: models.BattleCompleted}, nil
}

// startBudget reports EXCEEDED once a given number of battles have started.
type startBudget struct {
	runner *fakeRunner
	after  int32
	checks atomic.Int32
}

func (b *startBudget) CheckBudget(context.Context) error {
	b.checks.Add(1)
	if b.after > 0 && b.runner.started.Load() >= b.after {
		return fmt.Errorf("spend over cap: %w", errs.ErrBudgetExceeded)
	}
	return nil
}

func workItems(n int) []models.WorkItem {
	items := make([]models.WorkItem, n)
	for i := range items {
		items[i] = models.WorkItem{ID: fmt.Sprintf("item-%02d", i)}
	}
	return items
}

func TestRunAll(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, &startBudget{runner: runner}, Options{Concurrency: 3})

	res := s.Run(context.Background(), workItems(8))

	assert.Equal(t, 8, res.Submitted)
	assert.Equal(t, 8, res.Completed)
	assert.Zero(t, res.Failed)
	assert.Zero(t, res.NotAdmitted)
	assert.False(t, res.KillSwitchTriggered)
	assert.Len(t, res.Results, 8)
	assert.LessOrEqual(t, runner.maxSeen.Load(), int32(3))

	seen := make(map[int]bool)
	for _, r := range res.Results {
		seen[r.Index] = true
		assert.False(t, r.StartedAt.After(r.FinishedAt))
	}
	assert.Len(t, seen, 8)
}

func TestKillSwitchHaltsIntake(t *testing.T) {
	runner := &fakeRunner{duration: func(models.WorkItem) time.Duration { return 30 * time.Millisecond }}
	budget := &startBudget{runner: runner, after: 4}
	s := New(runner, budget, Options{Concurrency: 3})

	res := s.Run(context.Background(), workItems(10))

	assert.True(t, res.KillSwitchTriggered)
	assert.GreaterOrEqual(t, len(res.Results), 3)
	assert.LessOrEqual(t, len(res.Results), 10)
	assert.Equal(t, 4, len(res.Results), "exactly the admitted battles report")
	assert.Equal(t, 10-len(res.Results), res.NotAdmitted)
	assert.LessOrEqual(t, runner.maxSeen.Load(), int32(3))
	assert.Empty(t, res.Err)
}

func TestAbortedBudgetBattleHaltsIntake(t *testing.T) {
	runner := &fakeRunner{}
	runner.result = func(item models.WorkItem) (*models.Battle, error) {
		state := models.BattleCompleted
		if item.ID == "item-01" {
			state = models.BattleAbortedBudget
		}
		return &models.Battle{ID: "b-" + item.ID, State: state}, nil
	}
	s := New(runner, &startBudget{runner: runner}, Options{Concurrency: 1})

	res := s.Run(context.Background(), workItems(5))

	assert.True(t, res.KillSwitchTriggered)
	require.Len(t, res.Results, 2)
	assert.Equal(t, 3, res.NotAdmitted)
	// Budget-stopped battles are not failures.
	assert.Equal(t, 2, res.Completed)
}

func TestConfigurationErrorHalts(t *testing.T) {
	runner := &fakeRunner{}
	runner.result = func(item models.WorkItem) (*models.Battle, error) {
		return nil, fmt.Errorf("no price for generation/economy: %w", errs.ErrConfiguration)
	}
	s := New(runner, &startBudget{runner: runner}, Options{Concurrency: 1})

	res := s.Run(context.Background(), workItems(4))

	require.Len(t, res.Results, 1)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 3, res.NotAdmitted)
	assert.Contains(t, res.Err, "no price")
	assert.False(t, res.KillSwitchTriggered)
}

func TestFailedItemsDoNotHalt(t *testing.T) {
	runner := &fakeRunner{}
	runner.result = func(item models.WorkItem) (*models.Battle, error) {
		if item.ID == "item-00" {
			panic("boom")
		}
		return &models.Battle{ID: "b-" + item.ID, State: models.BattleAbortedError, Error: "upstream"}, nil
	}
	s := New(runner, &startBudget{runner: runner}, Options{Concurrency: 2})

	res := s.Run(context.Background(), workItems(3))

	assert.Len(t, res.Results, 3)
	assert.Equal(t, 3, res.Failed)
	assert.False(t, res.KillSwitchTriggered)
	for _, r := range res.Results {
		if r.WorkItemID == "item-00" {
			assert.Contains(t, r.Err, "panicked")
		}
	}
}

func TestResultsInCompletionOrder(t *testing.T) {
	runner := &fakeRunner{duration: func(item models.WorkItem) time.Duration {
		if item.ID == "item-00" {
			return 80 * time.Millisecond
		}
		return 5 * time.Millisecond
	}}
	s := New(runner, &startBudget{runner: runner}, Options{Concurrency: 3})

	res := s.Run(context.Background(), workItems(3))

	require.Len(t, res.Results, 3)
	assert.Equal(t, "item-00", res.Results[2].WorkItemID)
	assert.Equal(t, 0, res.Results[2].Index)
}

func TestDelaySpacesAdmissions(t *testing.T) {
	var mu sync.Mutex
	var starts []time.Time
	runner := &fakeRunner{}
	runner.result = func(item models.WorkItem) (*models.Battle, error) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		return &models.Battle{State: models.BattleCompleted}, nil
	}
	s := New(runner, &startBudget{runner: runner}, Options{Concurrency: 3, Delay: 40 * time.Millisecond})

	begin := time.Now()
	res := s.Run(context.Background(), workItems(3))

	assert.Equal(t, 3, res.Completed)
	assert.GreaterOrEqual(t, time.Since(begin), 80*time.Millisecond)
}

func TestCancelledContextStopsIntake(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, &startBudget{runner: runner}, Options{Concurrency: 1, Delay: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res := s.Run(ctx, workItems(3))

	assert.Len(t, res.Results, 1)
	assert.Equal(t, 2, res.NotAdmitted)
}
