package budget

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pario-ai/skirmish/pkg/errs"
	"github.com/pario-ai/skirmish/pkg/ledger"
	"github.com/pario-ai/skirmish/pkg/models"
)

type fakeSpend struct {
	mu    sync.Mutex
	spend decimal.Decimal
	err   error
	since time.Time
}

func (f *fakeSpend) SumSince(_ context.Context, since time.Time, _ string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.since = since
	return f.spend, f.err
}

func (f *fakeSpend) set(s string) {
	f.mu.Lock()
	f.spend = decimal.RequireFromString(s)
	f.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func (r *recordingNotifier) Notify(_ context.Context, a models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *recordingNotifier) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, a := range r.alerts {
		out = append(out, a.Kind)
	}
	return out
}

func countKinds(kinds []string) map[string]int {
	m := make(map[string]int)
	for _, k := range kinds {
		m[k]++
	}
	return m
}

func newGovernor(s SpendReader, n *recordingNotifier, now func() time.Time) *Governor {
	opts := Options{
		Environment:      "prod",
		DailyCap:         decimal.NewFromInt(15),
		ThrottleFraction: 0.2,
		Now:              now,
	}
	if n != nil {
		opts.Notifier = n
	}
	return New(s, opts)
}

func TestCheckBudgetAtCap(t *testing.T) {
	s := &fakeSpend{}
	g := newGovernor(s, nil, nil)
	ctx := context.Background()

	s.set("15.00")
	if err := g.CheckBudget(ctx); !errors.Is(err, errs.ErrBudgetExceeded) {
		t.Errorf("expected ErrBudgetExceeded at cap, got %v", err)
	}

	s.set("14.99")
	if err := g.CheckBudget(ctx); err != nil {
		t.Errorf("expected no error one cent below cap, got %v", err)
	}
}

func TestStatusStates(t *testing.T) {
	cases := []struct {
		spend string
		want  models.BudgetState
	}{
		{"0", models.BudgetNormal},
		{"2.99", models.BudgetNormal},
		{"3.00", models.BudgetThrottled},
		{"14.99", models.BudgetThrottled},
		{"15.00", models.BudgetExceeded},
		{"20", models.BudgetExceeded},
	}
	for _, c := range cases {
		s := &fakeSpend{}
		s.set(c.spend)
		st := newGovernor(s, nil, nil).Status(context.Background())
		if st.State != c.want {
			t.Errorf("spend %s: expected %s, got %s", c.spend, c.want, st.State)
		}
		if st.Throttled != (c.want == models.BudgetThrottled) || st.Exceeded != (c.want == models.BudgetExceeded) {
			t.Errorf("spend %s: inconsistent flags %+v", c.spend, st)
		}
	}
}

func TestStatusFields(t *testing.T) {
	s := &fakeSpend{}
	s.set("3.75")
	now := time.Date(2026, 5, 4, 17, 30, 0, 0, time.UTC)
	st := newGovernor(s, nil, func() time.Time { return now }).Status(context.Background())

	if !st.Remaining.Equal(decimal.RequireFromString("11.25")) {
		t.Errorf("expected remaining 11.25, got %s", st.Remaining)
	}
	if st.PercentUsed != 25 {
		t.Errorf("expected 25%%, got %v", st.PercentUsed)
	}
	if !st.ThrottleAt.Equal(decimal.NewFromInt(3)) {
		t.Errorf("expected throttle at 3, got %s", st.ThrottleAt)
	}
	want := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	if !st.Since.Equal(want) || !s.since.Equal(want) {
		t.Errorf("expected boundary %v, got %v (queried %v)", want, st.Since, s.since)
	}
}

func TestLedgerUnreachable(t *testing.T) {
	s := &fakeSpend{err: errors.New("database is locked")}
	g := newGovernor(s, nil, nil)
	ctx := context.Background()

	// Mutating check fails closed.
	if err := g.CheckBudget(ctx); err == nil {
		t.Error("expected check to fail when ledger is unreachable")
	}
	// Read status fails open.
	st := g.Status(ctx)
	if !st.Unknown || st.State != models.BudgetNormal {
		t.Errorf("expected unknown NORMAL status, got %+v", st)
	}
}

func TestAlertOncePerBoundary(t *testing.T) {
	s := &fakeSpend{}
	n := &recordingNotifier{}
	day := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	now := day
	var mu sync.Mutex
	clock := func() time.Time { mu.Lock(); defer mu.Unlock(); return now }
	g := newGovernor(s, n, clock)
	ctx := context.Background()

	s.set("1")
	_ = g.CheckBudget(ctx)
	s.set("4")
	_ = g.CheckBudget(ctx)
	_ = g.Status(ctx)
	s.set("15.5")
	for range 5 {
		_ = g.CheckBudget(ctx)
		_ = g.Status(ctx)
	}
	g.Wait()

	got := countKinds(n.kinds())
	if len(n.kinds()) != 2 || got[models.AlertBudgetThrottled] != 1 || got[models.AlertBudgetExceeded] != 1 {
		t.Fatalf("expected one throttled and one exceeded alert, got %v", n.kinds())
	}

	// Next day the state resets and a new exceedance alerts again.
	mu.Lock()
	now = day.Add(24 * time.Hour)
	mu.Unlock()
	_ = g.CheckBudget(ctx)
	g.Wait()
	if got := countKinds(n.kinds()); got[models.AlertBudgetExceeded] != 2 {
		t.Errorf("expected a fresh exceeded alert on the next day, got %v", n.kinds())
	}
}

func TestNoSinkStillFails(t *testing.T) {
	s := &fakeSpend{}
	s.set("15")
	g := newGovernor(s, nil, nil)
	if err := g.CheckBudget(context.Background()); !errors.Is(err, errs.ErrBudgetExceeded) {
		t.Errorf("expected ErrBudgetExceeded without a sink, got %v", err)
	}
}

func TestKillSwitch(t *testing.T) {
	s := &fakeSpend{}
	g := newGovernor(s, nil, nil)
	ctx := context.Background()

	t.Setenv(KillSwitchEnv, "1")
	if err := g.CheckBudget(ctx); !errors.Is(err, errs.ErrBudgetExceeded) {
		t.Errorf("expected kill switch to trip, got %v", err)
	}
	t.Setenv(KillSwitchEnv, "")
	if err := g.CheckBudget(ctx); err != nil {
		t.Errorf("expected no error after releasing kill switch, got %v", err)
	}

	forced := New(s, Options{Environment: "prod", DailyCap: decimal.NewFromInt(15), ThrottleFraction: 0.2, KillSwitch: true})
	if st := forced.Status(ctx); st.State != models.BudgetExceeded {
		t.Errorf("expected EXCEEDED from config kill switch, got %s", st.State)
	}
}

func TestWithSQLiteLedger(t *testing.T) {
	l, err := ledger.New(filepath.Join(t.TempDir(), "budget_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	ctx := context.Background()

	g := New(l, Options{Environment: "prod", DailyCap: decimal.NewFromInt(15), ThrottleFraction: 0.2})
	_ = l.Record(ctx, models.CostEntry{
		Provider: "primary", Kind: models.KindGeneration, Tier: models.TierStandard,
		Cost: decimal.RequireFromString("14.99"), Environment: "prod", CreatedAt: time.Now().UTC(),
	})
	if err := g.CheckBudget(ctx); err != nil {
		t.Fatalf("expected under budget, got %v", err)
	}
	_ = l.Record(ctx, models.CostEntry{
		Provider: "primary", Kind: models.KindGeneration, Tier: models.TierStandard,
		Cost: decimal.RequireFromString("0.01"), Environment: "prod", CreatedAt: time.Now().UTC(),
	})
	if err := g.CheckBudget(ctx); !errors.Is(err, errs.ErrBudgetExceeded) {
		t.Errorf("expected ErrBudgetExceeded, got %v", err)
	}
}
