// Package budget enforces the daily spend cap over the cost ledger.
package budget

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pario-ai/skirmish/pkg/alert"
	"github.com/pario-ai/skirmish/pkg/errs"
	"github.com/pario-ai/skirmish/pkg/metrics"
	"github.com/pario-ai/skirmish/pkg/models"
)

// KillSwitchEnv forces the governor into EXCEEDED when set to "1" or "true".
const KillSwitchEnv = "SKIRMISH_KILL_SWITCH"

// SpendReader is the part of the ledger the governor needs.
type SpendReader interface {
	SumSince(ctx context.Context, since time.Time, environment string) (decimal.Decimal, error)
}

// Options configures a Governor.
type Options struct {
	Environment      string
	DailyCap         decimal.Decimal
	ThrottleFraction float64
	KillSwitch       bool
	Notifier         alert.Notifier
	AlertTimeout     time.Duration
	Logger           *zap.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Governor derives budget state from the ledger on every call. The only state
// it keeps is which alerts already fired for the current day.
type Governor struct {
	spend        SpendReader
	env          string
	cap          decimal.Decimal
	throttleAt   decimal.Decimal
	killSwitch   bool
	notifier     alert.Notifier
	alertTimeout time.Duration
	logger       *zap.Logger
	now          func() time.Time

	mu      sync.Mutex
	alerted map[models.BudgetState]time.Time
	pending sync.WaitGroup
}

// New creates a Governor reading spend from r.
func New(r SpendReader, opts Options) *Governor {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	fraction := decimal.NewFromFloat(opts.ThrottleFraction)
	return &Governor{
		spend:        r,
		env:          opts.Environment,
		cap:          opts.DailyCap,
		throttleAt:   opts.DailyCap.Mul(fraction),
		killSwitch:   opts.KillSwitch,
		notifier:     opts.Notifier,
		alertTimeout: opts.AlertTimeout,
		logger:       opts.Logger.Named("budget"),
		now:          opts.Now,
		alerted:      make(map[models.BudgetState]time.Time),
	}
}

// DayStart returns the UTC midnight at or before t.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CheckBudget returns an error wrapping errs.ErrBudgetExceeded when spend has
// reached the cap. If the ledger cannot be read it fails closed and returns
// the read error.
func (g *Governor) CheckBudget(ctx context.Context) error {
	st, err := g.evaluate(ctx)
	if err != nil {
		return fmt.Errorf("budget check: %w", err)
	}
	if st.Exceeded {
		if g.killSwitchEngaged() {
			return fmt.Errorf("kill switch engaged: %w", errs.ErrBudgetExceeded)
		}
		return fmt.Errorf("spend %s >= cap %s: %w", st.Spend.StringFixed(2), st.Cap.StringFixed(2), errs.ErrBudgetExceeded)
	}
	return nil
}

// Status returns the current budget status. It never fails: when the ledger
// is unreachable the status is NORMAL with Unknown set.
func (g *Governor) Status(ctx context.Context) models.BudgetStatus {
	st, err := g.evaluate(ctx)
	if err != nil {
		g.logger.Warn("budget status unknown, assuming normal", zap.Error(err))
	}
	return st
}

// Wait blocks until in-flight alert deliveries finish.
func (g *Governor) Wait() {
	g.pending.Wait()
}

func (g *Governor) killSwitchEngaged() bool {
	if g.killSwitch {
		return true
	}
	v := os.Getenv(KillSwitchEnv)
	return v == "1" || v == "true"
}

func (g *Governor) evaluate(ctx context.Context) (models.BudgetStatus, error) {
	boundary := DayStart(g.now())
	st := models.BudgetStatus{
		Environment: g.env,
		Since:       boundary,
		Cap:         g.cap,
		ThrottleAt:  g.throttleAt,
		Remaining:   g.cap,
		State:       models.BudgetNormal,
	}

	spend, err := g.spend.SumSince(ctx, boundary, g.env)
	if err != nil {
		st.Unknown = true
		if g.killSwitchEngaged() {
			st.State, st.Exceeded = models.BudgetExceeded, true
		}
		return st, err
	}

	st.Spend = spend
	st.Remaining = decimal.Max(g.cap.Sub(spend), decimal.Zero)
	if g.cap.IsPositive() {
		st.PercentUsed = spend.Div(g.cap).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}

	switch {
	case g.killSwitchEngaged() || spend.GreaterThanOrEqual(g.cap):
		st.State = models.BudgetExceeded
	case spend.GreaterThanOrEqual(g.throttleAt):
		st.State = models.BudgetThrottled
	}
	st.Throttled = st.State == models.BudgetThrottled
	st.Exceeded = st.State == models.BudgetExceeded

	metrics.BudgetState.WithLabelValues(g.env).Set(metrics.StateValue(string(st.State)))
	g.observe(st)
	return st, nil
}

// observe fires one alert per state per day boundary.
func (g *Governor) observe(st models.BudgetStatus) {
	var kind, msg string
	switch st.State {
	case models.BudgetExceeded:
		kind = models.AlertBudgetExceeded
		msg = fmt.Sprintf("daily budget exceeded in %s: spent $%s of $%s", g.env, st.Spend.StringFixed(2), st.Cap.StringFixed(2))
		if g.killSwitchEngaged() {
			msg = fmt.Sprintf("kill switch engaged in %s", g.env)
		}
	case models.BudgetThrottled:
		kind = models.AlertBudgetThrottled
		msg = fmt.Sprintf("daily budget throttled in %s: spent $%s, threshold $%s", g.env, st.Spend.StringFixed(2), st.ThrottleAt.StringFixed(2))
	default:
		return
	}

	g.mu.Lock()
	if g.alerted[st.State].Equal(st.Since) {
		g.mu.Unlock()
		return
	}
	g.alerted[st.State] = st.Since
	g.mu.Unlock()

	g.logger.Warn("budget state changed",
		zap.String("state", string(st.State)),
		zap.String("spend", st.Spend.StringFixed(4)),
		zap.String("cap", st.Cap.StringFixed(2)),
	)
	if g.notifier == nil {
		return
	}

	a := models.Alert{
		ID:          uuid.NewString(),
		Kind:        kind,
		Environment: g.env,
		Message:     msg,
		Spend:       st.Spend,
		Cap:         st.Cap,
		Boundary:    st.Since,
		CreatedAt:   g.now().UTC(),
	}
	g.pending.Add(1)
	done := alert.Dispatch(g.notifier, a, g.alertTimeout, g.logger)
	go func() {
		<-done
		g.pending.Done()
	}()
}
