// Package battle runs bounded two-role conversations turn by turn, pricing
// and recording every turn and consulting the budget governor in between.
package battle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pario-ai/skirmish/pkg/errs"
	"github.com/pario-ai/skirmish/pkg/metrics"
	"github.com/pario-ai/skirmish/pkg/models"
)

// DefaultMaxTurns bounds a battle when no limit is configured.
const DefaultMaxTurns = 15

// Reasoner produces the next turn of dialogue.
type Reasoner interface {
	Generate(ctx context.Context, req models.GenerateRequest) (*models.GenerateResponse, error)
}

// Referee scores a finished transcript.
type Referee interface {
	Score(ctx context.Context, req models.ScoreRequest) (*models.RawScore, error)
}

// Governor gates turns on the daily budget.
type Governor interface {
	CheckBudget(ctx context.Context) error
	Status(ctx context.Context) models.BudgetStatus
}

// Pricer converts usage to cost.
type Pricer interface {
	Compute(kind models.ResourceKind, usage models.Usage, tier models.Tier) (decimal.Decimal, error)
}

// CostRecorder appends entries to the cost ledger.
type CostRecorder interface {
	Record(ctx context.Context, e models.CostEntry) error
}

// Resources hands out a provisioned resource for an agent config.
type Resources interface {
	Acquire(ctx context.Context, cfg models.CacheableConfig, dyn models.DynamicFields) (string, bool, error)
}

// Archive persists finished battles.
type Archive interface {
	Save(ctx context.Context, b *models.Battle) error
}

// Deps are the collaborators of an Engine. Resources, Referee and Archive
// are optional.
type Deps struct {
	Reasoner  Reasoner
	Referee   Referee
	Governor  Governor
	Pricer    Pricer
	Ledger    CostRecorder
	Resources Resources
	Archive   Archive
}

// Options configures an Engine.
type Options struct {
	Environment string
	MaxTurns    int
	// RoleA is the fixed side used by RunItem.
	RoleA   models.RoleConfig
	Weights Weights
	Logger  *zap.Logger
	Now     func() time.Time
}

// Engine runs battles. It is safe for concurrent use.
type Engine struct {
	deps     Deps
	env      string
	maxTurns int
	roleA    models.RoleConfig
	weights  Weights
	logger   *zap.Logger
	now      func() time.Time
}

// New creates an Engine.
func New(deps Deps, opts Options) (*Engine, error) {
	if deps.Reasoner == nil || deps.Governor == nil || deps.Pricer == nil || deps.Ledger == nil {
		return nil, fmt.Errorf("battle engine needs a reasoner, governor, pricer and ledger: %w", errs.ErrConfiguration)
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	if len(opts.Weights) == 0 {
		opts.Weights = DefaultWeights
	}
	if err := opts.Weights.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		deps:     deps,
		env:      opts.Environment,
		maxTurns: opts.MaxTurns,
		roleA:    opts.RoleA,
		weights:  opts.Weights,
		logger:   opts.Logger.Named("battle"),
		now:      opts.Now,
	}, nil
}

// RunItem plays the configured role A against the work item's persona.
func (e *Engine) RunItem(ctx context.Context, item models.WorkItem) (*models.Battle, error) {
	name := item.Name
	if name == "" {
		name = item.Persona.Persona
	}
	roleB := models.RoleConfig{
		Name:    name,
		Framing: item.Framing,
		Agent:   item.Persona,
		Dynamic: item.Dynamic,
	}
	return e.Run(ctx, item.ID, e.roleA, roleB)
}

// Run plays one battle. It refuses to start when the budget is exhausted and
// returns an error wrapping errs.ErrBudgetExceeded. Otherwise it returns the
// finished battle; the error is non-nil only for configuration problems that
// should halt the caller.
func (e *Engine) Run(ctx context.Context, workItemID string, roleA, roleB models.RoleConfig) (*models.Battle, error) {
	if err := e.deps.Governor.CheckBudget(ctx); err != nil {
		if !errors.Is(err, errs.ErrBudgetExceeded) {
			err = fmt.Errorf("%w: %w", errs.ErrBudgetExceeded, err)
		}
		return nil, fmt.Errorf("battle not started: %w", err)
	}

	b := &models.Battle{
		ID:             uuid.NewString(),
		WorkItemID:     workItemID,
		Environment:    e.env,
		RoleA:          roleA,
		RoleB:          roleB,
		CumulativeCost: decimal.Zero,
		State:          models.BattleInProgress,
		StartedAt:      e.now().UTC(),
	}
	log := e.logger.With(zap.String("battle_id", b.ID), zap.String("work_item", workItemID))
	log.Info("battle started")

	var haltErr error
	for i := 0; i < e.maxTurns; i++ {
		if err := ctx.Err(); err != nil {
			e.abort(b, models.BattleAbortedError, err)
			break
		}

		turn, err := e.playTurn(ctx, b, i)
		if err != nil {
			if errors.Is(err, errs.ErrConfiguration) {
				haltErr = err
			}
			e.abort(b, models.BattleAbortedError, err)
			log.Warn("turn failed", zap.Int("turn", i), zap.Error(err))
			break
		}
		b.Turns = append(b.Turns, turn)
		b.CumulativeCost = b.CumulativeCost.Add(turn.Cost)

		if err := ctx.Err(); err != nil {
			e.abort(b, models.BattleAbortedError, err)
			break
		}
		if err := e.deps.Governor.CheckBudget(ctx); err != nil {
			e.abort(b, models.BattleAbortedBudget, err)
			log.Warn("budget stop", zap.Int("turns", len(b.Turns)), zap.Error(err))
			break
		}
	}
	if b.State == models.BattleInProgress {
		b.State = models.BattleCompleted
	}

	e.score(ctx, b, log)
	b.FinishedAt = e.now().UTC()

	if e.deps.Archive != nil {
		if err := e.deps.Archive.Save(context.WithoutCancel(ctx), b); err != nil {
			log.Error("archive battle failed", zap.Error(err))
		}
	}

	metrics.BattlesTotal.WithLabelValues(string(b.State)).Inc()
	metrics.BattleCostUSD.Observe(b.CumulativeCost.InexactFloat64())
	log.Info("battle finished",
		zap.String("state", string(b.State)),
		zap.Int("turns", len(b.Turns)),
		zap.String("cost", b.CumulativeCost.StringFixed(6)),
	)
	return b, haltErr
}

func (e *Engine) abort(b *models.Battle, state models.BattleState, err error) {
	b.State = state
	b.Error = err.Error()
}

func (e *Engine) roleConfig(b *models.Battle, role models.Role) models.RoleConfig {
	if role == models.RoleA {
		return b.RoleA
	}
	return b.RoleB
}

func transcript(turns []models.Turn) []models.ContextTurn {
	out := make([]models.ContextTurn, 0, len(turns))
	for _, t := range turns {
		out = append(out, models.ContextTurn{Role: t.Role, Speaker: t.Speaker, Text: t.Text})
	}
	return out
}

type charge struct {
	kind  models.ResourceKind
	usage models.Usage
	cost  decimal.Decimal
}

func (e *Engine) playTurn(ctx context.Context, b *models.Battle, index int) (models.Turn, error) {
	role := models.RoleA
	if index%2 == 1 {
		role = models.RoleB
	}
	rc := e.roleConfig(b, role)

	tier := models.TierStandard
	if st := e.deps.Governor.Status(ctx); st.Throttled {
		tier = models.TierEconomy
	}
	// Reject unpriceable tiers before spending anything.
	if _, err := e.deps.Pricer.Compute(models.KindGeneration, models.Usage{}, tier); err != nil {
		return models.Turn{}, err
	}

	var resourceID string
	if e.deps.Resources != nil {
		id, _, err := e.deps.Resources.Acquire(ctx, rc.Agent, rc.Dynamic)
		if err != nil {
			return models.Turn{}, fmt.Errorf("acquire resource: %w: %w", errs.ErrTurnGeneration, err)
		}
		resourceID = id
	}

	resp, err := e.deps.Reasoner.Generate(ctx, models.GenerateRequest{
		BattleID:   b.ID,
		Role:       role,
		Speaker:    rc.Name,
		Framing:    rc.Framing,
		Context:    transcript(b.Turns),
		Tier:       tier,
		Model:      rc.Agent.Model,
		ResourceID: resourceID,
		Agent:      rc.Agent,
	})
	if err != nil {
		if errors.Is(err, errs.ErrConfiguration) {
			return models.Turn{}, err
		}
		return models.Turn{}, fmt.Errorf("generate turn %d: %w: %w", index, errs.ErrTurnGeneration, err)
	}
	if err := checkResponse(resp); err != nil {
		return models.Turn{}, fmt.Errorf("generate turn %d: %w: %w", index, errs.ErrTurnGeneration, err)
	}

	turn := models.Turn{
		Index:           index,
		Role:            role,
		Speaker:         rc.Name,
		Text:            resp.Text,
		InputUsage:      resp.InputTokens,
		OutputUsage:     resp.OutputTokens,
		DurationSeconds: resp.DurationSeconds,
		Tier:            tier,
		ResourceID:      resourceID,
		CreatedAt:       e.now().UTC(),
	}

	charges := []charge{
		{kind: models.KindGeneration, usage: models.Usage{InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens}},
	}
	if resp.DurationSeconds > 0 {
		charges = append(charges, charge{kind: models.KindVoice, usage: models.Usage{DurationSeconds: resp.DurationSeconds}})
	}

	// Price every charge before recording any, so a turn that cannot be
	// priced leaves nothing in the ledger.
	turn.Cost = decimal.Zero
	for i := range charges {
		cost, err := e.deps.Pricer.Compute(charges[i].kind, charges[i].usage, tier)
		if err != nil {
			return models.Turn{}, err
		}
		charges[i].cost = cost
		turn.Cost = turn.Cost.Add(cost)
	}
	for _, c := range charges {
		e.record(ctx, models.CostEntry{
			Provider:    resp.Provider,
			Kind:        c.kind,
			Tier:        tier,
			Usage:       c.usage,
			Cost:        c.cost,
			Environment: e.env,
			BattleID:    b.ID,
			WorkItemID:  b.WorkItemID,
			TurnIndex:   index,
			CreatedAt:   turn.CreatedAt,
		})
	}

	metrics.TurnsTotal.WithLabelValues(string(tier)).Inc()
	return turn, nil
}

// record writes a ledger entry. A failed write is logged and counted but
// never stops the battle.
func (e *Engine) record(ctx context.Context, entry models.CostEntry) {
	if err := e.deps.Ledger.Record(ctx, entry); err != nil {
		metrics.LedgerWriteFailures.Inc()
		e.logger.Error("ledger write failed",
			zap.String("battle_id", entry.BattleID),
			zap.Int("turn", entry.TurnIndex),
			zap.String("cost", entry.Cost.String()),
			zap.Error(err),
		)
		return
	}
	metrics.SpendUSD.WithLabelValues(string(entry.Kind), string(entry.Tier)).Add(entry.Cost.InexactFloat64())
}

func checkResponse(resp *models.GenerateResponse) error {
	switch {
	case resp == nil:
		return errors.New("empty response")
	case strings.TrimSpace(resp.Text) == "":
		return errors.New("response has no text")
	case resp.InputTokens < 0 || resp.OutputTokens < 0 || resp.DurationSeconds < 0:
		return errors.New("response has negative usage")
	case resp.InputTokens == 0 && resp.OutputTokens == 0:
		return errors.New("response has no usage")
	}
	return nil
}

// score asks the referee once. A failure leaves Score nil and is recorded in
// ScoreError; the battle is still persisted.
func (e *Engine) score(ctx context.Context, b *models.Battle, log *zap.Logger) {
	if e.deps.Referee == nil {
		return
	}
	if len(b.Turns) == 0 {
		b.ScoreError = "no turns to score"
		return
	}
	raw, err := e.deps.Referee.Score(ctx, models.ScoreRequest{
		BattleID:   b.ID,
		Transcript: transcript(b.Turns),
		State:      b.State,
	})
	if err == nil && raw == nil {
		err = errors.New("empty score")
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", errs.ErrReferee, err)
		b.ScoreError = err.Error()
		log.Warn("referee failed", zap.Error(err))
		return
	}
	s := ApplyDefaults(*raw)
	s.Total = e.weights.Total(s)
	b.Score = &s
}
