// Package pricing maps metered usage to money using a configured rate table.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/pario-ai/skirmish/pkg/errs"
	"github.com/pario-ai/skirmish/pkg/models"
)

// Places is the precision every computed cost is rounded to.
const Places = 6

var (
	million = decimal.NewFromInt(1_000_000)
	minute  = decimal.NewFromInt(60)
)

type key struct {
	kind models.ResourceKind
	tier models.Tier
}

type rates struct {
	input     decimal.Decimal
	output    decimal.Decimal
	perMinute decimal.Decimal
}

// Table is an immutable pricing table. It is safe for concurrent use.
type Table struct {
	rates map[key]rates
}

// New builds a Table from config rows. A duplicate (kind, tier) row is rejected.
func New(rows []models.PricingRow) (*Table, error) {
	t := &Table{rates: make(map[key]rates, len(rows))}
	for _, r := range rows {
		k := key{kind: r.Kind, tier: r.Tier}
		if _, dup := t.rates[k]; dup {
			return nil, fmt.Errorf("pricing %s/%s defined twice: %w", r.Kind, r.Tier, errs.ErrConfiguration)
		}
		t.rates[k] = rates{
			input:     decimal.NewFromFloat(r.InputPerMTok),
			output:    decimal.NewFromFloat(r.OutputPerMTok),
			perMinute: decimal.NewFromFloat(r.PerMinute),
		}
	}
	return t, nil
}

// Validate checks that the table can price every turn the engine may produce:
// generation must be priced, every configured kind needs both tiers and no
// rate may be negative.
func (t *Table) Validate() error {
	if _, ok := t.rates[key{models.KindGeneration, models.TierStandard}]; !ok {
		return fmt.Errorf("no generation pricing: %w", errs.ErrConfiguration)
	}
	for k, r := range t.rates {
		switch k.kind {
		case models.KindGeneration, models.KindVoice:
		default:
			return fmt.Errorf("unknown resource kind %q: %w", k.kind, errs.ErrConfiguration)
		}
		switch k.tier {
		case models.TierStandard, models.TierEconomy:
		default:
			return fmt.Errorf("unknown tier %q for %s: %w", k.tier, k.kind, errs.ErrConfiguration)
		}
		if r.input.IsNegative() || r.output.IsNegative() || r.perMinute.IsNegative() {
			return fmt.Errorf("negative rate for %s/%s: %w", k.kind, k.tier, errs.ErrConfiguration)
		}
		for _, tier := range []models.Tier{models.TierStandard, models.TierEconomy} {
			if _, ok := t.rates[key{k.kind, tier}]; !ok {
				return fmt.Errorf("%s has no %s tier: %w", k.kind, tier, errs.ErrConfiguration)
			}
		}
	}
	return nil
}

// Has reports whether (kind, tier) is priced.
func (t *Table) Has(kind models.ResourceKind, tier models.Tier) bool {
	_, ok := t.rates[key{kind, tier}]
	return ok
}

// Compute returns the cost of usage for the given kind and tier, rounded to
// the micro-dollar. Zero usage yields zero cost. An unpriced kind or tier is a
// configuration error.
func (t *Table) Compute(kind models.ResourceKind, usage models.Usage, tier models.Tier) (decimal.Decimal, error) {
	r, ok := t.rates[key{kind, tier}]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price for %s/%s: %w", kind, tier, errs.ErrConfiguration)
	}

	switch kind {
	case models.KindGeneration:
		in := decimal.NewFromInt(int64(usage.InputTokens)).Mul(r.input)
		out := decimal.NewFromInt(int64(usage.OutputTokens)).Mul(r.output)
		return in.Add(out).Div(million).Round(Places), nil
	case models.KindVoice:
		secs := decimal.NewFromFloat(usage.DurationSeconds)
		return secs.Mul(r.perMinute).Div(minute).Round(Places), nil
	default:
		return decimal.Zero, fmt.Errorf("unknown resource kind %q: %w", kind, errs.ErrConfiguration)
	}
}
