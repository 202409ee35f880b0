package battle

import (
	"fmt"
	"sort"

	"github.com/pario-ai/skirmish/pkg/errs"
	"github.com/pario-ai/skirmish/pkg/models"
)

// Sub-score names accepted in a Weights table.
const (
	Rapport           = "rapport"
	Discovery         = "discovery"
	ObjectionHandling = "objection_handling"
	Closing           = "closing"
	Compliance        = "compliance"
	Naturalness       = "naturalness"
)

// Defaults substituted for fields the referee omits.
const (
	DefaultSubScore = 0.0
	DefaultOutcome  = "failure"
)

// Weights combines the 0-10 sub-scores into a 0-100 total. It is product
// policy and configurable; only the relative sizes matter.
type Weights map[string]float64

// DefaultWeights is used when no table is configured.
var DefaultWeights = Weights{
	Rapport:           0.15,
	Discovery:         0.20,
	ObjectionHandling: 0.20,
	Closing:           0.20,
	Compliance:        0.15,
	Naturalness:       0.10,
}

// Validate rejects unknown names, negative weights and an all-zero table.
func (w Weights) Validate() error {
	var sum float64
	for _, name := range w.names() {
		v := w[name]
		if _, ok := DefaultWeights[name]; !ok {
			return fmt.Errorf("unknown score weight %q: %w", name, errs.ErrConfiguration)
		}
		if v < 0 {
			return fmt.Errorf("negative score weight %q: %w", name, errs.ErrConfiguration)
		}
		sum += v
	}
	if sum == 0 {
		return fmt.Errorf("score weights sum to zero: %w", errs.ErrConfiguration)
	}
	return nil
}

func (w Weights) names() []string {
	names := make([]string, 0, len(w))
	for k := range w {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Total returns the weighted mean of the sub-scores scaled to 0-100.
func (w Weights) Total(s models.Score) float64 {
	values := map[string]float64{
		Rapport:           s.Rapport,
		Discovery:         s.Discovery,
		ObjectionHandling: s.ObjectionHandling,
		Closing:           s.Closing,
		Compliance:        s.Compliance,
		Naturalness:       s.Naturalness,
	}
	var sum, weight float64
	for _, name := range w.names() {
		sum += values[name] * w[name]
		weight += w[name]
	}
	if weight == 0 {
		return 0
	}
	return sum / weight * 10
}

func valueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

// ApplyDefaults converts the referee payload into a complete Score.
func ApplyDefaults(raw models.RawScore) models.Score {
	return models.Score{
		Rapport:           valueOr(raw.Rapport, DefaultSubScore),
		Discovery:         valueOr(raw.Discovery, DefaultSubScore),
		ObjectionHandling: valueOr(raw.ObjectionHandling, DefaultSubScore),
		Closing:           valueOr(raw.Closing, DefaultSubScore),
		Compliance:        valueOr(raw.Compliance, DefaultSubScore),
		Naturalness:       valueOr(raw.Naturalness, DefaultSubScore),
		Outcome:           valueOr(raw.Outcome, DefaultOutcome),
		GoalAchieved:      valueOr(raw.GoalAchieved, false),
		CounterpartHungUp: valueOr(raw.CounterpartHungUp, false),
		Summary:           valueOr(raw.Summary, ""),
	}
}
