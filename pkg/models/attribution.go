package models

import "github.com/shopspring/decimal"

// SpendSummary aggregates ledger spend by provider, kind and tier.
type SpendSummary struct {
	Provider     string          `json:"provider"`
	Kind         ResourceKind    `json:"kind"`
	Tier         Tier            `json:"tier"`
	Entries      int             `json:"entries"`
	InputTokens  int64           `json:"input_tokens"`
	OutputTokens int64           `json:"output_tokens"`
	Seconds      float64         `json:"seconds"`
	Cost         decimal.Decimal `json:"cost"`
}

// PricingRow is one line of the configured pricing table. Rates are USD.
type PricingRow struct {
	Kind          ResourceKind `json:"kind" yaml:"kind"`
	Tier          Tier         `json:"tier" yaml:"tier"`
	InputPerMTok  float64      `json:"input_per_mtok,omitempty" yaml:"input_per_mtok"`
	OutputPerMTok float64      `json:"output_per_mtok,omitempty" yaml:"output_per_mtok"`
	PerMinute     float64      `json:"per_minute,omitempty" yaml:"per_minute"`
}
