package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ResourceKind identifies a billable resource with its own pricing model.
type ResourceKind string

const (
	// KindGeneration is billed per input and output token.
	KindGeneration ResourceKind = "generation"
	// KindVoice is billed per minute of synthesized audio.
	KindVoice ResourceKind = "voice"
)

// Tier selects between the regular and the cheaper resource pricing.
type Tier string

const (
	TierStandard Tier = "standard"
	TierEconomy  Tier = "economy"
)

// Usage is the metered quantity reported for one billable operation.
type Usage struct {
	InputTokens     int     `json:"input_tokens"`
	OutputTokens    int     `json:"output_tokens"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// IsZero reports whether nothing was metered.
func (u Usage) IsZero() bool {
	return u.InputTokens == 0 && u.OutputTokens == 0 && u.DurationSeconds == 0
}

// CostEntry is one immutable row of the cost ledger.
type CostEntry struct {
	ID          string          `json:"id"`
	Provider    string          `json:"provider"`
	Kind        ResourceKind    `json:"kind"`
	Tier        Tier            `json:"tier"`
	Usage       Usage           `json:"usage"`
	Cost        decimal.Decimal `json:"cost"`
	Environment string          `json:"environment"`
	BattleID    string          `json:"battle_id,omitempty"`
	WorkItemID  string          `json:"work_item_id,omitempty"`
	TurnIndex   int             `json:"turn_index"`
	CreatedAt   time.Time       `json:"created_at"`
}

// CostQuery filters ledger entries.
type CostQuery struct {
	Environment string
	BattleID    string
	Since       time.Time
	Limit       int
}
