package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BudgetState is the governor's position within the current day boundary.
type BudgetState string

const (
	BudgetNormal    BudgetState = "NORMAL"
	BudgetThrottled BudgetState = "THROTTLED"
	BudgetExceeded  BudgetState = "EXCEEDED"
)

// BudgetStatus is derived from the ledger on every call and never cached.
type BudgetStatus struct {
	Environment string          `json:"environment"`
	Since       time.Time       `json:"since"`
	Spend       decimal.Decimal `json:"spend"`
	Cap         decimal.Decimal `json:"cap"`
	ThrottleAt  decimal.Decimal `json:"throttle_at"`
	Remaining   decimal.Decimal `json:"remaining"`
	PercentUsed float64         `json:"percent_used"`
	State       BudgetState     `json:"state"`
	Throttled   bool            `json:"throttled"`
	Exceeded    bool            `json:"exceeded"`
	// Unknown is set when the ledger could not be read; State is then NORMAL.
	Unknown bool `json:"unknown,omitempty"`
}

// Alert is the payload delivered to notification sinks.
type Alert struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Environment string          `json:"environment"`
	Message     string          `json:"message"`
	Spend       decimal.Decimal `json:"spend"`
	Cap         decimal.Decimal `json:"cap"`
	Boundary    time.Time       `json:"boundary"`
	CreatedAt   time.Time       `json:"created_at"`
}

const (
	AlertBudgetExceeded  = "budget.exceeded"
	AlertBudgetThrottled = "budget.throttled"
)
