package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role identifies one of the two sides of a battle.
type Role string

const (
	RoleA Role = "a"
	RoleB Role = "b"
)

// Other returns the opposite role.
func (r Role) Other() Role {
	if r == RoleA {
		return RoleB
	}
	return RoleA
}

// BattleState is the lifecycle state of a battle.
type BattleState string

const (
	BattleInProgress    BattleState = "in_progress"
	BattleCompleted     BattleState = "completed"
	BattleAbortedBudget BattleState = "aborted_budget"
	BattleAbortedError  BattleState = "aborted_error"
)

// Terminal reports whether no further turns may be appended.
func (s BattleState) Terminal() bool {
	return s == BattleCompleted || s == BattleAbortedBudget || s == BattleAbortedError
}

// RoleConfig describes one side of a battle.
type RoleConfig struct {
	Name    string          `json:"name" yaml:"name"`
	Framing string          `json:"framing" yaml:"framing"`
	Agent   CacheableConfig `json:"agent" yaml:"agent"`
	Dynamic DynamicFields   `json:"dynamic,omitempty" yaml:"dynamic"`
}

// Turn is one role's contribution to a battle.
type Turn struct {
	Index           int             `json:"index"`
	Role            Role            `json:"role"`
	Speaker         string          `json:"speaker"`
	Text            string          `json:"text"`
	InputUsage      int             `json:"input_usage"`
	OutputUsage     int             `json:"output_usage"`
	DurationSeconds float64         `json:"duration_seconds,omitempty"`
	Tier            Tier            `json:"tier"`
	ResourceID      string          `json:"resource_id,omitempty"`
	Cost            decimal.Decimal `json:"cost"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Battle is one bounded simulated conversation.
type Battle struct {
	ID             string          `json:"id"`
	WorkItemID     string          `json:"work_item_id,omitempty"`
	Environment    string          `json:"environment"`
	RoleA          RoleConfig      `json:"role_a"`
	RoleB          RoleConfig      `json:"role_b"`
	Turns          []Turn          `json:"turns"`
	CumulativeCost decimal.Decimal `json:"cumulative_cost"`
	State          BattleState     `json:"state"`
	Error          string          `json:"error,omitempty"`
	Score          *Score          `json:"score,omitempty"`
	ScoreError     string          `json:"score_error,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at,omitempty"`
}

// Score is the referee's verdict with defaults applied and the weighted total.
type Score struct {
	Rapport           float64 `json:"rapport"`
	Discovery         float64 `json:"discovery"`
	ObjectionHandling float64 `json:"objection_handling"`
	Closing           float64 `json:"closing"`
	Compliance        float64 `json:"compliance"`
	Naturalness       float64 `json:"naturalness"`
	Outcome           string  `json:"outcome"`
	GoalAchieved      bool    `json:"goal_achieved"`
	CounterpartHungUp bool    `json:"counterpart_hung_up"`
	Summary           string  `json:"summary,omitempty"`
	Total             float64 `json:"total"`
}
