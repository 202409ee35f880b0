package models

// ContextTurn is a prior turn as supplied to the reasoning service.
type ContextTurn struct {
	Role    Role   `json:"role"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// GenerateRequest asks the reasoning service for the next turn.
type GenerateRequest struct {
	BattleID   string          `json:"battle_id"`
	Role       Role            `json:"role"`
	Speaker    string          `json:"speaker"`
	Framing    string          `json:"framing"`
	Context    []ContextTurn   `json:"context"`
	Tier       Tier            `json:"tier"`
	Model      string          `json:"model,omitempty"`
	ResourceID string          `json:"resource_id,omitempty"`
	Agent      CacheableConfig `json:"agent"`
}

// GenerateResponse is the reasoning service's reply.
type GenerateResponse struct {
	Text            string  `json:"text"`
	InputTokens     int     `json:"input_tokens"`
	OutputTokens    int     `json:"output_tokens"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Model           string  `json:"model,omitempty"`
	Provider        string  `json:"provider,omitempty"`
}

// ScoreRequest sends the full transcript to the referee.
type ScoreRequest struct {
	BattleID   string        `json:"battle_id"`
	Transcript []ContextTurn `json:"transcript"`
	State      BattleState   `json:"state"`
}

// RawScore is the referee's payload; optional fields are pointers so that
// omitted values can be told apart from zeros.
type RawScore struct {
	Rapport           *float64 `json:"rapport"`
	Discovery         *float64 `json:"discovery"`
	ObjectionHandling *float64 `json:"objection_handling"`
	Closing           *float64 `json:"closing"`
	Compliance        *float64 `json:"compliance"`
	Naturalness       *float64 `json:"naturalness"`
	Outcome           *string  `json:"outcome"`
	GoalAchieved      *bool    `json:"goal_achieved"`
	CounterpartHungUp *bool    `json:"counterpart_hung_up"`
	Summary           *string  `json:"summary"`
}
