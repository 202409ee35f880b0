package models

import "time"

// WorkItem is one unit of scheduled work, typically one persona.
type WorkItem struct {
	ID      string          `json:"id" yaml:"id"`
	Name    string          `json:"name,omitempty" yaml:"name"`
	Persona CacheableConfig `json:"persona" yaml:"persona"`
	Framing string          `json:"framing,omitempty" yaml:"framing"`
	Dynamic DynamicFields   `json:"dynamic,omitempty" yaml:"dynamic"`
}

// ItemResult is the outcome of one admitted work item.
type ItemResult struct {
	Index      int       `json:"index"`
	WorkItemID string    `json:"work_item_id"`
	Battle     *Battle   `json:"battle,omitempty"`
	Err        string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Failed reports whether the item produced no usable battle.
func (r ItemResult) Failed() bool {
	return r.Err != "" || r.Battle == nil || r.Battle.State == BattleAbortedError
}

// BatchResult is returned by the scheduler. Results are in completion order.
type BatchResult struct {
	Results             []ItemResult `json:"results"`
	Submitted           int          `json:"submitted"`
	Completed           int          `json:"completed"`
	Failed              int          `json:"failed"`
	NotAdmitted         int          `json:"not_admitted"`
	KillSwitchTriggered bool         `json:"kill_switch_triggered"`
	Err                 string       `json:"error,omitempty"`
}
