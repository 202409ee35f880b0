package models

import "time"

// Difficulty of the simulated counterpart.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Region is the coarse bucket a free-text location collapses into.
type Region string

const (
	RegionUSEast    Region = "us-east"
	RegionUSCentral Region = "us-central"
	RegionUSWest    Region = "us-west"
	RegionEU        Region = "eu"
	RegionAPAC      Region = "apac"
	RegionOther     Region = "other"
)

// CacheableConfig is the subset of an agent's configuration that selects a
// provisioned resource. Every field participates in the config hash.
type CacheableConfig struct {
	Persona      string     `json:"persona" yaml:"persona"`
	Difficulty   Difficulty `json:"difficulty,omitempty" yaml:"difficulty"`
	Language     string     `json:"language,omitempty" yaml:"language"`
	Voice        string     `json:"voice,omitempty" yaml:"voice"`
	Model        string     `json:"model,omitempty" yaml:"model"`
	Location     string     `json:"location,omitempty" yaml:"location"`
	RoleReversal *bool      `json:"role_reversal,omitempty" yaml:"role_reversal"`
	Temperament  string     `json:"temperament,omitempty" yaml:"temperament"`
}

// DynamicFields is per-call data pushed onto a shared resource. It never
// affects the config hash.
type DynamicFields struct {
	CounterpartName string            `json:"counterpart_name,omitempty" yaml:"counterpart_name"`
	ScenarioAddress string            `json:"scenario_address,omitempty" yaml:"scenario_address"`
	Extra           map[string]string `json:"extra,omitempty" yaml:"extra"`
}

// IsZero reports whether there is nothing to push.
func (d DynamicFields) IsZero() bool {
	return d.CounterpartName == "" && d.ScenarioAddress == "" && len(d.Extra) == 0
}

// CacheEntry maps a config hash to a provisioned external resource.
type CacheEntry struct {
	ConfigHash string          `json:"config_hash"`
	ResourceID string          `json:"resource_id"`
	Config     CacheableConfig `json:"config"`
	CreatedAt  time.Time       `json:"created_at"`
	LastUsedAt time.Time       `json:"last_used_at"`
	UseCount   int64           `json:"use_count"`
}

// CacheStats reports resource cache activity.
type CacheStats struct {
	Entries        int64 `json:"entries"`
	Hits           int64 `json:"hits"`
	Misses         int64 `json:"misses"`
	Evictions      int64 `json:"evictions"`
	VerifyFailures int64 `json:"verify_failures"`
}
