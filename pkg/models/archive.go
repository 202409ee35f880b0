package models

import "time"

// ArchiveQueryOpts specifies filters for querying archived battles.
type ArchiveQueryOpts struct {
	WorkItemID  string
	State       BattleState
	Environment string
	Since       time.Time
	Limit       int
}

// ArchiveStat holds battle counts for a state/day combination.
type ArchiveStat struct {
	State BattleState
	Day   string
	Count int
}

// ArchiveConfig controls the battle archive.
type ArchiveConfig struct {
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}
