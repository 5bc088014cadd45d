package models

import (
	"time"
)

// ProjectState tracks a project through one migration attempt
type ProjectState string

const (
	StatePending          ProjectState = "pending"
	StateRepoCreating     ProjectState = "repo_creating"
	StateRepoReady        ProjectState = "repo_ready"
	StateRepoCreateFailed ProjectState = "repo_create_failed"
	StateMirroring        ProjectState = "mirroring"
	StateSucceeded        ProjectState = "succeeded"
	StateFailed           ProjectState = "failed"
)

// OutcomeStatus is the final status recorded for a project
type OutcomeStatus string

const (
	StatusSucceeded OutcomeStatus = "succeeded"
	StatusFailed    OutcomeStatus = "failed"
	StatusSkipped   OutcomeStatus = "skipped"
)

// MigrationOutcome is the per-project result of a run
type MigrationOutcome struct {
	Project         Project       `json:"project"`
	DestinationName string        `json:"destination_name"`
	Destination     *RepoRef      `json:"destination,omitempty"`
	Status          OutcomeStatus `json:"status"`
	// FailedState is the last state reached before failing
	FailedState   ProjectState `json:"failed_state,omitempty"`
	FailureReason string       `json:"failure_reason,omitempty"`
	MigratedAt    time.Time    `json:"migrated_at"`
}

// RunTally counts outcomes of a run. Total is the number of planned projects.
type RunTally struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Total     int `json:"total"`
}

// MigrationReport represents a summary of the migration process
type MigrationReport struct {
	RunID     string             `json:"run_id"`
	StartTime time.Time          `json:"start_time"`
	EndTime   *time.Time         `json:"end_time,omitempty"`
	Owner     string             `json:"owner"`
	DryRun    bool               `json:"dry_run"`
	Cancelled bool               `json:"cancelled"`
	Tally     RunTally           `json:"tally"`
	Outcomes  []MigrationOutcome `json:"outcomes"`
	Errors    []string           `json:"errors,omitempty"`
}
