package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jlucaspains/manifest2gh/internal/config"
	"github.com/jlucaspains/manifest2gh/internal/models"
)

// HostingClient is the destination repository-management API
type HostingClient interface {
	CurrentUser(ctx context.Context) (string, error)
	Organizations(ctx context.Context) ([]string, error)
	CreateRepository(ctx context.Context, req models.RepoRequest) (models.CreateResult, error)
	PushURL(ref models.RepoRef) (string, error)
}

// Mirror copies a source repository into a destination repository
type Mirror interface {
	Run(ctx context.Context, sourceURL string, dest models.RepoRef, pushURL string) error
}

type Engine struct {
	hosting      HostingClient
	mirror       Mirror
	config       *config.MigrationConfig
	organization string
	logger       *slog.Logger
	report       *models.MigrationReport
	checkpoint   *MigrationCheckpoint
	sleep        func(ctx context.Context, d time.Duration) error
}

// MigrationCheckpoint records finished destinations so an interrupted run can be resumed
type MigrationCheckpoint struct {
	RunID      string    `json:"run_id"`
	Owner      string    `json:"owner"`
	Completed  []string  `json:"completed"`
	Failed     []string  `json:"failed"`
	StartTime  time.Time `json:"start_time"`
	LastUpdate time.Time `json:"last_update"`
}

// NewEngine creates an engine. organization is empty when repositories go to the authenticated user.
func NewEngine(
	hosting HostingClient,
	mirror Mirror,
	config *config.MigrationConfig,
	organization string,
	logger *slog.Logger,
) *Engine {
	runID := uuid.New().String()
	now := time.Now()
	return &Engine{
		hosting:      hosting,
		mirror:       mirror,
		config:       config,
		organization: organization,
		logger:       logger,
		report: &models.MigrationReport{
			RunID:     runID,
			StartTime: now,
			Outcomes:  []models.MigrationOutcome{},
			Errors:    []string{},
		},
		checkpoint: &MigrationCheckpoint{
			RunID:     runID,
			Completed: []string{},
			Failed:    []string{},
			StartTime: now,
		},
		sleep: sleepContext,
	}
}

// ResolveOwner returns the configured organization, or the authenticated user's login
func (e *Engine) ResolveOwner(ctx context.Context) (string, error) {
	if e.organization != "" {
		return e.organization, nil
	}

	user, err := e.hosting.CurrentUser(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve destination user: %w", err)
	}
	return user, nil
}

// Execute migrates every plan entry in order. A failing project is recorded and the run
// continues; only owner resolution failure aborts the run. Cancelling ctx stops the run
// before the next project and still returns the report.
func (e *Engine) Execute(ctx context.Context, plan []PlanEntry) (*models.MigrationReport, error) {
	e.report.Tally.Total = len(plan)
	e.report.DryRun = e.config.DryRun

	owner, err := e.ResolveOwner(ctx)
	if err != nil {
		return nil, err
	}
	e.report.Owner = owner
	e.checkpoint.Owner = owner
	e.logger.Info("Destination owner resolved", "owner", owner, "organization", e.organization != "")

	if e.config.ResumeFromCheckpoint && !e.config.DryRun {
		if err := e.loadCheckpoint(owner); err != nil {
			e.logger.Warn("Failed to load checkpoint", "error", err)
		}
	}

	for i, entry := range plan {
		if ctx.Err() != nil {
			e.report.Cancelled = true
			break
		}

		e.logger.Info("Processing project",
			"current", i+1,
			"total", len(plan),
			"project", entry.Project.Name,
			"destination", entry.DestinationName)

		if e.isAlreadyProcessed(entry.DestinationName) {
			e.logger.Info("Project already migrated, skipping", "destination", entry.DestinationName)
			e.recordOutcome(models.MigrationOutcome{
				Project:         entry.Project,
				DestinationName: entry.DestinationName,
				Status:          models.StatusSkipped,
				MigratedAt:      time.Now(),
			})
			continue
		}

		if e.config.DryRun {
			e.logger.Info("Project would be migrated",
				"source", entry.Project.SourceURL,
				"destination", owner+"/"+entry.DestinationName)
			e.recordOutcome(models.MigrationOutcome{
				Project:         entry.Project,
				DestinationName: entry.DestinationName,
				Status:          models.StatusSucceeded,
				MigratedAt:      time.Now(),
			})
			continue
		}

		outcome := e.processEntry(ctx, entry, owner)
		e.recordOutcome(outcome)

		if err := e.saveCheckpoint(); err != nil {
			e.logger.Warn("Failed to save checkpoint", "error", err)
		}

		// Pace consecutive transfers to stay clear of destination rate limits
		if i < len(plan)-1 && e.config.Delay > 0 {
			e.logger.Debug("Applying rate limiting...", "delay", e.config.Delay)
			if err := e.sleep(ctx, e.config.Delay); err != nil {
				e.report.Cancelled = true
				break
			}
		}
	}

	if ctx.Err() != nil {
		e.report.Cancelled = true
	}
	endTime := time.Now()
	e.report.EndTime = &endTime

	e.logger.Info("Migration completed",
		"successful", e.report.Tally.Succeeded,
		"failed", e.report.Tally.Failed,
		"skipped", e.report.Tally.Skipped,
		"total", e.report.Tally.Total,
		"cancelled", e.report.Cancelled)

	return e.report, nil
}

// processEntry takes one project from Pending to Succeeded or Failed.
// A panic anywhere below is converted into a failure of this project only.
func (e *Engine) processEntry(ctx context.Context, entry PlanEntry, owner string) (outcome models.MigrationOutcome) {
	outcome = models.MigrationOutcome{
		Project:         entry.Project,
		DestinationName: entry.DestinationName,
		MigratedAt:      time.Now(),
	}
	state := models.StatePending

	defer func() {
		if r := recover(); r != nil {
			outcome = e.fail(outcome, state, fmt.Errorf("unexpected fault: %v", r))
		}
	}()

	state = e.transition(entry, state, models.StateRepoCreating)
	description := e.config.Description
	if description == "" {
		description = "Mirrored from " + entry.Project.SourceURL
	}
	result, err := e.hosting.CreateRepository(ctx, models.RepoRequest{
		Organization: e.organization,
		Owner:        owner,
		Name:         entry.DestinationName,
		Description:  description,
		Private:      e.config.Private,
	})
	if err == nil && !result.Usable() {
		err = fmt.Errorf("repository %s was not created", entry.DestinationName)
	}
	if err != nil {
		state = e.transition(entry, state, models.StateRepoCreateFailed)
		return e.fail(outcome, state, err)
	}
	if result.Status == models.AlreadyExists {
		e.logger.Warn("Using existing destination repository, refs will be overwritten", "repo", result.Repo.FullName())
	}
	state = e.transition(entry, state, models.StateRepoReady)
	repo := result.Repo
	outcome.Destination = &repo

	pushURL, err := e.hosting.PushURL(result.Repo)
	if err != nil {
		return e.fail(outcome, state, err)
	}

	state = e.transition(entry, state, models.StateMirroring)
	if err := e.mirror.Run(ctx, entry.Project.SourceURL, result.Repo, pushURL); err != nil {
		return e.fail(outcome, state, err)
	}

	e.transition(entry, state, models.StateSucceeded)
	e.logger.Info("Repository imported", "source", entry.Project.SourceURL, "destination", result.Repo.FullName())
	outcome.Status = models.StatusSucceeded
	return outcome
}

func (e *Engine) transition(entry PlanEntry, from, to models.ProjectState) models.ProjectState {
	e.logger.Debug("Project state", "destination", entry.DestinationName, "from", from, "to", to)
	return to
}

func (e *Engine) fail(outcome models.MigrationOutcome, state models.ProjectState, err error) models.MigrationOutcome {
	e.logger.Error("Failed to migrate project",
		"project", outcome.Project.Name,
		"destination", outcome.DestinationName,
		"state", state,
		"error", err)
	outcome.Status = models.StatusFailed
	outcome.FailedState = state
	outcome.FailureReason = err.Error()
	return outcome
}

func (e *Engine) recordOutcome(outcome models.MigrationOutcome) {
	e.report.Outcomes = append(e.report.Outcomes, outcome)

	switch outcome.Status {
	case models.StatusSucceeded:
		e.report.Tally.Succeeded++
		if !e.config.DryRun {
			e.checkpoint.Completed = append(e.checkpoint.Completed, outcome.DestinationName)
		}
	case models.StatusFailed:
		e.report.Tally.Failed++
		e.checkpoint.Failed = append(e.checkpoint.Failed, outcome.DestinationName)
		e.report.Errors = append(e.report.Errors, fmt.Sprintf("%s -> %s: %s",
			outcome.Project.Name, outcome.DestinationName, outcome.FailureReason))
	case models.StatusSkipped:
		e.report.Tally.Skipped++
	}
	e.checkpoint.LastUpdate = time.Now()
}

func (e *Engine) isAlreadyProcessed(destinationName string) bool {
	for _, name := range e.checkpoint.Completed {
		if name == destinationName {
			return true
		}
	}
	return false
}

func (e *Engine) saveCheckpoint() error {
	if e.config.CheckpointFile == "" {
		return nil
	}

	data, err := json.MarshalIndent(e.checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	if err := os.WriteFile(e.config.CheckpointFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}

	return nil
}

// loadCheckpoint carries over completed destinations from a previous run against the same owner.
// A checkpoint written for another owner is ignored.
func (e *Engine) loadCheckpoint(owner string) error {
	if e.config.CheckpointFile == "" {
		return nil
	}

	data, err := os.ReadFile(e.config.CheckpointFile)
	if err != nil {
		return fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var previous MigrationCheckpoint
	if err := json.Unmarshal(data, &previous); err != nil {
		return fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	if previous.Owner != owner {
		e.logger.Warn("Ignoring checkpoint written for another owner",
			"checkpoint_owner", previous.Owner,
			"owner", owner,
			"previous_run", previous.RunID)
		return nil
	}
	// Only completed destinations carry over; failures are retried
	e.checkpoint.Completed = append(e.checkpoint.Completed, previous.Completed...)

	e.logger.Info("Loaded checkpoint",
		"completed", len(previous.Completed),
		"previous_run", previous.RunID)

	return nil
}

// SaveReport writes the run report as JSON
func (e *Engine) SaveReport(filePath string) error {
	if filePath == "" {
		filePath = DefaultReportPath(".", e.report.StartTime)
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := json.MarshalIndent(e.report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	e.logger.Info("Migration report saved", "path", filePath)
	return nil
}

// Report returns the report of the current run
func (e *Engine) Report() *models.MigrationReport {
	return e.report
}

// DefaultReportPath returns dir/migration_report_<start time>.json
func DefaultReportPath(dir string, start time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("migration_report_%s.json", start.Format("20060102_150405")))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
