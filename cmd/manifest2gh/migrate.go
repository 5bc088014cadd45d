package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sort"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jlucaspains/manifest2gh/internal/azuredevops"
	"github.com/jlucaspains/manifest2gh/internal/config"
	"github.com/jlucaspains/manifest2gh/internal/github"
	"github.com/jlucaspains/manifest2gh/internal/logging"
	"github.com/jlucaspains/manifest2gh/internal/manifest"
	"github.com/jlucaspains/manifest2gh/internal/migration"
	"github.com/jlucaspains/manifest2gh/internal/mirror"
	"github.com/jlucaspains/manifest2gh/internal/models"
	"github.com/jlucaspains/manifest2gh/internal/prompt"
)

const banner = `
============================================================
       Manifest to GitHub Repository Importer
============================================================`

func runMigration(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	// Load configuration
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	applyFlags(cmd, cfg)

	logger := setupLogger(cfg.Logging)
	fmt.Fprintln(out, banner)

	// Setup graceful shutdown before any prompt so Ctrl+C is handled everywhere
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var running atomic.Bool
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go watchSignals(sigChan, &running, cancel, func() {
		fmt.Fprintln(out, "\nImport cancelled by user")
		os.Exit(0)
	}, logger)

	interactive := !assumeYes && logging.IsTerminal(os.Stdin)
	p := prompt.New(os.Stdin, out)

	if err := gatherSettings(cfg, p, interactive, flagChanged(cmd)); err != nil {
		if errors.Is(err, prompt.ErrCancelled) {
			fmt.Fprintln(out, "Import cancelled")
			return nil
		}
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	// The manifest is read before any network call
	plan, err := loadPlan(cfg)
	if err != nil {
		return err
	}
	if len(plan) == 0 {
		fmt.Fprintln(out, "No projects found in manifest")
		return nil
	}

	hosting, err := newHostingClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create %s client: %w", cfg.Migration.Provider, err)
	}

	org := cfg.Organization()
	if org != "" {
		proceed, err := verifyOrganization(ctx, hosting, org, p, interactive, out, logger)
		if err != nil {
			return err
		}
		if !proceed {
			fmt.Fprintln(out, "Import cancelled")
			return nil
		}
	}

	fmt.Fprintf(out, "\nFound %d projects to import\n", len(plan))
	if org != "" {
		fmt.Fprintf(out, "Target: organization '%s'\n", org)
	} else {
		fmt.Fprintln(out, "Target: personal account")
	}
	printPlan(out, plan)
	warnCollisions(logger, plan)

	if cfg.Migration.DryRun {
		logger.Info("DRY RUN MODE - No changes will be made")
	} else {
		confirmed, err := confirm(p, interactive, "Continue with import?")
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Fprintln(out, "Import cancelled")
			return nil
		}
	}

	token := cfg.Token()
	transfer := mirror.NewTransfer(
		mirror.NewGitExecutor(cfg.Migration.GitBinary, token),
		cfg.Migration.WorkDir,
		logger,
		token,
	)
	engine := migration.NewEngine(hosting, transfer, &cfg.Migration, org, logger)

	// Run migration
	running.Store(true)
	report, err := engine.Execute(ctx, plan)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	// Save report
	reportPath := reportFile
	if reportPath == "" {
		reportPath = migration.DefaultReportPath(cfg.Migration.ReportDir, report.StartTime)
	}
	if err := engine.SaveReport(reportPath); err != nil {
		logger.Warn("Failed to save report", "error", err)
	}

	printMigrationSummary(out, report)

	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	applyFlags(cmd, cfg)
	logger := setupLogger(cfg.Logging)

	if cfg.Migration.ManifestPath == "" {
		cfg.Migration.ManifestPath = config.DefaultManifestPath
	}
	plan, err := loadPlan(cfg)
	if err != nil {
		return err
	}
	if len(plan) == 0 {
		fmt.Fprintln(out, "No projects found in manifest")
		return nil
	}

	fmt.Fprintf(out, "Found %d projects to import\n", len(plan))
	printPlan(out, plan)
	warnCollisions(logger, plan)

	return nil
}

// loadPlan reads the name overrides and the manifest and computes destination names
func loadPlan(cfg *config.Config) ([]migration.PlanEntry, error) {
	names, err := config.LoadNames(cfg.Migration.NamesFile)
	if err != nil {
		return nil, err
	}

	projects, err := manifest.Parse(cfg.Migration.ManifestPath, cfg.Source.BaseURL)
	if err != nil {
		return nil, err
	}
	return migration.Plan(projects, cfg.Migration.Prefix, names), nil
}

// watchSignals waits for one interrupt. Before the run starts it calls onIdle, which ends the
// process. During the run it cancels the context so the engine stops after the current step.
func watchSignals(sigChan <-chan os.Signal, running *atomic.Bool, cancel context.CancelFunc, onIdle func(), logger *slog.Logger) {
	if _, ok := <-sigChan; !ok {
		return
	}
	if !running.Load() {
		onIdle()
		return
	}
	logger.Warn("Received interrupt signal, finishing the current step and stopping...")
	cancel()
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	applyFlags(cmd, cfg)
	logger := setupLogger(cfg.Logging)

	logger.Info("Configuration file is valid")

	hosting, err := newHostingClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create %s client: %w", cfg.Migration.Provider, err)
	}

	ctx := context.Background()
	user, err := hosting.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("%s connection failed: %w", cfg.Migration.Provider, err)
	}
	logger.Info("✓ Authenticated", "user", user)

	if org := cfg.Organization(); org != "" {
		orgs, err := hosting.Organizations(ctx)
		if err != nil {
			return fmt.Errorf("failed to list organizations: %w", err)
		}
		if !slices.Contains(orgs, org) {
			return fmt.Errorf("organization %q is not accessible, available: %s", org, formatList(orgs))
		}
		logger.Info("✓ Organization is accessible", "organization", org)
	}

	logger.Info("✓ Configuration is valid and ready for migration")

	return nil
}

// gatherSettings fills configuration values that are still empty, prompting when interactive.
// changed reports whether a flag was set explicitly; explicit flags are never prompted for.
func gatherSettings(cfg *config.Config, p *prompt.Prompter, interactive bool, changed func(string) bool) error {
	if cfg.Token() == "" && interactive {
		token, err := p.Ask("Enter your destination access token", "")
		if err != nil {
			return err
		}
		if cfg.Migration.Provider == config.ProviderAzureDevOps {
			cfg.AzureDevOps.PersonalAccessToken = token
		} else {
			cfg.GitHub.Token = token
		}
	}
	if cfg.Token() == "" {
		return config.ErrMissingToken
	}

	if cfg.Migration.ManifestPath == "" {
		cfg.Migration.ManifestPath = config.DefaultManifestPath
		if interactive {
			path, err := p.Ask("Enter path to manifest", config.DefaultManifestPath)
			if err != nil {
				return err
			}
			cfg.Migration.ManifestPath = path
		}
	}
	if _, err := os.Stat(cfg.Migration.ManifestPath); err != nil {
		return fmt.Errorf("%w: %s", config.ErrManifestNotFound, cfg.Migration.ManifestPath)
	}

	if !interactive {
		return nil
	}

	if cfg.Migration.Provider == config.ProviderGitHub && !changed("org") && cfg.GitHub.Organization == "" {
		org, err := p.SelectTarget()
		if err != nil {
			return err
		}
		cfg.GitHub.Organization = org
	}

	if !changed("prefix") && cfg.Migration.Prefix == "" {
		value, err := p.Ask("Enter prefix for repository names (optional, e.g. 'pixel-')", "")
		if err != nil {
			return err
		}
		cfg.Migration.Prefix = value
	}

	if !changed("source-base-url") {
		value, err := p.Ask("Enter source base URL", cfg.Source.BaseURL)
		if err != nil {
			return err
		}
		cfg.Source.BaseURL = value
	}

	return nil
}

// verifyOrganization warns when org is not among the accessible organizations and asks whether to continue
func verifyOrganization(
	ctx context.Context,
	hosting migration.HostingClient,
	org string,
	p *prompt.Prompter,
	interactive bool,
	out io.Writer,
	logger *slog.Logger,
) (bool, error) {
	fmt.Fprintf(out, "\nVerifying access to organization '%s'...\n", org)
	orgs, err := hosting.Organizations(ctx)
	if err != nil {
		logger.Warn("Failed to list organizations", "error", err)
	}
	if err == nil && slices.Contains(orgs, org) {
		return true, nil
	}

	fmt.Fprintf(out, "WARNING: You may not have access to organization '%s'\n", org)
	fmt.Fprintf(out, "   Available organizations: %s\n", formatList(orgs))

	return confirm(p, interactive, "Continue anyway?")
}

// confirm asks a yes/no question. Without a terminal only --yes counts as a yes.
func confirm(p *prompt.Prompter, interactive bool, question string) (bool, error) {
	if assumeYes {
		return true, nil
	}
	if !interactive {
		return false, errors.New("confirmation required, rerun with --yes")
	}
	ok, err := p.Confirm(question)
	if errors.Is(err, prompt.ErrCancelled) {
		return false, nil
	}
	return ok, err
}

func newHostingClient(cfg *config.Config, logger *slog.Logger) (migration.HostingClient, error) {
	switch cfg.Migration.Provider {
	case config.ProviderAzureDevOps:
		return azuredevops.NewClient(cfg.AzureDevOps, logger)
	default:
		return github.NewClient(cfg.GitHub, logger)
	}
}

func flagChanged(cmd *cobra.Command) func(string) bool {
	return func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
}

func printPlan(out io.Writer, plan []migration.PlanEntry) {
	fmt.Fprintln(out, "\nProjects to be imported:")
	for i, entry := range plan {
		fmt.Fprintf(out, "  %d. %s -> %s\n", i+1, entry.Project.Name, entry.DestinationName)
		fmt.Fprintf(out, "       from %s\n", entry.Project.SourceURL)
	}
	fmt.Fprintln(out)
}

func warnCollisions(logger *slog.Logger, plan []migration.PlanEntry) {
	collisions := migration.Collisions(plan)
	names := make([]string, 0, len(collisions))
	for name := range collisions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		logger.Warn("Several projects map to the same destination repository",
			"destination", name,
			"projects", strings.Join(collisions[name], ", "))
	}
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "None"
	}
	return strings.Join(items, ", ")
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	return logging.NewLogger(cfg, verbose)
}

func printMigrationSummary(out io.Writer, report *models.MigrationReport) {
	fmt.Fprintln(out, "\n"+strings.Repeat("=", 60))
	fmt.Fprintln(out, "Import Summary:")
	fmt.Fprintf(out, "   Successful: %d\n", report.Tally.Succeeded)
	fmt.Fprintf(out, "   Failed: %d\n", report.Tally.Failed)
	if report.Tally.Skipped > 0 {
		fmt.Fprintf(out, "   Skipped: %d\n", report.Tally.Skipped)
	}
	fmt.Fprintf(out, "   Total: %d\n", report.Tally.Total)
	if report.EndTime != nil {
		fmt.Fprintf(out, "   Duration: %s\n", report.EndTime.Sub(report.StartTime).Round(time.Millisecond))
	}
	if report.Cancelled {
		fmt.Fprintln(out, "   Run cancelled before all projects were attempted")
	}
	if report.DryRun {
		fmt.Fprintln(out, "   Dry run, no changes were made")
	}

	if len(report.Errors) > 0 {
		fmt.Fprintln(out, "\nErrors encountered:")
		for _, msg := range report.Errors {
			fmt.Fprintf(out, "   %s\n", msg)
		}
	}
	fmt.Fprintln(out, strings.Repeat("=", 60))
}
