package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jlucaspains/manifest2gh/internal/config"
	"github.com/jlucaspains/manifest2gh/internal/prompt"
)

var (
	// Version information - set by build flags
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"

	// CLI flags
	configFile    string
	verbose       bool
	manifestPath  string
	organization  string
	prefix        string
	sourceBaseURL string
	namesFile     string
	provider      string
	delay         time.Duration
	assumeYes     bool
	dryRun        bool
	resume        bool
	private       bool
	reportFile    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "manifest2gh",
	Short: "Mirror every repository of a manifest to GitHub",
	Long: `A command-line tool that reads a repository manifest, creates one destination
repository per project and mirrors every branch and tag into it.

Running manifest2gh without a subcommand starts the migration.`,
	RunE:          runMigration,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Start the migration process",
	Long: `Mirror the repositories listed in a manifest.

The migration process will:
1. Read the manifest and resolve each project's source URL
2. Show the destination repository name of every project and ask for confirmation
3. Create each destination repository, reusing one that already exists
4. Mirror all refs from the source into the destination
5. Generate a detailed migration report

Use --dry-run to preview the migration without making changes.`,
	RunE: runMigration,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the migration plan without contacting any server",
	RunE:  runPlan,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  "Commands for managing configuration files and settings.",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new configuration file",
	Long:  "Create a new configuration file with default settings.",
	RunE:  initConfig,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and connections",
	Long:  "Validate the configuration file, the destination credential and organization access.",
	RunE:  validateConfig,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  "Display the version, commit, and build time of the application.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("manifest2gh version %s\n", Version)
		fmt.Printf("Commit: %s\n", Commit)
		fmt.Printf("Built: %s\n", BuildTime)
	},
}

func init() {
	// Root command flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file path (default: ./manifest2gh.yaml or ./configs/manifest2gh.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	// Manifest flags shared by every command that builds a plan
	for _, c := range []*cobra.Command{rootCmd, migrateCmd, planCmd} {
		c.Flags().StringVarP(&manifestPath, "manifest", "m", "", "Path to the manifest (default: ./manifest.xml)")
		c.Flags().StringVar(&prefix, "prefix", "", "Prefix for destination repository names, e.g. 'pixel-'")
		c.Flags().StringVar(&sourceBaseURL, "source-base-url", "", "Base URL of the source host (default: https://gitlab.com)")
		c.Flags().StringVar(&namesFile, "names", "", "YAML file mapping project names to destination repository names")
	}

	// Migrate flags
	for _, c := range []*cobra.Command{rootCmd, migrateCmd, validateCmd} {
		c.Flags().StringVarP(&organization, "org", "o", "", "Destination organization (empty: personal account)")
		c.Flags().StringVar(&provider, "provider", "", "Destination provider: github or azuredevops")
	}
	for _, c := range []*cobra.Command{rootCmd, migrateCmd} {
		c.Flags().DurationVar(&delay, "delay", 0, "Pause between projects (default: 2s)")
		c.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not prompt, use defaults and assume confirmation")
		c.Flags().BoolVar(&dryRun, "dry-run", false, "Preview migration without making changes")
		c.Flags().BoolVar(&resume, "resume", false, "Skip projects completed by the last checkpoint")
		c.Flags().BoolVar(&private, "private", false, "Create private repositories")
		c.Flags().StringVar(&reportFile, "report", "", "Output file for migration report")
	}

	// Add subcommands
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
	configCmd.AddCommand(configInitCmd)
}

// applyFlags overrides configuration values with the flags given on the command line
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	changed := flagChanged(cmd)

	if changed("provider") {
		cfg.Migration.Provider = provider
	}
	if changed("manifest") {
		cfg.Migration.ManifestPath = manifestPath
	}
	if changed("org") {
		if cfg.Migration.Provider == config.ProviderAzureDevOps {
			cfg.AzureDevOps.Project = organization
		} else {
			cfg.GitHub.Organization = organization
		}
	}
	if changed("prefix") {
		cfg.Migration.Prefix = prefix
	}
	if changed("source-base-url") {
		cfg.Source.BaseURL = sourceBaseURL
	}
	if changed("names") {
		cfg.Migration.NamesFile = namesFile
	}
	if changed("delay") {
		cfg.Migration.Delay = delay
	}
	if dryRun {
		cfg.Migration.DryRun = true
	}
	if resume {
		cfg.Migration.ResumeFromCheckpoint = true
	}
	if private {
		cfg.Migration.Private = true
	}
}

func initConfig(cmd *cobra.Command, args []string) error {
	logger := setupLogger(config.LoggingConfig{})

	configPath := configFile
	if configPath == "" {
		configPath = config.DefaultConfigPath
	}
	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		logger.Warn("Configuration file already exists", "path", configPath)
		overwrite, err := prompt.New(os.Stdin, os.Stdout).Confirm("Do you want to overwrite it?")
		if err != nil && !errors.Is(err, prompt.ErrCancelled) {
			return err
		}

		if !overwrite {
			logger.Info("Configuration initialization cancelled")
			return nil
		}
	}

	if err := config.SaveConfig(createDefaultConfig(), configPath); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	logger.Info("✓ Configuration file created", "path", configPath)
	logger.Info("Please edit the configuration file with your destination settings")

	return nil
}

func createDefaultConfig() *config.Config {
	return &config.Config{
		GitHub: config.GitHubConfig{
			Token:        "",
			Organization: "",
			BaseURL:      config.DefaultGitHubAPIURL,
		},
		AzureDevOps: config.AzureDevOpsConfig{
			OrganizationURL: "https://dev.azure.com/your-organization",
			Project:         "your-project-name",
		},
		Source: config.SourceConfig{
			BaseURL: config.DefaultSourceBaseURL,
		},
		Migration: config.MigrationConfig{
			Provider:       config.ProviderGitHub,
			ManifestPath:   config.DefaultManifestPath,
			Delay:          2 * time.Second,
			GitBinary:      "git",
			CheckpointFile: "./manifest2gh_checkpoint.json",
			ReportDir:      "./reports",
		},
		Logging: config.LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
		},
	}
}
