package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderGitHub      = "github"
	ProviderAzureDevOps = "azuredevops"

	DefaultConfigPath    = "./configs/manifest2gh.yaml"
	DefaultManifestPath  = "./manifest.xml"
	DefaultSourceBaseURL = "https://gitlab.com"
	DefaultGitHubAPIURL  = "https://api.github.com"
)

var (
	// ErrMissingToken is returned when no destination credential was configured or entered
	ErrMissingToken = errors.New("destination token is required")

	// ErrManifestNotFound is returned when the manifest path does not exist
	ErrManifestNotFound = errors.New("manifest file not found")
)

// Config represents the application configuration
type Config struct {
	GitHub      GitHubConfig      `mapstructure:"github" yaml:"github"`
	AzureDevOps AzureDevOpsConfig `mapstructure:"azure_devops" yaml:"azure_devops"`
	Source      SourceConfig      `mapstructure:"source" yaml:"source"`
	Migration   MigrationConfig   `mapstructure:"migration" yaml:"migration"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// GitHubConfig contains GitHub connection settings
type GitHubConfig struct {
	Token string `mapstructure:"token" yaml:"token"`
	// Organization is empty when repositories go to the authenticated user's account
	Organization string `mapstructure:"organization" yaml:"organization"`
	BaseURL      string `mapstructure:"base_url" yaml:"base_url"` // For GitHub Enterprise
}

// AzureDevOpsConfig contains Azure DevOps connection settings, used when it is the destination
type AzureDevOpsConfig struct {
	OrganizationURL     string `mapstructure:"organization_url" yaml:"organization_url"`
	PersonalAccessToken string `mapstructure:"personal_access_token" yaml:"personal_access_token"`
	Project             string `mapstructure:"project" yaml:"project"`
}

// SourceConfig describes the hosting service repositories are mirrored from
type SourceConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// MigrationConfig contains migration-specific settings
type MigrationConfig struct {
	Provider             string        `mapstructure:"provider" yaml:"provider"`
	ManifestPath         string        `mapstructure:"manifest_path" yaml:"manifest_path"`
	Prefix               string        `mapstructure:"prefix" yaml:"prefix"`
	NamesFile            string        `mapstructure:"names_file" yaml:"names_file"`
	Description          string        `mapstructure:"description" yaml:"description"`
	Private              bool          `mapstructure:"private" yaml:"private"`
	Delay                time.Duration `mapstructure:"delay" yaml:"delay"`
	WorkDir              string        `mapstructure:"work_dir" yaml:"work_dir"`
	GitBinary            string        `mapstructure:"git_binary" yaml:"git_binary"`
	DryRun               bool          `mapstructure:"dry_run" yaml:"dry_run"`
	ResumeFromCheckpoint bool          `mapstructure:"resume_from_checkpoint" yaml:"resume_from_checkpoint"`
	CheckpointFile       string        `mapstructure:"checkpoint_file" yaml:"checkpoint_file"`
	ReportDir            string        `mapstructure:"report_dir" yaml:"report_dir"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`   // "debug", "info", "warn", "error"
	Format     string `mapstructure:"format" yaml:"format"` // "json" or "text"
	OutputFile string `mapstructure:"output_file" yaml:"output_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // days
}

// Token returns the credential for the configured destination provider
func (c *Config) Token() string {
	if c.Migration.Provider == ProviderAzureDevOps {
		return c.AzureDevOps.PersonalAccessToken
	}
	return c.GitHub.Token
}

// Organization returns the configured destination organization, or the Azure DevOps project
func (c *Config) Organization() string {
	if c.Migration.Provider == ProviderAzureDevOps {
		return c.AzureDevOps.Project
	}
	return c.GitHub.Organization
}

// LoadConfig loads configuration from an optional file, .env and environment variables
func LoadConfig(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("manifest2gh")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	// MANIFEST2GH_MIGRATION_PREFIX -> migration.prefix
	v.SetEnvPrefix("MANIFEST2GH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("github.token", "MANIFEST2GH_GITHUB_TOKEN", "GITHUB_TOKEN"); err != nil {
		return nil, fmt.Errorf("error binding environment: %w", err)
	}
	if err := v.BindEnv("azure_devops.personal_access_token", "MANIFEST2GH_AZURE_DEVOPS_PERSONAL_ACCESS_TOKEN", "AZURE_DEVOPS_EXT_PAT"); err != nil {
		return nil, fmt.Errorf("error binding environment: %w", err)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// An explicit path that does not exist is an error, the search paths are optional
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("github.token", "")
	v.SetDefault("github.organization", "")
	v.SetDefault("github.base_url", DefaultGitHubAPIURL)
	v.SetDefault("azure_devops.organization_url", "")
	v.SetDefault("azure_devops.personal_access_token", "")
	v.SetDefault("azure_devops.project", "")
	v.SetDefault("source.base_url", DefaultSourceBaseURL)
	v.SetDefault("migration.provider", ProviderGitHub)
	v.SetDefault("migration.manifest_path", "")
	v.SetDefault("migration.prefix", "")
	v.SetDefault("migration.names_file", "")
	v.SetDefault("migration.description", "")
	v.SetDefault("migration.private", false)
	v.SetDefault("migration.delay", 2*time.Second)
	v.SetDefault("migration.work_dir", os.TempDir())
	v.SetDefault("migration.git_binary", "git")
	v.SetDefault("migration.dry_run", false)
	v.SetDefault("migration.resume_from_checkpoint", false)
	v.SetDefault("migration.checkpoint_file", "./manifest2gh_checkpoint.json")
	v.SetDefault("migration.report_dir", "./reports")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output_file", "")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
}

// validateConfig checks settings that do not depend on interactive input.
// Credentials and the manifest path may still be prompted for, see Validate.
func validateConfig(config *Config) error {
	switch config.Migration.Provider {
	case ProviderGitHub:
	case ProviderAzureDevOps:
		if config.AzureDevOps.OrganizationURL == "" {
			return fmt.Errorf("azure_devops.organization_url is required")
		}
	default:
		return fmt.Errorf("migration.provider must be %q or %q, got %q", ProviderGitHub, ProviderAzureDevOps, config.Migration.Provider)
	}

	if config.Migration.Delay < 0 {
		return fmt.Errorf("migration.delay must not be negative")
	}

	if config.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url is required")
	}

	return nil
}

// Validate checks the configuration once every interactive value has been filled in
func (c *Config) Validate() error {
	if err := validateConfig(c); err != nil {
		return err
	}

	if c.Token() == "" {
		return ErrMissingToken
	}

	if c.Migration.Provider == ProviderAzureDevOps && c.AzureDevOps.Project == "" {
		return fmt.Errorf("azure_devops.project is required")
	}

	if _, err := os.Stat(c.Migration.ManifestPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrManifestNotFound, c.Migration.ManifestPath)
		}
		return fmt.Errorf("error checking manifest file: %w", err)
	}

	return nil
}

// LoadNames reads a YAML map of source project name to destination repository name
func LoadNames(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading names file: %w", err)
	}

	names := map[string]string{}
	if err := yaml.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("error parsing names file %s: %w", path, err)
	}

	for project, name := range names {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("names file %s: empty name for project %q", path, project)
		}
	}

	return names, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(config *Config, configPath string) error {
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	return os.WriteFile(configPath, data, 0600)
}
