package azuredevops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/microsoft/azure-devops-go-api/azuredevops/v7"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/core"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/git"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/location"

	"github.com/jlucaspains/manifest2gh/internal/config"
	"github.com/jlucaspains/manifest2gh/internal/models"
)

// Client creates destination repositories in Azure DevOps projects.
// The project plays the role of the destination organization.
type Client struct {
	connection     *azuredevops.Connection
	coreClient     core.Client
	gitClient      git.Client
	locationClient location.Client
	config         config.AzureDevOpsConfig
	logger         *slog.Logger
}

func NewClient(cfg config.AzureDevOpsConfig, logger *slog.Logger) (*Client, error) {
	if cfg.OrganizationURL == "" {
		return nil, fmt.Errorf("organization URL is required")
	}

	if cfg.PersonalAccessToken == "" {
		return nil, config.ErrMissingToken
	}

	connection := azuredevops.NewPatConnection(cfg.OrganizationURL, cfg.PersonalAccessToken)

	coreClient, err := core.NewClient(context.Background(), connection)
	if err != nil {
		return nil, fmt.Errorf("failed to create core client: %w", err)
	}

	gitClient, err := git.NewClient(context.Background(), connection)
	if err != nil {
		return nil, fmt.Errorf("failed to create git client: %w", err)
	}

	return &Client{
		connection:     connection,
		coreClient:     coreClient,
		gitClient:      gitClient,
		locationClient: location.NewClient(context.Background(), connection),
		config:         cfg,
		logger:         logger,
	}, nil
}

// CurrentUser returns the display name of the identity behind the token
func (c *Client) CurrentUser(ctx context.Context) (string, error) {
	data, err := c.locationClient.GetConnectionData(ctx, location.GetConnectionDataArgs{})
	if err != nil {
		return "", fmt.Errorf("failed to get connection data: %w", err)
	}

	if data == nil || data.AuthenticatedUser == nil || data.AuthenticatedUser.ProviderDisplayName == nil {
		return "", fmt.Errorf("connection data has no authenticated user")
	}
	return *data.AuthenticatedUser.ProviderDisplayName, nil
}

// Organizations returns the names of the projects the token can see
func (c *Client) Organizations(ctx context.Context) ([]string, error) {
	projects, err := c.coreClient.GetProjects(ctx, core.GetProjectsArgs{})
	if err != nil {
		return nil, fmt.Errorf("failed to get projects: %w", err)
	}
	if projects == nil {
		return []string{}, nil
	}

	names := make([]string, 0, len(projects.Value))
	for _, p := range projects.Value {
		if p.Name != nil {
			names = append(names, *p.Name)
		}
	}

	return names, nil
}

// CreateRepository creates a git repository in the configured project
func (c *Client) CreateRepository(ctx context.Context, req models.RepoRequest) (models.CreateResult, error) {
	project := req.Organization
	if project == "" {
		project = c.config.Project
	}
	c.logger.Debug("Creating Azure DevOps repository", "project", project, "name", req.Name)

	teamProject, err := c.coreClient.GetProject(ctx, core.GetProjectArgs{ProjectId: &project})
	if err != nil {
		return models.CreateResult{Status: models.CreateFailed}, fmt.Errorf("failed to get project %s: %w", project, err)
	}

	name := req.Name
	created, err := c.gitClient.CreateRepository(ctx, git.CreateRepositoryArgs{
		GitRepositoryToCreate: &git.GitRepositoryCreateOptions{
			Name:    &name,
			Project: &core.TeamProjectReference{Id: teamProject.Id},
		},
		Project: &project,
	})
	if err != nil {
		if isAlreadyExists(err) {
			c.logger.Warn("Repository already exists", "repo", project+"/"+req.Name)
			return models.CreateResult{
				Status: models.AlreadyExists,
				Repo: models.RepoRef{
					Owner:    project,
					Name:     req.Name,
					CloneURL: c.repoURL(project, req.Name),
					HTMLURL:  c.repoURL(project, req.Name),
				},
			}, nil
		}
		return models.CreateResult{Status: models.CreateFailed}, fmt.Errorf("failed to create repository %s: %w", req.Name, err)
	}

	ref := models.RepoRef{Owner: project, Name: req.Name}
	if created.RemoteUrl != nil {
		ref.CloneURL = *created.RemoteUrl
	} else {
		ref.CloneURL = c.repoURL(project, req.Name)
	}
	if created.WebUrl != nil {
		ref.HTMLURL = *created.WebUrl
	}

	c.logger.Info("Created Azure DevOps repository", "repo", ref.FullName())
	return models.CreateResult{Status: models.Created, Repo: ref}, nil
}

// PushURL returns the repository remote URL with the personal access token embedded
func (c *Client) PushURL(ref models.RepoRef) (string, error) {
	raw := ref.CloneURL
	if raw == "" {
		raw = c.repoURL(ref.Owner, ref.Name)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid remote URL for %s: %w", ref.FullName(), err)
	}
	// Any user name is accepted alongside a PAT
	u.User = url.UserPassword("pat", c.config.PersonalAccessToken)
	return u.String(), nil
}

func (c *Client) repoURL(project, name string) string {
	return fmt.Sprintf("%s/%s/_git/%s",
		strings.TrimRight(c.config.OrganizationURL, "/"),
		url.PathEscape(project),
		url.PathEscape(name))
}

func isAlreadyExists(err error) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		var wrapped *azuredevops.WrappedError
		switch w := any(e).(type) {
		case azuredevops.WrappedError:
			wrapped = &w
		case *azuredevops.WrappedError:
			wrapped = w
		default:
			continue
		}
		if wrapped == nil {
			continue
		}

		if wrapped.StatusCode != nil && *wrapped.StatusCode == http.StatusConflict {
			return true
		}
		return wrapped.TypeKey != nil && strings.Contains(*wrapped.TypeKey, "AlreadyExists")
	}
	return false
}
