package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/jlucaspains/manifest2gh/internal/config"
	"github.com/jlucaspains/manifest2gh/internal/models"
)

// Client creates destination repositories on GitHub or GitHub Enterprise
type Client struct {
	client  *github.Client
	config  config.GitHubConfig
	gitHost string
	logger  *slog.Logger
}

func NewClient(cfg config.GitHubConfig, logger *slog.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, config.ErrMissingToken
	}

	// Create OAuth2 token source
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: cfg.Token},
	)
	tc := oauth2.NewClient(ctx, ts)

	githubClient := github.NewClient(tc)
	gitHost := "github.com"
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL != "" && baseURL != strings.TrimRight(config.DefaultGitHubAPIURL, "/") {
		// GitHub Enterprise
		var err error
		githubClient, err = githubClient.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub base URL %q: %w", cfg.BaseURL, err)
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub base URL %q: %w", cfg.BaseURL, err)
		}
		gitHost = u.Host
	}

	return &Client{
		client:  githubClient,
		config:  cfg,
		gitHost: gitHost,
		logger:  logger,
	}, nil
}

// CurrentUser returns the login of the authenticated user
func (c *Client) CurrentUser(ctx context.Context) (string, error) {
	user, _, err := c.client.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("failed to get authenticated user: %w", err)
	}

	login := user.GetLogin()
	if login == "" {
		return "", fmt.Errorf("authenticated user has no login")
	}
	return login, nil
}

// Organizations returns the logins of all organizations the authenticated user can access.
// A failed request is an error, never an empty list.
func (c *Client) Organizations(ctx context.Context) ([]string, error) {
	var orgs []string
	opts := &github.ListOptions{PerPage: 100}
	for {
		page, resp, err := c.client.Organizations.List(ctx, "", opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list organizations: %w", err)
		}

		for _, org := range page {
			orgs = append(orgs, org.GetLogin())
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return orgs, nil
}

// CreateRepository creates an empty repository. An existing repository with the same name
// is reported as AlreadyExists rather than an error.
func (c *Client) CreateRepository(ctx context.Context, req models.RepoRequest) (models.CreateResult, error) {
	c.logger.Debug("Creating GitHub repository", "owner", req.Owner, "name", req.Name, "private", req.Private)

	repo := &github.Repository{
		Name:        github.Ptr(req.Name),
		Description: github.Ptr(req.Description),
		Private:     github.Ptr(req.Private),
		AutoInit:    github.Ptr(false),
	}

	created, _, err := c.client.Repositories.Create(ctx, req.Organization, repo)
	if err != nil {
		if isAlreadyExists(err) {
			c.logger.Warn("Repository already exists", "repo", req.Owner+"/"+req.Name)
			return models.CreateResult{
				Status: models.AlreadyExists,
				Repo: models.RepoRef{
					Owner:    req.Owner,
					Name:     req.Name,
					CloneURL: fmt.Sprintf("https://%s/%s/%s.git", c.gitHost, req.Owner, req.Name),
					HTMLURL:  fmt.Sprintf("https://%s/%s/%s", c.gitHost, req.Owner, req.Name),
				},
			}, nil
		}
		return models.CreateResult{Status: models.CreateFailed}, fmt.Errorf("failed to create repository %s: %w", req.Name, err)
	}

	result := models.CreateResult{
		Status: models.Created,
		Repo: models.RepoRef{
			Owner:    created.GetOwner().GetLogin(),
			Name:     created.GetName(),
			CloneURL: created.GetCloneURL(),
			HTMLURL:  created.GetHTMLURL(),
		},
	}
	if result.Repo.Owner == "" {
		result.Repo.Owner = req.Owner
	}
	if result.Repo.CloneURL == "" {
		result.Repo.CloneURL = fmt.Sprintf("https://%s/%s/%s.git", c.gitHost, result.Repo.Owner, result.Repo.Name)
	}

	c.logger.Info("Created GitHub repository", "repo", result.Repo.FullName())
	return result, nil
}

// PushURL returns the repository clone URL with the token embedded as credential
func (c *Client) PushURL(ref models.RepoRef) (string, error) {
	raw := ref.CloneURL
	if raw == "" {
		raw = fmt.Sprintf("https://%s/%s/%s.git", c.gitHost, ref.Owner, ref.Name)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid clone URL for %s: %w", ref.FullName(), err)
	}
	u.User = url.UserPassword("x-access-token", c.config.Token)
	return u.String(), nil
}

func isAlreadyExists(err error) bool {
	var ghErr *github.ErrorResponse
	if !errors.As(err, &ghErr) || ghErr.Response == nil {
		return false
	}

	switch ghErr.Response.StatusCode {
	case http.StatusConflict:
		return true
	case http.StatusUnprocessableEntity:
		// 422 is also used for invalid names, only a name clash counts
		if len(ghErr.Errors) == 0 {
			return strings.Contains(strings.ToLower(ghErr.Message), "already exists")
		}
		for _, e := range ghErr.Errors {
			if strings.Contains(strings.ToLower(e.Message), "already exists") {
				return true
			}
		}
	}
	return false
}
