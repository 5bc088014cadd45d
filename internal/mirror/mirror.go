// Package mirror copies every ref of a source repository into a destination repository
// through a scoped temporary workspace.
package mirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jlucaspains/manifest2gh/internal/models"
)

// WorkspacePrefix starts the name of every workspace directory
const WorkspacePrefix = "manifest2gh_"

// Stage names the mirror step that failed
type Stage string

const (
	StageWorkspace Stage = "workspace"
	StageClone     Stage = "clone"
	StagePush      Stage = "push"
)

// Executor runs the two mirror operations of a version-control tool
type Executor interface {
	// Clone fetches all refs of sourceURL into a new bare repository at dir
	Clone(ctx context.Context, sourceURL, dir string) error
	// Push sends all refs of the repository at dir to destinationURL
	Push(ctx context.Context, dir, destinationURL string) error
}

// TransferError reports a failed mirror step for one project
type TransferError struct {
	Stage       Stage
	Source      string
	Destination string
	Err         error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s failed (source %s, destination %s): %v", e.Stage, e.Source, e.Destination, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// CommandError carries the stderr of a failed external command
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	if stderr == "" {
		return fmt.Sprintf("%s: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", strings.Join(e.Args, " "), e.Err, stderr)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// GitExecutor shells out to git's mirror mode
type GitExecutor struct {
	binary string
	// secrets are removed from arguments and stderr before they reach an error
	secrets []string
}

func NewGitExecutor(binary string, secrets ...string) *GitExecutor {
	if binary == "" {
		binary = "git"
	}
	return &GitExecutor{binary: binary, secrets: secrets}
}

func (g *GitExecutor) Clone(ctx context.Context, sourceURL, dir string) error {
	return g.run(ctx, "", "clone", "--mirror", sourceURL, dir)
}

func (g *GitExecutor) Push(ctx context.Context, dir, destinationURL string) error {
	// Dir on the command keeps the process working directory untouched
	return g.run(ctx, dir, "push", "--mirror", destinationURL)
}

func (g *GitExecutor) run(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, g.binary, args...)
	cmd.Dir = dir
	// Never block on a credential prompt
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		redacted := make([]string, 0, len(args)+1)
		redacted = append(redacted, g.binary)
		for _, a := range args {
			redacted = append(redacted, Redact(a, g.secrets...))
		}
		return &CommandError{
			Args:   redacted,
			Stderr: Redact(stderr.String(), g.secrets...),
			Err:    err,
		}
	}
	return nil
}

// Transfer performs the clone-then-push mirror of one repository
type Transfer struct {
	executor Executor
	root     string
	secrets  []string
	logger   *slog.Logger
}

// NewTransfer creates a Transfer whose workspaces live under root
func NewTransfer(executor Executor, root string, logger *slog.Logger, secrets ...string) *Transfer {
	if root == "" {
		root = os.TempDir()
	}
	return &Transfer{
		executor: executor,
		root:     root,
		secrets:  secrets,
		logger:   logger,
	}
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// WorkspacePath returns the workspace directory for a destination repository.
// The same destination always maps to the same path so an interrupted run leaves at most one directory behind.
func (t *Transfer) WorkspacePath(dest models.RepoRef) string {
	name := unsafeNameChars.ReplaceAllString(dest.Name, "_")
	if dest.Owner != "" {
		name = unsafeNameChars.ReplaceAllString(dest.Owner, "_") + "_" + name
	}
	return filepath.Join(t.root, WorkspacePrefix+name)
}

// Run mirrors sourceURL into the destination repository at pushURL.
// The workspace is removed on every return path, including a panic in the executor.
func (t *Transfer) Run(ctx context.Context, sourceURL string, dest models.RepoRef, pushURL string) (err error) {
	workspace := t.WorkspacePath(dest)
	destination := dest.FullName()

	if err := os.RemoveAll(workspace); err != nil {
		return &TransferError{Stage: StageWorkspace, Source: sourceURL, Destination: destination,
			Err: fmt.Errorf("failed to remove stale workspace %s: %w", workspace, err)}
	}
	defer func() {
		if rmErr := os.RemoveAll(workspace); rmErr != nil {
			t.logger.Warn("Failed to remove workspace", "path", workspace, "error", rmErr)
			if err == nil {
				err = &TransferError{Stage: StageWorkspace, Source: sourceURL, Destination: destination, Err: rmErr}
			}
		}
	}()

	t.logger.Info("Cloning from source", "source", sourceURL, "workspace", workspace)
	if err := t.executor.Clone(ctx, sourceURL, workspace); err != nil {
		return &TransferError{Stage: StageClone, Source: sourceURL, Destination: destination, Err: t.redactErr(err)}
	}

	t.logger.Info("Pushing to destination", "destination", destination)
	if err := t.executor.Push(ctx, workspace, pushURL); err != nil {
		return &TransferError{Stage: StagePush, Source: sourceURL, Destination: destination, Err: t.redactErr(err)}
	}

	return nil
}

func (t *Transfer) redactErr(err error) error {
	msg := err.Error()
	redacted := Redact(msg, t.secrets...)
	if redacted == msg {
		return err
	}
	// Keep context cancellation detectable through the redacted error
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", redacted, context.Canceled)
	}
	return errors.New(redacted)
}

// Redact replaces each non-empty secret in s
func Redact(s string, secrets ...string) string {
	for _, secret := range secrets {
		if secret != "" {
			s = strings.ReplaceAll(s, secret, "***")
		}
	}
	return s
}
