// Package facade exposes the workspace-scoped catalog of git and GitHub operations.
//
// A Service is built once at startup. On platforms without local git support every
// operation fails with the same PlatformUnsupported error and never consults the
// registry or the settings store.
package facade

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/codexmonitor/gitfacade/internal/git"
	gh "github.com/codexmonitor/gitfacade/internal/github"
	"github.com/codexmonitor/gitfacade/internal/models"
	"github.com/codexmonitor/gitfacade/internal/settings"
	"github.com/codexmonitor/gitfacade/internal/workspace"
)

// UnsupportedMessage is returned verbatim by every operation when the platform cannot run git.
const UnsupportedMessage = "Git operations are not available on this platform. Use remote backend mode."

// Registry is the read side of the host's workspace registry.
type Registry interface {
	Get(id string) (workspace.Entry, bool)
}

// SettingsStore is the read side of the host's settings.
type SettingsStore interface {
	Get() settings.AppSettings
}

// Recorder receives per-operation instrumentation. *metrics.Metrics implements it.
type Recorder interface {
	OperationStarted(op string) func()
	ObserveOperation(op string, err error, d time.Duration)
}

// Service is the public operation catalog. Every method takes the workspace id first and
// returns either a result or a *vcserr.Error.
type Service interface {
	Status(ctx context.Context, workspaceID string) (models.GitStatus, error)
	Diffs(ctx context.Context, workspaceID string) ([]models.GitFileDiff, error)
	Log(ctx context.Context, workspaceID string, limit int) (models.GitLogResponse, error)
	CommitDiff(ctx context.Context, workspaceID, sha string) ([]models.GitCommitDiff, error)
	RemoteURL(ctx context.Context, workspaceID string) (string, bool, error)
	Branches(ctx context.Context, workspaceID string) (models.BranchList, error)
	CheckoutBranch(ctx context.Context, workspaceID, name string) error
	CreateBranch(ctx context.Context, workspaceID, name string) error
	StageFile(ctx context.Context, workspaceID, path string) error
	UnstageFile(ctx context.Context, workspaceID, path string) error
	RevertFile(ctx context.Context, workspaceID, path string) error
	StageAll(ctx context.Context, workspaceID string) error
	RevertAll(ctx context.Context, workspaceID string) error
	Commit(ctx context.Context, workspaceID, message string) error

	Push(ctx context.Context, workspaceID string) error
	Pull(ctx context.Context, workspaceID string) error
	Fetch(ctx context.Context, workspaceID string) error
	Sync(ctx context.Context, workspaceID string) error

	Issues(ctx context.Context, workspaceID string) (models.GitHubIssuesResponse, error)
	PullRequests(ctx context.Context, workspaceID string) (models.GitHubPullRequestsResponse, error)
	PullRequestDiff(ctx context.Context, workspaceID string, number int) ([]models.GitHubPullRequestDiff, error)
	PullRequestComments(ctx context.Context, workspaceID string, number int) ([]models.GitHubPullRequestComment, error)

	// GitRoots lists repositories below the workspace directory, up to depth levels deep.
	GitRoots(ctx context.Context, workspaceID string, depth int) ([]string, error)
}

// Deps carries the collaborators of a Service.
type Deps struct {
	Registry Registry
	Settings SettingsStore

	// Executor defaults to git.NewShellExecutor().
	Executor git.Executor
	// GitHub defaults to a REST factory built from the current settings on each call.
	GitHub gh.Factory

	// Capability overrides platform detection.
	Capability *Capability

	Logger  *slog.Logger
	Metrics Recorder
}

// Option tweaks a supported Service.
type Option func(*gated)

// WithMutationLocking toggles serialization of mutating operations per repository root.
// It is enabled by default.
func WithMutationLocking(enabled bool) Option {
	return func(s *gated) {
		s.lockMutations = enabled
	}
}

// New returns the Service variant matching the platform capability.
func New(deps Deps, opts ...Option) (Service, error) {
	capability := DetectCapability()
	if deps.Capability != nil {
		capability = *deps.Capability
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if !capability.Supported {
		logger.Info("git operations disabled", "reason", capability.Reason)
		return unsupported{}, nil
	}

	if deps.Registry == nil {
		return nil, fmt.Errorf("workspace registry is required")
	}
	if deps.Settings == nil {
		return nil, fmt.Errorf("settings store is required")
	}

	executor := deps.Executor
	if executor == nil {
		executor = git.NewShellExecutor()
	}

	svc := &gated{
		registry:      deps.Registry,
		settings:      deps.Settings,
		executor:      executor,
		github:        deps.GitHub,
		log:           logger,
		metrics:       deps.Metrics,
		lockMutations: true,
		locks:         newRootLocks(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}
