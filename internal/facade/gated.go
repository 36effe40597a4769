package facade

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codexmonitor/gitfacade/internal/git"
	gh "github.com/codexmonitor/gitfacade/internal/github"
	"github.com/codexmonitor/gitfacade/internal/models"
	"github.com/codexmonitor/gitfacade/internal/settings"
	"github.com/codexmonitor/gitfacade/internal/vcserr"
)

const (
	opStatus              = "status"
	opDiffs               = "diffs"
	opLog                 = "log"
	opCommitDiff          = "commit_diff"
	opRemoteURL           = "remote_url"
	opBranches            = "branches"
	opCheckoutBranch      = "checkout_branch"
	opCreateBranch        = "create_branch"
	opStageFile           = "stage_file"
	opUnstageFile         = "unstage_file"
	opRevertFile          = "revert_file"
	opStageAll            = "stage_all"
	opRevertAll           = "revert_all"
	opCommit              = "commit"
	opPush                = "push"
	opPull                = "pull"
	opFetch               = "fetch"
	opSync                = "sync"
	opIssues              = "issues"
	opPullRequests        = "pull_requests"
	opPullRequestDiff     = "pull_request_diff"
	opPullRequestComments = "pull_request_comments"
	opGitRoots            = "git_roots"
)

// gated is the Service used on platforms that can run git.
type gated struct {
	registry Registry
	settings SettingsStore
	executor git.Executor
	github   gh.Factory
	log      *slog.Logger
	metrics  Recorder

	lockMutations bool
	locks         *rootLocks
}

// opKind describes how an operation interacts with the repository.
type opKind int

const (
	readOp opKind = iota
	writeOp
	networkWriteOp
	networkReadOp
)

func (k opKind) mutating() bool { return k == writeOp || k == networkWriteOp }
func (k opKind) network() bool  { return k == networkWriteOp || k == networkReadOp }

// errContext is copied onto failures that do not already carry it.
type errContext struct {
	path   string
	sha    string
	branch string
	number int
}

// resolve turns a workspace id into an opened repository. It is the only way
// operations reach the engine.
func (s *gated) resolve(ctx context.Context, workspaceID string) (git.Repository, error) {
	entry, ok := s.registry.Get(workspaceID)
	if !ok {
		return nil, vcserr.Newf(vcserr.UnknownWorkspace, "", "no open workspace with this id")
	}

	repo, err := s.executor.Open(ctx, entry.RepoPath())
	if err != nil {
		var verr *vcserr.Error
		if errors.As(err, &verr) && verr.Kind == vcserr.InvalidRepository {
			return nil, err
		}
		return nil, &vcserr.Error{Kind: vcserr.InvalidRepository, Path: entry.RepoPath(), Err: err, StateRestored: true}
	}
	return repo, nil
}

// call runs fn against the resolved repository of workspaceID with settings, locking,
// timeouts, logging and metrics applied.
func call[T any](ctx context.Context, s *gated, op, workspaceID string, kind opKind, ec errContext,
	fn func(ctx context.Context, repo git.Repository, cfg settings.AppSettings) (T, error)) (T, error) {
	var zero T
	opID := uuid.NewString()
	start := time.Now()
	if s.metrics != nil {
		defer s.metrics.OperationStarted(op)()
	}

	out, err := func() (T, error) {
		repo, err := s.resolve(ctx, workspaceID)
		if err != nil {
			return zero, err
		}
		// copy out before any long-running work
		cfg := s.settings.Get().WithDefaults()

		if kind.mutating() && s.lockMutations {
			release, err := s.locks.acquire(ctx, repo.Root())
			if err != nil {
				return zero, lockError(err, kind.network())
			}
			defer release()
		}

		if kind.network() {
			var cancel context.CancelFunc
			ctx, cancel = withNetworkTimeout(ctx, cfg.NetworkTimeout)
			defer cancel()
		}
		return fn(ctx, repo, cfg)
	}()

	err = annotate(err, op, workspaceID, ec)
	s.observe(op, opID, workspaceID, time.Since(start), err)
	if err != nil {
		return zero, err
	}
	return out, nil
}

// run is call for operations without a result.
func run(ctx context.Context, s *gated, op, workspaceID string, kind opKind, ec errContext,
	fn func(ctx context.Context, repo git.Repository, cfg settings.AppSettings) error) error {
	_, err := call(ctx, s, op, workspaceID, kind, ec, func(ctx context.Context, repo git.Repository, cfg settings.AppSettings) (struct{}, error) {
		return struct{}{}, fn(ctx, repo, cfg)
	})
	return err
}

// lockError reports a context that ended while waiting for the repository lock the
// same way the git engine reports an interrupted command.
func lockError(err error, network bool) *vcserr.Error {
	out := &vcserr.Error{Kind: vcserr.Internal, StateRestored: true, Err: err}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		out.Detail = "timed out waiting for the repository lock"
	case errors.Is(err, context.Canceled):
		out.Detail = "canceled while waiting for the repository lock"
	}
	if network && out.Detail != "" {
		out.Kind = vcserr.NetworkError
	}
	return out
}

func withNetworkTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// annotate converts err to a *vcserr.Error carrying the operation and workspace. The
// engine's own Op (e.g. "sync.push") is kept since it names the failing step.
func annotate(err error, op, workspaceID string, ec errContext) error {
	if err == nil {
		return nil
	}
	var src *vcserr.Error
	if !errors.As(err, &src) {
		src = vcserr.New(vcserr.Internal, "", err)
	}
	out := *src
	if out.Op == "" {
		out.Op = op
	}
	if out.Workspace == "" {
		out.Workspace = workspaceID
	}
	if out.Path == "" {
		out.Path = ec.path
	}
	if out.SHA == "" {
		out.SHA = ec.sha
	}
	if out.Branch == "" {
		out.Branch = ec.branch
	}
	if out.Number == 0 {
		out.Number = ec.number
	}
	return &out
}

func (s *gated) observe(op, opID, workspaceID string, d time.Duration, err error) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(op, err, d)
	}
	if err != nil {
		s.log.Warn("git operation failed", "op", op, "op_id", opID, "workspace", workspaceID,
			"kind", vcserr.KindOf(err).String(), "duration", d, "error", err)
		return
	}
	s.log.Debug("git operation finished", "op", op, "op_id", opID, "workspace", workspaceID, "duration", d)
}

func diffOptions(cfg settings.AppSettings) git.DiffOptions {
	return git.DiffOptions{IgnoreWhitespace: cfg.DiffIgnoreWhitespace, MaxBytes: cfg.MaxDiffBytes}
}

func (s *gated) Status(ctx context.Context, workspaceID string) (models.GitStatus, error) {
	return call(ctx, s, opStatus, workspaceID, readOp, errContext{}, func(ctx context.Context, repo git.Repository, _ settings.AppSettings) (models.GitStatus, error) {
		return repo.Status(ctx)
	})
}

func (s *gated) Diffs(ctx context.Context, workspaceID string) ([]models.GitFileDiff, error) {
	return call(ctx, s, opDiffs, workspaceID, readOp, errContext{}, func(ctx context.Context, repo git.Repository, cfg settings.AppSettings) ([]models.GitFileDiff, error) {
		return repo.Diffs(ctx, diffOptions(cfg))
	})
}

func (s *gated) Log(ctx context.Context, workspaceID string, limit int) (models.GitLogResponse, error) {
	return call(ctx, s, opLog, workspaceID, readOp, errContext{}, func(ctx context.Context, repo git.Repository, cfg settings.AppSettings) (models.GitLogResponse, error) {
		if limit <= 0 {
			limit = cfg.DefaultLogLimit
		}
		return repo.Log(ctx, limit)
	})
}

func (s *gated) CommitDiff(ctx context.Context, workspaceID, sha string) ([]models.GitCommitDiff, error) {
	return call(ctx, s, opCommitDiff, workspaceID, readOp, errContext{sha: sha}, func(ctx context.Context, repo git.Repository, cfg settings.AppSettings) ([]models.GitCommitDiff, error) {
		return repo.CommitDiff(ctx, strings.TrimSpace(sha), diffOptions(cfg))
	})
}

func (s *gated) RemoteURL(ctx context.Context, workspaceID string) (string, bool, error) {
	type remote struct {
		url string
		ok  bool
	}
	out, err := call(ctx, s, opRemoteURL, workspaceID, readOp, errContext{}, func(ctx context.Context, repo git.Repository, cfg settings.AppSettings) (remote, error) {
		url, ok, err := repo.RemoteURL(ctx, cfg.RemoteName)
		return remote{url: url, ok: ok}, err
	})
	return out.url, out.ok, err
}

func (s *gated) Branches(ctx context.Context, workspaceID string) (models.BranchList, error) {
	return call(ctx, s, opBranches, workspaceID, readOp, errContext{}, func(ctx context.Context, repo git.Repository, _ settings.AppSettings) (models.BranchList, error) {
		return repo.Branches(ctx)
	})
}

func (s *gated) CheckoutBranch(ctx context.Context, workspaceID, name string) error {
	return run(ctx, s, opCheckoutBranch, workspaceID, writeOp, errContext{branch: name}, func(ctx context.Context, repo git.Repository, cfg settings.AppSettings) error {
		return repo.CheckoutBranch(ctx, name, cfg.RemoteName)
	})
}

func (s *gated) CreateBranch(ctx context.Context, workspaceID, name string) error {
	return run(ctx, s, opCreateBranch, workspaceID, writeOp, errContext{branch: name}, func(ctx context.Context, repo git.Repository, _ settings.AppSettings) error {
		return repo.CreateBranch(ctx, name)
	})
}

func (s *gated) StageFile(ctx context.Context, workspaceID, path string) error {
	return run(ctx, s, opStageFile, workspaceID, writeOp, errContext{path: path}, func(ctx context.Context, repo git.Repository, _ settings.AppSettings) error {
		return repo.StageFile(ctx, path)
	})
}

func (s *gated) UnstageFile(ctx context.Context, workspaceID, path string) error {
	return run(ctx, s, opUnstageFile, workspaceID, writeOp, errContext{path: path}, func(ctx context.Context, repo git.Repository, _ settings.AppSettings) error {
		return repo.UnstageFile(ctx, path)
	})
}

func (s *gated) RevertFile(ctx context.Context, workspaceID, path string) error {
	return run(ctx, s, opRevertFile, workspaceID, writeOp, errContext{path: path}, func(ctx context.Context, repo git.Repository, _ settings.AppSettings) error {
		return repo.RevertFile(ctx, path)
	})
}

func (s *gated) StageAll(ctx context.Context, workspaceID string) error {
	return run(ctx, s, opStageAll, workspaceID, writeOp, errContext{}, func(ctx context.Context, repo git.Repository, _ settings.AppSettings) error {
		return repo.StageAll(ctx)
	})
}

func (s *gated) RevertAll(ctx context.Context, workspaceID string) error {
	return run(ctx, s, opRevertAll, workspaceID, writeOp, errContext{}, func(ctx context.Context, repo git.Repository, _ settings.AppSettings) error {
		return repo.RevertAll(ctx)
	})
}

func (s *gated) Commit(ctx context.Context, workspaceID, message string) error {
	return run(ctx, s, opCommit, workspaceID, writeOp, errContext{}, func(ctx context.Context, repo git.Repository, _ settings.AppSettings) error {
		if strings.TrimSpace(message) == "" {
			return vcserr.Newf(vcserr.EmptyMessage, "", "commit message is blank")
		}
		return repo.Commit(ctx, message)
	})
}

func (s *gated) Push(ctx context.Context, workspaceID string) error {
	return run(ctx, s, opPush, workspaceID, networkWriteOp, errContext{}, func(ctx context.Context, repo git.Repository, cfg settings.AppSettings) error {
		return repo.Push(ctx, cfg.RemoteName)
	})
}

func (s *gated) Pull(ctx context.Context, workspaceID string) error {
	return run(ctx, s, opPull, workspaceID, networkWriteOp, errContext{}, func(ctx context.Context, repo git.Repository, cfg settings.AppSettings) error {
		return repo.Pull(ctx, cfg.RemoteName)
	})
}

func (s *gated) Fetch(ctx context.Context, workspaceID string) error {
	return run(ctx, s, opFetch, workspaceID, networkWriteOp, errContext{}, func(ctx context.Context, repo git.Repository, cfg settings.AppSettings) error {
		return repo.Fetch(ctx, cfg.RemoteName)
	})
}

func (s *gated) Sync(ctx context.Context, workspaceID string) error {
	return run(ctx, s, opSync, workspaceID, networkWriteOp, errContext{}, func(ctx context.Context, repo git.Repository, cfg settings.AppSettings) error {
		strategy := git.SyncRebase
		if cfg.SyncStrategy == string(git.SyncMerge) {
			strategy = git.SyncMerge
		}
		return repo.Sync(ctx, cfg.RemoteName, strategy)
	})
}
