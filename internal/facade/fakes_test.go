package facade_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"

	"github.com/codexmonitor/gitfacade/internal/git"
	gh "github.com/codexmonitor/gitfacade/internal/github"
	"github.com/codexmonitor/gitfacade/internal/models"
	"github.com/codexmonitor/gitfacade/internal/settings"
	"github.com/codexmonitor/gitfacade/internal/workspace"
)

// forbiddenRegistry fails the test when it is queried.
type forbiddenRegistry struct{}

func (forbiddenRegistry) Get(id string) (workspace.Entry, bool) {
	Fail("registry must not be queried, got " + id)
	return workspace.Entry{}, false
}

// forbiddenSettings fails the test when it is read.
type forbiddenSettings struct{}

func (forbiddenSettings) Get() settings.AppSettings {
	Fail("settings must not be read")
	return settings.AppSettings{}
}

type staticSettings struct {
	settings.AppSettings
}

func (s staticSettings) Get() settings.AppSettings {
	return s.AppSettings
}

type fakeExecutor struct {
	repo   *fakeRepo
	err    error
	opened []string
	mu     sync.Mutex
}

func (f *fakeExecutor) Open(_ context.Context, dir string) (git.Repository, error) {
	f.mu.Lock()
	f.opened = append(f.opened, dir)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.repo, nil
}

type fakeRepo struct {
	root string

	status    models.GitStatus
	logLimit  int
	diffOpts  git.DiffOptions
	remoteURL string
	hasRemote bool
	remoteArg string
	strategy  git.SyncStrategy
	deadline  bool
	err       error

	// block, when set, holds mutating calls until closed.
	block   chan struct{}
	running int32
	peak    int32
}

func (f *fakeRepo) Root() string { return f.root }

func (f *fakeRepo) Status(context.Context) (models.GitStatus, error) {
	return f.status, f.err
}

func (f *fakeRepo) Diffs(_ context.Context, opts git.DiffOptions) ([]models.GitFileDiff, error) {
	f.diffOpts = opts
	return []models.GitFileDiff{}, f.err
}

func (f *fakeRepo) Log(_ context.Context, limit int) (models.GitLogResponse, error) {
	f.logLimit = limit
	return models.GitLogResponse{}, f.err
}

func (f *fakeRepo) CommitDiff(_ context.Context, _ string, opts git.DiffOptions) ([]models.GitCommitDiff, error) {
	f.diffOpts = opts
	return nil, f.err
}

func (f *fakeRepo) RemoteURL(_ context.Context, preferred string) (string, bool, error) {
	f.remoteArg = preferred
	return f.remoteURL, f.hasRemote, f.err
}

func (f *fakeRepo) Branches(context.Context) (models.BranchList, error) {
	return models.BranchList{}, f.err
}

func (f *fakeRepo) CheckoutBranch(_ context.Context, _, remote string) error {
	f.remoteArg = remote
	return f.err
}

func (f *fakeRepo) CreateBranch(context.Context, string) error { return f.mutate() }
func (f *fakeRepo) StageFile(context.Context, string) error    { return f.mutate() }
func (f *fakeRepo) UnstageFile(context.Context, string) error  { return f.mutate() }
func (f *fakeRepo) RevertFile(context.Context, string) error   { return f.mutate() }
func (f *fakeRepo) StageAll(context.Context) error             { return f.mutate() }
func (f *fakeRepo) RevertAll(context.Context) error            { return f.mutate() }
func (f *fakeRepo) Commit(context.Context, string) error       { return f.mutate() }

func (f *fakeRepo) Fetch(ctx context.Context, remote string) error {
	return f.network(ctx, remote)
}

func (f *fakeRepo) Push(ctx context.Context, remote string) error {
	return f.network(ctx, remote)
}

func (f *fakeRepo) Pull(ctx context.Context, remote string) error {
	return f.network(ctx, remote)
}

func (f *fakeRepo) Sync(ctx context.Context, remote string, strategy git.SyncStrategy) error {
	f.strategy = strategy
	return f.network(ctx, remote)
}

func (f *fakeRepo) network(ctx context.Context, remote string) error {
	f.remoteArg = remote
	_, f.deadline = ctx.Deadline()
	return f.err
}

func (f *fakeRepo) mutate() error {
	n := atomic.AddInt32(&f.running, 1)
	defer atomic.AddInt32(&f.running, -1)
	for {
		peak := atomic.LoadInt32(&f.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&f.peak, peak, n) {
			break
		}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-time.After(5 * time.Second):
		}
	}
	return f.err
}

type fakeGHFactory struct {
	client *fakeGHClient
	err    error
	tokens []string
}

func (f *fakeGHFactory) New(_ context.Context, token string) (gh.Client, error) {
	f.tokens = append(f.tokens, token)
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}

type fakeGHClient struct {
	issues   []models.GitHubIssue
	prs      []models.GitHubPullRequest
	files    []models.GitHubPullRequestDiff
	comments []models.GitHubPullRequestComment
	err      error

	repo   gh.Repo
	max    int
	number int
}

func (f *fakeGHClient) ListIssues(_ context.Context, repo gh.Repo, max int) ([]models.GitHubIssue, error) {
	f.repo, f.max = repo, max
	return f.issues, f.err
}

func (f *fakeGHClient) ListPullRequests(_ context.Context, repo gh.Repo, max int) ([]models.GitHubPullRequest, error) {
	f.repo, f.max = repo, max
	return f.prs, f.err
}

func (f *fakeGHClient) PullRequestFiles(_ context.Context, repo gh.Repo, number int) ([]models.GitHubPullRequestDiff, error) {
	f.repo, f.number = repo, number
	return f.files, f.err
}

func (f *fakeGHClient) PullRequestComments(_ context.Context, repo gh.Repo, number int) ([]models.GitHubPullRequestComment, error) {
	f.repo, f.number = repo, number
	return f.comments, f.err
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes map[string][]error
	started  int
	finished int
}

func (r *fakeRecorder) OperationStarted(string) func() {
	r.mu.Lock()
	r.started++
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.finished++
		r.mu.Unlock()
	}
}

func (r *fakeRecorder) ObserveOperation(op string, err error, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = make(map[string][]error)
	}
	r.outcomes[op] = append(r.outcomes[op], err)
}
