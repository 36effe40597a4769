package facade_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/codexmonitor/gitfacade/internal/facade"
	"github.com/codexmonitor/gitfacade/internal/git"
	gh "github.com/codexmonitor/gitfacade/internal/github"
	"github.com/codexmonitor/gitfacade/internal/models"
	"github.com/codexmonitor/gitfacade/internal/settings"
	"github.com/codexmonitor/gitfacade/internal/vcserr"
	"github.com/codexmonitor/gitfacade/internal/workspace"
)

var supported = &facade.Capability{Supported: true}

var _ = Describe("Capability gate", func() {
	It("returns the fixed unsupported error from every operation without touching collaborators", func() {
		svc, err := facade.New(facade.Deps{
			Registry:   forbiddenRegistry{},
			Settings:   forbiddenSettings{},
			Capability: &facade.Capability{Supported: false, Reason: "test"},
		})
		Expect(err).NotTo(HaveOccurred())

		for _, op := range catalog() {
			err := op.call(context.Background(), svc, "w1")
			verr := expectKind(err, vcserr.PlatformUnsupported)
			Expect(err.Error()).To(Equal(facade.UnsupportedMessage), op.name)
			Expect(verr.Op).To(Equal(op.name))
			Expect(errors.Is(err, vcserr.ErrPlatformUnsupported)).To(BeTrue())
		}
	})

	It("does not require collaborators on unsupported platforms", func() {
		svc, err := facade.New(facade.Deps{Capability: &facade.Capability{}})
		Expect(err).NotTo(HaveOccurred())
		Expect(svc.StageAll(context.Background(), "w1")).To(MatchError(facade.UnsupportedMessage))
	})

	It("requires a registry and settings on supported platforms", func() {
		_, err := facade.New(facade.Deps{Capability: supported})
		Expect(err).To(HaveOccurred())
		_, err = facade.New(facade.Deps{Capability: supported, Registry: workspace.NewRegistry()})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Repository resolution", func() {
	var (
		ctx      context.Context
		registry *workspace.Registry
		executor *fakeExecutor
		svc      facade.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		registry = workspace.NewRegistry()
		executor = &fakeExecutor{repo: &fakeRepo{root: "/repo"}}
		var err error
		svc, err = facade.New(facade.Deps{
			Registry:   registry,
			Settings:   settings.NewStore(settings.AppSettings{}),
			Executor:   executor,
			Capability: supported,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("reports unknown workspaces for every operation without opening anything", func() {
		for _, op := range catalog() {
			verr := expectKind(op.call(ctx, svc, "missing"), vcserr.UnknownWorkspace)
			Expect(verr.Workspace).To(Equal("missing"), op.name)
			Expect(verr.Op).To(Equal(op.name))
		}
		Expect(executor.opened).To(BeEmpty())
	})

	It("opens the configured git root of the workspace", func() {
		dir := GinkgoT().TempDir()
		Expect(registry.Open(workspace.Entry{ID: "w1", Path: dir, Settings: workspace.Settings{GitRoot: "backend"}})).To(Succeed())

		_, err := svc.Status(ctx, "w1")
		Expect(err).NotTo(HaveOccurred())
		Expect(executor.opened).To(Equal([]string{filepath.Join(dir, "backend")}))
	})

	It("maps engine open failures to invalid repository", func() {
		Expect(registry.Open(workspace.Entry{ID: "w1", Path: GinkgoT().TempDir()})).To(Succeed())
		executor.err = errors.New("boom")

		verr := expectKind(svc.StageAll(ctx, "w1"), vcserr.InvalidRepository)
		Expect(verr.Op).To(Equal("stage_all"))
		Expect(verr.Workspace).To(Equal("w1"))
	})

	It("distinguishes a removed directory from an unknown workspace", func() {
		dir := filepath.Join(GinkgoT().TempDir(), "gone")
		Expect(os.MkdirAll(dir, 0o755)).To(Succeed())
		Expect(registry.Open(workspace.Entry{ID: "w1", Path: dir})).To(Succeed())
		Expect(os.RemoveAll(dir)).To(Succeed())

		real, err := facade.New(facade.Deps{
			Registry:   registry,
			Settings:   settings.NewStore(settings.AppSettings{}),
			Capability: supported,
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = real.Status(ctx, "w1")
		expectKind(err, vcserr.InvalidRepository)
		_, err = real.Status(ctx, "w2")
		expectKind(err, vcserr.UnknownWorkspace)
	})
})

var _ = Describe("Operation dispatch", func() {
	var (
		ctx      context.Context
		repo     *fakeRepo
		store    *settings.Store
		recorder *fakeRecorder
		svc      facade.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = &fakeRepo{root: "/repo"}
		store = settings.NewStore(settings.AppSettings{
			RemoteName:           "upstream",
			DefaultLogLimit:      7,
			MaxDiffBytes:         1234,
			DiffIgnoreWhitespace: true,
			SyncStrategy:         "merge",
			NetworkTimeout:       time.Minute,
		})
		registry := workspace.NewRegistry()
		Expect(registry.Open(workspace.Entry{ID: "w1", Path: GinkgoT().TempDir()})).To(Succeed())
		recorder = &fakeRecorder{}

		var err error
		svc, err = facade.New(facade.Deps{
			Registry:   registry,
			Settings:   store,
			Executor:   &fakeExecutor{repo: repo},
			Capability: supported,
			Metrics:    recorder,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("applies the default log limit when none is given", func() {
		_, err := svc.Log(ctx, "w1", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.logLimit).To(Equal(7))

		_, err = svc.Log(ctx, "w1", 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.logLimit).To(Equal(3))
	})

	It("passes diff settings to the engine", func() {
		_, err := svc.Diffs(ctx, "w1")
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.diffOpts).To(Equal(git.DiffOptions{IgnoreWhitespace: true, MaxBytes: 1234}))
	})

	It("uses the configured remote and sync strategy", func() {
		Expect(svc.Sync(ctx, "w1")).To(Succeed())
		Expect(repo.remoteArg).To(Equal("upstream"))
		Expect(repo.strategy).To(Equal(git.SyncMerge))

		Expect(store.Set(settings.AppSettings{})).To(Succeed())
		Expect(svc.Sync(ctx, "w1")).To(Succeed())
		Expect(repo.remoteArg).To(Equal("origin"))
		Expect(repo.strategy).To(Equal(git.SyncRebase))
	})

	It("bounds network operations with the configured timeout", func() {
		Expect(svc.Push(ctx, "w1")).To(Succeed())
		Expect(repo.deadline).To(BeTrue())
	})

	It("rejects blank commit messages before reaching the engine", func() {
		verr := expectKind(svc.Commit(ctx, "w1", "  \n"), vcserr.EmptyMessage)
		Expect(verr.Op).To(Equal("commit"))
		Expect(repo.peak).To(BeZero())
	})

	It("annotates engine errors with the operation and context", func() {
		repo.err = vcserr.Newf(vcserr.PathNotFound, "", "not tracked")

		verr := expectKind(svc.StageFile(ctx, "w1", "missing.txt"), vcserr.PathNotFound)
		Expect(verr.Op).To(Equal("stage_file"))
		Expect(verr.Workspace).To(Equal("w1"))
		Expect(verr.Path).To(Equal("missing.txt"))
	})

	It("keeps the failing step reported by the engine", func() {
		repo.err = vcserr.Newf(vcserr.MergeConflict, "sync.pull", "conflict in README.md")

		verr := expectKind(svc.Sync(ctx, "w1"), vcserr.MergeConflict)
		Expect(verr.Op).To(Equal("sync.pull"))
		Expect(verr.Workspace).To(Equal("w1"))
	})

	It("wraps unclassified engine errors as internal", func() {
		repo.err = errors.New("unexpected")

		verr := expectKind(svc.RevertAll(ctx, "w1"), vcserr.Internal)
		Expect(errors.Unwrap(verr)).To(MatchError("unexpected"))
	})

	It("records metrics for every outcome", func() {
		_, _ = svc.Status(ctx, "w1")
		_ = svc.Commit(ctx, "w1", "")

		Expect(recorder.outcomes["status"]).To(HaveLen(1))
		Expect(recorder.outcomes["status"][0]).NotTo(HaveOccurred())
		Expect(recorder.outcomes["commit"]).To(HaveLen(1))
		Expect(vcserr.KindOf(recorder.outcomes["commit"][0])).To(Equal(vcserr.EmptyMessage))
		Expect(recorder.started).To(Equal(2))
		Expect(recorder.finished).To(Equal(2))
	})
})

var _ = Describe("Mutation locking", func() {
	newService := func(repo *fakeRepo, opts ...facade.Option) facade.Service {
		registry := workspace.NewRegistry()
		dir := GinkgoT().TempDir()
		Expect(registry.Open(workspace.Entry{ID: "a", Path: dir})).To(Succeed())
		Expect(registry.Open(workspace.Entry{ID: "b", Path: dir})).To(Succeed())
		svc, err := facade.New(facade.Deps{
			Registry:   registry,
			Settings:   settings.NewStore(settings.AppSettings{}),
			Executor:   &fakeExecutor{repo: repo},
			Capability: supported,
		}, opts...)
		Expect(err).NotTo(HaveOccurred())
		return svc
	}

	runConcurrently := func(svc facade.Service, repo *fakeRepo) {
		var wg sync.WaitGroup
		for _, id := range []string{"a", "b"} {
			wg.Add(1)
			go func(id string) {
				defer GinkgoRecover()
				defer wg.Done()
				Expect(svc.StageAll(context.Background(), id)).To(Succeed())
			}(id)
		}
		time.Sleep(100 * time.Millisecond)
		close(repo.block)
		wg.Wait()
	}

	It("serializes mutating operations on the same repository root", func() {
		repo := &fakeRepo{root: "/repo", block: make(chan struct{})}
		runConcurrently(newService(repo), repo)
		Expect(repo.peak).To(Equal(int32(1)))
	})

	It("can be disabled", func() {
		repo := &fakeRepo{root: "/repo", block: make(chan struct{})}
		runConcurrently(newService(repo, facade.WithMutationLocking(false)), repo)
		Expect(repo.peak).To(Equal(int32(2)))
	})

	It("gives up waiting when the context ends", func() {
		repo := &fakeRepo{root: "/repo", block: make(chan struct{})}
		svc := newService(repo)

		done := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			defer close(done)
			Expect(svc.StageAll(context.Background(), "a")).To(Succeed())
		}()
		Eventually(func() int32 { return atomic.LoadInt32(&repo.peak) }).Should(Equal(int32(1)))

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err := svc.Commit(ctx, "b", "msg")
		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue(), "got %v", err)
		expectKind(err, vcserr.Internal)

		close(repo.block)
		<-done
	})

	It("reports a network operation stuck behind the lock as a network error", func() {
		repo := &fakeRepo{root: "/repo", block: make(chan struct{})}
		svc := newService(repo)

		done := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			defer close(done)
			Expect(svc.StageAll(context.Background(), "a")).To(Succeed())
		}()
		Eventually(func() int32 { return atomic.LoadInt32(&repo.peak) }).Should(Equal(int32(1)))

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		verr := expectKind(svc.Push(ctx, "b"), vcserr.NetworkError)
		Expect(verr.Op).To(Equal("push"))
		Expect(verr.StateRestored).To(BeTrue())
		Expect(errors.Is(verr, context.DeadlineExceeded)).To(BeTrue())

		close(repo.block)
		<-done
	})
})

var _ = Describe("Code hosting", func() {
	var (
		ctx     context.Context
		repo    *fakeRepo
		store   *settings.Store
		client  *fakeGHClient
		factory *fakeGHFactory
		svc     facade.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = &fakeRepo{root: "/repo", remoteURL: "git@github.com:acme/widgets.git", hasRemote: true}
		store = settings.NewStore(settings.AppSettings{GitHubToken: "secret", MaxHostingItems: 25})
		client = &fakeGHClient{}
		factory = &fakeGHFactory{client: client}
		registry := workspace.NewRegistry()
		Expect(registry.Open(workspace.Entry{ID: "w1", Path: GinkgoT().TempDir()})).To(Succeed())

		var err error
		svc, err = facade.New(facade.Deps{
			Registry:   registry,
			Settings:   store,
			Executor:   &fakeExecutor{repo: repo},
			GitHub:     factory,
			Capability: supported,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("lists issues for the repository behind the remote", func() {
		client.issues = []models.GitHubIssue{{Number: 1}, {Number: 2}}

		resp, err := svc.Issues(ctx, "w1")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Total).To(Equal(2))
		Expect(resp.Issues).To(HaveLen(2))
		Expect(client.repo).To(Equal(gh.Repo{Owner: "acme", Name: "widgets"}))
		Expect(client.max).To(Equal(25))
		Expect(factory.tokens).To(Equal([]string{"secret"}))
	})

	It("lists pull requests", func() {
		client.prs = []models.GitHubPullRequest{{Number: 9, HeadRef: "feature"}}

		resp, err := svc.PullRequests(ctx, "w1")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Total).To(Equal(1))
		Expect(resp.PullRequests[0].HeadRef).To(Equal("feature"))
	})

	It("returns pull request files and comments", func() {
		client.files = []models.GitHubPullRequestDiff{{Path: "main.go"}}
		client.comments = []models.GitHubPullRequestComment{{ID: 3}}

		files, err := svc.PullRequestDiff(ctx, "w1", 12)
		Expect(err).NotTo(HaveOccurred())
		Expect(files).To(HaveLen(1))
		Expect(client.number).To(Equal(12))

		comments, err := svc.PullRequestComments(ctx, "w1", 13)
		Expect(err).NotTo(HaveOccurred())
		Expect(comments).To(HaveLen(1))
		Expect(client.number).To(Equal(13))
	})

	It("rejects non-positive pull request numbers", func() {
		_, err := svc.PullRequestDiff(ctx, "w1", 0)
		verr := expectKind(err, vcserr.NotFound)
		Expect(verr.Number).To(BeZero())

		_, err = svc.PullRequestComments(ctx, "w1", -4)
		verr = expectKind(err, vcserr.NotFound)
		Expect(verr.Number).To(Equal(-4))
		Expect(factory.tokens).To(BeEmpty())
	})

	It("requires a token", func() {
		Expect(store.Set(settings.AppSettings{})).To(Succeed())

		_, err := svc.Issues(ctx, "w1")
		expectKind(err, vcserr.MissingCredentials)
		Expect(factory.tokens).To(BeEmpty())
	})

	It("requires a remote", func() {
		repo.hasRemote = false

		_, err := svc.PullRequests(ctx, "w1")
		expectKind(err, vcserr.NoRemoteConfigured)
	})

	It("rejects remotes that are not hosted on GitHub", func() {
		repo.remoteURL = "https://gitlab.com/acme/widgets.git"

		_, err := svc.Issues(ctx, "w1")
		expectKind(err, vcserr.UnsupportedRemote)
	})

	It("accepts the configured enterprise host", func() {
		repo.remoteURL = "https://ghe.example.com/team/svc.git"
		Expect(store.Set(settings.AppSettings{
			GitHubToken:     "secret",
			GitHubBaseURL:   "https://ghe.example.com/api/v3/",
			GitHubUploadURL: "https://ghe.example.com/api/uploads/",
		})).To(Succeed())

		_, err := svc.Issues(ctx, "w1")
		Expect(err).NotTo(HaveOccurred())
		Expect(client.repo).To(Equal(gh.Repo{Owner: "team", Name: "svc"}))
	})

	It("surfaces provider failures with their kind and the pull request number", func() {
		client.err = vcserr.Newf(vcserr.RateLimited, "", "slow down")

		_, err := svc.PullRequestComments(ctx, "w1", 5)
		verr := expectKind(err, vcserr.RateLimited)
		Expect(verr.Number).To(Equal(5))
		Expect(verr.Op).To(Equal("pull_request_comments"))
	})
})

var _ = Describe("GitRoots", func() {
	var (
		ctx      context.Context
		registry *workspace.Registry
		svc      facade.Service
		base     string
	)

	BeforeEach(func() {
		ctx = context.Background()
		base = GinkgoT().TempDir()
		registry = workspace.NewRegistry()
		Expect(registry.Open(workspace.Entry{ID: "w1", Path: base})).To(Succeed())

		for _, dir := range []string{"api", "libs/core", "libs/deep/er/still", "node_modules/pkg", ".cache/repo"} {
			Expect(os.MkdirAll(filepath.Join(base, dir, ".git"), 0o755)).To(Succeed())
		}
		writeFile(filepath.Join(base, "README.md"), "workspace\n")

		var err error
		svc, err = facade.New(facade.Deps{
			Registry:   registry,
			Settings:   forbiddenSettings{},
			Executor:   &fakeExecutor{err: errors.New("must not open")},
			Capability: supported,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("lists repositories up to the default depth", func() {
		roots, err := svc.GitRoots(ctx, "w1", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(roots).To(Equal([]string{"api", "libs/core"}))
	})

	It("honors deeper searches and includes the workspace itself", func() {
		Expect(os.MkdirAll(filepath.Join(base, ".git"), 0o755)).To(Succeed())

		roots, err := svc.GitRoots(ctx, "w1", 4)
		Expect(err).NotTo(HaveOccurred())
		Expect(roots).To(Equal([]string{".", "api", "libs/core", "libs/deep/er/still"}))
	})

	It("limits the search to one level", func() {
		roots, err := svc.GitRoots(ctx, "w1", 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(roots).To(Equal([]string{"api"}))
	})

	It("fails when the workspace directory is gone", func() {
		Expect(os.RemoveAll(base)).To(Succeed())

		_, err := svc.GitRoots(ctx, "w1", 0)
		expectKind(err, vcserr.InvalidRepository)
	})
})

var _ = Describe("Against a real repository", func() {
	var (
		ctx context.Context
		dir string
		svc facade.Service
	)

	BeforeEach(func() {
		if _, err := exec.LookPath("git"); err != nil {
			Skip("git is not installed")
		}
		ctx = context.Background()
		dir = filepath.Join(GinkgoT().TempDir(), "repo")
		initRepo(dir)

		registry := workspace.NewRegistry()
		Expect(registry.Open(workspace.Entry{ID: "w1", Path: dir})).To(Succeed())
		var err error
		svc, err = facade.New(facade.Deps{
			Registry:   registry,
			Settings:   settings.NewStore(settings.AppSettings{}),
			Capability: supported,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("walks a fresh repository through the commit checks", func() {
		status, err := svc.Status(ctx, "w1")
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Clean).To(BeTrue())

		expectKind(svc.Commit(ctx, "w1", ""), vcserr.EmptyMessage)
		Expect(svc.StageAll(ctx, "w1")).To(Succeed())
		expectKind(svc.Commit(ctx, "w1", "msg"), vcserr.NothingToCommit)
	})

	It("commits staged work and reports it in the log", func() {
		writeFile(filepath.Join(dir, "README.md"), "hello\n")
		Expect(svc.StageAll(ctx, "w1")).To(Succeed())
		Expect(svc.Commit(ctx, "w1", "initial commit")).To(Succeed())

		log, err := svc.Log(ctx, "w1", 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(log.Entries).To(HaveLen(1))
		Expect(log.Entries[0].Summary).To(Equal("initial commit"))

		status, err := svc.Status(ctx, "w1")
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Clean).To(BeTrue())
	})

	It("refuses to create a branch twice and leaves the branch list alone", func() {
		writeFile(filepath.Join(dir, "README.md"), "hello\n")
		gitCmd(dir, "add", "README.md")
		gitCmd(dir, "commit", "-q", "-m", "initial")

		Expect(svc.CreateBranch(ctx, "w1", "topic")).To(Succeed())
		before, err := svc.Branches(ctx, "w1")
		Expect(err).NotTo(HaveOccurred())

		verr := expectKind(svc.CreateBranch(ctx, "w1", "topic"), vcserr.BranchExists)
		Expect(verr.Branch).To(Equal("topic"))

		after, err := svc.Branches(ctx, "w1")
		Expect(err).NotTo(HaveOccurred())
		Expect(after).To(Equal(before))
	})

	It("caps and repeats log results", func() {
		for i := 0; i < 7; i++ {
			writeFile(filepath.Join(dir, "counter.txt"), strings.Repeat("x", i+1))
			gitCmd(dir, "add", "counter.txt")
			gitCmd(dir, "commit", "-q", "-m", "change")
		}

		first, err := svc.Log(ctx, "w1", 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(len(first.Entries)).To(BeNumerically("<=", 5))

		second, err := svc.Log(ctx, "w1", 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(Equal(first))
	})

	It("reports a plain directory as an invalid repository", func() {
		plain := GinkgoT().TempDir()
		registry := workspace.NewRegistry()
		Expect(registry.Open(workspace.Entry{ID: "plain", Path: plain})).To(Succeed())
		svc, err := facade.New(facade.Deps{
			Registry:   registry,
			Settings:   settings.NewStore(settings.AppSettings{}),
			Capability: supported,
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = svc.Status(ctx, "plain")
		expectKind(err, vcserr.InvalidRepository)
	})
})
