package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"golang.org/x/sync/errgroup"

	"github.com/codexmonitor/gitfacade/internal/models"
	"github.com/codexmonitor/gitfacade/internal/vcserr"
)

// maxUntrackedRead bounds how much of an untracked file is read for line counts and
// patches.
const maxUntrackedRead = 1 << 20

// abortTimeout bounds the cleanup that runs after a cancelled or conflicting pull.
const abortTimeout = 30 * time.Second

type repository struct {
	executor *ShellExecutor
	root     string
	repo     *gogit.Repository
}

func (r *repository) Root() string {
	return r.root
}

func (r *repository) captureGit(ctx context.Context, args ...string) (string, error) {
	cmd := append([]string{"-C", r.root, "--literal-pathspecs"}, args...)
	return r.executor.captureGitOutput(ctx, cmd...)
}

func (r *repository) exec(ctx context.Context, args ...string) error {
	_, err := r.captureGit(ctx, args...)
	return err
}

func (r *repository) hasHead() bool {
	head, err := r.headCommit()
	return err == nil && head != nil
}

func (r *repository) headSHA() string {
	ref, err := r.repo.Head()
	if err != nil {
		return ""
	}
	return ref.Hash().String()
}

func (r *repository) refExists(name plumbing.ReferenceName) bool {
	_, err := r.repo.Reference(name, false)
	return err == nil
}

func (r *repository) Status(ctx context.Context) (models.GitStatus, error) {
	var raw, stagedRaw, unstagedRaw string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := r.captureGit(gctx, "-c", "core.quotepath=off", "status", "--porcelain=v2", "-z", "--branch", "--untracked-files=all")
		raw = out
		return err
	})
	g.Go(func() error {
		out, err := r.captureGit(gctx, "diff", "--cached", "--numstat", "-z", "-M")
		stagedRaw = out
		return err
	})
	g.Go(func() error {
		out, err := r.captureGit(gctx, "diff", "--numstat", "-z")
		unstagedRaw = out
		return err
	})
	if err := g.Wait(); err != nil {
		return models.GitStatus{}, classify(err, false)
	}

	header, files, err := parsePorcelainV2(raw)
	if err != nil {
		return models.GitStatus{}, classify(err, false)
	}
	return buildStatus(header, files, parseNumstat(stagedRaw), parseNumstat(unstagedRaw), r.untrackedLines), nil
}

func (r *repository) untrackedLines(path string) int {
	content, err := r.readWorktreeFile(path)
	if err != nil {
		return 0
	}
	return countLines(content)
}

func (r *repository) readWorktreeFile(path string) ([]byte, error) {
	f, err := os.Open(filepath.Join(r.root, filepath.FromSlash(path)))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	return io.ReadAll(io.LimitReader(f, maxUntrackedRead))
}

func (r *repository) Diffs(ctx context.Context, opts DiffOptions) ([]models.GitFileDiff, error) {
	base := "HEAD"
	if !r.hasHead() {
		base = emptyTreeSHA
	}
	args := []string{"-c", "core.quotepath=off", "diff", "--no-color", "--no-ext-diff", "-M"}
	if opts.IgnoreWhitespace {
		args = append(args, "-w")
	}
	args = append(args, base, "--")

	var combined, untracked string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := r.captureGit(gctx, args...)
		combined = out
		return err
	})
	g.Go(func() error {
		out, err := r.captureGit(gctx, "ls-files", "--others", "--exclude-standard", "-z")
		untracked = out
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, classify(err, false)
	}

	diffs := make([]models.GitFileDiff, 0)
	for _, fd := range splitCombinedDiff(combined) {
		if opts.IgnoreWhitespace && fd.Status == models.FileModified && !fd.Binary && !strings.Contains(fd.Diff, "\n@@") {
			continue
		}
		diffs = append(diffs, fd)
	}
	for _, path := range strings.Split(untracked, "\x00") {
		if path == "" {
			continue
		}
		content, err := r.readWorktreeFile(path)
		if err != nil {
			continue
		}
		fd, err := untrackedDiff(path, content)
		if err != nil {
			return nil, classify(err, false)
		}
		diffs = append(diffs, fd)
	}

	for i := range diffs {
		diffs[i].Diff, diffs[i].Truncated = truncatePatch(diffs[i].Diff, opts.MaxBytes)
	}
	sort.SliceStable(diffs, func(i, j int) bool { return diffs[i].Path < diffs[j].Path })
	return diffs, nil
}

func (r *repository) validateBranchName(ctx context.Context, name string) error {
	invalid := &vcserr.Error{Kind: vcserr.InvalidArgument, Branch: name, Detail: "invalid branch name", StateRestored: true}
	if strings.TrimSpace(name) == "" || name != strings.TrimSpace(name) || strings.HasPrefix(name, "-") || strings.Contains(name, "@{") {
		return invalid
	}
	if err := r.exec(ctx, "check-ref-format", "--branch", name); err != nil {
		if ctx.Err() != nil {
			return classify(err, false)
		}
		invalid.Err = err
		return invalid
	}
	return nil
}

func (r *repository) CheckoutBranch(ctx context.Context, name, remote string) error {
	if err := r.validateBranchName(ctx, name); err != nil {
		return err
	}
	if name == r.currentBranch() && r.refExists(plumbing.NewBranchReferenceName(name)) {
		return nil
	}

	args := []string{"checkout", name}
	if !r.refExists(plumbing.NewBranchReferenceName(name)) {
		tracking := ""
		if remoteName, err := r.resolveRemote(remote); err == nil && r.refExists(plumbing.NewRemoteReferenceName(remoteName, name)) {
			tracking = remoteName + "/" + name
		}
		if tracking == "" {
			return &vcserr.Error{Kind: vcserr.BranchNotFound, Branch: name, StateRestored: true}
		}
		args = []string{"checkout", "-b", name, "--track", tracking}
	}

	if err := r.exec(ctx, args...); err != nil {
		verr := classify(err, false)
		verr.Branch = name
		return verr
	}
	return nil
}

func (r *repository) CreateBranch(ctx context.Context, name string) error {
	if err := r.validateBranchName(ctx, name); err != nil {
		return err
	}
	if r.refExists(plumbing.NewBranchReferenceName(name)) {
		return &vcserr.Error{Kind: vcserr.BranchExists, Branch: name, StateRestored: true}
	}
	if !r.hasHead() {
		return &vcserr.Error{Kind: vcserr.CommitNotFound, SHA: "HEAD", Branch: name, Detail: "branch has no commits yet", StateRestored: true}
	}
	if err := r.exec(ctx, "checkout", "-b", name); err != nil {
		verr := classify(err, false)
		if strings.Contains(strings.ToLower(gitOutput(err)), "already exists") {
			verr.Kind = vcserr.BranchExists
		}
		verr.Branch = name
		return verr
	}
	return nil
}

// repoPath normalizes a caller path to a slash-separated path relative to the root.
func (r *repository) repoPath(path string) (string, error) {
	notFound := &vcserr.Error{Kind: vcserr.PathNotFound, Path: path, StateRestored: true}
	p := strings.TrimSpace(path)
	if p == "" {
		return "", notFound
	}
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(r.root, p)
		if err != nil {
			return "", notFound
		}
		p = rel
	}
	p = filepath.Clean(filepath.FromSlash(p))
	if p == "." || !filepath.IsLocal(p) {
		notFound.Detail = "path is outside the repository"
		return "", notFound
	}
	if first := strings.SplitN(filepath.ToSlash(p), "/", 2)[0]; first == ".git" {
		notFound.Detail = "path is inside the git directory"
		return "", notFound
	}
	return filepath.ToSlash(p), nil
}

type pathState struct {
	inIndex bool
	inHead  bool
	onDisk  bool
}

func (s pathState) known() bool {
	return s.inIndex || s.inHead || s.onDisk
}

func (r *repository) pathState(ctx context.Context, path string) (pathState, error) {
	var st pathState
	if _, err := os.Lstat(filepath.Join(r.root, filepath.FromSlash(path))); err == nil {
		st.onDisk = true
	}
	if err := r.exec(ctx, "ls-files", "--error-unmatch", "--", path); err == nil {
		st.inIndex = true
	} else if ctx.Err() != nil {
		return st, classify(err, false)
	}
	if r.hasHead() {
		if err := r.exec(ctx, "cat-file", "-e", "HEAD:"+path); err == nil {
			st.inHead = true
		} else if ctx.Err() != nil {
			return st, classify(err, false)
		}
	}
	return st, nil
}

func (r *repository) knownPath(ctx context.Context, path string) (string, pathState, error) {
	p, err := r.repoPath(path)
	if err != nil {
		return "", pathState{}, err
	}
	st, err := r.pathState(ctx, p)
	if err != nil {
		return "", st, err
	}
	if !st.known() {
		return "", st, &vcserr.Error{Kind: vcserr.PathNotFound, Path: path, StateRestored: true}
	}
	return p, st, nil
}

func (r *repository) StageFile(ctx context.Context, path string) error {
	p, _, err := r.knownPath(ctx, path)
	if err != nil {
		return err
	}
	if err := r.exec(ctx, "add", "-A", "--", p); err != nil {
		verr := classify(err, false)
		verr.Path = path
		return verr
	}
	return nil
}

func (r *repository) UnstageFile(ctx context.Context, path string) error {
	p, st, err := r.knownPath(ctx, path)
	if err != nil {
		return err
	}
	if !st.inIndex && !st.inHead {
		// untracked, nothing staged
		return nil
	}
	args := []string{"restore", "--staged", "--", p}
	if !r.hasHead() {
		args = []string{"rm", "--cached", "-r", "-q", "--", p}
	}
	if err := r.exec(ctx, args...); err != nil {
		verr := classify(err, false)
		verr.Path = path
		return verr
	}
	return nil
}

func (r *repository) RevertFile(ctx context.Context, path string) error {
	p, st, err := r.knownPath(ctx, path)
	if err != nil {
		return err
	}
	full := filepath.Join(r.root, filepath.FromSlash(p))

	switch {
	case st.inHead:
		err = r.exec(ctx, "restore", "--source=HEAD", "--staged", "--worktree", "--", p)
	case st.inIndex:
		if err = r.exec(ctx, "rm", "--cached", "-r", "-f", "-q", "--", p); err == nil {
			err = os.RemoveAll(full)
		}
	default:
		err = os.RemoveAll(full)
	}
	if err != nil {
		verr := classify(err, false)
		verr.Path = path
		return verr
	}
	return nil
}

func (r *repository) StageAll(ctx context.Context) error {
	if err := r.exec(ctx, "add", "-A"); err != nil {
		return classify(err, false)
	}
	return nil
}

func (r *repository) RevertAll(ctx context.Context) error {
	restore := []string{"reset", "--hard", "-q", "HEAD"}
	if !r.hasHead() {
		restore = []string{"read-tree", "--empty"}
	}
	if err := r.exec(ctx, restore...); err != nil {
		verr := classify(err, false)
		verr.Op = "revert_all.restore_tracked"
		return verr
	}
	if err := r.exec(ctx, "clean", "-f", "-d", "-q"); err != nil {
		verr := classify(err, false)
		verr.Op = "revert_all.clean_untracked"
		return verr
	}
	return nil
}

func (r *repository) Commit(ctx context.Context, message string) error {
	err := r.exec(ctx, "diff", "--cached", "--quiet")
	switch {
	case err == nil:
		return &vcserr.Error{Kind: vcserr.NothingToCommit, StateRestored: true}
	case exitCode(err) != 1:
		return classify(err, false)
	}
	if err := r.exec(ctx, "commit", "-q", "-m", message); err != nil {
		return classify(err, false)
	}
	return nil
}

// upstreamDivergence reports the upstream of the current branch and how far HEAD is
// ahead of and behind it. A branch without upstream reports zero values.
func (r *repository) upstreamDivergence(ctx context.Context) (string, int, int, error) {
	upstream, err := r.captureGit(ctx, "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{upstream}")
	if err != nil {
		if ctx.Err() != nil {
			return "", 0, 0, err
		}
		return "", 0, 0, nil
	}
	upstream = strings.TrimSpace(upstream)
	counts, err := r.captureGit(ctx, "rev-list", "--left-right", "--count", "HEAD...@{upstream}")
	if err != nil {
		return upstream, 0, 0, err
	}
	fields := strings.Fields(counts)
	if len(fields) != 2 {
		return upstream, 0, 0, nil
	}
	ahead, _ := strconv.Atoi(fields[0])
	behind, _ := strconv.Atoi(fields[1])
	return upstream, ahead, behind, nil
}

func (r *repository) hasUpstream(ctx context.Context) bool {
	upstream, _, _, err := r.upstreamDivergence(ctx)
	return err == nil && upstream != ""
}

func (r *repository) Fetch(ctx context.Context, remote string) error {
	name, err := r.resolveRemote(remote)
	if err != nil {
		return err
	}
	if err := r.exec(ctx, "fetch", "--prune", name); err != nil {
		return classify(err, true)
	}
	return nil
}

func (r *repository) Push(ctx context.Context, remote string) error {
	name, err := r.resolveRemote(remote)
	if err != nil {
		return err
	}
	if !r.hasHead() {
		return &vcserr.Error{Kind: vcserr.CommitNotFound, SHA: "HEAD", Detail: "nothing to push", StateRestored: true}
	}
	args := []string{"push"}
	if !r.hasUpstream(ctx) {
		branch := r.currentBranch()
		if branch == "" {
			return &vcserr.Error{Kind: vcserr.BranchNotFound, Detail: "HEAD is detached", StateRestored: true}
		}
		args = []string{"push", "-u", name, "HEAD"}
	}
	if err := r.exec(ctx, args...); err != nil {
		return classify(err, true)
	}
	return nil
}

func (r *repository) Pull(ctx context.Context, remote string) error {
	return r.pull(ctx, remote, "--no-rebase")
}

func (r *repository) pull(ctx context.Context, remote, mode string) error {
	name, err := r.resolveRemote(remote)
	if err != nil {
		return err
	}
	args := []string{"pull", mode}
	if !r.hasUpstream(ctx) {
		branch := r.currentBranch()
		if branch == "" {
			return &vcserr.Error{Kind: vcserr.BranchNotFound, Detail: "HEAD is detached", StateRestored: true}
		}
		args = append(args, name, branch)
	}

	before := r.headSHA()
	if err := r.exec(ctx, args...); err != nil {
		return r.recoverFrom(ctx, before, err)
	}
	return nil
}

func (r *repository) Sync(ctx context.Context, remote string, strategy SyncStrategy) error {
	before := r.headSHA()
	if err := r.Fetch(ctx, remote); err != nil {
		return withOp(err, "sync.fetch")
	}
	if r.hasUpstream(ctx) {
		mode := "--rebase"
		if strategy == SyncMerge {
			mode = "--no-rebase"
		}
		if err := r.pull(ctx, remote, mode); err != nil {
			return withOp(err, "sync.pull")
		}
	}
	if err := r.Push(ctx, remote); err != nil {
		return r.settleHead(withOp(err, "sync.push"), before)
	}
	return nil
}

// settleHead marks verr as not restored when HEAD no longer points at before.
func (r *repository) settleHead(verr *vcserr.Error, before string) *vcserr.Error {
	if after := r.headSHA(); after != before {
		verr.StateRestored = false
		verr.Detail = joinDetail(verr.Detail, fmt.Sprintf("HEAD moved from %s to %s", shortSHA(before), shortSHA(after)))
	}
	return verr
}

func withOp(err error, op string) *vcserr.Error {
	verr := vcserr.As(op, err)
	if verr.Op == "" {
		verr.Op = op
	}
	return verr
}

// recoverFrom aborts any merge or rebase left behind by a failed pull and checks that
// HEAD is back where it started. The cleanup runs even when ctx is already done.
func (r *repository) recoverFrom(ctx context.Context, before string, cause error) error {
	verr := classify(cause, true)

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()

	inProgress, err := r.abortInProgress(cleanupCtx)
	if inProgress && verr.Kind == vcserr.Internal {
		verr.Kind = vcserr.MergeConflict
	}

	stillInProgress := false
	if err == nil {
		stillInProgress, _ = r.operationInProgress(cleanupCtx)
	}
	after := r.headSHA()

	switch {
	case err != nil || stillInProgress:
		verr.StateRestored = false
		verr.Detail = joinDetail(verr.Detail, "merge or rebase could not be aborted; resolve it manually")
	case after != before:
		verr.StateRestored = false
		verr.Detail = joinDetail(verr.Detail, fmt.Sprintf("HEAD moved from %s to %s", shortSHA(before), shortSHA(after)))
	default:
		verr.StateRestored = true
	}
	return verr
}

func (r *repository) gitDir(ctx context.Context) (string, error) {
	out, err := r.captureGit(ctx, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// operationInProgress reports whether a merge or rebase is waiting for resolution.
func (r *repository) operationInProgress(ctx context.Context) (bool, error) {
	merge, rebase, err := r.pendingOperations(ctx)
	return merge || rebase, err
}

func (r *repository) pendingOperations(ctx context.Context) (merge, rebase bool, err error) {
	dir, err := r.gitDir(ctx)
	if err != nil {
		return false, false, err
	}
	exists := func(name string) bool {
		_, err := os.Stat(filepath.Join(dir, name))
		return err == nil
	}
	return exists("MERGE_HEAD"), exists("rebase-merge") || exists("rebase-apply"), nil
}

func (r *repository) abortInProgress(ctx context.Context) (bool, error) {
	merge, rebase, err := r.pendingOperations(ctx)
	if err != nil {
		return false, err
	}
	var errs []error
	if rebase {
		if err := r.exec(ctx, "rebase", "--abort"); err != nil {
			errs = append(errs, err)
		}
	}
	if merge {
		if err := r.exec(ctx, "merge", "--abort"); err != nil {
			errs = append(errs, err)
		}
	}
	return merge || rebase, errors.Join(errs...)
}

func joinDetail(detail, extra string) string {
	if detail == "" {
		return extra
	}
	return detail + "; " + extra
}

func shortSHA(sha string) string {
	if sha == "" {
		return "(none)"
	}
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
