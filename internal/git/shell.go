package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"golang.org/x/sync/semaphore"

	"github.com/codexmonitor/gitfacade/internal/vcserr"
)

// ShellExecutor shells out to the system git binary for worktree, index and network
// operations and reads history through go-git.
type ShellExecutor struct {
	// Git is the git binary to execute. Defaults to "git" when empty.
	Git string

	// MaxProcesses bounds the number of git processes running at once across all
	// repositories. When zero, a default of 8 is used.
	MaxProcesses int

	// NetworkRetries controls how many additional attempts should be made for
	// fetch, push and ls-remote. Pull is never retried. When zero, a default of 2
	// retries is used; negative disables retries.
	NetworkRetries int

	// NetworkRetryDelay controls the initial backoff delay between retries. When zero,
	// a default of 1 second is used. Backoff grows exponentially per attempt.
	NetworkRetryDelay time.Duration

	// NetworkTimeout bounds network commands that would otherwise inherit an unbounded
	// context. When zero, a default of 2 minutes is used.
	NetworkTimeout time.Duration

	semOnce sync.Once
	sem     *semaphore.Weighted
}

// NewShellExecutor returns an Executor backed by system git commands.
func NewShellExecutor() *ShellExecutor {
	return &ShellExecutor{}
}

func (e *ShellExecutor) gitBinary() string {
	if e.Git == "" {
		return "git"
	}
	return e.Git
}

func (e *ShellExecutor) processes() *semaphore.Weighted {
	e.semOnce.Do(func() {
		n := e.MaxProcesses
		if n <= 0 {
			n = 8
		}
		e.sem = semaphore.NewWeighted(int64(n))
	})
	return e.sem
}

// Open validates dir as a non-bare repository and returns a handle rooted at its
// worktree. A directory nested inside a repository resolves to the enclosing root.
func (e *ShellExecutor) Open(ctx context.Context, dir string) (Repository, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(dir) == "" {
		return nil, vcserr.Newf(vcserr.InvalidRepository, "", "repository path is empty")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &vcserr.Error{Kind: vcserr.InvalidRepository, Path: dir, StateRestored: true, Err: err}
	}
	if !info.IsDir() {
		return nil, &vcserr.Error{Kind: vcserr.InvalidRepository, Path: dir, Detail: "not a directory", StateRestored: true}
	}

	repo, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: true, EnableDotGitCommonDir: true})
	if err != nil {
		return nil, &vcserr.Error{Kind: vcserr.InvalidRepository, Path: dir, StateRestored: true, Err: err}
	}
	wt, err := repo.Worktree()
	if err != nil {
		// go-git reports bare repositories here.
		return nil, &vcserr.Error{Kind: vcserr.InvalidRepository, Path: dir, StateRestored: true, Err: err}
	}
	root := wt.Filesystem.Root()
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}

	return &repository{executor: e, root: root, repo: repo}, nil
}

func (e *ShellExecutor) runGit(ctx context.Context, args ...string) error {
	_, err := e.captureGitOutput(ctx, args...)
	return err
}

// captureGitOutput runs git and returns stdout. Network commands get a timeout and
// retryable network commands are retried with exponential backoff.
func (e *ShellExecutor) captureGitOutput(ctx context.Context, args ...string) (string, error) {
	primary := primaryGitCommand(args)
	isNetwork := isNetworkCommand(primary)

	retries := 0
	if isRetryableCommand(primary) {
		retries = e.networkRetriesValue()
	}

	delay := e.networkRetryDelayValue()
	var lastErr error

	for attempt := 0; attempt <= retries; attempt++ {
		attemptCtx, cancel := e.applyNetworkTimeout(ctx, isNetwork)
		out, err := e.runGitOnce(attemptCtx, args...)
		cancel()

		if err == nil {
			return out, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
		if attempt == retries || isPermanentFailure(err) {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		if delay < time.Second {
			delay = time.Second
		}
		delay *= 2
	}

	return "", lastErr
}

func (e *ShellExecutor) runGitOnce(ctx context.Context, args ...string) (string, error) {
	sem := e.processes()
	if err := sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer sem.Release(1)

	cmd := exec.Command(e.gitBinary(), args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "GIT_OPTIONAL_LOCKS=0", "LC_ALL=C")
	setProcessGroup(cmd)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", &GitError{Args: args, Output: stderr.String(), Err: err}
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		terminateProcessGroup(cmd)
		<-done
		return "", ctx.Err()
	case err := <-done:
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", &GitError{Args: args, Output: stderr.String() + stdout.String(), Err: err}
		}
	}

	return stdout.String(), nil
}

func primaryGitCommand(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			if i+1 < len(args) {
				return args[i+1]
			}
			return ""
		}
		if strings.HasPrefix(arg, "-") {
			switch arg {
			case "-C", "--git-dir", "-c":
				i++
			}
			continue
		}
		return arg
	}
	return ""
}

// isNetworkCommand reports commands that talk to a remote and therefore get a timeout.
func isNetworkCommand(cmd string) bool {
	switch cmd {
	case "fetch", "push", "pull", "ls-remote":
		return true
	default:
		return false
	}
}

// isRetryableCommand reports network commands that are safe to repeat. Pull mutates the
// worktree and is excluded.
func isRetryableCommand(cmd string) bool {
	switch cmd {
	case "fetch", "push", "ls-remote":
		return true
	default:
		return false
	}
}

func (e *ShellExecutor) networkRetriesValue() int {
	if e.NetworkRetries < 0 {
		return 0
	}
	if e.NetworkRetries == 0 {
		return 2
	}
	return e.NetworkRetries
}

func (e *ShellExecutor) networkRetryDelayValue() time.Duration {
	if e.NetworkRetryDelay <= 0 {
		return time.Second
	}
	return e.NetworkRetryDelay
}

func (e *ShellExecutor) networkTimeoutValue() time.Duration {
	if e.NetworkTimeout <= 0 {
		return 2 * time.Minute
	}
	return e.NetworkTimeout
}

func (e *ShellExecutor) applyNetworkTimeout(ctx context.Context, network bool) (context.Context, context.CancelFunc) {
	if !network {
		return ctx, func() {}
	}
	if deadline, ok := ctx.Deadline(); ok && !deadline.IsZero() {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.networkTimeoutValue())
}

// GitError wraps failures when invoking the git binary.
type GitError struct {
	Args   []string
	Output string
	Err    error
}

func (e *GitError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("git %s: %v\n%s", strings.Join(e.Args, " "), e.Err, e.Output)
}

func (e *GitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ExitCode returns the git exit status, or -1 when the process did not run to completion.
func (e *GitError) ExitCode() int {
	var exitErr *exec.ExitError
	if e != nil && errors.As(e.Err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func exitCode(err error) int {
	var gitErr *GitError
	if errors.As(err, &gitErr) {
		return gitErr.ExitCode()
	}
	return -1
}

func gitOutput(err error) string {
	var gitErr *GitError
	if errors.As(err, &gitErr) {
		return gitErr.Output
	}
	return ""
}
