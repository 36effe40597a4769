package git

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/codexmonitor/gitfacade/internal/vcserr"
)

// initRepo creates a repository on branch main with a committed README.md.
func initRepo(t *testing.T, dir string) {
	t.Helper()
	initEmptyRepo(t, dir)
	writeFile(t, filepath.Join(dir, "README.md"), "hello\n")
	mustRunGit(t, dir, "add", "README.md")
	mustRunGit(t, dir, "commit", "-m", "initial commit")
}

// initEmptyRepo creates a repository whose main branch has no commits yet.
func initEmptyRepo(t *testing.T, dir string) {
	t.Helper()
	mustRunGit(t, dir, "init")
	mustRunGit(t, dir, "symbolic-ref", "HEAD", "refs/heads/main")
	configureIdentity(t, dir)
}

func configureIdentity(t *testing.T, dir string) {
	t.Helper()
	mustRunGit(t, dir, "config", "user.name", "Test User")
	mustRunGit(t, dir, "config", "user.email", "test@example.com")
	mustRunGit(t, dir, "config", "commit.gpgsign", "false")
}

func openRepo(t *testing.T, dir string) Repository {
	t.Helper()
	repo, err := NewShellExecutor().Open(context.Background(), dir)
	if err != nil {
		t.Fatalf("Open(%s) failed: %v", dir, err)
	}
	return repo
}

func expectKind(t *testing.T, err error, want vcserr.Kind) *vcserr.Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	var verr *vcserr.Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *vcserr.Error, got %T: %v", err, err)
	}
	if verr.Kind != want {
		t.Fatalf("expected kind %s, got %s: %v", want, verr.Kind, err)
	}
	return verr
}

func headOf(t *testing.T, dir string) string {
	t.Helper()
	return strings.TrimSpace(string(mustCaptureGit(t, dir, "rev-parse", "HEAD")))
}

func mustRunGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	mustCaptureGit(t, dir, args...)
}

func mustCaptureGit(t *testing.T, dir string, args ...string) []byte {
	t.Helper()
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
	}
	cmdArgs := append([]string{"-C", dir}, args...)
	if dir == "" {
		cmdArgs = args
	}
	cmd := exec.Command("git", cmdArgs...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s failed: %v\n%s", strings.Join(cmdArgs, " "), err, string(output))
	}
	return output
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write file failed: %v", err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file failed: %v", err)
	}
	return string(data)
}
