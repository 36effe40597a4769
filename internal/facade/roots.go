package facade

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codexmonitor/gitfacade/internal/vcserr"
)

const (
	defaultRootsDepth = 2
	maxRootsDepth     = 6
)

var skippedRootDirs = map[string]struct{}{
	"node_modules": {},
}

// GitRoots works on the workspace directory itself, which need not be a repository,
// so it looks the workspace up without opening it.
func (s *gated) GitRoots(ctx context.Context, workspaceID string, depth int) ([]string, error) {
	opID := uuid.NewString()
	start := time.Now()
	if s.metrics != nil {
		defer s.metrics.OperationStarted(opGitRoots)()
	}

	roots, err := func() ([]string, error) {
		entry, ok := s.registry.Get(workspaceID)
		if !ok {
			return nil, vcserr.Newf(vcserr.UnknownWorkspace, "", "no open workspace with this id")
		}
		info, err := os.Stat(entry.Path)
		if err != nil || !info.IsDir() {
			return nil, &vcserr.Error{Kind: vcserr.InvalidRepository, Path: entry.Path, Detail: "workspace directory is missing", Err: err, StateRestored: true}
		}
		return findGitRoots(ctx, entry.Path, clampDepth(depth))
	}()

	err = annotate(err, opGitRoots, workspaceID, errContext{})
	s.observe(opGitRoots, opID, workspaceID, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return roots, nil
}

func clampDepth(depth int) int {
	switch {
	case depth <= 0:
		return defaultRootsDepth
	case depth > maxRootsDepth:
		return maxRootsDepth
	default:
		return depth
	}
}

// findGitRoots returns the slash-separated paths, relative to base, of directories
// holding a .git entry. The base itself is reported as ".".
func findGitRoots(ctx context.Context, base string, depth int) ([]string, error) {
	roots := []string{}
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == base {
				return err
			}
			// unreadable entries are skipped
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(base, path)
		if relErr != nil {
			return relErr
		}
		if rel != "." {
			name := d.Name()
			if strings.HasPrefix(name, ".") {
				return fs.SkipDir
			}
			if _, skip := skippedRootDirs[name]; skip {
				return fs.SkipDir
			}
		}

		if _, statErr := os.Lstat(filepath.Join(path, ".git")); statErr == nil {
			roots = append(roots, filepath.ToSlash(rel))
		}

		if rel != "." && strings.Count(filepath.ToSlash(rel), "/")+1 >= depth {
			return fs.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, vcserr.New(vcserr.Internal, "", err)
	}
	sort.Strings(roots)
	return roots, nil
}
