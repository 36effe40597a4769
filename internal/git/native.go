package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/codexmonitor/gitfacade/internal/models"
	"github.com/codexmonitor/gitfacade/internal/vcserr"
)

// headCommit returns the commit HEAD points at, or nil on an unborn branch.
func (r *repository) headCommit() (*object.Commit, error) {
	ref, err := r.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read HEAD: %w", err)
	}
	commit, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("read HEAD commit: %w", err)
	}
	return commit, nil
}

// currentBranch returns the short branch name HEAD refers to, even when unborn.
func (r *repository) currentBranch() string {
	ref, err := r.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return ""
	}
	if ref.Type() == plumbing.SymbolicReference && ref.Target().IsBranch() {
		return ref.Target().Short()
	}
	return ""
}

func (r *repository) Log(ctx context.Context, limit int) (models.GitLogResponse, error) {
	resp := models.GitLogResponse{Entries: []models.GitLogEntry{}}
	head, err := r.headCommit()
	if err != nil {
		return resp, classify(err, false)
	}
	if head == nil {
		return resp, nil
	}

	iter, err := r.repo.Log(&gogit.LogOptions{From: head.Hash, Order: gogit.LogOrderCommitterTime})
	if err != nil {
		return resp, classify(fmt.Errorf("read commits: %w", err), false)
	}
	defer iter.Close()

	for limit <= 0 || len(resp.Entries) < limit {
		if err := ctx.Err(); err != nil {
			return resp, classify(err, false)
		}
		commit, err := iter.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return resp, classify(fmt.Errorf("iterate commits: %w", err), false)
		}
		resp.Entries = append(resp.Entries, logEntry(commit))
	}

	total, err := r.captureGit(ctx, "rev-list", "--count", "HEAD")
	if err != nil {
		return resp, classify(err, false)
	}
	resp.Total, _ = strconv.Atoi(strings.TrimSpace(total))

	upstream, ahead, behind, err := r.upstreamDivergence(ctx)
	if err != nil {
		return resp, classify(err, false)
	}
	resp.Upstream, resp.Ahead, resp.Behind = upstream, ahead, behind
	return resp, nil
}

func logEntry(c *object.Commit) models.GitLogEntry {
	message := strings.TrimRight(c.Message, "\n")
	summary := message
	if idx := strings.IndexByte(summary, '\n'); idx >= 0 {
		summary = summary[:idx]
	}
	return models.GitLogEntry{
		SHA:         c.Hash.String(),
		Summary:     strings.TrimSpace(summary),
		Message:     message,
		Author:      c.Author.Name,
		AuthorEmail: c.Author.Email,
		Timestamp:   c.Author.When,
	}
}

func (r *repository) CommitDiff(ctx context.Context, sha string, opts DiffOptions) ([]models.GitCommitDiff, error) {
	sha = strings.TrimSpace(sha)
	notFound := &vcserr.Error{Kind: vcserr.CommitNotFound, SHA: sha, StateRestored: true}
	if sha == "" {
		return nil, notFound
	}
	hash, err := r.repo.ResolveRevision(plumbing.Revision(sha))
	if err != nil {
		notFound.Err = err
		return nil, notFound
	}
	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		notFound.Err = err
		return nil, notFound
	}

	currentTree, err := commit.Tree()
	if err != nil {
		return nil, classify(fmt.Errorf("read tree: %w", err), false)
	}
	var parentTree *object.Tree
	if commit.NumParents() > 0 {
		parent, err := commit.Parent(0)
		if err != nil {
			return nil, classify(fmt.Errorf("read parent: %w", err), false)
		}
		parentTree, err = parent.Tree()
		if err != nil {
			return nil, classify(fmt.Errorf("read parent tree: %w", err), false)
		}
	}

	changes, err := object.DiffTreeWithOptions(ctx, parentTree, currentTree, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, classify(fmt.Errorf("diff trees: %w", err), false)
	}

	out := make([]models.GitCommitDiff, 0, len(changes))
	for _, change := range changes {
		patch, err := change.PatchContext(ctx)
		if err != nil {
			return nil, classify(fmt.Errorf("patch %s: %w", changePath(change), err), false)
		}
		entry := models.GitCommitDiff{SHA: commit.Hash.String(), Path: changePath(change)}
		switch {
		case change.From.Name == "":
			entry.Status = models.FileAdded
		case change.To.Name == "":
			entry.Status = models.FileDeleted
		case change.From.Name != change.To.Name:
			entry.Status = models.FileRenamed
			entry.OldPath = change.From.Name
		default:
			entry.Status = models.FileModified
		}

		filePatches := patch.FilePatches()
		for _, fp := range filePatches {
			if fp.IsBinary() {
				entry.Binary = true
			}
		}
		text, err := encodeUnifiedPatch(filePatches)
		if err != nil {
			return nil, classify(fmt.Errorf("encode %s: %w", entry.Path, err), false)
		}
		entry.Diff, entry.Truncated = truncatePatch(text, opts.MaxBytes)
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func changePath(change *object.Change) string {
	if change.To.Name != "" {
		return change.To.Name
	}
	return change.From.Name
}

func (r *repository) Branches(ctx context.Context) (models.BranchList, error) {
	list := models.BranchList{Current: r.currentBranch(), Branches: []models.BranchInfo{}}

	refs, err := r.repo.Branches()
	if err != nil {
		return list, classify(fmt.Errorf("list branches: %w", err), false)
	}
	defer refs.Close()

	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		info := models.BranchInfo{Name: ref.Name().Short()}
		info.Current = info.Name == list.Current
		if commit, err := r.repo.CommitObject(ref.Hash()); err == nil {
			info.LastCommit = commit.Committer.When
		}
		list.Branches = append(list.Branches, info)
		return nil
	})
	if err != nil {
		return list, classify(err, false)
	}

	sort.SliceStable(list.Branches, func(i, j int) bool {
		a, b := list.Branches[i], list.Branches[j]
		if !a.LastCommit.Equal(b.LastCommit) {
			return a.LastCommit.After(b.LastCommit)
		}
		return a.Name < b.Name
	})
	return list, nil
}

// resolveRemote picks preferred when configured, then origin, then the first remote by
// name.
func (r *repository) resolveRemote(preferred string) (string, error) {
	remotes, err := r.repo.Remotes()
	if err != nil {
		return "", classify(fmt.Errorf("list remotes: %w", err), false)
	}
	if len(remotes) == 0 {
		return "", &vcserr.Error{Kind: vcserr.NoRemoteConfigured, StateRestored: true}
	}
	names := make([]string, 0, len(remotes))
	for _, remote := range remotes {
		names = append(names, remote.Config().Name)
	}
	sort.Strings(names)
	for _, want := range []string{preferred, "origin"} {
		for _, name := range names {
			if want != "" && name == want {
				return name, nil
			}
		}
	}
	return names[0], nil
}

func (r *repository) RemoteURL(ctx context.Context, preferred string) (string, bool, error) {
	name, err := r.resolveRemote(preferred)
	if err != nil {
		if vcserr.KindOf(err) == vcserr.NoRemoteConfigured {
			return "", false, nil
		}
		return "", false, err
	}
	remote, err := r.repo.Remote(name)
	if err != nil {
		if errors.Is(err, gogit.ErrRemoteNotFound) {
			return "", false, nil
		}
		return "", false, classify(fmt.Errorf("read remote %s: %w", name, err), false)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 || strings.TrimSpace(urls[0]) == "" {
		return "", false, nil
	}
	return urls[0], true, nil
}
