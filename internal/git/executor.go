package git

import (
	"context"

	"github.com/codexmonitor/gitfacade/internal/models"
)

// Executor opens repositories rooted at a directory.
type Executor interface {
	Open(ctx context.Context, dir string) (Repository, error)
}

// SyncStrategy selects how Sync integrates upstream changes.
type SyncStrategy string

const (
	SyncRebase SyncStrategy = "rebase"
	SyncMerge  SyncStrategy = "merge"
)

// DiffOptions tunes diff rendering.
type DiffOptions struct {
	IgnoreWhitespace bool
	// MaxBytes caps a single file's patch text. Zero means unlimited.
	MaxBytes int
}

// Repository exposes the operations the façade needs against one repository. Every
// method returns *vcserr.Error values for the failures it can classify.
type Repository interface {
	Root() string

	Status(ctx context.Context) (models.GitStatus, error)
	Diffs(ctx context.Context, opts DiffOptions) ([]models.GitFileDiff, error)
	Log(ctx context.Context, limit int) (models.GitLogResponse, error)
	CommitDiff(ctx context.Context, sha string, opts DiffOptions) ([]models.GitCommitDiff, error)
	RemoteURL(ctx context.Context, preferred string) (string, bool, error)
	Branches(ctx context.Context) (models.BranchList, error)

	CheckoutBranch(ctx context.Context, name, remote string) error
	CreateBranch(ctx context.Context, name string) error
	StageFile(ctx context.Context, path string) error
	UnstageFile(ctx context.Context, path string) error
	RevertFile(ctx context.Context, path string) error
	StageAll(ctx context.Context) error
	RevertAll(ctx context.Context) error
	Commit(ctx context.Context, message string) error

	Fetch(ctx context.Context, remote string) error
	Push(ctx context.Context, remote string) error
	Pull(ctx context.Context, remote string) error
	Sync(ctx context.Context, remote string, strategy SyncStrategy) error
}
