// Package vcserr defines the error taxonomy shared by every layer of the façade.
package vcserr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure so callers can react without parsing messages.
type Kind int

const (
	Internal Kind = iota
	PlatformUnsupported
	UnknownWorkspace
	InvalidRepository
	PathNotFound
	CommitNotFound
	BranchExists
	BranchNotFound
	DirtyWorkingTree
	NothingToCommit
	EmptyMessage
	NoRemoteConfigured
	AuthenticationFailed
	MergeConflict
	NetworkError
	MissingCredentials
	RateLimited
	NotFound
	InvalidArgument
	UnsupportedRemote
)

var kindNames = map[Kind]string{
	Internal:             "internal",
	PlatformUnsupported:  "platform_unsupported",
	UnknownWorkspace:     "unknown_workspace",
	InvalidRepository:    "invalid_repository",
	PathNotFound:         "path_not_found",
	CommitNotFound:       "commit_not_found",
	BranchExists:         "branch_exists",
	BranchNotFound:       "branch_not_found",
	DirtyWorkingTree:     "dirty_working_tree",
	NothingToCommit:      "nothing_to_commit",
	EmptyMessage:         "empty_message",
	NoRemoteConfigured:   "no_remote_configured",
	AuthenticationFailed: "authentication_failed",
	MergeConflict:        "merge_conflict",
	NetworkError:         "network_error",
	MissingCredentials:   "missing_credentials",
	RateLimited:          "rate_limited",
	NotFound:             "not_found",
	InvalidArgument:      "invalid_argument",
	UnsupportedRemote:    "unsupported_remote",
}

// String returns the stable snake_case identifier of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels usable with errors.Is.
var (
	ErrPlatformUnsupported  = &Error{Kind: PlatformUnsupported}
	ErrUnknownWorkspace     = &Error{Kind: UnknownWorkspace}
	ErrInvalidRepository    = &Error{Kind: InvalidRepository}
	ErrPathNotFound         = &Error{Kind: PathNotFound}
	ErrCommitNotFound       = &Error{Kind: CommitNotFound}
	ErrBranchExists         = &Error{Kind: BranchExists}
	ErrBranchNotFound       = &Error{Kind: BranchNotFound}
	ErrDirtyWorkingTree     = &Error{Kind: DirtyWorkingTree}
	ErrNothingToCommit      = &Error{Kind: NothingToCommit}
	ErrEmptyMessage         = &Error{Kind: EmptyMessage}
	ErrNoRemoteConfigured   = &Error{Kind: NoRemoteConfigured}
	ErrAuthenticationFailed = &Error{Kind: AuthenticationFailed}
	ErrMergeConflict        = &Error{Kind: MergeConflict}
	ErrNetworkError         = &Error{Kind: NetworkError}
	ErrMissingCredentials   = &Error{Kind: MissingCredentials}
	ErrRateLimited          = &Error{Kind: RateLimited}
	ErrNotFound             = &Error{Kind: NotFound}
	ErrInvalidArgument      = &Error{Kind: InvalidArgument}
	ErrUnsupportedRemote    = &Error{Kind: UnsupportedRemote}
	ErrInternal             = &Error{Kind: Internal}
)

// Error is the typed failure returned by every façade operation. Context fields are
// optional and only set when they help the caller render an actionable message.
type Error struct {
	Kind      Kind
	Op        string
	Workspace string
	Path      string
	SHA       string
	Branch    string
	Number    int
	Detail    string

	// Message, when set, is returned verbatim by Error.
	Message string

	// StateRestored is meaningful for interrupted network writes only: false means the
	// repository could not be returned to its pre-operation state.
	StateRestored bool

	// Retryable reports that the underlying provider flagged the failure as transient.
	// Nothing in the façade retries on it.
	Retryable bool

	Err error
}

// New returns an *Error of the given kind for op.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err, StateRestored: true}
}

// Newf returns an *Error of the given kind with a formatted detail message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...), StateRestored: true}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(strings.ReplaceAll(e.Kind.String(), "_", " "))

	var ctx []string
	if e.Workspace != "" {
		ctx = append(ctx, "workspace="+e.Workspace)
	}
	if e.Path != "" {
		ctx = append(ctx, "path="+e.Path)
	}
	if e.SHA != "" {
		ctx = append(ctx, "sha="+e.SHA)
	}
	if e.Branch != "" {
		ctx = append(ctx, "branch="+e.Branch)
	}
	if e.Number != 0 {
		ctx = append(ctx, fmt.Sprintf("number=%d", e.Number))
	}
	if len(ctx) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ctx, ", "))
		b.WriteString(")")
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, vcserr.ErrBranchExists)
// works regardless of context fields.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf extracts the kind of err. Errors that are not *Error report Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// As returns err as an *Error, wrapping foreign errors as Internal under op.
func As(op string, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return New(Internal, op, err)
}
