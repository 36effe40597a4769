package facade

import (
	"context"
	"os/exec"
	"runtime"

	"github.com/codexmonitor/gitfacade/internal/models"
	"github.com/codexmonitor/gitfacade/internal/vcserr"
)

// Capability reports whether local git operations can run on this platform.
type Capability struct {
	Supported bool
	Reason    string
}

// DetectCapability probes the running platform.
func DetectCapability() Capability {
	switch runtime.GOOS {
	case "android", "ios", "js", "wasip1":
		return Capability{Reason: runtime.GOOS + " cannot run local git processes"}
	}
	if _, err := exec.LookPath("git"); err != nil {
		return Capability{Reason: "git executable not found on PATH"}
	}
	return Capability{Supported: true}
}

func errUnsupported(op string) error {
	return &vcserr.Error{
		Kind:          vcserr.PlatformUnsupported,
		Op:            op,
		Message:       UnsupportedMessage,
		StateRestored: true,
	}
}

// unsupported is the Service used when the platform cannot run git. It holds no
// collaborators, so it cannot touch the registry or the settings store.
type unsupported struct{}

func (unsupported) Status(context.Context, string) (models.GitStatus, error) {
	return models.GitStatus{}, errUnsupported(opStatus)
}

func (unsupported) Diffs(context.Context, string) ([]models.GitFileDiff, error) {
	return nil, errUnsupported(opDiffs)
}

func (unsupported) Log(context.Context, string, int) (models.GitLogResponse, error) {
	return models.GitLogResponse{}, errUnsupported(opLog)
}

func (unsupported) CommitDiff(context.Context, string, string) ([]models.GitCommitDiff, error) {
	return nil, errUnsupported(opCommitDiff)
}

func (unsupported) RemoteURL(context.Context, string) (string, bool, error) {
	return "", false, errUnsupported(opRemoteURL)
}

func (unsupported) Branches(context.Context, string) (models.BranchList, error) {
	return models.BranchList{}, errUnsupported(opBranches)
}

func (unsupported) CheckoutBranch(context.Context, string, string) error {
	return errUnsupported(opCheckoutBranch)
}

func (unsupported) CreateBranch(context.Context, string, string) error {
	return errUnsupported(opCreateBranch)
}

func (unsupported) StageFile(context.Context, string, string) error {
	return errUnsupported(opStageFile)
}

func (unsupported) UnstageFile(context.Context, string, string) error {
	return errUnsupported(opUnstageFile)
}

func (unsupported) RevertFile(context.Context, string, string) error {
	return errUnsupported(opRevertFile)
}

func (unsupported) StageAll(context.Context, string) error {
	return errUnsupported(opStageAll)
}

func (unsupported) RevertAll(context.Context, string) error {
	return errUnsupported(opRevertAll)
}

func (unsupported) Commit(context.Context, string, string) error {
	return errUnsupported(opCommit)
}

func (unsupported) Push(context.Context, string) error {
	return errUnsupported(opPush)
}

func (unsupported) Pull(context.Context, string) error {
	return errUnsupported(opPull)
}

func (unsupported) Fetch(context.Context, string) error {
	return errUnsupported(opFetch)
}

func (unsupported) Sync(context.Context, string) error {
	return errUnsupported(opSync)
}

func (unsupported) Issues(context.Context, string) (models.GitHubIssuesResponse, error) {
	return models.GitHubIssuesResponse{}, errUnsupported(opIssues)
}

func (unsupported) PullRequests(context.Context, string) (models.GitHubPullRequestsResponse, error) {
	return models.GitHubPullRequestsResponse{}, errUnsupported(opPullRequests)
}

func (unsupported) PullRequestDiff(context.Context, string, int) ([]models.GitHubPullRequestDiff, error) {
	return nil, errUnsupported(opPullRequestDiff)
}

func (unsupported) PullRequestComments(context.Context, string, int) ([]models.GitHubPullRequestComment, error) {
	return nil, errUnsupported(opPullRequestComments)
}

func (unsupported) GitRoots(context.Context, string, int) ([]string, error) {
	return nil, errUnsupported(opGitRoots)
}
