package gh

import (
	"context"

	"github.com/codexmonitor/gitfacade/internal/models"
)

// Repo names a hosted repository.
type Repo struct {
	Owner string
	Name  string
}

func (r Repo) String() string {
	return r.Owner + "/" + r.Name
}

// Client exposes the read-only hosting operations the façade needs.
type Client interface {
	// ListIssues returns open issues (pull requests excluded), most recently updated first,
	// stopping after max items when max > 0.
	ListIssues(ctx context.Context, repo Repo, max int) ([]models.GitHubIssue, error)
	// ListPullRequests returns open pull requests, most recently updated first.
	ListPullRequests(ctx context.Context, repo Repo, max int) ([]models.GitHubPullRequest, error)
	PullRequestFiles(ctx context.Context, repo Repo, number int) ([]models.GitHubPullRequestDiff, error)
	PullRequestComments(ctx context.Context, repo Repo, number int) ([]models.GitHubPullRequestComment, error)
}

// Factory builds concrete GitHub clients (e.g., REST-backed) for the façade.
type Factory interface {
	New(ctx context.Context, token string) (Client, error)
}
