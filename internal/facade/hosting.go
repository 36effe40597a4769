package facade

import (
	"context"

	"github.com/codexmonitor/gitfacade/internal/git"
	gh "github.com/codexmonitor/gitfacade/internal/github"
	"github.com/codexmonitor/gitfacade/internal/models"
	"github.com/codexmonitor/gitfacade/internal/settings"
	"github.com/codexmonitor/gitfacade/internal/vcserr"
)

// hostingClient maps the repository remote to owner/repo and builds a client with the
// configured token.
func (s *gated) hostingClient(ctx context.Context, repo git.Repository, cfg settings.AppSettings) (gh.Client, gh.Repo, error) {
	remoteURL, ok, err := repo.RemoteURL(ctx, cfg.RemoteName)
	if err != nil {
		return nil, gh.Repo{}, err
	}
	if !ok {
		return nil, gh.Repo{}, vcserr.Newf(vcserr.NoRemoteConfigured, "", "repository has no remote")
	}

	target, err := gh.ParseRemote(remoteURL, gh.EnterpriseHost(cfg.GitHubBaseURL))
	if err != nil {
		return nil, gh.Repo{}, err
	}

	if cfg.GitHubToken == "" {
		return nil, gh.Repo{}, vcserr.Newf(vcserr.MissingCredentials, "", "no GitHub token configured")
	}

	factory := s.github
	if factory == nil {
		factory = gh.NewRESTFactory(cfg.GitHubBaseURL, cfg.GitHubUploadURL)
	}
	client, err := factory.New(ctx, cfg.GitHubToken)
	if err != nil {
		return nil, gh.Repo{}, err
	}
	return client, target, nil
}

func checkNumber(number int) error {
	if number <= 0 {
		return vcserr.Newf(vcserr.NotFound, "", "pull request numbers start at 1")
	}
	return nil
}

func (s *gated) Issues(ctx context.Context, workspaceID string) (models.GitHubIssuesResponse, error) {
	return call(ctx, s, opIssues, workspaceID, networkReadOp, errContext{}, func(ctx context.Context, repo git.Repository, cfg settings.AppSettings) (models.GitHubIssuesResponse, error) {
		client, target, err := s.hostingClient(ctx, repo, cfg)
		if err != nil {
			return models.GitHubIssuesResponse{}, err
		}
		issues, err := client.ListIssues(ctx, target, cfg.MaxHostingItems)
		if err != nil {
			return models.GitHubIssuesResponse{}, err
		}
		return models.GitHubIssuesResponse{Total: len(issues), Issues: issues}, nil
	})
}

func (s *gated) PullRequests(ctx context.Context, workspaceID string) (models.GitHubPullRequestsResponse, error) {
	return call(ctx, s, opPullRequests, workspaceID, networkReadOp, errContext{}, func(ctx context.Context, repo git.Repository, cfg settings.AppSettings) (models.GitHubPullRequestsResponse, error) {
		client, target, err := s.hostingClient(ctx, repo, cfg)
		if err != nil {
			return models.GitHubPullRequestsResponse{}, err
		}
		prs, err := client.ListPullRequests(ctx, target, cfg.MaxHostingItems)
		if err != nil {
			return models.GitHubPullRequestsResponse{}, err
		}
		return models.GitHubPullRequestsResponse{Total: len(prs), PullRequests: prs}, nil
	})
}

func (s *gated) PullRequestDiff(ctx context.Context, workspaceID string, number int) ([]models.GitHubPullRequestDiff, error) {
	return call(ctx, s, opPullRequestDiff, workspaceID, networkReadOp, errContext{number: number}, func(ctx context.Context, repo git.Repository, cfg settings.AppSettings) ([]models.GitHubPullRequestDiff, error) {
		if err := checkNumber(number); err != nil {
			return nil, err
		}
		client, target, err := s.hostingClient(ctx, repo, cfg)
		if err != nil {
			return nil, err
		}
		return client.PullRequestFiles(ctx, target, number)
	})
}

func (s *gated) PullRequestComments(ctx context.Context, workspaceID string, number int) ([]models.GitHubPullRequestComment, error) {
	return call(ctx, s, opPullRequestComments, workspaceID, networkReadOp, errContext{number: number}, func(ctx context.Context, repo git.Repository, cfg settings.AppSettings) ([]models.GitHubPullRequestComment, error) {
		if err := checkNumber(number); err != nil {
			return nil, err
		}
		client, target, err := s.hostingClient(ctx, repo, cfg)
		if err != nil {
			return nil, err
		}
		return client.PullRequestComments(ctx, target, number)
	})
}
