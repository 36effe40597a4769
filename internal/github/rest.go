package gh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	github "github.com/google/go-github/v55/github"
	"golang.org/x/oauth2"

	"github.com/codexmonitor/gitfacade/internal/models"
	"github.com/codexmonitor/gitfacade/internal/vcserr"
)

const (
	defaultUserAgent = "gitfacade"
	maxPageSize      = 100
)

// NewRESTFactory returns a GitHub client factory backed by the go-github REST client. When
// base and upload URLs are provided, the factory targets a GitHub Enterprise instance.
func NewRESTFactory(baseURL, uploadURL string) Factory {
	return &restFactory{
		userAgent: defaultUserAgent,
		baseURL:   strings.TrimSpace(baseURL),
		uploadURL: strings.TrimSpace(uploadURL),
	}
}

type restFactory struct {
	userAgent string
	baseURL   string
	uploadURL string
}

type restClient struct {
	client *github.Client
}

func (f *restFactory) New(ctx context.Context, token string) (Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, vcserr.Newf(vcserr.MissingCredentials, "", "github token is required")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)

	if f.baseURL == "" && f.uploadURL != "" {
		return nil, fmt.Errorf("github upload url cannot be set without base url")
	}

	var ghClient *github.Client
	if f.baseURL != "" {
		baseURLNormalized, err := normalizeGitHubURL(f.baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}

		uploadURL := f.uploadURL
		if uploadURL == "" {
			return nil, fmt.Errorf("github upload url must be provided when base url is set")
		}

		uploadURLNormalized, err := normalizeGitHubURL(uploadURL)
		if err != nil {
			return nil, fmt.Errorf("parse github upload url: %w", err)
		}

		ghClient, err = github.NewClient(tc).WithEnterpriseURLs(baseURLNormalized, uploadURLNormalized)
		if err != nil {
			return nil, fmt.Errorf("construct enterprise github client: %w", err)
		}
	} else {
		ghClient = github.NewClient(tc)
	}

	if f.userAgent != "" {
		ghClient.UserAgent = f.userAgent
	}

	return &restClient{client: ghClient}, nil
}

func normalizeGitHubURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url cannot be empty")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	if parsed.Scheme == "" {
		return "", fmt.Errorf("url must include scheme (e.g. https://)")
	}

	if parsed.Host == "" {
		return "", fmt.Errorf("url must include host")
	}

	if parsed.Path == "" {
		parsed.Path = "/"
	} else if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}

	parsed.RawQuery = ""
	parsed.Fragment = ""

	return parsed.String(), nil
}

func pageSize(max int) int {
	if max <= 0 || max > maxPageSize {
		return maxPageSize
	}
	return max
}

func (c *restClient) ListIssues(ctx context.Context, repo Repo, max int) ([]models.GitHubIssue, error) {
	opts := &github.IssueListByRepoOptions{
		State:     "open",
		Sort:      "updated",
		Direction: "desc",
		ListOptions: github.ListOptions{
			PerPage: pageSize(max),
		},
	}

	results := []models.GitHubIssue{}
	for {
		issues, resp, err := c.client.Issues.ListByRepo(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return nil, fmt.Errorf("list issues: %w", classifyGitHubError(err))
		}

		for _, issue := range issues {
			// the issues endpoint also returns pull requests
			if issue == nil || issue.IsPullRequest() {
				continue
			}
			results = append(results, models.GitHubIssue{
				Number:    issue.GetNumber(),
				Title:     issue.GetTitle(),
				URL:       issue.GetHTMLURL(),
				Author:    issue.GetUser().GetLogin(),
				Labels:    labelNames(issue.Labels),
				UpdatedAt: issue.GetUpdatedAt().Time,
			})
			if max > 0 && len(results) == max {
				return results, nil
			}
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return results, nil
}

func (c *restClient) ListPullRequests(ctx context.Context, repo Repo, max int) ([]models.GitHubPullRequest, error) {
	opts := &github.PullRequestListOptions{
		State:     "open",
		Sort:      "updated",
		Direction: "desc",
		ListOptions: github.ListOptions{
			PerPage: pageSize(max),
		},
	}

	results := []models.GitHubPullRequest{}
	for {
		prs, resp, err := c.client.PullRequests.List(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return nil, fmt.Errorf("list pull requests: %w", classifyGitHubError(err))
		}

		for _, pr := range prs {
			if pr == nil {
				continue
			}
			result := models.GitHubPullRequest{
				Number:    pr.GetNumber(),
				Title:     pr.GetTitle(),
				URL:       pr.GetHTMLURL(),
				Body:      pr.GetBody(),
				Author:    pr.GetUser().GetLogin(),
				IsDraft:   pr.GetDraft(),
				CreatedAt: pr.GetCreatedAt().Time,
				UpdatedAt: pr.GetUpdatedAt().Time,
			}
			if head := pr.GetHead(); head != nil {
				result.HeadRef = head.GetRef()
			}
			if base := pr.GetBase(); base != nil {
				result.BaseRef = base.GetRef()
			}
			results = append(results, result)
			if max > 0 && len(results) == max {
				return results, nil
			}
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return results, nil
}

func (c *restClient) PullRequestFiles(ctx context.Context, repo Repo, number int) ([]models.GitHubPullRequestDiff, error) {
	opts := &github.ListOptions{PerPage: maxPageSize}

	results := []models.GitHubPullRequestDiff{}
	for {
		files, resp, err := c.client.PullRequests.ListFiles(ctx, repo.Owner, repo.Name, number, opts)
		if err != nil {
			return nil, fmt.Errorf("list pull request files: %w", classifyGitHubError(err))
		}

		for _, file := range files {
			if file == nil {
				continue
			}
			results = append(results, models.GitHubPullRequestDiff{
				Path:         file.GetFilename(),
				PreviousPath: file.GetPreviousFilename(),
				Status:       file.GetStatus(),
				Additions:    file.GetAdditions(),
				Deletions:    file.GetDeletions(),
				Diff:         file.GetPatch(),
			})
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return results, nil
}

// PullRequestComments lists the conversation of a pull request. Issue numbers are
// rejected so the result matches PullRequestFiles for the same number.
func (c *restClient) PullRequestComments(ctx context.Context, repo Repo, number int) ([]models.GitHubPullRequestComment, error) {
	if _, _, err := c.client.PullRequests.Get(ctx, repo.Owner, repo.Name, number); err != nil {
		return nil, fmt.Errorf("get pull request: %w", classifyGitHubError(err))
	}

	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: maxPageSize}}

	results := []models.GitHubPullRequestComment{}
	for {
		comments, resp, err := c.client.Issues.ListComments(ctx, repo.Owner, repo.Name, number, opts)
		if err != nil {
			return nil, fmt.Errorf("list comments: %w", classifyGitHubError(err))
		}

		for _, comment := range comments {
			if comment == nil {
				continue
			}
			results = append(results, models.GitHubPullRequestComment{
				ID:        comment.GetID(),
				Body:      comment.GetBody(),
				Author:    comment.GetUser().GetLogin(),
				URL:       comment.GetHTMLURL(),
				CreatedAt: comment.GetCreatedAt().Time,
			})
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return results, nil
}

func labelNames(labels []*github.Label) []string {
	names := make([]string, 0, len(labels))
	for _, label := range labels {
		if label == nil {
			continue
		}
		if name := label.GetName(); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// classifyGitHubError maps provider failures onto the façade's error kinds.
func classifyGitHubError(err error) error {
	if err == nil {
		return nil
	}

	out := vcserr.New(vcserr.Internal, "", err)
	out.Retryable = isRetryableGitHubError(err)

	var rateLimitErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	var acceptedErr *github.AcceptedError
	var respErr *github.ErrorResponse
	var netErr net.Error

	switch {
	case errors.As(err, &rateLimitErr):
		out.Kind = vcserr.RateLimited
		out.Detail = fmt.Sprintf("rate limit resets at %s", rateLimitErr.Rate.Reset.Time.Format("15:04:05 MST"))
	case errors.As(err, &abuseErr):
		out.Kind = vcserr.RateLimited
		out.Detail = "secondary rate limit exceeded"
	case errors.As(err, &acceptedErr):
		out.Kind = vcserr.NetworkError
		out.Detail = "request accepted but not ready yet"
	case errors.As(err, &respErr) && respErr.Response != nil:
		switch code := respErr.Response.StatusCode; {
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			out.Kind = vcserr.AuthenticationFailed
		case code == http.StatusNotFound:
			out.Kind = vcserr.NotFound
		case code == http.StatusTooManyRequests:
			out.Kind = vcserr.RateLimited
		case code >= 500 && code <= 599:
			out.Kind = vcserr.NetworkError
		}
		out.Detail = respErr.Message
	case errors.Is(err, context.DeadlineExceeded):
		out.Kind = vcserr.NetworkError
		out.Detail = "timed out"
	case errors.Is(err, context.Canceled):
		out.Kind = vcserr.NetworkError
		out.Detail = "canceled"
	case errors.As(err, &netErr):
		out.Kind = vcserr.NetworkError
	}
	return out
}

func isRetryableGitHubError(err error) bool {
	if err == nil {
		return false
	}

	var rateLimitErr *github.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}

	var acceptedErr *github.AcceptedError
	if errors.As(err, &acceptedErr) {
		return true
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) {
		if respErr.Response != nil {
			code := respErr.Response.StatusCode
			if code == http.StatusTooManyRequests || (code >= 500 && code <= 599) {
				return true
			}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true
		}
	}

	return false
}
