// Package models defines the result types returned by the façade. JSON tags follow the
// camelCase wire format consumed by front ends.
package models

import "time"

// FileChange is the kind of change recorded for one path.
type FileChange string

const (
	FileAdded     FileChange = "added"
	FileModified  FileChange = "modified"
	FileDeleted   FileChange = "deleted"
	FileRenamed   FileChange = "renamed"
	FileCopied    FileChange = "copied"
	FileUntracked FileChange = "untracked"
	FileConflict  FileChange = "conflicted"
)

// GitFileStatus is one entry of the working-tree status.
type GitFileStatus struct {
	Path      string     `json:"path"`
	OldPath   string     `json:"oldPath,omitempty"`
	Status    FileChange `json:"status"`
	Index     string     `json:"index"`
	Worktree  string     `json:"worktree"`
	Staged    bool       `json:"staged"`
	Unstaged  bool       `json:"unstaged"`
	Untracked bool       `json:"untracked"`
	Additions int        `json:"additions"`
	Deletions int        `json:"deletions"`
}

// GitStatus is the structured working-tree state of a workspace repository.
type GitStatus struct {
	BranchName     string          `json:"branchName"`
	Upstream       string          `json:"upstream,omitempty"`
	Ahead          int             `json:"ahead"`
	Behind         int             `json:"behind"`
	Files          []GitFileStatus `json:"files"`
	StagedCount    int             `json:"stagedCount"`
	UnstagedCount  int             `json:"unstagedCount"`
	UntrackedCount int             `json:"untrackedCount"`
	TotalAdditions int             `json:"totalAdditions"`
	TotalDeletions int             `json:"totalDeletions"`
	Clean          bool            `json:"clean"`
}

// GitFileDiff is one changed path in the working tree.
type GitFileDiff struct {
	Path      string     `json:"path"`
	OldPath   string     `json:"oldPath,omitempty"`
	Status    FileChange `json:"status"`
	Diff      string     `json:"diff"`
	Binary    bool       `json:"binary,omitempty"`
	Truncated bool       `json:"truncated,omitempty"`
}

// GitCommitDiff is one file's diff within a commit.
type GitCommitDiff struct {
	SHA       string     `json:"sha"`
	Path      string     `json:"path"`
	OldPath   string     `json:"oldPath,omitempty"`
	Status    FileChange `json:"status"`
	Diff      string     `json:"diff"`
	Binary    bool       `json:"binary,omitempty"`
	Truncated bool       `json:"truncated,omitempty"`
}

// GitLogEntry summarizes one commit.
type GitLogEntry struct {
	SHA         string    `json:"sha"`
	Summary     string    `json:"summary"`
	Message     string    `json:"message"`
	Author      string    `json:"author"`
	AuthorEmail string    `json:"authorEmail"`
	Timestamp   time.Time `json:"timestamp"`
}

// GitLogResponse is the commit history of the current branch, most recent first.
type GitLogResponse struct {
	Total    int           `json:"total"`
	Entries  []GitLogEntry `json:"entries"`
	Upstream string        `json:"upstream,omitempty"`
	Ahead    int           `json:"ahead"`
	Behind   int           `json:"behind"`
}

// BranchInfo describes a local branch.
type BranchInfo struct {
	Name       string    `json:"name"`
	Current    bool      `json:"current"`
	LastCommit time.Time `json:"lastCommit"`
}

// BranchList lists local branches, newest tip first.
type BranchList struct {
	Current  string       `json:"current"`
	Branches []BranchInfo `json:"branches"`
}

// GitHubIssue is an issue summary.
type GitHubIssue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Author    string    `json:"author"`
	Labels    []string  `json:"labels"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// GitHubIssuesResponse is the merged list of open issues.
type GitHubIssuesResponse struct {
	Total  int           `json:"total"`
	Issues []GitHubIssue `json:"issues"`
}

// GitHubPullRequest is a pull request summary.
type GitHubPullRequest struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Body      string    `json:"body"`
	Author    string    `json:"author"`
	HeadRef   string    `json:"headRefName"`
	BaseRef   string    `json:"baseRefName"`
	IsDraft   bool      `json:"isDraft"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// GitHubPullRequestsResponse is the merged list of open pull requests.
type GitHubPullRequestsResponse struct {
	Total        int                 `json:"total"`
	PullRequests []GitHubPullRequest `json:"pullRequests"`
}

// GitHubPullRequestDiff is one file of a pull request.
type GitHubPullRequestDiff struct {
	Path         string `json:"path"`
	PreviousPath string `json:"previousPath,omitempty"`
	Status       string `json:"status"`
	Additions    int    `json:"additions"`
	Deletions    int    `json:"deletions"`
	Diff         string `json:"diff"`
}

// GitHubPullRequestComment is one conversation comment on a pull request.
type GitHubPullRequestComment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	Author    string    `json:"author"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}
