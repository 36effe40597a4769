package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/codexmonitor/gitfacade/internal/workspace"
)

// PathRequest names one file relative to the repository root.
type PathRequest struct {
	Path string `json:"path" binding:"required"`
}

// BranchRequest names a local branch.
type BranchRequest struct {
	Name string `json:"name" binding:"required"`
}

// CommitRequest carries the commit message. Blank messages are rejected by the façade
// so clients get EMPTY_MESSAGE rather than a binding error.
type CommitRequest struct {
	Message string `json:"message"`
}

// RemoteResponse reports the remote URL, if any.
type RemoteResponse struct {
	URL        string `json:"url,omitempty"`
	Configured bool   `json:"configured"`
}

func (s *Server) listWorkspaces(c *gin.Context) {
	entries := []workspace.Entry{}
	if s.workspaces != nil {
		entries = append(entries, s.workspaces.List()...)
	}
	c.JSON(http.StatusOK, gin.H{"workspaces": entries, "count": len(entries)})
}

func (s *Server) status(c *gin.Context) {
	status, err := s.svc.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) diffs(c *gin.Context) {
	diffs, err := s.svc.Diffs(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, diffs)
}

func (s *Server) history(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		badRequest(c, err)
		return
	}
	log, err := s.svc.Log(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, log)
}

func (s *Server) commitDiff(c *gin.Context) {
	diffs, err := s.svc.CommitDiff(c.Request.Context(), c.Param("id"), c.Param("sha"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, diffs)
}

func (s *Server) remoteURL(c *gin.Context) {
	url, ok, err := s.svc.RemoteURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, RemoteResponse{URL: url, Configured: ok})
}

func (s *Server) gitRoots(c *gin.Context) {
	depth, err := intQuery(c, "depth")
	if err != nil {
		badRequest(c, err)
		return
	}
	roots, err := s.svc.GitRoots(c.Request.Context(), c.Param("id"), depth)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roots": roots})
}

func (s *Server) branches(c *gin.Context) {
	branches, err := s.svc.Branches(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, branches)
}

func (s *Server) createBranch(c *gin.Context) {
	var req BranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.svc.CreateBranch(c.Request.Context(), c.Param("id"), req.Name); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (s *Server) checkoutBranch(c *gin.Context) {
	var req BranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.respond(c, s.svc.CheckoutBranch(c.Request.Context(), c.Param("id"), req.Name))
}

func (s *Server) stageFile(c *gin.Context) {
	var req PathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.respond(c, s.svc.StageFile(c.Request.Context(), c.Param("id"), req.Path))
}

func (s *Server) unstageFile(c *gin.Context) {
	var req PathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.respond(c, s.svc.UnstageFile(c.Request.Context(), c.Param("id"), req.Path))
}

func (s *Server) revertFile(c *gin.Context) {
	var req PathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.respond(c, s.svc.RevertFile(c.Request.Context(), c.Param("id"), req.Path))
}

func (s *Server) stageAll(c *gin.Context) {
	s.respond(c, s.svc.StageAll(c.Request.Context(), c.Param("id")))
}

func (s *Server) revertAll(c *gin.Context) {
	s.respond(c, s.svc.RevertAll(c.Request.Context(), c.Param("id")))
}

func (s *Server) commit(c *gin.Context) {
	var req CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.respond(c, s.svc.Commit(c.Request.Context(), c.Param("id"), req.Message))
}

func (s *Server) push(c *gin.Context) {
	s.respond(c, s.svc.Push(c.Request.Context(), c.Param("id")))
}

func (s *Server) pull(c *gin.Context) {
	s.respond(c, s.svc.Pull(c.Request.Context(), c.Param("id")))
}

func (s *Server) fetch(c *gin.Context) {
	s.respond(c, s.svc.Fetch(c.Request.Context(), c.Param("id")))
}

func (s *Server) sync(c *gin.Context) {
	s.respond(c, s.svc.Sync(c.Request.Context(), c.Param("id")))
}

func (s *Server) issues(c *gin.Context) {
	issues, err := s.svc.Issues(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, issues)
}

func (s *Server) pullRequests(c *gin.Context) {
	prs, err := s.svc.PullRequests(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, prs)
}

func (s *Server) pullRequestDiff(c *gin.Context) {
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil {
		badRequest(c, fmt.Errorf("invalid pull request number %q", c.Param("number")))
		return
	}
	files, err := s.svc.PullRequestDiff(c.Request.Context(), c.Param("id"), number)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, files)
}

func (s *Server) pullRequestComments(c *gin.Context) {
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil {
		badRequest(c, fmt.Errorf("invalid pull request number %q", c.Param("number")))
		return
	}
	comments, err := s.svc.PullRequestComments(c.Request.Context(), c.Param("id"), number)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, comments)
}

// respond finishes an operation without a result.
func (s *Server) respond(c *gin.Context, err error) {
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return n, nil
}
