package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/codexmonitor/gitfacade/internal/vcserr"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Op    string `json:"op,omitempty"`

	// StateRestored is only sent for failures that may have left the repository
	// half-updated.
	StateRestored *bool `json:"stateRestored,omitempty"`
	Retryable     bool  `json:"retryable,omitempty"`
}

const (
	codeInvalidRequest   = "INVALID_REQUEST"
	codeEndpointNotFound = "ENDPOINT_NOT_FOUND"
)

var kindStatus = map[vcserr.Kind]int{
	vcserr.PlatformUnsupported:  http.StatusNotImplemented,
	vcserr.UnknownWorkspace:     http.StatusNotFound,
	vcserr.InvalidRepository:    http.StatusUnprocessableEntity,
	vcserr.PathNotFound:         http.StatusNotFound,
	vcserr.CommitNotFound:       http.StatusNotFound,
	vcserr.BranchExists:         http.StatusConflict,
	vcserr.BranchNotFound:       http.StatusNotFound,
	vcserr.DirtyWorkingTree:     http.StatusConflict,
	vcserr.NothingToCommit:      http.StatusConflict,
	vcserr.EmptyMessage:         http.StatusBadRequest,
	vcserr.NoRemoteConfigured:   http.StatusPreconditionFailed,
	vcserr.AuthenticationFailed: http.StatusUnauthorized,
	vcserr.MergeConflict:        http.StatusConflict,
	vcserr.NetworkError:         http.StatusBadGateway,
	vcserr.MissingCredentials:   http.StatusPreconditionFailed,
	vcserr.RateLimited:          http.StatusTooManyRequests,
	vcserr.NotFound:             http.StatusNotFound,
	vcserr.InvalidArgument:      http.StatusBadRequest,
	vcserr.UnsupportedRemote:    http.StatusUnprocessableEntity,
	vcserr.Internal:             http.StatusInternalServerError,
}

// StatusFor returns the HTTP status used for errors of kind.
func StatusFor(kind vcserr.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// CodeFor returns the machine-readable code for kind, e.g. BRANCH_EXISTS.
func CodeFor(kind vcserr.Kind) string {
	return strings.ToUpper(kind.String())
}

// NewErrorResponse describes err. Errors that are not *vcserr.Error are reported as
// INTERNAL.
func NewErrorResponse(err error) (ErrorResponse, vcserr.Kind) {
	var verr *vcserr.Error
	if !errors.As(err, &verr) {
		verr = vcserr.New(vcserr.Internal, "", err)
	}

	resp := ErrorResponse{
		Error:     verr.Error(),
		Code:      CodeFor(verr.Kind),
		Op:        verr.Op,
		Retryable: verr.Retryable,
	}
	if !verr.StateRestored {
		restored := false
		resp.StateRestored = &restored
	}
	return resp, verr.Kind
}

func (s *Server) writeError(c *gin.Context, err error) {
	resp, kind := NewErrorResponse(err)
	status := StatusFor(kind)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
	}
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error: err.Error(),
		Code:  codeInvalidRequest,
	})
}
