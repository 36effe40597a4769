package git

import (
	"context"
	"errors"
	"strings"

	"github.com/codexmonitor/gitfacade/internal/vcserr"
)

var (
	authFailureMarkers = []string{
		"authentication failed",
		"could not read username",
		"could not read password",
		"permission denied (publickey",
		"invalid username or password",
		"terminal prompts disabled",
		"the requested url returned error: 401",
		"the requested url returned error: 403",
		"repository not found",
		"host key verification failed",
	}
	networkFailureMarkers = []string{
		"could not resolve host",
		"could not resolve hostname",
		"connection refused",
		"connection timed out",
		"connection reset",
		"operation timed out",
		"network is unreachable",
		"unable to access",
		"failed to connect",
		"early eof",
		"the remote end hung up",
		"rpc failed",
		"ssl",
		"tls",
	}
	conflictMarkers = []string{
		"conflict",
		"automatic merge failed",
		"could not apply",
		"needs merge",
		"you have unmerged paths",
	}
	rejectedMarkers = []string{
		"[rejected]",
		"non-fast-forward",
		"fetch first",
		"updates were rejected",
		"not possible to fast-forward",
		"divergent branches",
	}
	dirtyMarkers = []string{
		"would be overwritten",
		"please commit your changes or stash them",
		"you have unstaged changes",
		"your index contains uncommitted changes",
		"cannot pull with rebase",
	}
	noRemoteMarkers = []string{
		"does not appear to be a git repository",
		"no such remote",
		"no configured push destination",
	}
)

// classify maps a raw git failure to the taxonomy. network marks commands whose
// cancellation or timeout should be reported as a network failure.
func classify(err error, network bool) *vcserr.Error {
	if err == nil {
		return nil
	}
	var typed *vcserr.Error
	if errors.As(err, &typed) {
		return typed
	}

	out := &vcserr.Error{Kind: vcserr.Internal, StateRestored: true, Err: err}
	if errors.Is(err, context.DeadlineExceeded) {
		out.Kind = vcserr.NetworkError
		out.Detail = "timed out"
		if !network {
			out.Kind = vcserr.Internal
		}
		return out
	}
	if errors.Is(err, context.Canceled) {
		out.Detail = "canceled"
		if network {
			out.Kind = vcserr.NetworkError
		}
		return out
	}

	text := strings.ToLower(gitOutput(err))
	switch {
	case containsAny(text, noRemoteMarkers):
		out.Kind = vcserr.NoRemoteConfigured
	case containsAny(text, authFailureMarkers):
		out.Kind = vcserr.AuthenticationFailed
	case containsAny(text, dirtyMarkers):
		out.Kind = vcserr.DirtyWorkingTree
	case containsAny(text, conflictMarkers):
		out.Kind = vcserr.MergeConflict
	case strings.Contains(text, "[remote rejected]"):
		out.Kind = vcserr.MergeConflict
		out.Detail = "remote rejected the push: " + remoteRejection(gitOutput(err))
	case containsAny(text, rejectedMarkers):
		out.Kind = vcserr.MergeConflict
		out.Detail = "remote branch has diverged"
	case strings.Contains(text, "couldn't find remote ref"):
		out.Kind = vcserr.BranchNotFound
	case network && containsAny(text, networkFailureMarkers):
		out.Kind = vcserr.NetworkError
	case strings.Contains(text, "not a git repository"):
		out.Kind = vcserr.InvalidRepository
	case strings.Contains(text, "did not match any file"):
		out.Kind = vcserr.PathNotFound
	}
	if out.Detail == "" {
		out.Detail = firstLine(gitOutput(err))
	}
	return out
}

// isPermanentFailure reports failures that retrying a network command cannot fix.
func isPermanentFailure(err error) bool {
	switch classify(err, true).Kind {
	case vcserr.AuthenticationFailed, vcserr.NoRemoteConfigured, vcserr.MergeConflict, vcserr.BranchNotFound:
		return true
	default:
		return false
	}
}

// remoteRejection returns the reason git prints in parentheses after
// "[remote rejected]", for example "pre-receive hook declined".
func remoteRejection(output string) string {
	for _, line := range strings.Split(output, "\n") {
		idx := strings.Index(line, "[remote rejected]")
		if idx < 0 {
			continue
		}
		rest := line[idx:]
		open, end := strings.Index(rest, "("), strings.LastIndex(rest, ")")
		if open >= 0 && end > open {
			return rest[open+1 : end]
		}
		return strings.TrimSpace(rest)
	}
	return "declined by the server"
}

func containsAny(text string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		return strings.TrimPrefix(strings.TrimPrefix(line, "fatal: "), "error: ")
	}
	return ""
}
