package gh

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/codexmonitor/gitfacade/internal/vcserr"
)

const publicHost = "github.com"

// EnterpriseHost returns the host name of a GitHub Enterprise base URL, or "" when
// baseURL is empty or unparsable.
func EnterpriseHost(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return ""
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// ParseRemote extracts owner/repo from a git remote URL. Only github.com and, when set,
// the enterprise host are accepted. Supported forms:
//
//	https://github.com/owner/repo(.git)
//	ssh://git@github.com[:port]/owner/repo(.git)
//	git@github.com:owner/repo(.git)
func ParseRemote(remoteURL, enterpriseHost string) (Repo, error) {
	raw := strings.TrimSpace(remoteURL)
	host, path, err := splitRemote(raw)
	if err != nil {
		return Repo{}, vcserr.Newf(vcserr.UnsupportedRemote, "", "%v", err)
	}

	if !isGitHubHost(host, enterpriseHost) {
		return Repo{}, vcserr.Newf(vcserr.UnsupportedRemote, "", "remote host %q is not a GitHub host", host)
	}

	path = strings.Trim(path, "/")
	path = strings.TrimSuffix(path, ".git")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Repo{}, vcserr.Newf(vcserr.UnsupportedRemote, "", "remote path %q is not owner/repo", path)
	}
	return Repo{Owner: parts[0], Name: parts[1]}, nil
}

func splitRemote(raw string) (string, string, error) {
	if raw == "" {
		return "", "", fmt.Errorf("remote url is empty")
	}
	if strings.Contains(raw, "://") {
		parsed, err := url.Parse(raw)
		if err != nil {
			return "", "", fmt.Errorf("parse remote url: %w", err)
		}
		if parsed.Hostname() == "" {
			return "", "", fmt.Errorf("remote url %q has no host", raw)
		}
		return strings.ToLower(parsed.Hostname()), parsed.Path, nil
	}

	// scp-like syntax: [user@]host:path
	colon := strings.Index(raw, ":")
	if colon <= 0 || strings.Contains(raw[:colon], "/") {
		return "", "", fmt.Errorf("remote %q is not a network url", raw)
	}
	host := raw[:colon]
	if at := strings.LastIndex(host, "@"); at >= 0 {
		host = host[at+1:]
	}
	if host == "" {
		return "", "", fmt.Errorf("remote url %q has no host", raw)
	}
	return strings.ToLower(host), raw[colon+1:], nil
}

func isGitHubHost(host, enterpriseHost string) bool {
	host = strings.ToLower(host)
	if host == publicHost || host == "www."+publicHost {
		return true
	}
	return enterpriseHost != "" && host == strings.ToLower(enterpriseHost)
}
