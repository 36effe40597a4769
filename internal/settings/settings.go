// Package settings holds the application-wide settings read by the façade.
package settings

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	DefaultRemoteName      = "origin"
	DefaultLogLimit        = 40
	DefaultMaxDiffBytes    = 200000
	DefaultMaxHostingItems = 100
	DefaultNetworkTimeout  = 2 * time.Minute
	DefaultSyncStrategy    = "rebase"
)

// AppSettings is the host-owned configuration consulted on every operation.
type AppSettings struct {
	GitHubToken          string        `yaml:"github_token" json:"-"`
	GitHubBaseURL        string        `yaml:"github_base_url" json:"githubBaseUrl,omitempty"`
	GitHubUploadURL      string        `yaml:"github_upload_url" json:"githubUploadUrl,omitempty"`
	RemoteName           string        `yaml:"remote_name" json:"remoteName"`
	DefaultLogLimit      int           `yaml:"default_log_limit" json:"defaultLogLimit"`
	MaxDiffBytes         int           `yaml:"max_diff_bytes" json:"maxDiffBytes"`
	DiffIgnoreWhitespace bool          `yaml:"diff_ignore_whitespace" json:"diffIgnoreWhitespace"`
	MaxHostingItems      int           `yaml:"max_hosting_items" json:"maxHostingItems"`
	NetworkTimeout       time.Duration `yaml:"network_timeout" json:"networkTimeout"`
	SyncStrategy         string        `yaml:"sync_strategy" json:"syncStrategy"`
}

// Defaults returns settings with every default applied.
func Defaults() AppSettings {
	return AppSettings{}.WithDefaults()
}

// WithDefaults fills zero values. MaxDiffBytes is left alone when negative so callers can
// disable truncation with -1; it is normalized to 0 (unlimited).
func (s AppSettings) WithDefaults() AppSettings {
	s.GitHubToken = strings.TrimSpace(s.GitHubToken)
	s.RemoteName = strings.TrimSpace(s.RemoteName)
	if s.RemoteName == "" {
		s.RemoteName = DefaultRemoteName
	}
	if s.DefaultLogLimit <= 0 {
		s.DefaultLogLimit = DefaultLogLimit
	}
	switch {
	case s.MaxDiffBytes < 0:
		s.MaxDiffBytes = 0
	case s.MaxDiffBytes == 0:
		s.MaxDiffBytes = DefaultMaxDiffBytes
	}
	if s.MaxHostingItems <= 0 {
		s.MaxHostingItems = DefaultMaxHostingItems
	}
	if s.NetworkTimeout <= 0 {
		s.NetworkTimeout = DefaultNetworkTimeout
	}
	s.SyncStrategy = strings.ToLower(strings.TrimSpace(s.SyncStrategy))
	if s.SyncStrategy == "" {
		s.SyncStrategy = DefaultSyncStrategy
	}
	return s
}

// Validate reports settings that cannot be honored.
func (s AppSettings) Validate() error {
	switch s.SyncStrategy {
	case "", "rebase", "merge":
	default:
		return fmt.Errorf("unsupported sync strategy %q (expected rebase or merge)", s.SyncStrategy)
	}
	if (s.GitHubBaseURL == "") != (s.GitHubUploadURL == "") {
		return fmt.Errorf("github base url and upload url must both be set for GitHub Enterprise")
	}
	return nil
}

// Store guards the current settings. Get hands out copies.
type Store struct {
	mu       sync.RWMutex
	settings AppSettings
}

// NewStore returns a store seeded with s after defaults are applied.
func NewStore(s AppSettings) *Store {
	return &Store{settings: s.WithDefaults()}
}

// Get returns a copy of the current settings.
func (s *Store) Get() AppSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Set validates and replaces the current settings.
func (s *Store) Set(next AppSettings) error {
	next = next.WithDefaults()
	if err := next.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = next
	return nil
}
