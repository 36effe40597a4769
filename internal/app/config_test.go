package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GITFACADE_CONFIG", "GITFACADE_LOG_LEVEL", "GITFACADE_LOG_FORMAT", "GITFACADE_LISTEN",
		"GITFACADE_GIT", "GITFACADE_MAX_GIT_PROCESSES", "GITFACADE_DISABLE_MUTATION_LOCKING",
		"GITFACADE_GITHUB_TOKEN", "GITHUB_TOKEN", "GITFACADE_GITHUB_BASE_URL",
		"GITFACADE_GITHUB_UPLOAD_URL", "GITFACADE_REMOTE", "GITFACADE_SYNC_STRATEGY",
		"GITFACADE_NETWORK_TIMEOUT", "GITFACADE_DIFF_IGNORE_WHITESPACE",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gitfacade.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}

	if cfg.LogLevel != defaultLogLevel {
		t.Fatalf("expected default log level, got %q", cfg.LogLevel)
	}
	if cfg.LogFormat != defaultLogFormat {
		t.Fatalf("expected default log format, got %q", cfg.LogFormat)
	}
	if cfg.ListenAddr != defaultListenAddr {
		t.Fatalf("expected default listen address, got %q", cfg.ListenAddr)
	}
	if len(cfg.Workspaces) != 0 {
		t.Fatalf("expected no workspaces without a config file, got %d", len(cfg.Workspaces))
	}
}

func TestLoadConfigTokenFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITHUB_TOKEN", " fallback ")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}
	if cfg.Settings.GitHubToken != "fallback" {
		t.Fatalf("expected GITHUB_TOKEN fallback, got %q", cfg.Settings.GitHubToken)
	}

	t.Setenv("GITFACADE_GITHUB_TOKEN", "primary")
	cfg, err = LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}
	if cfg.Settings.GitHubToken != "primary" {
		t.Fatalf("expected GITFACADE_GITHUB_TOKEN to win, got %q", cfg.Settings.GitHubToken)
	}
}

func TestLoadConfigEnterpriseURLMismatch(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITFACADE_GITHUB_BASE_URL", "https://github.example.com/api/v3")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error when only base URL is provided")
	}
}

func TestLoadConfigRejectsUnknownLogFormat(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITFACADE_LOG_FORMAT", "xml")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for unsupported log format")
	}
}

func TestLoadConfigRejectsUnknownSyncStrategy(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITFACADE_SYNC_STRATEGY", "squash")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for unsupported sync strategy")
	}
}

func TestLoadConfigParsesNumbersAndDurations(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITFACADE_MAX_GIT_PROCESSES", "3")
	t.Setenv("GITFACADE_NETWORK_TIMEOUT", "45s")
	t.Setenv("GITFACADE_DIFF_IGNORE_WHITESPACE", "true")
	t.Setenv("GITFACADE_DISABLE_MUTATION_LOCKING", "1")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}
	if cfg.MaxGitProcesses != 3 {
		t.Fatalf("expected 3 git processes, got %d", cfg.MaxGitProcesses)
	}
	if cfg.Settings.NetworkTimeout != 45*time.Second {
		t.Fatalf("expected 45s timeout, got %s", cfg.Settings.NetworkTimeout)
	}
	if !cfg.Settings.DiffIgnoreWhitespace {
		t.Fatalf("expected whitespace to be ignored")
	}
	if !cfg.DisableMutationLocking {
		t.Fatalf("expected mutation locking to be disabled")
	}

	t.Setenv("GITFACADE_MAX_GIT_PROCESSES", "many")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for invalid process count")
	}
}

func TestLoadConfigReadsFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
settings:
  github_token: file-token
  remote_name: upstream
  default_log_limit: 10
  network_timeout: 30s
  sync_strategy: merge
workspaces:
  web:
    name: Web
    path: /src/web
  api:
    name: API
    path: /src/mono
    settings:
      git_root: services/api
`)
	t.Setenv("GITFACADE_CONFIG", path)
	t.Setenv("GITFACADE_REMOTE", "fork")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}

	if cfg.Settings.GitHubToken != "file-token" {
		t.Fatalf("expected token from file, got %q", cfg.Settings.GitHubToken)
	}
	if cfg.Settings.RemoteName != "fork" {
		t.Fatalf("expected environment to override the remote, got %q", cfg.Settings.RemoteName)
	}
	if cfg.Settings.DefaultLogLimit != 10 || cfg.Settings.NetworkTimeout != 30*time.Second {
		t.Fatalf("unexpected settings from file: %+v", cfg.Settings)
	}
	if cfg.Settings.SyncStrategy != "merge" {
		t.Fatalf("expected merge strategy, got %q", cfg.Settings.SyncStrategy)
	}

	if len(cfg.Workspaces) != 2 {
		t.Fatalf("expected 2 workspaces, got %d", len(cfg.Workspaces))
	}
	if cfg.Workspaces[0].ID != "api" || cfg.Workspaces[1].ID != "web" {
		t.Fatalf("expected workspaces sorted by id, got %q and %q", cfg.Workspaces[0].ID, cfg.Workspaces[1].ID)
	}
	if got := cfg.Workspaces[0].RepoPath(); got != filepath.Join("/src/mono", "services/api") {
		t.Fatalf("unexpected repository path %q", got)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITFACADE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadFileRejectsInvalidYAML(t *testing.T) {
	path := writeConfig(t, "workspaces: [unterminated\n")

	if _, err := LoadFile(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadConfigFromOverridesEnvironmentPath(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITFACADE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	path := writeConfig(t, "settings:\n  default_log_limit: 5\n")

	cfg, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}
	if cfg.ConfigFile != path || cfg.Settings.DefaultLogLimit != 5 {
		t.Fatalf("expected explicit config file to be used, got %+v", cfg)
	}
}
