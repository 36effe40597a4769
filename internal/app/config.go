package app

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codexmonitor/gitfacade/internal/settings"
	"github.com/codexmonitor/gitfacade/internal/workspace"
)

const (
	defaultLogLevel   = "info"
	defaultLogFormat  = "text"
	defaultListenAddr = "127.0.0.1:8787"
)

// Config captures runtime options sourced from environment variables and the optional
// config file.
type Config struct {
	ConfigFile             string
	LogLevel               string
	LogFormat              string
	ListenAddr             string
	GitBinary              string
	MaxGitProcesses        int
	DisableMutationLocking bool

	Settings   settings.AppSettings
	Workspaces []workspace.Entry
}

// FileConfig is the layout of the YAML config file.
type FileConfig struct {
	Settings   settings.AppSettings       `yaml:"settings"`
	Workspaces map[string]workspace.Entry `yaml:"workspaces"`
}

// LoadConfig reads GITFACADE_* variables, loads the config file they point at, applies
// defaults and performs validation. Environment values win over the file.
func LoadConfig() (Config, error) {
	return LoadConfigFrom("")
}

// LoadConfigFrom is LoadConfig with the config file path taken from configFile when it
// is not empty.
func LoadConfigFrom(configFile string) (Config, error) {
	cfg := Config{
		ConfigFile: envOrDefault("GITFACADE_CONFIG", ""),
		LogLevel:   strings.ToLower(envOrDefault("GITFACADE_LOG_LEVEL", defaultLogLevel)),
		LogFormat:  strings.ToLower(envOrDefault("GITFACADE_LOG_FORMAT", defaultLogFormat)),
		ListenAddr: envOrDefault("GITFACADE_LISTEN", defaultListenAddr),
		GitBinary:  strings.TrimSpace(os.Getenv("GITFACADE_GIT")),
	}
	if path := strings.TrimSpace(configFile); path != "" {
		cfg.ConfigFile = path
	}

	if raw := strings.TrimSpace(os.Getenv("GITFACADE_MAX_GIT_PROCESSES")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("parse GITFACADE_MAX_GIT_PROCESSES: invalid value %q", raw)
		}
		cfg.MaxGitProcesses = n
	}

	if raw := strings.TrimSpace(os.Getenv("GITFACADE_DISABLE_MUTATION_LOCKING")); raw != "" {
		disable, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse GITFACADE_DISABLE_MUTATION_LOCKING: %w", err)
		}
		cfg.DisableMutationLocking = disable
	}

	if cfg.ConfigFile != "" {
		file, err := LoadFile(cfg.ConfigFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Settings = file.Settings
		cfg.Workspaces = file.Entries()
	}

	resolved, err := applySettingsEnv(cfg.Settings)
	if err != nil {
		return Config{}, err
	}
	cfg.Settings = resolved

	supportedFormats := map[string]struct{}{"text": {}, "json": {}}
	if _, ok := supportedFormats[cfg.LogFormat]; !ok {
		return Config{}, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return cfg, nil
}

// LoadFile parses the YAML config file at path.
func LoadFile(path string) (FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var file FileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return FileConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return file, nil
}

// Entries returns the configured workspaces sorted by id, with ids taken from the
// map keys.
func (f FileConfig) Entries() []workspace.Entry {
	entries := make([]workspace.Entry, 0, len(f.Workspaces))
	for id, entry := range f.Workspaces {
		entry.ID = id
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}

// applySettingsEnv overlays environment variables on s and validates the result.
func applySettingsEnv(s settings.AppSettings) (settings.AppSettings, error) {
	if token := strings.TrimSpace(os.Getenv("GITFACADE_GITHUB_TOKEN")); token != "" {
		s.GitHubToken = token
	} else if s.GitHubToken == "" {
		s.GitHubToken = strings.TrimSpace(os.Getenv("GITHUB_TOKEN"))
	}

	s.GitHubBaseURL = envOrDefault("GITFACADE_GITHUB_BASE_URL", s.GitHubBaseURL)
	s.GitHubUploadURL = envOrDefault("GITFACADE_GITHUB_UPLOAD_URL", s.GitHubUploadURL)
	s.RemoteName = envOrDefault("GITFACADE_REMOTE", s.RemoteName)
	s.SyncStrategy = strings.ToLower(envOrDefault("GITFACADE_SYNC_STRATEGY", s.SyncStrategy))

	if raw := strings.TrimSpace(os.Getenv("GITFACADE_NETWORK_TIMEOUT")); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil {
			return settings.AppSettings{}, fmt.Errorf("parse GITFACADE_NETWORK_TIMEOUT: %w", err)
		}
		s.NetworkTimeout = timeout
	}

	if raw := strings.TrimSpace(os.Getenv("GITFACADE_DIFF_IGNORE_WHITESPACE")); raw != "" {
		ignore, err := strconv.ParseBool(raw)
		if err != nil {
			return settings.AppSettings{}, fmt.Errorf("parse GITFACADE_DIFF_IGNORE_WHITESPACE: %w", err)
		}
		s.DiffIgnoreWhitespace = ignore
	}

	if err := s.Validate(); err != nil {
		if (s.GitHubBaseURL == "") != (s.GitHubUploadURL == "") {
			return settings.AppSettings{}, errors.New("GITFACADE_GITHUB_BASE_URL and GITFACADE_GITHUB_UPLOAD_URL must both be set for GitHub Enterprise")
		}
		return settings.AppSettings{}, err
	}
	return s, nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
