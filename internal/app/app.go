package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/codexmonitor/gitfacade/internal/facade"
	"github.com/codexmonitor/gitfacade/internal/git"
	gh "github.com/codexmonitor/gitfacade/internal/github"
	"github.com/codexmonitor/gitfacade/internal/metrics"
	"github.com/codexmonitor/gitfacade/internal/server"
	"github.com/codexmonitor/gitfacade/internal/settings"
	"github.com/codexmonitor/gitfacade/internal/watch"
	"github.com/codexmonitor/gitfacade/internal/workspace"
)

// LocalWorkspaceID is the id given to a workspace opened from a path on the command line.
const LocalWorkspaceID = "local"

// Deps overrides the collaborators a Runner would otherwise build itself.
type Deps struct {
	Logger     *slog.Logger
	Executor   git.Executor
	GitHub     gh.Factory
	Capability *facade.Capability
}

// Runner glues together the registry, settings, façade and remote backend.
type Runner struct {
	cfg      Config
	log      *slog.Logger
	registry *workspace.Registry
	store    *settings.Store
	prom     *prometheus.Registry
	metrics  *metrics.Metrics
	svc      facade.Service
}

// NewRunner constructs a Runner with the supplied configuration, logging to stderr.
func NewRunner(cfg Config) (*Runner, error) {
	logger, err := NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return NewRunnerWithDeps(cfg, Deps{Logger: logger})
}

// NewRunnerWithDeps constructs a Runner with injected dependencies.
func NewRunnerWithDeps(cfg Config, deps Deps) (*Runner, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := cfg.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	store := settings.NewStore(cfg.Settings)

	registry := workspace.NewRegistry()
	if err := registry.Replace(cfg.Workspaces); err != nil {
		return nil, fmt.Errorf("load workspaces: %w", err)
	}

	prom := prometheus.NewRegistry()
	prom.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(prom)

	executor := deps.Executor
	if executor == nil {
		shell := git.NewShellExecutor()
		shell.Git = cfg.GitBinary
		shell.MaxProcesses = cfg.MaxGitProcesses
		shell.NetworkTimeout = store.Get().WithDefaults().NetworkTimeout
		executor = shell
	}

	svc, err := facade.New(facade.Deps{
		Registry:   registry,
		Settings:   store,
		Executor:   executor,
		GitHub:     deps.GitHub,
		Capability: deps.Capability,
		Logger:     logger,
		Metrics:    m,
	}, facade.WithMutationLocking(!cfg.DisableMutationLocking))
	if err != nil {
		return nil, fmt.Errorf("create facade: %w", err)
	}

	return &Runner{
		cfg:      cfg,
		log:      logger,
		registry: registry,
		store:    store,
		prom:     prom,
		metrics:  m,
		svc:      svc,
	}, nil
}

// Service returns the façade.
func (r *Runner) Service() facade.Service {
	return r.svc
}

// Registry returns the workspace registry owned by the runner.
func (r *Runner) Registry() *workspace.Registry {
	return r.registry
}

// OpenPath registers dir as the LocalWorkspaceID workspace and returns that id.
func (r *Runner) OpenPath(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}
	if err := r.registry.Open(workspace.Entry{ID: LocalWorkspaceID, Name: filepath.Base(abs), Path: abs}); err != nil {
		return "", err
	}
	return LocalWorkspaceID, nil
}

// Reload re-reads the config file and swaps in its workspaces and settings. Nothing
// changes when the file is invalid.
func (r *Runner) Reload() error {
	if r.cfg.ConfigFile == "" {
		return nil
	}
	file, err := LoadFile(r.cfg.ConfigFile)
	if err != nil {
		return err
	}
	next, err := applySettingsEnv(file.Settings)
	if err != nil {
		return err
	}

	entries := file.Entries()
	if err := r.registry.Replace(entries); err != nil {
		return fmt.Errorf("load workspaces: %w", err)
	}
	if err := r.store.Set(next); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	r.log.Debug("configuration applied", "workspaces", len(entries))
	return nil
}

// Serve runs the remote backend until ctx is done, reloading the config file whenever
// it changes.
func (r *Runner) Serve(ctx context.Context) error {
	srv, err := server.New(server.Options{
		Service:    r.svc,
		Workspaces: r.registry,
		Logger:     r.log,
		Metrics:    r.metrics,
		Gatherer:   r.prom,
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx, r.cfg.ListenAddr)
	})
	if r.cfg.ConfigFile != "" {
		w := watch.New(r.cfg.ConfigFile, r.Reload, watch.WithLogger(r.log))
		g.Go(func() error {
			return w.Run(ctx)
		})
	}

	r.log.Info("starting remote backend", "addr", r.cfg.ListenAddr, "workspaces", len(r.registry.List()))
	return g.Wait()
}
