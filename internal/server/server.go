// Package server exposes the façade catalog over HTTP for remote backend mode.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codexmonitor/gitfacade/internal/facade"
	"github.com/codexmonitor/gitfacade/internal/metrics"
	"github.com/codexmonitor/gitfacade/internal/workspace"
)

const shutdownTimeout = 10 * time.Second

// Workspaces lists the open workspaces.
type Workspaces interface {
	List() []workspace.Entry
}

// Options configures a Server. Only Service is required.
type Options struct {
	Service    facade.Service
	Workspaces Workspaces
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	// Gatherer backs /metrics. The route is not registered when nil.
	Gatherer prometheus.Gatherer
}

// Server serves the façade operations as a JSON API.
type Server struct {
	svc        facade.Service
	workspaces Workspaces
	log        *slog.Logger
	metrics    *metrics.Metrics
	gatherer   prometheus.Gatherer

	router *gin.Engine
}

// New builds the router for opts.
func New(opts Options) (*Server, error) {
	if opts.Service == nil {
		return nil, errors.New("server: service is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{
		svc:        opts.Service,
		workspaces: opts.Workspaces,
		log:        log,
		metrics:    opts.Metrics,
		gatherer:   opts.Gatherer,
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("remote backend listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info("remote backend stopped")
	return nil
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())
	if s.metrics != nil {
		router.Use(s.metrics.GinMiddleware())
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	v1.GET("/workspaces", s.listWorkspaces)

	ws := v1.Group("/workspaces/:id")
	{
		ws.GET("/status", s.status)
		ws.GET("/diffs", s.diffs)
		ws.GET("/log", s.history)
		ws.GET("/commits/:sha/diff", s.commitDiff)
		ws.GET("/remote", s.remoteURL)
		ws.GET("/roots", s.gitRoots)

		ws.GET("/branches", s.branches)
		ws.POST("/branches", s.createBranch)
		ws.POST("/checkout", s.checkoutBranch)

		ws.POST("/stage", s.stageFile)
		ws.POST("/unstage", s.unstageFile)
		ws.POST("/revert", s.revertFile)
		ws.POST("/stage-all", s.stageAll)
		ws.POST("/revert-all", s.revertAll)
		ws.POST("/commit", s.commit)

		ws.POST("/push", s.push)
		ws.POST("/pull", s.pull)
		ws.POST("/fetch", s.fetch)
		ws.POST("/sync", s.sync)
	}

	hosting := ws.Group("/github")
	{
		hosting.GET("/issues", s.issues)
		hosting.GET("/pulls", s.pullRequests)
		hosting.GET("/pulls/:number/diff", s.pullRequestDiff)
		hosting.GET("/pulls/:number/comments", s.pullRequestComments)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: fmt.Sprintf("endpoint not found: %s %s", c.Request.Method, c.Request.URL.Path),
			Code:  codeEndpointNotFound,
		})
	})
	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request handled",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
