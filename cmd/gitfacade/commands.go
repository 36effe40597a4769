package main

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"
	urfavecli "github.com/urfave/cli/v2"

	"github.com/codexmonitor/gitfacade/internal/app"
	"github.com/codexmonitor/gitfacade/internal/facade"
	"github.com/codexmonitor/gitfacade/internal/server"
	"github.com/codexmonitor/gitfacade/internal/vcserr"
)

// operation runs one façade call and returns the value to print, or nil.
type operation func(ctx context.Context, svc facade.Service, id string, c *urfavecli.Context) (any, error)

type okResult struct {
	OK bool `json:"ok"`
}

func newRunner(c *urfavecli.Context) (*app.Runner, error) {
	cfg, err := app.LoadConfigFrom(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if level := c.String("log-level"); level != "" {
		cfg.LogLevel = level
	}
	return app.NewRunner(cfg)
}

func opCommand(name, usage, argsUsage string, flags []urfavecli.Flag, op operation) *urfavecli.Command {
	return &urfavecli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: argsUsage,
		Flags:     flags,
		Action: func(c *urfavecli.Context) error {
			runner, err := newRunner(c)
			if err != nil {
				return err
			}

			id := c.String("workspace")
			if id == "" {
				if id, err = runner.OpenPath(c.String("path")); err != nil {
					return err
				}
			}

			result, err := op(c.Context, runner.Service(), id, c)
			if err != nil {
				if werr := app.WriteError(c.App.ErrWriter, err); werr != nil {
					return werr
				}
				return errReported
			}
			if result == nil {
				result = okResult{OK: true}
			}
			return app.WriteResult(c.App.Writer, c.String("output"), result)
		},
	}
}

func requireArg(c *urfavecli.Context, name string) (string, error) {
	if c.NArg() < 1 || c.Args().First() == "" {
		return "", vcserr.Newf(vcserr.InvalidArgument, c.Command.Name, "missing <%s> argument", name)
	}
	return c.Args().First(), nil
}

func numberArg(c *urfavecli.Context) (int, error) {
	raw, err := requireArg(c, "number")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, vcserr.Newf(vcserr.InvalidArgument, c.Command.Name, "invalid pull request number %q", raw)
	}
	return n, nil
}

func operationCommands() []*urfavecli.Command {
	return []*urfavecli.Command{
		opCommand("status", "Show the working tree status", "", nil,
			func(ctx context.Context, svc facade.Service, id string, _ *urfavecli.Context) (any, error) {
				return svc.Status(ctx, id)
			}),
		opCommand("diffs", "Show per-file working tree diffs", "", nil,
			func(ctx context.Context, svc facade.Service, id string, _ *urfavecli.Context) (any, error) {
				return svc.Diffs(ctx, id)
			}),
		opCommand("log", "Show the commit history of the current branch", "",
			[]urfavecli.Flag{&urfavecli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum number of commits"}},
			func(ctx context.Context, svc facade.Service, id string, c *urfavecli.Context) (any, error) {
				return svc.Log(ctx, id, c.Int("limit"))
			}),
		opCommand("commit-diff", "Show the diff introduced by a commit", "<sha>", nil,
			func(ctx context.Context, svc facade.Service, id string, c *urfavecli.Context) (any, error) {
				sha, err := requireArg(c, "sha")
				if err != nil {
					return nil, err
				}
				return svc.CommitDiff(ctx, id, sha)
			}),
		opCommand("remote", "Show the remote URL", "", nil,
			func(ctx context.Context, svc facade.Service, id string, _ *urfavecli.Context) (any, error) {
				url, ok, err := svc.RemoteURL(ctx, id)
				if err != nil {
					return nil, err
				}
				return server.RemoteResponse{URL: url, Configured: ok}, nil
			}),
		opCommand("branches", "List local branches", "", nil,
			func(ctx context.Context, svc facade.Service, id string, _ *urfavecli.Context) (any, error) {
				return svc.Branches(ctx, id)
			}),
		opCommand("checkout", "Switch to a branch", "<name>", nil,
			func(ctx context.Context, svc facade.Service, id string, c *urfavecli.Context) (any, error) {
				name, err := requireArg(c, "name")
				if err != nil {
					return nil, err
				}
				return nil, svc.CheckoutBranch(ctx, id, name)
			}),
		opCommand("branch", "Create a branch at HEAD and switch to it", "<name>", nil,
			func(ctx context.Context, svc facade.Service, id string, c *urfavecli.Context) (any, error) {
				name, err := requireArg(c, "name")
				if err != nil {
					return nil, err
				}
				return nil, svc.CreateBranch(ctx, id, name)
			}),
		opCommand("stage", "Stage one path", "<path>", nil,
			func(ctx context.Context, svc facade.Service, id string, c *urfavecli.Context) (any, error) {
				path, err := requireArg(c, "path")
				if err != nil {
					return nil, err
				}
				return nil, svc.StageFile(ctx, id, path)
			}),
		opCommand("unstage", "Unstage one path", "<path>", nil,
			func(ctx context.Context, svc facade.Service, id string, c *urfavecli.Context) (any, error) {
				path, err := requireArg(c, "path")
				if err != nil {
					return nil, err
				}
				return nil, svc.UnstageFile(ctx, id, path)
			}),
		opCommand("revert", "Discard changes to one path", "<path>", nil,
			func(ctx context.Context, svc facade.Service, id string, c *urfavecli.Context) (any, error) {
				path, err := requireArg(c, "path")
				if err != nil {
					return nil, err
				}
				return nil, svc.RevertFile(ctx, id, path)
			}),
		opCommand("stage-all", "Stage every change", "", nil,
			func(ctx context.Context, svc facade.Service, id string, _ *urfavecli.Context) (any, error) {
				return nil, svc.StageAll(ctx, id)
			}),
		opCommand("revert-all", "Discard every change, including untracked files", "", nil,
			func(ctx context.Context, svc facade.Service, id string, _ *urfavecli.Context) (any, error) {
				return nil, svc.RevertAll(ctx, id)
			}),
		opCommand("commit", "Commit the staged changes", "",
			[]urfavecli.Flag{&urfavecli.StringFlag{Name: "message", Aliases: []string{"m"}, Usage: "Commit message"}},
			func(ctx context.Context, svc facade.Service, id string, c *urfavecli.Context) (any, error) {
				return nil, svc.Commit(ctx, id, c.String("message"))
			}),
		opCommand("push", "Push the current branch", "", nil,
			func(ctx context.Context, svc facade.Service, id string, _ *urfavecli.Context) (any, error) {
				return nil, svc.Push(ctx, id)
			}),
		opCommand("pull", "Merge the upstream branch", "", nil,
			func(ctx context.Context, svc facade.Service, id string, _ *urfavecli.Context) (any, error) {
				return nil, svc.Pull(ctx, id)
			}),
		opCommand("fetch", "Fetch from the remote", "", nil,
			func(ctx context.Context, svc facade.Service, id string, _ *urfavecli.Context) (any, error) {
				return nil, svc.Fetch(ctx, id)
			}),
		opCommand("sync", "Fetch, integrate upstream changes and push", "", nil,
			func(ctx context.Context, svc facade.Service, id string, _ *urfavecli.Context) (any, error) {
				return nil, svc.Sync(ctx, id)
			}),
		opCommand("issues", "List open GitHub issues", "", nil,
			func(ctx context.Context, svc facade.Service, id string, _ *urfavecli.Context) (any, error) {
				return svc.Issues(ctx, id)
			}),
		opCommand("prs", "List open GitHub pull requests", "", nil,
			func(ctx context.Context, svc facade.Service, id string, _ *urfavecli.Context) (any, error) {
				return svc.PullRequests(ctx, id)
			}),
		opCommand("pr-diff", "Show the files changed by a pull request", "<number>", nil,
			func(ctx context.Context, svc facade.Service, id string, c *urfavecli.Context) (any, error) {
				number, err := numberArg(c)
				if err != nil {
					return nil, err
				}
				return svc.PullRequestDiff(ctx, id, number)
			}),
		opCommand("pr-comments", "Show the conversation of a pull request", "<number>", nil,
			func(ctx context.Context, svc facade.Service, id string, c *urfavecli.Context) (any, error) {
				number, err := numberArg(c)
				if err != nil {
					return nil, err
				}
				return svc.PullRequestComments(ctx, id, number)
			}),
		opCommand("roots", "List git repositories under the workspace", "",
			[]urfavecli.Flag{&urfavecli.IntFlag{Name: "depth", Usage: "Directory levels to search"}},
			func(ctx context.Context, svc facade.Service, id string, c *urfavecli.Context) (any, error) {
				return svc.GitRoots(ctx, id, c.Int("depth"))
			}),
	}
}

func workspacesCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:  "workspaces",
		Usage: "List the configured workspaces",
		Action: func(c *urfavecli.Context) error {
			runner, err := newRunner(c)
			if err != nil {
				return err
			}
			return app.WriteResult(c.App.Writer, app.FormatJSON, runner.Registry().List())
		},
	}
}

func serveCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:  "serve",
		Usage: "Run the HTTP remote backend",
		Flags: []urfavecli.Flag{
			&urfavecli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Usage:   "Address to listen on",
				EnvVars: []string{"GITFACADE_LISTEN"},
			},
		},
		Action: func(c *urfavecli.Context) error {
			cfg, err := app.LoadConfigFrom(c.String("config"))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if level := c.String("log-level"); level != "" {
				cfg.LogLevel = level
			}
			if addr := c.String("listen"); addr != "" {
				cfg.ListenAddr = addr
			}

			runner, err := app.NewRunner(cfg)
			if err != nil {
				return err
			}

			gin.SetMode(gin.ReleaseMode)
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runner.Serve(ctx)
		},
	}
}
