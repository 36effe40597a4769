// Package main is the entry point for the gitfacade command.
package main

import (
	"errors"
	"fmt"
	"os"

	urfavecli "github.com/urfave/cli/v2"
)

var version = "dev"

// errReported marks failures that were already written to the error stream.
var errReported = errors.New("operation failed")

func main() {
	if err := newApp().Run(os.Args); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		os.Exit(1)
	}
}

func newApp() *urfavecli.App {
	return &urfavecli.App{
		Name:    "gitfacade",
		Usage:   "Workspace-scoped git and GitHub operations",
		Version: version,
		Flags:   globalFlags(),
		Commands: append(operationCommands(),
			workspacesCommand(),
			serveCommand(),
		),
	}
}

func globalFlags() []urfavecli.Flag {
	return []urfavecli.Flag{
		&urfavecli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the YAML configuration file",
			EnvVars: []string{"GITFACADE_CONFIG"},
		},
		&urfavecli.StringFlag{
			Name:    "workspace",
			Aliases: []string{"w"},
			Usage:   "Id of a configured workspace",
			EnvVars: []string{"GITFACADE_WORKSPACE"},
		},
		&urfavecli.StringFlag{
			Name:    "path",
			Aliases: []string{"C"},
			Usage:   "Operate on this directory when no workspace is given",
			Value:   ".",
		},
		&urfavecli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: json or markdown",
			Value:   "json",
		},
		&urfavecli.StringFlag{
			Name:  "log-level",
			Usage: "Override the log level (debug, info, warn, error)",
		},
	}
}
