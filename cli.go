package main

import (
	"context"
	"io"

	"github.com/urfave/cli/v3"
)

// Options are the process level settings common to every command.
type Options struct {
	Context  string // context file replacing the packaged context
	Listen   string
	Frontend string
	Dev      bool
	NoOpen   bool
	LogLevel string
}

// Applicator defines the interface for the core application logic.
// This allows the CLI to be tested independently of the main app implementation.
type Applicator interface {
	Run(ctx context.Context, opts Options) error
	ListCommands(ctx context.Context, opts Options, w io.Writer) error
	ExportFrontend(ctx context.Context, dir string) error
}

// BuildCLI creates the full CLI command structure for the application.
// It injects the core application logic (the Applicator) into the command actions.
func BuildCLI(app Applicator, stdout io.Writer) *cli.Command {

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "context",
			Aliases: []string{"c"},
			Usage:   "yaml, toml or json file replacing the packaged application context",
			Sources: cli.EnvVars("CUTPLAN_CONTEXT"),
		},
		&cli.StringFlag{
			Name:    "listen",
			Usage:   "address the shell listens on, e.g. 127.0.0.1:8080",
			Sources: cli.EnvVars("CUTPLAN_LISTEN"),
		},
		&cli.StringFlag{
			Name:    "frontend",
			Usage:   "serve the front-end from this directory instead of the embedded copy",
			Sources: cli.EnvVars("CUTPLAN_FRONTEND"),
		},
		&cli.BoolFlag{
			Name:    "dev",
			Usage:   "reload windows when the front-end directory changes (needs --frontend)",
			Sources: cli.EnvVars("CUTPLAN_DEV"),
		},
		&cli.BoolFlag{
			Name:    "no-open",
			Usage:   "do not open windows in the browser; visit the logged url instead",
			Sources: cli.EnvVars("CUTPLAN_NO_OPEN"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "one of debug, info, warn or error",
			Sources: cli.EnvVars("CUTPLAN_LOG_LEVEL"),
		},
	}

	options := func(c *cli.Command) Options {
		return Options{
			Context:  c.String("context"),
			Listen:   c.String("listen"),
			Frontend: c.String("frontend"),
			Dev:      c.Bool("dev"),
			NoOpen:   c.Bool("no-open"),
			LogLevel: c.String("log-level"),
		}
	}

	commandsCmd := &cli.Command{
		Name:  "commands",
		Usage: "List the registered commands and the windows allowed to invoke them",
		Action: func(ctx context.Context, c *cli.Command) error {
			return app.ListCommands(ctx, options(c), stdout)
		},
	}

	exportCmd := &cli.Command{
		Name:  "export-frontend",
		Usage: "Write the embedded front-end to a new directory for editing",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Usage: "the directory to create", Required: true},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return app.ExportFrontend(ctx, c.String("dir"))
		},
	}

	// Assemble the root command. Without a sub-command the application runs.
	rootCmd := &cli.Command{
		Name:     "cutplan",
		Usage:    "Build cutting reports from Cut Optimisation and Assembly List workbooks",
		Flags:    flags,
		Writer:   stdout,
		Commands: []*cli.Command{commandsCmd, exportCmd},
		Action: func(ctx context.Context, c *cli.Command) error {
			return app.Run(ctx, options(c))
		},
	}

	return rootCmd
}
