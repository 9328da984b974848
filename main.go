package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/charmbracelet/log"

	"github.com/rorycl/cutplan/app"
	"github.com/rorycl/cutplan/commands"
	"github.com/rorycl/cutplan/config"
	"github.com/rorycl/cutplan/cutting"
	"github.com/rorycl/cutplan/errlog"
	"github.com/rorycl/cutplan/internal/mounts"
	"github.com/rorycl/cutplan/web"
)

// application is the Applicator behind the CLI.
type application struct {
	stderr io.Writer
	opener web.Opener // nil opens the system browser

	// definitions returns the registered commands.
	definitions func(logger *log.Logger, errs *errlog.Service) []commands.Definition
}

func newApplication(stderr io.Writer) *application {
	return &application{stderr: stderr, definitions: definitions}
}

// definitions is the full command surface offered to the front-end.
func definitions(logger *log.Logger, errs *errlog.Service) []commands.Definition {
	defs := errs.Commands()
	return append(defs, cutting.Commands(logger)...)
}

func (a *application) logger(level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	return log.NewWithOptions(a.stderr, log.Options{
		Level:           lvl,
		Prefix:          "cutplan",
		ReportTimestamp: true,
	}), nil
}

func source(opts Options) config.Source {
	return config.Source{
		Path: opts.Context,
		Overrides: config.Overrides{
			ListenAddress: opts.Listen,
			FrontendDist:  opts.Frontend,
			DevWatch:      opts.Dev,
			Headless:      opts.NoOpen,
		},
	}
}

// configure initializes a supervisor and registers the commands.
func (a *application) configure(logger *log.Logger, opts Options, runtime app.Runtime) (*app.Supervisor, *errlog.Service, error) {
	sup := app.New(logger, source(opts), runtime)
	if err := sup.Initialize(); err != nil {
		return nil, nil, err
	}
	errs := errlog.NewService(logger, sup.Config().ErrorLog.Path)
	if err := sup.RegisterCommands(a.definitions(logger, errs)...); err != nil {
		_ = errs.Close()
		return nil, nil, err
	}
	return sup, errs, nil
}

// Run starts the application and blocks until its windows are closed.
func (a *application) Run(ctx context.Context, opts Options) error {
	logger, err := a.logger(opts.LogLevel)
	if err != nil {
		return err
	}
	shell := web.New(logger, web.FrontendEmbeddedFS, a.opener)
	sup, errs, err := a.configure(logger, opts, shell)
	if err != nil {
		return err
	}
	defer func() {
		if err := errs.Close(); err != nil {
			logger.Error("error log close", "err", err)
		}
	}()
	return sup.Run(ctx)
}

// ListCommands writes each registered command with the windows granted it.
func (a *application) ListCommands(ctx context.Context, opts Options, w io.Writer) error {
	logger, err := a.logger(opts.LogLevel)
	if err != nil {
		return err
	}
	sup, errs, err := a.configure(logger, opts, nil)
	if err != nil {
		return err
	}
	defer errs.Close()

	cfg := sup.Config()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMMAND\tWINDOWS\tDESCRIPTION")
	for _, d := range sup.Registry().Definitions() {
		windows := strings.Join(cfg.WindowsFor(d.Name), ",")
		if windows == "" {
			windows = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Name, windows, d.Description)
	}
	return tw.Flush()
}

// ExportFrontend writes the embedded front-end into dir.
func (a *application) ExportFrontend(ctx context.Context, dir string) error {
	m, err := mounts.New(web.FrontendMountName, web.FrontendEmbeddedFS, "")
	if err != nil {
		return err
	}
	return m.Materialize(dir)
}

// run executes the CLI and reports the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, a Applicator) int {
	cmd := BuildCLI(a, stdout)
	cmd.ErrWriter = stderr
	if err := cmd.Run(ctx, args); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// main is the entry point for the application. An interrupt or termination
// signal closes the application as if its windows had been closed.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdout, os.Stderr, newApplication(os.Stderr))
	stop()
	os.Exit(code)
}
