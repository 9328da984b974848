// Package web is the application runtime: a local http shell serving each
// configured window as a page, opened in the system browser, with the
// front-end invoking registered commands over a json ipc endpoint.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/browser"
	"golang.org/x/sync/errgroup"

	"github.com/rorycl/cutplan/commands"
	"github.com/rorycl/cutplan/config"
	"github.com/rorycl/cutplan/internal/mounts"
)

// shutdownTimeout is the time allowed for in-flight requests on shutdown.
const shutdownTimeout = 5 * time.Second

// FrontendEmbeddedFS is the packaged front-end.
//
//go:embed frontend
var FrontendEmbeddedFS embed.FS

// FrontendMountName is the directory of FrontendEmbeddedFS holding the
// front-end.
const FrontendMountName = "frontend"

// Opener shows a window url to the user.
type Opener func(url string) error

// openURL launches the platform browser.
var openURL = browser.OpenURL

// SystemOpener opens url with the platform's default browser.
func SystemOpener(url string) error {
	if err := openURL(url); err != nil {
		return fmt.Errorf("could not open %s: %w", url, err)
	}
	return nil
}

// Shell runs the application windows. A Shell may be run more than once, each
// Run being independent, but the application supervisor runs it only once.
type Shell struct {
	log      *log.Logger
	frontend fs.FS
	open     Opener
}

// New creates a Shell serving the embedded front-end in frontend, unless the
// configuration names a front-end directory, and showing windows with open.
func New(logger *log.Logger, frontend fs.FS, open Opener) *Shell {
	if open == nil {
		open = SystemOpener
	}
	return &Shell{log: logger, frontend: frontend, open: open}
}

// Run serves the windows of cfg, dispatching their calls to reg. Run blocks
// until every opened window has been closed or ctx is done, both of which are
// a normal end and return nil. Any other failure is returned.
func (s *Shell) Run(ctx context.Context, cfg *config.Config, reg *commands.Registry) error {

	mount, err := mounts.New(FrontendMountName, s.frontend, cfg.Build.FrontendDist)
	if err != nil {
		return fmt.Errorf("front-end: %w", err)
	}
	s.log.Debug("front-end", "mount", mount.String())

	ln, err := net.Listen("tcp", cfg.App.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.App.ListenAddress, err)
	}
	base := "http://" + ln.Addr().String()

	var notifier *FileChangeNotifier
	if cfg.Build.DevWatch {
		notifier, err = NewFileChangeNotifier(mount.Dir, frontendSuffixes)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("front-end watcher: %w", err)
		}
	}

	rt := newRuntime(s.log, cfg, reg, mount)

	// Add settings for the http server. Event streams are long lived, so no
	// write timeout is set; ipc calls carry their own timeouts.
	server := &http.Server{
		Handler:           rt.routes(),
		ReadHeaderTimeout: 30 * time.Second,
		MaxHeaderBytes:    1 << 19,
		ErrorLog:          s.log.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel}),
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		s.log.Info("shell listening", "url", base, "commands", reg.Len())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("shell server: %w", err)
		}
		return nil
	})

	if notifier != nil {
		g.Go(func() error {
			err := notifier.Watch(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("front-end watcher: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			for range notifier.Update() {
				s.log.Info("front-end changed, reloading windows", "streams", rt.events.subscribers())
				rt.events.publish("reload")
			}
			return nil
		})
	}

	// Open the windows, then wait for them to close or for the run to end.
	g.Go(func() error {
		defer cancel()

		if !cfg.App.Headless {
			for _, w := range cfg.VisibleWindows() {
				u, err := WindowURL(base, w)
				if err != nil {
					return err
				}
				s.log.Info("opening window", "window", w.Label, "url", u)
				if err := s.open(u); err != nil {
					return fmt.Errorf("window %q: %w", w.Label, err)
				}
			}
		}

		select {
		case <-gctx.Done():
		case <-rt.windows.Done():
			s.log.Info("all windows closed")
		}
		return nil
	})

	// Shut down once the run ends for any reason.
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shell stopping")
		rt.events.close()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shell shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
