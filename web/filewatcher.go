package web

// FileChangeNotifier watches a front-end directory tree for changes to files
// with the configured suffixes, signalling on Update after a short flush
// interval so that a burst of writes from an editor or build tool gives a
// single reload.

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
)

// defaultFlushDuration sets the time given to wait for multiple editor writes
const defaultFlushDuration time.Duration = 25 * time.Millisecond

// frontendSuffixes are the file types which trigger a reload.
var frontendSuffixes = []string{".html", ".js", ".css", ".json", ".svg", ".png"}

// FileChangeNotifier holds a watcher over every directory of a tree.
type FileChangeNotifier struct {
	root          string
	suffixes      []string
	watcher       *fsnotify.Watcher
	update        chan bool
	flushDuration time.Duration
}

// NewFileChangeNotifier watches root and each of its sub-directories for
// changes to files ending in one of suffixes. Suffixes provided without the
// leading "dot" ('.') have this prepended.
func NewFileChangeNotifier(root string, suffixes []string) (*FileChangeNotifier, error) {

	root = filepath.Clean(root)
	check, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("dir %q not found: %w", root, err)
	}
	if !check.IsDir() {
		return nil, fmt.Errorf("%q is not a directory", root)
	}
	if len(suffixes) == 0 {
		return nil, errors.New("at least one file suffix needed")
	}

	fcn := FileChangeNotifier{
		root:          root,
		update:        make(chan bool),
		flushDuration: defaultFlushDuration,
	}
	for _, ix := range suffixes {
		if len(ix) > 0 && ix[0] != byte('.') {
			ix = string('.') + ix
		}
		fcn.suffixes = append(fcn.suffixes, strings.ToLower(ix))
	}

	fcn.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify new watcher error: %w", err)
	}

	// fsnotify is not recursive, so each directory is added.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fcn.watcher.Add(path); err != nil {
			return fmt.Errorf("fsnotify add error for dir %q: %w", path, err)
		}
		return nil
	})
	if err != nil {
		_ = fcn.watcher.Close()
		return nil, err
	}
	return &fcn, nil
}

// matches reports whether the event is for a watched file type.
func (fcn *FileChangeNotifier) matches(e fsnotify.Event) bool {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) && !e.Has(fsnotify.Rename) && !e.Has(fsnotify.Remove) {
		return false
	}
	basename := strings.ToLower(filepath.Base(e.Name))
	// ignore dot files
	if len(basename) > 0 && basename[0] == '.' {
		return false
	}
	for _, ix := range fcn.suffixes {
		if strings.HasSuffix(basename, ix) {
			return true
		}
	}
	return false
}

// Watch blocks until ctx is done or the watcher fails. Consumers should range
// over [Update] to receive notice of a change requiring a reload; the channel
// is closed when Watch returns.
func (fcn *FileChangeNotifier) Watch(ctx context.Context) error {

	// eventChan is an internal chan used for buffering editor writes.
	eventChan := make(chan bool)

	g, ctx := errgroup.WithContext(ctx)

	// This goroutine watches for *fsnotify.Watcher events.
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case err, ok := <-fcn.watcher.Errors:
				if !ok {
					return errors.New("unexpected close from watcher.Errors")
				}
				return fmt.Errorf("unexpected notify error: %w", err)

			case e, ok := <-fcn.watcher.Events:
				if !ok {
					return errors.New("unexpected close from watcher.Events")
				}
				// new directories are watched too
				if e.Has(fsnotify.Create) {
					if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
						if err := fcn.watcher.Add(e.Name); err != nil {
							return fmt.Errorf("fsnotify add error for dir %q: %w", e.Name, err)
						}
						continue
					}
				}
				if !fcn.matches(e) {
					continue
				}
				select {
				case eventChan <- true:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	})

	// Simple buffer of double writes by editors like vim.
	g.Go(func() error {
		flush := false
		timer := time.NewTicker(fcn.flushDuration)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()

			// Stack writes in the same flushDuration, giving time for
			// the writes to complete.
			case <-eventChan:
				flush = true
				timer.Reset(fcn.flushDuration)
			case <-timer.C:
				if !flush {
					continue
				}
				select {
				case fcn.update <- true:
					flush = false
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	})

	err := g.Wait()
	close(fcn.update)
	_ = fcn.watcher.Close()
	return err
}

// Update returns a channel signalling a file change.
func (fcn *FileChangeNotifier) Update() <-chan bool {
	return fcn.update
}
