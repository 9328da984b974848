package web

import (
	"fmt"
	"net/url"
	"sort"
	"sync"

	"github.com/google/go-querystring/query"

	"github.com/rorycl/cutplan/config"
)

// windowSet counts the open instances of each window, since a label may be
// open in several tabs. done is closed the first time the set becomes empty
// after a window has been opened.
type windowSet struct {
	mu     sync.Mutex
	open   map[string]int
	opened bool
	done   chan struct{}
	once   sync.Once
}

func newWindowSet() *windowSet {
	return &windowSet{open: map[string]int{}, done: make(chan struct{})}
}

func (ws *windowSet) add(label string) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.open[label]++
	ws.opened = true
}

// remove closes one instance of label, reporting whether it was the last
// open window.
func (ws *windowSet) remove(label string) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.open[label] > 1 {
		ws.open[label]--
	} else {
		delete(ws.open, label)
	}
	if ws.opened && len(ws.open) == 0 {
		ws.once.Do(func() { close(ws.done) })
		return true
	}
	return false
}

// labels returns the open window labels, sorted.
func (ws *windowSet) labels() []string {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	out := make([]string, 0, len(ws.open))
	for l := range ws.open {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Done is closed once every opened window has been closed.
func (ws *windowSet) Done() <-chan struct{} {
	return ws.done
}

// windowQuery carries the window geometry to the page, which sizes itself if
// the browser allows it.
type windowQuery struct {
	Title     string `url:"title"`
	Width     int    `url:"w"`
	Height    int    `url:"h"`
	Resizable bool   `url:"resizable,int"`
}

// WindowPath is the shell path of a window.
func WindowPath(label string) string {
	return "/window/" + url.PathEscape(label)
}

// WindowURL is the address a window is opened at.
func WindowURL(base string, w config.WindowConfig) (string, error) {
	v, err := query.Values(windowQuery{
		Title:     w.Title,
		Width:     w.Width,
		Height:    w.Height,
		Resizable: w.Resizable,
	})
	if err != nil {
		return "", fmt.Errorf("window %q query: %w", w.Label, err)
	}
	return base + WindowPath(w.Label) + "?" + v.Encode(), nil
}
