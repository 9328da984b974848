// Package commands provides the closed set of named operations the front-end may
// invoke. A Registry is built once from a list of definitions and cannot be
// changed afterwards; there is no way to add a command to a registry that is
// already in use.
package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrDuplicateCommand = errors.New("duplicate command name")
	ErrInvalidName      = errors.New("invalid command name")
	ErrNilHandler       = errors.New("command handler is nil")
	ErrUnknownCommand   = errors.New("unknown command")
)

// Call describes a single invocation: the calling window and its arguments.
type Call struct {
	ID     string
	Window string
	Args   Args
}

// Handler runs a command.
type Handler func(ctx context.Context, call Call) (any, error)

// Definition binds a name to a handler.
type Definition struct {
	Name        string
	Description string
	Handler     Handler
}

// Registry stores definitions by name.
type Registry struct {
	items map[string]Definition
}

// NewRegistry builds a registry from defs. Any invalid or duplicated name fails
// the whole registry; nothing is silently overwritten.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{items: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if err := ValidateName(d.Name); err != nil {
			return nil, err
		}
		if d.Handler == nil {
			return nil, fmt.Errorf("%w: %s", ErrNilHandler, d.Name)
		}
		if _, ok := r.items[d.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCommand, d.Name)
		}
		r.items[d.Name] = d
	}
	return r, nil
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	d, ok := r.items[name]
	return d, ok
}

// Len is the number of registered commands.
func (r *Registry) Len() int {
	return len(r.items)
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.items))
	for n := range r.items {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the definitions sorted by name.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.items))
	for _, n := range r.Names() {
		out = append(out, r.items[n])
	}
	return out
}

// Invoke runs the named command.
func (r *Registry) Invoke(ctx context.Context, name string, call Call) (any, error) {
	d, ok := r.items[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	if call.Args == nil {
		call.Args = NoArgs{}
	}
	return d.Handler(ctx, call)
}

// ValidateName checks a command name is lower snake case: a leading letter
// followed by letters, digits and single underscores, not ending in an
// underscore.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	lastSep := false
	for i := 0; i < len(name); i++ {
		c := name[i]
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		isSep := c == '_'
		switch {
		case i == 0 && !isLower:
			return fmt.Errorf("%w: %q must start with a lower case letter", ErrInvalidName, name)
		case !(isLower || isDigit || isSep):
			return fmt.Errorf("%w: %q has invalid character %q", ErrInvalidName, name, c)
		case isSep && (lastSep || i == len(name)-1):
			return fmt.Errorf("%w: %q has a misplaced underscore", ErrInvalidName, name)
		}
		lastSep = isSep
	}
	return nil
}
