// Package app sequences the startup of the application. A Supervisor resolves
// the configuration, builds the command registry and runs the runtime, each
// exactly once and in that order. Any failure ends the sequence; there is no
// retry and no partially started state.
package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/rorycl/cutplan/commands"
	"github.com/rorycl/cutplan/config"
)

// Failure kinds. Every failure of a startup step wraps one of these; calls
// made out of order return ErrAlreadyRun or ErrOutOfOrder instead.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrRegistration  = errors.New("registration error")
	ErrRuntime       = errors.New("runtime error")
)

var (
	// ErrAlreadyRun is returned by a second call to Run.
	ErrAlreadyRun = errors.New("runtime has already been run")
	// ErrOutOfOrder is returned when a step is called in the wrong state.
	ErrOutOfOrder = errors.New("startup step out of order")
)

// State is the lifecycle state of a Supervisor.
type State int

const (
	Uninitialized State = iota
	Configured
	Running
	Terminated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Configured:
		return "configured"
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ContextSource resolves the application configuration.
type ContextSource interface {
	Resolve() (*config.Config, error)
}

// SourceFunc adapts a function to a ContextSource.
type SourceFunc func() (*config.Config, error)

// Resolve fulfils ContextSource.
func (f SourceFunc) Resolve() (*config.Config, error) { return f() }

// Runtime runs the application windows until they are closed, ctx is done or
// the runtime fails.
type Runtime interface {
	Run(ctx context.Context, cfg *config.Config, reg *commands.Registry) error
}

// Supervisor owns the configuration and registry and hands both to the
// runtime.
type Supervisor struct {
	log     *log.Logger
	source  ContextSource
	runtime Runtime

	mu       sync.Mutex
	state    State
	ran      bool
	cfg      *config.Config
	registry *commands.Registry
}

// New creates a Supervisor in the Uninitialized state.
func New(logger *log.Logger, source ContextSource, runtime Runtime) *Supervisor {
	return &Supervisor{log: logger, source: source, runtime: runtime}
}

// State reports the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Config is the resolved configuration, or nil before Initialize.
func (s *Supervisor) Config() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Registry is the command registry, or nil before RegisterCommands.
func (s *Supervisor) Registry() *commands.Registry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry
}

// terminate ends the sequence with err, wrapped as kind. Caller holds mu.
func (s *Supervisor) terminate(kind, err error) error {
	s.state = Terminated
	s.log.Error("startup failed", "kind", kind, "err", err)
	return fmt.Errorf("%w: %w", kind, err)
}

// Initialize resolves the configuration.
func (s *Supervisor) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Uninitialized || s.cfg != nil {
		return fmt.Errorf("%w: initialize when %s", ErrOutOfOrder, s.state)
	}
	cfg, err := s.source.Resolve()
	if err != nil {
		return s.terminate(ErrConfiguration, err)
	}
	if cfg == nil {
		return s.terminate(ErrConfiguration, errors.New("context source returned no configuration"))
	}
	s.cfg = cfg
	s.log.Info("configuration resolved",
		"product", cfg.ProductName,
		"version", cfg.Version,
		"windows", len(cfg.App.Windows),
	)
	return nil
}

// RegisterCommands builds the closed command registry from defs, which may be
// empty. A duplicate or invalid name fails registration, as does a capability
// granting a command which is not among defs.
func (s *Supervisor) RegisterCommands(defs ...commands.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Uninitialized || s.cfg == nil || s.registry != nil {
		return fmt.Errorf("%w: register commands when %s", ErrOutOfOrder, s.state)
	}
	reg, err := commands.NewRegistry(defs...)
	if err != nil {
		return s.terminate(ErrRegistration, err)
	}

	var unknown []string
	for command, capability := range s.cfg.Permissions() {
		if _, ok := reg.Lookup(command); !ok {
			unknown = append(unknown, fmt.Sprintf("%q (capability %q)", command, capability))
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return s.terminate(ErrRegistration,
			fmt.Errorf("%w: granted but not registered: %s", commands.ErrUnknownCommand, strings.Join(unknown, ", ")),
		)
	}

	s.registry = reg
	s.state = Configured
	s.log.Info("commands registered", "commands", reg.Len())
	return nil
}

// Run hands the configuration and registry to the runtime and blocks until it
// returns. Run may be called once only.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.ran {
		s.mu.Unlock()
		return ErrAlreadyRun
	}
	if s.state != Configured {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: run when %s", ErrOutOfOrder, state)
	}
	s.ran = true
	s.state = Running
	cfg, reg := s.cfg, s.registry
	s.mu.Unlock()

	s.log.Info("runtime starting")
	err := s.runtime.Run(ctx, cfg, reg)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		return s.terminate(ErrRuntime, err)
	}
	s.state = Terminated
	s.log.Info("runtime stopped")
	return nil
}
