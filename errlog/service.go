package errlog

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/rorycl/cutplan/commands"
)

const (
	defaultReadLimit = 50
	maxReadLimit     = 500
)

// Service opens the error log on first use and exposes it as commands.
type Service struct {
	log  *log.Logger
	path string

	mu    sync.Mutex
	store *Store

	now   func() time.Time
	newID func() string
}

// NewService returns a Service for the error log at path. Nothing is opened
// until a command needs the store.
func NewService(logger *log.Logger, path string) *Service {
	return &Service{
		log:   logger,
		path:  path,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// open returns the store, creating it if necessary.
func (s *Service) open(ctx context.Context) (*Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store != nil {
		return s.store, nil
	}
	store, err := Open(ctx, s.path)
	if err != nil {
		return nil, err
	}
	s.log.Info("error log opened", "path", s.path)
	s.store = store
	return store, nil
}

// Close closes the store if it was opened.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	err := s.store.Close()
	s.store = nil
	return err
}

// Commands returns the error log command definitions.
func (s *Service) Commands() []commands.Definition {
	return []commands.Definition{
		{
			Name:        "create_local_error_log",
			Description: "create the local error log if it does not exist",
			Handler:     s.create,
		},
		{
			Name:        "write_to_local_error_log",
			Description: "append an entry to the local error log",
			Handler:     commands.Typed(s.write),
		},
		{
			Name:        "read_local_error_log",
			Description: "list the most recent local error log entries",
			Handler:     commands.Typed(s.read),
		},
	}
}

// CreateResult is returned by create_local_error_log.
type CreateResult struct {
	Path string `json:"path"`
}

func (s *Service) create(ctx context.Context, call commands.Call) (any, error) {
	store, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	return CreateResult{Path: store.Path()}, nil
}

// WriteArgs are the arguments of write_to_local_error_log.
type WriteArgs struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Source  string `json:"source"`
}

// Validate fulfils commands.Validatable, defaulting the level to error.
func (a *WriteArgs) Validate(v *commands.Validator) {
	a.Level = strings.ToLower(strings.TrimSpace(a.Level))
	if a.Level == "" {
		a.Level = "error"
	}
	v.Check(slices.Contains(Levels, a.Level), "level", fmt.Sprintf("must be one of %s", strings.Join(Levels, ", ")))
	v.Check(strings.TrimSpace(a.Message) != "", "message", "must be provided")
}

func (s *Service) write(ctx context.Context, call commands.Call, args WriteArgs) (any, error) {
	store, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	loggedAt := s.now().UTC()
	e := Entry{
		ID:       s.newID(),
		LoggedAt: loggedAt,
		Level:    args.Level,
		Message:  args.Message,
		Source:   args.Source,
		Window:   call.Window,
	}
	if err := store.Write(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// ReadArgs are the arguments of read_local_error_log.
type ReadArgs struct {
	Limit int `json:"limit"`
}

// Validate fulfils commands.Validatable.
func (a *ReadArgs) Validate(v *commands.Validator) {
	if a.Limit == 0 {
		a.Limit = defaultReadLimit
	}
	v.Check(a.Limit > 0 && a.Limit <= maxReadLimit, "limit", fmt.Sprintf("must be between 1 and %d", maxReadLimit))
}

func (s *Service) read(ctx context.Context, call commands.Call, args ReadArgs) (any, error) {
	store, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	return store.Entries(ctx, args.Limit)
}
