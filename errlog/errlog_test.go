package errlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/go-cmp/cmp"

	"github.com/rorycl/cutplan/commands"
)

func TestStoreWriteAndEntries(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "logs", "errors.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := range 3 {
		e := Entry{
			ID:       fmt.Sprintf("id-%d", i),
			LoggedAt: base.Add(time.Duration(i) * time.Second),
			Level:    "warn",
			Message:  fmt.Sprintf("message %d", i),
			Window:   "main",
		}
		if err := store.Write(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.Entries(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []Entry{
		{ID: "id-2", LoggedAt: base.Add(2 * time.Second), Level: "warn", Message: "message 2", Window: "main"},
		{ID: "id-1", LoggedAt: base.Add(1 * time.Second), Level: "warn", Message: "message 1", Window: "main"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreRejectsLevel(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "errors.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	err = store.Write(ctx, Entry{ID: "x", LoggedAt: time.Now(), Level: "fatal", Message: "m"})
	if err == nil {
		t.Error("expected check constraint failure for level fatal")
	}
}

func TestOpenInMemory(t *testing.T) {
	if _, err := Open(context.Background(), ":memory:"); err == nil {
		t.Error("expected error for in-memory path without shared cache")
	}
	store, err := Open(context.Background(), "file::memory:?cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	_ = store.Close()
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	s := NewService(log.New(io.Discard), filepath.Join(t.TempDir(), "cutplan-errors.db"))
	t.Cleanup(func() { _ = s.Close() })

	n := 0
	s.now = func() time.Time {
		n++
		return time.Date(2025, 3, 1, 10, 0, n, 0, time.UTC)
	}
	s.newID = func() string { return fmt.Sprintf("entry-%d", n) }
	return s
}

func TestServiceCommands(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	reg, err := commands.NewRegistry(s.Commands()...)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(
		[]string{"create_local_error_log", "read_local_error_log", "write_to_local_error_log"},
		reg.Names(),
	); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}

	out, err := reg.Invoke(ctx, "create_local_error_log", commands.Call{Window: "main"})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := out.(CreateResult).Path, s.path; got != want {
		t.Errorf("create path got %q want %q", got, want)
	}

	writes := []string{
		`{"message":"disk full","source":"export"}`,
		`{"level":"INFO","message":"report built"}`,
	}
	for _, w := range writes {
		if _, err := reg.Invoke(ctx, "write_to_local_error_log", commands.Call{Window: "main", Args: commands.JSONArgs(w)}); err != nil {
			t.Fatal(err)
		}
	}

	out, err = reg.Invoke(ctx, "read_local_error_log", commands.Call{Window: "main"})
	if err != nil {
		t.Fatal(err)
	}
	want := []Entry{
		{ID: "entry-2", LoggedAt: time.Date(2025, 3, 1, 10, 0, 2, 0, time.UTC), Level: "info", Message: "report built", Window: "main"},
		{ID: "entry-1", LoggedAt: time.Date(2025, 3, 1, 10, 0, 1, 0, time.UTC), Level: "error", Message: "disk full", Source: "export", Window: "main"},
	}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("read mismatch (-want +got):\n%s", diff)
	}

	out, err = reg.Invoke(ctx, "read_local_error_log", commands.Call{Args: commands.JSONArgs(`{"limit":1}`)})
	if err != nil {
		t.Fatal(err)
	}
	if got := len(out.([]Entry)); got != 1 {
		t.Errorf("limit 1 returned %d entries", got)
	}
}

func TestServiceValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	reg, err := commands.NewRegistry(s.Commands()...)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		command string
		args    string
		wantErr string
	}{
		{"write_to_local_error_log", `{}`, "message: must be provided"},
		{"write_to_local_error_log", `{"level":"fatal","message":"m"}`, "level: must be one of"},
		{"read_local_error_log", `{"limit":501}`, "limit: must be between 1 and 500"},
		{"read_local_error_log", `{"limit":-1}`, "limit: must be between 1 and 500"},
	}
	for _, tt := range tests {
		t.Run(tt.command+tt.args, func(t *testing.T) {
			_, err := reg.Invoke(ctx, tt.command, commands.Call{Args: commands.JSONArgs(tt.args)})
			if !errors.Is(err, commands.ErrInvalidArgs) {
				t.Fatalf("expected ErrInvalidArgs, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}

	// validation failures never open the store
	if s.store != nil {
		t.Error("store opened by invalid calls")
	}
}
