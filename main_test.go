package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/go-cmp/cmp"

	"github.com/rorycl/cutplan/commands"
	"github.com/rorycl/cutplan/errlog"
)

// fakeApp records the calls made by the CLI.
type fakeApp struct {
	calls []string
	opts  Options
	dir   string
}

func (f *fakeApp) Run(ctx context.Context, opts Options) error {
	f.calls = append(f.calls, "run")
	f.opts = opts
	return nil
}

func (f *fakeApp) ListCommands(ctx context.Context, opts Options, w io.Writer) error {
	f.calls = append(f.calls, "commands")
	f.opts = opts
	return nil
}

func (f *fakeApp) ExportFrontend(ctx context.Context, dir string) error {
	f.calls = append(f.calls, "export-frontend")
	f.dir = dir
	return nil
}

func TestBuildCLI(t *testing.T) {
	t.Setenv("CUTPLAN_FRONTEND", "/tmp/frontend")

	tests := []struct {
		name      string
		args      []string
		wantCode  int
		wantCalls []string
		wantOpts  Options
		wantDir   string
	}{
		{
			name:      "run with flags",
			args:      []string{"cutplan", "--context", "ctx.toml", "--listen", "127.0.0.1:9000", "--no-open", "--dev", "--log-level", "debug"},
			wantCalls: []string{"run"},
			wantOpts: Options{
				Context:  "ctx.toml",
				Listen:   "127.0.0.1:9000",
				Frontend: "/tmp/frontend",
				Dev:      true,
				NoOpen:   true,
				LogLevel: "debug",
			},
		},
		{
			name:      "run defaults",
			args:      []string{"cutplan"},
			wantCalls: []string{"run"},
			wantOpts:  Options{Frontend: "/tmp/frontend", LogLevel: "info"},
		},
		{
			name:      "list commands",
			args:      []string{"cutplan", "--context", "ctx.yaml", "commands"},
			wantCalls: []string{"commands"},
			wantOpts:  Options{Context: "ctx.yaml", Frontend: "/tmp/frontend", LogLevel: "info"},
		},
		{
			name:      "export front-end",
			args:      []string{"cutplan", "export-frontend", "--dir", "ui"},
			wantCalls: []string{"export-frontend"},
			wantDir:   "ui",
		},
		{
			name:     "export front-end needs a directory",
			args:     []string{"cutplan", "export-frontend"},
			wantCode: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeApp{}
			var stdout, stderr bytes.Buffer
			code := run(context.Background(), tt.args, &stdout, &stderr, fake)
			if code != tt.wantCode {
				t.Fatalf("exit code got %d want %d (stderr %q)", code, tt.wantCode, stderr.String())
			}
			if diff := cmp.Diff(tt.wantCalls, fake.calls); diff != "" {
				t.Errorf("calls mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantOpts, fake.opts); diff != "" {
				t.Errorf("options mismatch (-want +got):\n%s", diff)
			}
			if fake.dir != tt.wantDir {
				t.Errorf("dir got %q want %q", fake.dir, tt.wantDir)
			}
		})
	}
}

// writeContext writes a context file with its error log in the same
// directory.
func writeContext(t *testing.T, permissions string) string {
	t.Helper()
	dir := t.TempDir()
	doc := fmt.Sprintf(`
product_name: Cutplan
version: 0.0.1
identifier: ro.cutplan.test
app:
  windows:
    - label: main
      title: Cutplan
  security:
    capabilities:
      - identifier: main-window
        windows: [main]
        permissions: %s
error_log:
  path: %s
`, permissions, filepath.Join(dir, "errors.db"))
	p := filepath.Join(dir, "context.yaml")
	if err := os.WriteFile(p, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// user opens a window, creates the error log through the ipc endpoint and
// closes the window again.
func user(t *testing.T, created *string) func(string) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	client := &http.Client{Jar: jar, Timeout: 5 * time.Second}

	return func(u string) error {
		resp, err := client.Get(u)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errors.New("window: " + resp.Status)
		}

		parsed, err := url.Parse(u)
		if err != nil {
			return err
		}
		parsed.RawQuery = ""
		window := parsed.String()

		resp, err = client.Post(window+"/ipc/create_local_error_log", "application/json", nil)
		if err != nil {
			return err
		}
		var reply struct {
			Result errlog.CreateResult `json:"result"`
		}
		err = json.NewDecoder(resp.Body).Decode(&reply)
		resp.Body.Close()
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return errors.New("ipc: " + resp.Status)
		}
		*created = reply.Result.Path

		resp, err = client.Post(window+"/close", "", nil)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}
}

func TestRunClosesWithWindows(t *testing.T) {
	ctxFile := writeContext(t, "[create_local_error_log]")

	var created string
	a := newApplication(io.Discard)
	a.opener = user(t, &created)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"cutplan", "--context", ctxFile, "--listen", "127.0.0.1:0"}, &stdout, &stderr, a)
	if code != 0 {
		t.Fatalf("exit code got %d want 0 (stderr %q)", code, stderr.String())
	}
	want := filepath.Join(filepath.Dir(ctxFile), "errors.db")
	if created != want {
		t.Errorf("error log path got %q want %q", created, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("error log not created: %v", err)
	}
}

func TestRunFailures(t *testing.T) {
	duplicateSave := func(*log.Logger, *errlog.Service) []commands.Definition {
		save := commands.Definition{
			Name:    "save",
			Handler: func(ctx context.Context, call commands.Call) (any, error) { return nil, nil },
		}
		return []commands.Definition{save, save}
	}

	tests := []struct {
		name        string
		args        []string
		definitions func(*log.Logger, *errlog.Service) []commands.Definition
		wantStderr  []string
	}{
		{
			name:       "missing context",
			args:       []string{"cutplan", "--context", filepath.Join(t.TempDir(), "missing.yaml")},
			wantStderr: []string{"Error: configuration error", "does not exist"},
		},
		{
			name:       "unregistered grant",
			args:       []string{"cutplan", "--context", writeContext(t, "[save]")},
			wantStderr: []string{"Error: registration error", `"save"`},
		},
		{
			name:        "duplicate command",
			args:        []string{"cutplan", "--context", writeContext(t, "[]")},
			definitions: duplicateSave,
			wantStderr:  []string{"Error: registration error", "duplicate command name: save"},
		},
		{
			name:       "bad log level",
			args:       []string{"cutplan", "--log-level", "loud"},
			wantStderr: []string{"Error: log level"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newApplication(io.Discard)
			if tt.definitions != nil {
				a.definitions = tt.definitions
			}
			a.opener = func(string) error {
				t.Error("a window was opened")
				return nil
			}

			var stdout, stderr bytes.Buffer
			if code := run(context.Background(), tt.args, &stdout, &stderr, a); code != 1 {
				t.Fatalf("exit code got %d want 1", code)
			}
			for _, want := range tt.wantStderr {
				if !strings.Contains(stderr.String(), want) {
					t.Errorf("stderr %q does not contain %q", stderr.String(), want)
				}
			}
		})
	}
}

func TestListCommands(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"cutplan", "commands"}, &stdout, &stderr, newApplication(io.Discard))
	if code != 0 {
		t.Fatalf("exit code got %d want 0 (stderr %q)", code, stderr.String())
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 7 {
		t.Fatalf("got %d lines want a header and six commands:\n%s", len(lines), stdout.String())
	}
	var names []string
	for _, l := range lines[1:] {
		fields := strings.Fields(l)
		if fields[1] != "main" {
			t.Errorf("command %s granted to %q want main", fields[0], fields[1])
		}
		names = append(names, fields[0])
	}
	want := []string{
		"build_report",
		"create_local_error_log",
		"export_report",
		"inspect_workbook",
		"read_local_error_log",
		"write_to_local_error_log",
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestExportFrontend(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ui")
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"cutplan", "export-frontend", "--dir", dir}, &stdout, &stderr, newApplication(io.Discard))
	if code != 0 {
		t.Fatalf("exit code got %d want 0 (stderr %q)", code, stderr.String())
	}
	for _, name := range []string{"index.html", "ipc.js", "app.js", "style.css"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("exported front-end lacks %s: %v", name, err)
		}
	}

	// the target must be new
	code = run(context.Background(), []string{"cutplan", "export-frontend", "--dir", dir}, &stdout, &stderr, newApplication(io.Discard))
	if code != 1 {
		t.Errorf("export over an existing directory got exit code %d want 1", code)
	}
}
