package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPackagedContext(t *testing.T) {

	cfg, err := Packaged()
	if err != nil {
		t.Fatal(err)
	}

	if got, want := cfg.ProductName, "Cutplan"; got != want {
		t.Errorf("got %s want %s", got, want)
	}
	if got, want := cfg.App.ListenAddress, "127.0.0.1:0"; got != want {
		t.Errorf("got %s want %s", got, want)
	}
	mainWindow, ok := cfg.Window("main")
	if !ok {
		t.Fatal("main window not found")
	}
	if got, want := mainWindow.URL, "index.html"; got != want {
		t.Errorf("got %s want %s", got, want)
	}
	if !cfg.Allowed("main", "build_report") {
		t.Error("expected main to be allowed build_report")
	}
	if cfg.Allowed("main", "drop_tables") {
		t.Error("did not expect main to be allowed drop_tables")
	}
}

func TestLoadFormats(t *testing.T) {

	tests := []struct {
		name        string
		path        string
		wantWindows []string
		wantVisible []string
		wantListen  string
	}{
		{
			name:        "toml",
			path:        "testdata/context.toml",
			wantWindows: []string{"main", "logs"},
			wantVisible: []string{"main"},
			wantListen:  "127.0.0.1:8123",
		},
		{
			name:        "json with defaults",
			path:        "testdata/context.json",
			wantWindows: []string{"main"},
			wantVisible: []string{"main"},
			wantListen:  "127.0.0.1:0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.path)
			if err != nil {
				t.Fatal(err)
			}
			var windows, visible []string
			for _, w := range cfg.App.Windows {
				windows = append(windows, w.Label)
			}
			for _, w := range cfg.VisibleWindows() {
				visible = append(visible, w.Label)
			}
			if diff := cmp.Diff(tt.wantWindows, windows); diff != "" {
				t.Errorf("windows mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantVisible, visible); diff != "" {
				t.Errorf("visible windows mismatch (-want +got):\n%s", diff)
			}
			if got, want := cfg.App.ListenAddress, tt.wantListen; got != want {
				t.Errorf("listen address got %s want %s", got, want)
			}
		})
	}
}

func TestWindowDefaults(t *testing.T) {
	cfg, err := Load("testdata/context.json")
	if err != nil {
		t.Fatal(err)
	}
	want := WindowConfig{
		Label:  "main",
		Title:  "Cutplan",
		Width:  defaultWindowWidth,
		Height: defaultWindowHeight,
		URL:    defaultWindowURL,
	}
	got, _ := cfg.Window("main")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("window defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestCapabilities(t *testing.T) {
	cfg, err := Load("testdata/context.toml")
	if err != nil {
		t.Fatal(err)
	}

	if !cfg.Allowed("logs", "read_local_error_log") {
		t.Error("wildcard capability should grant logs read_local_error_log")
	}
	if cfg.Allowed("nowhere", "read_local_error_log") {
		t.Error("wildcard capability should not grant an unknown window")
	}
	if cfg.Allowed("logs", "build_report") {
		t.Error("logs should not be granted build_report")
	}
	if diff := cmp.Diff([]string{"main"}, cfg.WindowsFor("build_report")); diff != "" {
		t.Errorf("WindowsFor mismatch (-want +got):\n%s", diff)
	}
	want := map[string]string{
		"read_local_error_log": "everyone",
		"build_report":         "main-only",
	}
	if diff := cmp.Diff(want, cfg.Permissions()); diff != "" {
		t.Errorf("permissions mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"build_report", "read_local_error_log"}, cfg.GrantedTo("main")); diff != "" {
		t.Errorf("GrantedTo(main) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{}, cfg.GrantedTo("nowhere")); diff != "" {
		t.Errorf("GrantedTo(nowhere) mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFailures(t *testing.T) {

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"missing file", "testdata/nope.yaml", "does not exist"},
		{"bad extension", "testdata/context.ini", "unsupported context file extension"},
		{"malformed yaml", "testdata/malformed.yaml", "unable to parse yaml"},
		{"unknown yaml key", "testdata/unknown_key.yaml", "colour"},
		{"unknown toml key", "testdata/unknown_key.toml", "unknown keys colour"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidation(t *testing.T) {

	base := func() string {
		return `
product_name: Cutplan
version: 1.0.0
identifier: ro.cutplan.test
app:
  windows:
    - label: main
error_log:
  path: errors.db
`
	}

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"empty", "", "context is empty"},
		{"no product", strings.Replace(base(), "product_name: Cutplan", "product_name: ''", 1), "product_name is missing"},
		{"bad identifier", strings.Replace(base(), "ro.cutplan.test", "cutplan", 1), "reverse domain"},
		{"no windows", strings.Replace(base(), "    - label: main\n", "    []\n", 1), "at least one window"},
		{"bad label", strings.Replace(base(), "label: main", "label: 'main window'", 1), "label"},
		{"escaping url", strings.Replace(base(), "label: main", "label: main\n      url: ../secret.html", 1), "relative path"},
		{"bad listen", strings.Replace(base(), "app:\n", "app:\n  listen_address: localhost\n", 1), "listen_address"},
		{"no error log", strings.Replace(base(), "path: errors.db", "path: ''", 1), "error_log.path"},
		{"dev watch without dist", strings.Replace(base(), "app:\n", "build:\n  dev_watch: true\napp:\n", 1), "dev_watch"},
		{"valid", base(), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), FormatYAML)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestCapabilityValidation(t *testing.T) {
	doc := `
product_name: Cutplan
version: 1.0.0
identifier: ro.cutplan.test
app:
  windows:
    - label: main
  security:
    capabilities:
      - identifier: broken
        windows: [settings]
        permissions: [build_report]
error_log:
  path: errors.db
`
	_, err := Parse([]byte(doc), FormatYAML)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if !strings.Contains(err.Error(), `unknown window "settings"`) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestOverrides(t *testing.T) {
	cfg, err := Source{
		Overrides: Overrides{
			ListenAddress: "127.0.0.1:9999",
			FrontendDist:  "testdata",
			DevWatch:      true,
			Headless:      true,
		},
	}.Resolve()
	if err != nil {
		t.Fatal(err)
	}
	want := AppConfig{ListenAddress: "127.0.0.1:9999", Headless: true}
	got := AppConfig{ListenAddress: cfg.App.ListenAddress, Headless: cfg.App.Headless}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("overrides mismatch (-want +got):\n%s", diff)
	}
	if !cfg.Build.DevWatch || cfg.Build.FrontendDist != "testdata" {
		t.Errorf("build overrides not applied: %+v", cfg.Build)
	}
}

func TestFormatFromPath(t *testing.T) {
	for path, want := range map[string]Format{
		"a.yaml": FormatYAML,
		"a.YML":  FormatYAML,
		"a.toml": FormatTOML,
		"a.json": FormatJSON,
	} {
		got, err := FormatFromPath(path)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		if got != want {
			t.Errorf("%s: got %s want %s", path, got, want)
		}
	}
}
