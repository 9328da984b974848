// Package config resolves the application configuration from the packaged
// context. The packaged context is embedded in the binary and may be replaced by
// a yaml, toml or json file at startup. A configuration is validated once and
// then treated as read-only for the life of the process.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"
)

//go:embed context.yaml
var packagedContext []byte

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// defaults applied by validateAndPrepare.
const (
	defaultListenAddress = "127.0.0.1:0"
	defaultWindowURL     = "index.html"
	defaultWindowWidth   = 800
	defaultWindowHeight  = 600

	// AllWindows in a capability grants its permissions to every window.
	AllWindows = "*"
)

// Config represents the entire application configuration.
type Config struct {
	ProductName string         `yaml:"product_name" toml:"product_name" json:"product_name"`
	Version     string         `yaml:"version" toml:"version" json:"version"`
	Identifier  string         `yaml:"identifier" toml:"identifier" json:"identifier"`
	Build       BuildConfig    `yaml:"build" toml:"build" json:"build"`
	App         AppConfig      `yaml:"app" toml:"app" json:"app"`
	ErrorLog    ErrorLogConfig `yaml:"error_log" toml:"error_log" json:"error_log"`
}

// BuildConfig describes where the front-end comes from.
type BuildConfig struct {
	FrontendDist string `yaml:"frontend_dist" toml:"frontend_dist" json:"frontend_dist"` // "" uses the embedded front-end
	DevWatch     bool   `yaml:"dev_watch" toml:"dev_watch" json:"dev_watch"`
}

// AppConfig holds the runtime settings: listen address, windows and security.
type AppConfig struct {
	ListenAddress string         `yaml:"listen_address" toml:"listen_address" json:"listen_address"`
	Headless      bool           `yaml:"headless" toml:"headless" json:"headless"`
	Windows       []WindowConfig `yaml:"windows" toml:"windows" json:"windows"`
	Security      SecurityConfig `yaml:"security" toml:"security" json:"security"`
}

// WindowConfig describes a single window.
type WindowConfig struct {
	Label     string `yaml:"label" toml:"label" json:"label"`
	Title     string `yaml:"title" toml:"title" json:"title"`
	Width     int    `yaml:"width" toml:"width" json:"width"`
	Height    int    `yaml:"height" toml:"height" json:"height"`
	URL       string `yaml:"url" toml:"url" json:"url"`
	Hidden    bool   `yaml:"hidden" toml:"hidden" json:"hidden"`
	Resizable bool   `yaml:"resizable" toml:"resizable" json:"resizable"`
}

// SecurityConfig holds the capability declarations.
type SecurityConfig struct {
	Capabilities []Capability `yaml:"capabilities" toml:"capabilities" json:"capabilities"`
}

// Capability grants a set of commands to a set of windows.
type Capability struct {
	Identifier  string   `yaml:"identifier" toml:"identifier" json:"identifier"`
	Description string   `yaml:"description" toml:"description" json:"description"`
	Windows     []string `yaml:"windows" toml:"windows" json:"windows"`
	Permissions []string `yaml:"permissions" toml:"permissions" json:"permissions"`
}

// ErrorLogConfig holds the location of the local error log database.
type ErrorLogConfig struct {
	Path string `yaml:"path" toml:"path" json:"path"`
}

// Overrides are process level settings, usually from flags or the environment,
// applied to the context before validation. Zero values leave the context as is.
type Overrides struct {
	ListenAddress string
	FrontendDist  string
	DevWatch      bool
	Headless      bool
}

// Source resolves a Config. The zero Source resolves the packaged context.
type Source struct {
	Path      string // optional context file replacing the packaged context
	Overrides Overrides
}

// Resolve reads, overrides and validates the context.
func (s Source) Resolve() (*Config, error) {
	var (
		cfg *Config
		err error
	)
	if s.Path == "" {
		cfg, err = decode(packagedContext, FormatYAML)
		if err != nil {
			return nil, fmt.Errorf("packaged context: %w", err)
		}
	} else {
		cfg, err = readFile(s.Path)
		if err != nil {
			return nil, err
		}
	}
	cfg.apply(s.Overrides)
	if err := validateAndPrepare(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Packaged returns the validated packaged context.
func Packaged() (*Config, error) {
	return Source{}.Resolve()
}

// Load loads and validates the configuration from the given file path.
func Load(filePath string) (*Config, error) {
	return Source{Path: filePath}.Resolve()
}

// Parse decodes and validates data in the given format.
func Parse(data []byte, format Format) (*Config, error) {
	cfg, err := decode(data, format)
	if err != nil {
		return nil, err
	}
	if err := validateAndPrepare(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readFile(filePath string) (*Config, error) {
	format, err := FormatFromPath(filePath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("context file does not exist: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read context file: %w", err)
	}
	cfg, err := decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("context file %s: %w", filePath, err)
	}
	return cfg, nil
}

func (c *Config) apply(o Overrides) {
	if o.ListenAddress != "" {
		c.App.ListenAddress = o.ListenAddress
	}
	if o.FrontendDist != "" {
		c.Build.FrontendDist = o.FrontendDist
	}
	if o.DevWatch {
		c.Build.DevWatch = true
	}
	if o.Headless {
		c.App.Headless = true
	}
}

var (
	identifierRegexp = regexp.MustCompile(`^[A-Za-z0-9-]+(\.[A-Za-z0-9-]+)+$`)
	labelRegexp      = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// validateAndPrepare checks for required fields and sets up derived values.
func validateAndPrepare(c *Config) error {
	// General
	c.ProductName = strings.TrimSpace(c.ProductName)
	if c.ProductName == "" {
		return invalid("product_name is missing")
	}
	if strings.TrimSpace(c.Version) == "" {
		return invalid("version is missing")
	}
	if !identifierRegexp.MatchString(c.Identifier) {
		return invalid("identifier %q should be in reverse domain form, e.g. com.example.app", c.Identifier)
	}

	// Build
	if c.Build.DevWatch && c.Build.FrontendDist == "" {
		return invalid("build.dev_watch needs build.frontend_dist to be set")
	}

	// App
	if c.App.ListenAddress == "" {
		c.App.ListenAddress = defaultListenAddress
	}
	if _, _, err := net.SplitHostPort(c.App.ListenAddress); err != nil {
		return invalid("app.listen_address %q: %v", c.App.ListenAddress, err)
	}
	if len(c.App.Windows) == 0 {
		return invalid("app.windows needs at least one window")
	}
	labels := make(map[string]bool, len(c.App.Windows))
	for i := range c.App.Windows {
		w := &c.App.Windows[i]
		if !labelRegexp.MatchString(w.Label) {
			return invalid("app.windows[%d].label %q is missing or invalid", i, w.Label)
		}
		if labels[w.Label] {
			return invalid("app.windows[%d].label %q is duplicated", i, w.Label)
		}
		labels[w.Label] = true
		if w.Title == "" {
			w.Title = c.ProductName
		}
		if w.Width < 0 || w.Height < 0 {
			return invalid("app.windows[%d] %q has a negative size", i, w.Label)
		}
		if w.Width == 0 {
			w.Width = defaultWindowWidth
		}
		if w.Height == 0 {
			w.Height = defaultWindowHeight
		}
		if w.URL == "" {
			w.URL = defaultWindowURL
		}
		if !validDocument(w.URL) {
			return invalid("app.windows[%d].url %q must be a relative path inside the front-end", i, w.URL)
		}
	}

	// Security
	capIDs := map[string]bool{}
	for i, cp := range c.App.Security.Capabilities {
		if strings.TrimSpace(cp.Identifier) == "" {
			return invalid("app.security.capabilities[%d].identifier is missing", i)
		}
		if capIDs[cp.Identifier] {
			return invalid("capability %q is duplicated", cp.Identifier)
		}
		capIDs[cp.Identifier] = true
		if len(cp.Windows) == 0 {
			return invalid("capability %q names no windows", cp.Identifier)
		}
		for _, w := range cp.Windows {
			if w != AllWindows && !labels[w] {
				return invalid("capability %q names unknown window %q", cp.Identifier, w)
			}
		}
		for _, p := range cp.Permissions {
			if strings.TrimSpace(p) == "" {
				return invalid("capability %q has an empty permission", cp.Identifier)
			}
		}
	}

	// Error log
	if strings.TrimSpace(c.ErrorLog.Path) == "" {
		return invalid("error_log.path is missing")
	}
	return nil
}

// validDocument reports whether p is a clean relative path such as
// "index.html" or "pages/report.html". A query string is not allowed.
func validDocument(p string) bool {
	if strings.ContainsAny(p, "?#\\") {
		return false
	}
	return path.Clean(p) == p && !strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "..")
}

// Window returns the window with the given label.
func (c *Config) Window(label string) (WindowConfig, bool) {
	for _, w := range c.App.Windows {
		if w.Label == label {
			return w, true
		}
	}
	return WindowConfig{}, false
}

// VisibleWindows returns the windows to be shown at startup, in declaration
// order.
func (c *Config) VisibleWindows() []WindowConfig {
	var out []WindowConfig
	for _, w := range c.App.Windows {
		if !w.Hidden {
			out = append(out, w)
		}
	}
	return out
}

// Allowed reports whether a capability grants command to window.
func (c *Config) Allowed(window, command string) bool {
	for _, cp := range c.App.Security.Capabilities {
		if !c.grantsWindow(cp, window) {
			continue
		}
		for _, p := range cp.Permissions {
			if p == command {
				return true
			}
		}
	}
	return false
}

// Permissions returns every command granted by some capability, with the
// identifier of the first capability granting it.
func (c *Config) Permissions() map[string]string {
	out := map[string]string{}
	for _, cp := range c.App.Security.Capabilities {
		for _, p := range cp.Permissions {
			if _, ok := out[p]; !ok {
				out[p] = cp.Identifier
			}
		}
	}
	return out
}

// WindowsFor lists the window labels allowed to invoke command.
func (c *Config) WindowsFor(command string) []string {
	var out []string
	for _, w := range c.App.Windows {
		if c.Allowed(w.Label, command) {
			out = append(out, w.Label)
		}
	}
	return out
}

// GrantedTo lists, sorted and without repeats, the commands window may invoke.
func (c *Config) GrantedTo(window string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, cp := range c.App.Security.Capabilities {
		if !c.grantsWindow(cp, window) {
			continue
		}
		for _, p := range cp.Permissions {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out
}

// grantsWindow reports whether cp covers window, which must be a configured
// window for the wildcard to apply.
func (c *Config) grantsWindow(cp Capability, window string) bool {
	if _, ok := c.Window(window); !ok {
		return false
	}
	for _, w := range cp.Windows {
		if w == AllWindows || w == window {
			return true
		}
	}
	return false
}
