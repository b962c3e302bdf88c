package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/mpasite/internal/route"
	"github.com/nao1215/mpasite/internal/script"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "mpasite"

	// DefaultPort is used when neither PORT nor the config file sets one.
	DefaultPort = 3000

	// DefaultRoot serves the working directory, which is where the exported
	// site usually lives next to the binary.
	DefaultRoot = "."

	// DefaultShutdownTimeout bounds how long in-flight requests may run after
	// SIGINT/SIGTERM.
	DefaultShutdownTimeout = 10 * time.Second

	// DefaultReadHeaderTimeout protects the server from slow clients.
	DefaultReadHeaderTimeout = 10 * time.Second

	// DefaultCheckDepth is the link depth the site checker follows.
	// Marketing sites are shallow; five levels reach every page in practice.
	DefaultCheckDepth = 5

	// DefaultCheckMaxPages caps a single check run.
	DefaultCheckMaxPages = 200

	// DefaultCheckConcurrency is the number of parallel asset probes.
	DefaultCheckConcurrency = 8

	// DefaultCheckTimeout is the per-request timeout of the site checker.
	DefaultCheckTimeout = 30 * time.Second

	// DefaultUserAgent identifies the site checker in access logs.
	DefaultUserAgent = "mpasite-check/1.0 (+https://github.com/nao1215/mpasite)"
)

// Config holds all runtime options for mpasite.
// It is built from defaults, the config file, the environment and CLI flags,
// and passed down explicitly rather than kept in globals.
type Config struct {
	// Root is the directory holding the exported site.
	Root string

	// Host is the interface to listen on. Empty means all interfaces.
	Host string

	// Port is the TCP port to listen on.
	Port int

	// Routes are literal path-to-file mappings served in addition to the
	// static files under Root.
	Routes []route.Route

	// Categories are the category path prefixes keyed by locale
	// (route.DefaultLocale for unprefixed paths).
	Categories map[string][]string

	// Enhance controls the page fixes applied to HTML responses.
	Enhance EnhanceConfig

	// AllowedOrigins enables CORS for the listed origins. Empty disables CORS.
	AllowedOrigins []string

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration

	// ReadHeaderTimeout is passed to http.Server.
	ReadHeaderTimeout time.Duration

	// Verbose enables debug logging.
	Verbose bool

	// JSONLogs switches the log handler to JSON.
	JSONLogs bool

	// ConfigFilePath is the config file that was loaded, if any.
	ConfigFilePath string

	// Check holds site checker options.
	Check CheckConfig

	// DBDir is the directory of the check history database.
	// Defaults to the XDG data directory (~/.local/share/mpasite on Linux).
	DBDir string
}

// EnhanceConfig toggles the individual page fixes.
type EnhanceConfig struct {
	// Enabled is the master switch for HTML rewriting.
	Enabled bool

	// Images repairs optimizer and relative image URLs.
	Images bool

	// Sections activates the only page section of a page.
	Sections bool

	// HeaderStyle injects the hide-on-scroll stylesheet.
	HeaderStyle bool

	// Script injects and serves the client script.
	Script bool

	// ScriptPath is the URL path of the client script.
	ScriptPath string

	// ScrollDelta and ShowAtTop are the header thresholds in pixels.
	ScrollDelta int
	ShowAtTop   int
}

// CheckConfig holds options of the check command.
type CheckConfig struct {
	// Depth is the maximum link depth from the start page.
	Depth int

	// MaxPages caps the number of pages fetched.
	MaxPages int

	// Concurrency is the number of parallel asset probes.
	Concurrency int

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// Delay is the pause between page fetches.
	Delay time.Duration

	// IgnorePatterns are glob patterns of paths that are not crawled.
	IgnorePatterns []string

	// FollowPatterns, when set, restrict the crawl to matching paths.
	FollowPatterns []string

	// ProbeAssets requests images, stylesheets, scripts and uncrawled
	// links to verify they exist.
	ProbeAssets bool

	// UserAgent is sent with every checker request.
	UserAgent string

	// JSONReport, MarkdownReport and HTMLReport select the report format.
	// At most one may be set.
	JSONReport     bool
	MarkdownReport bool
	HTMLReport     bool

	// SaveToDB stores the report in the history database.
	SaveToDB bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Root:       DefaultRoot,
		Port:       DefaultPort,
		Routes:     route.DefaultRoutes(),
		Categories: route.DefaultCategoryMap(),
		Enhance: EnhanceConfig{
			Enabled:     true,
			Images:      true,
			Sections:    true,
			HeaderStyle: true,
			Script:      true,
			ScriptPath:  script.DefaultPath,
			ScrollDelta: script.DefaultScrollDelta,
			ShowAtTop:   script.DefaultShowAtTop,
		},
		ShutdownTimeout:   DefaultShutdownTimeout,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		Check: CheckConfig{
			Depth:       DefaultCheckDepth,
			MaxPages:    DefaultCheckMaxPages,
			Concurrency: DefaultCheckConcurrency,
			Timeout:     DefaultCheckTimeout,
			UserAgent:   DefaultUserAgent,
			ProbeAssets: true,
			SaveToDB:    true,
		},
		DBDir: XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for mpasite.
// On Linux: ~/.local/share/mpasite
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for mpasite.
// On Linux: ~/.config/mpasite
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Locales returns the non-default locales named in Categories, sorted.
func (c *Config) Locales() []string {
	locales := make([]string, 0, len(c.Categories))
	for loc := range c.Categories {
		if loc == route.DefaultLocale {
			continue
		}
		locales = append(locales, strings.ToLower(loc))
	}
	if len(locales) == 0 {
		return append([]string(nil), route.DefaultLocales...)
	}
	sort.Strings(locales)
	return locales
}

// RouteTable builds the route table from Routes.
func (c *Config) RouteTable() (*route.Table, error) {
	return route.NewTable(c.Routes)
}

// CategoryList builds the category allowlist from Categories.
func (c *Config) CategoryList() (*route.Categories, error) {
	return route.NewCategories(c.Categories)
}

// Validate checks if the configuration is valid.
// It returns the first problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Root) == "" {
		return ErrNoRoot
	}

	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	if c.Enhance.Script && !strings.HasPrefix(c.Enhance.ScriptPath, "/") {
		return ErrInvalidScriptPath
	}

	if _, err := c.RouteTable(); err != nil {
		return fmt.Errorf("invalid routes: %w", err)
	}

	if _, err := c.CategoryList(); err != nil {
		return fmt.Errorf("invalid categories: %w", err)
	}

	return c.Check.Validate()
}

// Validate checks the check command options.
func (c *CheckConfig) Validate() error {
	if c.Depth < 0 {
		return ErrInvalidDepth
	}
	if c.MaxPages <= 0 {
		return ErrInvalidMaxPages
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	formats := 0
	for _, set := range []bool{c.JSONReport, c.MarkdownReport, c.HTMLReport} {
		if set {
			formats++
		}
	}
	if formats > 1 {
		return ErrConflictingReportFormats
	}
	return nil
}
