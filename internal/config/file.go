package config

import (
	"fmt"
	"time"

	"github.com/nao1215/mpasite/internal/route"
)

// File is the on-disk configuration (.mpasite.yaml).
// Zero values mean "not set" and leave the defaults of NewConfig untouched,
// which is why toggles are pointers.
type File struct {
	Root       string              `koanf:"root" yaml:"root,omitempty"`
	Host       string              `koanf:"host" yaml:"host,omitempty"`
	Port       int                 `koanf:"port" yaml:"port,omitempty"`
	Routes     []route.Route       `koanf:"routes" yaml:"routes,omitempty"`
	Categories map[string][]string `koanf:"categories" yaml:"categories,omitempty"`
	Enhance    EnhanceFile         `koanf:"enhance" yaml:"enhance,omitempty"`
	CORS       CORSFile            `koanf:"cors" yaml:"cors,omitempty"`
	Log        LogFile             `koanf:"log" yaml:"log,omitempty"`
	Server     ServerFile          `koanf:"server" yaml:"server,omitempty"`
	Check      CheckFile           `koanf:"check" yaml:"check,omitempty"`
}

// EnhanceFile is the enhance section of File.
type EnhanceFile struct {
	Enabled     *bool  `koanf:"enabled" yaml:"enabled,omitempty"`
	Images      *bool  `koanf:"images" yaml:"images,omitempty"`
	Sections    *bool  `koanf:"sections" yaml:"sections,omitempty"`
	HeaderStyle *bool  `koanf:"headerStyle" yaml:"headerStyle,omitempty"`
	Script      *bool  `koanf:"script" yaml:"script,omitempty"`
	ScriptPath  string `koanf:"scriptPath" yaml:"scriptPath,omitempty"`
	ScrollDelta int    `koanf:"scrollDelta" yaml:"scrollDelta,omitempty"`
	ShowAtTop   *int   `koanf:"showAtTop" yaml:"showAtTop,omitempty"`
}

// CORSFile is the cors section of File.
type CORSFile struct {
	AllowedOrigins []string `koanf:"allowedOrigins" yaml:"allowedOrigins,omitempty"`
}

// LogFile is the log section of File.
type LogFile struct {
	Verbose bool `koanf:"verbose" yaml:"verbose,omitempty"`
	JSON    bool `koanf:"json" yaml:"json,omitempty"`
}

// ServerFile is the server section of File. Durations use time.ParseDuration syntax.
type ServerFile struct {
	ShutdownTimeout   string `koanf:"shutdownTimeout" yaml:"shutdownTimeout,omitempty"`
	ReadHeaderTimeout string `koanf:"readHeaderTimeout" yaml:"readHeaderTimeout,omitempty"`
}

// CheckFile is the check section of File.
type CheckFile struct {
	Depth          *int     `koanf:"depth" yaml:"depth,omitempty"`
	MaxPages       int      `koanf:"maxPages" yaml:"maxPages,omitempty"`
	Concurrency    int      `koanf:"concurrency" yaml:"concurrency,omitempty"`
	Timeout        string   `koanf:"timeout" yaml:"timeout,omitempty"`
	Delay          string   `koanf:"delay" yaml:"delay,omitempty"`
	IgnorePatterns []string `koanf:"ignorePatterns" yaml:"ignorePatterns,omitempty"`
	FollowPatterns []string `koanf:"followPatterns" yaml:"followPatterns,omitempty"`
	ProbeAssets    *bool    `koanf:"probeAssets" yaml:"probeAssets,omitempty"`
	UserAgent      string   `koanf:"userAgent" yaml:"userAgent,omitempty"`
	DBDir          string   `koanf:"dbDir" yaml:"dbDir,omitempty"`
}

// DefaultFile returns a File holding every default explicitly.
// It is the content written by "mpasite init".
func DefaultFile() *File {
	cfg := NewConfig()
	return &File{
		Root:       cfg.Root,
		Port:       cfg.Port,
		Routes:     cfg.Routes,
		Categories: cfg.Categories,
		Enhance: EnhanceFile{
			Enabled:     boolPtr(cfg.Enhance.Enabled),
			Images:      boolPtr(cfg.Enhance.Images),
			Sections:    boolPtr(cfg.Enhance.Sections),
			HeaderStyle: boolPtr(cfg.Enhance.HeaderStyle),
			Script:      boolPtr(cfg.Enhance.Script),
			ScriptPath:  cfg.Enhance.ScriptPath,
			ScrollDelta: cfg.Enhance.ScrollDelta,
			ShowAtTop:   intPtr(cfg.Enhance.ShowAtTop),
		},
		Server: ServerFile{
			ShutdownTimeout:   cfg.ShutdownTimeout.String(),
			ReadHeaderTimeout: cfg.ReadHeaderTimeout.String(),
		},
		Check: CheckFile{
			Depth:       intPtr(cfg.Check.Depth),
			MaxPages:    cfg.Check.MaxPages,
			Concurrency: cfg.Check.Concurrency,
			Timeout:     cfg.Check.Timeout.String(),
			ProbeAssets: boolPtr(cfg.Check.ProbeAssets),
		},
	}
}

// Apply merges the values set in f into c.
// Values not set in f keep their current value.
func (c *Config) Apply(f *File) error {
	if f == nil {
		return nil
	}

	if f.Root != "" {
		c.Root = f.Root
	}
	if f.Host != "" {
		c.Host = f.Host
	}
	if f.Port != 0 {
		c.Port = f.Port
	}
	if len(f.Routes) > 0 {
		c.Routes = append([]route.Route(nil), f.Routes...)
	}
	if len(f.Categories) > 0 {
		c.Categories = make(map[string][]string, len(f.Categories))
		for loc, prefixes := range f.Categories {
			c.Categories[loc] = append([]string(nil), prefixes...)
		}
	}

	c.applyEnhance(f.Enhance)

	if len(f.CORS.AllowedOrigins) > 0 {
		c.AllowedOrigins = append([]string(nil), f.CORS.AllowedOrigins...)
	}
	if f.Log.Verbose {
		c.Verbose = true
	}
	if f.Log.JSON {
		c.JSONLogs = true
	}

	if err := setDuration(&c.ShutdownTimeout, "server.shutdownTimeout", f.Server.ShutdownTimeout); err != nil {
		return err
	}
	if err := setDuration(&c.ReadHeaderTimeout, "server.readHeaderTimeout", f.Server.ReadHeaderTimeout); err != nil {
		return err
	}

	return c.applyCheck(f.Check)
}

func (c *Config) applyEnhance(e EnhanceFile) {
	setBool(&c.Enhance.Enabled, e.Enabled)
	setBool(&c.Enhance.Images, e.Images)
	setBool(&c.Enhance.Sections, e.Sections)
	setBool(&c.Enhance.HeaderStyle, e.HeaderStyle)
	setBool(&c.Enhance.Script, e.Script)
	if e.ScriptPath != "" {
		c.Enhance.ScriptPath = e.ScriptPath
	}
	if e.ScrollDelta > 0 {
		c.Enhance.ScrollDelta = e.ScrollDelta
	}
	if e.ShowAtTop != nil {
		c.Enhance.ShowAtTop = *e.ShowAtTop
	}
}

func (c *Config) applyCheck(ch CheckFile) error {
	if ch.Depth != nil {
		c.Check.Depth = *ch.Depth
	}
	if ch.MaxPages != 0 {
		c.Check.MaxPages = ch.MaxPages
	}
	if ch.Concurrency != 0 {
		c.Check.Concurrency = ch.Concurrency
	}
	if len(ch.IgnorePatterns) > 0 {
		c.Check.IgnorePatterns = append([]string(nil), ch.IgnorePatterns...)
	}
	if ch.ProbeAssets != nil {
		c.Check.ProbeAssets = *ch.ProbeAssets
	}
	if len(ch.FollowPatterns) > 0 {
		c.Check.FollowPatterns = append([]string(nil), ch.FollowPatterns...)
	}
	if ch.UserAgent != "" {
		c.Check.UserAgent = ch.UserAgent
	}
	if ch.DBDir != "" {
		c.DBDir = ch.DBDir
	}
	if err := setDuration(&c.Check.Timeout, "check.timeout", ch.Timeout); err != nil {
		return err
	}
	return setDuration(&c.Check.Delay, "check.delay", ch.Delay)
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, key, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func boolPtr(v bool) *bool { return &v }

func intPtr(v int) *int { return &v }
