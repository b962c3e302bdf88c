package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".mpasite.yaml"

// EnvPrefix is the prefix of environment overrides (MPASITE_ENHANCE_IMAGES=false).
const EnvPrefix = "MPASITE_"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// Load reads the configuration file at path, then overlays the PORT
// variable and MPASITE_* environment overrides.
// An empty path skips the file and only reads the environment.
// If path is set but the file does not exist, it returns ErrConfigNotFound.
func Load(path string) (*File, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return nil, ErrConfigNotFound
			}
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	// PORT is the conventional variable set by hosting platforms.
	if err := k.Load(env.ProviderWithValue("PORT", ".", func(key, value string) (string, any) {
		if key != "PORT" || value == "" {
			return "", nil
		}
		return "port", value
	}), nil); err != nil {
		return nil, fmt.Errorf("loading PORT: %w", err)
	}

	// MPASITE_ENHANCE_SCRIPT -> enhance.script, etc.
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, any) {
		if value == "" {
			return "", nil
		}
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "_", "."), value
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	var f File
	if err := k.Unmarshal("", &f); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return &f, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .mpasite.yaml in the current directory
// 3. Look for config.yaml in the XDG config directory
// 4. Look for .mpasite.yaml in the user's home directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	candidates := make([]string, 0, 3)
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), "config.yaml"))
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

const fileHeader = `# mpasite configuration.
# Every key can be overridden with MPASITE_<SECTION>_<KEY>, e.g. MPASITE_ENHANCE_SCRIPT=false.
# PORT overrides port.
`

// Encode writes f as YAML, preceded by a short header comment.
func (f *File) Encode(w io.Writer) error {
	var buf bytes.Buffer
	buf.WriteString(fileHeader)

	enc := yamlv3.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// Save writes f to path. It refuses to overwrite an existing file unless force is set.
func (f *File) Save(path string, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}

	out, err := os.OpenFile(path, flags, 0o600) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	if err := f.Encode(out); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
