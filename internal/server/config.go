package server

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/nao1215/mpasite/internal/config"
	"github.com/nao1215/mpasite/internal/enhance"
	"github.com/nao1215/mpasite/internal/script"
)

// NewFromConfig creates a Server for cfg.Root with the routes, categories
// and enhancement settings of cfg.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	info, err := os.Stat(cfg.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRootNotFound, cfg.Root)
		}
		return nil, fmt.Errorf("failed to access site root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootNotDir, cfg.Root)
	}

	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, WithLogger(logger))
	return New(os.DirFS(cfg.Root), opts...), nil
}

// Options translates cfg into server options. It is split from
// NewFromConfig so callers can serve a different fs.FS with the same settings.
func Options(cfg *config.Config) ([]Option, error) {
	table, err := cfg.RouteTable()
	if err != nil {
		return nil, fmt.Errorf("invalid routes: %w", err)
	}
	categories, err := cfg.CategoryList()
	if err != nil {
		return nil, fmt.Errorf("invalid categories: %w", err)
	}

	opts := []Option{
		WithRoutes(table),
		WithLocales(cfg.Locales()),
		WithAllowedOrigins(cfg.AllowedOrigins),
		WithReadHeaderTimeout(cfg.ReadHeaderTimeout),
		WithShutdownTimeout(cfg.ShutdownTimeout),
	}

	if !cfg.Enhance.Enabled {
		return opts, nil
	}

	rwOpts := []enhance.RewriterOption{
		enhance.WithImages(cfg.Enhance.Images),
		enhance.WithSections(cfg.Enhance.Sections),
		enhance.WithHeaderStyle(cfg.Enhance.HeaderStyle),
	}
	if cfg.Enhance.Script {
		js, err := script.Render(script.Params{
			Categories:  categories.Prefixes(),
			ScrollDelta: cfg.Enhance.ScrollDelta,
			ShowAtTop:   cfg.Enhance.ShowAtTop,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to render client script: %w", err)
		}
		opts = append(opts, WithScript(cfg.Enhance.ScriptPath, js))
		rwOpts = append(rwOpts, enhance.WithScript(cfg.Enhance.ScriptPath))
	}
	return append(opts, WithRewriter(enhance.NewRewriter(rwOpts...))), nil
}
