package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/mpasite/internal/config"
	"github.com/nao1215/mpasite/internal/server"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the exported site",
		Long: `Serve the exported site from the root directory.

Routes:
  /                                   index.html
  /citizenship, /ru/citizenship       citizenship.html (with or without a trailing slash)
  anything else                       a static file under the root, or 404 "Not Found"

The port is taken from --port, then the PORT environment variable, then the
config file, and defaults to 3000. SIGINT and SIGTERM shut the server down
gracefully.

Examples:
  # Serve the current directory on port 3000
  mpasite serve

  # Serve ./out on port 8080
  mpasite serve --root ./out --port 8080

  # Serve the files exactly as exported
  mpasite serve --no-enhance`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	cmd.Flags().IntP("port", "p", config.DefaultPort,
		"Port to listen on (overrides PORT)")
	cmd.Flags().StringP("root", "r", config.DefaultRoot,
		"Directory holding the exported site")
	cmd.Flags().String("host", "",
		"Interface to listen on (default: all interfaces)")
	cmd.Flags().Bool("no-enhance", false,
		"Serve HTML without the page fixes and client script")

	return cmd
}

// runServeCmd executes the serve command.
func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildServeConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(cmd, cfg)

	srv, err := server.NewFromConfig(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Debug("starting server",
		"root", cfg.Root,
		"addr", cfg.Addr(),
		"enhance", cfg.Enhance.Enabled,
		"config", cfg.ConfigFilePath,
	)

	return serve(ctx, srv, cfg.Addr(), cmd.OutOrStdout())
}

// serve runs srv until ctx is done and prints the local URL once listening.
func serve(ctx context.Context, srv *server.Server, addr string, out io.Writer) error {
	err := srv.ListenAndServe(ctx, addr, func(a net.Addr) {
		fmt.Fprintf(out, "→ http://localhost:%d\n", listenPort(a))
	})
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// buildServeConfig loads the shared configuration and applies the serve flags.
func buildServeConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		if cfg.Port, err = flags.GetInt("port"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("root") {
		if cfg.Root, err = flags.GetString("root"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("host") {
		if cfg.Host, err = flags.GetString("host"); err != nil {
			return nil, err
		}
	}

	noEnhance, err := flags.GetBool("no-enhance")
	if err != nil {
		return nil, err
	}
	if noEnhance {
		cfg.Enhance.Enabled = false
	}

	return cfg, nil
}

// listenPort returns the TCP port of a, or 0 for other address types.
func listenPort(a net.Addr) int {
	if tcp, ok := a.(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}
