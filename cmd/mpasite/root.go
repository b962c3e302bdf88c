package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/mpasite/internal/config"
	"github.com/nao1215/mpasite/internal/log"
)

// NewRootCmd creates the root command for mpasite.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mpasite",
		Short: "Serve and check an exported multi-page marketing site",
		Long: `mpasite serves a multi-page marketing site exported from a framework build.

HTML responses are repaired on the fly: optimized image URLs are rewritten to
the original files, relative image paths are fixed on subpages, a lone page
section is activated and the header hide-on-scroll behavior is installed.
Category links in the header always trigger a full page load.

The check command crawls a deployed site (or the local export) and reports
broken links and images together with markup the enhancer would have to fix.
Results are stored so that later runs can be compared with history --diff.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("json-logs", false, "Write logs as JSON")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .mpasite.yaml in current, XDG config or home directory)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	return getPersistentBool(cmd, "verbose")
}

func getPersistentBool(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

func getPersistentString(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetString(name)
		if err != nil {
			return ""
		}
	}
	return v
}

// loadConfig builds the configuration shared by all commands: defaults,
// then the config file, then PORT and MPASITE_* variables, then the global
// flags. Command flags are applied by the caller before Validate.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	// An explicit --config must exist; the search locations are optional.
	explicitPath := getPersistentString(cmd, "config")
	configPath := config.FindConfigFile(explicitPath)
	if explicitPath != "" && configPath == "" {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, explicitPath)
	}

	f, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}
	if err := cfg.Apply(f); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	cfg.ConfigFilePath = configPath

	if getVerboseFlag(cmd) {
		cfg.Verbose = true
	}
	if getPersistentBool(cmd, "json-logs") {
		cfg.JSONLogs = true
	}

	return cfg, nil
}

// newLogger creates the process logger on the command's stderr and makes it
// the slog default.
func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	logger := log.New(cmd.ErrOrStderr(), cfg.Verbose, cfg.JSONLogs)
	slog.SetDefault(logger)
	return logger
}
