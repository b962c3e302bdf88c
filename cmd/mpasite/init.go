package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/mpasite/internal/config"
)

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new mpasite configuration file",
		Long: `Initialize creates a new .mpasite.yaml configuration file in the current directory.

The generated file holds every default explicitly:
- Site root, port and route table
- Category prefixes per locale used for hard navigation
- Enhancement toggles and header scroll thresholds
- Site checker limits and timeouts

Examples:
  # Create .mpasite.yaml in current directory
  mpasite init

  # Create config file at a specific path
  mpasite init -o deploy/mpasite.yaml

  # Force overwrite existing file
  mpasite init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := config.DefaultFile().Save(outputPath, force); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to configure:")
	fmt.Fprintln(out, "  - Routes and category prefixes of your site")
	fmt.Fprintln(out, "  - Which page fixes are applied")
	fmt.Fprintln(out, "  - Crawl limits of the site checker")

	return nil
}
