package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/mpasite/internal/config"
	"github.com/nao1215/mpasite/internal/database"
	"github.com/nao1215/mpasite/internal/log"
	"github.com/nao1215/mpasite/internal/model"
	"github.com/nao1215/mpasite/internal/pipeline"
	"github.com/nao1215/mpasite/internal/report"
	"github.com/nao1215/mpasite/internal/server"
)

// ErrFindingsAtOrAbove is returned by check when --fail-on is set and the
// report holds a finding of that severity or higher.
var ErrFindingsAtOrAbove = errors.New("findings at or above the failure threshold")

// checkOptions are the check flags that are not part of config.Config.
type checkOptions struct {
	targets    []string
	headers    map[string]string
	outputPath string
	quiet      bool
	raw        bool
	failOn     *model.Severity
	batch      int
}

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [url...]",
		Short: "Check a site for broken links, images and leftover markup",
		Long: `Check crawls a site breadth-first and audits every page.

Without arguments the local export under --root is served on a loopback port
and checked as the browser would see it. With one or more URLs the deployed
sites are checked; several sites are checked concurrently.

Findings:
  HIGH    broken internal link, image, stylesheet or script (status >= 400)
  MEDIUM  leftover optimizer image URL (/_next/image)
  LOW     relative images/ path on a subpage
  INFO    several page sections, category link without trailing slash

Every run is saved to the history database unless --no-save is given.
Use 'mpasite history --diff <site>' to compare the last two runs.

Examples:
  # Check the local export in ./out
  mpasite check --root ./out

  # Check the exported files without the page fixes
  mpasite check --root ./out --raw

  # Check a deployed site and fail on broken links
  mpasite check --fail-on high https://example.com

  # Check a protected staging host and write a Markdown report
  mpasite check --header "Authorization: Basic dXNlcjpwYXNz" --markdown -o report.md https://staging.example.com`,
		Args: cobra.ArbitraryArgs,
		RunE: runCheckCmd,
	}

	// Crawl flags
	cmd.Flags().StringP("root", "r", config.DefaultRoot,
		"Directory holding the exported site (used when no URL is given)")
	cmd.Flags().IntP("depth", "d", config.DefaultCheckDepth,
		"Maximum link depth from the start page")
	cmd.Flags().IntP("max-pages", "m", config.DefaultCheckMaxPages,
		"Maximum number of pages to fetch per site")
	cmd.Flags().Int("concurrency", config.DefaultCheckConcurrency,
		"Number of parallel asset probes")
	cmd.Flags().IntP("batch", "b", 4,
		"Number of sites checked concurrently")
	cmd.Flags().DurationP("timeout", "t", config.DefaultCheckTimeout,
		"Timeout for each request")
	cmd.Flags().Duration("delay", 0,
		"Pause between page fetches")
	cmd.Flags().StringSlice("ignore", nil,
		"Glob pattern of paths not to crawl (repeatable)")
	cmd.Flags().StringSlice("follow", nil,
		"Only crawl paths matching this glob pattern (repeatable)")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	cmd.Flags().StringArrayP("header", "H", nil,
		`Extra request header as "Name: Value" (repeatable)`)
	cmd.Flags().Bool("no-probe", false,
		"Skip existence probes for assets and uncrawled links")
	cmd.Flags().Bool("raw", false,
		"Check the local export without the page fixes")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report")
	cmd.Flags().Bool("markdown", false,
		"Output Markdown report")
	cmd.Flags().Bool("html", false,
		"Output HTML report rendered from the Markdown report")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().BoolP("quiet", "q", false,
		"Hide the progress spinner")
	cmd.Flags().String("fail-on", "",
		"Exit with an error if a finding of this severity or higher exists (info, low, medium, high)")
	cmd.Flags().Bool("no-save", false,
		"Do not save the run to the history database")

	return cmd
}

// runCheckCmd executes the check command.
func runCheckCmd(cmd *cobra.Command, args []string) error {
	cfg, opts, err := buildCheckConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// Progress output and info logs would interleave on stderr.
	var logger *slog.Logger
	if cfg.Verbose {
		logger = newLogger(cmd, cfg)
	} else {
		logger = log.NewLevel(cmd.ErrOrStderr(), slog.LevelWarn, cfg.JSONLogs)
		slog.SetDefault(logger)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store pipeline.ReportStore
	if cfg.Check.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Debug("database opened", "path", db.Path())
		store = db
	}

	var reports []*model.CheckReport
	if len(opts.targets) == 0 {
		reports, err = runLocalCheck(ctx, cmd, cfg, opts, store, logger)
	} else {
		reports, err = runRemoteCheck(ctx, cmd, cfg, opts, store, logger)
	}
	if err != nil {
		return err
	}

	if err := outputReports(cmd.OutOrStdout(), cfg, opts, reports); err != nil {
		return err
	}

	return checkThreshold(reports, opts.failOn)
}

// buildCheckConfig loads the shared configuration and applies the check flags.
func buildCheckConfig(cmd *cobra.Command, args []string) (*config.Config, *checkOptions, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("root") {
		if cfg.Root, err = flags.GetString("root"); err != nil {
			return nil, nil, err
		}
	}
	if flags.Changed("depth") {
		if cfg.Check.Depth, err = flags.GetInt("depth"); err != nil {
			return nil, nil, err
		}
	}
	if flags.Changed("max-pages") {
		if cfg.Check.MaxPages, err = flags.GetInt("max-pages"); err != nil {
			return nil, nil, err
		}
	}
	if flags.Changed("concurrency") {
		if cfg.Check.Concurrency, err = flags.GetInt("concurrency"); err != nil {
			return nil, nil, err
		}
	}
	if flags.Changed("timeout") {
		if cfg.Check.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, nil, err
		}
	}
	if flags.Changed("delay") {
		if cfg.Check.Delay, err = flags.GetDuration("delay"); err != nil {
			return nil, nil, err
		}
	}
	if flags.Changed("user-agent") {
		if cfg.Check.UserAgent, err = flags.GetString("user-agent"); err != nil {
			return nil, nil, err
		}
	}

	ignore, err := flags.GetStringSlice("ignore")
	if err != nil {
		return nil, nil, err
	}
	cfg.Check.IgnorePatterns = append(cfg.Check.IgnorePatterns, ignore...)

	noProbe, err := flags.GetBool("no-probe")
	if err != nil {
		return nil, nil, err
	}
	if noProbe {
		cfg.Check.ProbeAssets = false
	}

	follow, err := flags.GetStringSlice("follow")
	if err != nil {
		return nil, nil, err
	}
	cfg.Check.FollowPatterns = append(cfg.Check.FollowPatterns, follow...)

	if cfg.Check.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, nil, err
	}
	if cfg.Check.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, nil, err
	}
	if cfg.Check.HTMLReport, err = flags.GetBool("html"); err != nil {
		return nil, nil, err
	}

	noSave, err := flags.GetBool("no-save")
	if err != nil {
		return nil, nil, err
	}
	if noSave {
		cfg.Check.SaveToDB = false
	}

	opts := &checkOptions{}
	if opts.outputPath, err = flags.GetString("output"); err != nil {
		return nil, nil, err
	}
	if opts.quiet, err = flags.GetBool("quiet"); err != nil {
		return nil, nil, err
	}
	if opts.raw, err = flags.GetBool("raw"); err != nil {
		return nil, nil, err
	}
	if opts.batch, err = flags.GetInt("batch"); err != nil {
		return nil, nil, err
	}

	rawHeaders, err := flags.GetStringArray("header")
	if err != nil {
		return nil, nil, err
	}
	if opts.headers, err = parseHeaders(rawHeaders); err != nil {
		return nil, nil, err
	}

	failOn, err := flags.GetString("fail-on")
	if err != nil {
		return nil, nil, err
	}
	if failOn != "" {
		sev, err := model.ParseSeverity(failOn)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --fail-on: %w", err)
		}
		opts.failOn = &sev
	}

	for _, arg := range args {
		target, err := normalizeTarget(arg)
		if err != nil {
			return nil, nil, err
		}
		opts.targets = append(opts.targets, target)
	}

	return cfg, opts, nil
}

// normalizeTarget turns a command line argument into the absolute site URL
// used as the report site. A missing scheme defaults to https.
func normalizeTarget(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty site URL")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid site URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid site URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid site URL %q: missing host", raw)
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// parseHeaders parses "Name: Value" pairs.
func parseHeaders(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q: want \"Name: Value\"", h)
		}
		headers[http.CanonicalHeaderKey(name)] = strings.TrimSpace(value)
	}
	return headers, nil
}

// pipelineOptions translates cfg into the options of the check pipeline.
func pipelineOptions(cfg *config.Config, opts *checkOptions, store pipeline.ReportStore, logger *slog.Logger) ([]pipeline.DefaultPipelineOption, error) {
	categories, err := cfg.CategoryList()
	if err != nil {
		return nil, fmt.Errorf("invalid categories: %w", err)
	}

	configOpts := []pipeline.DefaultPipelineOption{
		pipeline.WithPipelineCrawlDepth(cfg.Check.Depth),
		pipeline.WithPipelineCrawlMaxPages(cfg.Check.MaxPages),
		pipeline.WithPipelineCrawlDelay(cfg.Check.Delay),
		pipeline.WithPipelineConcurrency(cfg.Check.Concurrency),
		pipeline.WithPipelineUserAgent(cfg.Check.UserAgent),
		pipeline.WithPipelineProbeAssets(cfg.Check.ProbeAssets),
		pipeline.WithPipelineCategories(categories, cfg.Locales()),
		pipeline.WithPipelineLogger(logger),
	}
	if len(cfg.Check.IgnorePatterns) > 0 {
		configOpts = append(configOpts, pipeline.WithPipelineIgnorePatterns(cfg.Check.IgnorePatterns))
	}
	if len(cfg.Check.FollowPatterns) > 0 {
		configOpts = append(configOpts, pipeline.WithPipelineFollowPatterns(cfg.Check.FollowPatterns))
	}
	if len(opts.headers) > 0 {
		configOpts = append(configOpts, pipeline.WithPipelineHeaders(opts.headers))
	}
	if store != nil {
		configOpts = append(configOpts, pipeline.WithPipelineStore(store))
	}
	return configOpts, nil
}

// runLocalCheck serves cfg.Root on a loopback listener and checks it.
// The report site is the absolute root directory so that runs of the same
// export can be compared although the port changes.
func runLocalCheck(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts *checkOptions, store pipeline.ReportStore, logger *slog.Logger) ([]*model.CheckReport, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve site root: %w", err)
	}

	if opts.raw {
		cfg.Enhance.Enabled = false
	}
	// Request logs of the in-process server are noise in a check.
	srv, err := server.NewFromConfig(cfg, log.Discard())
	if err != nil {
		return nil, err
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to listen on loopback: %w", err)
	}
	startURL := "http://" + ln.Addr().String() + "/"

	srvCtx, cancel := context.WithCancel(ctx)
	var g errgroup.Group
	g.Go(func() error {
		return srv.Serve(srvCtx, ln)
	})
	defer func() {
		cancel()
		if err := g.Wait(); err != nil {
			logger.Warn("local server stopped with error", "error", err)
		}
	}()

	logger.Debug("serving local site", "root", root, "url", startURL, "enhance", cfg.Enhance.Enabled)

	configOpts, err := pipelineOptions(cfg, opts, store, logger)
	if err != nil {
		return nil, err
	}
	configOpts = append(configOpts, pipeline.WithPipelineStartURL(startURL))

	client := &http.Client{Timeout: cfg.Check.Timeout}
	p := pipeline.DefaultPipeline(client, []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithContinueOnError(true),
	}, configOpts...)

	stopSpinner := startSpinner(cmd.ErrOrStderr(), opts.quiet || cfg.Verbose, "Checking "+root)
	checkReport := model.NewCheckReport(root)
	err = p.Execute(ctx, checkReport)
	stopSpinner()
	if checkReport.FinishedAt.IsZero() {
		checkReport.Finish()
	}
	if err != nil {
		return nil, fmt.Errorf("check of %s failed: %w", root, err)
	}

	return []*model.CheckReport{checkReport}, nil
}

// runRemoteCheck checks the target URLs with a BatchProcessor.
func runRemoteCheck(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts *checkOptions, store pipeline.ReportStore, logger *slog.Logger) ([]*model.CheckReport, error) {
	configOpts, err := pipelineOptions(cfg, opts, store, logger)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: cfg.Check.Timeout}
	bp := pipeline.NewBatchProcessor(
		func(string) *pipeline.Pipeline {
			return pipeline.DefaultPipeline(client, []pipeline.Option{
				pipeline.WithLogger(logger),
				pipeline.WithContinueOnError(true),
			}, configOpts...)
		},
		pipeline.WithConcurrency(opts.batch),
		pipeline.WithBatchLogger(logger),
	)

	label := "Checking " + opts.targets[0]
	if len(opts.targets) > 1 {
		label = fmt.Sprintf("Checking %d sites", len(opts.targets))
	}
	stopSpinner := startSpinner(cmd.ErrOrStderr(), opts.quiet || cfg.Verbose, label)
	started := time.Now()
	reports, err := bp.ProcessBatch(ctx, opts.targets)
	stopSpinner()
	if err != nil {
		return nil, fmt.Errorf("check interrupted: %w", err)
	}

	logger.Debug("check finished", "sites", len(opts.targets), "elapsed", time.Since(started))

	for _, r := range reports {
		if r != nil && r.Error != "" && r.PagesCrawled == 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "Check error for %s: %s\n", r.Site, r.Error)
		}
	}
	return reports, nil
}

// startSpinner shows a progress spinner on w and returns the function that
// stops it. The spinner itself stays silent when w is not a terminal.
func startSpinner(w io.Writer, disabled bool, suffix string) func() {
	if disabled {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + suffix
	s.Start()
	return s.Stop
}

// outputReports writes the reports in the configured format to the
// --output file or w.
func outputReports(w io.Writer, cfg *config.Config, opts *checkOptions, reports []*model.CheckReport) error {
	output := w
	if opts.outputPath != "" {
		f, err := createOutputFile(opts.outputPath)
		if err != nil {
			return err
		}
		defer f.Close()
		output = f
	}

	writer := newReportWriter(output, cfg)
	for _, r := range reports {
		if r == nil {
			continue
		}
		if _, err := writer.Write(r); err != nil {
			return fmt.Errorf("failed to write report for %s: %w", r.Site, err)
		}
	}
	return nil
}

// createOutputFile creates or truncates path with owner-only permissions,
// creating parent directories as needed.
func createOutputFile(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

// newReportWriter selects the report writer for cfg.
func newReportWriter(w io.Writer, cfg *config.Config) report.Writer {
	switch {
	case cfg.Check.JSONReport:
		return report.NewFullJSONWriter(w, getVersion(), report.WithPrettyPrint())
	case cfg.Check.MarkdownReport:
		return report.NewMarkdownWriter(w)
	case cfg.Check.HTMLReport:
		return report.NewHTMLWriter(w)
	default:
		return report.NewSimpleWriter(w,
			report.WithVerbose(cfg.Verbose),
			report.WithShowEmpty(cfg.Verbose),
		)
	}
}

// checkThreshold returns ErrFindingsAtOrAbove if any report has a finding
// at or above failOn.
func checkThreshold(reports []*model.CheckReport, failOn *model.Severity) error {
	if failOn == nil {
		return nil
	}
	var failed []string
	for _, r := range reports {
		if r != nil && r.HasFindingsAtOrAbove(*failOn) {
			failed = append(failed, r.Site)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("%w (%s): %s", ErrFindingsAtOrAbove, failOn.String(), strings.Join(failed, ", "))
}
