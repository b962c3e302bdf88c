package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/mpasite/internal/config"
	"github.com/nao1215/mpasite/internal/database"
	"github.com/nao1215/mpasite/internal/model"
	"github.com/nao1215/mpasite/internal/report"
)

const noHistoryMessage = "No check history found. Use 'mpasite check' to check a site."

// NewHistoryCmd creates the history command.
// It reads the check runs stored by the check command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [site]",
		Short: "Show stored check runs and compare them",
		Long: `History lists the check runs stored in the history database.

A site is either a URL as given to 'mpasite check' or the directory of a
local export. Without a site, the latest runs of all sites are listed.

Examples:
  # List the latest runs of all sites
  mpasite history

  # List the runs of one site
  mpasite history https://example.com

  # Show new and resolved findings between the last two runs
  mpasite history --diff https://example.com

  # Show the last run of the local export as Markdown
  mpasite history --show latest --markdown ./out

  # Show the known pages of a site and when they last changed
  mpasite history --pages https://example.com

  # Delete runs older than 30 days
  mpasite history --prune 720h`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("list-sites", "L", false,
		"List all sites with stored runs")
	cmd.Flags().IntP("limit", "n", 20,
		"Maximum number of runs to list (0 for all)")
	cmd.Flags().BoolP("diff", "D", false,
		"Compare the last two runs of the site")
	cmd.Flags().String("show", "",
		`Print the stored report of a run id ("latest" for the newest run of the site)`)
	cmd.Flags().Bool("pages", false,
		"List the known pages of the site")
	cmd.Flags().Duration("prune", 0,
		"Delete runs older than this duration")
	cmd.Flags().BoolP("json", "j", false,
		"Output diff or report in JSON format")
	cmd.Flags().Bool("markdown", false,
		"Output diff or report in Markdown format")
	cmd.Flags().Bool("html", false,
		"Output diff or report as an HTML document")

	return cmd
}

// historyFormat selects the writer for diffs and stored reports.
type historyFormat struct {
	json     bool
	markdown bool
	html     bool
}

func (f historyFormat) conflicting() bool {
	n := 0
	for _, set := range []bool{f.json, f.markdown, f.html} {
		if set {
			n++
		}
	}
	return n > 1
}

func (f historyFormat) writer(w io.Writer) report.Writer {
	switch {
	case f.json:
		return report.NewJSONWriter(w, report.WithPrettyPrint())
	case f.markdown:
		return report.NewMarkdownWriter(w)
	case f.html:
		return report.NewHTMLWriter(w)
	default:
		return report.NewSimpleWriter(w, report.WithVerbose(true))
	}
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	listSites, err := flags.GetBool("list-sites")
	if err != nil {
		return err
	}
	limit, err := flags.GetInt("limit")
	if err != nil {
		return err
	}
	diff, err := flags.GetBool("diff")
	if err != nil {
		return err
	}
	show, err := flags.GetString("show")
	if err != nil {
		return err
	}
	pages, err := flags.GetBool("pages")
	if err != nil {
		return err
	}
	prune, err := flags.GetDuration("prune")
	if err != nil {
		return err
	}

	var format historyFormat
	if format.json, err = flags.GetBool("json"); err != nil {
		return err
	}
	if format.markdown, err = flags.GetBool("markdown"); err != nil {
		return err
	}
	if format.html, err = flags.GetBool("html"); err != nil {
		return err
	}
	if format.conflicting() {
		return config.ErrConflictingReportFormats
	}

	// Validate arguments before opening the database.
	var site string
	if len(args) > 0 {
		if site, err = resolveSite(args[0]); err != nil {
			return err
		}
	}
	if (diff || pages || show == "latest") && site == "" {
		return errors.New("a site is required (use --list-sites to see stored sites)")
	}
	if prune < 0 {
		return errors.New("--prune must be positive")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	db, err := database.Open(cfg.DBDir, database.Options{EnableWAL: true})
	if errors.Is(err, database.ErrNotFound) {
		fmt.Fprintln(out, noHistoryMessage)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()

	switch {
	case prune > 0:
		return pruneRuns(ctx, out, db, prune)
	case listSites:
		return listStoredSites(ctx, out, db)
	case diff:
		return showDiff(ctx, out, db, site, format)
	case show != "":
		return showReport(ctx, out, db, site, show, format)
	case pages:
		return listPages(ctx, out, db, site)
	default:
		return listRuns(ctx, out, db, site, limit)
	}
}

// resolveSite maps a history argument to the site label used by check:
// existing directories become their absolute path, anything else is a URL.
func resolveSite(arg string) (string, error) {
	if info, err := os.Stat(arg); err == nil && info.IsDir() {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return "", fmt.Errorf("failed to resolve %s: %w", arg, err)
		}
		return abs, nil
	}
	return normalizeTarget(arg)
}

// listStoredSites lists all sites that have runs in the database.
func listStoredSites(ctx context.Context, out io.Writer, db *database.HistoryDB) error {
	sites, err := db.ListSites(ctx)
	if err != nil {
		return err
	}

	if len(sites) == 0 {
		fmt.Fprintln(out, noHistoryMessage)
		return nil
	}

	fmt.Fprintf(out, "Checked sites (%d):\n\n", len(sites))
	for _, site := range sites {
		fmt.Fprintf(out, "  • %s\n", site)
	}
	fmt.Fprintln(out, "\nUse 'mpasite history <site>' to see the runs of a site.")
	return nil
}

// listRuns lists run metadata, newest first.
func listRuns(ctx context.Context, out io.Writer, db *database.HistoryDB, site string, limit int) error {
	runs, err := db.ListRuns(ctx, site, limit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		if site != "" {
			fmt.Fprintf(out, "No check history found for %s\n", site)
			return nil
		}
		fmt.Fprintln(out, noHistoryMessage)
		return nil
	}

	if site != "" {
		fmt.Fprintf(out, "Check history for %s (%d runs):\n\n", site, len(runs))
	} else {
		fmt.Fprintf(out, "Check history (%d runs):\n\n", len(runs))
	}
	fmt.Fprintf(out, "  %-36s  %-19s  %5s  %-20s  %s\n", "ID", "Date", "Pages", "Findings", "Site")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 100))

	for _, run := range runs {
		fmt.Fprintf(out, "  %-36s  %-19s  %5d  %-20s  %s\n",
			run.ID,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.PagesCrawled,
			formatFindingSummary(run),
			run.Site,
		)
	}

	fmt.Fprintln(out, "\nUse 'mpasite history --diff <site>' to compare the latest two runs.")
	return nil
}

// formatFindingSummary formats the severity counts of a run.
func formatFindingSummary(run database.RunMetadata) string {
	var parts []string
	if run.HighCount > 0 {
		parts = append(parts, fmt.Sprintf("H:%d", run.HighCount))
	}
	if run.MediumCount > 0 {
		parts = append(parts, fmt.Sprintf("M:%d", run.MediumCount))
	}
	if run.LowCount > 0 {
		parts = append(parts, fmt.Sprintf("L:%d", run.LowCount))
	}
	if run.InfoCount > 0 {
		parts = append(parts, fmt.Sprintf("I:%d", run.InfoCount))
	}
	if len(parts) == 0 {
		return "No findings"
	}
	return strings.Join(parts, " ")
}

// showDiff compares the latest two runs of site.
func showDiff(ctx context.Context, out io.Writer, db *database.HistoryDB, site string, format historyFormat) error {
	reports, err := db.LatestReports(ctx, site, 2)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		return fmt.Errorf("no check history found for %s", site)
	}

	current := reports[0]
	var previous *model.CheckReport
	if len(reports) > 1 {
		previous = reports[1]
	}

	_, err = format.writer(out).WriteDiff(report.NewDiff(previous, current))
	return err
}

// showReport prints a stored report. id "latest" selects the newest run of site.
func showReport(ctx context.Context, out io.Writer, db *database.HistoryDB, site, id string, format historyFormat) error {
	if id == "latest" {
		reports, err := db.LatestReports(ctx, site, 1)
		if err != nil {
			return err
		}
		if len(reports) == 0 {
			return fmt.Errorf("no check history found for %s", site)
		}
		_, err = format.writer(out).Write(reports[0])
		return err
	}

	r, err := db.GetReport(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("no check run with id %s", id)
	}
	if err != nil {
		return err
	}
	_, err = format.writer(out).Write(r)
	return err
}

// listPages lists the last known state of every page of site.
func listPages(ctx context.Context, out io.Writer, db *database.HistoryDB, site string) error {
	records, err := db.ListPages(ctx, site)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintf(out, "No pages recorded for %s\n", site)
		return nil
	}

	fmt.Fprintf(out, "Pages of %s (%d):\n\n", site, len(records))
	fmt.Fprintf(out, "  %-6s  %-19s  %-40s  %s\n", "Status", "Updated", "Path", "Title")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 90))
	for _, r := range records {
		fmt.Fprintf(out, "  %-6d  %-19s  %-40s  %s\n",
			r.StatusCode,
			r.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
			r.Path,
			r.Title,
		)
	}
	return nil
}

// pruneRuns deletes runs started more than age ago.
func pruneRuns(ctx context.Context, out io.Writer, db *database.HistoryDB, age time.Duration) error {
	cutoff := time.Now().Add(-age)
	n, err := db.DeleteRunsBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted %d runs started before %s\n", n, cutoff.Local().Format("2006-01-02 15:04:05"))
	return nil
}
