package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/mpasite/internal/model"
)

// SimpleWriter outputs human-readable text reports for the terminal.
// Output is plain ASCII so it can be piped to files or other tools.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no findings are shown.
	showEmpty bool

	// verbose adds descriptions, recommendations and the page list.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.CheckReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, report)
	w.writePages(&sb, report)
	w.writeFindings(&sb, report)
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

// WriteDiff outputs the new and resolved findings between two runs.
func (w *SimpleWriter) WriteDiff(diff *Diff) (int, error) {
	var sb strings.Builder

	writeRule(&sb, "=")
	sb.WriteString("                         MPASITE CHECK DIFF\n")
	writeRule(&sb, "=")
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Site:     %s\n", diff.Site)
	if diff.PreviousID != "" {
		fmt.Fprintf(&sb, "Previous: %s (%s)\n", diff.PreviousAt.Format(timeLayout), diff.PreviousID)
	} else {
		sb.WriteString("Previous: none\n")
	}
	fmt.Fprintf(&sb, "Current:  %s (%s)\n\n", diff.CurrentAt.Format(timeLayout), diff.CurrentID)

	if !diff.HasChanges() {
		sb.WriteString("No changes in findings.\n")
		return io.WriteString(w.output, sb.String())
	}

	w.writeSection(&sb, fmt.Sprintf("NEW (%d)", len(diff.New)))
	for _, f := range diff.New {
		w.writeFinding(&sb, "+", f)
	}
	sb.WriteString("\n")

	w.writeSection(&sb, fmt.Sprintf("RESOLVED (%d)", len(diff.Resolved)))
	for _, f := range diff.Resolved {
		w.writeFinding(&sb, "-", f)
	}
	sb.WriteString("\n")

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.CheckReport) {
	sb.WriteString("\n")
	writeRule(sb, "=")
	sb.WriteString("                         MPASITE CHECK REPORT\n")
	writeRule(sb, "=")
	sb.WriteString("\n")

	fmt.Fprintf(sb, "Site:           %s\n", report.Site)
	fmt.Fprintf(sb, "Run:            %s\n", report.ID)
	fmt.Fprintf(sb, "Date:           %s\n", report.StartedAt.Format(timeLayout))
	fmt.Fprintf(sb, "Duration:       %s\n", report.Duration().Round(time.Millisecond))
	fmt.Fprintf(sb, "Pages Crawled:  %d\n", report.PagesCrawled)
	fmt.Fprintf(sb, "Assets Checked: %d\n", report.AssetsChecked)
	fmt.Fprintf(sb, "Status:         %s\n", statusText(report))
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.CheckReport) {
	w.writeSection(sb, "SEVERITY SUMMARY")

	fmt.Fprintf(sb, "  HIGH:     %d\n", report.HighCount)
	fmt.Fprintf(sb, "  MEDIUM:   %d\n", report.MediumCount)
	fmt.Fprintf(sb, "  LOW:      %d\n", report.LowCount)
	fmt.Fprintf(sb, "  INFO:     %d\n", report.InfoCount)
	sb.WriteString("\n")
	fmt.Fprintf(sb, "  TOTAL:    %d findings\n", report.TotalFindings())
	sb.WriteString("\n")
}

func (w *SimpleWriter) writePages(sb *strings.Builder, report *model.CheckReport) {
	if !w.verbose || (len(report.Pages) == 0 && !w.showEmpty) {
		return
	}

	w.writeSection(sb, "PAGES")
	if len(report.Pages) == 0 {
		sb.WriteString("  No pages crawled\n")
	}
	for _, p := range report.Pages {
		fmt.Fprintf(sb, "  [%d] %s", p.StatusCode, p.URL)
		if p.Title != "" {
			fmt.Fprintf(sb, "  %q", p.Title)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFindings(sb *strings.Builder, report *model.CheckReport) {
	if !report.HasFindings() && !w.showEmpty {
		return
	}

	w.writeSection(sb, "FINDINGS")

	for _, severity := range severities {
		findings := report.GetFindingsBySeverity(severity)
		if len(findings) == 0 && !w.showEmpty {
			continue
		}

		fmt.Fprintf(sb, "[%s] %s\n", severityIndicator(severity), severity.String())
		if len(findings) == 0 {
			sb.WriteString("  No findings\n\n")
			continue
		}
		for _, f := range findings {
			w.writeFinding(sb, "*", f)
		}
		sb.WriteString("\n")
	}
}

func (w *SimpleWriter) writeFinding(sb *strings.Builder, bullet string, f model.Finding) {
	fmt.Fprintf(sb, "  %s %s\n", bullet, f.Title)
	if f.Value != "" {
		fmt.Fprintf(sb, "    Value: %s\n", f.Value)
	}
	if f.Location != "" {
		fmt.Fprintf(sb, "    Location: %s\n", f.Location)
	}
	if w.verbose {
		if f.Description != "" {
			fmt.Fprintf(sb, "    Description: %s\n", f.Description)
		}
		if f.Recommendation != "" {
			fmt.Fprintf(sb, "    Fix: %s\n", f.Recommendation)
		}
	}
}

func (w *SimpleWriter) writeSection(sb *strings.Builder, title string) {
	writeRule(sb, "-")
	sb.WriteString(title)
	sb.WriteString("\n")
	writeRule(sb, "-")
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	writeRule(sb, "=")
}

func writeRule(sb *strings.Builder, char string) {
	sb.WriteString(strings.Repeat(char, 70))
	sb.WriteString("\n")
}

// severityIndicator returns a visual indicator for the severity level.
func severityIndicator(severity model.Severity) string {
	switch severity {
	case model.SeverityHigh:
		return "!!"
	case model.SeverityMedium:
		return "!"
	case model.SeverityLow:
		return "-"
	case model.SeverityInfo:
		return "i"
	default:
		return "?"
	}
}
