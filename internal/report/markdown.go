package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/mpasite/internal/model"
)

// MarkdownWriter outputs reports in GitHub-flavored Markdown, for pull
// request comments and shared documents.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// severityHeaders are the finding section headers per severity.
var severityHeaders = map[model.Severity]string{
	model.SeverityHigh:   "### 🟠 High",
	model.SeverityMedium: "### 🟡 Medium",
	model.SeverityLow:    "### 🔵 Low",
	model.SeverityInfo:   "### ⚪ Info",
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.CheckReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeFindings(md, report)
	w.writePages(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteDiff outputs the diff between two runs in Markdown format.
func (w *MarkdownWriter) WriteDiff(diff *Diff) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("mpasite Check Diff")
	md.PlainText("")

	previous := "-"
	if diff.PreviousID != "" {
		previous = diff.PreviousAt.Format(timeLayout) + " (`" + diff.PreviousID + "`)"
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Site", "`" + diff.Site + "`"},
			{"Previous run", previous},
			{"Current run", diff.CurrentAt.Format(timeLayout) + " (`" + diff.CurrentID + "`)"},
			{"New findings", strconv.Itoa(len(diff.New))},
			{"Resolved findings", strconv.Itoa(len(diff.Resolved))},
		},
	})
	md.PlainText("")

	if !diff.HasChanges() {
		md.Tip("No changes in findings since the previous run.")
		return len(md.String()), md.Build()
	}

	if len(diff.New) > 0 {
		md.H2("New")
		md.PlainText("")
		w.writeFindingsTable(md, diff.New, true)
	}
	if len(diff.Resolved) > 0 {
		md.H2("Resolved")
		md.PlainText("")
		w.writeFindingsTable(md, diff.Resolved, true)
	}

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.CheckReport) {
	md.H1("mpasite Check Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Site", "`" + report.Site + "`"},
			{"Run", "`" + report.ID + "`"},
			{"Date", report.StartedAt.Format(timeLayout)},
			{"Pages Crawled", strconv.Itoa(report.PagesCrawled)},
			{"Assets Checked", strconv.Itoa(report.AssetsChecked)},
			{"Status", w.statusText(report)},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) statusText(report *model.CheckReport) string {
	switch {
	case report.TimedOut:
		return "⚠️ Timed Out (partial results)"
	case report.Error != "":
		return "❌ Error - " + report.Error
	default:
		return "✅ Complete"
	}
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.CheckReport) {
	md.H2("Severity Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Severity", "Count"},
		Rows: [][]string{
			{"🟠 High", strconv.Itoa(report.HighCount)},
			{"🟡 Medium", strconv.Itoa(report.MediumCount)},
			{"🔵 Low", strconv.Itoa(report.LowCount)},
			{"⚪ Info", strconv.Itoa(report.InfoCount)},
			{"**Total**", "**" + strconv.Itoa(report.TotalFindings()) + "**"},
		},
	})
	md.PlainText("")

	if report.HasFindings() {
		w.writePieChart(md, report)
	}
	w.writeAlert(md, report)
}

// writePieChart writes a mermaid pie chart of the severity distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *model.CheckReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Finding Severity Distribution"),
		piechart.WithShowData(true),
	)

	counts := []struct {
		label string
		n     int
	}{
		{"High", report.HighCount},
		{"Medium", report.MediumCount},
		{"Low", report.LowCount},
		{"Info", report.InfoCount},
	}
	for _, c := range counts {
		if c.n > 0 {
			chart.LabelAndIntValue(c.label, uint64(c.n))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.CheckReport) {
	switch {
	case report.HighCount > 0:
		md.Warningf("%d broken link(s), image(s) or page(s) found.", report.HighCount)
	case report.MediumCount > 0:
		md.Importantf("%d finding(s) only render correctly with enhancement enabled.", report.MediumCount)
	case report.HasFindings():
		md.Note("Only low severity and informational findings detected.")
	default:
		md.Tip("No problems detected.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeFindings(md *markdown.Markdown, report *model.CheckReport) {
	md.H2("Findings")
	md.PlainText("")

	if !report.HasFindings() {
		md.PlainText("No findings.")
		md.PlainText("")
		return
	}

	for _, severity := range severities {
		findings := report.GetFindingsBySeverity(severity)
		if len(findings) == 0 {
			continue
		}
		md.PlainText(severityHeaders[severity])
		md.PlainText("")
		w.writeFindingsTable(md, findings, false)
	}
}

// writeFindingsTable writes a table of findings followed by collapsible
// descriptions.
func (w *MarkdownWriter) writeFindingsTable(md *markdown.Markdown, findings []model.Finding, withSeverity bool) {
	headers := []string{"Title", "Value", "Location", "Recommendation"}
	if withSeverity {
		headers = append([]string{"Severity"}, headers...)
	}

	rows := make([][]string, len(findings))
	for i, f := range findings {
		row := []string{
			f.Title,
			truncateString(orDash(f.Value), 50),
			truncateString(orDash(f.Location), 40),
			truncateString(orDash(f.Recommendation), 60),
		}
		if withSeverity {
			row = append([]string{f.Severity.String()}, row...)
		}
		rows[i] = row
	}

	md.Table(markdown.TableSet{
		Header: headers,
		Rows:   rows,
	})
	md.PlainText("")

	for _, f := range findings {
		if f.Description != "" {
			md.Details(f.Title+" ("+orDash(f.Location)+")", f.Description)
		}
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writePages(md *markdown.Markdown, report *model.CheckReport) {
	if len(report.Pages) == 0 {
		return
	}

	md.H2("Pages")
	md.PlainText("")

	rows := make([][]string, len(report.Pages))
	for i, p := range report.Pages {
		rows[i] = []string{strconv.Itoa(p.StatusCode), p.URL, orDash(p.Title)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Status", "URL", "Title"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by mpasite*")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncateString truncates a string to maxLen bytes with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
