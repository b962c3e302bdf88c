package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/mpasite/internal/model"
)

// createTestReport creates a finished report with sample data for testing.
func createTestReport() *model.CheckReport {
	report := model.NewCheckReport("https://example.com/")
	report.StartedAt = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	report.AddPage(&model.Page{URL: "https://example.com/", StatusCode: 200, Title: "Home"})
	report.AddPage(&model.Page{URL: "https://example.com/missing", StatusCode: 404})
	report.AssetsChecked = 5

	report.AddFinding(model.NewFinding(model.FindingBrokenImage, "HTTP 404", "/images/missing.png", "/"))
	report.AddFinding(model.NewFinding(model.FindingOptimizerImage, "", "/_next/image?url=%2Fa.jpg", "/"))
	report.AddFinding(model.NewFinding(model.FindingRelativeImage, "", "images/b.png", "/citizenship/"))
	report.AddFinding(model.NewFinding(model.FindingMissingTitle, "", "", "/about/"))

	report.Finish()
	report.FinishedAt = report.StartedAt.Add(1500 * time.Millisecond)
	return report
}

// TestSimpleWriter tests the human-readable report writer.
func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes report header", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		report := createTestReport()
		if _, err := NewSimpleWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"MPASITE CHECK REPORT",
			"https://example.com/",
			report.ID,
			"Pages Crawled:  2",
			"Assets Checked: 5",
			"Duration:       1.5s",
			"Status:         Complete",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q\n%s", want, output)
			}
		}
	})

	t.Run("writes severity summary and findings", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"HIGH:     1",
			"MEDIUM:   1",
			"LOW:      1",
			"INFO:     1",
			"TOTAL:    4 findings",
			"[!!] HIGH",
			"Broken image",
			"Value: /images/missing.png",
			"Location: /citizenship/",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
		if strings.Index(output, "[!!] HIGH") > strings.Index(output, "[i] INFO") {
			t.Error("expected high severity before info")
		}
		if strings.Contains(output, "Description:") {
			t.Error("expected no descriptions without verbose")
		}
	})

	t.Run("verbose adds details and pages", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithVerbose(true)).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{"Description: HTTP 404", "Fix: ", "PAGES", "[404] https://example.com/missing"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("empty report hides findings unless requested", func(t *testing.T) {
		t.Parallel()

		report := model.NewCheckReport("https://example.com/")
		report.Finish()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(buf.String(), "FINDINGS") {
			t.Error("expected no findings section")
		}

		buf.Reset()
		if _, err := NewSimpleWriter(&buf, WithShowEmpty(true)).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "No findings") {
			t.Error("expected empty sections with WithShowEmpty")
		}
	})

	t.Run("status reflects errors and timeouts", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name   string
			mutate func(r *model.CheckReport)
			want   string
		}{
			{"error", func(r *model.CheckReport) { r.Error = "connection refused" }, "ERROR - connection refused"},
			{"timeout", func(r *model.CheckReport) { r.TimedOut = true }, "TIMED OUT"},
		}
		for _, tt := range tests {
			report := createTestReport()
			tt.mutate(report)
			var buf bytes.Buffer
			if _, err := NewSimpleWriter(&buf).Write(report); err != nil {
				t.Fatalf("%s: unexpected error: %v", tt.name, err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("%s: expected %q in output", tt.name, tt.want)
			}
		}
	})
}

// TestSeverityIndicator tests the text indicators.
func TestSeverityIndicator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		severity model.Severity
		want     string
	}{
		{model.SeverityHigh, "!!"},
		{model.SeverityMedium, "!"},
		{model.SeverityLow, "-"},
		{model.SeverityInfo, "i"},
		{model.Severity(42), "?"},
	}
	for _, tt := range tests {
		if got := severityIndicator(tt.severity); got != tt.want {
			t.Errorf("severityIndicator(%d) = %q, want %q", tt.severity, got, tt.want)
		}
	}
}

// TestJSONWriter tests the JSON writer.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("compact output", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		report := createTestReport()
		if _, err := NewJSONWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if strings.Count(output, "\n") != 1 || !strings.HasSuffix(output, "\n") {
			t.Errorf("expected single line with trailing newline, got %q", output)
		}

		var decoded model.CheckReport
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.ID != report.ID || decoded.HighCount != 1 || len(decoded.Findings) != 4 {
			t.Errorf("unexpected decoded report: %+v", decoded)
		}
	})

	t.Run("pretty print", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n  \"id\": ") {
			t.Errorf("expected two-space indentation, got %s", buf.String())
		}
	})

	t.Run("custom indent", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithIndent("", "\t")).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n\t\"id\": ") {
			t.Error("expected tab indentation")
		}
	})
}

// TestFullJSONWriter tests the version wrapper.
func TestFullJSONWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if _, err := NewFullJSONWriter(&buf, "v1.2.3").Write(createTestReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded JSONReport
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.Version != "v1.2.3" {
		t.Errorf("expected version v1.2.3, got %s", decoded.Version)
	}
	if decoded.Report == nil || decoded.Report.Site != "https://example.com/" {
		t.Errorf("unexpected wrapped report: %+v", decoded.Report)
	}
}

// TestMarkdownWriter tests the Markdown writer.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes all sections", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewMarkdownWriter(&buf).Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n == 0 {
			t.Error("expected non-zero byte count")
		}

		output := buf.String()
		for _, want := range []string{
			"# mpasite Check Report",
			"## Severity Summary",
			"```mermaid",
			"[!WARNING]",
			"## Findings",
			"### 🟠 High",
			"### ⚪ Info",
			"/images/missing.png",
			"<details>",
			"## Pages",
			"*Report generated by mpasite*",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("clean report", func(t *testing.T) {
		t.Parallel()

		report := model.NewCheckReport("https://example.com/")
		report.Finish()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		if !strings.Contains(output, "[!TIP]") || !strings.Contains(output, "No findings.") {
			t.Errorf("expected clean report markers, got:\n%s", output)
		}
		if strings.Contains(output, "```mermaid") {
			t.Error("expected no chart without findings")
		}
	})

	t.Run("error status", func(t *testing.T) {
		t.Parallel()

		report := createTestReport()
		report.Error = "audit interrupted"

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "❌ Error - audit interrupted") {
			t.Error("expected error status")
		}
	})
}

// TestHTMLWriter tests the HTML report writer.
func TestHTMLWriter(t *testing.T) {
	t.Parallel()

	t.Run("renders markdown report as a document", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		report := createTestReport()
		if _, err := NewHTMLWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.HasPrefix(output, "<!DOCTYPE html>") {
			t.Errorf("expected HTML document, got:\n%s", output)
		}
		for _, want := range []string{
			"<title>mpasite check report: https://example.com/</title>",
			`<h1 id="mpasite-check-report">`,
			"<table>",
			"/images/missing.png",
			report.ID,
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("does not pass through page markup", func(t *testing.T) {
		t.Parallel()

		report := model.NewCheckReport("https://example.com/")
		report.AddFinding(model.NewFinding(model.FindingBrokenLink, "<script>alert(1)</script>", "/x", "/"))
		report.Finish()

		var buf bytes.Buffer
		if _, err := NewHTMLWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(buf.String(), "<script>alert(1)") {
			t.Errorf("expected raw HTML to be dropped:\n%s", buf.String())
		}
	})
}

// TestDiffWriters tests diff output of all writers.
func TestDiffWriters(t *testing.T) {
	t.Parallel()

	previous := createTestReport()
	current := model.NewCheckReport(previous.Site)
	current.StartedAt = previous.StartedAt.Add(24 * time.Hour)
	current.AddFinding(model.NewFinding(model.FindingBrokenImage, "HTTP 404", "/images/missing.png", "/"))
	current.AddFinding(model.NewFinding(model.FindingBrokenLink, "HTTP 404", "/gone", "/"))
	current.Finish()

	diff := NewDiff(previous, current)
	if len(diff.New) != 1 || len(diff.Resolved) != 3 {
		t.Fatalf("unexpected diff: new=%d resolved=%d", len(diff.New), len(diff.Resolved))
	}
	if !diff.HasChanges() {
		t.Error("expected changes")
	}

	t.Run("simple", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WriteDiff(diff); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		for _, want := range []string{"NEW (1)", "RESOLVED (3)", "  + Broken internal link", previous.ID} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).WriteDiff(diff); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var decoded map[string]any
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		for _, key := range []string{"site", "previous_id", "current_id", "new", "resolved"} {
			if _, ok := decoded[key]; !ok {
				t.Errorf("expected key %q in %v", key, decoded)
			}
		}
	})

	t.Run("markdown", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).WriteDiff(diff); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		for _, want := range []string{"# mpasite Check Diff", "## New", "## Resolved", "/gone"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("html", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewHTMLWriter(&buf).WriteDiff(diff); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		for _, want := range []string{"<title>mpasite check diff: https://example.com/</title>", `<h2 id="new">`, "/gone"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("first run has no previous", func(t *testing.T) {
		t.Parallel()

		first := NewDiff(nil, current)
		if first.PreviousID != "" || len(first.New) != 2 {
			t.Errorf("unexpected first-run diff: %+v", first)
		}

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WriteDiff(first); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "Previous: none") {
			t.Error("expected missing previous run")
		}
	})

	t.Run("no changes", func(t *testing.T) {
		t.Parallel()

		same := NewDiff(current, current)
		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).WriteDiff(same); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "No changes") {
			t.Error("expected no-changes note")
		}
	})
}

// TestTruncateString tests string truncation.
func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abcdef", 3, "abc"},
	}
	for _, tt := range tests {
		if got := truncateString(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}
