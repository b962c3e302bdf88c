package report

import (
	"bytes"
	"fmt"
	"html/template"
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/nao1215/mpasite/internal/model"
)

// HTMLWriter outputs reports as a standalone HTML document. The body is the
// Markdown report rendered with goldmark, so both formats stay in sync.
//
// Raw HTML in the Markdown source is not passed through: finding values come
// from crawled pages.
type HTMLWriter struct {
	baseWriter
	md goldmark.Markdown
}

// NewHTMLWriter creates an HTMLWriter that outputs to the given writer.
func NewHTMLWriter(output io.Writer) *HTMLWriter {
	return &HTMLWriter{
		baseWriter: newBaseWriter(output),
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
	}
}

var htmlPage = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body{font-family:system-ui,sans-serif;max-width:72rem;margin:2rem auto;padding:0 1rem;color:#1f2328}
table{border-collapse:collapse;margin:1rem 0}
th,td{border:1px solid #d0d7de;padding:.3rem .6rem;text-align:left}
code{background:#f6f8fa;padding:.1rem .3rem;border-radius:3px}
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// Write outputs the report as HTML.
func (w *HTMLWriter) Write(report *model.CheckReport) (int, error) {
	var src bytes.Buffer
	if _, err := NewMarkdownWriter(&src).Write(report); err != nil {
		return 0, err
	}
	return w.render("mpasite check report: "+report.Site, src.Bytes())
}

// WriteDiff outputs the diff between two runs as HTML.
func (w *HTMLWriter) WriteDiff(diff *Diff) (int, error) {
	var src bytes.Buffer
	if _, err := NewMarkdownWriter(&src).WriteDiff(diff); err != nil {
		return 0, err
	}
	return w.render("mpasite check diff: "+diff.Site, src.Bytes())
}

func (w *HTMLWriter) render(title string, source []byte) (int, error) {
	var body bytes.Buffer
	if err := w.md.Convert(source, &body); err != nil {
		return 0, fmt.Errorf("failed to render HTML report: %w", err)
	}

	var page bytes.Buffer
	err := htmlPage.Execute(&page, struct {
		Title string
		Body  template.HTML
	}{
		Title: title,
		Body:  template.HTML(body.String()), //nolint:gosec // goldmark escapes raw HTML without WithUnsafe
	})
	if err != nil {
		return 0, fmt.Errorf("failed to render HTML report: %w", err)
	}
	return w.output.Write(page.Bytes())
}
