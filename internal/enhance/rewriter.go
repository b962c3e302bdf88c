package enhance

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	// SectionClass marks a page section on the exported pages.
	SectionClass = "page"

	// ActiveClass is added to the only page section of a standalone page.
	ActiveClass = "is-active"

	// HeaderStyleID is the id of the injected header stylesheet.
	HeaderStyleID = "__auto_header_css"

	// HeaderCSS is the minimal styling for the hide-on-scroll header.
	HeaderCSS = ":root{--header-bg:#fff;--header-shadow:0 6px 24px rgba(0,0,0,.06)}" +
		"[data-header]{position:sticky;top:0;z-index:1000;background:var(--header-bg);" +
		"transition:transform .25s ease,box-shadow .2s ease;will-change:transform}" +
		"[data-header].header--scrolled{box-shadow:var(--header-shadow)}" +
		"[data-header].header--hidden{transform:translateY(-100%)}"
)

// Report summarizes the fixes applied to one document.
type Report struct {
	// OptimizedImages counts <img> elements moved off the optimizer endpoint.
	OptimizedImages int

	// RelativeImages counts <img> elements whose relative paths were made absolute.
	RelativeImages int

	// ImageErrors counts <img> elements skipped because of malformed URLs.
	ImageErrors int

	// Sections is the number of page sections found.
	Sections int

	// SectionActivated is true when the only page section was activated.
	SectionActivated bool

	// HeaderStyleInjected is true when the header stylesheet was added.
	HeaderStyleInjected bool

	// ScriptInjected is true when the client script tag was added.
	ScriptInjected bool
}

// Changed reports whether the document was modified.
func (r Report) Changed() bool {
	return r.OptimizedImages > 0 || r.RelativeImages > 0 || r.SectionActivated ||
		r.HeaderStyleInjected || r.ScriptInjected
}

// LogValue implements slog.LogValuer.
func (r Report) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("optimized_images", r.OptimizedImages),
		slog.Int("relative_images", r.RelativeImages),
		slog.Int("image_errors", r.ImageErrors),
		slog.Bool("section_activated", r.SectionActivated),
		slog.Bool("header_style", r.HeaderStyleInjected),
		slog.Bool("script", r.ScriptInjected),
	)
}

// Rewriter applies the page fixes. A Rewriter is safe for concurrent use;
// it holds no per-document state.
type Rewriter struct {
	images      bool
	sections    bool
	headerStyle bool
	scriptPath  string
}

// RewriterOption configures a Rewriter.
type RewriterOption func(*Rewriter)

// WithImages toggles image URL repair.
func WithImages(enabled bool) RewriterOption {
	return func(rw *Rewriter) {
		rw.images = enabled
	}
}

// WithSections toggles single-section activation.
func WithSections(enabled bool) RewriterOption {
	return func(rw *Rewriter) {
		rw.sections = enabled
	}
}

// WithHeaderStyle toggles header stylesheet injection.
func WithHeaderStyle(enabled bool) RewriterOption {
	return func(rw *Rewriter) {
		rw.headerStyle = enabled
	}
}

// WithScript sets the URL path of the client script. An empty path disables
// script injection.
func WithScript(path string) RewriterOption {
	return func(rw *Rewriter) {
		rw.scriptPath = path
	}
}

// NewRewriter creates a Rewriter with every markup fix enabled and script
// injection disabled.
func NewRewriter(opts ...RewriterOption) *Rewriter {
	rw := &Rewriter{
		images:      true,
		sections:    true,
		headerStyle: true,
	}
	for _, opt := range opts {
		opt(rw)
	}
	return rw
}

// Rewrite parses an HTML document, applies the enabled fixes and renders the
// result. isHome selects home-page behavior for relative image paths.
func (rw *Rewriter) Rewrite(r io.Reader, isHome bool) ([]byte, Report, error) {
	var report Report

	doc, err := html.Parse(r)
	if err != nil {
		return nil, report, fmt.Errorf("failed to parse html: %w", err)
	}

	scan := rw.scan(doc)

	if rw.images {
		for _, img := range scan.images {
			change, err := fixImage(img, isHome)
			if change.optimized {
				report.OptimizedImages++
			}
			if change.relative {
				report.RelativeImages++
			}
			if err != nil {
				report.ImageErrors++
			}
		}
	}

	report.Sections = len(scan.sections)
	if rw.sections && len(scan.sections) == 1 {
		report.SectionActivated = addClass(scan.sections[0], ActiveClass)
	}

	if rw.headerStyle && scan.hasHeader && !scan.hasHeaderStyle && scan.head != nil {
		scan.head.AppendChild(styleNode())
		report.HeaderStyleInjected = true
	}

	if rw.scriptPath != "" && !scan.hasScript && scan.head != nil {
		scan.head.AppendChild(scriptNode(rw.scriptPath))
		report.ScriptInjected = true
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, report, fmt.Errorf("failed to render html: %w", err)
	}
	return buf.Bytes(), report, nil
}

// documentScan holds the nodes a single walk collects.
type documentScan struct {
	head           *html.Node
	images         []*html.Node
	sections       []*html.Node
	hasHeader      bool
	hasHeaderStyle bool
	hasScript      bool
}

func (rw *Rewriter) scan(doc *html.Node) documentScan {
	var s documentScan

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Head:
				if s.head == nil {
					s.head = n
				}
			case atom.Img:
				s.images = append(s.images, n)
			case atom.Section:
				if hasClass(n, SectionClass) {
					s.sections = append(s.sections, n)
				}
			case atom.Script:
				if rw.scriptPath != "" && getAttr(n, "src") == rw.scriptPath {
					s.hasScript = true
				}
			}
			if getAttr(n, "id") == HeaderStyleID {
				s.hasHeaderStyle = true
			}
			if isHeader(n) {
				s.hasHeader = true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return s
}

func styleNode() *html.Node {
	style := &html.Node{
		Type:     html.ElementNode,
		Data:     "style",
		DataAtom: atom.Style,
		Attr:     []html.Attribute{{Key: "id", Val: HeaderStyleID}},
	}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: HeaderCSS})
	return style
}

func scriptNode(src string) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     "script",
		DataAtom: atom.Script,
		Attr: []html.Attribute{
			{Key: "src", Val: src},
			{Key: "defer", Val: ""},
		},
	}
}
