package crawler

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/nao1215/mpasite/internal/model"
)

// sectionClass marks a page section in the exported markup.
const sectionClass = "page"

// Parser extracts the elements the checker inspects from an HTML page.
type Parser struct {
	// baseURL is the URL of the page being parsed, used for resolving relative URLs.
	baseURL *url.URL
}

// ParseResult contains all information extracted from an HTML page.
type ParseResult struct {
	// Title is the page title from the <title> tag.
	Title string

	// Anchors are the <a href> elements as written in the markup.
	Anchors []model.Element

	// Images are the <img> elements as written in the markup.
	Images []model.Element

	// Links are the <link href> elements (stylesheets, icons).
	Links []model.Element

	// Scripts are the <script src> elements.
	Scripts []model.Element

	// InternalLinks are resolved anchor URLs on the same host, without fragments.
	InternalLinks []string

	// ExternalLinks are resolved anchor URLs on other hosts.
	ExternalLinks []string

	// Sections is the number of <section class="page"> elements.
	Sections int

	// HasHeader is true when the page has a header, [data-header] or .header-hav element.
	HasHeader bool
}

// NewParser creates a new HTML parser with the given base URL.
// The base URL is used to resolve relative links.
func NewParser(baseURL string) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Parser{baseURL: u}, nil
}

// Parse parses HTML content and extracts all relevant information.
func (p *Parser) Parse(content io.Reader) (*ParseResult, error) {
	doc, err := html.Parse(content)
	if err != nil {
		return nil, err
	}

	result := &ParseResult{
		Anchors:       make([]model.Element, 0),
		Images:        make([]model.Element, 0),
		InternalLinks: make([]string, 0),
		ExternalLinks: make([]string, 0),
	}
	seen := make(map[string]bool)

	var walk func(n *html.Node, inHeader bool)
	walk = func(n *html.Node, inHeader bool) {
		if n.Type == html.ElementNode {
			p.processElement(n, result, seen, inHeader)
			inHeader = inHeader || isHeader(n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inHeader)
		}
	}
	walk(doc, false)

	return result, nil
}

// processElement records n. inHeader is true when an ancestor of n is a
// header element.
func (p *Parser) processElement(n *html.Node, result *ParseResult, seen map[string]bool, inHeader bool) {
	if isHeader(n) {
		result.HasHeader = true
	}

	switch n.DataAtom {
	case atom.Title:
		if result.Title == "" {
			result.Title = strings.TrimSpace(textContent(n))
		}

	case atom.A:
		href, ok := attr(n, "href")
		if !ok {
			return
		}
		result.Anchors = append(result.Anchors, model.Element{
			Source: href,
			Text:   strings.TrimSpace(textContent(n)),
			Rel:    getAttr(n, "rel"),
			Nav:    inHeader || hasClass(n, "nav-link"),
		})
		resolved := p.ResolveURL(href)
		if resolved == "" || seen[resolved] {
			return
		}
		seen[resolved] = true
		if p.IsInternal(resolved) {
			result.InternalLinks = append(result.InternalLinks, resolved)
		} else {
			result.ExternalLinks = append(result.ExternalLinks, resolved)
		}

	case atom.Img:
		src := getAttr(n, "src")
		srcset := getAttr(n, "srcset")
		if src == "" && srcset == "" {
			return
		}
		result.Images = append(result.Images, model.Element{
			Source: src,
			Srcset: srcset,
			Alt:    getAttr(n, "alt"),
		})

	case atom.Link:
		if href := getAttr(n, "href"); href != "" {
			result.Links = append(result.Links, model.Element{Source: href, Rel: getAttr(n, "rel")})
		}

	case atom.Script:
		if src := getAttr(n, "src"); src != "" {
			result.Scripts = append(result.Scripts, model.Element{Source: src})
		}

	case atom.Section:
		if hasClass(n, sectionClass) {
			result.Sections++
		}
	}
}

// ResolveURL resolves href against the page URL and drops the fragment.
// Non-navigational schemes (javascript:, mailto:, tel:, data:) and bare
// fragments resolve to "".
func (p *Parser) ResolveURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return ""
		}
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := p.baseURL.ResolveReference(u)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}

// IsInternal reports whether link is on the same host as the page.
func (p *Parser) IsInternal(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, p.baseURL.Host)
}

func isHeader(n *html.Node) bool {
	if n.DataAtom == atom.Header {
		return true
	}
	if _, ok := attr(n, "data-header"); ok {
		return true
	}
	return hasClass(n, "header-hav")
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func hasClass(n *html.Node, name string) bool {
	for _, c := range strings.Fields(getAttr(n, "class")) {
		if c == name {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	v, _ := attr(n, key)
	return v
}
