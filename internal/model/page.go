package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Page represents a fetched page with the elements the checker inspects.
type Page struct {
	// URL is the absolute URL the page was fetched from.
	URL string `json:"url"`

	// Depth is the number of links followed from the start page.
	Depth int `json:"depth"`

	// StatusCode is the HTTP response status code.
	StatusCode int `json:"status_code"`

	// Headers contains the HTTP response headers in canonical form.
	Headers map[string][]string `json:"headers,omitempty"`

	// ContentType is the MIME type of the response.
	ContentType string `json:"content_type"`

	// Title is the page title extracted from the <title> tag.
	Title string `json:"title,omitempty"`

	// Anchors contains all anchor (<a>) elements.
	Anchors []Element `json:"anchors,omitempty"`

	// Images contains all <img> elements.
	Images []Element `json:"images,omitempty"`

	// Links contains <link> elements (stylesheets, icons, etc.).
	Links []Element `json:"links,omitempty"`

	// Scripts contains <script src> references.
	Scripts []Element `json:"scripts,omitempty"`

	// Sections is the number of <section class="page"> elements.
	Sections int `json:"sections"`

	// HasHeader is true when the page has a site header element.
	HasHeader bool `json:"has_header"`

	// Raw contains the response body, limited to MaxPageSize bytes.
	Raw []byte `json:"-"`

	// Hash is the SHA-256 hash of the raw content.
	Hash string `json:"hash,omitempty"`
}

// MaxPageSize is the maximum size of raw page content to store.
const MaxPageSize = 5 * 1024 * 1024 // 5 MB

// Element represents an HTML element with a source URL.
type Element struct {
	// Source is the element's src or href attribute as written.
	Source string `json:"source"`

	// Srcset is the srcset attribute (images only).
	Srcset string `json:"srcset,omitempty"`

	// Alt is the alt text (images only).
	Alt string `json:"alt,omitempty"`

	// Text is the inner text content (anchors only).
	Text string `json:"text,omitempty"`

	// Rel is the rel attribute (links and anchors).
	Rel string `json:"rel,omitempty"`

	// Nav marks anchors in the site header or with the nav-link class,
	// which the client script intercepts.
	Nav bool `json:"nav,omitempty"`
}

// ComputeHash calculates and sets the SHA-256 hash of the page's raw content.
func (p *Page) ComputeHash() {
	if len(p.Raw) == 0 {
		p.Hash = ""
		return
	}
	hash := sha256.Sum256(p.Raw)
	p.Hash = hex.EncodeToString(hash[:])
}

// IsHTML returns true if the page content type indicates HTML.
func (p *Page) IsHTML() bool {
	ct := strings.ToLower(p.ContentType)
	return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}

// TruncateRaw ensures the raw content doesn't exceed MaxPageSize.
func (p *Page) TruncateRaw() {
	if len(p.Raw) > MaxPageSize {
		p.Raw = p.Raw[:MaxPageSize]
	}
}
