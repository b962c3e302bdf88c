package script

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"text/template"
)

// DefaultPath is the URL path the server publishes the script under.
const DefaultPath = "/_mpasite/enhance.js"

// ContentType is the media type the script is served with.
const ContentType = "application/javascript; charset=utf-8"

const (
	// DefaultScrollDelta is the scroll distance in pixels that toggles the
	// hidden header state.
	DefaultScrollDelta = 8

	// DefaultShowAtTop is the scroll offset in pixels below which the header
	// is always shown.
	DefaultShowAtTop = 40
)

// navSelector matches anchors inside the site header.
const navSelector = ".header-hav a, a.nav-link, header a, [data-header] a"

//go:embed enhance.js.tmpl
var source string

var tmpl = template.Must(template.New("enhance.js").Parse(source))

// Params are the values baked into the rendered script.
type Params struct {
	// Categories are the category path prefixes without trailing slashes.
	Categories []string

	// ScrollDelta is the scroll distance that hides or shows the header.
	ScrollDelta int

	// ShowAtTop is the offset below which the header is always visible.
	ShowAtTop int
}

// templateData is what the template sees. Strings are pre-encoded as JS
// literals.
type templateData struct {
	Categories  string
	NavSelector string
	ScrollDelta int
	ShowAtTop   int
}

// Render produces the script source for p.
func Render(p Params) ([]byte, error) {
	if p.ScrollDelta <= 0 {
		p.ScrollDelta = DefaultScrollDelta
	}
	if p.ShowAtTop < 0 {
		p.ShowAtTop = DefaultShowAtTop
	}

	categories := p.Categories
	if categories == nil {
		categories = []string{}
	}
	cats, err := json.Marshal(categories)
	if err != nil {
		return nil, fmt.Errorf("failed to encode categories: %w", err)
	}
	sel, err := json.Marshal(navSelector)
	if err != nil {
		return nil, fmt.Errorf("failed to encode selector: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, templateData{
		Categories:  string(cats),
		NavSelector: string(sel),
		ScrollDelta: p.ScrollDelta,
		ShowAtTop:   p.ShowAtTop,
	}); err != nil {
		return nil, fmt.Errorf("failed to render script: %w", err)
	}
	return buf.Bytes(), nil
}
