package route

import (
	"fmt"
	"path"
	"strings"
)

// Route maps a literal request path to an HTML file under the site root.
// Both "/path" and "/path/" match.
type Route struct {
	Path string `koanf:"path" yaml:"path"`
	File string `koanf:"file" yaml:"file"`
}

// Table is an immutable set of literal routes.
type Table struct {
	routes []Route
	// byPath is keyed by the lower-cased path without a trailing slash.
	byPath map[string]string
}

// DefaultRoutes returns the routes the site ships with.
func DefaultRoutes() []Route {
	return []Route{
		{Path: "/", File: "index.html"},
		{Path: "/citizenship", File: "citizenship.html"},
		{Path: "/ru/citizenship", File: "citizenship.html"},
	}
}

// DefaultTable returns a Table built from DefaultRoutes.
func DefaultTable() *Table {
	t, err := NewTable(DefaultRoutes())
	if err != nil {
		panic(err) // built-in table is static
	}
	return t
}

// NewTable validates routes and builds a Table. Later routes with the same
// path replace earlier ones.
func NewTable(routes []Route) (*Table, error) {
	t := &Table{byPath: make(map[string]string, len(routes))}
	for _, r := range routes {
		if !strings.HasPrefix(r.Path, "/") {
			return nil, fmt.Errorf("%w: route %q", ErrInvalidPath, r.Path)
		}
		file := strings.TrimPrefix(strings.TrimSpace(r.File), "/")
		if file == "" {
			return nil, fmt.Errorf("%w: route %q", ErrEmptyFile, r.Path)
		}
		clean := path.Clean(file)
		if clean == ".." || strings.HasPrefix(clean, "../") {
			return nil, fmt.Errorf("%w: %q", ErrUnsafeFile, r.File)
		}
		key := routeKey(r.Path)
		if _, dup := t.byPath[key]; !dup {
			t.routes = append(t.routes, Route{Path: r.Path, File: clean})
		} else {
			for i := range t.routes {
				if routeKey(t.routes[i].Path) == key {
					t.routes[i].File = clean
				}
			}
		}
		t.byPath[key] = clean
	}
	return t, nil
}

// Resolve returns the file mapped to p. Matching ignores case and a single
// trailing slash.
func (t *Table) Resolve(p string) (string, bool) {
	if p == "" {
		p = "/"
	}
	file, ok := t.byPath[routeKey(p)]
	return file, ok
}

// Routes returns the routes in declaration order.
func (t *Table) Routes() []Route {
	return append([]Route(nil), t.routes...)
}

func routeKey(p string) string {
	if p != "/" {
		p = strings.TrimSuffix(p, "/")
	}
	return strings.ToLower(p)
}
