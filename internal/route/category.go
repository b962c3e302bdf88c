package route

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// DefaultLocale is the key used for unprefixed category paths in
// configuration maps.
const DefaultLocale = "default"

// defaultCategoryPrefixes is the allowlist the site was exported with.
var defaultCategoryPrefixes = map[string][]string{
	DefaultLocale: {
		"/citizenship",
		"/residence-permit",
		"/compare",
		"/real-estate",
		"/stories",
		"/about",
	},
	"ru": {
		"/ru/citizenship",
		"/ru/residence",
		"/ru/comparison-of-the-investment-programs-of-the-eu",
		"/ru/real-estate",
		"/ru/cases",
		"/ru/about-us",
		"/ru",
	},
}

// Categories is the allowlist of category path prefixes. Links into these
// sections are followed with a full page load instead of a client-side
// route change.
type Categories struct {
	// prefixes are stored without trailing slashes, in configuration order.
	prefixes []string
}

// DefaultCategoryMap returns a copy of the built-in allowlist keyed by locale.
func DefaultCategoryMap() map[string][]string {
	out := make(map[string][]string, len(defaultCategoryPrefixes))
	for loc, prefixes := range defaultCategoryPrefixes {
		out[loc] = append([]string(nil), prefixes...)
	}
	return out
}

// DefaultCategories returns the built-in allowlist.
func DefaultCategories() *Categories {
	c, err := NewCategories(defaultCategoryPrefixes)
	if err != nil {
		panic(err) // built-in table is static
	}
	return c
}

// NewCategories builds an allowlist from prefixes grouped by locale. The
// default locale comes first, the remaining locales in name order.
func NewCategories(byLocale map[string][]string) (*Categories, error) {
	locales := make([]string, 0, len(byLocale))
	for loc := range byLocale {
		if loc == DefaultLocale {
			continue
		}
		locales = append(locales, loc)
	}
	sort.Strings(locales)
	if _, ok := byLocale[DefaultLocale]; ok {
		locales = append([]string{DefaultLocale}, locales...)
	}

	c := &Categories{}
	seen := make(map[string]bool)
	for _, loc := range locales {
		if loc != DefaultLocale {
			if _, err := ParseLocale(loc); err != nil {
				return nil, err
			}
		}
		for _, prefix := range byLocale[loc] {
			if !strings.HasPrefix(prefix, "/") {
				return nil, fmt.Errorf("%w: category %q", ErrInvalidPath, prefix)
			}
			p := trimTrailingSlashes(prefix)
			if seen[p] {
				continue
			}
			seen[p] = true
			c.prefixes = append(c.prefixes, p)
		}
	}
	return c, nil
}

// Prefixes returns the normalized prefixes in allowlist order.
func (c *Categories) Prefixes() []string {
	return append([]string(nil), c.prefixes...)
}

// Match reports whether href, resolved against base, points into a category
// section. base may be nil for root-relative hrefs. Unparseable hrefs never
// match.
func (c *Categories) Match(href string, base *url.URL) bool {
	u, ok := resolve(href, base)
	if !ok {
		return false
	}
	return c.MatchPath(u.Path)
}

// MatchPath reports whether an already-resolved path is inside a category.
func (c *Categories) MatchPath(p string) bool {
	p = trimTrailingSlashes(p)
	for _, prefix := range c.prefixes {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

// HardNavigationURL resolves href against base and returns the URL a full
// page load should go to: the resolved URL with a trailing slash appended to
// any non-root path that lacks one. ok is false when href cannot be parsed.
func HardNavigationURL(href string, base *url.URL) (target string, ok bool) {
	u, ok := resolve(href, base)
	if !ok {
		return "", false
	}
	if u.Path == "" {
		u.Path = "/"
	}
	if u.Path != "/" && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
		if u.RawPath != "" {
			u.RawPath += "/"
		}
	}
	return u.String(), true
}

// HardNavigationURL is Match followed by the package-level HardNavigationURL;
// ok is false for hrefs outside the allowlist.
func (c *Categories) HardNavigationURL(href string, base *url.URL) (string, bool) {
	if !c.Match(href, base) {
		return "", false
	}
	return HardNavigationURL(href, base)
}

func resolve(href string, base *url.URL) (*url.URL, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return nil, false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil, false
	}
	if base == nil {
		return ref, true
	}
	return base.ResolveReference(ref), true
}

func trimTrailingSlashes(p string) string {
	return strings.TrimRight(p, "/")
}
