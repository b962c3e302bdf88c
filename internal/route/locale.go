package route

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// DefaultLocales are the non-default locales the site is published in.
// The default locale lives at the root and has no prefix.
var DefaultLocales = []string{"ru"}

// ParseLocale validates a locale path segment such as "ru" or "pt-br" and
// returns it in the lower-case form used in URLs.
func ParseLocale(segment string) (string, error) {
	segment = strings.Trim(segment, "/")
	if segment == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidLocale)
	}
	tag, err := language.Parse(segment)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidLocale, segment, err)
	}
	return strings.ToLower(tag.String()), nil
}

// IsHome reports whether p is a home page: "/" or a bare locale prefix with
// or without a trailing slash ("/ru", "/ru/").
func IsHome(p string, locales []string) bool {
	if p == "" || p == "/" {
		return true
	}
	trimmed := strings.TrimSuffix(strings.TrimPrefix(p, "/"), "/")
	if strings.Contains(trimmed, "/") {
		return false
	}
	for _, loc := range locales {
		if strings.EqualFold(trimmed, loc) {
			return true
		}
	}
	return false
}

// LocaleOf returns the locale prefix of p, or "" for the default locale.
func LocaleOf(p string, locales []string) string {
	first, _, _ := strings.Cut(strings.TrimPrefix(p, "/"), "/")
	for _, loc := range locales {
		if strings.EqualFold(first, loc) {
			return loc
		}
	}
	return ""
}
