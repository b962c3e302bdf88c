package enhance

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// optimizerPrefix is the path of the framework's image optimization endpoint.
const optimizerPrefix = "/_next/image"

var (
	// optimizerQueryRe captures the query string of an optimizer URL.
	optimizerQueryRe = regexp.MustCompile(`/_next/image/?\?(.+)$`)

	// srcsetURLRe captures the first url= parameter in a srcset value.
	srcsetURLRe = regexp.MustCompile(`url=([^&\s]+)`)

	relativeImageRe  = regexp.MustCompile(`(?i)^images/`)
	relativeSrcsetRe = regexp.MustCompile(`(?i)(^|,|\s)images/`)
)

// imageChange records what fixImage did to one element.
type imageChange struct {
	optimized bool
	relative  bool
}

// fixImage rewrites the src and srcset of a single <img>. Decoding errors
// abort the element and leave any attribute already written in place.
func fixImage(n *html.Node, isHome bool) (imageChange, error) {
	var change imageChange

	src := getAttr(n, "src")
	srcset := getAttr(n, "srcset")

	if strings.HasPrefix(src, optimizerPrefix) {
		original, err := originalImageURL(src)
		if err != nil {
			return change, err
		}
		if original != "" {
			setAttr(n, "src", original)
			removeAttr(n, "srcset")
			change.optimized = original != src
		}
		src = original
	}

	if srcset != "" && strings.Contains(srcset, optimizerPrefix) {
		if m := srcsetURLRe.FindStringSubmatch(srcset); m != nil {
			decoded, err := decodeComponent(m[1])
			if err != nil {
				return change, err
			}
			setAttr(n, "src", decoded)
			removeAttr(n, "srcset")
			change.optimized = true
		}
	}

	if !isHome {
		if relativeImageRe.MatchString(src) {
			setAttr(n, "src", "/"+strings.TrimPrefix(src, "/"))
			change.relative = true
		}
		if hasAttr(n, "srcset") && relativeSrcsetRe.MatchString(srcset) {
			setAttr(n, "srcset", relativeSrcsetRe.ReplaceAllString(srcset, "${1}/images/"))
			change.relative = true
		}
	}

	return change, nil
}

// originalImageURL returns the decoded url parameter of an optimizer URL.
// URLs without a url parameter, or with an empty one, are returned unchanged.
// A url parameter that does not decode is an error.
func originalImageURL(u string) (string, error) {
	m := optimizerQueryRe.FindStringSubmatch(u)
	if m == nil {
		return u, nil
	}
	original, ok := queryParam(m[1], "url")
	if !ok || original == "" {
		return u, nil
	}
	return decodeComponent(original)
}

// queryParam returns the first value of key in a form-encoded query. Pairs
// are split on '&' only, '+' is a space, and malformed escapes are kept as
// written.
func queryParam(query, key string) (string, bool) {
	for pair := range strings.SplitSeq(query, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		if lenientUnescape(k) == key {
			return lenientUnescape(v), true
		}
	}
	return "", false
}

func lenientUnescape(s string) string {
	if !strings.ContainsAny(s, "%+") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '+':
			b.WriteByte(' ')
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
		default:
			b.WriteByte(c)
		}
	}
	return strings.ToValidUTF8(b.String(), "\uFFFD")
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case c >= 'a':
		return c - 'a' + 10
	case c >= 'A':
		return c - 'A' + 10
	default:
		return c - '0'
	}
}

// decodeComponent percent-decodes s without treating '+' as a space. Invalid
// escapes and escapes that do not form UTF-8 are errors.
func decodeComponent(s string) (string, error) {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return "", err
	}
	if !utf8.ValidString(decoded) {
		return "", fmt.Errorf("invalid UTF-8 in %q", s)
	}
	return decoded, nil
}

// IsOptimizerURL reports whether u points at the image optimization endpoint.
func IsOptimizerURL(u string) bool {
	return strings.Contains(u, optimizerPrefix)
}

// IsRelativeImagePath reports whether u is a relative "images/..." path that
// breaks on sub-pages.
func IsRelativeImagePath(u string) bool {
	return relativeImageRe.MatchString(u)
}
