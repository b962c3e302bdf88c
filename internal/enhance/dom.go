package enhance

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, attr := range n.Attr {
		if attr.Key != key {
			kept = append(kept, attr)
		}
	}
	n.Attr = kept
}

// hasClass reports whether the class attribute of n contains name.
func hasClass(n *html.Node, name string) bool {
	for _, c := range strings.Fields(getAttr(n, "class")) {
		if c == name {
			return true
		}
	}
	return false
}

// addClass appends name to the class attribute unless it is already there.
// It reports whether the attribute changed.
func addClass(n *html.Node, name string) bool {
	if hasClass(n, name) {
		return false
	}
	classes := strings.Fields(getAttr(n, "class"))
	setAttr(n, "class", strings.Join(append(classes, name), " "))
	return true
}

// isHeader reports whether n is one of the elements the client script treats
// as the site header.
func isHeader(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	return n.DataAtom == atom.Header || hasAttr(n, "data-header") || hasClass(n, "header-hav")
}
