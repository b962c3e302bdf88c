// Package main provides the entry point for the mpasite CLI.
//
// mpasite serves an exported multi-page marketing site and repairs the
// framework leftovers in its HTML on the fly. It can also check a deployed
// site (or the local export) for broken links, images and leftover markup.
//
// Usage:
//
//	mpasite serve --root ./out
//	mpasite check https://example.com
//	mpasite history https://example.com --diff
//
// See --help for all available options.
package main

func main() {
	Execute()
}
