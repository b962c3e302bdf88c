// Package route holds the URL knowledge of the site: which literal paths map
// to which HTML files, which path prefixes are "category" pages that must be
// reached with a full page load, and which paths are locale home pages.
//
// The same Categories value feeds the server-side route table and the client
// script, so the browser and the server always agree on the allowlist.
//
// # Usage
//
//	table := route.DefaultTable()
//	file, ok := table.Resolve("/ru/citizenship/") // "citizenship.html", true
//
//	cats := route.DefaultCategories()
//	target, ok := cats.HardNavigationURL("/citizenship", base) // ".../citizenship/"
package route
