// Package crawler fetches the pages of a site for the checker.
//
// # Components
//
//   - Spider: breadth-first crawler restricted to the start host
//   - Parser: HTML parser that extracts links, images, sections and the
//     site header from a page
//
// # Limits
//
// The spider stops at a maximum link depth and page count, skips paths
// matching ignore patterns, optionally waits between requests and reads at
// most a fixed number of bytes per response.
//
// # Usage
//
//	spider := crawler.NewSpider(http.DefaultClient, crawler.WithMaxDepth(3))
//	pages, err := spider.Crawl(ctx, "http://localhost:3000/")
//	for _, f := range spider.Failures() {
//	    // pages that could not be fetched
//	}
package crawler
