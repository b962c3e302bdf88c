// Package audit inspects crawled pages of an exported site for the
// problems the server repairs at serve time and for broken references.
//
// An Auditor runs a list of CheckAnalyzer implementations over the pages
// collected by the crawler:
//
//   - ImageAnalyzer reports image optimizer URLs and relative "images/"
//     paths on sub-pages
//   - SectionAnalyzer reports pages with several page sections
//   - CategoryLinkAnalyzer reports category links without a trailing slash
//   - TitleAnalyzer reports pages without a title
//   - LinkAnalyzer reports links to crawled pages that answered with an error
//   - AssetAnalyzer probes images, stylesheets, scripts and uncrawled
//     internal links concurrently
//
// Findings use path-only locations for internal URLs so that runs against
// different hosts of the same site (for example a random loopback port)
// can be compared.
package audit
