// Package enhance repairs exported framework pages before they are served.
//
// The site was built with an image-optimizing framework and then exported as
// plain HTML files. The export leaves markup that only works when the
// framework's runtime is present. Rewriter walks the parsed document with
// golang.org/x/net/html and fixes it:
//
//   - <img> src/srcset pointing at the optimizer endpoint (/_next/image?url=...)
//     are replaced with the original image URL
//   - relative "images/..." paths on sub-pages become absolute "/images/..."
//   - a page with exactly one <section class="page"> gets the "is-active" class
//   - pages with a site header get the minimal hide-on-scroll stylesheet
//   - the client script is referenced once per page
//
// Every fix is best-effort. A malformed URL on one element leaves that element
// untouched and the rest of the page is still processed.
package enhance
