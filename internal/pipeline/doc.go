// Package pipeline runs a site check as a sequence of steps.
//
// A check crawls the site, audits the crawled pages and optionally stores
// the result in the history database. Each stage is a Step that receives
// the CheckReport being built and adds to it. Steps run in order; the
// pipeline checks for cancellation between steps and records step errors
// in the report.
//
// BatchProcessor checks several sites concurrently with a bounded number
// of pipelines in flight, using errgroup.
package pipeline
