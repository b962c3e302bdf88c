// Package model defines the data structures shared by the site checker.
//
// This package contains the following main types:
//   - Page: a fetched page with the elements the checker inspects
//   - Finding: a single problem found on a page
//   - CheckReport: the result of one check run
//
// Models live in their own package because the crawler, the audit rules,
// the history database and the report writers all use them.
//
// The models are serializable to JSON for report output and database storage.
package model
