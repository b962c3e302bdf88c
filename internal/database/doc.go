// Package database stores check history in SQLite.
//
// The HistoryDB keeps:
//   - one row per check run with severity counts and the full report as JSON
//   - the latest known status and content hash of every crawled page per site
//
// SQLite is accessed through modernc.org/sqlite, a CGO-free driver, so the
// binary cross-compiles without a C toolchain. The database file lives in
// the XDG data directory unless configured otherwise.
package database
