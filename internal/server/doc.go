// Package server serves the exported site over HTTP.
//
// Requests are resolved in this order:
//  1. a static file under the site root (directories serve their index.html,
//     dot-files are never served)
//  2. the literal route table ("/", "/citizenship", "/ru/citizenship", ...),
//     where each route matches with and without a trailing slash
//  3. a plain-text 404 "Not Found"
//
// HTML responses pass through enhance.Rewriter when one is configured. The
// client script and a health endpoint live under /_mpasite/.
//
// The router is go-chi/chi with request ids, real-ip detection, panic
// recovery and a slog request logger. CORS is handled by go-chi/cors and is
// only enabled when allowed origins are configured.
package server
