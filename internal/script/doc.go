// Package script renders the client-side half of the page enhancements.
//
// Some behavior cannot be applied to markup on the server because it reacts to
// the user: clicks on category links must become full page loads, history API
// calls into a category must do the same, and the header hides while the user
// scrolls down. The script that does this is embedded in the binary as a
// text/template and rendered once at startup with the server's category
// allowlist, so both sides share one source of truth.
package script
