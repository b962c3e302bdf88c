// Package report renders check reports.
//
// This package contains writers for different output formats:
//   - SimpleWriter: human-readable text for terminal display
//   - JSONWriter and FullJSONWriter: structured JSON for tool integration
//   - MarkdownWriter: Markdown for sharing, built with nao1215/markdown
//   - HTMLWriter: the Markdown report rendered to a page with goldmark
//
// Every writer renders both a full CheckReport and a Diff between two runs
// of the same site, so they can be used interchangeably by the check and
// history commands.
package report
