package audit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/nao1215/mpasite/internal/crawler"
	"github.com/nao1215/mpasite/internal/model"
)

// LinkAnalyzer reports links to crawled pages that answered with an error
// status. It needs no network access; uncrawled link targets are left to
// the AssetAnalyzer.
type LinkAnalyzer struct{}

// NewLinkAnalyzer creates a new LinkAnalyzer.
func NewLinkAnalyzer() *LinkAnalyzer {
	return &LinkAnalyzer{}
}

// Name returns the analyzer name.
func (a *LinkAnalyzer) Name() string {
	return "links"
}

// Analyze matches anchors against the crawled pages.
func (a *LinkAnalyzer) Analyze(ctx context.Context, data *AuditData) ([]model.Finding, error) {
	findings := make([]model.Finding, 0)
	site, _ := url.Parse(data.Site)

	crawled := make(map[string]*model.Page, len(data.Pages))
	for _, p := range data.Pages {
		crawled[crawler.NormalizeURL(p.URL)] = p
	}
	referenced := make(map[string]bool)

	for _, page := range htmlPages(data.Pages) {
		select {
		case <-ctx.Done():
			return findings, ctx.Err()
		default:
		}

		location := pagePath(page.URL)
		for _, link := range internalLinks(page) {
			target, ok := crawled[link]
			if !ok || target.StatusCode < http.StatusBadRequest {
				continue
			}
			referenced[link] = true
			findings = append(findings, model.NewFinding(model.FindingBrokenLink,
				fmt.Sprintf("HTTP %d", target.StatusCode), displayURL(site, target.URL), location))
		}
	}

	// Error pages nobody links to, such as a failing start page.
	for _, p := range data.Pages {
		key := crawler.NormalizeURL(p.URL)
		if p.StatusCode >= http.StatusBadRequest && !referenced[key] {
			findings = append(findings, model.NewFinding(model.FindingBrokenLink,
				fmt.Sprintf("HTTP %d", p.StatusCode), displayURL(site, p.URL), pagePath(p.URL)))
		}
	}

	return findings, nil
}

// internalLinks returns the normalized same-host anchor targets of page.
func internalLinks(page *model.Page) []string {
	parser, err := crawler.NewParser(page.URL)
	if err != nil {
		return nil
	}
	seen := make(map[string]bool)
	links := make([]string, 0, len(page.Anchors))
	for _, anchor := range page.Anchors {
		resolved := parser.ResolveURL(anchor.Source)
		if resolved == "" || !parser.IsInternal(resolved) {
			continue
		}
		key := crawler.NormalizeURL(resolved)
		if !seen[key] {
			seen[key] = true
			links = append(links, key)
		}
	}
	return links
}
