package audit

import (
	"context"
	"net/url"
	"strings"

	"github.com/nao1215/mpasite/internal/model"
)

// MixedContentAnalyzer reports images, scripts and stylesheets loaded over
// plain http from a page served over https. Browsers block or downgrade them.
type MixedContentAnalyzer struct{}

// NewMixedContentAnalyzer creates a new MixedContentAnalyzer.
func NewMixedContentAnalyzer() *MixedContentAnalyzer {
	return &MixedContentAnalyzer{}
}

// Name returns the analyzer name.
func (a *MixedContentAnalyzer) Name() string {
	return "mixed_content"
}

// Analyze checks the subresources of every https page.
func (a *MixedContentAnalyzer) Analyze(ctx context.Context, data *AuditData) ([]model.Finding, error) {
	findings := make([]model.Finding, 0)

	for _, page := range htmlPages(data.Pages) {
		select {
		case <-ctx.Done():
			return findings, ctx.Err()
		default:
		}

		u, err := url.Parse(page.URL)
		if err != nil || u.Scheme != "https" {
			continue
		}
		location := pagePath(page.URL)
		seen := make(map[string]bool)

		report := func(kind, src string) {
			if !isInsecureURL(src) || seen[src] {
				return
			}
			seen[src] = true
			findings = append(findings, model.NewFinding(model.FindingMixedContent,
				kind+" is loaded over plain http", src, location))
		}

		for _, img := range page.Images {
			report("image", img.Source)
			for _, src := range srcsetURLs(img.Srcset) {
				report("image", src)
			}
		}
		for _, s := range page.Scripts {
			report("script", s.Source)
		}
		for _, l := range page.Links {
			if isAssetRel(l.Rel) {
				report("linked resource", l.Source)
			}
		}
	}

	return findings, nil
}

func isInsecureURL(raw string) bool {
	return len(raw) >= len("http://") && strings.EqualFold(raw[:len("http://")], "http://")
}
