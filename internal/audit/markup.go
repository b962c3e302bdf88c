package audit

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/nao1215/mpasite/internal/enhance"
	"github.com/nao1215/mpasite/internal/model"
	"github.com/nao1215/mpasite/internal/route"
)

// ImageAnalyzer reports image markup the server has to repair: optimizer
// URLs anywhere and relative "images/" paths on sub-pages.
type ImageAnalyzer struct{}

// NewImageAnalyzer creates a new ImageAnalyzer.
func NewImageAnalyzer() *ImageAnalyzer {
	return &ImageAnalyzer{}
}

// Name returns the analyzer name.
func (a *ImageAnalyzer) Name() string {
	return "images"
}

// Analyze checks the src and srcset of every image.
func (a *ImageAnalyzer) Analyze(ctx context.Context, data *AuditData) ([]model.Finding, error) {
	findings := make([]model.Finding, 0)

	for _, page := range htmlPages(data.Pages) {
		select {
		case <-ctx.Done():
			return findings, ctx.Err()
		default:
		}

		location := pagePath(page.URL)
		home := route.IsHome(location, data.Locales)

		for _, img := range page.Images {
			candidates := append([]string{img.Source}, srcsetURLs(img.Srcset)...)
			for _, src := range candidates {
				switch {
				case src == "":
				case enhance.IsOptimizerURL(src):
					findings = append(findings, model.NewFinding(model.FindingOptimizerImage,
						"image is served through the optimizer endpoint", src, location))
				case !home && enhance.IsRelativeImagePath(src):
					findings = append(findings, model.NewFinding(model.FindingRelativeImage,
						"relative image path resolves against "+location, src, location))
				}
			}
		}
	}

	return findings, nil
}

// SectionAnalyzer reports pages with more than one page section, which the
// server leaves inactive.
type SectionAnalyzer struct{}

// NewSectionAnalyzer creates a new SectionAnalyzer.
func NewSectionAnalyzer() *SectionAnalyzer {
	return &SectionAnalyzer{}
}

// Name returns the analyzer name.
func (a *SectionAnalyzer) Name() string {
	return "sections"
}

// Analyze counts page sections.
func (a *SectionAnalyzer) Analyze(_ context.Context, data *AuditData) ([]model.Finding, error) {
	findings := make([]model.Finding, 0)
	for _, page := range htmlPages(data.Pages) {
		if page.Sections > 1 {
			findings = append(findings, model.NewFinding(model.FindingMultipleSections,
				fmt.Sprintf("%d sections with class %q", page.Sections, enhance.SectionClass),
				strconv.Itoa(page.Sections), pagePath(page.URL)))
		}
	}
	return findings, nil
}

// CategoryLinkAnalyzer reports header links into a category that lack the
// trailing slash, which the client script has to correct on click.
type CategoryLinkAnalyzer struct{}

// NewCategoryLinkAnalyzer creates a new CategoryLinkAnalyzer.
func NewCategoryLinkAnalyzer() *CategoryLinkAnalyzer {
	return &CategoryLinkAnalyzer{}
}

// Name returns the analyzer name.
func (a *CategoryLinkAnalyzer) Name() string {
	return "category_links"
}

// Analyze checks the same-site header anchors inside the allowlist. Links in
// the page body are not rewritten by the client script and are skipped.
func (a *CategoryLinkAnalyzer) Analyze(_ context.Context, data *AuditData) ([]model.Finding, error) {
	findings := make([]model.Finding, 0)

	for _, page := range htmlPages(data.Pages) {
		base, err := url.Parse(page.URL)
		if err != nil {
			continue
		}
		location := pagePath(page.URL)

		for _, anchor := range page.Anchors {
			if !anchor.Nav || !data.Categories.Match(anchor.Source, base) {
				continue
			}
			ref, err := url.Parse(strings.TrimSpace(anchor.Source))
			if err != nil {
				continue
			}
			resolved := base.ResolveReference(ref)
			if !strings.EqualFold(resolved.Host, base.Host) {
				continue
			}
			p := resolved.Path
			if p == "" || p == "/" || strings.HasSuffix(p, "/") {
				continue
			}
			findings = append(findings, model.NewFinding(model.FindingCategoryNoSlash,
				"navigates to "+p+"/", anchor.Source, location))
		}
	}

	return findings, nil
}

// TitleAnalyzer reports pages without a <title>.
type TitleAnalyzer struct{}

// NewTitleAnalyzer creates a new TitleAnalyzer.
func NewTitleAnalyzer() *TitleAnalyzer {
	return &TitleAnalyzer{}
}

// Name returns the analyzer name.
func (a *TitleAnalyzer) Name() string {
	return "titles"
}

// Analyze checks page titles.
func (a *TitleAnalyzer) Analyze(_ context.Context, data *AuditData) ([]model.Finding, error) {
	findings := make([]model.Finding, 0)
	for _, page := range htmlPages(data.Pages) {
		if page.Title == "" {
			findings = append(findings, model.NewFinding(model.FindingMissingTitle, "", "", pagePath(page.URL)))
		}
	}
	return findings, nil
}
