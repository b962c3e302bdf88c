package model

import (
	"fmt"
	"strings"
)

// Severity represents how badly a finding affects visitors of the site.
type Severity int

const (
	// SeverityInfo indicates markup worth knowing about that does not break anything.
	// Examples: several page sections on one page, category links without a trailing slash.
	SeverityInfo Severity = iota

	// SeverityLow indicates issues the server repairs but the exported files still carry.
	// Examples: relative "images/" paths on sub-pages.
	SeverityLow

	// SeverityMedium indicates issues visitors may notice.
	// Examples: image optimizer URLs that survived enhancement.
	SeverityMedium

	// SeverityHigh indicates broken pages or assets.
	// Examples: internal links or images answering with 4xx/5xx.
	SeverityHigh
)

// String returns a human-readable representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// ParseSeverity parses a severity name case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INFO":
		return SeverityInfo, nil
	case "LOW":
		return SeverityLow, nil
	case "MEDIUM":
		return SeverityMedium, nil
	case "HIGH":
		return SeverityHigh, nil
	default:
		return SeverityInfo, fmt.Errorf("unknown severity %q (want info, low, medium or high)", s)
	}
}

// Finding types reported by the checker.
const (
	FindingBrokenLink       = "broken_link"
	FindingBrokenImage      = "broken_image"
	FindingBrokenAsset      = "broken_asset"
	FindingFetchError       = "fetch_error"
	FindingOptimizerImage   = "optimizer_image"
	FindingRelativeImage    = "relative_image"
	FindingMultipleSections = "multiple_sections"
	FindingCategoryNoSlash  = "category_link_no_slash"
	FindingMissingTitle     = "missing_title"
	FindingMixedContent     = "mixed_content"
)

// FindingInfo contains metadata about a finding type including severity,
// impact description, and remediation recommendation.
type FindingInfo struct {
	Severity       Severity
	Title          string
	Impact         string
	Recommendation string
}

// findingInfoMapping is the single source of truth for finding severities.
var findingInfoMapping = map[string]FindingInfo{
	FindingBrokenLink: {
		Severity:       SeverityHigh,
		Title:          "Broken internal link",
		Impact:         "Visitors following the link get an error page.",
		Recommendation: "Fix the link target or add a route for it.",
	},
	FindingBrokenImage: {
		Severity:       SeverityHigh,
		Title:          "Broken image",
		Impact:         "The image does not render.",
		Recommendation: "Add the image file under the site root or fix its path.",
	},
	FindingBrokenAsset: {
		Severity:       SeverityHigh,
		Title:          "Broken stylesheet or script",
		Impact:         "The page renders without its styles or behavior.",
		Recommendation: "Add the referenced file under the site root or fix its path.",
	},
	FindingFetchError: {
		Severity:       SeverityHigh,
		Title:          "Page could not be fetched",
		Impact:         "The page is unreachable or the request timed out.",
		Recommendation: "Check that the server is running and the page exists.",
	},
	FindingOptimizerImage: {
		Severity:       SeverityMedium,
		Title:          "Image optimizer URL",
		Impact:         "The optimizer endpoint does not exist on a static host, so the image only renders after repair.",
		Recommendation: "Re-export the site with unoptimized images or keep enhancement enabled.",
	},
	FindingRelativeImage: {
		Severity:       SeverityLow,
		Title:          "Relative image path on sub-page",
		Impact:         "\"images/...\" resolves against the sub-page path and breaks without repair.",
		Recommendation: "Use absolute \"/images/...\" paths in the exported markup.",
	},
	FindingMultipleSections: {
		Severity:       SeverityInfo,
		Title:          "Several page sections",
		Impact:         "No section is activated automatically when a page has more than one.",
		Recommendation: "Mark the visible section active in the markup.",
	},
	FindingCategoryNoSlash: {
		Severity:       SeverityInfo,
		Title:          "Category link without trailing slash",
		Impact:         "The client script has to force a full navigation to the slash form.",
		Recommendation: "Link to the category with a trailing slash.",
	},
	FindingMixedContent: {
		Severity:       SeverityMedium,
		Title:          "Insecure resource on https page",
		Impact:         "Browsers block or warn about http resources on https pages.",
		Recommendation: "Load the resource over https or from the site itself.",
	},
	FindingMissingTitle: {
		Severity:       SeverityInfo,
		Title:          "Missing page title",
		Impact:         "Browsers and search engines show the URL instead of a title.",
		Recommendation: "Add a <title> element to the page.",
	},
}

// GetFindingInfo returns the full finding information for a finding type.
// Returns a default FindingInfo with SeverityInfo if the type is not in the mapping.
func GetFindingInfo(findingType string) FindingInfo {
	if info, ok := findingInfoMapping[findingType]; ok {
		return info
	}
	return FindingInfo{
		Severity:       SeverityInfo,
		Title:          findingType,
		Impact:         "Unknown finding type. Review manually.",
		Recommendation: "Investigate the finding and assess impact.",
	}
}
