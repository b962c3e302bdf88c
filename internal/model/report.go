package model

import (
	"cmp"
	"slices"
	"time"

	"github.com/google/uuid"
)

// CheckReport is the result of one check run against a site.
type CheckReport struct {
	// ID uniquely identifies the run in the history database.
	ID string `json:"id"`

	// Site is the checked base URL, or the site root for local checks.
	Site string `json:"site"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// PagesCrawled is the number of HTML pages fetched.
	PagesCrawled int `json:"pages_crawled"`

	// AssetsChecked is the number of images and internal link targets probed.
	AssetsChecked int `json:"assets_checked"`

	// Pages lists the URLs and status codes of every crawled page.
	Pages []PageStatus `json:"pages,omitempty"`

	// CrawledPages holds the fetched pages while the check runs. It is not
	// persisted.
	CrawledPages []*Page `json:"-"`

	// Findings contains all findings, deduplicated.
	Findings []Finding `json:"findings"`

	// HighCount, MediumCount, LowCount and InfoCount count findings by severity.
	HighCount   int `json:"high_count"`
	MediumCount int `json:"medium_count"`
	LowCount    int `json:"low_count"`
	InfoCount   int `json:"info_count"`

	// Steps lists the check steps that ran, in order.
	Steps []string `json:"steps,omitempty"`

	// TimedOut indicates if the run hit its deadline.
	TimedOut bool `json:"timed_out"`

	// Error contains the error message if the run failed.
	Error string `json:"error,omitempty"`
}

// PageStatus is the status of one crawled page.
type PageStatus struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
	Title      string `json:"title,omitempty"`
}

// NewCheckReport creates a report for site with a fresh run id.
func NewCheckReport(site string) *CheckReport {
	return &CheckReport{
		ID:        uuid.NewString(),
		Site:      site,
		StartedAt: time.Now(),
		Findings:  make([]Finding, 0),
	}
}

// AddPage records a crawled page.
func (r *CheckReport) AddPage(p *Page) {
	r.Pages = append(r.Pages, PageStatus{URL: p.URL, StatusCode: p.StatusCode, Title: p.Title})
	r.PagesCrawled++
}

// AddFinding adds a finding unless one with the same type, value and
// location is already present. It reports whether the finding was added.
func (r *CheckReport) AddFinding(f Finding) bool {
	for _, existing := range r.Findings {
		if existing.Key() == f.Key() {
			return false
		}
	}
	r.Findings = append(r.Findings, f)

	switch f.Severity {
	case SeverityHigh:
		r.HighCount++
	case SeverityMedium:
		r.MediumCount++
	case SeverityLow:
		r.LowCount++
	case SeverityInfo:
		r.InfoCount++
	}
	return true
}

// Finish stamps the end time and sorts findings by severity (highest
// first), then by location and value.
func (r *CheckReport) Finish() {
	r.FinishedAt = time.Now()
	slices.SortStableFunc(r.Findings, compareFindings)
	slices.SortFunc(r.Pages, func(a, b PageStatus) int { return cmp.Compare(a.URL, b.URL) })
}

func compareFindings(a, b Finding) int {
	if c := cmp.Compare(b.Severity, a.Severity); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Location, b.Location); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Type, b.Type); c != 0 {
		return c
	}
	return cmp.Compare(a.Value, b.Value)
}

// Duration returns how long the run took.
func (r *CheckReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// TotalFindings returns the total number of findings.
func (r *CheckReport) TotalFindings() int {
	return len(r.Findings)
}

// HasFindings returns true if there are any findings.
func (r *CheckReport) HasFindings() bool {
	return len(r.Findings) > 0
}

// GetFindingsBySeverity returns findings filtered by severity.
func (r *CheckReport) GetFindingsBySeverity(severity Severity) []Finding {
	var result []Finding
	for _, f := range r.Findings {
		if f.Severity == severity {
			result = append(result, f)
		}
	}
	return result
}

// HasFindingsAtOrAbove reports whether any finding is at least min severe.
func (r *CheckReport) HasFindingsAtOrAbove(minimum Severity) bool {
	for _, f := range r.Findings {
		if f.Severity >= minimum {
			return true
		}
	}
	return false
}

// FindingDiff is the difference between two check runs.
type FindingDiff struct {
	// New are findings present in the current run only.
	New []Finding `json:"new"`

	// Resolved are findings present in the previous run only.
	Resolved []Finding `json:"resolved"`
}

// DiffFindings compares the findings of two runs. A nil previous report
// makes every current finding new.
func DiffFindings(previous, current *CheckReport) FindingDiff {
	diff := FindingDiff{New: []Finding{}, Resolved: []Finding{}}

	prev := make(map[string]bool)
	if previous != nil {
		for _, f := range previous.Findings {
			prev[f.Key()] = true
		}
	}
	cur := make(map[string]bool)
	if current != nil {
		for _, f := range current.Findings {
			cur[f.Key()] = true
			if !prev[f.Key()] {
				diff.New = append(diff.New, f)
			}
		}
	}
	if previous != nil {
		for _, f := range previous.Findings {
			if !cur[f.Key()] {
				diff.Resolved = append(diff.Resolved, f)
			}
		}
	}
	return diff
}
