package report

import (
	"io"
	"time"

	"github.com/nao1215/mpasite/internal/model"
)

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs the report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.CheckReport) (int, error)

	// WriteDiff outputs the difference between two runs.
	WriteDiff(diff *Diff) (int, error)
}

// Diff is the difference between two check runs of one site.
type Diff struct {
	Site       string    `json:"site"`
	PreviousID string    `json:"previous_id,omitempty"`
	PreviousAt time.Time `json:"previous_at,omitzero"`
	CurrentID  string    `json:"current_id"`
	CurrentAt  time.Time `json:"current_at"`

	model.FindingDiff
}

// NewDiff compares current with previous. previous may be nil for the
// first run of a site.
func NewDiff(previous, current *model.CheckReport) *Diff {
	d := &Diff{
		Site:        current.Site,
		CurrentID:   current.ID,
		CurrentAt:   current.StartedAt,
		FindingDiff: model.DiffFindings(previous, current),
	}
	if previous != nil {
		d.PreviousID = previous.ID
		d.PreviousAt = previous.StartedAt
	}
	return d
}

// HasChanges reports whether any finding appeared or disappeared.
func (d *Diff) HasChanges() bool {
	return len(d.New) > 0 || len(d.Resolved) > 0
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// severities lists the severity levels from most to least severe.
var severities = []model.Severity{
	model.SeverityHigh,
	model.SeverityMedium,
	model.SeverityLow,
	model.SeverityInfo,
}

// statusText returns a short run status.
func statusText(report *model.CheckReport) string {
	switch {
	case report.TimedOut:
		return "TIMED OUT (partial results)"
	case report.Error != "":
		return "ERROR - " + report.Error
	default:
		return "Complete"
	}
}

const timeLayout = "2006-01-02 15:04:05 MST"
