package model

// Finding represents a single problem found during a check.
type Finding struct {
	// Type is the finding type identifier (see the Finding* constants).
	Type string `json:"type"`

	// Severity is the risk level.
	Severity Severity `json:"severity"`

	// SeverityText is the human-readable severity.
	SeverityText string `json:"severity_text"`

	// Title is a short description of the finding.
	Title string `json:"title"`

	// Description provides more detail about this occurrence.
	Description string `json:"description,omitempty"`

	// Impact explains what visitors experience.
	Impact string `json:"impact,omitempty"`

	// Recommendation provides guidance on how to address this finding.
	Recommendation string `json:"recommendation,omitempty"`

	// Value is the offending URL or attribute value.
	Value string `json:"value,omitempty"`

	// Location is the page the finding was discovered on.
	Location string `json:"location,omitempty"`
}

// NewFinding creates a Finding of the given type, filling severity, title,
// impact and recommendation from the finding metadata.
func NewFinding(findingType, description, value, location string) Finding {
	info := GetFindingInfo(findingType)
	return Finding{
		Type:           findingType,
		Severity:       info.Severity,
		SeverityText:   info.Severity.String(),
		Title:          info.Title,
		Description:    description,
		Impact:         info.Impact,
		Recommendation: info.Recommendation,
		Value:          value,
		Location:       location,
	}
}

// Key identifies a finding across check runs.
func (f Finding) Key() string {
	return f.Type + "\x00" + f.Location + "\x00" + f.Value
}
