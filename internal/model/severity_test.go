package model

import "testing"

// TestSeverityString tests the String method of Severity.
func TestSeverityString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		severity Severity
		expected string
	}{
		{SeverityInfo, "INFO"},
		{SeverityLow, "LOW"},
		{SeverityMedium, "MEDIUM"},
		{SeverityHigh, "HIGH"},
		{Severity(999), "UNKNOWN"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			t.Parallel()
			if tc.severity.String() != tc.expected {
				t.Errorf("got %q, expected %q", tc.severity.String(), tc.expected)
			}
		})
	}
}

func TestParseSeverity(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input   string
		want    Severity
		wantErr bool
	}{
		{"info", SeverityInfo, false},
		{"LOW", SeverityLow, false},
		{" Medium ", SeverityMedium, false},
		{"high", SeverityHigh, false},
		{"critical", SeverityInfo, true},
		{"", SeverityInfo, true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSeverity(tc.input)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseSeverity(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("ParseSeverity(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

// TestGetFindingInfo verifies every known finding type carries complete metadata.
func TestGetFindingInfo(t *testing.T) {
	t.Parallel()

	for findingType := range findingInfoMapping {
		t.Run(findingType, func(t *testing.T) {
			t.Parallel()
			info := GetFindingInfo(findingType)
			if info.Title == "" || info.Impact == "" || info.Recommendation == "" {
				t.Errorf("incomplete finding info for %q: %+v", findingType, info)
			}
		})
	}

	t.Run("unknown type", func(t *testing.T) {
		t.Parallel()
		info := GetFindingInfo("nope")
		if info.Severity != SeverityInfo || info.Title != "nope" {
			t.Errorf("unexpected default info: %+v", info)
		}
	})
}
