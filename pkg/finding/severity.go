package finding

import "strings"

// Severity represents the severity level of a security finding.
// All values are lowercase strings.
type Severity string

const (
	// Critical represents immediate system compromise (RCE, auth bypass).
	Critical Severity = "critical"

	// High represents significant impact requiring prompt fix.
	High Severity = "high"

	// Medium represents moderate impact.
	Medium Severity = "medium"

	// Low represents limited impact.
	Low Severity = "low"

	// Info represents informational findings with no direct security impact.
	Info Severity = "info"
)

// ParseSeverity normalizes a severity string. CVE feeds report upper-case
// values ("CRITICAL"), adapters report lower-case. Unknown values return
// the empty severity.
func ParseSeverity(s string) Severity {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if sev.IsValid() {
		return sev
	}
	return ""
}

// IsValid reports whether s is a recognized severity level.
func (s Severity) IsValid() bool {
	switch s {
	case Critical, High, Medium, Low, Info:
		return true
	}
	return false
}

// Weight returns the risk weight used for target risk scoring.
// Critical=4, High=3, Medium=2, Low=1, Info/Unknown=0.
func (s Severity) Weight() float64 {
	switch s {
	case Critical:
		return 4
	case High:
		return 3
	case Medium:
		return 2
	case Low:
		return 1
	default:
		return 0
	}
}

// Score returns a numeric score for sorting and comparison.
// Critical=5, High=4, Medium=3, Low=2, Info=1, Unknown=0.
func (s Severity) Score() int {
	switch s {
	case Critical:
		return 5
	case High:
		return 4
	case Medium:
		return 3
	case Low:
		return 2
	case Info:
		return 1
	default:
		return 0
	}
}

// AtLeastHigh reports whether s is high or critical.
func (s Severity) AtLeastHigh() bool {
	return s == Critical || s == High
}

// String returns the severity as a string.
func (s Severity) String() string {
	return string(s)
}

// Ordered returns all severities from most to least severe.
func Ordered() []Severity {
	return []Severity{Critical, High, Medium, Low, Info}
}
