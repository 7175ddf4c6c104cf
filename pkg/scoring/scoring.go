// Package scoring computes the derived risk numbers shared by the finding
// store and the report generator: per-target risk score and overall risk
// level.
package scoring

import "github.com/waftester/intelcore/pkg/finding"

// MaxRiskScore is the upper clamp for target risk scores.
const MaxRiskScore = 4.0

// Level is a coarse risk rating.
type Level string

const (
	LevelCritical Level = "CRITICAL"
	LevelHigh     Level = "HIGH"
	LevelMedium   Level = "MEDIUM"
)

// Rank orders levels for comparison. Unknown levels rank lowest.
func (l Level) Rank() int {
	switch l {
	case LevelCritical:
		return 3
	case LevelHigh:
		return 2
	case LevelMedium:
		return 1
	default:
		return 0
	}
}

// HighThreshold is the count of high findings that must be exceeded for a
// HIGH rating when nothing is critical.
const HighThreshold = 2

// Counts tallies findings by normalized severity. Findings without a
// recognized severity are not counted.
func Counts(findings []finding.Finding) map[finding.Severity]int {
	counts := make(map[finding.Severity]int)
	for _, f := range findings {
		if sev := f.Severity(); sev != "" {
			counts[sev]++
		}
	}
	return counts
}

// LevelFor applies the overall risk rule: any critical finding is
// CRITICAL; otherwise more than two high findings is HIGH; otherwise
// MEDIUM.
func LevelFor(counts map[finding.Severity]int) Level {
	if counts[finding.Critical] > 0 {
		return LevelCritical
	}
	if counts[finding.High] > HighThreshold {
		return LevelHigh
	}
	return LevelMedium
}

// Overall is LevelFor(Counts(findings)).
func Overall(findings []finding.Finding) Level {
	return LevelFor(Counts(findings))
}

// TargetRisk is the mean severity weight over findings that carry a
// severity, clamped to [0, MaxRiskScore]. A target with no rated findings
// scores 0.
func TargetRisk(findings []finding.Finding) float64 {
	var sum float64
	var n int
	for _, f := range findings {
		sev := f.Severity()
		if sev == "" {
			continue
		}
		sum += sev.Weight()
		n++
	}
	if n == 0 {
		return 0
	}
	return clamp(sum/float64(n), 0, MaxRiskScore)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
