package ui

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/waftester/intelcore/pkg/chain"
	"github.com/waftester/intelcore/pkg/finding"
	"github.com/waftester/intelcore/pkg/report"
	"github.com/waftester/intelcore/pkg/scoring"
)

func sampleReport(recs int) report.UnifiedReport {
	r := report.UnifiedReport{
		Summary: report.ExecutiveSummary{
			TotalFindings:      3,
			TotalTargets:       1,
			FindingsBySeverity: map[finding.Severity]int{finding.High: 2},
			OverallRisk:        scoring.LevelHigh,
		},
		Technical: []report.TargetFindings{{
			Target:        "10.0.0.5",
			Name:          "web01",
			Findings:      make([]finding.Finding, 3),
			RiskScore:     7.5,
			AttackSurface: 2,
		}},
		AttackChains: []chain.AttackChain{{
			Target:             "10.0.0.5",
			Phases:             make([]chain.Phase, 4),
			TotalTime:          time.Hour,
			SuccessProbability: 0.25,
		}},
		Risk: report.RiskAssessment{CredentialReuse: true},
	}
	for i := range recs {
		r.Recommendations = append(r.Recommendations, report.Recommendation{Priority: 9, Title: fmt.Sprintf("fix %d", i)})
	}
	return r
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintSummary(&buf, sampleReport(2)))
	out := buf.String()

	assert.Contains(t, out, "intelcore")
	assert.Contains(t, out, "HIGH")
	assert.Contains(t, out, "10.0.0.5 (web01)")
	assert.Contains(t, out, "success=25.0%")
	assert.Contains(t, out, "Credential reuse")
	assert.Contains(t, out, "[9] fix 1")
	// A buffer is not a terminal, so no escape sequences.
	assert.NotContains(t, out, "\x1b[")
}

func TestPrintSummaryTruncatesRecommendations(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintSummary(&buf, sampleReport(8)))
	out := buf.String()
	assert.Contains(t, out, "fix 4")
	assert.NotContains(t, out, "fix 5")
	assert.True(t, strings.Contains(out, "3 more"), out)
}

func TestColorEnabled(t *testing.T) {
	assert.False(t, ColorEnabled(&bytes.Buffer{}))
	assert.False(t, IsTerminal(&bytes.Buffer{}))
	assert.Equal(t, 80, Width(&bytes.Buffer{}, 80))

	t.Setenv("NO_COLOR", "1")
	assert.False(t, ColorEnabled(&bytes.Buffer{}))
}

func TestSeverityStyles(t *testing.T) {
	for _, s := range finding.Ordered() {
		assert.NotEmpty(t, SeverityStyle(s).Render(string(s)))
	}
	assert.Equal(t, SeverityStyle(finding.Critical).GetBackground(), RiskStyle(scoring.LevelCritical).GetBackground())
}
