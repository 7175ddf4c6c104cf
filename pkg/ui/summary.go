// Package ui renders console output for the intelcore CLI.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/waftester/intelcore/pkg/defaults"
	"github.com/waftester/intelcore/pkg/finding"
	"github.com/waftester/intelcore/pkg/report"
)

// maxSummaryRecommendations bounds the recommendation list on screen.
const maxSummaryRecommendations = 5

// PrintSummary writes a console summary of r to w.
func PrintSummary(w io.Writer, r report.UnifiedReport) error {
	rr := Renderer(w)
	title := TitleStyle.Renderer(rr)
	section := SectionStyle.Renderer(rr)
	label := LabelStyle.Renderer(rr)
	value := ValueStyle.Renderer(rr)
	target := TargetStyle.Renderer(rr)
	help := HelpStyle.Renderer(rr)

	var b strings.Builder
	line := func(l, v string) {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, label.Render(l), v))
		b.WriteByte('\n')
	}

	b.WriteString(title.Render(fmt.Sprintf("%s %s", defaults.ToolName, defaults.Version)))
	b.WriteByte('\n')

	b.WriteString(section.Render("Summary"))
	b.WriteByte('\n')
	line("Targets", value.Render(fmt.Sprint(r.Summary.TotalTargets)))
	line("Findings", value.Render(fmt.Sprint(r.Summary.TotalFindings)))
	line("Overall risk", RiskStyle(r.Summary.OverallRisk).Renderer(rr).Render(string(r.Summary.OverallRisk)))
	for _, sev := range finding.Ordered() {
		if n := r.Summary.FindingsBySeverity[sev]; n > 0 {
			line("  "+string(sev), SeverityStyle(sev).Renderer(rr).Render(fmt.Sprint(n)))
		}
	}
	if r.Risk.CredentialReuse {
		line("Credential reuse", value.Render("yes"))
	}

	if len(r.Technical) > 0 {
		b.WriteString(section.Render("Targets"))
		b.WriteByte('\n')
		for _, t := range r.Technical {
			name := t.Target
			if t.Name != "" && t.Name != t.Target {
				name = fmt.Sprintf("%s (%s)", t.Target, t.Name)
			}
			fmt.Fprintf(&b, "%s  findings=%d risk=%.1f surface=%d\n",
				target.Render(name), len(t.Findings), t.RiskScore, t.AttackSurface)
		}
	}

	if len(r.AttackChains) > 0 {
		b.WriteString(section.Render("Attack chains"))
		b.WriteByte('\n')
		for _, c := range r.AttackChains {
			fmt.Fprintf(&b, "%s  phases=%d time=%s success=%.1f%%\n",
				target.Render(c.Target), len(c.Phases), c.TotalTime, c.SuccessProbability*100)
		}
	}

	if len(r.Recommendations) > 0 {
		b.WriteString(section.Render("Recommendations"))
		b.WriteByte('\n')
		for i, rec := range r.Recommendations {
			if i == maxSummaryRecommendations {
				b.WriteString(help.Render(fmt.Sprintf("... %d more in the full report", len(r.Recommendations)-i)))
				b.WriteByte('\n')
				break
			}
			fmt.Fprintf(&b, "[%d] %s\n", rec.Priority, rec.Title)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
