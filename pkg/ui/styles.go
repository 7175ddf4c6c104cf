package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/waftester/intelcore/pkg/finding"
	"github.com/waftester/intelcore/pkg/scoring"
)

// Color palette
var (
	Primary   = lipgloss.Color("#7D56F4") // Purple - brand color
	Secondary = lipgloss.Color("#00D4AA") // Cyan/Teal

	// Severity colors (matching OWASP/Nuclei standards)
	Critical = lipgloss.Color("#FF0000")
	High     = lipgloss.Color("#FF6B6B")
	Medium   = lipgloss.Color("#FFD93D")
	Low      = lipgloss.Color("#6BCB77")
	Info     = lipgloss.Color("#4D96FF")

	Muted = lipgloss.Color("#6B7280")
)

// Pre-configured styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(Primary).
			Padding(0, 1)

	SectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Bold(true).
			MarginTop(1)

	LabelStyle = lipgloss.NewStyle().
			Foreground(Muted).
			Width(18)

	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Bold(true)

	TargetStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Underline(true)

	HelpStyle = lipgloss.NewStyle().
			Foreground(Muted).
			Italic(true)
)

// SeverityStyle returns the badge style for a finding severity.
func SeverityStyle(s finding.Severity) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	switch s {
	case finding.Critical:
		return base.Foreground(lipgloss.Color("#FFFFFF")).Background(Critical)
	case finding.High:
		return base.Foreground(lipgloss.Color("#000000")).Background(High)
	case finding.Medium:
		return base.Foreground(lipgloss.Color("#000000")).Background(Medium)
	case finding.Low:
		return base.Foreground(lipgloss.Color("#000000")).Background(Low)
	default:
		return base.Foreground(lipgloss.Color("#FFFFFF")).Background(Info)
	}
}

// RiskStyle returns the style for an overall risk level.
func RiskStyle(l scoring.Level) lipgloss.Style {
	return SeverityStyle(finding.ParseSeverity(strings.ToLower(string(l))))
}
