package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	gofpdf "github.com/go-pdf/fpdf"
	"github.com/waftester/intelcore/pkg/defaults"
	"github.com/waftester/intelcore/pkg/finding"
	"github.com/waftester/intelcore/pkg/jsonutil"
	"github.com/waftester/intelcore/pkg/scoring"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r UnifiedReport) error {
	enc := jsonutil.NewStreamEncoder(w)
	enc.SetIndent("  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}

// levelColors maps risk levels to RGB.
var levelColors = map[scoring.Level][3]int{
	scoring.LevelCritical: {220, 38, 38},
	scoring.LevelHigh:     {234, 88, 12},
	scoring.LevelMedium:   {202, 138, 4},
}

// maxPDFFindings caps the findings table per target.
const maxPDFFindings = 50

// WritePDF renders r as a PDF document.
func WritePDF(w io.Writer, r UnifiedReport) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(defaults.ToolName+" assessment report", true)
	pdf.SetCreator(defaults.ToolName+" "+defaults.Version, true)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	titleCase := cases.Title(language.English)

	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(150, 150, 150)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	heading := func(text string) {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 14)
		pdf.SetTextColor(30, 41, 59)
		pdf.CellFormat(0, 9, tr(text), "", 1, "L", false, 0, "")
	}
	body := func(text string) {
		pdf.SetFont("Helvetica", "", 10)
		pdf.SetTextColor(60, 60, 60)
		pdf.MultiCell(0, 5, tr(text), "", "L", false)
	}

	// Cover and executive summary
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetTextColor(30, 41, 59)
	pdf.CellFormat(0, 12, "Unified Assessment Report", "", 1, "L", false, 0, "")
	body("Generated " + r.GeneratedAt.Format("2006-01-02 15:04 MST"))

	heading("Executive Summary")
	rgb := levelColors[r.Summary.OverallRisk]
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetTextColor(rgb[0], rgb[1], rgb[2])
	pdf.CellFormat(0, 8, "Overall risk: "+string(r.Summary.OverallRisk), "", 1, "L", false, 0, "")
	body(fmt.Sprintf("%d findings across %d targets.", r.Summary.TotalFindings, r.Summary.TotalTargets))

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(30, 41, 59)
	pdf.SetTextColor(255, 255, 255)
	for _, sev := range finding.Ordered() {
		pdf.CellFormat(30, 7, titleCase.String(string(sev)), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(60, 60, 60)
	for _, sev := range finding.Ordered() {
		pdf.CellFormat(30, 7, fmt.Sprintf("%d", r.Summary.FindingsBySeverity[sev]), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	for _, k := range r.Summary.KeyFindings {
		body("- " + k)
	}

	// Risk assessment
	heading("Risk Assessment")
	if len(r.Risk.Factors) == 0 {
		body("No specific risk factors identified.")
	}
	for _, f := range r.Risk.Factors {
		body("- " + f)
	}
	if len(r.Risk.Modules) > 0 {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(30, 41, 59)
		pdf.SetTextColor(255, 255, 255)
		pdf.CellFormat(80, 7, "Module", "1", 0, "L", true, 0, "")
		pdf.CellFormat(30, 7, "Findings", "1", 0, "C", true, 0, "")
		pdf.CellFormat(0, 7, "Risk", "1", 1, "C", true, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(60, 60, 60)
		for _, m := range r.Risk.Modules {
			pdf.CellFormat(80, 7, tr(m.Module), "1", 0, "L", false, 0, "")
			pdf.CellFormat(30, 7, fmt.Sprintf("%d", m.Findings), "1", 0, "C", false, 0, "")
			pdf.CellFormat(0, 7, string(m.Level), "1", 1, "C", false, 0, "")
		}
	}

	// Recommendations
	heading("Recommendations")
	if len(r.Recommendations) == 0 {
		body("No critical findings require immediate action.")
	}
	for i, rec := range r.Recommendations {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetTextColor(30, 41, 59)
		pdf.MultiCell(0, 5, tr(fmt.Sprintf("%d. [P%d] %s", i+1, rec.Priority, rec.Title)), "", "L", false)
		body(rec.Description)
		pdf.Ln(1)
	}

	// Technical findings
	for _, tf := range r.Technical {
		pdf.AddPage()
		label := tf.Target
		if tf.Name != "" {
			label += " (" + tf.Name + ")"
		}
		heading("Target " + label)
		body(fmt.Sprintf("Risk score %.2f / %.0f, attack surface %d finding kinds, modules: %s",
			tf.RiskScore, scoring.MaxRiskScore, tf.AttackSurface, strings.Join(tf.Modules, ", ")))

		pdf.Ln(2)
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(30, 41, 59)
		pdf.SetTextColor(255, 255, 255)
		pdf.CellFormat(40, 7, "Kind", "1", 0, "L", true, 0, "")
		pdf.CellFormat(25, 7, "Severity", "1", 0, "C", true, 0, "")
		pdf.CellFormat(35, 7, "Source", "1", 0, "L", true, 0, "")
		pdf.CellFormat(0, 7, "Detail", "1", 1, "L", true, 0, "")
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(60, 60, 60)
		for i, f := range tf.Findings {
			if i == maxPDFFindings {
				body(fmt.Sprintf("... %d more findings omitted", len(tf.Findings)-maxPDFFindings))
				break
			}
			sev := string(f.Severity())
			if sev == "" {
				sev = "-"
			}
			pdf.CellFormat(40, 6, string(f.Kind), "1", 0, "L", false, 0, "")
			pdf.CellFormat(25, 6, sev, "1", 0, "C", false, 0, "")
			pdf.CellFormat(35, 6, tr(truncate(f.Source, 20)), "1", 0, "L", false, 0, "")
			pdf.CellFormat(0, 6, tr(truncate(summaryLine(f), 60)), "1", 1, "L", false, 0, "")
		}
	}

	// Attack chains
	for _, c := range r.AttackChains {
		pdf.AddPage()
		heading("Attack Chain: " + c.Target)
		body(fmt.Sprintf("Estimated time %s, success probability %.4f%%",
			c.TotalTime.Round(time.Second), c.SuccessProbability*100))
		for _, p := range c.Phases {
			pdf.SetFont("Helvetica", "B", 11)
			pdf.SetTextColor(30, 41, 59)
			pdf.CellFormat(0, 7, titleCase.String(strings.ReplaceAll(string(p.Type), "_", " ")), "", 1, "L", false, 0, "")
			if len(p.Actions) == 0 {
				body("No actions derived from current findings.")
			}
			for _, a := range p.Actions {
				body(fmt.Sprintf("- %s (%s, p=%.2f)", a.Name, a.Duration, a.Probability))
			}
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("report: render pdf: %w", err)
	}
	return nil
}

// summaryLine renders the most useful payload fields of f.
func summaryLine(f finding.Finding) string {
	switch d := f.Detail.(type) {
	case finding.NetworkService:
		return strings.TrimSpace(fmt.Sprintf("port %d %s %s", d.Port, d.Service, d.Version))
	case finding.WebVulnerability:
		return d.URL
	case finding.BluetoothDevice:
		return strings.TrimSpace(d.DeviceID + " " + d.Name)
	case finding.Vulnerability:
		return d.CVEID
	case finding.DeviceCorrelation:
		return "correlates with " + d.Secondary
	case finding.AttackOpportunity:
		return d.Pattern
	case finding.CredentialLeak:
		return d.Username + " @ " + d.Service
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
