package report

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/waftester/intelcore/pkg/chain"
	"github.com/waftester/intelcore/pkg/defaults"
	"github.com/waftester/intelcore/pkg/finding"
	"github.com/waftester/intelcore/pkg/scoring"
	"github.com/waftester/intelcore/pkg/store"
)

// UnifiedReport is the complete assessment.
type UnifiedReport struct {
	GeneratedAt     time.Time           `json:"generated_at"`
	Summary         ExecutiveSummary    `json:"executive_summary"`
	Technical       []TargetFindings    `json:"technical_findings"`
	AttackChains    []chain.AttackChain `json:"attack_chains"`
	Risk            RiskAssessment      `json:"risk_assessment"`
	Recommendations []Recommendation    `json:"recommendations"`
}

// ExecutiveSummary contains high-level counts.
type ExecutiveSummary struct {
	TotalFindings      int                      `json:"total_findings"`
	TotalTargets       int                      `json:"total_targets"`
	FindingsBySeverity map[finding.Severity]int `json:"findings_by_severity"`
	OverallRisk        scoring.Level            `json:"overall_risk"`
	KeyFindings        []string                 `json:"key_findings,omitempty"`
}

// TargetFindings groups the findings of one target.
type TargetFindings struct {
	Target        string            `json:"target"`
	Name          string            `json:"name,omitempty"`
	Modules       []string          `json:"modules"`
	Findings      []finding.Finding `json:"findings"`
	RiskScore     float64           `json:"risk_score"`
	AttackSurface int               `json:"attack_surface"`
}

// ModuleRisk is the risk level of findings from one source module.
type ModuleRisk struct {
	Module   string        `json:"module"`
	Findings int           `json:"findings"`
	Level    scoring.Level `json:"level"`
}

// RiskAssessment summarizes risk by module and lists risk factors.
type RiskAssessment struct {
	OverallRisk     scoring.Level `json:"overall_risk"`
	Modules         []ModuleRisk  `json:"modules"`
	Factors         []string      `json:"risk_factors"`
	CredentialReuse bool          `json:"credential_reuse"`
}

// Inputs are the collaborator results a report is built from.
type Inputs struct {
	Snapshot        store.Snapshot
	CredentialReuse bool
	Plan            func(target string, findings []finding.Finding) chain.AttackChain
	At              time.Time

	// UnencryptedPorts flag cleartext services as risk factors.
	// Nil uses defaults.UnencryptedPorts.
	UnencryptedPorts []int
}

// Build assembles a report from in.
func Build(in Inputs) UnifiedReport {
	at := in.At
	if at.IsZero() {
		at = time.Now()
	}
	byTarget := in.Snapshot.ByTarget()

	r := UnifiedReport{GeneratedAt: at}
	r.Summary = summarize(in.Snapshot)
	r.Technical = technical(in.Snapshot, byTarget)
	r.AttackChains = chains(in.Snapshot, byTarget, in.Plan)
	r.Risk = assess(in.Snapshot.Findings, in.CredentialReuse, r.Summary.OverallRisk, in.UnencryptedPorts)
	r.Recommendations = recommend(in.Snapshot.Findings, in.CredentialReuse)
	return r
}

func summarize(snap store.Snapshot) ExecutiveSummary {
	counts := scoring.Counts(snap.Findings)
	s := ExecutiveSummary{
		TotalFindings:      len(snap.Findings),
		TotalTargets:       len(snap.Targets),
		FindingsBySeverity: counts,
		OverallRisk:        scoring.LevelFor(counts),
	}
	for _, sev := range []finding.Severity{finding.Critical, finding.High} {
		if n := counts[sev]; n > 0 {
			s.KeyFindings = append(s.KeyFindings, fmt.Sprintf("%d %s severity finding(s)", n, sev))
		}
	}
	opps := 0
	for _, f := range snap.Findings {
		if f.Kind == finding.KindAttackOpportunity {
			opps++
		}
	}
	if opps > 0 {
		s.KeyFindings = append(s.KeyFindings, fmt.Sprintf("%d correlated attack opportunit(ies)", opps))
	}
	return s
}

func technical(snap store.Snapshot, byTarget map[string][]finding.Finding) []TargetFindings {
	out := make([]TargetFindings, 0, len(snap.Targets))
	for _, t := range snap.Targets {
		fs := byTarget[t.Address]
		kinds := make(map[finding.Kind]struct{})
		for _, f := range fs {
			kinds[f.Kind] = struct{}{}
		}
		out = append(out, TargetFindings{
			Target:        t.Address,
			Name:          t.Name,
			Modules:       t.Modules,
			Findings:      fs,
			RiskScore:     scoring.TargetRisk(fs),
			AttackSurface: len(kinds),
		})
	}
	return out
}

func chains(snap store.Snapshot, byTarget map[string][]finding.Finding, plan func(string, []finding.Finding) chain.AttackChain) []chain.AttackChain {
	out := make([]chain.AttackChain, 0, len(snap.Targets))
	if plan == nil {
		return out
	}
	for _, t := range snap.Targets {
		out = append(out, plan(t.Address, byTarget[t.Address]))
	}
	return out
}

func assess(findings []finding.Finding, reuse bool, overall scoring.Level, unencrypted []int) RiskAssessment {
	ra := RiskAssessment{OverallRisk: overall, CredentialReuse: reuse, Factors: []string{}}

	bySource := make(map[string][]finding.Finding)
	var sources []string
	for _, f := range findings {
		if _, ok := bySource[f.Source]; !ok {
			sources = append(sources, f.Source)
		}
		bySource[f.Source] = append(bySource[f.Source], f)
	}
	sort.Strings(sources)
	for _, src := range sources {
		fs := bySource[src]
		ra.Modules = append(ra.Modules, ModuleRisk{Module: src, Findings: len(fs), Level: scoring.Overall(fs)})
	}

	if reuse {
		ra.Factors = append(ra.Factors, "Credential reuse detected across services")
	}

	if unencrypted == nil {
		unencrypted = defaults.UnencryptedPorts()
	}
	var exposed []string
	vulns := 0
	for _, f := range findings {
		switch d := f.Detail.(type) {
		case finding.NetworkService:
			if slices.Contains(unencrypted, d.Port) {
				exposed = append(exposed, fmt.Sprintf("%s:%d", f.Target, d.Port))
			}
		case finding.Vulnerability:
			vulns++
		}
	}
	if len(exposed) > 0 {
		ra.Factors = append(ra.Factors, "Unencrypted services exposed: "+strings.Join(exposed, ", "))
	}
	if vulns > 0 {
		ra.Factors = append(ra.Factors, fmt.Sprintf("%d known vulnerabilit(ies) affect discovered services", vulns))
	}
	return ra
}
