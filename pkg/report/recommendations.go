package report

import (
	"fmt"
	"sort"

	"github.com/waftester/intelcore/pkg/finding"
)

// Recommendation is one remediation item. Higher priority comes first.
type Recommendation struct {
	Priority    int     `json:"priority"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Target      string  `json:"target,omitempty"`
	FindingID   string  `json:"finding_id,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// Priorities. Credential reuse outranks every single finding.
const (
	PriorityCredentialReuse = 10
	priorityVulnerability   = 9
	priorityCredentialLeak  = 8
	priorityOpportunity     = 7
	priorityWeb             = 6
	priorityDefault         = 5
)

func recommend(findings []finding.Finding, reuse bool) []Recommendation {
	out := []Recommendation{}
	for _, f := range findings {
		if f.Severity() != finding.Critical {
			continue
		}
		out = append(out, forFinding(f))
	}
	if reuse {
		out = append(out, Recommendation{
			Priority:    PriorityCredentialReuse,
			Title:       "Eliminate credential reuse",
			Description: "The same username and password grant access to more than one service. Rotate the shared credentials and enforce unique passwords per service.",
			Confidence:  1,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

func forFinding(f finding.Finding) Recommendation {
	r := Recommendation{Target: f.Target, FindingID: f.ID, Confidence: f.Confidence}
	switch d := f.Detail.(type) {
	case finding.Vulnerability:
		r.Priority = priorityVulnerability
		r.Title = fmt.Sprintf("Patch %s on %s", d.CVEID, f.Target)
		r.Description = "Upgrade the affected service to a fixed version or apply the vendor mitigation."
	case finding.CredentialLeak:
		r.Priority = priorityCredentialLeak
		r.Title = fmt.Sprintf("Rotate %s credentials for %s", d.Service, d.Username)
		r.Description = "The credential is known to an attacker. Rotate it and review access logs for its use."
	case finding.AttackOpportunity:
		r.Priority = priorityOpportunity
		r.Title = fmt.Sprintf("Break the %s attack path on %s", d.Pattern, f.Target)
		r.Description = d.Description
	case finding.WebVulnerability:
		r.Priority = priorityWeb
		r.Title = fmt.Sprintf("Fix web vulnerability at %s", d.URL)
		r.Description = "Validate and encode the affected input and retest the endpoint."
	case finding.NetworkService:
		r.Priority = priorityDefault
		r.Title = fmt.Sprintf("Restrict %s on %s:%d", serviceName(d.Service), f.Target, d.Port)
		r.Description = "Close the port or limit it to trusted networks."
	default:
		r.Priority = priorityDefault
		r.Title = fmt.Sprintf("Address critical %s finding on %s", f.Kind, f.Target)
		r.Description = f.Get(finding.KeyDescription)
	}
	if r.Description == "" {
		r.Description = "Investigate and remediate the finding."
	}
	return r
}

func serviceName(s string) string {
	if s == "" {
		return "service"
	}
	return s
}
