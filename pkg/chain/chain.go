// Package chain plans phased attack chains from a target's findings.
//
// A chain always has four phases in fixed order. Reconnaissance,
// vulnerability assessment and post-exploitation carry canned actions;
// the exploitation phase has one action per exploitable finding. Each
// action's duration and probability come from a Table. The chain success
// probability multiplies every action probability, which assumes the
// actions are independent. That is a known simplification.
package chain

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/waftester/intelcore/pkg/finding"
)

// PhaseType identifies a chain phase.
type PhaseType string

const (
	PhaseReconnaissance          PhaseType = "reconnaissance"
	PhaseVulnerabilityAssessment PhaseType = "vulnerability_assessment"
	PhaseExploitation            PhaseType = "exploitation"
	PhasePostExploitation        PhaseType = "post_exploitation"
)

// Phases returns the phase types in chain order.
func Phases() []PhaseType {
	return []PhaseType{PhaseReconnaissance, PhaseVulnerabilityAssessment, PhaseExploitation, PhasePostExploitation}
}

// Action is one step of a phase.
type Action struct {
	Type            ActionType        `json:"type"`
	Name            string            `json:"name"`
	Parameters      map[string]string `json:"parameters,omitempty"`
	Duration        time.Duration     `json:"-"`
	DurationSeconds float64           `json:"estimated_seconds"`
	Probability     float64           `json:"success_probability"`
	FindingID       string            `json:"finding_id,omitempty"`
}

// Phase is an ordered list of actions.
type Phase struct {
	Type    PhaseType `json:"type"`
	Actions []Action  `json:"actions"`
}

// AttackChain is the plan for one target.
type AttackChain struct {
	Target             string        `json:"target"`
	Phases             []Phase       `json:"phases"`
	TotalTime          time.Duration `json:"-"`
	TotalSeconds       float64       `json:"estimated_total_seconds"`
	SuccessProbability float64       `json:"success_probability"`
}

// Actions returns every action in chain order.
func (c AttackChain) Actions() []Action {
	var out []Action
	for _, p := range c.Phases {
		out = append(out, p.Actions...)
	}
	return out
}

// Build plans a chain for target from its findings. Findings that cannot
// be mapped to an exploit action are skipped. Missing table entries fall
// back to the defaults.
func Build(target string, findings []finding.Finding, table Table) AttackChain {
	b := builder{table: table, fallback: DefaultTable()}

	chain := AttackChain{Target: target}
	chain.Phases = []Phase{
		{Type: PhaseReconnaissance, Actions: []Action{
			b.action(ActionNetworkScan, "Network port scan", nil, ""),
			b.action(ActionBluetoothDiscovery, "Bluetooth device discovery", nil, ""),
			b.action(ActionWebEnumeration, "Web content enumeration", nil, ""),
		}},
		{Type: PhaseVulnerabilityAssessment, Actions: []Action{
			b.action(ActionCVECorrelation, "CVE correlation", nil, ""),
			b.action(ActionWebScan, "Web vulnerability scan", nil, ""),
			b.action(ActionBluetoothVulnTest, "Bluetooth vulnerability test", nil, ""),
		}},
		{Type: PhaseExploitation, Actions: b.exploits(findings)},
		{Type: PhasePostExploitation, Actions: []Action{
			b.action(ActionPrivilegeEscalation, "Privilege escalation", nil, ""),
			b.action(ActionLateralMovement, "Lateral movement", nil, ""),
			b.action(ActionExfiltration, "Data exfiltration", nil, ""),
			b.action(ActionPersistence, "Establish persistence", nil, ""),
		}},
	}

	prob := 1.0
	for _, a := range chain.Actions() {
		chain.TotalTime += a.Duration
		prob *= a.Probability
	}
	chain.TotalSeconds = chain.TotalTime.Seconds()
	chain.SuccessProbability = math.Max(prob, math.SmallestNonzeroFloat64)
	return chain
}

type builder struct {
	table    Table
	fallback Table
}

func (b builder) estimate(t ActionType) Estimate {
	if e, ok := b.table[t]; ok && e.Validate() == nil {
		return e
	}
	return b.fallback[t]
}

func (b builder) action(t ActionType, name string, params map[string]string, findingID string) Action {
	e := b.estimate(t)
	return Action{
		Type:            t,
		Name:            name,
		Parameters:      params,
		Duration:        e.Duration,
		DurationSeconds: e.Duration.Seconds(),
		Probability:     e.Probability,
		FindingID:       findingID,
	}
}

func (b builder) exploits(findings []finding.Finding) []Action {
	actions := []Action{}
	for _, f := range findings {
		detail := f.Detail
		if detail == nil {
			d, err := finding.Decode(f.Kind, f.Payload)
			if err != nil {
				continue
			}
			detail = d
		}
		switch d := detail.(type) {
		case finding.NetworkService:
			name := fmt.Sprintf("Exploit port %d", d.Port)
			if d.Service != "" {
				name = fmt.Sprintf("Exploit %s on port %d", d.Service, d.Port)
			}
			params := map[string]string{finding.KeyPort: strconv.Itoa(d.Port)}
			if d.Service != "" {
				params[finding.KeyService] = d.Service
			}
			actions = append(actions, b.action(ActionNetworkExploit, name, params, f.ID))
		case finding.WebVulnerability:
			actions = append(actions, b.action(ActionWebExploit, "Exploit "+d.URL,
				map[string]string{finding.KeyURL: d.URL}, f.ID))
		case finding.BluetoothDevice:
			actions = append(actions, b.action(ActionBluetoothExploit, "Exploit Bluetooth device "+d.DeviceID,
				map[string]string{finding.KeyDeviceID: d.DeviceID}, f.ID))
		}
	}
	return actions
}
