package intelligence

import (
	"time"

	"github.com/waftester/intelcore/pkg/finding"
)

// Snapshot is an immutable, target-grouped view of a finding set.
type Snapshot struct {
	ByTarget map[string][]finding.Finding
	Targets  []string // first-seen order
	TakenAt  time.Time
}

// NewSnapshot groups findings by target, preserving order.
func NewSnapshot(findings []finding.Finding, at time.Time) Snapshot {
	snap := Snapshot{ByTarget: make(map[string][]finding.Finding), TakenAt: at}
	for _, f := range findings {
		if _, ok := snap.ByTarget[f.Target]; !ok {
			snap.Targets = append(snap.Targets, f.Target)
		}
		snap.ByTarget[f.Target] = append(snap.ByTarget[f.Target], f)
	}
	return snap
}

// Observed returns the non-derived findings for target.
func (s Snapshot) Observed(target string) []finding.Finding {
	var out []finding.Finding
	for _, f := range s.ByTarget[target] {
		if !f.Kind.Derived() {
			out = append(out, f)
		}
	}
	return out
}

// Ports returns the distinct network-service ports on target in
// discovery order.
func (s Snapshot) Ports(target string) []int {
	var out []int
	seen := make(map[int]bool)
	for _, f := range s.ByTarget[target] {
		ns, ok := f.Detail.(finding.NetworkService)
		if !ok {
			if f.Kind != finding.KindNetworkService {
				continue
			}
			d, err := finding.Decode(f.Kind, f.Payload)
			if err != nil {
				continue
			}
			ns = d.(finding.NetworkService)
		}
		if !seen[ns.Port] {
			seen[ns.Port] = true
			out = append(out, ns.Port)
		}
	}
	return out
}
