package report

import (
	"slices"
	"time"

	"github.com/waftester/intelcore/pkg/chain"
	"github.com/waftester/intelcore/pkg/finding"
	"github.com/waftester/intelcore/pkg/store"
)

// Snapshotter provides the current finding set.
type Snapshotter interface {
	Snapshot() store.Snapshot
}

// ReuseDetector reports credential reuse. *vault.Vault satisfies it.
type ReuseDetector interface {
	DetectReuse() bool
}

// Planner plans an attack chain from a target's findings.
// *chain.Planner satisfies it.
type Planner interface {
	PlanFindings(target string, findings []finding.Finding) chain.AttackChain
}

// Generator builds reports from live collaborators.
type Generator struct {
	store   Snapshotter
	vault   ReuseDetector
	planner Planner
	now     func() time.Time

	unencrypted []int
}

// NewGenerator creates a Generator. vault and planner may be nil.
func NewGenerator(s Snapshotter, v ReuseDetector, p Planner) *Generator {
	return &Generator{store: s, vault: v, planner: p, now: time.Now}
}

// Generate snapshots the store and builds a report.
func (g *Generator) Generate() UnifiedReport {
	in := Inputs{At: g.now(), UnencryptedPorts: g.unencrypted}
	if g.store != nil {
		in.Snapshot = g.store.Snapshot()
	}
	if g.vault != nil {
		in.CredentialReuse = g.vault.DetectReuse()
	}
	if g.planner != nil {
		in.Plan = g.planner.PlanFindings
	}
	return Build(in)
}

// SetUnencryptedPorts overrides the cleartext port list used for risk
// factors.
func (g *Generator) SetUnencryptedPorts(ports []int) {
	g.unencrypted = slices.Clone(ports)
}
