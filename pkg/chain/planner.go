package chain

import "github.com/waftester/intelcore/pkg/finding"

// Findings reads the findings recorded for an address.
type Findings interface {
	FindingsFor(address string) []finding.Finding
}

// Planner plans chains from the current state of a finding source.
// Chains are recomputed on every call and never cached.
type Planner struct {
	source Findings
	table  Table
}

// NewPlanner validates table and returns a planner reading from source.
// A nil table uses the defaults.
func NewPlanner(source Findings, table Table) (*Planner, error) {
	if table == nil {
		table = DefaultTable()
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &Planner{source: source, table: table}, nil
}

// Plan returns the chain for target.
func (p *Planner) Plan(target string) AttackChain {
	var findings []finding.Finding
	if p.source != nil {
		findings = p.source.FindingsFor(target)
	}
	return Build(target, findings, p.table)
}

// Table returns the planner's estimate table.
func (p *Planner) Table() Table {
	return p.table.Merge(nil)
}

// PlanFindings plans a chain for target from the given findings, using
// the planner's table.
func (p *Planner) PlanFindings(target string, findings []finding.Finding) AttackChain {
	return Build(target, findings, p.table)
}
