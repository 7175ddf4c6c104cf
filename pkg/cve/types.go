package cve

import (
	"context"
	"time"

	"github.com/waftester/intelcore/pkg/finding"
)

// Record is a CVE entry returned by a Lookup.
type Record struct {
	CVEID       string  `json:"cve_id"`
	Description string  `json:"description,omitempty"`
	Severity    string  `json:"severity"`
	BaseScore   float64 `json:"base_score"`
}

// Exploit is a located exploit entry for a CVE.
type Exploit struct {
	ExploitID string `json:"exploit_id"`
	Title     string `json:"title,omitempty"`
	Severity  string `json:"severity"`
}

// Lookup queries a CVE database by service name and version.
type Lookup interface {
	Lookup(ctx context.Context, service, version string) ([]Record, error)
}

// ExploitLookup searches an exploit database by CVE identifier.
type ExploitLookup interface {
	SearchExploits(ctx context.Context, cveID string) ([]Exploit, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, service, version string) ([]Record, error)

// Lookup calls f.
func (f LookupFunc) Lookup(ctx context.Context, service, version string) ([]Record, error) {
	return f(ctx, service, version)
}

// ExploitLookupFunc adapts a function to ExploitLookup.
type ExploitLookupFunc func(ctx context.Context, cveID string) ([]Exploit, error)

// SearchExploits calls f.
func (f ExploitLookupFunc) SearchExploits(ctx context.Context, cveID string) ([]Exploit, error) {
	return f(ctx, cveID)
}

// Correlation binds a CVE to one (target, port, service, version).
type Correlation struct {
	CVEID            string           `json:"cve_id"`
	Target           string           `json:"target"`
	Port             int              `json:"port"`
	Service          string           `json:"service"`
	Version          string           `json:"version"`
	Description      string           `json:"description,omitempty"`
	Severity         finding.Severity `json:"severity"`
	BaseScore        float64          `json:"base_score"`
	ExploitAvailable bool             `json:"exploit_available"`
	Exploits         []Exploit        `json:"exploits,omitempty"`
	ExploitCount     int              `json:"exploit_count"`
	FirstSeen        time.Time        `json:"first_seen"`
	LastUpdated      time.Time        `json:"last_updated"`
}

// setExploits replaces the exploit list and recomputes availability.
func (c *Correlation) setExploits(exploits []Exploit) {
	c.Exploits = append([]Exploit(nil), exploits...)
	c.ExploitCount = len(c.Exploits)
	c.ExploitAvailable = c.ExploitCount > 0
}

// clone returns a copy that does not share the exploit slice.
func (c *Correlation) clone() Correlation {
	out := *c
	out.Exploits = append([]Exploit(nil), c.Exploits...)
	return out
}

// BestExploit returns the exploit with the highest severity, preferring
// the first found on ties.
func (c Correlation) BestExploit() (Exploit, bool) {
	best := -1
	for i, e := range c.Exploits {
		if best < 0 || finding.ParseSeverity(e.Severity).Weight() > finding.ParseSeverity(c.Exploits[best].Severity).Weight() {
			best = i
		}
	}
	if best < 0 {
		return Exploit{}, false
	}
	return c.Exploits[best], true
}

// AutoExploitable reports whether the correlation meets the automatic
// exploitation rule: the CVE is critical or high, at least one located
// exploit is critical or high, and an exploit is available.
func (c Correlation) AutoExploitable() bool {
	if !c.ExploitAvailable || !c.Severity.AtLeastHigh() {
		return false
	}
	for _, e := range c.Exploits {
		if finding.ParseSeverity(e.Severity).AtLeastHigh() {
			return true
		}
	}
	return false
}
