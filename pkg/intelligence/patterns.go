package intelligence

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/waftester/intelcore/pkg/defaults"
	"github.com/waftester/intelcore/pkg/duration"
	"github.com/waftester/intelcore/pkg/finding"
)

// Pattern names.
const (
	PatternWebSSH        = "web_ssh_combination"
	PatternExcessivePort = "excessive_open_ports"
	PatternNameMatch     = "name_match"
	PatternLocationMatch = "location_match"
	PatternTemporal      = "temporal_correlation"
)

// Match is one pattern hit.
type Match struct {
	Target      string
	Secondary   string
	Description string
}

// Pattern is a side-effect-free predicate over a snapshot. Each match
// becomes one finding of Kind with the pattern's confidence.
type Pattern struct {
	Name       string
	Kind       finding.Kind
	Confidence float64
	Match      func(Snapshot) []Match
}

// Thresholds tune the built-in patterns.
type Thresholds struct {
	ExcessivePorts  int
	TemporalModules int
	TemporalWindow  time.Duration
}

// DefaultThresholds returns the built-in tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ExcessivePorts:  defaults.ExcessivePortThreshold,
		TemporalModules: defaults.TemporalModuleThreshold,
		TemporalWindow:  duration.TemporalWindow,
	}
}

// Builtin returns the built-in patterns.
func Builtin(th Thresholds) []Pattern {
	return []Pattern{
		WebSSH(),
		ExcessivePorts(th.ExcessivePorts),
		NameMatch(),
		LocationMatch(),
		Temporal(th.TemporalModules, th.TemporalWindow),
	}
}

// WebSSH fires when a target exposes both HTTP on 80 and SSH on 22.
func WebSSH() Pattern {
	return Pattern{
		Name:       PatternWebSSH,
		Kind:       finding.KindAttackOpportunity,
		Confidence: 0.8,
		Match: func(s Snapshot) []Match {
			var out []Match
			for _, t := range s.Targets {
				ports := s.Ports(t)
				if slices.Contains(ports, defaults.PortHTTP) && slices.Contains(ports, defaults.PortSSH) {
					out = append(out, Match{
						Target:      t,
						Description: "Web server and SSH exposed together: compromise the web tier for a shell, then persist over SSH",
					})
				}
			}
			return out
		},
	}
}

// ExcessivePorts fires when a target has more than limit distinct open
// ports.
func ExcessivePorts(limit int) Pattern {
	return Pattern{
		Name:       PatternExcessivePort,
		Kind:       finding.KindAttackOpportunity,
		Confidence: 0.7,
		Match: func(s Snapshot) []Match {
			var out []Match
			for _, t := range s.Targets {
				if n := len(s.Ports(t)); n > limit {
					out = append(out, Match{
						Target:      t,
						Description: fmt.Sprintf("%d open ports: large attack surface with pivot and lateral movement potential", n),
					})
				}
			}
			return out
		},
	}
}

// NameMatch links targets that report the same hostname.
func NameMatch() Pattern {
	return attributeMatch(PatternNameMatch, finding.KeyHostname, 0.6, "hostname")
}

// LocationMatch links targets that report the same location.
func LocationMatch() Pattern {
	return attributeMatch(PatternLocationMatch, finding.KeyLocation, 0.5, "location")
}

func attributeMatch(name, key string, confidence float64, label string) Pattern {
	return Pattern{
		Name:       name,
		Kind:       finding.KindDeviceCorrelation,
		Confidence: confidence,
		Match: func(s Snapshot) []Match {
			// value -> targets in first-seen order
			groups := make(map[string][]string)
			var values []string
			for _, t := range s.Targets {
				for _, f := range s.Observed(t) {
					v := strings.ToLower(strings.TrimSpace(f.Get(key)))
					if v == "" {
						continue
					}
					if _, ok := groups[v]; !ok {
						values = append(values, v)
					}
					if !slices.Contains(groups[v], t) {
						groups[v] = append(groups[v], t)
					}
				}
			}
			var out []Match
			for _, v := range values {
				ts := groups[v]
				for i := 0; i < len(ts); i++ {
					for j := i + 1; j < len(ts); j++ {
						out = append(out, Match{
							Target:      ts[i],
							Secondary:   ts[j],
							Description: fmt.Sprintf("%s and %s share %s %q", ts[i], ts[j], label, v),
						})
					}
				}
			}
			return out
		},
	}
}

// Temporal fires when at least modules distinct source modules observed
// a target within window of each other.
func Temporal(modules int, window time.Duration) Pattern {
	return Pattern{
		Name:       PatternTemporal,
		Kind:       finding.KindAttackOpportunity,
		Confidence: 0.5,
		Match: func(s Snapshot) []Match {
			var out []Match
			for _, t := range s.Targets {
				if n := maxSourcesInWindow(s.Observed(t), window); n >= modules {
					out = append(out, Match{
						Target:      t,
						Description: fmt.Sprintf("%d modules reported this target within %s", n, window),
					})
				}
			}
			return out
		},
	}
}

func maxSourcesInWindow(findings []finding.Finding, window time.Duration) int {
	sorted := slices.Clone(findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	best := 0
	for i := range sorted {
		end := sorted[i].Timestamp.Add(window)
		sources := make(map[string]bool)
		for j := i; j < len(sorted) && !sorted[j].Timestamp.After(end); j++ {
			if sorted[j].Source != "" {
				sources[sorted[j].Source] = true
			}
		}
		best = max(best, len(sources))
	}
	return best
}
