// Package duration provides canonical time constants for the entire codebase.
// This is the SINGLE SOURCE OF TRUTH for all time-based configuration.
//
// Usage:
//
//	ctx, cancel := context.WithTimeout(ctx, duration.Lookup)
//	outcome := adapter.Probe(ctx, duration.ProbeSSH, fn)
//
// DO NOT use hardcoded time.Duration values like `30 * time.Second` anywhere.
// Instead, reference the appropriate constant from this package.
package duration

import "time"

// ============================================================================
// ADAPTER PROBE TIMEOUTS
// ============================================================================
//
// Every adapter invocation carries one of these. Expiry means the probe is
// inconclusive, never a failure finding.
// ============================================================================

const (
	// ProbeFast is for banner grabs and single-request web admin logins (5s)
	ProbeFast = 5 * time.Second

	// ProbeSSH is for SSH and FTP authentication attempts (10s)
	ProbeSSH = 10 * time.Second

	// ProbeDatabase is for database handshakes (15s)
	ProbeDatabase = 15 * time.Second

	// ProbeMax is the upper bound for any single probe (30s)
	ProbeMax = 30 * time.Second
)

// ============================================================================
// LOOKUP TIMEOUTS
// ============================================================================

const (
	// Lookup bounds one full CVE correlation pass, aliases and exploits
	// included (30s)
	Lookup = 30 * time.Second

	// ExploitLookup bounds a single exploit database query (10s)
	ExploitLookup = 10 * time.Second

	// LookupRetry is the first backoff after a failed lookup (500ms)
	LookupRetry = 500 * time.Millisecond

	// LookupRetryMax caps a single lookup backoff (5s)
	LookupRetryMax = 5 * time.Second

	// LookupCache is how long a successful lookup is reused (10min)
	LookupCache = 10 * time.Minute
)

// ============================================================================
// CORRELATION WINDOWS
// ============================================================================

const (
	// TemporalWindow is the window in which findings from several modules
	// on one target are considered related (5min)
	TemporalWindow = 5 * time.Minute
)

// ============================================================================
// SHUTDOWN
// ============================================================================

const (
	// Shutdown is the grace period for draining hooks and telemetry (5s)
	Shutdown = 5 * time.Second

	// ExporterConnect bounds the OTLP exporter dial (10s)
	ExporterConnect = 10 * time.Second

	// SignalGrace is how long a second interrupt is awaited before a
	// forced exit (10s)
	SignalGrace = 10 * time.Second
)
