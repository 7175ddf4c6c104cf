// Package defaults provides canonical default values for the entire codebase.
// This is the SINGLE SOURCE OF TRUTH for all runtime configuration defaults.
//
// Usage:
//
//	cfg.Ports.Web = defaults.WebPorts()
//	pool := workerpool.New(defaults.ConcurrencyMedium)
//
// DO NOT use hardcoded port lists or thresholds anywhere.
// Instead, reference the appropriate constant from this package.
package defaults

// Version is the current intelcore version
const Version = "1.3.0"

// ToolName is the service name used for telemetry and report headers.
const ToolName = "intelcore"

// ============================================================================
// CONCURRENCY SETTINGS
// ============================================================================
//
// Use these for worker pools, lookup fan-out and async hook dispatch.
// ============================================================================

const (
	// ConcurrencyMinimal is for single-threaded operations (1)
	ConcurrencyMinimal = 1

	// ConcurrencyLow is for external lookups such as CVE databases (4)
	ConcurrencyLow = 4

	// ConcurrencyMedium is for event dispatch workers (16)
	ConcurrencyMedium = 16

	// ConcurrencyMax is the upper bound for any pool (256)
	ConcurrencyMax = 256
)

// ============================================================================
// PORT CLASSIFICATION
// ============================================================================
//
// Ports that drive automated follow-on actions when a network-service
// finding is recorded.
// ============================================================================

const (
	// PortSSH triggers credential testing with SSH credentials.
	PortSSH = 22

	// PortHTTP is the default port for the http scheme.
	PortHTTP = 80

	// PortHTTPS is the default port for the https scheme.
	PortHTTPS = 443

	// PortHTTPSAlt is the alternate TLS web port.
	PortHTTPSAlt = 8443
)

// WebPorts returns the ports that trigger web testing.
func WebPorts() []int {
	return []int{80, 443, 8080, 8443, 3000, 5000, 8000, 9000}
}

// TLSPorts returns the ports that use the https scheme.
func TLSPorts() []int {
	return []int{PortHTTPS, PortHTTPSAlt}
}

// DatabasePorts returns the ports that trigger database testing
// (MySQL, PostgreSQL, MSSQL, Oracle).
func DatabasePorts() []int {
	return []int{3306, 5432, 1433, 1521}
}

// UnencryptedPorts returns plaintext service ports flagged as a risk factor
// (FTP, Telnet, HTTP, POP3).
func UnencryptedPorts() []int {
	return []int{21, 23, 80, 110}
}

// CredentialServices maps ports to the service name used for credential
// probes. The names match the probe set supplied by tool adapters.
func CredentialServices() map[int]string {
	return map[int]string{
		21:    "FTP",
		22:    "SSH",
		80:    "Web",
		443:   "Web",
		3306:  "MySQL",
		5432:  "PostgreSQL",
		27017: "MongoDB",
	}
}

// ============================================================================
// CORRELATION THRESHOLDS
// ============================================================================

const (
	// ExcessivePortThreshold is the distinct open port count a target must
	// exceed before the excessive_open_ports pattern fires (10).
	ExcessivePortThreshold = 10

	// TemporalModuleThreshold is the number of distinct source modules that
	// must report one target inside the temporal window (3).
	TemporalModuleThreshold = 3

	// LookupRatePerSecond bounds queries to external CVE databases (10).
	LookupRatePerSecond = 10

	// LookupBurst is the token bucket burst for external lookups (5).
	LookupBurst = 5

	// LookupAttempts is how often a failed external lookup is tried (2).
	LookupAttempts = 2
)

// ============================================================================
// TELEMETRY
// ============================================================================

const (
	// MetricsPort is the default Prometheus scrape port (9464).
	MetricsPort = 9464

	// MetricsPath is the default Prometheus scrape path.
	MetricsPath = "/metrics"

	// OTLPEndpoint is the default OpenTelemetry collector address.
	OTLPEndpoint = "localhost:4317"
)
