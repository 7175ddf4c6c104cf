// Package config loads the engine configuration from YAML.
//
// Every field has a default from pkg/defaults or pkg/duration, so an
// empty file (or no file) yields a working engine. Maps in the file are
// merged into the defaults; lists replace them.
//
//	cfg, err := config.Load("intelcore.yaml")
//	eng, err := engine.New(cfg)
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/waftester/intelcore/pkg/adapter"
	"github.com/waftester/intelcore/pkg/chain"
	"github.com/waftester/intelcore/pkg/coordinator"
	"github.com/waftester/intelcore/pkg/cve"
	"github.com/waftester/intelcore/pkg/defaults"
	"github.com/waftester/intelcore/pkg/duration"
	"github.com/waftester/intelcore/pkg/intelligence"
	"gopkg.in/yaml.v3"
)

// Config holds all engine configuration.
type Config struct {
	// Concurrency bounds asynchronous hook delivery and alias fan-out.
	Concurrency int `yaml:"concurrency"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Ports      PortsConfig               `yaml:"ports"`
	Thresholds ThresholdsConfig          `yaml:"thresholds"`
	Timeouts   TimeoutsConfig            `yaml:"timeouts"`
	CVE        CVEConfig                 `yaml:"cve"`
	Chain      map[string]EstimateConfig `yaml:"chain,omitempty"`
	Telemetry  TelemetryConfig           `yaml:"telemetry"`
	Output     OutputConfig              `yaml:"output"`
}

// PortsConfig selects which ports trigger which follow-on tests.
type PortsConfig struct {
	Web                []int          `yaml:"web"`
	Database           []int          `yaml:"database"`
	SSH                int            `yaml:"ssh"`
	Unencrypted        []int          `yaml:"unencrypted"`
	CredentialServices map[int]string `yaml:"credential_services"`
}

// ThresholdsConfig tunes the intelligence patterns.
type ThresholdsConfig struct {
	ExcessivePorts  int           `yaml:"excessive_ports"`
	TemporalModules int           `yaml:"temporal_modules"`
	TemporalWindow  time.Duration `yaml:"temporal_window"`
}

// TimeoutsConfig bounds external calls.
type TimeoutsConfig struct {
	Lookup        time.Duration            `yaml:"lookup"`
	ExploitLookup time.Duration            `yaml:"exploit_lookup"`
	Shutdown      time.Duration            `yaml:"shutdown"`
	Probes        map[string]time.Duration `yaml:"probes,omitempty"` // by service name
}

// CVEConfig configures the vulnerability database collaborators.
type CVEConfig struct {
	// Feed is an optional JSON feed file served by a static lookup.
	Feed string `yaml:"feed"`

	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`

	// Attempts and RetryDelay control retries of failed lookups.
	Attempts   int           `yaml:"attempts"`
	RetryDelay time.Duration `yaml:"retry_delay"`

	// CacheTTL is how long successful lookups are reused. Zero disables
	// reuse.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// Aliases extends the built-in service alias table.
	Aliases map[string][]string `yaml:"aliases,omitempty"`
}

// EstimateConfig overrides one attack-chain action estimate.
type EstimateConfig struct {
	Duration    time.Duration `yaml:"duration"`
	Probability float64       `yaml:"probability"`
}

// TelemetryConfig configures metrics and tracing. Empty addresses
// disable the corresponding exporter.
type TelemetryConfig struct {
	MetricsAddr  string `yaml:"metrics_addr"`
	MetricsPath  string `yaml:"metrics_path"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	ServiceName  string `yaml:"service_name"`
}

// OutputConfig names optional session artifacts.
type OutputConfig struct {
	JSONL   string `yaml:"jsonl"`
	Journal string `yaml:"journal"`
	JSON    string `yaml:"json"`
	PDF     string `yaml:"pdf"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Concurrency: defaults.ConcurrencyLow,
		LogLevel:    "info",
		Ports: PortsConfig{
			Web:                defaults.WebPorts(),
			Database:           defaults.DatabasePorts(),
			SSH:                defaults.PortSSH,
			Unencrypted:        defaults.UnencryptedPorts(),
			CredentialServices: defaults.CredentialServices(),
		},
		Thresholds: ThresholdsConfig{
			ExcessivePorts:  defaults.ExcessivePortThreshold,
			TemporalModules: defaults.TemporalModuleThreshold,
			TemporalWindow:  duration.TemporalWindow,
		},
		Timeouts: TimeoutsConfig{
			Lookup:        duration.Lookup,
			ExploitLookup: duration.ExploitLookup,
			Shutdown:      duration.Shutdown,
		},
		CVE: CVEConfig{
			RatePerSecond: defaults.LookupRatePerSecond,
			Burst:         defaults.LookupBurst,
			Attempts:      defaults.LookupAttempts,
			RetryDelay:    duration.LookupRetry,
			CacheTTL:      duration.LookupCache,
		},
		Telemetry: TelemetryConfig{
			MetricsPath: defaults.MetricsPath,
			ServiceName: defaults.ToolName,
		},
	}
}

// Load reads path over the defaults and validates the result. An empty
// path returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal encodes cfg as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks ranges and cross-field consistency.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Concurrency < defaults.ConcurrencyMinimal || c.Concurrency > defaults.ConcurrencyMax {
		bad("concurrency %d not in [%d,%d]", c.Concurrency, defaults.ConcurrencyMinimal, defaults.ConcurrencyMax)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	checkPorts := func(name string, ports []int) {
		for _, p := range ports {
			if p < 1 || p > 65535 {
				bad("ports.%s: %d out of range", name, p)
			}
		}
	}
	checkPorts("web", c.Ports.Web)
	checkPorts("database", c.Ports.Database)
	checkPorts("unencrypted", c.Ports.Unencrypted)
	checkPorts("ssh", []int{c.Ports.SSH})
	for p, svc := range c.Ports.CredentialServices {
		checkPorts("credential_services", []int{p})
		if strings.TrimSpace(svc) == "" {
			bad("ports.credential_services: empty service for port %d", p)
		}
	}

	if c.Thresholds.ExcessivePorts < 1 {
		bad("thresholds.excessive_ports must be positive")
	}
	if c.Thresholds.TemporalModules < 2 {
		bad("thresholds.temporal_modules must be at least 2")
	}
	if c.Thresholds.TemporalWindow <= 0 {
		bad("thresholds.temporal_window must be positive")
	}

	if c.Timeouts.Lookup <= 0 {
		bad("timeouts.lookup must be positive")
	}
	if c.Timeouts.ExploitLookup <= 0 {
		bad("timeouts.exploit_lookup must be positive")
	}
	if c.Timeouts.Shutdown <= 0 {
		bad("timeouts.shutdown must be positive")
	}
	for svc, d := range c.Timeouts.Probes {
		if d <= 0 || d > duration.ProbeMax {
			bad("timeouts.probes.%s: %v not in (0,%v]", svc, d, duration.ProbeMax)
		}
	}

	if c.CVE.RatePerSecond < 0 {
		bad("cve.rate_per_second must not be negative")
	}
	if c.CVE.RatePerSecond > 0 && c.CVE.Burst < 1 {
		bad("cve.burst must be positive when rate limiting")
	}
	if c.CVE.Attempts < 1 {
		bad("cve.attempts must be at least 1")
	}
	if c.CVE.RetryDelay < 0 {
		bad("cve.retry_delay must not be negative")
	}
	if c.CVE.CacheTTL < 0 {
		bad("cve.cache_ttl must not be negative")
	}

	if _, err := c.ChainTable(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// ChainTable returns the default action table with overrides applied.
func (c *Config) ChainTable() (chain.Table, error) {
	overrides := make(chain.Table, len(c.Chain))
	for name, est := range c.Chain {
		a := chain.ActionType(name)
		if !slices.Contains(chain.ActionTypes(), a) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAction, name)
		}
		overrides[a] = chain.Estimate{Duration: est.Duration, Probability: est.Probability}
	}
	table := chain.DefaultTable().Merge(overrides)
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// Rules returns the coordinator port rules.
func (c *Config) Rules() coordinator.Rules {
	return coordinator.Rules{
		WebPorts:           slices.Clone(c.Ports.Web),
		DatabasePorts:      slices.Clone(c.Ports.Database),
		SSHPort:            c.Ports.SSH,
		CredentialServices: c.Ports.CredentialServices,
		LookupTimeout:      c.Timeouts.Lookup,
	}
}

// LookupBackoff returns the retry policy for vulnerability lookups.
func (c *Config) LookupBackoff() cve.Backoff {
	return cve.Backoff{
		Attempts: c.CVE.Attempts,
		Initial:  c.CVE.RetryDelay,
		Max:      duration.LookupRetryMax,
	}
}

// PatternThresholds returns the intelligence tuning.
func (c *Config) PatternThresholds() intelligence.Thresholds {
	return intelligence.Thresholds{
		ExcessivePorts:  c.Thresholds.ExcessivePorts,
		TemporalModules: c.Thresholds.TemporalModules,
		TemporalWindow:  c.Thresholds.TemporalWindow,
	}
}

// ProbeTimeout returns the probe timeout for service, falling back to
// the adapter defaults.
func (c *Config) ProbeTimeout(service string) time.Duration {
	for svc, d := range c.Timeouts.Probes {
		if strings.EqualFold(svc, service) {
			return d
		}
	}
	return adapter.TimeoutFor(service)
}

// Level returns the configured log level.
func (c *Config) Level() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}
