package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/waftester/intelcore/pkg/chain"
	"github.com/waftester/intelcore/pkg/defaults"
	"github.com/waftester/intelcore/pkg/duration"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, defaults.WebPorts(), cfg.Ports.Web)
	assert.Equal(t, 22, cfg.Ports.SSH)
	assert.Equal(t, 10, cfg.Thresholds.ExcessivePorts)
	assert.Equal(t, 3, cfg.Thresholds.TemporalModules)
	assert.Equal(t, duration.Lookup, cfg.Timeouts.Lookup)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseOverrides(t *testing.T) {
	data := []byte(`
concurrency: 8
log_level: debug
ports:
  web: [80, 8000]
thresholds:
  excessive_ports: 20
  temporal_window: 2m
timeouts:
  lookup: 5s
  probes:
    ssh: 3s
chain:
  network_exploit:
    duration: 30m
    probability: 0.5
cve:
  feed: feed.json
  aliases:
    lighttpd: [lighty]
telemetry:
  metrics_addr: ":9464"
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, []int{80, 8000}, cfg.Ports.Web)
	// Sections not named keep their defaults.
	assert.Equal(t, defaults.DatabasePorts(), cfg.Ports.Database)
	assert.Equal(t, 20, cfg.Thresholds.ExcessivePorts)
	assert.Equal(t, 2*time.Minute, cfg.Thresholds.TemporalWindow)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Lookup)
	assert.Equal(t, duration.ExploitLookup, cfg.Timeouts.ExploitLookup)
	assert.Equal(t, "feed.json", cfg.CVE.Feed)
	assert.Equal(t, []string{"lighty"}, cfg.CVE.Aliases["lighttpd"])
	assert.Equal(t, ":9464", cfg.Telemetry.MetricsAddr)

	assert.Equal(t, 3*time.Second, cfg.ProbeTimeout("SSH"))
	assert.Equal(t, duration.ProbeDatabase, cfg.ProbeTimeout("MySQL"))

	table, err := cfg.ChainTable()
	require.NoError(t, err)
	assert.Equal(t, chain.Estimate{Duration: 30 * time.Minute, Probability: 0.5}, table[chain.ActionNetworkExploit])
	assert.Equal(t, chain.DefaultTable()[chain.ActionWebExploit], table[chain.ActionWebExploit])

	rules := cfg.Rules()
	assert.Equal(t, []int{80, 8000}, rules.WebPorts)
	assert.Equal(t, 5*time.Second, rules.LookupTimeout)

	b := cfg.LookupBackoff()
	assert.Equal(t, 2, b.Attempts)
	assert.Equal(t, duration.LookupRetry, b.Initial)

	th := cfg.PatternThresholds()
	assert.Equal(t, 20, th.ExcessivePorts)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "bogus: 1"},
		{"bad yaml", "ports: [1"},
		{"zero concurrency", "concurrency: 0"},
		{"bad level", "log_level: loud"},
		{"port range", "ports:\n  web: [70000]"},
		{"negative window", "thresholds:\n  temporal_window: -1s"},
		{"probability above one", "chain:\n  network_scan:\n    duration: 1m\n    probability: 1.5"},
		{"NaN probability", "chain:\n  network_scan:\n    duration: 1m\n    probability: .nan"},
		{"zero duration", "chain:\n  network_scan:\n    probability: 0.5"},
		{"unknown action", "chain:\n  teleport:\n    duration: 1m\n    probability: 0.5"},
		{"probe too long", "timeouts:\n  probes:\n    ssh: 5m"},
		{"burst", "cve:\n  rate_per_second: 5\n  burst: 0"},
		{"attempts", "cve:\n  attempts: 0"},
		{"negative cache ttl", "cve:\n  cache_ttl: -1s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestUnknownActionSentinel(t *testing.T) {
	_, err := Parse([]byte("chain:\n  teleport:\n    duration: 1m\n    probability: 0.5"))
	assert.ErrorIs(t, err, ErrUnknownAction)

	_, err = Parse([]byte("chain:\n  network_scan:\n    duration: 1m\n    probability: 2"))
	assert.ErrorIs(t, err, chain.ErrInvalidEstimate)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intelcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("concurrency: 2\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Concurrency)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Chain = map[string]EstimateConfig{"persistence": {Duration: 5 * time.Minute, Probability: 0.9}}
	data, err := cfg.Marshal()
	require.NoError(t, err)

	back, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}
