package engine

import (
	"log/slog"
	"time"

	"github.com/waftester/intelcore/pkg/adapter"
	"github.com/waftester/intelcore/pkg/cve"
	"github.com/waftester/intelcore/pkg/output/dispatcher"
	"github.com/waftester/intelcore/pkg/vault"
)

// Option configures an Engine.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	cves     cve.Lookup
	exploits cve.ExploitLookup
	backend  vault.Backend
	hooks    []dispatcher.Hook
	writers  []dispatcher.Writer
	probers  map[string]adapter.Prober
	now      func() time.Time
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCVELookup sets the vulnerability database. It takes precedence
// over a configured feed file.
func WithCVELookup(l cve.Lookup) Option {
	return func(o *options) { o.cves = l }
}

// WithExploitLookup sets the exploit database.
func WithExploitLookup(l cve.ExploitLookup) Option {
	return func(o *options) { o.exploits = l }
}

// WithVaultBackend sets durable credential storage.
func WithVaultBackend(b vault.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithHook subscribes h to the bus before any finding is recorded.
func WithHook(h dispatcher.Hook) Option {
	return func(o *options) { o.hooks = append(o.hooks, h) }
}

// WithWriter registers w on the bus.
func WithWriter(w dispatcher.Writer) Option {
	return func(o *options) { o.writers = append(o.writers, w) }
}

// WithProber enables credential testing for service.
func WithProber(service string, p adapter.Prober) Option {
	return func(o *options) {
		if o.probers == nil {
			o.probers = make(map[string]adapter.Prober)
		}
		o.probers[service] = p
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}
