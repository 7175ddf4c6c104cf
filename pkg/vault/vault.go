// Package vault is the engine's credential store. It keeps discovered
// credentials in memory, answers per-service queries and detects password
// reuse. Durable, encrypted storage is delegated to a Backend collaborator.
package vault

import (
	"context"
	"log/slog"
	"sync"

	"github.com/waftester/intelcore/pkg/finding"
	"golang.org/x/text/cases"
)

// Backend is the external vault collaborator.
type Backend interface {
	Get(ctx context.Context, service string) ([]finding.Credential, error)
	Put(ctx context.Context, cred finding.Credential) error
}

// Vault stores credentials for the process lifetime. Uniqueness is not
// enforced.
type Vault struct {
	mu      sync.RWMutex
	creds   []finding.Credential
	backend Backend
	logger  *slog.Logger
}

// Option configures a Vault.
type Option func(*Vault)

// WithBackend writes every added credential through to b.
func WithBackend(b Backend) Option {
	return func(v *Vault) { v.backend = b }
}

// WithLogger sets the vault logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Vault) { v.logger = l }
}

// New creates an empty vault.
func New(opts ...Option) *Vault {
	v := &Vault{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = slog.Default()
	}
	return v
}

// Add stores cred. In-memory storage always succeeds; backend write
// failures are logged and otherwise ignored.
func (v *Vault) Add(ctx context.Context, cred finding.Credential) {
	v.mu.Lock()
	v.creds = append(v.creds, cred)
	v.mu.Unlock()

	if v.backend == nil {
		return
	}
	if err := v.backend.Put(ctx, cred); err != nil {
		v.logger.Warn("vault: backend put failed",
			slog.String("service", cred.Service), slog.Any("error", err))
	}
}

// Preload imports the backend's credentials for each service.
// It returns the number of credentials imported.
func (v *Vault) Preload(ctx context.Context, services ...string) int {
	if v.backend == nil {
		return 0
	}
	var loaded []finding.Credential
	for _, svc := range services {
		creds, err := v.backend.Get(ctx, svc)
		if err != nil {
			v.logger.Warn("vault: backend get failed", slog.String("service", svc), slog.Any("error", err))
			continue
		}
		loaded = append(loaded, creds...)
	}

	v.mu.Lock()
	v.creds = append(v.creds, loaded...)
	v.mu.Unlock()
	return len(loaded)
}

// CredentialsFor returns credentials whose service matches name,
// ignoring case.
func (v *Vault) CredentialsFor(name string) []finding.Credential {
	// A Caser is stateful and must not be shared across goroutines.
	fold := cases.Fold()
	want := fold.String(name)

	v.mu.RLock()
	defer v.mu.RUnlock()
	var out []finding.Credential
	for _, c := range v.creds {
		if fold.String(c.Service) == want {
			out = append(out, c)
		}
	}
	return out
}

// DetectReuse reports whether any (username, password) pair appears more
// than once across all stored credentials.
func (v *Vault) DetectReuse() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()

	distinct := make(map[finding.Pair]struct{}, len(v.creds))
	for _, c := range v.creds {
		distinct[c.Pair()] = struct{}{}
	}
	return len(distinct) < len(v.creds)
}

// Reused returns the pairs seen more than once, with the services each
// was found on.
func (v *Vault) Reused() map[finding.Pair][]string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	services := make(map[finding.Pair][]string)
	for _, c := range v.creds {
		services[c.Pair()] = append(services[c.Pair()], c.Service)
	}
	for p, svcs := range services {
		if len(svcs) < 2 {
			delete(services, p)
		}
	}
	return services
}

// All returns every stored credential in insertion order.
func (v *Vault) All() []finding.Credential {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]finding.Credential, len(v.creds))
	copy(out, v.creds)
	return out
}

// Len returns the number of stored credentials.
func (v *Vault) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.creds)
}
