package coordinator

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/waftester/intelcore/pkg/cve"
	"github.com/waftester/intelcore/pkg/defaults"
	"github.com/waftester/intelcore/pkg/duration"
	"github.com/waftester/intelcore/pkg/finding"
	"github.com/waftester/intelcore/pkg/output/events"
)

// Credentials is the vault surface the reactor needs.
type Credentials interface {
	Add(ctx context.Context, cred finding.Credential)
	CredentialsFor(service string) []finding.Credential
}

// Findings reads the findings recorded for an address.
type Findings interface {
	FindingsFor(address string) []finding.Finding
}

// CVECorrelator correlates a service banner with known CVEs.
type CVECorrelator interface {
	Correlate(ctx context.Context, service, version, target string, port int) []cve.Correlation
}

// Analyzer runs a cross-finding pattern pass.
type Analyzer interface {
	Analyze(ctx context.Context) []finding.Finding
}

// Scheduler runs background work. *workerpool.Pool satisfies it.
type Scheduler interface {
	Go(task func()) bool
}

// Rules selects which ports trigger which follow-on tests.
type Rules struct {
	WebPorts           []int
	DatabasePorts      []int
	SSHPort            int
	CredentialServices map[int]string
	LookupTimeout      time.Duration
}

// DefaultRules returns the built-in port rules.
func DefaultRules() Rules {
	return Rules{
		WebPorts:           defaults.WebPorts(),
		DatabasePorts:      defaults.DatabasePorts(),
		SSHPort:            defaults.PortSSH,
		CredentialServices: defaults.CredentialServices(),
		LookupTimeout:      duration.Lookup,
	}
}

// ReactorConfig wires a Reactor.
type ReactorConfig struct {
	Coordinator *Coordinator
	Vault       Credentials
	Findings    Findings
	CVE         CVECorrelator
	Analyzer    Analyzer
	Scheduler   Scheduler
	Rules       Rules
	Logger      *slog.Logger
}

// testKey identifies one credential test so a verified credential does
// not bounce between services forever.
type testKey struct {
	target string
	port   int
	pair   finding.Pair
}

// Reactor reacts to recorded findings. It is registered as a dispatcher
// hook for finding.recorded, so each recorded finding is seen once.
type Reactor struct {
	cfg    ReactorConfig
	logger *slog.Logger

	mu     sync.Mutex
	tested map[testKey]struct{}
}

// NewReactor creates a Reactor. Nil collaborators disable the rules that
// need them.
func NewReactor(cfg ReactorConfig) *Reactor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Coordinator == nil {
		cfg.Coordinator = New(nil, cfg.Logger)
	}
	if cfg.Rules.LookupTimeout <= 0 {
		cfg.Rules.LookupTimeout = duration.Lookup
	}
	return &Reactor{
		cfg:    cfg,
		logger: cfg.Logger,
		tested: make(map[testKey]struct{}),
	}
}

// EventTypes implements dispatcher.Hook.
func (r *Reactor) EventTypes() []events.EventType {
	return []events.EventType{events.EventTypeFindingRecorded}
}

// OnEvent implements dispatcher.Hook.
func (r *Reactor) OnEvent(ctx context.Context, e events.Event) error {
	rec, ok := e.(*events.FindingRecordedEvent)
	if !ok {
		return nil
	}
	r.React(ctx, rec.Finding)
	return nil
}

// React applies every rule to f.
func (r *Reactor) React(ctx context.Context, f finding.Finding) {
	detail := f.Detail
	if detail == nil {
		d, err := finding.Decode(f.Kind, f.Payload)
		if err != nil {
			r.logger.Debug("coordinator: undecodable finding", slog.String("id", f.ID), slog.Any("error", err))
			return
		}
		detail = d
	}

	switch d := detail.(type) {
	case finding.NetworkService:
		r.onNetworkService(ctx, f, d)
		r.analyze(ctx)
	case finding.WebVulnerability, finding.BluetoothDevice:
		r.analyze(ctx)
	case finding.CredentialLeak:
		r.onCredentialLeak(ctx, f, d)
	case finding.DeviceCorrelation:
		r.cfg.Coordinator.SuggestCoordinatedAttack(ctx, f.Target, d.Secondary)
	}
}

func (r *Reactor) onNetworkService(ctx context.Context, f finding.Finding, d finding.NetworkService) {
	rules := r.cfg.Rules
	c := r.cfg.Coordinator

	if slices.Contains(rules.WebPorts, d.Port) {
		c.TriggerWebTesting(ctx, f.Target, WebURL(f.Target, d.Port), d.Port, d.Service, f.ID)
	}
	if rules.SSHPort != 0 && d.Port == rules.SSHPort {
		var creds []finding.Credential
		if r.cfg.Vault != nil {
			creds = r.cfg.Vault.CredentialsFor("SSH")
		}
		c.TriggerCredentialTesting(ctx, f.Target, d.Port, "SSH", creds)
	}
	if slices.Contains(rules.DatabasePorts, d.Port) {
		c.TriggerDatabaseTesting(ctx, f.Target, d.Port)
	}
	if d.Service != "" && d.Version != "" && r.cfg.CVE != nil {
		r.schedule(ctx, func(ctx context.Context) {
			ctx, cancel := context.WithTimeout(ctx, rules.LookupTimeout)
			defer cancel()
			r.cfg.CVE.Correlate(ctx, d.Service, d.Version, f.Target, d.Port)
		})
	}
}

func (r *Reactor) onCredentialLeak(ctx context.Context, f finding.Finding, d finding.CredentialLeak) {
	cred := finding.Credential{
		Username:     d.Username,
		Password:     d.Password,
		Service:      d.Service,
		Port:         d.Port,
		Source:       f.Source,
		Confidence:   f.Confidence,
		DiscoveredAt: f.Timestamp,
	}

	if r.cfg.Vault != nil && !r.known(cred) {
		r.cfg.Vault.Add(ctx, cred)
	}

	if r.cfg.Findings != nil {
		for _, svc := range r.credentialServices(f.Target) {
			if strings.EqualFold(svc.name, d.Service) || (d.Port != 0 && svc.port == d.Port) {
				continue
			}
			if !r.claimTest(f.Target, svc.port, cred.Pair()) {
				continue
			}
			r.cfg.Coordinator.TriggerCredentialTesting(ctx, f.Target, svc.port, svc.name, []finding.Credential{cred})
		}
	}

	if d.Verified {
		r.cfg.Coordinator.SuggestPrivilegeEscalation(ctx, f.Target)
	}
}

// known reports whether the vault already holds cred for the same service
// and port.
func (r *Reactor) known(cred finding.Credential) bool {
	for _, c := range r.cfg.Vault.CredentialsFor(cred.Service) {
		if c.Pair() == cred.Pair() && c.Port == cred.Port {
			return true
		}
	}
	return false
}

type service struct {
	port int
	name string
}

// credentialServices lists the credential-testable services seen on
// target, in discovery order.
func (r *Reactor) credentialServices(target string) []service {
	var out []service
	seen := make(map[int]bool)
	for _, f := range r.cfg.Findings.FindingsFor(target) {
		ns, ok := f.Detail.(finding.NetworkService)
		if !ok || seen[ns.Port] {
			continue
		}
		name, ok := r.cfg.Rules.CredentialServices[ns.Port]
		if !ok {
			continue
		}
		seen[ns.Port] = true
		out = append(out, service{port: ns.Port, name: name})
	}
	return out
}

func (r *Reactor) claimTest(target string, port int, pair finding.Pair) bool {
	k := testKey{target: target, port: port, pair: pair}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tested[k]; dup {
		return false
	}
	r.tested[k] = struct{}{}
	return true
}

func (r *Reactor) analyze(ctx context.Context) {
	if r.cfg.Analyzer == nil {
		return
	}
	r.schedule(ctx, func(ctx context.Context) {
		r.cfg.Analyzer.Analyze(ctx)
	})
}

// schedule runs fn on the scheduler, or inline without one. The task is
// detached from ctx cancellation.
func (r *Reactor) schedule(ctx context.Context, fn func(context.Context)) {
	bg := context.WithoutCancel(ctx)
	if r.cfg.Scheduler != nil && r.cfg.Scheduler.Go(func() { fn(bg) }) {
		return
	}
	fn(bg)
}
