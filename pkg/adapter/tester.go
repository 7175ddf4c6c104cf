package adapter

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/waftester/intelcore/pkg/duration"
	"github.com/waftester/intelcore/pkg/finding"
	"github.com/waftester/intelcore/pkg/output/events"
)

// TesterSource is the module identifier on findings the tester reports.
const TesterSource = "credential-tester"

// Prober checks one credential against a live service.
type Prober interface {
	Probe(ctx context.Context, target string, port int, username, password string) (bool, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, target string, port int, username, password string) (bool, error)

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context, target string, port int, username, password string) (bool, error) {
	return f(ctx, target, port, username, password)
}

// Reporter accepts findings. *engine.Engine satisfies it.
type Reporter interface {
	ReportFinding(ctx context.Context, kind finding.Kind, source, target string, payload map[string]string, confidence float64) (string, error)
}

// TimeoutFor returns the probe timeout for a service name.
func TimeoutFor(service string) time.Duration {
	switch strings.ToLower(service) {
	case "ssh", "ftp":
		return duration.ProbeSSH
	case "mysql", "postgresql", "mongodb", "mssql", "oracle":
		return duration.ProbeDatabase
	default:
		return duration.ProbeFast
	}
}

// TesterStats counts probe outcomes.
type TesterStats struct {
	Success      int64
	Failure      int64
	Inconclusive int64
	Unsupported  int64
}

// CredentialTester is a dispatcher hook for trigger.credential_test. It
// runs each candidate through the prober registered for the service and
// reports successes as verified credential-leak findings.
type CredentialTester struct {
	reporter Reporter
	logger   *slog.Logger
	timeout  func(service string) time.Duration

	mu      sync.RWMutex
	probers map[string]Prober

	success, failure, inconclusive, unsupported atomic.Int64
}

// TesterOption configures a CredentialTester.
type TesterOption func(*CredentialTester)

// WithTesterLogger sets the logger.
func WithTesterLogger(l *slog.Logger) TesterOption {
	return func(t *CredentialTester) { t.logger = l }
}

// WithTimeouts overrides TimeoutFor.
func WithTimeouts(fn func(service string) time.Duration) TesterOption {
	return func(t *CredentialTester) { t.timeout = fn }
}

// NewCredentialTester creates a tester reporting through r.
func NewCredentialTester(r Reporter, opts ...TesterOption) *CredentialTester {
	t := &CredentialTester{
		reporter: r,
		logger:   slog.Default(),
		timeout:  TimeoutFor,
		probers:  make(map[string]Prober),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// Register installs the prober for service, matched case-insensitively.
func (t *CredentialTester) Register(service string, p Prober) {
	t.mu.Lock()
	t.probers[strings.ToLower(service)] = p
	t.mu.Unlock()
}

func (t *CredentialTester) prober(service string) (Prober, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.probers[strings.ToLower(service)]
	return p, ok
}

// EventTypes implements dispatcher.Hook.
func (t *CredentialTester) EventTypes() []events.EventType {
	return []events.EventType{events.EventTypeCredentialTest}
}

// OnEvent implements dispatcher.Hook.
func (t *CredentialTester) OnEvent(ctx context.Context, e events.Event) error {
	ev, ok := e.(*events.CredentialTestEvent)
	if !ok {
		return nil
	}
	t.Test(ctx, ev.Target(), ev.Port, ev.Service, ev.Credentials)
	return nil
}

// Test probes every credential and returns the outcomes in order.
func (t *CredentialTester) Test(ctx context.Context, target string, port int, service string, creds []finding.Credential) []Outcome {
	p, ok := t.prober(service)
	if !ok {
		t.unsupported.Add(int64(len(creds)))
		t.logger.Debug("adapter: no prober for service", slog.String("service", service))
		return nil
	}

	out := make([]Outcome, 0, len(creds))
	for _, c := range creds {
		outcome := Probe(ctx, t.timeout(service), func(ctx context.Context) (bool, error) {
			return p.Probe(ctx, target, port, c.Username, c.Password)
		})
		out = append(out, outcome)

		switch outcome {
		case OutcomeSuccess:
			t.success.Add(1)
			t.report(ctx, target, port, service, c)
		case OutcomeFailure:
			t.failure.Add(1)
		default:
			t.inconclusive.Add(1)
		}
	}
	return out
}

func (t *CredentialTester) report(ctx context.Context, target string, port int, service string, c finding.Credential) {
	if t.reporter == nil {
		return
	}
	payload := map[string]string{
		finding.KeyUsername: c.Username,
		finding.KeyPassword: c.Password,
		finding.KeyService:  service,
		finding.KeyVerified: "true",
	}
	if port > 0 {
		payload[finding.KeyPort] = strconv.Itoa(port)
	}
	if _, err := t.reporter.ReportFinding(ctx, finding.KindCredentialLeak, TesterSource, target, payload, 1.0); err != nil {
		t.logger.Warn("adapter: report verified credential failed",
			slog.String("target", target), slog.String("service", service), slog.Any("error", err))
	}
}

// Stats returns outcome counters.
func (t *CredentialTester) Stats() TesterStats {
	return TesterStats{
		Success:      t.success.Load(),
		Failure:      t.failure.Load(),
		Inconclusive: t.inconclusive.Load(),
		Unsupported:  t.unsupported.Load(),
	}
}
