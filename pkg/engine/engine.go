// Package engine wires the correlation engine together.
//
// New builds exactly one instance of every component and connects them
// through the event bus:
//
//	adapters --ReportFinding--> store --finding.recorded--> reactor
//	                                                        |-> coordinator triggers
//	                                                        |-> cve correlator
//	                                                        '-> intelligence
//
// Nothing is global; two engines in one process share no state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/waftester/intelcore/pkg/adapter"
	"github.com/waftester/intelcore/pkg/chain"
	"github.com/waftester/intelcore/pkg/config"
	"github.com/waftester/intelcore/pkg/coordinator"
	"github.com/waftester/intelcore/pkg/cve"
	"github.com/waftester/intelcore/pkg/finding"
	"github.com/waftester/intelcore/pkg/intelligence"
	"github.com/waftester/intelcore/pkg/output/dispatcher"
	"github.com/waftester/intelcore/pkg/output/hooks"
	"github.com/waftester/intelcore/pkg/output/writers"
	"github.com/waftester/intelcore/pkg/report"
	"github.com/waftester/intelcore/pkg/store"
	"github.com/waftester/intelcore/pkg/vault"
	"github.com/waftester/intelcore/pkg/workerpool"
)

// ErrClosed is returned by operations on a closed engine.
var ErrClosed = errors.New("engine: closed")

// Observation is one adapter report.
type Observation struct {
	Kind       finding.Kind      `json:"kind"`
	Source     string            `json:"source"`
	Target     string            `json:"target"`
	Payload    map[string]string `json:"payload"`
	Confidence float64           `json:"confidence"`
}

// Engine is one correlation session.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	pool        *workerpool.Pool
	bus         *dispatcher.Dispatcher
	store       *store.Store
	vault       *vault.Vault
	coordinator *coordinator.Coordinator
	cve         *cve.Correlator
	intel       *intelligence.Correlator
	planner     *chain.Planner
	reports     *report.Generator
	tester      *adapter.CredentialTester
	metrics     *hooks.PrometheusHook

	closed atomic.Bool
}

// New builds an engine from cfg. A nil cfg uses config.Default().
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.now == nil {
		o.now = time.Now
	}
	logger := o.logger

	table, err := cfg.ChainTable()
	if err != nil {
		return nil, err
	}

	cves, exploits := o.cves, o.exploits
	if cfg.CVE.Feed != "" && (cves == nil || exploits == nil) {
		feed, err := cve.LoadFeed(cfg.CVE.Feed)
		if err != nil {
			return nil, err
		}
		if cves == nil {
			cves = feed
		}
		if exploits == nil {
			exploits = feed
		}
	}

	e := &Engine{cfg: cfg, logger: logger}
	e.pool = workerpool.New(cfg.Concurrency, workerpool.WithLogger(logger))
	e.bus = dispatcher.New(dispatcher.Config{Pool: e.pool, Logger: logger})

	e.store = store.New(
		store.WithPublisher(e.bus),
		store.WithLogger(logger),
		store.WithClock(o.now),
	)
	vopts := []vault.Option{vault.WithLogger(logger)}
	if o.backend != nil {
		vopts = append(vopts, vault.WithBackend(o.backend))
	}
	e.vault = vault.New(vopts...)
	e.coordinator = coordinator.New(e.bus, logger)

	limited := cve.NewRateLimited(cves, exploits, cfg.CVE.RatePerSecond, cfg.CVE.Burst)
	retrying := cve.NewRetrying(limited, limited, cfg.LookupBackoff())
	e.cve = cve.New(retrying,
		cve.WithExploitLookup(retrying),
		cve.WithRecorder(e.store),
		cve.WithSuggester(e.coordinator),
		cve.WithPublisher(e.bus),
		cve.WithLogger(logger),
		cve.WithClock(o.now),
		cve.WithAliases(cve.AliasTable(cfg.CVE.Aliases)),
		cve.WithConcurrency(cfg.Concurrency),
		cve.WithExploitTimeout(cfg.Timeouts.ExploitLookup),
		cve.WithLookupTimeout(cfg.Timeouts.Lookup),
		cve.WithCacheTTL(cfg.CVE.CacheTTL),
	)

	e.intel = intelligence.New(
		intelligence.WithPatterns(intelligence.Builtin(cfg.PatternThresholds())...),
		intelligence.WithSource(e.store),
		intelligence.WithRecorder(e.store),
		intelligence.WithPublisher(e.bus),
		intelligence.WithLogger(logger),
		intelligence.WithClock(o.now),
	)

	e.planner, err = chain.NewPlanner(e.store, table)
	if err != nil {
		return nil, err
	}
	e.reports = report.NewGenerator(e.store, e.vault, e.planner)
	e.reports.SetUnencryptedPorts(cfg.Ports.Unencrypted)

	e.bus.RegisterHook(coordinator.NewReactor(coordinator.ReactorConfig{
		Coordinator: e.coordinator,
		Vault:       e.vault,
		Findings:    e.store,
		CVE:         e.cve,
		Analyzer:    e.intel,
		Scheduler:   e.pool,
		Rules:       cfg.Rules(),
		Logger:      logger,
	}))

	if len(o.probers) > 0 {
		e.tester = adapter.NewCredentialTester(e,
			adapter.WithTesterLogger(logger),
			adapter.WithTimeouts(cfg.ProbeTimeout))
		for svc, p := range o.probers {
			e.tester.Register(svc, p)
		}
		e.bus.RegisterHook(e.tester)
	}

	if err := e.wireOutputs(o); err != nil {
		_ = e.bus.Close()
		e.pool.Close()
		return nil, err
	}

	if o.backend != nil {
		if n := e.vault.Preload(context.Background(), distinctServices(cfg)...); n > 0 {
			logger.Info("engine: preloaded credentials", slog.Int("count", n))
		}
	}
	return e, nil
}

// wireOutputs registers telemetry hooks and journal writers. On error the
// caller closes the bus, which closes whatever was registered so far.
func (e *Engine) wireOutputs(o options) error {
	t := e.cfg.Telemetry
	e.bus.RegisterHook(hooks.NewLoggerHook(e.logger))

	if t.MetricsAddr != "" {
		m, err := hooks.NewPrometheusHook(hooks.PrometheusOptions{Addr: t.MetricsAddr, Path: t.MetricsPath})
		if err != nil {
			return err
		}
		e.metrics = m
		e.bus.RegisterHook(m)
		e.logger.Info("engine: serving metrics", slog.String("url", m.MetricsURL()))
	}
	if t.OTLPEndpoint != "" {
		h, err := hooks.NewOTelHook(hooks.OTelOptions{
			Endpoint:        t.OTLPEndpoint,
			ServiceName:     t.ServiceName,
			Insecure:        t.OTLPInsecure,
			ShutdownTimeout: e.cfg.Timeouts.Shutdown,
		})
		if err != nil {
			return err
		}
		e.bus.RegisterHook(h)
	}

	out := e.cfg.Output
	if out.JSONL != "" {
		f, err := os.Create(out.JSONL)
		if err != nil {
			return fmt.Errorf("engine: create jsonl: %w", err)
		}
		e.bus.RegisterWriter(writers.NewJSONLWriter(f, writers.JSONLOptions{}))
	}
	if out.Journal != "" {
		j, err := writers.OpenSQLiteJournal(out.Journal, e.logger)
		if err != nil {
			return err
		}
		e.bus.RegisterWriter(j)
	}

	for _, w := range o.writers {
		e.bus.RegisterWriter(w)
	}
	for _, h := range o.hooks {
		e.bus.RegisterHook(h)
	}
	return nil
}

func distinctServices(cfg *config.Config) []string {
	seen := make(map[string]bool)
	var out []string
	for _, svc := range cfg.Ports.CredentialServices {
		if !seen[svc] {
			seen[svc] = true
			out = append(out, svc)
		}
	}
	return out
}

// ReportFinding validates and records one observation, returning its ID.
// It satisfies adapter.Reporter.
func (e *Engine) ReportFinding(ctx context.Context, kind finding.Kind, source, target string, payload map[string]string, confidence float64) (string, error) {
	if e.closed.Load() {
		return "", ErrClosed
	}
	return e.store.Record(ctx, finding.Finding{
		Kind:       kind,
		Source:     source,
		Target:     target,
		Payload:    payload,
		Confidence: confidence,
	})
}

// ReportFindings records observations in order. Invalid observations are
// skipped; their errors are joined, each prefixed with its index.
func (e *Engine) ReportFindings(ctx context.Context, obs []Observation) ([]string, error) {
	ids := make([]string, 0, len(obs))
	var errs []error
	for i, ob := range obs {
		id, err := e.ReportFinding(ctx, ob.Kind, ob.Source, ob.Target, ob.Payload, ob.Confidence)
		if err != nil {
			errs = append(errs, fmt.Errorf("observation %d: %w", i, err))
			continue
		}
		ids = append(ids, id)
	}
	return ids, errors.Join(errs...)
}

// AddCredential stores a discovered credential in the vault.
func (e *Engine) AddCredential(ctx context.Context, cred finding.Credential) {
	e.vault.Add(ctx, cred)
}

// Subscribe registers h on the bus.
func (e *Engine) Subscribe(h dispatcher.Hook) {
	e.bus.RegisterHook(h)
}

// Correlate runs one intelligence pass and returns the new findings.
func (e *Engine) Correlate(ctx context.Context) []finding.Finding {
	return e.intel.Analyze(ctx)
}

// Plan builds the attack chain for address.
func (e *Engine) Plan(address string) chain.AttackChain {
	return e.planner.Plan(address)
}

// Report builds the unified report from the current state.
func (e *Engine) Report() report.UnifiedReport {
	return e.reports.Generate()
}

// Correlations returns the CVE correlations for address.
func (e *Engine) Correlations(address string) []cve.Correlation {
	return e.cve.Correlations(address)
}

// Findings returns every recorded finding for address.
func (e *Engine) Findings(address string) []finding.Finding {
	return e.store.FindingsFor(address)
}

// Targets returns every target in discovery order.
func (e *Engine) Targets() []store.Target {
	return e.store.Targets()
}

// Credentials returns every credential in the vault.
func (e *Engine) Credentials() []finding.Credential {
	return e.vault.All()
}

// TesterStats returns credential probe counters. It is zero when no
// prober is configured.
func (e *Engine) TesterStats() adapter.TesterStats {
	if e.tester == nil {
		return adapter.TesterStats{}
	}
	return e.tester.Stats()
}

// MetricsURL returns the scrape URL, or "" without a metrics server.
func (e *Engine) MetricsURL() string {
	if e.metrics == nil {
		return ""
	}
	return e.metrics.MetricsURL()
}

// Wait blocks until every reaction to recorded findings has finished,
// including CVE correlations and intelligence passes they started.
func (e *Engine) Wait() {
	e.bus.Wait()
}

// WriteReport generates the report and writes it as JSON to w.
func (e *Engine) WriteReport(w io.Writer) error {
	return report.WriteJSON(w, e.Report())
}

// Close drains outstanding work, then closes writers and hooks. If ctx
// expires first Close returns its error and leaves draining to finish
// in the background.
func (e *Engine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.bus.Wait()
		_ = e.bus.Close()
		e.pool.Close()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine: close: %w", ctx.Err())
	}
}
