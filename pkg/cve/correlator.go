package cve

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/waftester/intelcore/pkg/defaults"
	"github.com/waftester/intelcore/pkg/duration"
	"github.com/waftester/intelcore/pkg/finding"
	"github.com/waftester/intelcore/pkg/output/dispatcher"
	"github.com/waftester/intelcore/pkg/output/events"
	"golang.org/x/sync/errgroup"
)

// Source is the module identifier on findings the correlator records.
const Source = "cve-correlator"

// PatternExploitableCVE names the attack opportunity emitted for
// correlations that meet the auto-exploit rule.
const PatternExploitableCVE = "exploitable_cve"

// Confidence values for recorded findings.
const (
	vulnerabilityConfidence = 0.8
	exploitConfidence       = 0.9
)

// Recorder persists findings. *store.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, f finding.Finding) (string, error)
}

// Suggester receives exploitation suggestions.
type Suggester interface {
	SuggestExploit(ctx context.Context, cveID, target string, port int, exploitID string)
}

type key struct {
	target string
	port   int
	cveID  string
}

// Correlator maintains the CVE correlation table.
type Correlator struct {
	lookup      Lookup
	exploits    ExploitLookup
	recorder    Recorder
	suggester   Suggester
	bus         dispatcher.Publisher
	logger      *slog.Logger
	now         func() time.Time
	aliases     map[string][]string
	concurrency int
	exploitWait time.Duration
	lookupWait  time.Duration
	cacheTTL    time.Duration

	records *lookupCache[[]Record]
	found   *lookupCache[[]Exploit]

	mu      sync.Mutex
	byKey   map[key]*Correlation
	order   []key
	emitted map[key]string
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithExploitLookup sets the exploit search collaborator.
func WithExploitLookup(l ExploitLookup) Option {
	return func(c *Correlator) { c.exploits = l }
}

// WithRecorder records vulnerability and opportunity findings through r.
func WithRecorder(r Recorder) Option {
	return func(c *Correlator) { c.recorder = r }
}

// WithSuggester notifies s when a correlation becomes auto-exploitable.
func WithSuggester(s Suggester) Option {
	return func(c *Correlator) { c.suggester = s }
}

// WithPublisher publishes lookup failures on p.
func WithPublisher(p dispatcher.Publisher) Option {
	return func(c *Correlator) { c.bus = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Correlator) { c.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Correlator) { c.now = now }
}

// WithAliases replaces the alias table.
func WithAliases(table map[string][]string) Option {
	return func(c *Correlator) { c.aliases = table }
}

// WithConcurrency bounds concurrent collaborator calls per correlation.
func WithConcurrency(n int) Option {
	return func(c *Correlator) { c.concurrency = n }
}

// WithExploitTimeout bounds each exploit search.
func WithExploitTimeout(d time.Duration) Option {
	return func(c *Correlator) { c.exploitWait = d }
}

// WithLookupTimeout bounds each CVE database query.
func WithLookupTimeout(d time.Duration) Option {
	return func(c *Correlator) { c.lookupWait = d }
}

// WithCacheTTL sets how long successful lookups are reused across
// correlations. Zero disables reuse; identical concurrent calls are still
// shared.
func WithCacheTTL(d time.Duration) Option {
	return func(c *Correlator) { c.cacheTTL = d }
}

// New creates a Correlator backed by lookup. A nil lookup yields no
// correlations.
func New(lookup Lookup, opts ...Option) *Correlator {
	c := &Correlator{
		lookup:      lookup,
		logger:      slog.Default(),
		now:         time.Now,
		aliases:     defaultAliases,
		concurrency: defaults.ConcurrencyLow,
		exploitWait: duration.ExploitLookup,
		lookupWait:  duration.Lookup,
		cacheTTL:    duration.LookupCache,
		byKey:       make(map[key]*Correlation),
		emitted:     make(map[key]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.concurrency < 1 {
		c.concurrency = 1
	}
	if c.exploitWait <= 0 {
		c.exploitWait = duration.ExploitLookup
	}
	if c.lookupWait <= 0 {
		c.lookupWait = duration.Lookup
	}
	c.records = newLookupCache[[]Record](c.cacheTTL, c.now)
	c.found = newLookupCache[[]Exploit](c.cacheTTL, c.now)
	return c
}

// Correlate looks up CVEs for service and version on every alias and
// upserts one correlation per (target, port, CVE). It returns the
// correlations touched by this call in discovery order. Collaborator
// failures never abort the pass.
func (c *Correlator) Correlate(ctx context.Context, service, version, target string, port int) []Correlation {
	if c.lookup == nil {
		return nil
	}
	names := ExpandAliases(service, c.aliases)
	if len(names) == 0 {
		return nil
	}

	records := c.lookupAll(ctx, names, version)
	if len(records) == 0 {
		return nil
	}
	exploits := c.searchAll(ctx, records)

	type emission struct {
		corr    Correlation
		exploit Exploit
	}
	var (
		touched []Correlation
		fresh   []Correlation
		emits   []emission
	)

	c.mu.Lock()
	now := c.now()
	for i, rec := range records {
		k := key{target: target, port: port, cveID: rec.CVEID}
		corr, exists := c.byKey[k]
		if !exists {
			corr = &Correlation{
				CVEID:     rec.CVEID,
				Target:    target,
				Port:      port,
				FirstSeen: now,
			}
			c.byKey[k] = corr
			c.order = append(c.order, k)
		}
		corr.Service = service
		corr.Version = version
		corr.Description = rec.Description
		corr.Severity = finding.ParseSeverity(rec.Severity)
		corr.BaseScore = rec.BaseScore
		corr.setExploits(exploits[i])
		corr.LastUpdated = now

		snap := corr.clone()
		touched = append(touched, snap)
		if !exists {
			fresh = append(fresh, snap)
		}
		if snap.AutoExploitable() {
			best, _ := snap.BestExploit()
			if c.emitted[k] != best.ExploitID {
				c.emitted[k] = best.ExploitID
				emits = append(emits, emission{corr: snap, exploit: best})
			}
		}
	}
	c.mu.Unlock()

	for _, corr := range fresh {
		c.recordVulnerability(ctx, corr)
	}
	for _, e := range emits {
		c.emitExploit(ctx, e.corr, e.exploit)
	}
	return touched
}

// lookupAll queries every alias concurrently and merges the results in
// alias order, keeping the first record seen for each CVE. Identical
// (alias, version) queries from other correlations are shared.
func (c *Correlator) lookupAll(ctx context.Context, names []string, version string) []Record {
	results := make([][]Record, len(names))
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, name := range names {
		g.Go(func() error {
			recs, err := c.records.do(ctx, name+"\x00"+version, c.lookupWait, func(ctx context.Context) ([]Record, error) {
				return c.lookup.Lookup(ctx, name, version)
			})
			if err != nil {
				c.lookupFailed(ctx, "cve", name+" "+version, err)
				return nil
			}
			results[i] = recs
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]bool)
	var merged []Record
	for _, recs := range results {
		for _, r := range recs {
			if r.CVEID == "" || seen[r.CVEID] {
				continue
			}
			seen[r.CVEID] = true
			merged = append(merged, r)
		}
	}
	return merged
}

// searchAll finds exploits for each record. The result is indexed like
// records.
func (c *Correlator) searchAll(ctx context.Context, records []Record) [][]Exploit {
	out := make([][]Exploit, len(records))
	if c.exploits == nil {
		return out
	}
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, rec := range records {
		g.Go(func() error {
			found, err := c.found.do(ctx, rec.CVEID, c.exploitWait, func(ctx context.Context) ([]Exploit, error) {
				return c.exploits.SearchExploits(ctx, rec.CVEID)
			})
			if err != nil {
				c.lookupFailed(ctx, "exploit", rec.CVEID, err)
				return nil
			}
			out[i] = found
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (c *Correlator) lookupFailed(ctx context.Context, collaborator, query string, err error) {
	c.logger.Warn("cve: lookup failed",
		slog.String("collaborator", collaborator),
		slog.String("query", query),
		slog.Any("error", err))
	if c.bus == nil {
		return
	}
	_ = c.bus.Dispatch(ctx, &events.LookupFailedEvent{
		BaseEvent:    events.NewBase(events.EventTypeLookupFailed, ""),
		Collaborator: collaborator,
		Query:        query,
		Message:      err.Error(),
	})
}

func (c *Correlator) recordVulnerability(ctx context.Context, corr Correlation) {
	if c.recorder == nil {
		return
	}
	payload := map[string]string{
		finding.KeyCVE:          corr.CVEID,
		finding.KeyPort:         strconv.Itoa(corr.Port),
		finding.KeyService:      corr.Service,
		finding.KeyVersion:      corr.Version,
		finding.KeyBaseScore:    strconv.FormatFloat(corr.BaseScore, 'f', 1, 64),
		finding.KeyExploitCount: strconv.Itoa(corr.ExploitCount),
	}
	if corr.Severity != "" {
		payload[finding.KeySeverity] = corr.Severity.String()
	}
	if corr.Description != "" {
		payload[finding.KeyDescription] = corr.Description
	}
	c.record(ctx, finding.KindVulnerability, corr.Target, payload, vulnerabilityConfidence)
}

func (c *Correlator) emitExploit(ctx context.Context, corr Correlation, exploit Exploit) {
	payload := map[string]string{
		finding.KeyPattern:     PatternExploitableCVE,
		finding.KeyCVE:         corr.CVEID,
		finding.KeyPort:        strconv.Itoa(corr.Port),
		finding.KeyExploitID:   exploit.ExploitID,
		finding.KeySeverity:    corr.Severity.String(),
		finding.KeyDescription: fmt.Sprintf("%s on %s %s has a %s exploit (%s)", corr.CVEID, corr.Service, corr.Version, finding.ParseSeverity(exploit.Severity), exploit.ExploitID),
	}
	c.record(ctx, finding.KindAttackOpportunity, corr.Target, payload, exploitConfidence)
	if c.suggester != nil {
		c.suggester.SuggestExploit(ctx, corr.CVEID, corr.Target, corr.Port, exploit.ExploitID)
	}
}

func (c *Correlator) record(ctx context.Context, kind finding.Kind, target string, payload map[string]string, confidence float64) {
	f, err := finding.New(kind, Source, target, payload, confidence)
	if err == nil {
		_, err = c.recorder.Record(ctx, f)
	}
	if err != nil {
		c.logger.Warn("cve: record finding failed",
			slog.String("kind", kind.String()),
			slog.String("target", target),
			slog.Any("error", err))
	}
}

// Correlations returns the correlations for target in discovery order.
func (c *Correlator) Correlations(target string) []Correlation {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Correlation
	for _, k := range c.order {
		if k.target == target {
			out = append(out, c.byKey[k].clone())
		}
	}
	return out
}

// All returns every correlation in discovery order.
func (c *Correlator) All() []Correlation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Correlation, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.byKey[k].clone())
	}
	return out
}

// Len returns the number of correlations.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}
