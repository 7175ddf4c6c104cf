// Package intelligence detects multi-finding attack opportunities.
//
// Patterns are independent predicates over an immutable Snapshot. Every
// match is recorded as a derived finding and announced with a
// correlation.found event. Matches are de-duplicated by (target, pattern,
// secondary target), so re-running a pass over a growing finding set does
// not repeat opportunities that were already reported.
package intelligence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"
	"github.com/waftester/intelcore/pkg/finding"
	"github.com/waftester/intelcore/pkg/output/dispatcher"
	"github.com/waftester/intelcore/pkg/output/events"
	"github.com/waftester/intelcore/pkg/store"
)

// Source is the module identifier on derived findings.
const Source = "intelligence"

// Recorder persists derived findings.
type Recorder interface {
	Record(ctx context.Context, f finding.Finding) (string, error)
}

// Snapshotter provides the current finding set.
type Snapshotter interface {
	Snapshot() store.Snapshot
}

// Correlator runs patterns and emits opportunity findings.
type Correlator struct {
	patterns []Pattern
	source   Snapshotter
	recorder Recorder
	bus      dispatcher.Publisher
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	claimed map[uint64]struct{}
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithPatterns replaces the built-in patterns.
func WithPatterns(p ...Pattern) Option {
	return func(c *Correlator) { c.patterns = p }
}

// WithSource sets the snapshot provider used by Analyze.
func WithSource(s Snapshotter) Option {
	return func(c *Correlator) { c.source = s }
}

// WithRecorder records emitted findings through r.
func WithRecorder(r Recorder) Option {
	return func(c *Correlator) { c.recorder = r }
}

// WithPublisher publishes correlation.found events on p.
func WithPublisher(p dispatcher.Publisher) Option {
	return func(c *Correlator) { c.bus = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Correlator) { c.logger = l }
}

// WithClock overrides time.Now for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Correlator) { c.now = now }
}

// New creates a Correlator with the built-in patterns and thresholds.
func New(opts ...Option) *Correlator {
	c := &Correlator{
		patterns: Builtin(DefaultThresholds()),
		logger:   slog.Default(),
		now:      time.Now,
		claimed:  make(map[uint64]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Patterns returns the configured pattern names.
func (c *Correlator) Patterns() []string {
	names := make([]string, len(c.patterns))
	for i, p := range c.patterns {
		names[i] = p.Name
	}
	return names
}

// Analyze correlates the source's current snapshot.
func (c *Correlator) Analyze(ctx context.Context) []finding.Finding {
	if c.source == nil {
		return nil
	}
	snap := c.source.Snapshot()
	return c.Correlate(ctx, snap.Findings)
}

// Correlate scans findings for every pattern and returns the newly
// emitted opportunity findings. Matches reported by an earlier pass are
// skipped.
func (c *Correlator) Correlate(ctx context.Context, findings []finding.Finding) []finding.Finding {
	snap := NewSnapshot(findings, c.now())

	var out []finding.Finding
	for _, p := range c.patterns {
		for _, m := range p.Match(snap) {
			k := dedupKey(m.Target, p.Name, m.Secondary)
			if !c.claim(k) {
				continue
			}
			f, err := c.emit(ctx, p, m)
			if err != nil {
				c.release(k)
				c.logger.Warn("intelligence: emit failed",
					slog.String("pattern", p.Name),
					slog.String("target", m.Target),
					slog.Any("error", err))
				continue
			}
			out = append(out, f)
		}
	}
	return out
}

func (c *Correlator) emit(ctx context.Context, p Pattern, m Match) (finding.Finding, error) {
	payload := map[string]string{
		finding.KeyPattern:     p.Name,
		finding.KeyDescription: m.Description,
	}
	if m.Secondary != "" {
		payload[finding.KeySecondary] = m.Secondary
	}
	f, err := finding.New(p.Kind, Source, m.Target, payload, p.Confidence)
	if err != nil {
		return finding.Finding{}, err
	}
	if c.recorder != nil {
		id, err := c.recorder.Record(ctx, f)
		if err != nil {
			return finding.Finding{}, err
		}
		f.ID = id
	}

	c.logger.Info("intelligence: correlation found",
		slog.String("pattern", p.Name),
		slog.String("target", m.Target),
		slog.Float64("confidence", p.Confidence))

	if c.bus != nil {
		_ = c.bus.Dispatch(ctx, &events.CorrelationFoundEvent{
			BaseEvent:  events.NewBase(events.EventTypeCorrelationFound, m.Target),
			Pattern:    p.Name,
			Secondary:  m.Secondary,
			Confidence: p.Confidence,
			Finding:    f,
		})
	}
	return f, nil
}

func (c *Correlator) claim(k uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.claimed[k]; ok {
		return false
	}
	c.claimed[k] = struct{}{}
	return true
}

func (c *Correlator) release(k uint64) {
	c.mu.Lock()
	delete(c.claimed, k)
	c.mu.Unlock()
}

// Reset forgets every reported match.
func (c *Correlator) Reset() {
	c.mu.Lock()
	c.claimed = make(map[uint64]struct{})
	c.mu.Unlock()
}

func dedupKey(target, pattern, secondary string) uint64 {
	h := murmur3.New64()
	h.Write([]byte(target))
	h.Write([]byte{0})
	h.Write([]byte(pattern))
	h.Write([]byte{0})
	h.Write([]byte(secondary))
	return h.Sum64()
}
