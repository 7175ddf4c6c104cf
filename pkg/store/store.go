// Package store provides the engine's finding store: an append-only record
// of observations keyed by target address.
//
// Recording is serialized behind a mutex. Once a finding is committed the
// lock is released and exactly one finding.recorded event is published, so
// downstream reactions never run while the store is locked.
package store

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/waftester/intelcore/pkg/finding"
	"github.com/waftester/intelcore/pkg/output/dispatcher"
	"github.com/waftester/intelcore/pkg/output/events"
	"github.com/waftester/intelcore/pkg/scoring"
)

// ErrTargetNotFound indicates a lookup by target ID found nothing.
var ErrTargetNotFound = errors.New("store: target not found")

// Target is the unified identity of one network address under test.
// RiskScore is derived from the target's findings on every read.
type Target struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Address    string    `json:"address"`
	Modules    []string  `json:"modules"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	FindingIDs []string  `json:"finding_ids"`
	RiskScore  float64   `json:"risk_score"`
}

type targetState struct {
	id        string
	name      string
	address   string
	modules   []string
	firstSeen time.Time
	lastSeen  time.Time
	findings  []int // indexes into Store.findings
}

// Store holds every finding for the process lifetime.
type Store struct {
	mu          sync.RWMutex
	findings    []finding.Finding
	byID        map[string]int
	targets     map[string]*targetState // by address
	targetIDs   map[string]string       // id -> address
	targetOrder []string

	bus    dispatcher.Publisher
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithPublisher sets the bus that receives finding.recorded events.
func WithPublisher(p dispatcher.Publisher) Option {
	return func(s *Store) { s.bus = p }
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		byID:      make(map[string]int),
		targets:   make(map[string]*targetState),
		targetIDs: make(map[string]string),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Record validates and commits f, returning its ID. The caller's payload
// map is copied. A finding that fails validation never enters the store.
func (s *Store) Record(ctx context.Context, f finding.Finding) (string, error) {
	validated, err := finding.New(f.Kind, f.Source, f.Target, f.Payload, f.Confidence)
	if err != nil {
		return "", err
	}
	validated.ID = f.ID
	validated.Timestamp = f.Timestamp

	s.mu.Lock()
	if validated.ID == "" {
		validated.ID = finding.NewID()
	}
	if validated.Timestamp.IsZero() {
		validated.Timestamp = s.now()
	}
	if _, dup := s.byID[validated.ID]; dup {
		// IDs are immutable; a replayed ID is a new observation.
		validated.ID = finding.NewID()
	}

	t := s.targetLocked(validated.Target, validated.Timestamp)
	if validated.Source != "" && !slices.Contains(t.modules, validated.Source) {
		t.modules = append(t.modules, validated.Source)
	}
	if validated.Timestamp.After(t.lastSeen) {
		t.lastSeen = validated.Timestamp
	}
	if host := validated.Get(finding.KeyHostname); host != "" {
		t.name = host
	}

	idx := len(s.findings)
	s.findings = append(s.findings, validated)
	s.byID[validated.ID] = idx
	t.findings = append(t.findings, idx)
	committed := validated.Clone()
	s.mu.Unlock()

	s.publish(ctx, committed)
	return committed.ID, nil
}

func (s *Store) publish(ctx context.Context, f finding.Finding) {
	if s.bus == nil {
		return
	}
	ev := &events.FindingRecordedEvent{
		BaseEvent: events.BaseEvent{
			Type:    events.EventTypeFindingRecorded,
			Time:    f.Timestamp,
			Address: f.Target,
		},
		Finding: f,
	}
	if err := s.bus.Dispatch(ctx, ev); err != nil {
		s.logger.Warn("store: publish failed", slog.String("finding", f.ID), slog.Any("error", err))
	}
}

// targetLocked returns the target for address, creating it. Caller holds s.mu.
func (s *Store) targetLocked(address string, seen time.Time) *targetState {
	if t, ok := s.targets[address]; ok {
		return t
	}
	t := &targetState{
		id:        uuid.NewString(),
		name:      address,
		address:   address,
		firstSeen: seen,
		lastSeen:  seen,
	}
	s.targets[address] = t
	s.targetIDs[t.id] = address
	s.targetOrder = append(s.targetOrder, address)
	return t
}

// TargetByAddress returns the target for address, creating it when absent.
// Matching is exact and case-sensitive.
func (s *Store) TargetByAddress(address string) Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked(s.targetLocked(address, s.now()))
}

// Target returns the target with the given ID.
func (s *Store) Target(id string) (Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addr, ok := s.targetIDs[id]
	if !ok {
		return Target{}, ErrTargetNotFound
	}
	return s.viewLocked(s.targets[addr]), nil
}

// Lookup returns the target for address without creating it.
func (s *Store) Lookup(address string) (Target, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.targets[address]
	if !ok {
		return Target{}, false
	}
	return s.viewLocked(t), true
}

// Targets returns every target in creation order.
func (s *Store) Targets() []Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Target, 0, len(s.targetOrder))
	for _, addr := range s.targetOrder {
		out = append(out, s.viewLocked(s.targets[addr]))
	}
	return out
}

// Query returns findings in insertion order. An empty targetID or kind
// matches everything.
func (s *Store) Query(targetID string, kind finding.Kind) []finding.Finding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if targetID == "" {
		return s.filterLocked(nil, kind)
	}
	addr, ok := s.targetIDs[targetID]
	if !ok {
		return nil
	}
	return s.filterLocked(s.targets[addr].findings, kind)
}

// FindingsFor returns the findings recorded for address in insertion order.
func (s *Store) FindingsFor(address string) []finding.Finding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.targets[address]
	if !ok {
		return nil
	}
	return s.filterLocked(t.findings, "")
}

// Get returns the finding with the given ID.
func (s *Store) Get(id string) (finding.Finding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return finding.Finding{}, false
	}
	return s.findings[idx].Clone(), true
}

// Len returns the number of recorded findings.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.findings)
}

// Snapshot is a consistent, independent copy of the store.
type Snapshot struct {
	Findings []finding.Finding
	Targets  []Target
	TakenAt  time.Time
}

// Snapshot copies all findings and targets under one read lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Findings: s.filterLocked(nil, ""),
		Targets:  make([]Target, 0, len(s.targetOrder)),
		TakenAt:  s.now(),
	}
	for _, addr := range s.targetOrder {
		snap.Targets = append(snap.Targets, s.viewLocked(s.targets[addr]))
	}
	return snap
}

// ByTarget groups snapshot findings by target address.
func (snap Snapshot) ByTarget() map[string][]finding.Finding {
	out := make(map[string][]finding.Finding, len(snap.Targets))
	for _, f := range snap.Findings {
		out[f.Target] = append(out[f.Target], f)
	}
	return out
}

// filterLocked copies findings at idxs (all findings when idxs is nil)
// that match kind. Caller holds s.mu.
func (s *Store) filterLocked(idxs []int, kind finding.Kind) []finding.Finding {
	var out []finding.Finding
	add := func(f finding.Finding) {
		if kind == "" || f.Kind == kind {
			out = append(out, f.Clone())
		}
	}
	if idxs == nil {
		for _, f := range s.findings {
			add(f)
		}
		return out
	}
	for _, i := range idxs {
		add(s.findings[i])
	}
	return out
}

// viewLocked builds the exported view of t. Caller holds s.mu.
func (s *Store) viewLocked(t *targetState) Target {
	ids := make([]string, 0, len(t.findings))
	fs := make([]finding.Finding, 0, len(t.findings))
	for _, i := range t.findings {
		ids = append(ids, s.findings[i].ID)
		fs = append(fs, s.findings[i])
	}
	return Target{
		ID:         t.id,
		Name:       t.name,
		Address:    t.address,
		Modules:    slices.Clone(t.modules),
		FirstSeen:  t.firstSeen,
		LastSeen:   t.lastSeen,
		FindingIDs: ids,
		RiskScore:  scoring.TargetRisk(fs),
	}
}
