// Package dispatcher provides the engine's event bus.
// It receives events from the store, the correlators and the module
// coordinator and routes them to registered writers and hooks. Writers
// persist events (JSONL, SQLite journal), while hooks react to them
// (the coordinator's reactor, tool adapters, logging, metrics, tracing).
//
// The dispatcher decouples event generation from event consumption: the
// store commits a finding and publishes one event; it never calls a
// downstream component directly.
package dispatcher

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/waftester/intelcore/pkg/output/events"
	"github.com/waftester/intelcore/pkg/workerpool"
)

// Writer is the interface for all event writers.
type Writer interface {
	// Write writes an event to the output.
	Write(event events.Event) error

	// Flush ensures all buffered events are written.
	Flush() error

	// Close closes the writer and releases any resources.
	Close() error

	// SupportsEvent returns true if the writer handles this event type.
	SupportsEvent(eventType events.EventType) bool
}

// Hook is the interface for event subscribers.
type Hook interface {
	// OnEvent is called for each matching event.
	OnEvent(ctx context.Context, event events.Event) error

	// EventTypes returns the event types this hook handles.
	// Return nil or empty slice to receive all events.
	EventTypes() []events.EventType
}

// HookFunc adapts a function to the Hook interface.
type HookFunc struct {
	Types []events.EventType
	Fn    func(ctx context.Context, event events.Event) error
}

// OnEvent calls h.Fn.
func (h HookFunc) OnEvent(ctx context.Context, event events.Event) error {
	return h.Fn(ctx, event)
}

// EventTypes returns h.Types.
func (h HookFunc) EventTypes() []events.EventType { return h.Types }

// Publisher is the narrow view of the bus used by producers.
type Publisher interface {
	Dispatch(ctx context.Context, event events.Event) error
}

// Dispatcher routes events to writers and hooks.
// It is safe for concurrent use.
type Dispatcher struct {
	writers []Writer
	hooks   []Hook
	mu      sync.RWMutex

	pool   *workerpool.Pool
	logger *slog.Logger
}

// Config configures the dispatcher behavior.
type Config struct {
	// Pool enables asynchronous hook processing. When set, hooks run on
	// pool workers and Dispatch returns without waiting for them.
	// When nil, hooks run synchronously in registration order.
	Pool *workerpool.Pool

	// Logger receives hook and writer errors. Defaults to slog.Default().
	Logger *slog.Logger
}

// New creates a new event dispatcher with the given configuration.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		writers: make([]Writer, 0),
		hooks:   make([]Hook, 0),
		pool:    cfg.Pool,
		logger:  logger,
	}
}

// RegisterWriter adds a writer to the dispatcher.
// Writers will receive events that match their SupportsEvent filter.
func (d *Dispatcher) RegisterWriter(w Writer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writers = append(d.writers, w)
}

// RegisterHook adds a hook to the dispatcher.
// Hooks will receive events that match their EventTypes filter.
func (d *Dispatcher) RegisterHook(h Hook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = append(d.hooks, h)
}

// Dispatch sends an event to all registered writers and hooks.
// It returns nil even if individual writers or hooks fail, to ensure
// all consumers have a chance to receive the event.
//
// Hooks may dispatch further events from inside OnEvent.
func (d *Dispatcher) Dispatch(ctx context.Context, event events.Event) error {
	d.mu.RLock()
	writers := slices.Clone(d.writers)
	hooks := slices.Clone(d.hooks)
	d.mu.RUnlock()

	eventType := event.EventType()

	for _, w := range writers {
		if !w.SupportsEvent(eventType) {
			continue
		}
		if err := w.Write(event); err != nil {
			d.logger.Debug("dispatcher: writer failed",
				slog.String("event", string(eventType)), slog.Any("error", err))
		}
	}

	for _, h := range hooks {
		if !hookSupportsEvent(h, eventType) {
			continue
		}
		if d.pool != nil {
			hook := h
			hookCtx := context.WithoutCancel(ctx)
			if d.pool.Submit(func() { d.call(hookCtx, hook, event) }) {
				continue
			}
			// Pool closed; deliver inline rather than drop.
		}
		d.call(ctx, h, event)
	}

	return nil
}

func (d *Dispatcher) call(ctx context.Context, h Hook, event events.Event) {
	if err := h.OnEvent(ctx, event); err != nil {
		d.logger.Debug("dispatcher: hook failed",
			slog.String("event", string(event.EventType())), slog.Any("error", err))
	}
}

// hookSupportsEvent checks if a hook handles the given event type.
func hookSupportsEvent(h Hook, eventType events.EventType) bool {
	types := h.EventTypes()
	// Empty slice means hook receives all events
	if len(types) == 0 {
		return true
	}
	return slices.Contains(types, eventType)
}

// Wait blocks until asynchronous hook deliveries have finished.
// It is a no-op for synchronous dispatchers.
func (d *Dispatcher) Wait() {
	if d.pool != nil {
		d.pool.Wait()
	}
}

// Flush flushes all registered writers.
func (d *Dispatcher) Flush() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, w := range d.writers {
		_ = w.Flush()
	}

	return nil
}

// Close drains pending hook work, then flushes and closes all writers and
// every hook that implements io.Closer.
// After Close is called, the dispatcher should not be used.
func (d *Dispatcher) Close() error {
	d.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, w := range d.writers {
		_ = w.Flush()
		_ = w.Close()
	}
	for _, h := range d.hooks {
		if c, ok := h.(io.Closer); ok {
			_ = c.Close()
		}
	}

	return nil
}
