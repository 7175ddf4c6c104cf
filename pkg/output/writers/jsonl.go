// Package writers provides the engine's event writers.
//
// Writers implement dispatcher.Writer and run synchronously inside
// Dispatch, so each one serializes its own output.
package writers

import (
	"io"
	"slices"
	"sync"

	"github.com/waftester/intelcore/pkg/jsonutil"
	"github.com/waftester/intelcore/pkg/output/dispatcher"
	"github.com/waftester/intelcore/pkg/output/events"
)

// Compile-time interface check.
var _ dispatcher.Writer = (*JSONLWriter)(nil)

// JSONLWriter writes events as newline-delimited JSON (JSONL).
// Each event is serialized as a complete JSON object on a single line.
type JSONLWriter struct {
	w       io.Writer
	mu      sync.Mutex
	opts    JSONLOptions
	encoder *jsonutil.Encoder
}

// JSONLOptions configures the JSONL writer behavior.
type JSONLOptions struct {
	// Types restricts output to these event types. Empty writes all.
	Types []events.EventType

	// Pretty enables indented JSON output.
	// Note: This is not JSONL compliant but useful for debugging.
	Pretty bool
}

// NewJSONLWriter creates a new JSONL writer that writes to w.
// The writer is safe for concurrent use.
func NewJSONLWriter(w io.Writer, opts JSONLOptions) *JSONLWriter {
	encoder := jsonutil.NewStreamEncoder(w)
	if opts.Pretty {
		encoder.SetIndent("  ")
	}
	return &JSONLWriter{
		w:       w,
		opts:    opts,
		encoder: encoder,
	}
}

// Write writes an event as a single JSON line.
func (jw *JSONLWriter) Write(event events.Event) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.encoder.Encode(event)
}

// Flush is a no-op; every event is written immediately.
func (jw *JSONLWriter) Flush() error {
	return nil
}

// Close closes the underlying writer if it implements io.Closer.
func (jw *JSONLWriter) Close() error {
	if closer, ok := jw.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// SupportsEvent reports whether eventType passes the Types filter.
func (jw *JSONLWriter) SupportsEvent(eventType events.EventType) bool {
	return len(jw.opts.Types) == 0 || slices.Contains(jw.opts.Types, eventType)
}
