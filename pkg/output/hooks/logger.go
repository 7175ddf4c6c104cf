package hooks

import (
	"context"
	"log/slog"

	"github.com/waftester/intelcore/pkg/output/dispatcher"
	"github.com/waftester/intelcore/pkg/output/events"
)

// Compile-time interface check.
var _ dispatcher.Hook = (*LoggerHook)(nil)

// orDefault returns l if non-nil, otherwise slog.Default().
func orDefault(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

// LoggerHook writes every bus event to a structured logger. Triggers and
// correlations log at Info, recorded findings and lookup failures at
// Debug and Warn respectively.
type LoggerHook struct {
	logger *slog.Logger
}

// NewLoggerHook creates a LoggerHook. A nil logger uses slog.Default().
func NewLoggerHook(l *slog.Logger) *LoggerHook {
	return &LoggerHook{logger: orDefault(l)}
}

// EventTypes returns nil: the hook receives all events.
func (h *LoggerHook) EventTypes() []events.EventType { return nil }

// OnEvent logs e.
func (h *LoggerHook) OnEvent(ctx context.Context, e events.Event) error {
	attrs := []slog.Attr{
		slog.String("event", string(e.EventType())),
		slog.String("target", e.Target()),
	}
	level := slog.LevelInfo

	switch ev := e.(type) {
	case *events.FindingRecordedEvent:
		level = slog.LevelDebug
		attrs = append(attrs,
			slog.String("id", ev.Finding.ID),
			slog.String("kind", ev.Finding.Kind.String()),
			slog.String("source", ev.Finding.Source),
			slog.Float64("confidence", ev.Finding.Confidence))
	case *events.CorrelationFoundEvent:
		attrs = append(attrs,
			slog.String("pattern", ev.Pattern),
			slog.Float64("confidence", ev.Confidence))
		if ev.Secondary != "" {
			attrs = append(attrs, slog.String("secondary", ev.Secondary))
		}
	case *events.WebTestEvent:
		attrs = append(attrs, slog.String("url", ev.URL))
	case *events.CredentialTestEvent:
		attrs = append(attrs,
			slog.String("service", ev.Service),
			slog.Int("port", ev.Port),
			slog.Int("candidates", len(ev.Credentials)))
	case *events.DatabaseTestEvent:
		attrs = append(attrs, slog.Int("port", ev.Port))
	case *events.ExploitSuggestionEvent:
		attrs = append(attrs,
			slog.String("cve", ev.CVEID),
			slog.Int("port", ev.Port),
			slog.String("exploit", ev.ExploitID))
	case *events.CoordinatedAttackEvent:
		attrs = append(attrs, slog.String("secondary", ev.Secondary))
	case *events.LookupFailedEvent:
		level = slog.LevelWarn
		attrs = append(attrs,
			slog.String("collaborator", ev.Collaborator),
			slog.String("query", ev.Query),
			slog.String("error", ev.Message))
	}

	h.logger.LogAttrs(ctx, level, "event", attrs...)
	return nil
}
