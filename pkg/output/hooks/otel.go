package hooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/waftester/intelcore/pkg/defaults"
	"github.com/waftester/intelcore/pkg/duration"
	"github.com/waftester/intelcore/pkg/output/dispatcher"
	"github.com/waftester/intelcore/pkg/output/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Compile-time interface check.
var _ dispatcher.Hook = (*OTelHook)(nil)

// OTelHook exports engine activity to an OpenTelemetry collector. One
// session span covers the hook's lifetime; every bus event becomes a span
// event on it.
type OTelHook struct {
	opts           OTelOptions
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer

	mu      sync.Mutex
	session trace.Span
	closed  bool

	findings     int
	correlations int
	triggers     int
}

// OTelOptions configures the OpenTelemetry hook.
type OTelOptions struct {
	// Endpoint is the OTLP gRPC endpoint (default: "localhost:4317").
	Endpoint string

	// ServiceName is the service name for traces (default: "intelcore").
	ServiceName string

	// Insecure disables TLS.
	Insecure bool

	// Headers are sent with every export.
	Headers map[string]string

	// ShutdownTimeout bounds the final flush (default: 5s).
	ShutdownTimeout time.Duration

	// ConnectionTimeout bounds exporter setup (default: 10s).
	ConnectionTimeout time.Duration
}

func (o *OTelOptions) applyDefaults() {
	if o.ServiceName == "" {
		o.ServiceName = defaults.ToolName
	}
	if o.Endpoint == "" {
		o.Endpoint = defaults.OTLPEndpoint
	}
	if o.ShutdownTimeout == 0 {
		o.ShutdownTimeout = duration.Shutdown
	}
	if o.ConnectionTimeout == 0 {
		o.ConnectionTimeout = duration.ExporterConnect
	}
}

// NewOTelHook creates a hook exporting over OTLP gRPC. Connection
// failures surface at export time and never block the engine.
func NewOTelHook(opts OTelOptions) (*OTelHook, error) {
	opts.applyDefaults()

	grpcOpts := []grpc.DialOption{}
	if opts.Insecure {
		grpcOpts = append(grpcOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	exporterOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(opts.Endpoint),
		otlptracegrpc.WithDialOption(grpcOpts...),
	}
	if opts.Insecure {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
	}
	if len(opts.Headers) > 0 {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithHeaders(opts.Headers))
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectionTimeout)
	defer cancel()
	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("hooks: otlp exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(opts.ServiceName),
		semconv.ServiceVersion(defaults.Version),
		attribute.String("service.component", "correlation-engine"),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	return NewOTelHookWithProvider(tp, opts), nil
}

// NewOTelHookWithProvider creates a hook on an existing provider. The
// hook owns tp and shuts it down on Close.
func NewOTelHookWithProvider(tp *sdktrace.TracerProvider, opts OTelOptions) *OTelHook {
	opts.applyDefaults()
	h := &OTelHook{
		opts:           opts,
		tracerProvider: tp,
		tracer:         tp.Tracer(defaults.ToolName + "/engine"),
	}
	_, h.session = h.tracer.Start(context.Background(), defaults.ToolName+".session",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("version", defaults.Version)),
	)
	return h
}

// EventTypes returns nil: the hook receives all events.
func (h *OTelHook) EventTypes() []events.EventType { return nil }

// OnEvent records e as a span event on the session span.
func (h *OTelHook) OnEvent(_ context.Context, e events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}

	attrs := []attribute.KeyValue{attribute.String("target", e.Target())}
	switch ev := e.(type) {
	case *events.FindingRecordedEvent:
		h.findings++
		attrs = append(attrs,
			attribute.String("finding.id", ev.Finding.ID),
			attribute.String("finding.kind", ev.Finding.Kind.String()),
			attribute.String("finding.source", ev.Finding.Source),
			attribute.Float64("finding.confidence", ev.Finding.Confidence))
		if sev := ev.Finding.Severity(); sev != "" {
			attrs = append(attrs, attribute.String("finding.severity", string(sev)))
		}
	case *events.CorrelationFoundEvent:
		h.correlations++
		attrs = append(attrs,
			attribute.String("pattern", ev.Pattern),
			attribute.String("secondary_target", ev.Secondary),
			attribute.Float64("confidence", ev.Confidence))
	case *events.ExploitSuggestionEvent:
		h.triggers++
		attrs = append(attrs,
			attribute.String("cve_id", ev.CVEID),
			attribute.Int("port", ev.Port),
			attribute.String("exploit_id", ev.ExploitID))
	case *events.WebTestEvent:
		h.triggers++
		attrs = append(attrs, attribute.String("url", ev.URL))
	case *events.CredentialTestEvent:
		h.triggers++
		attrs = append(attrs,
			attribute.String("service", ev.Service),
			attribute.Int("port", ev.Port),
			attribute.Int("candidates", len(ev.Credentials)))
	case *events.LookupFailedEvent:
		attrs = append(attrs,
			attribute.String("collaborator", ev.Collaborator),
			attribute.String("query", ev.Query),
			attribute.String("error", ev.Message))
	default:
		h.triggers++
	}

	h.session.AddEvent(string(e.EventType()),
		trace.WithTimestamp(e.Timestamp()),
		trace.WithAttributes(attrs...))
	return nil
}

// Close ends the session span and flushes the provider.
func (h *OTelHook) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.session.SetAttributes(
		attribute.Int("totals.findings", h.findings),
		attribute.Int("totals.correlations", h.correlations),
		attribute.Int("totals.triggers", h.triggers),
	)
	h.session.SetStatus(codes.Ok, "session complete")
	h.session.End()
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), h.opts.ShutdownTimeout)
	defer cancel()
	return h.tracerProvider.Shutdown(ctx)
}

// ServiceName returns the configured service name.
func (h *OTelHook) ServiceName() string { return h.opts.ServiceName }

// Endpoint returns the configured OTLP endpoint.
func (h *OTelHook) Endpoint() string { return h.opts.Endpoint }
