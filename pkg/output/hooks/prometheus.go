package hooks

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/waftester/intelcore/pkg/defaults"
	"github.com/waftester/intelcore/pkg/duration"
	"github.com/waftester/intelcore/pkg/output/dispatcher"
	"github.com/waftester/intelcore/pkg/output/events"
)

// Compile-time interface check.
var _ dispatcher.Hook = (*PrometheusHook)(nil)

// PrometheusHook counts engine activity in a private registry and can
// serve it for scraping.
type PrometheusHook struct {
	server   *http.Server
	listener net.Listener
	registry *prometheus.Registry
	opts     PrometheusOptions

	findingsTotal       *prometheus.CounterVec
	triggersTotal       *prometheus.CounterVec
	correlationsTotal   *prometheus.CounterVec
	lookupFailuresTotal *prometheus.CounterVec
	findingConfidence   *prometheus.HistogramVec

	mu     sync.Mutex
	closed bool
}

// PrometheusOptions configures the Prometheus hook.
type PrometheusOptions struct {
	// Addr is the listen address for the metrics server, e.g. ":9464".
	// Empty disables the server; metrics stay available via Registry.
	Addr string

	// Path for the metrics endpoint (default: "/metrics").
	Path string

	// ReadTimeout for the HTTP server (default: 5s).
	ReadTimeout time.Duration

	// WriteTimeout for the HTTP server (default: 10s).
	WriteTimeout time.Duration
}

// NewPrometheusHook creates the hook and, when opts.Addr is set, starts
// the metrics server.
func NewPrometheusHook(opts PrometheusOptions) (*PrometheusHook, error) {
	if opts.Path == "" {
		opts.Path = defaults.MetricsPath
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = duration.Shutdown
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = duration.ExporterConnect
	}

	// Custom registry keeps the default one clean.
	hook := &PrometheusHook{
		registry: prometheus.NewRegistry(),
		opts:     opts,
	}
	if err := hook.initMetrics(); err != nil {
		return nil, fmt.Errorf("hooks: init metrics: %w", err)
	}
	if opts.Addr != "" {
		if err := hook.startServer(); err != nil {
			return nil, fmt.Errorf("hooks: start metrics server: %w", err)
		}
	}
	return hook, nil
}

func (h *PrometheusHook) initMetrics() error {
	ns := defaults.ToolName

	h.findingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "findings_total",
			Help:      "Findings recorded, by kind and originating module",
		},
		[]string{"kind", "source"},
	)
	h.triggersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "triggers_total",
			Help:      "Follow-on actions triggered, by event type",
		},
		[]string{"type"},
	)
	h.correlationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "correlations_total",
			Help:      "Cross-finding correlations detected, by pattern",
		},
		[]string{"pattern"},
	)
	h.lookupFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "lookup_failures_total",
			Help:      "Failed external lookups, by collaborator",
		},
		[]string{"collaborator"},
	)
	h.findingConfidence = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "finding_confidence",
			Help:      "Confidence distribution of recorded findings",
			Buckets:   []float64{0.1, 0.25, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
		[]string{"kind"},
	)

	collectors := []prometheus.Collector{
		h.findingsTotal,
		h.triggersTotal,
		h.correlationsTotal,
		h.lookupFailuresTotal,
		h.findingConfidence,
	}
	for _, c := range collectors {
		if err := h.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (h *PrometheusHook) startServer() error {
	ln, err := net.Listen("tcp", h.opts.Addr)
	if err != nil {
		return err
	}
	h.listener = ln

	mux := http.NewServeMux()
	mux.Handle(h.opts.Path, h.Handler())
	h.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  h.opts.ReadTimeout,
		WriteTimeout: h.opts.WriteTimeout,
	}

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			orDefault(nil).Error("prometheus: metrics server error", "error", err)
		}
	}()
	return nil
}

// Handler serves the hook's registry.
func (h *PrometheusHook) Handler() http.Handler {
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the private registry.
func (h *PrometheusHook) Registry() *prometheus.Registry {
	return h.registry
}

// EventTypes returns nil: the hook receives all events.
func (h *PrometheusHook) EventTypes() []events.EventType { return nil }

// OnEvent updates metrics for e.
func (h *PrometheusHook) OnEvent(_ context.Context, e events.Event) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return nil
	}

	switch ev := e.(type) {
	case *events.FindingRecordedEvent:
		kind := ev.Finding.Kind.String()
		h.findingsTotal.WithLabelValues(kind, ev.Finding.Source).Inc()
		h.findingConfidence.WithLabelValues(kind).Observe(ev.Finding.Confidence)
	case *events.CorrelationFoundEvent:
		h.correlationsTotal.WithLabelValues(ev.Pattern).Inc()
	case *events.LookupFailedEvent:
		h.lookupFailuresTotal.WithLabelValues(ev.Collaborator).Inc()
	default:
		if slices.Contains(events.TriggerTypes(), e.EventType()) {
			h.triggersTotal.WithLabelValues(string(e.EventType())).Inc()
		}
	}
	return nil
}

// Addr returns the bound listen address, or "" without a server.
func (h *PrometheusHook) Addr() string {
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

// MetricsURL returns the scrape URL, or "" without a server.
func (h *PrometheusHook) MetricsURL() string {
	if h.listener == nil {
		return ""
	}
	return "http://" + h.Addr() + h.opts.Path
}

// Close shuts down the metrics server.
func (h *PrometheusHook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	if h.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), duration.Shutdown)
		defer cancel()
		return h.server.Shutdown(ctx)
	}
	return nil
}
