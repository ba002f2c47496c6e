// Package otel provides OpenTelemetry metrics and tracing integration
// for the telemetry core's own pipeline (not to be confused with the
// telemetry it captures from Claude Code and Cursor).
package otel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// MetricsConfig holds configuration for the OpenTelemetry metrics.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active. Default: false (no-op).
	Enabled bool

	// ServiceName is the name of the service for metric attribution.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// ExporterType specifies which exporter to use.
	ExporterType ExporterType

	// OTLPEndpoint is the endpoint for OTLP exporters (e.g., "localhost:4317").
	OTLPEndpoint string

	// OTLPInsecure disables TLS for OTLP connections.
	OTLPInsecure bool

	// Attributes are additional attributes to add to all metrics.
	Attributes map[string]string
}

// DefaultMetricsConfig returns a default configuration with metrics disabled.
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled:      false,
		ServiceName:  "blueplane-telemetry-core",
		ExporterType: ExporterNone,
	}
}

// Metrics wraps OpenTelemetry metrics instruments mirroring the
// counters exposed by the plain JSON /health endpoint (spec §7):
// events_in, events_out, events_to_dlq, consumer_lag, poll_errors.
type Metrics struct {
	config            *MetricsConfig
	meterProvider     *sdkmetric.MeterProvider
	meter             metric.Meter
	shutdown          func(context.Context) error
	mu                sync.RWMutex
	currentLag        atomic.Int64
	lagCallback       metric.Int64ObservableGauge
	lagCallbackReg    metric.Registration
	eventsIn          metric.Int64Counter
	eventsOut         metric.Int64Counter
	eventsToDLQ       metric.Int64Counter
	pollErrors        metric.Int64Counter
	batchCommitLatency metric.Float64Histogram
}

// globalMetrics is the singleton metrics instance.
var (
	globalMetrics   *Metrics
	globalMetricsMu sync.RWMutex
)

// NewMetrics creates a new Metrics instance with the given configuration.
func NewMetrics(ctx context.Context, cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil {
		cfg = DefaultMetricsConfig()
	}

	m := &Metrics{
		config: cfg,
	}

	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		// Use no-op meter when disabled
		m.meterProvider = sdkmetric.NewMeterProvider()
		m.meter = m.meterProvider.Meter(cfg.ServiceName)
		m.shutdown = func(context.Context) error { return nil }
		return m, nil
	}

	// Create exporter based on type
	exporter, err := m.createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	// Create resource with service information
	res, err := m.createResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics resource: %w", err)
	}

	// Create meter provider
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)

	m.meterProvider = mp
	m.meter = mp.Meter(cfg.ServiceName)
	m.shutdown = mp.Shutdown

	// Register metric instruments
	if err := m.registerInstruments(); err != nil {
		return nil, fmt.Errorf("failed to register metric instruments: %w", err)
	}

	return m, nil
}

// createExporter creates the appropriate metrics exporter based on configuration.
func (m *Metrics) createExporter(ctx context.Context, cfg *MetricsConfig) (sdkmetric.Exporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		return stdoutmetric.New()

	case ExporterOTLPGRPC:
		opts := []otlpmetricgrpc.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)

	case ExporterOTLPHTTP:
		opts := []otlpmetrichttp.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.ExporterType)
	}
}

// createResource creates the OpenTelemetry resource with service information.
func (m *Metrics) createResource(cfg *MetricsConfig) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
	}

	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}

	// Add custom attributes
	for k, v := range cfg.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}

	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("", attrs...),
	)
}

// registerInstruments creates and registers all metric instruments.
func (m *Metrics) registerInstruments() error {
	var err error

	m.batchCommitLatency, err = m.meter.Float64Histogram(
		"blueplane.batch_commit.latency",
		metric.WithDescription("Latency of C7 batch commits into the unified store"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return fmt.Errorf("failed to create batch commit latency histogram: %w", err)
	}

	m.eventsIn, err = m.meter.Int64Counter(
		"blueplane.events_in",
		metric.WithDescription("Count of events enqueued to the message queue"),
	)
	if err != nil {
		return fmt.Errorf("failed to create events_in counter: %w", err)
	}

	m.eventsOut, err = m.meter.Int64Counter(
		"blueplane.events_out",
		metric.WithDescription("Count of events committed to the unified store"),
	)
	if err != nil {
		return fmt.Errorf("failed to create events_out counter: %w", err)
	}

	m.eventsToDLQ, err = m.meter.Int64Counter(
		"blueplane.events_to_dlq",
		metric.WithDescription("Count of events moved to the dead letter queue"),
	)
	if err != nil {
		return fmt.Errorf("failed to create events_to_dlq counter: %w", err)
	}

	m.pollErrors, err = m.meter.Int64Counter(
		"blueplane.poll_errors",
		metric.WithDescription("Count of failed poll cycles across C4/C5"),
	)
	if err != nil {
		return fmt.Errorf("failed to create poll_errors counter: %w", err)
	}

	// Consumer lag observable gauge
	m.lagCallback, err = m.meter.Int64ObservableGauge(
		"blueplane.consumer_lag",
		metric.WithDescription("Approximate number of pending (unacked) messages in the message queue"),
	)
	if err != nil {
		return fmt.Errorf("failed to create consumer lag gauge: %w", err)
	}

	m.lagCallbackReg, err = m.meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(m.lagCallback, m.currentLag.Load())
			return nil
		},
		m.lagCallback,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer lag callback: %w", err)
	}

	return nil
}

// RecordBatchCommit records the latency of a C7 batch commit, tagged
// by platform and whether it succeeded.
func (m *Metrics) RecordBatchCommit(ctx context.Context, platform string, latencyMs float64, success bool) {
	if m.batchCommitLatency == nil {
		return
	}
	m.batchCommitLatency.Record(ctx, latencyMs, metric.WithAttributes(
		attribute.String("platform", platform),
		attribute.Bool("success", success),
	))
}

// RecordEventsIn increments the events_in counter.
func (m *Metrics) RecordEventsIn(ctx context.Context, platform string, n int64) {
	if m.eventsIn == nil {
		return
	}
	m.eventsIn.Add(ctx, n, metric.WithAttributes(attribute.String("platform", platform)))
}

// RecordEventsOut increments the events_out counter.
func (m *Metrics) RecordEventsOut(ctx context.Context, platform string, n int64) {
	if m.eventsOut == nil {
		return
	}
	m.eventsOut.Add(ctx, n, metric.WithAttributes(attribute.String("platform", platform)))
}

// RecordEventsToDLQ increments the events_to_dlq counter.
func (m *Metrics) RecordEventsToDLQ(ctx context.Context, stream string, n int64) {
	if m.eventsToDLQ == nil {
		return
	}
	m.eventsToDLQ.Add(ctx, n, metric.WithAttributes(attribute.String("stream", stream)))
}

// RecordPollError increments the poll_errors counter for the given source.
func (m *Metrics) RecordPollError(ctx context.Context, source string) {
	if m.pollErrors == nil {
		return
	}
	m.pollErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// SetConsumerLag sets the current consumer lag for the observable gauge.
// Thread-safe; read by the gauge callback.
func (m *Metrics) SetConsumerLag(lag int64) {
	m.currentLag.Store(lag)
}

// Shutdown gracefully shuts down the metrics provider, flushing any pending metrics.
func (m *Metrics) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Unregister callback if registered
	if m.lagCallbackReg != nil {
		if err := m.lagCallbackReg.Unregister(); err != nil {
			return fmt.Errorf("failed to unregister consumer lag callback: %w", err)
		}
	}

	if m.shutdown != nil {
		return m.shutdown(ctx)
	}
	return nil
}

// Enabled returns whether metrics collection is enabled.
func (m *Metrics) Enabled() bool {
	return m.config.Enabled && m.config.ExporterType != ExporterNone
}

// MeterProvider returns the underlying meter provider.
func (m *Metrics) MeterProvider() *sdkmetric.MeterProvider {
	return m.meterProvider
}

// SetGlobalMetrics sets the global metrics instance.
func SetGlobalMetrics(m *Metrics) {
	globalMetricsMu.Lock()
	defer globalMetricsMu.Unlock()
	globalMetrics = m

	if m != nil && m.Enabled() {
		otel.SetMeterProvider(m.meterProvider)
	}
}

// GetGlobalMetrics returns the global metrics instance.
// Returns a no-op metrics instance if none has been set.
func GetGlobalMetrics() *Metrics {
	globalMetricsMu.RLock()
	defer globalMetricsMu.RUnlock()

	if globalMetrics == nil {
		// Return a no-op metrics instance
		cfg := DefaultMetricsConfig()
		m := &Metrics{
			config:        cfg,
			meterProvider: sdkmetric.NewMeterProvider(),
			shutdown:      func(context.Context) error { return nil },
		}
		m.meter = m.meterProvider.Meter(cfg.ServiceName)
		return m
	}

	return globalMetrics
}

// NoopMetrics returns a metrics instance that does nothing (for testing or when disabled).
func NoopMetrics() *Metrics {
	cfg := DefaultMetricsConfig()
	mp := sdkmetric.NewMeterProvider()
	return &Metrics{
		config:        cfg,
		meterProvider: mp,
		meter:         mp.Meter(cfg.ServiceName),
		shutdown:      func(context.Context) error { return nil },
	}
}
