package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/zap"
)

const meterName = "helparo"

// Metric names
const (
	MetricStatusPolls       = "helparo.status_polls"
	MetricTransitions       = "helparo.request_transitions"
	MetricPushSent          = "helparo.push_sent"
	MetricPushInvalidTokens = "helparo.push_invalid_tokens"
	MetricRateLimited       = "helparo.rate_limited"
)

// Recorder counts named events. Implementations must be safe for concurrent use.
type Recorder interface {
	Count(ctx context.Context, name string, val int64, attrs ...attribute.KeyValue)
	Shutdown(ctx context.Context) error
}

// Config selects the exporter. OTLP wins over stdout; with neither set the
// recorder is a no-op.
type Config struct {
	ServiceName  string
	OTLPEndpoint string
	Stdout       bool
	Interval     time.Duration
}

type otelRecorder struct {
	meter    metric.Meter
	shutdown func(context.Context) error
	log      *zap.SugaredLogger

	mu       sync.Mutex
	counters map[string]metric.Int64Counter
}

// New builds a Recorder backed by an OpenTelemetry meter provider.
func New(ctx context.Context, cfg Config, log *zap.SugaredLogger) (Recorder, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}

	var exporter sdkmetric.Exporter
	var err error
	switch {
	case cfg.OTLPEndpoint != "":
		exporter, err = otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(cfg.OTLPEndpoint))
	case cfg.Stdout:
		exporter, err = stdoutmetric.New()
	default:
		log.Infow("Metrics disabled, no exporter configured")
		return NewWithProvider(noop.NewMeterProvider(), nil, log), nil
	}
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.Interval))),
		sdkmetric.WithResource(resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))),
	)
	log.Infow("Metrics enabled", "otlp", cfg.OTLPEndpoint != "", "interval", cfg.Interval)
	return NewWithProvider(provider, provider.Shutdown, log), nil
}

// NewWithProvider wraps an existing provider. shutdown may be nil.
func NewWithProvider(provider metric.MeterProvider, shutdown func(context.Context) error, log *zap.SugaredLogger) Recorder {
	return &otelRecorder{
		meter:    provider.Meter(meterName),
		shutdown: shutdown,
		log:      log.Named("metrics"),
		counters: make(map[string]metric.Int64Counter),
	}
}

// Nop returns a Recorder that drops everything.
func Nop() Recorder {
	return NewWithProvider(noop.NewMeterProvider(), nil, zap.NewNop().Sugar())
}

func (r *otelRecorder) Count(ctx context.Context, name string, val int64, attrs ...attribute.KeyValue) {
	counter, err := r.counter(name)
	if err != nil {
		r.log.Warnw("counter unavailable", "name", name, "err", err)
		return
	}
	counter.Add(ctx, val, metric.WithAttributes(attrs...))
}

func (r *otelRecorder) counter(name string) (metric.Int64Counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.counters[name]; ok {
		return c, nil
	}
	c, err := r.meter.Int64Counter(name)
	if err != nil {
		return nil, err
	}
	r.counters[name] = c
	return c, nil
}

// Shutdown flushes pending data points.
func (r *otelRecorder) Shutdown(ctx context.Context) error {
	if r.shutdown == nil {
		return nil
	}
	return r.shutdown(ctx)
}
