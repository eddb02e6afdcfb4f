package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ppiankov/claimwatch/internal/logging"
	"github.com/ppiankov/claimwatch/internal/model"
)

const meterName = "github.com/ppiankov/claimwatch"

// Telemetry owns the tracer and meter providers and the domain counters.
// A nil *Telemetry records nothing.
type Telemetry struct {
	serviceName string
	registry    *promclient.Registry
	shutdown    []func(context.Context) error
	log         *zap.Logger

	postsIngested    metric.Int64Counter
	debunksCreated   metric.Int64Counter
	notifications    metric.Int64Counter
	watchdogFailures metric.Int64Counter
	watchdogCycles   metric.Int64Counter
}

// Init initializes OpenTelemetry with Jaeger and Prometheus exporters.
// Disabled telemetry still returns a usable value backed by no-op meters.
func Init(cfg model.TelemetryConfig, version string, log *zap.Logger) (*Telemetry, error) {
	log = logging.OrNop(log)
	t := &Telemetry{serviceName: cfg.ServiceName, log: log}
	if t.serviceName == "" {
		t.serviceName = "claimwatch"
	}

	if !cfg.Enabled {
		log.Debug("telemetry disabled")
		if err := t.instruments(noop.NewMeterProvider().Meter(meterName)); err != nil {
			return nil, err
		}
		return t, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(t.serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	if cfg.JaegerURL != "" {
		exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerURL)))
		if err != nil {
			return nil, fmt.Errorf("create jaeger exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		t.shutdown = append(t.shutdown, tp.Shutdown)
		log.Info("jaeger exporter initialized", zap.String("url", cfg.JaegerURL))
	}

	var meter metric.Meter
	if cfg.PrometheusEnabled {
		t.registry = promclient.NewRegistry()
		exporter, err := prometheus.New(prometheus.WithRegisterer(t.registry))
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(exporter),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		t.shutdown = append(t.shutdown, mp.Shutdown)
		meter = mp.Meter(meterName)
		log.Info("prometheus exporter initialized")
	} else {
		meter = noop.NewMeterProvider().Meter(meterName)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if err := t.instruments(meter); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Telemetry) instruments(meter metric.Meter) error {
	var err error
	if t.postsIngested, err = meter.Int64Counter("claimwatch.posts.ingested",
		metric.WithDescription("Posts created by ingestion")); err != nil {
		return fmt.Errorf("create counter: %w", err)
	}
	if t.debunksCreated, err = meter.Int64Counter("claimwatch.debunks.created",
		metric.WithDescription("Debunks committed to the ledger")); err != nil {
		return fmt.Errorf("create counter: %w", err)
	}
	if t.notifications, err = meter.Int64Counter("claimwatch.notifications.sent",
		metric.WithDescription("Alert delivery attempts by result")); err != nil {
		return fmt.Errorf("create counter: %w", err)
	}
	if t.watchdogFailures, err = meter.Int64Counter("claimwatch.watchdog.failures",
		metric.WithDescription("Posts the watchdog failed to process")); err != nil {
		return fmt.Errorf("create counter: %w", err)
	}
	if t.watchdogCycles, err = meter.Int64Counter("claimwatch.watchdog.cycles",
		metric.WithDescription("Completed watchdog cycles")); err != nil {
		return fmt.Errorf("create counter: %w", err)
	}
	return nil
}

// Shutdown flushes exporters
func (t *Telemetry) Shutdown() {
	if t == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, fn := range t.shutdown {
		if err := fn(ctx); err != nil {
			t.log.Error("error shutting down telemetry", zap.Error(err))
		}
	}
}

// Handler serves the Prometheus exposition, or 404 when metrics are not exported
func (t *Telemetry) Handler() http.Handler {
	if t == nil || t.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// PostIngested counts a newly created post
func (t *Telemetry) PostIngested(ctx context.Context, platform model.Platform, tier model.Tier) {
	if t == nil {
		return
	}
	t.postsIngested.Add(ctx, 1, metric.WithAttributes(
		attribute.String("platform", string(platform)),
		attribute.String("priority", string(tier)),
	))
}

// DebunkCreated counts a committed debunk
func (t *Telemetry) DebunkCreated(ctx context.Context, verdict model.Verdict) {
	if t == nil {
		return
	}
	t.debunksCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", string(verdict))))
}

// NotificationAttempted counts an alert delivery attempt
func (t *Telemetry) NotificationAttempted(ctx context.Context, err error) {
	if t == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	t.notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// WatchdogFailed counts a post the watchdog could not process
func (t *Telemetry) WatchdogFailed(ctx context.Context, reason string) {
	if t == nil {
		return
	}
	t.watchdogFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// WatchdogCycle counts a completed watchdog cycle
func (t *Telemetry) WatchdogCycle(ctx context.Context) {
	if t == nil {
		return
	}
	t.watchdogCycles.Add(ctx, 1)
}

// StartSpan starts a span on the global tracer provider
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(meterName).Start(ctx, name, opts...)
}
