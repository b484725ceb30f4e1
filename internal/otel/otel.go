// Package otel provides OpenTelemetry initialization for testty.
//
// Play and record sessions export a span each, plus counters for tokens,
// expectations and snapshots, to an OTLP endpoint (configurable via config
// file, OTEL_EXPORTER_OTLP_ENDPOINT, or standard OTEL env vars). If no
// endpoint is set, telemetry is a no-op, which is the normal case for local
// test runs.
package otel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "testty"

// Version is set by the caller (from the linker-injected cmd.Version).
var Version = "dev"

// OTELConfig holds the configuration needed by Init.
type OTELConfig struct {
	Endpoint string // OTLP base URL, e.g. "http://localhost:4318"
	Headers  string // Comma-separated key=value pairs, e.g. "Authorization=Basic abc123"
}

// Telemetry holds the OTEL providers and metric instruments.
type Telemetry struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider

	Tracer  trace.Tracer
	Metrics *Metrics

	// SessionID tags every span of this process run.
	SessionID string
}

// Disabled returns telemetry that records nothing, for library callers that
// were not given a Telemetry.
func Disabled() *Telemetry {
	return &Telemetry{
		Tracer:    noop.NewTracerProvider().Tracer(serviceName),
		SessionID: "disabled",
	}
}

// parseHeaders parses the OTEL_EXPORTER_OTLP_HEADERS format,
// "key=value,key2=value2". Pairs without a key are skipped.
func parseHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, val, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		headers[key] = strings.TrimSpace(val)
	}
	return headers
}

// collector is a parsed OTLP/HTTP endpoint.
type collector struct {
	host     string // host:port
	basePath string // without trailing slash
	insecure bool
	headers  map[string]string
}

func parseCollector(cfg OTELConfig) (collector, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return collector{}, fmt.Errorf("otel: invalid endpoint URL %q: %w", cfg.Endpoint, err)
	}
	if u.Host == "" {
		return collector{}, fmt.Errorf("otel: endpoint %q has no host", cfg.Endpoint)
	}
	return collector{
		host:     u.Host,
		basePath: strings.TrimRight(u.Path, "/"),
		insecure: u.Scheme == "http",
		headers:  parseHeaders(cfg.Headers),
	}, nil
}

// Init initializes OTEL with OTLP HTTP exporters. Without an endpoint the
// returned Telemetry still hands out a tracer and instruments; they just
// don't export anywhere.
func Init(ctx context.Context, cfg OTELConfig) (*Telemetry, error) {
	t := &Telemetry{SessionID: "tt-" + uuid.NewString()}

	if cfg.Endpoint != "" {
		c, err := parseCollector(cfg)
		if err != nil {
			return nil, err
		}
		if err := t.startExporters(ctx, c); err != nil {
			return nil, err
		}
	}

	t.Tracer = otel.Tracer(serviceName)
	metrics, err := NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("otel metrics: %w", err)
	}
	t.Metrics = metrics
	return t, nil
}

// startExporters registers global trace and metric providers that push to c.
// Signal paths follow the OTLP convention (/v1/traces, /v1/metrics) below
// the endpoint's base path.
func (t *Telemetry) startExporters(ctx context.Context, c collector) error {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(Version),
		),
		resource.WithHost(),
	)
	if err != nil {
		return fmt.Errorf("otel resource: %w", err)
	}

	traceOpts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(c.host),
		otlptracehttp.WithURLPath(c.basePath + "/v1/traces"),
	}
	metricOpts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(c.host),
		otlpmetrichttp.WithURLPath(c.basePath + "/v1/metrics"),
	}
	if c.insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
		metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
	}
	if len(c.headers) > 0 {
		traceOpts = append(traceOpts, otlptracehttp.WithHeaders(c.headers))
		metricOpts = append(metricOpts, otlpmetrichttp.WithHeaders(c.headers))
	}

	traceExp, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return fmt.Errorf("otel trace exporter: %w", err)
	}
	metricExp, err := otlpmetrichttp.New(ctx, metricOpts...)
	if err != nil {
		return fmt.Errorf("otel metric exporter: %w", err)
	}

	t.tp = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	// Sessions are short; Shutdown flushes whatever the reader has not sent.
	t.mp = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp,
			sdkmetric.WithInterval(15*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetTracerProvider(t.tp)
	otel.SetMeterProvider(t.mp)
	return nil
}

// Shutdown flushes and shuts down all OTEL providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.tp != nil {
		errs = append(errs, t.tp.Shutdown(ctx))
	}
	if t.mp != nil {
		errs = append(errs, t.mp.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
