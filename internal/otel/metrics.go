package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "testty"

// Metrics holds all OTEL metric instruments for testty.
// All instruments are safe for concurrent use, and every Record method is a
// no-op on a nil *Metrics.
type Metrics struct {
	// Tokens sent to the program during playback, by kind (literal, sleep, expect).
	TokensSent metric.Int64Counter

	// Screen expectations evaluated, by result (pass, fail).
	Expectations metric.Int64Counter

	// Snapshot files written by the recorder or in update mode.
	SnapshotsWritten metric.Int64Counter

	// Sessions run, by mode (play, record) and outcome (exited, terminated, spawn_failed).
	Sessions metric.Int64Counter

	// Wall-clock duration of a session.
	SessionDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments. Returns no-op instruments
// when no MeterProvider is registered (safe to call unconditionally).
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.TokensSent, err = meter.Int64Counter("testty.tokens.sent",
		metric.WithDescription("Script tokens executed during playback"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	m.Expectations, err = meter.Int64Counter("testty.expectations",
		metric.WithDescription("Screen expectations evaluated, partitioned by result"))
	if err != nil {
		return nil, err
	}

	m.SnapshotsWritten, err = meter.Int64Counter("testty.snapshots.written",
		metric.WithDescription("Snapshot files written"),
		metric.WithUnit("{file}"))
	if err != nil {
		return nil, err
	}

	m.Sessions, err = meter.Int64Counter("testty.sessions",
		metric.WithDescription("Sessions run, partitioned by mode and outcome"))
	if err != nil {
		return nil, err
	}

	m.SessionDuration, err = meter.Float64Histogram("testty.session.duration",
		metric.WithDescription("Wall-clock duration of a session"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordToken records one executed token of the given kind.
func (m *Metrics) RecordToken(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.TokensSent.Add(ctx, 1, metric.WithAttributes(attribute.String("token.kind", kind)))
}

// RecordExpectation records the result of one screen expectation.
func (m *Metrics) RecordExpectation(ctx context.Context, passed bool) {
	if m == nil {
		return
	}
	result := "fail"
	if passed {
		result = "pass"
	}
	m.Expectations.Add(ctx, 1, metric.WithAttributes(attribute.String("expectation.result", result)))
}

// RecordSnapshot records a written snapshot file.
func (m *Metrics) RecordSnapshot(ctx context.Context) {
	if m == nil {
		return
	}
	m.SnapshotsWritten.Add(ctx, 1)
}

// RecordSession records a finished session.
func (m *Metrics) RecordSession(ctx context.Context, mode, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("session.mode", mode),
		attribute.String("session.outcome", outcome),
	)
	m.Sessions.Add(ctx, 1, attrs)
	m.SessionDuration.Record(ctx, d.Seconds(), attrs)
}
