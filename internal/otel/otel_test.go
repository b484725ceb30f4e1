package otel

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestParseHeaders(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{name: "empty", raw: "", want: map[string]string{}},
		{name: "single", raw: "Authorization=Basic abc123", want: map[string]string{"Authorization": "Basic abc123"}},
		{name: "multiple with spaces", raw: " a = 1 , b=2", want: map[string]string{"a": "1", "b": "2"}},
		{name: "value with equals", raw: "token=a=b", want: map[string]string{"token": "a=b"}},
		{name: "missing key skipped", raw: "=x,ok=1", want: map[string]string{"ok": "1"}},
		{name: "no separator skipped", raw: "junk,ok=1", want: map[string]string{"ok": "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseHeaders(tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseHeaders(%q): got %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseCollector(t *testing.T) {
	c, err := parseCollector(OTELConfig{Endpoint: "http://localhost:4318/otel/", Headers: "k=v"})
	if err != nil {
		t.Fatalf("parseCollector error: %v", err)
	}
	if c.host != "localhost:4318" {
		t.Errorf("host: got %q, want %q", c.host, "localhost:4318")
	}
	if c.basePath != "/otel" {
		t.Errorf("basePath: got %q, want %q", c.basePath, "/otel")
	}
	if !c.insecure {
		t.Errorf("insecure: got false for http endpoint")
	}
	if c.headers["k"] != "v" {
		t.Errorf("headers: got %v", c.headers)
	}

	c, err = parseCollector(OTELConfig{Endpoint: "https://collector.example.com"})
	if err != nil {
		t.Fatalf("parseCollector error: %v", err)
	}
	if c.insecure {
		t.Errorf("insecure: got true for https endpoint")
	}

	if _, err := parseCollector(OTELConfig{Endpoint: "not a url"}); err == nil {
		t.Errorf("expected error for endpoint without host")
	}
}

func TestInit_NoEndpoint(t *testing.T) {
	ctx := context.Background()
	tel, err := Init(ctx, OTELConfig{})
	if err != nil {
		t.Fatalf("Init error: %v", err)
	}
	defer tel.Shutdown(ctx)

	if tel.Tracer == nil || tel.Metrics == nil {
		t.Fatalf("Init returned nil tracer or metrics")
	}
	if !strings.HasPrefix(tel.SessionID, "tt-") {
		t.Errorf("SessionID: got %q, want tt- prefix", tel.SessionID)
	}

	// Instruments must be usable without an exporter.
	tel.Metrics.RecordToken(ctx, "literal")
	tel.Metrics.RecordExpectation(ctx, true)
	tel.Metrics.RecordSnapshot(ctx)
	tel.Metrics.RecordSession(ctx, "play", "exited", time.Second)
	_, span := tel.Tracer.Start(ctx, "test")
	span.End()
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordToken(ctx, "sleep")
	m.RecordExpectation(ctx, false)
	m.RecordSnapshot(ctx)
	m.RecordSession(ctx, "record", "terminated", time.Millisecond)
}

func TestDisabled(t *testing.T) {
	tel := Disabled()
	if tel.Tracer == nil {
		t.Fatal("Disabled tracer is nil")
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
