package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" authorization=Bearer abc , x-tenant = north ,broken, =skip")
	if len(headers) != 2 {
		t.Fatalf("expected two headers, got %v", headers)
	}
	if headers["authorization"] != "Bearer abc" || headers["x-tenant"] != "north" {
		t.Fatalf("unexpected headers %v", headers)
	}
}

func TestInitRequiresServiceName(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing service name to fail")
	}
}

func TestConfigEnabled(t *testing.T) {
	if (Config{Traces: true}).Enabled() {
		t.Fatalf("no endpoint means telemetry stays off")
	}
	if !(Config{Endpoint: "collector:4318", Traces: true}).Enabled() {
		t.Fatalf("endpoint with traces must enable telemetry")
	}
}

func TestTracerIsUsableWithoutInit(t *testing.T) {
	_, span := Tracer().Start(context.Background(), "noop")
	span.End()
}

func TestPropagatorReadsTraceparent(t *testing.T) {
	carrier := propagation.MapCarrier{"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"}
	ctx := Propagator().Extract(context.Background(), carrier)
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() || !sc.IsRemote() {
		t.Fatalf("expected remote span context, got %+v", sc)
	}
	if sc.TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("unexpected trace id %s", sc.TraceID())
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{ServiceName: " supplynetd ", SampleRatio: 4}.withDefaults()
	if cfg.ServiceName != "supplynetd" || cfg.Endpoint != defaultEndpoint || cfg.SampleRatio != 1 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}
