package observability

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestTracingConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("TRACKER_TRACING_ENABLED", "")
	t.Setenv("TRACKER_TRACING_EXPORTER", "")
	t.Setenv("TRACKER_TRACING_SERVICE_NAME", "")
	t.Setenv("TRACKER_TRACING_SAMPLE_RATIO", "2")

	cfg := TracingConfigFromEnv()
	if cfg.Enabled {
		t.Fatalf("Enabled = true, want false")
	}
	if cfg.Exporter != "stdout" || cfg.ServiceName != "mount-tracker" {
		t.Fatalf("cfg = %+v, want stdout exporter and mount-tracker service", cfg)
	}
	if cfg.SampleRatio != 1 {
		t.Fatalf("SampleRatio = %v, want out-of-range value ignored", cfg.SampleRatio)
	}
}

func TestInitTracingDisabledIsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	ctx, span := StartSpan(context.Background(), "noop")
	span.End()
	if ctx == nil {
		t.Fatalf("StartSpan returned nil context")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"}, nil)
	if err == nil {
		t.Fatalf("expected error for unsupported exporter")
	}
}

func TestResourceCarriesRunAttributes(t *testing.T) {
	cfg := TracingConfig{ServiceName: "mount-tracker"}.WithAttributes(
		attribute.String("tracker.target", "ISS"),
		attribute.String("tracker.location", "Nottingham"),
		attribute.String("service.name", "spoofed"),
	)
	res, err := newResource(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newResource: %v", err)
	}
	set := res.Set()
	if v, ok := set.Value("tracker.target"); !ok || v.AsString() != "ISS" {
		t.Fatalf("tracker.target = %v, %v", v.AsString(), ok)
	}
	if v, ok := set.Value("tracker.location"); !ok || v.AsString() != "Nottingham" {
		t.Fatalf("tracker.location = %v, %v", v.AsString(), ok)
	}
	if v, _ := set.Value("service.name"); v.AsString() != "mount-tracker" {
		t.Fatalf("service.name = %q, want mount-tracker", v.AsString())
	}
}

func TestWithAttributesDoesNotAliasBase(t *testing.T) {
	base := TracingConfig{Attributes: make([]attribute.KeyValue, 0, 4)}
	a := base.WithAttributes(attribute.String("k", "a"))
	b := base.WithAttributes(attribute.String("k", "b"))
	if a.Attributes[0].Value.AsString() != "a" || b.Attributes[0].Value.AsString() != "b" {
		t.Fatalf("attributes aliased: %v %v", a.Attributes, b.Attributes)
	}
}
