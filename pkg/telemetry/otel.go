package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	clue "goa.design/clue/log"
)

type (
	// ClueLogger delegates to goa.design/clue/log. The logger reads
	// formatting and debug settings from the context, set up once at
	// process start via clue.Context/clue.WithFormat/clue.WithDebug.
	ClueLogger struct{}

	// OtelMetrics delegates to an OpenTelemetry meter.
	OtelMetrics struct {
		meter  metric.Meter
		counts map[string]metric.Float64Counter
	}

	// OtelTracer delegates to an OpenTelemetry tracer.
	OtelTracer struct {
		tracer trace.Tracer
	}

	otelSpan struct {
		span trace.Span
	}
)

// NewClueLogger constructs a Logger backed by goa.design/clue/log.
func NewClueLogger() Logger { return ClueLogger{} }

// NewOtelMetrics constructs a Metrics recorder backed by the global OTel
// MeterProvider scoped to the given instrumentation name.
func NewOtelMetrics(instrumentationName string) Metrics {
	return &OtelMetrics{meter: otel.Meter(instrumentationName)}
}

// NewOtelTracer constructs a Tracer backed by the global OTel TracerProvider
// scoped to the given instrumentation name.
func NewOtelTracer(instrumentationName string) Tracer {
	return &OtelTracer{tracer: otel.Tracer(instrumentationName)}
}

func (ClueLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	clue.Debug(ctx, msg, toClueKV(keyvals)...)
}

func (ClueLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	clue.Info(ctx, msg, toClueKV(keyvals)...)
}

func (ClueLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	clue.Warn(ctx, msg, toClueKV(keyvals)...)
}

func (ClueLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	clue.Error(ctx, fmt.Errorf("%s", msg), toClueKV(keyvals)...)
}

func toClueKV(keyvals []any) []clue.KV {
	out := make([]clue.KV, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		out = append(out, clue.KV{K: k, V: keyvals[i+1]})
	}
	return out
}

func (m *OtelMetrics) counter(name string) metric.Float64Counter {
	if m.counts == nil {
		m.counts = make(map[string]metric.Float64Counter)
	}
	if c, ok := m.counts[name]; ok {
		return c
	}
	c, _ := m.meter.Float64Counter(name)
	m.counts[name] = c
	return c
}

func (m *OtelMetrics) IncCounter(name string, value float64, tags ...string) {
	m.counter(name).Add(context.Background(), value)
}

func (m *OtelMetrics) RecordTimer(name string, duration time.Duration, tags ...string) {
	h, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	h.Record(context.Background(), duration.Seconds())
}

func (m *OtelMetrics) RecordGauge(name string, value float64, tags ...string) {
	g, err := m.meter.Float64Gauge(name)
	if err != nil {
		return
	}
	g.Record(context.Background(), value)
}

func (t *OtelTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, opts...)
	return ctx, &otelSpan{span: span}
}

func (s *otelSpan) End(opts ...trace.SpanEndOption) { s.span.End(opts...) }

func (s *otelSpan) AddEvent(name string, attrs ...any) {
	s.span.AddEvent(name)
}

func (s *otelSpan) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

func (s *otelSpan) RecordError(err error, opts ...trace.EventOption) {
	s.span.RecordError(err, opts...)
}
