package otel

import (
	"context"
	"fmt"
	"sync"
	"time"

	eventbus "github.com/hanpama/compdata/internal/eventbus"
	events "github.com/hanpama/compdata/internal/events"
	reqid "github.com/hanpama/compdata/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const instrumentationName = "compdata"

// Setup configures OpenTelemetry and attaches subscribers to bus.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string, bus *eventbus.Bus) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	detach := Attach(tp, bus)
	return func(ctx context.Context) error {
		detach()
		return tp.Shutdown(ctx)
	}, nil
}

// Attach subscribes span-producing handlers to bus using tracers from tp. The
// returned func removes them.
func Attach(tp trace.TracerProvider, bus *eventbus.Bus) (detach func()) {
	s := &subscriber{tracer: tp.Tracer(instrumentationName)}
	return s.register(bus)
}

type subscriber struct {
	tracer       trace.Tracer
	pageSpans    sync.Map // rid -> trace.Span
	resolveSpans sync.Map // rid -> trace.Span
	waveSpans    sync.Map // rid/wave -> trace.Span
}

// parent returns ctx carrying the innermost open span of the operation.
func (s *subscriber) parent(ctx context.Context, rid string, maps ...*sync.Map) context.Context {
	for _, m := range maps {
		if v, ok := m.Load(rid); ok {
			return trace.ContextWithSpan(ctx, v.(trace.Span))
		}
	}
	return ctx
}

func waveKey(rid string, id uint64) string { return fmt.Sprintf("%s/%d", rid, id) }

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *subscriber) register(bus *eventbus.Bus) func() {
	var offs []func()
	on := func(off func()) { offs = append(offs, off) }

	on(eventbus.SubscribeTo(bus, func(ctx context.Context, e events.PageStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(ctx, "http.page")
		span.SetAttributes(
			semconv.HTTPMethodKey.String(e.Request.Method),
			attribute.String("http.target", e.Request.URL.Path),
		)
		s.pageSpans.Store(rid, span)
	}))

	on(eventbus.SubscribeTo(bus, func(ctx context.Context, e events.PageFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.pageSpans.LoadAndDelete(rid)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(
			semconv.HTTPStatusCodeKey.Int(e.Status),
			attribute.String("compdata.format", e.Format),
			attribute.Int("http.response_content_length", e.Bytes),
		)
		span.End()
	}))

	on(eventbus.SubscribeTo(bus, func(ctx context.Context, e events.ResolveStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(s.parent(ctx, rid, &s.pageSpans), "compdata.resolve")
		span.SetAttributes(
			attribute.String("compdata.mode", e.Mode),
			attribute.String("compdata.method", e.Method),
		)
		s.resolveSpans.Store(rid, span)
	}))

	on(eventbus.SubscribeTo(bus, func(ctx context.Context, e events.ResolveFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.resolveSpans.LoadAndDelete(rid)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(
			attribute.Int("compdata.entries", e.Entries),
			attribute.Int("compdata.waves", e.Waves),
		)
		finish(span, e.Err)
	}))

	on(eventbus.SubscribeTo(bus, func(ctx context.Context, e events.WaveStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(s.parent(ctx, rid, &s.resolveSpans, &s.pageSpans), "compdata.wave")
		span.SetAttributes(
			attribute.Int64("compdata.wave.id", int64(e.ID)),
			attribute.Int("compdata.wave.depth", e.Depth),
			attribute.Int("compdata.wave.size", e.Size),
		)
		s.waveSpans.Store(waveKey(rid, e.ID), span)
	}))

	on(eventbus.SubscribeTo(bus, func(ctx context.Context, e events.WaveFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.waveSpans.LoadAndDelete(waveKey(rid, e.ID))
		if !ok {
			return
		}
		finish(v.(trace.Span), e.Err)
	}))

	// Hydration outcomes arrive after the fact; the span is back-dated.
	on(eventbus.SubscribeTo(bus, func(ctx context.Context, e events.HydrateNode) {
		rid, _ := reqid.FromContext(ctx)
		end := time.Now()
		_, span := s.tracer.Start(s.parent(ctx, rid, &s.pageSpans), "compdata.hydrate",
			trace.WithTimestamp(end.Add(-e.Duration)))
		span.SetAttributes(
			attribute.String("compdata.identity", e.Identity),
			attribute.String("compdata.source", e.Source),
		)
		if e.Err != nil {
			span.RecordError(e.Err)
			span.SetStatus(codes.Error, e.Err.Error())
		}
		span.End(trace.WithTimestamp(end))
	}))

	on(eventbus.SubscribeTo(bus, func(ctx context.Context, e events.PayloadConsumed) {
		span := trace.SpanFromContext(ctx)
		attrs := []attribute.KeyValue{attribute.Int("compdata.payload.bytes", e.Bytes)}
		if e.Err != nil {
			attrs = append(attrs, attribute.String("error", e.Err.Error()))
		}
		span.AddEvent("compdata.payload.consumed", trace.WithAttributes(attrs...))
	}))

	return func() {
		for _, off := range offs {
			off()
		}
	}
}
