package otel

import (
	"context"
	"sync"

	eventbus "github.com/keywordwei/graphql-loader/internal/eventbus"
	events "github.com/keywordwei/graphql-loader/internal/events"
	reqid "github.com/keywordwei/graphql-loader/internal/reqid"

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

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
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

	sub := newSubscriber(otel.Tracer("graphql-loader"))
	unsubscribe := sub.register()

	return func(ctx context.Context) error {
		unsubscribe()
		return tp.Shutdown(ctx)
	}, nil
}

// spanKey identifies an open span. Spans of requests without a request id
// (CLI runs) are keyed by document alone.
type spanKey struct {
	rid      uint64
	document string
}

type subscriber struct {
	tracer     trace.Tracer
	httpSpans  sync.Map // rid -> trace.Span
	cutSpans   sync.Map // spanKey -> trace.Span
	buildSpans sync.Map // spanKey -> trace.Span
}

func newSubscriber(tracer trace.Tracer) *subscriber {
	return &subscriber{tracer: tracer}
}

func (s *subscriber) register() (unsubscribe func()) {
	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPStart) {
			rid, _ := reqid.FromContext(ctx)
			_, span := s.tracer.Start(ctx, "http.request")
			span.SetAttributes(
				semconv.HTTPMethodKey.String(e.Request.Method),
				semconv.HTTPRouteKey.String(e.Route),
				attribute.String("http.target", e.Request.URL.Path),
			)
			s.httpSpans.Store(rid, span)
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			rid, _ := reqid.FromContext(ctx)
			v, ok := s.httpSpans.LoadAndDelete(rid)
			if !ok {
				return
			}
			span := v.(trace.Span)
			span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
			if e.Status >= 500 {
				span.SetStatus(codes.Error, "")
			}
			span.End()
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.SpecializeStart) {
			rid, _ := reqid.FromContext(ctx)
			parent := ctx
			if v, ok := s.httpSpans.Load(rid); ok {
				parent = trace.ContextWithSpan(ctx, v.(trace.Span))
			}
			_, span := s.tracer.Start(parent, "specialize.cut")
			span.SetAttributes(
				attribute.String("graphql_loader.document", e.Document),
				attribute.Int("graphql_loader.field_count", len(e.Fields)),
				attribute.Bool("graphql_loader.filtered", e.Fields != nil),
			)
			s.cutSpans.Store(spanKey{rid, e.Document}, span)
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.SpecializeFinish) {
			rid, _ := reqid.FromContext(ctx)
			v, ok := s.cutSpans.LoadAndDelete(spanKey{rid, e.Document})
			if !ok {
				return
			}
			span := v.(trace.Span)
			span.SetAttributes(attribute.Bool("graphql_loader.cached", e.Cached))
			endWithError(span, e.Err)
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.SchemaBuildStart) {
			rid, _ := reqid.FromContext(ctx)
			key := spanKey{rid, e.Document}
			parent := ctx
			if v, ok := s.cutSpans.Load(key); ok {
				parent = trace.ContextWithSpan(ctx, v.(trace.Span))
			} else if v, ok := s.httpSpans.Load(rid); ok {
				parent = trace.ContextWithSpan(ctx, v.(trace.Span))
			}
			_, span := s.tracer.Start(parent, "specialize.build")
			span.SetAttributes(attribute.String("graphql_loader.document", e.Document))
			s.buildSpans.Store(key, span)
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.SchemaBuildFinish) {
			rid, _ := reqid.FromContext(ctx)
			v, ok := s.buildSpans.LoadAndDelete(spanKey{rid, e.Document})
			if !ok {
				return
			}
			span := v.(trace.Span)
			span.SetAttributes(
				attribute.Int("graphql_loader.files", e.Files),
				attribute.Int("graphql_loader.fragments", e.Fragments),
			)
			endWithError(span, e.Err)
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.ImportSkipped) {
			span := trace.SpanFromContext(ctx)
			rid, _ := reqid.FromContext(ctx)
			// Duplicate imports happen during a build; attach to it when open.
			s.buildSpans.Range(func(k, v any) bool {
				if k.(spanKey).rid == rid {
					span = v.(trace.Span)
					return false
				}
				return true
			})
			span.AddEvent("duplicate import skipped", trace.WithAttributes(
				attribute.String("graphql_loader.path", e.Path),
				attribute.String("graphql_loader.from", e.From),
			))
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func endWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
