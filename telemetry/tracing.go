// OpenTelemetry tracing for background work and the front doors feeding it.
package telemetry

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Span names.
const (
	SpanWorkExecute = "work.execute"
	SpanWorkDrain   = "work.drain"
	SpanActivity    = "activity.receive"
)

// Tracer wraps OpenTelemetry tracing with work-specific helpers.
type Tracer struct {
	tracer trace.Tracer
	debug  bool // When true, include payload text in span attributes
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}
	}
	return globalTracer
}

// NewTracer creates a tracer backed by the global OpenTelemetry provider.
func NewTracer(name string, debug bool) *Tracer {
	return &Tracer{
		tracer: otel.Tracer(name),
		debug:  debug,
	}
}

// NewTracerFromProvider creates a tracer backed by a specific provider.
func NewTracerFromProvider(tp trace.TracerProvider, name string, debug bool) *Tracer {
	return &Tracer{
		tracer: tp.Tracer(name),
		debug:  debug,
	}
}

// SetDebug enables or disables debug mode (payloads in spans).
func (t *Tracer) SetDebug(debug bool) {
	t.debug = debug
}

// Debug returns whether debug mode is enabled.
func (t *Tracer) Debug() bool {
	return t.debug
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// --- Work Spans ---

// WorkSpanOptions describes one executed work item.
type WorkSpanOptions struct {
	ID     string
	Key    string
	Waited time.Duration // time spent queued before admission
}

// StartWorkSpan starts the span wrapping a single work item execution.
func (t *Tracer) StartWorkSpan(ctx context.Context, opts WorkSpanOptions) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, SpanWorkExecute, trace.WithSpanKind(trace.SpanKindConsumer))
	attrs := []attribute.KeyValue{
		attribute.String("work.id", opts.ID),
		attribute.Int64("work.queue_wait_ms", opts.Waited.Milliseconds()),
	}
	if opts.Key != "" {
		attrs = append(attrs, attribute.String("work.key", opts.Key))
	}
	span.SetAttributes(attrs...)
	return ctx, span
}

// EndWorkSpan ends a work span, marking it failed when err is non-nil.
func (t *Tracer) EndWorkSpan(span trace.Span, err error) {
	endSpan(span, err)
}

// DrainSpanOptions describes one bounded drain.
type DrainSpanOptions struct {
	Inflight  int
	Abandoned int
	Timeout   time.Duration
}

// StartDrainSpan starts the span covering a supervisor drain.
func (t *Tracer) StartDrainSpan(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanWorkDrain, trace.WithSpanKind(trace.SpanKindInternal))
}

// EndDrainSpan ends a drain span with its outcome.
func (t *Tracer) EndDrainSpan(span trace.Span, opts DrainSpanOptions, err error) {
	span.SetAttributes(
		attribute.Int("drain.inflight", opts.Inflight),
		attribute.Int("drain.abandoned", opts.Abandoned),
		attribute.Int64("drain.timeout_ms", opts.Timeout.Milliseconds()),
	)
	endSpan(span, err)
}

// --- Activity Spans ---

// ActivitySpanOptions describes an inbound activity at the front door.
type ActivitySpanOptions struct {
	Transport    string // http, websocket, bus
	Type         string
	Conversation string
	Text         string // Only included if debug=true
}

// StartActivitySpan starts a span for an inbound activity.
func (t *Tracer) StartActivitySpan(ctx context.Context, opts ActivitySpanOptions) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, SpanActivity, trace.WithSpanKind(trace.SpanKindServer))
	attrs := []attribute.KeyValue{
		attribute.String("activity.transport", opts.Transport),
		attribute.String("activity.type", opts.Type),
		attribute.String("activity.conversation", opts.Conversation),
	}
	if t.debug && opts.Text != "" {
		attrs = append(attrs, attribute.String("activity.text", truncate(opts.Text, 1000)))
	}
	span.SetAttributes(attrs...)
	return ctx, span
}

// EndActivitySpan ends an activity span with the response status.
func (t *Tracer) EndActivitySpan(span trace.Span, status int, err error) {
	span.SetAttributes(attribute.Int("activity.status", status))
	endSpan(span, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// --- Context Propagation ---

// InjectContext injects trace context into a carrier for cross-process propagation.
func InjectContext(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

// ExtractContext extracts trace context from a carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// MapCarrier is a map-based TextMapCarrier, used for bus message headers.
type MapCarrier map[string]string

func (c MapCarrier) Get(key string) string {
	return c[key]
}

func (c MapCarrier) Set(key, value string) {
	c[key] = value
}

func (c MapCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
