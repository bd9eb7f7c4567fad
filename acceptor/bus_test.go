package acceptor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/vinayprograms/workkit/bus"
	"github.com/vinayprograms/workkit/credentials"
	"github.com/vinayprograms/workkit/telemetry"
	"github.com/vinayprograms/workkit/transport"
)

const subject = "workkit.activities"

// serveBus starts ServeBus and waits until the subscription exists.
func serveBus(t *testing.T, acc *Acceptor, b *bus.MemoryBus) (cancel func()) {
	t.Helper()
	ctx, cancelCtx := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- acc.ServeBus(ctx, b, subject, "workkit") }()

	// An unanswered request fails with ErrNoResponders until subscribed.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := b.Request(subject, []byte(`{}`), 10*time.Millisecond); !errors.Is(err, bus.ErrNoResponders) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	return func() {
		cancelCtx()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("ServeBus returned %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("ServeBus did not return")
		}
	}
}

func TestServeBusQueuesActivities(t *testing.T) {
	b := bus.NewMemoryBus(bus.DefaultConfig())
	defer b.Close()

	r := &runner{}
	replies := make(recorder, 4)
	acc := newAcceptor(echo(), r, WithOutbox(replies))
	stop := serveBus(t, acc, b)
	defer stop()

	b.Publish(subject, []byte(`{"type":"message","text":"from bus","conversation":{"id":"b1"}}`))

	if reply := waitReply(t, replies); reply.Text != "Echo: from bus" {
		t.Errorf("unexpected reply %q", reply.Text)
	}
	if keys := r.submitted(); len(keys) != 1 || keys[0] != "b1" {
		t.Errorf("submitted keys = %v, want [b1]", keys)
	}
}

func TestServeBusExpectReplies(t *testing.T) {
	b := bus.NewMemoryBus(bus.DefaultConfig())
	defer b.Close()

	r := &runner{}
	acc := newAcceptor(echo(), r)
	stop := serveBus(t, acc, b)
	defer stop()

	msg, err := b.Request(subject,
		[]byte(`{"type":"message","text":"sync","deliveryMode":"expectReplies","conversation":{"id":"b1"}}`),
		2*time.Second)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}

	var replies transport.ExpectedReplies
	if err := json.Unmarshal(msg.Data, &replies); err != nil {
		t.Fatalf("reply is not ExpectedReplies: %v", err)
	}
	if len(replies.Activities) != 1 || replies.Activities[0].Text != "Echo: sync" {
		t.Errorf("unexpected replies: %s", msg.Data)
	}
	if len(r.submitted()) != 0 {
		t.Error("inline bus activities must not be queued")
	}
}

func TestServeBusDropsBadMessages(t *testing.T) {
	b := bus.NewMemoryBus(bus.DefaultConfig())
	defer b.Close()

	r := &runner{}
	auth := NewAuthenticator(credentials.New(map[string]string{"bus": "secret"}))
	replies := make(recorder, 4)
	acc := newAcceptor(echo(), r, WithAuthenticator(auth), WithOutbox(replies))
	stop := serveBus(t, acc, b)
	defer stop()

	valid := []byte(`{"type":"message","text":"ok","conversation":{"id":"b1"}}`)
	b.Publish(subject, valid) // no token
	b.PublishMsg(&bus.Message{
		Subject: subject,
		Header:  map[string]string{"Authorization": "Bearer secret"},
		Data:    []byte(`{"text":"no type"}`),
	})
	b.PublishMsg(&bus.Message{
		Subject: subject,
		Header:  map[string]string{"Authorization": "Bearer secret"},
		Data:    valid,
	})

	if reply := waitReply(t, replies); reply.Text != "Echo: ok" {
		t.Errorf("unexpected reply %q", reply.Text)
	}
	if n := len(r.submitted()); n != 1 {
		t.Errorf("queued %d activities, want 1", n)
	}
}

func TestServeBusContinuesTrace(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	defer tp.Shutdown(context.Background())

	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	b := bus.NewMemoryBus(bus.DefaultConfig())
	defer b.Close()

	r := &runner{}
	tracer := telemetry.NewTracerFromProvider(tp, "acceptor-test", false)
	acc := newAcceptor(BotFunc(func(ctx context.Context, turn *Turn) error { return nil }), r, WithTracer(tracer))
	stop := serveBus(t, acc, b)

	parentCtx, parent := tp.Tracer("publisher").Start(context.Background(), "publish")
	header := telemetry.MapCarrier{}
	telemetry.InjectContext(parentCtx, header)
	parent.End()

	b.PublishMsg(&bus.Message{
		Subject: subject,
		Header:  header,
		Data:    []byte(`{"type":"message","text":"traced","conversation":{"id":"b1"}}`),
	})

	deadline := time.Now().Add(2 * time.Second)
	for len(r.submitted()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	stop()

	var found bool
	for _, span := range spans.Ended() {
		if span.Name() != telemetry.SpanActivity {
			continue
		}
		found = true
		if span.Parent().SpanID() != parent.SpanContext().SpanID() {
			t.Errorf("activity span parent = %s, want %s", span.Parent().SpanID(), parent.SpanContext().SpanID())
		}
		if span.SpanContext().TraceID() != parent.SpanContext().TraceID() {
			t.Error("activity span should continue the publisher's trace")
		}
	}
	if !found {
		t.Error("expected an activity span")
	}
}

func TestServeBusStopsOnShutdown(t *testing.T) {
	b := bus.NewMemoryBus(bus.DefaultConfig())
	defer b.Close()

	acc := newAcceptor(echo(), &runner{})
	done := make(chan error, 1)
	go func() { done <- acc.ServeBus(context.Background(), b, subject, "workkit") }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := acc.OnShutdown(ctx); err != nil {
		t.Fatalf("OnShutdown error: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ServeBus returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("ServeBus did not stop")
	}
}

func TestServeBusClosedBus(t *testing.T) {
	b := bus.NewMemoryBus(bus.DefaultConfig())
	b.Close()

	acc := newAcceptor(echo(), &runner{})
	if err := acc.ServeBus(context.Background(), b, subject, "workkit"); err == nil {
		t.Error("expected an error subscribing to a closed bus")
	}
}
