package bus

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	werrors "github.com/vinayprograms/workkit/errors"
)

const activities = "workkit.activities"

func receive(t *testing.T, sub Subscription) *Message {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		if !ok {
			t.Fatal("subscription closed")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func TestValidateSubject(t *testing.T) {
	if err := ValidateSubject(activities); err != nil {
		t.Errorf("ValidateSubject(%q) = %v", activities, err)
	}
	err := ValidateSubject("")
	if !errors.Is(err, ErrInvalidSubject) || !werrors.Is(err, werrors.ErrCodeInvalidArgument) {
		t.Errorf("expected INVALID_ARGUMENT for empty subject, got %v", err)
	}
}

func TestMemoryBus_PublishWithoutSubscribers(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()

	if err := b.Publish(activities, []byte("hello")); err != nil {
		t.Errorf("Publish error: %v", err)
	}
	if err := b.Publish("", []byte("hello")); !errors.Is(err, ErrInvalidSubject) {
		t.Errorf("expected ErrInvalidSubject, got %v", err)
	}
}

func TestMemoryBus_SubscribeReceivesHeaders(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()

	sub, err := b.Subscribe(activities)
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	defer sub.Unsubscribe()

	header := map[string]string{"traceparent": "00-abc-def-01"}
	if err := b.PublishMsg(&Message{Subject: activities, Header: header, Data: []byte("hello")}); err != nil {
		t.Fatalf("PublishMsg error: %v", err)
	}
	header["traceparent"] = "mutated"

	msg := receive(t, sub)
	if string(msg.Data) != "hello" || msg.Subject != activities {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.Header["traceparent"] != "00-abc-def-01" {
		t.Errorf("expected header copied at publish, got %v", msg.Header)
	}
}

func TestMemoryBus_FanOut(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()

	sub1, _ := b.Subscribe(activities)
	sub2, _ := b.Subscribe(activities)
	defer sub1.Unsubscribe()
	defer sub2.Unsubscribe()

	b.Publish(activities, []byte("hello"))

	for i, sub := range []Subscription{sub1, sub2} {
		if msg := receive(t, sub); string(msg.Data) != "hello" {
			t.Errorf("sub%d: data = %q", i+1, msg.Data)
		}
	}
}

func TestMemoryBus_QueueGroupRoundRobin(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()

	var subs []Subscription
	for i := 0; i < 3; i++ {
		sub, err := b.QueueSubscribe(activities, "workkit")
		if err != nil {
			t.Fatalf("QueueSubscribe error: %v", err)
		}
		subs = append(subs, sub)
	}

	for i := 0; i < 9; i++ {
		b.Publish(activities, []byte("msg"))
	}

	for i, sub := range subs {
		if n := len(sub.(*memorySub).ch); n != 3 {
			t.Errorf("member %d got %d messages, want 3", i, n)
		}
	}
}

func TestMemoryBus_QueueGroupSkipsFullMember(t *testing.T) {
	var dropped atomic.Int32
	b := NewMemoryBus(Config{BufferSize: 1, OnDrop: func(*Message) { dropped.Add(1) }})
	defer b.Close()

	sub1, _ := b.QueueSubscribe(activities, "workkit")
	sub2, _ := b.QueueSubscribe(activities, "workkit")

	for i := 0; i < 3; i++ {
		b.Publish(activities, []byte("msg"))
	}

	total := len(sub1.(*memorySub).ch) + len(sub2.(*memorySub).ch)
	if total != 2 || dropped.Load() != 1 {
		t.Errorf("expected 2 delivered and 1 dropped, got %d and %d", total, dropped.Load())
	}
}

func TestMemoryBus_QueueSubscribeRequiresGroup(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()

	if _, err := b.QueueSubscribe(activities, ""); !errors.Is(err, ErrInvalidSubject) {
		t.Errorf("expected ErrInvalidSubject, got %v", err)
	}
}

func TestMemoryBus_Request(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()

	sub, _ := b.QueueSubscribe(activities, "workkit")
	go func() {
		for msg := range sub.Messages() {
			if msg.Reply != "" {
				b.Publish(msg.Reply, append([]byte("re: "), msg.Data...))
			}
		}
	}()
	defer sub.Unsubscribe()

	reply, err := b.Request(activities, []byte("ping"), time.Second)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if string(reply.Data) != "re: ping" {
		t.Errorf("reply = %q, want %q", reply.Data, "re: ping")
	}
}

func TestMemoryBus_RequestErrors(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()

	if _, err := b.Request(activities, []byte("ping"), 50*time.Millisecond); !errors.Is(err, ErrNoResponders) {
		t.Errorf("expected ErrNoResponders, got %v", err)
	}

	sub, _ := b.Subscribe(activities) // never replies
	defer sub.Unsubscribe()

	_, err := b.Request(activities, []byte("ping"), 50*time.Millisecond)
	if !errors.Is(err, ErrTimeout) || !werrors.Is(err, werrors.ErrCodeTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestMemoryBus_AfterClose(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	sub, _ := b.Subscribe(activities)
	b.Close()
	b.Close()

	if _, ok := <-sub.Messages(); ok {
		t.Error("expected subscription channel to be closed")
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Errorf("Unsubscribe after Close: %v", err)
	}
	if err := b.Publish(activities, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Publish, got %v", err)
	}
	if _, err := b.Subscribe(activities); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Subscribe, got %v", err)
	}
}

func TestMemoryBus_Unsubscribe(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()

	sub, _ := b.QueueSubscribe(activities, "workkit")
	if err := sub.Unsubscribe(); err != nil {
		t.Errorf("Unsubscribe error: %v", err)
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Errorf("second Unsubscribe error: %v", err)
	}
	if _, ok := <-sub.Messages(); ok {
		t.Error("expected channel to be closed after unsubscribe")
	}

	// Publishing to a group with no members must not panic.
	if err := b.Publish(activities, []byte("x")); err != nil {
		t.Errorf("Publish error: %v", err)
	}
}

func TestMemoryBus_BufferFullDrops(t *testing.T) {
	var dropped []string
	var mu sync.Mutex
	b := NewMemoryBus(Config{BufferSize: 1, OnDrop: func(m *Message) {
		mu.Lock()
		dropped = append(dropped, string(m.Data))
		mu.Unlock()
	}})
	defer b.Close()

	sub, _ := b.Subscribe(activities)
	b.Publish(activities, []byte("1"))
	b.Publish(activities, []byte("2"))

	if msg := receive(t, sub); string(msg.Data) != "1" {
		t.Errorf("expected first message, got %q", msg.Data)
	}
	select {
	case <-sub.Messages():
		t.Error("unexpected second message")
	default:
	}

	mu.Lock()
	defer mu.Unlock()
	if len(dropped) != 1 || dropped[0] != "2" {
		t.Errorf("expected message 2 reported dropped, got %v", dropped)
	}
}

// TestMemoryBus_ConcurrentPublishUnsubscribe exercises delivery racing
// subscription teardown.
func TestMemoryBus_ConcurrentPublishUnsubscribe(t *testing.T) {
	b := NewMemoryBus(Config{BufferSize: 4})
	defer b.Close()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				b.Publish(activities, []byte("x"))
			}
		}
	}()

	for i := 0; i < 200; i++ {
		sub, err := b.QueueSubscribe(activities, "workkit")
		if err != nil {
			t.Fatalf("QueueSubscribe error: %v", err)
		}
		sub.Unsubscribe()
	}
	close(stop)
	wg.Wait()
}

func BenchmarkMemoryBus_Publish(b *testing.B) {
	mb := NewMemoryBus(DefaultConfig())
	defer mb.Close()

	sub, _ := mb.QueueSubscribe("bench", "workers")
	go func() {
		for range sub.Messages() {
		}
	}()

	data := []byte("benchmark message")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mb.Publish("bench", data)
	}
}
