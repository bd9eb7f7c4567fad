package transport

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestStdioTransport_Receive(t *testing.T) {
	input := `{"type":"message","text":"one","conversation":{"id":"c1"}}
{"type":"message","text":"two","conversation":{"id":"c1"}}
`
	tr := NewStdioTransport(strings.NewReader(input), &bytes.Buffer{}, DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go tr.Run(ctx)

	var texts []string
	for act := range tr.Recv() {
		texts = append(texts, act.Text)
	}
	if strings.Join(texts, ",") != "one,two" {
		t.Errorf("received %v, want [one two]", texts)
	}
}

func TestStdioTransport_SkipsInvalidLines(t *testing.T) {
	input := "not json\n\n{\"text\":\"no type\"}\n{\"type\":\"message\",\"text\":\"ok\"}\n"

	var mu sync.Mutex
	var invalid []string
	cfg := DefaultConfig()
	cfg.OnInvalid = func(data []byte, err error) {
		mu.Lock()
		invalid = append(invalid, string(data))
		mu.Unlock()
	}

	tr := NewStdioTransport(strings.NewReader(input), &bytes.Buffer{}, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go tr.Run(ctx)

	var got []*Activity
	for act := range tr.Recv() {
		got = append(got, act)
	}
	if len(got) != 1 || got[0].Text != "ok" {
		t.Errorf("expected only the valid activity, got %d", len(got))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(invalid) != 2 {
		t.Errorf("expected 2 invalid lines reported, got %v", invalid)
	}
}

func TestStdioTransport_Send(t *testing.T) {
	var out bytes.Buffer
	tr := NewStdioTransport(strings.NewReader(""), &out, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	tr.Send(&Activity{Type: TypeMessage, Text: "first"})
	tr.Send(&Activity{Type: TypeMessage, Text: "second"})
	time.Sleep(50 * time.Millisecond)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", out.String())
	}
	for i, want := range []string{"first", "second"} {
		act, err := ParseActivity([]byte(lines[i]))
		if err != nil || act.Text != want {
			t.Errorf("line %d = %q, want text %q", i, lines[i], want)
		}
	}
}

func TestStdioTransport_SendAfterClose(t *testing.T) {
	tr := NewStdioTransport(strings.NewReader(""), &bytes.Buffer{}, DefaultConfig())
	tr.Close()
	tr.Close()

	if err := tr.Send(&Activity{Type: TypeMessage}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestStdioTransport_CloseStopsRun(t *testing.T) {
	tr := NewStdioTransport(strings.NewReader(""), &bytes.Buffer{}, DefaultConfig())

	done := make(chan error, 1)
	go func() { done <- tr.Run(context.Background()) }()
	tr.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v after Close, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
}
