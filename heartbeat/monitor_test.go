package heartbeat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func publish(t *testing.T, b interface{ Publish(string, []byte) error }, hb *Heartbeat) {
	t.Helper()
	if hb.Timestamp.IsZero() {
		hb.Timestamp = time.Now()
	}
	data, err := hb.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := b.Publish(Subject, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// --- Unit Tests ---

func TestMonitorTracksInstances(t *testing.T) {
	b := newBus(t)
	monitor, err := NewBusMonitor(MonitorConfig{Bus: b, Timeout: time.Minute})
	if err != nil {
		t.Fatalf("NewBusMonitor: %v", err)
	}
	if err := monitor.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer monitor.Stop()

	publish(t, b, &Heartbeat{Instance: "b", Status: StatusRunning, Pending: 2})
	publish(t, b, &Heartbeat{Instance: "a", Status: StatusRunning})

	waitFor(t, func() bool { return len(monitor.Instances()) == 2 })

	if diff := cmp.Diff([]string{"a", "b"}, monitor.Instances()); diff != "" {
		t.Errorf("Instances mismatch (-want +got):\n%s", diff)
	}
	if !monitor.IsAlive("a") {
		t.Error("a should be alive")
	}
	if monitor.IsAlive("unknown") {
		t.Error("unknown instance should not be alive")
	}
	if hb := monitor.LastHeartbeat("b"); hb == nil || hb.Pending != 2 {
		t.Errorf("LastHeartbeat(b) = %+v", hb)
	}
}

func TestMonitorDetectsDead(t *testing.T) {
	b := newBus(t)
	monitor, _ := NewBusMonitor(MonitorConfig{
		Bus:           b,
		Timeout:       30 * time.Millisecond,
		CheckInterval: 5 * time.Millisecond,
	})

	dead := make(chan string, 1)
	monitor.OnDead(func(instance string) { dead <- instance })
	monitor.Start()
	defer monitor.Stop()

	publish(t, b, &Heartbeat{Instance: "silent", Status: StatusRunning})

	select {
	case instance := <-dead:
		if instance != "silent" {
			t.Errorf("dead instance = %q, want silent", instance)
		}
	case <-time.After(time.Second):
		t.Fatal("dead instance not reported")
	}

	if monitor.IsAlive("silent") {
		t.Error("dead instance should not be alive")
	}
	if len(monitor.Instances()) != 0 {
		t.Errorf("dead instance still listed: %v", monitor.Instances())
	}
}

func TestMonitorStoppedIsNotDead(t *testing.T) {
	b := newBus(t)
	monitor, _ := NewBusMonitor(MonitorConfig{
		Bus:           b,
		Timeout:       200 * time.Millisecond,
		CheckInterval: 5 * time.Millisecond,
	})

	dead := make(chan string, 1)
	monitor.OnDead(func(instance string) { dead <- instance })
	monitor.Start()
	defer monitor.Stop()

	sender, _ := NewBusSender(SenderConfig{Bus: b, Instance: "leaving", Interval: time.Hour})
	sender.Start(context.Background())
	waitFor(t, func() bool { return monitor.IsAlive("leaving") })

	sender.Stop()
	waitFor(t, func() bool { return len(monitor.Instances()) == 0 })

	select {
	case instance := <-dead:
		t.Errorf("stopped instance %q reported dead", instance)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestMonitorWatch(t *testing.T) {
	b := newBus(t)
	monitor, _ := NewBusMonitor(MonitorConfig{Bus: b})
	watch := monitor.Watch()
	monitor.Start()

	publish(t, b, &Heartbeat{Instance: "a", Status: StatusDraining})

	select {
	case hb := <-watch:
		if hb.Instance != "a" || hb.Status != StatusDraining {
			t.Errorf("unexpected heartbeat: %+v", hb)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher did not receive heartbeat")
	}

	monitor.Stop()
	if _, ok := <-watch; ok {
		t.Error("watch channel should be closed after Stop")
	}
}

func TestMonitorIgnoresGarbage(t *testing.T) {
	b := newBus(t)
	monitor, _ := NewBusMonitor(MonitorConfig{Bus: b})
	watch := monitor.Watch()
	monitor.Start()
	defer monitor.Stop()

	b.Publish(Subject, []byte("not json"))
	publish(t, b, &Heartbeat{Status: StatusRunning})
	publish(t, b, &Heartbeat{Instance: "real", Status: StatusRunning})

	select {
	case hb := <-watch:
		if hb.Instance != "real" {
			t.Errorf("first watched heartbeat = %+v, want real", hb)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher did not receive heartbeat")
	}
}

func TestMonitorLifecycle(t *testing.T) {
	b := newBus(t)
	monitor, _ := NewBusMonitor(MonitorConfig{Bus: b})

	if err := monitor.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Stop before Start = %v, want ErrNotStarted", err)
	}
	if err := monitor.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := monitor.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
	if err := monitor.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestMonitorStartOnClosedBus(t *testing.T) {
	b := newBus(t)
	b.Close()
	monitor, _ := NewBusMonitor(MonitorConfig{Bus: b})
	if err := monitor.Start(); err == nil {
		t.Fatal("expected error starting on closed bus")
	}
	if err := monitor.Start(); errors.Is(err, ErrAlreadyStarted) {
		t.Error("failed Start should not leave monitor marked running")
	}
}
