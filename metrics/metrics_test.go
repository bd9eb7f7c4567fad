package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.Submitted()
	c.Submitted()
	c.Submitted()
	c.SetQueueDepth(3)

	c.Admitted(10 * time.Millisecond)
	c.Admitted(20 * time.Millisecond)
	c.Rejected()
	c.SetQueueDepth(0)

	if got := testutil.ToFloat64(c.inflight); got != 2 {
		t.Fatalf("expected 2 in flight, got %v", got)
	}

	c.Finished(50*time.Millisecond, "")
	c.Finished(time.Second, ReasonPanic)

	checks := map[string]float64{
		"submitted": testutil.ToFloat64(c.submitted),
		"admitted":  testutil.ToFloat64(c.admitted),
		"rejected":  testutil.ToFloat64(c.rejected),
		"completed": testutil.ToFloat64(c.completed),
		"inflight":  testutil.ToFloat64(c.inflight),
		"depth":     testutil.ToFloat64(c.queueDepth),
		"panics":    testutil.ToFloat64(c.failed.WithLabelValues(ReasonPanic)),
	}
	want := map[string]float64{
		"submitted": 3, "admitted": 2, "rejected": 1, "completed": 2,
		"inflight": 0, "depth": 0, "panics": 1,
	}
	for name, w := range want {
		if checks[name] != w {
			t.Errorf("%s: expected %v, got %v", name, w, checks[name])
		}
	}
}

func TestDrainTimeoutExposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.DrainTimedOut()

	expected := `
# HELP workkit_drain_timeouts_total Count of drains that abandoned in-flight work.
# TYPE workkit_drain_timeouts_total counter
workkit_drain_timeouts_total 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "workkit_drain_timeouts_total"); err != nil {
		t.Fatal(err)
	}
}

func TestFailedByReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.Admitted(0)
	c.Admitted(0)
	c.Finished(time.Millisecond, ReasonError)
	c.Finished(time.Millisecond, ReasonPanic)

	expected := `
# HELP workkit_work_failed_total Count of work items that returned an error or panicked.
# TYPE workkit_work_failed_total counter
workkit_work_failed_total{reason="error"} 1
workkit_work_failed_total{reason="panic"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "workkit_work_failed_total"); err != nil {
		t.Fatal(err)
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.Submitted()
	c.Admitted(time.Second)
	c.Rejected()
	c.Finished(time.Second, ReasonError)
	c.DrainTimedOut()
	c.SetQueueDepth(4)
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.Submitted()

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), "workkit_work_submitted_total 1") {
		t.Errorf("expected submitted counter in exposition, got:\n%s", body)
	}
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected duplicate registration to panic")
		}
	}()
	NewCollector(reg)
}
