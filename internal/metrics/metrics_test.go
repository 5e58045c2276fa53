package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fisaks/flowctl/internal/device"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveOperation(t *testing.T) {
	m := New()
	op := "RELAY Turning On"
	m.ObserveOperation("relay", op, device.OutcomeOK, 10*time.Millisecond)
	m.ObserveOperation("relay", op, device.OutcomeFailed, time.Second)
	m.ObserveOperation("relay", op, device.OutcomeFailed, time.Second)

	if got := testutil.ToFloat64(m.operations.WithLabelValues("relay", op, "failed")); got != 2 {
		t.Fatalf("failed count = %v", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("relay", op, "ok")); got != 1 {
		t.Fatalf("ok count = %v", got)
	}
	if n := testutil.CollectAndCount(m.duration); n != 1 {
		t.Fatalf("duration series = %d", n)
	}
}

func TestRecordFlowAndConnected(t *testing.T) {
	m := New()
	m.RecordFlow("gfr", 30.5)
	m.RecordConnected("gfr", true)
	m.RecordConnected("relay", false)

	if got := testutil.ToFloat64(m.flow.WithLabelValues("gfr")); got != 30.5 {
		t.Fatalf("flow = %v", got)
	}
	if got := testutil.ToFloat64(m.connected.WithLabelValues("gfr")); got != 1 {
		t.Fatalf("gfr connected = %v", got)
	}
	if got := testutil.ToFloat64(m.connected.WithLabelValues("relay")); got != 0 {
		t.Fatalf("relay connected = %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.RecordFlow("gfr", 12)
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `flowctl_flow{device="gfr"} 12`) {
		t.Fatalf("body:\n%s", body)
	}
}
