package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	// idempotent: calling again should be no-op
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	ObserveProbe("backend", true, 0.01)
	ObserveProbe("backend", false, 2)
	IncSpawn("backend", true)
	RecordStateTransition("idle", "checking_backend")
	IncDashboardOpen(true)
	IncProxyRequest("api", 200)
	ObserveUpstream("GET", 0.2)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"launcher_probe_attempts_total":                 false,
		"launcher_probe_duration_seconds":               false,
		"launcher_process_spawns_total":                 false,
		"launcher_orchestrator_state_transitions_total": false,
		"launcher_orchestrator_current_state":           false,
		"launcher_orchestrator_dashboard_opens_total":   false,
		"launcher_proxy_requests_total":                 false,
		"launcher_proxy_upstream_duration_seconds":      false,
	}
	for _, mf := range mfs {
		n := mf.GetName()
		if _, ok := wantNames[n]; ok {
			wantNames[n] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", n)
			}
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestCurrentStateFollowsTransitions(t *testing.T) {
	regOK.Store(false)
	if err := Register(prometheus.NewRegistry()); err != nil {
		t.Fatal(err)
	}
	RecordStateTransition("checking_devices", "starting_frontend")
	RecordStateTransition("starting_frontend", "ready")
	if v := testutil.ToFloat64(currentState.WithLabelValues("ready")); v != 1 {
		t.Fatalf("ready gauge = %v", v)
	}
	if v := testutil.ToFloat64(currentState.WithLabelValues("starting_frontend")); v != 0 {
		t.Fatalf("starting_frontend gauge = %v", v)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	// Reset the gate so collectors land in the default registry used by Handler().
	regOK.Store(false)
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	IncProxyRequest("spa", 200)

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != 200 {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	s := string(b)
	if !strings.Contains(s, "launcher_proxy_requests_total") {
		t.Fatalf("metrics output missing requests_total: %s", s[:min(200, len(s))])
	}
}

func TestConcurrentIncrements(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ObserveProbe("frontend", false, 0.001)
			IncProxyRequest("api", 502)
			IncDashboardOpen(false)
		}()
	}
	wg.Wait()
	// Ensure gather succeeds under race detector
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("gather: %v", err)
	}
}

func TestMetricsBeforeRegister(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	// These should be no-ops and not panic when called before Register
	ObserveProbe("backend", true, 1)
	IncSpawn("backend", false)
	RecordStateTransition("idle", "checking_backend")
	IncDashboardOpen(true)
	IncProxyRequest("static_asset", 404)
	ObserveUpstream("POST", 1)
}

func TestRegisterError(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	err := Register(&errorRegisterer{})
	if err == nil {
		t.Fatal("Register should return error from failing registerer")
	}
	if err.Error() != "test registration error" {
		t.Fatalf("unexpected error: %v", err)
	}
	if regOK.Load() {
		t.Fatal("failed registration must leave helpers disabled")
	}
}

func TestResourceCollectorSamplesSelf(t *testing.T) {
	pid := int32(os.Getpid())
	c := NewResourceCollector(time.Hour, func() map[string]int32 {
		return map[string]int32{"self": pid, "bogus": 0}
	})
	if err := c.Register(prometheus.NewRegistry()); err != nil {
		t.Fatalf("register: %v", err)
	}
	c.Collect()
	s, ok := c.Latest("self")
	if !ok {
		t.Fatal("expected a sample for the test process")
	}
	if s.PID != pid || s.MemoryMB <= 0 {
		t.Fatalf("unexpected sample: %+v", s)
	}
	if _, ok := c.Latest("bogus"); ok {
		t.Fatal("non-positive pids must be skipped")
	}
}

func TestResourceCollectorDropsVanished(t *testing.T) {
	procs := map[string]int32{"self": int32(os.Getpid())}
	var mu sync.Mutex
	c := NewResourceCollector(time.Hour, func() map[string]int32 {
		mu.Lock()
		defer mu.Unlock()
		out := make(map[string]int32, len(procs))
		for k, v := range procs {
			out[k] = v
		}
		return out
	})
	c.Collect()
	mu.Lock()
	delete(procs, "self")
	mu.Unlock()
	c.Collect()
	if _, ok := c.Latest("self"); ok {
		t.Fatal("sample should be dropped once the process is gone")
	}
}

func TestResourceCollectorStartStop(t *testing.T) {
	c := NewResourceCollector(5*time.Millisecond, func() map[string]int32 { return nil })
	c.Start(t.Context())
	time.Sleep(20 * time.Millisecond)
	c.Stop()
	c.Stop()
}

type errorRegisterer struct{}

func (e *errorRegisterer) Register(prometheus.Collector) error {
	return errors.New("test registration error")
}

func (e *errorRegisterer) MustRegister(...prometheus.Collector) {}
func (e *errorRegisterer) Unregister(prometheus.Collector) bool { return false }
