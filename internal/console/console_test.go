package console

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cevalogistics/launcher/internal/logger"
	"github.com/cevalogistics/launcher/internal/metrics"
	"github.com/cevalogistics/launcher/internal/orchestrator"
	"github.com/cevalogistics/launcher/internal/process"
	"github.com/cevalogistics/launcher/internal/state"
)

type fakeLauncher struct {
	store   *state.Store
	openErr error
	opens   atomic.Int32
}

func newFake() *fakeLauncher {
	return &fakeLauncher{store: state.New(state.Snapshot{State: "idle", Status: "Checking backend status..."})}
}

func (f *fakeLauncher) Snapshot() state.Snapshot                   { return f.store.Get() }
func (f *fakeLauncher) Subscribe() (<-chan state.Snapshot, func()) { return f.store.Subscribe() }
func (f *fakeLauncher) OpenDashboard() error {
	f.opens.Add(1)
	return f.openErr
}

func TestStatus(t *testing.T) {
	f := newFake()
	srv := httptest.NewServer(New(f, nil, nil, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/launcher/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	var snap state.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.State != "idle" || snap.Status != "Checking backend status..." {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestOpen(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"ready", nil, http.StatusOK},
		{"not ready", orchestrator.ErrNotReady, http.StatusConflict},
		{"opener failed", errors.New("open dashboard: no browser"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFake()
			f.openErr = tc.err
			h := New(f, nil, nil, nil).Handler()
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/launcher/open", nil))
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d: %s", tc.code, rec.Code, rec.Body.String())
			}
			if f.opens.Load() != 1 {
				t.Fatalf("expected one open call, got %d", f.opens.Load())
			}
			if tc.err != nil && !strings.Contains(rec.Body.String(), tc.err.Error()) {
				t.Fatalf("error text missing: %s", rec.Body.String())
			}
		})
	}

	rec := httptest.NewRecorder()
	New(newFake(), nil, nil, nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/launcher/open", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /launcher/open: expected 405, got %d", rec.Code)
	}
}

func TestEventsStreamInOrder(t *testing.T) {
	f := newFake()
	srv := httptest.NewServer(New(f, nil, nil, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/launcher/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}

	go func() {
		for _, s := range []string{"checking_backend", "checking_devices", "starting_frontend", "ready"} {
			f.store.Update(func(snap *state.Snapshot) { snap.State = s })
		}
		f.store.Close()
	}()

	var states []string
	var seqs []uint64
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var snap state.Snapshot
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		states = append(states, snap.State)
		seqs = append(seqs, snap.Seq)
	}
	want := []string{"idle", "checking_backend", "checking_devices", "starting_frontend", "ready"}
	if strings.Join(states, ",") != strings.Join(want, ",") {
		t.Fatalf("events %v, want %v", states, want)
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			t.Fatalf("sequence not increasing: %v", seqs)
		}
	}
}

type fakeResources map[string]metrics.ResourceSample

func (r fakeResources) Latest(name string) (metrics.ResourceSample, bool) {
	s, ok := r[name]
	return s, ok
}

func TestProcesses(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sleep")
	}
	sup := process.NewExecSupervisor(nil, logger.Config{})
	h, err := sup.Spawn(context.Background(), process.Spec{Name: "backend", Command: "sleep", Args: []string{"0.3"}})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	res := fakeResources{"backend": {PID: int32(h.PID()), Name: "backend", MemoryMB: 12.5}}

	rec := httptest.NewRecorder()
	New(newFake(), sup, res, nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/launcher/processes", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got []ProcessView
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Name != "backend" || got[0].PID != h.PID() {
		t.Fatalf("unexpected processes %+v", got)
	}
	if got[0].Resources == nil || got[0].Resources.MemoryMB != 12.5 {
		t.Fatalf("resources not attached: %+v", got[0].Resources)
	}

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("child did not exit")
	}
}

func TestProcessesEmpty(t *testing.T) {
	rec := httptest.NewRecorder()
	New(newFake(), nil, nil, nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/launcher/processes", nil))
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty list, got %q", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	New(newFake(), nil, nil, nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestNewServer(t *testing.T) {
	srv, err := NewServer("127.0.0.1:0", New(newFake(), nil, nil, nil))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer func() { _ = srv.Close() }()
	resp, err := http.Get("http://" + srv.Addr + "/launcher/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
