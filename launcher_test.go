package launcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cevalogistics/launcher/internal/browser"
	cfg "github.com/cevalogistics/launcher/internal/config"
	"github.com/cevalogistics/launcher/internal/probe"
	"github.com/cevalogistics/launcher/internal/process"
)

func TestBackendSpec(t *testing.T) {
	c := DefaultConfig()
	s := BackendSpec(&c)
	if s.Name != BackendName || s.Command != "phosphobot" {
		t.Fatalf("unexpected spec %+v", s)
	}
	if strings.Join(s.Args, " ") != "run --port=8080 --host=127.0.0.1 --no-telemetry" {
		t.Fatalf("unexpected args %v", s.Args)
	}
	if !s.Detached {
		t.Fatal("backend must outlive the launcher")
	}
}

func TestFrontendSpecSelf(t *testing.T) {
	c := DefaultConfig()
	s := FrontendSpec(&c, "/usr/local/bin/launcher")
	if s.Command != "/usr/local/bin/launcher" || strings.Join(s.Args, " ") != "proxy --listen 127.0.0.1:3000" {
		t.Fatalf("unexpected spec %+v", s)
	}

	c.Path = "/etc/ceva/launcher.toml"
	s = FrontendSpec(&c, "/usr/local/bin/launcher")
	if strings.Join(s.Args, " ") != "proxy --listen 127.0.0.1:3000 --config /etc/ceva/launcher.toml" {
		t.Fatalf("config path not forwarded: %v", s.Args)
	}

	c.Frontend.Command = "npx"
	c.Frontend.Args = []string{"vite", "--port", "3000"}
	s = FrontendSpec(&c, "/usr/local/bin/launcher")
	if s.Command != "npx" || len(s.Args) != 3 {
		t.Fatalf("configured command ignored: %+v", s)
	}
}

func TestOrchestratorConfig(t *testing.T) {
	c := DefaultConfig()
	oc := OrchestratorConfig(&c, Deps{Self: "launcher"})
	if got := oc.BackendProbe.Describe(); got != "http:http://127.0.0.1:8080/status" {
		t.Fatalf("backend probe %q", got)
	}
	backend, ok := oc.BackendProbe.(*probe.HTTPProber)
	if !ok || backend.Name != BackendName {
		t.Fatalf("backend probe %+v", oc.BackendProbe)
	}
	devices, ok := oc.DeviceProbe.(*probe.HTTPProber)
	if !ok || devices.Name != DevicesName || devices.Timeout != c.Backend.DeviceTimeout {
		t.Fatalf("device probe must carry its own metrics label and timeout: %+v", oc.DeviceProbe)
	}
	if devices.URL != backend.URL || backend.Timeout != c.Backend.ProbeTimeout {
		t.Fatalf("device probe should query the backend status endpoint: %q", devices.URL)
	}
	if got := oc.FrontendProbe.Describe(); got != "http:http://127.0.0.1:3000/" {
		t.Fatalf("frontend probe %q", got)
	}
	if oc.BackendPoll.Attempts != 30 || oc.FrontendPoll.Attempts != 10 {
		t.Fatalf("unexpected poll budgets %+v %+v", oc.BackendPoll, oc.FrontendPoll)
	}
	if oc.DashboardURL != "http://127.0.0.1:3000/" {
		t.Fatalf("dashboard url %q", oc.DashboardURL)
	}
}

type recordingSupervisor struct {
	mu    sync.Mutex
	specs []process.Spec
}

func (s *recordingSupervisor) Spawn(_ context.Context, spec process.Spec) (*process.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs = append(s.specs, spec)
	return nil, nil
}

func (s *recordingSupervisor) Handles() []*process.Handle { return nil }

// The backend is already up and the proxy answers on the frontend address,
// so a launch only spawns the frontend and ends ready.
func TestLaunchEndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"robots":[{"name":"so-100"}],"cameras":{"video_cameras_ids":[0,1]}}`))
	}))
	defer backend.Close()

	c := DefaultConfig()
	c.Backend.Addr = cfg.Address(strings.TrimPrefix(backend.URL, "http://"))
	c.Backend.PollInterval = time.Millisecond
	c.Frontend.PollInterval = time.Millisecond
	c.Proxy.BackendOrigin = backend.URL
	c.Proxy.BundleDir = t.TempDir()
	if err := os.WriteFile(filepath.Join(c.Proxy.BundleDir, "index.html"), []byte("<html></html>"), 0o644); err != nil {
		t.Fatal(err)
	}

	proxy := httptest.NewServer(ProxyHandler(c.Proxy, nil))
	defer proxy.Close()
	c.Frontend.Addr = cfg.Address(strings.TrimPrefix(proxy.URL, "http://"))

	var opened []string
	sup := &recordingSupervisor{}
	o, err := NewOrchestrator(&c, Deps{
		Supervisor: sup,
		Opener:     browser.OpenerFunc(func(u string) error { opened = append(opened, u); return nil }),
		Self:       "launcher",
	})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	if err := o.OpenDashboard(); err != ErrNotReady {
		t.Fatalf("expected ErrNotReady before start, got %v", err)
	}

	o.Start()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	snap, err := o.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if snap.State != "ready" || !snap.Ready || snap.Robots != 1 || snap.Cameras != 2 {
		t.Fatalf("unexpected final snapshot %+v", snap)
	}
	if len(sup.specs) != 1 || sup.specs[0].Name != FrontendName {
		t.Fatalf("expected only the frontend to be spawned, got %+v", sup.specs)
	}

	if err := o.OpenDashboard(); err != nil {
		t.Fatalf("OpenDashboard: %v", err)
	}
	if len(opened) != 1 || opened[0] != proxy.URL+"/" {
		t.Fatalf("opened %v", opened)
	}
}
