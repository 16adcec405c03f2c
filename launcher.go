// Package launcher starts a robot-control backend and the dashboard proxy
// that fronts it, and exposes the launch progress as observable state.
package launcher

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cevalogistics/launcher/internal/browser"
	cfg "github.com/cevalogistics/launcher/internal/config"
	"github.com/cevalogistics/launcher/internal/history"
	"github.com/cevalogistics/launcher/internal/metrics"
	"github.com/cevalogistics/launcher/internal/orchestrator"
	"github.com/cevalogistics/launcher/internal/probe"
	"github.com/cevalogistics/launcher/internal/process"
	"github.com/cevalogistics/launcher/internal/server"
	"github.com/cevalogistics/launcher/internal/state"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type ProxyConfig = cfg.ProxyConfig

type Spec = process.Spec

type Snapshot = state.Snapshot

type State = orchestrator.State

type Orchestrator = orchestrator.Orchestrator

type Supervisor = process.Supervisor

type Opener = browser.Opener

type HistorySink = history.Sink

var ErrNotReady = orchestrator.ErrNotReady

const (
	BackendName  = "backend"
	FrontendName = "frontend"
	// DevicesName labels device-inventory probes apart from backend health probes.
	DevicesName = "devices"
)

// LoadConfig reads a TOML config (path may be empty) with CEVA_* overrides.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config { return cfg.Default() }

// BackendSpec is how the backend is spawned when it is not already running.
func BackendSpec(c *Config) Spec {
	return Spec{
		Name:       BackendName,
		Command:    c.Backend.Command,
		Args:       c.Backend.Args,
		WorkDir:    c.Backend.WorkDir,
		Env:        c.Backend.Env,
		StartGrace: c.Backend.StartGrace,
		Detached:   true,
	}
}

// FrontendSpec is how the dashboard proxy is spawned. With no configured
// command the launcher runs itself (self) with the proxy subcommand,
// listening on the frontend address and reading the same config file.
func FrontendSpec(c *Config, self string) Spec {
	s := Spec{
		Name:       FrontendName,
		Command:    c.Frontend.Command,
		Args:       c.Frontend.Args,
		WorkDir:    c.Frontend.WorkDir,
		Env:        c.Frontend.Env,
		StartGrace: c.Frontend.StartGrace,
		Detached:   true,
	}
	if s.Command == "" {
		s.Command = self
		s.Args = []string{"proxy", "--listen", c.Frontend.Addr.String()}
		if c.Path != "" {
			s.Args = append(s.Args, "--config", c.Path)
		}
	}
	return s
}

// DashboardURL is the address opened in the browser once ready.
func DashboardURL(c *Config) string { return c.Frontend.Addr.URL("/") }

// Deps are the runtime collaborators of an orchestrator built from config.
type Deps struct {
	Supervisor Supervisor
	Opener     Opener
	History    HistorySink // optional
	Logger     *slog.Logger
	// Self is the launcher executable, used when the frontend command is not configured.
	Self string
}

// OrchestratorConfig maps the file configuration onto the orchestrator.
func OrchestratorConfig(c *Config, d Deps) orchestrator.Config {
	statusURL := c.Backend.Addr.URL(c.Backend.StatusPath)
	backend := probe.NewHTTP(BackendName, statusURL, c.Backend.ProbeTimeout)
	devices := backend.WithTimeout(c.Backend.DeviceTimeout)
	devices.Name = DevicesName
	return orchestrator.Config{
		BackendProbe:  backend,
		DeviceProbe:   devices,
		FrontendProbe: probe.NewHTTP(FrontendName, DashboardURL(c), c.Frontend.ProbeTimeout),
		Backend:       BackendSpec(c),
		Frontend:      FrontendSpec(c, d.Self),
		BackendPoll:   orchestrator.Poll{Interval: c.Backend.PollInterval, Attempts: c.Backend.StartAttempts},
		FrontendPoll:  orchestrator.Poll{Interval: c.Frontend.PollInterval, Attempts: c.Frontend.StartAttempts},
		DashboardURL:  DashboardURL(c),
		Supervisor:    d.Supervisor,
		Opener:        d.Opener,
		History:       d.History,
		Logger:        d.Logger,
	}
}

// NewOrchestrator builds an idle orchestrator from config; call Start to run it.
func NewOrchestrator(c *Config, d Deps) (*Orchestrator, error) {
	return orchestrator.New(OrchestratorConfig(c, d))
}

// ProxyHandler returns the dashboard router as an http.Handler for embedding.
func ProxyHandler(c ProxyConfig, lg *slog.Logger) http.Handler {
	return server.NewRouter(c, lg).Handler()
}

// RegisterMetrics registers launcher metrics with the provided registerer.
func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }

// MetricsHandler exposes the default prometheus registry.
func MetricsHandler() http.Handler { return metrics.Handler() }
