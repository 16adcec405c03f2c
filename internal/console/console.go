// Package console is the launcher's HTTP control API: a passive view over
// the orchestrator's observable state plus the "open dashboard" action.
package console

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cevalogistics/launcher/internal/metrics"
	"github.com/cevalogistics/launcher/internal/orchestrator"
	"github.com/cevalogistics/launcher/internal/process"
	"github.com/cevalogistics/launcher/internal/state"
)

// Launcher is the part of the orchestrator the console reads and drives.
type Launcher interface {
	Snapshot() state.Snapshot
	Subscribe() (<-chan state.Snapshot, func())
	OpenDashboard() error
}

// ProcessLister reports spawned processes.
type ProcessLister interface {
	Handles() []*process.Handle
}

// ResourceSource returns the latest resource sample for a process name.
type ResourceSource interface {
	Latest(name string) (metrics.ResourceSample, bool)
}

// ProcessView is one entry of GET /launcher/processes.
type ProcessView struct {
	process.Info
	Resources *metrics.ResourceSample `json:"resources,omitempty"`
}

type errorResp struct {
	Error string `json:"error"`
}

// API serves:
//
//	GET  /launcher/status     current snapshot
//	GET  /launcher/events     server-sent events, one per snapshot, in order
//	POST /launcher/open       open the dashboard (409 until ready)
//	GET  /launcher/processes  spawned processes
//	GET  /metrics             prometheus
type API struct {
	launcher  Launcher
	processes ProcessLister
	resources ResourceSource
	log       *slog.Logger
}

// New builds the API. processes and resources may be nil.
func New(l Launcher, processes ProcessLister, resources ResourceSource, lg *slog.Logger) *API {
	if lg == nil {
		lg = slog.Default()
	}
	return &API{launcher: l, processes: processes, resources: resources, log: lg.With("component", "console")}
}

// Handler returns the echo engine as an http.Handler.
func (a *API) Handler() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	g := e.Group("/launcher")
	g.GET("/status", a.status)
	g.GET("/events", a.events)
	g.POST("/open", a.open)
	g.GET("/processes", a.listProcesses)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	return e
}

func (a *API) status(c echo.Context) error {
	return c.JSON(http.StatusOK, a.launcher.Snapshot())
}

func (a *API) open(c echo.Context) error {
	err := a.launcher.OpenDashboard()
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, a.launcher.Snapshot())
	case errors.Is(err, orchestrator.ErrNotReady):
		return c.JSON(http.StatusConflict, errorResp{Error: err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
	}
}

func (a *API) listProcesses(c echo.Context) error {
	out := []ProcessView{}
	if a.processes != nil {
		for _, h := range a.processes.Handles() {
			v := ProcessView{Info: h.Info()}
			if a.resources != nil {
				if s, ok := a.resources.Latest(h.Name()); ok {
					v.Resources = &s
				}
			}
			out = append(out, v)
		}
	}
	return c.JSON(http.StatusOK, out)
}

// events streams snapshots until the launcher reaches a terminal state or
// the client goes away.
func (a *API) events(c echo.Context) error {
	ch, cancel := a.launcher.Subscribe()
	defer cancel()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-ch:
			if !ok {
				return nil
			}
			b, err := json.Marshal(snap)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: state\ndata: %s\n\n", snap.Seq, b); err != nil {
				a.log.Debug("event stream closed", "error", err)
				return nil
			}
			w.Flush()
		}
	}
}

// NewServer binds addr and serves the API in the background.
func NewServer(addr string, api *API) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			api.log.Error("console server stopped", "error", err)
		}
	}()
	return srv, nil
}
