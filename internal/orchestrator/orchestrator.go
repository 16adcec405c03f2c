// Package orchestrator sequences backend and dashboard startup and publishes
// its progress as observable state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cevalogistics/launcher/internal/browser"
	"github.com/cevalogistics/launcher/internal/history"
	"github.com/cevalogistics/launcher/internal/metrics"
	"github.com/cevalogistics/launcher/internal/probe"
	"github.com/cevalogistics/launcher/internal/process"
	"github.com/cevalogistics/launcher/internal/state"
)

var (
	// ErrNotReady is returned by OpenDashboard before the dashboard is ready.
	ErrNotReady = errors.New("dashboard not ready")
	// ErrInvalidTransition marks a move outside the transition table.
	ErrInvalidTransition = errors.New("invalid state transition")
)

const historyTimeout = 5 * time.Second

// Poll is a fixed-cadence retry budget.
type Poll struct {
	Interval time.Duration
	Attempts int
}

// Config wires the orchestrator to its collaborators.
type Config struct {
	// BackendProbe answers whether the backend is up (short timeout).
	BackendProbe probe.Prober
	// DeviceProbe fetches the backend status payload for the device inventory.
	DeviceProbe probe.Prober
	// FrontendProbe answers whether the dashboard proxy is up.
	FrontendProbe probe.Prober

	Backend      process.Spec
	Frontend     process.Spec
	BackendPoll  Poll
	FrontendPoll Poll

	// DashboardURL is opened by OpenDashboard.
	DashboardURL string

	Supervisor process.Supervisor
	Opener     browser.Opener
	History    history.Sink // optional
	Logger     *slog.Logger // optional
	RunID      string       // optional, generated when empty
}

func (c Config) validate() error {
	var errs []error
	if c.BackendProbe == nil || c.DeviceProbe == nil || c.FrontendProbe == nil {
		errs = append(errs, errors.New("backend, device and frontend probes are required"))
	}
	if c.Supervisor == nil {
		errs = append(errs, errors.New("supervisor is required"))
	}
	if c.Opener == nil {
		errs = append(errs, errors.New("opener is required"))
	}
	if c.BackendPoll.Attempts <= 0 || c.FrontendPoll.Attempts <= 0 {
		errs = append(errs, errors.New("poll attempts must be positive"))
	}
	return errors.Join(errs...)
}

// Orchestrator drives the launch state machine:
//
//	Idle -> CheckingBackend -> [StartingBackend ->] CheckingDevices -> StartingFrontend -> Ready
//
// with StartingBackend and StartingFrontend able to fall to Failed. The
// sequence runs once on a background goroutine started by Start.
type Orchestrator struct {
	cfg   Config
	log   *slog.Logger
	store *state.Store

	mu    sync.Mutex
	state State

	startOnce sync.Once
	done      chan struct{}
}

// New validates cfg and returns an idle orchestrator. Nothing runs until Start.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	lg := cfg.Logger
	if lg == nil {
		lg = slog.Default()
	}
	return &Orchestrator{
		cfg:   cfg,
		log:   lg.With("run_id", cfg.RunID),
		store: state.New(state.Snapshot{State: StateIdle.String()}),
		state: StateIdle,
		done:  make(chan struct{}),
	}, nil
}

// RunID identifies this launch in history events.
func (o *Orchestrator) RunID() string { return o.cfg.RunID }

// Start begins the launch sequence. Later calls do nothing.
func (o *Orchestrator) Start() {
	o.startOnce.Do(func() { go o.run() })
}

// Done is closed when the orchestrator reaches Ready or Failed.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// Wait blocks until a terminal state or ctx ends and returns the snapshot.
func (o *Orchestrator) Wait(ctx context.Context) (state.Snapshot, error) {
	select {
	case <-o.done:
		return o.store.Get(), nil
	case <-ctx.Done():
		return o.store.Get(), ctx.Err()
	}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Snapshot returns the current observable snapshot.
func (o *Orchestrator) Snapshot() state.Snapshot { return o.store.Get() }

// Subscribe delivers every snapshot in order, starting with the current one.
// The channel closes after the terminal snapshot or when cancel is called.
func (o *Orchestrator) Subscribe() (<-chan state.Snapshot, func()) { return o.store.Subscribe() }

// OpenDashboard opens the dashboard in the browser. It may be called any
// number of times once Ready and never changes state or status.
func (o *Orchestrator) OpenDashboard() error {
	snap := o.store.Get()
	if o.State() != StateReady {
		metrics.IncDashboardOpen(false)
		return ErrNotReady
	}
	err := o.cfg.Opener.Open(o.cfg.DashboardURL)
	metrics.IncDashboardOpen(err == nil)
	evt := history.Event{
		Type:    history.EventOpen,
		To:      snap.State,
		Status:  snap.Status,
		Ready:   snap.Ready,
		Robots:  snap.Robots,
		Cameras: snap.Cameras,
	}
	if err != nil {
		evt.Error = err.Error()
		o.log.Warn("open dashboard failed", "url", o.cfg.DashboardURL, "error", err)
	} else {
		o.log.Info("dashboard opened", "url", o.cfg.DashboardURL)
	}
	o.record(evt)
	if err != nil {
		return fmt.Errorf("open dashboard: %w", err)
	}
	return nil
}

func (o *Orchestrator) run() {
	defer close(o.done)
	defer o.store.Close()

	if !o.transition(StateCheckingBackend, "Checking backend status...", nil) {
		return
	}
	if _, err := o.cfg.BackendProbe.Probe(context.Background()); err == nil {
		o.setStatus("Backend already running")
	} else {
		o.log.Debug("backend probe failed", "target", o.cfg.BackendProbe.Describe(), "error", err)
		if !o.startBackend() {
			return
		}
	}
	o.checkDevices()
	o.startFrontend()
}

func (o *Orchestrator) startBackend() bool {
	o.transition(StateStartingBackend, "Starting backend...", nil)
	if _, err := o.cfg.Supervisor.Spawn(context.Background(), o.cfg.Backend); err != nil {
		o.fail(fmt.Sprintf("Backend startup failed: %v", err), err)
		return false
	}
	if !o.poll(o.cfg.BackendProbe, o.cfg.BackendPoll, "Starting backend... (%d/%d)") {
		o.fail("Backend startup timeout", nil)
		return false
	}
	o.setStatus("Backend started")
	return true
}

// checkDevices never fails the launch: the dashboard must come up even when
// the inventory cannot be read.
func (o *Orchestrator) checkDevices() {
	o.transition(StateCheckingDevices, "Detecting robots and cameras...", nil)
	counts, err := probe.FetchInventory(context.Background(), o.cfg.DeviceProbe)
	if err != nil {
		o.log.Warn("device detection failed", "error", err)
		o.setStatus(fmt.Sprintf("Device detection failed: %v", err))
		return
	}
	o.store.Update(func(s *state.Snapshot) {
		s.Robots = counts.Robots
		s.Cameras = counts.Cameras
		s.Status = DeviceSummary(counts)
	})
	o.log.Info(DeviceSummary(counts), "robots", counts.Robots, "cameras", counts.Cameras)
}

func (o *Orchestrator) startFrontend() {
	o.transition(StateStartingFrontend, "Starting dashboard...", nil)
	if _, err := o.cfg.Supervisor.Spawn(context.Background(), o.cfg.Frontend); err != nil {
		o.fail(fmt.Sprintf("Frontend startup failed: %v", err), err)
		return
	}
	if !o.poll(o.cfg.FrontendProbe, o.cfg.FrontendPoll, "Waiting for dashboard... (%d/%d)") {
		o.fail("Frontend startup timeout", nil)
		return
	}
	o.transition(StateReady, "Dashboard ready", func(s *state.Snapshot) { s.Ready = true })
}

// poll probes p up to budget.Attempts times, sleeping before each attempt.
// Failed probes only consume budget.
func (o *Orchestrator) poll(p probe.Prober, budget Poll, format string) bool {
	for i := 1; i <= budget.Attempts; i++ {
		time.Sleep(budget.Interval)
		o.setStatus(fmt.Sprintf(format, i, budget.Attempts))
		_, err := p.Probe(context.Background())
		if err == nil {
			return true
		}
		o.log.Debug("probe attempt failed", "target", p.Describe(), "attempt", i, "of", budget.Attempts, "error", err)
	}
	return false
}

func (o *Orchestrator) fail(status string, cause error) {
	o.transition(StateFailed, status, func(s *state.Snapshot) {
		s.Ready = false
		s.Err = status
		if cause != nil {
			s.Err = cause.Error()
		}
	})
}

func (o *Orchestrator) setStatus(status string) {
	o.store.Update(func(s *state.Snapshot) { s.Status = status })
	o.log.Info(status, "state", o.State().String())
}

// transition moves to `to` if the table allows it, publishing status and
// applying mutate to the snapshot. Rejected moves are logged and ignored.
func (o *Orchestrator) transition(to State, status string, mutate func(*state.Snapshot)) bool {
	o.mu.Lock()
	from := o.state
	if !canTransition(from, to) {
		o.mu.Unlock()
		o.log.Error("rejected state transition", "from", from.String(), "to", to.String(), "error", ErrInvalidTransition)
		return false
	}
	o.state = to
	snap := o.store.Update(func(s *state.Snapshot) {
		s.State = to.String()
		s.Status = status
		s.Ready = to == StateReady
		if mutate != nil {
			mutate(s)
		}
	})
	o.mu.Unlock()

	metrics.RecordStateTransition(from.String(), to.String())
	o.log.Info(status, "from", from.String(), "to", to.String())
	o.record(history.Event{
		Type:    history.EventTransition,
		From:    from.String(),
		To:      to.String(),
		Status:  snap.Status,
		Ready:   snap.Ready,
		Robots:  snap.Robots,
		Cameras: snap.Cameras,
		Error:   snap.Err,
	})
	return true
}

func (o *Orchestrator) record(e history.Event) {
	if o.cfg.History == nil {
		return
	}
	e.RunID = o.cfg.RunID
	e.OccurredAt = time.Now().UTC()
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	if err := o.cfg.History.Send(ctx, e); err != nil {
		o.log.Warn("history sink failed", "type", e.Type, "error", err)
	}
}

// DeviceSummary renders device counts as a status line.
func DeviceSummary(c probe.DeviceCounts) string {
	switch {
	case c.Robots > 0 && c.Cameras > 0:
		return fmt.Sprintf("Found %s and %s", plural(c.Robots, "robot"), plural(c.Cameras, "camera"))
	case c.Robots > 0:
		return "Found " + plural(c.Robots, "robot")
	case c.Cameras > 0:
		return "Found " + plural(c.Cameras, "camera")
	default:
		return "No robots or cameras detected"
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
