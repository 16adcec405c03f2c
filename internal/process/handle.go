package process

import (
	"sync"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Handle is the launcher's ownership record of a spawned process.
// The process is never terminated through the handle; it only reports.
type Handle struct {
	name      string
	command   string
	pid       int
	startedAt time.Time

	mu      sync.Mutex
	exitErr error
	exitAt  time.Time
	done    chan struct{}
}

// Info is a point-in-time, serializable view of a Handle.
type Info struct {
	Name      string    `json:"name"`
	Command   string    `json:"command"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Alive     bool      `json:"alive"`
	ExitedAt  time.Time `json:"exited_at,omitzero"`
	ExitErr   string    `json:"exit_error,omitempty"`
}

func newHandle(name, command string, pid int) *Handle {
	return &Handle{name: name, command: command, pid: pid, startedAt: time.Now(), done: make(chan struct{})}
}

func (h *Handle) Name() string         { return h.name }
func (h *Handle) PID() int             { return h.pid }
func (h *Handle) StartedAt() time.Time { return h.startedAt }

// Done is closed once the process has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// ExitErr returns the wait error once the process has exited; nil while it
// runs or after a clean exit.
func (h *Handle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

// Exited reports whether the process has been waited on.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Alive reports whether the process is still running according to the OS.
func (h *Handle) Alive() bool {
	if h.Exited() || h.pid <= 0 {
		return false
	}
	ok, err := gopsproc.PidExists(int32(h.pid))
	return err == nil && ok
}

// Info snapshots the handle.
func (h *Handle) Info() Info {
	in := Info{Name: h.name, Command: h.command, PID: h.pid, StartedAt: h.startedAt, Alive: h.Alive()}
	h.mu.Lock()
	defer h.mu.Unlock()
	in.ExitedAt = h.exitAt
	if h.exitErr != nil {
		in.ExitErr = h.exitErr.Error()
	}
	return in
}

func (h *Handle) finish(err error) {
	h.mu.Lock()
	h.exitErr = err
	h.exitAt = time.Now()
	h.mu.Unlock()
	close(h.done)
}
