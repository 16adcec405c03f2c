package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cevalogistics/launcher/internal/env"
	"github.com/cevalogistics/launcher/internal/logger"
	"github.com/cevalogistics/launcher/internal/metrics"
)

var (
	// ErrAlreadySpawned is returned when a name has already been spawned.
	ErrAlreadySpawned = errors.New("process already spawned")
	// ErrExitedEarly is returned when a child exits before its start grace elapses.
	ErrExitedEarly = errors.New("process exited during start grace")
)

// Supervisor starts named external processes and hands back an ownership handle.
type Supervisor interface {
	Spawn(ctx context.Context, spec Spec) (*Handle, error)
	Handles() []*Handle
}

// ExecSupervisor spawns processes with os/exec. Each name may be spawned once.
// Children are never stopped by the supervisor; one goroutine per child waits
// for its exit so the handle can report it.
type ExecSupervisor struct {
	env *env.Env
	log logger.Config

	mu      sync.Mutex
	handles map[string]*Handle
	pending map[string]struct{}
}

// NewExecSupervisor returns a supervisor that composes child environments
// with e (nil means the launcher's own environment) and routes child output
// per logCfg.Writers.
func NewExecSupervisor(e *env.Env, logCfg logger.Config) *ExecSupervisor {
	if e == nil {
		e = env.New(true, nil)
	}
	return &ExecSupervisor{env: e, log: logCfg, handles: map[string]*Handle{}, pending: map[string]struct{}{}}
}

// Spawn starts spec. It fails with ErrAlreadySpawned for a repeated name,
// with the exec error (exec.ErrNotFound preserved) when the binary cannot
// be started, and with ErrExitedEarly when the child dies within StartGrace.
func (s *ExecSupervisor) Spawn(ctx context.Context, spec Spec) (*Handle, error) {
	if err := s.reserve(spec.Name); err != nil {
		return nil, err
	}
	h, err := s.start(ctx, spec)
	s.mu.Lock()
	delete(s.pending, spec.Name)
	if err == nil {
		s.handles[spec.Name] = h
	}
	s.mu.Unlock()
	metrics.IncSpawn(spec.Name, err == nil)
	return h, err
}

func (s *ExecSupervisor) reserve(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handles[name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadySpawned, name)
	}
	if _, ok := s.pending[name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadySpawned, name)
	}
	s.pending[name] = struct{}{}
	return nil
}

func (s *ExecSupervisor) start(ctx context.Context, spec Spec) (*Handle, error) {
	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	cmd.Env = s.env.Merge(spec.Env)
	configureSysProcAttr(cmd, spec)

	outW, errW, err := s.log.Writers(spec.Name)
	if err != nil {
		return nil, fmt.Errorf("spawn %s: %w", spec.Name, err)
	}
	closers := []io.Closer{}
	if outW != nil {
		cmd.Stdout, cmd.Stderr = outW, errW
		closers = append(closers, outW, errW)
	} else {
		null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		if err != nil {
			return nil, fmt.Errorf("spawn %s: %w", spec.Name, err)
		}
		cmd.Stdout, cmd.Stderr = null, null
		closers = append(closers, null)
	}
	closeAll := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	if err := cmd.Start(); err != nil {
		closeAll()
		return nil, fmt.Errorf("spawn %s: %w", spec.Name, err)
	}
	h := newHandle(spec.Name, strings.Join(cmd.Args, " "), cmd.Process.Pid)
	slog.Info("process spawned", "name", spec.Name, "pid", h.pid, "command", h.command)

	go func() {
		err := cmd.Wait()
		closeAll()
		if err != nil {
			slog.Warn("process exited", "name", spec.Name, "pid", h.pid, "error", err)
		} else {
			slog.Info("process exited", "name", spec.Name, "pid", h.pid)
		}
		h.finish(err)
	}()

	if spec.StartGrace <= 0 {
		return h, nil
	}
	t := time.NewTimer(spec.StartGrace)
	defer t.Stop()
	select {
	case <-h.Done():
		if exitErr := h.ExitErr(); exitErr != nil {
			return nil, fmt.Errorf("spawn %s: %w: %v", spec.Name, ErrExitedEarly, exitErr)
		}
		return nil, fmt.Errorf("spawn %s: %w", spec.Name, ErrExitedEarly)
	case <-t.C:
		return h, nil
	case <-ctx.Done():
		return h, nil
	}
}

// Handles returns spawned handles sorted by name.
func (s *ExecSupervisor) Handles() []*Handle {
	s.mu.Lock()
	out := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		out = append(out, h)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// PIDs maps the names of still-running children to their pids.
func (s *ExecSupervisor) PIDs() map[string]int32 {
	out := map[string]int32{}
	for _, h := range s.Handles() {
		if !h.Exited() {
			out[h.name] = int32(h.pid)
		}
	}
	return out
}
