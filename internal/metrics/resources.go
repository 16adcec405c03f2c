package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// ResourceSample holds CPU and memory figures for one spawned process.
type ResourceSample struct {
	PID        int32     `json:"pid"`
	Name       string    `json:"name"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds,omitempty"` // Unix only
	Timestamp  time.Time `json:"timestamp"`
}

// ResourceCollector periodically samples spawned processes with gopsutil and
// exposes the latest figures as gauges and through Latest.
type ResourceCollector struct {
	interval time.Duration
	source   func() map[string]int32

	mu     sync.RWMutex
	latest map[string]ResourceSample

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	cpuPercent *prometheus.GaugeVec
	memoryMB   *prometheus.GaugeVec
	numThreads *prometheus.GaugeVec
	numFDs     *prometheus.GaugeVec
}

// NewResourceCollector creates a collector that samples the processes
// returned by source (name -> pid) every interval (default 5s).
func NewResourceCollector(interval time.Duration, source func() map[string]int32) *ResourceCollector {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "launcher",
			Subsystem: "process",
			Name:      name,
			Help:      help,
		}, []string{"name"})
	}
	return &ResourceCollector{
		interval:   interval,
		source:     source,
		latest:     make(map[string]ResourceSample),
		stopCh:     make(chan struct{}),
		cpuPercent: gauge("cpu_percent", "CPU usage percentage of spawned processes."),
		memoryMB:   gauge("memory_mb", "Resident memory in MB of spawned processes."),
		numThreads: gauge("num_threads", "Number of threads of spawned processes."),
		numFDs:     gauge("num_fds", "Number of open file descriptors of spawned processes (Unix only)."),
	}
}

// Register registers the resource gauges with r.
func (c *ResourceCollector) Register(r prometheus.Registerer) error {
	cs := []prometheus.Collector{c.cpuPercent, c.memoryMB, c.numThreads}
	if runtime.GOOS != "windows" {
		cs = append(cs, c.numFDs)
	}
	for _, col := range cs {
		if err := r.Register(col); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Start begins periodic sampling until ctx is done or Stop is called.
func (c *ResourceCollector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.Collect()
			}
		}
	}()
}

// Stop ends sampling and waits for the sampling goroutine.
func (c *ResourceCollector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// Collect takes one sample of every process reported by the source.
// Processes that disappeared are dropped from the gauges.
func (c *ResourceCollector) Collect() {
	procs := c.source()
	now := time.Now()
	fresh := make(map[string]ResourceSample, len(procs))
	for name, pid := range procs {
		if pid <= 0 {
			continue
		}
		s, err := sample(name, pid, now)
		if err != nil {
			slog.Debug("resource sample failed", "name", name, "pid", pid, "error", err)
			continue
		}
		fresh[name] = s
		c.cpuPercent.WithLabelValues(name).Set(s.CPUPercent)
		c.memoryMB.WithLabelValues(name).Set(s.MemoryMB)
		c.numThreads.WithLabelValues(name).Set(float64(s.NumThreads))
		if runtime.GOOS != "windows" && s.NumFDs > 0 {
			c.numFDs.WithLabelValues(name).Set(float64(s.NumFDs))
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for name := range c.latest {
		if _, ok := fresh[name]; !ok {
			c.cpuPercent.DeleteLabelValues(name)
			c.memoryMB.DeleteLabelValues(name)
			c.numThreads.DeleteLabelValues(name)
			c.numFDs.DeleteLabelValues(name)
		}
	}
	c.latest = fresh
}

// Latest returns the most recent sample for name.
func (c *ResourceCollector) Latest(name string) (ResourceSample, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.latest[name]
	return s, ok
}

func sample(name string, pid int32, at time.Time) (ResourceSample, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return ResourceSample{}, fmt.Errorf("failed to create process handle: %w", err)
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return ResourceSample{}, fmt.Errorf("failed to get memory info: %w", err)
	}
	cpu, err := proc.CPUPercent()
	if err != nil {
		cpu = 0
	}
	threads, err := proc.NumThreads()
	if err != nil {
		threads = 0
	}
	s := ResourceSample{
		PID:        pid,
		Name:       name,
		CPUPercent: cpu,
		MemoryMB:   float64(mem.RSS) / 1024 / 1024,
		NumThreads: threads,
		Timestamp:  at,
	}
	if runtime.GOOS != "windows" {
		if fds, err := proc.NumFDs(); err == nil {
			s.NumFDs = fds
		}
	}
	return s, nil
}
