package client

import "time"

// Status is the launcher's observable snapshot.
type Status struct {
	State   string    `json:"state"`
	Status  string    `json:"status"`
	Ready   bool      `json:"ready"`
	Robots  int       `json:"robots"`
	Cameras int       `json:"cameras"`
	Error   string    `json:"error,omitempty"`
	Seq     uint64    `json:"seq"`
	At      time.Time `json:"at"`
}

// Terminal reports whether the launcher has finished orchestrating.
func (s Status) Terminal() bool { return s.State == "ready" || s.State == "failed" }

// Resources holds the latest CPU and memory sample of a process.
type Resources struct {
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Process describes one process spawned by the launcher.
type Process struct {
	Name      string     `json:"name"`
	Command   string     `json:"command"`
	PID       int        `json:"pid"`
	StartedAt time.Time  `json:"started_at"`
	Alive     bool       `json:"alive"`
	ExitedAt  time.Time  `json:"exited_at,omitzero"`
	ExitError string     `json:"exit_error,omitempty"`
	Resources *Resources `json:"resources,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
