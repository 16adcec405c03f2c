// Package history exports launch events (state transitions and dashboard
// opens) to external analytics sinks.
package history

import (
	"context"
	"errors"
	"io"
	"time"
)

// EventType defines the kind of launch event.
type EventType string

const (
	EventTransition EventType = "transition"
	EventOpen       EventType = "open"
)

// Event is one launch event. RunID groups the events of one launcher run.
type Event struct {
	RunID      string    `json:"run_id"`
	Type       EventType `json:"type"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to"`
	Status     string    `json:"status"`
	Ready      bool      `json:"ready"`
	Robots     int       `json:"robots"`
	Cameras    int       `json:"cameras"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Multi sends each event to every sink in order. Failures do not stop
// delivery to the remaining sinks; they are joined into the returned error.
type Multi []Sink

func (m Multi) Send(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that implements io.Closer.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
