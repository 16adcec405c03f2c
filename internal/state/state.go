// Package state holds the launcher's single observable snapshot and delivers
// every change, in order, to subscribers.
package state

import (
	"sync"
	"time"
)

// Snapshot is the read-only view the launcher publishes to its views.
type Snapshot struct {
	State   string    `json:"state"`
	Status  string    `json:"status"`
	Ready   bool      `json:"ready"`
	Robots  int       `json:"robots"`
	Cameras int       `json:"cameras"`
	Err     string    `json:"error,omitempty"`
	Seq     uint64    `json:"seq"`
	At      time.Time `json:"at"`
}

// Terminal reports whether s is one of the orchestrator's final states.
func (s Snapshot) Terminal() bool { return s.State == "ready" || s.State == "failed" }

// Store owns the current snapshot. Updates are applied under one lock and
// get a strictly increasing sequence number; each subscriber receives every
// snapshot in sequence order through an unbounded queue, so a slow reader
// never blocks the writer and never loses an intermediate update.
type Store struct {
	mu     sync.Mutex
	cur    Snapshot
	subs   map[*sub]struct{}
	closed bool
}

// New returns a store holding initial (Seq and At are assigned).
func New(initial Snapshot) *Store {
	initial.At = time.Now()
	return &Store{cur: initial, subs: map[*sub]struct{}{}}
}

// Get returns the current snapshot.
func (s *Store) Get() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Update applies fn to a copy of the current snapshot, publishes the result
// and returns it.
func (s *Store) Update(fn func(*Snapshot)) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cur
	fn(&next)
	next.Seq = s.cur.Seq + 1
	next.At = time.Now()
	s.cur = next
	for sb := range s.subs {
		sb.push(next)
	}
	return next
}

// Subscribe returns a channel that first yields the current snapshot and
// then every later one in order. The channel is closed after cancel is
// called or the store is closed, once queued snapshots have been delivered
// (cancel drops what is still queued).
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	sb := newSub()
	s.mu.Lock()
	if s.closed {
		sb.push(s.cur)
		sb.end(false)
		s.mu.Unlock()
		go sb.pump()
		return sb.out, func() {}
	}
	sb.push(s.cur)
	s.subs[sb] = struct{}{}
	s.mu.Unlock()
	go sb.pump()

	var once sync.Once
	return sb.out, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, sb)
			s.mu.Unlock()
			sb.end(true)
		})
	}
}

// Close ends all subscriptions after their queued snapshots are delivered.
// Later updates still change the snapshot but are not delivered.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for sb := range s.subs {
		sb.end(false)
	}
	s.subs = map[*sub]struct{}{}
}

type sub struct {
	mu      sync.Mutex
	queue   []Snapshot
	ended   bool
	drop    bool
	wake    chan struct{}
	out     chan Snapshot
	stopped chan struct{}
}

func newSub() *sub {
	return &sub{wake: make(chan struct{}, 1), out: make(chan Snapshot), stopped: make(chan struct{})}
}

func (sb *sub) push(s Snapshot) {
	sb.mu.Lock()
	if !sb.ended {
		sb.queue = append(sb.queue, s)
	}
	sb.mu.Unlock()
	sb.signal()
}

func (sb *sub) end(drop bool) {
	sb.mu.Lock()
	if !sb.ended {
		sb.ended = true
		sb.drop = drop
		if drop {
			close(sb.stopped)
		}
	}
	sb.mu.Unlock()
	sb.signal()
}

func (sb *sub) signal() {
	select {
	case sb.wake <- struct{}{}:
	default:
	}
}

func (sb *sub) pump() {
	defer close(sb.out)
	for {
		sb.mu.Lock()
		if sb.drop {
			sb.mu.Unlock()
			return
		}
		if len(sb.queue) == 0 {
			ended := sb.ended
			sb.mu.Unlock()
			if ended {
				return
			}
			<-sb.wake
			continue
		}
		next := sb.queue[0]
		sb.queue = sb.queue[1:]
		sb.mu.Unlock()

		select {
		case sb.out <- next:
		case <-sb.stopped:
			return
		}
	}
}
