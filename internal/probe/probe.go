// Package probe implements bounded-timeout readiness checks against the
// backend and the dashboard proxy.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cevalogistics/launcher/internal/metrics"
)

// DefaultMaxBody caps how much of a probe response is retained.
const DefaultMaxBody = 1 << 20

// ErrUnexpectedStatus is returned when the target answers with a non-200 status.
var ErrUnexpectedStatus = errors.New("unexpected status")

// Prober is a strategy that checks whether a service is reachable.
// It must be safe for concurrent use.
type Prober interface {
	// Probe performs a single check. A nil error means reachable.
	Probe(ctx context.Context) (Result, error)
	// Describe returns a human-readable description of the probe target.
	Describe() string
}

// Result carries what a successful (or non-200) probe observed.
type Result struct {
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// HTTPProber issues GET requests against URL with a per-probe timeout.
type HTTPProber struct {
	Name    string // metrics label, e.g. "backend"
	URL     string
	Timeout time.Duration
	Client  *http.Client
	MaxBody int64
}

// NewHTTP returns an HTTPProber using a dedicated client.
func NewHTTP(name, url string, timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		Name:    name,
		URL:     url,
		Timeout: timeout,
		Client:  &http.Client{},
		MaxBody: DefaultMaxBody,
	}
}

// WithTimeout returns a copy of p that uses timeout for each probe.
func (p *HTTPProber) WithTimeout(timeout time.Duration) *HTTPProber {
	cp := *p
	cp.Timeout = timeout
	return &cp
}

func (p *HTTPProber) Probe(ctx context.Context) (Result, error) {
	start := time.Now()
	res, err := p.do(ctx)
	res.Duration = time.Since(start)
	metrics.ObserveProbe(p.Name, err == nil, res.Duration.Seconds())
	return res, err
}

func (p *HTTPProber) do(ctx context.Context) (Result, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return Result{}, err
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	limit := p.MaxBody
	if limit <= 0 {
		limit = DefaultMaxBody
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	res := Result{StatusCode: resp.StatusCode, Body: body}
	if err != nil {
		return res, fmt.Errorf("read probe body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return res, fmt.Errorf("%w %d from %s", ErrUnexpectedStatus, resp.StatusCode, p.URL)
	}
	return res, nil
}

func (p *HTTPProber) Describe() string { return "http:" + p.URL }
