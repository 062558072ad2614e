// Package probe performs reachability checks against app tile URLs. A
// probe only proves network reachability: any HTTP response counts as
// online, mirroring an opaque cross-origin fetch where status codes are
// invisible. A timeout or transport error resolves deterministically as
// offline.
package probe

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// DefaultTimeout is the hard cancellation for one probe.
const DefaultTimeout = 3 * time.Second

// Result is one probe outcome. RTT is only meaningful when Online.
type Result struct {
	Online bool          `json:"online"`
	RTT    time.Duration `json:"-"`
	RTTms  int64         `json:"rttMs"`
}

// Prober checks URLs with a hard per-probe timeout.
type Prober struct {
	timeout time.Duration
	client  *http.Client
}

// New returns a prober. A non-positive timeout falls back to the default.
func New(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{
		timeout: timeout,
		client: &http.Client{
			// The per-probe context enforces the deadline; the client
			// timeout is a backstop.
			Timeout: timeout,
		},
	}
}

// Check probes a single URL. Exceeding the timeout aborts the underlying
// request and resolves as offline.
func (p *Prober) Check(ctx context.Context, url string) Result {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}
	}
	req.Header.Set("Cache-Control", "no-store")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}
	}
	_ = resp.Body.Close()

	rtt := time.Since(start)
	return Result{Online: true, RTT: rtt, RTTms: rtt.Milliseconds()}
}

// Sweep probes every target concurrently and returns the outcome per id.
func (p *Prober) Sweep(ctx context.Context, targets map[int64]string) map[int64]Result {
	out := make(map[int64]Result, len(targets))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for id, url := range targets {
		wg.Add(1)
		go func(id int64, url string) {
			defer wg.Done()
			res := p.Check(ctx, url)
			mu.Lock()
			out[id] = res
			mu.Unlock()
		}(id, url)
	}
	wg.Wait()
	return out
}
