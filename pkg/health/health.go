// Package health serves liveness and readiness probes.
//
// Every registered check runs on its own ticker. A check flips to unhealthy
// after FailureThreshold consecutive failures and back after one success, so
// a single slow ping does not take the instance out of rotation.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"golang.org/x/sync/errgroup"
)

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Probe selects which endpoint a check contributes to.
type Probe int

const (
	Liveness Probe = iota
	Readiness
)

const defaultFailureThreshold = 3

// Check describes a registered health check.
type Check struct {
	Name    string
	Probe   Probe
	Timeout time.Duration
	Func    CheckFunc
	// FailureThreshold defaults to 3.
	FailureThreshold int
}

type check struct {
	Check

	healthy atomic.Bool
	lastErr atomic.Pointer[string]

	// Touched only by the goroutine running the check.
	fails int
}

func (c *check) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	if err := c.Func(ctx); err != nil {
		msg := err.Error()
		c.lastErr.Store(&msg)
		c.fails++
		if c.fails >= c.FailureThreshold {
			c.healthy.Store(false)
		}
		return
	}
	c.fails = 0
	c.lastErr.Store(nil)
	c.healthy.Store(true)
}

func (c *check) failure() (string, bool) {
	if c.healthy.Load() {
		return "", false
	}
	if msg := c.lastErr.Load(); msg != nil {
		return *msg, true
	}
	return "check is unhealthy", true
}

// Health tracks checks and the manual readiness switch. Instances start not
// ready; call SetReady(true) once initialization is complete.
type Health struct {
	ready atomic.Bool

	mu     sync.Mutex
	checks []*check
	stop   func()
}

// New returns an empty Health.
func New() *Health {
	return &Health{}
}

// Register adds a check. Checks start healthy. Register before Start.
func (h *Health) Register(c Check) {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = defaultFailureThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	hc := &check{Check: c}
	hc.healthy.Store(true)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, hc)
}

// Start runs every check immediately and then once per interval until Stop
// is called or ctx is done.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	h.mu.Lock()
	checks := slices.Clone(h.checks)
	h.stop = func() {
		cancel()
		_ = g.Wait()
	}
	h.mu.Unlock()

	for _, c := range checks {
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				c.run(ctx)
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		})
	}
}

// Stop stops the check goroutines and waits for them to exit. It is safe to
// call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	stop := h.stop
	h.stop = nil
	h.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// SetReady flips the manual readiness switch.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the instance is marked ready and every readiness
// check passes.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(h.failures(Readiness)) == 0
}

func (h *Health) failures(p Probe) map[string]string {
	h.mu.Lock()
	checks := slices.Clone(h.checks)
	h.mu.Unlock()

	failed := make(map[string]string)
	for _, c := range checks {
		if c.Probe != p {
			continue
		}
		if msg, bad := c.failure(); bad {
			failed[c.Name] = msg
		}
	}
	return failed
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, h.failures(Liveness))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failed := h.failures(Readiness)
	if !h.ready.Load() {
		failed["_readiness"] = "service is not ready"
	}
	writeStatus(w, failed)
}

// writeStatus writes {"status":"ok"} or 503 with the failing checks.
func writeStatus(w http.ResponseWriter, failed map[string]string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	status := http.StatusOK
	e.Obj(func(e *jx.Encoder) {
		if len(failed) == 0 {
			e.Field("status", func(e *jx.Encoder) { e.Str("ok") })
			return
		}
		status = http.StatusServiceUnavailable
		e.Field("status", func(e *jx.Encoder) { e.Str("unhealthy") })
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				names := make([]string, 0, len(failed))
				for name := range failed {
					names = append(names, name)
				}
				slices.Sort(names)
				for _, name := range names {
					e.Field(name, func(e *jx.Encoder) { e.Str(failed[name]) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
