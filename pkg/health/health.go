// Package health serves the liveness and readiness probes of the storefront.
//
// Registered checks run in background goroutines. A check flips to failing
// only after FailAfter consecutive errors and back to passing after
// RecoverAfter consecutive successes, so a single slow ping of the database
// does not take the instance out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// CheckFunc reports nil when the checked dependency is usable.
type CheckFunc func(ctx context.Context) error

// Kind selects the probe a check contributes to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

func (k Kind) String() string {
	if k == Readiness {
		return "readiness"
	}
	return "liveness"
}

// Check describes a registered check.
type Check struct {
	Name    string
	Timeout time.Duration
	Func    CheckFunc

	// FailAfter defaults to 3, RecoverAfter to 1.
	FailAfter    int
	RecoverAfter int
}

// probe is the runtime state of a Check. tick is only ever called from the
// goroutine owning the probe; passing and lastErr are read by handlers.
type probe struct {
	Check
	kind Kind

	passing atomic.Bool
	lastErr atomic.Pointer[error]

	fails int
	oks   int
}

func newProbe(kind Kind, c Check) *probe {
	if c.FailAfter <= 0 {
		c.FailAfter = 3
	}
	if c.RecoverAfter <= 0 {
		c.RecoverAfter = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	p := &probe{Check: c, kind: kind}
	p.passing.Store(true)
	return p
}

func (p *probe) err() error {
	if e := p.lastErr.Load(); e != nil {
		return *e
	}
	return nil
}

// tick runs the check once and returns true when the probe changed state.
func (p *probe) tick(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	err := p.Func(ctx)
	p.lastErr.Store(&err)

	was := p.passing.Load()
	if err != nil {
		p.oks = 0
		p.fails++
		if p.fails >= p.FailAfter {
			p.passing.Store(false)
		}
	} else {
		p.fails = 0
		p.oks++
		if p.oks >= p.RecoverAfter {
			p.passing.Store(true)
		}
	}
	return was != p.passing.Load()
}

// Health owns the registered probes and the manual readiness switch.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	probes []*probe
	cancel context.CancelFunc
}

// New returns a Health that reports not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// Register adds a check to the given probe. Checks must be registered
// before Start.
func (h *Health) Register(kind Kind, c Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, newProbe(kind, c))
}

// AddLivenessCheck registers a liveness check with default thresholds.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.Register(Liveness, Check{Name: name, Timeout: timeout, Func: fn})
}

// AddReadinessCheck registers a readiness check with default thresholds.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.Register(Readiness, Check{Name: name, Timeout: timeout, Func: fn})
}

// Start runs every registered check immediately and then once per interval
// until Stop or ctx cancellation.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	h.cancel = cancel
	probes := append([]*probe(nil), h.probes...)
	h.mu.Unlock()

	for _, p := range probes {
		go h.loop(ctx, p, interval)
	}
}

func (h *Health) loop(ctx context.Context, p *probe, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if p.tick(ctx) {
			lg := zctx.From(ctx).With(
				zap.String("check", p.Name),
				zap.Stringer("probe", p.kind),
			)
			if p.passing.Load() {
				lg.Info("Health check recovered")
			} else {
				lg.Warn("Health check failing", zap.Error(p.err()))
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels the check goroutines. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness switch. The server sets it once
// storage is connected and clears it when shutdown begins.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports the switch together with every readiness check.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(h.failures(Readiness)) == 0
}

func (h *Health) failures(kind Kind) map[string]string {
	h.mu.RLock()
	probes := append([]*probe(nil), h.probes...)
	h.mu.RUnlock()

	out := make(map[string]string)
	for _, p := range probes {
		if p.kind != kind || p.passing.Load() {
			continue
		}
		msg := "check is failing"
		if err := p.err(); err != nil {
			msg = err.Error()
		}
		out[p.Name] = msg
	}
	return out
}

// Names lists registered checks of the given kind in name order.
func (h *Health) Names(kind Kind) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var names []string
	for _, p := range h.probes {
		if p.kind == kind {
			names = append(names, p.Name)
		}
	}
	sort.Strings(names)
	return names
}

type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	respond(w, h.failures(Liveness))
}

// ReadyEndpoint serves /readyz. The manual switch is reported under the
// "_readiness" key.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := h.failures(Readiness)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	respond(w, failures)
}

func respond(w http.ResponseWriter, failures map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	body := report{Status: "ok"}
	status := http.StatusOK
	if len(failures) > 0 {
		body.Status = "unhealthy"
		body.Checks = failures
		status = http.StatusServiceUnavailable
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
