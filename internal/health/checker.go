// Package health tracks the state of the service's dependencies and serves
// it on the readiness endpoint.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// Probe reports whether one dependency is usable.
type Probe func(ctx context.Context) error

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(name string, success bool)

// Status is the last known state of one probe.
type Status struct {
	Healthy   bool      `json:"healthy"`
	FailCount int       `json:"failCount"`
	LastError string    `json:"lastError,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Checker runs registered probes on an interval. A probe is reported
// degraded once it has failed FailThreshold times in a row.
type Checker struct {
	mu        sync.Mutex
	probes    map[string]Probe
	status    map[string]Status
	cfg       Config
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// New creates a new Checker.
func New(cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	return &Checker{
		probes: make(map[string]Probe),
		status: make(map[string]Status),
		cfg:    cfg,
		logger: logger,
	}
}

// Add registers a named probe. Probes start out healthy.
func (h *Checker) Add(name string, p Probe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes[name] = p
	h.status[name] = Status{Healthy: true}
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Start runs the check loop until ctx is done.
func (h *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	h.CheckAll(ctx)
	for {
		select {
		case <-ticker.C:
			h.CheckAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// CheckAll runs every probe once, concurrently.
func (h *Checker) CheckAll(ctx context.Context) {
	h.mu.Lock()
	probes := make(map[string]Probe, len(h.probes))
	for name, p := range h.probes {
		probes[name] = p
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for name, p := range probes {
		wg.Add(1)
		go func(name string, p Probe) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
			err := p(probeCtx)
			cancel()

			if h.onMetrics != nil {
				h.onMetrics(name, err == nil)
			}
			h.record(name, err)
		}(name, p)
	}
	wg.Wait()
}

func (h *Checker) record(name string, err error) {
	h.mu.Lock()
	prev := h.status[name]
	st := Status{CheckedAt: time.Now().UTC()}
	if err == nil {
		st.Healthy = true
	} else {
		st.FailCount = prev.FailCount + 1
		st.LastError = err.Error()
		st.Healthy = st.FailCount < h.cfg.FailThreshold
	}
	h.status[name] = st
	h.mu.Unlock()

	switch {
	case st.Healthy && !prev.Healthy:
		h.logger.Info("health: recovered", zap.String("probe", name))
	case !st.Healthy && st.FailCount == h.cfg.FailThreshold:
		h.logger.Warn("health: degraded",
			zap.String("probe", name),
			zap.Int("fail_count", st.FailCount),
			zap.Error(err),
		)
	}
}

// Snapshot returns the current status of every probe and whether all of
// them are healthy.
func (h *Checker) Snapshot() (map[string]Status, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]Status, len(h.status))
	ok := true
	for name, st := range h.status {
		out[name] = st
		ok = ok && st.Healthy
	}
	return out, ok
}

// Handler serves the snapshot: 200 when every probe is healthy, 503 otherwise.
func (h *Checker) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		checks, ok := h.Snapshot()
		if !ok {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": checks})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
	}
}
