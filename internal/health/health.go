// Package health reports the health of walletd's dependencies.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	jsoniter "github.com/json-iterator/go"

	"github.com/matrixise/walletd/internal/blockchain"
	"github.com/matrixise/walletd/internal/scheduler"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EndpointReporter reports RPC endpoint health per chain.
type EndpointReporter interface {
	Health() []blockchain.EndpointHealth
}

// Pinger checks connectivity to a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// JobReporter exposes the last run of a periodic job.
type JobReporter interface {
	LastStatus() scheduler.RunStatus
	ExpectedInterval() time.Duration
}

// Checker performs health checks on application dependencies
type Checker struct {
	rpc    EndpointReporter
	store  Pinger
	warmup JobReporter
	clock  clockwork.Clock
	start  time.Time
}

// Option configures a Checker.
type Option func(*Checker)

// WithStore adds the audit store check. Without it the check is skipped.
func WithStore(p Pinger) Option {
	return func(c *Checker) { c.store = p }
}

// WithWarmup adds the price warm-up check.
func WithWarmup(j JobReporter) Option {
	return func(c *Checker) { c.warmup = j }
}

// WithClock sets the clock used for uptime and staleness.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Checker) { c.clock = clock }
}

// NewChecker creates a new health checker
func NewChecker(rpc EndpointReporter, opts ...Option) *Checker {
	c := &Checker{rpc: rpc, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(c)
	}
	c.start = c.clock.Now()
	return c
}

// CheckStatus represents the health status of a component
type CheckStatus string

const (
	StatusOK       CheckStatus = "ok"
	StatusDegraded CheckStatus = "degraded"
	StatusError    CheckStatus = "error"
)

// HealthResponse is the JSON response structure
type HealthResponse struct {
	Status    CheckStatus            `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckDetail `json:"checks"`
	Uptime    string                 `json:"uptime,omitempty"`
}

// CheckDetail contains details about a specific health check
type CheckDetail struct {
	Status  CheckStatus `json:"status"`
	Message string      `json:"message,omitempty"`
}

// Check performs all health checks and returns the aggregated status.
// Only a failing store or a chain with no healthy endpoint is an error.
func (c *Checker) Check(ctx context.Context) HealthResponse {
	checks := make(map[string]CheckDetail)
	overall := StatusOK

	merge := func(name string, d CheckDetail, fatal bool) {
		checks[name] = d
		switch {
		case d.Status == StatusOK:
		case fatal && d.Status == StatusError:
			overall = StatusError
		case overall == StatusOK:
			overall = StatusDegraded
		}
	}

	merge("rpc_endpoints", c.checkRPC(), true)
	if c.store != nil {
		merge("database", c.checkDatabase(ctx), true)
	}
	if c.warmup != nil {
		merge("price_warmup", c.checkWarmup(), false)
	}

	now := c.clock.Now()
	return HealthResponse{
		Status:    overall,
		Timestamp: now.UTC(),
		Checks:    checks,
		Uptime:    now.Sub(c.start).Round(time.Second).String(),
	}
}

// checkDatabase verifies PostgreSQL connectivity
func (c *Checker) checkDatabase(ctx context.Context) CheckDetail {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.store.Ping(ctx); err != nil {
		slog.Error("Health check: database ping failed", "error", err)
		return CheckDetail{
			Status:  StatusError,
			Message: "database unreachable: " + err.Error(),
		}
	}

	return CheckDetail{
		Status:  StatusOK,
		Message: "database connection healthy",
	}
}

// checkRPC reports an error when some chain has no usable endpoint, and
// degraded when endpoints are cooling down.
func (c *Checker) checkRPC() CheckDetail {
	chains := c.rpc.Health()
	if len(chains) == 0 {
		return CheckDetail{Status: StatusError, Message: "no RPC endpoints configured"}
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i].ChainID < chains[j].ChainID })

	var healthy, total int
	var down []uint64
	for _, ch := range chains {
		healthy += ch.Healthy
		total += ch.Total
		if ch.Healthy == 0 {
			down = append(down, ch.ChainID)
		}
	}

	if len(down) > 0 {
		slog.Error("Health check: chains without healthy RPC endpoints", "chain_ids", down)
		return CheckDetail{
			Status:  StatusError,
			Message: fmt.Sprintf("no healthy RPC endpoints for chains %v", down),
		}
	}
	if healthy == total {
		return CheckDetail{
			Status:  StatusOK,
			Message: fmt.Sprintf("all %d RPC endpoints healthy across %d chains", total, len(chains)),
		}
	}
	return CheckDetail{
		Status:  StatusDegraded,
		Message: fmt.Sprintf("%d/%d RPC endpoints healthy", healthy, total),
	}
}

// checkWarmup verifies the price warm-up runs at its expected interval
func (c *Checker) checkWarmup() CheckDetail {
	last := c.warmup.LastStatus()

	if last.At.IsZero() {
		return CheckDetail{
			Status:  StatusOK,
			Message: "price warm-up not yet executed (startup)",
		}
	}

	if last.Err != nil {
		return CheckDetail{
			Status:  StatusDegraded,
			Message: "last price warm-up failed: " + last.Err.Error(),
		}
	}

	// Allow a 2x interval grace period.
	interval := c.warmup.ExpectedInterval()
	since := c.clock.Since(last.At)
	if since > 2*interval {
		return CheckDetail{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("no price warm-up in %s (expected every %s)", since.Round(time.Second), interval),
		}
	}

	return CheckDetail{
		Status:  StatusOK,
		Message: fmt.Sprintf("prices warmed %s ago", since.Round(time.Second)),
	}
}

// Handler returns an http.HandlerFunc for the health endpoint
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		status := c.Check(r.Context())

		statusCode := http.StatusOK
		if status.Status == StatusError {
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)

		if err := json.NewEncoder(w).Encode(status); err != nil {
			slog.Error("Failed to encode health response", "error", err)
		}
	}
}
