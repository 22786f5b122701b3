package server

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wardenhq/warden/internal/llm"
	"github.com/wardenhq/warden/internal/rulebook"
)

const (
	healthCheckInterval = 30 * time.Second

	// freshnessWindow is how long a successful backend check counts toward
	// /health before it goes stale.
	freshnessWindow = 2 * time.Minute
)

// HealthTracker pings the model backend in the background and remembers
// when it last answered. /health reports healthy only while a success is
// fresh and the rulebook is loaded.
type HealthTracker struct {
	gateway llm.Gateway
	rules   *rulebook.Store

	lastSuccess atomic.Int64 // Unix seconds, 0 = never

	cancel context.CancelFunc
	done   chan struct{}
	now    func() time.Time
}

func NewHealthTracker(gateway llm.Gateway, rules *rulebook.Store) *HealthTracker {
	return &HealthTracker{
		gateway: gateway,
		rules:   rules,
		done:    make(chan struct{}),
		now:     time.Now,
	}
}

// Start checks immediately, then on an interval until Stop.
func (h *HealthTracker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	go func() {
		defer close(h.done)

		h.check(ctx)
		ticker := time.NewTicker(healthCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.check(ctx)
			}
		}
	}()
}

func (h *HealthTracker) Stop() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
}

func (h *HealthTracker) check(ctx context.Context) {
	if err := h.gateway.HealthCheck(ctx); err != nil {
		log.Warn().Err(err).Msg("llm backend health check failed")
		return
	}
	h.lastSuccess.Store(h.now().Unix())
}

// Healthy reports whether the rulebook is loaded and the backend answered
// within the freshness window.
func (h *HealthTracker) Healthy() bool {
	if !h.rules.Loaded() {
		return false
	}
	last := h.lastSuccess.Load()
	if last == 0 {
		return false
	}
	return h.now().Sub(time.Unix(last, 0)) <= freshnessWindow
}

// markHealthy is a test hook.
func (h *HealthTracker) markHealthy() {
	h.lastSuccess.Store(h.now().Unix())
}
