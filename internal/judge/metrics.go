package judge

import (
	"sync/atomic"

	"github.com/wardenhq/warden/internal/decision"
)

// Metrics are the Judge's lifetime counters, read without locking from the
// health endpoint.
type Metrics struct {
	totalRequests atomic.Uint64
	cacheHits     atomic.Uint64
	cacheMisses   atomic.Uint64
	llmTimeouts   atomic.Uint64
	llmErrors     atomic.Uint64
	failOpenCount atomic.Uint64
	allows        atomic.Uint64
	flags         atomic.Uint64
	blocks        atomic.Uint64
}

func (m *Metrics) countDecision(t decision.Type) {
	switch t {
	case decision.TypeAllow:
		m.allows.Add(1)
	case decision.TypeFlag:
		m.flags.Add(1)
	case decision.TypeBlock:
		m.blocks.Add(1)
	}
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	TotalRequests uint64 `json:"total_requests"`
	CacheHits     uint64 `json:"cache_hits"`
	CacheMisses   uint64 `json:"cache_misses"`
	LLMTimeouts   uint64 `json:"llm_timeouts"`
	LLMErrors     uint64 `json:"llm_errors"`
	FailOpenCount uint64 `json:"fail_open_count"`
	Allows        uint64 `json:"allows"`
	Flags         uint64 `json:"flags"`
	Blocks        uint64 `json:"blocks"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		TotalRequests: m.totalRequests.Load(),
		CacheHits:     m.cacheHits.Load(),
		CacheMisses:   m.cacheMisses.Load(),
		LLMTimeouts:   m.llmTimeouts.Load(),
		LLMErrors:     m.llmErrors.Load(),
		FailOpenCount: m.failOpenCount.Load(),
		Allows:        m.allows.Load(),
		Flags:         m.flags.Load(),
		Blocks:        m.blocks.Load(),
	}
}
