// Package metrics registers the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Decisions counts verdicts by type, cached and fresh alike.
	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "judge",
		Name:      "decisions_total",
		Help:      "Verdicts returned, by decision type.",
	}, []string{"decision"})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Verdict cache hits.",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Verdict cache misses.",
	})

	LLMTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "llm",
		Name:      "timeouts_total",
		Help:      "Judge evaluations that hit the LLM deadline.",
	})

	LLMErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "llm",
		Name:      "errors_total",
		Help:      "Judge evaluations that failed on transport or parse errors.",
	})

	FailOpen = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "judge",
		Name:      "fail_open_total",
		Help:      "Requests allowed because evaluation itself failed.",
	})

	AuditDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "audit",
		Name:      "dropped_total",
		Help:      "Audit entries dropped because the queue was full.",
	})

	LearnerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "learner",
		Name:      "runs_total",
		Help:      "Learner batch runs, by outcome.",
	}, []string{"outcome"})

	RulebookVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "warden",
		Subsystem: "rulebook",
		Name:      "version",
		Help:      "Version of the rulebook snapshot currently in use.",
	})

	ProxyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "proxy",
		Name:      "requests_total",
		Help:      "Proxied requests, by outcome (forwarded, blocked, upstream_error).",
	}, []string{"outcome"})
)
