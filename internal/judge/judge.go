// Package judge is the per-request decision pipeline: fingerprint, verdict
// cache, LLM classification, fail-open, audit.
package judge

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wardenhq/warden/internal/cache"
	"github.com/wardenhq/warden/internal/decision"
	"github.com/wardenhq/warden/internal/events"
	"github.com/wardenhq/warden/internal/llm"
	"github.com/wardenhq/warden/internal/metrics"
	"github.com/wardenhq/warden/internal/request"
	"github.com/wardenhq/warden/internal/rulebook"
)

// Judge evaluates normalized requests. The cache and recorder are optional
// in the sense that their failures degrade behavior (slower, lossier audit)
// but never fail a request.
type Judge struct {
	gateway  llm.Gateway
	rules    *rulebook.Store
	cache    cache.VerdictCache
	recorder *events.Recorder
	ttl      time.Duration

	metrics Metrics
}

func New(gateway llm.Gateway, rules *rulebook.Store, vc cache.VerdictCache, recorder *events.Recorder, ttl time.Duration) *Judge {
	return &Judge{
		gateway:  gateway,
		rules:    rules,
		cache:    vc,
		recorder: recorder,
		ttl:      ttl,
	}
}

// Metrics exposes the lifetime counters.
func (j *Judge) Metrics() MetricsSnapshot {
	return j.metrics.Snapshot()
}

// Evaluate returns a verdict for the payload. It never returns an error:
// when evaluation itself fails the request is allowed at zero confidence,
// and that verdict is never cached. Every call, cached or not, produces an
// audit record.
func (j *Judge) Evaluate(ctx context.Context, p *request.Payload) decision.Decision {
	j.metrics.totalRequests.Add(1)
	fingerprint := p.Fingerprint()

	if d, ok := j.cacheGet(ctx, fingerprint); ok {
		j.metrics.cacheHits.Add(1)
		metrics.CacheHits.Inc()
		j.finish(p, fingerprint, d)
		return d
	}
	j.metrics.cacheMisses.Add(1)
	metrics.CacheMisses.Inc()

	d, err := j.gateway.JudgeRequest(ctx, p, j.rules.Snapshot())
	if err != nil {
		d = j.failOpen(p, err)
		j.finish(p, fingerprint, d)
		return d
	}

	j.cachePut(ctx, fingerprint, d)
	j.finish(p, fingerprint, d)
	return d
}

// failOpen classifies the failure and allows the request at zero confidence.
func (j *Judge) failOpen(p *request.Payload, err error) decision.Decision {
	switch {
	case errors.Is(err, llm.ErrTimeout):
		j.metrics.llmTimeouts.Add(1)
		metrics.LLMTimeouts.Inc()
	default:
		j.metrics.llmErrors.Add(1)
		metrics.LLMErrors.Inc()
	}
	j.metrics.failOpenCount.Add(1)
	metrics.FailOpen.Inc()

	log.Warn().Err(err).
		Str("method", p.Method).
		Str("path", p.Path).
		Msg("evaluation failed, failing open")

	return decision.FailOpen()
}

func (j *Judge) cacheGet(ctx context.Context, fingerprint string) (decision.Decision, bool) {
	if j.cache == nil {
		return decision.Decision{}, false
	}
	d, ok, err := j.cache.Get(ctx, fingerprint)
	if err != nil {
		// Unreachable or corrupt cache degrades to a miss.
		log.Warn().Err(err).Msg("verdict cache read failed")
		return decision.Decision{}, false
	}
	return d, ok
}

func (j *Judge) cachePut(ctx context.Context, fingerprint string, d decision.Decision) {
	if j.cache == nil {
		return
	}
	if err := j.cache.Put(ctx, fingerprint, d, j.ttl); err != nil {
		log.Warn().Err(err).Msg("verdict cache write failed")
	}
}

// finish records the audit entry and the decision metric for a completed
// evaluation.
func (j *Judge) finish(p *request.Payload, fingerprint string, d decision.Decision) {
	j.metrics.countDecision(d.Verdict)
	metrics.Decisions.WithLabelValues(string(d.Verdict)).Inc()

	if j.recorder == nil {
		return
	}
	j.recorder.Record(events.Entry{
		Timestamp:   time.Now().Unix(),
		Method:      p.Method,
		Path:        p.Path,
		PayloadHash: fingerprint,
		Decision:    d.Verdict,
		Confidence:  d.Confidence,
		Reason:      d.Reason,
		IPAddr:      p.SourceIP,
		UserAgent:   p.UserAgent,
	})
}
