package llm

import (
	"context"
	"sync/atomic"

	"github.com/wardenhq/warden/internal/decision"
	"github.com/wardenhq/warden/internal/events"
	"github.com/wardenhq/warden/internal/request"
	"github.com/wardenhq/warden/internal/rulebook"
)

// Mock is a scriptable Gateway for tests.
type Mock struct {
	JudgeFn  func(ctx context.Context, p *request.Payload, rb *rulebook.Rulebook) (decision.Decision, error)
	LearnFn  func(ctx context.Context, rb *rulebook.Rulebook, flagged []events.Entry) (decision.LearnerOutput, error)
	HealthFn func(ctx context.Context) error

	judgeCalls  atomic.Int64
	learnCalls  atomic.Int64
	healthCalls atomic.Int64
}

var _ Gateway = (*Mock)(nil)

func (m *Mock) JudgeRequest(ctx context.Context, p *request.Payload, rb *rulebook.Rulebook) (decision.Decision, error) {
	m.judgeCalls.Add(1)
	if m.JudgeFn != nil {
		return m.JudgeFn(ctx, p, rb)
	}
	return decision.Allow(0.9), nil
}

func (m *Mock) LearnRules(ctx context.Context, rb *rulebook.Rulebook, flagged []events.Entry) (decision.LearnerOutput, error) {
	m.learnCalls.Add(1)
	if m.LearnFn != nil {
		return m.LearnFn(ctx, rb, flagged)
	}
	return decision.LearnerOutput{}, nil
}

func (m *Mock) HealthCheck(ctx context.Context) error {
	m.healthCalls.Add(1)
	if m.HealthFn != nil {
		return m.HealthFn(ctx)
	}
	return nil
}

func (m *Mock) JudgeCalls() int64  { return m.judgeCalls.Load() }
func (m *Mock) LearnCalls() int64  { return m.learnCalls.Load() }
func (m *Mock) HealthCalls() int64 { return m.healthCalls.Load() }
