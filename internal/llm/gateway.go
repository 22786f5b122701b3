// Package llm talks to the model backend. It owns prompt construction,
// the single retry on transient failures, and extraction of structured
// output from whatever prose the model wraps around it.
package llm

import (
	"context"

	"github.com/wardenhq/warden/internal/decision"
	"github.com/wardenhq/warden/internal/events"
	"github.com/wardenhq/warden/internal/request"
	"github.com/wardenhq/warden/internal/rulebook"
)

// Gateway is the model-backend contract. JudgeRequest classifies one
// request against the current rulebook; LearnRules proposes rulebook
// mutations from a batch of flagged events.
type Gateway interface {
	JudgeRequest(ctx context.Context, p *request.Payload, rb *rulebook.Rulebook) (decision.Decision, error)
	LearnRules(ctx context.Context, rb *rulebook.Rulebook, flagged []events.Entry) (decision.LearnerOutput, error)
	HealthCheck(ctx context.Context) error
}
