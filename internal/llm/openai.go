package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/decision"
	"github.com/wardenhq/warden/internal/events"
	"github.com/wardenhq/warden/internal/request"
	"github.com/wardenhq/warden/internal/rulebook"
)

// retryBackoff is slept between the first failed attempt and the single
// retry.
const retryBackoff = 100 * time.Millisecond

// OpenAI is a Gateway backed by any OpenAI-compatible chat completion
// endpoint (Ollama, vLLM, the hosted API). The SDK's own retries are
// disabled; this layer does exactly one retry so the judge deadline stays
// predictable.
type OpenAI struct {
	client openai.Client
	cfg    config.LLMConfig

	sleep func(time.Duration)
}

var _ Gateway = (*OpenAI)(nil)

func NewOpenAI(cfg config.LLMConfig) *OpenAI {
	return &OpenAI{
		client: openai.NewClient(
			option.WithBaseURL(cfg.BaseURL),
			option.WithAPIKey(cfg.APIKey),
			option.WithMaxRetries(0),
		),
		cfg:   cfg,
		sleep: time.Sleep,
	}
}

// JudgeRequest classifies a single request under the judge timeout.
func (o *OpenAI) JudgeRequest(ctx context.Context, p *request.Payload, rb *rulebook.Rulebook) (decision.Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.JudgeTimeout())
	defer cancel()

	raw, err := o.complete(ctx, judgePrompt(p, rb), o.cfg.JudgeMaxTokens, o.cfg.JudgeTemperature)
	if err != nil {
		return decision.Decision{}, err
	}
	return parseJudgeResponse(raw)
}

// LearnRules asks for rulebook mutations under the learner timeout, which is
// far more generous than the judge's.
func (o *OpenAI) LearnRules(ctx context.Context, rb *rulebook.Rulebook, flagged []events.Entry) (decision.LearnerOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.LearnerTimeout())
	defer cancel()

	raw, err := o.complete(ctx, learnerPrompt(flagged, rb), o.cfg.LearnerMaxTokens, o.cfg.LearnerTemperature)
	if err != nil {
		return decision.LearnerOutput{}, err
	}
	return parseLearnerResponse(raw)
}

// HealthCheck verifies the backend answers at all.
func (o *OpenAI) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := o.client.Models.List(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// complete issues one chat completion, retrying once after a short backoff.
// A context deadline already expired is not retried.
func (o *OpenAI) complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	raw, err := o.attempt(ctx, prompt, maxTokens, temperature)
	if err == nil {
		return raw, nil
	}
	if ctx.Err() != nil {
		return "", classify(ctx, err)
	}

	log.Warn().Err(err).Msg("llm call failed, retrying once")
	o.sleep(retryBackoff)

	raw, err = o.attempt(ctx, prompt, maxTokens, temperature)
	if err != nil {
		return "", classify(ctx, err)
	}
	return raw, nil
}

func (o *OpenAI) attempt(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrParse)
	}
	return resp.Choices[0].Message.Content, nil
}

// classify maps raw SDK errors onto the sentinel the Judge switches on.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, ErrParse) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}
