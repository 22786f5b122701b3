package integration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/decision"
	"github.com/wardenhq/warden/internal/events"
	"github.com/wardenhq/warden/internal/learner"
	"github.com/wardenhq/warden/internal/llm"
)

func seedFlagged(t *testing.T, store events.Store, n int, ts int64) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := store.Append(t.Context(), events.Entry{
			Timestamp:   ts,
			Method:      "GET",
			Path:        "/admin/../etc/passwd",
			PayloadHash: "seed-hash",
			Decision:    decision.TypeFlag,
			Confidence:  0.6,
			Reason:      "path traversal probe",
		})
		require.NoError(t, err)
	}
}

func newIntegrationLearner(t *testing.T, env *TestEnvironment) *learner.Learner {
	t.Helper()

	gateway := llm.NewOpenAI(config.LLMConfig{
		BaseURL:            env.Backend.Server.URL,
		APIKey:             "test-key",
		Model:              "test-model",
		JudgeTimeoutMs:     2000,
		JudgeMaxTokens:     150,
		LearnerTimeoutMs:   5000,
		LearnerMaxTokens:   2048,
		LearnerTemperature: 0.3,
	})

	l, err := learner.New(gateway, env.EventStore, env.Rules, learner.Options{
		MarkerPath: filepath.Join(filepath.Dir(env.RulebookPath), "learner_last_run"),
		MinFlagged: 10,
	})
	require.NoError(t, err)
	return l
}

func TestLearnerAddsRuleFromFlaggedTraffic(t *testing.T) {
	env := SetupTestEnvironment(t)
	l := newIntegrationLearner(t, env)

	seedFlagged(t, env.EventStore, 10, time.Now().Add(-30*time.Minute).Unix())

	env.Backend.Respond(`{
		"new_rules": [{
			"pattern": "../",
			"threat_type": "traversal",
			"description": "directory traversal probes against /admin",
			"confidence": 0.8,
			"action": "flag"
		}],
		"weaken_rule_ids": [],
		"remove_rule_ids": [],
		"rationales": ["10 similar traversal probes"]
	}`)

	before := env.Rules.Snapshot().Version
	require.NoError(t, l.RunBatch(context.Background()))

	rb := env.Rules.Snapshot()
	assert.Equal(t, before+1, rb.Version, "publish bumps the version by exactly one")
	require.Len(t, rb.Rules, 1)
	assert.Equal(t, "../", rb.Rules[0].Pattern)
	assert.Equal(t, "llm", rb.Rules[0].CreatedBy)
}

func TestLearnerSkipsBelowThreshold(t *testing.T) {
	env := SetupTestEnvironment(t)
	l := newIntegrationLearner(t, env)

	seedFlagged(t, env.EventStore, 3, time.Now().Add(-30*time.Minute).Unix())

	before := env.Backend.Requests()
	require.NoError(t, l.RunBatch(context.Background()))

	assert.Equal(t, before, env.Backend.Requests(), "below threshold the model is not consulted")
	assert.Equal(t, int64(1), env.Rules.Snapshot().Version)
}

func TestLearnerFailureRetainsWindow(t *testing.T) {
	env := SetupTestEnvironment(t)
	l := newIntegrationLearner(t, env)

	ts := time.Now().Add(-30 * time.Minute).Unix()
	seedFlagged(t, env.EventStore, 10, ts)
	env.Backend.Fail(503)

	require.Error(t, l.RunBatch(context.Background()))
	assert.Equal(t, int64(1), env.Rules.Snapshot().Version)

	// Backend recovers: the same window is re-examined and published.
	env.Backend.Respond(`{"new_rules":[{"pattern":"../","threat_type":"traversal","description":"","confidence":0.8,"action":"flag"}],"weaken_rule_ids":[],"remove_rule_ids":[]}`)
	require.NoError(t, l.RunBatch(context.Background()))
	assert.Equal(t, int64(2), env.Rules.Snapshot().Version)
}

func TestJudgeSeesLearnerPublishedRules(t *testing.T) {
	env := SetupTestEnvironment(t)
	l := newIntegrationLearner(t, env)

	seedFlagged(t, env.EventStore, 10, time.Now().Add(-30*time.Minute).Unix())
	env.Backend.Respond(`{"new_rules":[{"pattern":"UNION SELECT","threat_type":"sqli","description":"","confidence":0.9,"action":"block"}],"weaken_rule_ids":[],"remove_rule_ids":[]}`)
	require.NoError(t, l.RunBatch(context.Background()))

	// The next judged request carries the new rulebook snapshot.
	env.Backend.Respond(`{"decision":"allow","confidence":0.9}`)
	resp := env.Get("/api/after-learning")
	resp.Body.Close()

	assert.Len(t, env.Rules.Snapshot().Rules, 1)
}
