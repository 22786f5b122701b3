package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/decision"
)

func TestExtractJSONObjectPlain(t *testing.T) {
	obj, err := extractJSONObject(`{"decision": "allow", "confidence": 0.9}`)
	require.NoError(t, err)
	assert.Equal(t, `{"decision": "allow", "confidence": 0.9}`, obj)
}

func TestExtractJSONObjectWithProse(t *testing.T) {
	raw := "Sure! Here is my analysis:\n{\"decision\": \"flag\", \"confidence\": 0.6, \"reason\": \"odd path\"}\nLet me know if you need more."
	obj, err := extractJSONObject(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"decision": "flag", "confidence": 0.6, "reason": "odd path"}`, obj)
}

func TestExtractJSONObjectCodeFence(t *testing.T) {
	raw := "```json\n{\"decision\": \"block\", \"confidence\": 0.95, \"reason\": \"sqli\", \"threat_level\": \"high\"}\n```"
	obj, err := extractJSONObject(raw)
	require.NoError(t, err)

	d, err := parseJudgeResponse(obj)
	require.NoError(t, err)
	assert.Equal(t, decision.TypeBlock, d.Verdict)
}

func TestExtractJSONObjectNested(t *testing.T) {
	raw := `prefix {"a": {"b": 1}, "c": "x"} suffix`
	obj, err := extractJSONObject(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"a": {"b": 1}, "c": "x"}`, obj)
}

func TestExtractJSONObjectBracesInsideStrings(t *testing.T) {
	raw := `{"reason": "payload contained {malformed} braces", "decision": "flag", "confidence": 0.7}`
	obj, err := extractJSONObject(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, obj)
}

func TestExtractJSONObjectNoObject(t *testing.T) {
	_, err := extractJSONObject("the request looks fine to me")
	assert.ErrorIs(t, err, ErrParse)
}

func TestExtractJSONObjectUnbalanced(t *testing.T) {
	_, err := extractJSONObject(`{"decision": "allow", "confidence": 0.9`)
	assert.ErrorIs(t, err, ErrParse)
}

func TestParseJudgeResponseAllow(t *testing.T) {
	d, err := parseJudgeResponse(`{"decision": "allow", "confidence": 0.95, "reason": "legit", "threat_level": "low"}`)
	require.NoError(t, err)
	assert.Equal(t, decision.TypeAllow, d.Verdict)
	assert.Equal(t, 0.95, d.Confidence)
}

func TestParseJudgeResponseFlagDefaults(t *testing.T) {
	// Missing reason and threat_level fall back rather than failing.
	d, err := parseJudgeResponse(`{"decision": "flag", "confidence": 0.6}`)
	require.NoError(t, err)
	assert.Equal(t, decision.TypeFlag, d.Verdict)
	assert.Equal(t, "Flagged", d.Reason)
	assert.Equal(t, decision.ThreatMedium, d.Threat)
}

func TestParseJudgeResponseBlockUppercaseThreat(t *testing.T) {
	d, err := parseJudgeResponse(`{"decision": "block", "confidence": 0.98, "reason": "sql injection", "threat_level": "CRITICAL"}`)
	require.NoError(t, err)
	assert.Equal(t, decision.TypeBlock, d.Verdict)
	assert.Equal(t, decision.ThreatCritical, d.Threat)
}

func TestParseJudgeResponseClampsConfidence(t *testing.T) {
	d, err := parseJudgeResponse(`{"decision": "allow", "confidence": 1.4}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, d.Confidence)
}

func TestParseJudgeResponseUnknownDecision(t *testing.T) {
	_, err := parseJudgeResponse(`{"decision": "maybe", "confidence": 0.5}`)
	assert.ErrorIs(t, err, ErrParse)
}

func TestParseLearnerResponse(t *testing.T) {
	raw := `Analysis complete.
{
  "new_rules": [
    {"pattern": "UNION SELECT", "threat_type": "sqli", "description": "classic sqli probe", "confidence": 0.9, "action": "block"}
  ],
  "weaken_rule_ids": ["rule-1"],
  "remove_rule_ids": ["rule-2"],
  "rationales": ["recurring sqli probes against /search"]
}`
	out, err := parseLearnerResponse(raw)
	require.NoError(t, err)
	require.Len(t, out.NewRules, 1)
	assert.Equal(t, "UNION SELECT", out.NewRules[0].Pattern)
	assert.Equal(t, []string{"rule-1"}, out.WeakenRuleIDs)
	assert.Equal(t, []string{"rule-2"}, out.RemoveRuleIDs)
}

func TestParseLearnerResponseEmptyMutations(t *testing.T) {
	out, err := parseLearnerResponse(`{"new_rules": [], "weaken_rule_ids": [], "remove_rule_ids": []}`)
	require.NoError(t, err)
	assert.True(t, out.Empty())
}

func TestParseLearnerResponseInvalidSuggestion(t *testing.T) {
	raw := `{"new_rules": [{"pattern": "", "threat_type": "sqli", "confidence": 0.9, "action": "block"}]}`
	_, err := parseLearnerResponse(raw)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParse))
}
