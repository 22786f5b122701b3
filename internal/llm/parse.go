package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wardenhq/warden/internal/decision"
)

// judgeResponse is the shape the judge prompt asks for. It is distinct from
// decision.Decision because backends name the threat field differently and
// may omit it.
type judgeResponse struct {
	Decision    string  `json:"decision"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason"`
	ThreatLevel string  `json:"threat_level"`
}

// parseJudgeResponse extracts a Decision from raw model output. Missing
// reasons and threat levels get conservative defaults rather than failing
// the whole evaluation.
func parseJudgeResponse(raw string) (decision.Decision, error) {
	obj, err := extractJSONObject(raw)
	if err != nil {
		return decision.Decision{}, err
	}

	var jr judgeResponse
	if err := json.Unmarshal([]byte(obj), &jr); err != nil {
		return decision.Decision{}, fmt.Errorf("%w: judge payload: %v", ErrParse, err)
	}

	if jr.Confidence < 0 {
		jr.Confidence = 0
	}
	if jr.Confidence > 1 {
		jr.Confidence = 1
	}

	threat, ok := decision.ParseThreatLevel(jr.ThreatLevel)
	if !ok {
		threat = decision.ThreatMedium
	}

	switch strings.ToLower(jr.Decision) {
	case "allow":
		return decision.Allow(jr.Confidence), nil
	case "flag":
		return decision.Flag(jr.Confidence, orDefault(jr.Reason, "Flagged"), threat), nil
	case "block":
		return decision.Block(jr.Confidence, orDefault(jr.Reason, "Blocked"), threat), nil
	default:
		return decision.Decision{}, fmt.Errorf("%w: unknown decision %q", ErrParse, jr.Decision)
	}
}

// parseLearnerResponse extracts a LearnerOutput from raw model output.
func parseLearnerResponse(raw string) (decision.LearnerOutput, error) {
	obj, err := extractJSONObject(raw)
	if err != nil {
		return decision.LearnerOutput{}, err
	}

	var out decision.LearnerOutput
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return decision.LearnerOutput{}, fmt.Errorf("%w: learner payload: %v", ErrParse, err)
	}
	if err := out.Validate(); err != nil {
		return decision.LearnerOutput{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return out, nil
}

// extractJSONObject returns the first balanced top-level JSON object in s.
// Models routinely wrap their answer in prose or markdown fences; anything
// before the first '{' and after its matching '}' is discarded. Braces
// inside string literals do not count toward the balance.
func extractJSONObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", fmt.Errorf("%w: no JSON object in response", ErrParse)
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("%w: unbalanced JSON object in response", ErrParse)
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
