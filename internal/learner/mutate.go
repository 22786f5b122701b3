package learner

import (
	"github.com/rs/zerolog/log"

	"github.com/wardenhq/warden/internal/decision"
	"github.com/wardenhq/warden/internal/rulebook"
)

// createdByLLM marks rules authored by the learner, as opposed to human
// edits of the rulebook file.
const createdByLLM = "llm"

// applyChanges produces a mutated clone: removals first, then weakening,
// then additions. Unknown ids and duplicate patterns are skipped, never
// errors; the model's suggestions are advisory.
func applyChanges(current *rulebook.Rulebook, output decision.LearnerOutput) *rulebook.Rulebook {
	mutated := current.Clone()

	for _, id := range output.RemoveRuleIDs {
		if removeRule(mutated, id) {
			log.Info().Str("rule_id", id).Msg("removed rule")
		} else {
			log.Debug().Str("rule_id", id).Msg("remove skipped, unknown rule id")
		}
	}

	for _, id := range output.WeakenRuleIDs {
		if !weakenRule(mutated, id) {
			log.Debug().Str("rule_id", id).Msg("weaken skipped, unknown rule id")
		}
	}

	for _, s := range output.NewRules {
		if mutated.HasPattern(s.Pattern, s.ThreatType) {
			log.Debug().
				Str("pattern", s.Pattern).
				Str("threat_type", s.ThreatType).
				Msg("add skipped, duplicate pattern")
			continue
		}
		rule := rulebook.NewRule(s, createdByLLM)
		mutated.Rules = append(mutated.Rules, rule)
		log.Info().
			Str("rule_id", rule.ID).
			Str("threat_type", rule.ThreatType).
			Str("action", string(rule.Action)).
			Msg("added rule")
	}

	return mutated
}

func removeRule(rb *rulebook.Rulebook, id string) bool {
	for i, r := range rb.Rules {
		if r.ID == id {
			rb.Rules = append(rb.Rules[:i], rb.Rules[i+1:]...)
			return true
		}
	}
	return false
}

// weakenRule multiplies the rule's confidence by the weaken factor, clamped
// to [0,1].
func weakenRule(rb *rulebook.Rulebook, id string) bool {
	for i := range rb.Rules {
		if rb.Rules[i].ID != id {
			continue
		}
		old := rb.Rules[i].Confidence
		next := clamp(old * weakenFactor)
		rb.Rules[i].Confidence = next
		log.Info().
			Str("rule_id", id).
			Float64("from", old).
			Float64("to", next).
			Msg("weakened rule")
		return true
	}
	return false
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
