// Package policy implements the pre/post content gates: topic filtering,
// PII detection/redaction, tone enforcement, and length capping.
package policy

import (
	"regexp"
	"sort"
	"strings"

	"github.com/nextlevelbuilder/convoy/internal/model"
)

// defaultUncertaintyLexicon is matched when a tone policy sets blockUncertain.
var defaultUncertaintyLexicon = []string{
	"i'm not sure", "i don't know", "i am not certain", "i cannot determine",
	"it might be", "possibly", "i think maybe",
}

// Outcome is the result of evaluating every enabled policy of one phase.
type Outcome struct {
	Passed     bool
	Violations []string
}

// Evaluate runs every enabled policy for the given stage against text, in
// priority-descending order with ties broken by the input's stable order,
// stopping at the first violation.
func Evaluate(text string, policies []model.Policy, stage model.PolicyStage) Outcome {
	ordered := forStage(policies, stage)
	for _, p := range ordered {
		for _, rule := range p.Rules {
			if v, ok := checkRule(text, rule); ok {
				return Outcome{Passed: false, Violations: []string{v}}
			}
		}
	}
	return Outcome{Passed: true}
}

// forStage filters policies to stage and enabled, sorted priority descending
// (stable, so equal priorities keep their original relative order).
func forStage(policies []model.Policy, stage model.PolicyStage) []model.Policy {
	var out []model.Policy
	for _, p := range policies {
		if p.Enabled && p.Stage == stage {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

func checkRule(text string, rule model.PolicyRule) (violation string, blocked bool) {
	switch rule.Kind {
	case model.PolicyRuleKindTopic:
		return checkTopic(text, rule)
	case model.PolicyRuleKindPII:
		return checkPII(text, rule)
	case model.PolicyRuleKindTone:
		return checkTone(text, rule)
	case model.PolicyRuleKindLength:
		return checkLength(text, rule)
	default:
		return "", false
	}
}

// stringSlice coerces a Params value into []string, accepting both a
// native []string (set directly in Go) and []interface{} of strings (the
// shape json.Unmarshal produces when rules round-trip through JSONB).
func stringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// intParam coerces a Params value into an int, accepting both a native int
// and the float64 json.Unmarshal produces for JSON numbers.
func intParam(v any) (int, bool) {
	switch vv := v.(type) {
	case int:
		return vv, true
	case float64:
		return int(vv), true
	default:
		return 0, false
	}
}

func checkTopic(text string, rule model.PolicyRule) (string, bool) {
	lower := strings.ToLower(text)
	topics := stringSlice(rule.Params["blockedTopics"])
	for _, topic := range topics {
		if strings.Contains(lower, strings.ToLower(topic)) {
			return "blocked topic: " + topic, true
		}
	}
	patterns := stringSlice(rule.Params["blockedPatterns"])
	for _, pat := range patterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			continue // invalid patterns are silently skipped
		}
		if re.MatchString(text) {
			return "blocked pattern: " + pat, true
		}
	}
	return "", false
}

func checkPII(text string, rule model.PolicyRule) (string, bool) {
	if rule.Action != model.PolicyActionBlock {
		return "", false // redact mode never violates; the orchestrator applies redactPII separately
	}
	if containsPII(text, stringSlice(rule.Params["detect"])) {
		return "pii detected", true
	}
	return "", false
}

func checkTone(text string, rule model.PolicyRule) (string, bool) {
	lower := strings.ToLower(text)
	phrases := stringSlice(rule.Params["blockedPhrases"])
	for _, phrase := range phrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return "blocked phrase: " + phrase, true
		}
	}
	blockUncertain, _ := rule.Params["blockUncertain"].(bool)
	if blockUncertain {
		for _, phrase := range defaultUncertaintyLexicon {
			if strings.Contains(lower, phrase) {
				return "uncertain phrasing: " + phrase, true
			}
		}
	}
	return "", false
}

func checkLength(text string, rule model.PolicyRule) (string, bool) {
	n := len(text)
	if rule.MaxLength > 0 && n > rule.MaxLength {
		return "exceeds max length", true
	}
	if minLen, ok := intParam(rule.Params["minLength"]); ok && n < minLen {
		return "below min length", true
	}
	return "", false
}

// RedactPII replaces every PII match across all redact-mode pii policies
// with [REDACTED]. Idempotent: redacting already-redacted text is a no-op.
func RedactPII(text string, policies []model.Policy, stage model.PolicyStage) string {
	out := text
	for _, p := range forStage(policies, stage) {
		for _, rule := range p.Rules {
			if rule.Kind == model.PolicyRuleKindPII && rule.Action == model.PolicyActionRedact {
				out, _ = redactPII(out, stringSlice(rule.Params["detect"]))
			}
		}
	}
	return out
}
