package policy

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/convoy/internal/model"
)

func TestEvaluateTopicBlock(t *testing.T) {
	policies := []model.Policy{{
		Enabled: true, Stage: model.PolicyStagePre, Priority: 10,
		Rules: []model.PolicyRule{{
			Kind:   model.PolicyRuleKindTopic,
			Params: map[string]any{"blockedTopics": []string{"refund fraud"}},
		}},
	}}

	out := Evaluate("tell me about Refund Fraud schemes", policies, model.PolicyStagePre)
	if out.Passed {
		t.Fatal("expected topic policy to block")
	}

	out = Evaluate("how do I get a refund", policies, model.PolicyStagePre)
	if !out.Passed {
		t.Fatalf("expected pass, got violations: %v", out.Violations)
	}
}

func TestEvaluatePriorityOrder(t *testing.T) {
	policies := []model.Policy{
		{Enabled: true, Stage: model.PolicyStagePre, Priority: 1, Rules: []model.PolicyRule{{
			Kind: model.PolicyRuleKindTopic, Params: map[string]any{"blockedTopics": []string{"low"}},
		}}},
		{Enabled: true, Stage: model.PolicyStagePre, Priority: 10, Rules: []model.PolicyRule{{
			Kind: model.PolicyRuleKindTopic, Params: map[string]any{"blockedTopics": []string{"high"}},
		}}},
	}
	out := Evaluate("this message mentions both low and high", policies, model.PolicyStagePre)
	if out.Passed || out.Violations[0] != "blocked topic: high" {
		t.Fatalf("expected higher-priority policy to fire first, got %v", out.Violations)
	}
}

func TestEvaluateIgnoresOppositeStage(t *testing.T) {
	policies := []model.Policy{{
		Enabled: true, Stage: model.PolicyStagePost, Priority: 1,
		Rules: []model.PolicyRule{{Kind: model.PolicyRuleKindTopic, Params: map[string]any{"blockedTopics": []string{"x"}}}},
	}}
	out := Evaluate("x is mentioned here", policies, model.PolicyStagePre)
	if !out.Passed {
		t.Fatal("expected post-phase policy to be ignored in pre-phase evaluation")
	}
}

func TestRedactPIIIdempotent(t *testing.T) {
	policies := []model.Policy{{
		Enabled: true, Stage: model.PolicyStagePre,
		Rules: []model.PolicyRule{{Kind: model.PolicyRuleKindPII, Action: model.PolicyActionRedact}},
	}}
	text := "reach me at jane@example.com"
	once := RedactPII(text, policies, model.PolicyStagePre)
	twice := RedactPII(once, policies, model.PolicyStagePre)
	if once != twice {
		t.Fatalf("redaction not idempotent: %q != %q", once, twice)
	}
	if once == text {
		t.Fatal("expected email to be redacted")
	}
}

func TestCheckPIIHonorsDetectScope(t *testing.T) {
	rule := model.PolicyRule{
		Kind: model.PolicyRuleKindPII, Action: model.PolicyActionBlock,
		Params: map[string]any{"detect": []string{"email"}},
	}

	if _, blocked := checkPII("call me on 212-555-0100", rule); blocked {
		t.Fatal("expected phone number to pass when detect is scoped to email")
	}
	if _, blocked := checkPII("reach me at jane@example.com", rule); !blocked {
		t.Fatal("expected email to still block when detect includes email")
	}
}

func TestRedactPIIHonorsDetectScope(t *testing.T) {
	policies := []model.Policy{{
		Enabled: true, Stage: model.PolicyStagePre,
		Rules: []model.PolicyRule{{
			Kind: model.PolicyRuleKindPII, Action: model.PolicyActionRedact,
			Params: map[string]any{"detect": []string{"email"}},
		}},
	}}

	out := RedactPII("call 212-555-0100 or jane@example.com", policies, model.PolicyStagePre)
	if strings.Contains(out, "jane@example.com") {
		t.Fatal("expected email to be redacted")
	}
	if !strings.Contains(out, "212-555-0100") {
		t.Fatal("expected phone number to survive email-scoped redaction")
	}
}

func TestCheckLength(t *testing.T) {
	rule := model.PolicyRule{Kind: model.PolicyRuleKindLength, MaxLength: 5}
	if _, blocked := checkLength("toolong", rule); !blocked {
		t.Fatal("expected length violation")
	}
	if _, blocked := checkLength("ok", rule); blocked {
		t.Fatal("expected no violation")
	}
}

// TestEvaluateHonorsJSONUnmarshaledParams guards against a regression where
// rule.Params loaded from JSONB (and therefore holding []interface{} and
// float64, not []string and int) silently failed every check.
func TestEvaluateHonorsJSONUnmarshaledParams(t *testing.T) {
	raw := []byte(`[{
		"enabled": true, "stage": "pre", "priority": 1,
		"rules": [
			{"kind": "topic", "params": {"blockedTopics": ["refund fraud"]}},
			{"kind": "length", "params": {"minLength": 10}}
		]
	}]`)
	var policies []model.Policy
	if err := json.Unmarshal(raw, &policies); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}

	out := Evaluate("tell me about refund fraud schemes", policies, model.PolicyStagePre)
	if out.Passed {
		t.Fatal("expected topic policy loaded from JSON to still block")
	}

	out = Evaluate("hi", policies, model.PolicyStagePre)
	if out.Passed {
		t.Fatal("expected length policy loaded from JSON to still block short text")
	}
}
