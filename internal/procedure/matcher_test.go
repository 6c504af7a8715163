package procedure

import (
	"testing"

	"github.com/nextlevelbuilder/convoy/internal/model"
)

func TestFindMatchingKeyword(t *testing.T) {
	procs := []model.Procedure{
		{ID: "p1", Trigger: model.Trigger{Type: model.TriggerKeyword, Condition: "refund, return"}},
		{ID: "p2", Trigger: model.Trigger{Type: model.TriggerKeyword, Condition: "cancel"}},
	}
	p, ok := FindMatching(procs, "I want a REFUND please")
	if !ok || p.ID != "p1" {
		t.Fatalf("expected p1 to match, got %v ok=%v", p, ok)
	}
}

func TestFindMatchingManualNeverMatches(t *testing.T) {
	procs := []model.Procedure{{ID: "p1", Trigger: model.Trigger{Type: model.TriggerManual, Condition: "anything"}}}
	_, ok := FindMatching(procs, "anything goes here")
	if ok {
		t.Fatal("manual trigger should never auto-match")
	}
}

func TestFindMatchingScansInOrder(t *testing.T) {
	procs := []model.Procedure{
		{ID: "first", Trigger: model.Trigger{Type: model.TriggerKeyword, Condition: "help"}},
		{ID: "second", Trigger: model.Trigger{Type: model.TriggerKeyword, Condition: "help"}},
	}
	p, ok := FindMatching(procs, "I need help")
	if !ok || p.ID != "first" {
		t.Fatalf("expected first matching procedure in storage order, got %v", p)
	}
}
