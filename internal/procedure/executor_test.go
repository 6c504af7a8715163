package procedure

import (
	"context"
	"errors"
	"testing"

	"github.com/nextlevelbuilder/convoy/internal/model"
)

type noopConnectors struct{}

func (noopConnectors) GetConnector(ctx context.Context, tenantID, id string) (model.DataConnector, error) {
	return model.DataConnector{}, errors.New("not used in this test")
}

type noopAudit struct{ events []model.AuditEvent }

func (a *noopAudit) Record(ev model.AuditEvent) { a.events = append(a.events, ev) }

func TestExecuteMessageChain(t *testing.T) {
	proc := model.Procedure{
		ID: "p1",
		Steps: []model.ProcedureStep{
			{ID: "s1", Kind: model.StepKindMessage, Params: map[string]any{"template": "hello {{name}}"}, OnSuccess: "s2"},
			{ID: "s2", Kind: model.StepKindMessage, Params: map[string]any{"template": "goodbye {{name}}"}},
		},
	}
	audit := &noopAudit{}
	exec := &Executor{Connectors: noopConnectors{}, Audit: audit}
	res := exec.Execute(context.Background(), proc, Context{TenantID: "t1", Variables: map[string]any{"name": "Jane"}})

	if !res.Success {
		t.Fatalf("expected success, got error %v", res.Err)
	}
	if res.FinalMessage != "goodbye Jane" {
		t.Errorf("FinalMessage = %q, want %q", res.FinalMessage, "goodbye Jane")
	}
	if len(res.StepsRun) != 2 {
		t.Errorf("StepsRun = %v, want 2 steps", res.StepsRun)
	}
}

func TestExecuteUnknownStepFails(t *testing.T) {
	proc := model.Procedure{
		ID:    "p1",
		Steps: []model.ProcedureStep{{ID: "s1", Kind: "bogus"}},
	}
	exec := &Executor{Connectors: noopConnectors{}, Audit: &noopAudit{}}
	res := exec.Execute(context.Background(), proc, Context{TenantID: "t1", Variables: map[string]any{}})
	if res.Success {
		t.Fatal("expected failure for unknown step type")
	}
}

func TestExecuteConditionalMissingTrueStepFailsGracefully(t *testing.T) {
	proc := model.Procedure{
		ID: "p1",
		Steps: []model.ProcedureStep{
			{ID: "s1", Kind: model.StepKindConditional, Condition: "1 == 1", Params: map[string]any{}},
		},
	}
	exec := &Executor{Connectors: noopConnectors{}, Audit: &noopAudit{}}
	res := exec.Execute(context.Background(), proc, Context{TenantID: "t1", Variables: map[string]any{}})
	if res.Success {
		t.Fatal("expected failure when a satisfied conditional has no trueStep")
	}
	if res.Err == nil {
		t.Fatal("expected a non-nil error instead of a panic")
	}
}

func TestExecuteCyclicGraphTerminatesAtCap(t *testing.T) {
	proc := model.Procedure{
		ID: "p1",
		Steps: []model.ProcedureStep{
			{ID: "s1", Kind: model.StepKindMessage, Params: map[string]any{"template": "looping"}, OnSuccess: "s1"},
		},
	}
	exec := &Executor{Connectors: noopConnectors{}, Audit: &noopAudit{}}
	res := exec.Execute(context.Background(), proc, Context{TenantID: "t1", Variables: map[string]any{}})
	if !res.Success {
		t.Fatalf("expected cyclic graph to terminate successfully at the iteration cap, got error %v", res.Err)
	}
	if len(res.StepsRun) != maxIterations {
		t.Errorf("StepsRun length = %d, want %d", len(res.StepsRun), maxIterations)
	}
}
