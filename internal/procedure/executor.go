package procedure

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nextlevelbuilder/convoy/internal/model"
)

// maxIterations bounds step execution as a safety net against cyclic
// procedure graphs; hitting it is treated as a successful termination of
// the walk, not a failure.
const maxIterations = 50

// ConnectorResolver fetches a tenant's DataConnector by id, rejecting
// cross-tenant lookups.
type ConnectorResolver interface {
	GetConnector(ctx context.Context, tenantID, id string) (model.DataConnector, error)
}

// AuditEmitter records procedure/connector audit events. Implementations
// must treat emission as best-effort (see the audit package).
type AuditEmitter interface {
	Record(ev model.AuditEvent)
}

// Context carries per-execution state through a procedure run.
type Context struct {
	TenantID       string
	ConversationID string
	UserID         string
	Variables      map[string]any
	DryRun         bool
}

// Result is the outcome of executing a Procedure to completion or failure.
type Result struct {
	Success      bool
	StepsRun     []string
	FinalMessage string
	Err          error
}

// Executor runs a Procedure's step graph against HTTP and MCP connectors.
type Executor struct {
	Connectors ConnectorResolver
	HTTP       *HTTPConnector
	MCP        *MCPConnector
	Audit      AuditEmitter
}

// Execute walks proc's step graph starting at steps[0], honoring each
// step's nextStepId (or conditional branch), until no next step is
// referenced, a step fails, or maxIterations is reached.
func (e *Executor) Execute(ctx context.Context, proc model.Procedure, execCtx Context) Result {
	if len(proc.Steps) == 0 {
		return Result{Success: true}
	}
	steps := indexSteps(proc.Steps)
	currentID := proc.Steps[0].ID
	var stepsRun []string
	var finalMessage string

	for i := 0; i < maxIterations; i++ {
		step, ok := steps[currentID]
		if !ok {
			break
		}
		stepsRun = append(stepsRun, step.ID)

		nextID, msg, err := e.runStep(ctx, step, proc, execCtx)
		if err != nil {
			e.emit(model.AuditEvent{TenantID: execCtx.TenantID, ConversationID: execCtx.ConversationID, Kind: "procedure.failed", Detail: map[string]any{"step": step.ID, "error": err.Error()}})
			return Result{Success: false, StepsRun: stepsRun, Err: err}
		}
		if msg != "" {
			finalMessage = msg
		}
		if nextID == "" {
			break
		}
		currentID = nextID
	}

	e.emit(model.AuditEvent{TenantID: execCtx.TenantID, ConversationID: execCtx.ConversationID, Kind: "procedure.completed", Detail: map[string]any{"steps": stepsRun}})
	return Result{Success: true, StepsRun: stepsRun, FinalMessage: finalMessage}
}

func indexSteps(steps []model.ProcedureStep) map[string]model.ProcedureStep {
	out := make(map[string]model.ProcedureStep, len(steps))
	for _, s := range steps {
		out[s.ID] = s
	}
	return out
}

// runStep executes one step and returns the id of the next step (empty
// string if none), any message it produced, and an error on failure.
func (e *Executor) runStep(ctx context.Context, step model.ProcedureStep, proc model.Procedure, execCtx Context) (nextID, message string, err error) {
	switch step.Kind {
	case model.StepKindMessage:
		tmpl, _ := step.Params["template"].(string)
		if tmpl == "" {
			tmpl, _ = step.Params["message"].(string)
		}
		message = Interpolate(tmpl, execCtx.Variables)
		return step.OnSuccess, message, nil

	case model.StepKindConditional:
		result := EvalCondition(step.Condition, execCtx.Variables)
		if result {
			v, ok := step.Params["trueStep"].(string)
			if !ok {
				return "", "", fmt.Errorf("step %q: missing trueStep", step.ID)
			}
			return v, "", nil
		}
		if v, ok := step.Params["falseStep"].(string); ok {
			return v, "", nil
		}
		return "", "", nil

	case model.StepKindAPICall, model.StepKindDataLookup:
		return step.OnSuccess, "", e.runConnectorStep(ctx, step, execCtx)

	case model.StepKindApproval:
		// Auto-approved in both live and dry-run mode for this version; a
		// pending-approval queue is a documented extension point.
		e.emit(model.AuditEvent{TenantID: execCtx.TenantID, ConversationID: execCtx.ConversationID, Kind: "procedure.triggered", Detail: map[string]any{"step": step.ID, "approved": true}})
		return step.OnSuccess, "", nil

	default:
		return "", "", fmt.Errorf("unknown step type %q", step.Kind)
	}
}

func (e *Executor) runConnectorStep(ctx context.Context, step model.ProcedureStep, execCtx Context) error {
	if step.ConnectorID == "" {
		return fmt.Errorf("step %q missing connectorId", step.ID)
	}
	connector, err := e.Connectors.GetConnector(ctx, execCtx.TenantID, step.ConnectorID)
	if err != nil {
		return fmt.Errorf("resolve connector: %w", err)
	}
	if connector.TenantID != execCtx.TenantID {
		return fmt.Errorf("connector %q does not belong to tenant", step.ConnectorID)
	}

	var callErr error
	switch connector.Provider {
	case model.ConnectorProviderMCP:
		callErr = e.MCP.Call(ctx, connector, step.Params, execCtx.Variables, execCtx.DryRun)
	default:
		method := step.Operation
		if step.Kind == model.StepKindDataLookup || method == "" {
			method = http.MethodGet
		}
		pathTemplate, _ := step.Params["path"].(string)
		callErr = e.HTTP.Call(ctx, connector, method, pathTemplate, step.Params, execCtx.Variables, execCtx.DryRun)
	}

	if callErr != nil {
		e.emit(model.AuditEvent{TenantID: execCtx.TenantID, ConversationID: execCtx.ConversationID, Kind: "connector.error", Detail: map[string]any{"connector": connector.ID, "error": callErr.Error()}})
		return callErr
	}
	e.emit(model.AuditEvent{TenantID: execCtx.TenantID, ConversationID: execCtx.ConversationID, Kind: "connector.called", Detail: map[string]any{"connector": connector.ID}})
	return nil
}

func (e *Executor) emit(ev model.AuditEvent) {
	if e.Audit != nil {
		e.Audit.Record(ev)
	}
}
