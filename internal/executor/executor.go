package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/antigravity-dev/ptc/internal/codie"
	"github.com/antigravity-dev/ptc/internal/engine"
	"github.com/antigravity-dev/ptc/internal/store"
)

// BlueprintContext is the subset of a task's fields the design mode
// hands to the Architect when delegating to create_blueprint.
type BlueprintContext struct {
	NodeID string
	Files  []string
	Rules  []engine.Rule
}

// BlueprintResult is the design dispatch contract's return shape
// (spec §4.6: "{blueprint_id, name, cached, task_count, status, hash}").
type BlueprintResult struct {
	ID          string
	Name        string
	Cached      bool
	TaskCount   int
	Status      string
	ContentHash string
}

// BlueprintCreator is the narrow interface the design mode needs from
// the Architect, defined here (by the consumer) rather than importing
// internal/architect directly — the wiring concrete type is supplied by
// the caller (cmd/ptc), keeping executor free of an architect import.
type BlueprintCreator interface {
	CreateBlueprint(ctx context.Context, intent string, bctx BlueprintContext) (BlueprintResult, error)
}

// Executor classifies, gates, and dispatches tasks (spec §4.6).
type Executor struct {
	sensitivePrefixes []string
	ctoFallbackID     string
	claudeCLI         string

	codie        *codie.Interpreter
	contentStore *store.ContentStore
	blueprints   BlueprintCreator

	submit func(func())
	logger *slog.Logger
}

// New builds an Executor. blueprints may be nil until the Architect is
// wired in by the caller; contentStore may be nil (claude/codie modes
// then skip artifact storage); submit may be nil (approval logging runs
// synchronously).
func New(sensitivePrefixes []string, ctoFallbackID string, codieInterp *codie.Interpreter, contentStore *store.ContentStore, blueprints BlueprintCreator, submit func(func()), logger *slog.Logger) *Executor {
	if submit == nil {
		submit = func(f func()) { f() }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		sensitivePrefixes: sensitivePrefixes,
		ctoFallbackID:     ctoFallbackID,
		claudeCLI:         "claude",
		codie:             codieInterp,
		contentStore:      contentStore,
		blueprints:        blueprints,
		submit:            submit,
		logger:            logger,
	}
}

// SetClaudeCLI overrides the external LLM CLI binary name (default
// "claude"); exposed for tests that stub the binary.
func (e *Executor) SetClaudeCLI(name string) { e.claudeCLI = name }

// Review scores a task's risk and applies the approval gate, logging
// the decision fire-and-forget. It does not dispatch.
func (e *Executor) Review(task *engine.Task) engine.Approval {
	risk := ScoreRisk(task, e.sensitivePrefixes)
	approval := Gate(risk, task.Escalation.TargetID, e.ctoFallbackID)

	e.submit(func() {
		e.logger.Info("executor: approval decision",
			"node_id", task.NodeID, "risk", approval.Risk,
			"threshold", approval.Threshold, "approved", approval.Approved,
			"scale", task.Scale)
	})

	return approval
}

// Dispatch classifies task's mode and runs the matching handler. Tasks
// that failed the approval gate should never reach Dispatch — callers
// are expected to check task.Approval.Approved first (PTC's EXECUTE
// phase enforces this).
func (e *Executor) Dispatch(ctx context.Context, task *engine.Task) (mode Mode, output map[string]any, err error) {
	mode = DetectMode(task.CodieProgram, task.Intent)

	switch mode {
	case ModeCodie:
		return mode, e.dispatchCodie(ctx, task), nil
	case ModeNative:
		return mode, dispatchNative(ctx, task), nil
	case ModeDesign:
		return mode, e.dispatchDesign(ctx, task), nil
	case ModeInspect:
		return mode, dispatchInspect(task), nil
	case ModeShell:
		return mode, dispatchShell(ctx, task), nil
	case ModeClaude:
		return mode, e.dispatchClaude(ctx, task), nil
	case ModePlan:
		return mode, dispatchPlan(task), nil
	default:
		return mode, nil, fmt.Errorf("executor: unhandled mode %q", mode)
	}
}

// Compose runs the no-side-effect lineage summary for a branch node
// (not a leaf task). It is never selected by DetectMode and no pipeline
// phase calls it; INTEGRATE rolls results up with engine.Aggregate.
func (e *Executor) Compose(task *engine.Task) map[string]any {
	return dispatchCompose(task)
}
