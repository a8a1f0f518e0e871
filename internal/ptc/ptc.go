// Package ptc implements the eight-phase Pass-Through Coordination
// pipeline: INTAKE, TRIAGE, PLAN, REVIEW, EXECUTE, VERIFY, INTEGRATE,
// SHIP (spec §4.8).
package ptc

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"github.com/antigravity-dev/ptc/internal/engine"
	"github.com/antigravity-dev/ptc/internal/executor"
	"github.com/antigravity-dev/ptc/internal/git"
	"github.com/antigravity-dev/ptc/internal/store"
)

var phaseNames = []string{
	"intake", "triage", "plan", "review", "execute", "verify", "integrate", "ship",
}

// Engine runs one PTC pass over a tree. depGraph and gitLayer are
// optional; when nil, the blast-radius optimization and trace commits
// are simply skipped.
type Engine struct {
	tree     *engine.Tree
	executor *executor.Executor
	depGraph *engine.DepGraph

	events   *store.Store
	content  *store.ContentStore
	gitLayer *git.Layer

	submit func(func())
	logger *slog.Logger
}

// New builds an Engine. events/content/gitLayer/depGraph may all be nil;
// submit defaults to synchronous execution, logger to slog.Default().
func New(tree *engine.Tree, exec *executor.Executor, depGraph *engine.DepGraph, events *store.Store, content *store.ContentStore, gitLayer *git.Layer, submit func(func()), logger *slog.Logger) *Engine {
	if submit == nil {
		submit = func(f func()) { f() }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		tree:     tree,
		executor: exec,
		depGraph: depGraph,
		events:   events,
		content:  content,
		gitLayer: gitLayer,
		submit:   submit,
		logger:   logger,
	}
}

func newRunID() string {
	const maxSuffix = int64(0x1000000)
	n, err := rand.Int(rand.Reader, big.NewInt(maxSuffix))
	if err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("run-%06x", n)
}

// emit logs an event fire-and-forget; emission failures are logged but
// never abort the pipeline (spec §4.8).
func (e *Engine) emit(eventType, key, value string) {
	if e.events == nil {
		return
	}
	e.submit(func() {
		if err := e.events.Log(eventType, key, value); err != nil {
			e.logger.Warn("ptc: event emission failed", "event_type", eventType, "key", key, "error", err)
		}
	})
}

// Run executes all eight phases in order and returns the resulting Trace.
func (e *Engine) Run(ctx context.Context, intent, target string, dryRun bool) (engine.Trace, error) {
	start := time.Now()
	runID := newRunID()

	trace := engine.Trace{
		RunID:             runID,
		Intent:            intent,
		Target:            target,
		DryRun:            dryRun,
		TreeTitle:         e.tree.Meta.Title,
		Timestamp:         start,
		CoordinationHints: e.tree.Coordination,
	}

	// INTAKE
	trace.PhasesUsed = append(trace.PhasesUsed, phaseNames[0])
	e.emit("intake", runID, fmt.Sprintf("intent=%q target=%q dry_run=%t nodes=%d tree=%q",
		intent, target, dryRun, len(e.tree.Nodes), e.tree.Meta.Title))

	// TRIAGE
	trace.PhasesUsed = append(trace.PhasesUsed, phaseNames[1])
	ranked := Triage(e.tree, intent)

	// PLAN
	trace.PhasesUsed = append(trace.PhasesUsed, phaseNames[2])
	leaves := Plan(e.tree, intent, target, ranked, e.depGraph)

	var tasks []*engine.Task
	seen := map[string]bool{}
	for _, n := range leaves {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		t := buildTask(n, intent, e.tree)
		tasks = append(tasks, &t)
	}
	trace.Counts.Decomposed = len(tasks)

	if len(tasks) == 0 {
		trace.Status = engine.TraceNoMatch
		trace.DurationMS = time.Since(start).Milliseconds()
		e.emit("ship", runID, fmt.Sprintf("status=%s decomposed=0", trace.Status))
		e.storeTrace(trace)
		return trace, nil
	}

	// REVIEW
	trace.PhasesUsed = append(trace.PhasesUsed, phaseNames[3])
	var approved, blocked []*engine.Task
	for _, t := range tasks {
		approval := e.executor.Review(t)
		t.Approval = &approval
		if approval.Approved {
			approved = append(approved, t)
		} else {
			blocked = append(blocked, t)
		}
	}
	trace.Counts.Approved = len(approved)
	trace.Counts.Blocked = len(blocked)

	// EXECUTE
	trace.PhasesUsed = append(trace.PhasesUsed, phaseNames[4])
	if e.depGraph != nil {
		e.sortByTier(approved)
	}

	resultsByNode := make(map[string]engine.Result, len(tasks))

	for _, t := range approved {
		trace.Counts.Executed++
		result := e.executeApproved(ctx, t, dryRun)
		resultsByNode[t.NodeID] = result
	}
	for _, t := range blocked {
		resultsByNode[t.NodeID] = blockedResult(t)
	}

	// VERIFY
	trace.PhasesUsed = append(trace.PhasesUsed, phaseNames[5])
	for _, t := range tasks {
		r := resultsByNode[t.NodeID]
		switch r.Status {
		case engine.StatusCompleted, engine.StatusPlanned:
			trace.Counts.Completed++
		case engine.StatusFailed:
			trace.Counts.Failed++
			if t.Escalation.TargetID != "" {
				trace.Escalations = append(trace.Escalations, engine.EscalationRecord{
					From:    t.NodeID,
					To:      t.Escalation.TargetID,
					Reason:  r.Error,
					Cascade: t.Escalation.Cascade,
				})
			}
		case engine.StatusBlocked:
			if r.EscalatedTo != "" {
				trace.Escalations = append(trace.Escalations, engine.EscalationRecord{
					From:    t.NodeID,
					To:      r.EscalatedTo,
					Reason:  "approval gate",
					Cascade: t.Escalation.Cascade,
				})
			}
		}
		trace.LeafResults = append(trace.LeafResults, r)
	}

	// INTEGRATE
	trace.PhasesUsed = append(trace.PhasesUsed, phaseNames[6])
	rootID := target
	if rootID == "" {
		rootID = e.tree.Root().ID
	}
	trace.Aggregated = engine.Aggregate(e.tree, rootID, resultsByNode)
	for _, esc := range trace.Escalations {
		e.emit("escalation", esc.From, fmt.Sprintf("to=%s reason=%q", esc.To, esc.Reason))
	}

	// SHIP
	trace.PhasesUsed = append(trace.PhasesUsed, phaseNames[7])
	trace.Status = classifyTraceStatus(trace.Counts)
	trace.DurationMS = time.Since(start).Milliseconds()
	e.emit("ship", runID, fmt.Sprintf("status=%s completed=%d failed=%d blocked=%d",
		trace.Status, trace.Counts.Completed, trace.Counts.Failed, trace.Counts.Blocked))
	e.storeTrace(trace)

	return trace, nil
}

func (e *Engine) executeApproved(ctx context.Context, t *engine.Task, dryRun bool) engine.Result {
	r := engine.Result{
		NodeID:    t.NodeID,
		NodeName:  t.NodeName,
		Scale:     t.Scale,
		Intent:    t.Intent,
		Lineage:   t.Lineage,
		StartedAt: time.Now(),
	}

	if dryRun {
		r.Status = engine.StatusPlanned
		r.Output = map[string]any{
			"status":        "planned",
			"plan":          t.Intent,
			"files":         t.Files,
			"functions":     t.Functions,
			"rules_applied": len(t.Rules),
		}
		r.CompletedAt = time.Now()
		return r
	}

	_, output, err := e.executor.Dispatch(ctx, t)
	r.CompletedAt = time.Now()
	if err != nil {
		r.Status = engine.StatusFailed
		r.Error = err.Error()
		return r
	}
	r.Output = output
	if status, ok := output["status"].(string); ok && status == "failed" {
		r.Status = engine.StatusFailed
		if msg, ok := output["error"].(string); ok {
			r.Error = msg
		}
		return r
	}
	r.Status = engine.StatusCompleted
	return r
}

func blockedResult(t *engine.Task) engine.Result {
	escalatedTo := ""
	if t.Approval != nil {
		escalatedTo = t.Approval.EscalatedTo
	}
	return engine.Result{
		NodeID:      t.NodeID,
		NodeName:    t.NodeName,
		Scale:       t.Scale,
		Intent:      t.Intent,
		Lineage:     t.Lineage,
		Status:      engine.StatusBlocked,
		StartedAt:   time.Now(),
		CompletedAt: time.Now(),
		Output: map[string]any{
			"reason":       "approval gate",
			"risk":         approvalRisk(t),
			"escalated_to": escalatedTo,
		},
		EscalatedTo: escalatedTo,
	}
}

func approvalRisk(t *engine.Task) int {
	if t.Approval == nil {
		return 0
	}
	return t.Approval.Risk
}

// sortByTier stable-sorts tasks by their node's metadata tier (ascending),
// preserving arrival order within a tier (spec §4.8: "tier-then-arrival").
func (e *Engine) sortByTier(tasks []*engine.Task) {
	tierOf := make(map[string]int, len(tasks))
	for _, t := range tasks {
		if n := e.tree.Get(t.NodeID); n != nil {
			tierOf[t.NodeID] = n.Metadata.Tier
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return tierOf[tasks[i].NodeID] < tierOf[tasks[j].NodeID]
	})
}

func classifyTraceStatus(c engine.TaskCounts) engine.TraceStatus {
	switch {
	case c.Decomposed == 0:
		return engine.TraceNoMatch
	case c.Completed == c.Decomposed:
		return engine.TraceCompleted
	case c.Blocked == c.Decomposed:
		return engine.TraceBlocked
	case c.Failed > 0:
		return engine.TracePartial
	case c.Blocked > 0:
		return engine.TracePartialBlocked
	default:
		return engine.TracePartial
	}
}

func encodeTraceForStore(trace engine.Trace) string {
	raw, err := json.Marshal(trace)
	if err != nil {
		return fmt.Sprintf(`{"run_id":%q,"error":"encode failed"}`, trace.RunID)
	}
	return string(raw)
}

func (e *Engine) storeTrace(trace engine.Trace) {
	if e.content != nil {
		e.submit(func() {
			if _, err := e.content.DualStore(trace.RunID, "trace", encodeTraceForStore(trace), ""); err != nil {
				e.logger.Warn("ptc: trace content store failed", "run_id", trace.RunID, "error", err)
			}
		})
	}
	if e.gitLayer != nil {
		e.submit(func() {
			if _, err := e.gitLayer.CommitTrace(trace); err != nil {
				e.logger.Warn("ptc: trace commit failed", "run_id", trace.RunID, "error", err)
			}
		})
	}
}
