package engine

import "time"

// Task is derived from a leaf node and an intent; ephemeral, created at
// PLAN and consumed at EXECUTE.
type Task struct {
	NodeID     string     `json:"node_id"`
	NodeName   string     `json:"node_name"`
	Scale      Scale      `json:"scale"`
	Intent     string     `json:"intent"`
	Lineage    []string   `json:"lineage"`
	Files      []string   `json:"files"`
	Functions  []string   `json:"functions"`
	Rules      []Rule     `json:"rules"`
	Escalation Escalation `json:"escalation"`

	CodieProgram string   `json:"codie_program,omitempty"`
	BlueprintID  string   `json:"blueprint_id,omitempty"`
	TaskID       string   `json:"task_id,omitempty"`
	Acceptance   string   `json:"acceptance,omitempty"`
	DependsOn    []string `json:"depends_on,omitempty"`

	// Approval is populated by REVIEW and consumed by EXECUTE/SHIP.
	Approval *Approval `json:"approval,omitempty"`
}

// Approval is the record of an approval-gate decision for a task.
type Approval struct {
	Risk        int    `json:"risk"`
	Threshold   string `json:"threshold"` // "auto" | "director" | "escalate" | "human"
	Approved    bool   `json:"approved"`
	EscalatedTo string `json:"escalated_to,omitempty"`
}

// Status is the lifecycle state of a Result.
type Status string

const (
	StatusPending    Status = "pending"
	StatusPlanned    Status = "planned"
	StatusExecuting  Status = "executing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusBlocked    Status = "blocked"
	StatusEscalated  Status = "escalated"
)

// Result is the outcome of one task.
type Result struct {
	NodeID    string   `json:"node_id"`
	NodeName  string   `json:"node_name"`
	Scale     Scale    `json:"scale"`
	Intent    string   `json:"intent"`
	Lineage   []string `json:"lineage"`
	Status    Status   `json:"status"`

	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`

	Output    map[string]any `json:"output,omitempty"`
	Artifacts []string       `json:"artifacts,omitempty"`
	Error     string         `json:"error,omitempty"`

	EscalatedTo       string `json:"escalated_to,omitempty"`
	EscalationReason  string `json:"escalation_reason,omitempty"`
}

// AggregatedStatus is the recursive roll-up status of a branch node.
type AggregatedStatus string

const (
	AggCompleted  AggregatedStatus = "completed"
	AggFailed     AggregatedStatus = "failed"
	AggPartial    AggregatedStatus = "partial"
	AggInProgress AggregatedStatus = "in_progress"
	AggBlocked    AggregatedStatus = "blocked"
	AggEscalated  AggregatedStatus = "escalated"
)

// Aggregated is the roll-up of results along the tree, keyed by node id.
type Aggregated struct {
	NodeID             string           `json:"node_id"`
	Status             AggregatedStatus `json:"status"`
	EscalationTarget   string           `json:"escalation_target,omitempty"`
	Children           []Aggregated     `json:"children,omitempty"`
}

// EscalationRecord is a recorded trace-level escalation event.
type EscalationRecord struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Reason  string `json:"reason"`
	Cascade []string `json:"cascade,omitempty"`
}

// TaskCounts tallies tasks across the pipeline's phases, carried on the
// Trace so §8's testable properties (e.g. decomposed = approved +
// blocked) can be checked against a single run's record.
type TaskCounts struct {
	Decomposed int `json:"decomposed"`
	Approved   int `json:"approved"`
	Blocked    int `json:"blocked"`
	Executed   int `json:"executed"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// TraceStatus is the overall classification assigned at SHIP.
type TraceStatus string

const (
	TraceCompleted      TraceStatus = "completed"
	TracePartial        TraceStatus = "partial"
	TracePartialBlocked TraceStatus = "partial_blocked"
	TraceBlocked        TraceStatus = "blocked"
	TraceFailed         TraceStatus = "failed"
	TraceNoMatch        TraceStatus = "no_match"
)

// Trace is the permanent, content-addressed record of one PTC run
// (spec §3's Trace type).
type Trace struct {
	RunID      string      `json:"run_id"`
	Intent     string      `json:"intent"`
	Target     string      `json:"target,omitempty"`
	DryRun     bool        `json:"dry_run"`
	TreeTitle  string      `json:"tree_title"`
	Status     TraceStatus `json:"status"`
	PhasesUsed []string    `json:"phases_used"`
	Counts     TaskCounts  `json:"task_counts"`

	// CoordinationHints echoes the tree document's own coordination.phases
	// back onto the trace, so a downstream collaborator can confirm which
	// phase set this run honored without reloading the tree.
	CoordinationHints CoordinationHints `json:"coordination_hints"`

	Escalations []EscalationRecord `json:"escalations,omitempty"`
	LeafResults []Result           `json:"leaf_results"`
	Aggregated  Aggregated         `json:"aggregated"`

	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// Aggregate rolls up results bottom-up from leaves, applying §3's roll-up
// rules at every branch node under (and including) `from`.
//
// Grounded on the teacher's parent->children walk in
// internal/scheduler/pipeline.go (AutoCloseEpics): build a children map,
// then decide a parent's state purely from its children's states.
func Aggregate(tree *Tree, from string, results map[string]Result) Aggregated {
	node := tree.Get(from)
	if node == nil {
		return Aggregated{NodeID: from, Status: AggInProgress}
	}

	if node.IsLeaf() {
		r, ok := results[from]
		if !ok {
			return Aggregated{NodeID: from, Status: AggInProgress}
		}
		return Aggregated{NodeID: from, Status: leafAggStatus(r.Status)}
	}

	children := make([]Aggregated, 0, len(node.Children))
	for _, childID := range node.Children {
		children = append(children, Aggregate(tree, childID, results))
	}

	agg := Aggregated{NodeID: from, Children: children}

	allCompleted, allFailed, anyCompleted, anyFailed := true, true, false, false
	for _, c := range children {
		switch c.Status {
		case AggCompleted:
			anyCompleted = true
			allFailed = false
		case AggFailed:
			anyFailed = true
			allCompleted = false
		default:
			allCompleted = false
			allFailed = false
		}
	}

	switch {
	case len(children) > 0 && allCompleted:
		agg.Status = AggCompleted
	case len(children) > 0 && allFailed:
		agg.Status = AggFailed
	case anyCompleted && anyFailed:
		agg.Status = AggPartial
	default:
		agg.Status = AggInProgress
	}

	hasBlockRule := hasRuleAction(node.Rules, ActionBlock)
	hasEscalateRule := hasRuleAction(node.Rules, ActionEscalate)

	if hasBlockRule && anyFailed {
		agg.Status = AggBlocked
	}
	if hasEscalateRule && anyFailed {
		agg.Status = AggEscalated
		agg.EscalationTarget = node.Escalation.TargetID
	}

	return agg
}

func leafAggStatus(s Status) AggregatedStatus {
	switch s {
	case StatusCompleted, StatusPlanned:
		return AggCompleted
	case StatusFailed:
		return AggFailed
	case StatusBlocked:
		return AggBlocked
	case StatusEscalated:
		return AggEscalated
	default:
		return AggInProgress
	}
}

func hasRuleAction(rules []Rule, action RuleAction) bool {
	for _, r := range rules {
		if r.Action == action {
			return true
		}
	}
	return false
}
