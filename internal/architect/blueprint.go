// Package architect implements the Architect subsystem (spec §4.7):
// turning a design intent into a reusable, verifiable blueprint, with a
// two-level cache (exact intent-hash match, then semantic similarity)
// so repeated or near-duplicate design intents are served from the
// Content Store instead of regenerated.
package architect

import "github.com/antigravity-dev/ptc/internal/engine"

// BlueprintStatus is the lifecycle state carried in a blueprint's
// metadata.status field.
type BlueprintStatus string

const (
	StatusDraft    BlueprintStatus = "draft"
	StatusBuilding BlueprintStatus = "building"
	StatusVerified BlueprintStatus = "verified"
	StatusFailed   BlueprintStatus = "failed"
)

// Where is the blueprint's inferred location in the codebase.
type Where struct {
	Modules []string `json:"modules,omitempty"`
}

// How is the blueprint's inferred implementation approach.
type How struct {
	Patterns []string `json:"patterns,omitempty"`
}

// Acceptance is the blueprint's completion criteria, left empty for the
// caller (or another collaborator) to populate.
type Acceptance struct {
	Criteria []string `json:"criteria,omitempty"`
}

// BuilderTask is one generated task entry under a blueprint, converted
// into a PTC task by BlueprintToTasks.
type BuilderTask struct {
	TaskID     string   `json:"task_id"`
	Intent     string   `json:"intent"`
	TargetNode string   `json:"target_node,omitempty"`
	Files      []string `json:"files,omitempty"`
	DependsOn  []string `json:"depends_on,omitempty"`
}

// Execution tallies blueprint-scoped task outcomes, updated by Verify.
type Execution struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Blueprint is spec §3's Blueprint type.
type Blueprint struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	IntentHash string          `json:"intent_hash"`
	Intent     string          `json:"intent"`
	Version    int             `json:"blueprint_version"`
	Status     BlueprintStatus `json:"status"`

	Where            Where         `json:"where"`
	How              How           `json:"how"`
	Interconnections []string      `json:"interconnections,omitempty"`
	BuilderTasks     []BuilderTask `json:"builder_tasks"`
	Acceptance       Acceptance    `json:"acceptance"`
	GUISpec          map[string]any `json:"gui_spec,omitempty"`

	TargetNode string             `json:"target_node,omitempty"`
	Lineage    []string           `json:"lineage,omitempty"`
	Escalation engine.Escalation  `json:"escalation"`
	Children   []string           `json:"children,omitempty"`
	Execution  Execution          `json:"execution"`

	ContentHash string `json:"content_hash"`
}

// ValidationResult is the return shape of Validate.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}
