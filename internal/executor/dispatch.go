package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/antigravity-dev/ptc/internal/engine"
)

const (
	shellTimeout  = 30 * time.Second
	claudeTimeout = 120 * time.Second
)

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}

// dispatchPlan never touches the filesystem: a pure description of what
// would run.
func dispatchPlan(task *engine.Task) map[string]any {
	return map[string]any{
		"mode":          string(ModePlan),
		"intent":        task.Intent,
		"files":         task.Files,
		"functions":     task.Functions,
		"rules_applied": ruleNames(task.Rules),
		"summary":       fmt.Sprintf("plan only: %s", task.Intent),
	}
}

func ruleNames(rules []engine.Rule) []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name
	}
	return names
}

// dispatchInspect reports existence/size/modified for every listed file,
// never erroring on a missing file — spec §4.6/§9 keep inspect
// permissive.
func dispatchInspect(task *engine.Task) map[string]any {
	entries := make([]map[string]any, 0, len(task.Files))
	for _, f := range task.Files {
		entry := map[string]any{"file": f}
		info, err := os.Stat(f)
		if err != nil {
			entry["exists"] = false
		} else {
			entry["exists"] = true
			entry["size"] = info.Size()
			entry["modified"] = info.ModTime().UTC()
		}
		entries = append(entries, entry)
	}
	return map[string]any{"mode": string(ModeInspect), "files": entries}
}

// dispatchShell translates the intent into a fixed, known-safe argv and
// runs it with a 30s timeout. Unknown intents are skipped, never
// executed speculatively.
func dispatchShell(ctx context.Context, task *engine.Task) map[string]any {
	name, args, ok := translateShellCommand(task.Intent)
	if !ok {
		return map[string]any{"status": "skipped", "reason": "intent did not match a known-safe command"}
	}

	cctx, cancel := withTimeout(ctx, shellTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, name, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	return map[string]any{
		"command":   strings.TrimSpace(name + " " + strings.Join(args, " ")),
		"exit_code": exitCodeOf(err),
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
	}
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// dispatchNative runs one of the cargo/nix/rebuild sub-modes, each
// under its own timeout, writing results under a native.<sub_mode>
// namespace. rebuild never actually runs: its risk is forced to 9 at
// the gate, so dispatch only reaches here if a caller bypassed REVIEW.
func dispatchNative(ctx context.Context, task *engine.Task) map[string]any {
	sub := nativeSubMode(task.Intent)
	crate := extractCrateName(task.Intent)
	namespace := "native." + sub

	if sub == "rebuild" {
		return map[string]any{
			"namespace": namespace,
			"status":    "blocked",
			"reason":    "rebuild sub-mode is always blocked at risk 9",
			"crate":     crate,
		}
	}

	var name string
	var args []string
	var timeout time.Duration
	switch sub {
	case "nix":
		name, args, timeout = "nix", []string{"build"}, 600*time.Second
	default:
		name, timeout = "cargo", 300*time.Second
		if crate != "" {
			args = []string{"build", "-p", crate}
		} else {
			args = []string{"build"}
		}
	}

	cctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, name, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	return map[string]any{
		"namespace": namespace,
		"crate":     crate,
		"command":   strings.TrimSpace(name + " " + strings.Join(args, " ")),
		"exit_code": exitCodeOf(err),
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
	}
}

// claudeInstruction builds the structured "## Task, ## Node, ## Scale, …"
// instruction spec §4.6 prescribes for the external LLM CLI.
func claudeInstruction(task *engine.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Task\n%s\n\n", task.Intent)
	fmt.Fprintf(&b, "## Node\n%s (%s)\n\n", task.NodeName, task.NodeID)
	fmt.Fprintf(&b, "## Scale\n%s\n\n", task.Scale)
	fmt.Fprintf(&b, "## Lineage\n%s\n\n", strings.Join(task.Lineage, " > "))
	fmt.Fprintf(&b, "## Files\n%s\n\n", strings.Join(task.Files, "\n"))
	fmt.Fprintf(&b, "## Functions\n%s\n\n", strings.Join(task.Functions, "\n"))
	b.WriteString("## Rules\n")
	for _, r := range task.Rules {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", r.Name, r.Condition, r.Action)
	}
	b.WriteString("\n## Escalation\n")
	fmt.Fprintf(&b, "target=%s threshold=%d\n", task.Escalation.TargetID, task.Escalation.Threshold)
	return b.String()
}

// dispatchClaude invokes an external LLM CLI with a 120s timeout,
// storing its output as a Content Store artifact. Missing CLI degrades
// to a structured fallback, never an error.
func (e *Executor) dispatchClaude(ctx context.Context, task *engine.Task) map[string]any {
	if _, err := exec.LookPath(e.claudeCLI); err != nil {
		return map[string]any{"status": "fallback", "reason": fmt.Sprintf("%s CLI not found on PATH", e.claudeCLI)}
	}

	instruction := claudeInstruction(task)

	tmp, err := os.CreateTemp("", "ptc-claude-instruction-*.md")
	if err != nil {
		return map[string]any{"status": "fallback", "reason": fmt.Sprintf("create temp instruction file: %v", err)}
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(instruction); err != nil {
		tmp.Close()
		return map[string]any{"status": "fallback", "reason": fmt.Sprintf("write temp instruction file: %v", err)}
	}
	tmp.Close()

	cctx, cancel := withTimeout(ctx, claudeTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, e.claudeCLI, "--print", "--file", tmp.Name())
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	output := stdout.String()
	if runErr != nil && output == "" {
		output = stderr.String()
	}

	var artifactHash string
	if e.contentStore != nil {
		artifact, err := e.contentStore.DualStore(task.NodeID+"-claude-output", "llm_output", output, task.NodeID)
		if err == nil {
			artifactHash = artifact.Hash
		} else if e.logger != nil {
			e.logger.Warn("executor: store claude artifact failed", "node_id", task.NodeID, "error", err)
		}
	}

	return map[string]any{
		"status":      "completed",
		"exit_code":   exitCodeOf(runErr),
		"output":      output,
		"artifact":    artifactHash,
		"instruction": instruction,
	}
}

// dispatchCompose describes a branch node's lineage with no side
// effects. It is reached only through Executor.Compose.
func dispatchCompose(task *engine.Task) map[string]any {
	return map[string]any{
		"composed_from": task.Lineage,
		"summary":       fmt.Sprintf("composed from %d ancestor(s) ending at %s", len(task.Lineage), task.NodeName),
	}
}

// dispatchDesign delegates to the Architect's create_blueprint.
func (e *Executor) dispatchDesign(ctx context.Context, task *engine.Task) map[string]any {
	if e.blueprints == nil {
		return map[string]any{"status": "fallback", "reason": "no architect configured"}
	}
	bp, err := e.blueprints.CreateBlueprint(ctx, task.Intent, BlueprintContext{
		NodeID: task.NodeID,
		Files:  task.Files,
		Rules:  task.Rules,
	})
	if err != nil {
		return map[string]any{"status": "failed", "reason": err.Error()}
	}
	return map[string]any{
		"blueprint_id": bp.ID,
		"name":         bp.Name,
		"cached":       bp.Cached,
		"task_count":   bp.TaskCount,
		"status":       bp.Status,
		"hash":         bp.ContentHash,
	}
}

// dispatchCodie obtains a CODIE program (either attached to the task or
// synthesized from its fields), interprets it, and stores the
// execution trace as an artifact.
func (e *Executor) dispatchCodie(ctx context.Context, task *engine.Task) map[string]any {
	source := task.CodieProgram
	if source == "" {
		source = synthesizeCodieProgram(task)
	}

	res := e.codie.Run(ctx, source)

	if e.contentStore != nil {
		traceJSON := fmt.Sprintf("%+v", res)
		if _, err := e.contentStore.DualStore(task.NodeID+"-codie-trace", "codie_trace", traceJSON, task.NodeID); err != nil && e.logger != nil {
			e.logger.Warn("executor: store codie trace failed", "node_id", task.NodeID, "error", err)
		}
	}

	status := "completed"
	if res.Halted {
		status = "halted"
	} else if res.Err != "" {
		status = "error"
	}

	return map[string]any{
		"status":        status,
		"result":        res.Value,
		"checkpoints":   res.Checkpoints,
		"variables_set": res.Variables,
	}
}

// synthesizeCodieProgram builds a minimal pug tree from a task's fields
// when it carries no explicit codie_program, giving every task a CODIE
// representation the interpreter can run.
func synthesizeCodieProgram(task *engine.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "pug %s\n", sanitizeProgramName(task.NodeID))
	fmt.Fprintf(&b, "|   +-- elf intent = %q\n", task.Intent)
	b.WriteString("|   +-- biz {intent}\n")
	return b.String()
}

func sanitizeProgramName(id string) string {
	r := strings.NewReplacer("/", "_", " ", "_")
	return r.Replace(id)
}
