// Package executor classifies a task into a dispatch mode, runs it
// through the approval gate, and dispatches it to the matching mode
// handler (spec §4.6).
package executor

import "strings"

// Mode is the dispatch classification assigned to a task.
type Mode string

const (
	ModeCodie   Mode = "codie"
	ModeNative  Mode = "native"
	ModeDesign  Mode = "design"
	ModeInspect Mode = "inspect"
	ModeShell   Mode = "shell"
	ModeClaude  Mode = "claude"
	ModeCompose Mode = "compose"
	ModePlan    Mode = "plan"
)

var nativeMarkers = []string{
	"cargo build", "cargo test", "cargo clippy", "cargo fmt",
	"nix build", "nix develop", "nix flake", "nixos-rebuild",
	"rebuild crate", "rebuild tier",
}

var designMarkers = []string{"design", "architect", "blueprint", "specify", "plan architecture", "draft"}
var inspectMarkers = []string{"show", "list", "check", "verify", "audit", "status", "inspect", "read"}
var shellMarkers = []string{"build", "run", "install", "deploy", "start", "stop", "restart"}
var claudeMarkers = []string{"create", "add", "implement", "fix", "refactor", "write", "update", "modify"}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// DetectMode classifies intent (and an optional pre-attached CODIE
// program) into a Mode, in the exact priority order spec §4.6 fixes:
// codie, native, design, inspect, shell, claude, plan.
func DetectMode(codieProgram, intent string) Mode {
	lower := strings.ToLower(intent)

	switch {
	case codieProgram != "" || strings.Contains(lower, "codie"):
		return ModeCodie
	case containsAny(lower, nativeMarkers):
		return ModeNative
	case containsAny(lower, designMarkers):
		return ModeDesign
	case containsAny(lower, inspectMarkers):
		return ModeInspect
	case containsAny(lower, shellMarkers):
		return ModeShell
	case containsAny(lower, claudeMarkers):
		return ModeClaude
	default:
		return ModePlan
	}
}
