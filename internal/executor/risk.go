package executor

import (
	"strings"

	"github.com/antigravity-dev/ptc/internal/engine"
)

var scaleBaseRisk = map[engine.Scale]int{
	engine.ScaleExecutive:  8,
	engine.ScaleDepartment: 6,
	engine.ScaleCaptain:    3,
	engine.ScaleModule:     2,
	engine.ScaleCrate:      2,
}

var highRiskMarkers = []string{
	"delete", "destroy", "drop", "force", "reset", "remove", "wipe", "nuke", "nixos-rebuild",
}

var mediumRiskMarkers = []string{
	"deploy", "push", "release", "migrate", "update", "modify", "nix build", "rebuild tier",
}

// ScoreRisk implements spec §4.6's risk formula: a scale base, additive
// keyword/path hits, a rule-count discount, clamped to [1,10]. A task
// that dispatches to the native rebuild sub-mode is always scored 9.
func ScoreRisk(task *engine.Task, sensitivePrefixes []string) int {
	lower := strings.ToLower(task.Intent)

	if DetectMode(task.CodieProgram, task.Intent) == ModeNative && nativeSubMode(task.Intent) == "rebuild" {
		return 9
	}

	risk := scaleBaseRisk[task.Scale]
	if risk == 0 {
		risk = scaleBaseRisk[engine.ScaleCrate]
	}

	if containsAny(lower, highRiskMarkers) {
		risk += 3
	}
	if containsAny(lower, mediumRiskMarkers) {
		risk += 1
	}
	if anySensitivePath(task.Files, sensitivePrefixes) {
		risk += 1
	}
	if len(task.Rules) > 3 {
		risk -= 1
	}

	return clamp(risk, 1, 10)
}

func anySensitivePath(files, prefixes []string) bool {
	for _, f := range files {
		for _, p := range prefixes {
			if strings.HasPrefix(f, p) || strings.Contains(f, p) {
				return true
			}
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Gate applies spec §4.6's approval gate thresholds to a scored risk,
// producing the Approval record carried on the task from REVIEW into
// EXECUTE/SHIP.
func Gate(risk int, escalationTarget, ctoFallbackID string) engine.Approval {
	switch {
	case risk >= 9:
		return engine.Approval{Risk: risk, Threshold: "human", Approved: false, EscalatedTo: "human"}
	case risk >= 7:
		target := escalationTarget
		if target == "" {
			target = ctoFallbackID
		}
		return engine.Approval{Risk: risk, Threshold: "escalate", Approved: false, EscalatedTo: target}
	case risk >= 4:
		return engine.Approval{Risk: risk, Threshold: "director", Approved: true}
	default:
		return engine.Approval{Risk: risk, Threshold: "auto", Approved: true}
	}
}
