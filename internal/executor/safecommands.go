package executor

import (
	"regexp"
	"strings"
)

// shellCommandTable is the finite set of known-safe commands `shell`
// mode can translate an intent into. Grounded on the teacher's own
// allow-list discipline (internal/dispatch/shell_escape.go: never build
// a shell string by concatenation; always exec.Command(name, args...)
// with a fixed name) — every entry here is a fixed argv, never a
// string built from the intent.
var shellCommandTable = []struct {
	marker string
	name   string
	args   []string
}{
	{"build", "cargo", []string{"build"}},
	{"run", "cargo", []string{"run"}},
	{"install", "cargo", []string{"install", "--path", "."}},
	{"deploy", "nix", []string{"build"}},
	{"start", "systemctl", []string{"start"}},
	{"stop", "systemctl", []string{"stop"}},
	{"restart", "systemctl", []string{"restart"}},
}

// translateShellCommand picks the first shellCommandTable entry whose
// marker appears in intent. Returns ok=false for anything not in the
// table, per spec §4.6's "unknown intents return {status: skipped}".
func translateShellCommand(intent string) (name string, args []string, ok bool) {
	lower := strings.ToLower(intent)
	for _, entry := range shellCommandTable {
		if strings.Contains(lower, entry.marker) {
			return entry.name, entry.args, true
		}
	}
	return "", nil, false
}

var crateNamePattern = regexp.MustCompile(`\b(?:crate|rebuild)\s+(?:crate\s+)?([a-zA-Z][a-zA-Z0-9_-]*)`)

// extractCrateName pulls a crate name out of an intent via the fixed
// regex spec §4.6 calls for ("extract crate name via a fixed regex").
func extractCrateName(intent string) string {
	m := crateNamePattern.FindStringSubmatch(intent)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// nativeSubMode classifies which of the three native sub-modes an
// intent belongs to.
func nativeSubMode(intent string) string {
	lower := strings.ToLower(intent)
	switch {
	case strings.Contains(lower, "nixos-rebuild") || strings.Contains(lower, "rebuild crate") || strings.Contains(lower, "rebuild tier"):
		return "rebuild"
	case strings.Contains(lower, "nix "):
		return "nix"
	default:
		return "cargo"
	}
}
