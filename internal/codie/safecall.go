package codie

import (
	"context"
	"fmt"
	"strings"
)

// SafeCall is one whitelisted `cali` operation.
type SafeCall func(ctx context.Context, args []string) (map[string]any, error)

// safeCommandPrefixes is the fixed set of shell-command prefixes a
// named op's underlying command must match before it is allowed to
// run — defense in depth against a misconfigured mapping, per spec
// §4.5: "a shell string that must begin with one of a fixed set of
// allow-listed prefixes; anything else returns {status: blocked, ...}
// without executing."
var safeCommandPrefixes = []string{"cargo ", "nix ", "git "}

func allowedPrefix(command string) bool {
	for _, p := range safeCommandPrefixes {
		if strings.HasPrefix(command, p) {
			return true
		}
	}
	return false
}

// defaultSafeCalls is the whitelist for `cali`: EXECUTE_INTENT, BUILD,
// TEST, STATUS, VERIFY, SEED. Each is either a pure operation or a
// fixed shell command checked against safeCommandPrefixes.
func defaultSafeCalls(in *Interpreter) map[string]SafeCall {
	shellOp := func(name string, parts ...string) SafeCall {
		command := strings.Join(parts, " ")
		return func(ctx context.Context, args []string) (map[string]any, error) {
			if !allowedPrefix(command) {
				return map[string]any{"status": "blocked", "reason": "not in safe command set"}, nil
			}
			return in.runCommand(ctx, cargoTimeout, parts[0], parts[1:]...)
		}
	}

	return map[string]SafeCall{
		"EXECUTE_INTENT": func(ctx context.Context, args []string) (map[string]any, error) {
			if in.executeIntent == nil || len(args) == 0 {
				return map[string]any{"status": "blocked", "reason": "not in safe command set"}, nil
			}
			return in.executeIntent(ctx, args[0])
		},
		"BUILD":  shellOp("BUILD", "cargo", "build"),
		"TEST":   shellOp("TEST", "cargo", "test", "--workspace"),
		"VERIFY": shellOp("VERIFY", "cargo", "check"),
		"STATUS": shellOp("STATUS", "git", "status", "--porcelain"),
		"SEED": func(ctx context.Context, args []string) (map[string]any, error) {
			return map[string]any{"status": "seeded", "args": fmt.Sprintf("%v", args)}, nil
		},
	}
}
