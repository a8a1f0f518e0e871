package codie

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
)

var interpPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)?)\}`)

// interpolate replaces every `{var}` / `{var.field}` reference in s with
// its stringified value from ctx. References missing from ctx render as
// the empty string rather than erroring — CODIE halts only come from
// rules and fences (spec §4.5).
func interpolate(s string, ctx map[string]any) string {
	return interpPattern.ReplaceAllStringFunc(s, func(ref string) string {
		key := ref[1 : len(ref)-1]
		v, ok := lookupPath(ctx, key)
		if !ok {
			return ""
		}
		return fmt.Sprintf("%v", v)
	})
}

// lookupPath resolves "name" or "name.field" against ctx.
func lookupPath(ctx map[string]any, path string) (any, bool) {
	name, field, hasField := strings.Cut(path, ".")
	v, ok := ctx[name]
	if !ok {
		return nil, false
	}
	if !hasField {
		return v, true
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	fv, ok := m[field]
	return fv, ok
}

// resolveSource implements the `bark` source reference resolver (spec
// §4.5): @fs/read, @system/detect_os|detect_all, @cargo/*,
// @toolchain/<tool>, @validators/<script>, or a bare path.
func (in *Interpreter) resolveSource(ctx context.Context, expr string, vars map[string]any) (any, error) {
	expr = interpolate(expr, vars)

	switch {
	case strings.HasPrefix(expr, "@fs/read("):
		path := strings.TrimSuffix(strings.TrimPrefix(expr, "@fs/read("), ")")
		return readFile(path)

	case expr == "@system/detect_os":
		return detectOS(), nil

	case expr == "@system/detect_all":
		all := detectOS()
		all["disk_total_gb"] = 0.0
		all["disk_free_gb"] = 0.0
		return all, nil

	case strings.HasPrefix(expr, "@cargo/build("):
		crate := strings.TrimSuffix(strings.TrimPrefix(expr, "@cargo/build("), ")")
		return in.runCommand(ctx, cargoTimeout, "cargo", "build", "-p", crate)

	case expr == "@cargo/test_workspace":
		return in.runCommand(ctx, cargoTimeout, "cargo", "test", "--workspace")

	case strings.HasPrefix(expr, "@toolchain/"):
		tool := strings.TrimPrefix(expr, "@toolchain/")
		return checkToolchain(tool), nil

	case strings.HasPrefix(expr, "@validators/"):
		script := strings.TrimPrefix(expr, "@validators/")
		return in.runValidator(ctx, script)

	case strings.HasPrefix(expr, "@"):
		return readFile(strings.TrimPrefix(expr, "@"))

	default:
		return readFile(expr)
	}
}

func readFile(path string) (any, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return map[string]any{"missing": true, "path": path}, nil
	}
	return string(body), nil
}

func detectOS() map[string]any {
	return map[string]any{
		"type":    runtime.GOOS,
		"release": runtime.Version(),
		"machine": runtime.GOARCH,
	}
}

func checkToolchain(tool string) map[string]any {
	path, err := exec.LookPath(tool)
	if err != nil {
		return map[string]any{"missing": true, "tool": tool}
	}
	cmd := exec.Command(tool, "--version")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return map[string]any{"missing": true, "tool": tool, "path": path}
	}
	return map[string]any{"missing": false, "tool": tool, "path": path, "version": strings.TrimSpace(string(out))}
}

func (in *Interpreter) runValidator(ctx context.Context, script string) (any, error) {
	if in.validatorsDir == "" {
		return map[string]any{"status": "skipped", "reason": "no validators directory configured"}, nil
	}
	path := filepath.Join(in.validatorsDir, filepath.Base(script))
	return in.runCommand(ctx, validatorTimeout, path)
}

func (in *Interpreter) runCommand(ctx context.Context, timeoutSeconds int, name string, args ...string) (map[string]any, error) {
	cctx, cancel := contextWithTimeout(ctx, timeoutSeconds)
	defer cancel()

	cmd := exec.CommandContext(cctx, name, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	return map[string]any{
		"command":   strings.TrimSpace(name + " " + strings.Join(args, " ")),
		"exit_code": strconv.Itoa(exitCode),
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
	}, nil
}
