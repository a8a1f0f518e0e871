package git

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/antigravity-dev/ptc/internal/engine"
	"github.com/antigravity-dev/ptc/internal/store"
)

// hashPrefix returns the first 12 hex characters of a "sha256:<hex>"
// content hash, for compact commit-message identifiers.
func hashPrefix(hash string) string {
	h := strings.TrimPrefix(hash, "sha256:")
	if len(h) > 12 {
		h = h[:12]
	}
	return h
}

// CommitArtifact stages the artifact's listed files (or all changes if
// none are listed), commits with an auto-generated message, and returns
// the commit id. After a successful commit it fires the Embedding
// Index's (commit_id, message, diff-summary) embed off in the
// background. message overrides the auto-generated one if non-empty.
//
// Grounded on internal/git/commits.go's CombinedOutput + fmt.Errorf
// wrapping idiom (cortex), generalized from bead-id commit scraping to
// an explicit artifact-commit operation.
func (l *Layer) CommitArtifact(artifact store.Artifact, files []string, message string) (commitID string, err error) {
	if !l.available() {
		return "", nil
	}

	if len(files) == 0 {
		if out, err := l.run("add", "-A"); err != nil {
			return "", fmt.Errorf("git: stage all changes: %w (%s)", err, out)
		}
	} else {
		args := append([]string{"add"}, files...)
		if out, err := l.run(args...); err != nil {
			return "", fmt.Errorf("git: stage %v: %w (%s)", files, err, out)
		}
	}

	if message == "" {
		message = fmt.Sprintf("artifact(%s): %s [%s]", artifact.Type, artifact.Name, hashPrefix(artifact.Hash))
	}

	if out, err := l.run("commit", "-m", message); err != nil {
		if strings.Contains(out, "nothing to commit") {
			return "", nil
		}
		return "", fmt.Errorf("git: commit artifact %s: %w (%s)", artifact.Name, err, out)
	}

	commitID, err = l.run("rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git: resolve commit id: %w", err)
	}

	if l.embed != nil {
		diffSummary, _ := l.run("show", "--stat", "--oneline", commitID)
		commitIDCopy, messageCopy, summaryCopy := commitID, message, diffSummary
		l.embed(commitIDCopy, messageCopy, summaryCopy)
	}

	return commitID, nil
}

// CommitTrace writes trace as JSON under `traces/<run_id>.json` and
// commits it with an auto-generated message summarizing completion.
func (l *Layer) CommitTrace(trace engine.Trace) (commitID string, err error) {
	if !l.available() {
		return "", nil
	}

	body, err := json.MarshalIndent(trace, "", "  ")
	if err != nil {
		return "", fmt.Errorf("git: marshal trace: %w", err)
	}

	tracesDir := filepath.Join(l.workspace, "traces")
	if err := os.MkdirAll(tracesDir, 0o755); err != nil {
		return "", fmt.Errorf("git: create traces dir: %w", err)
	}
	path := filepath.Join(tracesDir, sanitizeID(trace.RunID)+".json")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("git: write trace file: %w", err)
	}

	if out, err := l.run("add", filepath.Join("traces", sanitizeID(trace.RunID)+".json")); err != nil {
		return "", fmt.Errorf("git: stage trace: %w (%s)", err, out)
	}

	message := fmt.Sprintf("trace: %s (%d/%d)", trace.Intent, trace.Counts.Completed, trace.Counts.Decomposed)
	if out, err := l.run("commit", "-m", message); err != nil {
		if strings.Contains(out, "nothing to commit") {
			return "", nil
		}
		return "", fmt.Errorf("git: commit trace: %w (%s)", err, out)
	}

	return l.run("rev-parse", "HEAD")
}
