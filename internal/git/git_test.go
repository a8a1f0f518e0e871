package git

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/ptc/internal/engine"
	"github.com/antigravity-dev/ptc/internal/store"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v (%s)", args, err, out)
		}
	}
	run("init", "-q", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test")

	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("seed\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", "README.md")
	run("commit", "-q", "-m", "seed")

	return dir
}

func TestBranchForBlueprintCreatesDesignBranch(t *testing.T) {
	dir := initRepo(t)
	l := New(dir, "main", nil)

	branch, previous, err := l.BranchForBlueprint("bp one")
	if err != nil {
		t.Fatal(err)
	}
	if branch != "design/bp-one" {
		t.Errorf("branch = %q, want design/bp-one", branch)
	}
	if previous != "main" {
		t.Errorf("previous = %q, want main", previous)
	}

	current, err := l.currentBranch()
	if err != nil {
		t.Fatal(err)
	}
	if current != branch {
		t.Errorf("current branch = %q, want %q", current, branch)
	}
}

func TestBranchForBlueprintStashesDirtyWorkingTree(t *testing.T) {
	dir := initRepo(t)
	l := New(dir, "main", nil)

	if err := os.WriteFile(filepath.Join(dir, "scratch.txt"), []byte("wip"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := l.BranchForBlueprint("bp-two"); err != nil {
		t.Fatal(err)
	}

	dirty, err := l.isDirty()
	if err != nil {
		t.Fatal(err)
	}
	if dirty {
		t.Error("expected working tree to be clean after stash-on-switch")
	}
}

func TestBuildBranchBranchesFromDesignWhenPresent(t *testing.T) {
	dir := initRepo(t)
	l := New(dir, "main", nil)

	if _, _, err := l.BranchForBlueprint("bp-three"); err != nil {
		t.Fatal(err)
	}

	branch, err := l.BuildBranch("bp-three", "task-1")
	if err != nil {
		t.Fatal(err)
	}
	if branch != "build/bp-three/task-1" {
		t.Errorf("branch = %q, want build/bp-three/task-1", branch)
	}
}

func TestBuildBranchFallsBackToDefaultBranch(t *testing.T) {
	dir := initRepo(t)
	l := New(dir, "main", nil)

	branch, err := l.BuildBranch("no-design-yet", "task-1")
	if err != nil {
		t.Fatal(err)
	}
	current, err := l.currentBranch()
	if err != nil {
		t.Fatal(err)
	}
	if current != branch {
		t.Errorf("current branch = %q, want %q", current, branch)
	}
}

func TestCommitArtifactEmbedsAfterCommit(t *testing.T) {
	dir := initRepo(t)

	var gotID, gotMsg string
	l := New(dir, "main", func(commitID, message, diffSummary string) {
		gotID, gotMsg = commitID, message
	})

	if err := os.WriteFile(filepath.Join(dir, "plan.md"), []byte("do the thing"), 0o644); err != nil {
		t.Fatal(err)
	}

	artifact := store.Artifact{Name: "plan", Type: "decision", Hash: "sha256:abcdef0123456789"}
	commitID, err := l.CommitArtifact(artifact, []string{"plan.md"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if commitID == "" {
		t.Fatal("expected a commit id")
	}
	if gotID != commitID {
		t.Errorf("embed got commit id %q, want %q", gotID, commitID)
	}
	if gotMsg == "" {
		t.Error("expected embed to receive a commit message")
	}
}

func TestCommitArtifactNoopWhenNothingToCommit(t *testing.T) {
	dir := initRepo(t)
	l := New(dir, "main", nil)

	artifact := store.Artifact{Name: "plan", Type: "decision", Hash: "sha256:abcdef"}
	commitID, err := l.CommitArtifact(artifact, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if commitID != "" {
		t.Errorf("commitID = %q, want empty (nothing to commit)", commitID)
	}
}

func TestCommitTraceWritesUnderTracesDir(t *testing.T) {
	dir := initRepo(t)
	l := New(dir, "main", nil)

	trace := engine.Trace{RunID: "run-1", Intent: "ship the feature"}
	trace.Counts.Decomposed = 2
	trace.Counts.Completed = 2

	commitID, err := l.CommitTrace(trace)
	if err != nil {
		t.Fatal(err)
	}
	if commitID == "" {
		t.Fatal("expected a commit id")
	}
	if _, err := os.Stat(filepath.Join(dir, "traces", "run-1.json")); err != nil {
		t.Errorf("expected traces/run-1.json to exist: %v", err)
	}
}

func TestBranchesFiltersByPattern(t *testing.T) {
	dir := initRepo(t)
	l := New(dir, "main", nil)

	if _, _, err := l.BranchForBlueprint("alpha"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := l.BranchForBlueprint("beta"); err != nil {
		t.Fatal(err)
	}

	matches, err := l.Branches("design/")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %v, want 2 design branches", matches)
	}
}

func TestOperationsSilentlySucceedWhenGitUnavailable(t *testing.T) {
	dir := t.TempDir() // not a git repository
	l := New(dir, "main", nil)

	branch, previous, err := l.BranchForBlueprint("bp")
	if err != nil {
		t.Fatalf("BranchForBlueprint: %v", err)
	}
	if branch != "design/bp" || previous != "" {
		t.Errorf("got (%q, %q), want (design/bp, \"\")", branch, previous)
	}

	if matches, err := l.Branches(""); err != nil || matches != nil {
		t.Errorf("Branches = (%v, %v), want (nil, nil)", matches, err)
	}

	if diff, err := l.DiffBlueprint("bp"); err != nil || diff != "" {
		t.Errorf("DiffBlueprint = (%q, %v), want (\"\", nil)", diff, err)
	}

	artifact := store.Artifact{Name: "x", Type: "doc", Hash: "sha256:00"}
	if commitID, err := l.CommitArtifact(artifact, nil, ""); err != nil || commitID != "" {
		t.Errorf("CommitArtifact = (%q, %v), want (\"\", nil)", commitID, err)
	}
}

func TestSanitizeIDStripsUnsafeCharacters(t *testing.T) {
	if got := sanitizeID("proj/alpha beta!"); got != "proj-alpha-beta" {
		t.Errorf("sanitizeID = %q", got)
	}
}
