package architect

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/ptc/internal/embedding"
	"github.com/antigravity-dev/ptc/internal/engine"
	"github.com/antigravity-dev/ptc/internal/executor"
	"github.com/antigravity-dev/ptc/internal/store"
)

func tempStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "architect.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testTree(t *testing.T) *engine.Tree {
	t.Helper()
	tree, err := engine.FromDocument(engine.TreeMeta{Title: "test"}, engine.CoordinationHints{}, []engine.Node{
		{ID: "root", Children: []string{"crate:storage"}},
		{ID: "crate:storage", Parent: "root", Scale: engine.ScaleCrate},
	})
	if err != nil {
		t.Fatalf("FromDocument: %v", err)
	}
	return tree
}

func TestCreateBlueprintGeneratesAndStores(t *testing.T) {
	docs := tempStore(t)
	a := New(docs, testTree(t), nil, nil, 0.9, nil, nil)

	res, err := a.CreateBlueprint(context.Background(), "design a retry policy for the storage crate", executor.BlueprintContext{
		NodeID: "crate:storage",
		Files:  []string{"crates/storage/src/retry.rs"},
		Rules:  []engine.Rule{{Name: "r1", Action: engine.ActionBlock}},
	})
	if err != nil {
		t.Fatalf("CreateBlueprint: %v", err)
	}
	if res.Cached {
		t.Error("first call should not be cached")
	}
	if res.ID == "" || res.Status != string(StatusDraft) {
		t.Errorf("result = %+v", res)
	}

	bp, err := a.load(res.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if bp == nil {
		t.Fatal("expected blueprint to be stored")
	}
	if len(bp.Where.Modules) != 1 || bp.Where.Modules[0] != "crates" {
		t.Errorf("Where.Modules = %v, want [crates]", bp.Where.Modules)
	}
	if len(bp.How.Patterns) != 1 || bp.How.Patterns[0] != "gate" {
		t.Errorf("How.Patterns = %v, want [gate]", bp.How.Patterns)
	}
}

func TestCreateBlueprintL1CacheHitReturnsSameID(t *testing.T) {
	docs := tempStore(t)
	a := New(docs, testTree(t), nil, nil, 0.9, nil, nil)

	first, err := a.CreateBlueprint(context.Background(), "Design A Retry Policy", executor.BlueprintContext{})
	if err != nil {
		t.Fatalf("CreateBlueprint: %v", err)
	}

	second, err := a.CreateBlueprint(context.Background(), "  design a retry policy  ", executor.BlueprintContext{})
	if err != nil {
		t.Fatalf("CreateBlueprint: %v", err)
	}
	if !second.Cached {
		t.Error("expected second call (case/whitespace-only difference) to be an L1 cache hit")
	}
	if second.ID != first.ID {
		t.Errorf("ID = %s, want %s (same blueprint)", second.ID, first.ID)
	}
}

type fakeBackend struct{ vectors map[string][]float32 }

func (f fakeBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vectors[text], nil
}

func TestCreateBlueprintL2SemanticCacheHit(t *testing.T) {
	docs := tempStore(t)
	backend := fakeBackend{vectors: map[string][]float32{
		"blueprint: design a retry policy for storage":       {1, 0, 0},
		"blueprint: design a retry approach for storage too": {1, 0, 0},
	}}
	idx := embedding.New(backend, docs, nil, nil)
	a := New(docs, testTree(t), idx, nil, 0.9, nil, nil)

	first, err := a.CreateBlueprint(context.Background(), "design a retry policy for storage", executor.BlueprintContext{})
	if err != nil {
		t.Fatalf("CreateBlueprint: %v", err)
	}

	second, err := a.CreateBlueprint(context.Background(), "design a retry approach for storage too", executor.BlueprintContext{})
	if err != nil {
		t.Fatalf("CreateBlueprint: %v", err)
	}
	if !second.Cached {
		t.Error("expected an L2 semantic cache hit (identical embedding vectors)")
	}
	if second.ID != first.ID {
		t.Errorf("ID = %s, want %s", second.ID, first.ID)
	}
}

func TestBlueprintToTasksPopulatesChildrenAndFlipsToBuilding(t *testing.T) {
	docs := tempStore(t)
	a := New(docs, testTree(t), nil, nil, 0.9, nil, nil)

	bp := &Blueprint{
		ID:         "bp-1",
		TargetNode: "crate:storage",
		BuilderTasks: []BuilderTask{
			{TaskID: "t1", Intent: "implement retry", DependsOn: nil},
			{TaskID: "t2", Intent: "test retry", DependsOn: []string{"t1"}},
		},
	}
	if err := a.store(bp); err != nil {
		t.Fatalf("store: %v", err)
	}

	tasks, err := a.BlueprintToTasks(bp)
	if err != nil {
		t.Fatalf("BlueprintToTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[1].DependsOn[0] != "t1" {
		t.Errorf("DependsOn = %v", tasks[1].DependsOn)
	}
	if bp.Status != StatusBuilding {
		t.Errorf("Status = %s, want building", bp.Status)
	}
	if len(bp.Children) != 2 || bp.Children[0] != "t1" {
		t.Errorf("Children = %v", bp.Children)
	}
}

func TestValidateFlagsMissingFieldsAndFiles(t *testing.T) {
	a := New(tempStore(t), testTree(t), nil, nil, 0.9, nil, nil)

	bp := &Blueprint{
		TargetNode:   "crate:storage",
		BuilderTasks: []BuilderTask{{TaskID: "t1", Intent: "fix the bug", Files: []string{"/nonexistent/path.rs"}}},
	}
	result := a.Validate(bp)
	if result.Valid {
		t.Fatal("expected invalid: no name, no acceptance criteria")
	}
	if len(result.Warnings) != 1 {
		t.Errorf("expected one warning for the missing file, got %v", result.Warnings)
	}
}

func TestValidateSkipsFileCheckWhenIntentSaysCreate(t *testing.T) {
	a := New(tempStore(t), testTree(t), nil, nil, 0.9, nil, nil)

	bp := &Blueprint{
		Name:       "x",
		TargetNode: "crate:storage",
		BuilderTasks: []BuilderTask{
			{TaskID: "t1", Intent: "create a new module", Files: []string{"/nonexistent/path.rs"}},
		},
		Acceptance: Acceptance{Criteria: []string{"compiles"}},
	}
	result := a.Validate(bp)
	if len(result.Warnings) != 0 {
		t.Errorf("expected no warnings when intent contains create, got %v", result.Warnings)
	}
}

func TestValidateRejectsUnknownTargetNode(t *testing.T) {
	a := New(tempStore(t), testTree(t), nil, nil, 0.9, nil, nil)
	bp := &Blueprint{BuilderTasks: []BuilderTask{{TaskID: "t1", Intent: "fix it", TargetNode: "nonexistent"}}}
	result := a.Validate(bp)
	if result.Valid {
		t.Fatal("expected invalid: unknown target_node")
	}
}

func TestVerifySetsStatusFromResults(t *testing.T) {
	a := New(tempStore(t), testTree(t), nil, nil, 0.9, nil, nil)
	bp := &Blueprint{ID: "bp-1", Children: []string{"t1", "t2"}}
	if err := a.store(bp); err != nil {
		t.Fatalf("store: %v", err)
	}

	verified, err := a.Verify(bp, map[string]engine.Result{
		"t1": {Status: engine.StatusCompleted},
		"t2": {Status: engine.StatusCompleted},
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verified.Status != StatusVerified {
		t.Errorf("Status = %s, want verified", verified.Status)
	}

	bp2 := &Blueprint{ID: "bp-2", Children: []string{"t1", "t2"}}
	if err := a.store(bp2); err != nil {
		t.Fatalf("store: %v", err)
	}
	failed, err := a.Verify(bp2, map[string]engine.Result{
		"t1": {Status: engine.StatusCompleted},
		"t2": {Status: engine.StatusFailed},
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if failed.Status != StatusFailed {
		t.Errorf("Status = %s, want failed", failed.Status)
	}
}

func TestUpdateDeepMergesAndBumpsVersion(t *testing.T) {
	docs := tempStore(t)
	a := New(docs, testTree(t), nil, nil, 0.9, nil, nil)

	res, err := a.CreateBlueprint(context.Background(), "design the thing", executor.BlueprintContext{NodeID: "crate:storage"})
	if err != nil {
		t.Fatalf("CreateBlueprint: %v", err)
	}

	updated, err := a.Update(context.Background(), res.ID, map[string]any{
		"acceptance": map[string]any{"criteria": []any{"compiles", "passes tests"}},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("Version = %d, want 2", updated.Version)
	}
	if len(updated.Acceptance.Criteria) != 2 {
		t.Errorf("Acceptance.Criteria = %v", updated.Acceptance.Criteria)
	}
	if updated.ContentHash == "" {
		t.Error("expected a recomputed content_hash")
	}
}
