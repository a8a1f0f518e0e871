package docsgraph

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/ptc/internal/embedding"
	"github.com/antigravity-dev/ptc/internal/engine"
	"github.com/antigravity-dev/ptc/internal/store"
)

func tempStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "docs.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func buildTree(t *testing.T, files map[string][]string) *engine.Tree {
	t.Helper()
	nodes := []engine.Node{
		{ID: "root", Name: "Root", Scale: engine.ScaleExecutive, Children: []string{"a", "b"}},
		{ID: "a", Name: "A", Scale: engine.ScaleModule, Parent: "root", Metadata: engine.NodeMetadata{Files: files["a"]}},
		{ID: "b", Name: "B", Scale: engine.ScaleModule, Parent: "root", Metadata: engine.NodeMetadata{Files: files["b"]}},
	}
	tree, err := engine.FromDocument(engine.TreeMeta{Title: "docs"}, engine.CoordinationHints{}, nodes)
	if err != nil {
		t.Fatalf("FromDocument: %v", err)
	}
	return tree
}

func TestGenerateAllStructuralRefsIncludeParentChildrenSiblings(t *testing.T) {
	tree := buildTree(t, nil)
	g := New(tempStore(t), tree, nil, nil)

	docs, err := g.GenerateAll(context.Background())
	if err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}

	byID := map[string]Doc{}
	for _, d := range docs {
		byID[d.NodeID] = d
	}

	a := byID["a"]
	if !contains(a.CrossRefs.Structural, "root") || !contains(a.CrossRefs.Structural, "b") {
		t.Errorf("a.Structural = %v, want root and b", a.CrossRefs.Structural)
	}

	root := byID["root"]
	if !contains(root.CrossRefs.Structural, "a") || !contains(root.CrossRefs.Structural, "b") {
		t.Errorf("root.Structural = %v, want a and b", root.CrossRefs.Structural)
	}
}

func TestGenerateAllCodeSharedEdgesAreBidirectional(t *testing.T) {
	tree := buildTree(t, map[string][]string{
		"a": {"shared.go", "a_only.go"},
		"b": {"shared.go"},
	})
	g := New(tempStore(t), tree, nil, nil)

	docs, err := g.GenerateAll(context.Background())
	if err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}
	byID := map[string]Doc{}
	for _, d := range docs {
		byID[d.NodeID] = d
	}

	if !contains(byID["a"].CrossRefs.CodeShared, "b") {
		t.Errorf("a.CodeShared = %v, want b", byID["a"].CrossRefs.CodeShared)
	}
	if !contains(byID["b"].CrossRefs.CodeShared, "a") {
		t.Errorf("b.CodeShared = %v, want a", byID["b"].CrossRefs.CodeShared)
	}
}

type fakeBackend struct{ vectors map[string][]float32 }

func (f fakeBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 1, 0}, nil
}

func TestGenerateAllSemanticEdgesAboveThreshold(t *testing.T) {
	tree := buildTree(t, nil)
	docsStore := tempStore(t)

	vectors := map[string][]float32{}
	for _, n := range tree.Nodes {
		d := Generate(tree, n)
		if n.ID == "root" {
			vectors[docText(d)] = []float32{0, 1, 0}
		} else {
			vectors[docText(d)] = []float32{1, 0, 0}
		}
	}
	backend := fakeBackend{vectors: vectors}
	idx := embedding.New(backend, docsStore, nil, nil)
	g := New(docsStore, tree, idx, nil)

	docs, err := g.GenerateAll(context.Background())
	if err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}
	byID := map[string]Doc{}
	for _, d := range docs {
		byID[d.NodeID] = d
	}

	if !contains(byID["a"].CrossRefs.Semantic, "b") {
		t.Errorf("a.Semantic = %v, want b (identical vectors)", byID["a"].CrossRefs.Semantic)
	}
	if contains(byID["a"].CrossRefs.Semantic, "root") {
		t.Errorf("a.Semantic unexpectedly includes root (orthogonal vector)")
	}
}

func TestStalenessNeverFlipsWhenNodeHasNoOwnedFiles(t *testing.T) {
	tree := buildTree(t, nil)
	g := New(tempStore(t), tree, nil, nil)

	first, err := g.GenerateAll(context.Background())
	if err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}
	second, err := g.GenerateAll(context.Background())
	if err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}

	for _, docs := range [][]Doc{first, second} {
		for _, d := range docs {
			if d.Staleness.IsStale {
				t.Errorf("node %s: IsStale = true, want false (no owned files)", d.NodeID)
			}
		}
	}
}

func TestStalenessDetectsFileChangeBetweenGenerations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "owned.go")
	if err := os.WriteFile(path, []byte("package a\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tree := buildTree(t, map[string][]string{"a": {path}})
	g := New(tempStore(t), tree, nil, nil)

	first, err := g.GenerateAll(context.Background())
	if err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}
	for _, d := range first {
		if d.NodeID == "a" && d.Staleness.IsStale {
			t.Fatal("expected first generation to never be stale")
		}
	}

	if err := os.WriteFile(path, []byte("package a\n\nfunc Changed() {}\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	second, err := g.GenerateAll(context.Background())
	if err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}
	var foundStale bool
	for _, d := range second {
		if d.NodeID == "a" {
			foundStale = d.Staleness.IsStale
		}
	}
	if !foundStale {
		t.Error("expected node a to be stale after its owned file changed")
	}

	affected, err := g.PropagateStaleness("a")
	if err != nil {
		t.Fatalf("PropagateStaleness: %v", err)
	}
	if !contains(affected, "root") {
		t.Errorf("PropagateStaleness(a) = %v, want root included (structural edge)", affected)
	}
}

func contains(ids []string, want string) bool {
	for _, id := range ids {
		if id == want {
			return true
		}
	}
	return false
}
