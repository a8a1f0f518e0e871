package docsgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/antigravity-dev/ptc/internal/embedding"
	"github.com/antigravity-dev/ptc/internal/engine"
	"github.com/antigravity-dev/ptc/internal/store"
)

const docCollection = "docs"

const semanticThreshold = 0.7

// Graph generates and persists one Doc per tree node, wiring structural,
// code-shared, and semantic cross-references between them.
//
// Grounded on internal/architect's constructor-injected access to
// *store.Store and *embedding.Index — the same two collaborators, used
// here to persist docs and to rank semantic similarity instead of
// caching blueprints.
type Graph struct {
	docs         *store.Store
	tree         *engine.Tree
	embeddingIdx *embedding.Index
	logger       *slog.Logger
}

// New builds a Graph. embeddingIdx may be nil — semantic cross-refs are
// then simply empty.
func New(docs *store.Store, tree *engine.Tree, embeddingIdx *embedding.Index, logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{docs: docs, tree: tree, embeddingIdx: embeddingIdx, logger: logger}
}

// GenerateAll generates a Doc for every node in the tree, computes all
// three cross-reference families bidirectionally, stores each doc, and
// returns the full set.
func (g *Graph) GenerateAll(ctx context.Context) ([]Doc, error) {
	docsByID := make(map[string]*Doc, len(g.tree.Nodes))
	order := make([]string, 0, len(g.tree.Nodes))

	for id, n := range g.tree.Nodes {
		d := Generate(g.tree, n)
		previous, _ := g.load(id)
		prevHash := ""
		if previous != nil {
			prevHash = previous.Staleness.SourceHash
		}
		d.Staleness = computeStaleness(d.OwnedFiles, prevHash)
		docsByID[id] = &d
		order = append(order, id)
	}

	for _, id := range order {
		d := docsByID[id]
		n := g.tree.Get(id)
		d.CrossRefs.Structural = structuralRefs(g.tree, n)
	}

	var vectors map[string][]float32
	if g.embeddingIdx != nil && g.embeddingIdx.Enabled() {
		vectors = make(map[string][]float32, len(order))
		for _, id := range order {
			vectors[id] = g.embeddingIdx.EmbedText(ctx, docText(*docsByID[id]))
		}
	}

	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			idA, idB := order[i], order[j]
			a, b := docsByID[idA], docsByID[idB]

			if sharesFiles(a.OwnedFiles, b.OwnedFiles) {
				addEdge(&a.CrossRefs.CodeShared, idB)
				addEdge(&b.CrossRefs.CodeShared, idA)
			}

			if vectors != nil {
				if cosineSimilarity(vectors[idA], vectors[idB]) > semanticThreshold {
					addEdge(&a.CrossRefs.Semantic, idB)
					addEdge(&b.CrossRefs.Semantic, idA)
				}
			}
		}
	}

	docs := make([]Doc, 0, len(order))
	for _, id := range order {
		d := docsByID[id]
		d.ContentHash = contentHash(*d)
		if err := g.store(*d); err != nil {
			return nil, fmt.Errorf("docsgraph: store doc %q: %w", id, err)
		}
		docs = append(docs, *d)
	}
	return docs, nil
}

func contentHash(d Doc) string {
	raw, err := json.Marshal(struct {
		Description string
		WhatItDoes  string
		OwnedFiles  []string
		EntryPoints []string
		KeyConcepts []string
		CrossRefs   CrossRefs
	}{d.Description, d.WhatItDoes, d.OwnedFiles, d.EntryPoints, d.KeyConcepts, d.CrossRefs})
	if err != nil {
		return ""
	}
	return store.Hash(raw)
}

func (g *Graph) load(id string) (*Doc, error) {
	document, err := g.docs.Get(docCollection, id)
	if err != nil {
		return nil, err
	}
	if document == nil {
		return nil, nil
	}
	raw, err := json.Marshal(document.Content)
	if err != nil {
		return nil, err
	}
	var d Doc
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	d.ObjectCID = document.ObjectCID
	return &d, nil
}

func (g *Graph) store(d Doc) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	var content map[string]any
	if err := json.Unmarshal(raw, &content); err != nil {
		return err
	}
	return g.docs.Put(docCollection, d.NodeID, content, d.ContentHash)
}

// PropagateStaleness returns every node directly connected to id by any
// cross-reference family (structural, code-shared, or semantic) —
// spec §8's "potentially affected" set after a re-run finds id stale.
func (g *Graph) PropagateStaleness(id string) ([]string, error) {
	d, err := g.load(id)
	if err != nil {
		return nil, fmt.Errorf("docsgraph: propagate staleness: %w", err)
	}
	if d == nil {
		return nil, nil
	}
	affected := dedupe(append(append(append([]string(nil),
		d.CrossRefs.Structural...), d.CrossRefs.CodeShared...), d.CrossRefs.Semantic...))
	return affected, nil
}
