package docsgraph

import (
	"fmt"
	"strings"

	"github.com/antigravity-dev/ptc/internal/engine"
)

// describe builds a one-line role description from a node's scale and
// lineage, the way a generated doc's "description" field reads.
func describe(tree *engine.Tree, n *engine.Node) string {
	lineage := tree.Lineage(n.ID)
	var names []string
	for _, l := range lineage {
		names = append(names, l.Name)
	}
	return fmt.Sprintf("%s-scale node at %s", n.Scale, strings.Join(names, " / "))
}

// whatItDoes summarizes a node's rules into a short sentence; empty
// when the node has no rules.
func whatItDoes(n *engine.Node) string {
	if len(n.Rules) == 0 {
		return ""
	}
	var actions []string
	for _, r := range n.Rules {
		actions = append(actions, string(r.Action))
	}
	return fmt.Sprintf("applies %d rule(s): %s", len(n.Rules), strings.Join(actions, ", "))
}

// keyConcepts pulls owned crates and rule names as the doc's notable
// terms — the closest thing the tree model carries to topic tags.
func keyConcepts(n *engine.Node) []string {
	concepts := append([]string(nil), n.Metadata.CratesOwned...)
	for _, r := range n.Rules {
		concepts = append(concepts, r.Name)
	}
	return concepts
}

// Generate produces the doc for a single node, without cross-references
// or staleness (those are computed graph-wide by Graph.GenerateAll).
func Generate(tree *engine.Tree, n *engine.Node) Doc {
	return Doc{
		NodeID:      n.ID,
		Title:       n.Name,
		Scale:       string(n.Scale),
		Description: describe(tree, n),
		WhatItDoes:  whatItDoes(n),
		OwnedFiles:  append([]string(nil), n.Metadata.Files...),
		EntryPoints: append([]string(nil), n.Metadata.Functions...),
		KeyConcepts: keyConcepts(n),
	}
}
