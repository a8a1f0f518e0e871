package ptc

import (
	"strings"

	"github.com/antigravity-dev/ptc/internal/engine"
)

// Plan implements spec §4.8 Phase 3: either a target-walk or a
// triage-ranked fan-out, deduplicated by node_id. depGraph may be nil —
// the blast-radius optimization is then simply skipped.
func Plan(tree *engine.Tree, intent, target string, ranked []ScoredNode, depGraph *engine.DepGraph) []*engine.Node {
	if target != "" {
		node := tree.Get(target)
		if node == nil {
			return nil
		}
		return dedupeLeaves(tree.Leaves(target))
	}

	if depGraph != nil {
		if crates := mentionedCrates(intent, tree); len(crates) > 0 {
			return planByBlastRadius(tree, depGraph, crates)
		}
	}

	return planByFanOut(tree, ranked)
}

func dedupeLeaves(leaves []*engine.Node) []*engine.Node {
	seen := map[string]bool{}
	var out []*engine.Node
	for _, l := range leaves {
		if !seen[l.ID] {
			seen[l.ID] = true
			out = append(out, l)
		}
	}
	return out
}

// mentionedCrates returns the ids of crate-scale nodes whose name or
// owned-crate metadata is literally named in the intent.
func mentionedCrates(intent string, tree *engine.Tree) []string {
	lower := strings.ToLower(intent)
	var mentioned []string
	for id, n := range tree.Nodes {
		if n.Scale != engine.ScaleCrate {
			continue
		}
		candidates := append([]string{n.Name}, n.Metadata.CratesOwned...)
		for _, c := range candidates {
			if c != "" && strings.Contains(lower, strings.ToLower(c)) {
				mentioned = append(mentioned, id)
				break
			}
		}
	}
	return mentioned
}

// planByBlastRadius decomposes from every node transitively affected by
// a change to the mentioned crates, instead of by keyword match.
func planByBlastRadius(tree *engine.Tree, depGraph *engine.DepGraph, seeds []string) []*engine.Node {
	affected := append(append([]string(nil), seeds...), depGraph.BlastRadius(seeds)...)

	seen := map[string]bool{}
	var leaves []*engine.Node
	for _, id := range affected {
		node := tree.Get(id)
		if node == nil {
			continue
		}
		for _, leaf := range tree.Leaves(id) {
			if !seen[leaf.ID] {
				seen[leaf.ID] = true
				leaves = append(leaves, leaf)
			}
		}
	}
	return leaves
}

// buildTask derives a Task from a targeted leaf node and the run's intent.
func buildTask(n *engine.Node, intent string, tree *engine.Tree) engine.Task {
	return engine.Task{
		NodeID:     n.ID,
		NodeName:   n.Name,
		Scale:      n.Scale,
		Intent:     intent,
		Lineage:    tree.LineageIDs(n.ID),
		Files:      append([]string(nil), n.Metadata.Files...),
		Functions:  append([]string(nil), n.Metadata.Functions...),
		Rules:      append([]engine.Rule(nil), n.Rules...),
		Escalation: n.Escalation,
	}
}

// planByFanOut walks the triage ranking, decomposing each candidate
// subject to spec §4.8's fan-out rules: skip executive-scale non-root
// nodes; take leaves directly; decompose a branch only if none of its
// children are already targeted.
func planByFanOut(tree *engine.Tree, ranked []ScoredNode) []*engine.Node {
	targeted := map[string]bool{}
	var leaves []*engine.Node

	addLeaf := func(n *engine.Node) {
		if !targeted[n.ID] {
			targeted[n.ID] = true
			leaves = append(leaves, n)
		}
	}

	for _, sn := range ranked {
		node := sn.Node
		if node.Scale == engine.ScaleExecutive && node.Parent != "" {
			continue
		}

		if node.IsLeaf() {
			addLeaf(node)
			continue
		}

		anyChildTargeted := false
		for _, c := range node.Children {
			if targeted[c] {
				anyChildTargeted = true
				break
			}
		}
		if anyChildTargeted {
			continue
		}

		for _, leaf := range tree.Leaves(node.ID) {
			addLeaf(leaf)
		}
	}

	return leaves
}
