package ptc

import (
	"strings"

	"github.com/antigravity-dev/ptc/internal/engine"
)

// ScoredNode is one TRIAGE ranking entry.
type ScoredNode struct {
	Node  *engine.Node
	Score float64
}

func searchableString(n *engine.Node) string {
	parts := []string{n.Name, n.ID}
	parts = append(parts, n.Metadata.CratesOwned...)
	parts = append(parts, n.Metadata.Files...)
	parts = append(parts, n.Metadata.Functions...)
	return strings.ToLower(strings.Join(parts, " "))
}

// Triage scores every node by token overlap between the intent and a
// searchable string built from name + id + crates_owned + files +
// functions, keeping only nodes that score above zero, sorted
// descending (spec §4.8 Phase 2). Leaves get a +0.5 tiebreaker when
// they already score above zero.
func Triage(tree *engine.Tree, intent string) []ScoredNode {
	tokens := strings.Fields(strings.ToLower(intent))
	if len(tokens) == 0 {
		return nil
	}

	var ranked []ScoredNode
	for _, n := range tree.Nodes {
		search := searchableString(n)
		var score float64
		seen := map[string]bool{}
		for _, tok := range tokens {
			if seen[tok] || tok == "" {
				continue
			}
			if strings.Contains(search, tok) {
				score++
				seen[tok] = true
			}
		}
		if score > 0 && n.IsLeaf() {
			score += 0.5
		}
		if score > 0 {
			ranked = append(ranked, ScoredNode{Node: n, Score: score})
		}
	}

	sortDescending(ranked)
	return ranked
}

func sortDescending(ranked []ScoredNode) {
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && (ranked[j].Score > ranked[j-1].Score ||
			(ranked[j].Score == ranked[j-1].Score && ranked[j].Node.ID < ranked[j-1].Node.ID)); j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}
}
