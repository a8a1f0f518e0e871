package docsgraph

import (
	"math"
	"strings"

	"github.com/antigravity-dev/ptc/internal/engine"
)

// structuralRefs returns parent + children + siblings (spec §4.9).
func structuralRefs(tree *engine.Tree, n *engine.Node) []string {
	var refs []string
	if n.Parent != "" {
		refs = append(refs, n.Parent)
		if parent := tree.Get(n.Parent); parent != nil {
			for _, sib := range parent.Children {
				if sib != n.ID {
					refs = append(refs, sib)
				}
			}
		}
	}
	refs = append(refs, n.Children...)
	return dedupe(refs)
}

// sharesFiles reports whether two owned-file sets overlap non-trivially
// (at least one file in common).
func sharesFiles(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, f := range a {
		set[f] = true
	}
	for _, f := range b {
		if set[f] {
			return true
		}
	}
	return false
}

// docText is the text a semantic embedding is computed over.
func docText(d Doc) string {
	parts := []string{d.Title, d.Description, d.WhatItDoes, strings.Join(d.KeyConcepts, " ")}
	return strings.Join(parts, " ")
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func dedupe(ids []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func addEdge(refs *[]string, id string) {
	for _, r := range *refs {
		if r == id {
			return
		}
	}
	*refs = append(*refs, id)
}
