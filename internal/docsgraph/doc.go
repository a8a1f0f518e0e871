// Package docsgraph generates one documentation artifact per tree node
// and links them with structural, code-shared, and semantic
// cross-references, tracking staleness against the node's owned files
// (spec §4.9).
package docsgraph

// CrossRefs groups a doc's three families of links. Every edge is
// rendered bidirectionally by Graph.GenerateAll.
type CrossRefs struct {
	Structural []string `json:"structural"`
	CodeShared []string `json:"code_shared"`
	Semantic   []string `json:"semantic"`
}

// Staleness tracks whether a doc's owned files have changed since the
// doc was last generated.
type Staleness struct {
	SourceHash   string `json:"source_hash"`
	IsStale      bool   `json:"is_stale"`
	LastVerified string `json:"last_verified,omitempty"`
}

// Doc is one per tree node (spec §3).
type Doc struct {
	NodeID       string    `json:"node_id"`
	Title        string    `json:"title"`
	Scale        string    `json:"scale"`
	Description  string    `json:"description"`
	WhatItDoes   string    `json:"what_it_does"`
	OwnedFiles   []string  `json:"owned_files"`
	EntryPoints  []string  `json:"entry_points"`
	KeyConcepts  []string  `json:"key_concepts"`
	CrossRefs    CrossRefs `json:"cross_refs"`
	Staleness    Staleness `json:"staleness"`
	ContentHash  string    `json:"content_hash"`
	ObjectCID    string    `json:"object_cid,omitempty"`
}
