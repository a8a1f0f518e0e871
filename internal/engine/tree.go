// Package engine implements the tree data model: nodes, parent/child
// graph, lineage, leaf enumeration, and the rule/escalation metadata
// carried on every node.
package engine

import (
	"encoding/json"
	"fmt"
	"os"
)

// Scale is the organizational level of a Node.
type Scale string

const (
	ScaleExecutive  Scale = "executive"
	ScaleDepartment Scale = "department"
	ScaleCaptain    Scale = "captain"
	ScaleModule     Scale = "module"
	ScaleCrate      Scale = "crate"
	ScaleBlueprint  Scale = "blueprint"
)

// RuleAction is the effect a Rule has when it matches.
type RuleAction string

const (
	ActionPass      RuleAction = "pass"
	ActionTransform RuleAction = "transform"
	ActionBlock     RuleAction = "block"
	ActionEscalate  RuleAction = "escalate"
	ActionLog       RuleAction = "log"
)

// Rule is an ordered, named constraint attached to a node.
type Rule struct {
	Name      string     `json:"name"`
	Condition string     `json:"condition"`
	Action    RuleAction `json:"action"`
}

// Escalation is a node's policy for rewriting a failure into a targeted surface.
type Escalation struct {
	TargetID  string   `json:"target_id"`
	Threshold int      `json:"threshold"` // 1..10
	Cascade   []string `json:"cascade"`
}

// Node is a member of the coordination tree.
type Node struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Scale      Scale          `json:"scale"`
	Parent     string         `json:"parent,omitempty"`
	Children   []string       `json:"children"`
	Rules      []Rule         `json:"rules"`
	Escalation Escalation     `json:"escalation"`
	Metadata   NodeMetadata   `json:"metadata"`
}

// NodeMetadata carries the free-form fields the core consults.
type NodeMetadata struct {
	Files       []string `json:"files,omitempty"`
	Functions   []string `json:"functions,omitempty"`
	CratesOwned []string `json:"crates_owned,omitempty"`
	Tier        int      `json:"tier,omitempty"`
	Extra       map[string]any `json:"-"`
}

// IsLeaf reports whether a node has no children. Only leaves execute.
func (n *Node) IsLeaf() bool {
	return n == nil || len(n.Children) == 0
}

// TreeMeta is the `_meta` block of a tree document.
type TreeMeta struct {
	Title string `json:"title"`
}

// CoordinationHints is the `coordination` block of a tree document.
type CoordinationHints struct {
	Phases []string `json:"phases"`
}

// treeDocument is the on-disk shape of a tree document (§6).
type treeDocument struct {
	Meta         TreeMeta          `json:"_meta"`
	Coordination CoordinationHints `json:"coordination"`
	Nodes        []Node            `json:"nodes"`
}

// Tree is a loaded, validated tree document.
type Tree struct {
	Meta         TreeMeta
	Coordination CoordinationHints
	Nodes        map[string]*Node
	rootID       string
}

// Load reads a tree document from path and validates its invariants:
// exactly one root, and every parent/child reference resolves.
func Load(path string) (*Tree, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("engine: load tree: %w", err)
	}

	var doc treeDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("engine: parse tree document: %w", err)
	}

	return FromDocument(doc.Meta, doc.Coordination, doc.Nodes)
}

// FromDocument builds and validates a Tree from already-parsed nodes.
// Exposed so callers that don't load from a file (tests, embedded trees)
// can still go through the same invariant checks.
func FromDocument(meta TreeMeta, coord CoordinationHints, nodes []Node) (*Tree, error) {
	t := &Tree{
		Meta:         meta,
		Coordination: coord,
		Nodes:        make(map[string]*Node, len(nodes)),
	}

	for i := range nodes {
		n := nodes[i]
		if _, exists := t.Nodes[n.ID]; exists {
			return nil, fmt.Errorf("engine: duplicate node id %q", n.ID)
		}
		t.Nodes[n.ID] = &n
	}

	if err := t.validate(); err != nil {
		return nil, err
	}

	return t, nil
}

func (t *Tree) validate() error {
	var roots []string
	for id, n := range t.Nodes {
		if n.Parent == "" {
			roots = append(roots, id)
			continue
		}
		parent, ok := t.Nodes[n.Parent]
		if !ok {
			return fmt.Errorf("engine: node %q references unknown parent %q", id, n.Parent)
		}
		if !containsID(parent.Children, id) {
			return fmt.Errorf("engine: node %q is not listed as a child of its parent %q", id, n.Parent)
		}
	}

	for id, n := range t.Nodes {
		for _, childID := range n.Children {
			child, ok := t.Nodes[childID]
			if !ok {
				return fmt.Errorf("engine: node %q references unknown child %q", id, childID)
			}
			if child.Parent != id {
				return fmt.Errorf("engine: node %q claims child %q whose parent is %q", id, childID, child.Parent)
			}
		}
	}

	if len(roots) != 1 {
		return fmt.Errorf("engine: tree must have exactly one root, found %d", len(roots))
	}
	t.rootID = roots[0]

	return nil
}

func containsID(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// Root returns the tree's single root node.
func (t *Tree) Root() *Node {
	return t.Nodes[t.rootID]
}

// Get returns the node by id, or nil if absent.
func (t *Tree) Get(id string) *Node {
	return t.Nodes[id]
}

// Lineage returns the root-to-node path for id, recomputed on demand.
// Returns nil if id does not resolve.
func (t *Tree) Lineage(id string) []*Node {
	n, ok := t.Nodes[id]
	if !ok {
		return nil
	}

	var chain []*Node
	cur := n
	for cur != nil {
		chain = append([]*Node{cur}, chain...)
		if cur.Parent == "" {
			break
		}
		cur = t.Nodes[cur.Parent]
	}
	return chain
}

// LineageIDs is Lineage projected to ids, for embedding in Task/Result.
func (t *Tree) LineageIDs(id string) []string {
	chain := t.Lineage(id)
	ids := make([]string, len(chain))
	for i, n := range chain {
		ids[i] = n.ID
	}
	return ids
}

// Leaves performs a depth-first walk skipping any node with children,
// starting from `from` (or the root if from is empty).
func (t *Tree) Leaves(from string) []*Node {
	start := t.rootID
	if from != "" {
		start = from
	}
	root, ok := t.Nodes[start]
	if !ok {
		return nil
	}

	var out []*Node
	var walk func(n *Node)
	walk = func(n *Node) {
		if n.IsLeaf() {
			out = append(out, n)
			return
		}
		for _, childID := range n.Children {
			if child := t.Nodes[childID]; child != nil {
				walk(child)
			}
		}
	}
	walk(root)
	return out
}
