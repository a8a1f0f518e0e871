// Package codie implements the CODIE interpreter (spec §4.5): a small
// declarative language that encodes a leaf task as an AST of typed
// nodes, parsed from a line-oriented, pipe-tree-prefixed surface syntax
// and interpreted with structured halt semantics instead of exceptions.
package codie

// Kind identifies one of CODIE's twelve node types by its keyword.
type Kind string

const (
	KindEntry      Kind = "pug"    // named entry point
	KindFetch      Kind = "bark"   // bind a variable from a source reference
	KindBind       Kind = "elf"    // bind a variable from a literal or ref
	KindConst      Kind = "pin"    // set an immutable constant
	KindCall       Kind = "cali"   // invoke a whitelisted safe operation
	KindLoop       Kind = "spin"   // iterate var IN collection
	KindTransform  Kind = "turk"   // conditionally set _transform_result
	KindGuard      Kind = "fence"  // block of rules/children
	KindRule       Kind = "bone"   // a constraint, optionally negated
	KindStruct     Kind = "blob"   // define a record type + zero instance
	KindReturn     Kind = "biz"    // produce an interpolated value
	KindCheckpoint Kind = "anchor" // snapshot labelled context keys
)

// Node is one CODIE AST node. Not every field is meaningful for every
// Kind; see parse.go for how each keyword populates it.
type Node struct {
	Kind Kind

	// Name is the entry/const/struct/rule/checkpoint identifier, or the
	// bound variable for bark/elf/spin.
	Name string

	// Expr is the source reference (bark), the literal/ref expression
	// (elf/pin), the loop collection (spin), the condition (turk/bone),
	// or the interpolated template (biz).
	Expr string

	// Call is the whitelisted function name for cali.
	Call string
	// Args are cali's call arguments, as written.
	Args []string

	// Negate marks a `bone` rule written with a `NOT:` prefix.
	Negate bool

	// Fields lists a blob's field names, or an anchor's snapshot keys.
	Fields []string

	Children []*Node
}
