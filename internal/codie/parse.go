package codie

import (
	"fmt"
	"strings"
)

// ParseError reports a line-numbered failure to parse a CODIE program.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("codie: line %d: %s", e.Line, e.Msg)
}

// Parse builds an AST from CODIE's line-oriented surface syntax. Each
// line's nesting depth is its count of leading 4-character pipe-tree
// groups ("|   " or "    "); a "+-- " branch marker may follow at the
// same depth. Blank lines and lines starting with "#" are skipped.
//
// Per spec §4.5: "if a full external parser is available (produces a
// JSON AST), use it; otherwise fall back to a line parser that handles
// every keyword above." This engine has no external CODIE parser
// binary to shell out to, so the line parser is the only path.
func Parse(source string) (*Node, error) {
	lines := strings.Split(source, "\n")

	type frame struct {
		depth int
		node  *Node
	}

	root := &Node{Kind: KindEntry, Name: "_root"}
	stack := []frame{{depth: -1, node: root}}

	for i, raw := range lines {
		lineNo := i + 1
		if strings.TrimSpace(raw) == "" {
			continue
		}
		depth, rest := stripTreePrefix(raw)
		rest = strings.TrimSpace(rest)
		if rest == "" || strings.HasPrefix(rest, "#") {
			continue
		}

		node, err := parseLine(rest)
		if err != nil {
			return nil, &ParseError{Line: lineNo, Msg: err.Error()}
		}

		for len(stack) > 1 && stack[len(stack)-1].depth >= depth {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1].node
		parent.Children = append(parent.Children, node)
		stack = append(stack, frame{depth: depth, node: node})
	}

	return root, nil
}

// stripTreePrefix counts leading 4-char groups ("|   " or "    ") as
// depth, then strips an optional "+-- " branch marker at that depth.
func stripTreePrefix(line string) (depth int, rest string) {
	i := 0
	for i+4 <= len(line) {
		group := line[i : i+4]
		if group == "|   " || group == "    " {
			depth++
			i += 4
			continue
		}
		break
	}
	rest = line[i:]
	rest = strings.TrimPrefix(rest, "+-- ")
	return depth, rest
}

func parseLine(line string) (*Node, error) {
	keyword, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch Kind(keyword) {
	case KindEntry:
		return &Node{Kind: KindEntry, Name: rest}, nil

	case KindFetch:
		name, expr, ok := strings.Cut(rest, " ")
		if !ok {
			return nil, fmt.Errorf("bark requires a variable and a source, got %q", rest)
		}
		return &Node{Kind: KindFetch, Name: name, Expr: strings.TrimSpace(expr)}, nil

	case KindBind:
		name, expr, ok := strings.Cut(rest, "=")
		if !ok {
			return nil, fmt.Errorf("elf requires var = expr, got %q", rest)
		}
		return &Node{Kind: KindBind, Name: strings.TrimSpace(name), Expr: strings.TrimSpace(expr)}, nil

	case KindConst:
		name, expr, ok := strings.Cut(rest, "=")
		if !ok {
			return nil, fmt.Errorf("pin requires NAME = expr, got %q", rest)
		}
		return &Node{Kind: KindConst, Name: strings.TrimSpace(name), Expr: strings.TrimSpace(expr)}, nil

	case KindCall:
		return parseCall(rest)

	case KindLoop:
		name, collection, ok := strings.Cut(rest, " IN ")
		if !ok {
			return nil, fmt.Errorf("spin requires 'var IN collection', got %q", rest)
		}
		return &Node{Kind: KindLoop, Name: strings.TrimSpace(name), Expr: strings.TrimSpace(collection)}, nil

	case KindTransform:
		cond, _, _ := strings.Cut(rest, "->")
		return &Node{Kind: KindTransform, Expr: strings.TrimSpace(cond)}, nil

	case KindGuard:
		return &Node{Kind: KindGuard, Name: rest}, nil

	case KindRule:
		name, cond, ok := strings.Cut(rest, ":")
		if !ok {
			return nil, fmt.Errorf("bone requires 'name: condition', got %q", rest)
		}
		cond = strings.TrimSpace(cond)
		negate := false
		if strings.HasPrefix(cond, "NOT:") {
			negate = true
			cond = strings.TrimSpace(strings.TrimPrefix(cond, "NOT:"))
		} else if strings.HasPrefix(cond, "NOT ") {
			negate = true
			cond = strings.TrimSpace(strings.TrimPrefix(cond, "NOT "))
		}
		return &Node{Kind: KindRule, Name: strings.TrimSpace(name), Expr: cond, Negate: negate}, nil

	case KindStruct:
		name, fields, _ := strings.Cut(rest, " ")
		var fieldList []string
		if fields != "" {
			for _, f := range strings.Split(fields, ",") {
				if f = strings.TrimSpace(f); f != "" {
					fieldList = append(fieldList, f)
				}
			}
		}
		return &Node{Kind: KindStruct, Name: strings.TrimSpace(name), Fields: fieldList}, nil

	case KindReturn:
		return &Node{Kind: KindReturn, Expr: rest}, nil

	case KindCheckpoint:
		name, keys, _ := strings.Cut(rest, ":")
		var fieldList []string
		for _, f := range strings.Split(keys, ",") {
			if f = strings.TrimSpace(f); f != "" {
				fieldList = append(fieldList, f)
			}
		}
		return &Node{Kind: KindCheckpoint, Name: strings.TrimSpace(name), Fields: fieldList}, nil

	default:
		return nil, fmt.Errorf("unknown keyword %q", keyword)
	}
}

// parseCall parses `cali [var =] FUNC(arg1, arg2, ...)`.
func parseCall(rest string) (*Node, error) {
	name := ""
	if v, call, ok := strings.Cut(rest, "="); ok && !strings.Contains(v, "(") {
		name = strings.TrimSpace(v)
		rest = strings.TrimSpace(call)
	}

	open := strings.Index(rest, "(")
	if open < 0 || !strings.HasSuffix(rest, ")") {
		return nil, fmt.Errorf("cali requires FUNC(args), got %q", rest)
	}
	fn := strings.TrimSpace(rest[:open])
	argsStr := rest[open+1 : len(rest)-1]

	var args []string
	if strings.TrimSpace(argsStr) != "" {
		for _, a := range strings.Split(argsStr, ",") {
			args = append(args, strings.TrimSpace(a))
		}
	}

	return &Node{Kind: KindCall, Name: name, Call: fn, Args: args}, nil
}
