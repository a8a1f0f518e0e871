package codie

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	cargoTimeout     = 300
	nixTimeout       = 600
	validatorTimeout = 60
)

func contextWithTimeout(ctx context.Context, seconds int) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(seconds)*time.Second)
}

// haltError is the controlled halt spec §4.5 mandates when a rule or
// fence fails critically — caught at the top of Run and turned into a
// {halted: true, reason} result, never propagated as a panic or a plain
// error to the caller.
type haltError struct {
	reason string
}

func (e *haltError) Error() string { return e.reason }

// Checkpoint is one labelled snapshot recorded by an `anchor` node.
type Checkpoint struct {
	Label string         `json:"label"`
	Vars  map[string]any `json:"vars"`
}

// Result is CODIE's external-API return shape: structured in every
// case, never an exception. Exactly one of Halted/Err is meaningful at
// a time; both may be zero-valued on a normal return.
type Result struct {
	Halted      bool           `json:"halted,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	Err         string         `json:"error,omitempty"`
	Value       any            `json:"result,omitempty"`
	Variables   map[string]any `json:"variables_set,omitempty"`
	Checkpoints []Checkpoint   `json:"checkpoints,omitempty"`
}

// Interpreter runs a parsed CODIE program against an injected set of
// whitelisted safe calls and filesystem/toolchain resolvers.
type Interpreter struct {
	safeCalls     map[string]SafeCall
	validatorsDir string

	// executeIntent, if set, lets a `cali EXECUTE_INTENT(...)` call
	// re-enter the Executor for a sub-intent. Nil means EXECUTE_INTENT
	// is blocked — CODIE programs are otherwise self-contained.
	executeIntent func(ctx context.Context, intent string) (map[string]any, error)
}

// New builds an Interpreter. validatorsDir configures where
// `@validators/<script>` resolves scripts from; executeIntent may be
// nil.
func New(validatorsDir string, executeIntent func(ctx context.Context, intent string) (map[string]any, error)) *Interpreter {
	in := &Interpreter{validatorsDir: validatorsDir, executeIntent: executeIntent}
	in.safeCalls = defaultSafeCalls(in)
	return in
}

type execState struct {
	vars        map[string]any
	consts      map[string]bool
	rules       []*Node
	checkpoints []Checkpoint
}

// Run parses and interprets a CODIE program, returning a structured
// Result. It never panics out to the caller: a controlled halt or any
// other runtime error is caught and reported in Result, per spec §4.5.
func (in *Interpreter) Run(ctx context.Context, source string) Result {
	root, err := Parse(source)
	if err != nil {
		return Result{Err: err.Error()}
	}

	entry := root
	if len(root.Children) > 0 && root.Children[0].Kind == KindEntry {
		entry = root.Children[0]
	}

	st := &execState{vars: map[string]any{}, consts: map[string]bool{}}

	var value any
	haltErr := func() (herr *haltError) {
		defer func() {
			if r := recover(); r != nil {
				if h, ok := r.(*haltError); ok {
					herr = h
					return
				}
				herr = &haltError{reason: fmt.Sprintf("internal error: %v", r)}
			}
		}()
		value = in.execChildren(ctx, entry.Children, st)
		return nil
	}()

	if haltErr != nil {
		return Result{Halted: true, Reason: haltErr.reason, Variables: st.vars, Checkpoints: st.checkpoints}
	}
	return Result{Value: value, Variables: st.vars, Checkpoints: st.checkpoints}
}

// execChildren runs nodes in order and returns the last non-nil result,
// matching `pug`'s "executes children in order, returns last non-null
// result" semantics.
func (in *Interpreter) execChildren(ctx context.Context, nodes []*Node, st *execState) any {
	var last any
	for _, n := range nodes {
		if v := in.exec(ctx, n, st); v != nil {
			last = v
		}
	}
	return last
}

func (in *Interpreter) exec(ctx context.Context, n *Node, st *execState) any {
	switch n.Kind {
	case KindFetch:
		v, err := in.resolveSource(ctx, n.Expr, st.vars)
		if err != nil {
			panic(&haltError{reason: fmt.Sprintf("bark %s: %v", n.Name, err)})
		}
		st.vars[n.Name] = v
		return v

	case KindBind:
		if st.consts[n.Name] {
			panic(&haltError{reason: fmt.Sprintf("elf: %s is a constant and cannot be rebound", n.Name)})
		}
		v := evalExpr(n.Expr, st.vars)
		st.vars[n.Name] = v
		return v

	case KindConst:
		v := evalExpr(n.Expr, st.vars)
		st.vars[n.Name] = v
		st.consts[n.Name] = true
		return v

	case KindCall:
		fn, ok := in.safeCalls[n.Call]
		var v map[string]any
		if !ok {
			v = map[string]any{"call": n.Call, "status": "planned", "reason": "unknown call pattern"}
		} else {
			args := make([]string, len(n.Args))
			for i, a := range n.Args {
				args[i] = fmt.Sprintf("%v", evalExpr(a, st.vars))
			}
			result, err := fn(ctx, args)
			if err != nil {
				v = map[string]any{"status": "error", "reason": err.Error()}
			} else {
				v = result
			}
		}
		if n.Name != "" {
			st.vars[n.Name] = v
		}
		return v

	case KindLoop:
		collection := evalExpr(n.Expr, st.vars)
		items, _ := collection.([]any)
		var last any
		for _, item := range items {
			scoped := st.vars[n.Name]
			st.vars[n.Name] = item
			last = in.execChildren(ctx, n.Children, st)
			st.vars[n.Name] = scoped
		}
		return last

	case KindTransform:
		if evalCondition(n.Expr, st.vars) {
			st.vars["_transform_result"] = in.execChildren(ctx, n.Children, st)
			return st.vars["_transform_result"]
		}
		return nil

	case KindGuard:
		for _, child := range n.Children {
			if child.Kind == KindRule {
				in.execRule(child, st)
			} else {
				in.exec(ctx, child, st)
			}
		}
		return nil

	case KindRule:
		in.execRule(n, st)
		return nil

	case KindStruct:
		instance := make(map[string]any, len(n.Fields))
		for _, f := range n.Fields {
			instance[f] = nil
		}
		st.vars[n.Name] = instance
		return instance

	case KindReturn:
		return interpolate(n.Expr, st.vars)

	case KindCheckpoint:
		snapshot := make(map[string]any, len(n.Fields))
		for _, k := range n.Fields {
			if v, ok := lookupPath(st.vars, k); ok {
				snapshot[k] = v
			}
		}
		st.checkpoints = append(st.checkpoints, Checkpoint{Label: n.Name, Vars: snapshot})
		return nil

	default:
		return in.execChildren(ctx, n.Children, st)
	}
}

// execRule evaluates a `bone` constraint and records it as an active
// constraint; a critical violation raises a controlled halt rather than
// propagating an exception, per spec §4.5.
func (in *Interpreter) execRule(n *Node, st *execState) {
	st.rules = append(st.rules, n)
	ok := evalCondition(n.Expr, st.vars)
	if n.Negate {
		ok = !ok
	}
	if !ok {
		panic(&haltError{reason: fmt.Sprintf("rule %q violated: %s", n.Name, n.Expr)})
	}
}

// evalExpr evaluates an `elf`/`pin`/cali-arg expression: a quoted
// string literal, a number, true/false, or a bare variable/field
// reference.
func evalExpr(expr string, vars map[string]any) any {
	expr = strings.TrimSpace(expr)
	switch {
	case strings.HasPrefix(expr, `"`) && strings.HasSuffix(expr, `"`) && len(expr) >= 2:
		return strings.Trim(expr, `"`)
	case expr == "true":
		return true
	case expr == "false":
		return false
	}
	if n, err := strconv.ParseFloat(expr, 64); err == nil {
		return n
	}
	if v, ok := lookupPath(vars, expr); ok {
		return v
	}
	return expr
}

// evalCondition supports `name` (truthy), `name.field`,
// `name.field < N`, `name.field > N` — spec §4.5's condition grammar,
// no other operators.
func evalCondition(expr string, vars map[string]any) bool {
	expr = strings.TrimSpace(expr)
	for _, op := range []string{"<", ">"} {
		if idx := strings.Index(expr, op); idx >= 0 {
			path := strings.TrimSpace(expr[:idx])
			rhs := strings.TrimSpace(expr[idx+1:])
			n, err := strconv.ParseFloat(rhs, 64)
			if err != nil {
				return false
			}
			v, ok := lookupPath(vars, path)
			if !ok {
				return false
			}
			f, ok := toFloat(v)
			if !ok {
				return false
			}
			if op == "<" {
				return f < n
			}
			return f > n
		}
	}

	v, ok := lookupPath(vars, expr)
	if !ok {
		return false
	}
	return truthy(v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	default:
		return true
	}
}
