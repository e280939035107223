package condition

import (
	"github.com/gyaneshwarpardhi/fishrules/internal/diag"
	"github.com/gyaneshwarpardhi/fishrules/internal/value"
)

// Evaluate walks the tree with short-circuiting and returns whether it
// passes. A nil node is the universal condition and always passes.
//
// Evaluation never fails: a leaf whose variable is unresolved, or whose
// value kind does not fit the operator, evaluates to false and is
// reported to sink. A Not over such a leaf therefore passes.
func Evaluate(n Node, ctx *value.Context, sink diag.Sink) bool {
	if sink == nil {
		sink = diag.Nop
	}
	switch e := n.(type) {
	case nil:
		return true
	case *All:
		for _, c := range e.Children {
			if !Evaluate(c, ctx, sink) {
				return false // short-circuit
			}
		}
		return true
	case *Any:
		for _, c := range e.Children {
			if Evaluate(c, ctx, sink) {
				return true // short-circuit
			}
		}
		return false
	case *Not:
		return !Evaluate(e.Child, ctx, sink)
	case *Leaf:
		return evalLeaf(e, ctx, sink)
	default:
		return false
	}
}

func evalLeaf(l *Leaf, ctx *value.Context, sink diag.Sink) bool {
	v, ok := ctx.Lookup(l.Var)
	if !ok {
		sink.Report(diag.Diagnostic{
			Kind:   diag.UnresolvedVariable,
			Name:   l.Var,
			Detail: "condition leaf " + l.String() + " treated as false",
		})
		return false
	}
	result, mismatch := compare(l, v)
	if mismatch != "" {
		sink.Report(diag.Diagnostic{Kind: diag.TypeMismatch, Name: l.Var, Detail: mismatch})
		return false
	}
	return result
}
