package condition

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gyaneshwarpardhi/fishrules/internal/value"
)

// Node is a compiled condition tree node. Trees are immutable once built
// and owned by a single rule.
type Node interface {
	node()
	String() string
}

// All passes when every child passes. An empty All passes.
type All struct {
	Children []Node
}

// Any passes when at least one child passes. An empty Any fails.
type Any struct {
	Children []Node
}

// Not inverts its child.
type Not struct {
	Child Node
}

// Leaf compares one variable against a literal.
type Leaf struct {
	Var     string
	Op      Operator
	Literal value.Value

	re     *regexp.Regexp // OpMatches only
	dur    time.Duration  // literal read as a duration, valid when hasDur
	hasDur bool
}

func (*All) node()  {}
func (*Any) node()  {}
func (*Not) node()  {}
func (*Leaf) node() {}

func (n *All) String() string { return joinNodes("all", n.Children) }
func (n *Any) String() string { return joinNodes("any", n.Children) }
func (n *Not) String() string { return "not(" + n.Child.String() + ")" }

func (n *Leaf) String() string {
	lit := n.Literal.String()
	if n.Literal.Kind() == value.KindString {
		lit = fmt.Sprintf("%q", lit)
	}
	return fmt.Sprintf("%s %s %s", n.Var, n.Op, lit)
}

func joinNodes(name string, children []Node) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = c.String()
	}
	return name + "(" + strings.Join(parts, ", ") + ")"
}

// NewLeaf validates the operator/literal pair and precompiles whatever the
// operator needs, so evaluation does no parsing.
func NewLeaf(variable string, op string, literal value.Value) (*Leaf, error) {
	if variable == "" {
		return nil, fmt.Errorf("leaf: var is required")
	}
	o, err := ParseOperator(op)
	if err != nil {
		return nil, err
	}
	if !literal.Valid() {
		return nil, fmt.Errorf("leaf %s: value is required", variable)
	}
	l := &Leaf{Var: variable, Op: o, Literal: literal}

	switch o {
	case OpContains, OpEqualsIgnoreCase:
		if literal.Kind() != value.KindString {
			return nil, fmt.Errorf("leaf %s: operator %s requires a string value, got %s", variable, o, literal.Kind())
		}
	case OpMatches:
		pattern, ok := literal.AsString()
		if !ok {
			return nil, fmt.Errorf("leaf %s: operator %s requires a string pattern, got %s", variable, o, literal.Kind())
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("leaf %s: invalid regex %q: %w", variable, pattern, err)
		}
		l.re = re
	case OpGt, OpGte, OpLt, OpLte:
		switch literal.Kind() {
		case value.KindNumber, value.KindDuration:
		case value.KindString:
			s, _ := literal.AsString()
			d, err := time.ParseDuration(s)
			if err != nil {
				return nil, fmt.Errorf("leaf %s: operator %s requires a number or duration, got %q", variable, o, s)
			}
			l.Literal = value.Duration(d)
		default:
			return nil, fmt.Errorf("leaf %s: operator %s requires a number or duration, got %s", variable, o, literal.Kind())
		}
	}

	if d, ok := l.Literal.AsDuration(); ok {
		l.dur, l.hasDur = d, true
	} else if s, ok := l.Literal.AsString(); ok {
		if d, err := time.ParseDuration(s); err == nil {
			l.dur, l.hasDur = d, true
		}
	}
	return l, nil
}

// MustLeaf is NewLeaf for statically known leaves; it panics on error.
func MustLeaf(variable, op string, literal value.Value) *Leaf {
	l, err := NewLeaf(variable, op, literal)
	if err != nil {
		panic(err)
	}
	return l
}

// Vars returns every variable referenced by the tree, in visit order.
func Vars(n Node) []string {
	var out []string
	var walk func(Node)
	walk = func(n Node) {
		switch n := n.(type) {
		case *All:
			for _, c := range n.Children {
				walk(c)
			}
		case *Any:
			for _, c := range n.Children {
				walk(c)
			}
		case *Not:
			walk(n.Child)
		case *Leaf:
			out = append(out, n.Var)
		}
	}
	if n != nil {
		walk(n)
	}
	return out
}
