package condition

import (
	"fmt"
	"math"
	"strings"

	"github.com/gyaneshwarpardhi/fishrules/internal/value"
)

// Operator represents a comparison operator.
type Operator string

const (
	OpEq               Operator = "=="
	OpNeq              Operator = "!="
	OpGt               Operator = ">"
	OpGte              Operator = ">="
	OpLt               Operator = "<"
	OpLte              Operator = "<="
	OpContains         Operator = "contains"
	OpMatches          Operator = "matches"
	OpEqualsIgnoreCase Operator = "equals_ignore_case"
)

const floatEpsilon = 1e-9

var operatorAliases = map[string]Operator{
	"==":                 OpEq,
	"=":                  OpEq,
	"eq":                 OpEq,
	"!=":                 OpNeq,
	"ne":                 OpNeq,
	">":                  OpGt,
	"gt":                 OpGt,
	">=":                 OpGte,
	"gte":                OpGte,
	"<":                  OpLt,
	"lt":                 OpLt,
	"<=":                 OpLte,
	"lte":                OpLte,
	"contains":           OpContains,
	"matches":            OpMatches,
	"equals_ignore_case": OpEqualsIgnoreCase,
	"=~":                 OpEqualsIgnoreCase,
}

// ParseOperator maps an operator spelling (symbol or word alias) to its
// canonical Operator.
func ParseOperator(s string) (Operator, error) {
	if op, ok := operatorAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return op, nil
	}
	return "", fmt.Errorf("unknown operator %q", s)
}

// compare applies the leaf operator to a resolved value. A non-empty
// mismatch means the operand kinds are incompatible; the result is then
// always false.
func compare(l *Leaf, left value.Value) (result bool, mismatch string) {
	switch l.Op {
	case OpEq:
		eq, ok := equal(left, l)
		if !ok {
			return false, kindMismatch(l, left)
		}
		return eq, ""
	case OpNeq:
		eq, ok := equal(left, l)
		if !ok {
			return false, kindMismatch(l, left)
		}
		return !eq, ""
	case OpGt, OpGte, OpLt, OpLte:
		return ordered(l, left)
	case OpContains:
		s, ok := left.AsString()
		if !ok {
			return false, kindMismatch(l, left)
		}
		sub, _ := l.Literal.AsString()
		return strings.Contains(s, sub), ""
	case OpMatches:
		s, ok := left.AsString()
		if !ok {
			return false, kindMismatch(l, left)
		}
		return l.re.MatchString(s), ""
	case OpEqualsIgnoreCase:
		s, ok := left.AsString()
		if !ok {
			return false, kindMismatch(l, left)
		}
		lit, _ := l.Literal.AsString()
		return strings.EqualFold(s, lit), ""
	default:
		return false, fmt.Sprintf("unknown operator %s", l.Op)
	}
}

// equal compares same-kind values. Numbers compare within floatEpsilon.
// A duration variable compares against a literal such as "30s".
func equal(left value.Value, l *Leaf) (eq bool, ok bool) {
	right := l.Literal
	switch left.Kind() {
	case value.KindNumber:
		lf, _ := left.AsNumber()
		rf, ok := right.AsNumber()
		if !ok {
			return false, false
		}
		return math.Abs(lf-rf) < floatEpsilon, true
	case value.KindString:
		ls, _ := left.AsString()
		rs, ok := right.AsString()
		if !ok {
			return false, false
		}
		return ls == rs, true
	case value.KindBool:
		lb, _ := left.AsBool()
		rb, ok := right.AsBool()
		if !ok {
			return false, false
		}
		return lb == rb, true
	case value.KindDuration:
		ld, _ := left.AsDuration()
		if !l.hasDur {
			return false, false
		}
		return ld == l.dur, true
	}
	return false, false
}

func ordered(l *Leaf, left value.Value) (bool, string) {
	var lf, rf float64
	switch left.Kind() {
	case value.KindNumber:
		n, _ := left.AsNumber()
		r, ok := l.Literal.AsNumber()
		if !ok {
			return false, kindMismatch(l, left)
		}
		lf, rf = n, r
	case value.KindDuration:
		d, _ := left.AsDuration()
		if !l.hasDur {
			return false, kindMismatch(l, left)
		}
		lf, rf = float64(d), float64(l.dur)
	default:
		return false, kindMismatch(l, left)
	}
	switch l.Op {
	case OpGt:
		return lf > rf, ""
	case OpGte:
		return lf >= rf, ""
	case OpLt:
		return lf < rf, ""
	case OpLte:
		return lf <= rf, ""
	}
	return false, ""
}

func kindMismatch(l *Leaf, left value.Value) string {
	return fmt.Sprintf("operator %s cannot compare %s with %s", l.Op, left.Kind(), l.Literal.Kind())
}
