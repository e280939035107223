package condition

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/fishrules/internal/diag"
	"github.com/gyaneshwarpardhi/fishrules/internal/value"
)

// countingRegistry serves bool variables "t" and "f" and counts every
// resolver invocation per name.
func countingRegistry(calls map[string]*atomic.Int32) *value.Registry {
	reg := value.NewRegistry()
	for name, b := range map[string]bool{"t": true, "f": false, "t2": true, "f2": false} {
		name, b := name, b
		calls[name] = &atomic.Int32{}
		reg.Register(name, func(interface{}) (value.Value, bool) {
			calls[name].Add(1)
			return value.Bool(b), true
		})
	}
	reg.Freeze()
	return reg
}

func isTrue(name string) *Leaf { return MustLeaf(name, "==", value.Bool(true)) }

func TestShortCircuit(t *testing.T) {
	calls := make(map[string]*atomic.Int32)
	reg := countingRegistry(calls)
	c := value.NewContext(reg, nil)

	and := &All{Children: []Node{isTrue("t"), isTrue("f"), isTrue("t2")}}
	assert.False(t, Evaluate(and, c, nil))
	assert.EqualValues(t, 1, calls["t"].Load())
	assert.EqualValues(t, 1, calls["f"].Load())
	assert.EqualValues(t, 0, calls["t2"].Load(), "children after the first false must not be resolved")

	or := &Any{Children: []Node{isTrue("f2"), isTrue("t"), isTrue("t2")}}
	assert.True(t, Evaluate(or, c, nil))
	assert.EqualValues(t, 1, calls["f2"].Load())
	assert.EqualValues(t, 2, calls["t"].Load())
	assert.EqualValues(t, 0, calls["t2"].Load(), "children after the first true must not be resolved")
}

func TestEvaluateCombinators(t *testing.T) {
	c := value.Static(map[string]value.Value{"t": value.Bool(true), "f": value.Bool(false)})
	cases := []struct {
		name string
		node Node
		want bool
	}{
		{"nil is always", nil, true},
		{"empty all", &All{}, true},
		{"empty any", &Any{}, false},
		{"and true false", &All{Children: []Node{isTrue("t"), isTrue("f")}}, false},
		{"and true true", &All{Children: []Node{isTrue("t"), isTrue("t")}}, true},
		{"or false true", &Any{Children: []Node{isTrue("f"), isTrue("t")}}, true},
		{"not false", &Not{Child: isTrue("f")}, true},
		{"nested", &Not{Child: &Any{Children: []Node{isTrue("f"), &All{Children: []Node{isTrue("t"), isTrue("f")}}}}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Evaluate(tc.node, c, nil))
		})
	}
}

func TestUnregisteredVariableIsFalse(t *testing.T) {
	reg := value.NewRegistry()
	reg.Freeze()
	c := value.NewContext(reg, nil)

	ops := []struct {
		op  string
		lit value.Value
	}{
		{"==", value.Number(1)},
		{"!=", value.Number(1)},
		{">", value.Number(1)},
		{"<=", value.Number(1)},
		{"contains", value.String("x")},
		{"matches", value.String(".*")},
		{"equals_ignore_case", value.String("x")},
	}
	for _, o := range ops {
		t.Run(o.op, func(t *testing.T) {
			var sink diag.Collector
			leaf := MustLeaf("no.such.var", o.op, o.lit)
			require.NotPanics(t, func() {
				assert.False(t, Evaluate(leaf, c, &sink))
			})
			assert.Equal(t, []diag.Kind{diag.UnresolvedVariable}, sink.Kinds())
			assert.Equal(t, "no.such.var", sink.All()[0].Name)
		})
	}
}

func TestNewLeafValidation(t *testing.T) {
	_, err := NewLeaf("", "==", value.Number(1))
	assert.Error(t, err)
	_, err = NewLeaf("x", "~~", value.Number(1))
	assert.Error(t, err)
	_, err = NewLeaf("x", "==", value.Value{})
	assert.Error(t, err)
	_, err = NewLeaf("x", "matches", value.Number(1))
	assert.Error(t, err)

	l, err := NewLeaf("fish.reel_time", "gte", value.String("10s"))
	require.NoError(t, err)
	assert.Equal(t, OpGte, l.Op)
	assert.Equal(t, value.KindDuration, l.Literal.Kind())
}

func TestVars(t *testing.T) {
	n := &All{Children: []Node{isTrue("a"), &Not{Child: isTrue("b")}, &Any{Children: []Node{isTrue("c")}}}}
	assert.Equal(t, []string{"a", "b", "c"}, Vars(n))
	assert.Nil(t, Vars(nil))
}
