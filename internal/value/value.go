package value

import (
	"fmt"
	"strconv"
	"time"
)

// Kind identifies the dynamic type carried by a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindNumber
	KindString
	KindBool
	KindDuration
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindDuration:
		return "duration"
	default:
		return "invalid"
	}
}

// Value is an immutable typed scalar. All numbers are carried as float64
// so that integer and float sources compare without conversion surprises.
type Value struct {
	kind Kind
	num  float64
	str  string
	b    bool
	dur  time.Duration
}

func Number(f float64) Value { return Value{kind: KindNumber, num: f} }
func Int(n int64) Value { return Value{kind: KindNumber, num: float64(n)} }
func String(s string) Value { return Value{kind: KindString, str: s} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Duration(d time.Duration) Value { return Value{kind: KindDuration, dur: d} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) Valid() bool { return v.kind != KindInvalid }

// AsNumber returns the numeric payload. ok is false for non-number kinds.
func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) AsDuration() (time.Duration, bool) {
	if v.kind != KindDuration {
		return 0, false
	}
	return v.dur, true
}

// String formats the value for template output. Whole numbers print
// without a fractional part.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindString:
		return v.str
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindDuration:
		return v.dur.String()
	default:
		return ""
	}
}

// FromAny converts a decoded YAML/JSON literal into a Value.
func FromAny(x interface{}) (Value, error) {
	switch n := x.(type) {
	case Value:
		return n, nil
	case nil:
		return Value{}, fmt.Errorf("null literal")
	case string:
		return String(n), nil
	case bool:
		return Bool(n), nil
	case time.Duration:
		return Duration(n), nil
	case int:
		return Number(float64(n)), nil
	case int8:
		return Number(float64(n)), nil
	case int16:
		return Number(float64(n)), nil
	case int32:
		return Number(float64(n)), nil
	case int64:
		return Number(float64(n)), nil
	case uint:
		return Number(float64(n)), nil
	case uint8:
		return Number(float64(n)), nil
	case uint16:
		return Number(float64(n)), nil
	case uint32:
		return Number(float64(n)), nil
	case uint64:
		return Number(float64(n)), nil
	case float32:
		return Number(float64(n)), nil
	case float64:
		return Number(n), nil
	}
	return Value{}, fmt.Errorf("unsupported literal type %T", x)
}
