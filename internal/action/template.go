package action

import (
	"strings"

	"github.com/gyaneshwarpardhi/fishrules/internal/diag"
	"github.com/gyaneshwarpardhi/fishrules/internal/value"
)

// Template is a string with {variable} tokens, compiled once at load time.
// "{{" and "}}" produce literal braces. A brace pair whose content is not a
// valid variable name is kept as literal text.
type Template struct {
	src   string
	parts []part
}

type part struct {
	lit     string
	varName string // non-empty for a token
}

// CompileTemplate splits s into literal runs and variable tokens.
func CompileTemplate(s string) *Template {
	t := &Template{src: s}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			t.parts = append(t.parts, part{lit: lit.String()})
			lit.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '{' && i+1 < len(s) && s[i+1] == '{':
			lit.WriteByte('{')
			i++
		case ch == '}' && i+1 < len(s) && s[i+1] == '}':
			lit.WriteByte('}')
			i++
		case ch == '{':
			end := strings.IndexByte(s[i+1:], '}')
			if end < 0 || !validVarName(s[i+1:i+1+end]) {
				lit.WriteByte(ch)
				continue
			}
			flush()
			t.parts = append(t.parts, part{varName: s[i+1 : i+1+end]})
			i += end + 1
		default:
			lit.WriteByte(ch)
		}
	}
	flush()
	return t
}

func validVarName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '.' || r == '-':
		default:
			return false
		}
	}
	return true
}

// Source returns the uncompiled template text.
func (t *Template) Source() string {
	if t == nil {
		return ""
	}
	return t.src
}

// Vars lists the variables referenced by the template.
func (t *Template) Vars() []string {
	if t == nil {
		return nil
	}
	var out []string
	for _, p := range t.parts {
		if p.varName != "" {
			out = append(out, p.varName)
		}
	}
	return out
}

// Render substitutes every token from ctx. An unresolved token becomes
// the empty string and is reported to sink; rendering itself never fails.
func (t *Template) Render(ctx *value.Context, sink diag.Sink) string {
	if t == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range t.parts {
		if p.varName == "" {
			sb.WriteString(p.lit)
			continue
		}
		v, ok := ctx.Lookup(p.varName)
		if !ok {
			if sink != nil {
				sink.Report(diag.Diagnostic{
					Kind:   diag.UnresolvedVariable,
					Name:   p.varName,
					Detail: "unresolved template token replaced with empty string",
				})
			}
			continue
		}
		sb.WriteString(v.String())
	}
	return sb.String()
}
