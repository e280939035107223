// Package markup parses the MiniMessage-style rich text used in message
// and placeholder templates ("<gold>Caught <b>{fish.name}</b>!") and renders
// it either as plain text or as ANSI-styled terminal output.
package markup

import (
	"strings"
)

// Style is the formatting active for a span.
type Style struct {
	Color         string // "#rrggbb", empty for default
	Bold          bool
	Italic        bool
	Underlined    bool
	Strikethrough bool
}

// Span is a run of text sharing one Style.
type Span struct {
	Text  string
	Style Style
}

var namedColors = map[string]string{
	"black":        "#000000",
	"dark_blue":    "#0000aa",
	"dark_green":   "#00aa00",
	"dark_aqua":    "#00aaaa",
	"dark_red":     "#aa0000",
	"dark_purple":  "#aa00aa",
	"gold":         "#ffaa00",
	"gray":         "#aaaaaa",
	"grey":         "#aaaaaa",
	"dark_gray":    "#555555",
	"dark_grey":    "#555555",
	"blue":         "#5555ff",
	"green":        "#55ff55",
	"aqua":         "#55ffff",
	"red":          "#ff5555",
	"light_purple": "#ff55ff",
	"yellow":       "#ffff55",
	"white":        "#ffffff",
}

type decoration int

const (
	decBold decoration = iota + 1
	decItalic
	decUnderlined
	decStrikethrough
)

var decorations = map[string]decoration{
	"bold": decBold, "b": decBold,
	"italic": decItalic, "i": decItalic, "em": decItalic,
	"underlined": decUnderlined, "u": decUnderlined,
	"strikethrough": decStrikethrough, "st": decStrikethrough,
}

// tag is one open formatting tag. Exactly one of color or dec is set.
type tag struct {
	color string
	dec   decoration
}

// parseColor accepts "red", "#ff0000", "color:red" and "c:#ff0000".
func parseColor(name string) (string, bool) {
	if rest, ok := strings.CutPrefix(name, "color:"); ok {
		name = rest
	} else if rest, ok := strings.CutPrefix(name, "c:"); ok {
		name = rest
	}
	if hex, ok := namedColors[name]; ok {
		return hex, true
	}
	if len(name) == 7 && name[0] == '#' && isHex(name[1:]) {
		return strings.ToLower(name), true
	}
	return "", false
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

func isColorTag(name string) bool {
	if name == "color" || name == "c" {
		return true
	}
	_, ok := parseColor(name)
	return ok
}

// Parse splits markup into styled spans. Unknown tags, unmatched closing
// tags and a '<' without a matching '>' are kept as literal text. "\<"
// is a literal '<'. Parse never fails.
func Parse(s string) []Span {
	var (
		spans []Span
		stack []tag
		buf   strings.Builder
	)
	current := func() Style {
		var st Style
		for _, t := range stack {
			switch {
			case t.color != "":
				st.Color = t.color
			case t.dec == decBold:
				st.Bold = true
			case t.dec == decItalic:
				st.Italic = true
			case t.dec == decUnderlined:
				st.Underlined = true
			case t.dec == decStrikethrough:
				st.Strikethrough = true
			}
		}
		return st
	}
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		st := current()
		if n := len(spans); n > 0 && spans[n-1].Style == st {
			spans[n-1].Text += buf.String()
		} else {
			spans = append(spans, Span{Text: buf.String(), Style: st})
		}
		buf.Reset()
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) && s[i+1] == '<' {
			buf.WriteByte('<')
			i++
			continue
		}
		if c != '<' {
			buf.WriteByte(c)
			continue
		}
		end := strings.IndexByte(s[i+1:], '>')
		if end < 0 {
			buf.WriteByte(c)
			continue
		}
		raw := s[i+1 : i+1+end]
		if !applyTag(raw, &stack, flush) {
			buf.WriteByte(c)
			continue
		}
		i += end + 1
	}
	flush()
	return spans
}

// applyTag updates stack for raw (the text between '<' and '>'). flush is
// called before the style changes. It returns false for text that is not
// a recognised tag.
func applyTag(raw string, stack *[]tag, flush func()) bool {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return false
	}
	if name == "reset" {
		flush()
		*stack = (*stack)[:0]
		return true
	}
	if closing, ok := strings.CutPrefix(name, "/"); ok {
		var match func(tag) bool
		if d, ok := decorations[closing]; ok {
			match = func(t tag) bool { return t.dec == d }
		} else if isColorTag(closing) {
			match = func(t tag) bool { return t.color != "" }
		} else {
			return false
		}
		for j := len(*stack) - 1; j >= 0; j-- {
			if match((*stack)[j]) {
				flush()
				*stack = append((*stack)[:j], (*stack)[j+1:]...)
				break
			}
		}
		// An unmatched closing tag of a known kind is dropped.
		return true
	}
	if d, ok := decorations[name]; ok {
		flush()
		*stack = append(*stack, tag{dec: d})
		return true
	}
	if hex, ok := parseColor(name); ok {
		flush()
		*stack = append(*stack, tag{color: hex})
		return true
	}
	return false
}

// Strip returns the text of markup with all tags removed.
func Strip(s string) string {
	var sb strings.Builder
	for _, sp := range Parse(s) {
		sb.WriteString(sp.Text)
	}
	return sb.String()
}
