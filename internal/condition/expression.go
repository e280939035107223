package condition

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/gyaneshwarpardhi/fishrules/internal/value"
)

// -----------------------------------------------------------------------
// Tokenizer
// -----------------------------------------------------------------------

type tokenKind int

const (
	tokWord   tokenKind = iota // identifier or keyword
	tokOp                      // ==, !=, >=, <=, >, <, =~
	tokString                  // "…" or '…'
	tokNumber                  // 42 | 3.14 | -2
	tokBool                    // true | false
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	val  string
	pos  int
}

func tokenize(expr string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(expr) {
		ch := expr[i]
		if unicode.IsSpace(rune(ch)) {
			i++
			continue
		}
		switch {
		case ch == '(':
			tokens = append(tokens, token{tokLParen, "(", i})
			i++
		case ch == ')':
			tokens = append(tokens, token{tokRParen, ")", i})
			i++
		case ch == '=' || ch == '!' || ch == '<' || ch == '>':
			if i+1 < len(expr) && (expr[i+1] == '=' || (ch == '=' && expr[i+1] == '~')) {
				tokens = append(tokens, token{tokOp, expr[i : i+2], i})
				i += 2
			} else {
				tokens = append(tokens, token{tokOp, string(ch), i})
				i++
			}
		case ch == '"' || ch == '\'':
			quote := ch
			j := i + 1
			var sb strings.Builder
			for j < len(expr) && expr[j] != quote {
				if expr[j] == '\\' && j+1 < len(expr) {
					j++
				}
				sb.WriteByte(expr[j])
				j++
			}
			if j >= len(expr) {
				return nil, fmt.Errorf("unterminated string starting at position %d", i)
			}
			tokens = append(tokens, token{tokString, sb.String(), i})
			i = j + 1
		case unicode.IsDigit(rune(ch)) || (ch == '-' && i+1 < len(expr) && unicode.IsDigit(rune(expr[i+1]))):
			j := i + 1
			for j < len(expr) && (unicode.IsDigit(rune(expr[j])) || expr[j] == '.') {
				j++
			}
			tokens = append(tokens, token{tokNumber, expr[i:j], i})
			i = j
		case unicode.IsLetter(rune(ch)) || ch == '_':
			j := i
			for j < len(expr) && (unicode.IsLetter(rune(expr[j])) || unicode.IsDigit(rune(expr[j])) || expr[j] == '_' || expr[j] == '.') {
				j++
			}
			word := expr[i:j]
			switch strings.ToLower(word) {
			case "true", "false":
				tokens = append(tokens, token{tokBool, strings.ToLower(word), i})
			default:
				tokens = append(tokens, token{tokWord, word, i})
			}
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", ch, i)
		}
	}
	tokens = append(tokens, token{tokEOF, "", len(expr)})
	return tokens, nil
}

// -----------------------------------------------------------------------
// Recursive-descent parser
// -----------------------------------------------------------------------

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) consume() token {
	t := p.tokens[p.pos]
	p.pos++
	return t
}

func (p *parser) keyword(word string) bool {
	t := p.peek()
	return t.kind == tokWord && strings.EqualFold(t.val, word)
}

// Parse compiles an expression string such as
//
//	fish.weight > 10 AND (bait.id == "worm" OR NOT location.biome == "river")
//
// into a condition tree. Consecutive ANDs and ORs are flattened into a
// single All or Any node.
func Parse(expr string) (Node, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("unexpected token %q at position %d", t.val, t.pos)
	}
	return node, nil
}

// or_expr = and_expr ( "OR" and_expr )*
func (p *parser) parseOr() (Node, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []Node{first}
	for p.keyword("OR") {
		p.consume()
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return first, nil
	}
	return &Any{Children: children}, nil
}

// and_expr = not_expr ( "AND" not_expr )*
func (p *parser) parseAnd() (Node, error) {
	first, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	children := []Node{first}
	for p.keyword("AND") {
		p.consume()
		next, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return first, nil
	}
	return &All{Children: children}, nil
}

// not_expr = "NOT" not_expr | "(" or_expr ")" | comparison
func (p *parser) parseNot() (Node, error) {
	if p.keyword("NOT") {
		p.consume()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Not{Child: inner}, nil
	}
	if p.peek().kind == tokLParen {
		p.consume()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if t := p.peek(); t.kind != tokRParen {
			return nil, fmt.Errorf("expected \")\" at position %d, got %q", t.pos, t.val)
		}
		p.consume()
		return inner, nil
	}
	return p.parseComparison()
}

// comparison = variable operator literal
func (p *parser) parseComparison() (Node, error) {
	t := p.consume()
	if t.kind != tokWord {
		return nil, fmt.Errorf("expected variable at position %d, got %q", t.pos, t.val)
	}
	variable := t.val

	opTok := p.consume()
	var op string
	switch opTok.kind {
	case tokOp:
		op = opTok.val
	case tokWord:
		op = strings.ToLower(opTok.val)
	default:
		return nil, fmt.Errorf("expected comparison operator after %s, got %q", variable, opTok.val)
	}
	if _, err := ParseOperator(op); err != nil {
		return nil, fmt.Errorf("position %d: %w", opTok.pos, err)
	}

	lit, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	return NewLeaf(variable, op, lit)
}

func (p *parser) parseLiteral() (value.Value, error) {
	t := p.consume()
	switch t.kind {
	case tokString:
		return value.String(t.val), nil
	case tokNumber:
		f, err := strconv.ParseFloat(t.val, 64)
		if err != nil {
			return value.Value{}, fmt.Errorf("invalid number %q at position %d", t.val, t.pos)
		}
		return value.Number(f), nil
	case tokBool:
		return value.Bool(t.val == "true"), nil
	default:
		return value.Value{}, fmt.Errorf("expected literal at position %d, got %q", t.pos, t.val)
	}
}
