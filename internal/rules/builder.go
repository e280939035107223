package rules

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gyaneshwarpardhi/fishrules/internal/action"
	"github.com/gyaneshwarpardhi/fishrules/internal/condition"
	"github.com/gyaneshwarpardhi/fishrules/internal/config"
	"github.com/gyaneshwarpardhi/fishrules/internal/value"
)

// Build compiles a validated RuleConfig into a Set. Conditions, regexes
// and templates are compiled here; evaluation does no parsing.
func Build(cfg *config.RuleConfig) (*Set, error) {
	s := &Set{version: cfg.Version, byID: make(map[string]*Rule, len(cfg.Rules))}
	for i, def := range cfg.Rules {
		if prev, ok := s.byID[def.ID]; ok {
			return nil, &config.DuplicateRuleIDError{ID: def.ID, First: prev.Order, Then: i}
		}
		r, err := buildRule(def, i)
		if err != nil {
			return nil, err
		}
		s.rules = append(s.rules, r)
		s.byID[r.ID] = r
	}
	sort.SliceStable(s.rules, func(i, j int) bool {
		return s.rules[i].Priority < s.rules[j].Priority
	})
	s.vars = collectVars(s.rules)
	return s, nil
}

func collectVars(rs []*Rule) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rs {
		for _, v := range r.Vars() {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	sort.Strings(out)
	return out
}

func buildRule(def config.RuleDef, order int) (*Rule, error) {
	fail := func(line int, err error) error {
		return &config.ParseError{Line: line, Rule: def.ID, Err: err}
	}
	r := &Rule{ID: def.ID, Priority: order, Order: order}
	if def.Priority != nil {
		r.Priority = *def.Priority
	}
	if def.Condition != nil {
		n, err := buildCondition(def.Condition)
		if err != nil {
			return nil, fail(def.Condition.Line, err)
		}
		r.Condition = n
	}
	for i, ad := range def.Actions {
		a, err := buildAction(ad)
		if err != nil {
			return nil, fail(ad.Line, fmt.Errorf("actions[%d]: %w", i, err))
		}
		r.Actions = append(r.Actions, a)
	}
	return r, nil
}

func buildCondition(c *config.ConditionDef) (condition.Node, error) {
	switch c.Form() {
	case "all", "any":
		src := c.All
		if c.Any != nil {
			src = c.Any
		}
		children := make([]condition.Node, 0, len(src))
		for _, child := range src {
			n, err := buildCondition(child)
			if err != nil {
				return nil, err
			}
			children = append(children, n)
		}
		if c.All != nil {
			return &condition.All{Children: children}, nil
		}
		return &condition.Any{Children: children}, nil
	case "not":
		n, err := buildCondition(c.Not)
		if err != nil {
			return nil, err
		}
		return &condition.Not{Child: n}, nil
	case "expr":
		n, err := condition.Parse(c.Expr)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", c.Expr, err)
		}
		return n, nil
	default:
		lit, err := value.FromAny(c.Value)
		if err != nil {
			return nil, fmt.Errorf("condition on %s: %w", c.Var, err)
		}
		return condition.NewLeaf(c.Var, c.Op, lit)
	}
}

func buildAction(ad config.ActionDef) (action.Action, error) {
	switch ad.Type {
	case config.ActionSetPlaceholder:
		return action.SetPlaceholder{Key: ad.Key, Template: action.CompileTemplate(ad.Template)}, nil
	case config.ActionSendMessage:
		return action.SendMessage{Template: action.CompileTemplate(ad.Template)}, nil
	case config.ActionIncrementCounter:
		if ad.Amount == 0 && ad.AmountVar == "" {
			return nil, errors.New("increment_counter: amount must not be zero")
		}
		return action.IncrementCounter{
			Name:      action.CompileTemplate(ad.Counter),
			Amount:    ad.Amount,
			AmountVar: ad.AmountVar,
			Global:    ad.Global,
		}, nil
	case config.ActionStopProcessing:
		return action.StopProcessing{}, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", ad.Type)
	}
}
