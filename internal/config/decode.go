package config

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML records the rule's line and rejects unknown keys.
func (r *RuleDef) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return nodeErr(n, "rule must be a mapping")
	}
	if err := onlyKeys(n, "id", "priority", "condition", "actions"); err != nil {
		return err
	}
	type plain RuleDef
	var p plain
	if err := n.Decode(&p); err != nil {
		return err
	}
	*r = RuleDef(p)
	r.Line = n.Line
	return nil
}

// UnmarshalYAML decodes one of the condition forms:
//
//	{all: [...]}  {any: [...]}  {not: {...}}
//	{var: fish.weight, op: ">", value: 10}
//	{expr: 'fish.weight > 10 AND bait.id == "worm"'}
//
// A bare string is shorthand for {expr: ...}.
func (c *ConditionDef) UnmarshalYAML(n *yaml.Node) error {
	c.Line = n.Line
	if n.Kind == yaml.ScalarNode {
		if strings.TrimSpace(n.Value) == "" {
			return nodeErr(n, "empty condition expression")
		}
		c.Expr = n.Value
		return nil
	}
	if n.Kind != yaml.MappingNode {
		return nodeErr(n, "condition must be a mapping or an expression string")
	}
	keys := mappingKeys(n)
	switch {
	case keys["all"] != nil, keys["any"] != nil:
		name := "all"
		if keys["any"] != nil {
			name = "any"
		}
		if err := onlyKeys(n, name); err != nil {
			return err
		}
		v := keys[name]
		if v.Kind != yaml.SequenceNode {
			return nodeErr(v, name+" must be a sequence of conditions")
		}
		children := make([]*ConditionDef, 0, len(v.Content))
		for _, item := range v.Content {
			child := &ConditionDef{}
			if err := item.Decode(child); err != nil {
				return err
			}
			children = append(children, child)
		}
		if name == "all" {
			c.All = children
		} else {
			c.Any = children
		}
	case keys["not"] != nil:
		if err := onlyKeys(n, "not"); err != nil {
			return err
		}
		c.Not = &ConditionDef{}
		return keys["not"].Decode(c.Not)
	case keys["expr"] != nil:
		if err := onlyKeys(n, "expr"); err != nil {
			return err
		}
		if err := keys["expr"].Decode(&c.Expr); err != nil {
			return err
		}
		if strings.TrimSpace(c.Expr) == "" {
			return nodeErr(n, "empty condition expression")
		}
	case keys["var"] != nil:
		if err := onlyKeys(n, "var", "op", "value"); err != nil {
			return err
		}
		if keys["op"] == nil || keys["value"] == nil {
			return nodeErr(n, "leaf condition needs var, op and value")
		}
		if err := keys["var"].Decode(&c.Var); err != nil {
			return err
		}
		if err := keys["op"].Decode(&c.Op); err != nil {
			return err
		}
		if keys["value"].Kind != yaml.ScalarNode {
			return nodeErr(keys["value"], "leaf value must be a scalar")
		}
		if err := keys["value"].Decode(&c.Value); err != nil {
			return err
		}
	default:
		return nodeErr(n, "condition needs one of all, any, not, expr or var")
	}
	return nil
}

// UnmarshalYAML accepts three spellings of an action:
//
//	stop_processing                                  (scalar, no payload)
//	{send_message: "Nice {fish.name}!"}              (tag keyed)
//	{type: increment_counter, name: caught, amount: 2}  (flat)
//
// Tags match case-insensitively with '_' and '-' ignored, so
// SetPlaceholder and set-placeholder are the same tag.
func (a *ActionDef) UnmarshalYAML(n *yaml.Node) error {
	a.Line = n.Line
	switch n.Kind {
	case yaml.ScalarNode:
		typ, ok := canonicalAction(n.Value)
		if !ok || typ != ActionStopProcessing {
			return nodeErr(n, fmt.Sprintf("action %q needs a payload", n.Value))
		}
		a.Type = typ
		return nil
	case yaml.MappingNode:
	default:
		return nodeErr(n, "action must be a mapping or stop_processing")
	}

	keys := mappingKeys(n)
	if t := keys["type"]; t != nil {
		typ, ok := canonicalAction(t.Value)
		if !ok {
			return nodeErr(t, fmt.Sprintf("unknown action type %q", t.Value))
		}
		a.Type = typ
		return a.decodePayload(n, true)
	}
	if len(n.Content) != 2 {
		return nodeErr(n, "tagged action must have exactly one key")
	}
	tag, payload := n.Content[0], n.Content[1]
	typ, ok := canonicalAction(tag.Value)
	if !ok {
		return nodeErr(tag, fmt.Sprintf("unknown action type %q", tag.Value))
	}
	a.Type = typ
	if payload.Kind == yaml.ScalarNode {
		return a.decodeScalar(payload)
	}
	if payload.Kind != yaml.MappingNode {
		return nodeErr(payload, typ+" payload must be a mapping")
	}
	return a.decodePayload(payload, false)
}

// decodeScalar handles the short forms {send_message: "text"},
// {increment_counter: name} and {stop_processing: true}.
func (a *ActionDef) decodeScalar(n *yaml.Node) error {
	switch a.Type {
	case ActionSendMessage:
		a.Template = n.Value
	case ActionIncrementCounter:
		a.Counter, a.Amount = n.Value, 1
	case ActionStopProcessing:
	default:
		return nodeErr(n, a.Type+" payload must be a mapping")
	}
	if a.Type != ActionStopProcessing && n.Value == "" {
		return nodeErr(n, a.Type+" payload is empty")
	}
	return nil
}

func (a *ActionDef) decodePayload(n *yaml.Node, flat bool) error {
	allowed := map[string][]string{
		ActionSetPlaceholder:   {"key", "template", "value"},
		ActionSendMessage:      {"template", "message", "text"},
		ActionIncrementCounter: {"name", "counter", "amount", "amount_var", "global"},
		ActionStopProcessing:   {},
	}[a.Type]
	if flat {
		allowed = append(allowed, "type")
	}
	if err := onlyKeys(n, allowed...); err != nil {
		return err
	}
	keys := mappingKeys(n)
	str := func(names ...string) (string, error) {
		for _, name := range names {
			if v := keys[name]; v != nil {
				var s string
				if err := v.Decode(&s); err != nil {
					return "", err
				}
				return s, nil
			}
		}
		return "", nil
	}

	var err error
	switch a.Type {
	case ActionSetPlaceholder:
		if a.Key, err = str("key"); err != nil {
			return err
		}
		if a.Template, err = str("template", "value"); err != nil {
			return err
		}
		if a.Key == "" {
			return nodeErr(n, "set_placeholder needs a key")
		}
	case ActionSendMessage:
		if a.Template, err = str("template", "message", "text"); err != nil {
			return err
		}
		if a.Template == "" {
			return nodeErr(n, "send_message needs a message")
		}
	case ActionIncrementCounter:
		if a.Counter, err = str("name", "counter"); err != nil {
			return err
		}
		if a.AmountVar, err = str("amount_var"); err != nil {
			return err
		}
		a.Amount = 1
		if v := keys["amount"]; v != nil {
			if err := v.Decode(&a.Amount); err != nil {
				return nodeErr(v, "amount must be an integer")
			}
		}
		if v := keys["global"]; v != nil {
			if err := v.Decode(&a.Global); err != nil {
				return nodeErr(v, "global must be a boolean")
			}
		}
		if a.Counter == "" {
			return nodeErr(n, "increment_counter needs a name")
		}
	}
	return nil
}

var actionTags = map[string]string{
	"setplaceholder":   ActionSetPlaceholder,
	"placeholder":      ActionSetPlaceholder,
	"sendmessage":      ActionSendMessage,
	"message":          ActionSendMessage,
	"incrementcounter": ActionIncrementCounter,
	"increment":        ActionIncrementCounter,
	"stopprocessing":   ActionStopProcessing,
	"stop":             ActionStopProcessing,
}

func canonicalAction(tag string) (string, bool) {
	norm := strings.NewReplacer("_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(tag)))
	t, ok := actionTags[norm]
	return t, ok
}

func mappingKeys(n *yaml.Node) map[string]*yaml.Node {
	out := make(map[string]*yaml.Node, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		out[n.Content[i].Value] = n.Content[i+1]
	}
	return out
}

func onlyKeys(n *yaml.Node, allowed ...string) error {
	ok := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		ok[k] = true
	}
	var extra []string
	for i := 0; i+1 < len(n.Content); i += 2 {
		if k := n.Content[i].Value; !ok[k] {
			extra = append(extra, k)
		}
	}
	if len(extra) == 0 {
		return nil
	}
	sort.Strings(extra)
	return nodeErr(n, fmt.Sprintf("unexpected key(s) %s", strings.Join(extra, ", ")))
}

type nodeError struct {
	line int
	msg  string
}

func (e *nodeError) Error() string { return fmt.Sprintf("line %d: %s", e.line, e.msg) }

func nodeErr(n *yaml.Node, msg string) error {
	return &nodeError{line: n.Line, msg: msg}
}
