package config

import (
	"fmt"
	"regexp"
	"strings"
)

var ruleIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Validate checks the config for:
//   - Duplicate rule IDs (returned as *DuplicateRuleIDError)
//   - Required fields on rules, conditions and actions
//   - Settings with a fixed set of values
//
// Anything other than a duplicate id is collected into a *ValidationError.
func Validate(cfg *RuleConfig) error {
	ids := make(map[string]int) // id → index
	var errs []string

	for i, r := range cfg.Rules {
		if r.ID == "" {
			errs = append(errs, fmt.Sprintf("rules[%d]: id is required", i))
			continue
		}
		if prev, ok := ids[r.ID]; ok {
			return &DuplicateRuleIDError{ID: r.ID, First: prev, Then: i}
		}
		ids[r.ID] = i
		loc := fmt.Sprintf("rule %s", r.ID)
		if !ruleIDPattern.MatchString(r.ID) {
			errs = append(errs, fmt.Sprintf("%s: id may only contain letters, digits, '_', '.' and '-'", loc))
		}
		if len(r.Actions) == 0 {
			errs = append(errs, fmt.Sprintf("%s: actions must not be empty", loc))
		}
		if r.Condition != nil {
			validateCondition(r.Condition, loc+".condition", &errs)
		}
	}

	s := cfg.Settings
	switch s.Storage.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("settings.storage.backend: unknown backend %q", s.Storage.Backend))
	}
	switch s.Render.Mode {
	case "plain", "ansi":
	default:
		errs = append(errs, fmt.Sprintf("settings.render.mode: unknown mode %q", s.Render.Mode))
	}
	if s.Workers.BatchWorkers < 0 || s.Workers.QueueDepth < 0 {
		errs = append(errs, "settings.workers: values must not be negative")
	}
	if s.Dedupe.TTL < 0 {
		errs = append(errs, "settings.dedupe.ttl: must not be negative")
	}

	if len(errs) > 0 {
		return &ValidationError{Problems: errs}
	}
	return nil
}

func validateCondition(c *ConditionDef, loc string, errs *[]string) {
	switch c.Form() {
	case "all", "any":
		children := c.All
		if c.Any != nil {
			children = c.Any
		}
		for i, child := range children {
			if child == nil {
				*errs = append(*errs, fmt.Sprintf("%s.%s[%d]: empty condition", loc, c.Form(), i))
				continue
			}
			validateCondition(child, fmt.Sprintf("%s.%s[%d]", loc, c.Form(), i), errs)
		}
	case "not":
		validateCondition(c.Not, loc+".not", errs)
	case "leaf":
		if strings.TrimSpace(c.Var) == "" {
			*errs = append(*errs, fmt.Sprintf("%s: var is required", loc))
		}
		if c.Op == "" {
			*errs = append(*errs, fmt.Sprintf("%s: op is required", loc))
		}
		if c.Value == nil {
			*errs = append(*errs, fmt.Sprintf("%s: value is required", loc))
		}
	}
}
