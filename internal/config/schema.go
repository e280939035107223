package config

import (
	"time"
)

// RuleConfig is the top-level YAML structure.
type RuleConfig struct {
	Version  string    `yaml:"version"`
	Settings Settings  `yaml:"settings"`
	Rules    []RuleDef `yaml:"rules"`
}

// Settings holds process-level knobs. Zero values are replaced by
// defaults in applyDefaults.
type Settings struct {
	Server       ServerConf      `yaml:"server"`
	Logging      LoggingConf     `yaml:"logging"`
	Placeholders PlaceholderConf `yaml:"placeholders"`
	Storage      StorageConf     `yaml:"storage"`
	Dedupe       DedupeConf      `yaml:"dedupe"`
	Render       RenderConf      `yaml:"render"`
	Workers      WorkerConf      `yaml:"workers"`
}

type ServerConf struct {
	Addr string `yaml:"addr"`
}

type LoggingConf struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

type PlaceholderConf struct {
	// Namespace is stripped from query keys ("customfishing_last_fish").
	Namespace string `yaml:"namespace"`
}

type StorageConf struct {
	Backend string    `yaml:"backend"` // memory or redis
	Redis   RedisConf `yaml:"redis"`
}

type RedisConf struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type DedupeConf struct {
	TTL time.Duration `yaml:"ttl"`
}

type RenderConf struct {
	Mode string `yaml:"mode"` // plain or ansi
}

type WorkerConf struct {
	BatchWorkers int `yaml:"batch_workers"`
	QueueDepth   int `yaml:"queue_depth"`
}

// RuleDef is one entry of the rules sequence.
type RuleDef struct {
	ID        string        `yaml:"id"`
	Priority  *int          `yaml:"priority"` // nil means load order
	Condition *ConditionDef `yaml:"condition"`
	Actions   []ActionDef   `yaml:"actions"`

	Line int `yaml:"-"`
}

// ConditionDef mirrors the condition tree. Exactly one form is set:
// All, Any, Not, Expr, or the Var/Op/Value leaf.
type ConditionDef struct {
	All  []*ConditionDef
	Any  []*ConditionDef
	Not  *ConditionDef
	Expr string

	Var   string
	Op    string
	Value interface{}

	Line int
}

// Form names which of the alternatives is populated.
func (c *ConditionDef) Form() string {
	switch {
	case c.All != nil:
		return "all"
	case c.Any != nil:
		return "any"
	case c.Not != nil:
		return "not"
	case c.Expr != "":
		return "expr"
	default:
		return "leaf"
	}
}

// Action type tags in their canonical spelling.
const (
	ActionSetPlaceholder   = "set_placeholder"
	ActionSendMessage      = "send_message"
	ActionIncrementCounter = "increment_counter"
	ActionStopProcessing   = "stop_processing"
)

// ActionDef is a decoded action entry. Type is one of the Action* tags;
// the remaining fields are used by that type only.
type ActionDef struct {
	Type string

	Key      string // set_placeholder
	Template string // set_placeholder, send_message

	Counter   string // increment_counter, may contain {var} tokens
	Amount    int64
	AmountVar string
	Global    bool

	Line int
}
