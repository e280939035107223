package value

// Context is the per-evaluation view of named variables. It binds one
// source (an incoming event or a player for placeholder queries) to a
// frozen Registry. Variables are resolved on demand and nothing is cached,
// so a Context is immutable and cheap to throw away once evaluation ends.
type Context struct {
	registry  *Registry
	source    interface{}
	overrides map[string]Value
}

// NewContext creates a Context over src.
func NewContext(reg *Registry, src interface{}) *Context {
	return &Context{registry: reg, source: src}
}

// Static creates a Context backed only by fixed values. Useful for tests
// and for tools that evaluate rules against hand-written input.
func Static(vars map[string]Value) *Context {
	c := &Context{overrides: make(map[string]Value, len(vars))}
	for k, v := range vars {
		c.overrides[k] = v
	}
	return c
}

// With returns a derived Context where vars shadow the resolved variables.
// The receiver is left unchanged.
func (c *Context) With(vars map[string]Value) *Context {
	merged := make(map[string]Value, len(c.overrides)+len(vars))
	for k, v := range c.overrides {
		merged[k] = v
	}
	for k, v := range vars {
		merged[k] = v
	}
	return &Context{registry: c.registry, source: c.source, overrides: merged}
}

// Source returns the raw source the Context was built from.
func (c *Context) Source() interface{} { return c.source }

// Lookup resolves name. ok is false when the variable is unregistered or
// has no value for this source.
func (c *Context) Lookup(name string) (Value, bool) {
	if v, ok := c.overrides[name]; ok {
		return v, true
	}
	if c.registry == nil {
		return Value{}, false
	}
	return c.registry.Resolve(name, c.source)
}
