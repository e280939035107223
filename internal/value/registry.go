package value

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
)

// Resolver reads one named variable from an evaluation source. It must not
// mutate src. ok is false when the variable has no value for this source.
type Resolver func(src interface{}) (v Value, ok bool)

// PrefixResolver serves every variable under a registered prefix. rest is
// the part of the name after the prefix ("counter.big_fish" → "big_fish").
type PrefixResolver func(src interface{}, rest string) (v Value, ok bool)

type prefixEntry struct {
	prefix string
	fn     PrefixResolver
}

// Registry maps variable names to resolvers. It is populated during
// startup and frozen before the first evaluation; after Freeze it is
// read-only and safe for concurrent use without locking.
type Registry struct {
	exact    map[string]Resolver
	prefixes []prefixEntry // longest prefix first
	frozen   atomic.Bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{exact: make(map[string]Resolver)}
}

// Register adds a resolver for an exact variable name. Panics on duplicate
// names or when called after Freeze to surface wiring mistakes early.
func (r *Registry) Register(name string, fn Resolver) {
	r.mustBeOpen()
	if _, exists := r.exact[name]; exists {
		panic(fmt.Sprintf("value registry: duplicate variable %q", name))
	}
	r.exact[name] = fn
}

// RegisterPrefix adds a resolver for every name starting with prefix.
func (r *Registry) RegisterPrefix(prefix string, fn PrefixResolver) {
	r.mustBeOpen()
	for _, p := range r.prefixes {
		if p.prefix == prefix {
			panic(fmt.Sprintf("value registry: duplicate prefix %q", prefix))
		}
	}
	r.prefixes = append(r.prefixes, prefixEntry{prefix: prefix, fn: fn})
	sort.SliceStable(r.prefixes, func(i, j int) bool {
		return len(r.prefixes[i].prefix) > len(r.prefixes[j].prefix)
	})
}

// Freeze ends the registration phase.
func (r *Registry) Freeze() { r.frozen.Store(true) }

func (r *Registry) mustBeOpen() {
	if r.frozen.Load() {
		panic("value registry: registration after Freeze")
	}
}

// Resolve looks up name for src. Unregistered names are reported as
// unresolved, never as an error.
func (r *Registry) Resolve(name string, src interface{}) (Value, bool) {
	if fn, ok := r.exact[name]; ok {
		v, ok := fn(src)
		if !ok || !v.Valid() {
			return Value{}, false
		}
		return v, true
	}
	for _, p := range r.prefixes {
		if rest, found := strings.CutPrefix(name, p.prefix); found && rest != "" {
			v, ok := p.fn(src, rest)
			if !ok || !v.Valid() {
				return Value{}, false
			}
			return v, true
		}
	}
	return Value{}, false
}

// Known reports whether name is served by an exact or prefix resolver.
func (r *Registry) Known(name string) bool {
	if _, ok := r.exact[name]; ok {
		return true
	}
	for _, p := range r.prefixes {
		if strings.HasPrefix(name, p.prefix) && len(name) > len(p.prefix) {
			return true
		}
	}
	return false
}

// Names returns all exact variable names and prefixes (suffixed with "*"),
// sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.exact)+len(r.prefixes))
	for k := range r.exact {
		out = append(out, k)
	}
	for _, p := range r.prefixes {
		out = append(out, p.prefix+"*")
	}
	sort.Strings(out)
	return out
}
