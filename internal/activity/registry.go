// Package activity defines the unit-of-work contract executed by the
// orchestration engine, plus the built-in workloads.
//
// Activities are stateless: they take an input, return a result or an error,
// and touch no external state, so re-running one after a redelivery or
// replay is always safe. Anything nondeterministic an orchestration needs
// (time, randomness, I/O) belongs in an activity, never in orchestration
// logic.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// Func is a single activity implementation. Input and output are JSON.
type Func func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

// Registry maps activity names to implementations.
type Registry struct {
	funcs map[string]Func
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register adds an activity under name, replacing any previous entry.
func (r *Registry) Register(name string, fn Func) {
	r.funcs[name] = fn
}

// Lookup resolves an activity by name.
func (r *Registry) Lookup(name string) (Func, error) {
	fn, ok := r.funcs[name]
	if !ok {
		return nil, fmt.Errorf("activity %q not registered", name)
	}
	return fn, nil
}

// Names returns registered activity names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
