// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package extras manages the metadata merged into every log record: a
// process-wide defaults map plus a per-task stack of scoped values. The
// effective mapping folds defaults and every active scope, innermost
// winning, with scope overrides beating scope defaults at every depth.
package extras

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"

	alerr "github.com/sigil-dev/auditlog/pkg/errors"
)

// Defaults is the process-wide fallback mapping. Writes are rare (init,
// config reload) and reads happen on every log call, so it is guarded by a
// RWMutex rather than copied around.
type Defaults struct {
	mu sync.RWMutex
	m  map[string]any
}

// NewDefaults returns an empty defaults map.
func NewDefaults() *Defaults {
	return &Defaults{m: make(map[string]any)}
}

// Set records a fallback value for key. Last write wins.
func (d *Defaults) Set(key string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.m[key] = value
}

// SetAll records every entry of values. Last write wins per key.
func (d *Defaults) SetAll(values map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	maps.Copy(d.m, values)
}

// Snapshot returns a copy of the current defaults.
func (d *Defaults) Snapshot() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]any, len(d.m))
	maps.Copy(out, d.m)
	return out
}

// Len reports the number of registered defaults.
func (d *Defaults) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.m)
}

// Scope is one stacked span of metadata. It is created by Stack.Enter and
// must be released by Stack.Exit in reverse entry order.
type Scope struct {
	id        uuid.UUID
	defaults  map[string]any
	overrides map[string]any
	prev      *Scope
	exited    bool
}

// ID returns the scope's handle identifier, used in diagnostics.
func (s *Scope) ID() string { return s.id.String() }

// Stack is the per-task scope stack. A Stack belongs to exactly one
// logical task; it needs no internal locking because push and pop never
// cross goroutines. Cross-task visibility of defaults comes from the
// shared Defaults value.
type Stack struct {
	defaults *Defaults
	top      *Scope
	depth    int
}

// NewStack returns an empty stack reading fallback values from defaults.
// A nil defaults is treated as empty.
func NewStack(defaults *Defaults) *Stack {
	if defaults == nil {
		defaults = NewDefaults()
	}
	return &Stack{defaults: defaults}
}

// Enter pushes a scope whose overrides shadow everything beneath it.
func (st *Stack) Enter(overrides map[string]any) *Scope {
	return st.EnterWith(nil, overrides)
}

// EnterWith pushes a scope carrying both weak defaults and strong
// overrides. Scope defaults fill gaps; overrides from any active scope
// beat defaults from any active scope.
func (st *Stack) EnterWith(defaults, overrides map[string]any) *Scope {
	sc := &Scope{
		id:        uuid.New(),
		defaults:  copyMap(defaults),
		overrides: copyMap(overrides),
		prev:      st.top,
	}
	st.top = sc
	st.depth++
	return sc
}

// Exit pops sc from the stack. Scopes must be released in strict reverse
// entry order; releasing anything but the innermost active scope fails
// with extras.scope.exit.order and leaves the stack unchanged.
func (st *Stack) Exit(sc *Scope) error {
	if sc == nil {
		return alerr.New(alerr.CodeExtrasScopeExitOrder, "nil scope handle")
	}
	if sc.exited {
		return alerr.New(alerr.CodeExtrasScopeExitOrder,
			"scope already released", alerr.FieldScopeID(sc.ID()))
	}
	if st.top != sc {
		return alerr.New(alerr.CodeExtrasScopeExitOrder,
			"scope is not the innermost active scope",
			alerr.FieldScopeID(sc.ID()), alerr.Field("depth", st.depth))
	}

	st.top = sc.prev
	st.depth--
	sc.exited = true
	return nil
}

// Depth reports the number of active scopes.
func (st *Stack) Depth() int { return st.depth }

// Effective computes the merged mapping for the task: process defaults,
// then each scope's defaults outermost to innermost, then each scope's
// overrides outermost to innermost. The result is a fresh snapshot the
// caller may mutate.
func (st *Stack) Effective() map[string]any {
	out := st.defaults.Snapshot()

	// Walk the chain once, collecting outermost-first order.
	chain := make([]*Scope, 0, st.depth)
	for sc := st.top; sc != nil; sc = sc.prev {
		chain = append(chain, sc)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		maps.Copy(out, chain[i].defaults)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		maps.Copy(out, chain[i].overrides)
	}
	return out
}

type stackKey struct{}

// WithStack binds a stack to ctx so the logging facade can find the
// calling task's scopes.
func WithStack(ctx context.Context, st *Stack) context.Context {
	return context.WithValue(ctx, stackKey{}, st)
}

// StackFrom returns the stack bound to ctx, if any.
func StackFrom(ctx context.Context) (*Stack, bool) {
	if ctx == nil {
		return nil, false
	}
	st, ok := ctx.Value(stackKey{}).(*Stack)
	return st, ok
}

// Effective resolves the merged mapping for ctx: the bound stack's view
// when present, otherwise a snapshot of the process defaults.
func Effective(ctx context.Context, defaults *Defaults) map[string]any {
	if st, ok := StackFrom(ctx); ok {
		return st.Effective()
	}
	if defaults == nil {
		return map[string]any{}
	}
	return defaults.Snapshot()
}

func copyMap(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	maps.Copy(out, m)
	return out
}
