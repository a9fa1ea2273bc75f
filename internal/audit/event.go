// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package audit bridges low-level runtime audit events into ordinary log
// records. The emitting side must never touch the logging facade
// directly; the registered hook only enqueues, and a single background
// consumer turns queued events into records.
package audit

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	alerr "github.com/sigil-dev/auditlog/pkg/errors"
)

// FrameAccessEvent is the event name for stack-frame introspection.
// Logging machinery triggers these constantly while resolving call sites,
// so bridges usually filter the ones originating inside the logging
// subsystem to avoid a feedback loop.
const FrameAccessEvent = "runtime.frame_access"

// loggingOriginMarker identifies frames belonging to this logging
// subsystem in an event's origin path.
const loggingOriginMarker = "auditlog/internal/logger"

// Event is one runtime audit notification. Args are opaque positional
// values owned by the emitter; Origin is the file path of the triggering
// call when known.
type Event struct {
	Name   string
	Args   []any
	Origin string
}

// Format renders the event the way the consumer logs it:
// "name: arg;arg;...".
func (e Event) Format() string {
	if len(e.Args) == 0 {
		return e.Name
	}
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = fmt.Sprint(a)
	}
	return e.Name + ": " + strings.Join(parts, ";")
}

// isLoggingFrame reports whether e is frame introspection triggered from
// inside the logging subsystem itself.
func (e Event) isLoggingFrame() bool {
	if e.Name != FrameAccessEvent {
		return false
	}
	if strings.Contains(e.Origin, loggingOriginMarker) {
		return true
	}
	for _, a := range e.Args {
		if s, ok := a.(string); ok && strings.Contains(s, loggingOriginMarker) {
			return true
		}
	}
	return false
}

// Hook receives every emitted event. Hooks run synchronously on the
// emitting goroutine and must return immediately.
type Hook func(Event)

var (
	hookMu sync.RWMutex
	hook   Hook
)

// RegisterHook installs h as the process-wide audit hook. Exactly one
// hook may be installed at a time.
func RegisterHook(h Hook) error {
	hookMu.Lock()
	defer hookMu.Unlock()
	if hook != nil {
		return alerr.New(alerr.CodeBridgeHookOccupied, "an audit hook is already registered")
	}
	hook = h
	return nil
}

// UnregisterHook removes the installed hook. Safe to call when none is
// installed.
func UnregisterHook() {
	hookMu.Lock()
	defer hookMu.Unlock()
	hook = nil
}

// Emit delivers an audit event to the installed hook, if any. The origin
// of the event is the caller's source file. Emit never blocks beyond the
// hook's own (non-blocking) work and is safe from any goroutine.
func Emit(name string, args ...any) {
	emit(2, name, args...)
}

// EmitDepth is Emit for wrappers that re-export the boundary: the origin
// is attributed skip frames above the immediate caller, so a passthrough
// passes 1 to point at its own caller.
func EmitDepth(skip int, name string, args ...any) {
	emit(skip+2, name, args...)
}

func emit(skip int, name string, args ...any) {
	hookMu.RLock()
	h := hook
	hookMu.RUnlock()
	if h == nil {
		return
	}

	origin := ""
	if _, file, line, ok := runtime.Caller(skip); ok {
		origin = fmt.Sprintf("%s:%d", file, line)
	}
	h(Event{Name: name, Args: args, Origin: origin})
}
