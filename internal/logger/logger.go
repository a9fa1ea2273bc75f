// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package logger is the facade every log call goes through. It resolves
// severities against the level registry, merges the calling task's
// effective extras with per-call metadata, and emits a single slog.Record
// through whatever handler the host wired in. It never buffers and never
// retries; persistence and formatting stay with the handler.
package logger

import (
	"context"
	"log/slog"
	"maps"
	"runtime"
	"runtime/debug"
	"sort"
	"sync/atomic"
	"time"

	"github.com/sigil-dev/auditlog/internal/extras"
	"github.com/sigil-dev/auditlog/internal/level"
	alerr "github.com/sigil-dev/auditlog/pkg/errors"
)

// PlaceholderValue substitutes for a required extras key that no default
// or scope provides, so a handler's formatting never fails mid-record.
const PlaceholderValue = ""

// Options wires a Logger to its collaborators. Handler is the underlying
// logging facility; everything else is shared process state owned by the
// initializer.
type Options struct {
	Handler      slog.Handler
	Registry     *level.Registry
	Defaults     *extras.Defaults
	RequiredKeys []string
	ShowStacks   *atomic.Bool
}

// Logger is a named facade over a slog.Handler.
type Logger struct {
	name         string
	handler      slog.Handler
	registry     *level.Registry
	defaults     *extras.Defaults
	requiredKeys []string
	showStacks   *atomic.Bool
}

// New returns a facade named name. Nil option fields fall back to inert
// defaults so a zero-wired logger still behaves.
func New(name string, opts Options) *Logger {
	h := opts.Handler
	if h == nil {
		h = slog.Default().Handler()
	}
	reg := opts.Registry
	if reg == nil {
		reg = level.Builtin()
	}
	d := opts.Defaults
	if d == nil {
		d = extras.NewDefaults()
	}
	ss := opts.ShowStacks
	if ss == nil {
		ss = &atomic.Bool{}
		ss.Store(true)
	}
	return &Logger{
		name:         name,
		handler:      h,
		registry:     reg,
		defaults:     d,
		requiredKeys: opts.RequiredKeys,
		showStacks:   ss,
	}
}

// Name returns the logger's name.
func (l *Logger) Name() string { return l.name }

// LogAt emits msg at the named severity with extra merged on top of the
// task's effective extras. Unknown severities fail with
// level.resolve.unknown; missing extras keys never fail.
func (l *Logger) LogAt(ctx context.Context, levelName, msg string, extra map[string]any) error {
	lv, err := l.registry.Resolve(levelName)
	if err != nil {
		return alerr.With(err, alerr.FieldLogger(l.name))
	}
	l.emit(ctx, lv, msg, extra, callerPC(2))
	return nil
}

// LogLevel emits msg at an already-resolved severity. Used by the audit
// consumer, which resolves its level once at arm time.
func (l *Logger) LogLevel(ctx context.Context, lv level.Level, msg string, extra map[string]any) {
	l.emit(ctx, lv, msg, extra, callerPC(2))
}

// Audit logs a bridged runtime audit event.
func (l *Logger) Audit(ctx context.Context, msg string, extra map[string]any) {
	l.at(ctx, level.RankAudit, msg, extra)
}

// Trace logs fine-grained detail below DEBUG.
func (l *Logger) Trace(ctx context.Context, msg string, extra map[string]any) {
	l.at(ctx, level.RankTrace, msg, extra)
}

func (l *Logger) Debug(ctx context.Context, msg string, extra map[string]any) {
	l.at(ctx, level.RankDebug, msg, extra)
}

func (l *Logger) Info(ctx context.Context, msg string, extra map[string]any) {
	l.at(ctx, level.RankInfo, msg, extra)
}

// Notice logs a normal condition worth capturing in production.
func (l *Logger) Notice(ctx context.Context, msg string, extra map[string]any) {
	l.at(ctx, level.RankNotice, msg, extra)
}

// Out logs user-facing output that should also reach the log.
func (l *Logger) Out(ctx context.Context, msg string, extra map[string]any) {
	l.at(ctx, level.RankOut, msg, extra)
}

func (l *Logger) Warning(ctx context.Context, msg string, extra map[string]any) {
	l.at(ctx, level.RankWarning, msg, extra)
}

func (l *Logger) Error(ctx context.Context, msg string, extra map[string]any) {
	l.at(ctx, level.RankError, msg, extra)
}

func (l *Logger) Critical(ctx context.Context, msg string, extra map[string]any) {
	l.at(ctx, level.RankCritical, msg, extra)
}

// Exception logs err at ERROR. When stack traces are enabled the current
// goroutine's stack is attached under "stack"; otherwise the record
// carries only the error text.
func (l *Logger) Exception(ctx context.Context, msg string, err error, extra map[string]any) {
	merged := make(map[string]any, len(extra)+2)
	maps.Copy(merged, extra)
	if err != nil {
		merged["error"] = err.Error()
	}
	if l.showStacks.Load() {
		merged["stack"] = string(debug.Stack())
	}
	l.at(ctx, level.RankError, msg, merged)
}

// at emits by rank. Ranks used here come from the built-in table; when
// the registry was replaced without them the record still goes out at
// the table's severity rather than being dropped.
func (l *Logger) at(ctx context.Context, rank int, msg string, extra map[string]any) {
	lv, err := l.registry.ResolveRank(rank)
	if err != nil {
		var ok bool
		if lv, ok = level.BuiltinByRank(rank); !ok {
			return
		}
	}
	// Skip at and its exported wrapper to attribute the user frame.
	l.emit(ctx, lv, msg, extra, callerPC(3))
}

// callerPC reports the program counter skip frames above the caller.
func callerPC(skip int) uintptr {
	var pcs [1]uintptr
	runtime.Callers(skip+1, pcs[:])
	return pcs[0]
}

func (l *Logger) emit(ctx context.Context, lv level.Level, msg string, extra map[string]any, pc uintptr) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.handler.Enabled(ctx, lv.Slog) {
		return
	}

	merged := extras.Effective(ctx, l.defaults)
	maps.Copy(merged, extra)
	for _, k := range l.requiredKeys {
		if _, ok := merged[k]; !ok {
			merged[k] = PlaceholderValue
		}
	}

	r := slog.NewRecord(time.Now(), lv.Slog, msg, pc)
	r.AddAttrs(
		slog.String("logger", l.name),
		slog.String("severity", lv.Name),
	)

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r.AddAttrs(slog.Any(k, merged[k]))
	}

	_ = l.handler.Handle(ctx, r)
}
