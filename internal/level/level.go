// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package level defines the severity table used by the logging facade. In
// addition to the conventional severities it carries AUDIT, TRACE, NOTICE
// and OUT, each with a fixed rank and a projection onto log/slog's level
// space so records flow through ordinary slog handlers.
package level

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	alerr "github.com/sigil-dev/auditlog/pkg/errors"
)

// Ranks of the built-in severity table. The ordering is part of the public
// contract: AUDIT < TRACE < DEBUG < INFO < NOTICE < OUT < WARNING < ERROR
// < CRITICAL.
const (
	RankAudit    = 1
	RankTrace    = 5
	RankDebug    = 10
	RankInfo     = 20
	RankNotice   = 22
	RankOut      = 25
	RankWarning  = 30
	RankError    = 40
	RankCritical = 50
)

// Level is one registered severity. Name is canonical upper-case; Slog is
// the level the record is emitted at so slog handlers order and filter
// records consistently with Rank.
type Level struct {
	Name string
	Rank int
	Slog slog.Level
}

// Registry holds the severity table. It is written once, during
// initialization, and read-only for the remainder of the process; the
// mutex exists only to make that one-time write safe against early readers.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Level
	byRank map[int]Level
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Level),
		byRank: make(map[int]Level),
	}
}

var builtin = []Level{
	{"AUDIT", RankAudit, slog.LevelDebug - 8},
	{"TRACE", RankTrace, slog.LevelDebug - 4},
	{"DEBUG", RankDebug, slog.LevelDebug},
	{"INFO", RankInfo, slog.LevelInfo},
	{"NOTICE", RankNotice, slog.LevelInfo + 1},
	{"OUT", RankOut, slog.LevelInfo + 2},
	{"WARNING", RankWarning, slog.LevelWarn},
	{"ERROR", RankError, slog.LevelError},
	{"CRITICAL", RankCritical, slog.LevelError + 4},
}

// Builtin returns a registry pre-populated with the nine-level table.
func Builtin() *Registry {
	r := NewRegistry()
	for _, l := range builtin {
		// Builtin table has no collisions; ignore the error.
		_, _ = r.Register(l.Name, l.Rank, l.Slog)
	}
	return r
}

// BuiltinByRank returns the built-in table entry for rank, whether or
// not any registry carries it.
func BuiltinByRank(rank int) (Level, bool) {
	for _, l := range builtin {
		if l.Rank == rank {
			return l, true
		}
	}
	return Level{}, false
}

// Register adds a severity. Name matching is case-insensitive; both the
// name and the rank must be unused or the call fails with a
// level.register.duplicate error.
func (r *Registry) Register(name string, rank int, sl slog.Level) (Level, error) {
	canonical := strings.ToUpper(strings.TrimSpace(name))
	if canonical == "" {
		return Level{}, alerr.New(alerr.CodeConfigValidateInvalidValue, "level name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[canonical]; ok {
		return Level{}, alerr.New(alerr.CodeLevelRegisterDuplicate,
			"level name already registered",
			alerr.FieldLevel(canonical), alerr.Field("existing_rank", existing.Rank))
	}
	if existing, ok := r.byRank[rank]; ok {
		return Level{}, alerr.New(alerr.CodeLevelRegisterDuplicate,
			"level rank already registered",
			alerr.Field("rank", rank), alerr.FieldLevel(existing.Name))
	}

	l := Level{Name: canonical, Rank: rank, Slog: sl}
	r.byName[canonical] = l
	r.byRank[rank] = l
	return l, nil
}

// Resolve returns the level registered under name, case-insensitively.
func (r *Registry) Resolve(name string) (Level, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.byName[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return Level{}, alerr.New(alerr.CodeLevelResolveUnknown,
			"unknown level name", alerr.FieldLevel(name))
	}
	return l, nil
}

// ResolveRank returns the level registered at rank.
func (r *Registry) ResolveRank(rank int) (Level, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.byRank[rank]
	if !ok {
		return Level{}, alerr.New(alerr.CodeLevelResolveUnknown,
			"unknown level rank", alerr.Field("rank", rank))
	}
	return l, nil
}

// Levels returns the registered severities ordered by ascending rank.
func (r *Registry) Levels() []Level {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Level, 0, len(r.byRank))
	for _, l := range r.byRank {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}
