// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package logger

import (
	"log/slog"

	"github.com/sigil-dev/auditlog/internal/level"
)

// ReplaceLevelNames returns a ReplaceAttr function for slog's text and
// JSON handlers that rewrites the built-in level attribute to the
// canonical registry name, so records logged at AUDIT render as "AUDIT"
// instead of "DEBUG-8".
func ReplaceLevelNames(reg *level.Registry) func(groups []string, a slog.Attr) slog.Attr {
	names := make(map[slog.Level]string)
	for _, l := range reg.Levels() {
		names[l.Slog] = l.Name
	}

	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) > 0 || a.Key != slog.LevelKey {
			return a
		}
		lv, ok := a.Value.Any().(slog.Level)
		if !ok {
			return a
		}
		if name, ok := names[lv]; ok {
			a.Value = slog.StringValue(name)
		}
		return a
	}
}
