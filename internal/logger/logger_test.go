// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package logger_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sigil-dev/auditlog/internal/extras"
	"github.com/sigil-dev/auditlog/internal/level"
	"github.com/sigil-dev/auditlog/internal/logger"
	alerr "github.com/sigil-dev/auditlog/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture is a slog.Handler that records every record it receives.
type capture struct {
	mu      sync.Mutex
	min     slog.Level
	records []captured
}

type captured struct {
	level slog.Level
	msg   string
	attrs map[string]any
}

func newCapture(min slog.Level) *capture {
	return &capture{min: min}
}

func (c *capture) Enabled(_ context.Context, l slog.Level) bool { return l >= c.min }

func (c *capture) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any)
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, captured{level: r.Level, msg: r.Message, attrs: attrs})
	return nil
}

func (c *capture) WithAttrs([]slog.Attr) slog.Handler { return c }
func (c *capture) WithGroup(string) slog.Handler      { return c }

func (c *capture) all() []captured {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]captured, len(c.records))
	copy(out, c.records)
	return out
}

func newLogger(t *testing.T, h slog.Handler, d *extras.Defaults, required ...string) *logger.Logger {
	t.Helper()
	return logger.New("test", logger.Options{
		Handler:      h,
		Registry:     level.Builtin(),
		Defaults:     d,
		RequiredKeys: required,
	})
}

func TestLogAtMergesScopeAndCallExtras(t *testing.T) {
	h := newCapture(slog.LevelDebug - 12)
	d := extras.NewDefaults()
	d.Set("service", "alpha")
	d.Set("request_id", "-")

	lg := newLogger(t, h, d)

	st := extras.NewStack(d)
	sc := st.Enter(map[string]any{"request_id": "r-1", "tenant": "acme"})
	ctx := extras.WithStack(context.Background(), st)

	// The call-site extra wins over the scope value for the same key.
	require.NoError(t, lg.LogAt(ctx, "notice", "hello", map[string]any{"tenant": "umbrella"}))

	recs := h.all()
	require.Len(t, recs, 1)
	assert.Equal(t, "hello", recs[0].msg)
	assert.Equal(t, "alpha", recs[0].attrs["service"])
	assert.Equal(t, "r-1", recs[0].attrs["request_id"])
	assert.Equal(t, "umbrella", recs[0].attrs["tenant"])
	assert.Equal(t, "NOTICE", recs[0].attrs["severity"])
	assert.Equal(t, "test", recs[0].attrs["logger"])

	require.NoError(t, st.Exit(sc))
}

func TestLogAtUnknownLevelFails(t *testing.T) {
	h := newCapture(slog.LevelDebug - 12)
	lg := newLogger(t, h, nil)

	err := lg.LogAt(context.Background(), "verbose", "nope", nil)
	require.Error(t, err)
	assert.True(t, alerr.HasCode(err, alerr.CodeLevelResolveUnknown))
	assert.Empty(t, h.all())
}

func TestRequiredKeyGetsPlaceholder(t *testing.T) {
	h := newCapture(slog.LevelDebug - 12)
	lg := newLogger(t, h, extras.NewDefaults(), "request_id")

	lg.Info(context.Background(), "no scope active", nil)

	recs := h.all()
	require.Len(t, recs, 1)
	val, ok := recs[0].attrs["request_id"]
	require.True(t, ok, "required key must always be present")
	assert.Equal(t, logger.PlaceholderValue, val)
}

func TestRequiredKeyNotClobberedWhenPresent(t *testing.T) {
	h := newCapture(slog.LevelDebug - 12)
	lg := newLogger(t, h, extras.NewDefaults(), "request_id")

	lg.Info(context.Background(), "explicit", map[string]any{"request_id": "r-7"})

	recs := h.all()
	require.Len(t, recs, 1)
	assert.Equal(t, "r-7", recs[0].attrs["request_id"])
}

func TestPerLevelMethodsEmitAtExpectedSlogLevels(t *testing.T) {
	h := newCapture(slog.LevelDebug - 12)
	lg := newLogger(t, h, nil)
	ctx := context.Background()

	lg.Audit(ctx, "a", nil)
	lg.Trace(ctx, "t", nil)
	lg.Debug(ctx, "d", nil)
	lg.Info(ctx, "i", nil)
	lg.Notice(ctx, "n", nil)
	lg.Out(ctx, "o", nil)
	lg.Warning(ctx, "w", nil)
	lg.Error(ctx, "e", nil)
	lg.Critical(ctx, "c", nil)

	recs := h.all()
	require.Len(t, recs, 9)
	for i := 1; i < len(recs); i++ {
		assert.GreaterOrEqual(t, recs[i].level, recs[i-1].level,
			"levels must emit in ascending slog order")
	}
	assert.Equal(t, "AUDIT", recs[0].attrs["severity"])
	assert.Equal(t, "OUT", recs[5].attrs["severity"])
}

func TestPerLevelMethodsFallBackToBuiltinTable(t *testing.T) {
	h := newCapture(slog.LevelDebug - 12)
	reg := level.NewRegistry()
	_, err := reg.Register("CUSTOM", 15, slog.LevelDebug+2)
	require.NoError(t, err)
	lg := logger.New("test", logger.Options{Handler: h, Registry: reg})

	// The registry carries none of the built-in ranks; the per-level
	// methods must still emit rather than drop.
	lg.Notice(context.Background(), "still here", nil)

	recs := h.all()
	require.Len(t, recs, 1)
	assert.Equal(t, "still here", recs[0].msg)
	assert.Equal(t, "NOTICE", recs[0].attrs["severity"])
	assert.Equal(t, slog.LevelInfo+1, recs[0].level)
}

func TestHandlerThresholdFiltersLowSeverities(t *testing.T) {
	h := newCapture(slog.LevelInfo)
	lg := newLogger(t, h, nil)
	ctx := context.Background()

	lg.Trace(ctx, "hidden", nil)
	lg.Debug(ctx, "hidden", nil)
	lg.Out(ctx, "visible", nil)

	recs := h.all()
	require.Len(t, recs, 1)
	assert.Equal(t, "visible", recs[0].msg)
}

func TestExceptionHonorsStackTraceToggle(t *testing.T) {
	h := newCapture(slog.LevelDebug - 12)
	show := &atomic.Bool{}
	show.Store(true)
	lg := logger.New("test", logger.Options{
		Handler:    h,
		Registry:   level.Builtin(),
		Defaults:   extras.NewDefaults(),
		ShowStacks: show,
	})

	lg.Exception(context.Background(), "boom", assert.AnError, nil)
	show.Store(false)
	lg.Exception(context.Background(), "boom again", assert.AnError, nil)

	recs := h.all()
	require.Len(t, recs, 2)
	assert.Contains(t, recs[0].attrs, "stack")
	assert.Contains(t, recs[0].attrs["error"], "assert.AnError")
	assert.NotContains(t, recs[1].attrs, "stack")
}

func TestReplaceLevelNamesRendersCustomNames(t *testing.T) {
	reg := level.Builtin()
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level:       slog.LevelDebug - 12,
		ReplaceAttr: logger.ReplaceLevelNames(reg),
	})
	lg := logger.New("test", logger.Options{Handler: h, Registry: reg})

	lg.Out(context.Background(), "for the user", nil)
	lg.Audit(context.Background(), "bridged", nil)

	out := buf.String()
	assert.Contains(t, out, "level=OUT")
	assert.Contains(t, out, "level=AUDIT")
	assert.NotContains(t, out, "DEBUG-8")
}
