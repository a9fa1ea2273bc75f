// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package auditlog augments log/slog with extra severities (AUDIT, TRACE,
// NOTICE, OUT), context-scoped default metadata merged into every record,
// and a bridge that turns runtime audit events into ordinary log records
// without re-entering the logging machinery.
//
// Call Init once before anything else; GetLogger and the extras setters
// fail with logging.init.not_initialized until then.
package auditlog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/sigil-dev/auditlog/internal/audit"
	"github.com/sigil-dev/auditlog/internal/config"
	"github.com/sigil-dev/auditlog/internal/extras"
	"github.com/sigil-dev/auditlog/internal/level"
	"github.com/sigil-dev/auditlog/internal/logger"
	alerr "github.com/sigil-dev/auditlog/pkg/errors"
)

// Logger is the named logging facade returned by GetLogger.
type Logger = logger.Logger

// Scope is a span of stacked extras returned by EnterScope.
type Scope = extras.Scope

// Config is the settings object consumed by Init.
type Config = config.Config

// AuditLoggerName is the logger bridged audit events are emitted under.
const AuditLoggerName = "sys.audit"

type runtime struct {
	cfg        *config.Config
	registry   *level.Registry
	defaults   *extras.Defaults
	showStacks atomic.Bool
	handler    slog.Handler
	bridge     *audit.Bridge
	loggers    sync.Map // name -> *logger.Logger
}

var (
	mu    sync.Mutex
	state *runtime
)

// Option adjusts initialization.
type Option func(*options)

type options struct {
	handler slog.Handler
}

// WithHandler routes records to h instead of the default text handler on
// stderr.
func WithHandler(h slog.Handler) Option {
	return func(o *options) { o.handler = h }
}

// Init wires the logging core from cfg: registers the severity table,
// seeds the process-wide default extras, and arms the audit bridge when
// logging.with_audit is set. A nil cfg discovers the well-known config
// files. Init is idempotent; the second and later calls are no-ops.
//
// A configured audit_level that names no registered severity fails here
// with level.resolve.unknown rather than silently falling back.
func Init(cfg *Config, opts ...Option) error {
	mu.Lock()
	defer mu.Unlock()

	if state != nil {
		return nil
	}

	if cfg == nil {
		discovered, err := config.Discover()
		if err != nil {
			return err
		}
		cfg = discovered
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	registry := level.Builtin()

	// Resolve eagerly even when the bridge stays disarmed, so a typo in
	// the configured name surfaces at startup.
	auditLevel, err := registry.Resolve(cfg.Logging.AuditLevel)
	if err != nil {
		return err
	}

	defaults := extras.NewDefaults()
	for k, v := range cfg.Logging.DefaultExtras {
		defaults.Set(k, v)
	}

	rt := &runtime{
		cfg:      cfg,
		registry: registry,
		defaults: defaults,
	}
	rt.showStacks.Store(cfg.Logging.ShowStackTraces)

	rt.handler = o.handler
	if rt.handler == nil {
		lowest, _ := registry.Resolve("AUDIT")
		rt.handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level:       lowest.Slog,
			ReplaceAttr: logger.ReplaceLevelNames(registry),
		})
	}

	rt.bridge = audit.New(rt.logger(AuditLoggerName), audit.Config{
		Enabled:           cfg.Logging.WithAudit,
		Level:             auditLevel,
		OmitLoggingFrames: cfg.Logging.OmitLoggingFrames,
		QueueSize:         cfg.Logging.AuditQueueSize,
		Grace:             cfg.Logging.ShutdownGrace,
	})
	if err := rt.bridge.Arm(); err != nil {
		return err
	}

	state = rt
	return nil
}

// Shutdown disarms the audit bridge, draining queued events up to the
// configured grace period or until ctx is cancelled, whichever comes
// first, and returns the package to the uninitialized state. Safe to
// call more than once.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	rt := state
	state = nil
	mu.Unlock()

	if rt == nil {
		return nil
	}

	errCh := make(chan error, 1)
	go func() { errCh <- rt.bridge.Disarm() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetLogger returns the facade registered under name, creating it on
// first use. Idempotent per name.
func GetLogger(name string) (*Logger, error) {
	mu.Lock()
	rt := state
	mu.Unlock()

	if rt == nil {
		return nil, alerr.New(alerr.CodeLoggingNotInitialized,
			"init_logging has not been called", alerr.FieldLogger(name))
	}
	return rt.logger(name), nil
}

func (rt *runtime) logger(name string) *logger.Logger {
	if lg, ok := rt.loggers.Load(name); ok {
		return lg.(*logger.Logger)
	}
	lg := logger.New(name, logger.Options{
		Handler:      rt.handler,
		Registry:     rt.registry,
		Defaults:     rt.defaults,
		RequiredKeys: rt.cfg.Logging.RequiredExtras,
		ShowStacks:   &rt.showStacks,
	})
	actual, _ := rt.loggers.LoadOrStore(name, lg)
	return actual.(*logger.Logger)
}

// SetDefaultExtra records a process-wide fallback value for key.
func SetDefaultExtra(key string, value any) error {
	rt, err := initialized()
	if err != nil {
		return err
	}
	rt.defaults.Set(key, value)
	return nil
}

// SetDefaultExtras records every entry of values as process-wide
// fallbacks.
func SetDefaultExtras(values map[string]any) error {
	rt, err := initialized()
	if err != nil {
		return err
	}
	rt.defaults.SetAll(values)
	return nil
}

// SetShowStackTraces toggles whether Exception attaches stacks.
func SetShowStackTraces(show bool) error {
	rt, err := initialized()
	if err != nil {
		return err
	}
	rt.showStacks.Store(show)
	return nil
}

// EnterScope pushes a scope of override extras for the task carried by
// ctx, creating the task's stack on first use. The returned context must
// be used for log calls inside the scope, and the scope must be released
// with ExitScope in reverse entry order.
func EnterScope(ctx context.Context, overrides map[string]any) (context.Context, *Scope, error) {
	rt, err := initialized()
	if err != nil {
		return ctx, nil, err
	}

	st, ok := extras.StackFrom(ctx)
	if !ok {
		st = extras.NewStack(rt.defaults)
		ctx = extras.WithStack(ctx, st)
	}
	return ctx, st.Enter(overrides), nil
}

// ExitScope releases sc on the stack carried by ctx. Scopes must be
// released innermost first; anything else fails with
// extras.scope.exit.order.
func ExitScope(ctx context.Context, sc *Scope) error {
	if _, err := initialized(); err != nil {
		return err
	}

	st, ok := extras.StackFrom(ctx)
	if !ok {
		return alerr.New(alerr.CodeExtrasScopeExitOrder, "context carries no extras stack")
	}
	return st.Exit(sc)
}

// Emit hands an audit event to the armed bridge, if any. This is the
// host-runtime boundary: instrumented code calls Emit, never the logging
// facade, from audit-sensitive paths. The event's origin is the caller
// of Emit, not this passthrough.
func Emit(name string, args ...any) {
	audit.EmitDepth(1, name, args...)
}

// AuditDropped reports how many audit events the bridge has discarded.
func AuditDropped() (uint64, error) {
	rt, err := initialized()
	if err != nil {
		return 0, err
	}
	return rt.bridge.Dropped(), nil
}

// WatchConfig re-applies the mutable settings (default extras and stack
// trace visibility) whenever a well-known config file changes. Close the
// returned watcher to stop.
func WatchConfig() (io.Closer, error) {
	rt, err := initialized()
	if err != nil {
		return nil, err
	}

	w, err := config.Watch(config.WellKnownPaths(), config.Discover, func(c *config.Config) {
		for k, v := range c.Logging.DefaultExtras {
			rt.defaults.Set(k, v)
		}
		rt.showStacks.Store(c.Logging.ShowStackTraces)
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// LoadConfig reads a settings file, or the documented defaults when path
// is empty.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DiscoverConfig merges the well-known settings files.
func DiscoverConfig() (*Config, error) {
	return config.Discover()
}

func initialized() (*runtime, error) {
	mu.Lock()
	defer mu.Unlock()
	if state == nil {
		return nil, alerr.New(alerr.CodeLoggingNotInitialized, "init_logging has not been called")
	}
	return state, nil
}
