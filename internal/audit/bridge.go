// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sigil-dev/auditlog/internal/level"
	"github.com/sigil-dev/auditlog/internal/logger"
	alerr "github.com/sigil-dev/auditlog/pkg/errors"
)

// State is the bridge lifecycle position.
type State int32

const (
	StateUnregistered State = iota
	StateArmed
	StateActive
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateArmed:
		return "armed"
	case StateActive:
		return "active"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "invalid"
	}
}

const (
	// DefaultQueueSize bounds the event queue when the host does not
	// choose a capacity.
	DefaultQueueSize = 1024
	// DefaultGrace bounds how long Disarm waits for the consumer to
	// drain.
	DefaultGrace = 500 * time.Millisecond
)

// Config fixes the bridge's behavior at arm time. Level must already be
// resolved; unknown configured names are rejected before a Config is
// built.
type Config struct {
	Enabled           bool
	Level             level.Level
	OmitLoggingFrames bool
	QueueSize         int
	Grace             time.Duration
}

// Bridge owns the hook, the queue and the consumer goroutine. The hook
// side never blocks and never logs; the consumer is the only path from an
// audit event to the logging facade.
type Bridge struct {
	log *logger.Logger
	cfg Config

	state atomic.Int32

	events  chan Event
	closing chan struct{}
	done    chan struct{}

	closeOnce sync.Once

	dropped  atomic.Uint64
	failures atomic.Uint64
}

// New builds an unarmed bridge that will log through lg.
func New(lg *logger.Logger, cfg Config) *Bridge {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	return &Bridge{
		log:     lg,
		cfg:     cfg,
		events:  make(chan Event, cfg.QueueSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// State reports the bridge's current lifecycle position.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// Dropped reports how many events were discarded because the queue was
// full or the bridge was not accepting.
func (b *Bridge) Dropped() uint64 {
	return b.dropped.Load()
}

// Failures reports how many dequeued events could not be logged.
func (b *Bridge) Failures() uint64 {
	return b.failures.Load()
}

// Arm registers the hook and starts the consumer. When the config is
// disabled Arm is a no-op and the bridge stays unregistered. A Bridge is
// single-use: arming twice, or arming again after Disarm, fails with
// bridge.state.invalid.
func (b *Bridge) Arm() error {
	if !b.cfg.Enabled {
		return nil
	}

	select {
	case <-b.closing:
		return alerr.New(alerr.CodeBridgeStateInvalid, "bridge has already been shut down")
	default:
	}

	if !b.state.CompareAndSwap(int32(StateUnregistered), int32(StateArmed)) {
		return alerr.New(alerr.CodeBridgeStateInvalid,
			"bridge is not in the unregistered state",
			alerr.Field("state", b.State().String()))
	}

	if err := RegisterHook(b.Hook); err != nil {
		b.state.Store(int32(StateUnregistered))
		return err
	}

	go b.run()
	// CAS so a concurrent Disarm's SHUTTING_DOWN is not overwritten.
	b.state.CompareAndSwap(int32(StateArmed), int32(StateActive))
	return nil
}

// Hook is the callback handed to the runtime audit subsystem. It runs
// synchronously on whatever goroutine triggered the event, so it must not
// block, must not panic outward, and must never call the logging facade.
func (b *Bridge) Hook(ev Event) {
	defer func() {
		// The emitting goroutine's control flow must never be disturbed.
		_ = recover()
	}()

	if b.State() != StateActive {
		b.dropped.Add(1)
		return
	}
	if b.cfg.OmitLoggingFrames && ev.isLoggingFrame() {
		return
	}

	select {
	case b.events <- ev:
	default:
		// Queue full: the audited program must not depend on audit
		// logging succeeding, so drop instead of blocking.
		b.dropped.Add(1)
	}
}

// Disarm unregisters the hook, signals the consumer and waits up to the
// grace period for it to drain. Idempotent; a second call returns nil
// without further effect.
func (b *Bridge) Disarm() error {
	switch b.State() {
	case StateUnregistered:
		return nil
	case StateShuttingDown:
		// Another caller is already tearing down; just wait alongside.
	default:
		b.state.Store(int32(StateShuttingDown))
		UnregisterHook()
	}

	b.closeOnce.Do(func() { close(b.closing) })

	select {
	case <-b.done:
		b.state.Store(int32(StateUnregistered))
		return nil
	case <-time.After(b.cfg.Grace):
		b.state.Store(int32(StateUnregistered))
		return alerr.New(alerr.CodeBridgeDrainTimeout,
			"consumer did not drain within the grace period",
			alerr.Field("grace", b.cfg.Grace.String()),
			alerr.Field("queued", len(b.events)))
	}
}

// run is the single consumer goroutine: dequeue, format, log, one event
// at a time, until told to stop. On shutdown it drains whatever is
// already queued, best-effort.
func (b *Bridge) run() {
	defer close(b.done)
	for {
		select {
		case ev := <-b.events:
			b.deliver(ev)
		case <-b.closing:
			for {
				select {
				case ev := <-b.events:
					b.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

// deliver logs one event through the facade. A failure logging a single
// event must not stop the loop, so panics are swallowed and counted.
func (b *Bridge) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.failures.Add(1)
		}
	}()

	extra := map[string]any{"audit_event": ev.Name}
	if ev.Origin != "" {
		extra["audit_origin"] = ev.Origin
	}
	b.log.LogLevel(context.Background(), b.cfg.Level, ev.Format(), extra)
}
