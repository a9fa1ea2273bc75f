// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package extras_test

import (
	"context"
	"sync"
	"testing"

	"github.com/sigil-dev/auditlog/internal/extras"
	alerr "github.com/sigil-dev/auditlog/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsLastWriteWins(t *testing.T) {
	d := extras.NewDefaults()
	d.Set("service", "alpha")
	d.Set("service", "beta")
	d.SetAll(map[string]any{"region": "eu-1", "service": "gamma"})

	snap := d.Snapshot()
	assert.Equal(t, "gamma", snap["service"])
	assert.Equal(t, "eu-1", snap["region"])
	assert.Equal(t, 2, d.Len())
}

func TestDefaultsVisibleAcrossGoroutines(t *testing.T) {
	d := extras.NewDefaults()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			d.Set("shared", n)
			_ = d.Snapshot()
		}(i)
	}
	wg.Wait()

	assert.Contains(t, d.Snapshot(), "shared")
}

func TestEffectiveIncludesUnshadowedDefaults(t *testing.T) {
	d := extras.NewDefaults()
	d.Set("service", "alpha")
	d.Set("request_id", "-")

	st := extras.NewStack(d)
	sc := st.Enter(map[string]any{"request_id": "r-1"})

	eff := st.Effective()
	assert.Equal(t, "alpha", eff["service"], "unshadowed default must survive")
	assert.Equal(t, "r-1", eff["request_id"])

	require.NoError(t, st.Exit(sc))
	assert.Equal(t, "-", st.Effective()["request_id"])
}

func TestInnermostScopeWinsAcrossThreeLevels(t *testing.T) {
	d := extras.NewDefaults()
	d.Set("tenant", "none")

	st := extras.NewStack(d)
	outer := st.Enter(map[string]any{"tenant": "outer"})
	middle := st.Enter(map[string]any{"tenant": "middle"})
	inner := st.Enter(map[string]any{"tenant": "inner"})

	assert.Equal(t, "inner", st.Effective()["tenant"])

	require.NoError(t, st.Exit(inner))
	assert.Equal(t, "middle", st.Effective()["tenant"])

	require.NoError(t, st.Exit(middle))
	assert.Equal(t, "outer", st.Effective()["tenant"])

	require.NoError(t, st.Exit(outer))
	assert.Equal(t, "none", st.Effective()["tenant"])
}

func TestOverridesBeatDefaultsAtEveryDepth(t *testing.T) {
	st := extras.NewStack(nil)

	outer := st.EnterWith(nil, map[string]any{"mode": "strict"})
	// An inner scope's *default* must not displace an outer override.
	inner := st.EnterWith(map[string]any{"mode": "lax", "color": "red"}, nil)

	eff := st.Effective()
	assert.Equal(t, "strict", eff["mode"])
	assert.Equal(t, "red", eff["color"])

	require.NoError(t, st.Exit(inner))
	require.NoError(t, st.Exit(outer))
}

func TestExitOutOfOrderFailsAndLeavesStackUnchanged(t *testing.T) {
	st := extras.NewStack(nil)
	outer := st.Enter(map[string]any{"k": "outer"})
	inner := st.Enter(map[string]any{"k": "inner"})

	err := st.Exit(outer)
	require.Error(t, err)
	assert.True(t, alerr.IsScopeOrder(err))

	// Stack is untouched: the inner scope still wins and both scopes pop
	// cleanly in the correct order afterwards.
	assert.Equal(t, 2, st.Depth())
	assert.Equal(t, "inner", st.Effective()["k"])
	require.NoError(t, st.Exit(inner))
	require.NoError(t, st.Exit(outer))
	assert.Equal(t, 0, st.Depth())
}

func TestExitTwiceFails(t *testing.T) {
	st := extras.NewStack(nil)
	sc := st.Enter(nil)
	require.NoError(t, st.Exit(sc))

	err := st.Exit(sc)
	require.Error(t, err)
	assert.True(t, alerr.HasCode(err, alerr.CodeExtrasScopeExitOrder))
}

func TestExitNilScopeFails(t *testing.T) {
	st := extras.NewStack(nil)
	err := st.Exit(nil)
	require.Error(t, err)
	assert.True(t, alerr.IsScopeOrder(err))
}

func TestScopeHandleIDsAreUnique(t *testing.T) {
	st := extras.NewStack(nil)
	a := st.Enter(nil)
	b := st.Enter(nil)
	assert.NotEqual(t, a.ID(), b.ID())
	require.NoError(t, st.Exit(b))
	require.NoError(t, st.Exit(a))
}

func TestEffectiveReturnsIndependentSnapshot(t *testing.T) {
	d := extras.NewDefaults()
	d.Set("service", "alpha")
	st := extras.NewStack(d)

	eff := st.Effective()
	eff["service"] = "mutated"

	assert.Equal(t, "alpha", st.Effective()["service"])
	assert.Equal(t, "alpha", d.Snapshot()["service"])
}

func TestContextCarrier(t *testing.T) {
	d := extras.NewDefaults()
	d.Set("service", "alpha")
	st := extras.NewStack(d)
	sc := st.Enter(map[string]any{"request_id": "r-9"})

	ctx := extras.WithStack(context.Background(), st)
	got, ok := extras.StackFrom(ctx)
	require.True(t, ok)
	assert.Same(t, st, got)

	eff := extras.Effective(ctx, d)
	assert.Equal(t, "r-9", eff["request_id"])
	assert.Equal(t, "alpha", eff["service"])

	// Without a bound stack, only the process defaults apply.
	bare := extras.Effective(context.Background(), d)
	assert.Equal(t, "alpha", bare["service"])
	assert.NotContains(t, bare, "request_id")

	require.NoError(t, st.Exit(sc))
}

func TestStacksAreIndependentPerTask(t *testing.T) {
	d := extras.NewDefaults()
	d.Set("service", "alpha")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			st := extras.NewStack(d)
			sc := st.Enter(map[string]any{"worker": n})
			eff := st.Effective()
			assert.Equal(t, n, eff["worker"])
			assert.Equal(t, "alpha", eff["service"])
			assert.NoError(t, st.Exit(sc))
		}(i)
	}
	wg.Wait()
}
