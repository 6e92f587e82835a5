package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLocalAllowsWithinPerMinuteCap(t *testing.T) {
	l := NewLocal(map[Operation]Cap{OpCurrentUser: {PerMinute: 2}})
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "app1", OpCurrentUser))
	assert.True(t, l.Allow(ctx, "app1", OpCurrentUser))
	assert.False(t, l.Allow(ctx, "app1", OpCurrentUser), "third call within the same burst should exceed a cap of 2")
}

func TestLocalEntersCoolDownAfterBreach(t *testing.T) {
	l := NewLocal(map[Operation]Cap{OpCurrentUser: {PerMinute: 1}})
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "app1", OpCurrentUser))
	assert.False(t, l.Allow(ctx, "app1", OpCurrentUser))
	// Still cooling down even though the token bucket might have refilled
	// a touch; CoolDown (30s) far outlasts a per-minute bucket's refill tick.
	assert.False(t, l.Allow(ctx, "app1", OpCurrentUser))
}

func TestLocalUnknownOperationAlwaysAllowed(t *testing.T) {
	l := NewLocal(map[Operation]Cap{})
	assert.True(t, l.Allow(context.Background(), "app1", Operation("unspecified")))
}

func TestLocalCapsAreIsolatedPerApp(t *testing.T) {
	l := NewLocal(map[Operation]Cap{OpCurrentUser: {PerMinute: 1}})
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "app1", OpCurrentUser))
	assert.True(t, l.Allow(ctx, "app2", OpCurrentUser), "a separate app id must have its own bucket")
}

func TestLocalBurstCapEnforced(t *testing.T) {
	l := NewLocal(map[Operation]Cap{OpKVGet: {PerMinute: 1000, BurstPer5s: 1}})
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "app1", OpKVGet))
	assert.False(t, l.Allow(ctx, "app1", OpKVGet), "burst cap of 1 must reject a second call within 5s")
}

func TestDefaultCapsCoverEveryQuotaBearingOperation(t *testing.T) {
	for _, op := range []Operation{OpKVGet, OpKVSet, OpKVDelete, OpCommandExecution, OpCurrentUser} {
		_, ok := DefaultCaps[op]
		assert.True(t, ok, "missing default cap for %s", op)
	}
}

func TestCoolDownConstantIsPositive(t *testing.T) {
	assert.Greater(t, CoolDown, time.Duration(0))
}
