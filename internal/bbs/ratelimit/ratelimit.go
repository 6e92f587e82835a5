// Package ratelimit enforces the per-app operation quotas in spec §5. Each
// operation has a per-minute cap and (for storage operations) a
// per-5-second burst cap; a request must pass both. Counters are keyed by
// appID+operation, not by session, since spec §5 requires them shared
// across sessions and updated atomically — exactly the shape
// golang.org/x/time/rate.Limiter gives a single process
// (internal/middleware/ratelimit.go's per-key limiter map), and what the
// Redis-backed variant gives a multi-instance deployment.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"
)

// Operation names the quota-bearing operations of spec §5's table.
type Operation string

const (
	OpKVGet            Operation = "kv_get"
	OpKVSet            Operation = "kv_set"
	OpKVDelete         Operation = "kv_delete"
	OpCommandExecution Operation = "command_execution"
	OpCurrentUser      Operation = "current_user"
)

// Cap is a (per-minute, per-5-second-burst) pair. A zero BurstPer5s means
// no separate burst cap applies (command_execution, current_user in §5's
// table carry only a per-minute cap).
type Cap struct {
	PerMinute  int
	BurstPer5s int
}

// DefaultCaps is spec §5's quota table.
var DefaultCaps = map[Operation]Cap{
	OpKVGet:            {PerMinute: 100, BurstPer5s: 20},
	OpKVSet:            {PerMinute: 50, BurstPer5s: 10},
	OpKVDelete:         {PerMinute: 20, BurstPer5s: 5},
	OpCommandExecution: {PerMinute: 30},
	OpCurrentUser:      {PerMinute: 60},
}

// CoolDown is the cool-down window spec §5 applies "after sustained
// breach."
const CoolDown = 30 * time.Second

// Limiter grants or refuses a single call against an app's quota for op.
type Limiter interface {
	Allow(ctx context.Context, appID string, op Operation) bool
}

// Local is an in-process Limiter, the single-instance deployment shape,
// built directly on golang.org/x/time/rate the way
// internal/middleware/ratelimit.go builds its per-key limiter map.
type Local struct {
	mu       sync.Mutex
	minute   map[string]*rate.Limiter
	burst    map[string]*rate.Limiter
	coolDown map[string]time.Time
	caps     map[Operation]Cap
}

// NewLocal builds a Local limiter using caps, defaulting to DefaultCaps
// when caps is nil.
func NewLocal(caps map[Operation]Cap) *Local {
	if caps == nil {
		caps = DefaultCaps
	}
	return &Local{
		minute:   make(map[string]*rate.Limiter),
		burst:    make(map[string]*rate.Limiter),
		coolDown: make(map[string]time.Time),
		caps:     caps,
	}
}

func limiterKey(appID string, op Operation) string { return appID + ":" + string(op) }

func (l *Local) Allow(_ context.Context, appID string, op Operation) bool {
	quota, ok := l.caps[op]
	if !ok {
		return true
	}
	key := limiterKey(appID, op)

	l.mu.Lock()
	defer l.mu.Unlock()

	if until, cooling := l.coolDown[key]; cooling {
		if time.Now().Before(until) {
			return false
		}
		delete(l.coolDown, key)
	}

	minuteLimiter, ok := l.minute[key]
	if !ok {
		minuteLimiter = rate.NewLimiter(rate.Limit(float64(quota.PerMinute)/60.0), quota.PerMinute)
		l.minute[key] = minuteLimiter
	}
	if !minuteLimiter.Allow() {
		l.coolDown[key] = time.Now().Add(CoolDown)
		return false
	}

	if quota.BurstPer5s > 0 {
		burstLimiter, ok := l.burst[key]
		if !ok {
			burstLimiter = rate.NewLimiter(rate.Limit(float64(quota.BurstPer5s)/5.0), quota.BurstPer5s)
			l.burst[key] = burstLimiter
		}
		if !burstLimiter.Allow() {
			l.coolDown[key] = time.Now().Add(CoolDown)
			return false
		}
	}

	return true
}

// Redis is the multi-instance Limiter, backing the "counters are shared
// across sessions and must be updated atomically" requirement of spec §5
// when the BBS runs as more than one process. It implements a fixed-window
// counter per key via INCR/EXPIRE, which Redis guarantees atomic per call.
type Redis struct {
	client *redis.Client
	caps   map[Operation]Cap
}

// NewRedis builds a Redis-backed limiter over an existing client.
func NewRedis(client *redis.Client, caps map[Operation]Cap) *Redis {
	if caps == nil {
		caps = DefaultCaps
	}
	return &Redis{client: client, caps: caps}
}

func (r *Redis) Allow(ctx context.Context, appID string, op Operation) bool {
	quota, ok := r.caps[op]
	if !ok {
		return true
	}

	if !r.windowAllows(ctx, appID, op, "m", time.Minute, quota.PerMinute) {
		return false
	}
	if quota.BurstPer5s > 0 {
		if !r.windowAllows(ctx, appID, op, "b", 5*time.Second, quota.BurstPer5s) {
			return false
		}
	}
	return true
}

func (r *Redis) windowAllows(ctx context.Context, appID string, op Operation, windowTag string, window time.Duration, max int) bool {
	key := fmt.Sprintf("bbs:ratelimit:%s:%s:%s", appID, op, windowTag)

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		// Fail open on a Redis outage: a transport fault should not make
		// every app call refuse. The in-app error surface for an actual
		// breach (spec §5) is distinct from a store fault.
		return true
	}
	if count == 1 {
		r.client.Expire(ctx, key, window)
	}
	return count <= int64(max)
}
