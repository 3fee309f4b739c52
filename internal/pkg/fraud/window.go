package fraud

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// WindowStore keeps timestamped observations per key for sliding-window
// counting. Implementations may be slightly stale across processes.
type WindowStore interface {
	// Observe records one observation of key at `at` and returns, for each
	// lookback, how many earlier observations fall in (at-lookback, at].
	// Observations older than ttl may be discarded.
	Observe(ctx context.Context, key string, at time.Time, ttl time.Duration, lookbacks ...time.Duration) ([]int64, error)
	// Prune drops observations that outlived their ttl and returns how many
	// keys were emptied.
	Prune(ctx context.Context, now time.Time) (int, error)
}

type memoryWindow struct {
	ttl   time.Duration
	times []time.Time
}

// MemoryWindowStore is a process-local WindowStore.
type MemoryWindowStore struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
}

// NewMemoryWindowStore creates an empty in-process store.
func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{windows: map[string]*memoryWindow{}}
}

func (s *MemoryWindowStore) Observe(_ context.Context, key string, at time.Time, ttl time.Duration, lookbacks ...time.Duration) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		w = &memoryWindow{}
		s.windows[key] = w
	}
	if ttl > w.ttl {
		w.ttl = ttl
	}

	counts := make([]int64, len(lookbacks))
	for _, t := range w.times {
		if t.After(at) {
			continue
		}
		for i, lb := range lookbacks {
			if t.After(at.Add(-lb)) {
				counts[i]++
			}
		}
	}
	w.times = append(w.times, at)
	return counts, nil
}

func (s *MemoryWindowStore) Prune(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	emptied := 0
	for key, w := range s.windows {
		cutoff := now.Add(-w.ttl)
		kept := w.times[:0]
		for _, t := range w.times {
			if !t.Before(cutoff) {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			delete(s.windows, key)
			emptied++
			continue
		}
		w.times = kept
	}
	return emptied, nil
}

// Len returns the number of tracked keys.
func (s *MemoryWindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// observeScript trims the sorted set to its ttl, counts each lookback before
// adding the new member, and refreshes the key expiry in one round trip.
var observeScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", "(" .. (now - ttl))
local counts = {}
for i = 4, #ARGV do
  counts[#counts + 1] = redis.call("ZCOUNT", KEYS[1], "(" .. (now - tonumber(ARGV[i])), now)
end
redis.call("ZADD", KEYS[1], now, ARGV[3])
redis.call("PEXPIRE", KEYS[1], ttl)
return counts
`)

// RedisWindowStore keeps one sorted set per key, scored by unix millis.
type RedisWindowStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisWindowStore creates a store writing keys below prefix.
func NewRedisWindowStore(client redis.UniversalClient, prefix string) *RedisWindowStore {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		trimmed = "pixelmart:fraud"
	}
	return &RedisWindowStore{client: client, prefix: trimmed}
}

func (s *RedisWindowStore) Observe(ctx context.Context, key string, at time.Time, ttl time.Duration, lookbacks ...time.Duration) ([]int64, error) {
	ttlMs := ttl.Milliseconds()
	if ttlMs < 1000 {
		ttlMs = 1000
	}
	args := make([]interface{}, 0, 3+len(lookbacks))
	args = append(args, at.UnixMilli(), ttlMs, uuid.NewString())
	for _, lb := range lookbacks {
		args = append(args, lb.Milliseconds())
	}

	raw, err := observeScript.Run(ctx, s.client, []string{s.prefix + ":" + key}, args...).Result()
	if err != nil {
		return nil, err
	}
	values, ok := raw.([]interface{})
	if !ok || len(values) != len(lookbacks) {
		return nil, fmt.Errorf("unexpected redis window response shape: %T", raw)
	}
	counts := make([]int64, len(values))
	for i, v := range values {
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("unexpected redis window count type: %T", v)
		}
		counts[i] = n
	}
	return counts, nil
}

// Prune is a no-op: every key carries a PEXPIRE and is trimmed on write.
func (s *RedisWindowStore) Prune(context.Context, time.Time) (int, error) {
	return 0, nil
}
