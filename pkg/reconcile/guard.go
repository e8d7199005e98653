package reconcile

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"floodwatch/internal/util"
)

// DefaultLeaseTTL outlives the feed timeout plus a generous write phase.
const DefaultLeaseTTL = 2 * time.Minute

// Guard hands out per-collection leases so that a manual sync and a timer
// tick never reconcile the same collection at once.
type Guard interface {
	// Acquire returns ok=false when another holder owns the lease.
	// release must be called exactly once when ok is true.
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error)
}

var releaseLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard stores leases as SET NX PX keys so that every API replica
// shares them.
type RedisGuard struct {
	client *redis.Client
	prefix string
}

// NewRedisGuard creates a Redis-backed lease guard.
func NewRedisGuard(addr, password, prefix string) (*RedisGuard, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("sync guard redis addr is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "floodwatch:sync"
	}
	return &RedisGuard{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		prefix: prefix,
	}, nil
}

// Acquire takes the named lease for ttl.
func (g *RedisGuard) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	key := g.prefix + ":" + name
	token := util.NewID()
	ok, err := g.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseLeaseScript.Run(ctx, g.client, []string{key}, token).Err()
	}, true, nil
}

// Close releases the Redis connection pool.
func (g *RedisGuard) Close() error {
	return g.client.Close()
}

// MemoryGuard is the single-process Guard used when Redis is not configured.
type MemoryGuard struct {
	mu     sync.Mutex
	leases map[string]time.Time
	now    func() time.Time
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{leases: make(map[string]time.Time), now: time.Now}
}

func (g *MemoryGuard) Acquire(_ context.Context, name string, ttl time.Duration) (func(), bool, error) {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if until, held := g.leases[name]; held && now.Before(until) {
		return nil, false, nil
	}
	until := now.Add(ttl)
	g.leases[name] = until
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			if g.leases[name].Equal(until) {
				delete(g.leases, name)
			}
		})
	}, true, nil
}
