package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lease grants exclusive permission to run a crawl for up to ttl.
type Lease interface {
	Acquire(ctx context.Context, ttl time.Duration) (release func(), ok bool, err error)
}

// releaseScript deletes the key only if it still holds our token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// LeaseClient is the subset of the Redis client the lease needs.
type LeaseClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisLease is a cross-replica lock: SET key token NX PX ttl, released with
// a compare-and-delete so an expired holder never frees someone else's lease.
type RedisLease struct {
	client LeaseClient
	key    string
}

// NewRedisLease returns a lease stored under key.
func NewRedisLease(client LeaseClient, key string) *RedisLease {
	return &RedisLease{client: client, key: key}
}

// Acquire tries once to take the lease.
func (l *RedisLease) Acquire(ctx context.Context, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.client.Eval(ctx, releaseScript, []string{l.key}, token).Err()
	}
	return release, true, nil
}
