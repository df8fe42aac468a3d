package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// releaseScript deletes the key only while we still own it. Without the
// token check a slow worker could delete a lease already re-acquired by
// someone else after expiry.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker on a Redis instance using SET NX EX
type RedisLocker struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewRedisLocker creates a locker backed by the given Redis client
func NewRedisLocker(client *redis.Client, log zerolog.Logger) *RedisLocker {
	return &RedisLocker{
		client: client,
		log:    log.With().Str("component", "lock").Logger(),
	}
}

// Acquire attempts a single atomic set-if-absent with expiry. Returns
// ErrNotAcquired when the key is already held.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		l.log.Debug().Str("key", key).Msg("lock busy")
		return nil, ErrNotAcquired
	}

	l.log.Debug().Str("key", key).Dur("ttl", ttl).Msg("lock acquired")
	return &redisLease{locker: l, key: key, token: token}, nil
}

type redisLease struct {
	locker *RedisLocker
	key    string
	token  string
}

func (le *redisLease) Key() string { return le.key }

// Release deletes the lease if we still own it. A lease that already
// expired releases as a no-op.
func (le *redisLease) Release(ctx context.Context) error {
	res, err := releaseScript.Run(ctx, le.locker.client, []string{le.key}, le.token).Result()
	if err != nil {
		le.locker.log.Warn().Err(err).Str("key", le.key).Msg("lock release failed; lease will expire on its own")
		return err
	}
	if n, ok := res.(int64); ok && n == 0 {
		le.locker.log.Debug().Str("key", le.key).Msg("lease already expired before release")
	}
	return nil
}
