package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"admissions/pkg/platform/sentinel"
)

const (
	keyPrefix   = "admissions:lock:"
	defaultWait = 5 * time.Second
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock re-acquired by someone else is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a lease-based lock using SET NX PX. A holder that outlives the TTL
// loses the lease; the database transaction remains the final guard.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedis builds a Redis locker. ttl bounds how long a crashed holder blocks
// others; wait bounds how long Acquire retries before giving up.
// A non-positive wait uses defaultWait.
func NewRedis(client *redis.Client, ttl, wait time.Duration) *Redis {
	if wait <= 0 {
		wait = defaultWait
	}
	return &Redis{client: client, ttl: ttl, wait: wait}
}

func (r *Redis) Acquire(ctx context.Context, key string) (Release, error) {
	token := uuid.NewString()
	fullKey := keyPrefix + key

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = r.wait

	err := backoff.Retry(func() error {
		ok, err := r.client.SetNX(ctx, fullKey, token, r.ttl).Result()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("acquire lock %s: %w", key, err))
		}
		if !ok {
			return sentinel.ErrLockHeld
		}
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, ctxErr
		}
		return nil, err
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		// The caller's context may already be done; release on a short detached one.
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = releaseScript.Run(relCtx, r.client, []string{fullKey}, token).Err()
	}, nil
}
