package engineinfra

import (
	"context"
	"log"
	"time"

	"github.com/agentcord/agentflow/engine"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	identityLockPrefix = "agentflow:identity:" // String keys with TTL
	lockPollInterval   = 100 * time.Millisecond
)

// Compare-and-delete: solo el dueño del token puede soltar el lock.
const releaseLockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

var _ engine.IdentityLock = (*RedisIdentityLock)(nil)

// RedisIdentityLock serializa el procesamiento de webhooks por identidad de
// usuario. El TTL evita locks huérfanos si el proceso muere a mitad de camino.
type RedisIdentityLock struct {
	redis        *redis.Client
	ttl          time.Duration
	acquireWait  time.Duration
	pollInterval time.Duration
}

func NewRedisIdentityLock(redisClient *redis.Client, ttl, acquireWait time.Duration) *RedisIdentityLock {
	return &RedisIdentityLock{
		redis:        redisClient,
		ttl:          ttl,
		acquireWait:  acquireWait,
		pollInterval: lockPollInterval,
	}
}

// Acquire toma el lock de la identidad o espera a que se libere. Si tras la
// espera configurada sigue ocupado devuelve ErrIdentityLockBusy para que el
// intake guarde el mensaje sin procesarlo.
func (r *RedisIdentityLock) Acquire(ctx context.Context, key string) (string, error) {
	lockKey := identityLockPrefix + key
	token := uuid.New().String()
	deadline := time.Now().Add(r.acquireWait)

	for {
		acquired, err := r.redis.SetNX(ctx, lockKey, token, r.ttl).Result()
		if err != nil {
			return "", engine.ErrIdentityLockFailed().
				WithDetail("key", key).
				WithCause(err)
		}

		if acquired {
			return token, nil
		}

		if time.Now().After(deadline) {
			return "", engine.ErrIdentityLockBusy().WithDetail("key", key)
		}

		select {
		case <-ctx.Done():
			return "", engine.ErrIdentityLockFailed().
				WithDetail("key", key).
				WithCause(ctx.Err())
		case <-time.After(r.pollInterval):
		}
	}
}

// Release suelta el lock solo si el token coincide. Un lock ya expirado no es
// error: el TTL hizo su trabajo.
func (r *RedisIdentityLock) Release(ctx context.Context, key, token string) error {
	lockKey := identityLockPrefix + key

	deleted, err := r.redis.Eval(ctx, releaseLockScript, []string{lockKey}, token).Result()
	if err != nil {
		return engine.ErrIdentityLockFailed().
			WithDetail("key", key).
			WithCause(err)
	}

	if n, ok := deleted.(int64); ok && n == 0 {
		log.Printf("⚠️ Identity lock for %s expired before release", key)
	}

	return nil
}
