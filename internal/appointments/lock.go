package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired means another process is reserving the same slot.
var ErrLockNotAcquired = errors.New("appointments: slot lock not acquired")

// Locker guards the reservation critical section per tenant slot.
type Locker interface {
	WithSlotLock(ctx context.Context, tenantID, slot string, fn func(ctx context.Context) error) error
}

// RedisSlotLocker holds a short-lived SET NX key per tenant slot.
type RedisSlotLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSlotLocker(client *redis.Client, ttl time.Duration) *RedisSlotLocker {
	if client == nil {
		panic("appointments: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &RedisSlotLocker{client: client, ttl: ttl}
}

func slotLockKey(tenantID, slot string) string {
	return fmt.Sprintf("lock:slot:%s:%s", tenantID, slot)
}

// WithSlotLock runs fn while holding the slot key; fn's context expires with the lock.
func (l *RedisSlotLocker) WithSlotLock(ctx context.Context, tenantID, slot string, fn func(ctx context.Context) error) error {
	key := slotLockKey(tenantID, slot)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("appointments: acquire slot lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	lockCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(lockCtx)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *RedisSlotLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("appointments: release slot lock: %w", err)
	}
	return nil
}
