package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/consultia/clinic-agent/pkg/logging"
	"github.com/redis/go-redis/v9"
)

const defaultTenantCacheTTL = 5 * time.Minute

// CachedStore is a Redis read-through cache in front of another Store.
type CachedStore struct {
	next   Store
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

func NewCachedStore(next Store, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedStore {
	if next == nil {
		panic("clinic: backing store required")
	}
	if client == nil {
		panic("clinic: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultTenantCacheTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedStore{next: next, redis: client, ttl: ttl, logger: logger}
}

func (s *CachedStore) key(id string) string {
	return fmt.Sprintf("clinic:tenant:%s", id)
}

// Get implements Store. Cache failures degrade to the backing store.
func (s *CachedStore) Get(ctx context.Context, id string) (*Tenant, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	switch {
	case err == nil:
		var t Tenant
		if jsonErr := json.Unmarshal(data, &t); jsonErr == nil {
			return &t, nil
		}
		s.logger.Warn("tenant cache entry corrupt", "tenant_id", id)
	case !errors.Is(err, redis.Nil):
		s.logger.Warn("tenant cache read failed", "tenant_id", id, "error", err)
	}

	t, err := s.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(t); err == nil {
		if err := s.redis.Set(ctx, s.key(id), payload, s.ttl).Err(); err != nil {
			s.logger.Warn("tenant cache write failed", "tenant_id", id, "error", err)
		}
	}
	return t, nil
}

// Invalidate drops the cached copy of a tenant.
func (s *CachedStore) Invalidate(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("clinic: invalidate tenant cache: %w", err)
	}
	return nil
}
