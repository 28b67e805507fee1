package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/consultia/clinic-agent/internal/appointments"
	"github.com/consultia/clinic-agent/internal/clinic"
	appconfig "github.com/consultia/clinic-agent/internal/config"
	"github.com/consultia/clinic-agent/internal/conversation"
	"github.com/consultia/clinic-agent/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		return nil
	}
	return client
}

// BuildSessionStore picks the session registry backend. A redis backend
// without a reachable client falls back to memory.
func BuildSessionStore(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) conversation.SessionStore {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.SessionBackend == "redis" {
		if redisClient != nil {
			logger.Info("session registry backed by redis", "ttl", cfg.SessionTTL)
			return conversation.NewRedisSessionStore(redisClient, cfg.SessionTTL)
		}
		logger.Warn("SESSION_BACKEND=redis but redis is unavailable; using memory")
	}
	logger.Info("session registry in memory", "capacity", cfg.SessionMax, "idle_ttl", cfg.SessionTTL)
	return conversation.NewMemorySessionStore(cfg.SessionMax, cfg.SessionTTL)
}

// BuildTenantStore resolves tenants from Postgres (cached in Redis when
// available), else TENANTS_JSON, else the built-in demo clinic. With both a
// database and TENANTS_JSON the JSON tenants are upserted first, since
// appointments reference the tenants table.
func BuildTenantStore(ctx context.Context, cfg *appconfig.Config, sqlDB *sql.DB, redisClient *redis.Client, logger *logging.Logger) (clinic.Store, error) {
	if logger == nil {
		logger = logging.Default()
	}
	var static *clinic.StaticStore
	if raw := strings.TrimSpace(cfg.TenantsJSON); raw != "" {
		var err error
		static, err = clinic.ParseStaticTenants(raw)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: tenants: %w", err)
		}
	}

	if sqlDB == nil {
		if static != nil {
			logger.Info("tenant registry loaded from TENANTS_JSON")
			return static, nil
		}
		logger.Warn("no tenant source configured; serving the demo clinic only")
		return clinic.NewStaticStore(clinic.DemoTenant()), nil
	}

	sqlStore := clinic.NewSQLStore(sqlDB)
	var cached *clinic.CachedStore
	var store clinic.Store = sqlStore
	if redisClient != nil {
		cached = clinic.NewCachedStore(sqlStore, redisClient, cfg.TenantCacheTTL, logger)
		store = cached
	}
	if static != nil {
		seeded := static.All()
		for _, t := range seeded {
			if err := sqlStore.Upsert(ctx, &t); err != nil {
				return nil, fmt.Errorf("bootstrap: sync tenant %s: %w", t.ID, err)
			}
			if cached != nil {
				if err := cached.Invalidate(ctx, t.ID); err != nil {
					logger.Warn("tenant cache invalidation failed", "tenant_id", t.ID, "error", err)
				}
			}
		}
		logger.Info("TENANTS_JSON synced into the tenants table", "tenants", len(seeded))
	}
	return store, nil
}

// BuildAppointmentService wires the slot engine on Postgres when a pool is
// given and in memory otherwise. The Redis slot lock is opt-in.
func BuildAppointmentService(cfg *appconfig.Config, pool *pgxpool.Pool, redisClient *redis.Client, logger *logging.Logger) *appointments.Service {
	if logger == nil {
		logger = logging.Default()
	}
	var repo appointments.Repository
	if pool != nil {
		repo = appointments.NewPgRepository(pool)
	} else {
		logger.Warn("no database configured; appointments are kept in memory")
		repo = appointments.NewMemoryRepository()
	}

	var opts []appointments.Option
	if cfg.SlotLockEnabled {
		if redisClient != nil {
			opts = append(opts, appointments.WithLocker(appointments.NewRedisSlotLocker(redisClient, cfg.SlotLockTTL)))
		} else {
			logger.Warn("SLOT_LOCK_ENABLED but redis is unavailable; relying on the store alone")
		}
	}
	return appointments.NewService(repo, logger, opts...)
}
