package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/consultia/clinic-agent/internal/clinic"
	appconfig "github.com/consultia/clinic-agent/internal/config"
	"github.com/consultia/clinic-agent/internal/conversation"
	"github.com/consultia/clinic-agent/pkg/logging"
)

func TestBuildRedisClientDisabled(t *testing.T) {
	if client := BuildRedisClient(context.Background(), &appconfig.Config{}, nil, true); client != nil {
		t.Fatalf("expected nil client without REDIS_ADDR")
	}
}

func TestBuildRedisClientVerifies(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{RedisAddr: mr.Addr()}

	client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true)
	if client == nil {
		t.Fatalf("expected client for reachable redis")
	}
	_ = client.Close()

	mr.Close()
	if client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client when ping fails")
	}
}

func TestBuildSessionStore(t *testing.T) {
	logger := logging.New("error")
	cfg := &appconfig.Config{SessionBackend: "redis", SessionTTL: time.Hour, SessionMax: 10}

	if _, ok := BuildSessionStore(cfg, nil, logger).(*conversation.MemorySessionStore); !ok {
		t.Fatalf("expected memory fallback without redis")
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	if _, ok := BuildSessionStore(cfg, client, logger).(*conversation.RedisSessionStore); !ok {
		t.Fatalf("expected redis session store")
	}
}

func TestBuildTenantStoreFallsBackToDemo(t *testing.T) {
	store, err := BuildTenantStore(context.Background(), &appconfig.Config{}, nil, nil, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tenant, err := store.Get(context.Background(), "demo")
	if err != nil {
		t.Fatalf("expected demo tenant: %v", err)
	}
	if tenant.Name != clinic.DemoTenant().Name {
		t.Fatalf("unexpected tenant %q", tenant.Name)
	}
}

func TestBuildTenantStoreFromJSON(t *testing.T) {
	cfg := &appconfig.Config{TenantsJSON: `[{"id":"whatsapp_+14155238886","name":"Clínica Norte","slot_minutes":60,"opens_at":"08:00","closes_at":"12:00","active":true}]`}

	store, err := BuildTenantStore(context.Background(), cfg, nil, nil, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tenant, found, err := clinic.NewResolver(store).Resolve(context.Background(), "whatsapp:+14155238886")
	if err != nil || !found {
		t.Fatalf("expected tenant, found=%v err=%v", found, err)
	}
	if tenant.Name != "Clínica Norte" {
		t.Fatalf("unexpected tenant %q", tenant.Name)
	}

	if _, err := BuildTenantStore(context.Background(), &appconfig.Config{TenantsJSON: "{"}, nil, nil, nil); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestBuildTenantStoreSyncsJSONIntoDatabase(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	// A stale copy from before the sync must not survive it.
	mr.Set("clinic:tenant:clinic_x", `{"id":"clinic_x","name":"Vieja"}`)

	mock.ExpectExec("INSERT INTO tenants").
		WithArgs("clinic_x", "Clínica X", "", "", "", "", "", "", 30, "09:00", "12:00",
			sqlmock.AnyArg(), "", sqlmock.AnyArg(), true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	cfg := &appconfig.Config{
		TenantsJSON:    `[{"id":"clinic_x","name":"Clínica X","slot_minutes":30,"opens_at":"09:00","closes_at":"12:00","active":true}]`,
		TenantCacheTTL: time.Minute,
	}
	store, err := BuildTenantStore(context.Background(), cfg, db, client, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.(*clinic.CachedStore); !ok {
		t.Fatalf("expected the database-backed store, got %T", store)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("tenant was not upserted: %v", err)
	}
	if mr.Exists("clinic:tenant:clinic_x") {
		t.Fatalf("expected cached tenant to be invalidated")
	}
}

func TestBuildTenantStoreSyncFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	mock.ExpectExec("INSERT INTO tenants").WillReturnError(errors.New("connection refused"))

	cfg := &appconfig.Config{TenantsJSON: `[{"id":"clinic_x","name":"Clínica X","slot_minutes":30,"opens_at":"09:00","closes_at":"12:00","active":true}]`}
	if _, err := BuildTenantStore(context.Background(), cfg, db, nil, nil); err == nil {
		t.Fatalf("expected sync error")
	}
}

func TestBuildAppointmentServiceInMemory(t *testing.T) {
	svc := BuildAppointmentService(&appconfig.Config{SlotLockEnabled: true}, nil, nil, logging.New("error"))
	if svc == nil {
		t.Fatalf("expected service")
	}
}
