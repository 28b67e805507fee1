package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/consultia/clinic-agent/internal/clinic"
	appconfig "github.com/consultia/clinic-agent/internal/config"
	"github.com/consultia/clinic-agent/internal/staff"
	"github.com/consultia/clinic-agent/pkg/logging"
	appmigrations "github.com/consultia/clinic-agent/migrations"
)

func main() {
	if err := appconfig.LoadDotEnv(); err != nil {
		log.Printf("load .env: %v", err)
	}
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	if len(os.Args) >= 2 && os.Args[1] == "seed-demo" {
		if err := seedDemo(context.Background(), db, databaseURL, os.Getenv); err != nil {
			log.Fatalf("seed demo: %v", err)
		}
		fmt.Println("demo data seeded")
		return
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatalf("db driver: %v", err)
	}

	srcDriver, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		log.Fatalf("source driver: %v", err)
	}

	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		log.Fatalf("create migrator: %v", err)
	}
	defer func() { _, _ = m.Close() }()

	// Check for force command: /bin/migrate force <version>
	if len(os.Args) >= 3 && os.Args[1] == "force" {
		version, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatalf("invalid version: %v", err)
		}
		if err := m.Force(version); err != nil {
			log.Fatalf("force version: %v", err)
		}
		fmt.Printf("forced version to %d\n", version)
		return
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("migrate up: %v", err)
	}

	fmt.Println("migrations complete")
}

// adminSeed is the first dashboard account, read from ADMIN_* env vars.
type adminSeed struct {
	Email    string
	Password string
	Name     string
	TenantID string
}

func adminFromEnv(getenv func(string) string) (adminSeed, error) {
	seed := adminSeed{
		Email:    strings.TrimSpace(getenv("ADMIN_EMAIL")),
		Password: getenv("ADMIN_PASS"),
		Name:     strings.TrimSpace(getenv("ADMIN_NOMBRE")),
		TenantID: strings.TrimSpace(getenv("CLIENTE_ID")),
	}
	if seed.Email == "" || seed.Password == "" {
		return adminSeed{}, errors.New("ADMIN_EMAIL and ADMIN_PASS are required")
	}
	if seed.Name == "" {
		seed.Name = "Administrador"
	}
	if seed.TenantID == "" {
		seed.TenantID = clinic.DemoTenant().ID
	}
	return seed, nil
}

// seedDemo upserts the demo clinic and its admin account.
func seedDemo(ctx context.Context, db *sql.DB, databaseURL string, getenv func(string) string) error {
	seed, err := adminFromEnv(getenv)
	if err != nil {
		return err
	}

	tenant := clinic.DemoTenant()
	tenant.ID = seed.TenantID
	sqlStore := clinic.NewSQLStore(db)
	if err := sqlStore.Upsert(ctx, &tenant); err != nil {
		return err
	}
	logger := logging.New("info")
	if err := invalidateTenantCache(ctx, sqlStore, getenv, tenant.ID, logger); err != nil {
		logger.Warn("tenant cache not invalidated; it expires on its own", "tenant_id", tenant.ID, "error", err)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("open pool: %w", err)
	}
	defer pool.Close()

	users := staff.NewService(staff.NewPgStore(pool), getenv("ADMIN_JWT_SECRET"), logger)
	admin, err := users.EnsureAdmin(ctx, staff.NewUser{
		TenantID: seed.TenantID,
		Name:     seed.Name,
		Email:    seed.Email,
		Password: seed.Password,
	})
	if err != nil {
		return err
	}
	logger.Info("admin account ready", "tenant_id", admin.TenantID, "email", admin.Email)
	return nil
}

// invalidateTenantCache drops the API's cached copy of a re-seeded tenant when
// REDIS_ADDR points at the shared cache.
func invalidateTenantCache(ctx context.Context, backing clinic.Store, getenv func(string) string, tenantID string, logger *logging.Logger) error {
	addr := strings.TrimSpace(getenv("REDIS_ADDR"))
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: getenv("REDIS_PASSWORD")})
	defer func() { _ = client.Close() }()
	return clinic.NewCachedStore(backing, client, 0, logger).Invalidate(ctx, tenantID)
}
