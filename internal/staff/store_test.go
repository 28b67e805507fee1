package staff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *PgStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPgStore(mock)
}

func TestPgStoreCreate(t *testing.T) {
	mock, store := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("demo", "Marta", "marta@consultorio.com", "hash", "secretaria").
		WillReturnRows(pgxmock.NewRows([]string{"id", "active", "created_at"}).AddRow(int64(3), true, now))

	u := &User{TenantID: "demo", Name: "Marta", Email: "marta@consultorio.com", PasswordHash: "hash", Role: RoleSecretary}
	require.NoError(t, store.Create(context.Background(), u))
	assert.Equal(t, int64(3), u.ID)
	assert.True(t, u.Active)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreCreateDuplicateEmail(t *testing.T) {
	mock, store := newMockStore(t)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("demo", "Marta", "marta@consultorio.com", "hash", "secretaria").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := store.Create(context.Background(), &User{TenantID: "demo", Name: "Marta", Email: "marta@consultorio.com", PasswordHash: "hash", Role: RoleSecretary})
	assert.True(t, errors.Is(err, ErrEmailTaken))
}

func TestPgStoreFindByEmail(t *testing.T) {
	mock, store := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, tenant_id").
		WithArgs("admin@consultorio.com").
		WillReturnRows(pgxmock.NewRows([]string{"id", "tenant_id", "name", "email", "password_hash", "role", "active", "created_at"}).
			AddRow(int64(1), "demo", "Admin", "admin@consultorio.com", "hash", "admin", true, now))

	u, err := store.FindByEmail(context.Background(), " Admin@Consultorio.com ")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, u.Role)
	assert.Equal(t, "demo", u.TenantID)

	mock.ExpectQuery("SELECT id, tenant_id").WithArgs("nadie@consultorio.com").WillReturnError(pgx.ErrNoRows)
	_, err = store.FindByEmail(context.Background(), "nadie@consultorio.com")
	assert.True(t, errors.Is(err, ErrUserNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreUpsertAdmin(t *testing.T) {
	mock, store := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("ON CONFLICT \\(email\\)").
		WithArgs("demo", "Admin", "admin@consultorio.com", "hash").
		WillReturnRows(pgxmock.NewRows([]string{"id", "role", "active", "created_at"}).AddRow(int64(1), "admin", true, now))

	u := &User{TenantID: "demo", Name: "Admin", Email: "admin@consultorio.com", PasswordHash: "hash"}
	require.NoError(t, store.UpsertAdmin(context.Background(), u))
	assert.Equal(t, RoleAdmin, u.Role)
	require.NoError(t, mock.ExpectationsWereMet())
}
