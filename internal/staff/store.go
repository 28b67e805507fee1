package staff

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store persists dashboard users.
type Store interface {
	Create(ctx context.Context, u *User) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpsertAdmin(ctx context.Context, u *User) error
}

// Querier is the subset of pgx used by PgStore; *pgxpool.Pool satisfies it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgStore struct {
	db Querier
}

func NewPgStore(db Querier) *PgStore {
	if db == nil {
		panic("staff: querier required")
	}
	return &PgStore{db: db}
}

// Create inserts u and fills its id and creation time. A duplicate email
// yields ErrEmailTaken.
func (s *PgStore) Create(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (tenant_id, name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, active, created_at
	`
	err := s.db.QueryRow(ctx, query, u.TenantID, u.Name, u.Email, u.PasswordHash, string(u.Role)).
		Scan(&u.ID, &u.Active, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailTaken
		}
		return fmt.Errorf("staff: create user: %w", err)
	}
	return nil
}

// FindByEmail returns the active user with the given email.
func (s *PgStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, tenant_id, name, email, password_hash, role, active, created_at
		FROM users
		WHERE email = $1 AND active
	`
	var u User
	var role string
	err := s.db.QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(email))).
		Scan(&u.ID, &u.TenantID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.Active, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("staff: find user: %w", err)
	}
	u.Role = Role(role)
	return &u, nil
}

// UpsertAdmin creates an admin or resets the password and name of an existing email.
func (s *PgStore) UpsertAdmin(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (tenant_id, name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, 'admin')
		ON CONFLICT (email) DO UPDATE SET password_hash = EXCLUDED.password_hash, name = EXCLUDED.name
		RETURNING id, role, active, created_at
	`
	var role string
	err := s.db.QueryRow(ctx, query, u.TenantID, u.Name, u.Email, u.PasswordHash).
		Scan(&u.ID, &role, &u.Active, &u.CreatedAt)
	if err != nil {
		return fmt.Errorf("staff: upsert admin: %w", err)
	}
	u.Role = Role(role)
	return nil
}
