package clinic

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const tenantColumns = `id, name, specialty, address, phone, hours_weekdays, hours_saturdays, hours_sundays,
		       slot_minutes, opens_at, closes_at, payers, price, payment_methods, active`

// SQLStore reads tenants from the relational store.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	if db == nil {
		panic("clinic: sql db required")
	}
	return &SQLStore{db: db}
}

// Get returns the active tenant with the given id.
func (s *SQLStore) Get(ctx context.Context, id string) (*Tenant, error) {
	var t Tenant
	err := s.db.QueryRowContext(ctx, `
		SELECT `+tenantColumns+`
		FROM tenants WHERE id = $1 AND active`, id).Scan(
		&t.ID, &t.Name, &t.Specialty, &t.Address, &t.Phone,
		&t.Hours.Weekdays, &t.Hours.Saturdays, &t.Hours.Sundays,
		&t.SlotMinutes, &t.OpensAt, &t.ClosesAt,
		pq.Array(&t.Payers), &t.Price, pq.Array(&t.PaymentMethods), &t.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("clinic: get tenant: %w", err)
	}
	if t.Payers == nil {
		t.Payers = []string{}
	}
	if t.PaymentMethods == nil {
		t.PaymentMethods = []string{}
	}
	return &t, nil
}

// Upsert creates or replaces a tenant record.
func (s *SQLStore) Upsert(ctx context.Context, t *Tenant) error {
	if err := t.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (`+tenantColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id) DO UPDATE SET
		    name=EXCLUDED.name, specialty=EXCLUDED.specialty, address=EXCLUDED.address, phone=EXCLUDED.phone,
		    hours_weekdays=EXCLUDED.hours_weekdays, hours_saturdays=EXCLUDED.hours_saturdays,
		    hours_sundays=EXCLUDED.hours_sundays, slot_minutes=EXCLUDED.slot_minutes,
		    opens_at=EXCLUDED.opens_at, closes_at=EXCLUDED.closes_at, payers=EXCLUDED.payers,
		    price=EXCLUDED.price, payment_methods=EXCLUDED.payment_methods, active=EXCLUDED.active,
		    updated_at=now()`,
		t.ID, t.Name, t.Specialty, t.Address, t.Phone,
		t.Hours.Weekdays, t.Hours.Saturdays, t.Hours.Sundays,
		t.SlotMinutes, t.OpensAt, t.ClosesAt,
		pq.Array(t.Payers), t.Price, pq.Array(t.PaymentMethods), t.Active)
	if err != nil {
		return fmt.Errorf("clinic: upsert tenant: %w", err)
	}
	return nil
}
