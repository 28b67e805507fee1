package appointments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const appointmentColumns = `id, tenant_id, patient_name, patient_phone, payer, appt_date, slot,
		       status, origin, dni, affiliate_number, reason, created_by, created_at`

// Querier is the subset of pgxpool.Pool the repository needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgRepository stores appointments in Postgres. The partial unique index on
// (tenant_id, slot) WHERE status <> 'cancelled' makes Insert atomic.
type PgRepository struct {
	db Querier
}

func NewPgRepository(db Querier) *PgRepository {
	if db == nil {
		panic("appointments: pgx pool required")
	}
	return &PgRepository{db: db}
}

// Insert implements Repository with a single conditional INSERT.
func (r *PgRepository) Insert(ctx context.Context, appt *Appointment) error {
	query := `
		INSERT INTO appointments (id, tenant_id, patient_name, patient_phone, payer, appt_date, slot,
		                          status, origin, dni, affiliate_number, reason, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (tenant_id, slot) WHERE status <> 'cancelled' DO NOTHING
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		appt.ID, appt.TenantID, appt.PatientName, appt.PatientPhone, appt.Payer, appt.Date, appt.Slot,
		string(appt.Status), string(appt.Origin), appt.DNI, appt.AffiliateNumber, appt.Reason, appt.CreatedBy,
	).Scan(&appt.CreatedAt)
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
		return &SlotConflictError{Slot: appt.Slot}
	}
	return fmt.Errorf("appointments: insert: %w", err)
}

func (r *PgRepository) Cancel(ctx context.Context, tenantID string, id uuid.UUID) (*Appointment, error) {
	query := `
		UPDATE appointments SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING ` + appointmentColumns
	rows, err := r.db.Query(ctx, query, id, tenantID)
	if err != nil {
		return nil, fmt.Errorf("appointments: cancel: %w", err)
	}
	out, err := scanAppointments(rows)
	if err != nil {
		return nil, fmt.Errorf("appointments: cancel: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return &out[0], nil
}

func (r *PgRepository) List(ctx context.Context, tenantID string, filter Filter) ([]Appointment, error) {
	var (
		rows pgx.Rows
		err  error
	)
	switch {
	case filter.Date != "":
		rows, err = r.db.Query(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE tenant_id = $1 AND appt_date = $2 AND status <> 'cancelled'
			ORDER BY slot ASC`, tenantID, filter.Date)
	case filter.hasWeek():
		rows, err = r.db.Query(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE tenant_id = $1 AND appt_date >= $2 AND appt_date <= $3 AND status <> 'cancelled'
			ORDER BY appt_date ASC, slot ASC`, tenantID, filter.WeekStart, filter.WeekEnd)
	default:
		rows, err = r.db.Query(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE tenant_id = $1
			ORDER BY created_at DESC`, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	out, err := scanAppointments(rows)
	if err != nil {
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	return out, nil
}

func (r *PgRepository) TakenSlots(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT slot FROM appointments
		WHERE tenant_id = $1 AND status <> 'cancelled'
		ORDER BY slot`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("appointments: taken slots: %w", err)
	}
	defer rows.Close()

	var slots []string
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			return nil, fmt.Errorf("appointments: scan slot: %w", err)
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()
	out := []Appointment{}
	for rows.Next() {
		var (
			appt           Appointment
			status, origin string
		)
		if err := rows.Scan(&appt.ID, &appt.TenantID, &appt.PatientName, &appt.PatientPhone, &appt.Payer,
			&appt.Date, &appt.Slot, &status, &origin, &appt.DNI, &appt.AffiliateNumber, &appt.Reason,
			&appt.CreatedBy, &appt.CreatedAt); err != nil {
			return nil, err
		}
		appt.Status = Status(status)
		appt.Origin = Origin(origin)
		out = append(out, appt)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
