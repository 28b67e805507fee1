package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var appointmentRowColumns = []string{
	"id", "tenant_id", "patient_name", "patient_phone", "payer", "appt_date", "slot",
	"status", "origin", "dni", "affiliate_number", "reason", "created_by", "created_at",
}

func newMockRepo(t *testing.T) (*PgRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPgRepository(mock), mock
}

func sampleAppointment() *Appointment {
	return &Appointment{
		ID:          uuid.New(),
		TenantID:    "demo",
		PatientName: "Ana",
		Payer:       "OSDE",
		Slot:        "10:00",
		Status:      StatusPending,
		Origin:      OriginAgent,
	}
}

func TestPgRepositoryInsert(t *testing.T) {
	repo, mock := newMockRepo(t)
	appt := sampleAppointment()
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(appt.ID, "demo", "Ana", "", "OSDE", "", "10:00", "pending", "agent", "", "", "", "").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))

	require.NoError(t, repo.Insert(context.Background(), appt))
	assert.Equal(t, now, appt.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryInsertConflictNoRows(t *testing.T) {
	repo, mock := newMockRepo(t)
	appt := sampleAppointment()

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}))

	err := repo.Insert(context.Background(), appt)
	conflict, ok := IsSlotConflict(err)
	require.True(t, ok, "expected conflict, got %v", err)
	assert.Equal(t, "10:00", conflict.Slot)
}

func TestPgRepositoryInsertUniqueViolation(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "appointments_live_slot_idx"})

	_, ok := IsSlotConflict(repo.Insert(context.Background(), sampleAppointment()))
	assert.True(t, ok)
}

func TestPgRepositoryInsertOtherError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("INSERT INTO appointments").WillReturnError(errors.New("conn closed"))

	err := repo.Insert(context.Background(), sampleAppointment())
	require.Error(t, err)
	_, ok := IsSlotConflict(err)
	assert.False(t, ok)
}

func TestPgRepositoryCancel(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()
	now := time.Now().UTC()

	rows := pgxmock.NewRows(appointmentRowColumns).
		AddRow(id, "demo", "Ana", "", "OSDE", "2026-10-20", "10:00", "cancelled", "agent", "", "", "", "", now)
	mock.ExpectQuery("UPDATE appointments SET status = 'cancelled'").WithArgs(id, "demo").WillReturnRows(rows)

	appt, err := repo.Cancel(context.Background(), "demo", id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, appt.Status)
	assert.Equal(t, OriginAgent, appt.Origin)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryCancelNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()
	mock.ExpectQuery("UPDATE appointments").WithArgs(id, "demo").WillReturnRows(pgxmock.NewRows(appointmentRowColumns))

	_, err := repo.Cancel(context.Background(), "demo", id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPgRepositoryListByDate(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	rows := pgxmock.NewRows(appointmentRowColumns).
		AddRow(uuid.New(), "demo", "Ana", "", "OSDE", "2026-10-20", "09:00", "pending", "staff", "30111222", "", "", "Recepción", now)
	mock.ExpectQuery("appt_date = \\$2").WithArgs("demo", "2026-10-20").WillReturnRows(rows)

	list, err := repo.List(context.Background(), "demo", Filter{Date: "2026-10-20"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, OriginStaff, list[0].Origin)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryListByWeekAndAll(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("appt_date >= \\$2").WithArgs("demo", "2026-10-19", "2026-10-25").
		WillReturnRows(pgxmock.NewRows(appointmentRowColumns))
	mock.ExpectQuery("ORDER BY created_at DESC").WithArgs("demo").
		WillReturnRows(pgxmock.NewRows(appointmentRowColumns))

	week, err := repo.List(context.Background(), "demo", Filter{WeekStart: "2026-10-19", WeekEnd: "2026-10-25"})
	require.NoError(t, err)
	assert.Empty(t, week)

	all, err := repo.List(context.Background(), "demo", Filter{})
	require.NoError(t, err)
	assert.NotNil(t, all)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryTakenSlots(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT slot FROM appointments").WithArgs("demo").
		WillReturnRows(pgxmock.NewRows([]string{"slot"}).AddRow("09:00").AddRow("10:30"))

	slots, err := repo.TakenSlots(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "10:30"}, slots)
}
