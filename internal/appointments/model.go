// Package appointments owns slot generation and the atomic check-and-reserve
// that keeps at most one live appointment per tenant slot.
package appointments

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status of an appointment. The only transition is pending -> cancelled.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCancelled Status = "cancelled"
)

// Origin records who created the appointment.
type Origin string

const (
	OriginAgent Origin = "agent"
	OriginStaff Origin = "staff"
)

// Appointment is a reserved slot for a patient.
type Appointment struct {
	ID              uuid.UUID `json:"id"`
	TenantID        string    `json:"tenant_id"`
	PatientName     string    `json:"patient_name"`
	PatientPhone    string    `json:"patient_phone"`
	Payer           string    `json:"payer"`
	Date            string    `json:"date"`
	Slot            string    `json:"slot"`
	Status          Status    `json:"status"`
	Origin          Origin    `json:"origin"`
	DNI             string    `json:"dni,omitempty"`
	AffiliateNumber string    `json:"affiliate_number,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	CreatedBy       string    `json:"created_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Active reports whether the appointment still holds its slot.
func (a Appointment) Active() bool {
	return a.Status != StatusCancelled
}

// Request carries the patient-supplied fields of a booking.
type Request struct {
	PatientName     string
	PatientPhone    string
	Payer           string
	Date            string
	Slot            string
	DNI             string
	AffiliateNumber string
	Reason          string
	CreatedBy       string
}

func (r Request) validate() error {
	if strings.TrimSpace(r.PatientName) == "" {
		return errors.New("appointments: patient name is required")
	}
	if strings.TrimSpace(r.Slot) == "" {
		return errors.New("appointments: slot is required")
	}
	return nil
}

// Filter narrows a listing. Date wins over the week range; an empty filter
// lists everything including cancelled appointments.
type Filter struct {
	Date      string
	WeekStart string
	WeekEnd   string
}

func (f Filter) hasWeek() bool {
	return f.WeekStart != "" && f.WeekEnd != ""
}

// ErrNotFound is returned when an appointment does not exist for the tenant.
var ErrNotFound = errors.New("appointments: not found")

// SlotConflictError reports that a live appointment already holds the slot.
type SlotConflictError struct {
	Slot string
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("appointments: slot %s already taken", e.Slot)
}

// IsSlotConflict reports whether err carries a SlotConflictError.
func IsSlotConflict(err error) (*SlotConflictError, bool) {
	var conflict *SlotConflictError
	if errors.As(err, &conflict) {
		return conflict, true
	}
	return nil, false
}
