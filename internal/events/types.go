package events

import (
	"time"

	"github.com/consultia/clinic-agent/internal/appointments"
)

const (
	TypeAppointmentBooked    = "appointment.booked.v1"
	TypeAppointmentCancelled = "appointment.cancelled.v1"
)

// AppointmentV1 is the appointment snapshot carried by appointment events.
type AppointmentV1 struct {
	AppointmentID   string    `json:"appointment_id"`
	TenantID        string    `json:"tenant_id"`
	PatientName     string    `json:"patient_name"`
	PatientPhone    string    `json:"patient_phone,omitempty"`
	Payer           string    `json:"payer,omitempty"`
	Date            string    `json:"date,omitempty"`
	Slot            string    `json:"slot"`
	Status          string    `json:"status"`
	Origin          string    `json:"origin"`
	DNI             string    `json:"dni,omitempty"`
	AffiliateNumber string    `json:"affiliate_number,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type AppointmentBookedV1 struct {
	AppointmentV1
}

func (AppointmentBookedV1) EventType() string { return TypeAppointmentBooked }

type AppointmentCancelledV1 struct {
	AppointmentV1
	CancelledAt time.Time `json:"cancelled_at"`
}

func (AppointmentCancelledV1) EventType() string { return TypeAppointmentCancelled }

func snapshot(appt *appointments.Appointment) AppointmentV1 {
	return AppointmentV1{
		AppointmentID:   appt.ID.String(),
		TenantID:        appt.TenantID,
		PatientName:     appt.PatientName,
		PatientPhone:    appt.PatientPhone,
		Payer:           appt.Payer,
		Date:            appt.Date,
		Slot:            appt.Slot,
		Status:          string(appt.Status),
		Origin:          string(appt.Origin),
		DNI:             appt.DNI,
		AffiliateNumber: appt.AffiliateNumber,
		Reason:          appt.Reason,
		CreatedAt:       appt.CreatedAt,
	}
}
