// Package clinic resolves channel addresses to the tenant (clinic) that owns them.
package clinic

import (
	"errors"
	"fmt"
	"strings"

	"github.com/consultia/clinic-agent/internal/appointments"
)

// Hours holds the free-text opening hours per weekday group.
type Hours struct {
	Weekdays  string `json:"weekdays"`
	Saturdays string `json:"saturdays"`
	Sundays   string `json:"sundays"`
}

// Tenant is a clinic served by the agent.
type Tenant struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Specialty      string   `json:"specialty"`
	Address        string   `json:"address"`
	Phone          string   `json:"phone"`
	Hours          Hours    `json:"hours"`
	SlotMinutes    int      `json:"slot_minutes"`
	OpensAt        string   `json:"opens_at"`
	ClosesAt       string   `json:"closes_at"`
	Payers         []string `json:"payers"`
	Price          string   `json:"price"`
	PaymentMethods []string `json:"payment_methods"`
	Active         bool     `json:"active"`
}

// Validate checks the scheduling fields slot generation depends on.
func (t *Tenant) Validate() error {
	if t == nil {
		return errors.New("clinic: tenant is nil")
	}
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("clinic: tenant id is required")
	}
	if t.SlotMinutes <= 0 {
		return fmt.Errorf("clinic: tenant %s: slot duration must be positive", t.ID)
	}
	open, err := appointments.ParseClock(t.OpensAt)
	if err != nil {
		return fmt.Errorf("clinic: tenant %s: %w", t.ID, err)
	}
	shut, err := appointments.ParseClock(t.ClosesAt)
	if err != nil {
		return fmt.Errorf("clinic: tenant %s: %w", t.ID, err)
	}
	if open >= shut {
		return fmt.Errorf("clinic: tenant %s: opening %s must be before closing %s", t.ID, t.OpensAt, t.ClosesAt)
	}
	return nil
}

// Slots returns the tenant's bookable slot labels.
func (t *Tenant) Slots() ([]string, error) {
	return appointments.GenerateSlots(t.OpensAt, t.ClosesAt, t.SlotMinutes)
}

// DemoTenant is the sample clinic used by the web widget in development.
func DemoTenant() Tenant {
	return Tenant{
		ID:        "demo",
		Name:      "Consultorio Dra. Martínez",
		Specialty: "clínica médica",
		Address:   "Av. Corrientes 1234, CABA",
		Phone:     "11 4567-8900",
		Hours: Hours{
			Weekdays:  "9:00 a 18:00",
			Saturdays: "9:00 a 13:00",
			Sundays:   "cerrado",
		},
		SlotMinutes:    30,
		OpensAt:        "09:00",
		ClosesAt:       "18:00",
		Payers:         []string{"OSDE", "Swiss Medical", "Galeno", "PAMI"},
		Price:          "$25.000",
		PaymentMethods: []string{"efectivo", "transferencia", "tarjeta de débito"},
		Active:         true,
	}
}
