package appointments

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Repository persists appointments. Insert must be atomic with respect to the
// per-tenant slot: it either stores the row or returns *SlotConflictError.
type Repository interface {
	Insert(ctx context.Context, appt *Appointment) error
	Cancel(ctx context.Context, tenantID string, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, tenantID string, filter Filter) ([]Appointment, error)
	TakenSlots(ctx context.Context, tenantID string) ([]string, error)
}

// MemoryRepository keeps appointments in process memory.
type MemoryRepository struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*Appointment
	order []uuid.UUID
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[uuid.UUID]*Appointment)}
}

// Insert implements Repository; check and insert happen under one lock.
func (r *MemoryRepository) Insert(_ context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.TenantID == appt.TenantID && existing.Slot == appt.Slot && existing.Active() {
			return &SlotConflictError{Slot: appt.Slot}
		}
	}
	stored := *appt
	r.byID[stored.ID] = &stored
	r.order = append(r.order, stored.ID)
	return nil
}

func (r *MemoryRepository) Cancel(_ context.Context, tenantID string, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	appt, ok := r.byID[id]
	if !ok || appt.TenantID != tenantID {
		return nil, ErrNotFound
	}
	appt.Status = StatusCancelled
	out := *appt
	return &out, nil
}

func (r *MemoryRepository) List(_ context.Context, tenantID string, filter Filter) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Appointment{}
	for _, id := range r.order {
		appt := r.byID[id]
		if appt.TenantID != tenantID {
			continue
		}
		switch {
		case filter.Date != "":
			if !appt.Active() || appt.Date != filter.Date {
				continue
			}
		case filter.hasWeek():
			if !appt.Active() || appt.Date < filter.WeekStart || appt.Date > filter.WeekEnd {
				continue
			}
		}
		out = append(out, *appt)
	}
	switch {
	case filter.Date != "" || filter.hasWeek():
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Date != out[j].Date {
				return out[i].Date < out[j].Date
			}
			return out[i].Slot < out[j].Slot
		})
	default:
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}
	return out, nil
}

func (r *MemoryRepository) TakenSlots(_ context.Context, tenantID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var slots []string
	for _, appt := range r.byID {
		if appt.TenantID == tenantID && appt.Active() {
			slots = append(slots, strings.TrimSpace(appt.Slot))
		}
	}
	sort.Strings(slots)
	return slots, nil
}
