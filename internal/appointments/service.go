package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/consultia/clinic-agent/pkg/logging"
)

var appointmentsTracer = otel.Tracer("clinicagent.internal.appointments")

// Service is the slot conflict engine.
type Service struct {
	repo           Repository
	locker         Locker
	logger         *logging.Logger
	now            func() time.Time
	contentionWait time.Duration
}

const defaultContentionWait = 150 * time.Millisecond

// Option customises a Service.
type Option func(*Service)

// WithLocker serialises reservations of the same slot across processes.
func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(repo Repository, logger *logging.Logger, opts ...Option) *Service {
	if repo == nil {
		panic("appointments: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{repo: repo, logger: logger, now: time.Now, contentionWait: defaultContentionWait}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reserve books the slot for a patient on behalf of the agent. A taken slot
// yields *SlotConflictError.
func (s *Service) Reserve(ctx context.Context, tenantID string, req Request) (*Appointment, error) {
	return s.book(ctx, tenantID, req, OriginAgent)
}

// BookManual books the slot on behalf of clinic staff; the same conflict rule applies.
func (s *Service) BookManual(ctx context.Context, tenantID string, req Request) (*Appointment, error) {
	return s.book(ctx, tenantID, req, OriginStaff)
}

func (s *Service) book(ctx context.Context, tenantID string, req Request, origin Origin) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.reserve")
	defer span.End()

	req.Slot = strings.TrimSpace(req.Slot)
	span.SetAttributes(
		attribute.String("clinicagent.tenant_id", tenantID),
		attribute.String("clinicagent.slot", req.Slot),
		attribute.String("clinicagent.origin", string(origin)),
	)
	if strings.TrimSpace(tenantID) == "" {
		return nil, errors.New("appointments: tenant id is required")
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	appt := &Appointment{
		ID:              uuid.New(),
		TenantID:        tenantID,
		PatientName:     strings.TrimSpace(req.PatientName),
		PatientPhone:    strings.TrimSpace(req.PatientPhone),
		Payer:           strings.TrimSpace(req.Payer),
		Date:            strings.TrimSpace(req.Date),
		Slot:            req.Slot,
		Status:          StatusPending,
		Origin:          origin,
		DNI:             strings.TrimSpace(req.DNI),
		AffiliateNumber: strings.TrimSpace(req.AffiliateNumber),
		Reason:          strings.TrimSpace(req.Reason),
		CreatedBy:       strings.TrimSpace(req.CreatedBy),
		CreatedAt:       s.now().UTC(),
	}

	insert := func(ctx context.Context) error { return s.repo.Insert(ctx, appt) }
	var err error
	if s.locker != nil {
		err = s.locker.WithSlotLock(ctx, tenantID, appt.Slot, insert)
		if errors.Is(err, ErrLockNotAcquired) {
			// The holder may still fail; the store decides who owns the slot.
			err = s.afterContention(ctx, insert)
		}
	} else {
		err = insert(ctx)
	}
	if err != nil {
		span.RecordError(err)
		if _, ok := IsSlotConflict(err); ok {
			s.logger.Info("slot already taken", "tenant_id", tenantID, "slot", appt.Slot, "origin", origin)
			return nil, err
		}
		return nil, fmt.Errorf("appointments: reserve %s: %w", appt.Slot, err)
	}

	s.logger.Info("appointment reserved",
		"tenant_id", tenantID,
		"appointment_id", appt.ID,
		"slot", appt.Slot,
		"date", appt.Date,
		"origin", origin,
	)
	return appt, nil
}

// Cancel releases an appointment's slot.
func (s *Service) Cancel(ctx context.Context, tenantID string, id uuid.UUID) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("clinicagent.tenant_id", tenantID))

	appt, err := s.repo.Cancel(ctx, tenantID, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logger.Info("appointment cancelled", "tenant_id", tenantID, "appointment_id", id, "slot", appt.Slot)
	return appt, nil
}

func (s *Service) afterContention(ctx context.Context, insert func(context.Context) error) error {
	timer := time.NewTimer(s.contentionWait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	return insert(ctx)
}

// List returns the tenant's appointments narrowed by filter.
func (s *Service) List(ctx context.Context, tenantID string, filter Filter) ([]Appointment, error) {
	return s.repo.List(ctx, tenantID, filter)
}

// FreeSlots returns the labels from all that no live appointment holds, in order.
func (s *Service) FreeSlots(ctx context.Context, tenantID string, all []string) ([]string, error) {
	taken, err := s.repo.TakenSlots(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	held := make(map[string]struct{}, len(taken))
	for _, slot := range taken {
		held[slot] = struct{}{}
	}
	free := make([]string, 0, len(all))
	for _, slot := range all {
		if _, ok := held[slot]; !ok {
			free = append(free, slot)
		}
	}
	return free, nil
}
