package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/consultia/clinic-agent/internal/appointments"
	"github.com/consultia/clinic-agent/internal/clinic"
	"github.com/consultia/clinic-agent/internal/observability/metrics"
	"github.com/consultia/clinic-agent/pkg/logging"
)

const (
	ChannelWeb      = "web"
	ChannelWhatsApp = "whatsapp"
)

// InboundMessage is one patient message on a channel session.
type InboundMessage struct {
	SessionKey string
	Text       string
	Channel    string
}

// Completer produces a raw assistant reply for a turn log.
type Completer interface {
	Complete(ctx context.Context, turns []Turn, tenant *clinic.Tenant) (string, error)
}

// Reserver is the slot engine as seen by the dialogue loop.
type Reserver interface {
	Reserve(ctx context.Context, tenantID string, req appointments.Request) (*appointments.Appointment, error)
	FreeSlots(ctx context.Context, tenantID string, all []string) ([]string, error)
}

// BookingRecorder hands a booked appointment to downstream export.
type BookingRecorder interface {
	RecordBooked(ctx context.Context, appt *appointments.Appointment) error
}

// Orchestrator runs one dialogue cycle per inbound message.
type Orchestrator struct {
	sessions  SessionStore
	completer Completer
	reserver  Reserver
	recorder  BookingRecorder
	metrics   *metrics.ConversationMetrics
	logger    *logging.Logger
	now       func() time.Time
	locks     *sessionLocks
}

type OrchestratorOption func(*Orchestrator)

func WithBookingRecorder(r BookingRecorder) OrchestratorOption {
	return func(o *Orchestrator) { o.recorder = r }
}

func WithOrchestratorMetrics(m *metrics.ConversationMetrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithOrchestratorClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func NewOrchestrator(sessions SessionStore, completer Completer, reserver Reserver, logger *logging.Logger, opts ...OrchestratorOption) *Orchestrator {
	if sessions == nil {
		panic("conversation: session store required")
	}
	if completer == nil {
		panic("conversation: completer required")
	}
	if reserver == nil {
		panic("conversation: reserver required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	o := &Orchestrator{
		sessions:  sessions,
		completer: completer,
		reserver:  reserver,
		logger:    logger,
		now:       time.Now,
		locks:     newSessionLocks(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HandleMessage appends the patient message, completes, books any proposed
// slot and returns the patient-visible reply. Only unclassified completion or
// session failures are returned as errors.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg InboundMessage, tenant *clinic.Tenant) (string, error) {
	ctx, span := conversationTracer.Start(ctx, "conversation.handle_message")
	defer span.End()

	if tenant == nil {
		return "", errors.New("conversation: tenant required")
	}
	text := strings.TrimSpace(msg.Text)
	if strings.TrimSpace(msg.SessionKey) == "" || text == "" {
		return "", errors.New("conversation: session key and text are required")
	}
	channel := msg.Channel
	if channel == "" {
		channel = ChannelWeb
	}
	span.SetAttributes(
		attribute.String("clinicagent.tenant_id", tenant.ID),
		attribute.String("clinicagent.channel", channel),
	)

	key := sessionKey(tenant.ID, msg.SessionKey)
	unlock := o.locks.lock(key)
	defer unlock()

	log := o.logger.With("tenant_id", tenant.ID, "session_key", msg.SessionKey, "channel", channel)

	if err := o.appendTurn(ctx, key, RolePatient, text); err != nil {
		o.metrics.ObserveMessage(channel, "error")
		return "", err
	}

	raw, err := o.complete(ctx, key, tenant)
	if err != nil {
		if isDegraded(err) {
			o.metrics.ObserveMessage(channel, "fallback")
			return o.fallback(ctx, key, tenant, log, err)
		}
		span.RecordError(err)
		o.metrics.ObserveMessage(channel, "error")
		return "", err
	}

	extraction := Extract(raw)
	if extraction.Err != nil {
		o.metrics.ObserveReservation("parse_error")
		log.Warn("discarding malformed proposal", "error", extraction.Err)
	}
	if extraction.Proposal == nil {
		o.metrics.ObserveMessage(channel, "replied")
		return o.respond(ctx, key, extraction.Visible)
	}

	proposal := extraction.Proposal
	appt, err := o.reserver.Reserve(ctx, tenant.ID, appointments.Request{
		PatientName:     proposal.Name,
		PatientPhone:    patientPhone(proposal, msg, channel),
		Payer:           proposal.Payer,
		Date:            proposal.Date,
		Slot:            proposal.Slot,
		DNI:             proposal.DNI,
		AffiliateNumber: proposal.AffiliateNumber,
		Reason:          proposal.Reason,
	})
	if err == nil {
		o.metrics.ObserveReservation("reserved")
		o.metrics.ObserveMessage(channel, "replied")
		o.record(ctx, appt, log)
		visible := extraction.Visible
		if visible == "" {
			visible = fmt.Sprintf("Listo, tu turno de las %s quedó registrado.", appt.Slot)
		}
		return o.respond(ctx, key, visible)
	}

	if conflict, ok := appointments.IsSlotConflict(err); ok {
		o.metrics.ObserveReservation("conflict")
		reply, err := o.correct(ctx, key, tenant, extraction.Visible, conflict.Slot, log)
		if err != nil {
			span.RecordError(err)
			o.metrics.ObserveMessage(channel, "error")
			return "", err
		}
		o.metrics.ObserveMessage(channel, "replied")
		return reply, nil
	}

	o.metrics.ObserveReservation("failed")
	log.Error("reservation failed", "slot", proposal.Slot, "error", err)
	o.metrics.ObserveMessage(channel, "replied")
	return o.respond(ctx, key, extraction.Visible)
}

// correct re-prompts once after a slot conflict. A proposal in the second
// reply is not reserved.
func (o *Orchestrator) correct(ctx context.Context, key string, tenant *clinic.Tenant, visible, slot string, log *logging.Logger) (string, error) {
	if visible == "" {
		visible = fmt.Sprintf("Voy a registrar tu turno de las %s.", slot)
	}
	if err := o.appendTurn(ctx, key, RoleAssistant, visible); err != nil {
		return "", err
	}

	var free []string
	if all, err := tenant.Slots(); err == nil {
		free, err = o.reserver.FreeSlots(ctx, tenant.ID, all)
		if err != nil {
			log.Warn("listing free slots failed", "error", err)
		}
	}
	if err := o.appendTurn(ctx, key, RolePatient, conflictNote(slot, free)); err != nil {
		return "", err
	}

	raw, err := o.complete(ctx, key, tenant)
	if err != nil {
		if isDegraded(err) {
			return o.fallback(ctx, key, tenant, log, err)
		}
		return "", err
	}

	retry := Extract(raw)
	if retry.Proposal != nil {
		o.metrics.ObserveReservation("unreserved_retry")
		log.Warn("second proposal after conflict left unreserved", "conflict_slot", slot, "proposed_slot", retry.Proposal.Slot)
	}
	reply := retry.Visible
	if reply == "" {
		reply = conflictNote(slot, free)
	}
	return o.respond(ctx, key, reply)
}

func (o *Orchestrator) complete(ctx context.Context, key string, tenant *clinic.Tenant) (string, error) {
	turns, err := o.sessions.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("conversation: load session: %w", err)
	}
	return o.completer.Complete(ctx, turns, tenant)
}

func (o *Orchestrator) fallback(ctx context.Context, key string, tenant *clinic.Tenant, log *logging.Logger, cause error) (string, error) {
	log.Warn("answering with fallback", "error", cause)
	return o.respond(ctx, key, FallbackMessage(tenant))
}

func (o *Orchestrator) respond(ctx context.Context, key, text string) (string, error) {
	if err := o.appendTurn(ctx, key, RoleAssistant, text); err != nil {
		return "", err
	}
	return text, nil
}

func (o *Orchestrator) appendTurn(ctx context.Context, key string, role Role, text string) error {
	if err := o.sessions.Append(ctx, key, Turn{Role: role, Text: text, At: o.now().UTC()}); err != nil {
		return fmt.Errorf("conversation: append %s turn: %w", role, err)
	}
	return nil
}

func (o *Orchestrator) record(ctx context.Context, appt *appointments.Appointment, log *logging.Logger) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordBooked(ctx, appt); err != nil {
		log.Error("recording booked appointment failed", "appointment_id", appt.ID, "error", err)
	}
}

// FallbackMessage is sent when the completion backend is saturated or slow.
func FallbackMessage(tenant *clinic.Tenant) string {
	if tenant == nil || strings.TrimSpace(tenant.Phone) == "" {
		return "Estamos con mucha demanda en este momento. Por favor intentá de nuevo en unos minutos."
	}
	return fmt.Sprintf("Estamos con mucha demanda en este momento. Por favor comunicate al %s o intentá de nuevo en unos minutos.", tenant.Phone)
}

func conflictNote(slot string, free []string) string {
	note := fmt.Sprintf("El horario de las %s ya está ocupado.", slot)
	if len(free) == 0 {
		return note + " Ofrecele al paciente comunicarse con el consultorio para buscar otro turno."
	}
	return fmt.Sprintf("%s Ofrecele al paciente otro horario disponible: %s.", note, strings.Join(free, ", "))
}

func isDegraded(err error) bool {
	return errors.Is(err, ErrQuotaExhausted) || errors.Is(err, ErrCompletionTimeout)
}

// patientPhone prefers the phone the patient gave; on WhatsApp the session
// key is the sender address.
func patientPhone(p *Proposal, msg InboundMessage, channel string) string {
	if strings.TrimSpace(p.Phone) != "" {
		return p.Phone
	}
	if channel == ChannelWhatsApp {
		return strings.TrimPrefix(strings.TrimSpace(msg.SessionKey), "whatsapp:")
	}
	return ""
}

// sessionKey scopes a channel session to its tenant so one patient writing
// to two clinics keeps two logs.
func sessionKey(tenantID, channelKey string) string {
	return tenantID + ":" + strings.TrimSpace(channelKey)
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

func (s *sessionLocks) lock(key string) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sessionLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}
