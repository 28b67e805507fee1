package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/consultia/clinic-agent/internal/clinic"
	"github.com/consultia/clinic-agent/internal/conversation"
	"github.com/consultia/clinic-agent/internal/observability/metrics"
	"github.com/consultia/clinic-agent/pkg/logging"
)

var twilioTracer = otel.Tracer("clinicagent.internal.messaging.twilio")

const (
	NotConfiguredMessage = "Lo siento, este número no está configurado."
	GenericErrorMessage  = "Lo siento, hubo un error. Intentá de nuevo."
)

// TenantResolver maps the clinic's WhatsApp address to its tenant.
type TenantResolver interface {
	Resolve(ctx context.Context, addr string) (*clinic.Tenant, bool, error)
}

// MessageHandler runs one dialogue cycle.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg conversation.InboundMessage, tenant *clinic.Tenant) (string, error)
}

// Deduper claims provider message ids; false means the id was seen before.
type Deduper interface {
	Claim(ctx context.Context, provider, messageID string) (bool, error)
}

// WhatsAppHandler answers Twilio WhatsApp webhooks synchronously with TwiML.
type WhatsAppHandler struct {
	authToken     string
	publicBaseURL string
	resolver      TenantResolver
	dialogue      MessageHandler
	dedupe        Deduper
	metrics       *metrics.ConversationMetrics
	logger        *logging.Logger
}

type WhatsAppOption func(*WhatsAppHandler)

// WithSignatureValidation requires a valid X-Twilio-Signature. publicBaseURL
// overrides the scheme and host Twilio signed when behind a proxy.
func WithSignatureValidation(authToken, publicBaseURL string) WhatsAppOption {
	return func(h *WhatsAppHandler) {
		h.authToken = authToken
		h.publicBaseURL = strings.TrimRight(publicBaseURL, "/")
	}
}

func WithDeduper(d Deduper) WhatsAppOption {
	return func(h *WhatsAppHandler) { h.dedupe = d }
}

func WithMetrics(m *metrics.ConversationMetrics) WhatsAppOption {
	return func(h *WhatsAppHandler) { h.metrics = m }
}

func NewWhatsAppHandler(resolver TenantResolver, dialogue MessageHandler, logger *logging.Logger, opts ...WhatsAppOption) *WhatsAppHandler {
	if resolver == nil {
		panic("messaging: tenant resolver cannot be nil")
	}
	if dialogue == nil {
		panic("messaging: message handler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	h := &WhatsAppHandler{resolver: resolver, dialogue: dialogue, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP handles POST /whatsapp.
func (h *WhatsAppHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := twilioTracer.Start(r.Context(), "messaging.whatsapp.webhook")
	defer span.End()

	if h.authToken != "" && !ValidateTwilioSignature(r, h.authToken, h.webhookURL(r)) {
		h.logger.Warn("invalid twilio signature", "path", r.URL.Path)
		span.RecordError(errors.New("invalid twilio signature"))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	webhook, err := ParseTwilioWebhook(r)
	if err != nil {
		h.logger.Error("failed to parse twilio webhook", "error", err)
		span.RecordError(err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	span.SetAttributes(
		attribute.String("clinicagent.twilio.message_sid", webhook.MessageSid),
		attribute.String("clinicagent.twilio.to", webhook.To),
	)
	log := h.logger.With("message_sid", webhook.MessageSid, "to", webhook.To)

	if webhook.From == "" || webhook.To == "" || webhook.Body == "" {
		log.Warn("ignoring incomplete twilio webhook")
		writeTwiML(w, "")
		return
	}

	if h.dedupe != nil {
		first, err := h.dedupe.Claim(ctx, "twilio", webhook.MessageSid)
		if err != nil {
			log.Error("message dedupe failed", "error", err)
		} else if !first {
			log.Info("duplicate twilio delivery ignored")
			h.metrics.ObserveMessage(conversation.ChannelWhatsApp, "duplicate")
			writeTwiML(w, "")
			return
		}
	}

	tenant, found, err := h.resolver.Resolve(ctx, webhook.To)
	if err != nil {
		log.Error("tenant lookup failed", "error", err)
		span.RecordError(err)
		writeTwiML(w, GenericErrorMessage)
		return
	}
	if !found {
		log.Warn("no tenant configured for address")
		h.metrics.ObserveMessage(conversation.ChannelWhatsApp, "unknown_tenant")
		writeTwiML(w, NotConfiguredMessage)
		return
	}
	span.SetAttributes(attribute.String("clinicagent.tenant_id", tenant.ID))

	reply, err := h.dialogue.HandleMessage(ctx, conversation.InboundMessage{
		SessionKey: webhook.From,
		Text:       webhook.Body,
		Channel:    conversation.ChannelWhatsApp,
	}, tenant)
	if err != nil {
		log.Error("whatsapp dialogue failed", "tenant_id", tenant.ID, "error", err)
		span.RecordError(err)
		writeTwiML(w, GenericErrorMessage)
		return
	}
	writeTwiML(w, reply)
}

func (h *WhatsAppHandler) webhookURL(r *http.Request) string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL + r.URL.RequestURI()
	}
	return buildAbsoluteURL(r)
}

func writeTwiML(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(TwiML(text))
}

func buildAbsoluteURL(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	if r.URL.Scheme != "" {
		return r.URL.String()
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if r.TLS == nil {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, r.URL.RequestURI())
}
