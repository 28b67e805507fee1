package bootstrap

import (
	appconfig "github.com/consultia/clinic-agent/internal/config"
	"github.com/consultia/clinic-agent/internal/messaging"
	"github.com/consultia/clinic-agent/internal/observability/metrics"
	"github.com/consultia/clinic-agent/pkg/logging"
)

// BuildWhatsAppHandler applies signature checking and dedupe to the WhatsApp
// webhook. dedupe may be nil when no database is configured.
func BuildWhatsAppHandler(
	cfg *appconfig.Config,
	resolver messaging.TenantResolver,
	dialogue messaging.MessageHandler,
	dedupe messaging.Deduper,
	m *metrics.ConversationMetrics,
	logger *logging.Logger,
) *messaging.WhatsAppHandler {
	if logger == nil {
		logger = logging.Default()
	}
	opts := []messaging.WhatsAppOption{messaging.WithMetrics(m)}
	switch {
	case cfg.TwilioSkipVerify:
		logger.Warn("twilio signature validation disabled by TWILIO_SKIP_VERIFY")
	case cfg.TwilioAuthToken == "":
		logger.Warn("TWILIO_AUTH_TOKEN not set; webhook signatures are not checked")
	default:
		opts = append(opts, messaging.WithSignatureValidation(cfg.TwilioAuthToken, cfg.PublicBaseURL))
	}
	if dedupe != nil {
		opts = append(opts, messaging.WithDeduper(dedupe))
	}
	return messaging.NewWhatsAppHandler(resolver, dialogue, logger, opts...)
}
