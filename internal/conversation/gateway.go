package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/consultia/clinic-agent/internal/clinic"
	"github.com/consultia/clinic-agent/internal/observability/metrics"
	"github.com/consultia/clinic-agent/pkg/logging"
)

var conversationTracer = otel.Tracer("clinicagent.internal.conversation")

const (
	defaultCompletionTimeout = 30 * time.Second
	defaultMaxTokens         = 800
	defaultTemperature       = 0.4
)

// Gateway turns a session log plus tenant instructions into one raw assistant reply.
type Gateway struct {
	client    LLMClient
	provider  string
	timeout   time.Duration
	maxTokens int32
	metrics   *metrics.ConversationMetrics
	logger    *logging.Logger
}

type GatewayOption func(*Gateway)

// WithCompletionTimeout bounds each backend call.
func WithCompletionTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithMaxTokens(n int32) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

func WithGatewayMetrics(m *metrics.ConversationMetrics) GatewayOption {
	return func(g *Gateway) { g.metrics = m }
}

func NewGateway(client LLMClient, provider string, logger *logging.Logger, opts ...GatewayOption) *Gateway {
	if client == nil {
		panic("conversation: llm client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if provider == "" {
		provider = "unknown"
	}
	g := &Gateway{
		client:    client,
		provider:  provider,
		timeout:   defaultCompletionTimeout,
		maxTokens: defaultMaxTokens,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Complete sends the whole turn log to the backend. The last turn must be the
// latest patient message. Quota refusals surface as ErrQuotaExhausted and an
// elapsed per-call deadline as ErrCompletionTimeout; other failures are
// wrapped and returned without retry.
func (g *Gateway) Complete(ctx context.Context, turns []Turn, tenant *clinic.Tenant) (string, error) {
	ctx, span := conversationTracer.Start(ctx, "conversation.complete")
	defer span.End()

	if tenant == nil {
		return "", errors.New("conversation: tenant required")
	}
	if len(turns) == 0 {
		return "", errors.New("conversation: no turns to complete")
	}
	span.SetAttributes(
		attribute.String("clinicagent.tenant_id", tenant.ID),
		attribute.String("clinicagent.llm_provider", g.provider),
		attribute.Int("clinicagent.turns", len(turns)),
	)

	slots, err := tenant.Slots()
	if err != nil {
		return "", fmt.Errorf("conversation: tenant %s slots: %w", tenant.ID, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	started := time.Now()
	resp, err := g.client.Complete(callCtx, LLMRequest{
		System:      []string{BuildSystemPrompt(tenant, slots)},
		Messages:    toChatMessages(turns),
		MaxTokens:   g.maxTokens,
		Temperature: defaultTemperature,
	})
	elapsed := time.Since(started).Seconds()

	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, ErrQuotaExhausted):
			g.metrics.ObserveCompletion(g.provider, "quota", elapsed)
			g.logger.Warn("completion quota exhausted", "tenant_id", tenant.ID, "provider", g.provider, "error", err)
			return "", err
		case ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded):
			g.metrics.ObserveCompletion(g.provider, "timeout", elapsed)
			g.logger.Warn("completion timed out", "tenant_id", tenant.ID, "provider", g.provider, "timeout", g.timeout)
			return "", fmt.Errorf("%w after %s: %v", ErrCompletionTimeout, g.timeout, err)
		default:
			g.metrics.ObserveCompletion(g.provider, "error", elapsed)
			return "", fmt.Errorf("conversation: complete for tenant %s: %w", tenant.ID, err)
		}
	}

	g.metrics.ObserveCompletion(g.provider, "ok", elapsed)
	g.metrics.AddTokens(g.provider, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	g.logger.Debug("completion finished",
		"tenant_id", tenant.ID,
		"provider", g.provider,
		"stop_reason", resp.StopReason,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
	return resp.Text, nil
}
