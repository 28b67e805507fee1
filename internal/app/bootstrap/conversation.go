package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/consultia/clinic-agent/cmd/mainconfig"
	appconfig "github.com/consultia/clinic-agent/internal/config"
	"github.com/consultia/clinic-agent/internal/conversation"
	"github.com/consultia/clinic-agent/internal/observability/metrics"
	"github.com/consultia/clinic-agent/pkg/logging"
)

// BuildCompletionGateway wires the configured completion backend. The returned
// close func releases the backend client and is never nil.
func BuildCompletionGateway(ctx context.Context, cfg *appconfig.Config, m *metrics.ConversationMetrics, logger *logging.Logger) (*conversation.Gateway, func() error, error) {
	noop := func() error { return nil }
	if cfg == nil {
		return nil, noop, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	client, closeFn, err := buildLLMClient(ctx, cfg)
	if err != nil {
		return nil, noop, err
	}
	logger.Info("completion backend ready", "provider", cfg.LLMProvider, "timeout", cfg.CompletionTimeout)

	gateway := conversation.NewGateway(client, cfg.LLMProvider, logger,
		conversation.WithCompletionTimeout(cfg.CompletionTimeout),
		conversation.WithMaxTokens(int32(cfg.CompletionMaxToken)),
		conversation.WithGatewayMetrics(m),
	)
	return gateway, closeFn, nil
}

func buildLLMClient(ctx context.Context, cfg *appconfig.Config) (conversation.LLMClient, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.LLMProvider)) {
	case "", "gemini":
		client, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: gemini: %w", err)
		}
		return client, client.Close, nil
	case "bedrock":
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			return nil, nil, fmt.Errorf("bootstrap: BEDROCK_MODEL_ID is required for the bedrock provider")
		}
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		client := conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID)
		return client, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}
