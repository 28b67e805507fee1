package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consultia/clinic-agent/internal/clinic"
	"github.com/consultia/clinic-agent/internal/observability/metrics"
	"github.com/consultia/clinic-agent/pkg/logging"
)

type stubLLM struct {
	req  LLMRequest
	resp LLMResponse
	err  error
	wait bool
}

func (s *stubLLM) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	s.req = req
	if s.wait {
		<-ctx.Done()
		return LLMResponse{}, ctx.Err()
	}
	return s.resp, s.err
}

func histogramCount(t *testing.T, reg *prometheus.Registry, name, status string) uint64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "status" && l.GetValue() == status {
					return m.GetHistogram().GetSampleCount()
				}
			}
		}
	}
	return 0
}

func TestGatewayCompleteSendsPromptAndHistory(t *testing.T) {
	reg := prometheus.NewRegistry()
	llm := &stubLLM{resp: LLMResponse{Text: "¿Cuál es tu nombre?", Usage: TokenUsage{InputTokens: 300, OutputTokens: 12}}}
	gw := NewGateway(llm, "gemini", logging.New("error"), WithGatewayMetrics(metrics.NewConversationMetrics(reg)), WithMaxTokens(500))
	tenant := clinic.DemoTenant()

	text, err := gw.Complete(context.Background(), []Turn{
		{Role: RolePatient, Text: "Hola"},
		{Role: RoleAssistant, Text: "¡Hola! ¿En qué te ayudo?"},
		{Role: RolePatient, Text: "Quiero un turno"},
	}, &tenant)
	require.NoError(t, err)
	assert.Equal(t, "¿Cuál es tu nombre?", text)

	require.Len(t, llm.req.System, 1)
	assert.Contains(t, llm.req.System[0], tenant.Name)
	require.Len(t, llm.req.Messages, 3)
	assert.Equal(t, ChatRoleAssistant, llm.req.Messages[1].Role)
	assert.Equal(t, "Quiero un turno", llm.req.Messages[2].Content)
	assert.Equal(t, int32(500), llm.req.MaxTokens)
	assert.Equal(t, uint64(1), histogramCount(t, reg, "clinicagent_conversation_completion_seconds", "ok"))
}

func TestGatewaySurfacesQuota(t *testing.T) {
	llm := &stubLLM{err: errors.Join(ErrQuotaExhausted, errors.New("429"))}
	gw := NewGateway(llm, "gemini", logging.New("error"))
	tenant := clinic.DemoTenant()

	_, err := gw.Complete(context.Background(), []Turn{{Role: RolePatient, Text: "Hola"}}, &tenant)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQuotaExhausted))
}

func TestGatewayTimeout(t *testing.T) {
	reg := prometheus.NewRegistry()
	llm := &stubLLM{wait: true}
	gw := NewGateway(llm, "bedrock", logging.New("error"),
		WithCompletionTimeout(20*time.Millisecond),
		WithGatewayMetrics(metrics.NewConversationMetrics(reg)),
	)
	tenant := clinic.DemoTenant()

	_, err := gw.Complete(context.Background(), []Turn{{Role: RolePatient, Text: "Hola"}}, &tenant)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCompletionTimeout))
	assert.Equal(t, uint64(1), histogramCount(t, reg, "clinicagent_conversation_completion_seconds", "timeout"))
}

func TestGatewayCallerCancellationIsNotTimeout(t *testing.T) {
	llm := &stubLLM{wait: true}
	gw := NewGateway(llm, "gemini", logging.New("error"), WithCompletionTimeout(time.Minute))
	tenant := clinic.DemoTenant()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := gw.Complete(ctx, []Turn{{Role: RolePatient, Text: "Hola"}}, &tenant)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCompletionTimeout))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestGatewayPropagatesOtherErrors(t *testing.T) {
	boom := errors.New("backend unavailable")
	gw := NewGateway(&stubLLM{err: boom}, "gemini", logging.New("error"))
	tenant := clinic.DemoTenant()

	_, err := gw.Complete(context.Background(), []Turn{{Role: RolePatient, Text: "Hola"}}, &tenant)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.False(t, errors.Is(err, ErrQuotaExhausted))
}

func TestGatewayRejectsInvalidTenant(t *testing.T) {
	gw := NewGateway(&stubLLM{}, "gemini", logging.New("error"))
	tenant := clinic.DemoTenant()
	tenant.SlotMinutes = 0

	_, err := gw.Complete(context.Background(), []Turn{{Role: RolePatient, Text: "Hola"}}, &tenant)
	require.Error(t, err)

	_, err = gw.Complete(context.Background(), nil, &tenant)
	require.Error(t, err)
}
