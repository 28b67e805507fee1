package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for the dialogue loop.
type ConversationMetrics struct {
	messagesTotal     *prometheus.CounterVec
	reservationsTotal *prometheus.CounterVec
	completionLatency *prometheus.HistogramVec
	tokensTotal       *prometheus.CounterVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicagent",
			Subsystem: "conversation",
			Name:      "messages_total",
			Help:      "Inbound patient messages by channel and outcome",
		}, []string{"channel", "outcome"}),
		reservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicagent",
			Subsystem: "conversation",
			Name:      "reservations_total",
			Help:      "Appointment proposals by reservation result",
		}, []string{"result"}),
		completionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinicagent",
			Subsystem: "conversation",
			Name:      "completion_seconds",
			Help:      "Latency of completion backend calls",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 5, 8, 10, 15, 20, 30},
		}, []string{"provider", "status"}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicagent",
			Subsystem: "conversation",
			Name:      "tokens_total",
			Help:      "Tokens consumed by the completion backend",
		}, []string{"provider", "type"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.messagesTotal, m.reservationsTotal, m.completionLatency, m.tokensTotal)
	return m
}

func (m *ConversationMetrics) ObserveMessage(channel, outcome string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(channel, outcome).Inc()
}

func (m *ConversationMetrics) ObserveReservation(result string) {
	if m == nil {
		return
	}
	m.reservationsTotal.WithLabelValues(result).Inc()
}

func (m *ConversationMetrics) ObserveCompletion(provider, status string, seconds float64) {
	if m == nil {
		return
	}
	m.completionLatency.WithLabelValues(provider, status).Observe(seconds)
}

func (m *ConversationMetrics) AddTokens(provider string, input, output int32) {
	if m == nil {
		return
	}
	if input > 0 {
		m.tokensTotal.WithLabelValues(provider, "input").Add(float64(input))
	}
	if output > 0 {
		m.tokensTotal.WithLabelValues(provider, "output").Add(float64(output))
	}
}
