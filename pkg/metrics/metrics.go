// Package metrics expone los contadores Prometheus del servicio. Un *Metrics nil es válido y no registra nada.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Resultados de una llamada al sistema externo.
const (
	OutcomeOK       = "ok"
	OutcomeFallback = "fallback" // respondió un candidato distinto del primero
	OutcomeFailed   = "failed"
)

// Metrics agrupa los colectores del flujo de aprobación y del gateway externo.
type Metrics struct {
	gatewayCalls    *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	undelivered     prometheus.Counter
	decisions       *prometheus.CounterVec
	requests        *prometheus.CounterVec
}

// New registra los colectores en reg. Con reg nil devuelve un Metrics inerte.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	m := &Metrics{
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_calls_total",
			Help: "Llamadas al sistema externo por operación y resultado.",
		}, []string{"op", "outcome"}),
		gatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_call_duration_seconds",
			Help:    "Duración de las llamadas al sistema externo, incluyendo todos los candidatos.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		undelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "material_cost_push_undelivered_total",
			Help: "Costos de materiales aprobados que no se pudieron enviar a la orden de trabajo.",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "material_item_decisions_total",
			Help: "Decisiones sobre ítems por acción y etapa.",
		}, []string{"action", "stage"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "material_requests_finalized_total",
			Help: "Solicitudes que llegaron a un estado terminal.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.gatewayCalls, m.gatewayDuration, m.undelivered, m.decisions, m.requests)
	return m
}

// ObserveGatewayCall registra el resultado y la duración de una llamada externa.
func (m *Metrics) ObserveGatewayCall(op, outcome string, d time.Duration) {
	if m == nil || m.gatewayCalls == nil {
		return
	}
	op = normalizeLabel(op)
	m.gatewayCalls.WithLabelValues(op, normalizeLabel(outcome)).Inc()
	m.gatewayDuration.WithLabelValues(op).Observe(d.Seconds())
}

// IncUndeliveredCost cuenta un push de costo no entregado (no hay cola de reintentos).
func (m *Metrics) IncUndeliveredCost() {
	if m == nil || m.undelivered == nil {
		return
	}
	m.undelivered.Inc()
}

// AddDecisions cuenta n decisiones.
func (m *Metrics) AddDecisions(action, stage string, n int) {
	if m == nil || m.decisions == nil || n <= 0 {
		return
	}
	m.decisions.WithLabelValues(normalizeLabel(action), normalizeLabel(stage)).Add(float64(n))
}

// IncFinalized cuenta una solicitud finalizada con el estado dado.
func (m *Metrics) IncFinalized(status string) {
	if m == nil || m.requests == nil {
		return
	}
	m.requests.WithLabelValues(normalizeLabel(status)).Inc()
}

func normalizeLabel(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
