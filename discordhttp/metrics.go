package discordhttp

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// interactionMetrics holds Prometheus metrics for the interaction
// endpoint. All metrics use the discordhttp_ namespace.
type interactionMetrics struct {
	InteractionsTotal   *prometheus.CounterVec
	InteractionDuration *prometheus.HistogramVec
	SignatureFailures   prometheus.Counter
	CommandsTotal       *prometheus.CounterVec
	ComponentsTotal     *prometheus.CounterVec
	HandlerErrors       *prometheus.CounterVec
	PingsTotal          prometheus.Counter
	InFlight            prometheus.Gauge
}

// newInteractionMetrics creates and registers the endpoint metrics on the
// given registry. Returns nil if reg is nil, and callers treat a nil
// receiver as metrics-disabled.
func newInteractionMetrics(reg *prometheus.Registry) *interactionMetrics {
	if reg == nil {
		return nil
	}

	m := &interactionMetrics{
		InteractionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "discordhttp",
			Subsystem: "interactions",
			Name:      "total",
			Help:      "Total interactions by type and response status.",
		}, []string{"type", "status"}),

		InteractionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "discordhttp",
			Subsystem: "interactions",
			Name:      "duration_seconds",
			Help:      "Interaction dispatch duration in seconds by type.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"type"}),

		SignatureFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "discordhttp",
			Subsystem: "interactions",
			Name:      "signature_failures_total",
			Help:      "Total requests rejected for bad or missing signatures.",
		}),

		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "discordhttp",
			Subsystem: "commands",
			Name:      "total",
			Help:      "Total command invocations by command path and outcome.",
		}, []string{"command", "outcome"}),

		ComponentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "discordhttp",
			Subsystem: "components",
			Name:      "total",
			Help:      "Total component and modal interactions by outcome.",
		}, []string{"outcome"}),

		HandlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "discordhttp",
			Subsystem: "interactions",
			Name:      "handler_errors_total",
			Help:      "Total handler errors by interaction type.",
		}, []string{"type"}),

		PingsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "discordhttp",
			Subsystem: "interactions",
			Name:      "pings_total",
			Help:      "Total endpoint-verification pings received.",
		}),

		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "discordhttp",
			Subsystem: "interactions",
			Name:      "in_flight",
			Help:      "Interactions currently being dispatched.",
		}),
	}

	reg.MustRegister(
		m.InteractionsTotal,
		m.InteractionDuration,
		m.SignatureFailures,
		m.CommandsTotal,
		m.ComponentsTotal,
		m.HandlerErrors,
		m.PingsTotal,
		m.InFlight,
	)
	return m
}

// observe records one dispatched interaction. Safe on a nil receiver.
func (m *interactionMetrics) observe(
	interactionType string,
	status int,
	elapsed time.Duration,
) {
	if m == nil {
		return
	}
	m.InteractionsTotal.WithLabelValues(
		interactionType,
		strconv.Itoa(status),
	).Inc()
	m.InteractionDuration.WithLabelValues(interactionType).Observe(
		elapsed.Seconds(),
	)
}

func (m *interactionMetrics) observeCommand(command string, outcome string) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(command, outcome).Inc()
}

func (m *interactionMetrics) observeComponent(outcome string) {
	if m == nil {
		return
	}
	m.ComponentsTotal.WithLabelValues(outcome).Inc()
}

func (m *interactionMetrics) observeHandlerError(interactionType string) {
	if m == nil {
		return
	}
	m.HandlerErrors.WithLabelValues(interactionType).Inc()
}

func (m *interactionMetrics) observePing() {
	if m == nil {
		return
	}
	m.PingsTotal.Inc()
}

func (m *interactionMetrics) observeSignatureFailure() {
	if m == nil {
		return
	}
	m.SignatureFailures.Inc()
}

func (m *interactionMetrics) trackInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.InFlight.Inc()
	return m.InFlight.Dec
}
