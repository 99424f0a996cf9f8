package obs

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// SessionMetrics holds the shopping domain collectors. A nil *SessionMetrics
// is valid and records nothing.
type SessionMetrics struct {
	Mutations   *prometheus.CounterVec
	Promotions  *prometheus.CounterVec
	GrandTotal  prometheus.Histogram
	SyncResults *prometheus.CounterVec
}

// NewSessionMetrics registers and returns the domain collectors.
func NewSessionMetrics(namespace string, reg prometheus.Registerer) *SessionMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &SessionMetrics{
		Mutations: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_mutations_total",
			Help:      "Shopping session operations by outcome.",
		}, []string{"op", "result"})),
		Promotions: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promotion_evaluations_total",
			Help:      "Promotion evaluations by kind and whether they triggered.",
		}, []string{"kind", "triggered"})),
		GrandTotal: register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_grand_total",
			Help:      "Grand total of completed sessions.",
			Buckets:   []float64{5, 10, 25, 50, 100, 200, 400, 800},
		})),
		SyncResults: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_sync_total",
			Help:      "Remote session sync task outcomes.",
		}, []string{"result"})),
	}
}

// ObserveMutation counts one session operation.
func (m *SessionMetrics) ObserveMutation(op string, err error) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(op, resultLabel(err)).Inc()
}

// ObservePromotion counts one promotion evaluation.
func (m *SessionMetrics) ObservePromotion(kind string, triggered bool) {
	if m == nil {
		return
	}
	m.Promotions.WithLabelValues(kind, strconv.FormatBool(triggered)).Inc()
}

// ObserveCompleted records the grand total of a completed session.
func (m *SessionMetrics) ObserveCompleted(total decimal.Decimal) {
	if m == nil {
		return
	}
	f, _ := total.Float64()
	m.GrandTotal.Observe(f)
}

// ObserveSync counts one remote sync attempt.
func (m *SessionMetrics) ObserveSync(err error) {
	if m == nil {
		return
	}
	m.SyncResults.WithLabelValues(resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// BreakerMetrics tracks circuit breakers. A nil *BreakerMetrics records nothing.
type BreakerMetrics struct {
	State       *prometheus.GaugeVec
	Transitions *prometheus.CounterVec
}

// NewBreakerMetrics registers and returns the breaker collectors.
func NewBreakerMetrics(namespace string, reg prometheus.Registerer) *BreakerMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &BreakerMetrics{
		State: register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Current breaker state: 0=closed,1=open,2=half-open.",
		}, []string{"target"})),
		Transitions: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transition_total",
			Help:      "Breaker state transitions.",
		}, []string{"target", "from", "to"})),
	}
}

// SetBreakerState records the numeric state of a breaker.
func (m *BreakerMetrics) SetBreakerState(target string, state int) {
	if m == nil {
		return
	}
	m.State.WithLabelValues(target).Set(float64(state))
}

// ObserveBreakerTransition counts one state change.
func (m *BreakerMetrics) ObserveBreakerTransition(target, from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(target, from, to).Inc()
}
