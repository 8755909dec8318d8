package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rewardhub"

// Outcome labels shared by the reward components.
const (
	OutcomeAwarded  = "awarded"
	OutcomeClaimed  = "already_claimed"
	OutcomeDisabled = "disabled"
	OutcomeNoop     = "noop"
	OutcomeFailed   = "failed"
)

// Metrics holds the Prometheus collectors for the service. A nil *Metrics is valid and records nothing.
type Metrics struct {
	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RewardOutcomes  *prometheus.CounterVec
	CoinsAwarded    *prometheus.CounterVec
	TxRetries       prometheus.Counter
	ScratchCards    *prometheus.CounterVec
	ScratchRuns     *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers all collectors on reg. gatherer serves /metrics; pass the same registry
// in tests, prometheus.DefaultGatherer in production.
func NewMetrics(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RewardOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rewards",
				Name:      "outcomes_total",
				Help:      "Reward attempts by component and outcome",
			},
			[]string{"component", "outcome"},
		),
		CoinsAwarded: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "coins_awarded_total",
				Help:      "Coins credited to users, by reward key",
			},
			[]string{"reward_key"},
		),
		TxRetries: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "transaction_retries_total",
				Help:      "Transactions retried after a transient database error",
			},
		),
		ScratchCards: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scratch",
				Name:      "cards_total",
				Help:      "Scratch cards processed by the daily issuer, by result",
			},
			[]string{"result"},
		),
		ScratchRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scratch",
				Name:      "runs_total",
				Help:      "Scratch issuer runs by status",
			},
			[]string{"status"},
		),
		gatherer: gatherer,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) Reward(component, outcome string) {
	if m == nil {
		return
	}
	m.RewardOutcomes.WithLabelValues(component, outcome).Inc()
}

func (m *Metrics) Coins(rewardKey string, amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.CoinsAwarded.WithLabelValues(rewardKey).Add(float64(amount))
}

func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.TxRetries.Inc()
}

func (m *Metrics) ScratchRun(status string, created, skipped, errored int) {
	if m == nil {
		return
	}
	m.ScratchRuns.WithLabelValues(status).Inc()
	m.ScratchCards.WithLabelValues("created").Add(float64(created))
	m.ScratchCards.WithLabelValues("skipped").Add(float64(skipped))
	m.ScratchCards.WithLabelValues("errored").Add(float64(errored))
}

func (m *Metrics) ObserveRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestCounter.WithLabelValues(method, route, status).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(seconds)
}
