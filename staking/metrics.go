package staking

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's prometheus instruments. Registration happens
// once at construction against the caller-supplied Registerer.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	settlementsTotal  prometheus.Counter
	rewardPaidTotal   prometheus.Counter
	claimsShorted     prometheus.Counter
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "staking",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Engine operations by kind and result.",
			},
			[]string{"op", "result"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "staking",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Wall time of engine operations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		settlementsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "staking",
				Subsystem: "engine",
				Name:      "settlements_total",
				Help:      "Pool settlements performed.",
			},
		),
		rewardPaidTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "staking",
				Subsystem: "engine",
				Name:      "reward_paid_total",
				Help:      "Reward units paid out by claims, as a float approximation.",
			},
		),
		claimsShorted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "staking",
				Subsystem: "engine",
				Name:      "claims_shorted_total",
				Help:      "Claims paid below the computed total because custody held less reward than owed.",
			},
		),
	}
	registry.MustRegister(m.operationsTotal, m.operationDuration, m.settlementsTotal, m.rewardPaidTotal, m.claimsShorted)
	return m
}

func (m *Metrics) observeOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operationsTotal.WithLabelValues(op, result).Inc()
}
