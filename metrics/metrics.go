package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

const Namespace = "ballot"

// Metrics holds the collectors of the transaction tracker and the cache
// synchronizer. A Metrics that was never registered still counts, it is just
// not exported.
type Metrics struct {
	TxSubmitted      *prometheus.CounterVec
	TxConfirmed      *prometheus.CounterVec
	TxFailed         *prometheus.CounterVec
	TxLatency        *prometheus.HistogramVec
	EstimateFailures prometheus.Counter
	InferenceMisses  prometheus.Counter
	Invalidations    *prometheus.CounterVec
	DecodeFailures   prometheus.Counter
	EventsReceived   prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		TxSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "tracker",
			Name:      "submitted_total",
			Help:      "Writes that passed the guard and reached the ledger.",
		}, []string{"kind"}),
		TxConfirmed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "tracker",
			Name:      "confirmed_total",
			Help:      "Writes the ledger accepted.",
		}, []string{"kind"}),
		TxFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "tracker",
			Name:      "failed_total",
			Help:      "Writes the ledger rejected or that timed out.",
		}, []string{"kind"}),
		TxLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "tracker",
			Name:      "settle_seconds",
			Help:      "Time from placeholder creation to a terminal status.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"kind"}),
		EstimateFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "tracker",
			Name:      "estimate_failures_total",
			Help:      "Gas estimates that failed and were skipped.",
		}),
		InferenceMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "tracker",
			Name:      "id_inference_misses_total",
			Help:      "Receipts from which no ledger id could be inferred.",
		}),
		Invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Cache invalidations by scope.",
		}, []string{"scope"}),
		DecodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "sync",
			Name:      "decode_failures_total",
			Help:      "Vote events whose payload could not be decoded.",
		}),
		EventsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "sync",
			Name:      "events_total",
			Help:      "Vote events received from the ledger.",
		}),
	}
}

func (m *Metrics) Register(registerer prometheus.Registerer) error {
	for _, collector := range []prometheus.Collector{
		m.TxSubmitted, m.TxConfirmed, m.TxFailed, m.TxLatency,
		m.EstimateFailures, m.InferenceMisses,
		m.Invalidations, m.DecodeFailures, m.EventsReceived,
	} {
		if err := registerer.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
