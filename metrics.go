package main

import (
	"github.com/prometheus/client_golang/prometheus"
)

// dispatch outcomes used as the "outcome" label
const (
	outcomeOK        = "ok"
	outcomeGap       = "gap"
	outcomeDecode    = "decode"
	outcomePermanent = "permanent"
	outcomeRetryable = "retryable"
	outcomeExhausted = "exhausted"
	outcomeStorage   = "storage"
	outcomePanic     = "panic"
)

type Metrics struct {
	Enqueued     *prometheus.CounterVec
	Rejected     prometheus.Counter
	Dispatched   *prometheus.CounterVec
	Compacted    *prometheus.CounterVec
	Top          *prometheus.GaugeVec
	Bottom       *prometheus.GaugeVec
	Cycles       prometheus.Counter
	CycleSeconds prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "offchaind",
			Name:      "enqueued_total",
			Help:      "Committed producer calls.",
		}, []string{"method"}),
		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "offchaind",
			Name:      "rejected_total",
			Help:      "Producer submissions that did not commit.",
		}),
		Dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "offchaind",
			Name:      "dispatched_total",
			Help:      "Slot dispatch attempts by outcome.",
		}, []string{"method", "outcome"}),
		Compacted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "offchaind",
			Name:      "compacted_slots_total",
			Help:      "Processed slots deleted by compaction.",
		}, []string{"method"}),
		Top: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "offchaind",
			Name:      "queue_top",
			Help:      "Published top marker.",
		}, []string{"method"}),
		Bottom: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "offchaind",
			Name:      "queue_bottom",
			Help:      "Consumed slots.",
		}, []string{"method"}),
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "offchaind",
			Name:      "cycles_total",
			Help:      "Completed dispatch cycles.",
		}),
		CycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "offchaind",
			Name:      "cycle_seconds",
			Help:      "Dispatch cycle duration.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
	}
	reg.MustRegister(m.Enqueued, m.Rejected, m.Dispatched, m.Compacted, m.Top, m.Bottom, m.Cycles, m.CycleSeconds)
	return m
}
