package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BiddingMetrics tracks the rate submission pipeline.
type BiddingMetrics struct {
	accepted   *prometheus.CounterVec
	rejected   *prometheus.CounterVec
	extensions prometheus.Counter
	rebuilds   prometheus.Counter
	latency    prometheus.Histogram
}

// NewBiddingMetrics registers the bidding metrics on the provided registerer.
func NewBiddingMetrics(reg prometheus.Registerer) *BiddingMetrics {
	if reg == nil {
		return &BiddingMetrics{}
	}
	accepted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_submissions_accepted",
		Help: "Accepted rate submissions.",
	}, []string{"visibility"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_submissions_rejected",
		Help: "Rejected rate submissions by error code.",
	}, []string{"code"})
	extensions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auction_extensions_total",
		Help: "Bid windows extended by late submissions.",
	})
	rebuilds := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "leaderboard_rebuilds_total",
		Help: "Leaderboards rebuilt from the rate ledger.",
	})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rate_submission_duration_seconds",
		Help:    "End-to-end duration of rate submissions.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(accepted, rejected, extensions, rebuilds, latency)
	return &BiddingMetrics{
		accepted:   accepted,
		rejected:   rejected,
		extensions: extensions,
		rebuilds:   rebuilds,
		latency:    latency,
	}
}

// IncAccepted counts an accepted submission for the load's visibility class.
func (b *BiddingMetrics) IncAccepted(visibility string) {
	if b == nil || b.accepted == nil {
		return
	}
	b.accepted.WithLabelValues(normalizeLabel(visibility)).Inc()
}

// IncRejected counts a rejected submission by error code.
func (b *BiddingMetrics) IncRejected(code string) {
	if b == nil || b.rejected == nil {
		return
	}
	b.rejected.WithLabelValues(normalizeLabel(code)).Inc()
}

// IncExtension counts an anti-sniping window extension.
func (b *BiddingMetrics) IncExtension() {
	if b == nil || b.extensions == nil {
		return
	}
	b.extensions.Inc()
}

// IncRebuild counts a leaderboard rebuild from the ledger.
func (b *BiddingMetrics) IncRebuild() {
	if b == nil || b.rebuilds == nil {
		return
	}
	b.rebuilds.Inc()
}

// ObserveSubmission records the duration of one submission.
func (b *BiddingMetrics) ObserveSubmission(duration time.Duration) {
	if b == nil || b.latency == nil {
		return
	}
	b.latency.Observe(duration.Seconds())
}
