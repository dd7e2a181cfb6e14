package application

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ericfisherdev/campaignwatch/internal/domain/model"
)

// Metrics holds the ingestion counters exported on /metrics. A nil *Metrics
// is valid and records nothing, which keeps tests free of registry setup.
type Metrics struct {
	donationsFetched *prometheus.CounterVec
	donationsDeleted *prometheus.CounterVec
	fetchErrors      *prometheus.CounterVec
	rateLookups      *prometheus.CounterVec
	refreshDuration  prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		donationsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campaignwatch",
			Name:      "donations_fetched_total",
			Help:      "Donations returned by campaign sources.",
		}, []string{"platform"}),
		donationsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campaignwatch",
			Name:      "donations_deleted_total",
			Help:      "Stored donations removed by reconciliation.",
		}, []string{"platform"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campaignwatch",
			Name:      "campaign_fetch_errors_total",
			Help:      "Campaign fetches that failed, by error kind.",
		}, []string{"platform", "kind"}),
		rateLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campaignwatch",
			Name:      "exchange_rate_lookups_total",
			Help:      "Exchange-rate table lookups, by the layer that served them.",
		}, []string{"source"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "campaignwatch",
			Name:      "refresh_duration_seconds",
			Help:      "Wall time of a full campaign refresh cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}

	reg.MustRegister(m.donationsFetched, m.donationsDeleted, m.fetchErrors, m.rateLookups, m.refreshDuration)
	return m
}

func (m *Metrics) addFetched(platform model.Platform, n int) {
	if m == nil || n == 0 {
		return
	}
	m.donationsFetched.WithLabelValues(string(platform)).Add(float64(n))
}

func (m *Metrics) addDeleted(platform model.Platform, n int64) {
	if m == nil || n == 0 {
		return
	}
	m.donationsDeleted.WithLabelValues(string(platform)).Add(float64(n))
}

func (m *Metrics) fetchFailed(platform model.Platform, kind model.ErrorKind) {
	if m == nil {
		return
	}
	m.fetchErrors.WithLabelValues(string(platform), kind.String()).Inc()
}

func (m *Metrics) rateLookup(source string) {
	if m == nil {
		return
	}
	m.rateLookups.WithLabelValues(source).Inc()
}

func (m *Metrics) observeRefresh(d time.Duration) {
	if m == nil {
		return
	}
	m.refreshDuration.Observe(d.Seconds())
}
