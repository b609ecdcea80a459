package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lasttrips/internal/analysis"
)

// Collector holds the evaluation metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	reg *prometheus.Registry

	ArchiveFetches     *prometheus.CounterVec // kind, source: memory|disk|remote
	ArchiveFetchErrors *prometheus.CounterVec // kind
	RemoteFetch        *prometheus.HistogramVec

	MinutesScanned prometheus.Counter
	Scores         *prometheus.CounterVec // result
	DatesEvaluated *prometheus.CounterVec // outcome: found|not_found

	HorizonMinutes  prometheus.Gauge
	LookbackMinutes prometheus.Gauge
}

func NewCollector(horizonMinutes, lookbackMinutes int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ArchiveFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lasttrips_archive_fetches_total",
			Help: "Snapshots served, by feed kind and where they came from.",
		}, []string{"kind", "source"}),
		ArchiveFetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lasttrips_archive_fetch_errors_total",
			Help: "Snapshots that could not be fetched or decoded.",
		}, []string{"kind"}),
		RemoteFetch: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lasttrips_remote_fetch_duration_seconds",
			Help:    "Duration of archive downloads including decoding.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"kind"}),
		MinutesScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lasttrips_minutes_scanned_total",
			Help: "Vehicle position minutes examined while searching for last trips.",
		}),
		Scores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lasttrips_scores_total",
			Help: "Prediction minutes scored, by result.",
		}, []string{"result"}),
		DatesEvaluated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lasttrips_dates_evaluated_total",
			Help: "Service dates evaluated, by whether the last trip was observed.",
		}, []string{"outcome"}),
		HorizonMinutes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lasttrips_horizon_minutes",
			Help: "Backward search horizon in minutes.",
		}),
		LookbackMinutes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lasttrips_lookback_minutes",
			Help: "Minutes scored before each observed last trip.",
		}),
	}

	reg.MustRegister(
		c.ArchiveFetches, c.ArchiveFetchErrors, c.RemoteFetch,
		c.MinutesScanned, c.Scores, c.DatesEvaluated,
		c.HorizonMinutes, c.LookbackMinutes,
	)

	c.HorizonMinutes.Set(float64(horizonMinutes))
	c.LookbackMinutes.Set(float64(lookbackMinutes))

	return c
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// SnapshotFetched records a snapshot served by the archive.
func (c *Collector) SnapshotFetched(kind, source string, d time.Duration) {
	if c == nil {
		return
	}
	c.ArchiveFetches.WithLabelValues(kind, source).Inc()
	if source == "remote" {
		c.RemoteFetch.WithLabelValues(kind).Observe(d.Seconds())
	}
}

// SnapshotFailed records a snapshot the archive could not serve.
func (c *Collector) SnapshotFailed(kind string) {
	if c == nil {
		return
	}
	c.ArchiveFetchErrors.WithLabelValues(kind).Inc()
}

// MinuteScanned records one vehicle positions minute examined.
func (c *Collector) MinuteScanned() {
	if c == nil {
		return
	}
	c.MinutesScanned.Inc()
}

// Scored records one prediction classification.
func (c *Collector) Scored(r analysis.Result) {
	if c == nil {
		return
	}
	c.Scores.WithLabelValues(r.String()).Inc()
}

// DateEvaluated records the outcome of a service date's search.
func (c *Collector) DateEvaluated(found bool) {
	if c == nil {
		return
	}
	outcome := "not_found"
	if found {
		outcome = "found"
	}
	c.DatesEvaluated.WithLabelValues(outcome).Inc()
}
