package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector exposes QueryMetrics as Prometheus gauges and counters,
// scraped by whatever monitoring stack a long-lived serve process runs
// under. It wraps the in-process QueryMetrics collector rather than
// replacing it: QueryMetrics still owns the raw event stream and the
// SQLite-backed rollups, and MetricsCollector just mirrors a snapshot of it
// into the default Prometheus registry on every Refresh.
type MetricsCollector struct {
	source *QueryMetrics

	totalQueries      prometheus.Gauge
	zeroResultPercent prometheus.Gauge
	exactRepeatRate   prometheus.Gauge
	similarQueryRate  prometheus.Gauge
	uniqueQueries     prometheus.Gauge
	queryTypeCounts   *prometheus.GaugeVec
	latencyBuckets    *prometheus.GaugeVec
}

// NewMetricsCollector registers the codeloom_query_* family against the
// default Prometheus registerer. source may be nil; Refresh becomes a no-op
// in that case so a server with metrics enabled but no telemetry collector
// configured still serves an empty /metrics page instead of panicking.
func NewMetricsCollector(source *QueryMetrics) *MetricsCollector {
	return NewMetricsCollectorWithRegistry(source, prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry is NewMetricsCollector with an explicit
// registerer, so tests can register against a scratch registry instead of
// the process-global default.
func NewMetricsCollectorWithRegistry(source *QueryMetrics, reg prometheus.Registerer) *MetricsCollector {
	auto := promauto.With(reg)
	return &MetricsCollector{
		source: source,
		totalQueries: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: "codeloom",
			Subsystem: "query",
			Name:      "total",
			Help:      "Total number of search queries recorded this process lifetime.",
		}),
		zeroResultPercent: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: "codeloom",
			Subsystem: "query",
			Name:      "zero_result_percentage",
			Help:      "Percentage of recorded queries that returned zero results.",
		}),
		exactRepeatRate: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: "codeloom",
			Subsystem: "query",
			Name:      "exact_repeat_rate",
			Help:      "Fraction of queries that exactly repeat a prior query within the repetition window.",
		}),
		similarQueryRate: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: "codeloom",
			Subsystem: "query",
			Name:      "similar_query_rate",
			Help:      "Fraction of queries judged similar to a prior query within the repetition window.",
		}),
		uniqueQueries: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: "codeloom",
			Subsystem: "query",
			Name:      "unique_total",
			Help:      "Count of distinct queries recorded within the repetition window.",
		}),
		queryTypeCounts: auto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "codeloom",
			Subsystem: "query",
			Name:      "type_total",
			Help:      "Recorded queries broken down by classified query type.",
		}, []string{"query_type"}),
		latencyBuckets: auto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "codeloom",
			Subsystem: "query",
			Name:      "latency_bucket_total",
			Help:      "Recorded queries broken down by latency bucket.",
		}, []string{"bucket"}),
	}
}

// Refresh pulls a fresh QueryMetricsSnapshot and overwrites every gauge with
// it. Called from the /metrics handler on each scrape rather than on a
// background timer, so a scrape always reflects the most recently recorded
// query without a second goroutine racing QueryMetrics' own flush loop.
func (c *MetricsCollector) Refresh() {
	if c == nil || c.source == nil {
		return
	}
	snap := c.source.Snapshot()
	c.totalQueries.Set(float64(snap.TotalQueries))
	c.zeroResultPercent.Set(snap.ZeroResultPercentage())
	c.exactRepeatRate.Set(snap.ExactRepeatRate)
	c.similarQueryRate.Set(snap.SimilarQueryRate)
	c.uniqueQueries.Set(float64(snap.UniqueQueryCount))
	for qt, n := range snap.QueryTypeCounts {
		c.queryTypeCounts.WithLabelValues(string(qt)).Set(float64(n))
	}
	for bucket, n := range snap.LatencyDistribution {
		c.latencyBuckets.WithLabelValues(string(bucket)).Set(float64(n))
	}
}
