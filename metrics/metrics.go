// Package metrics exposes reconciliation runs as Prometheus metrics so the
// ingestion server can be scraped next to the Grafana data source.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tokuotsu/kakei2grafana/ledger"
	"github.com/tokuotsu/kakei2grafana/record"
)

// Rebuild outcomes used as the status label.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Collector holds the metrics of one server on a private registry.
type Collector struct {
	registry *prometheus.Registry

	rebuilds    *prometheus.CounterVec
	records     *prometheus.GaugeVec
	diagnostics *prometheus.CounterVec
	duration    prometheus.Histogram
	balances    *prometheus.GaugeVec
	lastRebuild prometheus.Gauge
}

// NewCollector registers all metrics on a fresh registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		rebuilds: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kakei_rebuilds_total",
			Help: "Number of timeline rebuilds by outcome",
		}, []string{"status"}),
		records: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kakei_records",
			Help: "Records used by the last successful rebuild",
		}, []string{"kind"}),
		diagnostics: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kakei_diagnostics_total",
			Help: "Records skipped during rebuilds by problem",
		}, []string{"problem"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kakei_rebuild_duration_seconds",
			Help:    "Duration of timeline rebuilds",
			Buckets: prometheus.DefBuckets,
		}),
		balances: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kakei_account_balance",
			Help: "Latest known balance per registered account",
		}, []string{"account"}),
		lastRebuild: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kakei_last_rebuild_timestamp_seconds",
			Help: "Unix time of the last successful rebuild",
		}),
	}
}

// ObserveRebuild records the outcome and duration of a rebuild. On success
// the result replaces the record and balance gauges.
func (c *Collector) ObserveRebuild(d time.Duration, result *ledger.Result, err error) {
	c.duration.Observe(d.Seconds())
	if err != nil {
		c.rebuilds.WithLabelValues(StatusFailed).Inc()
		return
	}
	c.rebuilds.WithLabelValues(StatusOK).Inc()
	c.lastRebuild.SetToCurrentTime()
	if result != nil {
		c.recordResult(result)
	}
}

// ObserveDiagnostics counts skipped records that never reached the ledger,
// such as CSV rows rejected by the parser.
func (c *Collector) ObserveDiagnostics(errs []error) {
	for _, err := range errs {
		c.diagnostics.WithLabelValues(problemLabel(err)).Inc()
	}
}

func (c *Collector) recordResult(result *ledger.Result) {
	c.records.WithLabelValues("transaction").Set(float64(len(result.Transactions)))
	c.records.WithLabelValues("transfer_leg").Set(float64(len(result.Transfers)))
	c.ObserveDiagnostics(result.Diagnostics)

	c.balances.Reset()
	if result.Timeline == nil {
		return
	}
	for i, e := range result.Timeline.Registry {
		latest, ok := result.Timeline.Timelines[i].Latest()
		if !ok {
			continue
		}
		c.balances.WithLabelValues(string(e.Account)).Set(latest.Balance.Decimal.InexactFloat64())
	}
}

func problemLabel(err error) string {
	if p, ok := err.(interface{ GetProblem() record.Problem }); ok {
		return p.GetProblem().String()
	}
	return "other"
}

// Registry returns the registry the metrics live on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
