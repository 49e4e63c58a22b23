// Package metrics exposes the scheduler's behavior as Prometheus gauges and
// histograms, grounded on cmd/worker/main.go's promauto-based metric
// declarations. Unlike the teacher's worker (which updates metrics from
// inline business logic), these are fed from one place: a Collector, whose
// queue-depth gauge is filled from store.Describe() snapshots. cmd/daemon
// takes one such snapshot when its metrics server starts; the scheduler tick
// does not call into the Collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/macq/tomtom-priority-queue/internal/queueitem"
	"github.com/macq/tomtom-priority-queue/internal/store"
)

// Collector wraps the gauges/histograms/counters this module exposes.
type Collector struct {
	queueDepth       *prometheus.GaugeVec
	itemsSubmitted   prometheus.Counter
	itemsCompleted   prometheus.Counter
	itemsErrored     prometheus.Counter
	tickDuration     prometheus.Histogram
	completionMinute prometheus.Histogram
}

// NewCollector registers this module's metrics against the default
// registry, mirroring cmd/worker/main.go's package-level promauto vars, but
// scoped to an instance so tests can construct independent Collectors.
func NewCollector() *Collector {
	return &Collector{
		queueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tomtom_priority_queue_depth",
			Help: "Number of queue items by derived status.",
		}, []string{"status"}),
		itemsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tomtom_priority_queue_submitted_total",
			Help: "Total number of items submitted to the remote service.",
		}),
		itemsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tomtom_priority_queue_completed_total",
			Help: "Total number of items that reached COMPLETED.",
		}),
		itemsErrored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tomtom_priority_queue_errored_total",
			Help: "Total number of items that reached HAS_ERROR.",
		}),
		tickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tomtom_priority_queue_tick_duration_seconds",
			Help:    "Duration of one scheduler tick (refresh+reconcile+admit).",
			Buckets: prometheus.DefBuckets,
		}),
		completionMinute: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tomtom_priority_queue_completion_minutes",
			Help:    "Minutes between submission and completion for non-error items.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 240, 480},
		}),
	}
}

// ObserveTick records one tick's wall-clock duration.
func (c *Collector) ObserveTick(d time.Duration) {
	c.tickDuration.Observe(d.Seconds())
}

// RecordSubmitted increments the submitted counter.
func (c *Collector) RecordSubmitted() { c.itemsSubmitted.Inc() }

// RecordCompleted, if the item reached COMPLETED (not HAS_ERROR), increments
// the completed counter and observes its completion latency; otherwise it
// increments the errored counter.
func (c *Collector) RecordCompleted(item *queueitem.Item) {
	if item.Status() == queueitem.StatusCompleted && item.SubmittedAt != nil && item.CompletedAt != nil {
		c.itemsCompleted.Inc()
		c.completionMinute.Observe(item.CompletedAt.Sub(*item.SubmittedAt).Minutes())
		return
	}
	c.itemsErrored.Inc()
}

// RefreshFromStore snapshots store.Describe() into the queue depth gauge.
// cmd/daemon calls it once, when the metrics server starts; it is not
// refreshed on later ticks.
func (c *Collector) RefreshFromStore(s *store.Store) {
	metrics := s.Describe()
	for status, count := range metrics.TotalByStatus {
		c.queueDepth.WithLabelValues(string(status)).Set(float64(count))
	}
}
