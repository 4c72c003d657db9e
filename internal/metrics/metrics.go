package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "midisession"

// Collector holds Prometheus metrics for one session manager.
type Collector struct {
	registry *prometheus.Registry

	// Notifications
	notificationsTotal   *prometheus.CounterVec
	notificationsDropped *prometheus.CounterVec

	// Object cache
	cacheRebuildsTotal   *prometheus.CounterVec
	cacheRebuildDuration prometheus.Histogram

	// Resolver
	bindingsTotal *prometheus.CounterVec

	// Tables
	resources *prometheus.GaugeVec
}

// New creates the collectors and registers them with a fresh registry.
func New() *Collector {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry registers the collectors with registry.
func NewWithRegistry(registry *prometheus.Registry) *Collector {
	c := &Collector{registry: registry}

	c.notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Topology notifications published, by kind",
		},
		[]string{"kind"},
	)
	c.notificationsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notifications dropped because the object could not be resolved, by kind",
		},
		[]string{"kind"},
	)
	c.cacheRebuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_rebuilds_total",
			Help:      "Object cache rebuilds, by status",
		},
		[]string{"status"},
	)
	c.cacheRebuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_rebuild_duration_seconds",
			Help:      "Time spent enumerating the transport for a cache rebuild",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)
	c.bindingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bindings_total",
			Help:      "Connection endpoint bindings applied, by resource kind and outcome",
		},
		[]string{"resource_kind", "outcome"},
	)
	c.resources = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resources",
			Help:      "Managed resources currently registered, by kind",
		},
		[]string{"resource_kind"},
	)

	registry.MustRegister(
		c.notificationsTotal,
		c.notificationsDropped,
		c.cacheRebuildsTotal,
		c.cacheRebuildDuration,
		c.bindingsTotal,
		c.resources,
	)
	return c
}

// Registry returns the registry the collectors live in.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) NotificationProcessed(kind string) {
	c.notificationsTotal.WithLabelValues(kind).Inc()
}

func (c *Collector) NotificationDropped(kind string) {
	c.notificationsDropped.WithLabelValues(kind).Inc()
}

func (c *Collector) CacheRebuilt(elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.cacheRebuildsTotal.WithLabelValues(status).Inc()
	c.cacheRebuildDuration.Observe(elapsed.Seconds())
}

func (c *Collector) BindingsReconciled(kind string, added, removed, failed int) {
	c.bindingsTotal.WithLabelValues(kind, "bound").Add(float64(added))
	c.bindingsTotal.WithLabelValues(kind, "unbound").Add(float64(removed))
	c.bindingsTotal.WithLabelValues(kind, "failed").Add(float64(failed))
}

func (c *Collector) ResourcesChanged(counts map[string]int) {
	for kind, n := range counts {
		c.resources.WithLabelValues(kind).Set(float64(n))
	}
}
