// Package metrics exports FreeList usage to Prometheus.
package metrics

import (
	"github.com/llxisdsh/rwlock"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector reports the counters of one rwlock.FreeList.
//
// Usage:
//
//	prometheus.MustRegister(metrics.NewCollector(nil))
type Collector struct {
	fl *rwlock.FreeList

	capacity *prometheus.Desc
	inUse    *prometheus.Desc
	allocs   *prometheus.Desc
	releases *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a Collector for fl. A nil fl means
// rwlock.DefaultFreeList().
func NewCollector(fl *rwlock.FreeList, constLabels ...prometheus.Labels) *Collector {
	if fl == nil {
		fl = rwlock.DefaultFreeList()
	}
	var labels prometheus.Labels
	if len(constLabels) > 0 {
		labels = constLabels[0]
	}
	return &Collector{
		fl: fl,
		capacity: prometheus.NewDesc(
			"rwlock_freelist_capacity",
			"Lock states materialised by the free list.",
			nil, labels,
		),
		inUse: prometheus.NewDesc(
			"rwlock_freelist_in_use",
			"Lock states currently held by contended or recursive locks.",
			nil, labels,
		),
		allocs: prometheus.NewDesc(
			"rwlock_freelist_allocations_total",
			"Lock states taken off the free list.",
			nil, labels,
		),
		releases: prometheus.NewDesc(
			"rwlock_freelist_releases_total",
			"Lock states returned to the free list.",
			nil, labels,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.capacity
	ch <- c.inUse
	ch <- c.allocs
	ch <- c.releases
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.fl.Stats()
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(st.Capacity))
	ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(st.InUse))
	ch <- prometheus.MustNewConstMetric(c.allocs, prometheus.CounterValue, float64(st.Allocations))
	ch <- prometheus.MustNewConstMetric(c.releases, prometheus.CounterValue, float64(st.Releases))
}
