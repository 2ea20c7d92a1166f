// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package tcam

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metric struct {
	desc  *prometheus.Desc
	typ   prometheus.ValueType
	value func(Stats) float64
}

// collector exports the table stats, every scrape takes one snapshot.
type collector struct {
	tbl     *Table
	metrics []metric
	hits    *prometheus.Desc
}

// NewCollector returns a prometheus.Collector for the stats of t.
// Register it with the registry of the embedding process.
func NewCollector(t *Table, namespace string) prometheus.Collector {
	c := &collector{tbl: t}

	add := func(name, help string, typ prometheus.ValueType, value func(Stats) float64) {
		c.metrics = append(c.metrics, metric{
			desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "lpm", name), help, nil, nil),
			typ:   typ,
			value: value,
		})
	}

	counter, gauge := prometheus.CounterValue, prometheus.GaugeValue

	add("lookups_total", "Number of address lookups.", counter,
		func(s Stats) float64 { return float64(s.Lookups) })
	add("no_match_total", "Number of lookups without a matching route.", counter,
		func(s Stats) float64 { return float64(s.NoMatch) })
	add("hint_skips_total", "Number of trie lookups answered by the hint index alone.", counter,
		func(s Stats) float64 { return float64(s.HintSkips) })
	add("retries_total", "Number of fast path results dropped by a concurrent write.", counter,
		func(s Stats) float64 { return float64(s.Retries) })
	add("cache_misses_total", "Number of cache misses, stale entries included.", counter,
		func(s Stats) float64 { return float64(s.CacheMisses) })
	add("cache_stale_total", "Number of cache entries dropped as stale.", counter,
		func(s Stats) float64 { return float64(s.CacheStale) })
	add("cache_evictions_total", "Number of cache entries evicted for capacity.", counter,
		func(s Stats) float64 { return float64(s.CacheEvictions) })
	add("cache_entries", "Number of cached lookup results.", gauge,
		func(s Stats) float64 { return float64(s.CacheEntries) })
	add("inserts_total", "Number of inserted routes.", counter,
		func(s Stats) float64 { return float64(s.Inserts) })
	add("updates_total", "Number of updated routes.", counter,
		func(s Stats) float64 { return float64(s.Updates) })
	add("deletes_total", "Number of deleted routes.", counter,
		func(s Stats) float64 { return float64(s.Deletes) })
	add("hint_rebuilds_total", "Number of hint index rebuilds.", counter,
		func(s Stats) float64 { return float64(s.HintRebuilds) })
	add("routes", "Number of routes in the table.", gauge,
		func(s Stats) float64 { return float64(s.Routes) })
	add("latency_avg_seconds", "Average lookup latency.", gauge,
		func(s Stats) float64 { return s.AvgLatency().Seconds() })
	add("latency_min_seconds", "Minimum lookup latency.", gauge,
		func(s Stats) float64 { return s.MinLatency.Seconds() })
	add("latency_max_seconds", "Maximum lookup latency.", gauge,
		func(s Stats) float64 { return s.MaxLatency.Seconds() })

	c.hits = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "lpm", "tier_hits_total"),
		"Number of lookups answered per tier.",
		[]string{"tier"}, nil,
	)
	return c
}

// Describe implements prometheus.Collector.
func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
	ch <- c.hits
}

// Collect implements prometheus.Collector.
func (c *collector) Collect(ch chan<- prometheus.Metric) {
	s := c.tbl.Stats()
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.typ, m.value(s))
	}
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.CacheHits), "cache")
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.MatcherHits), "matcher")
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.TrieLookups), "trie")
}
