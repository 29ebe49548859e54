// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes the scheduler's per-pass statistics as a
// custom prometheus.Collector, grounded on the teacher's
// internal/libvirt/metrics.go Desc-building style (prometheus.NewDesc
// + prometheus.BuildFQName) generalized into a proper Describe/Collect
// implementation — the teacher's own MustNewConstMetric calls are
// discarded rather than sent to a channel, which this package fixes
// rather than imitates.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	passDurationDesc = prometheus.NewDesc(
		prometheus.BuildFQName("winevm", "scheduler", "pass_duration_seconds"),
		"Wall-clock duration of the most recent scheduling pass.",
		nil, nil)

	passesTotalDesc = prometheus.NewDesc(
		prometheus.BuildFQName("winevm", "scheduler", "passes_total"),
		"Number of scheduling passes completed since startup.",
		nil, nil)

	tasksCounterDesc = prometheus.NewDesc(
		prometheus.BuildFQName("winevm", "scheduler", "tasks"),
		"Task counts by bucket at the end of the most recent pass.",
		[]string{"bucket"}, nil)
)

// Sample is one pass's worth of observations, handed to Collector.Observe
// by cmd/enginectl right after scheduler.Run returns.
type Sample struct {
	PassDuration time.Duration
	Runnable     int
	Queued       int
	Blocked      int
}

// Collector is a prometheus.Collector reporting the most recently
// observed Sample. It holds no history: Prometheus scrapes a gauge of
// the latest pass, the way the teaser's own stats.go reports live
// libvirt domain state rather than a time series it owns itself.
type Collector struct {
	mu     sync.Mutex
	last   Sample
	passes atomic.Int64
}

// NewCollector returns a Collector with no pass observed yet.
func NewCollector() *Collector {
	return &Collector{}
}

// Observe records the outcome of one completed pass.
func (c *Collector) Observe(s Sample) {
	c.mu.Lock()
	c.last = s
	c.mu.Unlock()
	c.passes.Add(1)
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- passDurationDesc
	ch <- passesTotalDesc
	ch <- tasksCounterDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	last := c.last
	c.mu.Unlock()

	ch <- prometheus.MustNewConstMetric(passDurationDesc, prometheus.GaugeValue, last.PassDuration.Seconds())
	ch <- prometheus.MustNewConstMetric(passesTotalDesc, prometheus.CounterValue, float64(c.passes.Load()))
	ch <- prometheus.MustNewConstMetric(tasksCounterDesc, prometheus.GaugeValue, float64(last.Runnable), "runnable")
	ch <- prometheus.MustNewConstMetric(tasksCounterDesc, prometheus.GaugeValue, float64(last.Queued), "queued")
	ch <- prometheus.MustNewConstMetric(tasksCounterDesc, prometheus.GaugeValue, float64(last.Blocked), "blocked")
}
