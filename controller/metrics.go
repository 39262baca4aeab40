// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package controller

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the counters and gauges the controller publishes through
// a thin prometheus.Registerer wrapper, covering block-lifecycle
// events rather than consensus-round sampling metrics.
type Metrics struct {
	BlocksApplied   prometheus.Counter
	ForkSwitches    prometheus.Counter
	BlocksRejected  prometheus.Counter
	IrreversibleNum prometheus.Gauge
	HeadNum         prometheus.Gauge
}

// NewMetrics registers the controller's metrics against reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		BlocksApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "controller_blocks_applied_total",
			Help: "Number of blocks successfully applied.",
		}),
		ForkSwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "controller_fork_switches_total",
			Help: "Number of times the preferred head switched forks.",
		}),
		BlocksRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "controller_blocks_rejected_total",
			Help: "Number of blocks that failed validation or application.",
		}),
		IrreversibleNum: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "controller_irreversible_block_num",
			Help: "Highest block number known to be irreversible.",
		}),
		HeadNum: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "controller_head_block_num",
			Help: "Current preferred head block number.",
		}),
	}
	for _, c := range []prometheus.Collector{m.BlocksApplied, m.ForkSwitches, m.BlocksRejected, m.IrreversibleNum, m.HeadNum} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
