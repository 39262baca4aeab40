// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package connmgr

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/spring/uptime"
)

// MonitorMetrics exposes the connection-metrics monitor's gauges.
type MonitorMetrics struct {
	ConnectedPeers prometheus.Gauge
	HeartbeatStale prometheus.Gauge
}

// NewMonitorMetrics registers the connection-metrics monitor's gauges.
func NewMonitorMetrics(reg prometheus.Registerer) (*MonitorMetrics, error) {
	m := &MonitorMetrics{
		ConnectedPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "connmgr_connected_peers",
			Help: "Number of currently registered peer connections.",
		}),
		HeartbeatStale: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "connmgr_heartbeat_stale_peers",
			Help: "Number of peers that have exceeded 2x keepalive without a received frame.",
		}),
	}
	for _, c := range []prometheus.Collector{m.ConnectedPeers, m.HeartbeatStale} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RunHealthMonitor periodically closes connections that have not
// received a frame within 2x the configured heartbeat, and records
// uptime transitions for the liveness tracker.
func (m *Manager) RunHealthMonitor(ctx context.Context, uptimeMgr uptime.Manager, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	staleAfter := 2 * m.cfg.PeerConfig.Heartbeat
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.closed:
			return
		case now := <-ticker.C:
			for _, c := range m.Connections() {
				if staleAfter > 0 && now.Sub(c.LastRecv()) > staleAfter {
					m.log.Warn("closing stale connection", "peer", c.NodeID().String())
					c.Close()
					uptimeMgr.Disconnected(c.NodeID(), now)
					continue
				}
				uptimeMgr.Connected(c.NodeID(), now)
			}
		}
	}
}

// RunMetricsMonitor periodically refreshes connection-count gauges.
func (m *Manager) RunMetricsMonitor(ctx context.Context, metrics *MonitorMetrics, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	staleAfter := 2 * m.cfg.PeerConfig.Heartbeat
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.closed:
			return
		case now := <-ticker.C:
			conns := m.Connections()
			metrics.ConnectedPeers.Set(float64(len(conns)))

			stale := 0
			for _, c := range conns {
				if staleAfter > 0 && now.Sub(c.LastRecv()) > staleAfter {
					stale++
				}
			}
			metrics.HeartbeatStale.Set(float64(stale))
		}
	}
}
