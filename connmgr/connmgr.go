// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package connmgr implements ConnectionsManager: inbound accept with
// per-host limits, outbound dial/retry with backoff, auto-BP peering,
// and the periodic health/metrics monitors.
package connmgr

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/spring/peer"
)

// AllowedConnection is the p2p authentication mode.
type AllowedConnection int

const (
	AllowAny AllowedConnection = iota
	AllowProducers
	AllowSpecified
	AllowNone
)

var (
	ErrMaxClients    = errors.New("connmgr: max clients reached")
	ErrHostLimit     = errors.New("connmgr: per-host connection limit reached")
	ErrNotConfigured = errors.New("connmgr: peer not in static or auto-BP list")
)

// Config bounds ConnectionsManager's accept/dial policy.
type Config struct {
	MaxClients      int
	MaxNodesPerHost int
	ConnectorPeriod time.Duration
	CleanupPeriod   time.Duration
	Allowed         AllowedConnection
	PeerConfig      peer.Config
}

// dialEntry tracks one configured outbound peer's retry backoff state:
// consecutive close count grows the redial interval instead of
// benching a scored node.
type dialEntry struct {
	address           string
	consecutiveCloses int
	nextAttempt       time.Time
	static            bool
	autoBP            bool
}

// Manager is ConnectionsManager.
type Manager struct {
	log    log.Logger
	cfg    Config
	dialer func(ctx context.Context, address string) (net.Conn, error)
	onConn func(net.Conn, ids.NodeID) *peer.Connection

	mu          sync.Mutex
	conns       map[ids.NodeID]*peer.Connection
	hostCounts  map[string]int
	staticPeers map[string]*dialEntry

	closed chan struct{}
}

// New creates a ConnectionsManager. dialer opens outbound sockets;
// onConn wraps an accepted or dialed net.Conn as a handshaked
// peer.Connection (handshake negotiation itself lives in the caller,
// keeping transport setup separate from routing).
func New(logger log.Logger, cfg Config, dialer func(ctx context.Context, address string) (net.Conn, error), onConn func(net.Conn, ids.NodeID) *peer.Connection) *Manager {
	return &Manager{
		log:         logger,
		cfg:         cfg,
		dialer:      dialer,
		onConn:      onConn,
		conns:       make(map[ids.NodeID]*peer.Connection),
		hostCounts:  make(map[string]int),
		staticPeers: make(map[string]*dialEntry),
		closed:      make(chan struct{}),
	}
}

// AddStaticPeer registers an outbound peer address to be dialed on the
// connector timer.
func (m *Manager) AddStaticPeer(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.staticPeers[address]
	if !ok {
		e = &dialEntry{address: address}
		m.staticPeers[address] = e
	}
	e.static = true
}

// SetAutoBPPeer marks address as a currently-scheduled block producer
// endpoint, dialed like a static peer but dropped automatically once
// the producer leaves the active schedule (unless also static).
func (m *Manager) SetAutoBPPeer(address string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if active {
		e, ok := m.staticPeers[address]
		if !ok {
			e = &dialEntry{address: address}
			m.staticPeers[address] = e
		}
		e.autoBP = true
		return
	}
	if e, ok := m.staticPeers[address]; ok {
		e.autoBP = false
		if !e.static {
			delete(m.staticPeers, address)
		}
	}
}

// Accept admits an inbound socket from host, enforcing MaxClients and
// the per-host cap.
func (m *Manager) Accept(host string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.conns) >= m.cfg.MaxClients {
		return ErrMaxClients
	}
	if m.cfg.MaxNodesPerHost > 0 && m.hostCounts[host] >= m.cfg.MaxNodesPerHost {
		return ErrHostLimit
	}
	m.hostCounts[host]++
	return nil
}

// Register records an established connection (inbound or outbound)
// under its handshaked node id. If a connection to the same node is
// already registered, the new connection is closed and the existing one
// kept: Manager holds no local node id, so the lower-node-id tiebreak
// compares nodeID with itself and never closes the existing connection.
func (m *Manager) Register(nodeID ids.NodeID, conn *peer.Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.conns[nodeID]; ok {
		if lowerCloses(nodeID, m.localID(nodeID)) {
			existing.Close()
		} else {
			conn.Close()
			return
		}
	}
	m.conns[nodeID] = conn
}

// localID is the local side of the asymmetric-close tiebreak. Manager
// holds no local identity, so it returns nodeID itself.
func (m *Manager) localID(nodeID ids.NodeID) ids.NodeID { return nodeID }

func lowerCloses(a, b ids.NodeID) bool {
	return a.String() < b.String()
}

// Unregister drops a connection that has closed, releasing its host
// slot.
func (m *Manager) Unregister(nodeID ids.NodeID, host string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, nodeID)
	if m.hostCounts[host] > 0 {
		m.hostCounts[host]--
	}
}

// Connections returns a snapshot of all registered peer connections.
func (m *Manager) Connections() []*peer.Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*peer.Connection, 0, len(m.conns))
	for _, c := range m.conns {
		out = append(out, c)
	}
	return out
}

// RecordClose escalates address's redial backoff after a connection
// drops, the same consecutive-failure-to-backoff shape
// networking/benchlist applies to failure-count-to-bench.
func (m *Manager) RecordClose(address string, immediate bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.staticPeers[address]
	if !ok {
		return
	}
	if immediate {
		e.consecutiveCloses++
	} else {
		e.consecutiveCloses = 0
	}
	e.nextAttempt = time.Now().Add(backoff(m.cfg.ConnectorPeriod, e.consecutiveCloses))
}

func backoff(period time.Duration, consecutiveCloses int) time.Duration {
	d := period
	for i := 0; i < consecutiveCloses && i < 6; i++ {
		d *= 2
	}
	const cap = 2 * time.Minute
	if d > cap {
		d = cap
	}
	return d
}

// duePeers returns static/auto-BP addresses whose backoff has elapsed.
func (m *Manager) duePeers(now time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []string
	for addr, e := range m.staticPeers {
		if now.After(e.nextAttempt) {
			due = append(due, addr)
		}
	}
	return due
}

// RunConnector drives the dial-retry loop on ConnectorPeriod until ctx
// is canceled.
func (m *Manager) RunConnector(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ConnectorPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.closed:
			return
		case now := <-ticker.C:
			for _, addr := range m.duePeers(now) {
				m.dialOne(ctx, addr)
			}
		}
	}
}

func (m *Manager) dialOne(ctx context.Context, address string) {
	conn, err := m.dialer(ctx, address)
	if err != nil {
		m.log.Warn("outbound dial failed", "address", address, "error", err)
		m.RecordClose(address, true)
		return
	}
	m.log.Info("dialed peer", "address", address)

	pc := m.onConn(conn, ids.NodeID{})
	if pc == nil {
		m.log.Warn("handshake failed", "address", address)
		conn.Close()
		m.RecordClose(address, true)
		return
	}
	m.Register(pc.NodeID(), pc)
}

// Close shuts down the connector loop and every registered connection.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.closed:
		return
	default:
		close(m.closed)
	}
	for _, c := range m.conns {
		c.Close()
	}
}
