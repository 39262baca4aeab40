// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dispatch implements DispatchManager: the
// two-table per-peer seen-id tracker (blk_state, local_txns) that
// decides whether a block or transaction needs broadcasting to a given
// peer, and expires stale transaction entries. Grounded on the
// teacher's per-peer seen-id bookkeeping in networking/router and
// networking/handler, generalized from a single flat seen-set to the
// two-table design and using utils/set.Set[ids.ID] for the per-peer
// membership tables.
package dispatch

import (
	"sync"
	"time"

	"github.com/luxfi/ids"

	"github.com/luxfi/spring/utils/set"
)

// peerState is one peer's dedup bookkeeping.
type peerState struct {
	knownBlocks set.Set[ids.ID]
	knownTrx    set.Set[ids.ID]
}

// txnEntry tracks when a locally-seen transaction was first observed,
// so it can be expired after the configured TTL.
type txnEntry struct {
	firstSeen time.Time
}

// Manager is DispatchManager: it owns blk_state (per-peer block/
// transaction dedup) and local_txns (locally-known transaction expiry)
// and answers the broadcast-policy question "does peer X need to see
// item Y."
type Manager struct {
	mu sync.Mutex

	blkState  map[ids.NodeID]*peerState
	localTxns map[ids.ID]txnEntry

	dedupTTL time.Duration
}

// NewManager creates an empty dispatch manager whose local_txns table
// expires entries older than dedupTTL.
func NewManager(dedupTTL time.Duration) *Manager {
	return &Manager{
		blkState:  make(map[ids.NodeID]*peerState),
		localTxns: make(map[ids.ID]txnEntry),
		dedupTTL:  dedupTTL,
	}
}

func (m *Manager) stateFor(nodeID ids.NodeID) *peerState {
	st, ok := m.blkState[nodeID]
	if !ok {
		st = &peerState{knownBlocks: set.NewSet[ids.ID](0), knownTrx: set.NewSet[ids.ID](0)}
		m.blkState[nodeID] = st
	}
	return st
}

// AddPeer registers a newly connected peer with empty dedup tables.
func (m *Manager) AddPeer(nodeID ids.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateFor(nodeID)
}

// RemovePeer discards a disconnected peer's dedup tables.
func (m *Manager) RemovePeer(nodeID ids.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blkState, nodeID)
}

// MarkBlockKnown records that peer already has blockID, either because
// it sent it to us or because we already broadcast it there.
func (m *Manager) MarkBlockKnown(peer ids.NodeID, blockID ids.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateFor(peer).knownBlocks.Add(blockID)
}

// MarkTxnKnown records that peer already has txnID, and registers
// txnID in local_txns if this is the first time we've seen it at all.
func (m *Manager) MarkTxnKnown(peer ids.NodeID, txnID ids.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateFor(peer).knownTrx.Add(txnID)
	if _, ok := m.localTxns[txnID]; !ok {
		m.localTxns[txnID] = txnEntry{firstSeen: time.Now()}
	}
}

// NeedsBlock reports whether peer should be sent blockID.
func (m *Manager) NeedsBlock(peer ids.NodeID, blockID ids.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.stateFor(peer).knownBlocks.Contains(blockID)
}

// NeedsTxn reports whether peer should be sent txnID.
func (m *Manager) NeedsTxn(peer ids.NodeID, txnID ids.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.stateFor(peer).knownTrx.Contains(txnID)
}

// BroadcastTargets returns every connected peer that still needs
// blockID, marking it known for each as a side effect (a peer that
// receives a broadcast is assumed to now have it).
func (m *Manager) BroadcastTargets(peers []ids.NodeID, blockID ids.ID) []ids.NodeID {
	m.mu.Lock()
	defer m.mu.Unlock()

	var targets []ids.NodeID
	for _, p := range peers {
		st := m.stateFor(p)
		if !st.knownBlocks.Contains(blockID) {
			st.knownBlocks.Add(blockID)
			targets = append(targets, p)
		}
	}
	return targets
}

// ExpireTxns drops local_txns entries older than dedupTTL, called
// periodically by the owning controller loop.
func (m *Manager) ExpireTxns(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	expired := 0
	for id, entry := range m.localTxns {
		if now.Sub(entry.firstSeen) > m.dedupTTL {
			delete(m.localTxns, id)
			expired++
		}
	}
	return expired
}

// KnownLocally reports whether txnID has been seen at all (regardless
// of which peer sent it), used to suppress redundant VM execution.
func (m *Manager) KnownLocally(txnID ids.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.localTxns[txnID]
	return ok
}
