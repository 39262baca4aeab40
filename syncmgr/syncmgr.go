// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package syncmgr implements SyncManager: the in_sync/lib_catchup/
// head_catchup state machine, chunked range fetching over the
// lowest-latency candidate peers, and the block-nack broadcast
// optimization.
package syncmgr

import (
	"sort"
	"sync"
	"time"

	"github.com/luxfi/ids"

	"github.com/luxfi/spring/chain"
)

// State is SyncManager's current synchronization mode.
type State int

const (
	InSync State = iota
	LibCatchup
	HeadCatchup
)

func (s State) String() string {
	switch s {
	case InSync:
		return "in_sync"
	case LibCatchup:
		return "lib_catchup"
	case HeadCatchup:
		return "head_catchup"
	default:
		return "unknown"
	}
}

// PeerStatus is the per-connection view SyncManager maintains from
// handshakes and received traffic.
type PeerStatus struct {
	NodeID        ids.NodeID
	ForkDBRootNum chain.BlockNum
	HeadNum       chain.BlockNum
	HeadID        chain.BlockID
	LatencyBlocks chain.BlockNum // RTT/block_interval
	SyncingFromUs bool
	lastSyncedAt  time.Time
}

// Config bounds the range-fetch and catch-up margins.
type Config struct {
	BlockInterval    time.Duration
	FetchSpan        chain.BlockNum
	PeerLimit        int
	Margin           chain.BlockNum
	IrreversibleMode bool
}

// rangeRequest is one outstanding chunked fetch.
type rangeRequest struct {
	peer  ids.NodeID
	start chain.BlockNum
	end   chain.BlockNum
	sent  time.Time
}

// Manager is SyncManager.
type Manager struct {
	mu sync.Mutex

	cfg   Config
	state State

	peers map[ids.NodeID]*PeerStatus

	nextExpected chain.BlockNum
	knownLib     chain.BlockNum
	active       *rangeRequest

	nackStreak map[ids.NodeID]int
}

// NewManager creates an idle SyncManager.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:        cfg,
		state:      InSync,
		peers:      make(map[ids.NodeID]*PeerStatus),
		nackStreak: make(map[ids.NodeID]int),
	}
}

// State reports the manager's current mode.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Action is what the caller (connmgr/dispatch) should do in response to
// a handshake.
type Action int

const (
	ActionNone Action = iota
	ActionSendOurHandshake
	ActionNotifyWeHaveMoreHistory
	ActionEnterCatchUp
	ActionNotifyPeerBehind
)

// HandleHandshake implements the handshake decision table, updating the
// peer's status and returning the action the caller should take.
func (m *Manager) HandleHandshake(ourRoot, ourHead chain.BlockNum, peer ids.NodeID, peerRoot, peerHead chain.BlockNum, rtt time.Duration) Action {
	m.mu.Lock()
	defer m.mu.Unlock()

	nblk := chain.BlockNum(0)
	if m.cfg.BlockInterval > 0 {
		nblk = chain.BlockNum(rtt / m.cfg.BlockInterval)
	}

	st, ok := m.peers[peer]
	if !ok {
		st = &PeerStatus{NodeID: peer}
		m.peers[peer] = st
	}
	st.ForkDBRootNum = peerRoot
	st.HeadNum = peerHead
	st.LatencyBlocks = nblk

	switch {
	case peerHead == ourHead:
		st.SyncingFromUs = false
		return ActionNone
	case ourHead < peerRoot:
		return ActionSendOurHandshake
	case ourRoot > peerHead+nblk+m.cfg.Margin:
		return ActionNotifyWeHaveMoreHistory
	case ourHead+nblk < peerHead:
		m.state = LibCatchup
		return ActionEnterCatchUp
	case ourHead >= peerHead+nblk:
		st.SyncingFromUs = true
		return ActionNotifyPeerBehind
	default:
		return ActionNone
	}
}

// SelectPeer picks the lowest-latency candidate among the PeerLimit
// best peers, skipping any synced from within the last BlockInterval.
func (m *Manager) SelectPeer(now time.Time) (ids.NodeID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidates := make([]*PeerStatus, 0, len(m.peers))
	for _, st := range m.peers {
		if !st.lastSyncedAt.IsZero() && now.Sub(st.lastSyncedAt) < m.cfg.BlockInterval {
			continue
		}
		candidates = append(candidates, st)
	}
	if len(candidates) == 0 {
		return ids.NodeID{}, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LatencyBlocks < candidates[j].LatencyBlocks
	})

	limit := m.cfg.PeerLimit
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}
	best := candidates[0]
	for _, st := range candidates[:limit] {
		if st.LatencyBlocks < best.LatencyBlocks {
			best = st
		}
	}
	return best.NodeID, true
}

// NextRange computes the next chunk to request, bounded by FetchSpan
// ahead of the applied head unless IrreversibleMode is set, in which
// case the bound extends to knownLib.
func (m *Manager) NextRange(appliedHead chain.BlockNum) (start, end chain.BlockNum) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start = m.nextExpected
	limit := appliedHead + m.cfg.FetchSpan
	if m.cfg.IrreversibleMode && m.knownLib > limit {
		limit = m.knownLib
	}
	end = start + m.cfg.FetchSpan - 1
	if end > m.knownLib {
		end = m.knownLib
	}
	if end > limit {
		end = limit
	}
	return start, end
}

// BeginRange records an outstanding chunked fetch from peer.
func (m *Manager) BeginRange(peer ids.NodeID, start, end chain.BlockNum, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = &rangeRequest{peer: peer, start: start, end: end, sent: now}
	if st, ok := m.peers[peer]; ok {
		st.lastSyncedAt = now
	}
}

// ReceiveBlock advances nextExpected as blocks arrive in order,
// completing the active range once its end is reached.
func (m *Manager) ReceiveBlock(num chain.BlockNum) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if num != m.nextExpected {
		return
	}
	m.nextExpected++
	if m.active != nil && num >= m.active.end {
		m.active = nil
	}
	if m.nextExpected > m.knownLib {
		m.state = InSync
	}
}

// SetKnownLib updates the highest known LIB the manager will fetch
// toward.
func (m *Manager) SetKnownLib(lib chain.BlockNum) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.knownLib = lib
}

// Timeout reassigns the active range request to a different peer after
// it has not completed in time.
func (m *Manager) Timeout() (start, end chain.BlockNum, hadActive bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return 0, 0, false
	}
	start, end = m.nextExpected, m.active.end
	m.active = nil
	return start, end, true
}

// Reject resets the range anchor to the current LIB and clears the
// active request, so the next fetch re-requests from the last known
// irreversible block.
func (m *Manager) Reject() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextExpected = m.knownLib
	m.active = nil
}

// RecordNack increments peer's consecutive block-nack streak, returning
// true once it reaches 2 — the threshold at which the caller should
// switch to sending block_notice_message instead of full blocks.
func (m *Manager) RecordNack(peer ids.NodeID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nackStreak[peer]++
	return m.nackStreak[peer] >= 2
}

// RecordBlockReceived resets peer's nack streak, since a full block was
// just accepted from (or sent to) them.
func (m *Manager) RecordBlockReceived(peer ids.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nackStreak, peer)
}
