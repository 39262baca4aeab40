// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"
)

func TestBroadcastTargetsSkipsPeersThatAlreadyHaveTheBlock(t *testing.T) {
	m := NewManager(time.Minute)
	peerA := ids.GenerateTestNodeID()
	peerB := ids.GenerateTestNodeID()
	m.AddPeer(peerA)
	m.AddPeer(peerB)

	blockID := ids.GenerateTestID()
	m.MarkBlockKnown(peerA, blockID)

	targets := m.BroadcastTargets([]ids.NodeID{peerA, peerB}, blockID)
	require.Equal(t, []ids.NodeID{peerB}, targets)

	// A second broadcast attempt finds no targets left.
	require.Empty(t, m.BroadcastTargets([]ids.NodeID{peerA, peerB}, blockID))
}

func TestExpireTxnsDropsStaleEntries(t *testing.T) {
	m := NewManager(time.Millisecond)
	peer := ids.GenerateTestNodeID()
	m.AddPeer(peer)

	txnID := ids.GenerateTestID()
	m.MarkTxnKnown(peer, txnID)
	require.True(t, m.KnownLocally(txnID))

	expired := m.ExpireTxns(time.Now().Add(time.Hour))
	require.Equal(t, 1, expired)
	require.False(t, m.KnownLocally(txnID))
}

func TestRemovePeerDropsDedupTable(t *testing.T) {
	m := NewManager(time.Minute)
	peer := ids.GenerateTestNodeID()
	blockID := ids.GenerateTestID()

	m.MarkBlockKnown(peer, blockID)
	require.False(t, m.NeedsBlock(peer, blockID))

	m.RemovePeer(peer)
	require.True(t, m.NeedsBlock(peer, blockID), "dedup state should reset once peer is removed and re-added")
}
