// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package syncmgr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"

	"github.com/luxfi/spring/chain"
)

func testConfig() Config {
	return Config{
		BlockInterval: 500 * time.Millisecond,
		FetchSpan:     100,
		PeerLimit:     3,
		Margin:        2,
	}
}

func TestHandleHandshakePeerAtOurHeadIsNoOp(t *testing.T) {
	m := NewManager(testConfig())
	peer := ids.GenerateTestNodeID()

	action := m.HandleHandshake(0, 100, peer, 0, 100, 0)
	require.Equal(t, ActionNone, action)
	require.Equal(t, InSync, m.State())
}

func TestHandleHandshakePeerAheadEntersCatchUp(t *testing.T) {
	m := NewManager(testConfig())
	peer := ids.GenerateTestNodeID()

	action := m.HandleHandshake(0, 100, peer, 0, 500, 0)
	require.Equal(t, ActionEnterCatchUp, action)
	require.Equal(t, LibCatchup, m.State())
}

func TestHandleHandshakePeerBehindNotifies(t *testing.T) {
	m := NewManager(testConfig())
	peer := ids.GenerateTestNodeID()

	action := m.HandleHandshake(0, 500, peer, 0, 100, 0)
	require.Equal(t, ActionNotifyPeerBehind, action)
}

func TestHandleHandshakeWeHaveMoreHistory(t *testing.T) {
	m := NewManager(testConfig())
	peer := ids.GenerateTestNodeID()

	action := m.HandleHandshake(600, 700, peer, 0, 100, 0)
	require.Equal(t, ActionNotifyWeHaveMoreHistory, action)
}

func TestHandleHandshakeBehindPeerRootSendsOurHandshake(t *testing.T) {
	m := NewManager(testConfig())
	peer := ids.GenerateTestNodeID()

	action := m.HandleHandshake(0, 50, peer, 100, 500, 0)
	require.Equal(t, ActionSendOurHandshake, action)
}

func TestSelectPeerPicksLowestLatencyAmongLimit(t *testing.T) {
	m := NewManager(testConfig())
	fast := ids.GenerateTestNodeID()
	slow := ids.GenerateTestNodeID()

	m.HandleHandshake(0, 0, fast, 0, 1000, 10*time.Millisecond)
	m.HandleHandshake(0, 0, slow, 0, 1000, time.Second)

	picked, ok := m.SelectPeer(time.Now())
	require.True(t, ok)
	require.Equal(t, fast, picked)
}

func TestRangeFetchLifecycle(t *testing.T) {
	m := NewManager(testConfig())
	m.SetKnownLib(250)

	start, end := m.NextRange(0)
	require.Equal(t, chain.BlockNum(0), start)
	require.Equal(t, chain.BlockNum(99), end)

	peer := ids.GenerateTestNodeID()
	m.BeginRange(peer, start, end, time.Now())

	for n := start; n <= end; n++ {
		m.ReceiveBlock(n)
	}

	start2, end2 := m.NextRange(100)
	require.Equal(t, chain.BlockNum(100), start2)
	require.Equal(t, chain.BlockNum(199), end2)
}

func TestRejectResetsAnchorToKnownLib(t *testing.T) {
	m := NewManager(testConfig())
	m.SetKnownLib(42)
	m.BeginRange(ids.GenerateTestNodeID(), 0, 99, time.Now())

	m.Reject()

	start, _, hadActive := m.Timeout()
	require.False(t, hadActive)
	require.Equal(t, chain.BlockNum(0), start)

	anchor, _ := m.NextRange(42)
	require.Equal(t, chain.BlockNum(42), anchor, "next fetch starts from the known LIB")
}

func TestRecordNackTriggersAfterTwoConsecutive(t *testing.T) {
	m := NewManager(testConfig())
	peer := ids.GenerateTestNodeID()

	require.False(t, m.RecordNack(peer))
	require.True(t, m.RecordNack(peer))

	m.RecordBlockReceived(peer)
	require.False(t, m.RecordNack(peer))
}
