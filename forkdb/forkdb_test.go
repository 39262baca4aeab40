// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package forkdb

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/spring/chain"
)

func testBlockID(num uint32, salt byte) chain.BlockID {
	var id chain.BlockID
	binary.BigEndian.PutUint32(id[:4], num)
	id[31] = salt
	return id
}

func legacyBlock(num uint32, salt byte, prev chain.BlockID, lib chain.BlockNum) *chain.BlockState {
	bs := &chain.BlockState{
		ID: testBlockID(num, salt),
		Header: chain.Header{
			Previous:  prev,
			Timestamp: time.Unix(int64(num), 0),
		},
	}
	bs.SetVariant(&chain.LegacyState{DPOSIrreversibleBlockNum: lib})
	return bs
}

func TestEngineAddAppendedToHead(t *testing.T) {
	genesis := legacyBlock(0, 0, chain.BlockID{}, 0)
	e := newEngine(genesis, legacyOrdering)

	b1 := legacyBlock(1, 1, genesis.ID, 0)
	result, err := e.Add(b1, false)
	require.NoError(t, err)
	require.Equal(t, AppendedToHead, result)

	head, ok := e.Head(false)
	require.True(t, ok)
	require.Equal(t, b1.ID, head.ID)
}

func TestEngineAddMissingParent(t *testing.T) {
	genesis := legacyBlock(0, 0, chain.BlockID{}, 0)
	e := newEngine(genesis, legacyOrdering)

	orphan := legacyBlock(5, 9, testBlockID(4, 9), 0)
	_, err := e.Add(orphan, false)
	require.ErrorIs(t, err, ErrMissingParent)
}

func TestEngineFetchBranch(t *testing.T) {
	genesis := legacyBlock(0, 0, chain.BlockID{}, 0)
	e := newEngine(genesis, legacyOrdering)

	b1 := legacyBlock(1, 1, genesis.ID, 0)
	b2 := legacyBlock(2, 2, b1.ID, 0)
	_, err := e.Add(b1, false)
	require.NoError(t, err)
	_, err = e.Add(b2, false)
	require.NoError(t, err)

	branch, err := e.FetchBranch(b2.ID, genesis.ID)
	require.NoError(t, err)
	require.Len(t, branch, 3)
	require.Equal(t, b2.ID, branch[0].ID)
	require.Equal(t, genesis.ID, branch[2].ID)
}

func TestEngineAdvanceRootPrunesSiblings(t *testing.T) {
	genesis := legacyBlock(0, 0, chain.BlockID{}, 0)
	e := newEngine(genesis, legacyOrdering)

	b1 := legacyBlock(1, 1, genesis.ID, 0)
	fork := legacyBlock(1, 2, genesis.ID, 0)
	_, err := e.Add(b1, false)
	require.NoError(t, err)
	_, err = e.Add(fork, false)
	require.NoError(t, err)

	require.NoError(t, e.AdvanceRoot(b1.ID))

	_, ok := e.GetBlock(fork.ID)
	require.False(t, ok, "sibling fork should be pruned once root advances past it")

	_, ok = e.GetBlock(b1.ID)
	require.True(t, ok)
}

func TestForkDBBeginSavannaTransition(t *testing.T) {
	legacyGenesis := legacyBlock(0, 0, chain.BlockID{}, 0)
	db := NewLegacy(legacyGenesis)
	require.Equal(t, UseLegacy, db.InUse())

	savGenesis := &chain.BlockState{ID: testBlockID(10, 1)}
	savGenesis.SetVariant(&chain.SavannaState{
		LatestQCClaim: chain.QCClaim{BlockNum: 10, IsStrong: false},
	})
	db.BeginSavannaTransition(savGenesis)
	require.Equal(t, UseBoth, db.InUse())

	head, ok := db.Head(true)
	require.True(t, ok)
	require.Equal(t, savGenesis.ID, head.ID, "savanna head takes priority once installed")

	db.DropLegacy()
	require.Equal(t, UseSavanna, db.InUse())
}
