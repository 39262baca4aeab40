// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package controller

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"

	"github.com/luxfi/spring/chain"
	"github.com/luxfi/spring/finality"
	"github.com/luxfi/spring/forkdb"
	logpkg "github.com/luxfi/spring/log"
)

type stubVM struct{}

func (stubVM) Execute(chain.BlockID, []byte) ([]byte, error) { return []byte("receipt"), nil }
func (stubVM) Commit(chain.BlockID) error                    { return nil }
func (stubVM) Discard(chain.BlockID)                         {}

func blockIDFor(num uint32, salt byte) chain.BlockID {
	var id chain.BlockID
	binary.BigEndian.PutUint32(id[:4], num)
	id[31] = salt
	return id
}

func hashHeader(counter *uint32) Hasher {
	return func(h chain.Header) [32]byte {
		*counter++
		id := blockIDFor(h.Previous.Num()+1, byte(*counter))
		return [32]byte(id)
	}
}

func newTestController(t *testing.T) (*Controller, chain.BlockID) {
	genesis := &chain.BlockState{ID: blockIDFor(0, 0)}
	genesis.SetVariant(&chain.LegacyState{})
	genesis.SetValidated()

	db := forkdb.NewLegacy(genesis)
	votes := finality.NewVoteProcessor(func(chain.BlockID) (*finality.AggregatingQC, error) {
		return nil, nil
	})
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	var counter uint32
	c := New(logpkg.NewNoOpLogger(), metrics, hashHeader(&counter), stubVM{}, db, votes)
	return c, genesis.ID
}

func TestControllerAssemblyPipeline(t *testing.T) {
	c, _ := newTestController(t)

	require.NoError(t, c.StartBlock(ids.GenerateTestNodeID(), time.Now().Add(time.Second)))
	require.ErrorIs(t, c.StartBlock(ids.GenerateTestNodeID(), time.Now().Add(time.Second)), ErrAlreadyBuilding)

	require.NoError(t, c.PushTransaction(context.Background(), []byte("txn-1"), time.Now()))

	blk, err := c.AssembleAndCompleteBlock(nil, func(chain.Header) []byte { return []byte("sig") })
	require.NoError(t, err)
	require.Len(t, blk.Transactions, 1)

	id, err := c.CommitBlock()
	require.NoError(t, err)
	require.Equal(t, chain.BlockNum(1), id.Num())

	// Starting a new block after commit should succeed again.
	require.NoError(t, c.StartBlock(ids.GenerateTestNodeID(), time.Now().Add(time.Second)))
}

func TestControllerPushTransactionRequiresPendingBlock(t *testing.T) {
	c, _ := newTestController(t)
	err := c.PushTransaction(context.Background(), []byte("txn"), time.Now())
	require.ErrorIs(t, err, ErrNotBuilding)
}

func newBlock(parent chain.BlockID, txn, receipt []byte) *chain.Block {
	return &chain.Block{
		Header: chain.Header{
			Previous:         parent,
			TransactionMroot: chain.ComputeMerkleRoot([][]byte{receipt}),
			ActionMroot:      chain.ComputeMerkleRoot([][]byte{txn}),
		},
		Transactions: [][]byte{txn},
	}
}

func TestControllerAcceptAndApplyBlocks(t *testing.T) {
	c, genesisID := newTestController(t)

	txn, receipt := []byte("txn-1"), []byte("receipt")
	id, result, err := c.AcceptBlock(newBlock(genesisID, txn, receipt))
	require.NoError(t, err)
	require.Equal(t, forkdb.AppendedToHead, result)

	require.NoError(t, c.ApplyBlocks(context.Background(), nil))

	applied, ok := c.db.GetBlock(id)
	require.True(t, ok)
	require.True(t, applied.Validated())
	require.Equal(t, [][]byte{receipt}, applied.TrxReceipts)
}

func TestControllerApplyBlocksRejectsBadMerkle(t *testing.T) {
	c, genesisID := newTestController(t)

	blk := newBlock(genesisID, []byte("txn-1"), []byte("receipt"))
	id, result, err := c.AcceptBlock(blk)
	require.NoError(t, err)
	require.Equal(t, forkdb.AppendedToHead, result)

	// Corrupt the staged block's transaction after acceptance, so the
	// recomputed root disagrees with the header's action_mroot.
	bs, ok := c.db.GetBlock(id)
	require.True(t, ok)
	bs.Block.Transactions = [][]byte{[]byte("tampered")}

	err = c.ApplyBlocks(context.Background(), nil)
	require.ErrorIs(t, err, chain.ErrMerkleMismatch)
}

func TestControllerApplyBlocksReplaysForkedTransactions(t *testing.T) {
	c, genesisID := newTestController(t)

	txnMain, receipt := []byte("txn-main"), []byte("receipt")
	mainID, result, err := c.AcceptBlock(newBlock(genesisID, txnMain, receipt))
	require.NoError(t, err)
	require.Equal(t, forkdb.AppendedToHead, result)
	require.NoError(t, c.ApplyBlocks(context.Background(), nil))

	alt1ID, _, err := c.AcceptBlock(newBlock(genesisID, []byte("txn-alt-1"), receipt))
	require.NoError(t, err)

	alt2ID, result, err := c.AcceptBlock(newBlock(alt1ID, []byte("txn-alt-2"), receipt))
	require.NoError(t, err)
	require.Equal(t, forkdb.ForkSwitch, result)

	var replayed [][]byte
	require.NoError(t, c.ApplyBlocks(context.Background(), func(txn []byte) {
		replayed = append(replayed, txn)
	}))
	require.Equal(t, [][]byte{txnMain}, replayed)

	applied, ok := c.db.GetBlock(alt2ID)
	require.True(t, ok)
	require.True(t, applied.Validated())

	// The old main branch is no longer reachable as the applied head.
	require.NoError(t, c.ApplyBlocks(context.Background(), nil))
}

func TestControllerLogIrreversibleAdvancesRoot(t *testing.T) {
	c, genesisID := newTestController(t)

	require.NoError(t, c.StartBlock(ids.GenerateTestNodeID(), time.Now().Add(time.Second)))
	_, err := c.AssembleAndCompleteBlock(nil, func(chain.Header) []byte { return []byte("sig") })
	require.NoError(t, err)
	id, err := c.CommitBlock()
	require.NoError(t, err)

	require.NoError(t, c.LogIrreversible(id))
	require.Equal(t, id, c.Irreversible())
	require.NotEqual(t, genesisID, c.Irreversible())
}
