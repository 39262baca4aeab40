// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pending

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"

	"github.com/luxfi/spring/chain"
)

func TestBlockLifecycle(t *testing.T) {
	parent := chain.BlockID{1}
	producer := ids.GenerateTestNodeID()
	deadline := time.Now().Add(time.Second)

	b := NewBuilding(parent, producer, deadline)
	require.Equal(t, Building, b.Stage())
	require.Equal(t, parent, b.Parent())

	require.NoError(t, b.PushTransaction([]byte("txn-1"), []byte("receipt-1"), time.Now()))
	require.NoError(t, b.PushTransaction([]byte("txn-2"), []byte("receipt-2"), time.Now()))
	require.Equal(t, [][]byte{[]byte("txn-1"), []byte("txn-2")}, b.Transactions())
	require.Equal(t, [][]byte{[]byte("receipt-1"), []byte("receipt-2")}, b.Receipts())

	require.NoError(t, b.Assemble(nil))
	require.Equal(t, Assembled, b.Stage())

	blk, err := b.Complete([]byte("sig"))
	require.NoError(t, err)
	require.Equal(t, Completed, b.Stage())
	require.Equal(t, producer, blk.Header.Producer)
	require.Equal(t, parent, blk.Header.Previous)
	require.Len(t, blk.Transactions, 2)
	require.Same(t, blk, b.Block())
}

func TestBlockMrootMatchesComputeMerkleRoot(t *testing.T) {
	b := NewBuilding(chain.BlockID{}, ids.GenerateTestNodeID(), time.Now().Add(time.Second))
	require.NoError(t, b.PushTransaction([]byte("txn-1"), []byte("receipt-1"), time.Now()))

	require.NoError(t, b.Assemble(nil))
	blk, err := b.Complete([]byte("sig"))
	require.NoError(t, err)

	require.Equal(t, chain.ComputeMerkleRoot([][]byte{[]byte("receipt-1")}), blk.Header.TransactionMroot)
	require.Equal(t, chain.ComputeMerkleRoot([][]byte{[]byte("txn-1")}), blk.Header.ActionMroot)
}

func TestBlockPushTransactionRequiresBuildingStage(t *testing.T) {
	b := NewBuilding(chain.BlockID{}, ids.GenerateTestNodeID(), time.Now().Add(time.Second))
	require.NoError(t, b.Assemble(nil))

	err := b.PushTransaction([]byte("txn"), []byte("receipt"), time.Now())
	require.ErrorIs(t, err, ErrWrongStage)
}

func TestBlockPushTransactionRejectsPastDeadline(t *testing.T) {
	b := NewBuilding(chain.BlockID{}, ids.GenerateTestNodeID(), time.Now().Add(-time.Second))
	err := b.PushTransaction([]byte("txn"), []byte("receipt"), time.Now())
	require.ErrorIs(t, err, ErrDeadlineExceeded)
}

func TestBlockCompleteRequiresAssembledStage(t *testing.T) {
	b := NewBuilding(chain.BlockID{}, ids.GenerateTestNodeID(), time.Now().Add(time.Second))
	_, err := b.Complete([]byte("sig"))
	require.ErrorIs(t, err, ErrWrongStage)
}
