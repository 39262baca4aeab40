// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package finality

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"

	"github.com/luxfi/spring/chain"
)

type acceptAllVerifier struct{}

func (acceptAllVerifier) Verify([]byte, ids.ID, []byte) bool { return true }

func testPolicy(weights ...uint64) (*Policy, []ids.NodeID) {
	p := &Policy{Generation: 1, Finalizers: make([]chain.FinalizerKey, len(weights))}
	nodes := make([]ids.NodeID, len(weights))
	var total uint64
	for i, w := range weights {
		nodes[i] = ids.GenerateTestNodeID()
		p.Finalizers[i] = chain.FinalizerKey{NodeID: nodes[i], Weight: w}
		total += w
	}
	p.Threshold = total*2/3 + 1
	return p, nodes
}

func TestAggregatingQCStrongRequiresThreshold(t *testing.T) {
	active, nodes := testPolicy(10, 10, 10, 10)
	aggr := NewAggregatingQC(5, ids.GenerateTestID(), active, nil, acceptAllVerifier{})

	require.NoError(t, aggr.AddVote(Vote{BlockNum: 5, Finalizer: nodes[0], Strong: true}))
	require.False(t, aggr.Strong())

	require.NoError(t, aggr.AddVote(Vote{BlockNum: 5, Finalizer: nodes[1], Strong: true}))
	require.False(t, aggr.Strong())

	require.NoError(t, aggr.AddVote(Vote{BlockNum: 5, Finalizer: nodes[2], Strong: true}))
	require.True(t, aggr.Strong(), "3 of 4 equal-weight finalizers crosses a 2/3+1 threshold")
}

func TestAggregatingQCUnknownFinalizerRejected(t *testing.T) {
	active, _ := testPolicy(10, 10, 10)
	aggr := NewAggregatingQC(1, ids.GenerateTestID(), active, nil, acceptAllVerifier{})

	err := aggr.AddVote(Vote{BlockNum: 1, Finalizer: ids.GenerateTestNodeID(), Strong: true})
	require.ErrorIs(t, err, ErrUnknownFinalizer)
}

func TestAggregatingQCDualThresholdNeedsBoth(t *testing.T) {
	active, activeNodes := testPolicy(10, 10, 10, 10)
	pending, pendingNodes := testPolicy(50)

	aggr := NewAggregatingQC(9, ids.GenerateTestID(), active, pending, acceptAllVerifier{})

	// Three of four active finalizers vote strong, crossing the active
	// threshold, but none of them is the lone pending-policy finalizer.
	for i := 0; i < 3; i++ {
		require.NoError(t, aggr.AddVote(Vote{BlockNum: 9, Finalizer: activeNodes[i], Strong: true}))
	}
	require.False(t, aggr.Strong(), "pending policy threshold unmet should block strong QC")

	require.NoError(t, aggr.AddVote(Vote{BlockNum: 9, Finalizer: pendingNodes[0], Strong: true}))
	require.True(t, aggr.Strong(), "pending finalizer's vote meets the pending threshold while the active threshold stays met")
}

func TestVoteProcessorLazilyCreatesAccumulator(t *testing.T) {
	active, nodes := testPolicy(10, 10, 10)
	blockID := chain.BlockID(ids.GenerateTestID())

	calls := 0
	vp := NewVoteProcessor(func(chain.BlockID) (*AggregatingQC, error) {
		calls++
		return NewAggregatingQC(1, ids.GenerateTestID(), active, nil, acceptAllVerifier{}), nil
	})

	require.NoError(t, vp.ProcessVote(blockID, Vote{BlockNum: 1, Finalizer: nodes[0], Strong: true}))
	require.NoError(t, vp.ProcessVote(blockID, Vote{BlockNum: 1, Finalizer: nodes[1], Strong: true}))
	require.NoError(t, vp.ProcessVote(blockID, Vote{BlockNum: 1, Finalizer: nodes[2], Strong: true}))
	require.Equal(t, 1, calls, "later votes for the same block reuse the existing accumulator")

	aggr, ok := vp.Get(blockID)
	require.True(t, ok)
	require.True(t, aggr.Strong())

	vp.Forget(blockID)
	_, ok = vp.Get(blockID)
	require.False(t, ok)
}
