// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package finality

import (
	"errors"
	"sync"

	"github.com/luxfi/ids"

	"github.com/luxfi/spring/chain"
	"github.com/luxfi/spring/quorum"
)

var (
	// ErrUnknownFinalizer is returned when a vote's signer is not a
	// member of the active (or pending) finalizer policy.
	ErrUnknownFinalizer = errors.New("finality: vote signer is not a finalizer")
	// ErrBadSignature is returned when a vote's signature fails
	// verification.
	ErrBadSignature = errors.New("finality: bad vote signature")
	// ErrAlreadyFinalized names a vote for a block num already
	// superseded by a later strong QC. AddVote does not check for this
	// case and does not return it.
	ErrAlreadyFinalized = errors.New("finality: block already has a stronger QC")
)

// Vote is a single finalizer's signed endorsement of a block, the
// wire-level payload behind the vote_message tag.
type Vote struct {
	BlockNum  chain.BlockNum
	Finalizer ids.NodeID
	Signature []byte
	Strong    bool
}

// AggregatingQC is the per-block vote accumulator BlockState.AggregatingQC
// points to; it implements chain.AggregatingQC so the fork database can
// ask whether a block's votes have reached a strong quorum without
// importing package finality.
type AggregatingQC struct {
	mu       sync.Mutex
	blockNum chain.BlockNum
	active   *Policy
	pending  *Policy
	verifier Verifier
	digest   ids.ID

	strongTracker *quorum.DualWeightedThreshold
	weakTracker   *quorum.WeightedThreshold
	seen          map[ids.NodeID]bool
}

// NewAggregatingQC creates a vote accumulator for blockNum under the
// given active (and optional pending) finalizer policy.
func NewAggregatingQC(blockNum chain.BlockNum, digest ids.ID, active, pending *Policy, verifier Verifier) *AggregatingQC {
	return &AggregatingQC{
		blockNum:      blockNum,
		active:        active,
		pending:       pending,
		verifier:      verifier,
		digest:        digest,
		strongTracker: quorumThreshold(active, pending),
		weakTracker:   quorum.NewWeightedThreshold(active.Threshold),
		seen:          make(map[ids.NodeID]bool),
	}
}

// AddVote verifies and folds a single finalizer vote into the
// accumulator. Strong votes count toward both the strong and weak
// trackers; weak votes count toward the weak tracker only — weak QCs
// meet only liveness conditions.
func (a *AggregatingQC) AddVote(v Vote) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx, key := a.findFinalizer(v.Finalizer)
	if idx < 0 {
		return ErrUnknownFinalizer
	}
	if a.verifier != nil && !a.verifier.Verify(key.PublicKey, a.digest, v.Signature) {
		return ErrBadSignature
	}
	if a.seen[v.Finalizer] {
		return nil
	}
	a.seen[v.Finalizer] = true

	// A finalizer found only in the pending policy carries no
	// active-policy weight.
	var activeWeight uint64
	for _, f := range a.active.Finalizers {
		if f.NodeID == v.Finalizer {
			activeWeight = f.Weight
			break
		}
	}
	a.weakTracker.Add(v.Finalizer, activeWeight)
	if v.Strong {
		pendingWeight := a.pendingWeightFor(v.Finalizer)
		a.strongTracker.Add(v.Finalizer, activeWeight, pendingWeight)
	}
	return nil
}

func (a *AggregatingQC) findFinalizer(nodeID ids.NodeID) (int, chain.FinalizerKey) {
	// active policy positions take precedence; a finalizer present in
	// both active and pending uses its active-policy weight as the key
	// lookup anchor, with pending weight resolved separately.
	for i, f := range a.active.Finalizers {
		if f.NodeID == nodeID {
			return i, f
		}
	}
	if a.pending != nil {
		for i, f := range a.pending.Finalizers {
			if f.NodeID == nodeID {
				return i, f
			}
		}
	}
	return -1, chain.FinalizerKey{}
}

func (a *AggregatingQC) pendingWeightFor(nodeID ids.NodeID) uint64 {
	if a.pending == nil {
		return 0
	}
	for _, f := range a.pending.Finalizers {
		if f.NodeID == nodeID {
			return f.Weight
		}
	}
	return 0
}

// Strong reports whether the accumulated strong votes cross both the
// active and (if present) pending policy thresholds.
func (a *AggregatingQC) Strong() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.strongTracker.Strong()
}

// QC materializes the current accumulator state into a QC value:
// IsStrong reports Strong(), and Bitset marks each active-policy
// finalizer that has cast a vote, strong or weak.
func (a *AggregatingQC) QC() QC {
	a.mu.Lock()
	defer a.mu.Unlock()

	strong := a.strongTracker.Strong()
	bitset := make([]bool, len(a.active.Finalizers))
	for i, f := range a.active.Finalizers {
		if a.seen[f.NodeID] {
			bitset[i] = true
		}
	}
	return QC{
		BlockNum: a.blockNum,
		IsStrong: strong,
		Bitset:   bitset,
	}
}

var _ chain.AggregatingQC = (*AggregatingQC)(nil)

// VoteProcessor routes incoming votes to the right block's
// AggregatingQC, creating one on first sight of a vote for that block
// per block.
type VoteProcessor struct {
	mu         sync.Mutex
	byBlock    map[chain.BlockID]*AggregatingQC
	newTracker func(chain.BlockID) (*AggregatingQC, error)
}

// NewVoteProcessor creates a processor that lazily builds an
// AggregatingQC via newTracker the first time a vote for a block
// arrives.
func NewVoteProcessor(newTracker func(chain.BlockID) (*AggregatingQC, error)) *VoteProcessor {
	return &VoteProcessor{
		byBlock:    make(map[chain.BlockID]*AggregatingQC),
		newTracker: newTracker,
	}
}

// ProcessVote routes v to blockID's accumulator, creating it if this is
// the first vote seen for that block.
func (p *VoteProcessor) ProcessVote(blockID chain.BlockID, v Vote) error {
	p.mu.Lock()
	aggr, ok := p.byBlock[blockID]
	if !ok {
		var err error
		aggr, err = p.newTracker(blockID)
		if err != nil {
			p.mu.Unlock()
			return err
		}
		p.byBlock[blockID] = aggr
	}
	p.mu.Unlock()
	return aggr.AddVote(v)
}

// Get returns the accumulator for blockID, if one has been created.
func (p *VoteProcessor) Get(blockID chain.BlockID) (*AggregatingQC, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	aggr, ok := p.byBlock[blockID]
	return aggr, ok
}

// Forget discards blockID's accumulator, called once the block has
// been finalized or pruned.
func (p *VoteProcessor) Forget(blockID chain.BlockID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.byBlock, blockID)
}
