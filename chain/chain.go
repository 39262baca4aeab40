// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package chain defines the block and block-state types shared by the
// fork database, controller and finality packages, and the sealed
// Legacy/Savanna variant dispatch.
package chain

import (
	"sync/atomic"

	"github.com/luxfi/ids"
)

// Variant is the sealed interface implemented by LegacyState and
// SavannaState. Treating the two regimes as a single interface with two
// implementations keeps migration logic simple: code
// that doesn't care which regime it's in switches on Variant, code that
// does type-switches once at the boundary.
type Variant interface {
	isVariant()
}

// LegacyState is the Variant payload for a block produced under the
// longest-chain DPOS confirmation rule.
type LegacyState struct {
	DPOSIrreversibleBlockNum BlockNum
	ProducerToLastProduced   map[ids.NodeID]BlockNum
}

func (*LegacyState) isVariant() {}

// SavannaState is the Variant payload for a block produced under the
// pipelined BFT / QC regime.
type SavannaState struct {
	LatestQCClaim  QCClaim
	ActivePolicy   *PolicyDiff
	PendingPolicy  *PolicyDiff
	ProposerPolicy *PolicyDiff
}

func (*SavannaState) isVariant() {}

// VM is the external transaction-execution context the controller
// defers to when assembling and applying blocks. Authority checks,
// resource metering and contract ABI encoding all live behind this
// interface — transaction execution itself is an external collaborator.
type VM interface {
	// Execute applies txn against the state rooted at parent, returning
	// the receipt digest to fold into the block's transaction_mroot.
	Execute(parent BlockID, txn []byte) (receipt []byte, err error)
	// Commit persists the execution results staged for block id.
	Commit(id BlockID) error
	// Discard drops staged execution results for id without persisting.
	Discard(id BlockID)
}

// BlockState is the fork-DB node payload: a header plus everything the
// controller and finality packages hang off a block while it is live in
// the fork database.
type BlockState struct {
	ID     BlockID
	Header Header
	Block  *Block

	// TrxMetas caches recovered transaction signing keys so they need
	// not be recomputed on replay.
	TrxMetas [][]byte
	// TrxReceipts holds the per-transaction receipt digests folded into
	// TransactionMroot.
	TrxReceipts [][]byte

	// Valid is this block's leaf in the incremental finality tree, set
	// once the block has been applied.
	Valid *FinalityLeaf

	// ActionMrootSavanna caches the Savanna-form action_mroot computed
	// during a transition block, before the regime has fully switched
	// over.
	ActionMrootSavanna ids.ID

	// AggregatingQC accumulates finalizer votes for this block. Nil
	// until the first vote for this block arrives.
	AggregatingQC *AggregatingQC

	variant Variant

	validated atomic.Bool
}

// FinalityLeaf is the incremental finality-tree leaf attached to a block
// once it has been applied, recording the two-chain ancestry the
// pending-LIB walk needs.
type FinalityLeaf struct {
	BlockNum BlockNum
	Parent   BlockID
}

// AggregatingQC is the per-block vote bitset under construction; it is
// generalized and owned by package finality but referenced here so
// BlockState can hold one without an import cycle.
type AggregatingQC interface {
	// Strong reports whether the accumulated votes form a strong QC.
	Strong() bool
}

// Variant returns the block's Legacy or Savanna payload.
func (bs *BlockState) Variant() Variant { return bs.variant }

// SetVariant installs bs's Legacy or Savanna payload. Called once, at
// construction.
func (bs *BlockState) SetVariant(v Variant) { bs.variant = v }

// Validated reports whether bs has passed header and transaction
// validation.
func (bs *BlockState) Validated() bool { return bs.validated.Load() }

// SetValidated marks bs as validated. Idempotent.
func (bs *BlockState) SetValidated() { bs.validated.Store(true) }

// IsLegacy reports whether bs carries Legacy variant state.
func (bs *BlockState) IsLegacy() bool {
	_, ok := bs.variant.(*LegacyState)
	return ok
}

// IsSavanna reports whether bs carries Savanna variant state.
func (bs *BlockState) IsSavanna() bool {
	_, ok := bs.variant.(*SavannaState)
	return ok
}
