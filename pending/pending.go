// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package pending implements the three-stage block builder: a block
// under construction moves Building -> Assembled -> Completed, using
// an explicit stage field plus switch dispatch rather than a type per
// stage.
package pending

import (
	"errors"
	"time"

	"github.com/luxfi/ids"

	"github.com/luxfi/spring/chain"
)

// Stage is the pending block's current lifecycle position.
type Stage int

const (
	// Building accepts push_transaction calls.
	Building Stage = iota
	// Assembled has a computed transaction_mroot but is not yet signed.
	Assembled
	// Completed is signed and ready for commit_block.
	Completed
)

func (s Stage) String() string {
	switch s {
	case Building:
		return "building"
	case Assembled:
		return "assembled"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

var (
	// ErrWrongStage is returned when an operation is attempted in a
	// stage that does not support it (e.g. push_transaction after
	// assembly).
	ErrWrongStage = errors.New("pending: operation not valid in current stage")
	// ErrDeadlineExceeded is returned when push_transaction is called
	// after the block's assembly deadline has passed.
	ErrDeadlineExceeded = errors.New("pending: block assembly deadline exceeded")
)

// Block is the three-stage tagged union for an in-progress block.
// Exactly one of its stage-specific fields is meaningful at a time;
// behavior is gated on the explicit stage field rather than split
// across three separate Go types.
type Block struct {
	stage Stage

	parent   chain.BlockID
	producer ids.NodeID
	deadline time.Time

	transactions [][]byte
	receipts     [][]byte

	header chain.Header
	block  *chain.Block
}

// NewBuilding starts assembling a block atop parent, due by deadline.
func NewBuilding(parent chain.BlockID, producer ids.NodeID, deadline time.Time) *Block {
	return &Block{
		stage:    Building,
		parent:   parent,
		producer: producer,
		deadline: deadline,
	}
}

// Stage reports the block's current lifecycle position.
func (b *Block) Stage() Stage { return b.stage }

// Parent returns the block this pending block is building on top of.
func (b *Block) Parent() chain.BlockID { return b.parent }

// PushTransaction appends a transaction and its execution receipt
// while the block is in the Building stage.
func (b *Block) PushTransaction(txn, receipt []byte, now time.Time) error {
	if b.stage != Building {
		return ErrWrongStage
	}
	if now.After(b.deadline) {
		return ErrDeadlineExceeded
	}
	b.transactions = append(b.transactions, txn)
	b.receipts = append(b.receipts, receipt)
	return nil
}

// Assemble computes the block's two merkle roots — transaction_mroot
// over the per-transaction receipts, action_mroot over the raw
// transaction bytes — and moves the block to the Assembled stage.
func (b *Block) Assemble(finality *chain.FinalityExtension) error {
	if b.stage != Building {
		return ErrWrongStage
	}
	b.header = chain.Header{
		Timestamp:        b.deadline,
		Producer:         b.producer,
		Previous:         b.parent,
		TransactionMroot: chain.ComputeMerkleRoot(b.receipts),
		ActionMroot:      chain.ComputeMerkleRoot(b.transactions),
		Finality:         finality,
	}
	b.stage = Assembled
	return nil
}

// Complete attaches a producer signature, moving the block to the
// Completed stage and materializing the final chain.Block.
func (b *Block) Complete(signature []byte) (*chain.Block, error) {
	if b.stage != Assembled {
		return nil, ErrWrongStage
	}
	b.block = &chain.Block{
		Header:       b.header,
		Transactions: b.transactions,
		Signature:    signature,
	}
	b.stage = Completed
	return b.block, nil
}

// Block returns the completed block, or nil if assembly hasn't reached
// the Completed stage yet.
func (b *Block) Block() *chain.Block { return b.block }

// Transactions returns the transactions accumulated so far, regardless
// of stage.
func (b *Block) Transactions() [][]byte { return b.transactions }

// Receipts returns the execution receipts accumulated so far, in the
// same order as Transactions.
func (b *Block) Receipts() [][]byte { return b.receipts }
