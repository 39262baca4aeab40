// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package controller is the main-thread-owned orchestrator: it drives
// block assembly (start_block -> push_transaction ->
// assemble_and_complete_block -> commit_block) and block application
// (accept_block -> apply_blocks) against a real forkdb.ForkDB and
// pending.Block.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/spring/chain"
	"github.com/luxfi/spring/finality"
	"github.com/luxfi/spring/forkdb"
	"github.com/luxfi/spring/pending"
)

// ForkedCallback replays a transaction unwound from a branch that lost
// the fork race, in the original order it was executed, so the caller
// (typically the transaction pool) can requeue it.
type ForkedCallback func(txn []byte)

// applyYieldInterval bounds how long a single ApplyBlocks call chews
// through a branch before cooperatively yielding back to its caller.
const applyYieldInterval = 500 * time.Millisecond

// ErrIncomplete is returned by ApplyBlocks when it yields partway
// through a branch; the caller should call it again to resume.
var ErrIncomplete = errors.New("controller: apply_blocks yielded before completion")

// Hasher computes a header's block id. Kept as an injected function so
// chain doesn't need to depend on a specific hash implementation.
type Hasher func(chain.Header) [32]byte

// Controller owns the fork database, the in-flight pending block, and
// the finality vote processor — the single logical actor that mutates
// chain state, analogous to the main thread in the concurrency model.
type Controller struct {
	mu sync.Mutex

	log     log.Logger
	metrics *Metrics
	hash    Hasher
	vm      chain.VM

	db      *forkdb.ForkDB
	votes   *finality.VoteProcessor
	pending *pending.Block

	// head is the block id the controller has actually applied and
	// committed through the VM, as distinct from the fork database's
	// best head, which may run ahead of it until ApplyBlocks catches
	// up.
	head         chain.BlockID
	irreversible chain.BlockID
}

// New creates a controller over an already-rooted fork database.
func New(logger log.Logger, metrics *Metrics, hash Hasher, vm chain.VM, db *forkdb.ForkDB, votes *finality.VoteProcessor) *Controller {
	c := &Controller{
		log:     logger.With("component", "controller"),
		metrics: metrics,
		hash:    hash,
		vm:      vm,
		db:      db,
		votes:   votes,
	}
	if root, ok := db.Root(); ok {
		c.head = root.ID
	}
	return c
}

// StartBlock begins assembling a new block on top of the current
// preferred head, due by deadline.
func (c *Controller) StartBlock(producer ids.NodeID, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != nil {
		return ErrAlreadyBuilding
	}
	head, ok := c.db.Head(true)
	if !ok {
		return fmt.Errorf("controller: %w", forkdb.ErrUnknown)
	}
	c.pending = pending.NewBuilding(head.ID, producer, deadline)
	c.log.Debug("started block", "parent", head.ID.String(), "deadline", deadline)
	return nil
}

// PushTransaction executes txn against the pending block's parent state
// and appends its receipt, failing if there is no pending block or its
// deadline has passed.
func (c *Controller) PushTransaction(ctx context.Context, txn []byte, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		return ErrNotBuilding
	}
	receipt, err := c.vm.Execute(c.pending.Parent(), txn)
	if err != nil {
		return fmt.Errorf("controller: execute transaction: %w", err)
	}
	if err := c.pending.PushTransaction(txn, receipt, now); err != nil {
		return err
	}
	return nil
}

// AssembleAndCompleteBlock computes the pending block's merkle roots,
// signs it, and returns the completed chain.Block without yet inserting
// it into the fork database — that happens at CommitBlock.
func (c *Controller) AssembleAndCompleteBlock(finalityExt *chain.FinalityExtension, sign func(chain.Header) []byte) (*chain.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		return nil, ErrNotBuilding
	}
	if err := c.pending.Assemble(finalityExt); err != nil {
		return nil, err
	}
	blk, err := c.pending.Complete(nil)
	if err != nil {
		return nil, err
	}
	blk.Signature = sign(blk.Header)
	return blk, nil
}

// CommitBlock inserts the completed pending block into the fork
// database and clears the pending slot.
func (c *Controller) CommitBlock() (chain.BlockID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil || c.pending.Stage() != pending.Completed {
		return chain.BlockID{}, ErrNotBuilding
	}
	blk := c.pending.Block()
	id := chain.BlockID(c.hash(blk.Header))
	bs := &chain.BlockState{ID: id, Header: blk.Header, Block: blk, TrxReceipts: c.pending.Receipts()}
	bs.SetVariant(variantFor(blk.Header))
	bs.SetValidated()

	if _, err := c.db.Add(bs, false); err != nil {
		c.metrics.BlocksRejected.Inc()
		return chain.BlockID{}, fmt.Errorf("controller: commit block: %w", err)
	}
	if err := c.vm.Commit(id); err != nil {
		c.metrics.BlocksRejected.Inc()
		return chain.BlockID{}, fmt.Errorf("controller: commit block: %w", err)
	}
	c.metrics.BlocksApplied.Inc()
	c.pending = nil
	c.head = id
	c.log.Info("committed block", "id", id.String(), "num", id.Num())
	return id, nil
}

// AbortBlock drops the in-flight pending block without committing it.
func (c *Controller) AbortBlock() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
}

// AcceptBlock validates and inserts a peer-received block into the
// fork database.
func (c *Controller) AcceptBlock(blk *chain.Block) (chain.BlockID, forkdb.AddResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := chain.BlockID(c.hash(blk.Header))
	parent, ok := c.db.GetBlock(chain.BlockID(blk.Header.Previous))
	if !ok {
		return id, 0, forkdb.ErrMissingParent
	}
	if id.Num() != parent.ID.Num()+1 {
		return id, 0, chain.ErrBadBlockNum
	}
	if err := chain.CheckQCClaim(&blk.Header, &parent.Header); err != nil {
		c.metrics.BlocksRejected.Inc()
		return id, 0, err
	}

	bs := &chain.BlockState{ID: id, Header: blk.Header, Block: blk}
	bs.SetVariant(variantFor(blk.Header))

	result, err := c.db.Add(bs, true)
	if err != nil {
		c.metrics.BlocksRejected.Inc()
		return id, result, err
	}
	return id, result, nil
}

// ApplyBlocks drives the controller's applied chain up to the fork
// database's current best head. If the best head descends from a
// different branch than the one already applied, it first unwinds the
// stale branch root-ward — discarding each popped block's staged
// execution and replaying its transactions through forkedCb, in their
// original order, oldest block first — then applies the new branch
// leaf-ward: re-executing every transaction, recomputing and checking
// both merkle roots and the qc_claim proof invariant against the
// block's header, and committing on success.
//
// A block that fails to apply is removed from the fork database and
// ApplyBlocks returns immediately without advancing past the last
// block it applied successfully; since head only ever advances on
// success, the controller is left on that known-good block and the
// next ApplyBlocks call re-derives whatever branch is now preferred.
//
// ApplyBlocks cooperatively yields ErrIncomplete roughly every 500ms
// so a caller driving it from a single-threaded loop doesn't stall
// other work; call it again to resume from where it left off.
func (c *Controller) ApplyBlocks(ctx context.Context, forkedCb ForkedCallback) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	newHead, ok := c.db.Head(true)
	if !ok {
		return fmt.Errorf("controller: %w", forkdb.ErrUnknown)
	}
	if newHead.ID == c.head {
		return nil
	}

	toApply, toUnwind, err := c.db.FetchBranchFrom(newHead.ID, c.head)
	if err != nil {
		return fmt.Errorf("controller: fetch branch: %w", err)
	}

	if len(toUnwind) > 0 {
		c.metrics.ForkSwitches.Inc()
		// toUnwind is leaf-to-root; replay in root-to-leaf (original
		// execution) order.
		for i := len(toUnwind) - 1; i >= 0; i-- {
			bs := toUnwind[i]
			c.vm.Discard(bs.ID)
			for _, txn := range bs.Block.Transactions {
				forkedCb(txn)
			}
		}
		c.head = toUnwind[len(toUnwind)-1].Header.Previous
	}

	deadline := time.Now().Add(applyYieldInterval)
	for _, bs := range toApply {
		if err := c.applyOneLocked(bs); err != nil {
			if removeErr := c.db.Remove(bs.ID); removeErr != nil {
				c.log.Warn("failed to remove invalid block", "id", bs.ID.String(), "err", removeErr)
			}
			c.metrics.BlocksRejected.Inc()
			return fmt.Errorf("controller: apply block %s: %w", bs.ID, err)
		}
		c.head = bs.ID
		c.metrics.BlocksApplied.Inc()
		if head, ok := c.db.Head(false); ok {
			c.metrics.HeadNum.Set(float64(head.ID.Num()))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if time.Now().After(deadline) {
			return ErrIncomplete
		}
	}
	return nil
}

// applyOneLocked re-executes bs's transactions against its parent
// state, validates both merkle roots and the qc_claim proof invariant
// against its header, and commits the result. Called with c.mu held.
func (c *Controller) applyOneLocked(bs *chain.BlockState) error {
	parent, ok := c.db.GetBlock(bs.Header.Previous)
	if !ok {
		return chain.ErrUnlinkableBlock
	}

	receipts := make([][]byte, 0, len(bs.Block.Transactions))
	for _, txn := range bs.Block.Transactions {
		receipt, err := c.vm.Execute(bs.Header.Previous, txn)
		if err != nil {
			c.vm.Discard(bs.ID)
			return fmt.Errorf("execute transaction: %w", err)
		}
		receipts = append(receipts, receipt)
	}

	if got := chain.ComputeMerkleRoot(receipts); got != bs.Header.TransactionMroot {
		c.vm.Discard(bs.ID)
		return fmt.Errorf("%w: transaction_mroot", chain.ErrMerkleMismatch)
	}
	if got := chain.ComputeMerkleRoot(bs.Block.Transactions); got != bs.Header.ActionMroot {
		c.vm.Discard(bs.ID)
		return fmt.Errorf("%w: action_mroot", chain.ErrMerkleMismatch)
	}
	if err := chain.CheckQCClaim(&bs.Header, &parent.Header); err != nil {
		c.vm.Discard(bs.ID)
		return err
	}

	if err := c.vm.Commit(bs.ID); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	bs.TrxReceipts = receipts
	bs.SetValidated()
	return nil
}

// LogIrreversible advances and records the controller's notion of LIB,
// pruning the fork database root up to it.
func (c *Controller) LogIrreversible(id chain.BlockID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.db.AdvanceRoot(id); err != nil {
		return fmt.Errorf("controller: advance root to %s: %w", id, err)
	}
	c.irreversible = id
	c.metrics.IrreversibleNum.Set(float64(id.Num()))
	c.log.Info("advanced irreversible block", "id", id.String(), "num", id.Num())
	return nil
}

// Irreversible returns the last block id passed to LogIrreversible.
func (c *Controller) Irreversible() chain.BlockID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.irreversible
}

// TransitionToSavanna installs a Savanna engine rooted at genesis
// alongside the still-live Legacy engine (the migration
// window).
func (c *Controller) TransitionToSavanna(genesis *chain.BlockState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.db.BeginSavannaTransition(genesis)
	c.log.Info("began savanna transition", "genesis", genesis.ID.String())
}

func variantFor(h chain.Header) chain.Variant {
	if h.Finality == nil {
		return &chain.LegacyState{}
	}
	return &chain.SavannaState{LatestQCClaim: h.Finality.QCClaim}
}
