// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package forkdb is the in-memory block DAG the controller assembles
// and applies blocks against. It tracks every block between the current
// root (at-or-before LIB) and the known heads, dispatching through a
// single Engine interface with a Legacy and a Savanna implementation
// (treating the two engines as a single abstract interface with two
// implementations, switched at a single gate).
package forkdb

import (
	"errors"
	"sync"

	"github.com/luxfi/ids"

	"github.com/luxfi/spring/chain"
)

// AddResult reports how add placed a block relative to the current
// head.
type AddResult int

const (
	AddedToFork AddResult = iota
	AppendedToHead
	ForkSwitch
	Duplicate
)

var (
	// ErrForkDatabase wraps all structural violations: missing parent,
	// orphan advance_root, root mismatch with the block log.
	ErrForkDatabase  = errors.New("forkdb: fork database exception")
	ErrMissingParent = errors.New("forkdb: parent not present")
	ErrNotDescendant = errors.New("forkdb: advance_root target is not a descendant of current root")
	ErrUnknown       = errors.New("forkdb: unknown block")
)

// Ordering compares two candidate heads and reports whether a should be
// preferred over b, implementing the variant-specific best-head rule of
// the fork database.
type Ordering func(a, b *chain.BlockState) bool

// Engine is the uniform interface both the Legacy and Savanna fork
// database variants implement, so forkdb.ForkDB can dispatch to
// whichever is live without its callers caring which.
type Engine interface {
	Add(bs *chain.BlockState, ignoreDuplicate bool) (AddResult, error)
	GetBlock(id chain.BlockID) (*chain.BlockState, bool)
	FetchBranch(head chain.BlockID, stop chain.BlockID) ([]*chain.BlockState, error)
	FetchBranchFrom(newHead, oldHead chain.BlockID) (toApply, toUnwind []*chain.BlockState, err error)
	SearchOnBranch(head chain.BlockID, num chain.BlockNum) (*chain.BlockState, bool)
	Head(includeRoot bool) (*chain.BlockState, bool)
	AdvanceRoot(id chain.BlockID) error
	Remove(id chain.BlockID) error
	Root() (*chain.BlockState, bool)
}

// engine is the common map/parent-pointer implementation shared by the
// Legacy and Savanna variants; they differ only in Ordering (grounded on
// dag.DAG's map+RWMutex+tips shape, generalized from a flat tip-set to a
// full ancestor-walkable node map, as engine/chain/tree.go's Tree also
// guards all mutation behind one mutex per shared map).
type engine struct {
	mu       sync.RWMutex
	nodes    map[chain.BlockID]*chain.BlockState
	children map[chain.BlockID][]chain.BlockID
	root     chain.BlockID
	ordering Ordering
}

func newEngine(genesis *chain.BlockState, ordering Ordering) *engine {
	e := &engine{
		nodes:    make(map[chain.BlockID]*chain.BlockState),
		children: make(map[chain.BlockID][]chain.BlockID),
		root:     genesis.ID,
		ordering: ordering,
	}
	e.nodes[genesis.ID] = genesis
	return e
}

func (e *engine) Add(bs *chain.BlockState, ignoreDuplicate bool) (AddResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[bs.ID]; exists {
		if ignoreDuplicate {
			return Duplicate, nil
		}
		return Duplicate, nil
	}
	if _, ok := e.nodes[bs.Header.Previous]; !ok {
		return 0, ErrMissingParent
	}

	oldHead, _ := e.headLocked(false)

	e.nodes[bs.ID] = bs
	e.children[bs.Header.Previous] = append(e.children[bs.Header.Previous], bs.ID)

	if oldHead == nil || oldHead.ID == bs.Header.Previous {
		return AppendedToHead, nil
	}
	newHead, _ := e.headLocked(false)
	if newHead != nil && newHead.ID == bs.ID {
		return ForkSwitch, nil
	}
	return AddedToFork, nil
}

func (e *engine) GetBlock(id chain.BlockID) (*chain.BlockState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	bs, ok := e.nodes[id]
	return bs, ok
}

func (e *engine) FetchBranch(head, stop chain.BlockID) ([]*chain.BlockState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []*chain.BlockState
	cur := head
	for {
		bs, ok := e.nodes[cur]
		if !ok {
			return nil, ErrUnknown
		}
		out = append(out, bs)
		if cur == stop || cur == e.root {
			return out, nil
		}
		cur = bs.Header.Previous
	}
}

func (e *engine) FetchBranchFrom(newHead, oldHead chain.BlockID) ([]*chain.BlockState, []*chain.BlockState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ancestors := func(id chain.BlockID) (map[chain.BlockID]int, error) {
		depth := make(map[chain.BlockID]int)
		cur, d := id, 0
		for {
			bs, ok := e.nodes[cur]
			if !ok {
				return nil, ErrUnknown
			}
			depth[cur] = d
			if cur == e.root {
				return depth, nil
			}
			cur = bs.Header.Previous
			d++
		}
	}

	newAnc, err := ancestors(newHead)
	if err != nil {
		return nil, nil, err
	}
	oldAnc, err := ancestors(oldHead)
	if err != nil {
		return nil, nil, err
	}

	var common chain.BlockID
	found := false
	cur := newHead
	for {
		if _, ok := oldAnc[cur]; ok {
			common = cur
			found = true
			break
		}
		bs := e.nodes[cur]
		if cur == e.root {
			break
		}
		cur = bs.Header.Previous
	}
	if !found {
		common = e.root
	}
	_ = newAnc

	var toApply []*chain.BlockState
	for cur := newHead; cur != common; cur = e.nodes[cur].Header.Previous {
		toApply = append([]*chain.BlockState{e.nodes[cur]}, toApply...)
	}
	var toUnwind []*chain.BlockState
	for cur := oldHead; cur != common; cur = e.nodes[cur].Header.Previous {
		toUnwind = append(toUnwind, e.nodes[cur])
	}
	return toApply, toUnwind, nil
}

func (e *engine) SearchOnBranch(head chain.BlockID, num chain.BlockNum) (*chain.BlockState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cur := head
	for {
		bs, ok := e.nodes[cur]
		if !ok {
			return nil, false
		}
		if bs.ID.Num() == num {
			return bs, true
		}
		if cur == e.root {
			return nil, false
		}
		cur = bs.Header.Previous
	}
}

func (e *engine) Head(includeRoot bool) (*chain.BlockState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.headLocked(includeRoot)
}

func (e *engine) headLocked(includeRoot bool) (*chain.BlockState, bool) {
	var best *chain.BlockState
	for id, bs := range e.nodes {
		if id == e.root && !includeRoot {
			continue
		}
		if best == nil || e.ordering(bs, best) {
			best = bs
		}
	}
	return best, best != nil
}

func (e *engine) Root() (*chain.BlockState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	bs, ok := e.nodes[e.root]
	return bs, ok
}

func (e *engine) AdvanceRoot(id chain.BlockID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.nodes[id]; !ok {
		return ErrUnknown
	}

	keep := make(map[chain.BlockID]bool)
	for cur := id; ; {
		keep[cur] = true
		if cur == e.root {
			break
		}
		bs, ok := e.nodes[cur]
		if !ok {
			return ErrNotDescendant
		}
		cur = bs.Header.Previous
	}

	for nodeID := range e.nodes {
		if !keep[nodeID] && !e.isDescendantLocked(nodeID, id) {
			delete(e.nodes, nodeID)
			delete(e.children, nodeID)
		}
	}
	e.root = id
	return nil
}

func (e *engine) isDescendantLocked(id, ancestor chain.BlockID) bool {
	for cur := id; ; {
		bs, ok := e.nodes[cur]
		if !ok {
			return false
		}
		if cur == ancestor {
			return true
		}
		if cur == e.root {
			return cur == ancestor
		}
		cur = bs.Header.Previous
	}
}

func (e *engine) Remove(id chain.BlockID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if id == e.root {
		return ErrForkDatabase
	}
	var stack []chain.BlockID
	stack = append(stack, id)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		stack = append(stack, e.children[cur]...)
		delete(e.nodes, cur)
		delete(e.children, cur)
	}
	return nil
}

// legacyOrdering implements the Legacy best-head rule: highest
// (dpos_irreversible_blocknum, block_num, timestamp), tiebreak by
// producer then id.
func legacyOrdering(a, b *chain.BlockState) bool {
	av, aok := a.Variant().(*chain.LegacyState)
	bv, bok := b.Variant().(*chain.LegacyState)
	var aLib, bLib chain.BlockNum
	if aok {
		aLib = av.DPOSIrreversibleBlockNum
	}
	if bok {
		bLib = bv.DPOSIrreversibleBlockNum
	}
	if aLib != bLib {
		return aLib > bLib
	}
	if a.ID.Num() != b.ID.Num() {
		return a.ID.Num() > b.ID.Num()
	}
	if !a.Header.Timestamp.Equal(b.Header.Timestamp) {
		return a.Header.Timestamp.After(b.Header.Timestamp)
	}
	if a.Header.Producer != b.Header.Producer {
		return idLess(ids.ID(a.Header.Producer), ids.ID(b.Header.Producer))
	}
	return idLess(ids.ID(a.ID), ids.ID(b.ID))
}

// savannaOrdering implements the Savanna best-head rule: highest
// (latest_qc_claim.block_num, latest_qc_claim.is_strong), tiebreak by
// timestamp descending then id.
func savannaOrdering(a, b *chain.BlockState) bool {
	av, aok := a.Variant().(*chain.SavannaState)
	bv, bok := b.Variant().(*chain.SavannaState)
	var aClaim, bClaim chain.QCClaim
	if aok {
		aClaim = av.LatestQCClaim
	}
	if bok {
		bClaim = bv.LatestQCClaim
	}
	if aClaim.BlockNum != bClaim.BlockNum {
		return aClaim.BlockNum > bClaim.BlockNum
	}
	if aClaim.IsStrong != bClaim.IsStrong {
		return aClaim.IsStrong
	}
	if !a.Header.Timestamp.Equal(b.Header.Timestamp) {
		return a.Header.Timestamp.After(b.Header.Timestamp)
	}
	return idLess(ids.ID(a.ID), ids.ID(b.ID))
}

func idLess(a, b ids.ID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
