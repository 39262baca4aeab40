// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package forkdb

import (
	"errors"
	"sync"

	"github.com/luxfi/spring/chain"
	"github.com/luxfi/spring/utils/wrappers"
)

// InUse reports which variant(s) of the fork database are live. During
// migration both coexist until LIB crosses the Savanna Genesis block.
type InUse int

const (
	UseLegacy InUse = iota
	UseSavanna
	UseBoth
)

// ErrNoSavannaGenesis is returned when PendingSavannaLibID is called
// before a Savanna variant exists.
var ErrNoSavannaGenesis = errors.New("forkdb: no savanna variant installed")

// ForkDB is the uniform fork-database entry point: it owns a
// Legacy engine, a Savanna engine (once migration begins), and dispatches
// every operation to whichever is appropriate, discarding the Legacy
// engine once LIB has crossed the Savanna Genesis block.
type ForkDB struct {
	mu      sync.RWMutex
	inUse   InUse
	legacy  *engine
	savanna *engine
}

// NewLegacy creates a fork database rooted at a Legacy genesis block.
func NewLegacy(genesis *chain.BlockState) *ForkDB {
	return &ForkDB{
		inUse:  UseLegacy,
		legacy: newEngine(genesis, legacyOrdering),
	}
}

// BeginSavannaTransition installs a Savanna engine rooted at the
// Savanna Genesis block, alongside the still-live Legacy engine. The
// genesis block carries qc_claim = {own_num, weak} and a
// new_finalizer_policy_diff whose resulting policy has generation 1.
func (f *ForkDB) BeginSavannaTransition(genesis *chain.BlockState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savanna = newEngine(genesis, savannaOrdering)
	f.inUse = UseBoth
}

// DropLegacy discards the Legacy engine once LIB has crossed the
// Savanna Genesis block.
func (f *ForkDB) DropLegacy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.legacy = nil
	f.inUse = UseSavanna
}

// InUse reports the current migration state.
func (f *ForkDB) InUse() InUse {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.inUse
}

// engineFor picks the Savanna engine if one is installed and v is
// Savanna variant state; any other variant goes to the Legacy engine if
// one is installed, else to the Savanna engine.
func (f *ForkDB) engineFor(v chain.Variant) (*engine, bool) {
	if f.savanna != nil {
		if _, ok := v.(*chain.SavannaState); ok {
			return f.savanna, true
		}
	}
	if f.legacy != nil {
		return f.legacy, true
	}
	if f.savanna != nil {
		return f.savanna, true
	}
	return nil, false
}

// Add inserts bs into whichever engine matches its variant.
func (f *ForkDB) Add(bs *chain.BlockState, ignoreDuplicate bool) (AddResult, error) {
	f.mu.RLock()
	e, ok := f.engineFor(bs.Variant())
	f.mu.RUnlock()
	if !ok {
		return 0, ErrForkDatabase
	}
	return e.Add(bs, ignoreDuplicate)
}

// GetBlock looks up id in whichever engine(s) are live.
func (f *ForkDB) GetBlock(id chain.BlockID) (*chain.BlockState, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.savanna != nil {
		if bs, ok := f.savanna.GetBlock(id); ok {
			return bs, true
		}
	}
	if f.legacy != nil {
		return f.legacy.GetBlock(id)
	}
	return nil, false
}

// Head returns the preferred engine's best head, per the active
// migration mode — Savanna's head wins whenever a Savanna engine
// exists, since its ordering subsumes the DPOS rule once QC claims
// begin accumulating.
func (f *ForkDB) Head(includeRoot bool) (*chain.BlockState, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.savanna != nil {
		return f.savanna.Head(includeRoot)
	}
	if f.legacy != nil {
		return f.legacy.Head(includeRoot)
	}
	return nil, false
}

// Root returns the preferred engine's current root block, per the
// same migration-mode preference as Head.
func (f *ForkDB) Root() (*chain.BlockState, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.savanna != nil {
		return f.savanna.Root()
	}
	if f.legacy != nil {
		return f.legacy.Root()
	}
	return nil, false
}

// FetchBranch delegates to whichever engine contains head.
func (f *ForkDB) FetchBranch(head, stop chain.BlockID) ([]*chain.BlockState, error) {
	e, err := f.resolve(head)
	if err != nil {
		return nil, err
	}
	return e.FetchBranch(head, stop)
}

// FetchBranchFrom delegates to whichever engine contains newHead.
func (f *ForkDB) FetchBranchFrom(newHead, oldHead chain.BlockID) ([]*chain.BlockState, []*chain.BlockState, error) {
	e, err := f.resolve(newHead)
	if err != nil {
		return nil, nil, err
	}
	return e.FetchBranchFrom(newHead, oldHead)
}

// SearchOnBranch delegates to whichever engine contains head.
func (f *ForkDB) SearchOnBranch(head chain.BlockID, num chain.BlockNum) (*chain.BlockState, bool) {
	e, err := f.resolve(head)
	if err != nil {
		return nil, false
	}
	return e.SearchOnBranch(head, num)
}

// AdvanceRoot prunes whichever engine(s) contain id.
func (f *ForkDB) AdvanceRoot(id chain.BlockID) error {
	f.mu.RLock()
	legacy, savanna := f.legacy, f.savanna
	f.mu.RUnlock()

	var errs wrappers.Errs
	advanced := false
	if legacy != nil {
		if _, ok := legacy.GetBlock(id); ok {
			if err := legacy.AdvanceRoot(id); err != nil {
				errs.Add(err)
			} else {
				advanced = true
			}
		}
	}
	if savanna != nil {
		if _, ok := savanna.GetBlock(id); ok {
			if err := savanna.AdvanceRoot(id); err != nil {
				errs.Add(err)
			} else {
				advanced = true
			}
		}
	}
	if !advanced {
		return ErrUnknown
	}
	return errs.Err()
}

// Remove delegates to whichever engine contains id.
func (f *ForkDB) Remove(id chain.BlockID) error {
	e, err := f.resolve(id)
	if err != nil {
		return err
	}
	return e.Remove(id)
}

// PendingSavannaLibID reports the highest block id whose two-chain QC
// conditions are satisfied given the votes aggregated so far. Savanna
// only: walks descendants of the current Savanna root looking for a
// strong QC two generations deep (the two-chain finality rule).
func (f *ForkDB) PendingSavannaLibID() (chain.BlockID, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.savanna == nil {
		return chain.BlockID{}, false, ErrNoSavannaGenesis
	}

	head, ok := f.savanna.Head(true)
	if !ok {
		return chain.BlockID{}, false, nil
	}

	var best *chain.BlockState
	cur := head
	for {
		if cur.Valid != nil {
			if aggr := cur.AggregatingQC; aggr != nil && aggr.Strong() {
				if parent, ok := f.savanna.GetBlock(cur.Header.Previous); ok {
					if grandparent, ok := f.savanna.GetBlock(parent.Header.Previous); ok {
						if best == nil || grandparent.ID.Num() > best.ID.Num() {
							best = grandparent
						}
					}
				}
			}
		}
		if cur.ID == f.savanna.root {
			break
		}
		next, ok := f.savanna.GetBlock(cur.Header.Previous)
		if !ok {
			break
		}
		cur = next
	}
	if best == nil {
		return chain.BlockID{}, false, nil
	}
	return best.ID, true, nil
}

func (f *ForkDB) resolve(id chain.BlockID) (*engine, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.savanna != nil {
		if _, ok := f.savanna.GetBlock(id); ok {
			return f.savanna, nil
		}
	}
	if f.legacy != nil {
		if _, ok := f.legacy.GetBlock(id); ok {
			return f.legacy, nil
		}
	}
	return nil, ErrUnknown
}
