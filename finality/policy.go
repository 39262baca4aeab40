// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package finality implements the Savanna finalizer policy, quorum
// certificates and vote aggregation: weighted
// finalizer sets voting on blocks, aggregated into strong or weak
// quorum certificates under the two-chain finality rule.
package finality

import (
	"github.com/luxfi/ids"

	"github.com/luxfi/spring/chain"
	"github.com/luxfi/spring/quorum"
)

// Policy is a finalizer policy: a generation, a weight threshold, and
// the weighted finalizer set it governs ("Finalizer
// policy").
type Policy struct {
	Generation uint32
	Threshold  uint64
	Finalizers []chain.FinalizerKey
}

// WeightOf returns the weight of the finalizer at bitset position idx,
// or 0 if idx is out of range.
func (p *Policy) WeightOf(idx int) uint64 {
	if idx < 0 || idx >= len(p.Finalizers) {
		return 0
	}
	return p.Finalizers[idx].Weight
}

// TotalWeight sums every finalizer's weight.
func (p *Policy) TotalWeight() uint64 {
	var total uint64
	for _, f := range p.Finalizers {
		total += f.Weight
	}
	return total
}

// Verifier checks a finalizer's signature over a vote digest. Its
// concrete implementation (BLS or otherwise) is an external
// collaborator — cryptographic primitive implementations are kept
// out of this module's scope.
type Verifier interface {
	Verify(publicKey []byte, digest ids.ID, signature []byte) bool
}

// QC is a quorum certificate: a claim that block_num has a vote bitset
// whose accumulated weight crosses the active (and, during a
// transition, pending) policy's threshold.
type QC struct {
	BlockNum  chain.BlockNum
	IsStrong  bool
	Signature []byte
	Bitset    []bool
}

// quorumThreshold adapts a Policy pair into the generic dual-weighted
// threshold tracker in package quorum.
func quorumThreshold(active, pending *Policy) *quorum.DualWeightedThreshold {
	d := quorum.NewDualWeightedThreshold(active.Threshold)
	if pending != nil {
		d.SetPending(pending.Threshold)
	}
	return d
}
