// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package quorum

import (
	"sync"

	"github.com/luxfi/ids"

	safemath "github.com/luxfi/spring/utils/math"
)

// DualWeightedThreshold tracks a single set of weighted responses against
// two independent thresholds simultaneously: the active finalizer policy's
// threshold and, during a policy transition, the pending policy's
// threshold. A quorum certificate is strong only when both are met.
type DualWeightedThreshold struct {
	mu sync.RWMutex

	activeWeights  map[ids.NodeID]uint64
	pendingWeights map[ids.NodeID]uint64 // nil when no pending policy exists

	responded map[ids.NodeID]bool

	activeThreshold  uint64
	pendingThreshold uint64
	hasPending       bool

	activeWeightFor  uint64
	pendingWeightFor uint64
}

// NewDualWeightedThreshold creates a tracker for the active policy alone.
// Call SetPending to add a second policy once a transition is in flight.
func NewDualWeightedThreshold(activeThreshold uint64) *DualWeightedThreshold {
	return &DualWeightedThreshold{
		activeWeights:   make(map[ids.NodeID]uint64),
		responded:       make(map[ids.NodeID]bool),
		activeThreshold: activeThreshold,
	}
}

// SetPending installs a pending-policy threshold and starts pending-policy
// accounting from zero: nodes recorded before the call contribute no
// pending weight until Add is called for them again with their
// pending-policy weight (the active and pending finalizer sets need not
// overlap).
func (d *DualWeightedThreshold) SetPending(threshold uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hasPending = true
	d.pendingThreshold = threshold
	d.pendingWeights = make(map[ids.NodeID]uint64)
}

// Add records a finalizer's vote with its weight under the active policy
// and, if a pending policy is installed, its weight under that policy too
// (zero if the finalizer is not a pending-policy member).
func (d *DualWeightedThreshold) Add(nodeID ids.NodeID, activeWeight, pendingWeight uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.responded[nodeID] {
		d.activeWeightFor, _ = safemath.Sub64(d.activeWeightFor, d.activeWeights[nodeID])
		if d.hasPending {
			d.pendingWeightFor, _ = safemath.Sub64(d.pendingWeightFor, d.pendingWeights[nodeID])
		}
	}
	d.responded[nodeID] = true
	d.activeWeights[nodeID] = activeWeight
	if sum, err := safemath.Add64(d.activeWeightFor, activeWeight); err == nil {
		d.activeWeightFor = sum
	}
	if d.hasPending {
		d.pendingWeights[nodeID] = pendingWeight
		if sum, err := safemath.Add64(d.pendingWeightFor, pendingWeight); err == nil {
			d.pendingWeightFor = sum
		}
	}
}

// Strong reports whether both the active (and, if present, pending) policy
// thresholds have been met — the condition for a strong QC.
func (d *DualWeightedThreshold) Strong() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.activeWeightFor < d.activeThreshold {
		return false
	}
	if d.hasPending && d.pendingWeightFor < d.pendingThreshold {
		return false
	}
	return true
}

// ActiveResult reports the current state of the active-policy threshold.
func (d *DualWeightedThreshold) ActiveResult() Result {
	d.mu.RLock()
	defer d.mu.RUnlock()

	participants := make([]ids.NodeID, 0, len(d.responded))
	for nodeID := range d.responded {
		participants = append(participants, nodeID)
	}
	return Result{
		Achieved:     d.activeWeightFor >= d.activeThreshold,
		Weight:       d.activeWeightFor,
		Threshold:    d.activeThreshold,
		Participants: participants,
		TotalPolled:  len(d.responded),
	}
}
