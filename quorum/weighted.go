// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package quorum

import (
	"sync"

	"github.com/luxfi/ids"

	safemath "github.com/luxfi/spring/utils/math"
)

// WeightedThreshold accumulates at most one weighted response per node and
// reports whether the accumulated weight has crossed a threshold. It is the
// building block for a single finality.QC bitset check.
type WeightedThreshold struct {
	mu        sync.RWMutex
	threshold uint64
	responses map[ids.NodeID]bool
	weights   map[ids.NodeID]uint64
	weightFor uint64
}

// NewWeightedThreshold creates a threshold tracker requiring weightThreshold
// of accumulated weight before Check().Achieved becomes true.
func NewWeightedThreshold(weightThreshold uint64) *WeightedThreshold {
	return &WeightedThreshold{
		threshold: weightThreshold,
		responses: make(map[ids.NodeID]bool),
		weights:   make(map[ids.NodeID]uint64),
	}
}

// Add records (or overwrites) a weighted response from nodeID. Calling Add
// again for the same node replaces its prior weight rather than summing it,
// since each finalizer casts at most one vote.
func (w *WeightedThreshold) Add(nodeID ids.NodeID, weight uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if prev, exists := w.responses[nodeID]; exists && prev {
		w.weightFor, _ = safemath.Sub64(w.weightFor, w.weights[nodeID])
	}
	w.responses[nodeID] = true
	w.weights[nodeID] = weight
	if sum, err := safemath.Add64(w.weightFor, weight); err == nil {
		w.weightFor = sum
	}
}

// Remove discards a previously recorded response, used when a finalizer's
// vote must be retracted (e.g. safety-file rollback during replay).
func (w *WeightedThreshold) Remove(nodeID ids.NodeID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if prev, exists := w.responses[nodeID]; exists && prev {
		w.weightFor, _ = safemath.Sub64(w.weightFor, w.weights[nodeID])
	}
	delete(w.responses, nodeID)
	delete(w.weights, nodeID)
}

// Check reports the current weight and whether the threshold is met.
func (w *WeightedThreshold) Check() Result {
	w.mu.RLock()
	defer w.mu.RUnlock()

	participants := make([]ids.NodeID, 0, len(w.responses))
	for nodeID, responded := range w.responses {
		if responded {
			participants = append(participants, nodeID)
		}
	}

	return Result{
		Achieved:     w.weightFor >= w.threshold,
		Weight:       w.weightFor,
		Threshold:    w.threshold,
		Participants: participants,
		TotalPolled:  len(w.responses),
	}
}

// SetThreshold updates the weight threshold, used when a finalizer policy
// transition changes the active policy's required weight mid-aggregation.
func (w *WeightedThreshold) SetThreshold(threshold uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.threshold = threshold
}
