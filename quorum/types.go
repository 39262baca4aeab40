// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package quorum accumulates weighted responses from a finalizer set and
// reports whether one or more weight thresholds have been met. It backs
// the strong/weak quorum-certificate checks in package finality and the
// plain membership-threshold checks validators.Policy exposes.
package quorum

import "github.com/luxfi/ids"

// Result reports the outcome of a single-threshold weight check.
type Result struct {
	Achieved     bool
	Weight       uint64
	Threshold    uint64
	Participants []ids.NodeID
	TotalPolled  int
}
