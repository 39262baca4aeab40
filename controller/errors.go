// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package controller

import (
	"errors"

	"github.com/luxfi/spring/chain"
	"github.com/luxfi/spring/finality"
	"github.com/luxfi/spring/forkdb"
	"github.com/luxfi/spring/pending"
)

// ErrorClass is the fixed taxonomy every controller operation
// classifies its failures into.
type ErrorClass int

const (
	// ClassUnknown covers errors this classifier doesn't recognize.
	ClassUnknown ErrorClass = iota
	// ClassTransient covers errors safe to retry (e.g. missing parent
	// not yet received).
	ClassTransient
	// ClassInvalid covers errors that mark the input as permanently
	// invalid (bad merkle, bad QC, bad block_num).
	ClassInvalid
	// ClassInternal covers errors indicating a bug or corrupted local
	// state, which the caller should treat as fatal to the chain.
	ClassInternal
)

var (
	// ErrNotBuilding is returned by push_transaction and
	// assemble_and_complete_block when there is no pending block.
	ErrNotBuilding = errors.New("controller: no block is currently being built")
	// ErrAlreadyBuilding is returned by start_block when a pending
	// block already exists.
	ErrAlreadyBuilding = errors.New("controller: a block is already being built")
	// ErrStaleHead names a preferred head that changed during assembly.
	// No controller operation returns it; Classify maps it to
	// ClassInternal.
	ErrStaleHead = errors.New("controller: preferred head changed during assembly")
)

// Classify maps an error returned by a controller operation onto
// ErrorClass, so AcceptBlock/PushTransaction callers have one place to
// map errors to return codes rather than one per call site.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassUnknown
	case errors.Is(err, forkdb.ErrMissingParent):
		return ClassTransient
	case errors.Is(err, chain.ErrUnlinkableBlock),
		errors.Is(err, chain.ErrBadBlockNum),
		errors.Is(err, chain.ErrMerkleMismatch),
		errors.Is(err, chain.ErrMissingQCClaimProof),
		errors.Is(err, chain.ErrUnexpectedQCClaimProof),
		errors.Is(err, finality.ErrUnknownFinalizer),
		errors.Is(err, finality.ErrBadSignature),
		errors.Is(err, pending.ErrDeadlineExceeded):
		return ClassInvalid
	case errors.Is(err, forkdb.ErrForkDatabase),
		errors.Is(err, ErrStaleHead):
		return ClassInternal
	default:
		return ClassUnknown
	}
}
