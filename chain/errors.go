// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import "errors"

var (
	// ErrUnknownBlock is returned when a block id has no corresponding
	// entry in the fork database.
	ErrUnknownBlock = errors.New("chain: unknown block")
	// ErrUnlinkableBlock is returned when a block's previous id is not
	// present in the fork database.
	ErrUnlinkableBlock = errors.New("chain: unlinkable block")
	// ErrBadBlockNum is returned when block_num(id) != parent.block_num+1.
	ErrBadBlockNum = errors.New("chain: block_num invariant violated")
	// ErrMerkleMismatch is returned when transaction_mroot or action_mroot
	// does not match the root recomputed from the block's receipts or
	// transactions; the wrapping error names which root differed.
	ErrMerkleMismatch = errors.New("chain: merkle root mismatch")
	// ErrMissingQCClaimProof is returned when a header claims a QC at a
	// higher block_num or strength than its parent without carrying a
	// matching quorum_certificate_extension.
	ErrMissingQCClaimProof = errors.New("chain: qc_claim without matching quorum_certificate_extension")
	// ErrUnexpectedQCClaimProof is the inverse of ErrMissingQCClaimProof.
	ErrUnexpectedQCClaimProof = errors.New("chain: quorum_certificate_extension without qc_claim advance")
	// ErrSkipped is returned when a transaction application is skipped
	// (soft-fail, not charged against the block's deadline).
	ErrSkipped = errors.New("chain: operation skipped")
)
