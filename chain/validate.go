// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

// CheckQCClaim enforces that a header's qc_claim carries a
// quorum_certificate_extension exactly when the claim advances beyond
// the parent's: a higher block_num, or the same block_num turning
// strong. A header with no finality extension has nothing to check.
func CheckQCClaim(h, parent *Header) error {
	if h.Finality == nil {
		return nil
	}
	var parentClaim QCClaim
	if parent.Finality != nil {
		parentClaim = parent.Finality.QCClaim
	}
	claim := h.Finality.QCClaim
	advances := claim.BlockNum > parentClaim.BlockNum ||
		(claim.BlockNum == parentClaim.BlockNum && claim.IsStrong && !parentClaim.IsStrong)

	switch {
	case advances && h.Finality.QCProof == nil:
		return ErrMissingQCClaimProof
	case !advances && h.Finality.QCProof != nil:
		return ErrUnexpectedQCClaimProof
	default:
		return nil
	}
}
