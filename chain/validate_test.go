// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckQCClaimLegacyHeaderSkipped(t *testing.T) {
	h := &Header{}
	parent := &Header{}
	require.NoError(t, CheckQCClaim(h, parent))
}

func TestCheckQCClaimAdvanceRequiresProof(t *testing.T) {
	parent := &Header{Finality: &FinalityExtension{QCClaim: QCClaim{BlockNum: 1}}}
	h := &Header{Finality: &FinalityExtension{QCClaim: QCClaim{BlockNum: 2}}}
	require.ErrorIs(t, CheckQCClaim(h, parent), ErrMissingQCClaimProof)

	h.Finality.QCProof = &QCProof{Signature: []byte("sig")}
	require.NoError(t, CheckQCClaim(h, parent))
}

func TestCheckQCClaimWeakToStrongRequiresProof(t *testing.T) {
	parent := &Header{Finality: &FinalityExtension{QCClaim: QCClaim{BlockNum: 1, IsStrong: false}}}
	h := &Header{Finality: &FinalityExtension{QCClaim: QCClaim{BlockNum: 1, IsStrong: true}}}
	require.ErrorIs(t, CheckQCClaim(h, parent), ErrMissingQCClaimProof)
}

func TestCheckQCClaimRejectsUnexpectedProof(t *testing.T) {
	parent := &Header{Finality: &FinalityExtension{QCClaim: QCClaim{BlockNum: 2}}}
	h := &Header{Finality: &FinalityExtension{
		QCClaim: QCClaim{BlockNum: 2},
		QCProof: &QCProof{Signature: []byte("sig")},
	}}
	require.ErrorIs(t, CheckQCClaim(h, parent), ErrUnexpectedQCClaimProof)
}
