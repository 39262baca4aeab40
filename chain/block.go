// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"encoding/binary"
	"time"

	"github.com/luxfi/ids"
)

// BlockID is a block's content hash. The high 32 bits of the hash
// encode the block's height, so Num recovers it in O(1) without a
// fork-database lookup.
type BlockID ids.ID

// BlockNum is a block height.
type BlockNum uint32

// Num recovers the height encoded in id's leading bytes.
func (id BlockID) Num() BlockNum {
	return BlockNum(binary.BigEndian.Uint32(id[:4]))
}

// String renders the id the way ids.ID does.
func (id BlockID) String() string {
	return ids.ID(id).String()
}

// Empty reports whether id is the zero block id.
func (id BlockID) Empty() bool {
	return id == BlockID{}
}

// QCClaim is the finality claim a Savanna or transition header carries:
// the highest block_num the producer believes has a quorum certificate,
// and whether that certificate is strong or merely weak.
type QCClaim struct {
	BlockNum BlockNum
	IsStrong bool
}

// PolicyDiff describes a finalizer or proposer policy change committed
// by a header, carried until the change becomes active.
type PolicyDiff struct {
	Generation uint32
	Threshold  uint64
	Finalizers []FinalizerKey
}

// FinalizerKey is one entry of a finalizer policy.
type FinalizerKey struct {
	Description string
	NodeID      ids.NodeID
	Weight      uint64
	PublicKey   []byte
}

// QCProof is the quorum_certificate_extension carried by a header
// whose qc_claim advances beyond its parent's, proving the claim
// rather than merely asserting it.
type QCProof struct {
	Signature []byte
	Bitset    []bool
}

// FinalityExtension marks a header as Savanna or transition, per
// the header.
type FinalityExtension struct {
	QCClaim            QCClaim
	QCProof            *QCProof
	NewFinalizerPolicy *PolicyDiff
	NewProposerPolicy  *PolicyDiff
}

// Header is the hashed portion of a block, common to Legacy and Savanna
// blocks.
type Header struct {
	Timestamp         time.Time
	Producer          ids.NodeID
	Confirmed         uint32 // Legacy only
	Previous          BlockID
	TransactionMroot  ids.ID
	ActionMroot       ids.ID
	ScheduleVersion   uint32
	NewProducers      []ids.NodeID // Legacy only, nil otherwise
	Finality          *FinalityExtension
	AdditionalSigners []ids.NodeID
}

// Kind classifies a header per the Legacy/Transition/Savanna rules.
type Kind int

const (
	// KindLegacy headers have no finality extension.
	KindLegacy Kind = iota
	// KindTransition headers have a finality extension but descend from
	// (or are themselves) a Legacy/Transition ancestor.
	KindTransition
	// KindSavanna headers have a finality extension and a non-Legacy
	// parent.
	KindSavanna
)

// Classify reports h's kind given whether its parent is already Savanna.
func (h *Header) Classify(parentIsSavanna bool) Kind {
	if h.Finality == nil {
		return KindLegacy
	}
	if parentIsSavanna {
		return KindSavanna
	}
	return KindTransition
}

// Block is a signed header plus its transactions, as carried over the
// wire and in the block log.
type Block struct {
	Header       Header
	Transactions [][]byte
	Signature    []byte
}

// ID hashes the header into the block's identity. Height is embedded in
// the leading bytes so BlockID.Num is O(1).
func (b *Block) ID(hash func(Header) ids.ID) BlockID {
	return BlockID(hash(b.Header))
}
