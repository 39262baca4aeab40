// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"time"

	"github.com/luxfi/ids"
)

// Tag identifies a message's wire shape, stable across protocol
// versions — adding a new message type appends a new tag rather than
// renumbering existing ones.
type Tag uint64

const (
	TagHandshake         Tag = 0
	TagChainSize         Tag = 1 // unused, reserved
	TagGoAway            Tag = 2
	TagTime              Tag = 3
	TagNotice            Tag = 4
	TagRequest           Tag = 5
	TagSyncRequest       Tag = 6
	TagSignedBlock       Tag = 7
	TagPackedTransaction Tag = 8
	TagVote              Tag = 9
	TagBlockNack         Tag = 10
	TagBlockNotice       Tag = 11
	TagGossipBPPeers     Tag = 12
	TagTransactionNotice Tag = 13
)

// ProtocolVersion is the monotonic version-ordinal enum.
type ProtocolVersion uint16

const (
	VersionBase ProtocolVersion = iota
	VersionExplicitSync
	VersionLeapInitial
	VersionBlockRange
	VersionSavanna
	VersionBlockNack
	VersionGossipBPPeers
	VersionTrxNotice
)

// NetVersionBase is added to a ProtocolVersion ordinal to form the
// announced net_version in a Handshake.
const NetVersionBase = 1206

// GoAwayReason classifies why a peer is being disconnected.
type GoAwayReason int

const (
	ReasonNoReason GoAwayReason = iota
	ReasonSelf
	ReasonDuplicate
	ReasonWrongChain
	ReasonWrongVersion
	ReasonForked
	ReasonUnlinkable
	ReasonBadTransaction
	ReasonValidation
	ReasonBenignOther
	ReasonFatalOther
	ReasonAuthentication
)

// Fatal reports whether reason suppresses reconnect attempts, per
// the wire protocol.
func (r GoAwayReason) Fatal() bool {
	switch r {
	case ReasonSelf, ReasonDuplicate, ReasonWrongChain, ReasonWrongVersion,
		ReasonForked, ReasonUnlinkable, ReasonBadTransaction, ReasonValidation,
		ReasonFatalOther, ReasonAuthentication:
		return true
	default:
		return false
	}
}

// Handshake (tag 0) is the first message exchanged on a new connection.
type Handshake struct {
	NetworkVersion   uint16
	ChainID          ids.ID
	NodeID           ids.NodeID
	P2PAddress       string
	AgentName        string
	Token            []byte
	Signature        []byte
	HeadID           ids.ID
	HeadNum          uint32
	LastIrreversible ids.ID
	Generation       uint16
	OS               string
	Time             time.Time
}

// GoAway (tag 2) announces an impending disconnect.
type GoAway struct {
	Reason GoAwayReason
	NodeID ids.NodeID
}

// TimeMessage (tag 3) supports clock-offset estimation between peers.
type TimeMessage struct {
	Org time.Time
	Rec time.Time
	Xmt time.Time
	Dst time.Time
}

// NoticeMessage (tag 4) announces transactions/blocks a peer already
// has, ahead of a Request.
type NoticeMessage struct {
	KnownTrx    []ids.ID
	KnownBlocks []ids.ID
}

// RequestMessage (tag 5) asks a peer for specific transactions/blocks.
type RequestMessage struct {
	ReqTrx    []ids.ID
	ReqBlocks []ids.ID
}

// SyncRequest (tag 6) asks a peer to push a contiguous range of blocks.
type SyncRequest struct {
	StartBlock uint32
	EndBlock   uint32
}

// SignedBlock (tag 7) carries a full block.
type SignedBlock struct {
	Bytes []byte
}

// PackedTransaction (tag 8) carries a single transaction.
type PackedTransaction struct {
	Bytes []byte
}

// VoteMessage (tag 9) carries one finalizer's vote on a block.
type VoteMessage struct {
	BlockID      ids.ID
	FinalizerKey []byte
	Strong       bool
	Signature    []byte
}

// BlockNackMessage (tag 10) tells a peer its last-broadcast block
// wasn't needed, so it can stop retransmitting that branch.
type BlockNackMessage struct {
	ID ids.ID
}

// BlockNoticeMessage (tag 11) announces a new block without sending its
// body, letting the receiver decide whether to request it.
type BlockNoticeMessage struct {
	PrevID ids.ID
	ID     ids.ID
}

// GossipBPPeersMessage (tag 12) shares known block-producer peer
// addresses for auto-BP-peering.
type GossipBPPeersMessage struct {
	Peers []string
}

// TransactionNoticeMessage (tag 13) announces a new transaction id
// without sending its body.
type TransactionNoticeMessage struct {
	ID ids.ID
}
