// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package peer

import (
	"bufio"
	"bytes"
	"errors"
	"net"

	"github.com/luxfi/ids"

	"github.com/luxfi/spring/wire"
	"github.com/luxfi/spring/wire/abi"
)

// ErrUnexpectedTag is returned when the first frame on a new connection
// is not a handshake.
var ErrUnexpectedTag = errors.New("peer: expected handshake as first frame")

// SendHandshake frames and writes hs as the first message on conn.
func SendHandshake(conn net.Conn, hs *wire.Handshake) error {
	var buf bytes.Buffer
	if err := abi.NewEncoder(&buf).Encode(hs); err != nil {
		return err
	}
	return wire.WriteFrame(conn, uint64(wire.TagHandshake), buf.Bytes())
}

// ReadHandshake reads and decodes the first frame off r, which must be
// a handshake, returning the peer's announced node id for the caller
// (connmgr) to finish admission/dedup checks against.
func ReadHandshake(r *bufio.Reader) (ids.NodeID, *wire.Handshake, error) {
	tag, payload, err := wire.ReadFrame(r)
	if err != nil {
		return ids.NodeID{}, nil, err
	}
	if wire.Tag(tag) != wire.TagHandshake {
		return ids.NodeID{}, nil, ErrUnexpectedTag
	}
	var hs wire.Handshake
	if err := abi.NewDecoder(bytes.NewReader(payload)).Decode(&hs); err != nil {
		return ids.NodeID{}, nil, err
	}
	return hs.NodeID, &hs, nil
}
