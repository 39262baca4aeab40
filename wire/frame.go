// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wire implements the framed peer-to-peer protocol: a uint32
// length prefix, a varint message tag, and a message-specific payload.
// This is the one place the module reaches
// for encoding/binary over a teacher/ecosystem binary codec — see
// DESIGN.md for why (no retrieved dependency ships a tagged-union wire
// codec matching this exact frame shape).
package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
)

// MaxFrameSize bounds a single frame's payload, guarding against a
// malicious or corrupt peer claiming an unbounded length.
const MaxFrameSize = 64 * 1024 * 1024

var (
	// ErrFrameTooLarge is returned when a frame's declared length
	// exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")
	// ErrShortPayload is returned when fewer bytes remain than the
	// frame's varint tag claims to need.
	ErrShortPayload = errors.New("wire: payload shorter than tag")
)

// WriteFrame writes tag ‖ payload as one length-prefixed frame.
func WriteFrame(w io.Writer, tag uint64, payload []byte) error {
	tagBuf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(tagBuf, tag)
	tagBuf = tagBuf[:n]

	length := uint32(len(tagBuf) + len(payload))
	var lengthBuf [4]byte
	binary.LittleEndian.PutUint32(lengthBuf[:], length)

	if _, err := w.Write(lengthBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(tagBuf); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed frame and splits it into its tag
// and remaining payload.
func ReadFrame(r *bufio.Reader) (tag uint64, payload []byte, err error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return 0, nil, err
	}
	length := binary.LittleEndian.Uint32(lengthBuf[:])
	if length > MaxFrameSize {
		return 0, nil, ErrFrameTooLarge
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}

	tag, n := binary.Uvarint(body)
	if n <= 0 {
		return 0, nil, ErrShortPayload
	}
	return tag, body[n:], nil
}
