// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, uint64(TagBlockNack), []byte("payload")))

	tag, payload, err := ReadFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.Equal(t, uint64(TagBlockNack), tag)
	require.Equal(t, []byte("payload"), payload)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, uint64(TagHandshake), nil))
	raw := buf.Bytes()
	raw[0] = 0xff
	raw[1] = 0xff
	raw[2] = 0xff
	raw[3] = 0xff

	_, _, err := ReadFrame(bufio.NewReader(bytes.NewReader(raw)))
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestGoAwayReasonFatal(t *testing.T) {
	require.True(t, ReasonForked.Fatal())
	require.False(t, ReasonBenignOther.Fatal())
}
