// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package peer

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"

	logpkg "github.com/luxfi/spring/log"
	"github.com/luxfi/spring/wire"
)

type recordingHandler struct {
	received chan wire.Tag
}

func (h *recordingHandler) HandleFrame(nodeID ids.NodeID, tag wire.Tag, payload []byte) error {
	h.received <- tag
	return nil
}

func TestConnectionSendPriorityOrdering(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	handler := &recordingHandler{received: make(chan wire.Tag, 8)}
	c := New(logpkg.NewNoOpLogger(), ids.GenerateTestNodeID(), client, Config{QueueDepth: 8, Heartbeat: time.Hour}, handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	require.NoError(t, c.Send(PriorityTransactions, wire.TagPackedTransaction, []byte("txn")))
	require.NoError(t, c.Send(PriorityControl, wire.TagGoAway, []byte("goaway")))

	serverReader := &frameReader{conn: server}
	tag1, payload1, err := serverReader.read()
	require.NoError(t, err)
	require.Equal(t, wire.TagGoAway, tag1, "control-priority message should be written before the already-queued transaction")
	require.Equal(t, []byte("goaway"), payload1)

	tag2, _, err := serverReader.read()
	require.NoError(t, err)
	require.Equal(t, wire.TagPackedTransaction, tag2)
}

func TestConnectionTrySendReturnsErrQueueFullWhenSaturated(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	handler := &recordingHandler{received: make(chan wire.Tag, 1)}
	c := New(logpkg.NewNoOpLogger(), ids.GenerateTestNodeID(), client, Config{QueueDepth: 1, Heartbeat: time.Hour}, handler)

	require.NoError(t, c.TrySend(PriorityTransactions, wire.TagPackedTransaction, []byte("one")))
	err := c.TrySend(PriorityTransactions, wire.TagPackedTransaction, []byte("two"))
	require.ErrorIs(t, err, ErrQueueFull)
}

// frameReader is a tiny test-only helper reading successive frames off
// a net.Conn through one shared bufio.Reader.
type frameReader struct {
	conn net.Conn
	br   *bufio.Reader
}

func (f *frameReader) read() (wire.Tag, []byte, error) {
	if f.br == nil {
		f.br = bufio.NewReader(f.conn)
	}
	tag, payload, err := wire.ReadFrame(f.br)
	return wire.Tag(tag), payload, err
}
