// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package peer implements PeerConnection: a framed TCP connection with
// a three-priority send queue, heartbeat, clock synchronization and
// handshake. The three-priority queue is a plain array of channels
// drained highest-priority-first, rather than a container/heap
// priority queue.
package peer

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/spring/wire"
)

// Priority is the send queue a message is routed to. Higher-priority
// queues always drain before lower ones.
type Priority int

const (
	// PriorityControl carries handshake, go_away and time messages.
	PriorityControl Priority = iota
	// PriorityBlocks carries signed_block, notice and sync traffic.
	PriorityBlocks
	// PriorityTransactions carries packed_transaction traffic.
	PriorityTransactions

	numPriorities = int(PriorityTransactions) + 1
)

var (
	// ErrClosed is returned by Send once the peer connection has shut
	// down.
	ErrClosed = errors.New("peer: connection closed")
	// ErrQueueFull is returned by TrySend when the targeted priority
	// queue is saturated.
	ErrQueueFull = errors.New("peer: send queue full")
)

// outbound is one queued, already-framed message.
type outbound struct {
	tag     wire.Tag
	payload []byte
}

// Connection is one established, handshaked peer connection: a framed
// TCP socket plus a three-priority outbound queue drained by a single
// writer goroutine, and a single reader goroutine dispatching inbound
// frames to Handler.
type Connection struct {
	log    log.Logger
	nodeID ids.NodeID
	conn   net.Conn
	reader *bufio.Reader

	queues    [numPriorities]chan outbound
	wakeCh    chan struct{}
	closeOnce sync.Once
	closed    chan struct{}

	lastRecv  atomicTime
	heartbeat time.Duration
	handler   Handler

	// clock offset estimate, refreshed by the time_message exchange.
	mu     sync.RWMutex
	offset time.Duration
}

// Handler processes inbound frames dispatched off the reader loop.
type Handler interface {
	HandleFrame(nodeID ids.NodeID, tag wire.Tag, payload []byte) error
}

// Config bounds a Connection's per-priority queue depths and heartbeat
// interval.
type Config struct {
	QueueDepth int
	Heartbeat  time.Duration
}

// New wraps an already-dialed/accepted net.Conn as a peer Connection.
// The handshake itself is driven by the caller (connmgr) via
// SendHandshake/ReadHandshake before calling Run.
func New(logger log.Logger, nodeID ids.NodeID, conn net.Conn, cfg Config, handler Handler) *Connection {
	c := &Connection{
		log:       logger.With("peer", nodeID.String()),
		nodeID:    nodeID,
		conn:      conn,
		reader:    bufio.NewReader(conn),
		closed:    make(chan struct{}),
		wakeCh:    make(chan struct{}, 1),
		heartbeat: cfg.Heartbeat,
		handler:   handler,
	}
	for i := range c.queues {
		c.queues[i] = make(chan outbound, cfg.QueueDepth)
	}
	c.lastRecv.Store(time.Now())
	return c
}

// NodeID returns the peer's identity.
func (c *Connection) NodeID() ids.NodeID { return c.nodeID }

// Send enqueues tag/payload on the queue for priority, blocking until
// either it is accepted or the connection closes.
func (c *Connection) Send(priority Priority, tag wire.Tag, payload []byte) error {
	select {
	case c.queues[priority] <- outbound{tag: tag, payload: payload}:
		c.wake()
		return nil
	case <-c.closed:
		return ErrClosed
	}
}

// TrySend enqueues tag/payload on priority's queue without blocking,
// returning ErrQueueFull if it is saturated — used for gossip traffic
// that is fine to drop under backpressure rather than stalling the
// caller.
func (c *Connection) TrySend(priority Priority, tag wire.Tag, payload []byte) error {
	select {
	case c.queues[priority] <- outbound{tag: tag, payload: payload}:
		c.wake()
		return nil
	case <-c.closed:
		return ErrClosed
	default:
		return ErrQueueFull
	}
}

// wake pings the write loop's wait, without blocking if it is already
// pending — draining always re-scans queues in priority order, so the
// wake signal only needs to say "something changed," never what.
func (c *Connection) wake() {
	select {
	case c.wakeCh <- struct{}{}:
	default:
	}
}

// Run drives the connection's write loop (draining queues
// highest-priority-first), read loop, and heartbeat timer until ctx is
// canceled or the connection errors.
func (c *Connection) Run(ctx context.Context) error {
	errCh := make(chan error, 2)
	go func() { errCh <- c.writeLoop(ctx) }()
	go func() { errCh <- c.readLoop() }()

	select {
	case <-ctx.Done():
		c.Close()
		return ctx.Err()
	case err := <-errCh:
		c.Close()
		return err
	}
}

func (c *Connection) writeLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		// Always drain strictly in priority order: control before
		// blocks before transactions, regardless of arrival order.
		for {
			msg, ok := c.drainOnce()
			if !ok {
				break
			}
			if err := wire.WriteFrame(c.conn, uint64(msg.tag), msg.payload); err != nil {
				return err
			}
		}

		select {
		case <-c.closed:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := wire.WriteFrame(c.conn, uint64(wire.TagTime), nil); err != nil {
				return err
			}
		case <-c.wakeCh:
		}
	}
}

// drainOnce takes the highest-priority message available without
// blocking, so control traffic never waits behind a full transaction
// queue.
func (c *Connection) drainOnce() (outbound, bool) {
	for p := 0; p < numPriorities; p++ {
		select {
		case m := <-c.queues[p]:
			return m, true
		default:
		}
	}
	return outbound{}, false
}

func (c *Connection) readLoop() error {
	for {
		tag, payload, err := wire.ReadFrame(c.reader)
		if err != nil {
			return err
		}
		c.lastRecv.Store(time.Now())
		if err := c.handler.HandleFrame(c.nodeID, wire.Tag(tag), payload); err != nil {
			return err
		}
	}
}

// LastRecv reports when the most recent frame was received, used by
// the connection manager's liveness monitor.
func (c *Connection) LastRecv() time.Time { return c.lastRecv.Load() }

// Close shuts down the connection idempotently.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return c.conn.Close()
}

// atomicTime is a small mutex-guarded time.Time, avoiding a dependency
// on atomic.Value's type-consistency requirement for a frequently
// updated timestamp.
type atomicTime struct {
	mu sync.RWMutex
	t  time.Time
}

func (a *atomicTime) Store(t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.t = t
}

func (a *atomicTime) Load() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.t
}
