// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send after the channel has closed, and
// reported by Err when the close was orderly. Any wait blocked on a
// closed endpoint must fail immediately with this (or a wrapped form).
var ErrClosed = errors.New("transport: endpoint closed")

// ErrNameTaken is returned by Listen when the requested endpoint name
// is already registered with the signaler — usually a ghost session
// that has not expired yet. Callers retry with a fresh name.
var ErrNameTaken = errors.New("transport: endpoint name already taken")

// Endpoint is an ordered, message-oriented channel to exactly one
// peer. Messages arrive whole and in send order; each Send is one
// message on the wire. The outbound side buffers, and BufferedAmount
// exposes how much is queued so callers can apply backpressure before
// the transport overflows.
type Endpoint interface {
	// Name returns the local endpoint name.
	Name() string

	// Peer returns the remote endpoint name.
	Peer() string

	// Send queues one message. Returns ErrClosed (possibly wrapped)
	// if the channel is no longer open.
	Send(data []byte) error

	// BufferedAmount reports the bytes queued for sending but not yet
	// handed to the network.
	BufferedAmount() int

	// Messages delivers inbound messages in arrival order. The
	// channel is closed when the endpoint closes.
	Messages() <-chan []byte

	// Closed is closed when the endpoint is no longer usable, whether
	// by local Close, remote hangup, or transport failure.
	Closed() <-chan struct{}

	// Err returns the terminal error after Closed fires: ErrClosed
	// for an orderly close, or the transport failure that killed the
	// connection.
	Err() error

	// Close tears the channel down. Idempotent.
	Close() error
}

// Factory opens endpoints. Exactly one of the two sides listens under
// a name derived from the connection code; the other derives the same
// name and dials it.
type Factory interface {
	// Listen claims name with the signaler and blocks until a peer
	// connects to it, ctx is cancelled, or the transport fails.
	// Returns ErrNameTaken if the name is already claimed.
	Listen(ctx context.Context, name string) (Endpoint, error)

	// Dial connects to the endpoint listening under name.
	Dial(ctx context.Context, name string) (Endpoint, error)
}
