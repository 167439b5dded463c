// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Compile-time interface checks.
var (
	_ Endpoint = (*PipeEndpoint)(nil)
	_ Factory  = (*MemoryFactory)(nil)
)

// pipeQueueDepth is the per-direction buffering of an in-process pipe.
// Deep enough that a whole test transfer fits without the consumer
// running concurrently.
const pipeQueueDepth = 4096

// Pipe returns two connected in-process Endpoints. Messages sent on
// one arrive whole and in order on the other, mirroring the data
// channel contract. The synthetic buffered amount starts at zero and
// is controlled explicitly via [PipeEndpoint.SetBufferedAmount], which
// lets flow-control tests stage drain scenarios without a network.
func Pipe(nameA, nameB string) (*PipeEndpoint, *PipeEndpoint) {
	a := newPipeEndpoint(nameA, nameB)
	b := newPipeEndpoint(nameB, nameA)
	a.remote = b
	b.remote = a
	return a, b
}

// PipeEndpoint is the in-process Endpoint used by protocol tests.
type PipeEndpoint struct {
	name string
	peer string

	remote *PipeEndpoint

	inbound  chan []byte
	messages chan []byte
	pumpOnce sync.Once

	buffered atomic.Int64

	closed    chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

func newPipeEndpoint(name, peer string) *PipeEndpoint {
	e := &PipeEndpoint{
		name:     name,
		peer:     peer,
		inbound:  make(chan []byte, pipeQueueDepth),
		messages: make(chan []byte),
		closed:   make(chan struct{}),
	}
	go e.pump()
	return e
}

func (e *PipeEndpoint) pump() {
	defer close(e.messages)
	for {
		select {
		case data := <-e.inbound:
			select {
			case e.messages <- data:
			case <-e.closed:
				return
			}
		case <-e.closed:
			return
		}
	}
}

func (e *PipeEndpoint) Name() string { return e.name }
func (e *PipeEndpoint) Peer() string { return e.peer }

// Send delivers data to the remote endpoint. A pipe closed on either
// side fails the send, matching a torn-down data channel.
func (e *PipeEndpoint) Send(data []byte) error {
	select {
	case <-e.closed:
		return e.Err()
	case <-e.remote.closed:
		return ErrClosed
	default:
	}

	// Copy so the caller may reuse its buffer, as pion does.
	owned := append([]byte(nil), data...)
	select {
	case e.remote.inbound <- owned:
		return nil
	case <-e.closed:
		return e.Err()
	case <-e.remote.closed:
		return ErrClosed
	}
}

// BufferedAmount reports the synthetic outbound buffer level set by
// the test.
func (e *PipeEndpoint) BufferedAmount() int {
	return int(e.buffered.Load())
}

// SetBufferedAmount sets the synthetic outbound buffer level.
func (e *PipeEndpoint) SetBufferedAmount(n int) {
	e.buffered.Store(int64(n))
}

func (e *PipeEndpoint) Messages() <-chan []byte { return e.messages }
func (e *PipeEndpoint) Closed() <-chan struct{} { return e.closed }

func (e *PipeEndpoint) Err() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.err
}

// Close tears down the pipe. Both sides observe closure: a hangup on
// one end of a data channel ends the association for the other end
// too. Each side's shutdown runs under its own once, so closing from
// both ends (or twice) is safe.
func (e *PipeEndpoint) Close() error {
	e.shutdown()
	e.remote.shutdown()
	return nil
}

func (e *PipeEndpoint) shutdown() {
	e.closeOnce.Do(func() {
		e.errMu.Lock()
		e.err = ErrClosed
		e.errMu.Unlock()
		close(e.closed)
	})
}

// MemoryFactory pairs in-process endpoints by name, standing in for
// the WebRTC factory in session and engine tests. Listen claims a
// name; Dial connects to it with a Pipe.
type MemoryFactory struct {
	mu        sync.Mutex
	listeners map[string]chan *PipeEndpoint
}

// NewMemoryFactory creates an empty in-process factory.
func NewMemoryFactory() *MemoryFactory {
	return &MemoryFactory{listeners: make(map[string]chan *PipeEndpoint)}
}

func (f *MemoryFactory) Listen(ctx context.Context, name string) (Endpoint, error) {
	f.mu.Lock()
	if _, exists := f.listeners[name]; exists {
		f.mu.Unlock()
		return nil, ErrNameTaken
	}
	arrival := make(chan *PipeEndpoint, 1)
	f.listeners[name] = arrival
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.listeners, name)
		f.mu.Unlock()
	}()

	select {
	case endpoint := <-arrival:
		return endpoint, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *MemoryFactory) Dial(ctx context.Context, name string) (Endpoint, error) {
	// The listener may not have registered yet; poll briefly, the way
	// a rendezvous lookup would retry.
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		f.mu.Lock()
		arrival, exists := f.listeners[name]
		f.mu.Unlock()

		if exists {
			local, remote := Pipe(name+"-peer-"+randomSuffix(), name)
			select {
			case arrival <- remote:
				return local, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
