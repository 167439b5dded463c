// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"errors"
	"testing"
	"time"

	"github.com/atelier-foundation/peersync/lib/clock"
	"github.com/atelier-foundation/peersync/lib/testutil"
	"github.com/atelier-foundation/peersync/transport"
)

func TestFlowSendsImmediatelyWhenDrained(t *testing.T) {
	a, b := transport.Pipe("a", "b")
	t.Cleanup(func() { a.Close(); b.Close() })

	flow := NewFlowController(a, FlowOptions{}, clock.Fake(time.Unix(0, 0)), nil)
	if err := flow.Send([]byte("payload")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := testutil.RequireReceive(t, b.Messages(), 5*time.Second, "payload delivery")
	if string(got) != "payload" {
		t.Fatalf("received %q", got)
	}
}

func TestFlowWaitsForBufferToDrain(t *testing.T) {
	a, b := transport.Pipe("a", "b")
	t.Cleanup(func() { a.Close(); b.Close() })

	fake := clock.Fake(time.Unix(0, 0))
	flow := NewFlowController(a, FlowOptions{}, fake, nil)

	a.SetBufferedAmount(DefaultDrainThreshold + 1)

	sent := make(chan error, 1)
	go func() { sent <- flow.Send([]byte("payload")) }()

	// The send must block while the buffer is above the threshold: one
	// poll ticker plus the escape deadline are pending.
	fake.WaitForTimers(2)
	select {
	case err := <-sent:
		t.Fatalf("Send returned (%v) while buffer above threshold", err)
	case <-time.After(50 * time.Millisecond):
	}

	// A poll tick with the buffer still high must not release it.
	fake.Advance(50 * time.Millisecond)
	select {
	case err := <-sent:
		t.Fatalf("Send returned (%v) after tick with full buffer", err)
	case <-time.After(50 * time.Millisecond):
	}

	a.SetBufferedAmount(DefaultDrainThreshold)
	fake.Advance(50 * time.Millisecond)

	if err := testutil.RequireReceive(t, sent, 5*time.Second, "Send return"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	testutil.RequireReceive(t, b.Messages(), 5*time.Second, "payload delivery")
}

func TestFlowEscapesAfterDrainTimeout(t *testing.T) {
	a, b := transport.Pipe("a", "b")
	t.Cleanup(func() { a.Close(); b.Close() })

	fake := clock.Fake(time.Unix(0, 0))
	flow := NewFlowController(a, FlowOptions{}, fake, nil)

	// Buffer never drains.
	a.SetBufferedAmount(10 * 1024 * 1024)

	sent := make(chan error, 1)
	go func() { sent <- flow.Send([]byte("payload")) }()
	fake.WaitForTimers(2)

	fake.Advance(60 * time.Second)

	// The escape proceeds with the send rather than stalling forever.
	if err := testutil.RequireReceive(t, sent, 5*time.Second, "Send return"); err != nil {
		t.Fatalf("Send after escape: %v", err)
	}
	testutil.RequireReceive(t, b.Messages(), 5*time.Second, "payload delivery")
}

func TestFlowFailsWhenConnectionCloses(t *testing.T) {
	a, b := transport.Pipe("a", "b")
	t.Cleanup(func() { b.Close() })

	fake := clock.Fake(time.Unix(0, 0))
	flow := NewFlowController(a, FlowOptions{}, fake, nil)

	a.SetBufferedAmount(DefaultDrainThreshold + 1)

	sent := make(chan error, 1)
	go func() { sent <- flow.Send([]byte("payload")) }()
	fake.WaitForTimers(2)

	a.Close()

	err := testutil.RequireReceive(t, sent, 5*time.Second, "Send return")
	if !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("Send error = %v, want ErrTransportClosed", err)
	}
}

func TestFlowDrainWaitsForEmptyBuffer(t *testing.T) {
	a, b := transport.Pipe("a", "b")
	t.Cleanup(func() { a.Close(); b.Close() })

	fake := clock.Fake(time.Unix(0, 0))
	flow := NewFlowController(a, FlowOptions{}, fake, nil)

	// At the threshold: Send would proceed, but Drain requires empty.
	a.SetBufferedAmount(1024)

	drained := make(chan error, 1)
	go func() { drained <- flow.Drain() }()
	fake.WaitForTimers(2)

	select {
	case err := <-drained:
		t.Fatalf("Drain returned (%v) with bytes still buffered", err)
	case <-time.After(50 * time.Millisecond):
	}

	a.SetBufferedAmount(0)
	fake.Advance(50 * time.Millisecond)

	if err := testutil.RequireReceive(t, drained, 5*time.Second, "Drain return"); err != nil {
		t.Fatalf("Drain: %v", err)
	}
}
