// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atelier-foundation/peersync/lib/testutil"
)

func TestPipeDeliversInOrder(t *testing.T) {
	a, b := Pipe("alpha", "beta")
	defer a.Close()
	defer b.Close()

	payloads := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for _, p := range payloads {
		if err := a.Send(p); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	for i, want := range payloads {
		got := testutil.RequireReceive(t, b.Messages(), 5*time.Second, "message %d", i)
		if !bytes.Equal(got, want) {
			t.Errorf("message %d = %q, want %q", i, got, want)
		}
	}
}

func TestPipeSendAfterCloseFails(t *testing.T) {
	a, b := Pipe("alpha", "beta")
	b.Close()

	if err := a.Send([]byte("late")); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after remote close = %v, want ErrClosed", err)
	}

	a.Close()
	if err := a.Send([]byte("later")); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after local close = %v, want ErrClosed", err)
	}
}

func TestPipeCloseSignals(t *testing.T) {
	a, b := Pipe("alpha", "beta")
	defer b.Close()

	a.Close()
	testutil.RequireClosed(t, a.Closed(), time.Second, "closed channel")
	if !errors.Is(a.Err(), ErrClosed) {
		t.Errorf("Err = %v, want ErrClosed", a.Err())
	}

	// A hangup ends the association for the remote side too.
	testutil.RequireClosed(t, b.Closed(), time.Second, "remote closed channel")

	// The consumer-facing messages channel closes too.
	select {
	case _, ok := <-a.Messages():
		if ok {
			t.Error("unexpected message after close")
		}
	case <-time.After(time.Second):
		t.Error("messages channel did not close")
	}
}

func TestPipeCloseReturnsPromptly(t *testing.T) {
	a, b := Pipe("alpha", "beta")

	// Close from both ends, twice. Each side's teardown signals the
	// peer without re-entering its own close path, so none of these
	// calls may block.
	done := make(chan struct{})
	go func() {
		a.Close()
		b.Close()
		a.Close()
		close(done)
	}()
	testutil.RequireClosed(t, done, 2*time.Second, "Close returned")
	testutil.RequireClosed(t, a.Closed(), time.Second, "a closed")
	testutil.RequireClosed(t, b.Closed(), time.Second, "b closed")
}

func TestPipeBufferedAmount(t *testing.T) {
	a, _ := Pipe("alpha", "beta")
	defer a.Close()

	if a.BufferedAmount() != 0 {
		t.Fatalf("initial BufferedAmount = %d, want 0", a.BufferedAmount())
	}
	a.SetBufferedAmount(128 * 1024)
	if a.BufferedAmount() != 128*1024 {
		t.Fatalf("BufferedAmount = %d, want %d", a.BufferedAmount(), 128*1024)
	}
}

func TestMemoryFactoryPairsEndpoints(t *testing.T) {
	factory := NewMemoryFactory()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type listenResult struct {
		endpoint Endpoint
		err      error
	}
	listenDone := make(chan listenResult, 1)
	go func() {
		endpoint, err := factory.Listen(ctx, "peersync-ABC234")
		listenDone <- listenResult{endpoint, err}
	}()

	dialer, err := factory.Dial(ctx, "peersync-ABC234")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer dialer.Close()

	result := testutil.RequireReceive(t, listenDone, 5*time.Second, "listener")
	if result.err != nil {
		t.Fatalf("Listen: %v", result.err)
	}
	listener := result.endpoint
	defer listener.Close()

	if listener.Name() != "peersync-ABC234" {
		t.Errorf("listener name = %q", listener.Name())
	}
	if dialer.Peer() != "peersync-ABC234" {
		t.Errorf("dialer peer = %q", dialer.Peer())
	}
	// Names must differ: both feed the pairing fingerprint.
	if dialer.Name() == listener.Name() {
		t.Errorf("dialer and listener share the name %q", dialer.Name())
	}

	if err := dialer.Send([]byte("ping")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := testutil.RequireReceive(t, listener.Messages(), 5*time.Second, "ping")
	if string(got) != "ping" {
		t.Errorf("message = %q, want ping", got)
	}
}

func TestMemoryFactoryNameCollision(t *testing.T) {
	factory := NewMemoryFactory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go factory.Listen(ctx, "peersync-TAKEN9")

	// Wait for the first listener to claim the name.
	testutil.RequireEventually(t, func() bool {
		factory.mu.Lock()
		defer factory.mu.Unlock()
		_, exists := factory.listeners["peersync-TAKEN9"]
		return exists
	}, 2*time.Second, "first listener registration")

	shortCtx, shortCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer shortCancel()
	_, err := factory.Listen(shortCtx, "peersync-TAKEN9")
	if !errors.Is(err, ErrNameTaken) {
		t.Fatalf("second Listen = %v, want ErrNameTaken", err)
	}
}
