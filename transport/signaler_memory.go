// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"sync"
	"time"
)

// Compile-time interface check.
var _ Signaler = (*MemorySignaler)(nil)

// MemorySignaler is an in-process Signaler for tests. Offers and
// answers are exchanged through internal maps, bypassing the
// rendezvous server entirely. Two WebRTCFactory instances sharing the
// same MemorySignaler can establish PeerConnections without network
// signaling.
type MemorySignaler struct {
	mu       sync.Mutex
	names    map[string]bool
	offers   map[string][]SignalMessage // key: target name
	answers  map[string][]SignalMessage // key: target name
	lastSeen map[string]int             // consumed prefix per key
}

// NewMemorySignaler creates a new in-process signaler.
func NewMemorySignaler() *MemorySignaler {
	return &MemorySignaler{
		names:    make(map[string]bool),
		offers:   make(map[string][]SignalMessage),
		answers:  make(map[string][]SignalMessage),
		lastSeen: make(map[string]int),
	}
}

func (s *MemorySignaler) Register(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.names[name] {
		return ErrNameTaken
	}
	s.names[name] = true
	return nil
}

func (s *MemorySignaler) Unregister(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.names, name)
	return nil
}

func (s *MemorySignaler) PublishOffer(_ context.Context, from, target, sdp string) error {
	s.publish(s.offers, from, target, sdp)
	return nil
}

func (s *MemorySignaler) PublishAnswer(_ context.Context, from, target, sdp string) error {
	s.publish(s.answers, from, target, sdp)
	return nil
}

func (s *MemorySignaler) PollOffers(_ context.Context, name string) ([]SignalMessage, error) {
	return s.poll(s.offers, "offers", name), nil
}

func (s *MemorySignaler) PollAnswers(_ context.Context, name string) ([]SignalMessage, error) {
	return s.poll(s.answers, "answers", name), nil
}

func (s *MemorySignaler) publish(store map[string][]SignalMessage, from, target, sdp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	store[target] = append(store[target], SignalMessage{
		Peer:      from,
		SDP:       sdp,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// poll returns the messages for name that this consumer has not seen
// yet, tracking a consumed prefix per store/name pair.
func (s *MemorySignaler) poll(store map[string][]SignalMessage, storeLabel, name string) []SignalMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := store[name]
	seenKey := storeLabel + ":" + name
	consumed := s.lastSeen[seenKey]
	if consumed >= len(all) {
		return nil
	}
	fresh := make([]SignalMessage, len(all)-consumed)
	copy(fresh, all[consumed:])
	s.lastSeen[seenKey] = len(all)
	return fresh
}
