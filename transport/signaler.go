// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "context"

// Signaler abstracts the rendezvous used to exchange WebRTC session
// descriptions between the two peers. The production implementation is
// [HTTPSignaler] against the rendezvous server; tests use
// [MemorySignaler].
//
// The signaling model is vanilla ICE: all ICE candidates are gathered
// before the SDP is published, so connection establishment requires
// exactly one signaling round-trip (offer → answer).
type Signaler interface {
	// Register claims a listener name. Returns ErrNameTaken when the
	// name is already claimed — the pairing layer regenerates its
	// connection code and retries.
	Register(ctx context.Context, name string) error

	// Unregister releases a previously claimed name. Best effort;
	// rendezvous entries also expire server-side.
	Unregister(ctx context.Context, name string) error

	// PublishOffer publishes a complete SDP offer directed at the
	// listener registered under target. from identifies the dialer so
	// the answer can be routed back.
	PublishOffer(ctx context.Context, from, target, sdp string) error

	// PublishAnswer publishes a complete SDP answer in response to a
	// previously received offer.
	PublishAnswer(ctx context.Context, from, target, sdp string) error

	// PollOffers returns pending offers directed at name.
	PollOffers(ctx context.Context, name string) ([]SignalMessage, error)

	// PollAnswers returns pending answers directed at name.
	PollAnswers(ctx context.Context, name string) ([]SignalMessage, error)
}

// SignalMessage is one signaling message (offer or answer).
type SignalMessage struct {
	// Peer is the endpoint name of the other party: the offerer for
	// received offers, the answerer for received answers.
	Peer string `json:"peer"`

	// SDP is the complete session description with all ICE candidates
	// embedded.
	SDP string `json:"sdp"`

	// Timestamp is the RFC 3339 creation time of the signal.
	Timestamp string `json:"timestamp"`
}
