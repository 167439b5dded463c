// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport supplies the ordered, message-oriented peer
// channel the transfer protocol runs on.
//
// [Endpoint] is the contract the rest of PeerSync sees: whole messages
// in send order, a queryable outbound BufferedAmount for backpressure,
// and channel-based close/error observation. [Factory] opens
// endpoints: one side listens under a name derived from the connection
// code, the other derives the same name and dials.
//
// The production implementation, [WebRTCFactory], uses pion/webrtc
// data channels in message mode with ICE for NAT traversal. Each
// session gets one PeerConnection with a single ordered "sync"
// channel. Signaling is vanilla ICE — all candidates are gathered
// before the SDP is published, so one offer/answer round-trip
// establishes the connection.
//
// Signaling is abstracted behind [Signaler]. [HTTPSignaler] talks to
// the rendezvous server in production; [MemorySignaler] exchanges SDP
// through in-process maps for tests that exercise real pion
// connections on loopback.
//
// [Pipe] and [MemoryFactory] provide fully in-process endpoints with a
// synthetic, test-controlled buffered amount. The session and transfer
// packages test the entire protocol against these, no network or pion
// machinery involved.
package transport
