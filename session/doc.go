// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package session implements pairing between two peers: short
// connection codes, order-independent pairing fingerprints, and the
// lifecycle state machine that gates data flow behind a mutual
// human confirmation handshake.
//
// A transfer starts with the sender generating a 6-symbol code from a
// confusion-resistant alphabet and listening under a name derived from
// it. The receiver dials that name. Once the data channel opens, both
// sides derive the same 3-symbol fingerprint from the pair of endpoint
// names and display it; each side sends confirm_pairing only after its
// human verifies the fingerprints match. Data frames are accepted only
// after both confirmations, so a frame arriving early is dropped, not
// buffered.
package session
