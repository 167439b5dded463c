// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the frame codec for the PeerSync transfer
// protocol.
//
// Three frame kinds share one data channel, distinguished by a single
// leading tag byte:
//
//   - Json (0x4A): control messages — pairing confirmation, record and
//     character boundaries, acknowledgements, final reconciliation.
//   - Binary (0x42): a whole payload (image) with a length-prefixed
//     JSON routing header.
//   - Chunk (0x43): one slice of a payload too large for a single
//     message (video), carrying its index and the total count so the
//     receiver can reassemble out of a map keyed by record UUID.
//
// All multi-byte integers are little-endian, matching the browser
// client's DataView usage. [Decode] is total: malformed or
// unrecognized input degrades to a [KindOpaque] frame rather than an
// error, so a session between two protocol revisions loses frames it
// does not understand instead of crashing.
package wire
