// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides PeerSync's standard CBOR encoding configuration.
//
// PeerSync uses two serialization formats with a clear boundary:
//
//   - JSON for the wire protocol: control frames and payload headers
//     exchanged over the data channel must interoperate with the
//     browser client, which speaks JSON.
//   - CBOR for on-disk state: transfer reports written to the state
//     directory after each run. These are internal files; CBOR with
//     Core Deterministic Encoding (RFC 8949 §4.2) keeps them compact
//     and byte-stable.
//
// This package holds the shared encoding and decoding modes so every
// consumer encodes identically without duplicating configuration.
package codec
