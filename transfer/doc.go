// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package transfer implements both sides of the history and character
// exchange over a paired session.
//
// The sender walks the local library one logical item at a time: a
// start frame with metadata, payload frames gated by the backpressure
// controller, an end frame, then a blocking wait for the peer's
// acknowledgement. An acknowledgement timeout fails only that item; a
// closed connection aborts the batch.
//
// The receiver assembles at most one record at a time from its start
// frame, image payloads, and an optionally chunked video, persists it
// idempotently (an already-present UUID is skipped, never
// overwritten), and acknowledges with the counts it actually received
// so the sender can detect partial loss. A record_end that outruns its
// payload frames arms a grace timer; the record finalizes the moment
// the declared part counts are satisfied, or when the timer expires,
// whichever comes first.
//
// The batch ends with a transfer_complete / transfer_ack exchange
// reconciling both sides' counters. Count mismatches are logged, not
// fatal: the aggregate tally is the user-facing outcome.
package transfer
