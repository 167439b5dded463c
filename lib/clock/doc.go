// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// The transfer protocol is a composition of bounded waits: the flow
// controller polls the endpoint's buffered amount, the sender waits on
// per-record acks, and the receiver waits for trailing payload parts
// after a record_end. [Real] backs these waits with the time package;
// [Fake] lets tests drive every deadline deterministically via
// [FakeClock.Advance] without real elapsed time.
package clock
