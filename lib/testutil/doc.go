// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for PeerSync packages.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with time.After fallback) so that individual
// tests do not need direct time.After calls. [RequireEventually] polls
// a condition driven by goroutine scheduling. These are the only
// places in the test suite where real wall-clock timeouts appear;
// protocol timing is always driven through lib/clock's fake clock or
// shortened configured durations.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no PeerSync-internal dependencies.
package testutil
