// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists the user's generation history and character
// library: record and image/video metadata in SQLite, payload bytes in
// a filesystem blob store. The transfer engines depend only on the
// Library, BlobStore, and Thumbnailer interfaces so tests can run
// against in-memory fakes.
package store
