// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides PeerSync's standard SQLite connection pool.
//
// The library database (generation records, images, videos, characters)
// lives in a single SQLite file. This package wraps
// zombiezen.com/go/sqlite with production defaults: WAL journal mode,
// NORMAL synchronous for process-crash durability without
// fsync-per-commit overhead, and a busy timeout so the receiver engine's
// writes wait out brief contention instead of failing with SQLITE_BUSY.
//
// The pool is built on zombiezen's sqlitex.Pool, which manages a
// fixed-size set of connections. Callers [Pool.Take] a connection,
// perform work, and [Pool.Put] it back. Connections are NOT safe for
// concurrent use — each goroutine must hold its own connection for the
// duration of its work.
//
// Unlike most embedded-database wrappers, foreign_keys is ON here:
// record_images and record_videos reference records by rowid and must
// be cascade-deleted with their record.
//
// This package is intentionally thin: it applies standard pragmas and
// exposes the underlying zombiezen types directly. Consumers write SQL
// and use sqlitex.Execute for cached statements. There is no query
// builder and no ORM.
package sqlitepool
