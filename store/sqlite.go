// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/atelier-foundation/peersync/lib/sqlitepool"
)

const schema = `
	CREATE TABLE IF NOT EXISTS records (
		id            INTEGER PRIMARY KEY,
		uuid          TEXT NOT NULL UNIQUE,
		timestamp     INTEGER NOT NULL,
		prompt        TEXT NOT NULL DEFAULT '',
		mode          TEXT NOT NULL DEFAULT '',
		options       TEXT,
		status        TEXT NOT NULL DEFAULT '',
		thinking_text TEXT NOT NULL DEFAULT '',
		error         TEXT NOT NULL DEFAULT '',
		image_count   INTEGER NOT NULL DEFAULT 0,
		has_video     INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_records_timestamp ON records(timestamp);

	CREATE TABLE IF NOT EXISTS record_images (
		record_id INTEGER NOT NULL REFERENCES records(id) ON DELETE CASCADE,
		idx       INTEGER NOT NULL,
		width     INTEGER NOT NULL DEFAULT 0,
		height    INTEGER NOT NULL DEFAULT 0,
		size      INTEGER NOT NULL DEFAULT 0,
		mime_type TEXT NOT NULL DEFAULT '',
		path      TEXT NOT NULL,
		PRIMARY KEY (record_id, idx)
	);

	CREATE TABLE IF NOT EXISTS record_videos (
		record_id INTEGER PRIMARY KEY REFERENCES records(id) ON DELETE CASCADE,
		width     INTEGER NOT NULL DEFAULT 0,
		height    INTEGER NOT NULL DEFAULT 0,
		size      INTEGER NOT NULL DEFAULT 0,
		mime_type TEXT NOT NULL DEFAULT '',
		path      TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS characters (
		name                 TEXT PRIMARY KEY,
		description          TEXT NOT NULL DEFAULT '',
		physical_traits      TEXT NOT NULL DEFAULT '',
		clothing             TEXT NOT NULL DEFAULT '',
		accessories          TEXT NOT NULL DEFAULT '',
		distinctive_features TEXT NOT NULL DEFAULT '',
		thumbnail            TEXT NOT NULL DEFAULT ''
	);
`

// SQLiteLibrary is the Library implementation over a local SQLite
// database. Payload bytes live in a BlobStore; this holds metadata
// only.
type SQLiteLibrary struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// OpenLibrary opens (creating if needed) the library database at path.
func OpenLibrary(path string, logger *slog.Logger) (*SQLiteLibrary, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("library: %w", err)
	}

	conn, err := pool.Take(context.Background())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("library: %w", err)
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		pool.Put(conn)
		pool.Close()
		return nil, fmt.Errorf("library: applying schema: %w", err)
	}
	pool.Put(conn)

	return &SQLiteLibrary{pool: pool, logger: logger}, nil
}

// Close closes the underlying connection pool.
func (l *SQLiteLibrary) Close() error {
	return l.pool.Close()
}

func (l *SQLiteLibrary) Records(ctx context.Context) ([]Record, error) {
	conn, err := l.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("library: records: %w", err)
	}
	defer l.pool.Put(conn)

	var records []Record
	byID := make(map[int64]int)

	err = sqlitex.Execute(conn, `SELECT id, uuid, timestamp, prompt, mode,
		options, status, thinking_text, error, image_count, has_video
		FROM records ORDER BY timestamp DESC`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			record := scanRecord(stmt)
			byID[record.ID] = len(records)
			records = append(records, record)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("library: records: %w", err)
	}

	err = sqlitex.Execute(conn, `SELECT record_id, idx, width, height, size,
		mime_type, path FROM record_images ORDER BY record_id, idx`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				position, ok := byID[stmt.ColumnInt64(0)]
				if !ok {
					return nil
				}
				records[position].Images = append(records[position].Images, RecordImage{
					Index:    stmt.ColumnInt(1),
					Width:    stmt.ColumnInt(2),
					Height:   stmt.ColumnInt(3),
					Size:     stmt.ColumnInt64(4),
					MimeType: stmt.ColumnText(5),
					Path:     stmt.ColumnText(6),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("library: record images: %w", err)
	}

	err = sqlitex.Execute(conn, `SELECT record_id, width, height, size,
		mime_type, path FROM record_videos`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			position, ok := byID[stmt.ColumnInt64(0)]
			if !ok {
				return nil
			}
			records[position].Video = &RecordVideo{
				Width:    stmt.ColumnInt(1),
				Height:   stmt.ColumnInt(2),
				Size:     stmt.ColumnInt64(3),
				MimeType: stmt.ColumnText(4),
				Path:     stmt.ColumnText(5),
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("library: record videos: %w", err)
	}

	return records, nil
}

func scanRecord(stmt *sqlite.Stmt) Record {
	record := Record{
		ID:           stmt.ColumnInt64(0),
		UUID:         stmt.ColumnText(1),
		Timestamp:    stmt.ColumnInt64(2),
		Prompt:       stmt.ColumnText(3),
		Mode:         stmt.ColumnText(4),
		Status:       stmt.ColumnText(6),
		ThinkingText: stmt.ColumnText(7),
		Error:        stmt.ColumnText(8),
		ImageCount:   stmt.ColumnInt(9),
		HasVideo:     stmt.ColumnInt(10) != 0,
	}
	if !stmt.ColumnIsNull(5) {
		record.Options = []byte(stmt.ColumnText(5))
	}
	return record
}

func (l *SQLiteLibrary) RecordExists(ctx context.Context, uuid string) (bool, error) {
	conn, err := l.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("library: record exists: %w", err)
	}
	defer l.pool.Put(conn)

	var exists bool
	err = sqlitex.Execute(conn, "SELECT 1 FROM records WHERE uuid = ?",
		&sqlitex.ExecOptions{
			Args: []any{uuid},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				exists = true
				return nil
			},
		})
	if err != nil {
		return false, fmt.Errorf("library: record exists: %w", err)
	}
	return exists, nil
}

func (l *SQLiteLibrary) CreateRecord(ctx context.Context, record *Record) (int64, error) {
	conn, err := l.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("library: create record: %w", err)
	}
	defer l.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return 0, fmt.Errorf("library: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	var options any
	if len(record.Options) > 0 {
		options = string(record.Options)
	}
	hasVideo := 0
	if record.HasVideo {
		hasVideo = 1
	}

	err = sqlitex.Execute(conn, `INSERT INTO records
		(uuid, timestamp, prompt, mode, options, status, thinking_text,
		 error, image_count, has_video)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			record.UUID,
			record.Timestamp,
			record.Prompt,
			record.Mode,
			options,
			record.Status,
			record.ThinkingText,
			record.Error,
			record.ImageCount,
			hasVideo,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("library: insert record %s: %w", record.UUID, err)
	}
	id := conn.LastInsertRowID()

	for _, image := range record.Images {
		err = sqlitex.Execute(conn, `INSERT INTO record_images
			(record_id, idx, width, height, size, mime_type, path)
			VALUES (?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
			Args: []any{id, image.Index, image.Width, image.Height,
				image.Size, image.MimeType, image.Path},
		})
		if err != nil {
			return 0, fmt.Errorf("library: insert image %d of %s: %w",
				image.Index, record.UUID, err)
		}
	}

	if record.Video != nil {
		err = sqlitex.Execute(conn, `INSERT INTO record_videos
			(record_id, width, height, size, mime_type, path)
			VALUES (?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
			Args: []any{id, record.Video.Width, record.Video.Height,
				record.Video.Size, record.Video.MimeType, record.Video.Path},
		})
		if err != nil {
			return 0, fmt.Errorf("library: insert video of %s: %w", record.UUID, err)
		}
	}

	return id, nil
}

func (l *SQLiteLibrary) Characters(ctx context.Context) ([]Character, error) {
	conn, err := l.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("library: characters: %w", err)
	}
	defer l.pool.Put(conn)

	var characters []Character
	err = sqlitex.Execute(conn, `SELECT name, description, physical_traits,
		clothing, accessories, distinctive_features, thumbnail
		FROM characters ORDER BY name`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			characters = append(characters, Character{
				Name:                stmt.ColumnText(0),
				Description:         stmt.ColumnText(1),
				PhysicalTraits:      stmt.ColumnText(2),
				Clothing:            stmt.ColumnText(3),
				Accessories:         stmt.ColumnText(4),
				DistinctiveFeatures: stmt.ColumnText(5),
				Thumbnail:           stmt.ColumnText(6),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("library: characters: %w", err)
	}
	return characters, nil
}

func (l *SQLiteLibrary) CharacterExists(ctx context.Context, name string) (bool, error) {
	conn, err := l.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("library: character exists: %w", err)
	}
	defer l.pool.Put(conn)

	var exists bool
	err = sqlitex.Execute(conn, "SELECT 1 FROM characters WHERE name = ?",
		&sqlitex.ExecOptions{
			Args: []any{name},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				exists = true
				return nil
			},
		})
	if err != nil {
		return false, fmt.Errorf("library: character exists: %w", err)
	}
	return exists, nil
}

func (l *SQLiteLibrary) CreateCharacter(ctx context.Context, character *Character) error {
	conn, err := l.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("library: create character: %w", err)
	}
	defer l.pool.Put(conn)

	err = sqlitex.Execute(conn, `INSERT INTO characters
		(name, description, physical_traits, clothing, accessories,
		 distinctive_features, thumbnail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			character.Name,
			character.Description,
			character.PhysicalTraits,
			character.Clothing,
			character.Accessories,
			character.DistinctiveFeatures,
			character.Thumbnail,
		},
	})
	if err != nil {
		return fmt.Errorf("library: insert character %q: %w", character.Name, err)
	}
	return nil
}
