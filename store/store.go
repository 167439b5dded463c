// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"encoding/json"
)

// Record is a single generation-history entry. The UUID is the
// transfer identity: two stores holding a record with the same UUID
// hold the same logical record, whatever their local row ids are.
type Record struct {
	// ID is the local row id. Zero for records not yet persisted.
	ID int64

	// UUID has the form nbp-<base36 timestamp>-<random> and is stable
	// across peers.
	UUID string

	// Timestamp is Unix milliseconds of the original generation.
	Timestamp int64

	Prompt       string
	Mode         string
	Options      json.RawMessage
	Status       string
	ThinkingText string
	Error        string

	// ImageCount is the number of image payloads the record carries.
	// It may exceed len(Images) when payloads were lost in transfer.
	ImageCount int
	HasVideo   bool

	Images []RecordImage
	Video  *RecordVideo
}

// RecordImage is one image payload attached to a record. Pixel data
// lives in the blob store under Path; only metadata is in SQLite.
type RecordImage struct {
	Index    int
	Width    int
	Height   int
	Size     int64
	MimeType string
	Path     string
}

// RecordVideo is the optional single video payload of a record.
type RecordVideo struct {
	Width    int
	Height   int
	Size     int64
	MimeType string
	Path     string
}

// Character is a reusable character definition from the user's
// library. Name is the identity: imports deduplicate on it.
type Character struct {
	Name                string
	Description         string
	PhysicalTraits      string
	Clothing            string
	Accessories         string
	DistinctiveFeatures string

	// Thumbnail is a small encoded preview (data URI), kept inline
	// rather than in the blob store because it is bounded and always
	// loaded with the character.
	Thumbnail string
}

// Library is the record and character store the transfer engines work
// against. Implementations must make CreateRecord atomic with respect
// to its images and video: a record is either fully visible or absent.
type Library interface {
	// Records returns all history records, newest first, with image
	// and video metadata populated.
	Records(ctx context.Context) ([]Record, error)

	// RecordExists reports whether a record with the UUID is present.
	RecordExists(ctx context.Context, uuid string) (bool, error)

	// CreateRecord persists a record with its image and video rows in
	// one transaction and returns the new local id.
	CreateRecord(ctx context.Context, record *Record) (int64, error)

	// Characters returns all characters ordered by name.
	Characters(ctx context.Context) ([]Character, error)

	// CharacterExists reports whether a character with the name is
	// present.
	CharacterExists(ctx context.Context, name string) (bool, error)

	// CreateCharacter persists a character.
	CreateCharacter(ctx context.Context, character *Character) error
}

// BlobStore holds payload bytes keyed by slash-separated relative
// paths. Writes must be atomic: a concurrent reader sees either the
// complete blob or nothing.
type BlobStore interface {
	Write(path string, data []byte) error
	Read(path string) ([]byte, error)
	Exists(path string) (bool, error)

	// RemoveAll deletes every blob under the path prefix. Used to
	// discard the parts of a failed import.
	RemoveAll(prefix string) error
}

// Thumbnailer produces a small encoded preview for an image payload.
type Thumbnailer interface {
	Thumbnail(data []byte, mimeType string) (string, error)
}
