// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
)

func openTestLibrary(t *testing.T) *SQLiteLibrary {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	library, err := OpenLibrary(filepath.Join(t.TempDir(), "library.db"), logger)
	if err != nil {
		t.Fatalf("OpenLibrary: %v", err)
	}
	t.Cleanup(func() { library.Close() })
	return library
}

func TestCreateAndListRecords(t *testing.T) {
	library := openTestLibrary(t)
	ctx := context.Background()

	record := &Record{
		UUID:       "nbp-abc-123",
		Timestamp:  1756166400000,
		Prompt:     "a lighthouse at dusk",
		Mode:       "image",
		Options:    json.RawMessage(`{"steps":30}`),
		Status:     "completed",
		ImageCount: 2,
		HasVideo:   true,
		Images: []RecordImage{
			{Index: 0, Width: 1024, Height: 768, Size: 150000, MimeType: "image/png", Path: "records/nbp-abc-123/0.png"},
			{Index: 1, Width: 1024, Height: 768, Size: 160000, MimeType: "image/png", Path: "records/nbp-abc-123/1.png"},
		},
		Video: &RecordVideo{Width: 1280, Height: 720, Size: 4000000, MimeType: "video/mp4", Path: "records/nbp-abc-123/video.mp4"},
	}

	id, err := library.CreateRecord(ctx, record)
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if id == 0 {
		t.Fatal("CreateRecord returned id 0")
	}

	records, err := library.Records(ctx)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	got := records[0]
	if got.UUID != record.UUID {
		t.Errorf("UUID = %q, want %q", got.UUID, record.UUID)
	}
	if got.Prompt != record.Prompt {
		t.Errorf("Prompt = %q, want %q", got.Prompt, record.Prompt)
	}
	if string(got.Options) != `{"steps":30}` {
		t.Errorf("Options = %s, want {\"steps\":30}", got.Options)
	}
	if len(got.Images) != 2 {
		t.Fatalf("got %d images, want 2", len(got.Images))
	}
	if got.Images[1].Path != "records/nbp-abc-123/1.png" {
		t.Errorf("image path = %q", got.Images[1].Path)
	}
	if got.Video == nil || got.Video.Path != "records/nbp-abc-123/video.mp4" {
		t.Errorf("video = %+v", got.Video)
	}
	if !got.HasVideo {
		t.Error("HasVideo = false")
	}
}

func TestRecordExists(t *testing.T) {
	library := openTestLibrary(t)
	ctx := context.Background()

	exists, err := library.RecordExists(ctx, "nbp-missing-000")
	if err != nil {
		t.Fatalf("RecordExists: %v", err)
	}
	if exists {
		t.Fatal("RecordExists = true for missing uuid")
	}

	if _, err := library.CreateRecord(ctx, &Record{UUID: "nbp-abc-123", Timestamp: 1}); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}

	exists, err = library.RecordExists(ctx, "nbp-abc-123")
	if err != nil {
		t.Fatalf("RecordExists: %v", err)
	}
	if !exists {
		t.Fatal("RecordExists = false after create")
	}
}

func TestDuplicateUUIDRejected(t *testing.T) {
	library := openTestLibrary(t)
	ctx := context.Background()

	if _, err := library.CreateRecord(ctx, &Record{UUID: "nbp-dup-1", Timestamp: 1}); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if _, err := library.CreateRecord(ctx, &Record{UUID: "nbp-dup-1", Timestamp: 2}); err == nil {
		t.Fatal("second CreateRecord with same uuid succeeded")
	}

	records, err := library.Records(ctx)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records after duplicate insert, want 1", len(records))
	}
}

func TestRecordsNewestFirst(t *testing.T) {
	library := openTestLibrary(t)
	ctx := context.Background()

	for i, uuid := range []string{"nbp-old-1", "nbp-mid-2", "nbp-new-3"} {
		if _, err := library.CreateRecord(ctx, &Record{UUID: uuid, Timestamp: int64(i + 1)}); err != nil {
			t.Fatalf("CreateRecord %s: %v", uuid, err)
		}
	}

	records, err := library.Records(ctx)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if records[0].UUID != "nbp-new-3" || records[2].UUID != "nbp-old-1" {
		t.Fatalf("order = [%s %s %s], want newest first",
			records[0].UUID, records[1].UUID, records[2].UUID)
	}
}

func TestCharacters(t *testing.T) {
	library := openTestLibrary(t)
	ctx := context.Background()

	character := &Character{
		Name:                "Mira",
		Description:         "wandering cartographer",
		PhysicalTraits:      "tall, silver hair",
		Clothing:            "waxed canvas coat",
		Accessories:         "brass compass",
		DistinctiveFeatures: "scar over left eyebrow",
		Thumbnail:           "data:image/png;base64,aGk=",
	}
	if err := library.CreateCharacter(ctx, character); err != nil {
		t.Fatalf("CreateCharacter: %v", err)
	}

	exists, err := library.CharacterExists(ctx, "Mira")
	if err != nil {
		t.Fatalf("CharacterExists: %v", err)
	}
	if !exists {
		t.Fatal("CharacterExists = false after create")
	}

	characters, err := library.Characters(ctx)
	if err != nil {
		t.Fatalf("Characters: %v", err)
	}
	if len(characters) != 1 {
		t.Fatalf("got %d characters, want 1", len(characters))
	}
	if characters[0] != *character {
		t.Fatalf("character = %+v, want %+v", characters[0], *character)
	}

	if err := library.CreateCharacter(ctx, character); err == nil {
		t.Fatal("duplicate CreateCharacter succeeded")
	}
}
