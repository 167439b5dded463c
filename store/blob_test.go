// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBlobRoundtrip(t *testing.T) {
	blobs, err := NewFileBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBlobStore: %v", err)
	}

	payload := []byte("not actually a png")
	if err := blobs.Write("records/nbp-a-1/0.png", payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	exists, err := blobs.Exists("records/nbp-a-1/0.png")
	if err != nil || !exists {
		t.Fatalf("Exists = %v, %v; want true, nil", exists, err)
	}

	got, err := blobs.Read("records/nbp-a-1/0.png")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("Read = %q, want %q", got, payload)
	}
}

func TestBlobRemoveAll(t *testing.T) {
	blobs, err := NewFileBlobStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{"records/nbp-a-1/0.png", "records/nbp-a-1/1.png", "records/nbp-b-2/0.png"} {
		if err := blobs.Write(path, []byte("x")); err != nil {
			t.Fatalf("Write %s: %v", path, err)
		}
	}

	if err := blobs.RemoveAll("records/nbp-a-1"); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}

	exists, err := blobs.Exists("records/nbp-a-1/0.png")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("blob survived RemoveAll of its prefix")
	}
	exists, err = blobs.Exists("records/nbp-b-2/0.png")
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Fatal("RemoveAll deleted a sibling prefix")
	}
}

func TestBlobRejectsEscapingPaths(t *testing.T) {
	root := t.TempDir()
	blobs, err := NewFileBlobStore(filepath.Join(root, "blobs"))
	if err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{"../outside.txt", "..", "/etc/passwd", "a/../../outside.txt"} {
		if err := blobs.Write(path, []byte("x")); err == nil {
			t.Errorf("Write(%q) succeeded, want path rejection", path)
		}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if entry.Name() != "blobs" {
			t.Errorf("escaping write created %q outside the blob root", entry.Name())
		}
	}
}

func TestBlobWriteLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	blobs, err := NewFileBlobStore(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := blobs.Write("a.bin", []byte("payload")); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".tmp-") {
			t.Errorf("temp file %q left behind", entry.Name())
		}
	}
}

func TestThumbnailDataURI(t *testing.T) {
	var thumbnailer DataURIThumbnailer

	got, err := thumbnailer.Thumbnail([]byte("hi"), "image/png")
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	if got != "data:image/png;base64,aGk=" {
		t.Fatalf("Thumbnail = %q", got)
	}

	if got, err := thumbnailer.Thumbnail(nil, "image/png"); err != nil || got != "" {
		t.Fatalf("empty payload: got %q, %v", got, err)
	}

	if _, err := thumbnailer.Thumbnail(make([]byte, maxInlineThumbnail+1), "image/png"); err == nil {
		t.Fatal("oversized payload accepted")
	}
}
