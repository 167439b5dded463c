// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileBlobStore is a BlobStore rooted at a directory. Blob paths are
// slash-separated and must stay inside the root; writes go through a
// temp file and rename so readers never observe a partial blob.
type FileBlobStore struct {
	root string
}

// NewFileBlobStore creates the root directory if needed.
func NewFileBlobStore(root string) (*FileBlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}
	return &FileBlobStore{root: root}, nil
}

// resolve maps a blob path to a filesystem path, rejecting escapes.
func (s *FileBlobStore) resolve(path string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(path))
	if cleaned == "." || cleaned == ".." ||
		strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) ||
		filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("blob store: invalid path %q", path)
	}
	return filepath.Join(s.root, cleaned), nil
}

func (s *FileBlobStore) Write(path string, data []byte) error {
	target, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("blob store: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("blob store: writing %s: %w", path, err)
	}
	// Flush to disk before the rename: a crash must not leave the
	// final path referring to torn media.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("blob store: writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("blob store: writing %s: %w", path, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("blob store: writing %s: %w", path, err)
	}
	return nil
}

func (s *FileBlobStore) Read(path string) ([]byte, error) {
	target, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("blob store: reading %s: %w", path, err)
	}
	return data, nil
}

func (s *FileBlobStore) Exists(path string) (bool, error) {
	target, err := s.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("blob store: stat %s: %w", path, err)
	}
	return true, nil
}

func (s *FileBlobStore) RemoveAll(prefix string) error {
	target, err := s.resolve(prefix)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("blob store: removing %s: %w", prefix, err)
	}
	return nil
}
