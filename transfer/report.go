// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/atelier-foundation/peersync/lib/codec"
)

// Report is the durable outcome of one transfer, written to the state
// directory so `peersync report` can show the last runs without the
// peers being connected.
type Report struct {
	Role        string    `cbor:"role"`
	Peer        string    `cbor:"peer"`
	Fingerprint string    `cbor:"fingerprint"`
	StartedAt   time.Time `cbor:"startedAt"`
	FinishedAt  time.Time `cbor:"finishedAt"`

	Sent     int `cbor:"sent,omitempty"`
	Imported int `cbor:"imported,omitempty"`
	Skipped  int `cbor:"skipped,omitempty"`
	Failed   int `cbor:"failed,omitempty"`

	// Error is the batch-level failure, empty on success.
	Error string `cbor:"error,omitempty"`
}

const reportExtension = ".report"

// WriteReport persists a report under dir, named by its finish time.
func WriteReport(dir string, report Report) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("report: %w", err)
	}
	data, err := codec.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("report: %w", err)
	}
	name := report.FinishedAt.UTC().Format("20060102T150405.000000000") + reportExtension
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("report: %w", err)
	}
	return path, nil
}

// ListReports loads every report under dir, newest first. Unreadable
// files are skipped so one corrupt report does not hide the rest.
func ListReports(dir string) ([]Report, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}

	var reports []Report
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), reportExtension) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		var report Report
		if err := codec.Unmarshal(data, &report); err != nil {
			continue
		}
		reports = append(reports, report)
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].FinishedAt.After(reports[j].FinishedAt)
	})
	return reports, nil
}
