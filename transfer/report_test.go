// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestReportRoundtrip(t *testing.T) {
	dir := t.TempDir()

	report := Report{
		Role:        "sender",
		Peer:        "peersync-ABCDEF-peer-1a2b3c4d",
		Fingerprint: "X7Q",
		StartedAt:   time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC),
		FinishedAt:  time.Date(2026, 8, 26, 10, 5, 0, 0, time.UTC),
		Sent:        12,
		Imported:    10,
		Skipped:     2,
	}
	path, err := WriteReport(dir, report)
	if err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("report written to %s, want %s", path, dir)
	}

	reports, err := ListReports(dir)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("got %d reports, want 1", len(reports))
	}
	got := reports[0]
	if got.Role != report.Role || got.Fingerprint != report.Fingerprint ||
		got.Sent != report.Sent || got.Imported != report.Imported {
		t.Fatalf("report = %+v, want %+v", got, report)
	}
	if !got.FinishedAt.Equal(report.FinishedAt) {
		t.Fatalf("FinishedAt = %v, want %v", got.FinishedAt, report.FinishedAt)
	}
}

func TestListReportsNewestFirst(t *testing.T) {
	dir := t.TempDir()

	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if _, err := WriteReport(dir, Report{
			Role:       "receiver",
			FinishedAt: base.Add(time.Duration(i) * time.Hour),
			Imported:   i,
		}); err != nil {
			t.Fatal(err)
		}
	}

	reports, err := ListReports(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 3 {
		t.Fatalf("got %d reports, want 3", len(reports))
	}
	if reports[0].Imported != 2 || reports[2].Imported != 0 {
		t.Fatalf("reports out of order: %+v", reports)
	}
}

func TestListReportsSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()

	if _, err := WriteReport(dir, Report{Role: "sender", FinishedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "garbage.report"), []byte("not cbor"), 0o644); err != nil {
		t.Fatal(err)
	}

	reports, err := ListReports(dir)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("got %d reports, want the corrupt one skipped", len(reports))
	}
}

func TestListReportsMissingDir(t *testing.T) {
	reports, err := ListReports(filepath.Join(t.TempDir(), "never-created"))
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if reports != nil {
		t.Fatalf("reports = %v, want nil", reports)
	}
}
