// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"strings"
	"testing"
)

func TestFingerprintSymmetry(t *testing.T) {
	a := Fingerprint("peersync-ABCDEF", "peersync-ABCDEF-peer-1a2b3c4d")
	b := Fingerprint("peersync-ABCDEF-peer-1a2b3c4d", "peersync-ABCDEF")
	if a != b {
		t.Fatalf("fingerprint depends on argument order: %q vs %q", a, b)
	}
}

func TestFingerprintDeterminism(t *testing.T) {
	first := Fingerprint("alpha", "beta")
	for j := 0; j < 10; j++ {
		if got := Fingerprint("alpha", "beta"); got != first {
			t.Fatalf("fingerprint not deterministic: %q vs %q", got, first)
		}
	}
}

func TestFingerprintShape(t *testing.T) {
	fp := Fingerprint("peersync-XYZ234", "peersync-XYZ234-peer-00ff00ff")
	if len(fp) != FingerprintLength {
		t.Fatalf("fingerprint %q: length %d, want %d", fp, len(fp), FingerprintLength)
	}
	for _, r := range fp {
		if !strings.ContainsRune(Alphabet, r) {
			t.Fatalf("fingerprint %q contains %q, not in alphabet", fp, r)
		}
	}
}

func TestFingerprintDistinguishesPairs(t *testing.T) {
	a := Fingerprint("peersync-AAAAAA", "peersync-AAAAAA-peer-11111111")
	b := Fingerprint("peersync-BBBBBB", "peersync-BBBBBB-peer-22222222")
	// A 3-symbol space is small, but distinct pairs hashing to the
	// same value for these fixed inputs would indicate the peer name
	// is not mixed into the hash at all.
	c := Fingerprint("peersync-AAAAAA", "peersync-AAAAAA-peer-33333333")
	if a == b && a == c {
		t.Fatalf("fingerprint constant across distinct name pairs: %q", a)
	}
}
