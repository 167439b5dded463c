// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"sort"

	"github.com/zeebo/blake3"
)

// FingerprintLength is the number of symbols in a pairing fingerprint.
const FingerprintLength = 3

// Fingerprint derives the pairing fingerprint from the two endpoint
// names. The names are sorted before hashing, so both sides compute
// the same symbols regardless of which name is local. A relay that
// terminates the connection and re-dials (so each victim talks to the
// attacker, not each other) produces different endpoint-name pairs on
// the two sides, and therefore mismatched fingerprints for the humans
// to catch.
func Fingerprint(localName, remoteName string) string {
	names := []string{localName, remoteName}
	sort.Strings(names)

	sum := blake3.Sum256([]byte(names[0] + "|" + names[1]))

	symbols := make([]byte, FingerprintLength)
	for i := range symbols {
		symbols[i] = Alphabet[int(sum[i])%len(Alphabet)]
	}
	return string(symbols)
}
