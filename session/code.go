// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Alphabet is the 32-symbol connection-code alphabet: digits and
// uppercase letters minus the visually confusable 0, 1, I, and O.
// A code read aloud or retyped from another screen cannot be
// mis-transcribed into a different valid code by glyph confusion.
// 32 symbols also means the modulo mapping from random bytes is
// exactly uniform.
const Alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// CodeLength is the number of symbols in a connection code.
const CodeLength = 6

// endpointNamePrefix namespaces PeerSync endpoints on the shared
// rendezvous.
const endpointNamePrefix = "peersync-"

// GenerateCode returns a random connection code: CodeLength symbols
// drawn uniformly from Alphabet via crypto/rand.
func GenerateCode() string {
	var buf [CodeLength]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("session: reading random code: " + err.Error())
	}
	symbols := make([]byte, CodeLength)
	for i, b := range buf {
		symbols[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return string(symbols)
}

// NormalizeCode uppercases and validates a user-typed connection code.
func NormalizeCode(input string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(input))
	if len(code) != CodeLength {
		return "", fmt.Errorf("connection code must be %d characters, got %d", CodeLength, len(code))
	}
	for _, symbol := range code {
		if !strings.ContainsRune(Alphabet, symbol) {
			return "", fmt.Errorf("connection code contains invalid character %q", symbol)
		}
	}
	return code, nil
}

// EndpointName derives the sender's transport endpoint name from a
// connection code. Both sides compute this: the sender to listen, the
// receiver to dial.
func EndpointName(code string) string {
	return endpointNamePrefix + code
}
