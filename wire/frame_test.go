// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"strings"
	"testing"
)

func TestBinaryRoundtrip(t *testing.T) {
	tests := []struct {
		name    string
		header  Header
		payload []byte
	}{
		{
			name: "record image",
			header: Header{
				Type:     PayloadRecordImage,
				UUID:     "nbp-abc-123",
				Index:    1,
				Width:    1024,
				Height:   768,
				Size:     3,
				MimeType: "image/png",
			},
			payload: []byte{0x89, 0x50, 0x4e},
		},
		{
			name: "character image",
			header: Header{
				Type:     PayloadCharacterImage,
				Name:     "Captain Vex",
				Size:     4,
				MimeType: "image/webp",
			},
			payload: []byte("RIFF"),
		},
		{
			name: "empty payload",
			header: Header{
				Type: PayloadRecordImage,
				UUID: "nbp-empty-1",
			},
			payload: nil,
		},
		{
			name: "large header string",
			header: Header{
				Type:     PayloadRecordImage,
				UUID:     "nbp-" + strings.Repeat("x", 100_000),
				MimeType: "image/png",
			},
			payload: []byte{1, 2, 3, 4},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			encoded, err := EncodeBinary(test.header, test.payload)
			if err != nil {
				t.Fatalf("EncodeBinary: %v", err)
			}
			if encoded[0] != TagBinary {
				t.Fatalf("tag byte = %#x, want %#x", encoded[0], TagBinary)
			}

			frame := Decode(encoded)
			if frame.Kind != KindBinary {
				t.Fatalf("Kind = %v, want KindBinary", frame.Kind)
			}
			if !reflect.DeepEqual(frame.Header, test.header) {
				t.Errorf("header = %+v, want %+v", frame.Header, test.header)
			}
			if !bytes.Equal(frame.Payload, test.payload) {
				t.Errorf("payload = %v, want %v", frame.Payload, test.payload)
			}
		})
	}
}

func TestChunkRoundtrip(t *testing.T) {
	header := Header{
		Type:     PayloadRecordVideo,
		UUID:     "nbp-vid-77",
		Width:    1920,
		Height:   1080,
		Size:     1 << 20,
		MimeType: "video/mp4",
	}
	chunk := bytes.Repeat([]byte{0xAB}, ChunkSize)

	encoded, err := EncodeChunk(3, 9, header, chunk)
	if err != nil {
		t.Fatalf("EncodeChunk: %v", err)
	}
	if encoded[0] != TagChunk {
		t.Fatalf("tag byte = %#x, want %#x", encoded[0], TagChunk)
	}

	frame := Decode(encoded)
	if frame.Kind != KindChunk {
		t.Fatalf("Kind = %v, want KindChunk", frame.Kind)
	}
	if frame.ChunkIndex != 3 || frame.TotalChunks != 9 {
		t.Errorf("chunk position = %d/%d, want 3/9", frame.ChunkIndex, frame.TotalChunks)
	}
	if !reflect.DeepEqual(frame.Header, header) {
		t.Errorf("header = %+v, want %+v", frame.Header, header)
	}
	if !bytes.Equal(frame.Payload, chunk) {
		t.Errorf("chunk data mismatch (%d bytes, want %d)", len(frame.Payload), len(chunk))
	}
}

func TestSplitChunks(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		wantCount int
		wantLast  int
	}{
		{name: "empty", size: 0, wantCount: 1, wantLast: 0},
		{name: "single partial", size: 100, wantCount: 1, wantLast: 100},
		{name: "exact boundary", size: 2 * ChunkSize, wantCount: 2, wantLast: ChunkSize},
		{name: "boundary plus one", size: ChunkSize + 1, wantCount: 2, wantLast: 1},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			data := bytes.Repeat([]byte{0x7F}, test.size)
			chunks := SplitChunks(data)
			if len(chunks) != test.wantCount {
				t.Fatalf("chunk count = %d, want %d", len(chunks), test.wantCount)
			}
			if len(chunks[len(chunks)-1]) != test.wantLast {
				t.Errorf("last chunk = %d bytes, want %d", len(chunks[len(chunks)-1]), test.wantLast)
			}
			total := 0
			for _, c := range chunks {
				total += len(c)
			}
			if total != test.size {
				t.Errorf("reassembled size = %d, want %d", total, test.size)
			}
		})
	}
}

func TestDecodeDegradesToOpaque(t *testing.T) {
	truncatedBinary := []byte{TagBinary, 0xFF, 0xFF, 0xFF}

	// Header length claims more bytes than the frame holds.
	overlongHeader := []byte{TagBinary}
	overlongHeader = binary.LittleEndian.AppendUint32(overlongHeader, 1000)
	overlongHeader = append(overlongHeader, []byte(`{"type":"record_image"}`)...)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty message", data: nil},
		{name: "unknown tag", data: []byte{0x7E, 1, 2, 3}},
		{name: "malformed json", data: append([]byte{TagJSON}, "{not json"...)},
		{name: "json array not object", data: append([]byte{TagJSON}, "[1,2,3]"...)},
		{name: "truncated binary", data: truncatedBinary},
		{name: "overlong header length", data: overlongHeader},
		{name: "truncated chunk", data: []byte{TagChunk, 0, 0, 0, 1}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			frame := Decode(test.data)
			if frame.Kind != KindOpaque {
				t.Fatalf("Kind = %v, want KindOpaque", frame.Kind)
			}
			if !bytes.Equal(frame.Payload, test.data) {
				t.Errorf("opaque payload does not preserve raw bytes")
			}
		})
	}
}
