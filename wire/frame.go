// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Frame type tags. Exactly one tag byte precedes every frame on the
// wire. The values are fixed by the protocol and shared with the
// browser client.
const (
	TagJSON   byte = 0x4A // 'J': UTF-8 JSON control message
	TagBinary byte = 0x42 // 'B': JSON header + raw payload
	TagChunk  byte = 0x43 // 'C': one slice of a chunked payload
)

// ChunkSize is the payload size of a single Chunk frame. Payloads
// larger than this (video) are split so each wire message stays inside
// the data channel's safe message-size envelope.
const ChunkSize = 16384

// Kind identifies the decoded shape of a frame.
type Kind int

const (
	// KindControl is a Json frame that decoded to a Control message.
	KindControl Kind = iota

	// KindBinary is a Binary frame: header plus payload.
	KindBinary

	// KindChunk is a Chunk frame: one slice of a chunked payload.
	KindChunk

	// KindOpaque is the degradation arm: an unrecognized tag byte, a
	// Json frame whose body is not valid JSON, or a structurally
	// truncated Binary/Chunk frame. Payload holds the raw message
	// bytes. Receivers ignore opaque frames rather than failing the
	// session, so protocol revisions degrade instead of crashing.
	KindOpaque
)

// Frame is the decoded form of a single wire message.
type Frame struct {
	Kind Kind

	// Control is set for KindControl frames.
	Control Control

	// Header is set for KindBinary and KindChunk frames.
	Header Header

	// Payload is the binary payload (KindBinary), the chunk slice
	// (KindChunk), or the raw message bytes (KindOpaque).
	Payload []byte

	// ChunkIndex and TotalChunks are set for KindChunk frames.
	ChunkIndex  uint32
	TotalChunks uint32
}

// Header routes a Binary or Chunk payload on the receiver. Type is one
// of the Payload* constants; the remaining fields are populated
// according to the type.
type Header struct {
	Type string `json:"type"`

	// UUID identifies the record for record_image and record_video.
	UUID string `json:"uuid,omitempty"`

	// Name identifies the character for character_image.
	Name string `json:"name,omitempty"`

	// Index is the image ordinal within a record (record_image only).
	Index int `json:"index"`

	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

// Payload header type values.
const (
	PayloadRecordImage    = "record_image"
	PayloadRecordVideo    = "record_video"
	PayloadCharacterImage = "character_image"
)

// EncodeJSON frames an already-marshaled JSON body.
func EncodeJSON(body []byte) []byte {
	frame := make([]byte, 0, 1+len(body))
	frame = append(frame, TagJSON)
	return append(frame, body...)
}

// EncodeBinary frames a header and payload as a Binary frame:
// [tag][u32 LE headerLen][header JSON][payload].
func EncodeBinary(header Header, payload []byte) ([]byte, error) {
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("marshaling binary header: %w", err)
	}

	frame := make([]byte, 0, 1+4+len(headerJSON)+len(payload))
	frame = append(frame, TagBinary)
	frame = binary.LittleEndian.AppendUint32(frame, uint32(len(headerJSON)))
	frame = append(frame, headerJSON...)
	return append(frame, payload...), nil
}

// EncodeChunk frames one slice of a chunked payload:
// [tag][u32 LE chunkIndex][u32 LE totalChunks][u32 LE headerLen][header JSON][chunk].
func EncodeChunk(index, total uint32, header Header, chunk []byte) ([]byte, error) {
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("marshaling chunk header: %w", err)
	}

	frame := make([]byte, 0, 1+12+len(headerJSON)+len(chunk))
	frame = append(frame, TagChunk)
	frame = binary.LittleEndian.AppendUint32(frame, index)
	frame = binary.LittleEndian.AppendUint32(frame, total)
	frame = binary.LittleEndian.AppendUint32(frame, uint32(len(headerJSON)))
	frame = append(frame, headerJSON...)
	return append(frame, chunk...), nil
}

// SplitChunks slices data into ChunkSize pieces. The final piece may
// be shorter. Empty data yields a single empty chunk so the receiver
// still observes a complete (index 0 of 1) sequence.
func SplitChunks(data []byte) [][]byte {
	if len(data) == 0 {
		return [][]byte{{}}
	}
	chunks := make([][]byte, 0, (len(data)+ChunkSize-1)/ChunkSize)
	for offset := 0; offset < len(data); offset += ChunkSize {
		end := offset + ChunkSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[offset:end])
	}
	return chunks
}

// Decode parses one wire message. Decode never fails: anything that
// cannot be parsed — unknown tag byte, malformed JSON, truncated
// header — comes back as a KindOpaque frame carrying the raw bytes.
// Callers treat opaque frames as ignorable, which is what keeps two
// protocol revisions talking instead of tearing the session down.
func Decode(data []byte) Frame {
	if len(data) == 0 {
		return Frame{Kind: KindOpaque}
	}

	switch data[0] {
	case TagJSON:
		control, ok := decodeControl(data[1:])
		if !ok {
			return Frame{Kind: KindOpaque, Payload: data}
		}
		return Frame{Kind: KindControl, Control: control}

	case TagBinary:
		header, payload, ok := decodeBinaryBody(data[1:])
		if !ok {
			return Frame{Kind: KindOpaque, Payload: data}
		}
		return Frame{Kind: KindBinary, Header: header, Payload: payload}

	case TagChunk:
		body := data[1:]
		if len(body) < 12 {
			return Frame{Kind: KindOpaque, Payload: data}
		}
		index := binary.LittleEndian.Uint32(body[0:4])
		total := binary.LittleEndian.Uint32(body[4:8])
		header, chunk, ok := decodeHeaderAndRest(body[8:])
		if !ok {
			return Frame{Kind: KindOpaque, Payload: data}
		}
		return Frame{
			Kind:        KindChunk,
			Header:      header,
			Payload:     chunk,
			ChunkIndex:  index,
			TotalChunks: total,
		}

	default:
		return Frame{Kind: KindOpaque, Payload: data}
	}
}

// decodeBinaryBody parses [u32 LE headerLen][header JSON][payload].
func decodeBinaryBody(body []byte) (Header, []byte, bool) {
	return decodeHeaderAndRest(body)
}

// decodeHeaderAndRest parses a length-prefixed JSON header followed by
// arbitrary trailing bytes.
func decodeHeaderAndRest(body []byte) (Header, []byte, bool) {
	if len(body) < 4 {
		return Header{}, nil, false
	}
	headerLen := binary.LittleEndian.Uint32(body[0:4])
	if uint64(headerLen) > uint64(len(body)-4) {
		return Header{}, nil, false
	}
	headerJSON := body[4 : 4+headerLen]
	rest := body[4+headerLen:]

	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return Header{}, nil, false
	}
	return header, rest, true
}
