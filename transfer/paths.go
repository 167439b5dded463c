// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"bytes"
	"fmt"
)

// Blob layout: record payloads under records/<uuid>/, character images
// under characters/<name>/. Both sides of a transfer use the same
// layout, so a sender can locate the payloads a previous import wrote.

func recordBlobPrefix(uuid string) string {
	return "records/" + uuid
}

func recordImagePath(uuid string, index int, mimeType string) string {
	return fmt.Sprintf("records/%s/%d%s", uuid, index, extensionForMime(mimeType))
}

func recordVideoPath(uuid, mimeType string) string {
	return "records/" + uuid + "/video" + extensionForMime(mimeType)
}

func characterImagePath(name string) string {
	return "characters/" + name + "/image.png"
}

// extensionForMime maps the payload mime types this protocol carries
// to file extensions. Unknown types get a generic extension; the mime
// type in SQLite remains authoritative.
func extensionForMime(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	default:
		return ".bin"
	}
}

// sniffImageMime recognizes the image formats the protocol carries by
// magic bytes, defaulting to PNG.
func sniffImageMime(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return "image/png"
	case bytes.HasPrefix(data, []byte("\xff\xd8\xff")):
		return "image/jpeg"
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	default:
		return "image/png"
	}
}
