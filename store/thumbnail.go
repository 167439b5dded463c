// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"encoding/base64"
	"fmt"
)

// maxInlineThumbnail caps the payload size DataURIThumbnailer will
// inline. Larger payloads would bloat the characters table.
const maxInlineThumbnail = 256 * 1024

// DataURIThumbnailer encodes the payload as a base64 data URI without
// resizing. Real downscaling needs a codec; until one is wired in,
// thumbnails of oversized payloads are dropped rather than inlined.
type DataURIThumbnailer struct{}

func (DataURIThumbnailer) Thumbnail(data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	if len(data) > maxInlineThumbnail {
		return "", fmt.Errorf("thumbnail: payload %d bytes exceeds inline limit", len(data))
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
