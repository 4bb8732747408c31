// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import "errors"

// Decode errors. At the dispatcher boundary errUnknownTag maps to
// errors.CodeMethodNotFound and all the others to errors.CodeParseError
// (spec.md §7): a malformed frame never causes a panic or a
// silently-truncated partial decode.
var (
	errTruncated       = errors.New("protocol: truncated buffer")
	errMalformedVarint = errors.New("protocol: malformed varint")
	errStringOverrun   = errors.New("protocol: string length exceeds buffer")
	errInvalidUTF8     = errors.New("protocol: invalid utf-8 string")
	errUnknownTag      = errors.New("protocol: unknown tag byte")
	errTrailingBytes   = errors.New("protocol: trailing bytes after message")
)

// FrameError wraps a frame-length violation (spec.md §4.1: frames outside
// [1, MaxFrameBytes] are rejected before the payload is even read).
type FrameError struct {
	Len uint32
}

func (e *FrameError) Error() string {
	return "protocol: frame length out of bounds"
}
