// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"encoding/binary"
	"unicode/utf8"
)

// buffer is a growable byte buffer used by the encoders. Encoding never
// fails (spec.md §4.1: "encode(msg) → bytes is total"), so these helpers
// have no error return.
type buffer struct {
	b []byte
}

func (w *buffer) writeByte(v byte) { w.b = append(w.b, v) }

func (w *buffer) writeU32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	w.b = append(w.b, tmp[:]...)
}

func (w *buffer) writeU64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.b = append(w.b, tmp[:]...)
}

func (w *buffer) writeI32(v int32) { w.writeVarint(uint64(uint32(v))) }

// writeVarint encodes v as a base-128 little-endian varint (protobuf-style):
// 7 payload bits per byte, high bit set on every byte but the last.
func (w *buffer) writeVarint(v uint64) {
	for v >= 0x80 {
		w.b = append(w.b, byte(v)|0x80)
		v >>= 7
	}
	w.b = append(w.b, byte(v))
}

func (w *buffer) writeString(s string) {
	w.writeVarint(uint64(len(s)))
	w.b = append(w.b, s...)
}

func (w *buffer) writeBool(v bool) {
	if v {
		w.writeByte(1)
	} else {
		w.writeByte(0)
	}
}

func (w *buffer) writeOptionalU32(v *uint32) {
	if v == nil {
		w.writeByte(0)
		return
	}
	w.writeByte(1)
	w.writeU32(*v)
}

func (w *buffer) writeStrings(ss []string) {
	w.writeVarint(uint64(len(ss)))
	for _, s := range ss {
		w.writeString(s)
	}
}

// reader walks a decode buffer, tracking position explicitly so every read
// can be bounds-checked against the remaining slice.
type reader struct {
	b   []byte
	pos int
}

func (r *reader) remaining() int { return len(r.b) - r.pos }

func (r *reader) readByte() (byte, error) {
	if r.remaining() < 1 {
		return 0, errTruncated
	}
	v := r.b[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) readU32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, errTruncated
	}
	v := binary.BigEndian.Uint32(r.b[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *reader) readU64() (uint64, error) {
	if r.remaining() < 8 {
		return 0, errTruncated
	}
	v := binary.LittleEndian.Uint64(r.b[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *reader) readI32() (int32, error) {
	v, err := r.readVarint()
	if err != nil {
		return 0, err
	}
	return int32(uint32(v)), nil
}

func (r *reader) readVarint() (uint64, error) {
	var result uint64
	var shift uint
	for {
		if r.remaining() < 1 {
			return 0, errTruncated
		}
		if shift >= 64 {
			return 0, errMalformedVarint
		}
		b := r.b[r.pos]
		r.pos++
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}

func (r *reader) readBool() (bool, error) {
	v, err := r.readByte()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (r *reader) readString() (string, error) {
	n, err := r.readVarint()
	if err != nil {
		return "", err
	}
	if n > uint64(r.remaining()) {
		return "", errStringOverrun
	}
	s := r.b[r.pos : r.pos+int(n)]
	r.pos += int(n)
	if !utf8.Valid(s) {
		return "", errInvalidUTF8
	}
	return string(s), nil
}

func (r *reader) readOptionalU32() (*uint32, error) {
	present, err := r.readBool()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	v, err := r.readU32()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *reader) readStrings() ([]string, error) {
	n, err := r.readVarint()
	if err != nil {
		return nil, err
	}
	// Each string costs at least one length byte; reject absurd counts up
	// front instead of allocating a slice driven entirely by attacker input.
	if n > uint64(r.remaining()) {
		return nil, errStringOverrun
	}
	out := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		s, err := r.readString()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
