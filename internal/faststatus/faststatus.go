// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package faststatus implements the C2 fast-status file (spec.md §4.2): a
// fixed 32-byte little-endian snapshot of vital counters in a tmpfs path,
// published by atomic rename so an unrelated reader process never observes
// a torn or partially-written record.
package faststatus

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"
)

const (
	magic   uint32 = 0x4F4D4753
	version uint8  = 1

	// RecordSize is the fixed on-disk layout width (spec.md §3).
	RecordSize = 32

	// staleAfter is the age past which a structurally valid record is
	// reported stale rather than fresh (spec.md §4.2).
	staleAfter = 60 * time.Second
)

// ErrUnavailable is returned when the file is missing, the wrong size, or
// fails the magic/version check — spec.md §4.2's "unavailable" outcome.
var ErrUnavailable = errors.New("faststatus: unavailable")

// ErrStale is returned when the record parses correctly but its timestamp
// is more than 60 seconds old — spec.md §4.2's "stale" outcome. The caller
// decides whether to fall back to a live computation.
var ErrStale = errors.New("faststatus: stale")

// Record is the decoded view of the 32-byte on-disk layout.
type Record struct {
	TotalPackages    uint32
	ExplicitPackages uint32
	OrphanPackages   uint32
	UpdatesAvailable uint32
	Timestamp        time.Time
}

// Encode serializes r into the fixed 32-byte little-endian layout.
func Encode(r Record) [RecordSize]byte {
	var buf [RecordSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], magic)
	buf[4] = version
	// buf[5:8] reserved, left zero.
	binary.LittleEndian.PutUint32(buf[8:12], r.TotalPackages)
	binary.LittleEndian.PutUint32(buf[12:16], r.ExplicitPackages)
	binary.LittleEndian.PutUint32(buf[16:20], r.OrphanPackages)
	binary.LittleEndian.PutUint32(buf[20:24], r.UpdatesAvailable)
	binary.LittleEndian.PutUint64(buf[24:32], uint64(r.Timestamp.Unix()))
	return buf
}

// Decode validates and parses a 32-byte buffer read from the status file.
func Decode(buf []byte) (Record, error) {
	if len(buf) != RecordSize {
		return Record{}, ErrUnavailable
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != magic {
		return Record{}, ErrUnavailable
	}
	if buf[4] != version {
		return Record{}, ErrUnavailable
	}
	r := Record{
		TotalPackages:    binary.LittleEndian.Uint32(buf[8:12]),
		ExplicitPackages: binary.LittleEndian.Uint32(buf[12:16]),
		OrphanPackages:   binary.LittleEndian.Uint32(buf[16:20]),
		UpdatesAvailable: binary.LittleEndian.Uint32(buf[20:24]),
		Timestamp:        time.Unix(int64(binary.LittleEndian.Uint64(buf[24:32])), 0),
	}
	return r, nil
}

// Write publishes r to path by writing a sibling temporary file in the same
// directory and renaming it over path — same filesystem, so the rename is
// atomic and readers never observe a partial write (spec.md §4.2).
func Write(path string, r Record) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".omg-status-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	buf := Encode(r)

	if _, err := tmp.Write(buf[:]); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// Read opens path, reads exactly 32 bytes, and validates the record. It
// returns ErrUnavailable for a missing/foreign/truncated file, ErrStale for
// a structurally valid record older than 60 seconds, or the parsed Record.
func Read(path string) (Record, error) {
	return readAt(path, time.Now())
}

func readAt(path string, now time.Time) (Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return Record{}, ErrUnavailable
	}
	defer f.Close()

	var buf [RecordSize]byte
	if _, err := io.ReadFull(f, buf[:]); err != nil {
		// A short or empty file never decodes to a valid record, so a
		// truncated read is just another shape of "unavailable".
		return Record{}, ErrUnavailable
	}
	rec, err := Decode(buf[:])
	if err != nil {
		return Record{}, err
	}
	if now.Sub(rec.Timestamp) > staleAfter {
		return rec, ErrStale
	}
	return rec, nil
}
