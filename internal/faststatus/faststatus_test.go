// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package faststatus

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "omg.status")
	want := Record{
		TotalPackages:    1234,
		ExplicitPackages: 200,
		OrphanPackages:   3,
		UpdatesAvailable: 5,
		Timestamp:        time.Now().Truncate(time.Second),
	}
	require.NoError(t, Write(path, want))

	got, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, want.TotalPackages, got.TotalPackages)
	require.Equal(t, want.ExplicitPackages, got.ExplicitPackages)
	require.Equal(t, want.OrphanPackages, got.OrphanPackages)
	require.Equal(t, want.UpdatesAvailable, got.UpdatesAvailable)
	require.True(t, want.Timestamp.Equal(got.Timestamp))
}

func TestReadMissingFileIsUnavailable(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.status"))
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestReadCorruptedMagicIsUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "omg.status")
	require.NoError(t, Write(path, Record{TotalPackages: 1, Timestamp: time.Now()}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[0] = 0x00
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = Read(path)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestReadTruncatedFileIsUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "omg.status")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))

	_, err := Read(path)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestReadWrongVersionIsUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "omg.status")
	require.NoError(t, Write(path, Record{Timestamp: time.Now()}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[4] = 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = Read(path)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestReadStaleRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "omg.status")
	old := time.Now().Add(-61 * time.Second)
	require.NoError(t, Write(path, Record{TotalPackages: 7, Timestamp: old}))

	rec, err := readAt(path, old.Add(61*time.Second))
	require.ErrorIs(t, err, ErrStale)
	require.Equal(t, uint32(7), rec.TotalPackages)
}

func TestReadFreshRecordJustUnderThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "omg.status")
	ts := time.Now().Add(-59 * time.Second)
	require.NoError(t, Write(path, Record{TotalPackages: 9, Timestamp: ts}))

	rec, err := readAt(path, ts.Add(59*time.Second))
	require.NoError(t, err)
	require.Equal(t, uint32(9), rec.TotalPackages)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	r := Record{
		TotalPackages:    10,
		ExplicitPackages: 20,
		OrphanPackages:   30,
		UpdatesAvailable: 40,
		Timestamp:        time.Unix(1700000000, 0),
	}
	buf := Encode(r)
	got, err := Decode(buf[:])
	require.NoError(t, err)
	require.Equal(t, r, got)
}

func TestDecodeRejectsWrongSize(t *testing.T) {
	_, err := Decode(make([]byte, 10))
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestWriteIsAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "omg.status")

	require.NoError(t, Write(path, Record{TotalPackages: 1, Timestamp: time.Now()}))
	require.NoError(t, Write(path, Record{TotalPackages: 2, Timestamp: time.Now()}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no leftover temp files after rename")

	got, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, uint32(2), got.TotalPackages)
}
