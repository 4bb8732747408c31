// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquirePIDLockWritesPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "omgd.pid")
	lock, err := AcquirePIDLock(path)
	require.NoError(t, err)
	defer lock.Release()

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(contents), "\n")
}

func TestAcquirePIDLockFailsOnContention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "omgd.pid")
	first, err := AcquirePIDLock(path)
	require.NoError(t, err)
	defer first.Release()

	_, err = AcquirePIDLock(path)
	require.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestReleaseRemovesPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "omgd.pid")
	lock, err := AcquirePIDLock(path)
	require.NoError(t, err)

	require.NoError(t, lock.Release())
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestAcquirePIDLockSucceedsAfterRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "omgd.pid")
	first, err := AcquirePIDLock(path)
	require.NoError(t, err)
	require.NoError(t, first.Release())

	second, err := AcquirePIDLock(path)
	require.NoError(t, err)
	defer second.Release()
}
