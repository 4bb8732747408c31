// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package daemon

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// PIDLock holds an exclusive, non-blocking flock on a PID file (spec.md
// §4.9 step 1). Unlike the teacher's IndexQueue (syscall.Flock, retried
// with WaitForLock), startup contention here is fatal, not queued: only
// one omgd may ever own a given runtime directory.
type PIDLock struct {
	path string
	file *os.File
}

// ErrAlreadyRunning is returned by AcquirePIDLock when another process
// already holds the lock.
var ErrAlreadyRunning = fmt.Errorf("omgd: another instance is already running")

// AcquirePIDLock opens (creating if needed) the PID file at path and takes
// a non-blocking exclusive flock on it, per spec.md §4.9 step 1. On
// success the file is truncated and the caller's PID written.
func AcquirePIDLock(path string) (*PIDLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open pid file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("flock pid file: %w", err)
	}

	if err := f.Truncate(0); err != nil {
		releaseRaw(f)
		return nil, fmt.Errorf("truncate pid file: %w", err)
	}
	if _, err := f.WriteAt([]byte(fmt.Sprintf("%d\n", os.Getpid())), 0); err != nil {
		releaseRaw(f)
		return nil, fmt.Errorf("write pid file: %w", err)
	}

	return &PIDLock{path: path, file: f}, nil
}

// Release unlocks and removes the PID file (spec.md §4.9 shutdown step 4).
func (l *PIDLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	releaseRaw(l.file)
	l.file = nil
	return os.Remove(l.path)
}

func releaseRaw(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	_ = f.Close()
}
