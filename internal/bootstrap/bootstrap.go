// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bootstrap resolves the filesystem paths omgd needs (socket, fast-
// status file, PID file, data root) per spec.md §6 and idempotently
// prepares the data directory. Calling Resolve multiple times is safe and
// never mutates anything already on disk beyond directory creation.
package bootstrap

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths holds every filesystem location omgd's core touches.
type Paths struct {
	// Socket is the IPC listener path (§6: $XDG_RUNTIME_DIR/omg.sock or /tmp/omg.sock).
	Socket string

	// MetricsSocket is the local-only Prometheus exporter socket, a sibling of Socket.
	MetricsSocket string

	// Status is the fast-status file path (§4.2/§6).
	Status string

	// PIDFile is the daemon's exclusive lock file (§4.9/§6).
	PIDFile string

	// DataDir is the persistent data root (§6: $XDG_DATA_HOME/omg or ~/.local/share/omg).
	DataDir string

	// StorePath is the L2 store file, <DataDir>/cache.redb's successor: cache.bbolt.
	StorePath string
}

// Resolve computes Paths from the environment, honoring the OMG_* overrides
// before falling back to the XDG variables and finally to /tmp / ~/.local/share.
func Resolve() (Paths, error) {
	runtimeDir := firstNonEmpty(os.Getenv("XDG_RUNTIME_DIR"), "/tmp")

	dataDir := os.Getenv("OMG_DATA_DIR")
	if dataDir == "" {
		dataRoot := os.Getenv("XDG_DATA_HOME")
		if dataRoot == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return Paths{}, fmt.Errorf("resolve home dir: %w", err)
			}
			dataRoot = filepath.Join(home, ".local", "share")
		}
		dataDir = filepath.Join(dataRoot, "omg")
	}

	socket := os.Getenv("OMG_SOCKET_PATH")
	if socket == "" {
		socket = filepath.Join(runtimeDir, "omg.sock")
	}

	return Paths{
		Socket:        socket,
		MetricsSocket: filepath.Join(filepath.Dir(socket), "omg-metrics.sock"),
		Status:        filepath.Join(runtimeDir, "omg.status"),
		PIDFile:       filepath.Join(runtimeDir, "omgd.pid"),
		DataDir:       dataDir,
		StorePath:     filepath.Join(dataDir, "cache.bbolt"),
	}, nil
}

// ConfigPath resolves the optional TOML configuration file location (§6).
func ConfigPath() string {
	if dir := os.Getenv("OMG_CONFIG_DIR"); dir != "" {
		return filepath.Join(dir, "config.toml")
	}
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "omg", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "omg", "config.toml")
}

// EnsureDataDir creates the data directory (and its parents) if missing.
// Idempotent: calling it repeatedly is always safe.
func EnsureDataDir(p Paths, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(p.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	logger.Debug("bootstrap.datadir.ready", "data_dir", p.DataDir)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
