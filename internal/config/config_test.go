// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	require.Equal(t, DefaultRefreshInterval, cfg.RefreshInterval)
	require.Equal(t, int64(DefaultMaxCacheEntries), cfg.MaxCacheEntries)
	require.Equal(t, DefaultCacheTTL, cfg.CacheTTL)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, defaults(), cfg)
}

func TestLoadOverridesDefaultsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
socket_path = "/custom/omg.sock"
data_dir = "/custom/data"

[daemon]
refresh_interval = 60
max_cache_entries = 2000
cache_ttl = 120
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/custom/omg.sock", cfg.SocketPath)
	require.Equal(t, "/custom/data", cfg.DataDir)
	require.Equal(t, 60*time.Second, cfg.RefreshInterval)
	require.Equal(t, int64(2000), cfg.MaxCacheEntries)
	require.Equal(t, 120*time.Second, cfg.CacheTTL)
}

func TestLoadPartialFileKeepsRemainingDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`socket_path = "/only/this.sock"`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/only/this.sock", cfg.SocketPath)
	require.Equal(t, DefaultRefreshInterval, cfg.RefreshInterval)
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("not = [valid"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestStoreReloadPicksUpChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`socket_path = "/first.sock"`), 0o644))

	s, err := NewStore(path)
	require.NoError(t, err)
	require.Equal(t, "/first.sock", s.Current().SocketPath)

	require.NoError(t, os.WriteFile(path, []byte(`socket_path = "/second.sock"`), 0o644))
	require.NoError(t, s.Reload())
	require.Equal(t, "/second.sock", s.Current().SocketPath)
}

func TestStoreReloadKeepsPreviousConfigOnParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`socket_path = "/good.sock"`), 0o644))

	s, err := NewStore(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("not = [valid"), 0o644))
	require.Error(t, s.Reload())
	require.Equal(t, "/good.sock", s.Current().SocketPath)
}
