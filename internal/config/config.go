// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads omgd's optional TOML configuration file (spec.md
// §6): defaults, overridden by the file if present. This package reads no
// environment variables; the OMG_* path overrides are handled by
// bootstrap.Resolve.
// A reload re-reads the file in place without disturbing the index or any
// open connection (spec.md §4.9's SIGHUP contract).
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults, per spec.md §6.
const (
	DefaultRefreshInterval = 300 * time.Second
	DefaultMaxCacheEntries = 1000
	DefaultCacheTTL        = 300 * time.Second
)

// Daemon holds the [daemon] table of the config file.
type Daemon struct {
	RefreshIntervalSeconds int `toml:"refresh_interval"`
	MaxCacheEntries        int `toml:"max_cache_entries"`
	CacheTTLSeconds        int `toml:"cache_ttl"`
}

// fileConfig mirrors the TOML file's shape exactly (spec.md §6's table).
type fileConfig struct {
	SocketPath string `toml:"socket_path"`
	DataDir    string `toml:"data_dir"`
	Daemon     Daemon `toml:"daemon"`
}

// Config is the resolved, typed configuration every other component reads.
type Config struct {
	SocketPath      string
	DataDir         string
	RefreshInterval time.Duration
	MaxCacheEntries int64
	CacheTTL        time.Duration
}

func defaults() Config {
	return Config{
		RefreshInterval: DefaultRefreshInterval,
		MaxCacheEntries: DefaultMaxCacheEntries,
		CacheTTL:        DefaultCacheTTL,
	}
}

// Load reads and parses the TOML file at path, applying it over the
// defaults. A missing file is not an error — Load returns the defaults
// unchanged, since the config file is optional (spec.md §6).
func Load(path string) (Config, error) {
	cfg := defaults()
	if path == "" {
		return cfg, nil
	}

	var fc fileConfig
	_, err := toml.DecodeFile(path, &fc)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyFile(&cfg, fc)
	return cfg, nil
}

func applyFile(cfg *Config, fc fileConfig) {
	if fc.SocketPath != "" {
		cfg.SocketPath = fc.SocketPath
	}
	if fc.DataDir != "" {
		cfg.DataDir = fc.DataDir
	}
	if fc.Daemon.RefreshIntervalSeconds > 0 {
		cfg.RefreshInterval = time.Duration(fc.Daemon.RefreshIntervalSeconds) * time.Second
	}
	if fc.Daemon.MaxCacheEntries > 0 {
		cfg.MaxCacheEntries = int64(fc.Daemon.MaxCacheEntries)
	}
	if fc.Daemon.CacheTTLSeconds > 0 {
		cfg.CacheTTL = time.Duration(fc.Daemon.CacheTTLSeconds) * time.Second
	}
}

// Store holds the currently active Config behind a mutex so SIGHUP reload
// (spec.md §4.9) can swap it in place while other goroutines read a
// consistent snapshot via Current.
type Store struct {
	mu   sync.RWMutex
	path string
	cfg  Config
}

// NewStore loads path once and returns a Store wrapping the result.
func NewStore(path string) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, cfg: cfg}, nil
}

// Current returns the active configuration snapshot.
func (s *Store) Current() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Reload re-reads the config file and swaps it in. On a parse error the
// previous configuration is kept and the error is returned for the caller
// to log — a bad reload must not disturb a running daemon (spec.md §4.9).
func (s *Store) Reload() error {
	cfg, err := Load(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}
