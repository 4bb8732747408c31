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

// Command omgd is the omg control-plane daemon (spec.md §6): it resolves
// its runtime paths, loads optional TOML configuration, opens the L2 store
// and package index, wires the request dispatcher and background refresh
// worker, and serves the Unix-socket IPC protocol until told to stop.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/spf13/pflag"

	"github.com/PyRo1121/omg-sub003/internal/backend"
	"github.com/PyRo1121/omg-sub003/internal/bootstrap"
	"github.com/PyRo1121/omg-sub003/internal/cache"
	"github.com/PyRo1121/omg-sub003/internal/config"
	"github.com/PyRo1121/omg-sub003/internal/daemon"
	"github.com/PyRo1121/omg-sub003/internal/dispatcher"
	omgerrors "github.com/PyRo1121/omg-sub003/internal/errors"
	"github.com/PyRo1121/omg-sub003/internal/faststatus"
	"github.com/PyRo1121/omg-sub003/internal/index"
	"github.com/PyRo1121/omg-sub003/internal/metrics"
	"github.com/PyRo1121/omg-sub003/internal/security"
	"github.com/PyRo1121/omg-sub003/internal/store"
	"github.com/PyRo1121/omg-sub003/internal/ui"
	"github.com/PyRo1121/omg-sub003/internal/worker"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		foreground = pflag.Bool("foreground", false, "run in the foreground and print colored status lines")
		socketPath = pflag.String("socket", "", "override the IPC socket path")
		configPath = pflag.String("config", "", "override the TOML config file path")
	)
	pflag.Parse()

	logLevel := slog.LevelInfo
	_ = logLevel.UnmarshalText([]byte(os.Getenv("OMG_LOG_LEVEL")))
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	paths, err := bootstrap.Resolve()
	if err != nil {
		omgerrors.FatalError(omgerrors.NewLockError("cannot resolve runtime paths", err.Error(), "check XDG_RUNTIME_DIR and HOME are set", err))
	}
	if *socketPath != "" {
		paths.Socket = *socketPath
	}

	if err := bootstrap.EnsureDataDir(paths, logger); err != nil {
		omgerrors.FatalError(omgerrors.NewStoreError("cannot prepare data directory", err.Error(), fmt.Sprintf("check permissions on %s", paths.DataDir), err))
	}

	cfgFile := *configPath
	if cfgFile == "" {
		cfgFile = bootstrap.ConfigPath()
	}
	cfgStore, err := config.NewStore(cfgFile)
	if err != nil {
		omgerrors.FatalError(omgerrors.NewConfigError("cannot load configuration", err.Error(), fmt.Sprintf("check %s for TOML syntax errors", cfgFile), err))
	}
	cfg := cfgStore.Current()

	st, err := store.Open(paths.StorePath)
	if err != nil {
		omgerrors.FatalError(omgerrors.NewStoreError("cannot open local store", err.Error(), fmt.Sprintf("check permissions on %s", paths.StorePath), err))
	}
	defer st.Close()

	c, err := cache.New(cache.Options{MaxEntries: cfg.MaxCacheEntries})
	if err != nil {
		omgerrors.FatalError(omgerrors.NewStoreError("cannot construct cache", err.Error(), "", err))
	}
	defer c.Close()

	be, err := backend.New(backend.Config{})
	if err != nil {
		omgerrors.FatalError(omgerrors.NewConfigError("cannot detect a supported package backend", err.Error(), "omgd supports Arch (pacman) hosts", err))
	}

	idx := &index.Handle{}
	var lastMtime int64
	if snap, err := st.LoadIndexSnapshot(); err == nil && len(snap.Packages) > 0 {
		idx.Store(index.Build(snap.Packages, snap.SourceMtime))
		lastMtime = snap.SourceMtime.Unix()
	}

	var vulnCount atomic.Uint32
	scanner := security.Scanner(security.NullScanner{})

	w := worker.New(worker.Config{
		Backend:         be,
		Cache:           c,
		Store:           st,
		Index:           idx,
		Scanner:         scanner,
		VulnCount:       &vulnCount,
		FastStatusPath:  paths.Status,
		LastSourceMtime: lastMtime,
		Logger:          logger,
	})

	disp := &dispatcher.Dispatcher{
		Cache:     c,
		Index:     idx,
		Backend:   be,
		Store:     st,
		Scanner:   scanner,
		VulnCount: &vulnCount,
		Logger:    logger,
	}

	if ln, err := daemon.Listen(paths.MetricsSocket); err != nil {
		logger.Warn("metrics.listen.failed", "error", err)
	} else {
		go func() {
			if err := metrics.Serve(ln); err != nil {
				logger.Warn("metrics.serve.stopped", "error", err)
			}
		}()
		defer os.Remove(paths.MetricsSocket)
	}

	d, err := daemon.New(daemon.Config{
		PIDFilePath: paths.PIDFile,
		SocketPath:  paths.Socket,
		Handler:     disp,
		Worker:      w,
		Logger:      logger,
		OnReload: func() error {
			return cfgStore.Reload()
		},
	})
	if err != nil {
		if *foreground {
			ui.Error(err.Error())
		}
		omgerrors.FatalError(omgerrors.NewLockError("cannot start daemon", err.Error(), "is another omgd instance already running?", err))
	}

	if *foreground {
		ui.Header("omgd")
		ui.Success(fmt.Sprintf("listening on %s", paths.Socket))
		ui.Info(fmt.Sprintf("backend: %s", be.Name()))
	}

	if err := touchFastStatus(paths.Status); err != nil {
		logger.Warn("faststatus.init.failed", "error", err)
	}

	if err := d.Run(context.Background()); err != nil {
		if *foreground {
			ui.Error(err.Error())
		}
		logger.Error("daemon.run.error", "error", err)
		return omgerrors.ExitFatal
	}

	if *foreground {
		ui.Success("shutdown complete")
	}
	return omgerrors.ExitSuccess
}

// touchFastStatus makes sure a readable status file exists immediately at
// startup, before the first worker tick has had a chance to publish one.
func touchFastStatus(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return faststatus.Write(path, faststatus.Record{})
}
