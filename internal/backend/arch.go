// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/PyRo1121/omg-sub003/internal/model"
)

// archBackend reads pacman's local package database directly off disk: one
// subdirectory per installed package under localDir, each containing a
// "desc" file of %KEY%\nvalue(s)\n\n blocks.
type archBackend struct {
	localDir string
	probe    RuntimeProber
}

func newArchBackend(localDir string, probe RuntimeProber) *archBackend {
	if probe == nil {
		probe = DefaultRuntimeProber()
	}
	return &archBackend{localDir: localDir, probe: probe}
}

func (a *archBackend) Name() string { return "arch" }

func (a *archBackend) EnumerateAll(ctx context.Context) ([]model.DetailedPackageInfo, error) {
	entries, err := os.ReadDir(a.localDir)
	if err != nil {
		return nil, err
	}
	out := make([]model.DetailedPackageInfo, 0, len(entries))
	for _, e := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !e.IsDir() {
			continue
		}
		desc, err := parseDescFile(filepath.Join(a.localDir, e.Name(), "desc"))
		if err != nil {
			continue // skip unreadable/malformed entries rather than failing the whole scan
		}
		out = append(out, desc.toDetailedPackageInfo())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (a *archBackend) GetOne(ctx context.Context, name string) (model.DetailedPackageInfo, error) {
	dirs, err := os.ReadDir(a.localDir)
	if err != nil {
		return model.DetailedPackageInfo{}, err
	}
	prefix := name + "-"
	for _, e := range dirs {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		desc, err := parseDescFile(filepath.Join(a.localDir, e.Name(), "desc"))
		if err != nil {
			continue
		}
		if desc.name == name {
			return desc.toDetailedPackageInfo(), nil
		}
	}
	return model.DetailedPackageInfo{}, ErrPackageNotFound
}

func (a *archBackend) ListExplicit(ctx context.Context) ([]string, error) {
	all, err := a.enumerateDescs(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, d := range all {
		if d.explicit {
			out = append(out, d.name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (a *archBackend) CountStatus(ctx context.Context) (StatusCounts, error) {
	all, err := a.enumerateDescs(ctx)
	if err != nil {
		return StatusCounts{}, err
	}
	var counts StatusCounts
	counts.Total = uint32(len(all))
	for _, d := range all {
		if d.explicit {
			counts.Explicit++
		}
	}
	counts.Orphan = 0   // requires a reverse-dependency graph a collaborator supplies; none wired here
	counts.Updates = 0  // requires a remote sync database; none wired here
	return counts, nil
}

func (a *archBackend) ProbeRuntimes(ctx context.Context) ([]model.RuntimeVersion, error) {
	return a.probe.Probe(ctx)
}

func (a *archBackend) SourceMtime(ctx context.Context) (int64, error) {
	info, err := os.Stat(a.localDir)
	if err != nil {
		return 0, err
	}
	return info.ModTime().Unix(), nil
}

func (a *archBackend) enumerateDescs(ctx context.Context) ([]archDesc, error) {
	entries, err := os.ReadDir(a.localDir)
	if err != nil {
		return nil, err
	}
	out := make([]archDesc, 0, len(entries))
	for _, e := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !e.IsDir() {
			continue
		}
		desc, err := parseDescFile(filepath.Join(a.localDir, e.Name(), "desc"))
		if err != nil {
			continue
		}
		out = append(out, desc)
	}
	return out, nil
}

// archDesc is the parsed form of one pacman local database "desc" file.
type archDesc struct {
	name         string
	version      string
	description  string
	url          string
	installSize  uint64
	licenses     []string
	depends      []string
	explicit     bool
}

func (d archDesc) toDetailedPackageInfo() model.DetailedPackageInfo {
	return model.DetailedPackageInfo{
		Name:        d.name,
		Version:     d.version,
		Description: d.description,
		URL:         d.url,
		InstallSize: d.installSize,
		Repo:        "local",
		Depends:     d.depends,
		Licenses:    d.licenses,
		Source:      "official",
	}
}

// parseDescFile reads pacman's %KEY%\nvalue\nvalue\n\n block format.
func parseDescFile(path string) (archDesc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return archDesc{}, err
	}
	var d archDesc
	blocks := strings.Split(strings.ReplaceAll(string(raw), "\r\n", "\n"), "\n\n")
	for _, block := range blocks {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) == 0 || !strings.HasPrefix(lines[0], "%") {
			continue
		}
		key := strings.Trim(lines[0], "%")
		values := lines[1:]
		switch key {
		case "NAME":
			d.name = firstOrEmpty(values)
		case "VERSION":
			d.version = firstOrEmpty(values)
		case "DESC":
			d.description = firstOrEmpty(values)
		case "URL":
			d.url = firstOrEmpty(values)
		case "SIZE":
			if n, err := strconv.ParseUint(firstOrEmpty(values), 10, 64); err == nil {
				d.installSize = n
			}
		case "LICENSE":
			d.licenses = append(d.licenses, values...)
		case "DEPENDS":
			d.depends = append(d.depends, values...)
		case "REASON":
			// pacman: 0 = explicitly installed, 1 = installed as a dependency.
			d.explicit = firstOrEmpty(values) == "0" || firstOrEmpty(values) == ""
		}
	}
	return d, nil
}

func firstOrEmpty(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
