// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/PyRo1121/omg-sub003/internal/model"
)

// RuntimeProber discovers the active version of language runtime version
// managers on the host (spec.md §4.6 probe_runtimes).
type RuntimeProber interface {
	Probe(ctx context.Context) ([]model.RuntimeVersion, error)
}

// shellRuntimeProber reads nvm's default alias file and shells out to the
// other version managers' own "current version" commands, skipping ones
// that aren't installed (spec.md §4.6: "skipping absent ones").
type shellRuntimeProber struct {
	homeDir string
}

// DefaultRuntimeProber returns a RuntimeProber that checks the handful of
// version managers this daemon knows about: nvm (node), pyenv (python),
// rbenv (ruby), and rustup (rust).
func DefaultRuntimeProber() RuntimeProber {
	home, _ := os.UserHomeDir()
	return &shellRuntimeProber{homeDir: home}
}

func (p *shellRuntimeProber) Probe(ctx context.Context) ([]model.RuntimeVersion, error) {
	var out []model.RuntimeVersion
	for _, probe := range []struct {
		runtime string
		fn      func(context.Context, string) (string, bool)
	}{
		{"node", p.probeNvm},
		{"python", p.probePyenv},
		{"ruby", p.probeRbenv},
		{"rust", p.probeRustup},
	} {
		if version, ok := probe.fn(ctx, p.homeDir); ok {
			out = append(out, model.RuntimeVersion{Runtime: probe.runtime, Version: version})
		}
	}
	return out, nil
}

func (p *shellRuntimeProber) probeNvm(ctx context.Context, home string) (string, bool) {
	alias := filepath.Join(home, ".nvm", "alias", "default")
	raw, err := os.ReadFile(alias)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(raw)), true
}

func (p *shellRuntimeProber) probePyenv(ctx context.Context, home string) (string, bool) {
	return runVersionCommand(ctx, "pyenv", "version-name")
}

func (p *shellRuntimeProber) probeRbenv(ctx context.Context, home string) (string, bool) {
	return runVersionCommand(ctx, "rbenv", "version-name")
}

func (p *shellRuntimeProber) probeRustup(ctx context.Context, home string) (string, bool) {
	return runVersionCommand(ctx, "rustup", "show", "active-toolchain")
}

func runVersionCommand(ctx context.Context, name string, args ...string) (string, bool) {
	if _, err := exec.LookPath(name); err != nil {
		return "", false
	}
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", false
	}
	line := strings.TrimSpace(out.String())
	if idx := strings.IndexByte(line, ' '); idx > 0 {
		line = line[:idx] // e.g. "stable-x86_64-unknown-linux-gnu (default)" → toolchain name
	}
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	if line == "" {
		return "", false
	}
	return line, true
}
