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

// Package ui provides the handful of colored status lines omgd prints when
// run with --foreground. It is not a TUI or a human CLI surface — those
// stay out of the core per spec.md §1 — just log-adjacent banner lines.
//
// Colors respect the NO_COLOR environment variable and are automatically
// disabled when stdout is not a TTY.
package ui

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

var (
	Green  = color.New(color.FgGreen)
	Yellow = color.New(color.FgYellow)
	Red    = color.New(color.FgRed)
	Cyan   = color.New(color.FgCyan)
	Bold   = color.New(color.Bold)
)

// Success prints a green line with a checkmark prefix.
func Success(msg string) {
	_, _ = Green.Println("✓ " + msg)
}

// Warning prints a yellow line with a warning-symbol prefix.
func Warning(msg string) {
	_, _ = Yellow.Println("⚠ " + msg)
}

// Error prints a red line with an X prefix.
func Error(msg string) {
	_, _ = Red.Println("✗ " + msg)
}

// Info prints a cyan line with an info-symbol prefix.
func Info(msg string) {
	_, _ = Cyan.Println("ℹ " + msg)
}

// Infof prints a formatted cyan line with an info-symbol prefix.
func Infof(format string, args ...any) {
	_, _ = Cyan.Printf("ℹ "+format+"\n", args...)
}

// Header prints a bold banner line with an underline separator, used once
// at daemon startup in --foreground mode.
func Header(text string) {
	_, _ = Bold.Println(text)
	fmt.Println(strings.Repeat("=", len(text)))
}
