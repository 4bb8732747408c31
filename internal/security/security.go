// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security defines the collaborator boundary spec.md §4.7/§4.8
// delegate to for vulnerability data: the core only schedules scans with
// bounded concurrency and aggregates severity buckets, never the scanning
// logic itself.
package security

import (
	"context"

	"github.com/PyRo1121/omg-sub003/internal/model"
)

// Severity is one package's worst known vulnerability rating.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// Scanner is the external collaborator that knows how to classify a single
// package's vulnerability exposure. The core never interprets the scan
// itself — only the returned Severity.
type Scanner interface {
	ScanPackage(ctx context.Context, pkgName, version string) (Severity, error)
}

// NullScanner reports every package as unaffected. It is the collaborator
// used when no real scanner has been wired in (e.g. local development).
type NullScanner struct{}

func (NullScanner) ScanPackage(ctx context.Context, pkgName, version string) (Severity, error) {
	return SeverityNone, nil
}

// Aggregate tallies a set of per-package severities into the summary shape
// the wire protocol carries (spec.md §3 SecurityAuditSummary).
func Aggregate(severities []Severity) model.SecurityAuditSummary {
	var s model.SecurityAuditSummary
	for _, sev := range severities {
		s.Scanned++
		switch sev {
		case SeverityCritical:
			s.Critical++
		case SeverityHigh:
			s.High++
		case SeverityMedium:
			s.Medium++
		case SeverityLow:
			s.Low++
		}
	}
	return s
}

// TotalVulnerable counts packages with any severity above SeverityNone —
// the worker's notion of "vulnerability count" (spec.md §4.8).
func TotalVulnerable(severities []Severity) uint32 {
	var n uint32
	for _, sev := range severities {
		if sev > SeverityNone {
			n++
		}
	}
	return n
}
