// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model holds the data shapes shared across the core: the package
// search/info projections, the status snapshot, runtime versions, and the
// security audit summary that the backend adapter, cache, store, and
// dispatcher all pass around. These
// mirror spec.md §3 exactly; nothing here is specific to one component.
package model

// PackageInfo is the search-result projection (spec.md §3).
type PackageInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

// DetailedPackageInfo is the full package record (spec.md §3).
type DetailedPackageInfo struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Description  string   `json:"description"`
	URL          string   `json:"url"`
	InstallSize  uint64   `json:"install_size"`
	DownloadSize uint64   `json:"download_size"`
	Repo         string   `json:"repo"`
	Depends      []string `json:"depends"`
	Licenses     []string `json:"licenses"`
	Source       string   `json:"source"`
}

// Projection returns the PackageInfo view of a DetailedPackageInfo.
func (d DetailedPackageInfo) Projection() PackageInfo {
	return PackageInfo{
		Name:        d.Name,
		Version:     d.Version,
		Description: d.Description,
		Source:      d.Source,
	}
}

// RuntimeVersion is one (runtime, active version) pair (spec.md §3/§4.6).
type RuntimeVersion struct {
	Runtime string `json:"runtime"`
	Version string `json:"version"`
}

// StatusResult is the system status snapshot (spec.md §3).
type StatusResult struct {
	TotalPackages           uint32           `json:"total_packages"`
	ExplicitPackages        uint32           `json:"explicit_packages"`
	OrphanPackages          uint32           `json:"orphan_packages"`
	UpdatesAvailable        uint32           `json:"updates_available"`
	SecurityVulnerabilities uint32           `json:"security_vulnerabilities"`
	RuntimeVersions         []RuntimeVersion `json:"runtime_versions"`
}

// SecurityAuditSummary is the aggregated outcome of a SecurityAudit request
// (spec.md §4.7); the core only schedules and aggregates, a collaborator
// supplies the per-package severity counts.
type SecurityAuditSummary struct {
	Critical uint32 `json:"critical"`
	High     uint32 `json:"high"`
	Medium   uint32 `json:"medium"`
	Low      uint32 `json:"low"`
	Scanned  uint32 `json:"scanned"`
}
