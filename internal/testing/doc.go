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

// Package testing provides shared fixtures for omgd's internal test suites:
// a temp-backed L2 store, a seeded FakeBackend, and a published package
// index, so dispatcher/worker/daemon tests don't each reinvent wiring.
//
// # Quick Start
//
//	func TestMyFeature(t *testing.T) {
//	    fb := testing.SeededBackend(t, testing.SamplePackages())
//	    s := testing.SetupTestStore(t)
//	    idx := testing.SetupTestIndex(t, fb)
//	    // wire fb, s, idx into a dispatcher.Dispatcher ...
//	}
package testing
