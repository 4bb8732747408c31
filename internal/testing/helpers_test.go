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

package testing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupTestStoreIsIsolatedPerTest(t *testing.T) {
	s1 := SetupTestStore(t)
	_, err := s1.AppendAudit([]byte("entry"))
	require.NoError(t, err)

	s2 := SetupTestStore(t)
	entries, err := s2.AuditEntries()
	require.NoError(t, err)
	assert.Empty(t, entries, "second store should be isolated from first")
}

func TestSeededBackendMarksOnlyFirstExplicit(t *testing.T) {
	fb := SeededBackend(t, SamplePackages())

	explicit, err := fb.ListExplicit(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"firefox"}, explicit)

	counts, err := fb.CountStatus(t.Context())
	require.NoError(t, err)
	assert.Equal(t, uint32(len(SamplePackages())), counts.Total)
	assert.Equal(t, uint32(1), counts.Explicit)
}

func TestSetupTestIndexPublishesEveryPackage(t *testing.T) {
	fb := SeededBackend(t, SamplePackages())
	idx := SetupTestIndex(t, fb)

	for _, p := range SamplePackages() {
		_, ok := idx.Load().Get(p.Name)
		assert.True(t, ok, "expected %s in published index", p.Name)
	}
}
