// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package contract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateQueryBoundary(t *testing.T) {
	exact := strings.Repeat("a", MaxQueryBytes)
	over := strings.Repeat("a", MaxQueryBytes+1)

	assert.True(t, ValidateQuery(exact).OK)
	assert.False(t, ValidateQuery(over).OK)
}

func TestClampSearchLimit(t *testing.T) {
	fifty := 50
	six00 := 600
	zero := 0

	assert.Equal(t, DefaultSearchLimit, ClampSearchLimit(nil))
	assert.Equal(t, fifty, ClampSearchLimit(&fifty))
	assert.Equal(t, MaxSearchLimit, ClampSearchLimit(&six00))
	assert.Equal(t, DefaultSearchLimit, ClampSearchLimit(&zero))
}

func TestValidateBatchSizeBoundary(t *testing.T) {
	assert.True(t, ValidateBatchSize(MaxBatchRequests).OK)
	assert.False(t, ValidateBatchSize(MaxBatchRequests+1).OK)
}
