// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanSplitsWithShortTail(t *testing.T) {
	intervals, err := Plan(100, 35)
	require.NoError(t, err)
	require.Len(t, intervals, 3)

	assert.Equal(t, 0.0, intervals[0].StartSeconds)
	assert.Equal(t, 35.0, intervals[0].EndSeconds)
	assert.Equal(t, 35.0, intervals[1].StartSeconds)
	assert.Equal(t, 70.0, intervals[1].EndSeconds)
	assert.Equal(t, 70.0, intervals[2].StartSeconds)
	assert.Equal(t, 100.0, intervals[2].EndSeconds)
	assert.Equal(t, 30.0, intervals[2].DurationSeconds())
}

func TestPlanExactMultiple(t *testing.T) {
	intervals, err := Plan(105, 35)
	require.NoError(t, err)
	require.Len(t, intervals, 3)
	assert.Equal(t, 35.0, intervals[2].DurationSeconds())
}

func TestPlanSingleIntervalWhenShorterThanChunk(t *testing.T) {
	intervals, err := Plan(12.5, 35)
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	assert.Equal(t, 0.0, intervals[0].StartSeconds)
	assert.Equal(t, 12.5, intervals[0].EndSeconds)
}

func TestPlanRejectsInvalidInput(t *testing.T) {
	_, err := Plan(0, 35)
	assert.ErrorIs(t, err, ErrNonPositiveDuration)

	_, err = Plan(-10, 35)
	assert.ErrorIs(t, err, ErrNonPositiveDuration)

	_, err = Plan(100, 0)
	assert.ErrorIs(t, err, ErrNonPositiveLength)
}

// Covers the invariants for a spread of durations and chunk lengths:
// contiguous, non-overlapping, exact cover of [0, D), tail in (0, L].
func TestPlanInvariants(t *testing.T) {
	cases := []struct {
		d float64
		l float64
	}{
		{95, 35}, {100, 35}, {1, 35}, {35, 35}, {36, 35},
		{3600, 35}, {59.94, 10}, {7, 3.5}, {0.5, 35},
	}
	for _, tc := range cases {
		intervals, err := Plan(tc.d, tc.l)
		require.NoError(t, err)
		require.NotEmpty(t, intervals)

		prevEnd := 0.0
		for i, iv := range intervals {
			assert.Equal(t, i, iv.Sequence)
			assert.Equal(t, prevEnd, iv.StartSeconds, "intervals must be contiguous (D=%v L=%v)", tc.d, tc.l)
			assert.Greater(t, iv.EndSeconds, iv.StartSeconds)
			assert.LessOrEqual(t, iv.DurationSeconds(), tc.l+1e-9)
			prevEnd = iv.EndSeconds
		}
		assert.InDelta(t, tc.d, prevEnd, 1e-9, "intervals must cover [0, D) exactly (D=%v L=%v)", tc.d, tc.l)
	}
}
