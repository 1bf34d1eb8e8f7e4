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

package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitToCanvasLandscapeSource(t *testing.T) {
	// A 16:9 landscape source on the 9:16 canvas is width-bound and gets
	// letterboxed top and bottom.
	g, err := FitToCanvas(1920, 1080, 1080, 1920)
	require.NoError(t, err)

	assert.Equal(t, 1080, g.ScaleWidth)
	assert.Equal(t, 608, g.ScaleHeight)
	assert.Equal(t, 0, g.PadX)
	assert.Equal(t, 656, g.PadY)
}

func TestFitToCanvasPortraitSource(t *testing.T) {
	// A narrow portrait source is height-bound and gets pillarboxed.
	g, err := FitToCanvas(480, 1920, 1080, 1920)
	require.NoError(t, err)

	assert.Equal(t, 1920, g.ScaleHeight)
	assert.Equal(t, 480, g.ScaleWidth)
	assert.Equal(t, 300, g.PadX)
	assert.Equal(t, 0, g.PadY)
}

func TestFitToCanvasExactAspectMatch(t *testing.T) {
	g, err := FitToCanvas(540, 960, 1080, 1920)
	require.NoError(t, err)

	assert.Equal(t, 1080, g.ScaleWidth)
	assert.Equal(t, 1920, g.ScaleHeight)
	assert.Equal(t, 0, g.PadX)
	assert.Equal(t, 0, g.PadY)
}

func TestFitToCanvasRejectsInvalidInput(t *testing.T) {
	_, err := FitToCanvas(0, 1080, 1080, 1920)
	assert.ErrorIs(t, err, ErrInvalidResolution)

	_, err = FitToCanvas(1920, -1, 1080, 1920)
	assert.ErrorIs(t, err, ErrInvalidResolution)

	_, err = FitToCanvas(1920, 1080, 0, 1920)
	assert.ErrorIs(t, err, ErrInvalidCanvas)
}

// The scaled frame must always fit inside the canvas with non-negative
// padding regardless of the source aspect ratio.
func TestFitToCanvasNeverOverflows(t *testing.T) {
	sources := [][2]int{
		{1920, 1080}, {1280, 720}, {3840, 2160}, {640, 480},
		{1080, 1920}, {720, 1280}, {100, 3000}, {3000, 100},
		{1, 1}, {1366, 768},
	}
	for _, s := range sources {
		g, err := FitToCanvas(s[0], s[1], 1080, 1920)
		require.NoError(t, err)

		assert.LessOrEqual(t, g.ScaleWidth, 1080, "source %dx%d", s[0], s[1])
		assert.LessOrEqual(t, g.ScaleHeight, 1920, "source %dx%d", s[0], s[1])
		assert.GreaterOrEqual(t, g.PadX, 0, "source %dx%d", s[0], s[1])
		assert.GreaterOrEqual(t, g.PadY, 0, "source %dx%d", s[0], s[1])
	}
}
