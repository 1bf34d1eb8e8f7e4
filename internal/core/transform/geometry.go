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

// Package transform converts one chunk of a source video into a
// fixed-canvas vertical reel. This file holds the pure geometry: given a
// source resolution and a target canvas, compute the scale that fits the
// source entirely inside the canvas without cropping and the symmetric
// padding that centers it.
package transform

import (
	"errors"
	"fmt"
	"math"
)

// Validation errors rejected before any transcoder invocation.
var (
	ErrInvalidResolution = errors.New("transform: source resolution must be positive")
	ErrInvalidCanvas     = errors.New("transform: canvas dimensions must be positive")
)

// Geometry is the scale and padding applied to fit a source frame into
// the target canvas. Padding applies to both sides; integer division may
// leave a one-pixel asymmetry, which the pad filter absorbs.
type Geometry struct {
	ScaleWidth  int
	ScaleHeight int
	PadX        int
	PadY        int
}

// FitToCanvas computes letterbox geometry for a source of (width, height)
// into a canvas of (canvasWidth, canvasHeight). When the source's aspect
// ratio is wider than the canvas the source is width-bound: scaled to the
// full canvas width with the height following the aspect ratio. Otherwise
// it is height-bound. The scaled frame always fits within the canvas.
func FitToCanvas(width, height, canvasWidth, canvasHeight int) (Geometry, error) {
	if width <= 0 || height <= 0 {
		return Geometry{}, fmt.Errorf("%w: %dx%d", ErrInvalidResolution, width, height)
	}
	if canvasWidth <= 0 || canvasHeight <= 0 {
		return Geometry{}, fmt.Errorf("%w: %dx%d", ErrInvalidCanvas, canvasWidth, canvasHeight)
	}

	var g Geometry
	// w/h > W/H compared in integers to avoid float drift.
	if width*canvasHeight > canvasWidth*height {
		g.ScaleWidth = canvasWidth
		g.ScaleHeight = int(math.Round(float64(canvasWidth) * float64(height) / float64(width)))
	} else {
		g.ScaleHeight = canvasHeight
		g.ScaleWidth = int(math.Round(float64(canvasHeight) * float64(width) / float64(height)))
	}

	g.PadX = (canvasWidth - g.ScaleWidth) / 2
	g.PadY = (canvasHeight - g.ScaleHeight) / 2
	return g, nil
}
