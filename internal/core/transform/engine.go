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
	"context"
	"fmt"
	"math"
	"time"
)

// Canvas and tolerance defaults. The 1080x1920 canvas is the standard
// 9:16 vertical reel resolution.
const (
	DefaultCanvasWidth       = 1080
	DefaultCanvasHeight      = 1920
	DefaultTimeout           = 5 * time.Minute
	DefaultDurationTolerance = 1.5
)

// Result describes one successfully rendered reel.
type Result struct {
	OutputPath      string
	DurationSeconds float64
	Geometry        Geometry
}

// Engine renders chunks onto a fixed vertical canvas through a
// Transcoder. It owns the policy around the raw invocation: input
// validation, geometry computation, the wall-clock timeout, and the
// duration post-condition on the produced file.
type Engine struct {
	transcoder        Transcoder
	canvasWidth       int
	canvasHeight      int
	timeout           time.Duration
	durationTolerance float64
}

// NewEngine returns an Engine over the given transcoder using the default
// canvas, timeout, and duration tolerance.
func NewEngine(transcoder Transcoder) *Engine {
	return &Engine{
		transcoder:        transcoder,
		canvasWidth:       DefaultCanvasWidth,
		canvasHeight:      DefaultCanvasHeight,
		timeout:           DefaultTimeout,
		durationTolerance: DefaultDurationTolerance,
	}
}

// NewEngineWithOptions returns an Engine with explicit canvas, timeout,
// and tolerance. Zero or negative values fall back to the defaults.
func NewEngineWithOptions(transcoder Transcoder, canvasWidth, canvasHeight int, timeout time.Duration, durationTolerance float64) *Engine {
	e := NewEngine(transcoder)
	if canvasWidth > 0 {
		e.canvasWidth = canvasWidth
	}
	if canvasHeight > 0 {
		e.canvasHeight = canvasHeight
	}
	if timeout > 0 {
		e.timeout = timeout
	}
	if durationTolerance > 0 {
		e.durationTolerance = durationTolerance
	}
	return e
}

// CanvasWidth returns the configured canvas width in pixels.
func (e *Engine) CanvasWidth() int { return e.canvasWidth }

// CanvasHeight returns the configured canvas height in pixels.
func (e *Engine) CanvasHeight() int { return e.canvasHeight }

// RenderChunk transforms the chunk file at inputPath, known to have the
// given source resolution and expected duration, into a vertical reel at
// outputPath.
//
// Logic Flow:
//  1. Validate the source resolution and compute letterbox geometry.
//  2. Invoke the transcoder with the engine's wall-clock timeout.
//  3. Verify the output file exists and its measured duration is within
//     the configured tolerance of the expected duration.
//
// A violated post-condition is an error for this chunk only. The engine
// does not delete the offending file; the caller decides cleanup.
func (e *Engine) RenderChunk(ctx context.Context, inputPath, outputPath string, width, height int, expectedSeconds float64) (Result, error) {
	geometry, err := FitToCanvas(width, height, e.canvasWidth, e.canvasHeight)
	if err != nil {
		return Result{}, err
	}

	measured, err := e.transcoder.Render(ctx, Invocation{
		InputPath:       inputPath,
		DurationSeconds: expectedSeconds,
		Geometry:        geometry,
		CanvasWidth:     e.canvasWidth,
		CanvasHeight:    e.canvasHeight,
		OutputPath:      outputPath,
		Timeout:         e.timeout,
	})
	if err != nil {
		return Result{}, fmt.Errorf("render %s: %w", inputPath, err)
	}

	if !fileExists(outputPath) {
		return Result{}, fmt.Errorf("%w: output file missing at %s", ErrTranscode, outputPath)
	}
	if expectedSeconds > 0 && math.Abs(measured-expectedSeconds) > e.durationTolerance {
		return Result{}, fmt.Errorf("%w: output duration %.2fs deviates from expected %.2fs by more than %.2fs",
			ErrTranscode, measured, expectedSeconds, e.durationTolerance)
	}

	return Result{
		OutputPath:      outputPath,
		DurationSeconds: measured,
		Geometry:        geometry,
	}, nil
}
