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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTranscoder records invocations and writes a placeholder output file
// so the engine's existence post-condition can pass.
type fakeTranscoder struct {
	lastInvocation Invocation
	renderSeconds  float64
	renderErr      error
	skipOutput     bool
}

func (f *fakeTranscoder) Cut(_ context.Context, _, outputPath string, _, _ float64, _ time.Duration) error {
	return os.WriteFile(outputPath, []byte("chunk"), 0o644)
}

func (f *fakeTranscoder) Render(_ context.Context, inv Invocation) (float64, error) {
	f.lastInvocation = inv
	if f.renderErr != nil {
		return 0, f.renderErr
	}
	if !f.skipOutput {
		if err := os.WriteFile(inv.OutputPath, []byte("reel"), 0o644); err != nil {
			return 0, err
		}
	}
	return f.renderSeconds, nil
}

func (f *fakeTranscoder) Probe(_ context.Context, _ string) (ProbeResult, error) {
	return ProbeResult{DurationSeconds: f.renderSeconds, Width: 1920, Height: 1080}, nil
}

func TestRenderChunkComputesGeometryAndPasses(t *testing.T) {
	fake := &fakeTranscoder{renderSeconds: 35.0}
	engine := NewEngine(fake)
	out := filepath.Join(t.TempDir(), "reel_000.mp4")

	result, err := engine.RenderChunk(context.Background(), "in.mp4", out, 1920, 1080, 35.0)
	require.NoError(t, err)

	assert.Equal(t, out, result.OutputPath)
	assert.Equal(t, 35.0, result.DurationSeconds)
	assert.Equal(t, 1080, result.Geometry.ScaleWidth)
	assert.Equal(t, 608, result.Geometry.ScaleHeight)
	assert.Equal(t, 656, result.Geometry.PadY)

	assert.Equal(t, 1080, fake.lastInvocation.CanvasWidth)
	assert.Equal(t, 1920, fake.lastInvocation.CanvasHeight)
	assert.Equal(t, DefaultTimeout, fake.lastInvocation.Timeout)
}

func TestRenderChunkRejectsBadResolution(t *testing.T) {
	engine := NewEngine(&fakeTranscoder{renderSeconds: 35.0})

	_, err := engine.RenderChunk(context.Background(), "in.mp4", "out.mp4", 0, 1080, 35.0)
	assert.ErrorIs(t, err, ErrInvalidResolution)
}

func TestRenderChunkFailsWhenOutputMissing(t *testing.T) {
	fake := &fakeTranscoder{renderSeconds: 35.0, skipOutput: true}
	engine := NewEngine(fake)
	out := filepath.Join(t.TempDir(), "reel_000.mp4")

	_, err := engine.RenderChunk(context.Background(), "in.mp4", out, 1920, 1080, 35.0)
	assert.ErrorIs(t, err, ErrTranscode)
}

func TestRenderChunkFailsOnDurationDrift(t *testing.T) {
	// Measured output comes back 10 seconds short of the expected chunk
	// duration, well past the tolerance.
	fake := &fakeTranscoder{renderSeconds: 25.0}
	engine := NewEngine(fake)
	out := filepath.Join(t.TempDir(), "reel_000.mp4")

	_, err := engine.RenderChunk(context.Background(), "in.mp4", out, 1920, 1080, 35.0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTranscode)
	assert.Contains(t, err.Error(), "deviates")
}

func TestRenderChunkAllowsDriftWithinTolerance(t *testing.T) {
	fake := &fakeTranscoder{renderSeconds: 34.2}
	engine := NewEngine(fake)
	out := filepath.Join(t.TempDir(), "reel_000.mp4")

	result, err := engine.RenderChunk(context.Background(), "in.mp4", out, 1920, 1080, 35.0)
	require.NoError(t, err)
	assert.Equal(t, 34.2, result.DurationSeconds)
}
