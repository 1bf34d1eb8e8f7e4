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
// fixed-canvas vertical reel. This file defines the Transcoder contract
// and its production implementation backed by the ffmpeg and ffprobe
// command-line tools.
//
// Every invocation is bounded by a hard wall-clock timeout carried on the
// context; a timeout or a non-zero exit is reported as an error, never as
// a hang or a crash. The transcoder does not decide pipeline policy: a
// failed invocation fails only the chunk it was asked to process.
package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Defaults for the ffmpeg and ffprobe executables, assumed on PATH.
const (
	DefaultFFmpegPath  = "ffmpeg"
	DefaultFFprobePath = "ffprobe"
)

// ErrTranscode marks any external transcoder failure: process timeout,
// non-zero exit, or unparseable probe output.
var ErrTranscode = errors.New("transform: transcode failed")

// ProbeResult is the measured duration and resolution of a media file.
type ProbeResult struct {
	DurationSeconds float64
	Width           int
	Height          int
}

// Invocation carries everything one transcoder call needs to turn a time
// range of an input file into a reel on the fixed canvas.
type Invocation struct {
	InputPath       string
	StartSeconds    float64
	DurationSeconds float64
	Geometry        Geometry
	CanvasWidth     int
	CanvasHeight    int
	OutputPath      string
	Timeout         time.Duration
}

// Transcoder is the external-process contract used by the pipeline. The
// production implementation shells out to ffmpeg; tests substitute fakes.
type Transcoder interface {
	// Cut extracts the [startSeconds, startSeconds+durationSeconds) range
	// of the input into a standalone chunk file.
	Cut(ctx context.Context, inputPath, outputPath string, startSeconds, durationSeconds float64, timeout time.Duration) error

	// Render scales and pads one chunk onto the vertical canvas and
	// returns the measured duration of the output file.
	Render(ctx context.Context, inv Invocation) (float64, error)

	// Probe returns the duration and resolution of a media file.
	Probe(ctx context.Context, path string) (ProbeResult, error)
}

// FFmpegTranscoder implements Transcoder with ffmpeg/ffprobe processes.
type FFmpegTranscoder struct {
	FFmpegPath  string
	FFprobePath string
}

// NewFFmpegTranscoder returns a transcoder using the given executable
// paths, falling back to the PATH defaults when either is empty.
func NewFFmpegTranscoder(ffmpegPath, ffprobePath string) *FFmpegTranscoder {
	if len(strings.TrimSpace(ffmpegPath)) == 0 {
		ffmpegPath = DefaultFFmpegPath
	}
	if len(strings.TrimSpace(ffprobePath)) == 0 {
		ffprobePath = DefaultFFprobePath
	}
	return &FFmpegTranscoder{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}
}

// Cut extracts one chunk with stream re-encode so the cut lands on exact
// boundaries rather than the previous keyframe.
func (t *FFmpegTranscoder) Cut(ctx context.Context, inputPath, outputPath string, startSeconds, durationSeconds float64, timeout time.Duration) error {
	args := []string{
		"-y", "-hide_banner",
		"-i", inputPath,
		"-ss", formatSeconds(startSeconds),
		"-t", formatSeconds(durationSeconds),
		"-c:v", "libx264",
		"-preset", "fast",
		"-c:a", "aac",
		outputPath,
	}
	return t.run(ctx, timeout, args)
}

// Render scales the chunk to the computed geometry and pads it onto the
// canvas with black bars, re-encoding to H.264/AAC.
func (t *FFmpegTranscoder) Render(ctx context.Context, inv Invocation) (float64, error) {
	filter := fmt.Sprintf("scale=%d:%d,pad=%d:%d:%d:%d:black",
		inv.Geometry.ScaleWidth, inv.Geometry.ScaleHeight,
		inv.CanvasWidth, inv.CanvasHeight,
		inv.Geometry.PadX, inv.Geometry.PadY)

	args := []string{
		"-y", "-hide_banner",
		"-i", inv.InputPath,
	}
	if inv.StartSeconds > 0 {
		args = append(args, "-ss", formatSeconds(inv.StartSeconds))
	}
	args = append(args,
		"-t", formatSeconds(inv.DurationSeconds),
		"-vf", filter,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
		inv.OutputPath,
	)
	if err := t.run(ctx, inv.Timeout, args); err != nil {
		return 0, err
	}

	probe, err := t.Probe(ctx, inv.OutputPath)
	if err != nil {
		return 0, err
	}
	return probe.DurationSeconds, nil
}

// Probe reads the container duration and the first video stream's
// dimensions in a single ffprobe call.
func (t *FFmpegTranscoder) Probe(ctx context.Context, path string) (ProbeResult, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, t.FFprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "csv=p=0",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return ProbeResult{}, fmt.Errorf("%w: ffprobe %s: %v: %s", ErrTranscode, path, err, strings.TrimSpace(stderr.String()))
	}

	// csv output: one line "width,height" for the stream, one line with
	// the format duration.
	var out ProbeResult
	for _, line := range strings.Split(strings.TrimSpace(stdout.String()), "\n") {
		fields := strings.Split(strings.TrimSpace(line), ",")
		switch len(fields) {
		case 2:
			w, errW := strconv.Atoi(fields[0])
			h, errH := strconv.Atoi(fields[1])
			if errW == nil && errH == nil {
				out.Width, out.Height = w, h
			}
		case 1:
			if d, err := strconv.ParseFloat(fields[0], 64); err == nil {
				out.DurationSeconds = d
			}
		}
	}
	if out.DurationSeconds <= 0 {
		return ProbeResult{}, fmt.Errorf("%w: ffprobe returned no duration for %s", ErrTranscode, path)
	}
	return out, nil
}

func (t *FFmpegTranscoder) run(ctx context.Context, timeout time.Duration, args []string) error {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, t.FFmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() != nil {
		return fmt.Errorf("%w: ffmpeg timed out after %s", ErrTranscode, timeout)
	}
	if err != nil {
		return fmt.Errorf("%w: ffmpeg: %v: %s", ErrTranscode, err, lastLine(stderr.String()))
	}
	return nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// lastLine trims ffmpeg's banner-heavy stderr down to its final line,
// which is where the actionable error message lands.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}

// fileExists reports whether a path exists on disk.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}
