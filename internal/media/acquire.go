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

// Package media handles acquisition of source videos and publishing of
// finished reels. This file defines the Acquirer contract and its yt-dlp
// implementation: given an origin URL, fetch the video's metadata, download
// the best available MP4 rendition into the working directory, and verify
// the downloaded bytes really are a video before handing the file to the
// pipeline.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
)

// Acquisition errors. ErrTooLong is returned before any download starts.
var (
	ErrAcquire     = errors.New("media: acquisition failed")
	ErrTooLong     = errors.New("media: source exceeds maximum duration")
	ErrNotVideo    = errors.New("media: downloaded file is not a video")
	ErrNoVideoInfo = errors.New("media: could not read video metadata")
)

// AcquireResult describes a downloaded source video.
type AcquireResult struct {
	PlatformID       string
	Title            string
	Description      string
	DurationSeconds  float64
	ThumbnailURL     string
	Transcript       string
	TranscriptSource string
	LocalPath        string
	FileSizeBytes    int64
}

// Acquirer fetches one source video by URL. The production implementation
// shells out to yt-dlp; tests substitute fakes.
type Acquirer interface {
	// Probe returns the video's metadata without downloading it.
	Probe(ctx context.Context, url string) (*AcquireResult, error)

	// Acquire downloads the video into destDir and returns the full
	// result including the local file path.
	Acquire(ctx context.Context, url, destDir string) (*AcquireResult, error)
}

// ytDlpInfo is the subset of yt-dlp's JSON metadata dump the pipeline
// reads.
type ytDlpInfo struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Duration    float64 `json:"duration"`
	Thumbnail   string  `json:"thumbnail"`
}

// YtDlpAcquirer implements Acquirer with the yt-dlp command-line tool.
type YtDlpAcquirer struct {
	YtDlpPath          string
	MaxDurationSeconds int
	Timeout            time.Duration
}

// NewYtDlpAcquirer returns an acquirer using the given executable path,
// falling back to "yt-dlp" on PATH when empty. A maxDurationSeconds of 0
// disables the length limit.
func NewYtDlpAcquirer(ytDlpPath string, maxDurationSeconds int, timeout time.Duration) *YtDlpAcquirer {
	if strings.TrimSpace(ytDlpPath) == "" {
		ytDlpPath = "yt-dlp"
	}
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &YtDlpAcquirer{
		YtDlpPath:          ytDlpPath,
		MaxDurationSeconds: maxDurationSeconds,
		Timeout:            timeout,
	}
}

// Probe runs yt-dlp in dump-json mode to read the video's metadata
// without downloading any media.
func (a *YtDlpAcquirer) Probe(ctx context.Context, url string) (*AcquireResult, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, a.YtDlpPath, "--dump-json", "--no-download", url)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %v: %s", ErrNoVideoInfo, err, strings.TrimSpace(stderr.String()))
	}

	var info ytDlpInfo
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		return nil, fmt.Errorf("%w: unparseable yt-dlp output: %v", ErrNoVideoInfo, err)
	}
	if info.ID == "" {
		return nil, fmt.Errorf("%w: no video id in metadata", ErrNoVideoInfo)
	}

	return &AcquireResult{
		PlatformID:      info.ID,
		Title:           info.Title,
		Description:     info.Description,
		DurationSeconds: info.Duration,
		ThumbnailURL:    info.Thumbnail,
	}, nil
}

// Acquire downloads the video into destDir.
//
// Logic Flow:
//  1. Probe the video's metadata and reject sources over the duration
//     limit before transferring any media.
//  2. Download the best MP4 rendition to a deterministic path under
//     destDir, bounded by the configured wall-clock timeout.
//  3. Sniff the downloaded file's magic bytes and reject anything that
//     is not actually a video container.
func (a *YtDlpAcquirer) Acquire(ctx context.Context, url, destDir string) (*AcquireResult, error) {
	result, err := a.Probe(ctx, url)
	if err != nil {
		return nil, err
	}
	if a.MaxDurationSeconds > 0 && result.DurationSeconds > float64(a.MaxDurationSeconds) {
		return nil, fmt.Errorf("%w: %.0fs > %ds", ErrTooLong, result.DurationSeconds, a.MaxDurationSeconds)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAcquire, err)
	}
	outPath := filepath.Join(destDir, result.PlatformID+".mp4")

	dlCtx, cancel := context.WithTimeout(ctx, a.Timeout)
	defer cancel()

	cmd := exec.CommandContext(dlCtx, a.YtDlpPath,
		"-f", "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best",
		"--merge-output-format", "mp4",
		"-o", outPath,
		url,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if dlCtx.Err() != nil {
			return nil, fmt.Errorf("%w: download timed out after %s", ErrAcquire, a.Timeout)
		}
		return nil, fmt.Errorf("%w: %v: %s", ErrAcquire, err, strings.TrimSpace(stderr.String()))
	}

	if err := verifyVideoFile(outPath); err != nil {
		_ = os.Remove(outPath)
		return nil, err
	}

	stat, err := os.Stat(outPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAcquire, err)
	}

	// A missing transcript is not an acquisition failure; the enricher
	// falls back to title and description context.
	result.Transcript, result.TranscriptSource = a.fetchTranscript(ctx, url, destDir, result.PlatformID)

	result.LocalPath = outPath
	result.FileSizeBytes = stat.Size()
	return result, nil
}

// Transcript sources recorded on acquired videos. Uploader-provided
// subtitles are preferred over the platform's generated captions.
const (
	TranscriptSourceSubtitles    = "subtitles"
	TranscriptSourceAutoCaptions = "auto_captions"
)

// fetchTranscript downloads the video's subtitle track and flattens it to
// plain text. Uploader subtitles are tried first, then auto-generated
// captions. Returns empty strings when neither exists.
func (a *YtDlpAcquirer) fetchTranscript(ctx context.Context, url, destDir, platformID string) (string, string) {
	if text := a.downloadSubtitles(ctx, url, destDir, platformID, "--write-subs"); text != "" {
		return text, TranscriptSourceSubtitles
	}
	if text := a.downloadSubtitles(ctx, url, destDir, platformID, "--write-auto-subs"); text != "" {
		return text, TranscriptSourceAutoCaptions
	}
	return "", ""
}

// downloadSubtitles runs yt-dlp in subtitle-only mode with the given
// subtitle flag and returns the flattened text of the first track found.
func (a *YtDlpAcquirer) downloadSubtitles(ctx context.Context, url, destDir, platformID, subFlag string) string {
	subCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	outTemplate := filepath.Join(destDir, platformID+".transcript")
	cmd := exec.CommandContext(subCtx, a.YtDlpPath,
		"--skip-download",
		subFlag,
		"--sub-langs", "en.*,en",
		"--sub-format", "vtt",
		"-o", outTemplate,
		url,
	)
	if err := cmd.Run(); err != nil {
		return ""
	}

	// yt-dlp appends the language code and extension to the template.
	matches, err := filepath.Glob(outTemplate + "*.vtt")
	if err != nil || len(matches) == 0 {
		return ""
	}
	content, err := os.ReadFile(matches[0])
	for _, m := range matches {
		_ = os.Remove(m)
	}
	if err != nil {
		return ""
	}
	return ParseWebVTT(string(content))
}

// ParseWebVTT flattens a WebVTT subtitle document into plain transcript
// text. Headers, cue identifiers, timing lines, and inline styling tags
// are dropped, and consecutive duplicate lines (common in rolling
// auto-captions) are collapsed.
func ParseWebVTT(content string) string {
	var out []string
	previous := ""
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, "-->") {
			continue
		}
		if strings.HasPrefix(line, "WEBVTT") || strings.HasPrefix(line, "Kind:") ||
			strings.HasPrefix(line, "Language:") || strings.HasPrefix(line, "NOTE") {
			continue
		}
		if isCueIdentifier(line) {
			continue
		}
		line = stripVTTTags(line)
		if line == "" || line == previous {
			continue
		}
		out = append(out, line)
		previous = line
	}
	return strings.Join(out, " ")
}

// isCueIdentifier reports whether a line is a bare numeric cue counter.
func isCueIdentifier(line string) bool {
	for _, r := range line {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// stripVTTTags removes inline WebVTT markup such as word timestamps and
// <c> styling spans.
func stripVTTTags(line string) string {
	var b strings.Builder
	inTag := false
	for _, r := range line {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// verifyVideoFile sniffs the file's magic bytes and confirms it is a
// known video container. Download tools can write HTML error pages on
// auth failures; this catches them before the transcoder does.
func verifyVideoFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAcquire, err)
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, 261)
	n, err := f.Read(head)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAcquire, err)
	}

	kind, err := filetype.Match(head[:n])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAcquire, err)
	}
	switch kind {
	case matchers.TypeMp4, matchers.TypeMov, matchers.TypeWebm, matchers.TypeMkv, matchers.TypeAvi:
		return nil
	}
	return fmt.Errorf("%w: detected %q at %s", ErrNotVideo, kind.MIME.Value, path)
}
