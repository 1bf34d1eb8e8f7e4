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

package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/enrich"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/model"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/transform"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/media"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/store"
)

// fakeAcquirer serves a fixed 95-second source without any network.
type fakeAcquirer struct {
	duration float64
}

func (f *fakeAcquirer) Probe(_ context.Context, _ string) (*media.AcquireResult, error) {
	return &media.AcquireResult{
		PlatformID:      "vid95",
		Title:           "Sample Long Video",
		Description:     "A sample",
		DurationSeconds: f.duration,
	}, nil
}

func (f *fakeAcquirer) Acquire(ctx context.Context, url, destDir string) (*media.AcquireResult, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(destDir, "vid95.mp4")
	if err := os.WriteFile(path, []byte("video-bytes"), 0o644); err != nil {
		return nil, err
	}
	out, _ := f.Probe(ctx, url)
	out.LocalPath = path
	out.FileSizeBytes = int64(len("video-bytes"))
	out.Transcript = "hello from the transcript"
	out.TranscriptSource = "captions"
	return out, nil
}

// fakeTranscoder writes placeholder files and reports exact durations.
// Render calls matching failSubstring fail; renderGate, when set, blocks
// the first Render until released so cancellation tests can interleave.
type fakeTranscoder struct {
	mu            sync.Mutex
	failSubstring string
	renderGate    chan struct{}
	renderStarted chan struct{}
	gateUsed      bool
}

func (f *fakeTranscoder) Cut(_ context.Context, _, outputPath string, _, _ float64, _ time.Duration) error {
	return os.WriteFile(outputPath, []byte("chunk"), 0o644)
}

func (f *fakeTranscoder) Probe(_ context.Context, _ string) (transform.ProbeResult, error) {
	return transform.ProbeResult{DurationSeconds: 95, Width: 1920, Height: 1080}, nil
}

func (f *fakeTranscoder) Render(ctx context.Context, inv transform.Invocation) (float64, error) {
	f.mu.Lock()
	gate := f.renderGate
	useGate := gate != nil && !f.gateUsed
	if useGate {
		f.gateUsed = true
	}
	f.mu.Unlock()

	if useGate {
		close(f.renderStarted)
		select {
		case <-gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if f.failSubstring != "" && strings.Contains(inv.InputPath, f.failSubstring) {
		return 0, transform.ErrTranscode
	}
	if err := os.WriteFile(inv.OutputPath, []byte("reel"), 0o644); err != nil {
		return 0, err
	}
	return inv.DurationSeconds, nil
}

type failingGenerator struct{}

func (failingGenerator) Generate(_ context.Context, _ enrich.PromptInput) (string, error) {
	return "", errors.New("model offline")
}

func newTestService(t *testing.T, st store.Store, tc transform.Transcoder) *PipelineService {
	t.Helper()
	return NewPipelineService(
		st,
		&fakeAcquirer{duration: 95},
		tc,
		transform.NewEngine(tc),
		enrich.NewEnricher(failingGenerator{}, nil),
		2,
		PipelineOptions{ChunkSeconds: 35, WorkDir: t.TempDir(), CutTimeout: time.Minute},
		nil,
	)
}

func waitForTerminal(t *testing.T, svc *PipelineService, jobID string) *model.Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	lastProgress := 0
	for time.Now().Before(deadline) {
		job, err := svc.GetJob(context.Background(), jobID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, job.Progress, lastProgress, "progress must never decrease")
		lastProgress = job.Progress
		if job.Terminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", jobID)
	return nil
}

func TestPipelineEndToEnd(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newTestService(t, st, &fakeTranscoder{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	source, err := svc.IngestSource(ctx, "https://example.com/watch?v=vid95")
	require.NoError(t, err)

	job, err := svc.EnqueueJob(ctx, source.ID, model.JobTypePipeline, 0)
	require.NoError(t, err)

	final := waitForTerminal(t, svc, job.ID)
	assert.Equal(t, model.JobCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	require.NotNil(t, final.CompletedAt)

	// A 95-second source at 35-second chunks yields 35, 35, 25.
	chunks, err := st.ListChunksBySource(ctx, source.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, 35.0, chunks[0].DurationSeconds())
	assert.Equal(t, 35.0, chunks[1].DurationSeconds())
	assert.Equal(t, 25.0, chunks[2].DurationSeconds())

	reels, err := st.ListReelsBySource(ctx, source.ID)
	require.NoError(t, err)
	require.Len(t, reels, 3)
	for _, reel := range reels {
		assert.Equal(t, 1080, reel.Width)
		assert.Equal(t, 1920, reel.Height)
		assert.Equal(t, model.ReelPending, reel.Status)
		// The generator is offline, so every reel carries the default tuple.
		require.NotNil(t, reel.Metadata)
		assert.Equal(t, "Check this out!", reel.Metadata.Title)
	}

	updated, err := st.GetSourceVideo(ctx, source.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SourceCompleted, updated.Status)
}

func TestPerJobChunkLengthOverridesDefault(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newTestService(t, st, &fakeTranscoder{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	source, err := svc.IngestSource(ctx, "https://example.com/watch?v=vid95")
	require.NoError(t, err)

	// The service default is 35 seconds; this job asks for 50.
	job, err := svc.EnqueueJob(ctx, source.ID, model.JobTypePipeline, 50)
	require.NoError(t, err)
	assert.Equal(t, 50.0, job.ChunkSeconds)

	final := waitForTerminal(t, svc, job.ID)
	assert.Equal(t, model.JobCompleted, final.Status)

	chunks, err := st.ListChunksBySource(ctx, source.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 50.0, chunks[0].DurationSeconds())
	assert.Equal(t, 45.0, chunks[1].DurationSeconds())
}

func TestPipelineIsolatesChunkFailure(t *testing.T) {
	st := store.NewMemoryStore()
	// chunk_001 fails its transform; siblings must still render.
	svc := newTestService(t, st, &fakeTranscoder{failSubstring: "chunk_001"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	source, err := svc.IngestSource(ctx, "https://example.com/watch?v=vid95")
	require.NoError(t, err)
	job, err := svc.EnqueueJob(ctx, source.ID, model.JobTypePipeline, 0)
	require.NoError(t, err)

	final := waitForTerminal(t, svc, job.ID)
	assert.Equal(t, model.JobFailed, final.Status)
	assert.Equal(t, StageTransform, final.FailedStage)
	assert.Contains(t, final.ErrorMessage, "1 of 3 chunks failed")
	// Progress stopped at the segmentation checkpoint.
	assert.Equal(t, 40, final.Progress)

	// Partial results stay queryable: the two healthy chunks have reels.
	reels, err := st.ListReelsBySource(ctx, source.ID)
	require.NoError(t, err)
	assert.Len(t, reels, 2)

	chunks, err := st.ListChunksBySource(ctx, source.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, 3)
}

func TestCancelQueuedJobIsSynchronous(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newTestService(t, st, &fakeTranscoder{})
	// The pool is never started, so the job stays queued.
	ctx := context.Background()

	source, err := svc.IngestSource(ctx, "https://example.com/watch?v=vid95")
	require.NoError(t, err)
	job, err := svc.EnqueueJob(ctx, source.ID, model.JobTypePipeline, 0)
	require.NoError(t, err)

	require.NoError(t, svc.CancelJob(ctx, job.ID))
	got, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCancelled, got.Status)

	// Terminal jobs reject a second cancellation.
	assert.ErrorIs(t, svc.CancelJob(ctx, job.ID), ErrJobNotCancellable)
}

func TestCancelProcessingJobIsCooperative(t *testing.T) {
	st := store.NewMemoryStore()
	tc := &fakeTranscoder{
		renderGate:    make(chan struct{}),
		renderStarted: make(chan struct{}),
	}
	svc := newTestService(t, st, tc)
	ctx := context.Background()

	source, err := svc.IngestSource(ctx, "https://example.com/watch?v=vid95")
	require.NoError(t, err)
	job, err := svc.EnqueueJob(ctx, source.ID, model.JobTypePipeline, 0)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		svc.Run(ctx, job.ID)
		close(done)
	}()

	// Wait until the first chunk's transform is underway, then cancel.
	select {
	case <-tc.renderStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("transform never started")
	}
	require.NoError(t, svc.CancelJob(ctx, job.ID))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not stop after cancellation")
	}

	final, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCancelled, final.Status)
	// Work persisted before the cancellation point is kept.
	chunks, err := st.ListChunksBySource(ctx, source.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, 3)
}

func TestRerunReusesExistingChunks(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newTestService(t, st, &fakeTranscoder{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	source, err := svc.IngestSource(ctx, "https://example.com/watch?v=vid95")
	require.NoError(t, err)

	job1, err := svc.EnqueueJob(ctx, source.ID, model.JobTypePipeline, 0)
	require.NoError(t, err)
	waitForTerminal(t, svc, job1.ID)

	firstChunks, err := st.ListChunksBySource(ctx, source.ID)
	require.NoError(t, err)
	require.Len(t, firstChunks, 3)

	job2, err := svc.EnqueueJob(ctx, source.ID, model.JobTypePipeline, 0)
	require.NoError(t, err)
	final := waitForTerminal(t, svc, job2.ID)
	assert.Equal(t, model.JobCompleted, final.Status)

	secondChunks, err := st.ListChunksBySource(ctx, source.ID)
	require.NoError(t, err)
	require.Len(t, secondChunks, 3)
	for i := range firstChunks {
		assert.Equal(t, firstChunks[i].ID, secondChunks[i].ID, "chunk rows must be reused, not re-cut")
	}
}

func TestResumeQueuedPicksUpPersistedJobs(t *testing.T) {
	st := store.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seeder := newTestService(t, st, &fakeTranscoder{})
	source, err := seeder.IngestSource(ctx, "https://example.com/watch?v=vid95")
	require.NoError(t, err)

	// A queued row with no pool submission stands in for a job stranded
	// by a process exit.
	now := time.Now().UTC()
	job := &model.Job{
		ID:            uuid.NewString(),
		SourceVideoID: source.ID,
		Type:          model.JobTypePipeline,
		Status:        model.JobQueued,
		QueuedAt:      now,
		UpdatedAt:     now,
	}
	require.NoError(t, st.CreateJob(ctx, job))

	// A fresh service over the same store is the restarted process.
	svc := newTestService(t, st, &fakeTranscoder{})
	svc.Start(ctx)
	require.NoError(t, svc.ResumeQueued(ctx))

	final := waitForTerminal(t, svc, job.ID)
	assert.Equal(t, model.JobCompleted, final.Status)
}

func TestIngestSourceIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newTestService(t, st, &fakeTranscoder{})
	ctx := context.Background()

	first, err := svc.IngestSource(ctx, "https://example.com/watch?v=vid95")
	require.NoError(t, err)
	second, err := svc.IngestSource(ctx, "https://example.com/watch?v=vid95")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}
