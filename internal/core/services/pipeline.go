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

// Package services contains the business logic orchestrations of the reel
// pipeline. This file implements the job orchestrator: the state machine
// that takes one source video from acquisition through segmentation,
// transformation, and metadata enrichment, persisting job status and
// progress at every stage boundary.
//
// Logic Flow (one job):
//  1. Acquire: download the source video unless a previous run already
//     left a valid local file. Progress reaches 20.
//  2. Segment: plan deterministic chunk intervals and cut each one into
//     its own file. Existing chunks from a previous run are reused when
//     the full set is still on disk. Progress reaches 40.
//  3. Transform: render every chunk onto the vertical canvas. A failing
//     chunk fails only itself; siblings keep rendering. Progress reaches
//     80 when all chunks succeeded.
//  4. Enrich: attach a metadata tuple to every reel. Generation failures
//     degrade to the default tuple and never fail the job. Progress
//     reaches 100 and the job completes.
//
// Jobs are cancelled cooperatively: the orchestrator checks the job's
// context between stages and after each chunk transform, and a cancelled
// job keeps every chunk and reel persisted before the cancellation point.
// Workers never process the same source video concurrently; a per-source
// lock is held for the whole job.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/enrich"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/model"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/segment"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/transform"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/media"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/store"
)

// Stage names recorded on failed jobs so operators can see exactly where
// a run stopped.
const (
	StageAcquire   = "acquire"
	StageSegment   = "segment"
	StageTransform = "transform"
	StageEnrich    = "enrich"
)

// Progress checkpoints written at stage boundaries.
const (
	progressAcquired  = 20
	progressSegmented = 40
	progressRendered  = 80
	progressComplete  = 100
)

// Service-level errors surfaced to API callers.
var (
	ErrJobNotCancellable = errors.New("services: job is already terminal")
	ErrPoolSaturated     = errors.New("services: job queue is full, retry later")
)

// PipelineOptions carries the orchestrator's tunable policy.
type PipelineOptions struct {
	ChunkSeconds float64       // Nominal chunk length.
	WorkDir      string        // Scratch directory for sources, chunks, and reels.
	CutTimeout   time.Duration // Wall-clock limit for one chunk cut.
}

// PipelineService owns the job lifecycle. It is the single writer of Job
// rows: API handlers read jobs but only this service mutates them.
type PipelineService struct {
	store      store.Store
	acquirer   media.Acquirer
	transcoder transform.Transcoder
	engine     *transform.Engine
	enricher   *enrich.Enricher
	pool       *WorkerPool
	opts       PipelineOptions
	logger     *slog.Logger

	mu          sync.Mutex
	cancels     map[string]context.CancelFunc
	sourceLocks sync.Map // source video id -> *sync.Mutex
}

// NewPipelineService wires the orchestrator. Call Start before enqueueing
// jobs.
func NewPipelineService(
	st store.Store,
	acquirer media.Acquirer,
	transcoder transform.Transcoder,
	engine *transform.Engine,
	enricher *enrich.Enricher,
	poolSize int,
	opts PipelineOptions,
	logger *slog.Logger,
) *PipelineService {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ChunkSeconds <= 0 {
		opts.ChunkSeconds = 35
	}
	if opts.CutTimeout <= 0 {
		opts.CutTimeout = 5 * time.Minute
	}
	s := &PipelineService{
		store:      st,
		acquirer:   acquirer,
		transcoder: transcoder,
		engine:     engine,
		enricher:   enricher,
		opts:       opts,
		logger:     logger,
		cancels:    make(map[string]context.CancelFunc),
	}
	s.pool = NewWorkerPool(poolSize, s.Run, logger)
	return s
}

// Start launches the worker pool under the given context.
func (s *PipelineService) Start(ctx context.Context) {
	s.pool.Start(ctx)
}

// Wait blocks until all workers have drained after the Start context is
// cancelled.
func (s *PipelineService) Wait() {
	s.pool.Wait()
}

// ResumeQueued submits every job the store still holds as queued back
// onto the worker pool. The in-memory pool channel does not survive a
// process restart, so this runs once at startup before any new work is
// accepted. A job that does not fit the pool stays queued and is logged.
func (s *PipelineService) ResumeQueued(ctx context.Context) error {
	jobs, err := s.store.ListJobs(ctx)
	if err != nil {
		return err
	}

	resumed := 0
	for _, job := range jobs {
		if job.Status != model.JobQueued {
			continue
		}
		if !s.pool.Submit(job.ID) {
			s.logger.WarnContext(ctx, "worker pool saturated while resuming queued jobs", "job_id", job.ID)
			continue
		}
		resumed++
	}
	if resumed > 0 {
		s.logger.InfoContext(ctx, "resumed queued jobs", "count", resumed)
	}
	return nil
}

// IngestSource registers a source video by URL. The video's metadata is
// probed without downloading media; if a source with the same platform id
// already exists it is returned unchanged, making ingestion idempotent.
func (s *PipelineService) IngestSource(ctx context.Context, url string) (*model.SourceVideo, error) {
	probe, err := s.acquirer.Probe(ctx, url)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.GetSourceVideoByPlatformID(ctx, probe.PlatformID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	source := &model.SourceVideo{
		ID:              uuid.NewString(),
		OriginURL:       url,
		PlatformID:      probe.PlatformID,
		Title:           probe.Title,
		Description:     probe.Description,
		DurationSeconds: probe.DurationSeconds,
		ThumbnailURL:    probe.ThumbnailURL,
		Status:          model.SourceUploaded,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateSourceVideo(ctx, source); err != nil {
		// A concurrent ingest of the same URL can win the race; fall back
		// to the row it created.
		if errors.Is(err, store.ErrConflict) {
			return s.store.GetSourceVideoByPlatformID(ctx, probe.PlatformID)
		}
		return nil, err
	}
	return source, nil
}

// EnqueueJob creates a queued job for the source video and submits it to
// the worker pool. A positive chunkSeconds overrides the configured chunk
// length for this job only; zero or negative uses the default.
func (s *PipelineService) EnqueueJob(ctx context.Context, sourceVideoID string, jobType model.JobType, chunkSeconds float64) (*model.Job, error) {
	if _, err := s.store.GetSourceVideo(ctx, sourceVideoID); err != nil {
		return nil, err
	}
	if chunkSeconds < 0 {
		chunkSeconds = 0
	}

	now := time.Now().UTC()
	job := &model.Job{
		ID:            uuid.NewString(),
		SourceVideoID: sourceVideoID,
		Type:          jobType,
		Status:        model.JobQueued,
		Progress:      0,
		ChunkSeconds:  chunkSeconds,
		QueuedAt:      now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	if !s.pool.Submit(job.ID) {
		job.Status = model.JobFailed
		job.ErrorMessage = ErrPoolSaturated.Error()
		_ = s.store.UpdateJob(ctx, job)
		return nil, ErrPoolSaturated
	}
	return job, nil
}

// GetJob returns the latest persisted state of one job.
func (s *PipelineService) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	return s.store.GetJob(ctx, jobID)
}

// CancelJob cancels a job. A queued job is cancelled synchronously; a
// processing job is signalled and cancels cooperatively at its next
// checkpoint. Terminal jobs return ErrJobNotCancellable.
func (s *PipelineService) CancelJob(ctx context.Context, jobID string) error {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Terminal() {
		return fmt.Errorf("%w: job %s is %s", ErrJobNotCancellable, jobID, job.Status)
	}

	if job.Status == model.JobQueued {
		now := time.Now().UTC()
		job.Status = model.JobCancelled
		job.CompletedAt = &now
		return s.store.UpdateJob(ctx, job)
	}

	s.mu.Lock()
	cancel, ok := s.cancels[jobID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

// Run executes one job to a terminal state. It is the worker pool's
// runner and the only writer of the job's row while it holds the
// per-source lock.
func (s *PipelineService) Run(ctx context.Context, jobID string) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		s.logger.ErrorContext(ctx, "dropped job id with no row", "job_id", jobID, "error", err)
		return
	}
	// A job cancelled while still queued never starts.
	if job.Status != model.JobQueued {
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancels[job.ID] = cancel
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		delete(s.cancels, job.ID)
		s.mu.Unlock()
	}()

	lock := s.lockForSource(job.SourceVideoID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()
	job.Status = model.JobProcessing
	job.StartedAt = &now
	if err := s.store.UpdateJob(ctx, job); err != nil {
		s.logger.ErrorContext(ctx, "failed to mark job processing", "job_id", job.ID, "error", err)
		return
	}

	source, err := s.store.GetSourceVideo(ctx, job.SourceVideoID)
	if err != nil {
		s.failJob(ctx, job, nil, StageAcquire, err)
		return
	}

	if err := s.stageAcquire(jobCtx, job, source); err != nil {
		s.finishStageError(ctx, job, source, StageAcquire, err)
		return
	}
	s.setProgress(ctx, job, progressAcquired)
	if s.cancelled(ctx, jobCtx, job) {
		return
	}

	chunks, err := s.stageSegment(jobCtx, job, source)
	if err != nil {
		s.finishStageError(ctx, job, source, StageSegment, err)
		return
	}
	s.setProgress(ctx, job, progressSegmented)
	if s.cancelled(ctx, jobCtx, job) {
		return
	}

	reels, err := s.stageTransform(jobCtx, job, source, chunks)
	if err != nil {
		s.finishStageError(ctx, job, source, StageTransform, err)
		return
	}
	s.setProgress(ctx, job, progressRendered)
	if s.cancelled(ctx, jobCtx, job) {
		return
	}

	if err := s.stageEnrich(jobCtx, job, source, reels); err != nil {
		s.finishStageError(ctx, job, source, StageEnrich, err)
		return
	}

	s.setProgress(ctx, job, progressComplete)
	done := time.Now().UTC()
	job.Status = model.JobCompleted
	job.CompletedAt = &done
	if err := s.store.UpdateJob(ctx, job); err != nil {
		s.logger.ErrorContext(ctx, "failed to mark job completed", "job_id", job.ID, "error", err)
	}

	source.Status = model.SourceCompleted
	if err := s.store.UpdateSourceVideo(ctx, source); err != nil {
		s.logger.ErrorContext(ctx, "failed to mark source completed", "source_id", source.ID, "error", err)
	}
	s.logger.InfoContext(ctx, "job completed", "job_id", job.ID, "source_id", source.ID, "reels", len(reels))
}

// stageAcquire downloads the source video unless a previous run already
// left a valid local file at the recorded path.
func (s *PipelineService) stageAcquire(ctx context.Context, job *model.Job, source *model.SourceVideo) error {
	if source.LocalPath != "" {
		if _, err := os.Stat(source.LocalPath); err == nil {
			s.logger.InfoContext(ctx, "reusing downloaded source", "job_id", job.ID, "path", source.LocalPath)
			return nil
		}
	}

	source.Status = model.SourceDownloading
	if err := s.store.UpdateSourceVideo(ctx, source); err != nil {
		return err
	}

	result, err := s.acquirer.Acquire(ctx, source.OriginURL, filepath.Join(s.opts.WorkDir, "sources"))
	if err != nil {
		return err
	}

	source.Title = result.Title
	source.Description = result.Description
	source.DurationSeconds = result.DurationSeconds
	source.ThumbnailURL = result.ThumbnailURL
	source.LocalPath = result.LocalPath
	source.Transcript = result.Transcript
	source.TranscriptSource = result.TranscriptSource
	source.Status = model.SourceDownloaded
	return s.store.UpdateSourceVideo(ctx, source)
}

// stageSegment plans chunk intervals and cuts each one into its own file.
// When the previous run's chunk set is complete and still on disk, it is
// reused without re-cutting.
func (s *PipelineService) stageSegment(ctx context.Context, job *model.Job, source *model.SourceVideo) ([]*model.Chunk, error) {
	chunkSeconds := s.opts.ChunkSeconds
	if job.ChunkSeconds > 0 {
		chunkSeconds = job.ChunkSeconds
	}
	intervals, err := segment.Plan(source.DurationSeconds, chunkSeconds)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.ListChunksBySource(ctx, source.ID)
	if err != nil {
		return nil, err
	}
	if chunkSetReusable(existing, intervals) {
		s.logger.InfoContext(ctx, "reusing existing chunks", "job_id", job.ID, "count", len(existing))
		return existing, nil
	}

	// Stale partial results from an earlier failed run are replaced
	// wholesale so sequence numbers stay contiguous.
	if err := s.store.DeleteReelsBySource(ctx, source.ID); err != nil {
		return nil, err
	}
	if err := s.store.DeleteChunksBySource(ctx, source.ID); err != nil {
		return nil, err
	}

	source.Status = model.SourceProcessing
	if err := s.store.UpdateSourceVideo(ctx, source); err != nil {
		return nil, err
	}

	chunkDir := filepath.Join(s.opts.WorkDir, "chunks", source.ID)
	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		return nil, err
	}

	chunks := make([]*model.Chunk, 0, len(intervals))
	for _, iv := range intervals {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunkPath := filepath.Join(chunkDir, fmt.Sprintf("chunk_%03d.mp4", iv.Sequence))
		if err := s.transcoder.Cut(ctx, source.LocalPath, chunkPath, iv.StartSeconds, iv.DurationSeconds(), s.opts.CutTimeout); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", iv.Sequence, err)
		}
		var size int64
		if stat, err := os.Stat(chunkPath); err == nil {
			size = stat.Size()
		}
		chunks = append(chunks, &model.Chunk{
			ID:            uuid.NewString(),
			SourceVideoID: source.ID,
			Sequence:      iv.Sequence,
			StartSeconds:  iv.StartSeconds,
			EndSeconds:    iv.EndSeconds,
			FilePath:      chunkPath,
			FileSizeBytes: size,
			CreatedAt:     time.Now().UTC(),
		})
	}
	if err := s.store.CreateChunks(ctx, chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

// chunkSetReusable reports whether a persisted chunk set matches the
// planned intervals and is still fully present on disk.
func chunkSetReusable(existing []*model.Chunk, intervals []segment.Interval) bool {
	if len(existing) == 0 || len(existing) != len(intervals) {
		return false
	}
	for i, c := range existing {
		iv := intervals[i]
		if c.Sequence != iv.Sequence || c.StartSeconds != iv.StartSeconds || c.EndSeconds != iv.EndSeconds {
			return false
		}
		if _, err := os.Stat(c.FilePath); err != nil {
			return false
		}
	}
	return true
}

// stageTransform renders every chunk onto the canvas. A chunk's transform
// failure is isolated: siblings keep rendering, and the stage fails at
// the end if any chunk failed. Reels that already exist from a previous
// run are kept as-is.
func (s *PipelineService) stageTransform(ctx context.Context, job *model.Job, source *model.SourceVideo, chunks []*model.Chunk) ([]*model.Reel, error) {
	probe, err := s.transcoder.Probe(ctx, source.LocalPath)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.ListReelsBySource(ctx, source.ID)
	if err != nil {
		return nil, err
	}
	byChunk := make(map[string]*model.Reel, len(existing))
	for _, r := range existing {
		byChunk[r.ChunkID] = r
	}

	reelDir := filepath.Join(s.opts.WorkDir, "reels", source.ID)
	if err := os.MkdirAll(reelDir, 0o755); err != nil {
		return nil, err
	}

	reels := make([]*model.Reel, 0, len(chunks))
	var failed []string
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if reel, ok := byChunk[chunk.ID]; ok {
			reels = append(reels, reel)
			continue
		}

		outPath := filepath.Join(reelDir, fmt.Sprintf("reel_%03d.mp4", chunk.Sequence))
		result, err := s.engine.RenderChunk(ctx, chunk.FilePath, outPath, probe.Width, probe.Height, chunk.DurationSeconds())
		if err != nil {
			s.logger.WarnContext(ctx, "chunk transform failed",
				"job_id", job.ID, "sequence", chunk.Sequence, "error", err)
			failed = append(failed, fmt.Sprintf("chunk %d: %v", chunk.Sequence, err))
			continue
		}

		var size int64
		if stat, err := os.Stat(outPath); err == nil {
			size = stat.Size()
		}
		now := time.Now().UTC()
		reel := &model.Reel{
			ID:              uuid.NewString(),
			ChunkID:         chunk.ID,
			SourceVideoID:   source.ID,
			Sequence:        chunk.Sequence,
			Width:           s.engine.CanvasWidth(),
			Height:          s.engine.CanvasHeight(),
			DurationSeconds: result.DurationSeconds,
			FilePath:        result.OutputPath,
			FileSizeBytes:   size,
			Status:          model.ReelPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.store.CreateReel(ctx, reel); err != nil {
			return nil, err
		}
		reels = append(reels, reel)
	}

	if len(failed) > 0 {
		return reels, fmt.Errorf("%d of %d chunks failed to transform: %v", len(failed), len(chunks), failed)
	}
	return reels, nil
}

// stageEnrich attaches a metadata tuple to every reel that does not have
// one. The enricher degrades to the default tuple internally, so this
// stage only fails on persistence errors.
func (s *PipelineService) stageEnrich(ctx context.Context, job *model.Job, source *model.SourceVideo, reels []*model.Reel) error {
	for _, reel := range reels {
		if err := ctx.Err(); err != nil {
			return err
		}
		if reel.Metadata != nil {
			continue
		}
		meta, _ := s.enricher.Enrich(ctx, enrich.PromptInput{
			VideoTitle: source.Title,
			Sequence:   reel.Sequence,
			Transcript: source.Transcript,
		})
		reel.Metadata = meta
		if err := s.store.UpdateReel(ctx, reel); err != nil {
			return err
		}
	}
	return nil
}

// cancelled checks the job context at a stage boundary and, when it has
// been cancelled, moves the job to its cancelled terminal state. Already
// persisted chunks and reels are kept.
func (s *PipelineService) cancelled(ctx context.Context, jobCtx context.Context, job *model.Job) bool {
	if jobCtx.Err() == nil {
		return false
	}
	now := time.Now().UTC()
	job.Status = model.JobCancelled
	job.CompletedAt = &now
	if err := s.store.UpdateJob(ctx, job); err != nil {
		s.logger.ErrorContext(ctx, "failed to mark job cancelled", "job_id", job.ID, "error", err)
	}
	s.logger.InfoContext(ctx, "job cancelled", "job_id", job.ID, "progress", job.Progress)
	return true
}

// finishStageError distinguishes a cooperative cancellation from a real
// stage failure and records the right terminal state.
func (s *PipelineService) finishStageError(ctx context.Context, job *model.Job, source *model.SourceVideo, stage string, err error) {
	if errors.Is(err, context.Canceled) {
		now := time.Now().UTC()
		job.Status = model.JobCancelled
		job.CompletedAt = &now
		if uerr := s.store.UpdateJob(ctx, job); uerr != nil {
			s.logger.ErrorContext(ctx, "failed to mark job cancelled", "job_id", job.ID, "error", uerr)
		}
		return
	}
	s.failJob(ctx, job, source, stage, err)
}

// failJob records a stage failure on the job and flags the source video.
// Partial results stay persisted and queryable.
func (s *PipelineService) failJob(ctx context.Context, job *model.Job, source *model.SourceVideo, stage string, err error) {
	now := time.Now().UTC()
	job.Status = model.JobFailed
	job.FailedStage = stage
	job.ErrorMessage = err.Error()
	job.CompletedAt = &now
	if uerr := s.store.UpdateJob(ctx, job); uerr != nil {
		s.logger.ErrorContext(ctx, "failed to mark job failed", "job_id", job.ID, "error", uerr)
	}

	if source != nil {
		source.Status = model.SourceFailed
		source.ErrorMessage = err.Error()
		if uerr := s.store.UpdateSourceVideo(ctx, source); uerr != nil {
			s.logger.ErrorContext(ctx, "failed to mark source failed", "source_id", source.ID, "error", uerr)
		}
	}
	s.logger.ErrorContext(ctx, "job failed", "job_id", job.ID, "stage", stage, "error", err)
}

// setProgress raises the job's progress to value. Progress never moves
// backwards.
func (s *PipelineService) setProgress(ctx context.Context, job *model.Job, value int) {
	if value <= job.Progress {
		return
	}
	job.Progress = value
	if err := s.store.UpdateJob(ctx, job); err != nil {
		s.logger.ErrorContext(ctx, "failed to update job progress", "job_id", job.ID, "error", err)
	}
}

func (s *PipelineService) lockForSource(sourceVideoID string) *sync.Mutex {
	lock, _ := s.sourceLocks.LoadOrStore(sourceVideoID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
