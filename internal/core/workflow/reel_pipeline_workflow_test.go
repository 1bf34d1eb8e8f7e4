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

package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/cor"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/enrich"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/model"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/services"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/transform"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/media"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/store"
)

type stubAcquirer struct{}

func (stubAcquirer) Probe(_ context.Context, _ string) (*media.AcquireResult, error) {
	return &media.AcquireResult{PlatformID: "wf-vid", Title: "Workflow Video", DurationSeconds: 40}, nil
}

func (s stubAcquirer) Acquire(ctx context.Context, url, destDir string) (*media.AcquireResult, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(destDir, "wf-vid.mp4")
	if err := os.WriteFile(path, []byte("v"), 0o644); err != nil {
		return nil, err
	}
	out, _ := s.Probe(ctx, url)
	out.LocalPath = path
	return out, nil
}

type stubTranscoder struct{}

func (stubTranscoder) Cut(_ context.Context, _, outputPath string, _, _ float64, _ time.Duration) error {
	return os.WriteFile(outputPath, []byte("c"), 0o644)
}

func (stubTranscoder) Probe(_ context.Context, _ string) (transform.ProbeResult, error) {
	return transform.ProbeResult{DurationSeconds: 40, Width: 1280, Height: 720}, nil
}

func (stubTranscoder) Render(_ context.Context, inv transform.Invocation) (float64, error) {
	if err := os.WriteFile(inv.OutputPath, []byte("r"), 0o644); err != nil {
		return 0, err
	}
	return inv.DurationSeconds, nil
}

type offlineGenerator struct{}

func (offlineGenerator) Generate(_ context.Context, _ enrich.PromptInput) (string, error) {
	return "", errors.New("offline")
}

func newWorkflowService(t *testing.T, st store.Store) *services.PipelineService {
	t.Helper()
	tc := stubTranscoder{}
	return services.NewPipelineService(
		st,
		stubAcquirer{},
		tc,
		transform.NewEngine(tc),
		enrich.NewEnricher(offlineGenerator{}, nil),
		1,
		services.PipelineOptions{ChunkSeconds: 35, WorkDir: t.TempDir(), CutTimeout: time.Minute},
		nil,
	)
}

func TestIngestWorkflowQueuesJobFromTrigger(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newWorkflowService(t, st)
	wf := NewReelIngestWorkflow(svc)

	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(context.Background())
	chainCtx.Add(cor.CtxIn, `{"url": "https://example.com/watch?v=wf-vid", "requested_by": "ops"}`)

	wf.Execute(chainCtx)
	require.False(t, chainCtx.HasErrors(), "errors: %v", chainCtx.GetErrors())

	// The chain pipes the final command's output into the input slot.
	job, ok := chainCtx.Get(cor.CtxIn).(*model.Job)
	require.True(t, ok)
	assert.Equal(t, model.JobTypePipeline, job.Type)

	// The source video was registered with the probed metadata.
	source, err := st.GetSourceVideoByPlatformID(context.Background(), "wf-vid")
	require.NoError(t, err)
	assert.Equal(t, "Workflow Video", source.Title)
	assert.Equal(t, source.ID, job.SourceVideoID)
}

func TestIngestWorkflowCarriesChunkOverrideToJob(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newWorkflowService(t, st)
	wf := NewReelIngestWorkflow(svc)

	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(context.Background())
	chainCtx.Add(cor.CtxIn, `{"url": "https://example.com/watch?v=wf-vid", "chunk_seconds": 20}`)

	wf.Execute(chainCtx)
	require.False(t, chainCtx.HasErrors(), "errors: %v", chainCtx.GetErrors())

	job, ok := chainCtx.Get(cor.CtxIn).(*model.Job)
	require.True(t, ok)
	assert.Equal(t, 20.0, job.ChunkSeconds)

	// The override survives the round trip through the store.
	persisted, err := st.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 20.0, persisted.ChunkSeconds)
}

func TestIngestWorkflowRejectsMalformedTrigger(t *testing.T) {
	st := store.NewMemoryStore()
	wf := NewReelIngestWorkflow(newWorkflowService(t, st))

	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(context.Background())
	chainCtx.Add(cor.CtxIn, `not json at all`)

	wf.Execute(chainCtx)
	assert.True(t, chainCtx.HasErrors())
}

func TestIngestWorkflowRejectsMissingURL(t *testing.T) {
	st := store.NewMemoryStore()
	wf := NewReelIngestWorkflow(newWorkflowService(t, st))

	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(context.Background())
	chainCtx.Add(cor.CtxIn, `{"requested_by": "ops"}`)

	wf.Execute(chainCtx)
	assert.True(t, chainCtx.HasErrors())
}
