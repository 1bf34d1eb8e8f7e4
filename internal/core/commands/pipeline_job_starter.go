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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface. This file defines the
// command that turns a parsed ingest request into a registered source
// video and a queued pipeline job.
//
// Logic Flow:
//  1. It receives the parsed `cloud.IngestRequest` from the previous
//     command in the chain.
//  2. It registers the source video through the pipeline service, which
//     probes the video's metadata and deduplicates by platform id.
//  3. It enqueues a full pipeline job for the source. The job runs on
//     the service's worker pool; this command does not wait for it.
//  4. The queued job is placed into the context output so a caller can
//     observe the job id that was created for the trigger.
package commands

import (
	"fmt"

	"github.com/jaycherian/gcp-go-reel-pipeline/internal/cloud"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/cor"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/model"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/services"
)

// PipelineJobStarter is a command that registers a source video and
// queues a pipeline job for it.
type PipelineJobStarter struct {
	cor.BaseCommand
	pipeline *services.PipelineService
}

// NewPipelineJobStarter is the constructor for the PipelineJobStarter command.
func NewPipelineJobStarter(name string, pipeline *services.PipelineService) *PipelineJobStarter {
	return &PipelineJobStarter{
		BaseCommand: *cor.NewBaseCommand(name),
		pipeline:    pipeline,
	}
}

// Execute registers the source and enqueues the job.
func (c *PipelineJobStarter) Execute(context cor.Context) {
	request := context.Get(c.GetInputParam()).(*cloud.IngestRequest)

	source, err := c.pipeline.IngestSource(context.GetContext(), request.URL)
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("failed to register source video: %w", err))
		return
	}

	job, err := c.pipeline.EnqueueJob(context.GetContext(), source.ID, model.JobTypePipeline, request.ChunkSeconds)
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("failed to enqueue pipeline job: %w", err))
		return
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(c.GetOutputParam(), job)
}
