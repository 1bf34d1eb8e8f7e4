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

// Package workflow defines the high-level business logic orchestrations,
// combining various commands into coherent pipelines. This file implements
// the Pub/Sub-triggered ingest workflow: a trigger message names a source
// video URL, and the workflow registers the video and queues a pipeline
// job for it. The job itself runs asynchronously on the pipeline
// service's worker pool.
package workflow

import (
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/commands"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/cor"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/services"
)

// ReelIngestWorkflow parses ingest triggers and starts pipeline jobs.
// It is attached to a Pub/Sub listener as its processing command.
type ReelIngestWorkflow struct {
	cor.BaseCommand
	pipeline *services.PipelineService
	chain    cor.Chain
}

// Execute runs the ingest workflow by invoking the underlying command chain.
func (w *ReelIngestWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

// initializeChain constructs the sequence of commands for the workflow.
func (w *ReelIngestWorkflow) initializeChain() {
	out := cor.NewBaseChain(w.GetName())

	// Step 1: Parse the incoming Pub/Sub trigger message.
	out.AddCommand(commands.NewIngestTriggerReader("ingest-trigger-reader"))

	// Step 2: Register the source video and queue the pipeline job.
	out.AddCommand(commands.NewPipelineJobStarter("pipeline-job-starter", w.pipeline))

	w.chain = out
}

// NewReelIngestWorkflow is the constructor for the ReelIngestWorkflow.
//
// Inputs:
//   - pipeline: The pipeline service that owns source registration and
//     the job worker pool.
//
// Returns:
//   - A pointer to a newly created and fully initialized ReelIngestWorkflow.
func NewReelIngestWorkflow(pipeline *services.PipelineService) *ReelIngestWorkflow {
	out := &ReelIngestWorkflow{
		BaseCommand: *cor.NewBaseCommand("reel-ingest-workflow"),
		pipeline:    pipeline,
	}
	out.initializeChain()
	return out
}
