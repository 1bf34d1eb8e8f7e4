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
// pipeline. This file implements the job worker pool: a fixed set of
// goroutines pulls queued job ids from a channel and runs each job to
// completion on a single worker. The pool never runs two jobs for the
// same source video at once; per-source mutual exclusion lives in the
// runner, not here.
package services

import (
	"context"
	"log/slog"
	"sync"
)

// JobRunner executes one job to its terminal state.
type JobRunner func(ctx context.Context, jobID string)

// WorkerPool schedules queued jobs over a fixed number of workers.
type WorkerPool struct {
	jobs    chan string
	runner  JobRunner
	size    int
	logger  *slog.Logger
	wg      sync.WaitGroup
	started sync.Once
}

// NewWorkerPool creates a pool of the given size. A size below one is
// raised to one so the pipeline always makes progress.
func NewWorkerPool(size int, runner JobRunner, logger *slog.Logger) *WorkerPool {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{
		jobs:   make(chan string, 256),
		runner: runner,
		size:   size,
		logger: logger,
	}
}

// Start launches the workers. Each worker loops until the context is
// cancelled, then drains out through the WaitGroup.
func (p *WorkerPool) Start(ctx context.Context) {
	p.started.Do(func() {
		for i := 0; i < p.size; i++ {
			p.wg.Add(1)
			go p.work(ctx, i)
		}
	})
}

func (p *WorkerPool) work(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case jobID, ok := <-p.jobs:
			if !ok {
				return
			}
			p.logger.InfoContext(ctx, "worker picked up job", "worker", id, "job_id", jobID)
			p.runner(ctx, jobID)
		}
	}
}

// Submit hands a job id to the pool. It returns false when the queue is
// full, which the caller surfaces as a retryable condition rather than
// blocking an API request.
func (p *WorkerPool) Submit(jobID string) bool {
	select {
	case p.jobs <- jobID:
		return true
	default:
		return false
	}
}

// Wait blocks until all workers have exited. Call after cancelling the
// context passed to Start.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}
