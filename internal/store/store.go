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

// Package store defines the persistence contracts for the reel pipeline
// and their sentinel errors. Repositories return fully materialized value
// structs; there is no lazy relationship loading and no soft deletion.
// Two implementations exist: a PostgreSQL store for production and an
// in-memory store for tests and local development.
package store

import (
	"context"
	"errors"

	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/model"
)

// Sentinel errors shared by all implementations. Callers branch on these
// with errors.Is to map persistence outcomes onto API semantics.
var (
	ErrNotFound           = errors.New("store: entity not found")
	ErrConflict           = errors.New("store: entity already exists")
	ErrPreconditionFailed = errors.New("store: entity state rejects this operation")
)

// QueueFilter narrows ListQueueEntries. Zero-valued fields match all.
type QueueFilter struct {
	AccountID string
	ReelID    string
	Status    model.QueueEntryStatus
}

// SourceVideoStore persists ingested source videos. PlatformID carries a
// uniqueness constraint; creating a duplicate returns ErrConflict.
type SourceVideoStore interface {
	CreateSourceVideo(ctx context.Context, v *model.SourceVideo) error
	GetSourceVideo(ctx context.Context, id string) (*model.SourceVideo, error)
	GetSourceVideoByPlatformID(ctx context.Context, platformID string) (*model.SourceVideo, error)
	UpdateSourceVideo(ctx context.Context, v *model.SourceVideo) error
	ListSourceVideos(ctx context.Context) ([]*model.SourceVideo, error)
}

// ChunkStore persists the immutable chunk records of a source video.
// Chunks are written once per segmentation run and listed in sequence
// order.
type ChunkStore interface {
	CreateChunks(ctx context.Context, chunks []*model.Chunk) error
	ListChunksBySource(ctx context.Context, sourceVideoID string) ([]*model.Chunk, error)
	DeleteChunksBySource(ctx context.Context, sourceVideoID string) error
}

// ReelStore persists rendered reels and their metadata tuples. The
// metadata tuple is stored as a JSON document alongside the row.
type ReelStore interface {
	CreateReel(ctx context.Context, r *model.Reel) error
	GetReel(ctx context.Context, id string) (*model.Reel, error)
	UpdateReel(ctx context.Context, r *model.Reel) error
	ListReelsBySource(ctx context.Context, sourceVideoID string) ([]*model.Reel, error)
	DeleteReelsBySource(ctx context.Context, sourceVideoID string) error
}

// JobStore persists pipeline jobs. Jobs are listed newest first.
type JobStore interface {
	CreateJob(ctx context.Context, j *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	UpdateJob(ctx context.Context, j *model.Job) error
	ListJobs(ctx context.Context) ([]*model.Job, error)
	ListJobsBySource(ctx context.Context, sourceVideoID string) ([]*model.Job, error)
}

// AccountStore reads publish accounts. The pipeline never creates or
// deletes accounts; it only checks eligibility and stamps LastUsedAt.
type AccountStore interface {
	GetAccount(ctx context.Context, id string) (*model.PublishAccount, error)
	ListAccounts(ctx context.Context) ([]*model.PublishAccount, error)
	TouchAccount(ctx context.Context, id string) error
}

// QueueStore persists publish-queue entries. The (reel, account) pair is
// unique; a duplicate create returns ErrConflict. Listing is ordered by
// creation time, newest first.
type QueueStore interface {
	CreateQueueEntry(ctx context.Context, e *model.QueueEntry) error
	GetQueueEntry(ctx context.Context, id string) (*model.QueueEntry, error)
	GetQueueEntryByReelAndAccount(ctx context.Context, reelID, accountID string) (*model.QueueEntry, error)
	UpdateQueueEntry(ctx context.Context, e *model.QueueEntry) error
	DeleteQueueEntry(ctx context.Context, id string) error
	ListQueueEntries(ctx context.Context, filter QueueFilter) ([]*model.QueueEntry, error)
}

// Store aggregates every repository behind one handle so services take a
// single dependency.
type Store interface {
	SourceVideoStore
	ChunkStore
	ReelStore
	JobStore
	AccountStore
	QueueStore
}
