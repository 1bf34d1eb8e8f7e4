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

// Package model defines the canonical data structures for the reel
// pipeline. There is exactly one schema per entity: SourceVideo owns
// Chunks, each Chunk owns at most one Reel, a Job tracks one pipeline
// execution for one SourceVideo, and a QueueEntry binds one Reel to one
// publish account. All structs are plain values; repositories return them
// fully materialized with no lazy relationship loading, and lifecycle is
// expressed through explicit status fields rather than delete flags.
package model

import "time"

// SourceVideoStatus is the lifecycle of an ingested source video.
type SourceVideoStatus string

const (
	SourceUploaded    SourceVideoStatus = "uploaded"
	SourceDownloading SourceVideoStatus = "downloading"
	SourceDownloaded  SourceVideoStatus = "downloaded"
	SourceProcessing  SourceVideoStatus = "processing"
	SourceCompleted   SourceVideoStatus = "completed"
	SourceFailed      SourceVideoStatus = "failed"
)

// JobStatus is the lifecycle of one pipeline execution. A job never
// regresses; the only exit from queued other than processing is cancelled.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// ReelStatus tracks a reel's publish lifecycle.
type ReelStatus string

const (
	ReelPending   ReelStatus = "pending"
	ReelUploaded  ReelStatus = "uploaded"
	ReelPublished ReelStatus = "published"
	ReelFailed    ReelStatus = "failed"
)

// QueueEntryStatus tracks a queue entry's upload outcome. Uploaded and
// failed are terminal; an entry must be deleted and recreated to retry.
type QueueEntryStatus string

const (
	QueuePending  QueueEntryStatus = "pending"
	QueueUploaded QueueEntryStatus = "uploaded"
	QueueFailed   QueueEntryStatus = "failed"
)

// AccountStatus is the subset of publish-account state the pipeline reads.
// Only active or connected accounts are eligible for queue admission.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountConnected AccountStatus = "connected"
	AccountInactive  AccountStatus = "inactive"
)

// SourceVideo is one long-form video ingested by URL. Title, description,
// duration, thumbnail, and transcript are filled in after acquisition.
type SourceVideo struct {
	ID               string            `json:"id" db:"id"`
	OriginURL        string            `json:"origin_url" db:"origin_url"`
	PlatformID       string            `json:"platform_id" db:"platform_id"` // External platform video id, unique.
	Title            string            `json:"title" db:"title"`
	Description      string            `json:"description" db:"description"`
	DurationSeconds  float64           `json:"duration_seconds" db:"duration_seconds"`
	ThumbnailURL     string            `json:"thumbnail_url" db:"thumbnail_url"`
	LocalPath        string            `json:"local_path" db:"local_path"`
	Transcript       string            `json:"transcript" db:"transcript"`
	TranscriptSource string            `json:"transcript_source" db:"transcript_source"`
	Status           SourceVideoStatus `json:"status" db:"status"`
	ErrorMessage     string            `json:"error_message,omitempty" db:"error_message"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at" db:"updated_at"`
}

// Chunk is one fixed-length time slice of a source video, pre-transform.
// Chunks are immutable once written: sequence indexes are 0-based and
// contiguous, and the [StartSeconds, EndSeconds) intervals partition
// [0, duration) with no overlap and no gap.
type Chunk struct {
	ID            string    `json:"id" db:"id"`
	SourceVideoID string    `json:"source_video_id" db:"source_video_id"`
	Sequence      int       `json:"sequence" db:"sequence"`
	StartSeconds  float64   `json:"start_seconds" db:"start_seconds"`
	EndSeconds    float64   `json:"end_seconds" db:"end_seconds"`
	FilePath      string    `json:"file_path" db:"file_path"`
	FileSizeBytes int64     `json:"file_size_bytes" db:"file_size_bytes"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// DurationSeconds returns the chunk's length in seconds.
func (c *Chunk) DurationSeconds() float64 {
	return c.EndSeconds - c.StartSeconds
}

// ReelMetadata is the AI-generated metadata block attached to a reel.
// Hashtag order is significant for display. QualityScore is always within
// [0, 1] by the time it is stored.
type ReelMetadata struct {
	Title        string   `json:"title"`
	Caption      string   `json:"caption"`
	Hashtags     []string `json:"hashtags"`
	Topics       []string `json:"topics"`
	QualityScore float64  `json:"quality_score"`
}

// Reel is the vertical-canvas output of transforming one Chunk. Exactly
// one reel exists per chunk after a successful transform.
type Reel struct {
	ID              string        `json:"id" db:"id"`
	ChunkID         string        `json:"chunk_id" db:"chunk_id"`
	SourceVideoID   string        `json:"source_video_id" db:"source_video_id"`
	Sequence        int           `json:"sequence" db:"sequence"`
	Width           int           `json:"width" db:"width"`
	Height          int           `json:"height" db:"height"`
	DurationSeconds float64       `json:"duration_seconds" db:"duration_seconds"`
	FilePath        string        `json:"file_path" db:"file_path"`
	FileSizeBytes   int64         `json:"file_size_bytes" db:"file_size_bytes"`
	Metadata        *ReelMetadata `json:"metadata,omitempty" db:"-"`
	Status          ReelStatus    `json:"status" db:"status"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// JobType names the kind of work a job performs. The full pipeline is the
// common case; sub-stage jobs exist for targeted re-runs.
type JobType string

const (
	JobTypePipeline JobType = "reel_pipeline"
	JobTypeEnrich   JobType = "metadata_enrich"
)

// Job tracks one execution of the pipeline for one source video. Progress
// is within [0, 100] and never decreases while the job is processing.
type Job struct {
	ID            string     `json:"id" db:"id"`
	SourceVideoID string     `json:"source_video_id" db:"source_video_id"`
	Type          JobType    `json:"type" db:"type"`
	Status        JobStatus  `json:"status" db:"status"`
	Progress      int        `json:"progress" db:"progress"`
	ChunkSeconds  float64    `json:"chunk_seconds,omitempty" db:"chunk_seconds"`
	ErrorMessage  string     `json:"error_message,omitempty" db:"error_message"`
	FailedStage   string     `json:"failed_stage,omitempty" db:"failed_stage"`
	QueuedAt      time.Time  `json:"queued_at" db:"queued_at"`
	StartedAt     *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// Terminal reports whether the job can no longer change state.
func (j *Job) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed || j.Status == JobCancelled
}

// PublishAccount is the read-only view of a target publishing account.
// Account CRUD, OAuth, and verification live outside this service; the
// pipeline only checks eligibility and touches LastUsedAt on upload.
type PublishAccount struct {
	ID         string        `json:"id" db:"id"`
	Username   string        `json:"username" db:"username"`
	Label      string        `json:"label" db:"label"`
	Status     AccountStatus `json:"status" db:"status"`
	LastUsedAt *time.Time    `json:"last_used_at,omitempty" db:"last_used_at"`
}

// Eligible reports whether the account may receive new queue entries.
func (a *PublishAccount) Eligible() bool {
	return a.Status == AccountActive || a.Status == AccountConnected
}

// QueueEntry binds one Reel to one publish account. At most one entry
// exists per (reel, account) pair. Account eligibility is checked at
// admission time only; later account-state changes do not invalidate the
// entry.
type QueueEntry struct {
	ID           string           `json:"id" db:"id"`
	ReelID       string           `json:"reel_id" db:"reel_id"`
	AccountID    string           `json:"account_id" db:"account_id"`
	Status       QueueEntryStatus `json:"status" db:"status"`
	PostID       string           `json:"post_id,omitempty" db:"post_id"`
	PostURL      string           `json:"post_url,omitempty" db:"post_url"`
	ErrorMessage string           `json:"error_message,omitempty" db:"error_message"`
	UploadedAt   *time.Time       `json:"uploaded_at,omitempty" db:"uploaded_at"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
}
