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

package store

import "context"

// Schema is the idempotent DDL for the pipeline's tables. Uniqueness of
// the source platform id, the per-source chunk sequence, the chunk-to-reel
// relation, and the (reel, account) queue pair all live here as database
// constraints.
const Schema = `
CREATE TABLE IF NOT EXISTS source_videos (
	id                TEXT PRIMARY KEY,
	origin_url        TEXT NOT NULL,
	platform_id       TEXT NOT NULL UNIQUE,
	title             TEXT NOT NULL DEFAULT '',
	description       TEXT NOT NULL DEFAULT '',
	duration_seconds  DOUBLE PRECISION NOT NULL DEFAULT 0,
	thumbnail_url     TEXT NOT NULL DEFAULT '',
	local_path        TEXT NOT NULL DEFAULT '',
	transcript        TEXT NOT NULL DEFAULT '',
	transcript_source TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL,
	error_message     TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id               TEXT PRIMARY KEY,
	source_video_id  TEXT NOT NULL REFERENCES source_videos (id) ON DELETE CASCADE,
	sequence         INTEGER NOT NULL,
	start_seconds    DOUBLE PRECISION NOT NULL,
	end_seconds      DOUBLE PRECISION NOT NULL,
	file_path        TEXT NOT NULL,
	file_size_bytes  BIGINT NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL,
	UNIQUE (source_video_id, sequence)
);

CREATE TABLE IF NOT EXISTS reels (
	id               TEXT PRIMARY KEY,
	chunk_id         TEXT NOT NULL UNIQUE REFERENCES chunks (id) ON DELETE CASCADE,
	source_video_id  TEXT NOT NULL REFERENCES source_videos (id) ON DELETE CASCADE,
	sequence         INTEGER NOT NULL,
	width            INTEGER NOT NULL,
	height           INTEGER NOT NULL,
	duration_seconds DOUBLE PRECISION NOT NULL,
	file_path        TEXT NOT NULL,
	file_size_bytes  BIGINT NOT NULL DEFAULT 0,
	metadata         JSONB,
	status           TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id               TEXT PRIMARY KEY,
	source_video_id  TEXT NOT NULL REFERENCES source_videos (id) ON DELETE CASCADE,
	type             TEXT NOT NULL,
	status           TEXT NOT NULL,
	progress         INTEGER NOT NULL DEFAULT 0,
	chunk_seconds    DOUBLE PRECISION NOT NULL DEFAULT 0,
	error_message    TEXT NOT NULL DEFAULT '',
	failed_stage     TEXT NOT NULL DEFAULT '',
	queued_at        TIMESTAMPTZ NOT NULL,
	started_at       TIMESTAMPTZ,
	completed_at     TIMESTAMPTZ,
	updated_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS publish_accounts (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL,
	label         TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	last_used_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS queue_entries (
	id            TEXT PRIMARY KEY,
	reel_id       TEXT NOT NULL REFERENCES reels (id) ON DELETE CASCADE,
	account_id    TEXT NOT NULL REFERENCES publish_accounts (id) ON DELETE CASCADE,
	status        TEXT NOT NULL,
	post_id       TEXT NOT NULL DEFAULT '',
	post_url      TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	uploaded_at   TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL,
	UNIQUE (reel_id, account_id)
);

CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks (source_video_id);
CREATE INDEX IF NOT EXISTS idx_reels_source ON reels (source_video_id);
CREATE INDEX IF NOT EXISTS idx_jobs_source ON jobs (source_video_id);
CREATE INDEX IF NOT EXISTS idx_queue_account ON queue_entries (account_id);
`

// Migrate applies the schema. Safe to call on every startup.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}
