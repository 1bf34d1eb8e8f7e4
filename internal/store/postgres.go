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

// Package store persistence over PostgreSQL. Queries use sqlx named
// parameters against the canonical model structs; the reel metadata tuple
// is stored as a jsonb column and marshaled at the boundary. Uniqueness
// (source platform id, queue reel+account pair) is enforced by database
// constraints and surfaced as ErrConflict.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/model"
)

// pqUniqueViolation is the PostgreSQL error code for a violated unique
// constraint.
const pqUniqueViolation = "23505"

// PostgresStore implements Store over a PostgreSQL database.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore opens a connection pool against the given DSN and
// verifies connectivity before returning.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing connection pool. Used by tests
// that manage their own database lifecycle.
func NewPostgresStoreFromDB(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation
}

// ---------------------------------------------------------------------------
// Source videos
// ---------------------------------------------------------------------------

func (s *PostgresStore) CreateSourceVideo(ctx context.Context, v *model.SourceVideo) error {
	const q = `
		INSERT INTO source_videos
			(id, origin_url, platform_id, title, description, duration_seconds,
			 thumbnail_url, local_path, transcript, transcript_source, status,
			 error_message, created_at, updated_at)
		VALUES
			(:id, :origin_url, :platform_id, :title, :description, :duration_seconds,
			 :thumbnail_url, :local_path, :transcript, :transcript_source, :status,
			 :error_message, :created_at, :updated_at)`
	_, err := s.db.NamedExecContext(ctx, q, v)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: source video with platform id %q", ErrConflict, v.PlatformID)
	}
	return err
}

func (s *PostgresStore) GetSourceVideo(ctx context.Context, id string) (*model.SourceVideo, error) {
	var v model.SourceVideo
	err := s.db.GetContext(ctx, &v, `SELECT * FROM source_videos WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: source video %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PostgresStore) GetSourceVideoByPlatformID(ctx context.Context, platformID string) (*model.SourceVideo, error) {
	var v model.SourceVideo
	err := s.db.GetContext(ctx, &v, `SELECT * FROM source_videos WHERE platform_id = $1`, platformID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: source video with platform id %q", ErrNotFound, platformID)
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PostgresStore) UpdateSourceVideo(ctx context.Context, v *model.SourceVideo) error {
	v.UpdatedAt = time.Now().UTC()
	const q = `
		UPDATE source_videos SET
			title = :title, description = :description,
			duration_seconds = :duration_seconds, thumbnail_url = :thumbnail_url,
			local_path = :local_path, transcript = :transcript,
			transcript_source = :transcript_source, status = :status,
			error_message = :error_message, updated_at = :updated_at
		WHERE id = :id`
	res, err := s.db.NamedExecContext(ctx, q, v)
	if err != nil {
		return err
	}
	return requireRow(res, "source video", v.ID)
}

func (s *PostgresStore) ListSourceVideos(ctx context.Context) ([]*model.SourceVideo, error) {
	out := make([]*model.SourceVideo, 0)
	err := s.db.SelectContext(ctx, &out, `SELECT * FROM source_videos ORDER BY created_at DESC`)
	return out, err
}

// ---------------------------------------------------------------------------
// Chunks
// ---------------------------------------------------------------------------

func (s *PostgresStore) CreateChunks(ctx context.Context, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	const q = `
		INSERT INTO chunks
			(id, source_video_id, sequence, start_seconds, end_seconds,
			 file_path, file_size_bytes, created_at)
		VALUES
			(:id, :source_video_id, :sequence, :start_seconds, :end_seconds,
			 :file_path, :file_size_bytes, :created_at)`
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	for _, c := range chunks {
		if _, err := tx.NamedExecContext(ctx, q, c); err != nil {
			_ = tx.Rollback()
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: chunk %d of source %s", ErrConflict, c.Sequence, c.SourceVideoID)
			}
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) ListChunksBySource(ctx context.Context, sourceVideoID string) ([]*model.Chunk, error) {
	out := make([]*model.Chunk, 0)
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM chunks WHERE source_video_id = $1 ORDER BY sequence ASC`, sourceVideoID)
	return out, err
}

func (s *PostgresStore) DeleteChunksBySource(ctx context.Context, sourceVideoID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE source_video_id = $1`, sourceVideoID)
	return err
}

// ---------------------------------------------------------------------------
// Reels
// ---------------------------------------------------------------------------

// reelRow is the database shape of a reel: the metadata tuple rides in a
// jsonb column rather than its own table.
type reelRow struct {
	model.Reel
	MetadataJSON []byte `db:"metadata"`
}

func toReelRow(r *model.Reel) (*reelRow, error) {
	row := &reelRow{Reel: *r}
	if r.Metadata != nil {
		b, err := json.Marshal(r.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal reel metadata: %w", err)
		}
		row.MetadataJSON = b
	}
	return row, nil
}

func fromReelRow(row *reelRow) (*model.Reel, error) {
	r := row.Reel
	if len(row.MetadataJSON) > 0 {
		var meta model.ReelMetadata
		if err := json.Unmarshal(row.MetadataJSON, &meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reel metadata: %w", err)
		}
		r.Metadata = &meta
	}
	return &r, nil
}

func (s *PostgresStore) CreateReel(ctx context.Context, r *model.Reel) error {
	row, err := toReelRow(r)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO reels
			(id, chunk_id, source_video_id, sequence, width, height,
			 duration_seconds, file_path, file_size_bytes, metadata, status,
			 created_at, updated_at)
		VALUES
			(:id, :chunk_id, :source_video_id, :sequence, :width, :height,
			 :duration_seconds, :file_path, :file_size_bytes, :metadata, :status,
			 :created_at, :updated_at)`
	_, err = s.db.NamedExecContext(ctx, q, row)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: reel for chunk %s", ErrConflict, r.ChunkID)
	}
	return err
}

func (s *PostgresStore) GetReel(ctx context.Context, id string) (*model.Reel, error) {
	var row reelRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM reels WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: reel %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return fromReelRow(&row)
}

func (s *PostgresStore) UpdateReel(ctx context.Context, r *model.Reel) error {
	r.UpdatedAt = time.Now().UTC()
	row, err := toReelRow(r)
	if err != nil {
		return err
	}
	const q = `
		UPDATE reels SET
			width = :width, height = :height,
			duration_seconds = :duration_seconds, file_path = :file_path,
			file_size_bytes = :file_size_bytes, metadata = :metadata,
			status = :status, updated_at = :updated_at
		WHERE id = :id`
	res, err := s.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return err
	}
	return requireRow(res, "reel", r.ID)
}

func (s *PostgresStore) ListReelsBySource(ctx context.Context, sourceVideoID string) ([]*model.Reel, error) {
	rows := make([]*reelRow, 0)
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM reels WHERE source_video_id = $1 ORDER BY sequence ASC`, sourceVideoID)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Reel, 0, len(rows))
	for _, row := range rows {
		r, err := fromReelRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *PostgresStore) DeleteReelsBySource(ctx context.Context, sourceVideoID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM reels WHERE source_video_id = $1`, sourceVideoID)
	return err
}

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

func (s *PostgresStore) CreateJob(ctx context.Context, j *model.Job) error {
	const q = `
		INSERT INTO jobs
			(id, source_video_id, type, status, progress, chunk_seconds,
			 error_message, failed_stage, queued_at, started_at, completed_at,
			 updated_at)
		VALUES
			(:id, :source_video_id, :type, :status, :progress, :chunk_seconds,
			 :error_message, :failed_stage, :queued_at, :started_at,
			 :completed_at, :updated_at)`
	_, err := s.db.NamedExecContext(ctx, q, j)
	return err
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	var j model.Job
	err := s.db.GetContext(ctx, &j, `SELECT * FROM jobs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) UpdateJob(ctx context.Context, j *model.Job) error {
	j.UpdatedAt = time.Now().UTC()
	const q = `
		UPDATE jobs SET
			status = :status, progress = :progress,
			error_message = :error_message, failed_stage = :failed_stage,
			started_at = :started_at, completed_at = :completed_at,
			updated_at = :updated_at
		WHERE id = :id`
	res, err := s.db.NamedExecContext(ctx, q, j)
	if err != nil {
		return err
	}
	return requireRow(res, "job", j.ID)
}

func (s *PostgresStore) ListJobs(ctx context.Context) ([]*model.Job, error) {
	out := make([]*model.Job, 0)
	err := s.db.SelectContext(ctx, &out, `SELECT * FROM jobs ORDER BY queued_at DESC`)
	return out, err
}

func (s *PostgresStore) ListJobsBySource(ctx context.Context, sourceVideoID string) ([]*model.Job, error) {
	out := make([]*model.Job, 0)
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM jobs WHERE source_video_id = $1 ORDER BY queued_at DESC`, sourceVideoID)
	return out, err
}

// ---------------------------------------------------------------------------
// Publish accounts
// ---------------------------------------------------------------------------

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*model.PublishAccount, error) {
	var a model.PublishAccount
	err := s.db.GetContext(ctx, &a,
		`SELECT id, username, label, status, last_used_at FROM publish_accounts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: publish account %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]*model.PublishAccount, error) {
	out := make([]*model.PublishAccount, 0)
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, username, label, status, last_used_at FROM publish_accounts ORDER BY username ASC`)
	return out, err
}

func (s *PostgresStore) TouchAccount(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE publish_accounts SET last_used_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res, "publish account", id)
}

// ---------------------------------------------------------------------------
// Publish queue
// ---------------------------------------------------------------------------

func (s *PostgresStore) CreateQueueEntry(ctx context.Context, e *model.QueueEntry) error {
	const q = `
		INSERT INTO queue_entries
			(id, reel_id, account_id, status, post_id, post_url,
			 error_message, uploaded_at, created_at)
		VALUES
			(:id, :reel_id, :account_id, :status, :post_id, :post_url,
			 :error_message, :uploaded_at, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, e)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: queue entry for reel %s and account %s", ErrConflict, e.ReelID, e.AccountID)
	}
	return err
}

func (s *PostgresStore) GetQueueEntry(ctx context.Context, id string) (*model.QueueEntry, error) {
	var e model.QueueEntry
	err := s.db.GetContext(ctx, &e, `SELECT * FROM queue_entries WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: queue entry %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *PostgresStore) GetQueueEntryByReelAndAccount(ctx context.Context, reelID, accountID string) (*model.QueueEntry, error) {
	var e model.QueueEntry
	err := s.db.GetContext(ctx, &e,
		`SELECT * FROM queue_entries WHERE reel_id = $1 AND account_id = $2`, reelID, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: queue entry for reel %s and account %s", ErrNotFound, reelID, accountID)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *PostgresStore) UpdateQueueEntry(ctx context.Context, e *model.QueueEntry) error {
	const q = `
		UPDATE queue_entries SET
			status = :status, post_id = :post_id, post_url = :post_url,
			error_message = :error_message, uploaded_at = :uploaded_at
		WHERE id = :id`
	res, err := s.db.NamedExecContext(ctx, q, e)
	if err != nil {
		return err
	}
	return requireRow(res, "queue entry", e.ID)
}

func (s *PostgresStore) DeleteQueueEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM queue_entries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res, "queue entry", id)
}

func (s *PostgresStore) ListQueueEntries(ctx context.Context, filter QueueFilter) ([]*model.QueueEntry, error) {
	q := `SELECT * FROM queue_entries WHERE 1=1`
	args := make([]interface{}, 0, 3)
	if filter.AccountID != "" {
		args = append(args, filter.AccountID)
		q += fmt.Sprintf(" AND account_id = $%d", len(args))
	}
	if filter.ReelID != "" {
		args = append(args, filter.ReelID)
		q += fmt.Sprintf(" AND reel_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		q += fmt.Sprintf(" AND status = $%d", len(args))
	}
	q += ` ORDER BY created_at DESC`

	out := make([]*model.QueueEntry, 0)
	err := s.db.SelectContext(ctx, &out, q, args...)
	return out, err
}

// requireRow converts a zero-row update or delete into ErrNotFound.
func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return nil
}
