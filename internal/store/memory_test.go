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

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/model"
)

func newSource(platformID string) *model.SourceVideo {
	now := time.Now().UTC()
	return &model.SourceVideo{
		ID:         uuid.NewString(),
		OriginURL:  "https://example.com/watch?v=" + platformID,
		PlatformID: platformID,
		Status:     model.SourceUploaded,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestSourceVideoPlatformIDUnique(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateSourceVideo(ctx, newSource("abc123")))
	err := s.CreateSourceVideo(ctx, newSource("abc123"))
	assert.ErrorIs(t, err, ErrConflict)

	v, err := s.GetSourceVideoByPlatformID(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", v.PlatformID)
}

func TestChunkSequenceUniquePerSource(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	src := newSource("chunked")
	require.NoError(t, s.CreateSourceVideo(ctx, src))

	chunks := []*model.Chunk{
		{ID: uuid.NewString(), SourceVideoID: src.ID, Sequence: 0, StartSeconds: 0, EndSeconds: 35},
		{ID: uuid.NewString(), SourceVideoID: src.ID, Sequence: 1, StartSeconds: 35, EndSeconds: 70},
	}
	require.NoError(t, s.CreateChunks(ctx, chunks))

	dup := []*model.Chunk{{ID: uuid.NewString(), SourceVideoID: src.ID, Sequence: 1}}
	assert.ErrorIs(t, s.CreateChunks(ctx, dup), ErrConflict)

	listed, err := s.ListChunksBySource(ctx, src.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, 0, listed[0].Sequence)
	assert.Equal(t, 1, listed[1].Sequence)
}

func TestReelMetadataRoundTripIsIsolated(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	reel := &model.Reel{
		ID:            uuid.NewString(),
		ChunkID:       uuid.NewString(),
		SourceVideoID: uuid.NewString(),
		Status:        model.ReelPending,
		Metadata: &model.ReelMetadata{
			Title:    "T",
			Caption:  "C",
			Hashtags: []string{"#a", "#b"},
		},
	}
	require.NoError(t, s.CreateReel(ctx, reel))

	// Mutating the caller's struct must not leak into the store.
	reel.Metadata.Title = "mutated"
	reel.Metadata.Hashtags[0] = "#mutated"

	got, err := s.GetReel(ctx, reel.ID)
	require.NoError(t, err)
	assert.Equal(t, "T", got.Metadata.Title)
	assert.Equal(t, "#a", got.Metadata.Hashtags[0])
}

func TestReelChunkRelationIsUnique(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	chunkID := uuid.NewString()

	require.NoError(t, s.CreateReel(ctx, &model.Reel{ID: uuid.NewString(), ChunkID: chunkID}))
	err := s.CreateReel(ctx, &model.Reel{ID: uuid.NewString(), ChunkID: chunkID})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestQueueEntryPairUnique(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	reelID, accountID := uuid.NewString(), uuid.NewString()

	entry := &model.QueueEntry{
		ID:        uuid.NewString(),
		ReelID:    reelID,
		AccountID: accountID,
		Status:    model.QueuePending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateQueueEntry(ctx, entry))

	dup := &model.QueueEntry{ID: uuid.NewString(), ReelID: reelID, AccountID: accountID}
	assert.ErrorIs(t, s.CreateQueueEntry(ctx, dup), ErrConflict)

	got, err := s.GetQueueEntryByReelAndAccount(ctx, reelID, accountID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)
}

func TestQueueListFiltersAndOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	accountA, accountB := uuid.NewString(), uuid.NewString()

	base := time.Now().UTC()
	entries := []*model.QueueEntry{
		{ID: "e1", ReelID: "r1", AccountID: accountA, Status: model.QueuePending, CreatedAt: base},
		{ID: "e2", ReelID: "r2", AccountID: accountA, Status: model.QueueUploaded, CreatedAt: base.Add(time.Second)},
		{ID: "e3", ReelID: "r3", AccountID: accountB, Status: model.QueuePending, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		require.NoError(t, s.CreateQueueEntry(ctx, e))
	}

	all, err := s.ListQueueEntries(ctx, QueueFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "e3", all[0].ID, "newest entry first")

	byAccount, err := s.ListQueueEntries(ctx, QueueFilter{AccountID: accountA})
	require.NoError(t, err)
	assert.Len(t, byAccount, 2)

	pending, err := s.ListQueueEntries(ctx, QueueFilter{AccountID: accountA, Status: model.QueuePending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "e1", pending[0].ID)
}

func TestUpdateMissingEntitiesReturnNotFound(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	assert.ErrorIs(t, s.UpdateSourceVideo(ctx, &model.SourceVideo{ID: "missing"}), ErrNotFound)
	assert.ErrorIs(t, s.UpdateJob(ctx, &model.Job{ID: "missing"}), ErrNotFound)
	assert.ErrorIs(t, s.UpdateQueueEntry(ctx, &model.QueueEntry{ID: "missing"}), ErrNotFound)
	assert.ErrorIs(t, s.DeleteQueueEntry(ctx, "missing"), ErrNotFound)

	_, err := s.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTouchAccountStampsLastUsed(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.SeedAccount(model.PublishAccount{ID: "acct", Username: "creator", Status: model.AccountActive})
	require.NoError(t, s.TouchAccount(ctx, "acct"))

	a, err := s.GetAccount(ctx, "acct")
	require.NoError(t, err)
	require.NotNil(t, a.LastUsedAt)
	assert.WithinDuration(t, time.Now().UTC(), *a.LastUsedAt, time.Minute)
}
