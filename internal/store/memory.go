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

// Package store in-memory implementation. Used by tests and by local
// development without a database. The semantics mirror the PostgreSQL
// store exactly: the same sentinel errors for the same conditions and
// the same ordering guarantees on list operations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/model"
)

// MemoryStore implements Store with mutex-guarded maps. All reads and
// writes copy the value structs so callers never share memory with the
// store.
type MemoryStore struct {
	mu       sync.RWMutex
	sources  map[string]model.SourceVideo
	chunks   map[string]model.Chunk
	reels    map[string]model.Reel
	jobs     map[string]model.Job
	accounts map[string]model.PublishAccount
	queue    map[string]model.QueueEntry
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sources:  make(map[string]model.SourceVideo),
		chunks:   make(map[string]model.Chunk),
		reels:    make(map[string]model.Reel),
		jobs:     make(map[string]model.Job),
		accounts: make(map[string]model.PublishAccount),
		queue:    make(map[string]model.QueueEntry),
	}
}

// SeedAccount inserts a publish account directly. Account writes are
// outside the pipeline's contract, so only tests and local bootstrap use
// this.
func (s *MemoryStore) SeedAccount(a model.PublishAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
}

func copyReel(r model.Reel) model.Reel {
	if r.Metadata != nil {
		meta := *r.Metadata
		meta.Hashtags = append([]string(nil), r.Metadata.Hashtags...)
		meta.Topics = append([]string(nil), r.Metadata.Topics...)
		r.Metadata = &meta
	}
	return r
}

// ---------------------------------------------------------------------------
// Source videos
// ---------------------------------------------------------------------------

func (s *MemoryStore) CreateSourceVideo(_ context.Context, v *model.SourceVideo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sources {
		if existing.PlatformID == v.PlatformID {
			return fmt.Errorf("%w: source video with platform id %q", ErrConflict, v.PlatformID)
		}
	}
	s.sources[v.ID] = *v
	return nil
}

func (s *MemoryStore) GetSourceVideo(_ context.Context, id string) (*model.SourceVideo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.sources[id]
	if !ok {
		return nil, fmt.Errorf("%w: source video %s", ErrNotFound, id)
	}
	return &v, nil
}

func (s *MemoryStore) GetSourceVideoByPlatformID(_ context.Context, platformID string) (*model.SourceVideo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.sources {
		if v.PlatformID == platformID {
			out := v
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: source video with platform id %q", ErrNotFound, platformID)
}

func (s *MemoryStore) UpdateSourceVideo(_ context.Context, v *model.SourceVideo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[v.ID]; !ok {
		return fmt.Errorf("%w: source video %s", ErrNotFound, v.ID)
	}
	v.UpdatedAt = time.Now().UTC()
	s.sources[v.ID] = *v
	return nil
}

func (s *MemoryStore) ListSourceVideos(_ context.Context) ([]*model.SourceVideo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.SourceVideo, 0, len(s.sources))
	for _, v := range s.sources {
		v := v
		out = append(out, &v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ---------------------------------------------------------------------------
// Chunks
// ---------------------------------------------------------------------------

func (s *MemoryStore) CreateChunks(_ context.Context, chunks []*model.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		for _, existing := range s.chunks {
			if existing.SourceVideoID == c.SourceVideoID && existing.Sequence == c.Sequence {
				return fmt.Errorf("%w: chunk %d of source %s", ErrConflict, c.Sequence, c.SourceVideoID)
			}
		}
	}
	for _, c := range chunks {
		s.chunks[c.ID] = *c
	}
	return nil
}

func (s *MemoryStore) ListChunksBySource(_ context.Context, sourceVideoID string) ([]*model.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Chunk, 0)
	for _, c := range s.chunks {
		if c.SourceVideoID == sourceVideoID {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (s *MemoryStore) DeleteChunksBySource(_ context.Context, sourceVideoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.chunks {
		if c.SourceVideoID == sourceVideoID {
			delete(s.chunks, id)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Reels
// ---------------------------------------------------------------------------

func (s *MemoryStore) CreateReel(_ context.Context, r *model.Reel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.reels {
		if existing.ChunkID == r.ChunkID {
			return fmt.Errorf("%w: reel for chunk %s", ErrConflict, r.ChunkID)
		}
	}
	s.reels[r.ID] = copyReel(*r)
	return nil
}

func (s *MemoryStore) GetReel(_ context.Context, id string) (*model.Reel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reels[id]
	if !ok {
		return nil, fmt.Errorf("%w: reel %s", ErrNotFound, id)
	}
	out := copyReel(r)
	return &out, nil
}

func (s *MemoryStore) UpdateReel(_ context.Context, r *model.Reel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reels[r.ID]; !ok {
		return fmt.Errorf("%w: reel %s", ErrNotFound, r.ID)
	}
	r.UpdatedAt = time.Now().UTC()
	s.reels[r.ID] = copyReel(*r)
	return nil
}

func (s *MemoryStore) ListReelsBySource(_ context.Context, sourceVideoID string) ([]*model.Reel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Reel, 0)
	for _, r := range s.reels {
		if r.SourceVideoID == sourceVideoID {
			c := copyReel(r)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (s *MemoryStore) DeleteReelsBySource(_ context.Context, sourceVideoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.reels {
		if r.SourceVideoID == sourceVideoID {
			delete(s.reels, id)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

func (s *MemoryStore) CreateJob(_ context.Context, j *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = *j
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, id string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	return &j, nil
}

func (s *MemoryStore) UpdateJob(_ context.Context, j *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ID]; !ok {
		return fmt.Errorf("%w: job %s", ErrNotFound, j.ID)
	}
	j.UpdatedAt = time.Now().UTC()
	s.jobs[j.ID] = *j
	return nil
}

func (s *MemoryStore) ListJobs(_ context.Context) ([]*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		j := j
		out = append(out, &j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueuedAt.After(out[j].QueuedAt) })
	return out, nil
}

func (s *MemoryStore) ListJobsBySource(_ context.Context, sourceVideoID string) ([]*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Job, 0)
	for _, j := range s.jobs {
		if j.SourceVideoID == sourceVideoID {
			j := j
			out = append(out, &j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueuedAt.After(out[j].QueuedAt) })
	return out, nil
}

// ---------------------------------------------------------------------------
// Publish accounts
// ---------------------------------------------------------------------------

func (s *MemoryStore) GetAccount(_ context.Context, id string) (*model.PublishAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: publish account %s", ErrNotFound, id)
	}
	return &a, nil
}

func (s *MemoryStore) ListAccounts(_ context.Context) ([]*model.PublishAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.PublishAccount, 0, len(s.accounts))
	for _, a := range s.accounts {
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *MemoryStore) TouchAccount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("%w: publish account %s", ErrNotFound, id)
	}
	now := time.Now().UTC()
	a.LastUsedAt = &now
	s.accounts[id] = a
	return nil
}

// ---------------------------------------------------------------------------
// Publish queue
// ---------------------------------------------------------------------------

func (s *MemoryStore) CreateQueueEntry(_ context.Context, e *model.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.queue {
		if existing.ReelID == e.ReelID && existing.AccountID == e.AccountID {
			return fmt.Errorf("%w: queue entry for reel %s and account %s", ErrConflict, e.ReelID, e.AccountID)
		}
	}
	s.queue[e.ID] = *e
	return nil
}

func (s *MemoryStore) GetQueueEntry(_ context.Context, id string) (*model.QueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.queue[id]
	if !ok {
		return nil, fmt.Errorf("%w: queue entry %s", ErrNotFound, id)
	}
	return &e, nil
}

func (s *MemoryStore) GetQueueEntryByReelAndAccount(_ context.Context, reelID, accountID string) (*model.QueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.queue {
		if e.ReelID == reelID && e.AccountID == accountID {
			out := e
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: queue entry for reel %s and account %s", ErrNotFound, reelID, accountID)
}

func (s *MemoryStore) UpdateQueueEntry(_ context.Context, e *model.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queue[e.ID]; !ok {
		return fmt.Errorf("%w: queue entry %s", ErrNotFound, e.ID)
	}
	s.queue[e.ID] = *e
	return nil
}

func (s *MemoryStore) DeleteQueueEntry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queue[id]; !ok {
		return fmt.Errorf("%w: queue entry %s", ErrNotFound, id)
	}
	delete(s.queue, id)
	return nil
}

func (s *MemoryStore) ListQueueEntries(_ context.Context, filter QueueFilter) ([]*model.QueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.QueueEntry, 0)
	for _, e := range s.queue {
		if filter.AccountID != "" && e.AccountID != filter.AccountID {
			continue
		}
		if filter.ReelID != "" && e.ReelID != filter.ReelID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		e := e
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
