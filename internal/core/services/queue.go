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
// pipeline. This file implements the publish queue: admission of one reel
// for one account, terminal status transitions on upload outcome, hard
// removal, and the upload step itself through the publish collaborator.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/model"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/media"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/store"
)

// TokenSource resolves the access token for a publish account. Token
// storage and refresh live outside this service.
type TokenSource interface {
	AccessToken(ctx context.Context, accountID string) (string, error)
}

// ReelLinker produces a publicly reachable URL for a rendered reel file,
// typically a signed archive link. The publish collaborator pulls the
// video from that URL.
type ReelLinker interface {
	PublicURL(ctx context.Context, reel *model.Reel) (string, error)
}

// PublishQueueService owns QueueEntry rows and the upload flow.
type PublishQueueService struct {
	store     store.Store
	publisher media.Publisher
	tokens    TokenSource
	linker    ReelLinker
	logger    *slog.Logger
}

// NewPublishQueueService wires the queue service. Publisher, tokens, and
// linker may be nil when only admission and bookkeeping are needed (the
// upload path then rejects with an explanatory error).
func NewPublishQueueService(st store.Store, publisher media.Publisher, tokens TokenSource, linker ReelLinker, logger *slog.Logger) *PublishQueueService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublishQueueService{
		store:     st,
		publisher: publisher,
		tokens:    tokens,
		linker:    linker,
		logger:    logger,
	}
}

// Admit creates a pending queue entry for the (reel, account) pair.
//
// Failure semantics:
//   - store.ErrNotFound when the reel or the account does not exist.
//   - store.ErrConflict when an entry for the pair already exists,
//     whatever its status.
//   - store.ErrPreconditionFailed when the account is not eligible.
//
// Eligibility is checked at admission time only; later account-state
// changes do not invalidate an admitted entry.
func (s *PublishQueueService) Admit(ctx context.Context, reelID, accountID string) (*model.QueueEntry, error) {
	if _, err := s.store.GetReel(ctx, reelID); err != nil {
		return nil, err
	}
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.Eligible() {
		return nil, fmt.Errorf("%w: account %s is %s", store.ErrPreconditionFailed, accountID, account.Status)
	}

	entry := &model.QueueEntry{
		ID:        uuid.NewString(),
		ReelID:    reelID,
		AccountID: accountID,
		Status:    model.QueuePending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateQueueEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// MarkUploaded transitions a pending entry to its uploaded terminal
// state, recording the external post id and URL and touching the
// account's last-used timestamp.
func (s *PublishQueueService) MarkUploaded(ctx context.Context, entryID, postID, postURL string) (*model.QueueEntry, error) {
	entry, err := s.requirePending(ctx, entryID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry.Status = model.QueueUploaded
	entry.PostID = postID
	entry.PostURL = postURL
	entry.UploadedAt = &now
	if err := s.store.UpdateQueueEntry(ctx, entry); err != nil {
		return nil, err
	}
	if err := s.store.TouchAccount(ctx, entry.AccountID); err != nil {
		s.logger.WarnContext(ctx, "failed to touch account after upload",
			"account_id", entry.AccountID, "error", err)
	}

	if reel, err := s.store.GetReel(ctx, entry.ReelID); err == nil {
		reel.Status = model.ReelUploaded
		if err := s.store.UpdateReel(ctx, reel); err != nil {
			s.logger.WarnContext(ctx, "failed to update reel status after upload",
				"reel_id", reel.ID, "error", err)
		}
	}
	return entry, nil
}

// MarkFailed transitions a pending entry to its failed terminal state
// with an error string. Retrying requires deleting and recreating the
// entry.
func (s *PublishQueueService) MarkFailed(ctx context.Context, entryID, message string) (*model.QueueEntry, error) {
	entry, err := s.requirePending(ctx, entryID)
	if err != nil {
		return nil, err
	}
	entry.Status = model.QueueFailed
	entry.ErrorMessage = message
	if err := s.store.UpdateQueueEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Remove hard-deletes a queue entry at any status. The reel itself is
// never touched.
func (s *PublishQueueService) Remove(ctx context.Context, entryID string) error {
	return s.store.DeleteQueueEntry(ctx, entryID)
}

// Get returns one queue entry.
func (s *PublishQueueService) Get(ctx context.Context, entryID string) (*model.QueueEntry, error) {
	return s.store.GetQueueEntry(ctx, entryID)
}

// List returns queue entries matching the filter, newest first.
func (s *PublishQueueService) List(ctx context.Context, filter store.QueueFilter) ([]*model.QueueEntry, error) {
	return s.store.ListQueueEntries(ctx, filter)
}

// Upload publishes one pending entry's reel through the publish
// collaborator and records the terminal outcome on the entry. A failed
// publish marks the entry failed and returns the collaborator's error.
func (s *PublishQueueService) Upload(ctx context.Context, entryID string) (*model.QueueEntry, error) {
	if s.publisher == nil || s.tokens == nil || s.linker == nil {
		return nil, errors.New("services: publish collaborators are not configured")
	}

	entry, err := s.requirePending(ctx, entryID)
	if err != nil {
		return nil, err
	}
	reel, err := s.store.GetReel(ctx, entry.ReelID)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.AccessToken(ctx, entry.AccountID)
	if err != nil {
		return s.recordUploadFailure(ctx, entry, err)
	}
	videoURL, err := s.linker.PublicURL(ctx, reel)
	if err != nil {
		return s.recordUploadFailure(ctx, entry, err)
	}

	result, err := s.publisher.Publish(ctx, media.PublishRequest{
		AccountID:   entry.AccountID,
		AccessToken: token,
		VideoURL:    videoURL,
		Caption:     buildCaption(reel.Metadata),
	})
	if err != nil {
		return s.recordUploadFailure(ctx, entry, err)
	}
	return s.MarkUploaded(ctx, entry.ID, result.PostID, result.PostURL)
}

// DrainPending uploads every pending queue entry once, oldest last per
// the store's newest-first ordering. One entry's failure never stops the
// sweep; the failure is already recorded on the entry by Upload. Returns
// the number of entries that uploaded successfully.
func (s *PublishQueueService) DrainPending(ctx context.Context) (int, error) {
	entries, err := s.store.ListQueueEntries(ctx, store.QueueFilter{Status: model.QueuePending})
	if err != nil {
		return 0, err
	}

	uploaded := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return uploaded, ctx.Err()
		}
		if _, err := s.Upload(ctx, entry.ID); err != nil {
			s.logger.WarnContext(ctx, "queue drain upload failed",
				"entry_id", entry.ID, "reel_id", entry.ReelID, "error", err)
			continue
		}
		uploaded++
	}
	return uploaded, nil
}

// StartDrainer launches a background goroutine that sweeps the pending
// queue on the given interval until the context is cancelled.
func (s *PublishQueueService) StartDrainer(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := s.DrainPending(ctx); err != nil {
					s.logger.WarnContext(ctx, "queue drain sweep aborted", "error", err)
				} else if n > 0 {
					s.logger.InfoContext(ctx, "queue drain sweep uploaded entries", "count", n)
				}
			}
		}
	}()
}

func (s *PublishQueueService) recordUploadFailure(ctx context.Context, entry *model.QueueEntry, cause error) (*model.QueueEntry, error) {
	if _, err := s.MarkFailed(ctx, entry.ID, cause.Error()); err != nil {
		s.logger.ErrorContext(ctx, "failed to record upload failure",
			"entry_id", entry.ID, "error", err)
	}
	return nil, cause
}

// requirePending loads an entry and rejects any terminal status. Uploaded
// and failed entries cannot transition further.
func (s *PublishQueueService) requirePending(ctx context.Context, entryID string) (*model.QueueEntry, error) {
	entry, err := s.store.GetQueueEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status != model.QueuePending {
		return nil, fmt.Errorf("%w: queue entry %s is %s", store.ErrPreconditionFailed, entryID, entry.Status)
	}
	return entry, nil
}

// buildCaption joins the metadata caption and hashtags into one caption
// string, falling back to the default tuple when the reel has no
// metadata.
func buildCaption(meta *model.ReelMetadata) string {
	if meta == nil {
		meta = model.DefaultMetadata()
	}
	parts := []string{meta.Caption}
	if len(meta.Hashtags) > 0 {
		parts = append(parts, strings.Join(meta.Hashtags, " "))
	}
	return strings.Join(parts, "\n\n")
}
