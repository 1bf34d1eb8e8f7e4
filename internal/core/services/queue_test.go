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

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/model"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/media"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/store"
)

type fakePublisher struct {
	result  *media.PublishResult
	err     error
	lastReq media.PublishRequest
}

func (f *fakePublisher) Publish(_ context.Context, req media.PublishRequest) (*media.PublishResult, error) {
	f.lastReq = req
	return f.result, f.err
}

type staticTokens struct{ token string }

func (s staticTokens) AccessToken(_ context.Context, _ string) (string, error) {
	return s.token, nil
}

type staticLinker struct{ url string }

func (s staticLinker) PublicURL(_ context.Context, _ *model.Reel) (string, error) {
	return s.url, nil
}

func seedReelAndAccount(t *testing.T, st *store.MemoryStore, accountStatus model.AccountStatus) (reelID, accountID string) {
	t.Helper()
	reelID, accountID = uuid.NewString(), uuid.NewString()
	require.NoError(t, st.CreateReel(context.Background(), &model.Reel{
		ID:       reelID,
		ChunkID:  uuid.NewString(),
		Status:   model.ReelPending,
		Metadata: &model.ReelMetadata{Caption: "Great clip", Hashtags: []string{"#a", "#b"}},
	}))
	st.SeedAccount(model.PublishAccount{ID: accountID, Username: "creator", Status: accountStatus})
	return reelID, accountID
}

func TestAdmitCreatesPendingEntry(t *testing.T) {
	st := store.NewMemoryStore()
	svc := NewPublishQueueService(st, nil, nil, nil, nil)
	reelID, accountID := seedReelAndAccount(t, st, model.AccountActive)

	entry, err := svc.Admit(context.Background(), reelID, accountID)
	require.NoError(t, err)
	assert.Equal(t, model.QueuePending, entry.Status)
	assert.Equal(t, reelID, entry.ReelID)
	assert.Equal(t, accountID, entry.AccountID)
}

func TestAdmitRejectsMissingReelOrAccount(t *testing.T) {
	st := store.NewMemoryStore()
	svc := NewPublishQueueService(st, nil, nil, nil, nil)
	reelID, accountID := seedReelAndAccount(t, st, model.AccountActive)

	_, err := svc.Admit(context.Background(), "no-such-reel", accountID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.Admit(context.Background(), reelID, "no-such-account")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAdmitRejectsDuplicatePair(t *testing.T) {
	st := store.NewMemoryStore()
	svc := NewPublishQueueService(st, nil, nil, nil, nil)
	reelID, accountID := seedReelAndAccount(t, st, model.AccountConnected)

	_, err := svc.Admit(context.Background(), reelID, accountID)
	require.NoError(t, err)

	_, err = svc.Admit(context.Background(), reelID, accountID)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestAdmitRejectsIneligibleAccount(t *testing.T) {
	st := store.NewMemoryStore()
	svc := NewPublishQueueService(st, nil, nil, nil, nil)
	reelID, accountID := seedReelAndAccount(t, st, model.AccountInactive)

	_, err := svc.Admit(context.Background(), reelID, accountID)
	assert.ErrorIs(t, err, store.ErrPreconditionFailed)
}

func TestUploadedAndFailedAreTerminal(t *testing.T) {
	st := store.NewMemoryStore()
	svc := NewPublishQueueService(st, nil, nil, nil, nil)
	ctx := context.Background()
	reelID, accountID := seedReelAndAccount(t, st, model.AccountActive)

	entry, err := svc.Admit(ctx, reelID, accountID)
	require.NoError(t, err)

	uploaded, err := svc.MarkUploaded(ctx, entry.ID, "post-1", "https://social.example/p/post-1")
	require.NoError(t, err)
	assert.Equal(t, model.QueueUploaded, uploaded.Status)
	assert.Equal(t, "post-1", uploaded.PostID)
	require.NotNil(t, uploaded.UploadedAt)
	assert.WithinDuration(t, time.Now().UTC(), *uploaded.UploadedAt, time.Minute)

	// No further transitions from a terminal status.
	_, err = svc.MarkFailed(ctx, entry.ID, "late failure")
	assert.ErrorIs(t, err, store.ErrPreconditionFailed)
	_, err = svc.MarkUploaded(ctx, entry.ID, "post-2", "")
	assert.ErrorIs(t, err, store.ErrPreconditionFailed)

	// Upload touches the account's last-used stamp.
	account, err := st.GetAccount(ctx, accountID)
	require.NoError(t, err)
	assert.NotNil(t, account.LastUsedAt)

	// And flips the reel to uploaded.
	reel, err := st.GetReel(ctx, reelID)
	require.NoError(t, err)
	assert.Equal(t, model.ReelUploaded, reel.Status)
}

func TestRemoveDeletesEntryOnly(t *testing.T) {
	st := store.NewMemoryStore()
	svc := NewPublishQueueService(st, nil, nil, nil, nil)
	ctx := context.Background()
	reelID, accountID := seedReelAndAccount(t, st, model.AccountActive)

	entry, err := svc.Admit(ctx, reelID, accountID)
	require.NoError(t, err)
	require.NoError(t, svc.Remove(ctx, entry.ID))

	_, err = svc.Get(ctx, entry.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// The reel survives removal.
	_, err = st.GetReel(ctx, reelID)
	assert.NoError(t, err)

	// A fresh admission of the same pair is allowed after removal.
	_, err = svc.Admit(ctx, reelID, accountID)
	assert.NoError(t, err)
}

func TestUploadPublishesThroughCollaborator(t *testing.T) {
	st := store.NewMemoryStore()
	pub := &fakePublisher{result: &media.PublishResult{PostID: "p-42", PostURL: "https://social.example/p/p-42"}}
	svc := NewPublishQueueService(st, pub, staticTokens{token: "tok"}, staticLinker{url: "https://cdn.example/reel.mp4"}, nil)
	ctx := context.Background()
	reelID, accountID := seedReelAndAccount(t, st, model.AccountActive)

	entry, err := svc.Admit(ctx, reelID, accountID)
	require.NoError(t, err)

	uploaded, err := svc.Upload(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueUploaded, uploaded.Status)
	assert.Equal(t, "p-42", uploaded.PostID)

	assert.Equal(t, "tok", pub.lastReq.AccessToken)
	assert.Equal(t, "https://cdn.example/reel.mp4", pub.lastReq.VideoURL)
	assert.Contains(t, pub.lastReq.Caption, "Great clip")
	assert.Contains(t, pub.lastReq.Caption, "#a #b")
}

// flakyPublisher fails uploads for one account and succeeds for the rest.
type flakyPublisher struct {
	failAccount string
	calls       int
}

func (f *flakyPublisher) Publish(_ context.Context, req media.PublishRequest) (*media.PublishResult, error) {
	f.calls++
	if req.AccountID == f.failAccount {
		return nil, errors.New("account suspended upstream")
	}
	return &media.PublishResult{PostID: "post-" + req.AccountID}, nil
}

func TestDrainPendingUploadsEveryPendingEntry(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	goodReel, goodAccount := seedReelAndAccount(t, st, model.AccountActive)
	badReel, badAccount := seedReelAndAccount(t, st, model.AccountActive)
	doneReel, doneAccount := seedReelAndAccount(t, st, model.AccountActive)

	pub := &flakyPublisher{failAccount: badAccount}
	svc := NewPublishQueueService(st, pub, staticTokens{token: "tok"}, staticLinker{url: "https://cdn.example/reel.mp4"}, nil)

	good, err := svc.Admit(ctx, goodReel, goodAccount)
	require.NoError(t, err)
	bad, err := svc.Admit(ctx, badReel, badAccount)
	require.NoError(t, err)

	// An already-uploaded entry must not be re-published by the sweep.
	done, err := svc.Admit(ctx, doneReel, doneAccount)
	require.NoError(t, err)
	_, err = svc.MarkUploaded(ctx, done.ID, "post-done", "")
	require.NoError(t, err)

	uploaded, err := svc.DrainPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, uploaded)
	assert.Equal(t, 2, pub.calls)

	gotGood, err := svc.Get(ctx, good.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueUploaded, gotGood.Status)

	// The failing entry is recorded failed, not retried forever.
	gotBad, err := svc.Get(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueFailed, gotBad.Status)
	assert.Contains(t, gotBad.ErrorMessage, "account suspended")

	// A second sweep finds nothing pending.
	uploaded, err = svc.DrainPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, uploaded)
	assert.Equal(t, 2, pub.calls)
}

func TestUploadFailureMarksEntryFailed(t *testing.T) {
	st := store.NewMemoryStore()
	pub := &fakePublisher{err: errors.New("container expired")}
	svc := NewPublishQueueService(st, pub, staticTokens{token: "tok"}, staticLinker{url: "https://cdn.example/reel.mp4"}, nil)
	ctx := context.Background()
	reelID, accountID := seedReelAndAccount(t, st, model.AccountActive)

	entry, err := svc.Admit(ctx, reelID, accountID)
	require.NoError(t, err)

	_, err = svc.Upload(ctx, entry.ID)
	require.Error(t, err)

	got, err := svc.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "container expired")
}
