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

// Package media handles acquisition of source videos and publishing of
// finished reels. This file defines the Publisher contract and its Graph
// API implementation. Publishing a reel is a two-step container flow: a
// media container is created from a public video URL and caption, then
// the container is published to the account's feed once processing
// finishes on the platform side.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrPublish marks any failure in the publish flow.
var ErrPublish = errors.New("media: publish failed")

// PublishRequest carries everything one upload needs.
type PublishRequest struct {
	AccountID   string // The platform account (user) id to publish under.
	AccessToken string // The account's access token.
	VideoURL    string // Publicly reachable URL of the rendered reel.
	Caption     string // Caption including hashtags.
}

// PublishResult is the platform's identification of the created post.
type PublishResult struct {
	PostID  string
	PostURL string
}

// Publisher uploads one reel to a social platform.
type Publisher interface {
	Publish(ctx context.Context, req PublishRequest) (*PublishResult, error)
}

// GraphAPIPublisher implements Publisher against the Instagram Graph API.
type GraphAPIPublisher struct {
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
	waitTimeout  time.Duration
}

// NewGraphAPIPublisher creates a publisher against the given API base
// URL (e.g., "https://graph.facebook.com/v19.0"). The timeout caps each
// individual HTTP call; the container processing wait carries its own
// deadline so a stuck container can never hang an upload.
func NewGraphAPIPublisher(baseURL string, timeout time.Duration) *GraphAPIPublisher {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &GraphAPIPublisher{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		client:       &http.Client{Timeout: timeout},
		pollInterval: 5 * time.Second,
		waitTimeout:  10 * time.Minute,
	}
}

type graphIDResponse struct {
	ID        string `json:"id"`
	Permalink string `json:"permalink"`
	Error     *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Publish runs the container flow: create a REELS media container, poll
// until the platform finishes processing it, then publish the container.
func (p *GraphAPIPublisher) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	containerID, err := p.createContainer(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := p.waitForContainer(ctx, containerID, req.AccessToken); err != nil {
		return nil, err
	}
	return p.publishContainer(ctx, req, containerID)
}

func (p *GraphAPIPublisher) createContainer(ctx context.Context, req PublishRequest) (string, error) {
	form := url.Values{}
	form.Set("media_type", "REELS")
	form.Set("video_url", req.VideoURL)
	form.Set("caption", req.Caption)
	form.Set("access_token", req.AccessToken)

	var resp graphIDResponse
	endpoint := fmt.Sprintf("%s/%s/media", p.baseURL, req.AccountID)
	if err := p.post(ctx, endpoint, form, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("%w: container creation returned no id", ErrPublish)
	}
	return resp.ID, nil
}

// waitForContainer polls the container's status until the platform
// reports FINISHED. Polling is bounded by both the caller's context and
// the publisher's own wait deadline; a container that never leaves
// IN_PROGRESS fails the upload instead of hanging it.
func (p *GraphAPIPublisher) waitForContainer(ctx context.Context, containerID, token string) error {
	type statusResponse struct {
		StatusCode string `json:"status_code"`
	}
	endpoint := fmt.Sprintf("%s/%s?fields=status_code&access_token=%s", p.baseURL, containerID, url.QueryEscape(token))

	ctx, cancel := context.WithTimeout(ctx, p.waitTimeout)
	defer cancel()

	for {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPublish, err)
		}
		httpResp, err := p.client.Do(httpReq)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPublish, err)
		}
		var status statusResponse
		err = json.NewDecoder(httpResp.Body).Decode(&status)
		_ = httpResp.Body.Close()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPublish, err)
		}

		switch status.StatusCode {
		case "FINISHED":
			return nil
		case "ERROR", "EXPIRED":
			return fmt.Errorf("%w: container %s entered state %s", ErrPublish, containerID, status.StatusCode)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: gave up waiting on container %s: %v", ErrPublish, containerID, ctx.Err())
		case <-time.After(p.pollInterval):
		}
	}
}

func (p *GraphAPIPublisher) publishContainer(ctx context.Context, req PublishRequest, containerID string) (*PublishResult, error) {
	form := url.Values{}
	form.Set("creation_id", containerID)
	form.Set("access_token", req.AccessToken)

	var resp graphIDResponse
	endpoint := fmt.Sprintf("%s/%s/media_publish", p.baseURL, req.AccountID)
	if err := p.post(ctx, endpoint, form, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("%w: publish returned no post id", ErrPublish)
	}
	return &PublishResult{
		PostID:  resp.ID,
		PostURL: resp.Permalink,
	}, nil
}

func (p *GraphAPIPublisher) post(ctx context.Context, endpoint string, form url.Values, out *graphIDResponse) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: unparseable response: %v", ErrPublish, err)
	}
	if out.Error != nil {
		return fmt.Errorf("%w: %s (code %d)", ErrPublish, out.Error.Message, out.Error.Code)
	}
	if httpResp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: http status %d", ErrPublish, httpResp.StatusCode)
	}
	return nil
}
