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

// Package cloud provides components for interacting with Google Cloud services.
// This file implements a decorator around the Generative AI client that adds
// rate limiting.
//
// Why this matters: Vertex AI enforces request quotas. The wrapper keeps the
// application under its quota by pacing every outbound request through a
// shared limiter. Retrying transient failures is the caller's concern; the
// retry loop lives in GenerateMultiModalResponse so each attempt re-enters
// the limiter and the retry count is recorded on its telemetry counter.
//
// Structs:
//   - QuotaAwareGenerativeAIModel: Wraps the model handle and generation
//     config with a rate limiter.
//
// Functions:
//   - NewQuotaAwareModel: Constructor for the wrapped model.
//   - GenerateContent: Intercepts calls to the AI model to enforce rate
//     limiting.
package cloud

import (
	"context"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// QuotaAwareGenerativeAIModel is a decorator that pairs a generative model
// handle with a rate limiter so callers cannot exceed the service quota.
type QuotaAwareGenerativeAIModel struct {
	GenerativeContentConfig *genai.GenerateContentConfig // The generation config applied to every request.
	ModelName               string                       // The Vertex AI model identifier.
	ModelHandle             *genai.Models                // The underlying model API handle.
	RateLimit               *rate.Limiter                // Controls request frequency.
}

// NewQuotaAwareModel creates a new QuotaAwareGenerativeAIModel from the
// base model handle and a rate limit in requests per second.
func NewQuotaAwareModel(wrapped *genai.GenerateContentConfig, name string, modelHandle *genai.Models, requestsPerSecond int) *QuotaAwareGenerativeAIModel {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &QuotaAwareGenerativeAIModel{
		GenerativeContentConfig: wrapped,
		ModelName:               name,
		ModelHandle:             modelHandle,
		// A bucket that refills at one token per second with a burst of
		// `requestsPerSecond` events.
		RateLimit: rate.NewLimiter(rate.Every(time.Second), requestsPerSecond),
	}
}

// GenerateContent sends one generation request through the rate limiter.
// Wait blocks until the limiter grants a slot and returns an error when
// the context is cancelled, which ends the request.
func (q *QuotaAwareGenerativeAIModel) GenerateContent(ctx context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error) {
	if err := q.RateLimit.Wait(ctx); err != nil {
		return nil, err
	}
	return q.ModelHandle.GenerateContent(ctx, q.ModelName, content, q.GenerativeContentConfig)
}
