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

package enrich

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/model"
)

// Generator is the metadata collaborator contract. The production
// implementation calls a generative model; tests substitute fakes.
type Generator interface {
	// Generate returns the raw model response for the given prompt input.
	// The response is expected to be a JSON document but may be anything.
	Generate(ctx context.Context, in PromptInput) (string, error)
}

// Enricher wraps a Generator with the pipeline's degradation policy: a
// generator failure, an unparseable response, or a structurally invalid
// tuple never fails the reel. The enricher substitutes the fixed default
// tuple and reports whether the fallback was taken.
type Enricher struct {
	generator Generator
	logger    *slog.Logger
}

// NewEnricher returns an Enricher over the given generator.
func NewEnricher(generator Generator, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{generator: generator, logger: logger}
}

// Enrich produces a metadata tuple for one reel. The returned bool is
// true when the tuple came from the generator and false when the default
// tuple was substituted.
//
// Logic Flow:
//  1. Call the generator with the prompt input.
//  2. Strip any markdown code fences from the response and parse it as a
//     JSON metadata tuple.
//  3. Validate the tuple's required fields and clamp the quality score
//     into [0, 1].
//  4. On any failure along the way, log the cause and return the default
//     tuple instead.
func (e *Enricher) Enrich(ctx context.Context, in PromptInput) (*model.ReelMetadata, bool) {
	raw, err := e.generator.Generate(ctx, in)
	if err != nil {
		e.logger.WarnContext(ctx, "metadata generation failed, using default tuple",
			"video_title", in.VideoTitle, "sequence", in.Sequence, "error", err)
		return model.DefaultMetadata(), false
	}

	meta, err := ParseMetadata(raw)
	if err != nil {
		e.logger.WarnContext(ctx, "metadata response rejected, using default tuple",
			"video_title", in.VideoTitle, "sequence", in.Sequence, "error", err)
		return model.DefaultMetadata(), false
	}
	return meta, true
}

// ParseMetadata decodes a model response into a validated tuple. The
// response may be wrapped in markdown code fences, which are stripped
// before decoding. A tuple missing a title or caption is rejected; a
// quality score outside [0, 1] is clamped rather than rejected.
func ParseMetadata(raw string) (*model.ReelMetadata, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var meta model.ReelMetadata
	if err := json.Unmarshal([]byte(cleaned), &meta); err != nil {
		return nil, err
	}
	if strings.TrimSpace(meta.Title) == "" {
		return nil, ErrMissingTitle
	}
	if strings.TrimSpace(meta.Caption) == "" {
		return nil, ErrMissingCaption
	}

	if meta.QualityScore < 0 {
		meta.QualityScore = 0
	}
	if meta.QualityScore > 1 {
		meta.QualityScore = 1
	}
	return &meta, nil
}
