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
	"fmt"
	"text/template"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/jaycherian/gcp-go-reel-pipeline/internal/cloud"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/cor"
	"google.golang.org/genai"
)

// GeminiGenerator implements Generator by prompting a rate-limited
// Gemini model with the reel's context. Token usage and retries are
// recorded on OpenTelemetry counters so quota consumption is visible
// per deployment.
type GeminiGenerator struct {
	model              *cloud.QuotaAwareGenerativeAIModel
	template           *template.Template
	inputTokenCounter  metric.Int64Counter
	outputTokenCounter metric.Int64Counter
	retryCounter       metric.Int64Counter
}

// NewGeminiGenerator constructs a generator over the given quota-aware
// model and prompt template.
func NewGeminiGenerator(model *cloud.QuotaAwareGenerativeAIModel, tmpl *template.Template) *GeminiGenerator {
	meter := otel.Meter(cor.MeterName)
	out := &GeminiGenerator{model: model, template: tmpl}
	out.inputTokenCounter, _ = meter.Int64Counter("enrich.gemini.token.input")
	out.outputTokenCounter, _ = meter.Int64Counter("enrich.gemini.token.output")
	out.retryCounter, _ = meter.Int64Counter("enrich.gemini.token.retry")
	return out
}

// Generate builds the prompt and sends a text-only request to the model,
// returning the raw response text.
func (g *GeminiGenerator) Generate(ctx context.Context, in PromptInput) (string, error) {
	prompt, err := BuildPrompt(g.template, in)
	if err != nil {
		return "", err
	}

	contents := []*genai.Content{
		{
			Parts: []*genai.Part{{Text: prompt}},
			Role:  "user",
		},
	}

	out, err := cloud.GenerateMultiModalResponse(ctx,
		g.inputTokenCounter, g.outputTokenCounter, g.retryCounter,
		0, g.model, contents)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	return out, nil
}
