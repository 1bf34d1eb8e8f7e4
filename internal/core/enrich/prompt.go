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

// Package enrich produces descriptive metadata for rendered reels. This
// file defines the prompt construction for the generative model: a Go
// template populated with the source video's title, the reel's position
// in the sequence, and a bounded excerpt of the transcript, plus a
// well-formed JSON example to anchor the output structure.
package enrich

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/model"
)

// TranscriptExcerptLimit bounds the transcript text embedded in the
// prompt. Long transcripts add cost without improving metadata quality.
const TranscriptExcerptLimit = 1000

// DefaultPromptTemplate instructs the model to emit a single JSON object
// describing the reel. Loaded templates from configuration override it.
const DefaultPromptTemplate = `You are a social media expert writing metadata for a short vertical video reel.

The reel is segment {{.SEQUENCE}} of a longer video titled "{{.VIDEO_TITLE}}".
{{if .TRANSCRIPT}}Transcript excerpt for this segment:
{{.TRANSCRIPT}}
{{end}}
Respond with a single JSON object with these fields:
  "title": a catchy title under 60 characters,
  "caption": an engaging caption under 200 characters,
  "hashtags": exactly 5 relevant hashtags, each starting with '#',
  "topics": 2 to 4 topic keywords,
  "quality_score": your estimate of the segment's engagement potential between 0.0 and 1.0.

Example of a well-formed response:
{{.EXAMPLE_JSON}}

Return only the JSON object with no surrounding prose or markdown.`

// PromptInput carries the per-reel values substituted into the template.
type PromptInput struct {
	VideoTitle string
	Sequence   int
	Transcript string
}

// NewPromptTemplate parses the given template text, falling back to the
// built-in default when the text is empty.
func NewPromptTemplate(text string) (*template.Template, error) {
	if text == "" {
		text = DefaultPromptTemplate
	}
	return template.New("reel-metadata").Parse(text)
}

// BuildPrompt executes the template with the input values. The
// transcript is truncated to TranscriptExcerptLimit characters and the
// example tuple is marshaled inline for few-shot guidance.
func BuildPrompt(tmpl *template.Template, in PromptInput) (string, error) {
	transcript := in.Transcript
	if len(transcript) > TranscriptExcerptLimit {
		transcript = transcript[:TranscriptExcerptLimit]
	}

	exampleJSON, err := json.Marshal(model.GetExampleMetadata())
	if err != nil {
		return "", fmt.Errorf("failed to marshal example metadata: %w", err)
	}

	params := map[string]interface{}{
		"VIDEO_TITLE":  in.VideoTitle,
		"SEQUENCE":     in.Sequence,
		"TRANSCRIPT":   transcript,
		"EXAMPLE_JSON": string(exampleJSON),
	}

	var buffer bytes.Buffer
	if err := tmpl.Execute(&buffer, params); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buffer.String(), nil
}
