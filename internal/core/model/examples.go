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

// Package model defines the canonical data structures for the reel
// pipeline. This file holds fixed metadata tuples: the few-shot example
// embedded into the generation prompt and the default tuple substituted
// whenever the metadata collaborator fails.
package model

// GetExampleMetadata returns a well-formed metadata tuple used as a
// few-shot example in the generation prompt, which markedly improves the
// structure of model output.
func GetExampleMetadata() *ReelMetadata {
	return &ReelMetadata{
		Title:        "The Secret Behind Great Coffee",
		Caption:      "You've been brewing it wrong this whole time. Watch till the end!",
		Hashtags:     []string{"#coffee", "#barista", "#howto", "#morningroutine", "#lifehack"},
		Topics:       []string{"coffee", "tutorial", "lifestyle"},
		QualityScore: 0.85,
	}
}

// DefaultMetadata returns the fixed fallback tuple used when metadata
// generation fails for any reason. The pipeline never blocks on the
// metadata collaborator; it substitutes this tuple and proceeds.
func DefaultMetadata() *ReelMetadata {
	return &ReelMetadata{
		Title:        "Check this out!",
		Caption:      "Amazing content! Check it out!",
		Hashtags:     []string{"#reels", "#viral", "#content", "#awesome", "#explore"},
		Topics:       []string{"entertainment", "trending"},
		QualityScore: 0.5,
	}
}
