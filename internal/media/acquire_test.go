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

package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseWebVTTFlattensCues(t *testing.T) {
	doc := `WEBVTT
Kind: captions
Language: en

1
00:00:00.000 --> 00:00:02.500
Welcome back to the channel.

2
00:00:02.500 --> 00:00:05.000
Today we are brewing coffee.
`
	got := ParseWebVTT(doc)
	assert.Equal(t, "Welcome back to the channel. Today we are brewing coffee.", got)
}

func TestParseWebVTTStripsInlineTagsAndDuplicates(t *testing.T) {
	// Rolling auto-captions repeat each line and wrap words in timing
	// and styling tags.
	doc := `WEBVTT

00:00:00.000 --> 00:00:01.920
so<00:00:00.320><c> today</c><00:00:00.799><c> we</c><00:00:01.120><c> grind</c>

00:00:01.920 --> 00:00:03.040
so today we grind

00:00:03.040 --> 00:00:04.400
so today we grind
the beans fresh
`
	got := ParseWebVTT(doc)
	assert.Equal(t, "so today we grind the beans fresh", got)
}

func TestParseWebVTTEmptyDocument(t *testing.T) {
	assert.Equal(t, "", ParseWebVTT("WEBVTT\n\nNOTE generated\n"))
}
