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

// Package segment computes deterministic chunk boundaries for a source
// video. Planning is pure arithmetic: it never touches the filesystem or
// invokes the transcoder, so the same duration and chunk length always
// produce the same plan.
package segment

import (
	"errors"
	"fmt"
	"math"
)

// Validation errors returned before any side effect takes place.
var (
	ErrNonPositiveDuration = errors.New("segment: total duration must be greater than zero")
	ErrNonPositiveLength   = errors.New("segment: chunk length must be greater than zero")
)

// Interval is one planned chunk: the half-open time range
// [StartSeconds, EndSeconds) at the given 0-based sequence index.
type Interval struct {
	Sequence     int
	StartSeconds float64
	EndSeconds   float64
}

// DurationSeconds returns the interval's length in seconds.
func (i Interval) DurationSeconds() float64 {
	return i.EndSeconds - i.StartSeconds
}

// Plan splits a total duration of totalSeconds into ordered intervals of
// nominal length chunkSeconds. The intervals partition [0, totalSeconds)
// exactly: contiguous, non-overlapping, no zero-length interval, and only
// the final interval may be shorter than chunkSeconds. A duration at or
// below the chunk length yields a single interval covering the whole
// video.
func Plan(totalSeconds, chunkSeconds float64) ([]Interval, error) {
	if totalSeconds <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrNonPositiveDuration, totalSeconds)
	}
	if chunkSeconds <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrNonPositiveLength, chunkSeconds)
	}

	count := int(math.Ceil(totalSeconds / chunkSeconds))
	intervals := make([]Interval, 0, count)
	for i := 0; i < count; i++ {
		start := float64(i) * chunkSeconds
		end := math.Min(start+chunkSeconds, totalSeconds)
		if end <= start {
			// Floating point can land ceil one past the end when the
			// duration is an exact multiple of the chunk length.
			break
		}
		intervals = append(intervals, Interval{
			Sequence:     i,
			StartSeconds: start,
			EndSeconds:   end,
		})
	}
	return intervals, nil
}
