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

// Package cloud contains data structures and utilities for interacting with
// Google Cloud services. This file defines the shape of ingest trigger
// messages received over Pub/Sub and the context key used to pass the
// parsed trigger between workflow commands.
package cloud

// GetIngestRequestName returns the constant key under which a parsed
// IngestRequest is stored in a workflow context, so every command in a
// chain reads the same entry.
func GetIngestRequestName() string {
	return "__INGEST__REQ__"
}

// IngestRequest is the JSON payload of a Pub/Sub ingest trigger. A
// message asks the pipeline to acquire one source video by URL and run
// the full chunk, transform, and enrich sequence on it.
type IngestRequest struct {
	URL          string  `json:"url"`                     // The origin URL of the source video.
	ChunkSeconds float64 `json:"chunk_seconds,omitempty"` // Optional chunk length override; 0 uses the configured default.
	RequestedBy  string  `json:"requested_by,omitempty"`  // Free-form identity of the requester, for audit logs.
}
