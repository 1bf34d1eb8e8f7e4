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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface. This file defines the
// initial command of the Pub/Sub-triggered ingest workflow.
//
// Logic Flow:
//  1. The command receives the raw Pub/Sub message data as a JSON string
//     from the context.
//  2. It unmarshals the JSON into a `cloud.IngestRequest` struct.
//  3. It validates that the request carries an origin URL.
//  4. The parsed request is placed back into the context under a
//     well-known key so subsequent commands can access it without
//     re-parsing the raw message.
package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jaycherian/gcp-go-reel-pipeline/internal/cloud"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/cor"
)

// IngestTriggerReader is a command that parses a Pub/Sub ingest trigger
// message into a cloud.IngestRequest.
type IngestTriggerReader struct {
	cor.BaseCommand
}

// NewIngestTriggerReader is the constructor for the IngestTriggerReader command.
func NewIngestTriggerReader(name string) *IngestTriggerReader {
	return &IngestTriggerReader{BaseCommand: *cor.NewBaseCommand(name)}
}

// Execute parses the raw trigger payload and validates it.
func (c *IngestTriggerReader) Execute(context cor.Context) {
	in := context.Get(c.GetInputParam()).(string)

	var out cloud.IngestRequest
	if err := json.Unmarshal([]byte(in), &out); err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("failed to unmarshal ingest trigger: %w", err))
		return
	}
	if strings.TrimSpace(out.URL) == "" {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("ingest trigger has no url"))
		return
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)

	// Store the parsed request under the well-known key and as the next
	// command's input.
	context.Add(cloud.GetIngestRequestName(), &out)
	context.Add(c.GetOutputParam(), &out)
}
