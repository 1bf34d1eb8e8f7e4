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

// Package main contains the logic for setting up and starting the Pub/Sub message listeners.
// These listeners initiate backend processing workflows in response to events, such as
// ingest trigger messages published by upstream systems.
//
// Functions:
//   - SetupListeners: Initializes and starts the listener for the ingest topic,
//     attaching the reel ingest workflow.
package main

import (
	"context"
	"log/slog"

	"github.com/jaycherian/gcp-go-reel-pipeline/internal/cloud"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/workflow"
)

// SetupListeners configures and starts the background Pub/Sub listeners.
// It creates the ingest workflow and attaches it to the ingest topic listener.
//
// Inputs:
//   - config: The application's configuration, containing the subscription settings.
//   - cloudClients: A struct containing all the initialized Google Cloud service clients.
//   - ctx: The application's root context, used to manage the lifecycle of the listeners.
//
// Outputs:
//   - This function does not return any value. It starts the listeners as background goroutines.
func SetupListeners(config *cloud.Config, cloudClients *cloud.ServiceClients, ctx context.Context) {
	listener, ok := cloudClients.PubSubListeners["IngestTopic"]
	if !ok {
		// Running without the listener is valid; ingestion then happens
		// through the REST API only.
		slog.Warn("no ingest topic subscription configured, skipping listener setup",
			"configured", len(config.TopicSubscriptions))
		return
	}

	// Create the workflow that parses trigger messages and queues pipeline jobs.
	ingestWorkflow := workflow.NewReelIngestWorkflow(state.pipelineService)
	// Assign the workflow as the command to be executed by the listener.
	listener.SetCommand(ingestWorkflow)
	// Start the listener in a background goroutine. It will now begin
	// receiving and processing messages from its subscription.
	listener.Listen(ctx)
}
