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

// Package main contains the setup and initialization logic for the application's state.
// This file is responsible for creating and managing a centralized state manager
// that holds all shared dependencies, such as configuration, Google Cloud service clients,
// the persistence store, and the application-level pipeline and queue services.
//
// It ensures that the application is configured correctly based on the environment,
// initializes all necessary clients (Storage, Pub/Sub, GenAI), selects the persistence
// backend, and starts background processes like the Pub/Sub ingest listener and the
// pipeline worker pool.
//
// Functions:
//   - SetupOS: Configures necessary environment variables for the application,
//     pointing to the correct configuration files.
//   - GetConfig: A singleton function that loads the application's configuration
//     from TOML files. It ensures the configuration is loaded only once.
//   - InitState: The core initialization function that creates all service clients,
//     configures the pipeline and publish queue services, and starts background
//     workers and Pub/Sub listeners.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jaycherian/gcp-go-reel-pipeline/internal/cloud"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/enrich"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/model"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/services"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/core/transform"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/media"
	"github.com/jaycherian/gcp-go-reel-pipeline/internal/store"
)

// StateManager holds all the shared dependencies for the application, acting as a
// centralized container for service clients and configurations. This avoids the
// need for global variables and makes dependency management cleaner.
type StateManager struct {
	config          *cloud.Config
	cloud           *cloud.ServiceClients
	store           store.Store
	pipelineService *services.PipelineService
	queueService    *services.PublishQueueService
	reelArchive     *cloud.ReelArchive
	reelLinker      services.ReelLinker
}

// state is a package-level variable that holds the single instance of StateManager.
var state = &StateManager{}

// configTokenSource resolves publish access tokens from the application
// configuration. Tokens are provisioned out of band; OAuth flows live
// outside this service.
type configTokenSource struct {
	tokens map[string]string
}

func (c configTokenSource) AccessToken(_ context.Context, accountID string) (string, error) {
	token, ok := c.tokens[accountID]
	if !ok || token == "" {
		return "", fmt.Errorf("no access token configured for account %s", accountID)
	}
	return token, nil
}

// archiveLinker turns a locally rendered reel into a publicly fetchable
// URL by archiving it to the reel bucket and signing a download link.
// The Graph API fetches the video from this URL during publishing.
type archiveLinker struct {
	archive  *cloud.ReelArchive
	lifetime time.Duration
}

func (a archiveLinker) PublicURL(ctx context.Context, reel *model.Reel) (string, error) {
	objectName := fmt.Sprintf("reels/%s/reel_%03d.mp4", reel.SourceVideoID, reel.Sequence)
	if _, err := a.archive.Upload(ctx, reel.FilePath, objectName); err != nil {
		return "", err
	}
	return a.archive.GenerateSignedURL(objectName, a.lifetime)
}

// SetupOS sets the environment variables that the configuration loader
// uses to find the correct TOML files.
//
// This function sets the prefix for the configuration directory and specifies
// the runtime environment (e.g., "local", "test", "prod"), allowing for
// environment-specific overrides of the base configuration.
//
// Outputs:
//   - error: An error if setting any of the environment variables fails.
func SetupOS() (err error) {
	// Set the directory where configuration files are located.
	err = os.Setenv(cloud.EnvConfigFilePrefix, "configs")
	if err != nil {
		return err
	}
	// Set the current runtime environment to "local". The config loader
	// will look for a ".env.local.toml" file to override base settings.
	err = os.Setenv(cloud.EnvConfigRuntime, "local")
	return err
}

// GetConfig provides a singleton instance of the application configuration.
// It ensures that the configuration is loaded from the file system only once.
// On the first call, it sets up the OS environment and loads the configuration
// from the TOML files. Subsequent calls return the cached configuration.
//
// Outputs:
//   - *cloud.Config: A pointer to the loaded application configuration struct.
func GetConfig() *cloud.Config {
	if state.config == nil {
		err := SetupOS()
		if err != nil {
			log.Fatalf("failed to setup os environment: %v\n", err)
		}
		config := cloud.NewConfig()
		cloud.LoadConfig(&config)
		state.config = config
	}
	return state.config
}

// InitState initializes the entire application state.
// It orchestrates the creation of all necessary services and clients based on the
// application configuration and wires them together.
//
// Inputs:
//   - ctx: The root context.Context for the application, used for managing
//     the lifecycle of client connections and background processes.
//
// This function performs the following steps:
//  1. Loads the application configuration.
//  2. Initializes all Google Cloud service clients (Storage, Pub/Sub, GenAI).
//  3. Selects and initializes the persistence store (Postgres or in-memory).
//  4. Builds the acquisition, transform, and enrichment components and wires
//     them into the PipelineService and PublishQueueService.
//  5. Starts the pipeline worker pool and the Pub/Sub ingest listener.
func InitState(ctx context.Context) {
	config := GetConfig()

	// Initialize all the base Google Cloud service clients.
	cloudClients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		panic(err)
	}
	state.cloud = cloudClients

	// Select the persistence backend. The in-memory store is for local
	// development and tests only.
	if config.Database.UseMemoryStore {
		state.store = store.NewMemoryStore()
	} else {
		pg, err := store.NewPostgresStore(ctx, config.Database.ConnectionString())
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v\n", err)
		}
		if config.Database.MigrateOnStart {
			if err := pg.Migrate(ctx); err != nil {
				log.Fatalf("failed to apply schema: %v\n", err)
			}
		}
		state.store = pg
	}

	// Source acquisition via yt-dlp.
	acquirer := media.NewYtDlpAcquirer(
		config.Downloader.YtDlpPath,
		config.Downloader.MaxDurationSeconds,
		time.Duration(config.Downloader.TimeoutSeconds)*time.Second,
	)

	// FFmpeg transcoder and the vertical-canvas transform engine.
	transcoder := transform.NewFFmpegTranscoder(config.Downloader.FFmpegPath, config.Downloader.FFprobePath)
	engine := transform.NewEngineWithOptions(
		transcoder,
		config.Pipeline.CanvasWidth,
		config.Pipeline.CanvasHeight,
		time.Duration(config.Pipeline.TranscodeTimeoutSeconds)*time.Second,
		config.Pipeline.DurationToleranceSeconds,
	)

	// Metadata enrichment through the configured Gemini agent model.
	agentModel, ok := cloudClients.AgentModels["metadata-flash"]
	if !ok {
		log.Fatalf("agent model %q is not configured\n", "metadata-flash")
	}
	tmpl, err := enrich.NewPromptTemplate(config.PromptTemplates.MetadataPrompt)
	if err != nil {
		log.Fatalf("failed to parse metadata prompt template: %v\n", err)
	}
	enricher := enrich.NewEnricher(enrich.NewGeminiGenerator(agentModel, tmpl), nil)

	// The pipeline orchestrator and its worker pool.
	state.pipelineService = services.NewPipelineService(
		state.store,
		acquirer,
		transcoder,
		engine,
		enricher,
		config.Application.ThreadPoolSize,
		services.PipelineOptions{
			ChunkSeconds: config.Pipeline.ChunkSeconds,
			WorkDir:      config.Storage.WorkDir,
			CutTimeout:   time.Duration(config.Pipeline.TranscodeTimeoutSeconds) * time.Second,
		},
		nil,
	)
	state.pipelineService.Start(ctx)

	// Jobs left queued by a previous process go back onto the pool.
	if err := state.pipelineService.ResumeQueued(ctx); err != nil {
		log.Printf("Error resuming queued jobs: %v\n", err)
	}

	// The publish queue with its Graph API publisher and reel archive.
	state.reelArchive = cloud.NewReelArchive(cloudClients.StorageClient, config.Storage.ReelArchiveBucket)
	state.reelLinker = archiveLinker{
		archive:  state.reelArchive,
		lifetime: time.Duration(config.Storage.SignedURLLifetimeMinutes) * time.Minute,
	}
	publisher := media.NewGraphAPIPublisher(
		config.Publisher.GraphAPIBaseURL,
		time.Duration(config.Publisher.TimeoutSeconds)*time.Second,
	)
	state.queueService = services.NewPublishQueueService(
		state.store,
		publisher,
		configTokenSource{tokens: config.Publisher.AccessTokens},
		state.reelLinker,
		nil,
	)
	state.queueService.StartDrainer(ctx, time.Duration(config.Publisher.DrainIntervalSeconds)*time.Second)

	// Configure and start the Pub/Sub listener that reacts to ingest triggers.
	SetupListeners(config, cloudClients, ctx)
}
