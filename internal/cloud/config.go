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

// Package cloud defines the data structures for application configuration,
// loaded from TOML files. It provides a structured way to manage settings
// for various components, including Google Cloud services, AI models,
// Pub/Sub topics, the database, the transcoder, and prompt templates.
//
// Structs:
//   - Database: Connection settings for the PostgreSQL store.
//   - Pipeline: Chunking, canvas, and transcode policy for the reel pipeline.
//   - Downloader: External tool paths and limits for source acquisition.
//   - Publisher: Settings for the reel publishing endpoint.
//   - PromptTemplates: Prompt text for the metadata generation model.
//   - VertexAiLLMModel: Configuration for a Vertex AI Large Language Model.
//   - TopicSubscription: Configuration for a single Pub/Sub subscription.
//   - Storage: Cloud archive bucket and local working directories.
//   - Config: The top-level struct that aggregates everything above.
//
// Functions:
//   - NewConfig: A constructor that initializes a new Config object with empty maps.
package cloud

import (
	"fmt"

	"google.golang.org/genai"
)

// DefaultSafetySettings defines the default content safety thresholds for
// GenAI models. Non-restrictive, suitable for controlled environments
// where the input data is trusted.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
}

// Database holds the PostgreSQL connection settings.
type Database struct {
	DSN             string `toml:"dsn"`               // Full connection string; overrides the individual fields when set.
	Host            string `toml:"host"`              // Database host.
	Port            int    `toml:"port"`              // Database port.
	Name            string `toml:"name"`              // Database name.
	User            string `toml:"user"`              // Database user.
	Password        string `toml:"password"`          // Database password.
	SSLMode         string `toml:"ssl_mode"`          // Postgres sslmode value (e.g., "disable", "require").
	MigrateOnStart  bool   `toml:"migrate_on_start"`  // Whether to apply the schema at startup.
	UseMemoryStore  bool   `toml:"use_memory_store"`  // Run against the in-memory store instead of Postgres.
}

// ConnectionString returns the Postgres DSN. An explicit dsn value wins;
// otherwise the string is assembled from the individual fields.
func (d Database) ConnectionString() string {
	if d.DSN != "" {
		return d.DSN
	}
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, sslMode)
}

// Pipeline holds the segmentation and transform policy.
type Pipeline struct {
	ChunkSeconds             float64 `toml:"chunk_seconds"`              // Nominal chunk length in seconds.
	CanvasWidth              int     `toml:"canvas_width"`               // Reel canvas width in pixels.
	CanvasHeight             int     `toml:"canvas_height"`              // Reel canvas height in pixels.
	TranscodeTimeoutSeconds  int     `toml:"transcode_timeout_seconds"`  // Wall-clock limit per transcoder invocation.
	DurationToleranceSeconds float64 `toml:"duration_tolerance_seconds"` // Allowed drift between expected and measured reel duration.
}

// Downloader holds the external tool configuration for source acquisition.
type Downloader struct {
	YtDlpPath          string `toml:"yt_dlp_path"`           // Path to the yt-dlp executable.
	FFmpegPath         string `toml:"ffmpeg_path"`           // Path to the ffmpeg executable.
	FFprobePath        string `toml:"ffprobe_path"`          // Path to the ffprobe executable.
	MaxDurationSeconds int    `toml:"max_duration_seconds"`  // Reject sources longer than this; 0 disables the limit.
	TimeoutSeconds     int    `toml:"timeout_seconds"`       // Wall-clock limit for one download.
}

// Publisher holds settings for the social publishing endpoint. Access
// tokens are provisioned out of band and keyed by publish account id;
// OAuth flows live outside this service.
type Publisher struct {
	GraphAPIBaseURL      string            `toml:"graph_api_base_url"`     // Base URL of the publishing Graph API.
	TimeoutSeconds       int               `toml:"timeout_seconds"`        // HTTP timeout for publish calls.
	DrainIntervalSeconds int               `toml:"drain_interval_seconds"` // How often the queue drainer sweeps pending entries.
	AccessTokens         map[string]string `toml:"access_tokens"`          // Account id to access token.
}

// PromptTemplates holds the templates for prompts sent to GenAI models.
type PromptTemplates struct {
	MetadataPrompt string `toml:"metadata"` // The template for generating reel metadata tuples.
}

// VertexAiLLMModel represents the configuration for a Vertex AI large language model (LLM).
type VertexAiLLMModel struct {
	Model              string  `toml:"model"`               // The name of the Vertex AI LLM.
	SystemInstructions string  `toml:"system_instructions"` // The system instructions for the LLM.
	Temperature        float32 `toml:"temperature"`         // The temperature parameter for the LLM.
	TopP               float32 `toml:"top_p"`               // The top_p parameter for the LLM.
	TopK               float32 `toml:"top_k"`               // The top_k parameter for the LLM.
	MaxTokens          int32   `toml:"max_tokens"`          // The maximum number of tokens for the LLM output.
	OutputFormat       string  `toml:"output_format"`       // The desired output format for the LLM.
	RateLimit          int     `toml:"rate_limit"`          // The rate limit for the LLM in requests per second.
}

// TopicSubscription represents the configuration for a Pub/Sub topic subscription.
type TopicSubscription struct {
	Name             string `toml:"name"`               // The name of the Pub/Sub subscription.
	DeadLetterTopic  string `toml:"dead_letter_topic"`  // The name of the dead-letter topic for the subscription.
	TimeoutInSeconds int    `toml:"timeout_in_seconds"` // The timeout for the subscription in seconds.
}

// Storage represents the configuration for cloud and local storage.
type Storage struct {
	ReelArchiveBucket         string `toml:"reel_archive_bucket"`          // GCS bucket that archives rendered reels.
	SignedURLLifetimeMinutes  int    `toml:"signed_url_lifetime_minutes"`  // Validity window for download links.
	WorkDir                   string `toml:"work_dir"`                     // Local scratch directory for downloads, chunks, and reels.
}

// Config represents the overall configuration for the application, loaded
// from TOML files. It acts as the root container for all other
// configuration structs.
type Config struct {
	// Application holds general application settings.
	Application struct {
		Name                      string `toml:"name"`                         // The name of the application.
		GoogleProjectId           string `toml:"google_project_id"`            // The Google Cloud project ID.
		GoogleLocation            string `toml:"location"`                     // The Google Cloud location.
		ThreadPoolSize            int    `toml:"thread_pool_size"`             // The size of the worker pool for pipeline jobs.
		SignerServiceAccountEmail string `toml:"signer_service_account_email"` // The service account email used for signing GCS URLs.
	} `toml:"application"`
	Database           Database                     `toml:"database"`            // PostgreSQL store configuration.
	Storage            Storage                      `toml:"storage"`             // Storage configuration.
	Pipeline           Pipeline                     `toml:"pipeline"`            // Segmentation and transform policy.
	Downloader         Downloader                   `toml:"downloader"`          // Source acquisition configuration.
	Publisher          Publisher                    `toml:"publisher"`           // Publishing endpoint configuration.
	PromptTemplates    PromptTemplates              `toml:"prompt_templates"`    // Prompt templates configuration.
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions"` // Pub/Sub subscriptions, keyed by a logical name (e.g., "IngestTopic").
	AgentModels        map[string]VertexAiLLMModel  `toml:"agent_models"`        // Vertex AI LLM models, keyed by a logical name (e.g., "metadata-flash").
}

// NewConfig is a constructor function that creates a new, initialized
// Config instance. The maps must be initialized to avoid nil pointer
// panics when the configuration loader populates them.
func NewConfig() *Config {
	return &Config{
		TopicSubscriptions: make(map[string]TopicSubscription),
		AgentModels:        make(map[string]VertexAiLLMModel),
	}
}
