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
// for various components, including Google Cloud services, the analyzer
// model, Pub/Sub topics, and prompt templates.
//
// This file centralizes all configuration-related structs, making it easy
// to understand and manage the application's configurable parameters.
//
// Structs:
//   - Storage: Configuration for the Google Cloud Storage video bucket.
//   - VertexAiLLMModel: Configuration for a Vertex AI generative model.
//   - Retry: Retry policy for model invocations.
//   - Chunking: Configuration for the chunked analysis mode.
//   - Guidelines: Default classification guidelines for trigger-driven runs.
//   - BigQueryArchive: Optional verdict archive destination.
//   - TopicSubscription: Configuration for a single Pub/Sub subscription.
//   - PromptTemplates: Prompt text templates sent to the model.
//   - Config: The top-level struct that aggregates all other configuration structs.
//
// Functions:
//   - NewConfig: A constructor that initializes a new Config object with empty maps.
package cloud

import "google.golang.org/genai"

// DefaultSafetySettings defines the content safety thresholds for analyzer
// model calls. Only material the service itself rates high-severity is
// blocked; anything below that must reach the analyzer, since the whole
// point of the review is to look at borderline content and report on it.
// A blocked call surfaces as a prohibited-content error and the video is
// skipped rather than retried.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
}

// Storage represents the configuration for the video storage bucket.
type Storage struct {
	VideoBucket      string `toml:"video_bucket"`      // Bucket the acquired videos (and chunks) are uploaded to.
	ResultsDirectory string `toml:"results_directory"` // Local directory where verdict JSON artifacts are written.
}

// VertexAiLLMModel represents the configuration for a Vertex AI generative model.
type VertexAiLLMModel struct {
	Model          string  `toml:"model"`           // The name of the Vertex AI model (e.g. "gemini-1.5-pro").
	Temperature    float32 `toml:"temperature"`     // Starting temperature for the first attempt.
	TopP           float32 `toml:"top_p"`           // The top_p sampling parameter.
	CandidateCount int32   `toml:"candidate_count"` // Number of candidates requested per call.
	MaxTokens      int32   `toml:"max_tokens"`      // The maximum number of output tokens.
	OutputFormat   string  `toml:"output_format"`   // The response MIME type (e.g. "application/json").
	RateLimit      int     `toml:"rate_limit"`      // Allowed requests per second against the model.
}

// Retry configures the invocation retry policy. MaxRetries bounds the total
// number of attempts; InitialDelayInSeconds seeds the exponential backoff
// used for quota failures.
type Retry struct {
	MaxRetries            int `toml:"max_retries"`
	InitialDelayInSeconds int `toml:"initial_delay_in_seconds"`
}

// Chunking configures the chunked analysis mode, where a long video is split
// into fixed-duration segments that are analyzed independently.
type Chunking struct {
	Enabled                bool   `toml:"enabled"`
	ChunkDurationInSeconds int    `toml:"chunk_duration_in_seconds"` // Segment length passed to ffmpeg.
	FfmpegPath             string `toml:"ffmpeg_path"`               // Path to the ffmpeg executable.
}

// Guidelines configures the classification guidelines used when no caller
// supplies them, i.e. for analyses triggered by bucket notifications.
type Guidelines struct {
	DefaultFile string `toml:"default_file"` // Path to a local text file with the guidelines.
}

// BigQueryArchive configures the optional archival of finished verdicts to a
// BigQuery table. When disabled the service keeps no state beyond the
// in-memory registry and the local JSON artifacts.
type BigQueryArchive struct {
	Enabled bool   `toml:"enabled"`
	Dataset string `toml:"dataset"`
	Table   string `toml:"table"`
}

// TopicSubscription represents the configuration for a Pub/Sub topic subscription.
type TopicSubscription struct {
	Name             string `toml:"name"`               // The name of the Pub/Sub subscription.
	DeadLetterTopic  string `toml:"dead_letter_topic"`  // The name of the dead-letter topic for the subscription.
	TimeoutInSeconds int    `toml:"timeout_in_seconds"` // The timeout for the subscription in seconds.
}

// PromptTemplates holds the templates for prompts sent to the analyzer model.
type PromptTemplates struct {
	Compliance string `toml:"compliance"` // The compliance review instruction template.
}

// Config represents the overall configuration for the application, loaded from
// TOML files. It acts as the root container for all other configuration structs.
type Config struct {
	// Application holds general application settings.
	Application struct {
		Name                      string `toml:"name"`                         // The name of the application.
		GoogleProjectId           string `toml:"google_project_id"`            // The Google Cloud project ID.
		GoogleLocation            string `toml:"location"`                     // The Google Cloud location.
		ThreadPoolSize            int    `toml:"thread_pool_size"`             // Worker pool size for chunked analysis.
		SignerServiceAccountEmail string `toml:"signer_service_account_email"` // Service account used for signing GCS URLs.
	} `toml:"application"`
	Storage            Storage                      `toml:"storage"`
	Retry              Retry                        `toml:"retry"`
	Chunking           Chunking                     `toml:"chunking"`
	Guidelines         Guidelines                   `toml:"guidelines"`
	BigQueryArchive    BigQueryArchive              `toml:"big_query_archive"`
	PromptTemplates    PromptTemplates              `toml:"prompt_templates"`
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions"` // Pub/Sub subscriptions, keyed by a logical name (e.g. "VideoTopic").
	AnalyzerModels     map[string]VertexAiLLMModel  `toml:"analyzer_models"`     // Vertex AI models, keyed by a logical name (e.g. "compliance-pro").
}

// NewConfig is a constructor function that creates a new, initialized Config
// instance. The maps must be initialized before the TOML loader populates
// them, and the retry defaults here apply when the config files are silent.
//
// Outputs:
//   - *Config: A pointer to a new Config struct with map fields initialized.
func NewConfig() *Config {
	out := &Config{
		TopicSubscriptions: make(map[string]TopicSubscription),
		AnalyzerModels:     make(map[string]VertexAiLLMModel),
	}
	out.Retry.MaxRetries = 1
	out.Retry.InitialDelayInSeconds = 1
	out.Chunking.ChunkDurationInSeconds = 300
	out.Chunking.FfmpegPath = "ffmpeg"
	return out
}
