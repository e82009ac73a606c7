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

// Package test provides utility functions and mock data to support the
// application's test suite: a cached test configuration, environment setup
// for the hierarchical config loader, and sample payloads for the
// storage-trigger and verdict-parsing paths.
package test

import (
	"log"
	"os"
	"testing"

	"github.com/jaycherian/gcp-go-video-compliance/internal/cloud"
)

// StateManager acts as a simple in-memory cache for the application configuration
// during test runs. This prevents the need to reload configuration files for every
// test, speeding up the test suite.
type StateManager struct {
	config *cloud.Config
}

// state holds the singleton StateManager so the configuration is loaded only
// once per test run.
var state = &StateManager{}

// HandleErr is a simple test helper that fails the test if err is not nil.
//
// Inputs:
//   - err: The error to check.
//   - t: The *testing.T object from the current test.
func HandleErr(err error, t *testing.T) {
	if err != nil {
		t.Errorf("Error reading config file: %v", err)
	}
}

// GetTestVideoNotificationText returns a hardcoded JSON string that simulates
// a Pub/Sub notification from Google Cloud Storage for a video finalized in
// the intake bucket. This mock data drives tests of the storage-triggered
// analysis path.
//
// Returns:
//   - A string containing the JSON payload of a GCS notification.
func GetTestVideoNotificationText() string {
	return `{
  "kind": "storage#object",
  "id": "video_compliance_intake/night-shift-trailer.mp4/1728615848664286",
  "selfLink": "https://www.googleapis.com/storage/v1/b/video_compliance_intake/o/night-shift-trailer.mp4",
  "name": "night-shift-trailer.mp4",
  "bucket": "video_compliance_intake",
  "generation": "1728615848664286",
  "metageneration": "1",
  "contentType": "video/mp4",
  "timeCreated": "2024-10-11T03:04:08.672Z",
  "updated": "2024-10-11T03:04:08.672Z",
  "storageClass": "STANDARD",
  "timeStorageClassUpdated": "2024-10-11T03:04:08.672Z",
  "size": "259348037",
  "md5Hash": "67c1rAU+1RYZzK5zp8iBkA==",
  "mediaLink": "https://storage.googleapis.com/download/storage/v1/b/video_compliance_intake/o/night-shift-trailer.mp4?generation=1728615848664286&alt=media",
  "metadata": { "touch": "18" },
  "crc32c": "IYeSTw==",
  "etag": "CN658+yrhYkDEAE="
	}`
}

// GetTestVerdictJSON returns a well-formed compliance verdict as the model
// would emit it, usable as parser input or as a scripted model response.
//
// Returns:
//   - A string containing a valid verdict document.
func GetTestVerdictJSON() string {
	return `{
  "is_compliance_issues": true,
  "compliance_issues": [
    {"timecode": "00:02:15", "category": "Violence", "description": "A prolonged fight scene with visible blood.", "threshold": 4}
  ],
  "final_suggestion": "Suitable for audiences sixteen and above",
  "content_summary": "A crime thriller following a night-shift dock worker.",
  "speaking_language": "English",
  "content_rating": "NC16",
  "rating_rationale": "Sustained realistic violence per section 4.2 of the guidelines."
}`
}

// SetupOS configures the environment variables the configuration loader
// (`cloud.LoadConfig`) depends on, pointing it at the test configuration
// files (e.g. `configs/.env.test.toml`).
//
// Returns:
//   - An error if setting any environment variable fails.
func SetupOS() (err error) {
	// Set the directory where the configuration files are located.
	err = os.Setenv(cloud.EnvConfigFilePrefix, "configs")
	if err != nil {
		return err
	}
	// Set the runtime environment identifier to "test". This causes the loader
	// to look for a file named ".env.test.toml" for overrides.
	err = os.Setenv(cloud.EnvConfigRuntime, "test")
	return err
}

// GetConfig is a singleton accessor for the test configuration. The TOML
// files are loaded once and cached for subsequent calls.
//
// Returns:
//   - A pointer to the loaded and cached cloud.Config struct.
func GetConfig() *cloud.Config {
	if state.config == nil {
		err := SetupOS()
		if err != nil {
			log.Fatalf("failed to setup environment for test: %v\n", err)
		}
		config := cloud.NewConfig()
		cloud.LoadConfig(&config)
		state.config = config
	}
	return state.config
}
