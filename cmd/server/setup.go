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

// Package main contains the setup and initialization logic for the
// application's state. This file is responsible for creating and managing a
// centralized state manager that holds all shared dependencies: the
// configuration, the Google Cloud service clients, the acquisition and
// analysis services, and the two compliance workflows.
//
// Functions:
//   - SetupOS: Configures the environment variables the configuration loader
//     uses to find the correct TOML files.
//   - GetConfig: A singleton accessor that loads the application's
//     configuration from TOML files exactly once.
//   - InitState: The core initialization function that creates all service
//     clients, the application services, both analysis workflows, and the
//     Pub/Sub listeners for the storage-triggered path.
package main

import (
	"context"
	"log"
	"os"

	"github.com/jaycherian/gcp-go-video-compliance/internal/cloud"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/services"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/workflow"
)

// AnalyzerModelName is the logical name of the configured Vertex AI model
// used for compliance reviews. It must match a key in the analyzer_models
// table of the TOML configuration.
const AnalyzerModelName = "compliance"

// StateManager holds all the shared dependencies for the application, acting
// as a centralized container for clients, services, and workflows. This
// avoids scattered globals and keeps the wiring in one place.
type StateManager struct {
	config             *cloud.Config
	cloud              *cloud.ServiceClients
	acquisitionService *services.AcquisitionService
	analysisService    *services.AnalysisService
	complianceWorkflow *workflow.ComplianceWorkflow
	chunkedWorkflow    *workflow.ChunkedComplianceWorkflow
}

// state is a package-level variable that holds the single instance of StateManager.
var state = &StateManager{}

// SetupOS sets the environment variables the configuration loader uses to
// find the TOML files: the configuration directory prefix and the runtime
// environment name used for overrides.
//
// Outputs:
//   - error: An error if setting any of the environment variables fails.
func SetupOS() (err error) {
	err = os.Setenv(cloud.EnvConfigFilePrefix, "configs")
	if err != nil {
		return err
	}
	// The config loader will look for a ".env.local.toml" file to override
	// base settings.
	err = os.Setenv(cloud.EnvConfigRuntime, "local")
	return err
}

// GetConfig provides a singleton instance of the application configuration.
// On the first call it sets up the OS environment and loads the TOML files;
// subsequent calls return the cached configuration.
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
//
// Inputs:
//   - ctx: The root context.Context for the application, used for managing
//     the lifecycle of client connections and background processes.
//
// This function performs the following steps:
//  1. Loads the application configuration.
//  2. Initializes all Google Cloud service clients (Storage, Pub/Sub, GenAI,
//     BigQuery, IAM).
//  3. Instantiates the acquisition and analysis services.
//  4. Builds the single-pass and chunked compliance workflows.
//  5. Sets up and starts the Pub/Sub listener for the storage-triggered path.
func InitState(ctx context.Context) {
	config := GetConfig()

	cloudClients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		panic(err)
	}
	state.cloud = cloudClients

	// Uploaded and downloaded videos are staged under the OS temp directory;
	// the workflows register every staged file for cleanup after analysis.
	state.acquisitionService = services.NewAcquisitionService(nil, "")

	state.analysisService = services.NewAnalysisService(
		cloudClients.StorageClient,
		cloudClients.IAMClient,
		config.Application.SignerServiceAccountEmail,
		config.Storage.ResultsDirectory,
	)

	// Both workflows are always constructed; the upload handler picks one per
	// request based on the chunking configuration.
	state.complianceWorkflow = workflow.NewComplianceWorkflow(config, cloudClients, AnalyzerModelName)
	state.chunkedWorkflow = workflow.NewChunkedComplianceWorkflow(config, cloudClients, AnalyzerModelName)

	// Configure and start the Pub/Sub listeners that react to GCS bucket events.
	SetupListeners(config, cloudClients, ctx)
}
