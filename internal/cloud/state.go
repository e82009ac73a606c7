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

// Package cloud provides components for interacting with Google Cloud services.
// This file is responsible for initializing and holding all the client
// objects needed to communicate with those services. It acts as a dependency
// injection container, creating a single `ServiceClients` struct that is
// passed explicitly to every workflow and service that needs a client;
// nothing in the application reaches for package-level connection state.
//
// Logic Flow:
//  1. `NewCloudServiceClients` is called at application startup with the
//     loaded configuration.
//  2. It initializes clients for Storage, Pub/Sub, GenAI (Vertex backend),
//     BigQuery, and IAM credentials.
//  3. It creates a PubSubListener per configured subscription (commands are
//     attached later, when the workflows are built) and a rate-limited
//     GenerativeAIModel per configured analyzer model.
//  4. Everything is bundled into one ServiceClients value.
//
// Structs:
//   - ServiceClients: A container holding all initialized Google Cloud
//     service clients and model wrappers.
//
// Functions:
//   - Close: A convenience method to shut down all client connections.
//   - NewCloudServiceClients: Factory that creates and configures all clients.
package cloud

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"google.golang.org/genai"
)

// ServiceClients is the central container for all clients that talk to
// external Google Cloud services. It is created once at startup and shared
// by explicit parameter passing.
type ServiceClients struct {
	StorageClient   *storage.Client                   // Client for Google Cloud Storage (GCS).
	PubsubClient    *pubsub.Client                    // Client for Google Cloud Pub/Sub.
	GenAIClient     *genai.Client                     // Client for Google's Generative AI services (Vertex AI).
	BigQueryClient  *bigquery.Client                  // Client for Google Cloud BigQuery (verdict archive).
	IAMClient       *credentials.IamCredentialsClient // Client for IAM, used to sign GCS URLs.
	PubSubListeners map[string]*PubSubListener        // Active Pub/Sub listeners, keyed by a logical name from the config.
	AnalyzerModels  map[string]*GenerativeAIModel     // Rate-limited analyzer models, keyed by a logical name.
}

// Close shuts down all active client connections. Client lifecycles are
// normally tied to the root context, but tests and controlled shutdowns use
// this for an explicit release.
func (c *ServiceClients) Close() {
	_ = c.StorageClient.Close()
	_ = c.PubsubClient.Close()
	_ = c.BigQueryClient.Close()
	if c.IAMClient != nil {
		_ = c.IAMClient.Close()
	}
}

// NewCloudServiceClients initializes all required Google Cloud service
// clients based on the provided configuration.
//
// Inputs:
//   - ctx: The root context for the application, which governs the client lifecycles.
//   - config: A pointer to the loaded application configuration.
//
// Outputs:
//   - *ServiceClients: A pointer to the fully initialized ServiceClients struct.
//   - error: An error if any of the clients fail to initialize.
func NewCloudServiceClients(ctx context.Context, config *Config) (clients *ServiceClients, err error) {
	sc, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	pc, err := pubsub.NewClient(ctx, config.Application.GoogleProjectId)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  config.Application.GoogleProjectId,
		Location: config.Application.GoogleLocation,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	bc, err := bigquery.NewClient(ctx, config.Application.GoogleProjectId)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigquery client: %w", err)
	}

	ic, err := credentials.NewIamCredentialsClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create iam credentials client: %w", err)
	}

	// One listener per configured subscription. The command is nil here and
	// attached later when the workflows are assembled.
	subscriptions := make(map[string]*PubSubListener)
	for subKey := range config.TopicSubscriptions {
		values := config.TopicSubscriptions[subKey]
		actual, err := NewPubSubListener(pc, values.Name, nil)
		if err != nil {
			return nil, err
		}
		subscriptions[subKey] = actual
	}

	// One rate-limited model wrapper per configured analyzer model, with the
	// model's sampling settings and the service-wide safety thresholds.
	analyzerModels := make(map[string]*GenerativeAIModel)
	for amKey := range config.AnalyzerModels {
		values := config.AnalyzerModels[amKey]
		generateConfig := &genai.GenerateContentConfig{
			Temperature:      genai.Ptr[float32](values.Temperature),
			TopP:             genai.Ptr[float32](values.TopP),
			CandidateCount:   values.CandidateCount,
			MaxOutputTokens:  values.MaxTokens,
			SafetySettings:   DefaultSafetySettings,
			ResponseMIMEType: values.OutputFormat,
		}
		analyzerModels[amKey] = NewGenerativeAIModel(generateConfig, values.Model, gc.Models, values.RateLimit)
	}

	clients = &ServiceClients{
		StorageClient:   sc,
		PubsubClient:    pc,
		GenAIClient:     gc,
		BigQueryClient:  bc,
		IAMClient:       ic,
		PubSubListeners: subscriptions,
		AnalyzerModels:  analyzerModels,
	}

	return clients, nil
}
