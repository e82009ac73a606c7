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

// Package main contains the logic for setting up and starting the Pub/Sub
// message listeners. These listeners initiate compliance analyses in response
// to events, namely videos dropped directly into the intake bucket.
//
// Functions:
//   - SetupListeners: Initializes and starts the listener for the video
//     intake topic, attaching the storage-triggered analysis workflow.
package main

import (
	"context"

	"github.com/jaycherian/gcp-go-video-compliance/internal/cloud"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/workflow"
)

// VideoTopicName is the logical name of the subscription that announces
// videos finalized in the intake bucket. It must match a key in the
// topic_subscriptions table of the TOML configuration.
const VideoTopicName = "VideoTopic"

// SetupListeners configures and starts the background Pub/Sub listeners.
// It creates the storage-triggered analysis workflow and attaches it to the
// video intake topic listener. Videos analyzed through this path use the
// default guidelines file since no caller is present to supply one.
//
// Inputs:
//   - config: The application's configuration, containing topic settings.
//   - cloudClients: A struct containing all the initialized Google Cloud service clients.
//   - ctx: The application's root context, used to manage the lifecycle of the listeners.
//
// Outputs:
//   - This function does not return any value. It starts the listeners as
//     background goroutines.
func SetupListeners(config *cloud.Config, cloudClients *cloud.ServiceClients, ctx context.Context) {
	triggered := workflow.NewTriggeredComplianceWorkflow(config, cloudClients, AnalyzerModelName)
	cloudClients.PubSubListeners[VideoTopicName].SetCommand(triggered)
	cloudClients.PubSubListeners[VideoTopicName].Listen(ctx)
}
