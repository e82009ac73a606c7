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
// entry command of the storage-triggered analysis workflow.
//
// Logic Flow:
// When a video lands directly in the intake bucket (bypassing the HTTP API),
// GCS publishes a notification message to a Pub/Sub topic. This command
// parses that message so the rest of the analysis chain can work from a
// simple object reference.
//
//  1. It receives the raw Pub/Sub message data as a JSON string from the context.
//  2. It unmarshals the JSON into a `cloud.GCSPubSubNotification`, the full
//     structure of the GCS event.
//  3. It extracts the essentials (bucket, object name, content type) into a
//     `cloud.GCSObject` and places it into the context under the canonical
//     key, so downstream commands never need to understand the notification
//     format.
package commands

import (
	"encoding/json"
	"fmt"

	"github.com/jaycherian/gcp-go-video-compliance/internal/cloud"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/cor"
)

// VideoTriggerToGCSObject is a command that parses a GCS Pub/Sub notification
// and extracts key file information into a simplified GCSObject.
type VideoTriggerToGCSObject struct {
	cor.BaseCommand // Embeds the BaseCommand for common functionality.
}

// NewVideoTriggerToGCSObject is the constructor for the VideoTriggerToGCSObject command.
//
// Inputs:
//   - name: A string name for this command instance.
//
// Outputs:
//   - *VideoTriggerToGCSObject: A pointer to the newly instantiated command.
func NewVideoTriggerToGCSObject(name string) *VideoTriggerToGCSObject {
	return &VideoTriggerToGCSObject{BaseCommand: *cor.NewBaseCommand(name)}
}

// Execute parses the GCS notification message carried in the input parameter.
//
// Inputs:
//   - context: The shared `cor.Context` for this workflow execution, containing
//     the raw message data in the input parameter.
func (c *VideoTriggerToGCSObject) Execute(context cor.Context) {
	in := context.Get(c.GetInputParam()).(string)

	var out cloud.GCSPubSubNotification
	err := json.Unmarshal([]byte(in), &out)
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("failed to unmarshal GCS notification: %w", err))
		return
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)

	msg := &cloud.GCSObject{Bucket: out.Bucket, Name: out.Name, MIMEType: out.ContentType}

	// Store under the well-known key and as the piped output so both styles
	// of lookup work in the chain.
	context.Add(cloud.GetGCSObjectName(), msg)
	context.Add(c.GetOutputParam(), msg)
}
