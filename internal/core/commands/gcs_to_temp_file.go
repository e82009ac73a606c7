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
// Responsibility (COR) pattern's Command interface. This file defines a
// command for downloading a video object from Google Cloud Storage (GCS) to
// a local temporary file.
//
// Logic Flow:
// This command bridges a GCS-based workflow and a local-file tool: the
// chunk splitter needs the video on local disk before FFmpeg can segment
// it, and storage-triggered analyses start from an object that only exists
// in GCS.
//
//  1. It receives a `cloud.GCSObject` from the context, which names the
//     bucket and object.
//  2. It creates a reader for the object and an empty local temporary file.
//  3. It streams the content from GCS into the file with `io.Copy`.
//  4. It adds the path of the temporary file to the context, both as the
//     input for the next command and for cleanup after the workflow.
package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-video-compliance/internal/cloud"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/cor"
)

// GCSToTempFile is a command implementation that downloads an object from GCS
// and saves it as a temporary file on the local filesystem.
type GCSToTempFile struct {
	cor.BaseCommand                 // Embeds the BaseCommand for common functionality like naming and metrics.
	client          *storage.Client // The GCS client for interacting with the storage service.
	tempFilePrefix  string          // A prefix to use when naming the temporary file (e.g. "video-").
}

// NewGCSToTempFile is the constructor for creating a new GCSToTempFile command.
//
// Inputs:
//   - name: A string name for this command instance, used for logging and telemetry.
//   - client: An initialized *storage.Client for communicating with GCS.
//   - tempFilePrefix: A string prefix for the temporary file's name.
//
// Outputs:
//   - *GCSToTempFile: A pointer to the newly instantiated command.
func NewGCSToTempFile(name string, client *storage.Client, tempFilePrefix string) *GCSToTempFile {
	return &GCSToTempFile{
		BaseCommand:    *cor.NewBaseCommand(name),
		client:         client,
		tempFilePrefix: tempFilePrefix,
	}
}

// Execute downloads the GCS object to a local temporary file.
//
// Inputs:
//   - context: The shared `cor.Context` for this workflow execution.
func (c *GCSToTempFile) Execute(context cor.Context) {
	msg := context.Get(c.GetInputParam()).(*cloud.GCSObject)

	obj := c.client.Bucket(msg.Bucket).Object(msg.Name)

	reader, err := obj.NewReader(context.GetContext())
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("failed to create GCS reader for gs://%s/%s: %w", msg.Bucket, msg.Name, err))
		return
	}
	defer func(reader *storage.Reader) {
		err := reader.Close()
		if err != nil {
			// The data may have been read fully, so log rather than fail.
			slog.Warn("failed to close GCS reader", "error", err)
		}
	}(reader)

	tempFile, err := os.CreateTemp("", c.tempFilePrefix)
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("could not create temp file: %w", err))
		return
	}

	// Stream in chunks rather than loading the whole video into memory.
	written, err := io.Copy(tempFile, reader)
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		slog.Error("failed to copy GCS object to local file", "bytes", written, "error", err)
		context.AddError(c.GetName(), err)
		_ = tempFile.Close()
		return
	}
	_ = tempFile.Close()

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	slog.Info("downloaded video for local processing",
		"source", fmt.Sprintf("gs://%s/%s", msg.Bucket, msg.Name),
		"file", tempFile.Name(), "bytes", written)

	context.AddTempFile(tempFile.Name())
	context.Add(c.GetOutputParam(), tempFile.Name())
}
