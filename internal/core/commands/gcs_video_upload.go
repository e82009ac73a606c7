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
// command that moves an acquired video from local disk into the analysis
// bucket on Google Cloud Storage (GCS).
//
// Logic Flow:
// The generative model reads videos by gs:// URI, so every analysis starts
// by making the local file addressable in GCS. This command is the first
// step of the analysis chains.
//
//  1. It retrieves the `model.AnalysisRequest` from the context, which
//     carries the local file path and MIME type of the acquired video.
//  2. It derives the object name from the local file name, replacing
//     whitespace runs with underscores so the resulting gs:// URI needs no
//     escaping.
//  3. It streams the file contents to the bucket with `io.Copy`, never
//     holding the whole video in memory.
//  4. It places a `cloud.GCSObject` describing the uploaded video into the
//     context under the canonical key for the downstream commands, and
//     registers the local file for cleanup at the end of the workflow.
package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-video-compliance/internal/cloud"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/model"
)

// whitespaceRuns matches runs of whitespace replaced with underscores in
// object names.
var whitespaceRuns = regexp.MustCompile(`\s+`)

// GCSVideoUpload is a command implementation responsible for uploading an
// acquired video from the local filesystem to the analysis GCS bucket.
type GCSVideoUpload struct {
	cor.BaseCommand                 // Embeds the BaseCommand for common functionality like naming and metrics.
	client          *storage.Client // The GCS client for interacting with the storage service.
	bucket          string          // The name of the destination GCS bucket.
}

// NewGCSVideoUpload is the constructor for creating a new GCSVideoUpload command.
//
// Inputs:
//   - name: A string name for this command instance, used for logging and telemetry.
//   - client: An initialized *storage.Client for communicating with GCS.
//   - bucket: The name of the target GCS bucket for the upload.
//
// Outputs:
//   - *GCSVideoUpload: A pointer to the newly instantiated command.
func NewGCSVideoUpload(name string, client *storage.Client, bucket string) *GCSVideoUpload {
	return &GCSVideoUpload{BaseCommand: *cor.NewBaseCommand(name), client: client, bucket: bucket}
}

// IsExecutable checks that the analysis request is present in the context.
func (c *GCSVideoUpload) IsExecutable(context cor.Context) bool {
	return context != nil &&
		context.Get(GetAnalysisRequestParamName()) != nil &&
		context.GetContext() != nil
}

// ObjectNameForPath derives the GCS object name for a local video file.
// Whitespace is collapsed to underscores so the gs:// URI stays clean.
func ObjectNameForPath(path string) string {
	return whitespaceRuns.ReplaceAllString(filepath.Base(path), "_")
}

// Execute streams the local video file to the analysis bucket.
//
// Inputs:
//   - context: The shared `cor.Context` for this workflow execution.
func (c *GCSVideoUpload) Execute(context cor.Context) {
	req := context.Get(GetAnalysisRequestParamName()).(*model.AnalysisRequest)

	dat, err := os.Open(req.LocalPath)
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("failed to open video file %s: %w", req.LocalPath, err))
		return
	}
	defer func() {
		_ = dat.Close()
	}()

	objectName := ObjectNameForPath(req.LocalPath)
	obj := c.client.Bucket(c.bucket).Object(objectName)

	// Closing the writer finalizes the upload; an unclosed writer leaves the
	// object missing or incomplete.
	writer := obj.NewWriter(context.GetContext())

	if written, err := io.Copy(writer, dat); err != nil {
		slog.Error("failed to copy video to GCS or partial write", "bytes", written, "error", err)
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), err)
		_ = writer.Close()
		return
	}

	if err := writer.Close(); err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("failed to finalize GCS upload for %s: %w", objectName, err))
		return
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	slog.Info("uploaded video for analysis", "source", req.LocalPath, "destination", fmt.Sprintf("gs://%s/%s", c.bucket, objectName))

	// The local copy is no longer needed once the object exists in GCS; let
	// the workflow context remove it during cleanup.
	context.AddTempFile(req.LocalPath)

	gcsObject := &cloud.GCSObject{Bucket: c.bucket, Name: objectName, MIMEType: req.MIMEType}
	context.Add(cloud.GetGCSObjectName(), gcsObject)
	context.Add(c.GetOutputParam(), gcsObject)
}
