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

// Package services contains the business logic for working with completed
// analyses. This file defines the AnalysisService: an in-memory registry of
// finished compliance runs keyed by video id, the writer for the on-disk
// verdict artifacts, and the generator of secure, time-limited URLs for
// streaming the analyzed videos from Google Cloud Storage (GCS).
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/model"
)

// ResultFileSuffix is appended to the sanitized video title to form the
// verdict artifact filename.
const ResultFileSuffix = "_compliance_results.json"

// AnalysisService tracks completed compliance runs and produces their
// artifacts. The registry is in-memory: restarting the server forgets past
// runs, but their result files and BigQuery rows survive.
type AnalysisService struct {
	StorageClient    *storage.Client                   // Client for interacting with Google Cloud Storage.
	IAMClient        *credentials.IamCredentialsClient // Client for IAM, kept for key-less URL signing setups.
	SignerEmail      string                            // The service account email used to sign URLs.
	ResultsDirectory string                            // Directory where verdict artifacts are written.

	mu       sync.RWMutex
	analyses map[string]*model.Analysis
}

// NewAnalysisService is the constructor for the AnalysisService.
//
// Inputs:
//   - storageClient: An initialized *storage.Client.
//   - iamClient: An initialized IAM credentials client for signing.
//   - signerEmail: The service account email used for URL signing.
//   - resultsDirectory: The directory for verdict artifacts.
//
// Outputs:
//   - *AnalysisService: A pointer to the newly created service.
func NewAnalysisService(
	storageClient *storage.Client,
	iamClient *credentials.IamCredentialsClient,
	signerEmail string,
	resultsDirectory string) *AnalysisService {
	return &AnalysisService{
		StorageClient:    storageClient,
		IAMClient:        iamClient,
		SignerEmail:      signerEmail,
		ResultsDirectory: resultsDirectory,
		analyses:         make(map[string]*model.Analysis),
	}
}

// Register stores a completed analysis in the registry, replacing any
// earlier run with the same video id.
func (s *AnalysisService) Register(analysis *model.Analysis) {
	// Chunked runs upload per-chunk objects only; point the streaming
	// endpoint at the first chunk so playback still has an object to sign.
	if analysis.ObjectName == "" && len(analysis.ChunkResults) > 0 {
		analysis.ObjectName = analysis.ChunkResults[0].ChunkFile
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses[analysis.VideoID] = analysis
}

// Get retrieves an analysis by its video id.
//
// Outputs:
//   - *model.Analysis: The stored analysis, or nil.
//   - bool: Whether the id was found.
func (s *AnalysisService) Get(id string) (*model.Analysis, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	analysis, ok := s.analyses[id]
	return analysis, ok
}

// WriteResultFile persists the verdict (or the chunk verdicts) of an
// analysis as a pretty-printed JSON artifact named after the video title.
// The artifact path is recorded on the analysis.
//
// Inputs:
//   - analysis: The completed analysis to persist.
//
// Outputs:
//   - string: The path of the written artifact.
//   - error: An error if the directory or file cannot be written.
func (s *AnalysisService) WriteResultFile(analysis *model.Analysis) (string, error) {
	if err := os.MkdirAll(s.ResultsDirectory, 0o755); err != nil {
		return "", fmt.Errorf("failed to create results directory %s: %w", s.ResultsDirectory, err)
	}

	var payload interface{}
	if len(analysis.ChunkResults) > 0 {
		payload = analysis.ChunkResults
	} else {
		payload = analysis.Result
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal verdict for %s: %w", analysis.VideoID, err)
	}

	name := SanitizeFileName(analysis.Title) + ResultFileSuffix
	path := filepath.Join(s.ResultsDirectory, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write verdict file %s: %w", path, err)
	}

	analysis.ResultFile = path
	return path, nil
}

// SignedStreamURL creates a time-limited, secure URL for streaming the
// analyzed video directly from its private GCS bucket, so clients never
// need GCS credentials of their own.
//
// Inputs:
//   - ctx: The context for the request.
//   - analysis: The analysis whose video should be streamed.
//   - expires: The duration for which the URL will be valid.
//
// Outputs:
//   - string: The generated V4 signed URL.
//   - error: An error if the analysis has no stored object or signing fails.
func (s *AnalysisService) SignedStreamURL(_ context.Context, analysis *model.Analysis, expires time.Duration) (string, error) {
	if analysis.Bucket == "" || analysis.ObjectName == "" {
		return "", fmt.Errorf("analysis %s has no stored video object", analysis.VideoID)
	}

	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4, // V4 is the modern signing scheme.
		Method:  "GET",                   // The URL is only valid for GET requests.
		Expires: time.Now().Add(expires),
	}

	u, err := s.StorageClient.Bucket(analysis.Bucket).SignedURL(analysis.ObjectName, opts)
	if err != nil {
		return "", fmt.Errorf("Bucket(%q).SignedURL(%q): %w", analysis.Bucket, analysis.ObjectName, err)
	}
	return u, nil
}
