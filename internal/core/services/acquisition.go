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

// Package services contains the business logic for interacting with data
// sources. This file defines the AcquisitionService, which turns the two
// supported video sources (a direct upload and a remote URL) into a local
// file plus an analysis request the workflows can run.
//
// Acquisition never inspects video content beyond MIME sniffing: whatever
// arrives is handed to the analysis pipeline as-is.
package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/model"
)

// DefaultVideoMIMEType is assumed when sniffing cannot identify the file.
const DefaultVideoMIMEType = "video/mp4"

// unsafeFileChars matches every character that is stripped from incoming
// file names. Word characters, dashes, dots, and spaces survive.
var unsafeFileChars = regexp.MustCompile(`[^\w\-. ]`)

// SanitizeFileName replaces filesystem-hostile characters in a name with
// underscores. Used for both acquired videos and verdict artifacts.
func SanitizeFileName(name string) string {
	return unsafeFileChars.ReplaceAllString(name, "_")
}

// AcquisitionService stages incoming videos on local disk.
type AcquisitionService struct {
	HTTPClient *http.Client // Client used for URL downloads.
	StagingDir string       // Root directory for acquired files; empty means the OS temp dir.
}

// NewAcquisitionService is the constructor for the AcquisitionService.
//
// Inputs:
//   - httpClient: The HTTP client for URL downloads; nil uses http.DefaultClient.
//   - stagingDir: The root directory for acquired files.
//
// Outputs:
//   - *AcquisitionService: A pointer to the newly created service.
func NewAcquisitionService(httpClient *http.Client, stagingDir string) *AcquisitionService {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &AcquisitionService{HTTPClient: httpClient, StagingDir: stagingDir}
}

// SaveUpload stages an uploaded video on local disk and builds the analysis
// request for it. Each acquisition gets a fresh directory keyed by the new
// video id, so concurrent uploads with the same filename never collide.
//
// Inputs:
//   - ctx: Unused today; kept so staging can move to remote storage later.
//   - filename: The client-provided file name; sanitized before use.
//   - r: The file contents.
//
// Outputs:
//   - *model.AnalysisRequest: The request describing the staged video.
//   - error: An error if staging fails.
func (s *AcquisitionService) SaveUpload(_ context.Context, filename string, r io.Reader) (*model.AnalysisRequest, error) {
	videoID := uuid.NewString()

	cleanName := SanitizeFileName(filepath.Base(filename))
	if cleanName == "" || cleanName == "." {
		return nil, fmt.Errorf("unusable file name %q", filename)
	}

	dir, err := s.acquisitionDir(videoID)
	if err != nil {
		return nil, err
	}

	localPath := filepath.Join(dir, cleanName)
	out, err := os.Create(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stage upload %s: %w", localPath, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("failed to write upload %s: %w", localPath, err)
	}
	if err := out.Close(); err != nil {
		return nil, err
	}

	return s.buildRequest(videoID, localPath), nil
}

// DownloadURL fetches a remote video over HTTP and stages it like an
// upload. The file name is derived from the final path segment of the URL.
//
// Inputs:
//   - ctx: Governs the HTTP request.
//   - videoURL: The remote location of the video.
//
// Outputs:
//   - *model.AnalysisRequest: The request describing the staged video.
//   - error: An error if the fetch or staging fails.
func (s *AcquisitionService) DownloadURL(ctx context.Context, videoURL string) (*model.AnalysisRequest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid video url %q: %w", videoURL, err)
	}
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch video %q: %w", videoURL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch video %q: status %d", videoURL, resp.StatusCode)
	}

	name := filepath.Base(strings.Split(req.URL.Path, "?")[0])
	if name == "" || name == "/" || name == "." {
		name = "video.mp4"
	}

	return s.SaveUpload(ctx, name, resp.Body)
}

// acquisitionDir creates the per-acquisition staging directory.
func (s *AcquisitionService) acquisitionDir(videoID string) (string, error) {
	root := s.StagingDir
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, "uploaded-videos", videoID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create staging directory %s: %w", dir, err)
	}
	return dir, nil
}

// buildRequest assembles the analysis request for a staged file, sniffing
// the MIME type from the file's magic bytes.
func (s *AcquisitionService) buildRequest(videoID string, localPath string) *model.AnalysisRequest {
	mimeType := DefaultVideoMIMEType
	if kind, err := filetype.MatchFile(localPath); err == nil && kind.MIME.Value != "" {
		mimeType = kind.MIME.Value
	}

	base := filepath.Base(localPath)
	title := strings.TrimSuffix(base, filepath.Ext(base))

	return &model.AnalysisRequest{
		VideoID:   videoID,
		Title:     title,
		LocalPath: localPath,
		MIMEType:  mimeType,
	}
}
