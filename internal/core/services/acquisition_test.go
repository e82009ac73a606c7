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

package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jaycherian/gcp-go-video-compliance/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFileName(t *testing.T) {
	assert.Equal(t, "My Movie - Part 1.mp4", SanitizeFileName("My Movie - Part 1.mp4"))
	assert.Equal(t, "movie___.mp4", SanitizeFileName("movie/:*.mp4"))
	assert.Equal(t, "clip_2024_.mov", SanitizeFileName("clip[2024].mov"))
}

func TestSaveUploadStagesFileAndBuildsRequest(t *testing.T) {
	svc := NewAcquisitionService(nil, t.TempDir())

	req, err := svc.SaveUpload(context.Background(), "Night Shift.mp4", strings.NewReader("not really a video"))
	require.NoError(t, err)

	assert.NotEmpty(t, req.VideoID)
	assert.Equal(t, "Night Shift", req.Title)
	// Unrecognized content falls back to the default video MIME type.
	assert.Equal(t, DefaultVideoMIMEType, req.MIMEType)

	data, err := os.ReadFile(req.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "not really a video", string(data))

	// A second upload of the same name lands in its own directory.
	other, err := svc.SaveUpload(context.Background(), "Night Shift.mp4", strings.NewReader("different bytes"))
	require.NoError(t, err)
	assert.NotEqual(t, req.LocalPath, other.LocalPath)
	assert.NotEqual(t, req.VideoID, other.VideoID)
}

func TestDownloadURLStagesRemoteVideo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("remote video bytes"))
	}))
	defer server.Close()

	svc := NewAcquisitionService(server.Client(), t.TempDir())
	req, err := svc.DownloadURL(context.Background(), server.URL+"/trailers/harbor%20lights.mp4")
	require.NoError(t, err)

	assert.Equal(t, "harbor lights", req.Title)
	data, err := os.ReadFile(req.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "remote video bytes", string(data))
}

func TestDownloadURLRejectsBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	}))
	defer server.Close()

	svc := NewAcquisitionService(server.Client(), t.TempDir())
	_, err := svc.DownloadURL(context.Background(), server.URL+"/missing.mp4")
	assert.Error(t, err)
}

func TestRegisterPointsStreamingAtFirstChunk(t *testing.T) {
	svc := NewAnalysisService(nil, nil, "", t.TempDir())

	analysis := &model.Analysis{
		VideoID: "chunked-1",
		Title:   "Long Feature",
		Bucket:  "video_compliance_intake",
		ChunkResults: []*model.ComplianceResult{
			{ContentRating: "PG13", ChunkIndex: 0, ChunkFile: "chunked-1/chunk_000.mp4"},
			{ContentRating: "NC16", ChunkIndex: 1, ChunkFile: "chunked-1/chunk_001.mp4"},
		},
	}
	svc.Register(analysis)

	got, ok := svc.Get("chunked-1")
	require.True(t, ok)
	assert.Equal(t, "chunked-1/chunk_000.mp4", got.ObjectName)

	// A single-pass analysis keeps the object name the upload recorded.
	single := &model.Analysis{
		VideoID:    "single-1",
		Title:      "Short Film",
		Bucket:     "video_compliance_intake",
		ObjectName: "Short_Film.mp4",
		Result:     &model.ComplianceResult{ContentRating: "G"},
	}
	svc.Register(single)
	got, ok = svc.Get("single-1")
	require.True(t, ok)
	assert.Equal(t, "Short_Film.mp4", got.ObjectName)
}

func TestAnalysisRegistryAndResultFile(t *testing.T) {
	dir := t.TempDir()
	svc := NewAnalysisService(nil, nil, "", dir)

	analysis := &model.Analysis{
		VideoID: "abc123",
		Title:   "Night Shift",
		Result: &model.ComplianceResult{
			IsComplianceIssues: false,
			FinalSuggestion:    "Approve for general audiences",
			ContentSummary:     "A calm documentary.",
			SpeakingLanguage:   "English",
			ContentRating:      "G",
			RatingRationale:    "No restricted content observed.",
			VideoTitle:         "Night Shift",
		},
	}
	svc.Register(analysis)

	got, ok := svc.Get("abc123")
	require.True(t, ok)
	assert.Equal(t, analysis, got)

	_, ok = svc.Get("unknown")
	assert.False(t, ok)

	path, err := svc.WriteResultFile(analysis)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Night Shift"+ResultFileSuffix), path)
	assert.Equal(t, path, analysis.ResultFile)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"content_rating": "G"`)
}
