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

// Package main is the entry point for the video compliance backend server.
//
// This application sets up and runs a web server using the Gin framework. It
// provides a REST API for submitting videos for compliance review and for
// retrieving the resulting verdicts. The server is instrumented with
// OpenTelemetry for logging, tracing, and metrics.
//
// The main function initializes the application's configuration, sets up
// logging and telemetry, and initializes the application state, including
// clients for Google Cloud services. It defines API routes for starting an
// analysis (from an upload or a URL), fetching an analysis and its verdict,
// and generating a signed streaming URL for the reviewed video.
//
// The server also starts a background Pub/Sub listener so videos dropped
// directly into the intake bucket are analyzed without going through the API.
//
// Functions:
//   - main: The main entry point of the application. It sets up the server,
//     configures routes, initializes services, and handles graceful shutdown.
//   - AnalysisRouter: Sets up the API routes for submitting videos and
//     retrieving analyses, verdicts, and streaming URLs.
package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jaycherian/gcp-go-video-compliance/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/model"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/workflow"
	"github.com/jaycherian/gcp-go-video-compliance/internal/telemetry"
)

// main is the primary entry point for the application.
// It orchestrates the setup of logging, telemetry, configuration, cloud
// services, the web server, API routes, and background listeners. It also
// handles graceful shutdown of the server upon receiving an interrupt signal.
func main() {
	// Initialize structured logging for the application.
	telemetry.SetupLogging()
	slog.Info("Logging initialized")

	// The root context for the application; cancelling it stops the listeners.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load application configuration from TOML files.
	config := GetConfig()

	// Initialize OpenTelemetry for distributed tracing and metrics.
	_, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		slog.Error("Failed to setup OpenTelemetry", "error", err)
		log.Fatal(err)
	}
	slog.Info("Tracing initialized")

	// Initialize the application's state, including all necessary service clients.
	InitState(ctx)
	slog.Info("Initialized State")

	// Set up the Gin web server with default middleware.
	r := gin.Default()

	// Add OpenTelemetry middleware to the Gin router to trace incoming requests.
	r.Use(otelgin.Middleware("video-compliance-server"))

	// Configure Cross-Origin Resource Sharing (CORS) middleware.
	// cors.Default() is permissive, suitable for development frontends.
	r.Use(cors.Default())

	// Group routes under the "/api/v1" prefix.
	apiV1 := r.Group("/api/v1")
	{
		AnalysisRouter(apiV1)
	}

	// Configure the HTTP server with the address and handler. Reviews of long
	// videos run inside the request, so the write timeout is generous.
	srv := &http.Server{
		Addr:         ":8080",
		Handler:      r,
		ReadTimeout:  20 * time.Minute,
		WriteTimeout: 20 * time.Minute,
	}

	// Start the HTTP server in a separate goroutine so it doesn't block the main thread.
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to listen: ", "error", err)
		}
	}()
	slog.Info("Server Ready on port 8080")

	// Block until an OS interrupt signal is received.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutdown Server ...")

	// Give active requests 5 seconds to complete.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server Shutdown Failed:", "error", err)
	}

	log.Println("Server exiting")
}

// AnalysisRouter sets up the API routes for compliance analyses.
//
// Inputs:
//   - r: A *gin.RouterGroup to which the analysis routes will be added. This
//     allows nesting routes under a common path prefix (e.g., "/api/v1").
//
// Outputs:
//   - This function does not return any values. It modifies the provided
//     *gin.RouterGroup by adding new route handlers.
//
// This function defines the following endpoints:
//   - POST /analyses: Submits a video (multipart upload or remote URL) for a
//     compliance review and returns the completed analysis.
//   - GET /analyses/:id: Retrieves a completed analysis by its video id.
//   - GET /analyses/:id/result: Retrieves only the verdict payload.
//   - GET /analyses/:id/stream: Generates a time-limited, signed URL for
//     securely streaming the reviewed video.
func AnalysisRouter(r *gin.RouterGroup) {
	analyses := r.Group("/analyses")
	{
		// Handler for POST /analyses
		// Accepts multipart/form-data with either a "video" file or a
		// "video_url" field, plus an optional "guidelines" text file. When no
		// guidelines are attached the configured default file is used.
		analyses.POST("", func(c *gin.Context) {
			req, ok := acquireVideo(c)
			if !ok {
				return
			}

			guidelines, err := readGuidelines(c)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "classification guidelines are required"})
				return
			}
			req.Guidelines = guidelines

			analysis := &model.Analysis{
				VideoID: req.VideoID,
				Title:   req.Title,
				Bucket:  state.config.Storage.VideoBucket,
			}

			// Long videos can be reviewed chunk by chunk; the mode is a
			// deployment decision, not a per-request one.
			if state.config.Chunking.Enabled {
				results, err := state.chunkedWorkflow.Analyze(c.Request.Context(), req)
				if err != nil {
					c.JSON(http.StatusInternalServerError, gin.H{"error": workflow.ErrAnalysisFailed.Error()})
					return
				}
				analysis.ChunkResults = results
			} else {
				analysis.ObjectName = commands.ObjectNameForPath(req.LocalPath)
				result, err := state.complianceWorkflow.Analyze(c.Request.Context(), req)
				if err != nil {
					c.JSON(http.StatusInternalServerError, gin.H{"error": workflow.ErrAnalysisFailed.Error()})
					return
				}
				analysis.Result = result
			}

			state.analysisService.Register(analysis)
			// The verdict artifact is a convenience copy; failing to write it
			// does not fail the analysis.
			if _, err := state.analysisService.WriteResultFile(analysis); err != nil {
				slog.Error("failed to write verdict artifact", "video_id", analysis.VideoID, "error", err)
			}

			c.JSON(http.StatusCreated, analysis)
		})

		// Handler for GET /analyses/:id
		analyses.GET("/:id", func(c *gin.Context) {
			analysis, ok := state.analysisService.Get(c.Param("id"))
			if !ok {
				c.Status(http.StatusNotFound)
				return
			}
			c.JSON(http.StatusOK, analysis)
		})

		// Handler for GET /analyses/:id/result
		// Returns just the verdict payload: the chunk verdict list in chunked
		// mode, the single verdict otherwise.
		analyses.GET("/:id/result", func(c *gin.Context) {
			analysis, ok := state.analysisService.Get(c.Param("id"))
			if !ok {
				c.Status(http.StatusNotFound)
				return
			}
			if len(analysis.ChunkResults) > 0 {
				c.JSON(http.StatusOK, analysis.ChunkResults)
				return
			}
			c.JSON(http.StatusOK, analysis.Result)
		})

		// Handler for GET /analyses/:id/stream
		// This endpoint provides a secure, time-limited URL for clients to
		// stream the reviewed video without GCS credentials of their own.
		analyses.GET("/:id/stream", func(c *gin.Context) {
			analysis, ok := state.analysisService.Get(c.Param("id"))
			if !ok {
				c.JSON(http.StatusNotFound, gin.H{"error": "Analysis not found"})
				return
			}

			// Generate a signed URL valid for 15 minutes for the video file.
			signedURL, err := state.analysisService.SignedStreamURL(c, analysis, 15*time.Minute)
			if err != nil {
				slog.Error("failed to generate signed URL", "video_id", analysis.VideoID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not generate streaming URL"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"url": signedURL})
		})
	}
}

// acquireVideo stages the submitted video on local disk, from either the
// uploaded "video" file or the remote "video_url" field. On failure it writes
// the HTTP response itself and returns ok=false.
func acquireVideo(c *gin.Context) (*model.AnalysisRequest, bool) {
	if file, err := c.FormFile("video"); err == nil {
		f, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable video upload"})
			return nil, false
		}
		defer func() {
			_ = f.Close()
		}()
		req, err := state.acquisitionService.SaveUpload(c.Request.Context(), file.Filename, f)
		if err != nil {
			slog.Error("failed to stage uploaded video", "filename", file.Filename, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": workflow.ErrAnalysisFailed.Error()})
			return nil, false
		}
		return req, true
	}

	if videoURL := c.PostForm("video_url"); videoURL != "" {
		req, err := state.acquisitionService.DownloadURL(c.Request.Context(), videoURL)
		if err != nil {
			slog.Error("failed to download video", "url", videoURL, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": workflow.ErrAnalysisFailed.Error()})
			return nil, false
		}
		return req, true
	}

	c.JSON(http.StatusBadRequest, gin.H{"error": "a video file or video_url is required"})
	return nil, false
}

// readGuidelines returns the classification guidelines for this request: the
// attached "guidelines" file when present, the configured default otherwise.
func readGuidelines(c *gin.Context) (string, error) {
	if file, err := c.FormFile("guidelines"); err == nil {
		f, err := file.Open()
		if err != nil {
			return "", err
		}
		defer func() {
			_ = f.Close()
		}()
		data, err := io.ReadAll(f)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	data, err := os.ReadFile(state.config.Guidelines.DefaultFile)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
