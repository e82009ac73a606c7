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

// Package workflow defines the high-level business logic orchestrations,
// combining various commands into coherent pipelines. This file implements
// the storage-triggered analysis workflow: videos dropped straight into the
// intake bucket are analyzed without going through the HTTP API.
//
// Logic Flow:
// The Pub/Sub listener hands this workflow the raw GCS notification. Unlike
// the HTTP path there is no caller to supply a title or guidelines, so the
// workflow synthesizes the analysis request itself: the object name becomes
// the title, a fresh id is assigned, and the guidelines come from the
// configured default guidelines file.
//
//  1. Parse the notification into a GCS object reference.
//  2. Synthesize the analysis request (id, title, default guidelines).
//  3. Run the shared detection chain against the object in place. The video
//     already lives in GCS, so no upload step is needed. When chunked mode
//     is enabled the object is first downloaded to a temp file, since FFmpeg
//     needs the video on local disk to segment it.
package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/jaycherian/gcp-go-video-compliance/internal/cloud"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/model"
	"go.opentelemetry.io/otel/codes"
)

// TriggeredComplianceWorkflow analyzes videos announced by GCS notifications.
type TriggeredComplianceWorkflow struct {
	cor.BaseCommand
	config         *cloud.Config
	bigqueryClient *bigquery.Client
	genaiModel     *cloud.GenerativeAIModel
	promptTemplate *template.Template
	trigger        *commands.VideoTriggerToGCSObject
	detection      cor.Chain
	// downloader and chunked are set only when chunked mode is enabled.
	downloader *commands.GCSToTempFile
	chunked    *ChunkedComplianceWorkflow
}

// NewTriggeredComplianceWorkflow is the constructor for the trigger-driven workflow.
//
// Inputs:
//   - config: The application's overall configuration.
//   - serviceClients: A struct containing initialized clients for GCP services.
//   - analyzerModelName: The configured analyzer model to use.
//
// Returns:
//   - A pointer to a newly created and fully initialized TriggeredComplianceWorkflow.
func NewTriggeredComplianceWorkflow(
	config *cloud.Config,
	serviceClients *cloud.ServiceClients,
	analyzerModelName string) *TriggeredComplianceWorkflow {

	promptTemplate, err := template.New("triggered-compliance-template").Parse(compliancePromptText(config))
	if err != nil {
		panic(err)
	}

	out := &TriggeredComplianceWorkflow{
		BaseCommand:    *cor.NewBaseCommand("triggered-compliance-workflow"),
		config:         config,
		bigqueryClient: serviceClients.BigQueryClient,
		genaiModel:     serviceClients.AnalyzerModels[analyzerModelName],
		promptTemplate: promptTemplate,
		trigger:        commands.NewVideoTriggerToGCSObject("video-trigger-to-gcs-object"),
	}
	out.detection = newDetectionChain("triggered-compliance-detection", config, out.bigqueryClient, out.genaiModel, out.promptTemplate)

	if config.Chunking.Enabled {
		out.downloader = commands.NewGCSToTempFile(
			"download-video-for-chunking",
			serviceClients.StorageClient,
			"triggered-video-")
		out.chunked = NewChunkedComplianceWorkflow(config, serviceClients, analyzerModelName)
	}
	return out
}

// Execute parses the notification, synthesizes the analysis request, and
// runs the detection chain. The listener acknowledges the message only when
// the context comes back without errors.
//
// Inputs:
//   - context: The chain of responsibility context seeded with the raw
//     notification JSON by the Pub/Sub listener.
func (m *TriggeredComplianceWorkflow) Execute(context cor.Context) {
	_, span := m.Tracer.Start(context.GetContext(), fmt.Sprintf("%s_execute", m.GetName()))
	defer span.End()

	m.trigger.Execute(context)
	if context.HasErrors() {
		span.SetStatus(codes.Error, "failed to parse trigger notification")
		return
	}
	gcsObject := context.Get(cloud.GetGCSObjectName()).(*cloud.GCSObject)

	guidelines, err := os.ReadFile(m.config.Guidelines.DefaultFile)
	if err != nil {
		m.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(m.GetName(), fmt.Errorf("failed to read default guidelines %s: %w", m.config.Guidelines.DefaultFile, err))
		span.SetStatus(codes.Error, "missing default guidelines")
		return
	}

	// No caller supplied a title, so derive one from the object name.
	title := strings.TrimSuffix(filepath.Base(gcsObject.Name), filepath.Ext(gcsObject.Name))
	req := &model.AnalysisRequest{
		VideoID:    uuid.NewString(),
		Title:      title,
		MIMEType:   gcsObject.MIMEType,
		Guidelines: string(guidelines),
	}
	context.Add(commands.GetAnalysisRequestParamName(), req)

	if m.chunked != nil {
		// FFmpeg can only segment a local file, so pull the object down first.
		context.Add(cor.CtxIn, gcsObject)
		m.downloader.Execute(context)
		if context.HasErrors() {
			span.SetStatus(codes.Error, "failed to download video for chunking")
			return
		}
		req.LocalPath = context.Get(m.downloader.GetOutputParam()).(string)

		results, err := m.chunked.Analyze(context.GetContext(), req)
		if err != nil {
			m.GetErrorCounter().Add(context.GetContext(), 1)
			context.AddError(m.GetName(), err)
			span.SetStatus(codes.Error, "triggered chunked analysis failed")
			return
		}
		context.Add(m.GetOutputParam(), results)
		m.GetSuccessCounter().Add(context.GetContext(), 1)
		span.SetStatus(codes.Ok, "triggered chunked analysis complete")
		return
	}

	m.detection.Execute(context)
	if context.HasErrors() {
		span.SetStatus(codes.Error, "triggered analysis failed")
		return
	}
	m.GetSuccessCounter().Add(context.GetContext(), 1)
	span.SetStatus(codes.Ok, "triggered analysis complete")
}
