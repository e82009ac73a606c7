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
// the primary single-pass compliance analysis workflow: one video, one model
// invocation, one verdict.
package workflow

import (
	"context"
	"errors"
	"text/template"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-video-compliance/internal/cloud"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/model"
)

// GetVerdictParamName returns the context key under which the validated
// compliance verdict is stored by the detection chain.
func GetVerdictParamName() string {
	return "__verdict_output__"
}

// ErrAnalysisFailed is the uniform failure returned to callers when any step
// of an analysis fails. The detailed cause stays in the logs and telemetry;
// API clients only learn that the video could not be processed.
var ErrAnalysisFailed = errors.New("failed to process the video")

// newDetectionChain builds the shared heart of every analysis: render the
// prompt, invoke the model, validate the verdict, and (when enabled)
// archive it. The storage-triggered and HTTP-driven workflows both run this
// chain; only the steps before it differ.
func newDetectionChain(
	name string,
	config *cloud.Config,
	bigqueryClient *bigquery.Client,
	genaiModel *cloud.GenerativeAIModel,
	promptTemplate *template.Template) cor.Chain {

	out := cor.NewBaseChain(name)

	// Step 1: Render the review prompt from the guidelines, category list,
	// and video title carried in the analysis request.
	out.AddCommand(commands.NewCompliancePromptBuilder("build-compliance-prompt", promptTemplate))

	// Step 2: Send the prompt together with the video's gs:// reference to
	// the model. The wrapper handles rate limiting and the retry policy.
	out.AddCommand(commands.NewComplianceDetector("detect-compliance-issues", config, genaiModel))

	// Step 3: Validate the raw verdict against the schema and decode it.
	// The result is stored under the verdict key for the caller.
	out.AddCommand(commands.NewComplianceResultParser("parse-compliance-verdict", GetVerdictParamName()))

	// Step 4 (optional): Stream the verdict into the BigQuery archive.
	if config.BigQueryArchive.Enabled {
		out.AddCommand(commands.NewResultArchiver(
			"archive-verdict",
			bigqueryClient,
			config.BigQueryArchive.Dataset,
			config.BigQueryArchive.Table,
			GetVerdictParamName()))
	}

	return out
}

// ComplianceWorkflow orchestrates the end-to-end analysis of a single video:
// upload the acquired file to GCS, then run the detection chain against it.
type ComplianceWorkflow struct {
	cor.BaseCommand
	config         *cloud.Config
	storageClient  *storage.Client
	bigqueryClient *bigquery.Client
	genaiModel     *cloud.GenerativeAIModel
	promptTemplate *template.Template
	chain          cor.Chain // The underlying chain of commands to be executed.
}

// Execute runs the workflow by invoking the underlying chain. The analysis
// request must already be present in the context under the canonical key.
//
// Inputs:
//   - context: The chain of responsibility context for this execution.
func (m *ComplianceWorkflow) Execute(context cor.Context) {
	m.chain.Execute(context)
}

// Analyze is the call-style entry point used by the HTTP layer. It seeds a
// fresh chain context with the request, runs the workflow, and returns the
// validated verdict or the uniform failure error.
//
// Inputs:
//   - ctx: The Go context governing cancellation for the whole analysis.
//   - req: The analysis request for an acquired local video file.
//
// Outputs:
//   - *model.ComplianceResult: The validated verdict on success.
//   - error: ErrAnalysisFailed when any step failed.
func (m *ComplianceWorkflow) Analyze(ctx context.Context, req *model.AnalysisRequest) (*model.ComplianceResult, error) {
	chainCtx := cor.NewBaseContext()
	defer chainCtx.Close()
	chainCtx.SetContext(ctx)
	chainCtx.Add(commands.GetAnalysisRequestParamName(), req)
	chainCtx.Add(cor.CtxIn, req)

	m.Execute(chainCtx)

	if chainCtx.HasErrors() {
		return nil, ErrAnalysisFailed
	}
	result, ok := chainCtx.Get(GetVerdictParamName()).(*model.ComplianceResult)
	if !ok {
		return nil, ErrAnalysisFailed
	}
	return result, nil
}

// initializeChain builds the sequence of commands that make up this workflow.
func (m *ComplianceWorkflow) initializeChain() {
	out := cor.NewBaseChain(m.GetName())

	// Step 1: Stream the acquired local file into the analysis bucket so the
	// model can read it by gs:// URI.
	out.AddCommand(commands.NewGCSVideoUpload("upload-video-to-gcs", m.storageClient, m.config.Storage.VideoBucket))

	// Steps 2..n: The shared detection chain (prompt, model, validation,
	// optional archive). Chains nest, so it slots in as a single command.
	out.AddCommand(newDetectionChain("compliance-detection", m.config, m.bigqueryClient, m.genaiModel, m.promptTemplate))

	m.chain = out
}

// NewComplianceWorkflow is the constructor for the ComplianceWorkflow. It
// compiles the prompt template and initializes the command chain.
//
// Inputs:
//   - config: The application's overall configuration.
//   - serviceClients: A struct containing initialized clients for GCP services.
//   - analyzerModelName: The configured analyzer model to use (e.g. "compliance").
//
// Returns:
//   - A pointer to a newly created and fully initialized ComplianceWorkflow.
func NewComplianceWorkflow(
	config *cloud.Config,
	serviceClients *cloud.ServiceClients,
	analyzerModelName string) *ComplianceWorkflow {

	promptTemplate, err := template.New("compliance-template").Parse(compliancePromptText(config))
	if err != nil {
		panic(err) // The app cannot run without a valid prompt template.
	}

	pipeline := &ComplianceWorkflow{
		BaseCommand:    *cor.NewBaseCommand("compliance-workflow"),
		config:         config,
		storageClient:  serviceClients.StorageClient,
		bigqueryClient: serviceClients.BigQueryClient,
		genaiModel:     serviceClients.AnalyzerModels[analyzerModelName],
		promptTemplate: promptTemplate,
	}
	pipeline.initializeChain()
	return pipeline
}

// compliancePromptText returns the configured prompt template text, falling
// back to the built-in default when the configuration leaves it empty.
func compliancePromptText(config *cloud.Config) string {
	if len(config.PromptTemplates.Compliance) > 0 {
		return config.PromptTemplates.Compliance
	}
	return commands.DefaultCompliancePromptTemplate
}
