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
// the chunked analysis variant for long videos.
//
// Logic Flow:
// A long video is cut into fixed-duration segments, each segment is reviewed
// independently and concurrently, and the per-segment verdicts are stitched
// back together. Because FFmpeg resets each chunk's timestamps to zero, a
// timecode inside a chunk verdict is local to that chunk; translating it to
// the full-video timeline is chunkIndex * chunkDuration + local offset.
//
//  1. The splitter command cuts the local file into ordered chunk files.
//  2. A worker pool uploads and reviews the chunks concurrently. Each
//     worker uploads its chunk to GCS, invokes the model with the shared
//     prompt, and validates the verdict with the same parser as the
//     single-pass workflow.
//  3. Each validated verdict has its issue timecodes rewritten to the
//     full-video timeline and is stamped with its chunk index and file.
//  4. The verdicts are sorted by chunk index, so the aggregate reads in
//     playback order.
package workflow

import (
	"bytes"
	goctx "context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"text/template"
	"time"

	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-video-compliance/internal/cloud"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ChunkedComplianceWorkflow orchestrates the split, the concurrent
// per-chunk reviews, and the reassembly of the verdicts.
type ChunkedComplianceWorkflow struct {
	cor.BaseCommand
	config          *cloud.Config
	storageClient   *storage.Client
	genaiModel      *cloud.GenerativeAIModel
	promptTemplate  *template.Template
	numberOfWorkers int
	splitter        *commands.VideoChunkSplitter
}

// NewChunkedComplianceWorkflow is the constructor for the chunked workflow.
//
// Inputs:
//   - config: The application's overall configuration.
//   - serviceClients: A struct containing initialized clients for GCP services.
//   - analyzerModelName: The configured analyzer model to use.
//
// Returns:
//   - A pointer to a newly created and fully initialized ChunkedComplianceWorkflow.
func NewChunkedComplianceWorkflow(
	config *cloud.Config,
	serviceClients *cloud.ServiceClients,
	analyzerModelName string) *ChunkedComplianceWorkflow {

	promptTemplate, err := template.New("chunk-compliance-template").Parse(compliancePromptText(config))
	if err != nil {
		panic(err)
	}

	workers := config.Application.ThreadPoolSize
	if workers < 1 {
		workers = 1
	}

	return &ChunkedComplianceWorkflow{
		BaseCommand:     *cor.NewBaseCommand("chunked-compliance-workflow"),
		config:          config,
		storageClient:   serviceClients.StorageClient,
		genaiModel:      serviceClients.AnalyzerModels[analyzerModelName],
		promptTemplate:  promptTemplate,
		numberOfWorkers: workers,
		splitter: commands.NewVideoChunkSplitter(
			"split-video-chunks",
			config.Chunking.FfmpegPath,
			config.Chunking.ChunkDurationInSeconds),
	}
}

// Execute satisfies the Command interface so the workflow can participate in
// chains; the verdict slice lands in the output parameter.
func (m *ChunkedComplianceWorkflow) Execute(context cor.Context) {
	req := context.Get(commands.GetAnalysisRequestParamName()).(*model.AnalysisRequest)
	results, err := m.Analyze(context.GetContext(), req)
	if err != nil {
		m.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(m.GetName(), err)
		return
	}
	m.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(m.GetOutputParam(), results)
}

// Analyze splits the video and reviews every chunk concurrently. All chunk
// verdicts must validate for the analysis to succeed; a single bad chunk
// fails the whole video rather than returning a partial report.
//
// Inputs:
//   - ctx: The Go context governing cancellation for the whole analysis.
//   - req: The analysis request for an acquired local video file.
//
// Outputs:
//   - []*model.ComplianceResult: One verdict per chunk, in chunk order.
//   - error: ErrAnalysisFailed when any step failed.
func (m *ChunkedComplianceWorkflow) Analyze(ctx goctx.Context, req *model.AnalysisRequest) ([]*model.ComplianceResult, error) {
	chainCtx := cor.NewBaseContext()
	defer chainCtx.Close()
	chainCtx.SetContext(ctx)
	chainCtx.Add(commands.GetAnalysisRequestParamName(), req)
	chainCtx.Add(cor.CtxIn, req)

	m.splitter.Execute(chainCtx)
	if chainCtx.HasErrors() {
		for _, e := range chainCtx.GetErrors() {
			slog.Error("chunk split failed", "title", req.Title, "error", e)
		}
		return nil, ErrAnalysisFailed
	}
	chunks := chainCtx.Get(m.splitter.GetOutputParam()).([]string)

	// Every chunk sees the same prompt; only the video reference differs.
	promptBuilder := commands.NewCompliancePromptBuilder("build-chunk-prompt", m.promptTemplate)
	var promptBuf bytes.Buffer
	if err := m.promptTemplate.Execute(&promptBuf, promptBuilder.GenerateParams(req)); err != nil {
		slog.Error("chunk prompt render failed", "title", req.Title, "error", err)
		return nil, ErrAnalysisFailed
	}
	prompt := promptBuf.String()

	var wg sync.WaitGroup
	jobs := make(chan *chunkJob, len(chunks))
	results := make(chan *chunkResponse, len(chunks))

	for w := 0; w < m.numberOfWorkers; w++ {
		wg.Add(1)
		go m.chunkWorker(jobs, results, &wg)
	}

	for i, chunkPath := range chunks {
		jobCtx, span := m.Tracer.Start(ctx, fmt.Sprintf("%s_chunk_%d", m.GetName(), i))
		span.SetAttributes(
			attribute.Int("chunk_index", i),
			attribute.String("chunk_file", chunkPath),
		)
		jobs <- &chunkJob{
			ctx:        jobCtx,
			span:       span,
			index:      i,
			path:       chunkPath,
			prompt:     prompt,
			request:    req,
			objectName: fmt.Sprintf("%s/%s", req.VideoID, commands.ObjectNameForPath(chunkPath)),
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	verdicts := make([]*model.ComplianceResult, 0, len(chunks))
	failed := false
	for r := range results {
		if r.err != nil {
			failed = true
			slog.Error("chunk analysis failed", "title", req.Title, "chunk", r.index, "error", r.err)
			continue
		}
		verdicts = append(verdicts, r.result)
	}
	if failed {
		m.GetErrorCounter().Add(ctx, 1)
		return nil, ErrAnalysisFailed
	}

	// Workers finish in whatever order the model answers; restore playback order.
	sort.Slice(verdicts, func(i, j int) bool { return verdicts[i].ChunkIndex < verdicts[j].ChunkIndex })

	m.GetSuccessCounter().Add(ctx, 1)
	return verdicts, nil
}

// chunkJob carries everything one worker needs to review a single chunk.
type chunkJob struct {
	ctx        goctx.Context
	span       trace.Span
	index      int
	path       string
	prompt     string
	request    *model.AnalysisRequest
	objectName string
}

// chunkResponse carries one chunk's verdict or failure back to the collector.
type chunkResponse struct {
	index  int
	result *model.ComplianceResult
	err    error
}

// chunkWorker is the function each concurrent goroutine runs: it uploads
// the chunk, invokes the model, validates the verdict, and translates the
// timecodes to the full-video timeline.
func (m *ChunkedComplianceWorkflow) chunkWorker(jobs <-chan *chunkJob, results chan<- *chunkResponse, wg *sync.WaitGroup) {
	defer wg.Done()

	for j := range jobs {
		result, err := m.analyzeChunk(j)
		if err != nil {
			j.span.SetStatus(codes.Error, "chunk analysis failed")
		} else {
			j.span.SetStatus(codes.Ok, "completed chunk")
		}
		j.span.End()
		results <- &chunkResponse{index: j.index, result: result, err: err}
	}
}

// analyzeChunk runs the full review for one chunk file.
func (m *ChunkedComplianceWorkflow) analyzeChunk(j *chunkJob) (*model.ComplianceResult, error) {
	if err := m.uploadChunk(j.ctx, j.path, j.objectName); err != nil {
		return nil, fmt.Errorf("chunk %d upload failed: %w", j.index, err)
	}

	uri := fmt.Sprintf("gs://%s/%s", m.config.Storage.VideoBucket, j.objectName)
	contents := cloud.NewVideoPromptContents(j.prompt, uri, j.request.MIMEType)

	temperature := float32(0)
	if m.genaiModel.GenerativeContentConfig.Temperature != nil {
		temperature = *m.genaiModel.GenerativeContentConfig.Temperature
	}
	out, err := m.genaiModel.GenerateWithRetry(j.ctx, contents, cloud.GenerateOptions{
		MaxRetries:   m.config.Retry.MaxRetries,
		InitialDelay: time.Duration(m.config.Retry.InitialDelayInSeconds) * time.Second,
		Temperature:  temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("chunk %d detection failed: %w", j.index, err)
	}

	result, err := commands.ParseComplianceResult(out)
	if err != nil {
		return nil, fmt.Errorf("chunk %d verdict invalid: %w", j.index, err)
	}

	result.VideoTitle = j.request.Title
	result.ChunkIndex = j.index
	result.ChunkFile = j.objectName

	// Chunk timecodes restart at zero; shift them onto the full-video timeline.
	for i := range result.ComplianceIssues {
		global, err := model.ToGlobalTimecode(result.ComplianceIssues[i].Timecode, j.index, m.config.Chunking.ChunkDurationInSeconds)
		if err != nil {
			slog.Warn("unparseable chunk timecode left untranslated",
				"title", j.request.Title, "chunk", j.index, "timecode", result.ComplianceIssues[i].Timecode)
			continue
		}
		result.ComplianceIssues[i].Timecode = global
	}

	return result, nil
}

// uploadChunk streams one chunk file into the analysis bucket.
func (m *ChunkedComplianceWorkflow) uploadChunk(ctx goctx.Context, path string, objectName string) error {
	dat, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = dat.Close()
	}()

	writer := m.storageClient.Bucket(m.config.Storage.VideoBucket).Object(objectName).NewWriter(ctx)
	if _, err := io.Copy(writer, dat); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}
