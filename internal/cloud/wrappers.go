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

// Package cloud provides components for interacting with Google Cloud services.
// This file implements the rate-limited, retry-aware wrapper around the
// Generative AI client that every model invocation in the service goes
// through.
//
// The retry policy distinguishes three failure classes, checked in a fixed
// order on every failed attempt:
//
//  1. Quota exhaustion. Retried with exponential backoff plus up to one
//     second of jitter, at the same temperature, while attempts remain.
//  2. Prohibited content. The safety filters blocked the material; the
//     call is abandoned immediately without consuming a retry.
//  3. Anything else. Treated as possible sampling nondeterminism: if the
//     temperature is above zero and attempts remain, one more attempt is
//     made at temperature zero after a short fixed pause. Otherwise the
//     attempt is terminal.
//
// A run that exhausts its attempts yields no text at all; partial or
// unvalidated output is never returned.
//
// Structs:
//   - GenerativeAIModel: The configured model handle plus its rate limiter
//     and telemetry counters.
//   - GenerateOptions: The per-invocation retry policy.
//
// Functions:
//   - NewGenerativeAIModel: Constructor wiring config, generator, and limiter.
//   - GenerateWithRetry: The invocation loop described above.
//   - StripCodeFences: Best-effort removal of markdown fences from responses.
package cloud

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// ContentGenerator is the slice of the genai client the wrapper needs.
// *genai.Models satisfies it; tests substitute scripted fakes.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenerateOptions is the retry policy for a single invocation. MaxRetries
// bounds total attempts (a value of 1 means exactly one attempt and no
// retry of any kind). Temperature seeds the first attempt and may be
// forced to zero by the fallback branch.
type GenerateOptions struct {
	MaxRetries   int
	InitialDelay time.Duration
	Temperature  float32
}

// GenerativeAIModel decorates a generative model with rate limiting,
// the retry policy above, and token accounting. It is built once per
// configured model at startup and shared by all workflows.
type GenerativeAIModel struct {
	GenerativeContentConfig *genai.GenerateContentConfig // Base generation settings; temperature is overridden per attempt.
	ModelName               string
	Generator               ContentGenerator
	RateLimit               *rate.Limiter

	inputTokenCounter  metric.Int64Counter
	outputTokenCounter metric.Int64Counter
	retryCounter       metric.Int64Counter
}

// NewGenerativeAIModel is the constructor for GenerativeAIModel.
//
// Inputs:
//   - config: The base genai.GenerateContentConfig for this model.
//   - name: The Vertex AI model name (e.g. "gemini-1.5-pro").
//   - generator: The content generator to call, normally client.Models.
//   - requestsPerSecond: The allowed request rate against this model.
//
// Outputs:
//   - *GenerativeAIModel: A pointer to the newly created wrapper.
func NewGenerativeAIModel(config *genai.GenerateContentConfig, name string, generator ContentGenerator, requestsPerSecond int) *GenerativeAIModel {
	if requestsPerSecond < 1 {
		requestsPerSecond = 1
	}
	meter := otel.Meter("github.com/jaycherian/gcp-go-video-compliance")
	out := &GenerativeAIModel{
		GenerativeContentConfig: config,
		ModelName:               name,
		Generator:               generator,
		RateLimit:               rate.NewLimiter(rate.Every(time.Second), requestsPerSecond),
	}
	out.inputTokenCounter, _ = meter.Int64Counter(fmt.Sprintf("%s.genai.token.input", name))
	out.outputTokenCounter, _ = meter.Int64Counter(fmt.Sprintf("%s.genai.token.output", name))
	out.retryCounter, _ = meter.Int64Counter(fmt.Sprintf("%s.genai.retry", name))
	return out
}

// GenerateWithRetry runs the model invocation loop for a single prompt.
// On success it returns the concatenated candidate text with markdown
// fences stripped; on failure it returns an error classifiable with
// errors.Is against ErrProhibitedContent and ErrRetriesExhausted.
//
// Inputs:
//   - ctx: Controls cancellation; backoff sleeps abort when it is done.
//   - contents: The multimodal prompt (instruction text plus video reference).
//   - opts: The retry policy for this invocation.
//
// Outputs:
//   - string: The cleaned response text.
//   - error: A terminal error when no text could be produced.
func (q *GenerativeAIModel) GenerateWithRetry(ctx context.Context, contents []*genai.Content, opts GenerateOptions) (string, error) {
	temperature := opts.Temperature
	retryCount := 0

	for retryCount < opts.MaxRetries {
		if err := q.RateLimit.Wait(ctx); err != nil {
			return "", err
		}

		resp, err := q.Generator.GenerateContent(ctx, q.ModelName, contents, q.configAtTemperature(temperature))
		if err == nil {
			if resp.UsageMetadata != nil {
				q.inputTokenCounter.Add(ctx, int64(resp.UsageMetadata.PromptTokenCount))
				q.outputTokenCounter.Add(ctx, int64(resp.UsageMetadata.CandidatesTokenCount))
			}
			return StripCodeFences(collectText(resp)), nil
		}

		switch {
		case IsQuotaExceeded(err) && retryCount < opts.MaxRetries-1:
			retryCount++
			q.retryCounter.Add(ctx, 1)
			delay := backoffDelay(opts.InitialDelay, retryCount)
			slog.Warn("model quota exceeded, backing off",
				"model", q.ModelName, "attempt", retryCount, "delay", delay.String())
			if err := sleepContext(ctx, delay); err != nil {
				return "", err
			}

		case IsProhibitedContent(err):
			slog.Warn("prohibited content detected, skipping video", "model", q.ModelName)
			return "", fmt.Errorf("model %s: %w", q.ModelName, ErrProhibitedContent)

		case temperature > 0 && retryCount < opts.MaxRetries-1:
			// Unclassified failure with a sampling temperature in play:
			// retry exactly once fully deterministic.
			temperature = 0
			retryCount++
			q.retryCounter.Add(ctx, 1)
			slog.Warn("generation failed, retrying at temperature zero",
				"model", q.ModelName, "error", err)
			if err := sleepContext(ctx, time.Second); err != nil {
				return "", err
			}

		default:
			return "", fmt.Errorf("generation failed for model %s: %w", q.ModelName, err)
		}
	}

	return "", fmt.Errorf("model %s: %w", q.ModelName, ErrRetriesExhausted)
}

// configAtTemperature clones the base generation config with the attempt's
// temperature. The base config is shared across goroutines and must not be
// mutated in place.
func (q *GenerativeAIModel) configAtTemperature(temperature float32) *genai.GenerateContentConfig {
	cfg := *q.GenerativeContentConfig
	cfg.Temperature = genai.Ptr(temperature)
	return &cfg
}

// backoffDelay computes initial * 2^attempt plus up to one second of jitter.
func backoffDelay(initial time.Duration, attempt int) time.Duration {
	backoff := time.Duration(float64(initial) * math.Pow(2, float64(attempt)))
	jitter := time.Duration(rand.Float64() * float64(time.Second))
	return backoff + jitter
}

// sleepContext pauses for d or until the context is canceled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// collectText concatenates the text parts of every candidate in the response.
func collectText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// StripCodeFences removes markdown code fences the model sometimes wraps
// around JSON output. The operation is idempotent and best-effort: already
// clean text passes through unchanged, and no JSON validation happens here.
func StripCodeFences(in string) string {
	out := strings.TrimSpace(in)
	out = strings.ReplaceAll(out, "```json", "")
	out = strings.ReplaceAll(out, "```", "")
	return strings.TrimSpace(out)
}
