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
// command that invokes the generative model to review a video against the
// rendered compliance prompt.
//
// Logic Flow:
// This command is where the actual model call happens. Everything before it
// (upload, prompt rendering) prepares inputs; everything after it (parsing,
// archiving) consumes the raw verdict text it produces.
//
//  1. It receives the rendered prompt string from the previous command.
//  2. It retrieves the GCS object reference for the video from the context
//     and pairs it with the prompt into a single multimodal user turn.
//  3. It delegates the invocation to the rate-limited model wrapper, whose
//     retry engine handles quota backoff, safety blocks, and the
//     deterministic temperature-zero fallback.
//  4. On success it places the raw (fence-stripped) response text into the
//     context for the parser command.
package commands

import (
	"fmt"
	"time"

	"github.com/jaycherian/gcp-go-video-compliance/internal/cloud"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/cor"
)

// ComplianceDetector is a command that sends the prompt and video reference
// to the generative model and captures the raw verdict text.
type ComplianceDetector struct {
	cor.BaseCommand
	config            *cloud.Config            // Application configuration, source of the retry policy.
	generativeAIModel *cloud.GenerativeAIModel // The rate-limited generative model wrapper.
}

// NewComplianceDetector is the constructor for the ComplianceDetector command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - config: The application's configuration object.
//   - generativeAIModel: The rate-limited wrapper for the generative model.
//
// Outputs:
//   - *ComplianceDetector: A pointer to the newly instantiated command.
func NewComplianceDetector(
	name string,
	config *cloud.Config,
	generativeAIModel *cloud.GenerativeAIModel) *ComplianceDetector {
	return &ComplianceDetector{
		BaseCommand:       *cor.NewBaseCommand(name),
		config:            config,
		generativeAIModel: generativeAIModel,
	}
}

// IsExecutable checks that both the rendered prompt and the video's GCS
// reference are present in the context.
func (c *ComplianceDetector) IsExecutable(context cor.Context) bool {
	return context != nil &&
		context.Get(c.GetInputParam()) != nil &&
		context.Get(cloud.GetGCSObjectName()) != nil
}

// GenerateOptions derives the retry policy for one invocation from the
// configuration and the model's configured sampling temperature.
func (c *ComplianceDetector) GenerateOptions() cloud.GenerateOptions {
	temperature := float32(0)
	if c.generativeAIModel.GenerativeContentConfig.Temperature != nil {
		temperature = *c.generativeAIModel.GenerativeContentConfig.Temperature
	}
	return cloud.GenerateOptions{
		MaxRetries:   c.config.Retry.MaxRetries,
		InitialDelay: time.Duration(c.config.Retry.InitialDelayInSeconds) * time.Second,
		Temperature:  temperature,
	}
}

// Execute sends the multimodal request to the model and stores the raw
// response text in the context.
//
// Inputs:
//   - context: The shared `cor.Context` for this workflow execution.
func (c *ComplianceDetector) Execute(context cor.Context) {
	prompt := context.Get(c.GetInputParam()).(string)
	gcsObject := context.Get(cloud.GetGCSObjectName()).(*cloud.GCSObject)

	contents := cloud.NewVideoPromptContents(prompt, gcsObject.URI(), gcsObject.MIMEType)

	out, err := c.generativeAIModel.GenerateWithRetry(context.GetContext(), contents, c.GenerateOptions())
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("compliance detection failed for gs://%s/%s: %w", gcsObject.Bucket, gcsObject.Name, err))
		return
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(c.GetOutputParam(), out)
}
