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
// command that renders the compliance review prompt for a video.
//
// Logic Flow:
// The prompt is the contract between this service and the model: it carries
// the full classification guidelines verbatim, the fixed list of compliance
// categories, the expected JSON shape, and the video title. Rendering is a
// pure transformation of the analysis request plus configuration into a
// string, so the same request always produces the same prompt.
//
//  1. It retrieves the `model.AnalysisRequest` from the context, which holds
//     the video title and the guidelines text to review against.
//  2. It builds the template parameters: the guidelines passed through
//     verbatim (never summarized or trimmed), the numbered category list,
//     a well-formed example verdict (few-shot prompting), and the title.
//  3. It executes the Go template and places the resulting prompt string
//     into the context for the detector command.
package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/jaycherian/gcp-go-video-compliance/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/model"
)

// DefaultCompliancePromptTemplate is the built-in review prompt. A deployment
// can override it through the prompt template configuration section; the
// substitution vocabulary stays the same either way.
const DefaultCompliancePromptTemplate = `Objective:
Conduct a compliance review based on the provided Film Classification Guidelines to ensure the video meets the standards/regulations.

Film Classification Guidelines:
{{.GUIDELINES}}

Content Review:
Assess the content for compliance with the guidelines on appropriateness and permissible content, as outlined in the provided guidelines.
Specifically, focus on identifying the following categories of compliance issues:
{{.CATEGORIES}}

Expected Output:
Provide a structured report with detailed descriptions of any compliance issues, including:
- Timecodes for scenes containing compliance issues.
- The category of the compliance issue (e.g., Theme, Violence, Sex, Nudity, Language, Drug and Substance Abuse, Horror).
- A brief summary of the content in the video.
- The primary speaking language(s) in the video.
- A final suggestion for the content rating of the video (e.g., G, PG, PG13, NC16, M18, R21) based on the guidelines.
- A brief rationale for the suggested content rating, referencing specific sections from the guidelines.

Special Instructions:
Follow the provided Film Classification Guidelines closely when detecting potential violations that could affect the content rating or distribution.
Rate each compliance issue on a threshold scale from 1-5 (5 indicates the highest severity or confidence).
Provide a clear and concise content rating suggestion based on the classification code (G, PG, PG13, NC16, M18, R21) and include a brief rationale for the suggestion, referencing relevant sections from the guidelines.

Please return the result in the following JSON format:
{
    "is_compliance_issues": (true or false),
    "compliance_issues": [
        {
            "timecode": "HH:MM:SS",
            "category": "Category of the compliance issue",
            "description": "Detailed description of the issue",
            "threshold": (1-5)
        }
    ],
    "final_suggestion": "A brief summary suggestion (around 10 words)",
    "content_summary": "A brief summary of the content in the video",
    "speaking_language": "The primary speaking language(s) in the video",
    "content_rating": "The suggested content rating for the video (e.g., G, PG, PG13, NC16, M18, R21)",
    "rating_rationale": "A brief rationale for the suggested content rating, referencing specific sections from the guidelines"
}

Here is an example of a well formed response:
{{.EXAMPLE_JSON}}

If you are unsure about any information, please do not make assumptions. Return the result in the specified JSON format.

Video: {{.VIDEO_TITLE}}
`

// GetAnalysisRequestParamName returns the canonical context key under which
// the analysis request travels through a workflow. Using a function for this
// ensures consistency across the commands that need to access it.
func GetAnalysisRequestParamName() string {
	return "__ANALYSIS_REQUEST__"
}

// CompliancePromptBuilder is a command that renders the compliance review
// prompt for a single video from the analysis request and configuration.
type CompliancePromptBuilder struct {
	cor.BaseCommand
	template *template.Template // The parsed Go template for the prompt.
}

// NewCompliancePromptBuilder is the constructor for the CompliancePromptBuilder command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - promptTemplate: The parsed Go template for the review prompt.
//
// Outputs:
//   - *CompliancePromptBuilder: A pointer to the newly instantiated command.
func NewCompliancePromptBuilder(name string, promptTemplate *template.Template) *CompliancePromptBuilder {
	return &CompliancePromptBuilder{BaseCommand: *cor.NewBaseCommand(name), template: promptTemplate}
}

// IsExecutable checks that the analysis request is present in the context.
func (c *CompliancePromptBuilder) IsExecutable(context cor.Context) bool {
	return context != nil &&
		context.Get(GetAnalysisRequestParamName()) != nil &&
		context.GetContext() != nil
}

// GenerateParams creates the map of dynamic data injected into the prompt template.
//
// Inputs:
//   - req: The analysis request carrying the title and guidelines text.
//
// Outputs:
//   - map[string]interface{}: A map of keys and values for template substitution.
func (c *CompliancePromptBuilder) GenerateParams(req *model.AnalysisRequest) map[string]interface{} {
	params := make(map[string]interface{})

	// The guidelines are regulatory text; pass them through verbatim.
	params["GUIDELINES"] = req.Guidelines

	// Render the fixed category list as the numbered form the reviewers use.
	var catBuilder strings.Builder
	for i, cat := range model.ComplianceCategories {
		fmt.Fprintf(&catBuilder, "%d. %s\n", i+1, cat)
	}
	params["CATEGORIES"] = strings.TrimRight(catBuilder.String(), "\n")

	// Provide a complete, well-formed JSON example in the prompt. This
	// few-shot technique significantly improves the structure of the
	// model's output.
	exampleResult, _ := json.Marshal(model.GetExampleResult())
	params["EXAMPLE_JSON"] = string(exampleResult)

	params["VIDEO_TITLE"] = req.Title
	return params
}

// Execute renders the prompt and places it into the context.
//
// Inputs:
//   - context: The shared `cor.Context` for this workflow execution.
func (c *CompliancePromptBuilder) Execute(context cor.Context) {
	req := context.Get(GetAnalysisRequestParamName()).(*model.AnalysisRequest)

	var buffer bytes.Buffer
	err := c.template.Execute(&buffer, c.GenerateParams(req))
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("failed to execute prompt template: %w", err))
		return
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(c.GetOutputParam(), buffer.String())
}
