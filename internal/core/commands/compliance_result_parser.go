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
// validation gate between raw model output and the rest of the system.
//
// Logic Flow:
// Model output is untrusted text until it passes through here. The parser
// distinguishes malformed JSON from well-formed JSON that does not match the
// verdict schema, because the two failure classes are reported differently.
// Validation is structural only: field values such as timecodes, categories,
// and ratings are stored exactly as the model produced them, and no semantic
// cross-checks (e.g. flag versus issue-list consistency) are applied.
//
//  1. It receives the raw verdict text from the detector command.
//  2. It strips any markdown code fences (idempotent, so text the retry
//     engine already cleaned passes through unchanged).
//  3. It checks JSON well-formedness, then validates the document against
//     the embedded verdict schema.
//  4. On success it unmarshals into a `model.ComplianceResult`, stamps the
//     video title from the analysis request, and places the struct into
//     the context.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jaycherian/gcp-go-video-compliance/internal/cloud"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/model"
	"github.com/xeipuuv/gojsonschema"
)

// Sentinel errors distinguishing the parser's failure classes.
var (
	// ErrMalformedJSON marks text that is not valid JSON at all.
	ErrMalformedJSON = errors.New("verdict is not valid JSON")

	// ErrSchemaMismatch marks valid JSON that does not conform to the
	// verdict schema (missing fields, wrong types).
	ErrSchemaMismatch = errors.New("verdict does not match the expected structure")

	// ErrUnexpected marks any other failure while processing the verdict.
	ErrUnexpected = errors.New("unexpected error parsing verdict")
)

// complianceResultSchema is the JSON Schema every verdict must satisfy.
// The issue list is the only optional top-level field: a clean video may
// omit it entirely. Value-level checks stay out of the schema on purpose;
// reviewers see what the model said, not a normalized version of it.
const complianceResultSchema = `{
  "type": "object",
  "required": [
    "is_compliance_issues",
    "final_suggestion",
    "content_summary",
    "speaking_language",
    "content_rating",
    "rating_rationale"
  ],
  "properties": {
    "is_compliance_issues": {"type": "boolean"},
    "compliance_issues": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["timecode", "category", "description", "threshold"],
        "properties": {
          "timecode": {"type": "string"},
          "category": {"type": "string"},
          "description": {"type": "string"},
          "threshold": {"type": "integer"}
        }
      }
    },
    "final_suggestion": {"type": "string"},
    "content_summary": {"type": "string"},
    "speaking_language": {"type": "string"},
    "content_rating": {"type": "string"},
    "rating_rationale": {"type": "string"}
  }
}`

// ParseComplianceResult validates and decodes a raw verdict string. It is
// shared by the parser command and the chunked workflow's workers, so both
// paths apply identical validation.
//
// Inputs:
//   - in: The raw response text from the model, with or without fences.
//
// Outputs:
//   - *model.ComplianceResult: The decoded verdict on success.
//   - error: One of the sentinel errors above, wrapped with detail.
func ParseComplianceResult(in string) (*model.ComplianceResult, error) {
	cleaned := cloud.StripCodeFences(in)

	if !json.Valid([]byte(cleaned)) {
		return nil, fmt.Errorf("%w: %.80q", ErrMalformedJSON, cleaned)
	}

	schemaLoader := gojsonschema.NewStringLoader(complianceResultSchema)
	documentLoader := gojsonschema.NewStringLoader(cleaned)
	validation, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpected, err)
	}
	if !validation.Valid() {
		var problems []string
		for _, desc := range validation.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrSchemaMismatch, strings.Join(problems, "; "))
	}

	result := &model.ComplianceResult{}
	if err := json.Unmarshal([]byte(cleaned), result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpected, err)
	}
	return result, nil
}

// ComplianceResultParser is a command that turns the raw verdict text into a
// validated `model.ComplianceResult` struct.
type ComplianceResultParser struct {
	cor.BaseCommand
}

// NewComplianceResultParser is the constructor for the ComplianceResultParser command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - outputParamName: The context key where the resulting struct will be stored.
//
// Outputs:
//   - *ComplianceResultParser: A pointer to the newly instantiated command.
func NewComplianceResultParser(name string, outputParamName string) *ComplianceResultParser {
	out := ComplianceResultParser{BaseCommand: *cor.NewBaseCommand(name)}
	out.OutputParamName = outputParamName
	return &out
}

// Execute validates the verdict text and enriches it with the video title.
//
// Inputs:
//   - context: The shared `cor.Context` for this workflow execution.
func (s *ComplianceResultParser) Execute(context cor.Context) {
	in := context.Get(s.GetInputParam()).(string)
	req := context.Get(GetAnalysisRequestParamName()).(*model.AnalysisRequest)

	result, err := ParseComplianceResult(in)
	if err != nil {
		s.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(s.GetName(), err)
		return
	}

	s.GetSuccessCounter().Add(context.GetContext(), 1)

	// The model only knows the title through the prompt; stamp it from the
	// request so the stored verdict is self-describing.
	result.VideoTitle = req.Title

	context.Add(s.GetOutputParam(), result)
	context.Add(cor.CtxOut, result)
}
