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

package commands

import (
	"context"
	"errors"
	"testing"

	"github.com/jaycherian/gcp-go-video-compliance/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/model"
	test "github.com/jaycherian/gcp-go-video-compliance/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validVerdict = `{
  "is_compliance_issues": true,
  "compliance_issues": [
    {"timecode": "00:01:25", "category": "Violence", "description": "A brawl with visible injuries.", "threshold": 3},
    {"timecode": "00:04:10", "category": "Language", "description": "Repeated coarse language.", "threshold": 2}
  ],
  "final_suggestion": "Suitable for mature audiences with an NC16 rating",
  "content_summary": "A crime drama set in a port city.",
  "speaking_language": "English",
  "content_rating": "NC16",
  "rating_rationale": "Violence and language exceed PG13 limits per section 4."
}`

func TestParseComplianceResultPreservesFieldsVerbatim(t *testing.T) {
	result, err := ParseComplianceResult(validVerdict)
	require.NoError(t, err)

	assert.True(t, result.IsComplianceIssues)
	require.Len(t, result.ComplianceIssues, 2)
	// Issue order and values come straight from the document.
	assert.Equal(t, "00:01:25", result.ComplianceIssues[0].Timecode)
	assert.Equal(t, "Violence", result.ComplianceIssues[0].Category)
	assert.Equal(t, 3, result.ComplianceIssues[0].Threshold)
	assert.Equal(t, "Language", result.ComplianceIssues[1].Category)
	assert.Equal(t, "NC16", result.ContentRating)
	assert.Equal(t, "English", result.SpeakingLanguage)
}

func TestParseComplianceResultAcceptsReferenceVerdict(t *testing.T) {
	result, err := ParseComplianceResult(test.GetTestVerdictJSON())
	require.NoError(t, err)
	assert.Equal(t, "NC16", result.ContentRating)
	require.Len(t, result.ComplianceIssues, 1)
	assert.Equal(t, "Violence", result.ComplianceIssues[0].Category)
}

func TestParseComplianceResultHandlesFencedInput(t *testing.T) {
	fenced := "```json\n" + validVerdict + "\n```"
	plain, err := ParseComplianceResult(validVerdict)
	require.NoError(t, err)
	unfenced, err := ParseComplianceResult(fenced)
	require.NoError(t, err)
	assert.Equal(t, plain, unfenced)
}

func TestParseComplianceResultMalformedJSON(t *testing.T) {
	_, err := ParseComplianceResult(`{"is_compliance_issues": tru`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedJSON))
}

func TestParseComplianceResultSchemaMismatch(t *testing.T) {
	// Missing content_rating, which the schema requires.
	missing := `{
	  "is_compliance_issues": false,
	  "final_suggestion": "ok",
	  "content_summary": "a calm documentary",
	  "speaking_language": "Mandarin",
	  "rating_rationale": "no issues"
	}`
	_, err := ParseComplianceResult(missing)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaMismatch))

	// Wrong threshold type inside an issue.
	badIssue := `{
	  "is_compliance_issues": true,
	  "compliance_issues": [{"timecode": "00:00:10", "category": "Horror", "description": "jump scare", "threshold": "high"}],
	  "final_suggestion": "ok",
	  "content_summary": "s",
	  "speaking_language": "English",
	  "content_rating": "PG",
	  "rating_rationale": "r"
	}`
	_, err = ParseComplianceResult(badIssue)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaMismatch))
}

func TestParseComplianceResultAcceptsFlaggedWithoutIssues(t *testing.T) {
	// The flag and the issue list are stored as-is; consistency between
	// them is the reviewer's call, not the parser's.
	verdict := `{
	  "is_compliance_issues": true,
	  "compliance_issues": [],
	  "final_suggestion": "review manually",
	  "content_summary": "ambiguous content",
	  "speaking_language": "English",
	  "content_rating": "PG13",
	  "rating_rationale": "borderline scenes"
	}`
	result, err := ParseComplianceResult(verdict)
	require.NoError(t, err)
	assert.True(t, result.IsComplianceIssues)
	assert.Empty(t, result.ComplianceIssues)
}

func TestComplianceResultParserStampsTitle(t *testing.T) {
	cmd := NewComplianceResultParser("verdict-parser", "__verdict__")
	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(context.Background())
	chainCtx.Add(GetAnalysisRequestParamName(), &model.AnalysisRequest{Title: "Harbor Lights"})
	chainCtx.Add(cmd.GetInputParam(), validVerdict)

	cmd.Execute(chainCtx)
	require.False(t, chainCtx.HasErrors())

	result, ok := chainCtx.Get("__verdict__").(*model.ComplianceResult)
	require.True(t, ok)
	assert.Equal(t, "Harbor Lights", result.VideoTitle)
	// The parsed verdict is also piped to the next command.
	assert.Equal(t, result, chainCtx.Get(cor.CtxOut))
}

func TestComplianceResultParserRecordsErrors(t *testing.T) {
	cmd := NewComplianceResultParser("verdict-parser", "__verdict__")
	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(context.Background())
	chainCtx.Add(GetAnalysisRequestParamName(), &model.AnalysisRequest{Title: "t"})
	chainCtx.Add(cmd.GetInputParam(), "not json at all")

	cmd.Execute(chainCtx)
	assert.True(t, chainCtx.HasErrors())
	assert.Nil(t, chainCtx.Get("__verdict__"))
}
