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
	"strings"
	"testing"
	"text/template"

	"github.com/jaycherian/gcp-go-video-compliance/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderPrompt(t *testing.T, req *model.AnalysisRequest) string {
	t.Helper()
	tmpl, err := template.New("compliance").Parse(DefaultCompliancePromptTemplate)
	require.NoError(t, err)

	cmd := NewCompliancePromptBuilder("prompt-builder", tmpl)
	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(context.Background())
	chainCtx.Add(GetAnalysisRequestParamName(), req)

	require.True(t, cmd.IsExecutable(chainCtx))
	cmd.Execute(chainCtx)
	require.False(t, chainCtx.HasErrors())

	out, ok := chainCtx.Get(cmd.GetOutputParam()).(string)
	require.True(t, ok)
	return out
}

func TestPromptBuilderEmbedsGuidelinesVerbatim(t *testing.T) {
	guidelines := "Section 4.2: Depictions of violence must be brief.\n\nSection 7: Coarse language is restricted."
	prompt := renderPrompt(t, &model.AnalysisRequest{
		Title:      "Night Shift",
		Guidelines: guidelines,
	})

	// Regulatory text goes in untouched, and the title is named at the end.
	assert.Contains(t, prompt, guidelines)
	assert.Contains(t, prompt, "Video: Night Shift")
}

func TestPromptBuilderListsAllCategoriesInOrder(t *testing.T) {
	prompt := renderPrompt(t, &model.AnalysisRequest{Title: "t", Guidelines: "g"})

	last := -1
	for _, cat := range model.ComplianceCategories {
		idx := strings.Index(prompt, cat)
		require.GreaterOrEqual(t, idx, 0, "category %q missing from prompt", cat)
		assert.Greater(t, idx, last, "category %q out of order", cat)
		last = idx
	}
	assert.Contains(t, prompt, "1. Theme")
	assert.Contains(t, prompt, "7. Horror")
}

func TestPromptBuilderIsDeterministic(t *testing.T) {
	req := &model.AnalysisRequest{Title: "Same Input", Guidelines: "Same guidelines."}
	first := renderPrompt(t, req)
	second := renderPrompt(t, req)
	assert.Equal(t, first, second)
}

func TestPromptBuilderRequiresRequest(t *testing.T) {
	tmpl, err := template.New("compliance").Parse(DefaultCompliancePromptTemplate)
	require.NoError(t, err)
	cmd := NewCompliancePromptBuilder("prompt-builder", tmpl)

	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(context.Background())
	assert.False(t, cmd.IsExecutable(chainCtx))
}
