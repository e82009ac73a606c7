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

// Package model defines the data structures for the application. This file
// provides factory functions for hardcoded example instances of the data
// models.
//
// The example verdict is embedded into the compliance prompt so the model
// sees a concrete instance of the JSON shape it must return ("few-shot"
// prompting). It is also convenient test fixture data.
package model

// GetExampleResult creates a sample ComplianceResult used to show the
// generative model the expected output structure. Every field the parser
// requires is populated, including a nested issue, so the model sees the
// full shape rather than an empty skeleton.
//
// Outputs:
//   - *ComplianceResult: A pointer to a hardcoded verdict.
func GetExampleResult() *ComplianceResult {
	out := &ComplianceResult{
		IsComplianceIssues: true,
		ComplianceIssues:   make([]*ComplianceIssue, 0),
		FinalSuggestion:    "Rate PG13 for moderate sci-fi violence",
		ContentSummary:     "The crew of a transport ship evade an assassin sent to recapture a fugitive telepath.",
		SpeakingLanguage:   "English",
		ContentRating:      "PG13",
		RatingRationale:    "Moderate violence without gore is permitted at PG13 under the violence guidelines.",
	}
	out.ComplianceIssues = append(out.ComplianceIssues, &ComplianceIssue{
		Timecode:    "00:01:25",
		Category:    "Violence",
		Description: "A prolonged hand-to-hand fight in a crowded bar, no visible injury detail.",
		Threshold:   3,
	})
	return out
}
