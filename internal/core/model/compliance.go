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

// Package model defines the core data structures for the application.
// This file contains the structures that describe a compliance analysis:
// the request that enters a workflow, the per-issue findings the model
// reports, and the full verdict for a video (or a single chunk of one).
//
// The JSON field names on ComplianceIssue and ComplianceResult are the wire
// contract with the generative model. The prompt instructs the model to
// return exactly this shape, and the result parser validates responses
// against it, so these tags must not be changed casually.
package model

// ComplianceCategories is the fixed, ordered list of issue categories the
// analyzer asks the model to report on. The order is part of the prompt
// contract: rendering the same guidelines twice must produce the same
// prompt bytes, so a slice is used here rather than a map.
var ComplianceCategories = []string{
	"Theme",
	"Violence",
	"Sex",
	"Nudity",
	"Language",
	"Drug and Substance Abuse (Including Psychoactive Substance Abuse)",
	"Horror",
}

// ContentRatings lists the classification codes the model may suggest,
// from least to most restricted.
var ContentRatings = []string{"G", "PG", "PG13", "NC16", "M18", "R21"}

// AnalysisRequest carries a video through a compliance workflow. It is
// assembled by the acquisition layer (upload or URL download) or by the
// storage-trigger listener, and read by the commands in the chain.
type AnalysisRequest struct {
	VideoID    string // Opaque identifier assigned at acquisition time.
	Title      string // Human-readable title, stamped onto the verdict.
	LocalPath  string // Path to the video on local disk. Empty for trigger-driven runs.
	MIMEType   string // Detected MIME type of the video (e.g. "video/mp4").
	Guidelines string // The classification guidelines text to review against. Passed through verbatim.
}

// ComplianceIssue is a single timestamped finding reported by the model.
// Fields are carried through from the model's response verbatim: the
// parser checks shape, not semantics, so an out-of-range threshold or an
// unknown category survives as-is for a human reviewer to judge.
type ComplianceIssue struct {
	Timecode    string `json:"timecode" bigquery:"timecode"`       // Position of the scene, "HH:MM:SS".
	Category    string `json:"category" bigquery:"category"`       // One of the compliance categories.
	Description string `json:"description" bigquery:"description"` // What the model saw.
	Threshold   int    `json:"threshold" bigquery:"threshold"`     // Severity/confidence, 1 (lowest) to 5 (highest).
}

// ComplianceResult is the structured verdict for one video, or for one
// chunk of a video in chunked mode. The issue slice preserves the order
// in which the model emitted the findings.
//
// IsComplianceIssues and ComplianceIssues are reported independently by
// the model and are not reconciled here: a result claiming issues with an
// empty list is stored exactly as returned.
type ComplianceResult struct {
	IsComplianceIssues bool               `json:"is_compliance_issues" bigquery:"is_compliance_issues"`
	ComplianceIssues   []*ComplianceIssue `json:"compliance_issues" bigquery:"compliance_issues"`
	FinalSuggestion    string             `json:"final_suggestion" bigquery:"final_suggestion"`
	ContentSummary     string             `json:"content_summary" bigquery:"content_summary"`
	SpeakingLanguage   string             `json:"speaking_language" bigquery:"speaking_language"`
	ContentRating      string             `json:"content_rating" bigquery:"content_rating"`
	RatingRationale    string             `json:"rating_rationale" bigquery:"rating_rationale"`

	// Fields below are stamped by the caller after validation, never by the model.
	VideoTitle string `json:"video_title,omitempty" bigquery:"video_title"`
	ChunkIndex int    `json:"chunk_index,omitempty" bigquery:"chunk_index"` // Zero-based position in chunked mode.
	ChunkFile  string `json:"chunk_file,omitempty" bigquery:"chunk_file"`  // Chunk object name in chunked mode.
}

// Analysis is the in-memory record of a completed compliance run, keyed by
// the opaque video id in the analysis service registry.
type Analysis struct {
	VideoID      string              `json:"video_id"`
	Title        string              `json:"title"`
	Bucket       string              `json:"bucket,omitempty"`
	ObjectName   string              `json:"object_name,omitempty"`
	Result       *ComplianceResult   `json:"result,omitempty"`
	ChunkResults []*ComplianceResult `json:"chunk_results,omitempty"`
	ResultFile   string              `json:"result_file,omitempty"`
}
