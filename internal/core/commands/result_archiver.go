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
// command that archives validated compliance verdicts to BigQuery.
//
// Logic Flow:
// Once a verdict has passed validation it is archived for audit and later
// querying. The archive step is additive: a failure to write the row is
// recorded, but the verdict already held in the context remains the source
// of truth for the caller.
//
//  1. It retrieves the validated `model.ComplianceResult` from the context.
//  2. It gets a BigQuery `Inserter`, the streaming interface for the target
//     table, and sends the verdict with `Put`. The client library maps the
//     struct fields to table columns through the `bigquery` struct tags.
//  3. It performs error handling and updates telemetry counters, then
//     passes the verdict through unchanged.
package commands

import (
	"fmt"
	"log/slog"

	"cloud.google.com/go/bigquery"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/model"
)

// ResultArchiver is a command that saves a ComplianceResult to a BigQuery table.
type ResultArchiver struct {
	cor.BaseCommand
	client      *bigquery.Client // The client for interacting with the BigQuery service.
	dataset     string           // The name of the BigQuery dataset.
	table       string           // The name of the target table within the dataset.
	resultParam string           // The context key for the input `model.ComplianceResult` object.
}

// NewResultArchiver is the constructor for the ResultArchiver command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - client: An initialized *bigquery.Client.
//   - dataset: The name of the BigQuery dataset.
//   - table: The name of the target table.
//   - resultParam: The context parameter holding the verdict to archive.
//
// Outputs:
//   - *ResultArchiver: A pointer to the newly instantiated command.
func NewResultArchiver(name string, client *bigquery.Client, dataset string, table string, resultParam string) *ResultArchiver {
	return &ResultArchiver{BaseCommand: *cor.NewBaseCommand(name), client: client, dataset: dataset, table: table, resultParam: resultParam}
}

// IsExecutable overrides the default behavior to ensure that the verdict to
// be archived exists in the context before execution.
func (s *ResultArchiver) IsExecutable(context cor.Context) bool {
	return context != nil && context.Get(s.resultParam) != nil
}

// Execute streams the verdict row into BigQuery.
//
// Inputs:
//   - context: The shared `cor.Context` for this workflow execution.
func (s *ResultArchiver) Execute(context cor.Context) {
	result := context.Get(s.resultParam).(*model.ComplianceResult)

	i := s.client.Dataset(s.dataset).Table(s.table).Inserter()

	if err := i.Put(context.GetContext(), result); err != nil {
		slog.Error("failed to archive verdict to BigQuery", "title", result.VideoTitle, "error", err)
		s.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(s.GetName(), fmt.Errorf("bigquery insert failed for title '%s': %w", result.VideoTitle, err))
		return
	}

	s.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(cor.CtxOut, result)
	slog.Info("archived compliance verdict", "title", result.VideoTitle, "rating", result.ContentRating)
}
