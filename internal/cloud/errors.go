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
// This file classifies the errors returned by Generative AI calls into the
// three classes the retry engine distinguishes: quota exhaustion (retryable
// with backoff), prohibited content (terminal, never retried), and
// everything else (one determinism-fallback retry at temperature zero).
//
// Classification prefers structured error information (HTTP 429 from the
// REST transport, ResourceExhausted from gRPC) and falls back to substring
// matching on the trigger phrases the backends are known to emit. The
// trigger phrases are exported constants so the coupling to backend message
// text is visible in one place.
package cloud

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Trigger phrases used for substring classification when no structured
// error detail is available.
const (
	QuotaExceededIndicator     = "Quota exceeded"
	ProhibitedContentIndicator = "PROHIBITED_CONTENT"
)

// Sentinel errors returned by the retry engine. Callers use errors.Is to
// tell a safety block apart from plain exhaustion; both collapse to the
// same "no result" outcome at the workflow boundary.
var (
	// ErrProhibitedContent marks a response blocked by the safety filters.
	// It is terminal: the video is skipped without consuming retries.
	ErrProhibitedContent = errors.New("prohibited content detected by safety filters")

	// ErrRetriesExhausted marks an invocation that failed on every allowed attempt.
	ErrRetriesExhausted = errors.New("generation failed after exhausting retries")
)

// IsQuotaExceeded reports whether err represents model quota or rate-limit
// exhaustion. Structured codes are checked first, then the message text.
func IsQuotaExceeded(err error) bool {
	if err == nil {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		return true
	}
	if s, ok := status.FromError(err); ok && s.Code() == codes.ResourceExhausted {
		return true
	}
	return strings.Contains(err.Error(), QuotaExceededIndicator)
}

// IsProhibitedContent reports whether err represents a safety-filter block.
// The backends surface this as message text rather than a dedicated code.
func IsProhibitedContent(err error) bool {
	return err != nil && strings.Contains(err.Error(), ProhibitedContentIndicator)
}
