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

package cloud

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// fakeStep scripts one attempt of the fake generator.
type fakeStep struct {
	text string
	err  error
}

// fakeGenerator returns scripted responses and records the generation
// config of every call so tests can inspect per-attempt temperatures.
type fakeGenerator struct {
	mu      sync.Mutex
	steps   []fakeStep
	calls   []*genai.GenerateContentConfig
	callIdx int
}

func (f *fakeGenerator) GenerateContent(_ context.Context, _ string, _ []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, config)
	step := f.steps[len(f.steps)-1]
	if f.callIdx < len(f.steps) {
		step = f.steps[f.callIdx]
	}
	f.callIdx++
	if step.err != nil {
		return nil, step.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: step.text}}}},
		},
	}, nil
}

func (f *fakeGenerator) attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestModel(generator ContentGenerator) *GenerativeAIModel {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.5),
		TopP:            genai.Ptr[float32](0.95),
		CandidateCount:  1,
		MaxOutputTokens: 8190,
		SafetySettings:  DefaultSafetySettings,
	}
	return NewGenerativeAIModel(config, "test-model", generator, 100)
}

func TestGenerateWithRetryQuotaBackoffThenSuccess(t *testing.T) {
	fake := &fakeGenerator{steps: []fakeStep{
		{err: errors.New("rpc error: Quota exceeded for generate requests")},
		{text: `{"ok": true}`},
	}}
	m := newTestModel(fake)

	initialDelay := 20 * time.Millisecond
	start := time.Now()
	out, err := m.GenerateWithRetry(context.Background(), nil, GenerateOptions{
		MaxRetries:   2,
		InitialDelay: initialDelay,
		Temperature:  0.5,
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, out)
	assert.Equal(t, 2, fake.attempts())
	// The retry waits at least initial*2^1 before the second attempt.
	assert.GreaterOrEqual(t, elapsed, 2*initialDelay)
	// Quota retries keep the caller's temperature.
	assert.Equal(t, float32(0.5), *fake.calls[1].Temperature)
}

func TestGenerateWithRetryProhibitedContentIsTerminal(t *testing.T) {
	fake := &fakeGenerator{steps: []fakeStep{
		{err: errors.New("blocked: PROHIBITED_CONTENT")},
	}}
	m := newTestModel(fake)

	_, err := m.GenerateWithRetry(context.Background(), nil, GenerateOptions{
		MaxRetries:   5,
		InitialDelay: time.Millisecond,
		Temperature:  0.5,
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProhibitedContent))
	// A safety block is never retried, whatever the retry budget.
	assert.Equal(t, 1, fake.attempts())
}

func TestGenerateWithRetryFallsBackToTemperatureZero(t *testing.T) {
	fake := &fakeGenerator{steps: []fakeStep{
		{err: errors.New("candidate missing required fields")},
		{text: "```json\n{\"ok\": true}\n```"},
	}}
	m := newTestModel(fake)

	out, err := m.GenerateWithRetry(context.Background(), nil, GenerateOptions{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		Temperature:  0.5,
	})

	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, out)
	require.Equal(t, 2, fake.attempts())
	assert.Equal(t, float32(0.5), *fake.calls[0].Temperature)
	assert.Equal(t, float32(0), *fake.calls[1].Temperature)
}

func TestGenerateWithRetrySingleAttemptGenericFailure(t *testing.T) {
	fake := &fakeGenerator{steps: []fakeStep{
		{err: errors.New("internal error")},
	}}
	m := newTestModel(fake)

	// With a budget of one attempt there is no fallback of any kind.
	_, err := m.GenerateWithRetry(context.Background(), nil, GenerateOptions{
		MaxRetries:   1,
		InitialDelay: time.Millisecond,
		Temperature:  0.5,
	})

	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrProhibitedContent))
	assert.Equal(t, 1, fake.attempts())
}

func TestGenerateWithRetryZeroBudgetExhausts(t *testing.T) {
	fake := &fakeGenerator{steps: []fakeStep{{text: "never called"}}}
	m := newTestModel(fake)

	_, err := m.GenerateWithRetry(context.Background(), nil, GenerateOptions{
		MaxRetries:   0,
		InitialDelay: time.Millisecond,
		Temperature:  0.5,
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRetriesExhausted))
	assert.Equal(t, 0, fake.attempts())
}

func TestStripCodeFences(t *testing.T) {
	fenced := "```json\n{\"a\": 1}\n```"
	assert.Equal(t, `{"a": 1}`, StripCodeFences(fenced))
	// Idempotent on already clean text.
	assert.Equal(t, `{"a": 1}`, StripCodeFences(StripCodeFences(fenced)))
	assert.Equal(t, `{"a": 1}`, StripCodeFences(`{"a": 1}`))
	assert.Equal(t, "", StripCodeFences("   \n"))
}

func TestQuotaClassification(t *testing.T) {
	assert.True(t, IsQuotaExceeded(errors.New("Quota exceeded for model")))
	assert.False(t, IsQuotaExceeded(errors.New("internal error")))
	assert.False(t, IsQuotaExceeded(nil))

	assert.True(t, IsProhibitedContent(errors.New("finish reason: PROHIBITED_CONTENT")))
	assert.False(t, IsProhibitedContent(errors.New("Quota exceeded")))
}
