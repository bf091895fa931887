// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package openai

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrEmptySummary is returned when the model answers without usable text.
var ErrEmptySummary = errors.New("model returned an empty summary")

// Summarizer implements ai.TableSummarizer using OpenAI-compatible chat APIs.
type Summarizer struct {
	client      llms.Model
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// newSummarizer is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newSummarizer(config *ai.Config) (*Summarizer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.SummarizerHost),
		openai.WithToken(config.APIToken),
		openai.WithModel(config.SummarizerModel),
	)
	if err != nil {
		return nil, err
	}

	return &Summarizer{
		client:      client,
		temperature: config.Temperature,
		maxTokens:   config.MaxSummaryTokens,
		logger:      slog.Default().With("component", "openai-summarizer"),
	}, nil
}

// NewSummarizer creates a new table summarizer using the provided configuration.
//
// Returns ai.TableSummarizer interface to enforce abstraction.
func NewSummarizer(config *ai.Config) (ai.TableSummarizer, error) {
	return newSummarizer(config)
}

// SummarizeTable asks the model for a short prose summary of a table.
// A single call is made; retries belong to the caller.
func (s *Summarizer) SummarizeTable(ctx context.Context, tableText string, tc ai.TableContext) (string, error) {
	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{
				llms.TextPart(summarySystemPrompt),
			},
		},
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(buildSummaryPrompt(tableText, tc)),
			},
		},
	}

	response, err := s.client.GenerateContent(ctx, content,
		llms.WithTemperature(s.temperature),
		llms.WithMaxTokens(s.maxTokens))
	if err != nil {
		s.logger.Warn("failed to generate table summary", "err", err)
		return "", err
	}

	if len(response.Choices) < 1 {
		return "", ErrEmptySummary
	}

	summary := cleanSummary(response.Choices[0].Content)
	if summary == "" {
		return "", ErrEmptySummary
	}

	s.logger.Debug("summarized table", "table_chars", len(tableText), "summary_chars", len(summary))
	return summary, nil
}
