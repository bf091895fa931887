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


// Package ai provides abstractions for the external AI services used during ingestion.
//
// The ingestion core treats both services as opaque functions:
//
//   - Embedder: embed(text) -> vector
//   - TableSummarizer: summarize(table_text) -> string
//   - AIProvider: aggregates both for convenient initialization
//
// # Implementation Packages
//
//   - ai/openai: Production implementation using OpenAI-compatible APIs
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// Public constructors (openai.NewProvider, openai.NewEmbedder, openai.NewSummarizer)
// return INTERFACE types. Mock constructors return CONCRETE types so tests can
// inject failures and assert call counts:
//
//	summarizer := mock.NewMockSummarizer()
//	summarizer.SummarizeFunc = func(ctx context.Context, text string, tc ai.TableContext) (string, error) {
//	    return "", errors.New("rate limited")
//	}
//	count := summarizer.CallCount()
//
// Retries, timeouts and fallbacks are NOT the responsibility of implementations
// in this package; the summarize adapter and the ingestion pipeline own them.
package ai
