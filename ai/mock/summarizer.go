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


package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/ai"
)

// MockSummarizer is a test double for ai.TableSummarizer.
type MockSummarizer struct {
	// SummarizeFunc is called by SummarizeTable if set.
	// If nil, uses default deterministic behavior.
	SummarizeFunc func(ctx context.Context, tableText string, tc ai.TableContext) (string, error)

	mu        sync.Mutex
	callCount int
}

// NewMockSummarizer creates a mock summarizer with default behavior.
// Note: Returns concrete type to allow test assertions.
func NewMockSummarizer() *MockSummarizer {
	return &MockSummarizer{}
}

// SummarizeTable describes the table by its row count and first line.
func (m *MockSummarizer) SummarizeTable(ctx context.Context, tableText string, tc ai.TableContext) (string, error) {
	m.mu.Lock()
	m.callCount++
	fn := m.SummarizeFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, tableText, tc)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	lines := strings.Split(strings.TrimSpace(tableText), "\n")
	header := strings.Join(strings.Fields(strings.ReplaceAll(lines[0], "|", " ")), " ")
	return fmt.Sprintf("Table with %d rows covering %s.", len(lines), header), nil
}

// CallCount returns the number of times SummarizeTable was called.
func (m *MockSummarizer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Reset clears the call count and custom functions.
func (m *MockSummarizer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.SummarizeFunc = nil
}
