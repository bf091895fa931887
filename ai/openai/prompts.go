package openai

import (
	"fmt"
	"strings"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/ai"
)

const summarySystemPrompt = `You summarize tables taken from financial documents (SEC filings, company
Wikipedia pages and news articles). Answer with plain prose only: no markdown, no lists, no preamble.`

const summaryPromptTemplate = `%s
Summarize this table in 2-3 clear sentences. Focus on:
1. What data the table shows
2. Key trends or notable values
3. Any significant changes or comparisons

Table:
%s

Summary:`

// buildSummaryPrompt renders the user prompt for one table.
func buildSummaryPrompt(tableText string, tc ai.TableContext) string {
	var header strings.Builder
	if tc.CompanyKey != "" {
		fmt.Fprintf(&header, "Company: %s\n", tc.CompanyKey)
	}
	if tc.DocumentType != "" {
		fmt.Fprintf(&header, "Document: %s\n", tc.DocumentType)
	}
	if tc.Section != "" {
		fmt.Fprintf(&header, "Section: %s\n", tc.Section)
	}
	return fmt.Sprintf(summaryPromptTemplate, header.String(), strings.TrimSpace(tableText))
}
