package core

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier derived from content hashing.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Hex returns the ID as a fixed-width lowercase hex string.
func (id ID) Hex() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// ChunkID returns the stable identifier of the chunk at index within a source document.
// Re-running ingestion over unchanged input yields the same IDs, which makes every
// downstream write an upsert.
func ChunkID(sourceID string, index int) string {
	return IDFromContent(sourceID + "#" + strconv.Itoa(index)).Hex()
}

// ContentHash returns the hex encoded BLAKE2b-256 digest of data.
func ContentHash(data []byte) string {
	h, _ := blake2b.New(32, nil)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DocumentType identifies where a document came from.
type DocumentType string

const (
	// DocumentTypeSECFiling is a 10-K, 10-Q or similar filing.
	DocumentTypeSECFiling DocumentType = "sec_filing"
	// DocumentTypeWikipedia is a company Wikipedia page.
	DocumentTypeWikipedia DocumentType = "wikipedia"
	// DocumentTypeNews is a news article.
	DocumentTypeNews DocumentType = "news"
)

// Structural hint keys understood by the segmentation stage.
const (
	// HintTables selects table detection: "auto", "markdown", "aligned" or "none".
	HintTables = "tables"
	// HintSection names the filing section, used in fallback table summaries.
	HintSection = "section"
)

// RawDocument is a normalized document produced by a fetcher.
// It is immutable once fetched and read-only to the ingestion core.
type RawDocument struct {
	SourceID        string            `json:"source_id"`
	CompanyKey      string            `json:"company_key"`
	DocumentType    DocumentType      `json:"document_type"`
	FetchedAt       time.Time         `json:"fetched_at"`
	RawText         string            `json:"raw_text"`
	StructuralHints map[string]string `json:"structural_hints,omitempty"`
}

// ContentHash fingerprints the parts of the document that influence its
// chunks, structural hints included. Hints with an empty value count as unset.
func (d *RawDocument) ContentHash() string {
	var b strings.Builder
	b.WriteString(d.CompanyKey)
	b.WriteByte(0)
	b.WriteString(string(d.DocumentType))
	b.WriteByte(0)
	b.WriteString(d.RawText)
	for _, key := range slices.Sorted(maps.Keys(d.StructuralHints)) {
		if v := d.StructuralHints[key]; v != "" {
			b.WriteByte(0)
			b.WriteString(key)
			b.WriteByte('=')
			b.WriteString(v)
		}
	}
	return ContentHash([]byte(b.String()))
}

// Hint returns the structural hint for key, or def when unset.
func (d *RawDocument) Hint(key, def string) string {
	if v, ok := d.StructuralHints[key]; ok && v != "" {
		return v
	}
	return def
}

// TableSpan is a tabular region cut out of a document.
// Offsets are byte offsets into the original RawText.
type TableSpan struct {
	StartOffset   int    `json:"start_offset"`
	EndOffset     int    `json:"end_offset"`
	RawTableText  string `json:"raw_table_text"`
	PlaceholderID string `json:"placeholder_id"`
}

// TableSummary is the short text substitute for a table placeholder.
type TableSummary struct {
	PlaceholderID  string `json:"placeholder_id"`
	SummaryText    string `json:"summary_text"`
	SourceTableRef string `json:"source_table_ref"`
	Fallback       bool   `json:"fallback,omitempty"`
}

// Chunk is a bounded span of narrative text prepared for embedding.
type Chunk struct {
	ChunkID                string       `json:"chunk_id"`
	SourceID               string       `json:"source_id"`
	CompanyKey             string       `json:"company_key"`
	DocumentType           DocumentType `json:"document_type"`
	ChunkIndex             int          `json:"chunk_index"`
	Text                   string       `json:"text"`
	TokenCount             int          `json:"token_count"`
	ContainsPlaceholderIDs []string     `json:"contains_placeholder_ids"`
	BoostFactor            float64      `json:"boost_factor"`
	CreatedAt              time.Time    `json:"created_at"`
}

// EmbeddedChunk pairs a chunk with its embedding vector.
type EmbeddedChunk struct {
	Chunk  Chunk     `json:"chunk"`
	Vector []float32 `json:"vector"`
}

// CoverageEntry is the contribution of one ingestion run to a company's coverage.
type CoverageEntry struct {
	RecordedAt time.Time
	SourceID   string
	Chunks     int
}

// CoverageRecord is the persisted rolling chunk count of a company.
type CoverageRecord struct {
	CompanyKey        string
	RollingChunkCount int
	LastUpdated       time.Time
	Entries           []CoverageEntry
}

// ProcessingState is the per-document ledger row.
type ProcessingState struct {
	SourceID     string
	Stage        Stage
	ResumeStage  Stage // last committed stage before FAILED
	AttemptCount int
	LastError    string
	ContentHash  string
	Owner        string
	LeaseUntil   time.Time
	ChunkCount   int
	UpdatedAt    time.Time
}

// Leased reports whether another owner holds a live lease at now.
func (s *ProcessingState) Leased(owner string, now time.Time) bool {
	return s.Owner != "" && s.Owner != owner && now.Before(s.LeaseUntil)
}

// OutcomeStatus is the result class of processing a document.
type OutcomeStatus string

const (
	OutcomeStored  OutcomeStatus = "STORED"
	OutcomeSkipped OutcomeStatus = "SKIPPED"
	OutcomeFailed  OutcomeStatus = "FAILED"
)

// Outcome is returned for every processed document.
type Outcome struct {
	SourceID  string        `json:"source_id"`
	Status    OutcomeStatus `json:"status"`
	Reason    string        `json:"reason,omitempty"`
	Permanent bool          `json:"permanent,omitempty"`
	Chunks    int           `json:"chunks,omitempty"`
}

// PipelineRun records one ProcessBatch call.
type PipelineRun struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Documents  int       `json:"documents"`
	Stored     int       `json:"stored"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Chunks     int       `json:"chunks"`
}

// Tally counts the outcomes of a report into run.
func (run *PipelineRun) Tally(report Report) {
	for _, o := range report.Outcomes {
		run.Documents++
		switch o.Status {
		case OutcomeStored:
			run.Stored++
			run.Chunks += o.Chunks
		case OutcomeSkipped:
			run.Skipped++
		case OutcomeFailed:
			run.Failed++
		}
	}
}

// DocumentFailure names a failed document and why it failed.
type DocumentFailure struct {
	SourceID string `json:"source_id"`
	Reason   string `json:"reason"`
}

// Report aggregates the outcomes of a batch.
type Report struct {
	RunID    string            `json:"run_id,omitempty"`
	Outcomes []Outcome         `json:"outcomes"`
	Failures []DocumentFailure `json:"failures"`
}

// Count returns the number of outcomes with the given status.
func (r *Report) Count(status OutcomeStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}
