package storage

import (
	"context"
	"time"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
)

// ArtifactKind names an intermediate result persisted with a stage commit.
type ArtifactKind string

const (
	// ArtifactTables holds the extracted table spans of a document.
	ArtifactTables ArtifactKind = "tables"
	// ArtifactSegmented holds the boosted chunks committed with SEGMENTED.
	ArtifactSegmented ArtifactKind = "segmented"
	// ArtifactEmbedded holds the embedded chunks committed with EMBEDDED.
	ArtifactEmbedded ArtifactKind = "embedded"
)

// LedgerTx is a single ledger transaction. All reads observe one snapshot
// and all writes become visible together when the transaction commits.
// A LedgerTx must not be used after the function it was passed to returns.
type LedgerTx interface {
	// ReadState returns the processing state of a document.
	// Returns ErrNotFound if the document was never claimed.
	ReadState(sourceID string) (*core.ProcessingState, error)

	// WriteState creates or replaces the processing state of a document.
	WriteState(state *core.ProcessingState) error

	// ListStates returns the states in the given stage, ordered by source id.
	// StageUnknown lists every state.
	ListStates(stage core.Stage) ([]*core.ProcessingState, error)

	// ReadCoverage returns the coverage record of a company.
	// Returns ErrNotFound if the company has no coverage yet.
	ReadCoverage(companyKey string) (*core.CoverageRecord, error)

	// WriteCoverage creates or replaces the coverage record of a company.
	WriteCoverage(record *core.CoverageRecord) error

	// ListCoverage returns every coverage record, ordered by company key.
	ListCoverage() ([]*core.CoverageRecord, error)

	// PutArtifact stores an artifact of a document, replacing any previous one.
	PutArtifact(sourceID string, kind ArtifactKind, data []byte) error

	// GetArtifact returns an artifact of a document.
	// Returns ErrNotFound if the artifact doesn't exist.
	GetArtifact(sourceID string, kind ArtifactKind) ([]byte, error)

	// DeleteArtifacts removes every artifact of a document.
	DeleteArtifacts(sourceID string) error

	// WriteRun records a pipeline run.
	WriteRun(run *core.PipelineRun) error

	// ListRuns returns up to limit runs, most recently started first.
	ListRuns(limit int) ([]*core.PipelineRun, error)
}

// Ledger is the transactional state store: processing states, coverage
// records and stage artifacts. Implementations must be thread-safe.
type Ledger interface {
	// Update runs fn in a read-write transaction. If fn returns an error the
	// transaction is rolled back; otherwise it is committed. Implementations
	// may run fn more than once when a conflicting commit is detected, so fn
	// must not have side effects outside the transaction.
	Update(ctx context.Context, fn func(tx LedgerTx) error) error

	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(tx LedgerTx) error) error

	// Close releases the ledger's resources.
	Close() error
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentHash string
	UpdatedAt   time.Time
}

// ObjectStore holds the chunk documents. Implementations must be thread-safe.
type ObjectStore interface {
	// Put writes data under key, replacing any previous object.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the object stored under key.
	// Returns ErrNotFound if the object doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Stat describes the object stored under key without reading it.
	// Returns ErrNotFound if the object doesn't exist.
	Stat(ctx context.Context, key string) (ObjectInfo, error)

	// Delete removes the object under key. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// List describes every object whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// VectorMetadata is stored next to every vector for retrieval-time filtering.
type VectorMetadata struct {
	SourceID     string  `json:"source_id"`
	CompanyKey   string  `json:"company_key"`
	DocumentType string  `json:"document_type"`
	BoostFactor  float64 `json:"boost_factor"`
	ChunkTextRef string  `json:"chunk_text_ref"`
	ChunkIndex   int     `json:"chunk_index"`
}

// VectorRecord is one entry of the vector index; ID is the chunk id.
type VectorRecord struct {
	ID       string
	Vector   []float32
	Metadata VectorMetadata
}

// VectorIndex holds chunk embeddings. Implementations must be thread-safe.
type VectorIndex interface {
	// Upsert inserts or replaces records by id.
	Upsert(ctx context.Context, records ...VectorRecord) error

	// Get returns the record with the given id.
	// Returns ErrNotFound if the record doesn't exist.
	Get(ctx context.Context, id string) (VectorRecord, error)

	// Delete removes records by id. Missing ids are ignored.
	Delete(ctx context.Context, ids ...string) error
}
