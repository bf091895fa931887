// Package postgres provides a storage.Ledger on PostgreSQL.
//
// Every Update runs in a SERIALIZABLE transaction and reads rows with
// SELECT ... FOR UPDATE, so concurrent claims of the same document or
// concurrent coverage updates of the same company are serialized by the
// database. Serialization failures are retried by replaying the whole
// transaction function.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

const maxSerializationRetries = 10

// Ledger implements storage.Ledger on a pgx connection pool.
type Ledger struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ storage.Ledger = (*Ledger)(nil)

// Connect establishes a connection pool to the database and applies the schema.
func Connect(ctx context.Context, databaseURL string) (*Ledger, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	l := &Ledger{
		pool:   pool,
		logger: slog.Default().With("component", "postgres-ledger"),
	}
	if err := l.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return l, nil
}

// Migrate creates the ledger tables if they don't exist.
func (l *Ledger) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := l.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Close closes the connection pool.
func (l *Ledger) Close() error {
	if l.pool != nil {
		l.pool.Close()
	}
	return nil
}

// Update runs fn in a serializable read-write transaction.
func (l *Ledger) Update(ctx context.Context, fn func(tx storage.LedgerTx) error) error {
	var err error
	for attempt := 1; attempt <= maxSerializationRetries; attempt++ {
		err = l.run(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, true, fn)
		if !isSerializationFailure(err) {
			return err
		}
		l.logger.Debug("serialization failure, retrying", "attempt", attempt)
	}
	return fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
}

// View runs fn in a read-only transaction.
func (l *Ledger) View(ctx context.Context, fn func(tx storage.LedgerTx) error) error {
	return l.run(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, false, fn)
}

func (l *Ledger) run(ctx context.Context, opts pgx.TxOptions, write bool, fn func(tx storage.LedgerTx) error) error {
	tx, err := l.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&ledgerTx{ctx: ctx, tx: tx, forUpdate: write}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure, deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

type ledgerTx struct {
	ctx       context.Context
	tx        pgx.Tx
	forUpdate bool
}

func (t *ledgerTx) lockClause() string {
	if t.forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

const stateColumns = `source_id, stage, resume_stage, attempt_count, last_error, content_hash,
	owner, lease_until, chunk_count, updated_at`

func scanState(row pgx.Row) (*core.ProcessingState, error) {
	var (
		s                   core.ProcessingState
		stage, resumeStage  int16
		leaseUntil, updated *time.Time
	)
	err := row.Scan(&s.SourceID, &stage, &resumeStage, &s.AttemptCount, &s.LastError, &s.ContentHash,
		&s.Owner, &leaseUntil, &s.ChunkCount, &updated)
	if err != nil {
		return nil, err
	}
	s.Stage = core.Stage(stage)
	s.ResumeStage = core.Stage(resumeStage)
	s.LeaseUntil = fromNullTime(leaseUntil)
	s.UpdatedAt = fromNullTime(updated)
	return &s, nil
}

func (t *ledgerTx) ReadState(sourceID string) (*core.ProcessingState, error) {
	row := t.tx.QueryRow(t.ctx,
		`SELECT `+stateColumns+` FROM processing_state WHERE source_id = $1`+t.lockClause(),
		sourceID,
	)
	state, err := scanState(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read state %s: %w", sourceID, err)
	}
	return state, nil
}

func (t *ledgerTx) WriteState(s *core.ProcessingState) error {
	if s.SourceID == "" {
		return storage.ErrEmptyKey
	}
	_, err := t.tx.Exec(t.ctx,
		`INSERT INTO processing_state (`+stateColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (source_id) DO UPDATE SET
		   stage = $2, resume_stage = $3, attempt_count = $4, last_error = $5, content_hash = $6,
		   owner = $7, lease_until = $8, chunk_count = $9, updated_at = $10`,
		s.SourceID, int16(s.Stage), int16(s.ResumeStage), s.AttemptCount, s.LastError, s.ContentHash,
		s.Owner, nullTime(s.LeaseUntil), s.ChunkCount, nullTime(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to write state %s: %w", s.SourceID, err)
	}
	return nil
}

func (t *ledgerTx) ListStates(stage core.Stage) ([]*core.ProcessingState, error) {
	query := `SELECT ` + stateColumns + ` FROM processing_state`
	var args []any
	if stage != core.StageUnknown {
		query += ` WHERE stage = $1`
		args = append(args, int16(stage))
	}
	rows, err := t.tx.Query(t.ctx, query+` ORDER BY source_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list states: %w", err)
	}
	defer rows.Close()

	var states []*core.ProcessingState
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan state: %w", err)
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

func scanCoverage(row pgx.Row) (*core.CoverageRecord, error) {
	var (
		r       core.CoverageRecord
		updated *time.Time
		entries []byte
	)
	if err := row.Scan(&r.CompanyKey, &r.RollingChunkCount, &updated, &entries); err != nil {
		return nil, err
	}
	r.LastUpdated = fromNullTime(updated)
	if err := json.Unmarshal(entries, &r.Entries); err != nil {
		return nil, fmt.Errorf("%w: coverage entries: %w", storage.ErrSerializationFailed, err)
	}
	for i := range r.Entries {
		r.Entries[i].RecordedAt = r.Entries[i].RecordedAt.UTC()
	}
	return &r, nil
}

func (t *ledgerTx) ReadCoverage(companyKey string) (*core.CoverageRecord, error) {
	row := t.tx.QueryRow(t.ctx,
		`SELECT company_key, rolling_chunk_count, last_updated, entries
		 FROM coverage_record WHERE company_key = $1`+t.lockClause(),
		companyKey,
	)
	record, err := scanCoverage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read coverage %s: %w", companyKey, err)
	}
	return record, nil
}

func (t *ledgerTx) WriteCoverage(r *core.CoverageRecord) error {
	if r.CompanyKey == "" {
		return storage.ErrEmptyKey
	}
	entries := r.Entries
	if entries == nil {
		entries = []core.CoverageEntry{}
	}
	entriesJSON, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("%w: coverage entries: %w", storage.ErrSerializationFailed, err)
	}
	_, err = t.tx.Exec(t.ctx,
		`INSERT INTO coverage_record (company_key, rolling_chunk_count, last_updated, entries)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (company_key) DO UPDATE SET rolling_chunk_count = $2, last_updated = $3, entries = $4`,
		r.CompanyKey, r.RollingChunkCount, nullTime(r.LastUpdated), entriesJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to write coverage %s: %w", r.CompanyKey, err)
	}
	return nil
}

func (t *ledgerTx) ListCoverage() ([]*core.CoverageRecord, error) {
	rows, err := t.tx.Query(t.ctx,
		`SELECT company_key, rolling_chunk_count, last_updated, entries
		 FROM coverage_record ORDER BY company_key`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list coverage: %w", err)
	}
	defer rows.Close()

	var records []*core.CoverageRecord
	for rows.Next() {
		record, err := scanCoverage(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (t *ledgerTx) PutArtifact(sourceID string, kind storage.ArtifactKind, data []byte) error {
	if sourceID == "" {
		return storage.ErrEmptyKey
	}
	_, err := t.tx.Exec(t.ctx,
		`INSERT INTO stage_artifact (source_id, kind, data) VALUES ($1, $2, $3)
		 ON CONFLICT (source_id, kind) DO UPDATE SET data = $3`,
		sourceID, string(kind), data,
	)
	if err != nil {
		return fmt.Errorf("failed to save artifact %s/%s: %w", sourceID, kind, err)
	}
	return nil
}

func (t *ledgerTx) GetArtifact(sourceID string, kind storage.ArtifactKind) ([]byte, error) {
	var data []byte
	err := t.tx.QueryRow(t.ctx,
		`SELECT data FROM stage_artifact WHERE source_id = $1 AND kind = $2`,
		sourceID, string(kind),
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get artifact %s/%s: %w", sourceID, kind, err)
	}
	return data, nil
}

func (t *ledgerTx) DeleteArtifacts(sourceID string) error {
	_, err := t.tx.Exec(t.ctx, `DELETE FROM stage_artifact WHERE source_id = $1`, sourceID)
	if err != nil {
		return fmt.Errorf("failed to delete artifacts of %s: %w", sourceID, err)
	}
	return nil
}

func (t *ledgerTx) WriteRun(run *core.PipelineRun) error {
	if run.RunID == "" {
		return storage.ErrEmptyKey
	}
	_, err := t.tx.Exec(t.ctx,
		`INSERT INTO pipeline_run (run_id, started_at, finished_at, documents, stored, skipped, failed, chunks)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (run_id) DO UPDATE SET
			finished_at = $3, documents = $4, stored = $5, skipped = $6, failed = $7, chunks = $8`,
		run.RunID, run.StartedAt, nullTime(run.FinishedAt),
		run.Documents, run.Stored, run.Skipped, run.Failed, run.Chunks,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.RunID, err)
	}
	return nil
}

func (t *ledgerTx) ListRuns(limit int) ([]*core.PipelineRun, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := t.tx.Query(t.ctx,
		`SELECT run_id, started_at, finished_at, documents, stored, skipped, failed, chunks
		 FROM pipeline_run ORDER BY started_at DESC, run_id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*core.PipelineRun
	for rows.Next() {
		var run core.PipelineRun
		var finished *time.Time
		err := rows.Scan(&run.RunID, &run.StartedAt, &finished,
			&run.Documents, &run.Stored, &run.Skipped, &run.Failed, &run.Chunks)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.StartedAt = run.StartedAt.UTC()
		run.FinishedAt = fromNullTime(finished)
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func fromNullTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
