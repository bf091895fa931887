// Package ingestion runs documents through the processing stages and
// persists them.
//
// A document moves FETCHED -> SEGMENTED -> EMBEDDED -> STORED. Each stage
// is handled by a processor that commits the stage in the ledger together
// with its artifacts:
//   - segmenting extracts tables, summarizes them, chunks the narrative
//     text and stamps coverage boosts
//   - embedding computes a vector for every chunk in batches
//   - storing writes chunk objects and vectors, then marks the document STORED
//
// A document whose content hash matches its STORED record is skipped
// without any external call. A document interrupted at any point resumes
// from its last committed stage. ProcessBatch processes documents
// concurrently on a worker pool.
package ingestion
