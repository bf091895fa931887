// Package reembed regenerates the vectors of stored documents, typically
// after the embedding model changed.
//
// Chunks are read from the embedded artifact of every STORED document, so
// neither segmentation nor table summarization runs again. Each document is
// leased while it is re-embedded; the vector index is updated first and the
// artifact last. A document leased by the ingestion pipeline is skipped.
package reembed
