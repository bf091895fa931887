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


// Package storage defines the three stores a document is persisted to.
//
//   - Ledger: the transactional state store. It holds processing states,
//     per-company coverage records and the artifacts committed with each
//     stage. The ledger is the commit marker: a document is stored only
//     when its state says STORED.
//   - ObjectStore: chunk documents, keyed by ChunkObjectKey.
//   - VectorIndex: chunk embeddings with retrieval metadata, keyed by chunk id.
//
// The stores are independent; there is no transaction spanning them. The
// store coordinator orders the writes so that a crash at any point leaves
// the ledger behind the other two stores, never ahead of them.
//
// # Backends
//
// The badger package provides all three stores on an embedded BadgerDB
// instance. The postgres package provides a relational Ledger for
// deployments where several ingestion processes share one state store.
//
// # Context Support
//
// All store methods accept context.Context for cancellation and timeout
// support. Ledger transactions capture the context passed to Update or
// View.
package storage
