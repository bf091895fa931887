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


package storage

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// MarshalProcessingState serializes a ProcessingState to bytes.
func MarshalProcessingState(state *core.ProcessingState) []byte {
	buf := make([]byte, core.ProcessingStateMUS.Size(*state))
	core.ProcessingStateMUS.Marshal(*state, buf)
	return buf
}

// UnmarshalProcessingState deserializes a ProcessingState from bytes.
func UnmarshalProcessingState(data []byte) (*core.ProcessingState, error) {
	state, _, err := core.ProcessingStateMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: processing state: %w", ErrSerializationFailed, err)
	}
	return &state, nil
}

// MarshalCoverageRecord serializes a CoverageRecord to bytes.
func MarshalCoverageRecord(record *core.CoverageRecord) []byte {
	buf := make([]byte, core.CoverageRecordMUS.Size(*record))
	core.CoverageRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalCoverageRecord deserializes a CoverageRecord from bytes.
func UnmarshalCoverageRecord(data []byte) (*core.CoverageRecord, error) {
	record, _, err := core.CoverageRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: coverage record: %w", ErrSerializationFailed, err)
	}
	return &record, nil
}

// MarshalPipelineRun serializes a PipelineRun to bytes.
func MarshalPipelineRun(run *core.PipelineRun) []byte {
	buf := make([]byte, core.PipelineRunMUS.Size(*run))
	core.PipelineRunMUS.Marshal(*run, buf)
	return buf
}

// UnmarshalPipelineRun deserializes a PipelineRun from bytes.
func UnmarshalPipelineRun(data []byte) (*core.PipelineRun, error) {
	run, _, err := core.PipelineRunMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: pipeline run: %w", ErrSerializationFailed, err)
	}
	return &run, nil
}

// MarshalVectorRecord serializes a VectorRecord to bytes.
func MarshalVectorRecord(record *VectorRecord) []byte {
	buf := make([]byte, vectorRecordMUS.Size(*record))
	vectorRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalVectorRecord deserializes a VectorRecord from bytes.
func UnmarshalVectorRecord(data []byte) (*VectorRecord, error) {
	record, _, err := vectorRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: vector record: %w", ErrSerializationFailed, err)
	}
	return &record, nil
}

// Artifacts are JSON so they can be inspected and shared between ledger
// backends without a schema per stage.

// MarshalArtifact serializes a stage artifact (table spans, chunks or embedded chunks).
func MarshalArtifact(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: artifact: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalArtifact deserializes a stage artifact into v.
func UnmarshalArtifact(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: artifact: %w", ErrSerializationFailed, err)
	}
	return nil
}

// ChunkObjectKey returns the object store key of a chunk document.
func ChunkObjectKey(sourceID, chunkID string) string {
	return ChunkObjectPrefix(sourceID) + chunkID + ".json"
}

// ChunkObjectPrefix returns the object store prefix of every chunk of a document.
func ChunkObjectPrefix(sourceID string) string {
	return "chunks/" + sourceID + "/"
}

// MarshalChunkObject renders the object store document of a chunk.
func MarshalChunkObject(chunk *core.Chunk) ([]byte, error) {
	data, err := json.Marshal(chunk)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk %s: %w", ErrSerializationFailed, chunk.ChunkID, err)
	}
	return data, nil
}

// UnmarshalChunkObject parses a chunk document read from the object store.
func UnmarshalChunkObject(data []byte) (*core.Chunk, error) {
	var chunk core.Chunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, fmt.Errorf("%w: chunk object: %w", ErrSerializationFailed, err)
	}
	return &chunk, nil
}

// ChunkVectorRecord builds the vector index entry of an embedded chunk.
// Its metadata points back at the chunk's object store document.
func ChunkVectorRecord(ec *core.EmbeddedChunk) VectorRecord {
	chunk := &ec.Chunk
	return VectorRecord{
		ID:     chunk.ChunkID,
		Vector: ec.Vector,
		Metadata: VectorMetadata{
			SourceID:     chunk.SourceID,
			CompanyKey:   chunk.CompanyKey,
			DocumentType: string(chunk.DocumentType),
			BoostFactor:  chunk.BoostFactor,
			ChunkTextRef: ChunkObjectKey(chunk.SourceID, chunk.ChunkID),
			ChunkIndex:   chunk.ChunkIndex,
		},
	}
}

var vectorRecordMUS = vectorRecordSer{}

type vectorRecordSer struct{}

func (vectorRecordSer) Marshal(v VectorRecord, bs []byte) (n int) {
	n = ord.String.Marshal(v.ID, bs)
	n += varint.Int.Marshal(len(v.Vector), bs[n:])
	for _, f := range v.Vector {
		n += varint.Uint32.Marshal(math.Float32bits(f), bs[n:])
	}
	n += ord.String.Marshal(v.Metadata.SourceID, bs[n:])
	n += ord.String.Marshal(v.Metadata.CompanyKey, bs[n:])
	n += ord.String.Marshal(v.Metadata.DocumentType, bs[n:])
	n += varint.Uint64.Marshal(math.Float64bits(v.Metadata.BoostFactor), bs[n:])
	n += ord.String.Marshal(v.Metadata.ChunkTextRef, bs[n:])
	n += varint.Int.Marshal(v.Metadata.ChunkIndex, bs[n:])
	return
}

func (vectorRecordSer) Unmarshal(bs []byte) (v VectorRecord, n int, err error) {
	var n1, length int
	v.ID, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	length, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	if length < 0 || length > len(bs)-n {
		err = core.ErrInvalidLength
		return
	}
	v.Vector = make([]float32, length)
	for i := range v.Vector {
		var bits uint32
		bits, n1, err = varint.Uint32.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		v.Vector[i] = math.Float32frombits(bits)
	}
	v.Metadata.SourceID, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Metadata.CompanyKey, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Metadata.DocumentType, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var boost uint64
	boost, n1, err = varint.Uint64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Metadata.BoostFactor = math.Float64frombits(boost)
	v.Metadata.ChunkTextRef, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Metadata.ChunkIndex, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	return
}

func (vectorRecordSer) Size(v VectorRecord) (size int) {
	size = ord.String.Size(v.ID)
	size += varint.Int.Size(len(v.Vector))
	for _, f := range v.Vector {
		size += varint.Uint32.Size(math.Float32bits(f))
	}
	size += ord.String.Size(v.Metadata.SourceID)
	size += ord.String.Size(v.Metadata.CompanyKey)
	size += ord.String.Size(v.Metadata.DocumentType)
	size += varint.Uint64.Size(math.Float64bits(v.Metadata.BoostFactor))
	size += ord.String.Size(v.Metadata.ChunkTextRef)
	size += varint.Int.Size(v.Metadata.ChunkIndex)
	return
}
