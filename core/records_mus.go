package core

import (
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for the ledger records. Field order is the wire order;
// append new fields at the end only.
var (
	StageMUS           = stageMUS{}
	ProcessingStateMUS = processingStateMUS{}
	CoverageEntryMUS   = coverageEntryMUS{}
	CoverageRecordMUS  = coverageRecordMUS{}
	PipelineRunMUS     = pipelineRunMUS{}
)

type stageMUS struct{}

func (stageMUS) Marshal(v Stage, bs []byte) (n int) {
	return varint.Int.Marshal(int(v), bs)
}

func (stageMUS) Unmarshal(bs []byte) (v Stage, n int, err error) {
	i, n, err := varint.Int.Unmarshal(bs)
	return Stage(i), n, err
}

func (stageMUS) Size(v Stage) (size int) {
	return varint.Int.Size(int(v))
}

// Timestamps travel as Unix microseconds; 0 stands for the zero time.
type timeMUS struct{}

var timeMicroMUS = timeMUS{}

func (timeMUS) micros(v time.Time) int64 {
	if v.IsZero() {
		return 0
	}
	return v.UnixMicro()
}

func (t timeMUS) Marshal(v time.Time, bs []byte) (n int) {
	return varint.Int64.Marshal(t.micros(v), bs)
}

func (timeMUS) Unmarshal(bs []byte) (v time.Time, n int, err error) {
	us, n, err := varint.Int64.Unmarshal(bs)
	if err != nil || us == 0 {
		return time.Time{}, n, err
	}
	return time.UnixMicro(us).UTC(), n, nil
}

func (t timeMUS) Size(v time.Time) (size int) {
	return varint.Int64.Size(t.micros(v))
}

type processingStateMUS struct{}

func (processingStateMUS) Marshal(v ProcessingState, bs []byte) (n int) {
	n = ord.String.Marshal(v.SourceID, bs)
	n += StageMUS.Marshal(v.Stage, bs[n:])
	n += StageMUS.Marshal(v.ResumeStage, bs[n:])
	n += varint.Int.Marshal(v.AttemptCount, bs[n:])
	n += ord.String.Marshal(v.LastError, bs[n:])
	n += ord.String.Marshal(v.ContentHash, bs[n:])
	n += ord.String.Marshal(v.Owner, bs[n:])
	n += timeMicroMUS.Marshal(v.LeaseUntil, bs[n:])
	n += varint.Int.Marshal(v.ChunkCount, bs[n:])
	n += timeMicroMUS.Marshal(v.UpdatedAt, bs[n:])
	return
}

func (processingStateMUS) Unmarshal(bs []byte) (v ProcessingState, n int, err error) {
	var n1 int
	v.SourceID, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	v.Stage, n1, err = StageMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ResumeStage, n1, err = StageMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.AttemptCount, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.LastError, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ContentHash, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Owner, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.LeaseUntil, n1, err = timeMicroMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ChunkCount, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt, n1, err = timeMicroMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (processingStateMUS) Size(v ProcessingState) (size int) {
	size = ord.String.Size(v.SourceID)
	size += StageMUS.Size(v.Stage)
	size += StageMUS.Size(v.ResumeStage)
	size += varint.Int.Size(v.AttemptCount)
	size += ord.String.Size(v.LastError)
	size += ord.String.Size(v.ContentHash)
	size += ord.String.Size(v.Owner)
	size += timeMicroMUS.Size(v.LeaseUntil)
	size += varint.Int.Size(v.ChunkCount)
	size += timeMicroMUS.Size(v.UpdatedAt)
	return
}

type coverageEntryMUS struct{}

func (coverageEntryMUS) Marshal(v CoverageEntry, bs []byte) (n int) {
	n = timeMicroMUS.Marshal(v.RecordedAt, bs)
	n += ord.String.Marshal(v.SourceID, bs[n:])
	n += varint.Int.Marshal(v.Chunks, bs[n:])
	return
}

func (coverageEntryMUS) Unmarshal(bs []byte) (v CoverageEntry, n int, err error) {
	var n1 int
	v.RecordedAt, n, err = timeMicroMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	v.SourceID, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Chunks, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	return
}

func (coverageEntryMUS) Size(v CoverageEntry) (size int) {
	return timeMicroMUS.Size(v.RecordedAt) + ord.String.Size(v.SourceID) + varint.Int.Size(v.Chunks)
}

type coverageRecordMUS struct{}

func (coverageRecordMUS) Marshal(v CoverageRecord, bs []byte) (n int) {
	n = ord.String.Marshal(v.CompanyKey, bs)
	n += varint.Int.Marshal(v.RollingChunkCount, bs[n:])
	n += timeMicroMUS.Marshal(v.LastUpdated, bs[n:])
	n += varint.Int.Marshal(len(v.Entries), bs[n:])
	for _, e := range v.Entries {
		n += CoverageEntryMUS.Marshal(e, bs[n:])
	}
	return
}

func (coverageRecordMUS) Unmarshal(bs []byte) (v CoverageRecord, n int, err error) {
	var n1, length int
	v.CompanyKey, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	v.RollingChunkCount, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.LastUpdated, n1, err = timeMicroMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	length, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	if length < 0 || length > len(bs)-n {
		return v, n, ErrInvalidLength
	}
	if length > 0 {
		v.Entries = make([]CoverageEntry, length)
	}
	for i := range v.Entries {
		v.Entries[i], n1, err = CoverageEntryMUS.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}

func (coverageRecordMUS) Size(v CoverageRecord) (size int) {
	size = ord.String.Size(v.CompanyKey)
	size += varint.Int.Size(v.RollingChunkCount)
	size += timeMicroMUS.Size(v.LastUpdated)
	size += varint.Int.Size(len(v.Entries))
	for _, e := range v.Entries {
		size += CoverageEntryMUS.Size(e)
	}
	return
}

type pipelineRunMUS struct{}

func (pipelineRunMUS) Marshal(v PipelineRun, bs []byte) (n int) {
	n = ord.String.Marshal(v.RunID, bs)
	n += timeMicroMUS.Marshal(v.StartedAt, bs[n:])
	n += timeMicroMUS.Marshal(v.FinishedAt, bs[n:])
	for _, c := range v.counts() {
		n += varint.Int.Marshal(c, bs[n:])
	}
	return
}

func (pipelineRunMUS) Unmarshal(bs []byte) (v PipelineRun, n int, err error) {
	var n1 int
	v.RunID, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	v.StartedAt, n1, err = timeMicroMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.FinishedAt, n1, err = timeMicroMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	for _, c := range []*int{&v.Documents, &v.Stored, &v.Skipped, &v.Failed, &v.Chunks} {
		*c, n1, err = varint.Int.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}

func (pipelineRunMUS) Size(v PipelineRun) (size int) {
	size = ord.String.Size(v.RunID)
	size += timeMicroMUS.Size(v.StartedAt)
	size += timeMicroMUS.Size(v.FinishedAt)
	for _, c := range v.counts() {
		size += varint.Int.Size(c)
	}
	return
}

// counts lists the counters of a run in wire order.
func (v PipelineRun) counts() []int {
	return []int{v.Documents, v.Stored, v.Skipped, v.Failed, v.Chunks}
}
