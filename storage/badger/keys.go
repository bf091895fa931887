package badger

import (
	"fmt"

	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
)

// Key prefixes for different data types
const (
	statePrefix      = "state:"
	coveragePrefix   = "cov:"
	artifactPrefix   = "art:"
	objectPrefix     = "obj:"
	objectInfoPrefix = "objinfo:"
	vectorPrefix     = "vec:"
	runPrefix        = "run:"
)

// makeStateKey generates a key for the processing state of a document.
func makeStateKey(sourceID string) []byte {
	return []byte(statePrefix + sourceID)
}

// makeCoverageKey generates a key for the coverage record of a company.
func makeCoverageKey(companyKey string) []byte {
	return []byte(coveragePrefix + companyKey)
}

// makePartialArtifactKey generates the prefix shared by every artifact of a document.
// Format: prefix:sourceID\x00
// The NUL separator keeps "doc" from matching the artifacts of "doc2".
func makePartialArtifactKey(sourceID string) []byte {
	return []byte(artifactPrefix + sourceID + "\x00")
}

// makeArtifactKey generates a key for one artifact of a document.
// Format: prefix:sourceID\x00kind
func makeArtifactKey(sourceID, kind string) []byte {
	return append(makePartialArtifactKey(sourceID), kind...)
}

// makeObjectKey generates a key for the body of an object.
func makeObjectKey(key string) []byte {
	return []byte(objectPrefix + key)
}

// makeObjectInfoKey generates a key for the description of an object.
func makeObjectInfoKey(key string) []byte {
	return []byte(objectInfoPrefix + key)
}

// makeVectorKey generates a key for a vector record by chunk id.
func makeVectorKey(id string) []byte {
	return []byte(vectorPrefix + id)
}

// makeRunKey generates a key for a pipeline run.
// Format: prefix:startedAtMicrosHex:runID
// The fixed-width start time keeps keys in start order.
func makeRunKey(run *core.PipelineRun) []byte {
	return fmt.Appendf(nil, "%s%016x:%s", runPrefix, uint64(run.StartedAt.UnixMicro()), run.RunID)
}
