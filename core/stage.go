package core

import (
	"fmt"
	"strings"
)

// Stage is a step in the per-document processing lifecycle.
type Stage int

const (
	StageUnknown Stage = iota
	// StageFetched is the initial stage of a claimed document.
	StageFetched
	// StageSegmented means chunks with summaries and boosts are committed.
	StageSegmented
	// StageEmbedded means vectors for every chunk are committed.
	StageEmbedded
	// StageStored means every store holds the document. Terminal.
	StageStored
	// StageFailed is reachable from every non-terminal stage.
	StageFailed
)

var stageNames = map[Stage]string{
	StageFetched:   "FETCHED",
	StageSegmented: "SEGMENTED",
	StageEmbedded:  "EMBEDDED",
	StageStored:    "STORED",
	StageFailed:    "FAILED",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Next returns the stage that follows s on success.
func (s Stage) Next() (Stage, bool) {
	switch s {
	case StageFetched:
		return StageSegmented, true
	case StageSegmented:
		return StageEmbedded, true
	case StageEmbedded:
		return StageStored, true
	}
	return StageUnknown, false
}

// ParseStage parses a stage name, case-insensitively.
func ParseStage(name string) (Stage, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for stage, stageName := range stageNames {
		if stageName == upper {
			return stage, nil
		}
	}
	return StageUnknown, fmt.Errorf("%w: %q", ErrInvalidStage, name)
}
