package domain

import "fmt"

// Stage is a step of the per-domain pipeline state machine.
type Stage string

const (
	StageIdle          Stage = "idle"
	StageCollecting    Stage = "collecting"
	StageDeduplicating Stage = "deduplicating"
	StageFiltering     Stage = "filtering"
	StageEnriching     Stage = "enriching"
	StageEmbedding     Stage = "embedding"
	StagePersisting    Stage = "persisting"
	StageDone          Stage = "done"
	StageFailed        Stage = "failed"
)

// WorkStages lists the stages that produce checkpointed output, in execution order.
var WorkStages = []Stage{
	StageCollecting,
	StageDeduplicating,
	StageFiltering,
	StageEnriching,
	StageEmbedding,
	StagePersisting,
}

// validStageTransitions defines the allowed forward transitions. Failed is
// reachable from every non-terminal stage and is handled separately.
var validStageTransitions = map[Stage]Stage{
	StageIdle:          StageCollecting,
	StageCollecting:    StageDeduplicating,
	StageDeduplicating: StageFiltering,
	StageFiltering:     StageEnriching,
	StageEnriching:     StageEmbedding,
	StageEmbedding:     StagePersisting,
	StagePersisting:    StageDone,
}

// IsTerminal returns true if the stage is final.
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageFailed
}

// Next returns the stage that follows s, or s itself for terminal stages.
func (s Stage) Next() Stage {
	if next, ok := validStageTransitions[s]; ok {
		return next
	}
	return s
}

// CanTransition reports whether the state machine allows moving from one stage to another.
func CanTransition(from, to Stage) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StageFailed {
		return true
	}
	return validStageTransitions[from] == to
}

// ValidateTransition returns ErrInvalidTransition when CanTransition is false.
func ValidateTransition(from, to Stage) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
