package mint

import (
	"errors"
	"fmt"
)

// State is where a mint operation is in the pipeline
type State int

const (
	StateIdle State = iota
	StateAssetsStaged
	StateMetadataPublished
	StateSubmitted
	StateConfirmed
	StateRecorded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAssetsStaged:
		return "AssetsStaged"
	case StateMetadataPublished:
		return "MetadataPublished"
	case StateSubmitted:
		return "Submitted"
	case StateConfirmed:
		return "Confirmed"
	case StateRecorded:
		return "Recorded"
	case StateFailed:
		return "Failed"
	}
	return "Unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Stage names the pipeline step an error came from
type Stage string

const (
	StageValidate  Stage = "validate"
	StageUpload    Stage = "upload"
	StagePublish   Stage = "publish"
	StageSubmit    Stage = "submit"
	StageConfirm   Stage = "confirm"
	StageInterpret Stage = "interpret"
	StageRecord    Stage = "record"
)

// StageError annotates a pipeline failure with the step it happened in.
// The wrapped error keeps its kind; errors.Is against the nftminter kinds still works.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// StageOf returns the failing stage of err, or "" when err did not come from the pipeline
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
