package pipeline

import (
	"errors"
	"fmt"

	"github.com/cryptoe/flatbridge"
	"github.com/cryptoe/flatbridge/internal/datekey"
)

// ErrStoreInit wraps failures to construct a store client.
var ErrStoreInit = errors.New("pipeline: store initialization failed")

// OpenStore opens a registered backend, wrapping failures in ErrStoreInit.
func OpenStore(name string, config map[string]string) (flatbridge.Backend, error) {
	b, err := flatbridge.Open(name, config)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStoreInit, name, err)
	}
	return b, nil
}

// Stage is the step of a run an error happened in.
type Stage string

const (
	StageList       Stage = "list"
	StageFetch      Stage = "fetch"
	StageDecompress Stage = "decompress"
	StageParse      Stage = "parse"
	StageEncode     Stage = "encode"
	StagePublish    Stage = "publish"
)

// StageError is a failure scoped to one stage and, except for listings,
// one input object.
type StageError struct {
	Stage Stage
	Path  string
	Date  datekey.Key
	Err   error
}

func (e *StageError) Error() string {
	switch {
	case e.Path == "":
		return fmt.Sprintf("pipeline: %s: %v", e.Stage, e.Err)
	case e.Date.IsZero():
		return fmt.Sprintf("pipeline: %s %s: %v", e.Stage, e.Path, e.Err)
	default:
		return fmt.Sprintf("pipeline: %s %s (%s): %v", e.Stage, e.Path, e.Date, e.Err)
	}
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage of the first StageError in err's chain.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}
