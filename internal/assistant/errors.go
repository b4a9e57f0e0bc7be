package assistant

import (
	"errors"
	"fmt"
)

// ErrIdentificationFailed matches every *IdentificationError.
var ErrIdentificationFailed = errors.New("identification failed")

type Stage string

const (
	StageRequest Stage = "request"
	StageParse   Stage = "parse"
)

// IdentificationError is a technical failure of an identification call. A
// model that answers "Unknown" is not an error.
type IdentificationError struct {
	Stage Stage
	Err   error
}

func (e *IdentificationError) Error() string {
	return fmt.Sprintf("identification failed during %s: %v", e.Stage, e.Err)
}

func (e *IdentificationError) Unwrap() error {
	return e.Err
}

// Is allows comparison with ErrIdentificationFailed.
func (e *IdentificationError) Is(target error) bool {
	return target == ErrIdentificationFailed
}
