package cli

import (
	"errors"
	"fmt"

	"github.com/mark3labs/koiosgen/internal/emitter/tsemitter"
	genspec "github.com/mark3labs/koiosgen/internal/spec"
)

var ErrUsage = errors.New("cli usage error")

type usageError struct {
	msg string
}

func newUsageError(msg string) error {
	return usageError{msg: msg}
}

func (e usageError) Error() string {
	return e.msg
}

func (e usageError) Is(target error) bool {
	return target == ErrUsage
}

// stageError reports a pipeline failure as "<stage>: message".
type stageError struct {
	stage string
	msg   string
	cause error
}

func (e *stageError) Error() string { return e.stage + ": " + e.msg }
func (e *stageError) Unwrap() error { return e.cause }

// pipelineError maps loader and emitter failures onto stageError.
func pipelineError(err error) error {
	var se *genspec.SpecError
	if errors.As(err, &se) {
		msg := se.Message
		if se.Location != "" {
			msg = fmt.Sprintf("%s\nLocation: %s", msg, se.Location)
		}
		if se.JSONPointer != "" {
			msg = fmt.Sprintf("%s\nPointer: %s", msg, se.JSONPointer)
		}
		return &stageError{stage: se.Code.Stage(), msg: msg, cause: err}
	}
	var ee *tsemitter.EmitError
	if errors.As(err, &ee) {
		msg := ee.Error()
		if ee.Stage == tsemitter.StageWrite {
			msg += "\nHint: choose a different --out or use --force when appropriate."
		}
		return &stageError{stage: ee.Stage, msg: msg, cause: err}
	}
	return err
}

// ExitCode maps an Execute error to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrUsage):
		return 2
	default:
		return 1
	}
}
