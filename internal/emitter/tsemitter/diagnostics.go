package tsemitter

import "fmt"

// Pipeline stages reported by the emitter.
const (
	StageEmit   = "emit"
	StageWrite  = "write"
	StageFormat = "format"
)

type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic is a non-fatal problem found while emitting one operation.
type Diagnostic struct {
	Stage     string
	Operation string
	Severity  Severity
	Message   string
}

func (d Diagnostic) String() string {
	if d.Operation == "" {
		return fmt.Sprintf("%s: %s", d.Stage, d.Message)
	}
	return fmt.Sprintf("%s: %s: %s", d.Stage, d.Operation, d.Message)
}

// EmitError is a fatal emitter failure.
type EmitError struct {
	Stage     string
	Operation string
	Message   string
	Cause     error
}

func (e *EmitError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("%s: %s", e.Operation, e.Message)
	}
	return e.Message
}

func (e *EmitError) Unwrap() error { return e.Cause }
