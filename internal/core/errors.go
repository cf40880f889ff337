package core

// errors.go defines the pipeline's error taxonomy.
//
// Step-level errors (ParseError, ConfigurationError, StateError, ErrNoData)
// are returned synchronously and block only the attempted transition.
// Row-level validation failures arrive inside batch responses and batch-level
// TransportErrors are folded into the AggregateReport; neither aborts a run.

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoData is returned when an upload is attempted with zero records.
	ErrNoData = errors.New("no data to upload: the file has no data rows")

	// ErrUnknownKind is returned for an unregistered import kind.
	ErrUnknownKind = errors.New("unknown import kind")

	// ErrSessionNotFound is returned by the Service for unknown session ids.
	ErrSessionNotFound = errors.New("import session not found")

	// ErrFileReplaced is returned by Parse when another file was selected or
	// the session restarted while the file was being read.
	ErrFileReplaced = errors.New("file replaced: the session changed while the file was being read")
)

// ParseError reports a file that could not be decoded. Parsing is atomic:
// when a ParseError is returned no rows were produced.
type ParseError struct {
	FileName string
	Reason   string
	Err      error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("parse error")
	if e.FileName != "" {
		b.WriteString(": ")
		b.WriteString(e.FileName)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ParseError) Unwrap() error { return e.Err }

// ConfigurationError reports required shared parameters missing at parse time.
type ConfigurationError struct {
	Kind    string
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s import is missing required parameters: %s",
		e.Kind, strings.Join(e.Missing, ", "))
}

// TransportError reports a batch that failed at the HTTP layer. The whole
// batch counts as failed.
type TransportError struct {
	Batch  int // 1-based batch number
	Offset int // position of the batch's first record
	Size   int
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("batch %d (rows %d-%d) transport error: %v",
		e.Batch, e.Offset+1, e.Offset+e.Size, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StateError reports an action that the session's current state forbids.
type StateError struct {
	State  State
	Action string
}

func (e *StateError) Error() string {
	if e.State == StateUploading {
		return fmt.Sprintf("invalid transition: cannot %s while uploading, inputs are locked", e.Action)
	}
	return fmt.Sprintf("invalid transition: cannot %s in state %s", e.Action, e.State)
}

// IsStepError reports whether err blocks a single step but leaves the
// session usable (parse, configuration, state and empty-data errors).
func IsStepError(err error) bool {
	var pe *ParseError
	var ce *ConfigurationError
	var se *StateError
	return errors.As(err, &pe) || errors.As(err, &ce) || errors.As(err, &se) || errors.Is(err, ErrNoData)
}
